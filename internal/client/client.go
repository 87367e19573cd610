// Package client talks to the quiz server over its JSON API. It provides the
// question, settings and result collaborators the terminal quiz runner needs.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"timed-quiz-service/internal/domain"
)

type Client struct {
	baseURL string
	http    *http.Client
}

func New(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

type apiError struct {
	Message string `json:"message"`
}

// Questions implements app.QuestionSource.
func (c *Client) Questions(ctx context.Context, testID string) ([]domain.Question, error) {
	var qs []domain.Question
	if err := c.do(ctx, http.MethodGet, "/api/questions"+query("test_id", testID), nil, &qs); err != nil {
		return nil, err
	}
	return qs, nil
}

// QuizDuration implements app.SettingsSource.
func (c *Client) QuizDuration(ctx context.Context, testID string) (time.Duration, error) {
	var settings domain.Settings
	if err := c.do(ctx, http.MethodGet, "/api/settings"+query("test_id", testID), nil, &settings); err != nil {
		return 0, err
	}
	return time.Duration(settings.Duration) * time.Minute, nil
}

type recordRequest struct {
	Name       string `json:"name"`
	RollNo     string `json:"rollno"`
	TestID     string `json:"test_id"`
	AttemptID  string `json:"attempt_id"`
	Score      int    `json:"score"`
	Total      int    `json:"total"`
	Percentage int    `json:"percentage"`
	Date       string `json:"date"`
	Time       string `json:"time"`
}

type recordResponse struct {
	Result domain.Result `json:"result"`
}

// Record implements app.ResultRecorder. Any failure to store the result is
// reported as domain.ErrPersistence so the engine retries it.
func (c *Client) Record(ctx context.Context, r domain.Result) (domain.Result, error) {
	var resp recordResponse
	err := c.do(ctx, http.MethodPost, "/api/results", recordRequest{
		Name:       r.Name,
		RollNo:     r.StudentID,
		TestID:     r.TestID,
		AttemptID:  r.AttemptID,
		Score:      r.Score,
		Total:      r.Total,
		Percentage: r.Percentage,
		Date:       r.Date,
		Time:       r.Time,
	}, &resp)
	if err != nil {
		if errors.Is(err, domain.ErrMalformedInput) {
			return domain.Result{}, err
		}
		return domain.Result{}, fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}
	return resp.Result, nil
}

type loginResponse struct {
	Student domain.StudentProfile `json:"student"`
}

// Login authenticates a student and returns their profile.
func (c *Client) Login(ctx context.Context, rollNo, password string) (domain.StudentProfile, error) {
	var resp loginResponse
	body := map[string]string{"rollno": rollNo, "password": password}
	if err := c.do(ctx, http.MethodPost, "/api/student/login", body, &resp); err != nil {
		return domain.StudentProfile{}, err
	}
	return resp.Student, nil
}

// Tests lists the available tests.
func (c *Client) Tests(ctx context.Context) ([]domain.Test, error) {
	var tests []domain.Test
	if err := c.do(ctx, http.MethodGet, "/api/tests", nil, &tests); err != nil {
		return nil, err
	}
	return tests, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var apiErr apiError
		_ = json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&apiErr)
		return statusError(resp.StatusCode, apiErr.Message)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func statusError(status int, message string) error {
	if message == "" {
		message = http.StatusText(status)
	}
	switch status {
	case http.StatusUnauthorized:
		return fmt.Errorf("%w: %s", domain.ErrInvalidCredentials, message)
	case http.StatusBadRequest:
		return fmt.Errorf("%w: %s", domain.ErrMalformedInput, message)
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", domain.ErrNotFound, message)
	default:
		return fmt.Errorf("server returned %d: %s", status, message)
	}
}

func query(key, value string) string {
	if value == "" {
		return ""
	}
	return "?" + url.Values{key: {value}}.Encode()
}
