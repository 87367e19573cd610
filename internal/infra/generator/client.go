package generator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"timed-quiz-service/internal/domain"
)

// DefaultEndpoint is the GitHub Models chat completions URL.
const DefaultEndpoint = "https://models.inference.ai.azure.com/chat/completions"

// Client asks an OpenAI-compatible chat completions endpoint for MCQ questions.
type Client struct {
	endpoint string
	model    string
	token    string
	http     *http.Client
}

func NewClient(endpoint, model, token string) *Client {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	if model == "" {
		model = "gpt-4o-mini"
	}
	return &Client{
		endpoint: endpoint,
		model:    model,
		token:    token,
		http:     &http.Client{Timeout: 60 * time.Second},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Generate returns count questions about topic. Items that fail validation
// are dropped; an answer set with no valid item is an error.
func (c *Client) Generate(ctx context.Context, topic string, count int) ([]domain.Question, error) {
	body, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: "You are a programming quiz generator. Return only valid JSON arrays."},
			{Role: "user", Content: prompt(topic, count)},
		},
		Temperature: 0.7,
		MaxTokens:   2000,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call generator: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("generator status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var chat chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chat); err != nil {
		return nil, fmt.Errorf("decode generator response: %w", err)
	}
	if len(chat.Choices) == 0 {
		return nil, fmt.Errorf("generator returned no choices")
	}
	return ParseQuestions(chat.Choices[0].Message.Content)
}

var fence = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)```")

// ParseQuestions decodes the model's reply, tolerating a markdown code fence
// around the JSON array.
func ParseQuestions(content string) ([]domain.Question, error) {
	if m := fence.FindStringSubmatch(content); m != nil {
		content = m[1]
	}
	var raw []domain.Question
	if err := json.Unmarshal([]byte(strings.TrimSpace(content)), &raw); err != nil {
		return nil, fmt.Errorf("parse generated questions: %w", err)
	}
	questions := make([]domain.Question, 0, len(raw))
	for _, q := range raw {
		q.Answer = strings.ToUpper(strings.TrimSpace(q.Answer))
		if q.Validate() != nil {
			continue
		}
		questions = append(questions, q)
	}
	if len(questions) == 0 {
		return nil, fmt.Errorf("no valid questions in generator reply")
	}
	return questions, nil
}

func prompt(topic string, count int) string {
	return fmt.Sprintf(`Generate %d multiple choice questions about %s programming.
Return ONLY a valid JSON array with this exact format, no other text:
[
  { "question": "Question text?", "options": { "A": "Opt A", "B": "Opt B", "C": "Opt C", "D": "Opt D" }, "answer": "A" }
]
Requirements:
- Exactly 4 options (A, B, C, D)
- Answer must be single letter
- Mix difficulty`, count, topic)
}
