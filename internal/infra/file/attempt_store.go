package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"timed-quiz-service/internal/domain"
)

// AttemptStore checkpoints the in-progress attempt as a JSON file so a
// restarted client resumes it. Writes go through a temp file and rename.
type AttemptStore struct {
	path string
}

func NewAttemptStore(path string) *AttemptStore {
	return &AttemptStore{path: path}
}

// checkpoint is the on-disk shape. quizEndTime is epoch milliseconds.
type checkpoint struct {
	AttemptID        string            `json:"attemptId"`
	TestID           string            `json:"testId,omitempty"`
	RollNo           string            `json:"rollno,omitempty"`
	Quiz             []domain.Question `json:"quiz"`
	CurrentQuestion  int               `json:"currentQuestion"`
	Score            int               `json:"score"`
	Responses        []*string         `json:"responses"`
	PlayerName       string            `json:"playerName"`
	QuizEndTime      *int64            `json:"quizEndTime"`
	CurrentSelection *string           `json:"currentSelection"`
	InProgress       bool              `json:"inProgress"`
	Status           string            `json:"status"`
	StartedAt        time.Time         `json:"startedAt"`
}

func (s *AttemptStore) Save(_ context.Context, attempt *domain.Attempt) error {
	data, err := json.MarshalIndent(toCheckpoint(attempt), "", "  ")
	if err != nil {
		return fmt.Errorf("encode attempt: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write attempt: %w", err)
	}
	return os.Rename(tmp, s.path)
}

func (s *AttemptStore) Load(_ context.Context) (*domain.Attempt, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read attempt: %w", err)
	}
	var cp checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		// An unreadable checkpoint cannot be resumed; treat it as absent.
		return nil, nil
	}
	return fromCheckpoint(cp), nil
}

func (s *AttemptStore) Clear(_ context.Context) error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func toCheckpoint(a *domain.Attempt) checkpoint {
	cp := checkpoint{
		AttemptID:       a.ID,
		TestID:          a.TestID,
		RollNo:          a.StudentID,
		Quiz:            a.Questions,
		CurrentQuestion: a.Current,
		Score:           a.Score(),
		Responses:       make([]*string, len(a.Responses)),
		PlayerName:      a.StudentName,
		InProgress:      a.Status == domain.AttemptActive,
		Status:          string(a.Status),
		StartedAt:       a.StartedAt,
	}
	for i, r := range a.Responses {
		if r != "" {
			label := r
			cp.Responses[i] = &label
		}
	}
	if !a.DeadlineAt.IsZero() {
		ms := a.DeadlineAt.UnixMilli()
		cp.QuizEndTime = &ms
	}
	if a.Current >= 0 && a.Current < len(a.Responses) && a.Responses[a.Current] != "" {
		sel := a.Responses[a.Current]
		cp.CurrentSelection = &sel
	}
	return cp
}

func fromCheckpoint(cp checkpoint) *domain.Attempt {
	a := &domain.Attempt{
		ID:          cp.AttemptID,
		TestID:      cp.TestID,
		StudentID:   cp.RollNo,
		StudentName: cp.PlayerName,
		Questions:   cp.Quiz,
		Responses:   make([]string, len(cp.Quiz)),
		Current:     cp.CurrentQuestion,
		StartedAt:   cp.StartedAt,
		Status:      domain.AttemptStatus(cp.Status),
	}
	for i, r := range cp.Responses {
		if i < len(a.Responses) && r != nil {
			a.Responses[i] = *r
		}
	}
	if cp.QuizEndTime != nil {
		a.DeadlineAt = time.UnixMilli(*cp.QuizEndTime)
	}
	if a.Status == "" {
		if cp.InProgress {
			a.Status = domain.AttemptActive
		} else {
			a.Status = domain.AttemptSubmitted
		}
	}
	return a
}
