package memory

import (
	"context"
	"sync"

	"timed-quiz-service/internal/domain"
)

// AttemptStore keeps one attempt checkpoint in memory. It stores deep copies
// so later mutations of the caller's attempt do not leak into the checkpoint.
type AttemptStore struct {
	mu      sync.Mutex
	attempt *domain.Attempt
	saves   int
}

func NewAttemptStore() *AttemptStore {
	return &AttemptStore{}
}

func (s *AttemptStore) Save(_ context.Context, attempt *domain.Attempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempt = copyAttempt(attempt)
	s.saves++
	return nil
}

func (s *AttemptStore) Load(_ context.Context) (*domain.Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.attempt == nil {
		return nil, nil
	}
	return copyAttempt(s.attempt), nil
}

func (s *AttemptStore) Clear(_ context.Context) error {
	s.mu.Lock()
	s.attempt = nil
	s.mu.Unlock()
	return nil
}

// Saves counts Save calls.
func (s *AttemptStore) Saves() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

func copyAttempt(a *domain.Attempt) *domain.Attempt {
	cp := *a
	cp.Questions = append([]domain.Question(nil), a.Questions...)
	cp.Responses = append([]string(nil), a.Responses...)
	if a.Result != nil {
		r := *a.Result
		cp.Result = &r
	}
	return &cp
}
