package domain

import (
	"fmt"
	"strings"
	"time"
)

// Test groups questions under a name and an optional duration override.
type Test struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	DurationMinutes int       `json:"duration_minutes"`
	IsActive        bool      `json:"is_active"`
	CreatedAt       time.Time `json:"created_at"`
}

// Question models an MCQ question with exactly one correct label.
type Question struct {
	ID        string    `json:"id"`
	TestID    string    `json:"test_id,omitempty"`
	Text      string    `json:"question"`
	Options   Options   `json:"options"`
	Answer    string    `json:"answer"`
	CreatedAt time.Time `json:"created_at"`
}

// IsCorrect reports whether label is the question's answer.
func (q Question) IsCorrect(label string) bool {
	return label != "" && label == q.Answer
}

// Validate checks the question is answerable: text, at least two unique
// options, and an answer that is one of them.
func (q Question) Validate() error {
	if strings.TrimSpace(q.Text) == "" {
		return fmt.Errorf("%w: question text is required", ErrMalformedInput)
	}
	if len(q.Options) < 2 {
		return fmt.Errorf("%w: at least two options are required", ErrMalformedInput)
	}
	if err := q.Options.Validate(); err != nil {
		return err
	}
	if !q.Options.Has(q.Answer) {
		return fmt.Errorf("%w: answer %q is not an option", ErrMalformedInput, q.Answer)
	}
	return nil
}

// Student is a registered quiz taker, identified by roll number.
type Student struct {
	RollNo       string    `json:"rollno"`
	Name         string    `json:"name"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// StudentProfile is the public view returned on login.
type StudentProfile struct {
	Name   string `json:"name"`
	RollNo string `json:"rollno"`
}

// Settings holds the global quiz configuration. Duration is in minutes.
type Settings struct {
	Duration int `json:"duration"`
}

// Result is a finished attempt as recorded by the result service.
type Result struct {
	ID          string    `json:"id"`
	AttemptID   string    `json:"attempt_id,omitempty"`
	StudentID   string    `json:"rollno,omitempty"`
	Name        string    `json:"name"`
	TestID      string    `json:"test_id,omitempty"`
	Score       int       `json:"score"`
	Total       int       `json:"total"`
	Percentage  int       `json:"percentage"`
	Date        string    `json:"date,omitempty"`
	Time        string    `json:"time,omitempty"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// ResultFilter narrows result queries; empty fields match everything.
type ResultFilter struct {
	TestID    string
	StudentID string
}

// Matches reports whether r falls inside the filter.
func (f ResultFilter) Matches(r Result) bool {
	if f.TestID != "" && r.TestID != f.TestID {
		return false
	}
	if f.StudentID != "" && r.StudentID != f.StudentID {
		return false
	}
	return true
}

// Statistics aggregates scores over a set of results.
type Statistics struct {
	Count   int     `json:"totalAttempts"`
	Average float64 `json:"averageScore"`
	Max     int     `json:"highestScore"`
	Min     int     `json:"lowestScore"`
}

// AdminSession is a privileged session issued on admin login.
type AdminSession struct {
	Token    string
	IssuedAt time.Time
}
