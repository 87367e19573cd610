package domain

import "time"

// AttemptStatus is the lifecycle state of an attempt.
type AttemptStatus string

const (
	AttemptActive    AttemptStatus = "active"
	AttemptExpired   AttemptStatus = "expired"
	AttemptSubmitted AttemptStatus = "submitted"
)

// Attempt is one student's run through a test's question set. It is owned by
// a single caller and mutated only through the quiz engine.
type Attempt struct {
	ID          string
	TestID      string
	StudentID   string
	StudentName string
	Questions   []Question
	// Responses[i] is the label chosen for Questions[i]; "" means unanswered.
	Responses  []string
	Current    int
	StartedAt  time.Time
	DeadlineAt time.Time
	Status     AttemptStatus
	Result     *Result
	Saved      bool
}

// Answered counts questions with a response.
func (a *Attempt) Answered() int {
	n := 0
	for _, r := range a.Responses {
		if r != "" {
			n++
		}
	}
	return n
}

// Score counts responses matching the snapshot's answer key.
func (a *Attempt) Score() int {
	score := 0
	for i, q := range a.Questions {
		if i < len(a.Responses) && q.IsCorrect(a.Responses[i]) {
			score++
		}
	}
	return score
}

// CurrentQuestion returns the question at the active index.
func (a *Attempt) CurrentQuestion() (Question, bool) {
	if a.Current < 0 || a.Current >= len(a.Questions) {
		return Question{}, false
	}
	return a.Questions[a.Current], true
}
