package app

import (
	"context"
	"time"

	"timed-quiz-service/internal/domain"
)

// QuestionSource supplies the ordered question set of a test. An empty testID
// means every question.
type QuestionSource interface {
	Questions(ctx context.Context, testID string) ([]domain.Question, error)
}

// SettingsSource resolves how long an attempt at testID may run.
type SettingsSource interface {
	QuizDuration(ctx context.Context, testID string) (time.Duration, error)
}

// AttemptStore checkpoints the single in-progress attempt of a client.
// Load returns nil, nil when nothing is stored.
type AttemptStore interface {
	Save(ctx context.Context, attempt *domain.Attempt) error
	Load(ctx context.Context) (*domain.Attempt, error)
	Clear(ctx context.Context) error
}

// ResultRecorder persists finished attempts.
type ResultRecorder interface {
	Record(ctx context.Context, result domain.Result) (domain.Result, error)
}

// SessionRegistry abstracts where admin session tokens live (in-memory, Redis).
type SessionRegistry interface {
	Issue(ctx context.Context) (string, error)
	Validate(ctx context.Context, token string) bool
	Revoke(ctx context.Context, token string)
}

// QuestionCache is a QuestionSource that can be told its content changed.
type QuestionCache interface {
	QuestionSource
	Invalidate(ctx context.Context) error
}

// Generator produces new questions about a topic.
type Generator interface {
	Generate(ctx context.Context, topic string, count int) ([]domain.Question, error)
}

type TestRepository interface {
	ListTests(ctx context.Context) ([]domain.Test, error)
	GetTest(ctx context.Context, id string) (domain.Test, error)
	CreateTest(ctx context.Context, test domain.Test) (domain.Test, error)
	UpdateTest(ctx context.Context, test domain.Test) (domain.Test, error)
	// DeleteTest removes the test and every question attached to it.
	DeleteTest(ctx context.Context, id string) error
}

type QuestionRepository interface {
	ListQuestions(ctx context.Context, testID string) ([]domain.Question, error)
	CreateQuestion(ctx context.Context, q domain.Question) (domain.Question, error)
	UpdateQuestion(ctx context.Context, q domain.Question) (domain.Question, error)
	DeleteQuestion(ctx context.Context, id string) error
	// ReplaceQuestions drops every stored question and inserts qs.
	ReplaceQuestions(ctx context.Context, qs []domain.Question) error
}

type StudentRepository interface {
	ListStudents(ctx context.Context) ([]domain.Student, error)
	GetStudent(ctx context.Context, rollNo string) (domain.Student, error)
	CreateStudent(ctx context.Context, s domain.Student) (domain.Student, error)
	DeleteStudent(ctx context.Context, rollNo string) error
}

type SettingsRepository interface {
	GetSettings(ctx context.Context) (domain.Settings, error)
	SaveSettings(ctx context.Context, s domain.Settings) error
}

// ResultRepository is append-only apart from the admin clear/delete calls.
type ResultRepository interface {
	AppendResult(ctx context.Context, r domain.Result) error
	ListResults(ctx context.Context, filter domain.ResultFilter) ([]domain.Result, error)
	ClearResults(ctx context.Context) error
	DeleteResult(ctx context.Context, id string) error
}

// Store is the full persistence collaborator.
type Store interface {
	TestRepository
	QuestionRepository
	StudentRepository
	SettingsRepository
	ResultRepository
}
