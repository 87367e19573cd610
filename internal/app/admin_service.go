package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"timed-quiz-service/internal/domain"
)

// AdminCredentials identify the single administrator. PasswordHash is bcrypt.
type AdminCredentials struct {
	Username     string
	PasswordHash string
}

// AdminService holds every privileged operation. Each one validates the
// session token before touching any store and fails with
// domain.ErrUnauthorized otherwise.
type AdminService struct {
	sessions  SessionRegistry
	store     Store
	cache     QuestionCache
	results   *ResultService
	generator Generator
	creds     AdminCredentials
	now       func() time.Time
	log       logrus.FieldLogger
}

func NewAdminService(sessions SessionRegistry, store Store, cache QuestionCache, results *ResultService, generator Generator, creds AdminCredentials, log logrus.FieldLogger) *AdminService {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &AdminService{
		sessions:  sessions,
		store:     store,
		cache:     cache,
		results:   results,
		generator: generator,
		creds:     creds,
		now:       time.Now,
		log:       log,
	}
}

// Login issues a session token for valid admin credentials.
func (s *AdminService) Login(ctx context.Context, username, password string) (string, error) {
	if s.creds.Username == "" || s.creds.PasswordHash == "" || username != s.creds.Username ||
		bcrypt.CompareHashAndPassword([]byte(s.creds.PasswordHash), []byte(password)) != nil {
		s.log.WithField("username", username).Warn("admin login failed")
		return "", domain.ErrInvalidCredentials
	}
	token, err := s.sessions.Issue(ctx)
	if err != nil {
		return "", fmt.Errorf("issue session: %w", err)
	}
	s.log.WithField("username", username).Info("admin login")
	return token, nil
}

// Logout revokes token. Unknown tokens are rejected like any privileged call.
func (s *AdminService) Logout(ctx context.Context, token string) error {
	if err := s.authorize(ctx, token); err != nil {
		return err
	}
	s.sessions.Revoke(ctx, token)
	return nil
}

// Authorize exposes the token check for read-only admin endpoints.
func (s *AdminService) Authorize(ctx context.Context, token string) error {
	return s.authorize(ctx, token)
}

func (s *AdminService) authorize(ctx context.Context, token string) error {
	if token == "" || !s.sessions.Validate(ctx, token) {
		return domain.ErrUnauthorized
	}
	return nil
}

func (s *AdminService) CreateTest(ctx context.Context, token string, test domain.Test) (domain.Test, error) {
	if err := s.authorize(ctx, token); err != nil {
		return domain.Test{}, err
	}
	if strings.TrimSpace(test.Name) == "" || test.DurationMinutes < 0 {
		return domain.Test{}, fmt.Errorf("%w: test needs a name and a non-negative duration", domain.ErrMalformedInput)
	}
	test.ID = uuid.NewString()
	test.CreatedAt = s.now()
	created, err := s.store.CreateTest(ctx, test)
	if err != nil {
		return domain.Test{}, persistence("create test", err)
	}
	s.invalidate(ctx)
	return created, nil
}

func (s *AdminService) UpdateTest(ctx context.Context, token, id string, test domain.Test) (domain.Test, error) {
	if err := s.authorize(ctx, token); err != nil {
		return domain.Test{}, err
	}
	if strings.TrimSpace(test.Name) == "" || test.DurationMinutes < 0 {
		return domain.Test{}, fmt.Errorf("%w: test needs a name and a non-negative duration", domain.ErrMalformedInput)
	}
	test.ID = id
	updated, err := s.store.UpdateTest(ctx, test)
	if err != nil {
		return domain.Test{}, persistence("update test", err)
	}
	s.invalidate(ctx)
	return updated, nil
}

// DeleteTest removes the test together with its questions.
func (s *AdminService) DeleteTest(ctx context.Context, token, id string) error {
	if err := s.authorize(ctx, token); err != nil {
		return err
	}
	if err := s.store.DeleteTest(ctx, id); err != nil {
		return persistence("delete test", err)
	}
	s.invalidate(ctx)
	return nil
}

func (s *AdminService) CreateQuestion(ctx context.Context, token string, q domain.Question) (domain.Question, error) {
	if err := s.authorize(ctx, token); err != nil {
		return domain.Question{}, err
	}
	if err := q.Validate(); err != nil {
		return domain.Question{}, err
	}
	q.ID = uuid.NewString()
	q.CreatedAt = s.now()
	created, err := s.store.CreateQuestion(ctx, q)
	if err != nil {
		return domain.Question{}, persistence("create question", err)
	}
	s.invalidate(ctx)
	return created, nil
}

func (s *AdminService) UpdateQuestion(ctx context.Context, token, id string, q domain.Question) (domain.Question, error) {
	if err := s.authorize(ctx, token); err != nil {
		return domain.Question{}, err
	}
	if err := q.Validate(); err != nil {
		return domain.Question{}, err
	}
	q.ID = id
	updated, err := s.store.UpdateQuestion(ctx, q)
	if err != nil {
		return domain.Question{}, persistence("update question", err)
	}
	s.invalidate(ctx)
	return updated, nil
}

func (s *AdminService) DeleteQuestion(ctx context.Context, token, id string) error {
	if err := s.authorize(ctx, token); err != nil {
		return err
	}
	if err := s.store.DeleteQuestion(ctx, id); err != nil {
		return persistence("delete question", err)
	}
	s.invalidate(ctx)
	return nil
}

// ReplaceQuestions swaps the whole question bank for qs. Every question is
// validated before anything is deleted.
func (s *AdminService) ReplaceQuestions(ctx context.Context, token string, qs []domain.Question) (int, error) {
	if err := s.authorize(ctx, token); err != nil {
		return 0, err
	}
	now := s.now()
	prepared := make([]domain.Question, len(qs))
	for i, q := range qs {
		if err := q.Validate(); err != nil {
			return 0, fmt.Errorf("question %d: %w", i, err)
		}
		if q.ID == "" {
			q.ID = uuid.NewString()
		}
		if q.CreatedAt.IsZero() {
			q.CreatedAt = now
		}
		prepared[i] = q
	}
	if err := s.store.ReplaceQuestions(ctx, prepared); err != nil {
		return 0, persistence("replace questions", err)
	}
	s.invalidate(ctx)
	s.log.WithField("count", len(prepared)).Info("question bank replaced")
	return len(prepared), nil
}

func (s *AdminService) ListStudents(ctx context.Context, token string) ([]domain.Student, error) {
	if err := s.authorize(ctx, token); err != nil {
		return nil, err
	}
	return s.store.ListStudents(ctx)
}

func (s *AdminService) CreateStudent(ctx context.Context, token, rollNo, name, password string) (domain.Student, error) {
	if err := s.authorize(ctx, token); err != nil {
		return domain.Student{}, err
	}
	if rollNo == "" || name == "" || password == "" {
		return domain.Student{}, fmt.Errorf("%w: rollno, name and password are required", domain.ErrMalformedInput)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return domain.Student{}, fmt.Errorf("hash password: %w", err)
	}
	created, err := s.store.CreateStudent(ctx, domain.Student{
		RollNo:       rollNo,
		Name:         name,
		PasswordHash: string(hash),
		CreatedAt:    s.now(),
	})
	if err != nil {
		return domain.Student{}, persistence("create student", err)
	}
	return created, nil
}

func (s *AdminService) DeleteStudent(ctx context.Context, token, rollNo string) error {
	if err := s.authorize(ctx, token); err != nil {
		return err
	}
	if err := s.store.DeleteStudent(ctx, rollNo); err != nil {
		return persistence("delete student", err)
	}
	return nil
}

func (s *AdminService) SaveSettings(ctx context.Context, token string, settings domain.Settings) error {
	if err := s.authorize(ctx, token); err != nil {
		return err
	}
	if settings.Duration <= 0 {
		return fmt.Errorf("%w: duration must be positive", domain.ErrMalformedInput)
	}
	if err := s.store.SaveSettings(ctx, settings); err != nil {
		return persistence("save settings", err)
	}
	return nil
}

// Generate asks the generator for count questions about topic and stores
// them, attached to testID when given.
func (s *AdminService) Generate(ctx context.Context, token, topic string, count int, testID string) ([]domain.Question, error) {
	if err := s.authorize(ctx, token); err != nil {
		return nil, err
	}
	if s.generator == nil {
		return nil, fmt.Errorf("%w: no generator configured", domain.ErrSourceUnavailable)
	}
	if topic == "" {
		topic = "Java"
	}
	if count <= 0 {
		count = 5
	}
	s.log.WithFields(logrus.Fields{"topic": topic, "count": count}).Info("generating questions")

	generated, err := s.generator.Generate(ctx, topic, count)
	if err != nil {
		return nil, fmt.Errorf("%w: generate: %v", domain.ErrSourceUnavailable, err)
	}
	now := s.now()
	stored := make([]domain.Question, 0, len(generated))
	for _, q := range generated {
		q.ID = uuid.NewString()
		q.TestID = testID
		q.CreatedAt = now
		created, err := s.store.CreateQuestion(ctx, q)
		if err != nil {
			s.invalidate(ctx)
			return stored, persistence("store generated question", err)
		}
		stored = append(stored, created)
	}
	s.invalidate(ctx)
	return stored, nil
}

func (s *AdminService) ClearResults(ctx context.Context, token string) error {
	if err := s.authorize(ctx, token); err != nil {
		return err
	}
	if err := s.store.ClearResults(ctx); err != nil {
		return persistence("clear results", err)
	}
	s.log.Info("all results cleared")
	s.results.Publish(ctx)
	return nil
}

func (s *AdminService) DeleteResult(ctx context.Context, token, id string) error {
	if err := s.authorize(ctx, token); err != nil {
		return err
	}
	if id == "" {
		return fmt.Errorf("%w: missing result id", domain.ErrMalformedInput)
	}
	if err := s.store.DeleteResult(ctx, id); err != nil {
		return persistence("delete result", err)
	}
	s.results.Publish(ctx)
	return nil
}

func (s *AdminService) invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx); err != nil {
		s.log.WithError(err).Warn("invalidate question cache")
	}
}

// persistence keeps domain.ErrNotFound visible and tags everything else as a
// storage failure.
func persistence(op string, err error) error {
	if errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%w: %s: %v", domain.ErrPersistence, op, err)
}
