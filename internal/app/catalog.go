package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"timed-quiz-service/internal/domain"
)

// Catalog serves the public, read-only side: tests, questions and settings.
type Catalog struct {
	tests           TestRepository
	questions       QuestionSource
	settings        SettingsRepository
	defaultDuration time.Duration
	log             logrus.FieldLogger
}

func NewCatalog(tests TestRepository, questions QuestionSource, settings SettingsRepository, defaultDuration time.Duration, log logrus.FieldLogger) *Catalog {
	if defaultDuration <= 0 {
		defaultDuration = DefaultQuizDuration
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Catalog{
		tests:           tests,
		questions:       questions,
		settings:        settings,
		defaultDuration: defaultDuration,
		log:             log,
	}
}

func (c *Catalog) ListTests(ctx context.Context) ([]domain.Test, error) {
	tests, err := c.tests.ListTests(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: list tests: %v", domain.ErrSourceUnavailable, err)
	}
	return tests, nil
}

// Questions returns the question set attached to testID ("" for all).
func (c *Catalog) Questions(ctx context.Context, testID string) ([]domain.Question, error) {
	qs, err := c.questions.Questions(ctx, testID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrSourceUnavailable, err)
	}
	return qs, nil
}

// Settings resolves the duration in minutes for testID. A test with its own
// positive duration overrides the global setting; storage failures fall back
// to the default.
func (c *Catalog) Settings(ctx context.Context, testID string) domain.Settings {
	settings, err := c.settings.GetSettings(ctx)
	if err != nil || settings.Duration <= 0 {
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			c.log.WithError(err).Warn("load settings, using default duration")
		}
		settings = domain.Settings{Duration: int(c.defaultDuration / time.Minute)}
	}
	if testID == "" {
		return settings
	}
	test, err := c.tests.GetTest(ctx, testID)
	if err == nil && test.DurationMinutes > 0 {
		settings.Duration = test.DurationMinutes
	}
	return settings
}

// QuizDuration lets the catalog act as the engine's SettingsSource in-process.
func (c *Catalog) QuizDuration(ctx context.Context, testID string) (time.Duration, error) {
	return time.Duration(c.Settings(ctx, testID).Duration) * time.Minute, nil
}

// StudentService authenticates students.
type StudentService struct {
	students StudentRepository
	log      logrus.FieldLogger
}

func NewStudentService(students StudentRepository, log logrus.FieldLogger) *StudentService {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &StudentService{students: students, log: log}
}

// Login checks rollNo/password and returns the public profile.
func (s *StudentService) Login(ctx context.Context, rollNo, password string) (domain.StudentProfile, error) {
	student, err := s.students.GetStudent(ctx, rollNo)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.StudentProfile{}, domain.ErrInvalidCredentials
		}
		return domain.StudentProfile{}, err
	}
	if bcrypt.CompareHashAndPassword([]byte(student.PasswordHash), []byte(password)) != nil {
		s.log.WithField("rollno", rollNo).Warn("student login failed")
		return domain.StudentProfile{}, domain.ErrInvalidCredentials
	}
	return domain.StudentProfile{Name: student.Name, RollNo: student.RollNo}, nil
}
