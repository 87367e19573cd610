package app

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"timed-quiz-service/internal/domain"
)

// DefaultQuizDuration applies when the settings source fails or returns nothing usable.
const DefaultQuizDuration = 10 * time.Minute

// Outcome is what finalizing an attempt produced.
type Outcome struct {
	Result domain.Result
	// Saved is false when recording failed twice; Result is still valid.
	Saved bool
	// Replayed is true when the attempt had already been finalized and
	// nothing was recorded by this call.
	Replayed bool
}

// QuizEngine runs attempts: it snapshots and shuffles the question set,
// captures answers, anchors the deadline and scores exactly once.
// Attempts are plain values owned by the caller; the engine keeps no
// per-attempt state of its own.
type QuizEngine struct {
	source   QuestionSource
	settings SettingsSource
	store    AttemptStore
	results  ResultRecorder

	fallback        []domain.Question
	defaultDuration time.Duration
	now             func() time.Time
	rnd             *rand.Rand
	log             logrus.FieldLogger
}

type EngineOption func(*QuizEngine)

// WithFallbackQuestions sets the built-in set used when the source fails.
func WithFallbackQuestions(qs []domain.Question) EngineOption {
	return func(e *QuizEngine) { e.fallback = qs }
}

// WithClock is mostly useful in tests.
func WithClock(now func() time.Time) EngineOption {
	return func(e *QuizEngine) { e.now = now }
}

func WithRand(rnd *rand.Rand) EngineOption {
	return func(e *QuizEngine) { e.rnd = rnd }
}

func WithLogger(log logrus.FieldLogger) EngineOption {
	return func(e *QuizEngine) { e.log = log }
}

func WithDefaultDuration(d time.Duration) EngineOption {
	return func(e *QuizEngine) {
		if d > 0 {
			e.defaultDuration = d
		}
	}
}

func NewQuizEngine(source QuestionSource, settings SettingsSource, store AttemptStore, results ResultRecorder, opts ...EngineOption) *QuizEngine {
	e := &QuizEngine{
		source:          source,
		settings:        settings,
		store:           store,
		results:         results,
		defaultDuration: DefaultQuizDuration,
		now:             time.Now,
		rnd:             rand.New(rand.NewSource(time.Now().UnixNano())),
		log:             logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Start creates a new attempt at testID from a freshly shuffled snapshot and
// checkpoints it with its deadline already fixed.
func (e *QuizEngine) Start(ctx context.Context, student domain.StudentProfile, testID string) (*domain.Attempt, error) {
	questions, err := e.source.Questions(ctx, testID)
	if err == nil && len(questions) == 0 {
		err = errors.New("empty question set")
	}
	if err != nil {
		if len(e.fallback) == 0 {
			return nil, fmt.Errorf("%w: %v", domain.ErrSourceUnavailable, err)
		}
		e.log.WithError(err).WithField("test_id", testID).Warn("using built-in questions")
		questions = e.fallback
	}

	snapshot := snapshotQuestions(questions)
	e.rnd.Shuffle(len(snapshot), func(i, j int) {
		snapshot[i], snapshot[j] = snapshot[j], snapshot[i]
	})

	attempt := &domain.Attempt{
		ID:          uuid.NewString(),
		TestID:      testID,
		StudentID:   student.RollNo,
		StudentName: student.Name,
		Questions:   snapshot,
		Responses:   make([]string, len(snapshot)),
		StartedAt:   e.now(),
		Status:      domain.AttemptActive,
	}
	e.anchorDeadline(ctx, attempt)
	e.checkpoint(ctx, attempt)

	e.log.WithFields(logrus.Fields{
		"attempt_id": attempt.ID,
		"test_id":    testID,
		"questions":  len(snapshot),
		"deadline":   attempt.DeadlineAt.Format(time.RFC3339),
	}).Info("attempt started")
	return attempt, nil
}

// Resume restores the checkpointed attempt. Only active snapshots resume;
// anything else is cleared and (nil, nil, nil) is returned. If the stored
// deadline has already passed the attempt is expired and auto-submitted
// before returning, and the outcome is non-nil.
func (e *QuizEngine) Resume(ctx context.Context) (*domain.Attempt, *Outcome, error) {
	attempt, err := e.store.Load(ctx)
	if err != nil {
		return nil, nil, err
	}
	if attempt == nil {
		return nil, nil, nil
	}
	if attempt.Status != domain.AttemptActive || len(attempt.Questions) == 0 {
		e.log.WithFields(logrus.Fields{"attempt_id": attempt.ID, "status": attempt.Status}).Info("discarding non-resumable attempt")
		if err := e.store.Clear(ctx); err != nil {
			return nil, nil, err
		}
		return nil, nil, nil
	}

	attempt.Responses = fitResponses(attempt.Responses, len(attempt.Questions))
	if attempt.Current < 0 || attempt.Current >= len(attempt.Questions) {
		attempt.Current = 0
	}
	if attempt.DeadlineAt.IsZero() {
		e.anchorDeadline(ctx, attempt)
		e.checkpoint(ctx, attempt)
	}

	if RemainingSeconds(attempt.DeadlineAt, e.now()) == 0 {
		out, err := e.Expire(ctx, attempt)
		return attempt, &out, err
	}
	return attempt, nil, nil
}

// SelectOption records label as the answer at index. Later calls overwrite
// earlier ones.
func (e *QuizEngine) SelectOption(ctx context.Context, attempt *domain.Attempt, index int, label string) error {
	if attempt.Status != domain.AttemptActive {
		return domain.ErrAttemptClosed
	}
	if index < 0 || index >= len(attempt.Questions) {
		return domain.ErrQuestionNotFound
	}
	if !attempt.Questions[index].Options.Has(label) {
		return domain.ErrInvalidOption
	}
	if attempt.Responses[index] == label {
		return nil
	}
	attempt.Responses[index] = label
	e.checkpoint(ctx, attempt)
	return nil
}

// Advance moves to the next question. It reports whether the index moved.
func (e *QuizEngine) Advance(ctx context.Context, attempt *domain.Attempt) bool {
	return e.move(ctx, attempt, 1)
}

// Retreat moves to the previous question. It reports whether the index moved.
func (e *QuizEngine) Retreat(ctx context.Context, attempt *domain.Attempt) bool {
	return e.move(ctx, attempt, -1)
}

func (e *QuizEngine) move(ctx context.Context, attempt *domain.Attempt, delta int) bool {
	if attempt.Status != domain.AttemptActive {
		return false
	}
	next := attempt.Current + delta
	if next < 0 || next >= len(attempt.Questions) {
		return false
	}
	attempt.Current = next
	e.checkpoint(ctx, attempt)
	return true
}

// Remaining is the whole number of seconds before attempt's deadline.
func (e *QuizEngine) Remaining(attempt *domain.Attempt) int {
	return RemainingSeconds(attempt.DeadlineAt, e.now())
}

// Timer returns a DeadlineTimer on attempt's deadline using the engine clock.
func (e *QuizEngine) Timer(attempt *domain.Attempt) *DeadlineTimer {
	return NewDeadlineTimer(attempt.DeadlineAt, e.now)
}

// Expire moves an active attempt to expired and auto-finalizes it.
func (e *QuizEngine) Expire(ctx context.Context, attempt *domain.Attempt) (Outcome, error) {
	if attempt.Status == domain.AttemptActive {
		attempt.Status = domain.AttemptExpired
		e.log.WithField("attempt_id", attempt.ID).Info("attempt deadline reached")
	}
	return e.Finalize(ctx, attempt)
}

// Finalize scores the attempt against its snapshot, marks it submitted and
// records the result, retrying once. Only the first call has any effect;
// later calls return the first outcome with Replayed set.
//
// When both record calls fail the returned error wraps domain.ErrPersistence
// and the Outcome is still valid with Saved false.
func (e *QuizEngine) Finalize(ctx context.Context, attempt *domain.Attempt) (Outcome, error) {
	if attempt.Status == domain.AttemptSubmitted {
		out := Outcome{Saved: attempt.Saved, Replayed: true}
		if attempt.Result != nil {
			out.Result = *attempt.Result
		}
		return out, nil
	}

	now := e.now()
	score := attempt.Score()
	total := len(attempt.Questions)
	result := domain.Result{
		AttemptID:   attempt.ID,
		StudentID:   attempt.StudentID,
		Name:        attempt.StudentName,
		TestID:      attempt.TestID,
		Score:       score,
		Total:       total,
		Percentage:  Percentage(score, total),
		Date:        now.Format("2006-01-02"),
		Time:        now.Format("15:04:05"),
		SubmittedAt: now,
	}
	attempt.Status = domain.AttemptSubmitted
	attempt.Result = &result

	saved, recordErr := e.record(ctx, result)
	if recordErr == nil {
		attempt.Result = &saved
		attempt.Saved = true
	}
	if err := e.store.Clear(ctx); err != nil {
		e.log.WithError(err).WithField("attempt_id", attempt.ID).Warn("clear attempt checkpoint")
	}

	log := e.log.WithFields(logrus.Fields{
		"attempt_id": attempt.ID,
		"score":      score,
		"total":      total,
	})
	if recordErr != nil {
		log.WithError(recordErr).Error("result not saved")
	} else {
		log.Info("attempt submitted")
	}
	return Outcome{Result: *attempt.Result, Saved: attempt.Saved}, recordErr
}

// Exit abandons the attempt and forgets its checkpoint.
func (e *QuizEngine) Exit(ctx context.Context, attempt *domain.Attempt) error {
	if attempt != nil {
		e.log.WithField("attempt_id", attempt.ID).Info("attempt abandoned")
	}
	return e.store.Clear(ctx)
}

func (e *QuizEngine) record(ctx context.Context, result domain.Result) (domain.Result, error) {
	saved, err := e.results.Record(ctx, result)
	if err == nil {
		return saved, nil
	}
	e.log.WithError(err).WithField("attempt_id", result.AttemptID).Warn("record result failed, retrying once")

	saved, err = e.results.Record(ctx, result)
	if err == nil {
		return saved, nil
	}
	if !errors.Is(err, domain.ErrPersistence) {
		err = fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}
	return result, err
}

func (e *QuizEngine) anchorDeadline(ctx context.Context, attempt *domain.Attempt) {
	duration := e.defaultDuration
	if e.settings != nil {
		d, err := e.settings.QuizDuration(ctx, attempt.TestID)
		switch {
		case err != nil:
			e.log.WithError(err).Warn("quiz duration unavailable, using default")
		case d > 0:
			duration = d
		}
	}
	attempt.DeadlineAt = e.now().Add(duration)
}

// checkpoint saves the attempt. The in-memory attempt stays authoritative,
// so a failed save is logged and otherwise ignored.
func (e *QuizEngine) checkpoint(ctx context.Context, attempt *domain.Attempt) {
	if err := e.store.Save(ctx, attempt); err != nil {
		e.log.WithError(err).WithField("attempt_id", attempt.ID).Warn("checkpoint attempt")
	}
}

// Percentage is round(100*score/total), 0 for an empty test.
func Percentage(score, total int) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(100 * float64(score) / float64(total)))
}

func snapshotQuestions(qs []domain.Question) []domain.Question {
	out := make([]domain.Question, len(qs))
	for i, q := range qs {
		q.Options = append(domain.Options(nil), q.Options...)
		out[i] = q
	}
	return out
}

func fitResponses(responses []string, n int) []string {
	if len(responses) == n {
		return responses
	}
	out := make([]string, n)
	copy(out, responses)
	return out
}
