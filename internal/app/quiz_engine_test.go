package app_test

import (
	"context"
	"errors"
	"io"
	"math/rand"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"timed-quiz-service/internal/app"
	"timed-quiz-service/internal/domain"
	"timed-quiz-service/internal/infra/memory"
)

type staticSource struct {
	questions []domain.Question
	err       error
}

func (s staticSource) Questions(_ context.Context, _ string) ([]domain.Question, error) {
	return s.questions, s.err
}

type fixedSettings struct {
	d   time.Duration
	err error
}

func (s fixedSettings) QuizDuration(_ context.Context, _ string) (time.Duration, error) {
	return s.d, s.err
}

// countingRecorder fails the first `failures` calls.
type countingRecorder struct {
	mu       sync.Mutex
	failures int
	calls    int
	saved    []domain.Result
}

func (r *countingRecorder) Record(_ context.Context, result domain.Result) (domain.Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.calls <= r.failures {
		return domain.Result{}, domain.ErrPersistence
	}
	result.ID = "r-1"
	r.saved = append(r.saved, result)
	return result, nil
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func fiveQuestions() []domain.Question {
	qs := make([]domain.Question, 5)
	for i := range qs {
		qs[i] = domain.Question{
			ID:      string(rune('a' + i)),
			Text:    "Q" + string(rune('1'+i)),
			Options: domain.Options{{Label: "A", Text: "x"}, {Label: "B", Text: "y"}, {Label: "C", Text: "z"}},
			Answer:  "B",
		}
	}
	return qs
}

type engineFixture struct {
	engine   *app.QuizEngine
	store    *memory.AttemptStore
	recorder *countingRecorder
	clock    *fakeClock
}

func newEngine(source app.QuestionSource, opts ...app.EngineOption) *engineFixture {
	f := &engineFixture{
		store:    memory.NewAttemptStore(),
		recorder: &countingRecorder{},
		clock:    &fakeClock{now: time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC)},
	}
	base := []app.EngineOption{
		app.WithClock(f.clock.Now),
		app.WithRand(rand.New(rand.NewSource(7))),
		app.WithLogger(quietLogger()),
	}
	f.engine = app.NewQuizEngine(source, fixedSettings{d: 10 * time.Minute}, f.store, f.recorder, append(base, opts...)...)
	return f
}

var student = domain.StudentProfile{Name: "Asha", RollNo: "101"}

func TestStartShufflesSnapshotAndAnchorsDeadline(t *testing.T) {
	ctx := context.Background()
	source := fiveQuestions()
	f := newEngine(staticSource{questions: source})

	attempt, err := f.engine.Start(ctx, student, "t1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if len(attempt.Responses) != len(attempt.Questions) || len(attempt.Questions) != 5 {
		t.Fatalf("responses must match questions: %d vs %d", len(attempt.Responses), len(attempt.Questions))
	}
	ids := make([]string, 0, 5)
	for _, q := range attempt.Questions {
		ids = append(ids, q.ID)
	}
	sort.Strings(ids)
	for i, q := range source {
		if ids[i] != q.ID {
			t.Fatalf("shuffle must keep the same questions, got %v", ids)
		}
	}
	if want := f.clock.Now().Add(10 * time.Minute); !attempt.DeadlineAt.Equal(want) {
		t.Fatalf("expected deadline %v, got %v", want, attempt.DeadlineAt)
	}
	if attempt.Status != domain.AttemptActive || attempt.StudentName != "Asha" || attempt.ID == "" {
		t.Fatalf("unexpected attempt %+v", attempt)
	}

	// Mutating the source afterwards must not leak into the snapshot.
	source[0].Options[0].Text = "mutated"
	for _, q := range attempt.Questions {
		if q.Options[0].Text == "mutated" {
			t.Fatalf("snapshot shares option storage with the source")
		}
	}

	saved, _ := f.store.Load(ctx)
	if saved == nil || saved.ID != attempt.ID {
		t.Fatalf("expected attempt checkpointed on start")
	}
}

func TestStartFallbackAndSourceUnavailable(t *testing.T) {
	ctx := context.Background()

	f := newEngine(staticSource{err: errors.New("down")})
	if _, err := f.engine.Start(ctx, student, ""); !errors.Is(err, domain.ErrSourceUnavailable) {
		t.Fatalf("expected ErrSourceUnavailable, got %v", err)
	}

	f = newEngine(staticSource{}, app.WithFallbackQuestions(app.DefaultQuestions()))
	attempt, err := f.engine.Start(ctx, student, "")
	if err != nil {
		t.Fatalf("start with fallback: %v", err)
	}
	if len(attempt.Questions) != len(app.DefaultQuestions()) {
		t.Fatalf("expected fallback set, got %d questions", len(attempt.Questions))
	}
}

func TestStartUsesDefaultDurationWhenSettingsFail(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	engine := app.NewQuizEngine(staticSource{questions: fiveQuestions()}, fixedSettings{err: errors.New("nope")},
		memory.NewAttemptStore(), &countingRecorder{}, app.WithClock(clock.Now), app.WithLogger(quietLogger()))

	attempt, err := engine.Start(ctx, student, "")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if got := attempt.DeadlineAt.Sub(clock.Now()); got != app.DefaultQuizDuration {
		t.Fatalf("expected default duration, got %v", got)
	}
}

func TestScoringAgainstSnapshot(t *testing.T) {
	ctx := context.Background()
	f := newEngine(staticSource{questions: fiveQuestions()})
	attempt, _ := f.engine.Start(ctx, student, "t1")

	// Three correct, one wrong, one unanswered.
	for i, label := range []string{"B", "B", "B", "A", ""} {
		if label == "" {
			continue
		}
		if err := f.engine.SelectOption(ctx, attempt, i, label); err != nil {
			t.Fatalf("select %d: %v", i, err)
		}
	}

	outcome, err := f.engine.Finalize(ctx, attempt)
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	r := outcome.Result
	if r.Score != 3 || r.Total != 5 || r.Percentage != 60 {
		t.Fatalf("expected 3/5 60%%, got %+v", r)
	}
	if r.StudentID != "101" || r.TestID != "t1" || r.AttemptID != attempt.ID || r.Date != "2026-10-17" {
		t.Fatalf("unexpected result metadata %+v", r)
	}
	if !outcome.Saved || attempt.Status != domain.AttemptSubmitted {
		t.Fatalf("expected saved submitted attempt, got %+v %s", outcome, attempt.Status)
	}
	if left, _ := f.store.Load(ctx); left != nil {
		t.Fatalf("expected checkpoint cleared after submit")
	}
}

func TestSelectOptionRules(t *testing.T) {
	ctx := context.Background()
	f := newEngine(staticSource{questions: fiveQuestions()})
	attempt, _ := f.engine.Start(ctx, student, "")

	if err := f.engine.SelectOption(ctx, attempt, 0, "A"); err != nil {
		t.Fatalf("select: %v", err)
	}
	if err := f.engine.SelectOption(ctx, attempt, 0, "C"); err != nil {
		t.Fatalf("reselect: %v", err)
	}
	if attempt.Responses[0] != "C" {
		t.Fatalf("expected last write to win, got %q", attempt.Responses[0])
	}
	if err := f.engine.SelectOption(ctx, attempt, 0, "Z"); !errors.Is(err, domain.ErrInvalidOption) {
		t.Fatalf("expected ErrInvalidOption, got %v", err)
	}
	if err := f.engine.SelectOption(ctx, attempt, 9, "A"); !errors.Is(err, domain.ErrQuestionNotFound) {
		t.Fatalf("expected ErrQuestionNotFound, got %v", err)
	}
	if attempt.Responses[0] != "C" {
		t.Fatalf("rejected selections must not change responses")
	}

	_, _ = f.engine.Finalize(ctx, attempt)
	if err := f.engine.SelectOption(ctx, attempt, 1, "A"); !errors.Is(err, domain.ErrAttemptClosed) {
		t.Fatalf("expected ErrAttemptClosed after submit, got %v", err)
	}
}

func TestNavigationBounds(t *testing.T) {
	ctx := context.Background()
	f := newEngine(staticSource{questions: fiveQuestions()})
	attempt, _ := f.engine.Start(ctx, student, "")

	if f.engine.Retreat(ctx, attempt) {
		t.Fatalf("retreat at first question must not move")
	}
	for i := 0; i < 4; i++ {
		if !f.engine.Advance(ctx, attempt) {
			t.Fatalf("advance %d should move", i)
		}
	}
	if f.engine.Advance(ctx, attempt) || attempt.Current != 4 {
		t.Fatalf("advance past the end must not move, current=%d", attempt.Current)
	}
	if !f.engine.Retreat(ctx, attempt) || attempt.Current != 3 {
		t.Fatalf("expected retreat to 3, got %d", attempt.Current)
	}
}

func TestFinalizeIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newEngine(staticSource{questions: fiveQuestions()})
	attempt, _ := f.engine.Start(ctx, student, "")

	first, err := f.engine.Finalize(ctx, attempt)
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	// A timer expiry racing the submit lands here.
	second, err := f.engine.Expire(ctx, attempt)
	if err != nil {
		t.Fatalf("expire after submit: %v", err)
	}
	if !second.Replayed || second.Result.ID != first.Result.ID {
		t.Fatalf("expected replayed outcome, got %+v", second)
	}
	if f.recorder.calls != 1 {
		t.Fatalf("expected exactly one record call, got %d", f.recorder.calls)
	}
}

func TestFinalizeRetriesOnce(t *testing.T) {
	ctx := context.Background()
	f := newEngine(staticSource{questions: fiveQuestions()})
	f.recorder.failures = 1
	attempt, _ := f.engine.Start(ctx, student, "")

	outcome, err := f.engine.Finalize(ctx, attempt)
	if err != nil || !outcome.Saved {
		t.Fatalf("expected retry to save, got %+v %v", outcome, err)
	}
	if f.recorder.calls != 2 {
		t.Fatalf("expected 2 record calls, got %d", f.recorder.calls)
	}
}

func TestFinalizeUnsavedStillReturnsResult(t *testing.T) {
	ctx := context.Background()
	f := newEngine(staticSource{questions: fiveQuestions()})
	f.recorder.failures = 5
	attempt, _ := f.engine.Start(ctx, student, "")
	_ = f.engine.SelectOption(ctx, attempt, 0, "B")

	outcome, err := f.engine.Finalize(ctx, attempt)
	if !errors.Is(err, domain.ErrPersistence) {
		t.Fatalf("expected ErrPersistence, got %v", err)
	}
	if outcome.Saved || outcome.Result.Score != 1 || outcome.Result.Total != 5 {
		t.Fatalf("expected unsaved 1/5 outcome, got %+v", outcome)
	}
	if f.recorder.calls != 2 {
		t.Fatalf("expected one retry only, got %d calls", f.recorder.calls)
	}
	if attempt.Status != domain.AttemptSubmitted {
		t.Fatalf("attempt must be submitted even when unsaved")
	}

	again, _ := f.engine.Finalize(ctx, attempt)
	if !again.Replayed || again.Saved || f.recorder.calls != 2 {
		t.Fatalf("expected replay without another post, got %+v calls=%d", again, f.recorder.calls)
	}
}

func TestResumeContinuesActiveAttempt(t *testing.T) {
	ctx := context.Background()
	f := newEngine(staticSource{questions: fiveQuestions()})
	attempt, _ := f.engine.Start(ctx, student, "")
	_ = f.engine.SelectOption(ctx, attempt, 0, "A")
	f.engine.Advance(ctx, attempt)

	f.clock.Advance(3 * time.Minute)
	resumed, outcome, err := f.engine.Resume(ctx)
	if err != nil || outcome != nil || resumed == nil {
		t.Fatalf("expected resumable attempt, got %v %v %v", resumed, outcome, err)
	}
	if !resumed.DeadlineAt.Equal(attempt.DeadlineAt) {
		t.Fatalf("deadline must not move on resume")
	}
	if resumed.Current != 1 || resumed.Responses[0] != "A" {
		t.Fatalf("expected progress restored, got %+v", resumed)
	}
	if got := f.engine.Remaining(resumed); got != 7*60 {
		t.Fatalf("expected 420s left, got %d", got)
	}
}

func TestResumePastDeadlineAutoSubmits(t *testing.T) {
	ctx := context.Background()
	f := newEngine(staticSource{questions: fiveQuestions()})
	attempt, _ := f.engine.Start(ctx, student, "")
	_ = f.engine.SelectOption(ctx, attempt, 2, "B")

	f.clock.Advance(11 * time.Minute)
	resumed, outcome, err := f.engine.Resume(ctx)
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if outcome == nil || outcome.Result.Score != 1 || !outcome.Saved {
		t.Fatalf("expected auto-submitted outcome, got %+v", outcome)
	}
	if resumed.Status != domain.AttemptSubmitted || f.recorder.calls != 1 {
		t.Fatalf("expected one submission, status=%s calls=%d", resumed.Status, f.recorder.calls)
	}
	if left, _ := f.store.Load(ctx); left != nil {
		t.Fatalf("expected checkpoint cleared")
	}
}

func TestResumeDiscardsClosedCheckpoint(t *testing.T) {
	ctx := context.Background()
	f := newEngine(staticSource{questions: fiveQuestions()})
	_ = f.store.Save(ctx, &domain.Attempt{ID: "old", Questions: fiveQuestions(), Responses: make([]string, 5), Status: domain.AttemptSubmitted})

	resumed, outcome, err := f.engine.Resume(ctx)
	if resumed != nil || outcome != nil || err != nil {
		t.Fatalf("expected nothing to resume, got %v %v %v", resumed, outcome, err)
	}
	if left, _ := f.store.Load(ctx); left != nil {
		t.Fatalf("expected closed checkpoint cleared")
	}
	if f.recorder.calls != 0 {
		t.Fatalf("closed checkpoint must not be recorded again")
	}
}

func TestExitClearsCheckpoint(t *testing.T) {
	ctx := context.Background()
	f := newEngine(staticSource{questions: fiveQuestions()})
	attempt, _ := f.engine.Start(ctx, student, "")
	if err := f.engine.Exit(ctx, attempt); err != nil {
		t.Fatalf("exit: %v", err)
	}
	if left, _ := f.store.Load(ctx); left != nil {
		t.Fatalf("expected checkpoint cleared on exit")
	}
	if f.recorder.calls != 0 {
		t.Fatalf("exit must not record a result")
	}
}

func TestPercentage(t *testing.T) {
	cases := []struct{ score, total, want int }{
		{0, 0, 0}, {3, 5, 60}, {2, 3, 67}, {1, 3, 33}, {5, 5, 100},
	}
	for _, c := range cases {
		if got := app.Percentage(c.score, c.total); got != c.want {
			t.Fatalf("Percentage(%d, %d) = %d, want %d", c.score, c.total, got, c.want)
		}
	}
}
