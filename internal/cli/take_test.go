package cli

import (
	"bytes"
	"context"
	"io"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"timed-quiz-service/internal/app"
	"timed-quiz-service/internal/domain"
	"timed-quiz-service/internal/infra/file"
	"timed-quiz-service/internal/infra/memory"
	transport "timed-quiz-service/internal/transport/http"
)

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func newQuizServer(t *testing.T) (*httptest.Server, *memory.Store) {
	t.Helper()
	ctx := context.Background()
	log := quietLogger()
	store := memory.NewStore()

	hash, err := bcrypt.GenerateFromPassword([]byte("pw"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if _, err := store.CreateStudent(ctx, domain.Student{RollNo: "42", Name: "Ada", PasswordHash: string(hash)}); err != nil {
		t.Fatalf("create student: %v", err)
	}
	for i, text := range []string{"One?", "Two?", "Three?"} {
		q := domain.Question{
			ID:      string(rune('a' + i)),
			Text:    text,
			Options: domain.Options{{Label: "A", Text: "yes"}, {Label: "B", Text: "no"}},
			Answer:  "A",
		}
		if _, err := store.CreateQuestion(ctx, q); err != nil {
			t.Fatalf("create question: %v", err)
		}
	}

	cache := memory.NewQuestionCache(store, time.Minute)
	results := app.NewResultService(store, log)
	admin := app.NewAdminService(memory.NewSessionRegistry(time.Hour), store, cache, results, nil, app.AdminCredentials{}, log)
	api := transport.NewAPI(app.NewCatalog(store, cache, store, 0, log), app.NewStudentService(store, log), results, admin, log)
	server := httptest.NewServer(api.Router())
	t.Cleanup(server.Close)
	return server, store
}

func TestTakeFullAttempt(t *testing.T) {
	server, store := newQuizServer(t)
	statePath := filepath.Join(t.TempDir(), "attempt.json")

	in := strings.NewReader("42\npw\nA\nn\nA\nn\nB\ns\n")
	var out bytes.Buffer
	opts := takeOptions{server: server.URL, statePath: statePath, tick: 50 * time.Millisecond}
	if err := runTake(context.Background(), opts, in, &out, quietLogger()); err != nil {
		t.Fatalf("take: %v\n%s", err, out.String())
	}

	if !strings.Contains(out.String(), "Score: 2/3 (67%)") {
		t.Fatalf("expected score line, got:\n%s", out.String())
	}
	results, _ := store.ListResults(context.Background(), domain.ResultFilter{StudentID: "42"})
	if len(results) != 1 || results[0].Score != 2 || results[0].Total != 3 || results[0].Name != "Ada" {
		t.Fatalf("expected one recorded result, got %+v", results)
	}
	if _, err := os.Stat(statePath); !os.IsNotExist(err) {
		t.Fatalf("expected checkpoint cleared, stat err %v", err)
	}
}

func TestTakeResumeAfterDeadlineSubmits(t *testing.T) {
	server, store := newQuizServer(t)
	statePath := filepath.Join(t.TempDir(), "attempt.json")

	stale := &domain.Attempt{
		ID:          "stale",
		StudentID:   "42",
		StudentName: "Ada",
		Questions:   []domain.Question{{ID: "a", Text: "One?", Options: domain.Options{{Label: "A"}, {Label: "B"}}, Answer: "A"}},
		Responses:   []string{"A"},
		DeadlineAt:  time.Now().Add(-time.Minute),
		Status:      domain.AttemptActive,
	}
	if err := file.NewAttemptStore(statePath).Save(context.Background(), stale); err != nil {
		t.Fatalf("seed checkpoint: %v", err)
	}

	var out bytes.Buffer
	opts := takeOptions{server: server.URL, statePath: statePath}
	if err := runTake(context.Background(), opts, strings.NewReader(""), &out, quietLogger()); err != nil {
		t.Fatalf("take: %v", err)
	}
	if !strings.Contains(out.String(), "Score: 1/1 (100%)") {
		t.Fatalf("expected auto-submitted score, got:\n%s", out.String())
	}
	results, _ := store.ListResults(context.Background(), domain.ResultFilter{})
	if len(results) != 1 || results[0].AttemptID != "stale" {
		t.Fatalf("expected the stale attempt recorded once, got %+v", results)
	}
}

func TestTakeExpiresWhileWaitingForInput(t *testing.T) {
	server, store := newQuizServer(t)
	statePath := filepath.Join(t.TempDir(), "attempt.json")

	running := &domain.Attempt{
		ID:          "running",
		StudentID:   "42",
		StudentName: "Ada",
		Questions:   []domain.Question{{ID: "a", Text: "One?", Options: domain.Options{{Label: "A"}, {Label: "B"}}, Answer: "A"}},
		Responses:   []string{""},
		DeadlineAt:  time.Now().Add(1500 * time.Millisecond),
		Status:      domain.AttemptActive,
	}
	if err := file.NewAttemptStore(statePath).Save(context.Background(), running); err != nil {
		t.Fatalf("seed checkpoint: %v", err)
	}

	pr, pw := io.Pipe()
	defer pw.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	var out bytes.Buffer
	opts := takeOptions{server: server.URL, statePath: statePath, tick: 50 * time.Millisecond}
	if err := runTake(ctx, opts, pr, &out, quietLogger()); err != nil {
		t.Fatalf("take: %v", err)
	}
	if !strings.Contains(out.String(), "Time is up.") || !strings.Contains(out.String(), "Score: 0/1 (0%)") {
		t.Fatalf("expected expiry output, got:\n%s", out.String())
	}
	results, _ := store.ListResults(context.Background(), domain.ResultFilter{})
	if len(results) != 1 {
		t.Fatalf("expected exactly one result, got %d", len(results))
	}
}
