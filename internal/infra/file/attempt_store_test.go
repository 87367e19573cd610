package file

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"timed-quiz-service/internal/domain"
)

func TestAttemptStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewAttemptStore(filepath.Join(t.TempDir(), "state", "attempt.json"))

	deadline := time.UnixMilli(time.Now().Add(5 * time.Minute).UnixMilli())
	attempt := &domain.Attempt{
		ID:          "a1",
		TestID:      "t1",
		StudentID:   "101",
		StudentName: "Asha",
		Questions: []domain.Question{
			{ID: "q1", Text: "One?", Options: domain.Options{{Label: "A", Text: "x"}, {Label: "B", Text: "y"}}, Answer: "B"},
			{ID: "q2", Text: "Two?", Options: domain.Options{{Label: "A", Text: "x"}, {Label: "B", Text: "y"}}, Answer: "A"},
		},
		Responses:  []string{"B", ""},
		Current:    0,
		DeadlineAt: deadline,
		Status:     domain.AttemptActive,
	}
	if err := store.Save(ctx, attempt); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := store.Load(ctx)
	if err != nil || loaded == nil {
		t.Fatalf("load: %v %v", loaded, err)
	}
	if !loaded.DeadlineAt.Equal(deadline) {
		t.Fatalf("expected deadline %v, got %v", deadline, loaded.DeadlineAt)
	}
	if loaded.Responses[0] != "B" || loaded.Responses[1] != "" {
		t.Fatalf("unexpected responses %+v", loaded.Responses)
	}
	if loaded.Status != domain.AttemptActive || loaded.StudentName != "Asha" {
		t.Fatalf("unexpected attempt %+v", loaded)
	}

	if err := store.Clear(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if loaded, _ := store.Load(ctx); loaded != nil {
		t.Fatalf("expected nothing after clear")
	}
	if err := store.Clear(ctx); err != nil {
		t.Fatalf("clear twice: %v", err)
	}
}

func TestAttemptStoreWritesClientStateShape(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "attempt.json")
	store := NewAttemptStore(path)

	attempt := &domain.Attempt{
		ID:          "a1",
		StudentName: "Asha",
		Questions:   []domain.Question{{ID: "q1", Options: domain.Options{{Label: "A"}, {Label: "B"}}, Answer: "A"}},
		Responses:   []string{"A"},
		DeadlineAt:  time.UnixMilli(1700000000000),
		Status:      domain.AttemptActive,
	}
	if err := store.Save(ctx, attempt); err != nil {
		t.Fatalf("save: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("decode: %v", err)
	}
	for _, key := range []string{"quiz", "currentQuestion", "score", "responses", "playerName", "quizEndTime", "currentSelection", "inProgress"} {
		if _, ok := raw[key]; !ok {
			t.Fatalf("expected key %q in checkpoint", key)
		}
	}
	if raw["quizEndTime"].(float64) != 1700000000000 || raw["score"].(float64) != 1 || raw["inProgress"] != true {
		t.Fatalf("unexpected checkpoint values %v", raw)
	}
}

func TestAttemptStoreIgnoresCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "attempt.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	loaded, err := NewAttemptStore(path).Load(context.Background())
	if err != nil || loaded != nil {
		t.Fatalf("expected corrupt checkpoint to load as nil, got %v %v", loaded, err)
	}
}
