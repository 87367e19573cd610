package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"timed-quiz-service/internal/domain"
)

// Store is the in-process persistence fallback used when no Postgres URL is
// configured. Writers are last-write-wins.
type Store struct {
	mu        sync.RWMutex
	tests     []domain.Test
	questions []domain.Question
	students  map[string]domain.Student
	settings  *domain.Settings
	results   []domain.Result
}

func NewStore() *Store {
	return &Store{students: make(map[string]domain.Student)}
}

func (s *Store) ListTests(_ context.Context) ([]domain.Test, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := append([]domain.Test(nil), s.tests...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) GetTest(_ context.Context, id string) (domain.Test, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, t := range s.tests {
		if t.ID == id {
			return t, nil
		}
	}
	return domain.Test{}, domain.ErrNotFound
}

func (s *Store) CreateTest(_ context.Context, test domain.Test) (domain.Test, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tests = append(s.tests, test)
	return test, nil
}

func (s *Store) UpdateTest(_ context.Context, test domain.Test) (domain.Test, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, t := range s.tests {
		if t.ID == test.ID {
			test.CreatedAt = t.CreatedAt
			s.tests[i] = test
			return test, nil
		}
	}
	return domain.Test{}, domain.ErrNotFound
}

func (s *Store) DeleteTest(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := -1
	for i, t := range s.tests {
		if t.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return domain.ErrNotFound
	}
	s.tests = append(s.tests[:idx], s.tests[idx+1:]...)
	kept := s.questions[:0]
	for _, q := range s.questions {
		if q.TestID != id {
			kept = append(kept, q)
		}
	}
	s.questions = kept
	return nil
}

func (s *Store) ListQuestions(_ context.Context, testID string) ([]domain.Question, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Question, 0, len(s.questions))
	for _, q := range s.questions {
		if testID == "" || q.TestID == testID {
			out = append(out, q)
		}
	}
	return out, nil
}

func (s *Store) CreateQuestion(_ context.Context, q domain.Question) (domain.Question, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.questions = append(s.questions, q)
	return q, nil
}

func (s *Store) UpdateQuestion(_ context.Context, q domain.Question) (domain.Question, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, existing := range s.questions {
		if existing.ID == q.ID {
			q.CreatedAt = existing.CreatedAt
			s.questions[i] = q
			return q, nil
		}
	}
	return domain.Question{}, domain.ErrNotFound
}

func (s *Store) DeleteQuestion(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, q := range s.questions {
		if q.ID == id {
			s.questions = append(s.questions[:i], s.questions[i+1:]...)
			return nil
		}
	}
	return domain.ErrNotFound
}

func (s *Store) ReplaceQuestions(_ context.Context, qs []domain.Question) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.questions = append([]domain.Question(nil), qs...)
	return nil
}

func (s *Store) ListStudents(_ context.Context) ([]domain.Student, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Student, 0, len(s.students))
	for _, st := range s.students {
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RollNo < out[j].RollNo })
	return out, nil
}

func (s *Store) GetStudent(_ context.Context, rollNo string) (domain.Student, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.students[rollNo]
	if !ok {
		return domain.Student{}, domain.ErrNotFound
	}
	return st, nil
}

func (s *Store) CreateStudent(_ context.Context, st domain.Student) (domain.Student, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.students[st.RollNo]; exists {
		return domain.Student{}, fmt.Errorf("student %s already exists", st.RollNo)
	}
	s.students[st.RollNo] = st
	return st, nil
}

func (s *Store) DeleteStudent(_ context.Context, rollNo string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.students[rollNo]; !ok {
		return domain.ErrNotFound
	}
	delete(s.students, rollNo)
	return nil
}

func (s *Store) GetSettings(_ context.Context) (domain.Settings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.settings == nil {
		return domain.Settings{}, domain.ErrNotFound
	}
	return *s.settings, nil
}

func (s *Store) SaveSettings(_ context.Context, settings domain.Settings) error {
	s.mu.Lock()
	s.settings = &settings
	s.mu.Unlock()
	return nil
}

func (s *Store) AppendResult(_ context.Context, r domain.Result) error {
	s.mu.Lock()
	s.results = append(s.results, r)
	s.mu.Unlock()
	return nil
}

// ListResults returns matches newest first.
func (s *Store) ListResults(_ context.Context, filter domain.ResultFilter) ([]domain.Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Result, 0, len(s.results))
	for i := len(s.results) - 1; i >= 0; i-- {
		if filter.Matches(s.results[i]) {
			out = append(out, s.results[i])
		}
	}
	return out, nil
}

func (s *Store) ClearResults(_ context.Context) error {
	s.mu.Lock()
	s.results = nil
	s.mu.Unlock()
	return nil
}

func (s *Store) DeleteResult(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, r := range s.results {
		if r.ID == id {
			s.results = append(s.results[:i], s.results[i+1:]...)
			return nil
		}
	}
	return domain.ErrNotFound
}
