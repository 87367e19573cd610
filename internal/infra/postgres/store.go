package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"timed-quiz-service/internal/domain"
)

const settingsKey = "quiz_duration"

// Store implements app.Store on Postgres.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) ListTests(ctx context.Context) ([]domain.Test, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, name, duration_minutes, is_active, created_at FROM tests ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list tests: %w", err)
	}
	defer rows.Close()

	tests := []domain.Test{}
	for rows.Next() {
		var t domain.Test
		if err := rows.Scan(&t.ID, &t.Name, &t.DurationMinutes, &t.IsActive, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan test: %w", err)
		}
		tests = append(tests, t)
	}
	return tests, rows.Err()
}

func (s *Store) GetTest(ctx context.Context, id string) (domain.Test, error) {
	var t domain.Test
	err := s.pool.QueryRow(ctx, `SELECT id, name, duration_minutes, is_active, created_at FROM tests WHERE id=$1`, id).
		Scan(&t.ID, &t.Name, &t.DurationMinutes, &t.IsActive, &t.CreatedAt)
	if err != nil {
		return domain.Test{}, notFound("get test", err)
	}
	return t, nil
}

func (s *Store) CreateTest(ctx context.Context, t domain.Test) (domain.Test, error) {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO tests (id, name, duration_minutes, is_active, created_at) VALUES ($1, $2, $3, $4, $5)`,
		t.ID, t.Name, t.DurationMinutes, t.IsActive, t.CreatedAt)
	if err != nil {
		return domain.Test{}, fmt.Errorf("insert test: %w", err)
	}
	return t, nil
}

func (s *Store) UpdateTest(ctx context.Context, t domain.Test) (domain.Test, error) {
	err := s.pool.QueryRow(ctx,
		`UPDATE tests SET name=$2, duration_minutes=$3, is_active=$4 WHERE id=$1 RETURNING created_at`,
		t.ID, t.Name, t.DurationMinutes, t.IsActive).Scan(&t.CreatedAt)
	if err != nil {
		return domain.Test{}, notFound("update test", err)
	}
	return t, nil
}

func (s *Store) DeleteTest(ctx context.Context, id string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM questions WHERE test_id=$1`, id); err != nil {
		return fmt.Errorf("delete test questions: %w", err)
	}
	tag, err := tx.Exec(ctx, `DELETE FROM tests WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete test: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return tx.Commit(ctx)
}

func (s *Store) ListQuestions(ctx context.Context, testID string) ([]domain.Question, error) {
	query := `SELECT id, test_id, question, options, answer, created_at FROM questions`
	var args []interface{}
	if testID != "" {
		query += ` WHERE test_id=$1`
		args = append(args, testID)
	}
	query += ` ORDER BY created_at, seq`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	defer rows.Close()

	questions := []domain.Question{}
	for rows.Next() {
		var (
			q       domain.Question
			testID  *string
			options []byte
		)
		if err := rows.Scan(&q.ID, &testID, &q.Text, &options, &q.Answer, &q.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		if testID != nil {
			q.TestID = *testID
		}
		if err := json.Unmarshal(options, &q.Options); err != nil {
			return nil, fmt.Errorf("unmarshal options of %s: %w", q.ID, err)
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

func (s *Store) CreateQuestion(ctx context.Context, q domain.Question) (domain.Question, error) {
	if err := insertQuestion(ctx, s.pool, q); err != nil {
		return domain.Question{}, err
	}
	return q, nil
}

func (s *Store) UpdateQuestion(ctx context.Context, q domain.Question) (domain.Question, error) {
	options, err := encodeOptions(q.Options)
	if err != nil {
		return domain.Question{}, err
	}
	err = s.pool.QueryRow(ctx,
		`UPDATE questions SET test_id=$2, question=$3, options=$4, answer=$5 WHERE id=$1 RETURNING created_at`,
		q.ID, nullable(q.TestID), q.Text, options, q.Answer).Scan(&q.CreatedAt)
	if err != nil {
		return domain.Question{}, notFound("update question", err)
	}
	return q, nil
}

func (s *Store) DeleteQuestion(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM questions WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete question: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ReplaceQuestions swaps the question bank inside one transaction.
func (s *Store) ReplaceQuestions(ctx context.Context, qs []domain.Question) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM questions`); err != nil {
		return fmt.Errorf("delete questions: %w", err)
	}
	for _, q := range qs {
		if err := insertQuestion(ctx, tx, q); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (s *Store) ListStudents(ctx context.Context) ([]domain.Student, error) {
	rows, err := s.pool.Query(ctx, `SELECT roll_number, name, password_hash, created_at FROM students ORDER BY roll_number`)
	if err != nil {
		return nil, fmt.Errorf("list students: %w", err)
	}
	defer rows.Close()

	students := []domain.Student{}
	for rows.Next() {
		var st domain.Student
		if err := rows.Scan(&st.RollNo, &st.Name, &st.PasswordHash, &st.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan student: %w", err)
		}
		students = append(students, st)
	}
	return students, rows.Err()
}

func (s *Store) GetStudent(ctx context.Context, rollNo string) (domain.Student, error) {
	var st domain.Student
	err := s.pool.QueryRow(ctx, `SELECT roll_number, name, password_hash, created_at FROM students WHERE roll_number=$1`, rollNo).
		Scan(&st.RollNo, &st.Name, &st.PasswordHash, &st.CreatedAt)
	if err != nil {
		return domain.Student{}, notFound("get student", err)
	}
	return st, nil
}

func (s *Store) CreateStudent(ctx context.Context, st domain.Student) (domain.Student, error) {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO students (roll_number, name, password_hash, created_at) VALUES ($1, $2, $3, $4)`,
		st.RollNo, st.Name, st.PasswordHash, st.CreatedAt)
	if err != nil {
		return domain.Student{}, fmt.Errorf("insert student: %w", err)
	}
	return st, nil
}

func (s *Store) DeleteStudent(ctx context.Context, rollNo string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM students WHERE roll_number=$1`, rollNo)
	if err != nil {
		return fmt.Errorf("delete student: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *Store) GetSettings(ctx context.Context) (domain.Settings, error) {
	var raw []byte
	if err := s.pool.QueryRow(ctx, `SELECT value FROM settings WHERE key=$1`, settingsKey).Scan(&raw); err != nil {
		return domain.Settings{}, notFound("get settings", err)
	}
	var settings domain.Settings
	if err := json.Unmarshal(raw, &settings); err != nil {
		return domain.Settings{}, fmt.Errorf("unmarshal settings: %w", err)
	}
	return settings, nil
}

func (s *Store) SaveSettings(ctx context.Context, settings domain.Settings) error {
	raw, err := json.Marshal(settings)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO settings (key, value) VALUES ($1, $2) ON CONFLICT (key) DO UPDATE SET value=EXCLUDED.value`,
		settingsKey, raw)
	if err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	return nil
}

func (s *Store) AppendResult(ctx context.Context, r domain.Result) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO results (id, attempt_id, roll_number, name, test_id, score, total, percentage, date, time, submitted_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		r.ID, r.AttemptID, r.StudentID, r.Name, r.TestID, r.Score, r.Total, r.Percentage, r.Date, r.Time, r.SubmittedAt)
	if err != nil {
		return fmt.Errorf("insert result: %w", err)
	}
	return nil
}

// ListResults returns matches newest first.
func (s *Store) ListResults(ctx context.Context, filter domain.ResultFilter) ([]domain.Result, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, attempt_id, roll_number, name, test_id, score, total, percentage, date, time, submitted_at
		   FROM results
		  WHERE ($1::text = '' OR test_id = $1) AND ($2::text = '' OR roll_number = $2)
		  ORDER BY submitted_at DESC, seq DESC`,
		filter.TestID, filter.StudentID)
	if err != nil {
		return nil, fmt.Errorf("list results: %w", err)
	}
	defer rows.Close()

	results := []domain.Result{}
	for rows.Next() {
		var r domain.Result
		if err := rows.Scan(&r.ID, &r.AttemptID, &r.StudentID, &r.Name, &r.TestID, &r.Score, &r.Total,
			&r.Percentage, &r.Date, &r.Time, &r.SubmittedAt); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

func (s *Store) ClearResults(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM results`); err != nil {
		return fmt.Errorf("clear results: %w", err)
	}
	return nil
}

func (s *Store) DeleteResult(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM results WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete result: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

func insertQuestion(ctx context.Context, db execer, q domain.Question) error {
	options, err := encodeOptions(q.Options)
	if err != nil {
		return err
	}
	_, err = db.Exec(ctx,
		`INSERT INTO questions (id, test_id, question, options, answer, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		q.ID, nullable(q.TestID), q.Text, options, q.Answer, q.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert question: %w", err)
	}
	return nil
}

// encodeOptions stores options as a JSON array; JSONB does not keep object
// key order.
func encodeOptions(opts domain.Options) ([]byte, error) {
	list := []domain.Option(opts)
	if list == nil {
		list = []domain.Option{}
	}
	return json.Marshal(list)
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func notFound(op string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrNotFound
	}
	return fmt.Errorf("%s: %w", op, err)
}
