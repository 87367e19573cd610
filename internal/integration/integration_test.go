package integration

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"

	"timed-quiz-service/internal/app"
	"timed-quiz-service/internal/domain"
	"timed-quiz-service/internal/infra/memory"
	pgstore "timed-quiz-service/internal/infra/postgres"
	pgmigrations "timed-quiz-service/internal/infra/postgres/migrations"
	infraredis "timed-quiz-service/internal/infra/redis"
)

func TestAttemptEndToEnd(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	migrateSchema(t, ctx, pgURL)

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()
	store := pgstore.NewStore(pool)

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	defer redisClient.Close()

	log := logrus.New()
	log.SetOutput(io.Discard)

	test, err := store.CreateTest(ctx, domain.Test{ID: "t-1", Name: "Arithmetic", DurationMinutes: 5, IsActive: true, CreatedAt: time.Now()})
	if err != nil {
		t.Fatalf("create test: %v", err)
	}
	for _, q := range sampleQuestions(test.ID) {
		if _, err := store.CreateQuestion(ctx, q); err != nil {
			t.Fatalf("create question: %v", err)
		}
	}
	if _, err := store.CreateQuestion(ctx, domain.Question{
		ID: "loose", Text: "Unattached?", Options: domain.Options{{Label: "A", Text: "x"}, {Label: "B", Text: "y"}}, Answer: "A", CreatedAt: time.Now(),
	}); err != nil {
		t.Fatalf("create loose question: %v", err)
	}

	cache := infraredis.NewQuestionCache(redisClient, store, 5*time.Minute)
	scoped, err := cache.Questions(ctx, test.ID)
	if err != nil {
		t.Fatalf("questions: %v", err)
	}
	if len(scoped) != 3 {
		t.Fatalf("expected 3 questions for the test, got %d", len(scoped))
	}
	if scoped[0].Options[0].Label != "D" {
		t.Fatalf("expected option order to survive the round trip, got %+v", scoped[0].Options)
	}

	results := app.NewResultService(store, log)
	catalog := app.NewCatalog(store, cache, store, 0, log)
	engine := app.NewQuizEngine(cache, catalog, memory.NewAttemptStore(), results,
		app.WithLogger(log), app.WithRand(rand.New(rand.NewSource(1))))

	attempt, err := engine.Start(ctx, domain.StudentProfile{Name: "Alice", RollNo: "7"}, test.ID)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if d := attempt.DeadlineAt.Sub(attempt.StartedAt); d < 5*time.Minute || d > 5*time.Minute+time.Second {
		t.Fatalf("expected the test's own 5m duration, got %v", d)
	}
	for i, q := range attempt.Questions {
		label := q.Answer
		if q.ID == "q3" {
			label = "A"
		}
		if err := engine.SelectOption(ctx, attempt, i, label); err != nil {
			t.Fatalf("select: %v", err)
		}
	}
	outcome, err := engine.Finalize(ctx, attempt)
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if !outcome.Saved || outcome.Result.Score != 2 || outcome.Result.Percentage != 67 {
		t.Fatalf("unexpected outcome %+v", outcome)
	}
	if again, _ := engine.Finalize(ctx, attempt); !again.Replayed {
		t.Fatalf("expected second finalize to replay")
	}

	listed, stats, err := results.List(ctx, domain.ResultFilter{TestID: test.ID})
	if err != nil {
		t.Fatalf("list results: %v", err)
	}
	if len(listed) != 1 || stats.Count != 1 || stats.Max != 2 {
		t.Fatalf("expected one stored result, got %+v %+v", listed, stats)
	}

	sessions := infraredis.NewSessionRegistry(redisClient, time.Hour)
	admin := app.NewAdminService(sessions, store, cache, results, nil, app.AdminCredentials{}, log)
	if err := admin.DeleteTest(ctx, "bogus", test.ID); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	token, err := sessions.Issue(ctx)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if err := admin.DeleteTest(ctx, token, test.ID); err != nil {
		t.Fatalf("delete test: %v", err)
	}
	remaining, err := cache.Questions(ctx, "")
	if err != nil {
		t.Fatalf("questions after delete: %v", err)
	}
	if len(remaining) != 1 || remaining[0].ID != "loose" {
		t.Fatalf("expected only the loose question after cascade, got %+v", remaining)
	}
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "quiz", "POSTGRES_PASSWORD": "quizpass", "POSTGRES_DB": "quizdb"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForLog("database system is ready to accept connections").WithOccurrence(2).WithStartupTimeout(60 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start postgres: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	dsn := fmt.Sprintf("postgres://quiz:quizpass@%s:%s/quizdb?sslmode=disable", host, port.Port())
	return dsn, func() {
		_ = container.Terminate(ctx)
	}
}

func startRedis(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start redis: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("redis host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379/tcp")
	if err != nil {
		t.Fatalf("redis port: %v", err)
	}
	url := fmt.Sprintf("redis://%s:%s", host, port.Port())
	return url, func() {
		_ = container.Terminate(ctx)
	}
}

func migrateSchema(t *testing.T, ctx context.Context, dsn string) {
	t.Helper()
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())
	defer db.Close()

	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		t.Fatalf("migrator init: %v", err)
	}
	if _, err := migrator.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
}

func sampleQuestions(testID string) []domain.Question {
	now := time.Now()
	opts := domain.Options{{Label: "D", Text: "3"}, {Label: "A", Text: "4"}, {Label: "B", Text: "5"}}
	return []domain.Question{
		{ID: "q1", TestID: testID, Text: "2 + 2?", Options: opts, Answer: "A", CreatedAt: now},
		{ID: "q2", TestID: testID, Text: "1 + 2?", Options: opts, Answer: "D", CreatedAt: now.Add(time.Millisecond)},
		{ID: "q3", TestID: testID, Text: "2 + 3?", Options: opts, Answer: "B", CreatedAt: now.Add(2 * time.Millisecond)},
	}
}

func redisClientFromURL(url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	}), nil
}

func requireDocker(t *testing.T) {
	t.Helper()
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}
