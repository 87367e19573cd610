package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"timed-quiz-service/internal/app"
	"timed-quiz-service/internal/config"
	"timed-quiz-service/internal/infra/generator"
	"timed-quiz-service/internal/infra/memory"
	pgstore "timed-quiz-service/internal/infra/postgres"
	rediscache "timed-quiz-service/internal/infra/redis"
	transport "timed-quiz-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log := newLogger(cfg)

	if cfg.Postgres.URL != "" {
		if err := runMigrations(ctx, cfg, log); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
	}

	var store app.Store = memory.NewStore()
	if cfg.Postgres.URL != "" {
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
		store = pgstore.NewStore(pool)
		log.Info("using postgres store")
	} else {
		log.Warn("no postgres url configured, data is kept in memory only")
	}

	cacheTTL := config.TTLDuration(cfg.Quiz.CacheTTL, config.TTLDuration(cfg.Redis.TTL, 10*time.Minute))
	var cache app.QuestionCache
	if redisClient != nil {
		cache = rediscache.NewQuestionCache(redisClient, store, cacheTTL)
	} else {
		cache = memory.NewQuestionCache(store, cacheTTL)
	}

	sessionTTL := config.TTLDuration(cfg.Session.TTL, memory.DefaultSessionTTL)
	var sessions app.SessionRegistry
	switch {
	case cfg.Session.Backend == "redis" && redisClient != nil:
		sessions = rediscache.NewSessionRegistry(redisClient, sessionTTL)
	case cfg.Session.Backend == "redis":
		return errors.New("session backend redis requires redis.addr")
	default:
		sessions = memory.NewSessionRegistry(sessionTTL)
	}

	var gen app.Generator
	if cfg.Generator.Token != "" {
		gen = generator.NewClient(cfg.Generator.Endpoint, cfg.Generator.Model, cfg.Generator.Token)
	}
	if cfg.Admin.Username == "" || cfg.Admin.PasswordHash == "" {
		log.Warn("admin credentials not configured, admin login is disabled")
	}

	defaultDuration := config.TTLDuration(cfg.Quiz.DefaultDuration, app.DefaultQuizDuration)
	results := app.NewResultService(store, log)
	admin := app.NewAdminService(sessions, store, cache, results, gen, app.AdminCredentials{
		Username:     cfg.Admin.Username,
		PasswordHash: cfg.Admin.PasswordHash,
	}, log)
	api := transport.NewAPI(
		app.NewCatalog(store, cache, store, defaultDuration, log),
		app.NewStudentService(store, log),
		results,
		admin,
		log,
	)

	server := &http.Server{
		Addr:        ":" + finalPort,
		Handler:     api.Router(),
		ReadTimeout: 15 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("port", finalPort).Info("starting quiz service")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Info("shutting down server")
	case <-ctx.Done():
		log.Info("context canceled, shutting down server")
	case err := <-errCh:
		log.WithError(err).Error("server failed")
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
