package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/diagnostic-gateway/internal/backend"
	"github.com/stemsi/diagnostic-gateway/internal/config"
	"github.com/stemsi/diagnostic-gateway/internal/database"
	"github.com/stemsi/diagnostic-gateway/internal/handler"
	"github.com/stemsi/diagnostic-gateway/internal/logger"
	"github.com/stemsi/diagnostic-gateway/internal/notify"
	"github.com/stemsi/diagnostic-gateway/internal/repository"
	"github.com/stemsi/diagnostic-gateway/internal/router"
	"github.com/stemsi/diagnostic-gateway/internal/service"
	"github.com/stemsi/diagnostic-gateway/internal/survey"
	"github.com/stemsi/diagnostic-gateway/internal/validator"
	"github.com/stemsi/diagnostic-gateway/internal/worker"
)

const sweepInterval = time.Minute

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	log.Info().
		Str("port", cfg.ServerPort).
		Str("mode", cfg.GinMode).
		Str("log_level", cfg.LogLevel).
		Str("job_registry", cfg.JobRegistryDriver).
		Str("edits_store", cfg.EditsStoreDriver).
		Msg("Starting Diagnostic Gateway")
	for _, w := range cfg.Warnings() {
		log.Warn().Msg(w)
	}

	// ─── Initialize Validator ──────────────────────────────────────────
	validator.Setup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ─── Connect to Redis ──────────────────────────────────────────────
	// Redis backs the default stores and the notification pipeline. Only
	// an all-memory setup may run without it.
	var rdb *redis.Client
	if needsRedis(cfg) {
		var err error
		rdb, err = database.NewRedisClient(ctx, cfg, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to Redis")
		}
		defer rdb.Close()
	}

	// ─── Connect to PostgreSQL ─────────────────────────────────────────
	var pool *pgxpool.Pool
	if cfg.JobRegistryDriver == config.DriverPostgres {
		var err error
		pool, err = database.NewPostgresPool(ctx, cfg, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
		}
		defer pool.Close()
	}

	// ─── Load Survey Schema ────────────────────────────────────────────
	schema, err := survey.Load(cfg.SurveySchemaPath, log)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.SurveySchemaPath).Msg("Failed to load survey schema")
	}

	// ─── Initialize Repositories ───────────────────────────────────────
	jobs := newJobRegistry(cfg, rdb, pool)
	edits := newEditsStore(cfg, rdb)

	var summaries repository.SummaryCache = repository.NewMemorySummaryCache(cfg.SummaryCacheTTL)
	var notifier notify.Notifier = notify.NewRecorder()
	var feed handler.NotificationFeed
	var publisher *notify.RedisPublisher
	if rdb != nil {
		summaries = repository.NewRedisSummaryCache(rdb, cfg.SummaryCacheTTL)
		notifier = notify.NewRedisOutbox(rdb)
		publisher = notify.NewRedisPublisher(rdb)
		feed = publisher
	}

	// ─── Initialize Services ──────────────────────────────────────────
	client := backend.NewClient(cfg.BackendBaseURL, cfg.BackendServiceToken, cfg.BackendTimeout, log)
	authService := service.NewAuthService(cfg)
	engagementService := service.NewEngagementService(client, summaries, jobs, log)

	poller := worker.NewCompletionPoller(client, jobs, notifier, engagementService, cfg.PollInterval, log)
	surveyService := service.NewSurveyService(schema, client, edits, jobs, poller, log)

	// ─── Initialize Handlers ──────────────────────────────────────────
	handlers := &router.Handlers{
		Survey:       handler.NewSurveyHandler(surveyService),
		Engagement:   handler.NewEngagementHandler(engagementService, log),
		Notification: handler.NewNotificationHandler(feed, log, cfg.AllowedOrigins),
		System:       handler.NewSystemHandler(rdb, surveyService.ActiveSessions, poller.Active, log),
	}

	// ─── Start Background Workers ─────────────────────────────────────
	workerCtx, workerCancel := context.WithCancel(context.Background())
	var workers sync.WaitGroup

	startWorker := func(start func(context.Context)) {
		workers.Add(1)
		go func() {
			defer workers.Done()
			start(workerCtx)
		}()
	}

	startWorker(poller.Start)
	startWorker(worker.NewSessionSweeper(surveyService, sweepInterval, cfg.SessionIdleTTL, log).Start)
	if publisher != nil {
		startWorker(worker.NewNotificationDispatcher(rdb, publisher, log).Start)
	}

	// ─── Setup Router ──────────────────────────────────────────────────
	r := router.SetupRouter(authService, handlers, cfg, log)

	// ─── Create HTTP Server ────────────────────────────────────────────
	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// ─── Start Server in Goroutine ─────────────────────────────────────
	go func() {
		log.Info().Str("addr", ":"+cfg.ServerPort).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	// ─── Graceful Shutdown ─────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	log.Info().Str("signal", sig.String()).Msg("Shutting down gracefully...")

	// 1. Stop accepting new HTTP requests (5s timeout).
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	// 2. Stop background workers and wait for the outbox to drain.
	workerCancel()
	workers.Wait()

	log.Info().Msg("Shutdown complete")
}

func needsRedis(cfg *config.Config) bool {
	registryOnRedis := cfg.JobRegistryDriver != config.DriverPostgres && cfg.JobRegistryDriver != config.DriverMemory
	return registryOnRedis || cfg.EditsStoreDriver != config.DriverMemory
}

func newJobRegistry(cfg *config.Config, rdb *redis.Client, pool *pgxpool.Pool) repository.JobRegistry {
	switch cfg.JobRegistryDriver {
	case config.DriverPostgres:
		return repository.NewPostgresJobRegistry(pool, cfg.JobTTL)
	case config.DriverMemory:
		return repository.NewMemoryJobRegistry(cfg.JobTTL)
	default:
		return repository.NewRedisJobRegistry(rdb, cfg.JobTTL)
	}
}

func newEditsStore(cfg *config.Config, rdb *redis.Client) repository.EditsStore {
	if cfg.EditsStoreDriver == config.DriverMemory {
		return repository.NewMemoryEditsStore()
	}
	return repository.NewRedisEditsStore(rdb)
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
