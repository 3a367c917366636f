// Package app wires configuration into the running service graph shared by
// the HTTP server and the worker.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ranikadev/baas-bot/internal/config"
	"github.com/ranikadev/baas-bot/internal/db"
	"github.com/ranikadev/baas-bot/internal/metrics"
	"github.com/ranikadev/baas-bot/internal/middleware"
	"github.com/ranikadev/baas-bot/internal/pubsub"
	"github.com/ranikadev/baas-bot/internal/repository"
	"github.com/ranikadev/baas-bot/internal/scheduler"
	"github.com/ranikadev/baas-bot/internal/service"
	"github.com/ranikadev/baas-bot/internal/storage"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
)

const backgroundShutdownTimeout = 30 * time.Second

// App holds every long-lived component. Close releases them in reverse
// order of construction.
type App struct {
	Pool      *pgxpool.Pool
	Registry  *prometheus.Registry
	Metrics   *metrics.Metrics
	Users     service.UserService
	Posting   service.PostingService
	Billing   service.BillingService
	Scheduler *scheduler.Scheduler
	Limiter   middleware.RateLimiter

	closers []func() error
	logger  zerolog.Logger
}

// Connect opens the database pool and, when AUTO_MIGRATE is set, applies
// migrations.
func Connect(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*pgxpool.Pool, error) {
	pool, err := db.Connect(ctx, db.PrepareDSN(cfg.DBConnectionString, cfg.Environment), logger)
	if err != nil {
		return nil, err
	}
	if cfg.AutoMigrate {
		if err := db.Migrate(ctx, pool, logger); err != nil {
			pool.Close()
			return nil, err
		}
	}
	return pool, nil
}

// Build constructs the service graph on top of an open pool. withLimiter
// controls whether the manual trigger rate limiter is created; the worker
// has no HTTP surface and skips it.
func Build(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool, withLimiter bool, logger zerolog.Logger) (*App, error) {
	a := &App{Pool: pool, logger: logger}
	a.closers = append(a.closers, func() error { pool.Close(); return nil })

	a.Registry = prometheus.NewRegistry()
	a.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.Metrics = metrics.New(a.Registry)

	userRepo := repository.NewUserRepo(pool)
	postRepo := repository.NewPostRepo(pool)
	ledger := service.NewLedger(postRepo, cfg.Location())

	credentials, err := a.credentialStore(ctx, cfg, userRepo)
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	var publisher service.Publisher
	if cfg.DryRun {
		logger.Warn().Msg("DRY_RUN enabled, nothing will be posted")
		publisher = service.NewDryRunPublisher(logger)
	} else {
		publisher = service.NewTwitterPublisher(credentials, cfg.TwitterBaseURL, cfg.PublishTimeout(), logger)
	}

	content := service.NewPerplexityClient(cfg.PerplexityBaseURL, cfg.PerplexityAPIKey, cfg.PerplexityModel, cfg.ContentTimeout(), logger)

	opts := service.PostingOptions{
		FreeDailyLimit: cfg.FreeDailyPostLimit,
		Events:         pubsub.NoopPublisher{},
		Metrics:        a.Metrics,
	}
	if cfg.PubSubEnabled() {
		events, err := pubsub.NewPublisher(ctx, cfg)
		if err != nil {
			_ = a.Close()
			return nil, err
		}
		a.closers = append(a.closers, events.Close)
		opts.Events = events
		opts.EventsTopic = cfg.PubSubPostsTopic
		logger.Info().Str("topic", cfg.PubSubPostsTopic).Msg("Post events enabled")
	}
	if cfg.ArchiveEnabled() {
		s3Client, err := storage.NewS3Client(ctx, cfg)
		if err != nil {
			_ = a.Close()
			return nil, err
		}
		opts.Archive = storage.NewS3Archive(s3Client, cfg.S3Bucket, cfg.Location())
		logger.Info().Str("bucket", cfg.S3Bucket).Msg("Generation archive enabled")
	}

	// the advisory lock keeps the API process and the worker off the same user
	locker := service.ChainLockers(service.NewKeyedLocker(), repository.NewAdvisoryLocker(pool, logger))
	a.Posting = service.NewPostingService(userRepo, ledger, content, publisher, locker, opts, logger)

	background := service.NewBackground()
	a.closers = append(a.closers, func() error {
		ctx, cancel := context.WithTimeout(context.Background(), backgroundShutdownTimeout)
		defer cancel()
		return background.Close(ctx)
	})
	a.Users = service.NewUserService(userRepo, credentials, a.Posting, ledger, background, logger)
	if cfg.BillingEnabled() {
		a.Billing = service.NewBillingService(cfg, userRepo, logger)
	}

	a.Scheduler, err = scheduler.New(userRepo, a.Posting, cfg.SchedulerCron, a.Metrics, logger)
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	if withLimiter {
		a.Limiter = rateLimiter(cfg, logger)
		a.closers = append(a.closers, a.Limiter.Close)
	}
	return a, nil
}

func (a *App) credentialStore(ctx context.Context, cfg *config.Config, users repository.UserRepository) (service.CredentialStore, error) {
	switch cfg.CredentialsBackend {
	case "secretmanager":
		store, closeFn, err := service.NewSecretManagerCredentialStore(ctx, cfg.GCPProjectID, cfg.GCPCredentialsFile)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, closeFn)
		a.logger.Info().Msg("Using Secret Manager credentials backend")
		return store, nil
	case "postgres":
		return service.NewPostgresCredentialStore(users, cfg.CredentialsEncryptionKey), nil
	default:
		return nil, fmt.Errorf("unknown CREDENTIALS_BACKEND %q", cfg.CredentialsBackend)
	}
}

// rateLimiter prefers Redis and falls back to in-process counters.
func rateLimiter(cfg *config.Config, logger zerolog.Logger) middleware.RateLimiter {
	if cfg.RedisAddr != "" {
		limiter, err := middleware.NewRedisRateLimiter(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, logger)
		if err == nil {
			logger.Info().Str("addr", cfg.RedisAddr).Msg("Redis rate limiter connected")
			return limiter
		}
		logger.Warn().Err(err).Msg("Redis unavailable, using in-memory rate limiter")
	}
	return middleware.NewMemoryRateLimiter()
}

// Close releases resources in reverse order and joins their errors.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
