package main

import (
	"context"
	"flag"
	"os/signal"
	"syscall"
	"time"

	"github.com/ranikadev/baas-bot/internal/app"
	"github.com/ranikadev/baas-bot/internal/config"
	"github.com/ranikadev/baas-bot/internal/db"
	"github.com/ranikadev/baas-bot/internal/logger"

	"github.com/joho/godotenv"
)

func main() {
	// Parse mode flag
	mode := flag.String("mode", "", "Worker mode: scheduler|tick|migrate")
	flag.Parse()

	// Load environment variables
	envErr := godotenv.Load()

	// Initialize logger
	logger := logger.New()
	if envErr != nil {
		logger.Warn().Msg("Warning: no .env file found")
	}

	// Load config
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Msgf("Error loading config: %v", err)
	}

	// Set up context with graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if *mode == "migrate" {
		pool, err := db.Connect(ctx, db.PrepareDSN(cfg.DBConnectionString, cfg.Environment), logger)
		if err != nil {
			logger.Fatal().Msgf("Failed to connect to database: %v", err)
		}
		defer pool.Close()
		if err := db.Migrate(ctx, pool, logger); err != nil {
			logger.Fatal().Msgf("Migration failed: %v", err)
		}
		return
	}

	pool, err := app.Connect(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Msgf("Failed to connect to database: %v", err)
	}
	a, err := app.Build(ctx, cfg, pool, false, logger)
	if err != nil {
		logger.Fatal().Msgf("Failed to build services: %v", err)
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Error().Err(err).Msg("Failed to release resources")
		}
	}()

	// Dispatch to the selected mode
	switch *mode {
	case "scheduler":
		if err := a.Scheduler.Start(); err != nil {
			logger.Fatal().Msgf("Failed to start scheduler: %v", err)
		}
		logger.Info().Time("next_run", a.Scheduler.Next()).Msg("Scheduler running")
		<-ctx.Done()

		stopCtx, stop := context.WithTimeout(context.Background(), 30*time.Second)
		defer stop()
		if err := a.Scheduler.Stop(stopCtx); err != nil {
			logger.Error().Err(err).Msg("Scheduler did not stop cleanly")
		}
	case "tick":
		res, err := a.Scheduler.Tick(ctx)
		if err != nil {
			logger.Fatal().Msgf("tick failed: %v", err)
		}
		logger.Info().Int("users", res.Users).Int("published", res.Published).Int("failed", res.Failed).Msg("Tick complete")
	default:
		logger.Fatal().Msgf("Invalid mode: %s", *mode)
	}

	logger.Info().Msgf("%s worker stopped gracefully", *mode)
}
