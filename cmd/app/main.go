package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ranikadev/baas-bot/internal/api/v1/router"
	"github.com/ranikadev/baas-bot/internal/app"
	"github.com/ranikadev/baas-bot/internal/config"
	"github.com/ranikadev/baas-bot/internal/logger"

	"github.com/joho/godotenv"
)

// @title baas-bot API
// @version 1.0
// @description Scheduling and posting control surface for baas-bot users
// @host localhost:8080
// @BasePath /v1
// @Schemes http https

func main() {
	// 1. Load configuration
	envErr := godotenv.Load()
	logger := logger.New()
	if envErr != nil {
		logger.Warn().Msg("Warning: no .env file found")
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Msgf("Error loading config: %v", err)
	}

	// 2. Connect to the database and build services
	ctx := context.Background()
	pool, err := app.Connect(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Msgf("Failed to connect to database: %v", err)
	}
	a, err := app.Build(ctx, cfg, pool, true, logger)
	if err != nil {
		logger.Fatal().Msgf("Failed to build services: %v", err)
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Error().Err(err).Msg("Failed to release resources")
		}
	}()

	// 3. Start the scheduler
	if cfg.SchedulerEnabled {
		if err := a.Scheduler.Start(); err != nil {
			logger.Fatal().Msgf("Failed to start scheduler: %v", err)
		}
	} else {
		logger.Info().Msg("Scheduler disabled")
	}

	// 4. Create HTTP server
	srv := &http.Server{
		Addr: ":" + cfg.Port,
		Handler: router.New(cfg, router.Deps{
			Users:     a.Users,
			Posting:   a.Posting,
			Billing:   a.Billing,
			Limiter:   a.Limiter,
			Registry:  a.Registry,
			Scheduler: a.Scheduler,
			DB:        a.Pool,
		}, logger),
		ReadTimeout: 10 * time.Second,
		// manual triggers wait on the content source and the publisher
		WriteTimeout: cfg.ContentTimeout() + cfg.PublishTimeout() + 10*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// 5. Start server in a goroutine
	go func() {
		logger.Info().Msgf("Server starting on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Msgf("Listen: %s\n", err)
		}
	}()

	// 6. Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info().Msg("Shutdown signal received, exiting...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := a.Scheduler.Stop(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Scheduler did not stop cleanly")
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Server forced to shutdown")
	}
	logger.Info().Msg("Server shut down gracefully")
}
