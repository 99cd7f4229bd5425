package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/feedscout/feedscout/internal/ai"
	"github.com/feedscout/feedscout/internal/api"
	"github.com/feedscout/feedscout/internal/config"
	"github.com/feedscout/feedscout/internal/feed"
	"github.com/feedscout/feedscout/internal/handlers"
	"github.com/feedscout/feedscout/internal/jobs"
	"github.com/feedscout/feedscout/internal/store"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	var logger zerolog.Logger
	if cfg.IsDevelopment() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
			With().
			Timestamp().
			Logger()
	} else {
		logger = zerolog.New(os.Stdout).
			With().
			Timestamp().
			Logger()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize SQLite store
	db, err := store.NewSQLiteStore(ctx, cfg.DatabasePath)
	if err != nil {
		logger.Fatal().Err(err).Msg("sqlite open failed")
	}
	defer db.Close()
	logger.Info().Str("path", cfg.DatabasePath).Msg("connected to SQLite")

	// Initialize Redis activity store
	activity, err := store.NewActivityStore(ctx, cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis connection failed")
	}
	defer activity.Close()
	logger.Info().Msg("connected to Redis")

	// Build the pipeline
	completer := ai.NewClient(ai.Config{
		APIKey:      cfg.AIAPIKey,
		BaseURL:     cfg.AIBaseURL,
		Model:       cfg.AIModel,
		Temperature: cfg.AITemperature,
	}, logger)

	tracker := feed.NewTracker(activity, db, cfg, logger)
	detector := feed.NewDetector(db, completer, cfg, logger)
	scanner := feed.NewScanner(db, completer, cfg, logger)
	dedup := feed.NewDeduplicator(db, completer, cfg, logger)
	creator := feed.NewCreator(db, logger)
	updater := feed.NewUpdater(db, logger)
	runner := feed.NewRunner(db, dedup, creator, updater, logger)

	// Background workers and the fallback scheduler
	queue := jobs.NewQueue(activity.Client(), logger)
	service := jobs.NewService(db, tracker, scanner, runner, cfg, logger)
	pool := jobs.NewPool(queue, service, cfg.ScanWorkers, logger)
	pool.Start(ctx)

	if cfg.EnableAutomatedScans {
		scheduler, err := jobs.NewScheduler(queue, cfg.FallbackCron, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("invalid fallback cron")
		}
		scheduler.Start(ctx)
	} else {
		logger.Info().Msg("automated scans disabled")
	}

	// HTTP surface
	h := handlers.NewHandler(db, activity, tracker, detector, creator, queue, logger)
	router := api.NewRouter(logger, h)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info().
			Str("port", cfg.Port).
			Str("env", cfg.Env).
			Msg("starting feedscout server")

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server failed to start")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server forced to shutdown")
	}

	// Stop workers and scheduler, then wait for in-flight jobs
	cancel()
	pool.Wait()

	logger.Info().Msg("server stopped")
}
