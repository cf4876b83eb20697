package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"clipnorm/api"
	"clipnorm/capture"
	"clipnorm/config"
	"clipnorm/ffcap"
	"clipnorm/pipeline"
	"clipnorm/task"
)

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load configuration")
	}
	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		logger = logger.Level(level)
	}

	backend, err := ffcap.New(cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize capture backend")
	}
	defer backend.Close()

	pl := pipeline.New(backend, capture.Options{
		AudioBitsPerSecond: cfg.AudioBitrate,
		VideoBitsPerSecond: cfg.VideoBitrate,
		Logger:             logger,
	})
	runner := pipeline.NewRunner(pl, cfg, logger)

	taskManager, err := task.NewManager(cfg, runner, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize task manager")
	}

	router := api.SetupRouter(taskManager, pl, cfg)
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	taskManager.Start(ctx)

	go func() {
		logger.Info().Str("port", cfg.Port).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("listen failed")
		}
	}()

	<-ctx.Done()

	stop()
	logger.Info().Msg("shutting down gracefully, press Ctrl+C again to force")

	// In-flight requests get a short grace period; running capture
	// sessions are bounded by their own deadlines.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server forced to shutdown")
	}

	logger.Info().Msg("server exiting")
}
