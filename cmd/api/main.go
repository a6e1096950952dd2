package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/wolfman30/support-integrations/cmd/mainconfig"
	"github.com/wolfman30/support-integrations/internal/api/router"
	"github.com/wolfman30/support-integrations/internal/app/bootstrap"
	appconfig "github.com/wolfman30/support-integrations/internal/config"
	"github.com/wolfman30/support-integrations/internal/intake"
	"github.com/wolfman30/support-integrations/internal/jobs"
	"github.com/wolfman30/support-integrations/pkg/logging"
)

func main() {
	if err := appconfig.LoadDotEnv(); err != nil {
		logging.Default().Warn("dotenv not loaded", "error", err)
	}
	cfg := appconfig.Load()
	logger := logging.NewWithOptions(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat})
	logger.Info("starting integration intake API", "env", cfg.Env, "port", cfg.Port)

	if cfg.UseMemoryQueue {
		logger.Warn("USE_MEMORY_QUEUE is set; run integration-worker instead so jobs reach a worker")
	}

	queue, jobStore, err := mainconfig.BuildQueue(context.Background(), cfg, logger)
	if err != nil {
		logger.Error("failed to build queue", "error", err)
		os.Exit(1)
	}
	metricsHandler, _ := bootstrap.BuildMetrics()

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      newHandler(queue, jobStore, metricsHandler, logger),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}

func newHandler(queue jobs.Queue, jobStore bootstrap.JobStore, metricsHandler http.Handler, logger *logging.Logger) http.Handler {
	var recorder jobs.Recorder
	if jobStore != nil {
		recorder = jobStore
	}
	publisher := jobs.NewPublisher(queue, recorder, logger)
	return router.New(&router.Config{
		Logger:         logger,
		Intake:         intake.NewHandler(publisher, recorder, logger),
		MetricsHandler: metricsHandler,
	})
}
