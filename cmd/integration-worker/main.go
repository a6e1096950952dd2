package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/wolfman30/support-integrations/cmd/mainconfig"
	"github.com/wolfman30/support-integrations/internal/api/router"
	"github.com/wolfman30/support-integrations/internal/app/bootstrap"
	appconfig "github.com/wolfman30/support-integrations/internal/config"
	"github.com/wolfman30/support-integrations/internal/intake"
	"github.com/wolfman30/support-integrations/pkg/logging"
)

const shutdownTimeout = 30 * time.Second

func main() {
	if err := appconfig.LoadDotEnv(); err != nil {
		logging.Default().Warn("dotenv not loaded", "error", err)
	}
	cfg := appconfig.Load()
	logger := logging.NewWithOptions(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat})
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("integration worker exited", "error", err)
		os.Exit(1)
	}
	logger.Info("integration worker stopped")
}

func run(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) error {
	pool, err := bootstrap.BuildPostgresPool(ctx, cfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	redisClient := bootstrap.BuildRedisClient(ctx, cfg, logger, true)
	if redisClient != nil {
		defer func() { _ = redisClient.Close() }()
	}

	queue, jobStore, err := mainconfig.BuildQueue(ctx, cfg, logger)
	if err != nil {
		return err
	}
	metricsHandler, integrationMetrics := bootstrap.BuildMetrics()

	integrations, err := bootstrap.BuildIntegrations(cfg, bootstrap.Infra{
		Pool:    pool,
		Redis:   redisClient,
		Queue:   queue,
		Jobs:    jobStore,
		Metrics: integrationMetrics,
	}, logger)
	if err != nil {
		return err
	}
	worker := bootstrap.BuildWorker(cfg, queue, integrations, logger.With("component", "worker"))

	srv := &http.Server{
		Addr:              ":" + cfg.AdminPort,
		Handler:           adminHandler(cfg, integrations, jobStore, metricsHandler, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		worker.Start(gctx)
		<-gctx.Done()
		worker.Wait()
		if closer, ok := queue.(io.Closer); ok {
			_ = closer.Close()
		}
		return nil
	})
	g.Go(func() error {
		logger.Info("admin server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// adminHandler serves health and metrics. With the in-memory queue the intake
// API is mounted too, since no other process can reach the queue.
func adminHandler(cfg *appconfig.Config, integrations *bootstrap.Integrations, jobStore bootstrap.JobStore, metricsHandler http.Handler, logger *logging.Logger) http.Handler {
	if !cfg.UseMemoryQueue {
		return router.NewAdmin(metricsHandler)
	}
	var reader intake.JobReader
	if jobStore != nil {
		reader = jobStore
	}
	return router.New(&router.Config{
		Logger:         logger,
		Intake:         intake.NewHandler(integrations.Publisher, reader, logger),
		MetricsHandler: metricsHandler,
	})
}
