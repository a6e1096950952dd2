package main

import (
	"context"
	"os"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"

	"github.com/wolfman30/support-integrations/cmd/mainconfig"
	"github.com/wolfman30/support-integrations/internal/app/bootstrap"
	appconfig "github.com/wolfman30/support-integrations/internal/config"
	"github.com/wolfman30/support-integrations/internal/jobs"
	"github.com/wolfman30/support-integrations/pkg/logging"
)

type bodyHandler interface {
	HandleBody(ctx context.Context, body string) (jobs.Outcome, error)
}

func main() {
	cfg := appconfig.Load()
	logger := logging.NewWithOptions(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat})
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	ctx := context.Background()

	pool, err := bootstrap.BuildPostgresPool(ctx, cfg)
	if err != nil {
		logger.Error("failed to build postgres pool", "error", err)
		os.Exit(1)
	}
	queue, jobStore, err := mainconfig.BuildQueue(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to build queue", "error", err)
		os.Exit(1)
	}
	_, integrationMetrics := bootstrap.BuildMetrics()

	integrations, err := bootstrap.BuildIntegrations(cfg, bootstrap.Infra{
		Pool:    pool,
		Redis:   bootstrap.BuildRedisClient(ctx, cfg, logger, true),
		Queue:   queue,
		Jobs:    jobStore,
		Metrics: integrationMetrics,
	}, logger)
	if err != nil {
		logger.Error("failed to wire integrations", "error", err)
		os.Exit(1)
	}

	lambda.Start(func(ctx context.Context, evt events.SQSEvent) (events.SQSEventResponse, error) {
		return handle(ctx, integrations.Dispatcher, logger, evt), nil
	})
}

// handle reports records whose body must be redelivered as batch item
// failures so SQS retries only those.
func handle(ctx context.Context, h bodyHandler, logger *logging.Logger, evt events.SQSEvent) events.SQSEventResponse {
	var resp events.SQSEventResponse
	for _, record := range evt.Records {
		outcome, err := h.HandleBody(ctx, record.Body)
		if err != nil {
			logger.Error("integration job will be redelivered", "error", err, "message_id", record.MessageId)
			resp.BatchItemFailures = append(resp.BatchItemFailures, events.SQSBatchItemFailure{ItemIdentifier: record.MessageId})
			continue
		}
		logger.Debug("integration job handled", "message_id", record.MessageId, "outcome", outcome)
	}
	return resp
}
