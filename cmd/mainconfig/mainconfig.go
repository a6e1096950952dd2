package mainconfig

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/wolfman30/support-integrations/internal/app/bootstrap"
	appconfig "github.com/wolfman30/support-integrations/internal/config"
	"github.com/wolfman30/support-integrations/internal/jobs"
	"github.com/wolfman30/support-integrations/pkg/logging"
)

const memoryQueueBuffer = 256

// LoadAWSConfig centralizes AWS SDK initialization so every binary shares the
// same LocalStack/production wiring.
func LoadAWSConfig(ctx context.Context, cfg *appconfig.Config) (aws.Config, error) {
	loaders := []func(*config.LoadOptions) error{config.WithRegion(cfg.AWSRegion)}
	if strings.TrimSpace(cfg.AWSAccessKeyID) != "" && strings.TrimSpace(cfg.AWSSecretAccessKey) != "" {
		loaders = append(loaders, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AWSAccessKeyID, cfg.AWSSecretAccessKey, ""),
		))
	}
	return config.LoadDefaultConfig(ctx, loaders...)
}

// NewSQSClient honours AWS_ENDPOINT_OVERRIDE for LocalStack.
func NewSQSClient(awsCfg aws.Config, cfg *appconfig.Config) *sqs.Client {
	return sqs.NewFromConfig(awsCfg, func(o *sqs.Options) {
		if endpoint := strings.TrimSpace(cfg.AWSEndpointOverride); endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})
}

// NewDynamoClient honours AWS_ENDPOINT_OVERRIDE for LocalStack.
func NewDynamoClient(awsCfg aws.Config, cfg *appconfig.Config) *dynamodb.Client {
	return dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if endpoint := strings.TrimSpace(cfg.AWSEndpointOverride); endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})
}

// BuildQueue returns the job queue and job status store. With
// USE_MEMORY_QUEUE both live in process; otherwise SQS and DynamoDB are used.
func BuildQueue(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (jobs.Queue, bootstrap.JobStore, error) {
	if cfg.UseMemoryQueue {
		logger.Warn("using in-memory job queue; jobs are lost on restart")
		return jobs.NewMemoryQueue(memoryQueueBuffer), jobs.NewMemoryJobStore(), nil
	}

	awsCfg, err := LoadAWSConfig(ctx, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("mainconfig: load aws config: %w", err)
	}
	queue := jobs.NewSQSQueue(NewSQSClient(awsCfg, cfg), cfg.IntegrationQueueURL)
	store := jobs.NewJobStore(NewDynamoClient(awsCfg, cfg), cfg.IntegrationJobsTable, logger)
	return queue, store, nil
}
