package jobs

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/wolfman30/support-integrations/pkg/logging"
)

const (
	jobTTL = 72 * time.Hour
)

// Status represents the lifecycle of an integration job.
type Status string

const (
	StatusPending      Status = "pending"
	StatusRetrying     Status = "retrying"
	StatusCompleted    Status = "completed"
	StatusFailed       Status = "failed"
	StatusDeadLettered Status = "dead_lettered"
)

// ErrJobNotFound indicates the requested job ID does not exist.
var ErrJobNotFound = errors.New("jobs: job not found")

type dynamoAPI interface {
	PutItem(context.Context, *dynamodb.PutItemInput, ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(context.Context, *dynamodb.UpdateItemInput, ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	GetItem(context.Context, *dynamodb.GetItemInput, ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
}

// Record captures the persisted state of an integration job.
type Record struct {
	JobID        string `dynamodbav:"jobId" json:"jobId"`
	Kind         Kind   `dynamodbav:"kind" json:"kind"`
	Status       Status `dynamodbav:"status" json:"status"`
	SubjectID    int64  `dynamodbav:"subjectId" json:"subjectId"`
	Attempts     int    `dynamodbav:"attempts" json:"attempts"`
	Result       string `dynamodbav:"result,omitempty" json:"result,omitempty"`
	ErrorMessage string `dynamodbav:"errorMessage,omitempty" json:"errorMessage,omitempty"`
	CreatedAt    string `dynamodbav:"createdAt" json:"createdAt"`
	UpdatedAt    string `dynamodbav:"updatedAt" json:"updatedAt"`
	ExpiresAt    int64  `dynamodbav:"expiresAt,omitempty" json:"-"`
}

// Recorder creates and reads job records.
type Recorder interface {
	PutPending(ctx context.Context, job *Record) error
	GetJob(ctx context.Context, jobID string) (*Record, error)
}

// Updater moves job records through their lifecycle.
type Updater interface {
	MarkCompleted(ctx context.Context, jobID string, attempts int, result string) error
	MarkRetrying(ctx context.Context, jobID string, attempts int, errMsg string) error
	MarkFailed(ctx context.Context, jobID string, attempts int, errMsg string) error
	MarkDeadLettered(ctx context.Context, jobID string, attempts int, errMsg string) error
}

// JobStore persists job records to DynamoDB.
type JobStore struct {
	client    dynamoAPI
	tableName string
	logger    *logging.Logger
}

var _ Recorder = (*JobStore)(nil)
var _ Updater = (*JobStore)(nil)

// NewJobStore builds a store backed by the provided DynamoDB client.
func NewJobStore(client dynamoAPI, tableName string, logger *logging.Logger) *JobStore {
	if client == nil {
		panic("jobs: dynamodb client cannot be nil")
	}
	if tableName == "" {
		panic("jobs: table name cannot be empty")
	}
	if logger == nil {
		logger = logging.Default()
	}

	return &JobStore{
		client:    client,
		tableName: tableName,
		logger:    logger,
	}
}

// PutPending inserts a new pending job record.
func (s *JobStore) PutPending(ctx context.Context, job *Record) error {
	if job == nil {
		return errors.New("jobs: job cannot be nil")
	}
	now := time.Now().UTC()
	job.Status = StatusPending
	job.CreatedAt = now.Format(time.RFC3339Nano)
	job.UpdatedAt = job.CreatedAt
	if job.ExpiresAt == 0 {
		job.ExpiresAt = now.Add(jobTTL).Unix()
	}

	item, err := attributevalue.MarshalMap(job)
	if err != nil {
		return fmt.Errorf("jobs: failed to marshal job: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(jobId)"),
	})
	if err != nil {
		return fmt.Errorf("jobs: failed to persist job: %w", err)
	}
	return nil
}

// MarkCompleted records a successful run and its result summary.
func (s *JobStore) MarkCompleted(ctx context.Context, jobID string, attempts int, result string) error {
	return s.transition(ctx, jobID, StatusCompleted, attempts, result, "")
}

// MarkRetrying records a failed attempt that was re-queued.
func (s *JobStore) MarkRetrying(ctx context.Context, jobID string, attempts int, errMsg string) error {
	return s.transition(ctx, jobID, StatusRetrying, attempts, "", errMsg)
}

// MarkFailed records a terminal failure that retrying cannot fix.
func (s *JobStore) MarkFailed(ctx context.Context, jobID string, attempts int, errMsg string) error {
	return s.transition(ctx, jobID, StatusFailed, attempts, "", errMsg)
}

// MarkDeadLettered records a job that exhausted its attempts.
func (s *JobStore) MarkDeadLettered(ctx context.Context, jobID string, attempts int, errMsg string) error {
	return s.transition(ctx, jobID, StatusDeadLettered, attempts, "", errMsg)
}

func (s *JobStore) transition(ctx context.Context, jobID string, status Status, attempts int, result, errMsg string) error {
	if jobID == "" {
		return errors.New("jobs: jobID required")
	}
	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"jobId": &types.AttributeValueMemberS{Value: jobID},
		},
		UpdateExpression: aws.String("SET #status = :status, #attempts = :attempts, #result = :result, #error = :error, #updated = :updated"),
		ExpressionAttributeNames: map[string]string{
			"#status":   "status",
			"#attempts": "attempts",
			"#result":   "result",
			"#error":    "errorMessage",
			"#updated":  "updatedAt",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":status":   &types.AttributeValueMemberS{Value: string(status)},
			":attempts": &types.AttributeValueMemberN{Value: strconv.Itoa(attempts)},
			":result":   &types.AttributeValueMemberS{Value: result},
			":error":    &types.AttributeValueMemberS{Value: errMsg},
			":updated":  &types.AttributeValueMemberS{Value: time.Now().UTC().Format(time.RFC3339Nano)},
		},
		ConditionExpression: aws.String("attribute_exists(jobId)"),
	})
	if err != nil {
		return fmt.Errorf("jobs: failed to update job %s: %w", jobID, err)
	}
	return nil
}

// GetJob fetches a job by ID.
func (s *JobStore) GetJob(ctx context.Context, jobID string) (*Record, error) {
	if jobID == "" {
		return nil, errors.New("jobs: jobID required")
	}
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"jobId": &types.AttributeValueMemberS{Value: jobID},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("jobs: failed to fetch job: %w", err)
	}
	if out.Item == nil {
		return nil, ErrJobNotFound
	}

	var job Record
	if err := attributevalue.UnmarshalMap(out.Item, &job); err != nil {
		return nil, fmt.Errorf("jobs: failed to decode job: %w", err)
	}
	return &job, nil
}
