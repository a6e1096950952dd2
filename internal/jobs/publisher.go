package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/wolfman30/support-integrations/internal/orchestrator"
	"github.com/wolfman30/support-integrations/pkg/logging"
)

// Publisher enqueues integration jobs for asynchronous processing.
type Publisher struct {
	queue  Queue
	jobs   Recorder
	logger *logging.Logger
}

// NewPublisher creates a queue-backed publisher. jobs may be nil, in which
// case no status records are written.
func NewPublisher(queue Queue, jobs Recorder, logger *logging.Logger) *Publisher {
	if queue == nil {
		panic("jobs: queue cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Publisher{
		queue:  queue,
		jobs:   jobs,
		logger: logger,
	}
}

// PublishAgentBotReply queues a bot reply for an inbound message and returns
// the job id.
func (p *Publisher) PublishAgentBotReply(ctx context.Context, job orchestrator.Job) (string, error) {
	return p.publish(ctx, queuePayload{Kind: KindAgentBotReply, AgentBotReply: &job})
}

// PublishContactEnrich queues identity resolution for a contact.
func (p *Publisher) PublishContactEnrich(ctx context.Context, contactID int64) (string, error) {
	return p.publish(ctx, queuePayload{Kind: KindContactEnrich, ContactEnrich: &EnrichRequest{ContactID: contactID}})
}

func (p *Publisher) publish(ctx context.Context, payload queuePayload) (string, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	payload.TrackStatus = p.jobs != nil

	payload, body, err := encodePayload(payload)
	if err != nil {
		return "", err
	}

	if payload.TrackStatus {
		record := &Record{JobID: payload.ID, Kind: payload.Kind, SubjectID: payload.subjectID()}
		if err := p.jobs.PutPending(ctx, record); err != nil {
			return "", err
		}
	}

	if err := p.queue.Send(ctx, body, 0); err != nil {
		return "", fmt.Errorf("jobs: failed to enqueue job: %w", err)
	}

	p.logger.Debug("integration job enqueued", "job_id", payload.ID, "kind", payload.Kind)
	return payload.ID, nil
}

// requeue sends the next attempt of a failed job after delay.
func requeue(ctx context.Context, queue Queue, payload queuePayload, delay time.Duration) error {
	payload.Attempt++
	_, body, err := encodePayload(payload)
	if err != nil {
		return err
	}
	if err := queue.Send(ctx, body, delay); err != nil {
		return fmt.Errorf("jobs: failed to requeue job %s: %w", payload.ID, err)
	}
	return nil
}
