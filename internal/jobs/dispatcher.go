package jobs

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/wolfman30/support-integrations/internal/identity"
	"github.com/wolfman30/support-integrations/internal/orchestrator"
	"github.com/wolfman30/support-integrations/pkg/logging"
)

const (
	defaultMaxAttempts    = 3
	defaultRetryBaseDelay = 5 * time.Second
	updateTimeout         = 5 * time.Second
)

// BotRunner runs agent bot reply jobs.
type BotRunner interface {
	Run(ctx context.Context, job orchestrator.Job) (orchestrator.Result, error)
}

// ContactResolver runs contact enrichment jobs.
type ContactResolver interface {
	ResolveByID(ctx context.Context, contactID int64) (identity.Resolution, error)
}

// JobObserver records job outcomes.
type JobObserver interface {
	ObserveJob(kind, result string, seconds float64)
}

type processedStore interface {
	AlreadyProcessed(ctx context.Context, kind Kind, key string) (bool, error)
	MarkProcessed(ctx context.Context, kind Kind, key string) (bool, error)
}

// Outcome is how HandleBody disposed of a message.
type Outcome string

const (
	OutcomeCompleted    Outcome = "completed"
	OutcomeDuplicate    Outcome = "duplicate"
	OutcomeRetried      Outcome = "retried"
	OutcomeDeadLettered Outcome = "dead_lettered"
	OutcomeRejected     Outcome = "rejected"
)

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithContactResolver enables contact.enrich jobs. Without it they complete
// as skipped.
func WithContactResolver(r ContactResolver) DispatcherOption {
	return func(d *Dispatcher) {
		d.resolver = r
	}
}

// WithJobUpdater records job status transitions.
func WithJobUpdater(u Updater) DispatcherOption {
	return func(d *Dispatcher) {
		d.jobs = u
	}
}

// WithProcessedStore deduplicates agent bot replies per message.
func WithProcessedStore(s processedStore) DispatcherOption {
	return func(d *Dispatcher) {
		d.processed = s
	}
}

// WithRetryPolicy sets the attempt ceiling and the base backoff delay.
func WithRetryPolicy(maxAttempts int, baseDelay time.Duration) DispatcherOption {
	return func(d *Dispatcher) {
		if maxAttempts > 0 {
			d.maxAttempts = maxAttempts
		}
		if baseDelay > 0 {
			d.baseDelay = baseDelay
		}
	}
}

// WithJobMetrics records job outcomes.
func WithJobMetrics(m JobObserver) DispatcherOption {
	return func(d *Dispatcher) {
		d.metrics = m
	}
}

// Dispatcher decodes queue bodies and routes them to the integration that
// owns the job kind. It owns the retry policy.
type Dispatcher struct {
	bot         BotRunner
	resolver    ContactResolver
	queue       Queue
	jobs        Updater
	processed   processedStore
	metrics     JobObserver
	logger      *logging.Logger
	maxAttempts int
	baseDelay   time.Duration
}

// NewDispatcher panics when bot or queue is nil.
func NewDispatcher(bot BotRunner, queue Queue, logger *logging.Logger, opts ...DispatcherOption) *Dispatcher {
	if bot == nil {
		panic("jobs: bot runner cannot be nil")
	}
	if queue == nil {
		panic("jobs: queue cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	d := &Dispatcher{
		bot:         bot,
		queue:       queue,
		logger:      logger,
		maxAttempts: defaultMaxAttempts,
		baseDelay:   defaultRetryBaseDelay,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// HandleBody processes one queue message body. A nil error means the message
// can be deleted: it completed, was rejected as undecodable, or its next
// attempt was re-queued. An error means the message must be redelivered.
func (d *Dispatcher) HandleBody(ctx context.Context, body string) (Outcome, error) {
	start := time.Now()

	payload, err := decodePayload(body)
	if err == nil {
		err = payload.validate()
	}
	if err != nil {
		d.logger.Error("rejecting integration job", "error", err, "job_id", payload.ID)
		if payload.ID != "" && payload.TrackStatus {
			d.update(ctx, payload.ID, func(ctx context.Context) error {
				return d.jobs.MarkFailed(ctx, payload.ID, payload.Attempt+1, err.Error())
			})
		}
		d.observe(payload.Kind, OutcomeRejected, start)
		return OutcomeRejected, nil
	}

	log := d.logger.With("job_id", payload.ID, "kind", string(payload.Kind), "attempt", payload.Attempt+1)
	log.Info("processing integration job")

	result, duplicate, runErr := d.run(ctx, payload)
	if runErr == nil {
		outcome := OutcomeCompleted
		if duplicate {
			outcome = OutcomeDuplicate
			log.Info("integration job already processed, skipping")
		}
		if payload.TrackStatus {
			d.update(ctx, payload.ID, func(ctx context.Context) error {
				return d.jobs.MarkCompleted(ctx, payload.ID, payload.Attempt+1, result)
			})
		}
		d.observe(payload.Kind, outcome, start)
		return outcome, nil
	}

	attempts := payload.Attempt + 1
	if attempts >= d.maxAttempts {
		log.Error("integration job exhausted retries", "error", runErr)
		if payload.TrackStatus {
			d.update(ctx, payload.ID, func(ctx context.Context) error {
				return d.jobs.MarkDeadLettered(ctx, payload.ID, attempts, runErr.Error())
			})
		}
		d.observe(payload.Kind, OutcomeDeadLettered, start)
		return OutcomeDeadLettered, nil
	}

	delay := d.backoff(payload.Attempt)
	if err := requeue(ctx, d.queue, payload, delay); err != nil {
		log.Error("failed to requeue integration job", "error", err, "cause", runErr)
		return OutcomeRetried, errors.Join(runErr, err)
	}
	log.Warn("integration job failed, retrying", "error", runErr, "delay", delay.String())
	if payload.TrackStatus {
		d.update(ctx, payload.ID, func(ctx context.Context) error {
			return d.jobs.MarkRetrying(ctx, payload.ID, attempts, runErr.Error())
		})
	}
	d.observe(payload.Kind, OutcomeRetried, start)
	return OutcomeRetried, nil
}

func (d *Dispatcher) run(ctx context.Context, payload queuePayload) (string, bool, error) {
	switch payload.Kind {
	case KindAgentBotReply:
		return d.runAgentBotReply(ctx, *payload.AgentBotReply)
	case KindContactEnrich:
		if d.resolver == nil {
			return "skipped", false, nil
		}
		res, err := d.resolver.ResolveByID(ctx, payload.ContactEnrich.ContactID)
		if err != nil {
			return "", false, err
		}
		return string(res.Status), false, nil
	default:
		return "", false, fmt.Errorf("jobs: unknown job kind %q", payload.Kind)
	}
}

func (d *Dispatcher) runAgentBotReply(ctx context.Context, job orchestrator.Job) (string, bool, error) {
	key := strconv.FormatInt(job.MessageID, 10)
	if d.processed != nil {
		done, err := d.processed.AlreadyProcessed(ctx, KindAgentBotReply, key)
		if err != nil {
			return "", false, err
		}
		if done {
			return "duplicate", true, nil
		}
	}

	res, err := d.bot.Run(ctx, job)
	if err != nil {
		return "", false, err
	}

	if d.processed != nil && res.Action != orchestrator.ActionSkipped {
		if _, err := d.processed.MarkProcessed(ctx, KindAgentBotReply, key); err != nil {
			d.logger.Warn("failed to mark agent bot reply processed", "message_id", job.MessageID, "error", err)
		}
	}
	return string(res.Action), false, nil
}

func (d *Dispatcher) backoff(attempt int) time.Duration {
	if attempt > 10 {
		attempt = 10
	}
	return d.baseDelay * time.Duration(1<<attempt)
}

func (d *Dispatcher) update(ctx context.Context, jobID string, fn func(context.Context) error) {
	if d.jobs == nil {
		return
	}
	updateCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), updateTimeout)
	defer cancel()
	if err := fn(updateCtx); err != nil {
		d.logger.Warn("failed to update job status", "job_id", jobID, "error", err)
	}
}

func (d *Dispatcher) observe(kind Kind, outcome Outcome, start time.Time) {
	if d.metrics == nil {
		return
	}
	label := string(kind)
	if label == "" {
		label = "unknown"
	}
	d.metrics.ObserveJob(label, string(outcome), time.Since(start).Seconds())
}
