// Package orchestrator forwards an inbound message to the agent bot service
// and applies the reply to the conversation: either an automated message plus
// a pending status, or an open status for a human to pick up.
package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/support-integrations/internal/agentbots"
	"github.com/wolfman30/support-integrations/internal/audit"
	"github.com/wolfman30/support-integrations/internal/botservice"
	"github.com/wolfman30/support-integrations/internal/conversations"
	"github.com/wolfman30/support-integrations/internal/messages"
	"github.com/wolfman30/support-integrations/pkg/logging"
)

// ErrNotFound marks a run that failed because an entity it needs is gone.
// Errors returned by Run wrap both this and the store's own sentinel.
var ErrNotFound = errors.New("orchestrator: not found")

// Job identifies one bot reply to produce.
type Job struct {
	AgentBotID int64 `json:"agent_bot_id"`
	MessageID  int64 `json:"message_id"`
}

// Action is what a run did to the conversation.
type Action string

const (
	ActionSkipped  Action = "skipped"
	ActionReplied  Action = "replied"
	ActionHandoff  Action = "handoff"
	ActionFallback Action = "fallback_open"
)

// Result summarizes a completed run.
type Result struct {
	Action         Action
	Outcome        botservice.OutcomeKind
	ConversationID int64
	PreviousStatus conversations.Status
	Status         conversations.Status
	ReplyMessageID int64
}

// BotService is the subset of botservice.Client used by the orchestrator.
type BotService interface {
	Enabled() bool
	Ask(ctx context.Context, snap botservice.Snapshot) botservice.Outcome
}

// OutcomeRecorder counts bot outcomes.
type OutcomeRecorder interface {
	ObserveBotOutcome(outcome string)
}

// Auditor persists audit events. Failures are logged and never fail a run.
type Auditor interface {
	Record(ctx context.Context, event audit.Event) error
}

// ReplyTx runs fn as one unit of work. The reply written through builder and
// the status written through convs either both persist or neither does.
type ReplyTx interface {
	WithinReply(ctx context.Context, fn func(ctx context.Context, builder messages.Builder, convs conversations.Store) error) error
}

// Deps are the collaborators the orchestrator cannot run without.
type Deps struct {
	Bot           BotService
	Messages      messages.Store
	Conversations conversations.Store
	AgentBots     agentbots.Store
	Replies       ReplyTx
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger.
func WithLogger(logger *logging.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMetrics records outcomes.
func WithMetrics(rec OutcomeRecorder) Option {
	return func(o *Orchestrator) {
		o.metrics = rec
	}
}

// WithAuditor records an audit event per run.
func WithAuditor(a Auditor) Option {
	return func(o *Orchestrator) {
		o.audit = a
	}
}

// WithTracer overrides the tracer.
func WithTracer(t trace.Tracer) Option {
	return func(o *Orchestrator) {
		if t != nil {
			o.tracer = t
		}
	}
}

// Orchestrator runs agent bot reply jobs.
type Orchestrator struct {
	bot           BotService
	messages      messages.Store
	conversations conversations.Store
	agentBots     agentbots.Store
	replies       ReplyTx

	logger  *logging.Logger
	metrics OutcomeRecorder
	audit   Auditor
	tracer  trace.Tracer
}

// New builds an orchestrator. It panics when a required collaborator is nil.
func New(deps Deps, opts ...Option) *Orchestrator {
	if deps.Bot == nil {
		panic("orchestrator: bot service required")
	}
	if deps.Messages == nil || deps.Conversations == nil || deps.AgentBots == nil {
		panic("orchestrator: stores required")
	}
	if deps.Replies == nil {
		panic("orchestrator: reply transaction required")
	}
	o := &Orchestrator{
		bot:           deps.Bot,
		messages:      deps.Messages,
		conversations: deps.Conversations,
		agentBots:     deps.AgentBots,
		replies:       deps.Replies,
		logger:        logging.Default(),
		tracer:        otel.Tracer("support.internal.orchestrator"),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run executes one job. Integration failures are absorbed into an open
// status; only missing entities and persistence failures return an error.
func (o *Orchestrator) Run(ctx context.Context, job Job) (Result, error) {
	if !o.bot.Enabled() {
		o.logger.Debug("agent bot endpoint not configured, skipping", "message_id", job.MessageID)
		return Result{Action: ActionSkipped}, nil
	}

	ctx, span := o.tracer.Start(ctx, "orchestrator.run")
	defer span.End()
	span.SetAttributes(
		attribute.Int64("support.message_id", job.MessageID),
		attribute.Int64("support.agent_bot_id", job.AgentBotID),
	)

	res, err := o.run(ctx, job)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return res, err
	}
	span.SetAttributes(
		attribute.String("support.bot_outcome", string(res.Outcome)),
		attribute.String("support.conversation_status", string(res.Status)),
	)
	return res, nil
}

func (o *Orchestrator) run(ctx context.Context, job Job) (Result, error) {
	msg, err := o.messages.Get(ctx, job.MessageID)
	if err != nil {
		return Result{}, lookupErr("message", job.MessageID, messages.ErrNotFound, err)
	}
	conv, err := o.conversations.Get(ctx, msg.ConversationID)
	if err != nil {
		return Result{}, lookupErr("conversation", msg.ConversationID, conversations.ErrNotFound, err)
	}

	log := o.logger.With(
		"message_id", msg.ID,
		"conversation_id", conv.ID,
		"agent_bot_id", job.AgentBotID,
	)

	outcome := o.bot.Ask(ctx, botservice.SnapshotFrom(msg))
	o.observe(outcome.Kind)
	res := Result{Outcome: outcome.Kind, ConversationID: conv.ID}

	if !outcome.Usable() {
		logOutcome(log, outcome)
		res.Action = ActionFallback
		if outcome.Kind == botservice.OutcomeHandoff {
			res.Action = ActionHandoff
		}
		return o.resolve(ctx, conv, conversations.ResolutionHuman, res)
	}

	bot, err := o.agentBots.Get(ctx, job.AgentBotID)
	if err != nil {
		return res, lookupErr("agent bot", job.AgentBotID, agentbots.ErrNotFound, err)
	}
	res.Action = ActionReplied
	res, err = o.postReply(ctx, bot, conv, outcome.Text, res)
	if err != nil {
		return res, err
	}
	log.Info("agent bot reply posted", "reply_message_id", res.ReplyMessageID)
	o.record(ctx, conv, res)
	return res, nil
}

// postReply writes the bot message and the pending status in one unit, so a
// failed status write leaves no message behind for a retry to duplicate.
func (o *Orchestrator) postReply(ctx context.Context, bot *agentbots.AgentBot, conv *conversations.Conversation, text string, res Result) (Result, error) {
	staged := *conv
	out := res
	err := o.replies.WithinReply(ctx, func(ctx context.Context, builder messages.Builder, convs conversations.Store) error {
		reply, err := builder.Build(ctx, bot, &staged, messages.Content{Content: text})
		if err != nil {
			return fmt.Errorf("orchestrator: build reply for conversation %d: %w", conv.ID, err)
		}
		if reply != nil {
			out.ReplyMessageID = reply.ID
		}
		out.PreviousStatus = staged.Resolve(conversations.ResolutionBotReplied)
		out.Status = staged.Status
		if err := convs.Save(ctx, &staged); err != nil {
			return fmt.Errorf("orchestrator: save conversation %d: %w", conv.ID, err)
		}
		return nil
	})
	if err != nil {
		return res, err
	}
	*conv = staged
	return out, nil
}

func (o *Orchestrator) resolve(ctx context.Context, conv *conversations.Conversation, r conversations.Resolution, res Result) (Result, error) {
	res.PreviousStatus = conv.Resolve(r)
	res.Status = conv.Status
	if err := o.conversations.Save(ctx, conv); err != nil {
		return res, fmt.Errorf("orchestrator: save conversation %d: %w", conv.ID, err)
	}
	o.record(ctx, conv, res)
	return res, nil
}

func (o *Orchestrator) observe(kind botservice.OutcomeKind) {
	if o.metrics != nil {
		o.metrics.ObserveBotOutcome(string(kind))
	}
}

func (o *Orchestrator) record(ctx context.Context, conv *conversations.Conversation, res Result) {
	if o.audit == nil {
		return
	}
	event := audit.Event{
		AccountID:      conv.AccountID,
		ConversationID: conv.ID,
		MessageID:      res.ReplyMessageID,
		Outcome:        string(res.Outcome),
	}
	switch res.Action {
	case ActionReplied:
		event.Type = audit.EventBotReplyPosted
	case ActionHandoff:
		event.Type = audit.EventBotHandoff
	default:
		event.Type = audit.EventBotFallbackOpen
	}
	if err := o.audit.Record(ctx, event); err != nil {
		o.logger.Warn("failed to record audit event", "conversation_id", conv.ID, "error", err)
	}
}

func logOutcome(log *logging.Logger, out botservice.Outcome) {
	switch out.Kind {
	case botservice.OutcomeUnreachable:
		log.Warn("agent bot service unreachable", "error", out.Err)
	case botservice.OutcomeBadStatus:
		log.Warn("agent bot service returned non-200", "status", out.StatusCode)
	case botservice.OutcomeMalformed:
		log.Warn("agent bot response malformed", "error", out.Err)
	case botservice.OutcomeHandoff:
		log.Info("agent bot requested human handoff")
	default:
		log.Info("agent bot returned no usable reply", "outcome", string(out.Kind))
	}
}

func lookupErr(entity string, id int64, sentinel, err error) error {
	if errors.Is(err, sentinel) {
		return fmt.Errorf("orchestrator: %s %d: %w: %w", entity, id, ErrNotFound, err)
	}
	return fmt.Errorf("orchestrator: load %s %d: %w", entity, id, err)
}
