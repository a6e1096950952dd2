package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/wolfman30/support-integrations/internal/identity"
	"github.com/wolfman30/support-integrations/internal/orchestrator"
	"github.com/wolfman30/support-integrations/pkg/logging"
)

type stubRunner struct {
	calls  []orchestrator.Job
	result orchestrator.Result
	err    error
}

func (s *stubRunner) Run(_ context.Context, job orchestrator.Job) (orchestrator.Result, error) {
	s.calls = append(s.calls, job)
	return s.result, s.err
}

type stubResolver struct {
	calls []int64
	res   identity.Resolution
	err   error
}

func (s *stubResolver) ResolveByID(_ context.Context, id int64) (identity.Resolution, error) {
	s.calls = append(s.calls, id)
	return s.res, s.err
}

type memoryProcessed map[string]bool

func (m memoryProcessed) AlreadyProcessed(_ context.Context, kind Kind, key string) (bool, error) {
	return m[string(kind)+":"+key], nil
}

func (m memoryProcessed) MarkProcessed(_ context.Context, kind Kind, key string) (bool, error) {
	k := string(kind) + ":" + key
	if m[k] {
		return false, nil
	}
	m[k] = true
	return true, nil
}

type jobCounter map[string]int

func (c jobCounter) ObserveJob(kind, result string, _ float64) { c[kind+"/"+result]++ }

func publishOne(t *testing.T, store *MemoryJobStore, payload queuePayload) (string, queuePayload) {
	t.Helper()
	queue := &stubQueue{}
	pub := NewPublisher(queue, store, logging.Discard())
	var err error
	switch payload.Kind {
	case KindAgentBotReply:
		_, err = pub.PublishAgentBotReply(context.Background(), *payload.AgentBotReply)
	default:
		_, err = pub.PublishContactEnrich(context.Background(), payload.ContactEnrich.ContactID)
	}
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	return queue.sent[0], decodeSent(t, queue.sent[0])
}

func TestDispatcher_AgentBotReplyCompletes(t *testing.T) {
	store := NewMemoryJobStore()
	body, payload := publishOne(t, store, queuePayload{Kind: KindAgentBotReply, AgentBotReply: &orchestrator.Job{AgentBotID: 3, MessageID: 7}})

	runner := &stubRunner{result: orchestrator.Result{Action: orchestrator.ActionReplied}}
	metrics := jobCounter{}
	d := NewDispatcher(runner, &stubQueue{}, logging.Discard(), WithJobUpdater(store), WithJobMetrics(metrics))

	outcome, err := d.HandleBody(context.Background(), body)
	if err != nil || outcome != OutcomeCompleted {
		t.Fatalf("expected completed, got %s %v", outcome, err)
	}
	if len(runner.calls) != 1 || runner.calls[0].MessageID != 7 {
		t.Fatalf("unexpected runner calls: %#v", runner.calls)
	}
	record, _ := store.GetJob(context.Background(), payload.ID)
	if record.Status != StatusCompleted || record.Result != "replied" || record.Attempts != 1 {
		t.Fatalf("unexpected record: %#v", record)
	}
	if metrics["agent_bot.reply/completed"] != 1 {
		t.Fatalf("expected completed metric, got %v", metrics)
	}
}

func TestDispatcher_DuplicateReplySkipped(t *testing.T) {
	body, _ := publishOne(t, NewMemoryJobStore(), queuePayload{Kind: KindAgentBotReply, AgentBotReply: &orchestrator.Job{AgentBotID: 3, MessageID: 7}})
	runner := &stubRunner{result: orchestrator.Result{Action: orchestrator.ActionReplied}}
	processed := memoryProcessed{}
	d := NewDispatcher(runner, &stubQueue{}, logging.Discard(), WithProcessedStore(processed))

	if outcome, err := d.HandleBody(context.Background(), body); err != nil || outcome != OutcomeCompleted {
		t.Fatalf("first delivery: %s %v", outcome, err)
	}
	if outcome, err := d.HandleBody(context.Background(), body); err != nil || outcome != OutcomeDuplicate {
		t.Fatalf("second delivery: %s %v", outcome, err)
	}
	if len(runner.calls) != 1 {
		t.Fatalf("expected one orchestrator run, got %d", len(runner.calls))
	}
}

func TestDispatcher_SkippedRunNotMarkedProcessed(t *testing.T) {
	body, _ := publishOne(t, NewMemoryJobStore(), queuePayload{Kind: KindAgentBotReply, AgentBotReply: &orchestrator.Job{MessageID: 7}})
	processed := memoryProcessed{}
	d := NewDispatcher(&stubRunner{result: orchestrator.Result{Action: orchestrator.ActionSkipped}}, &stubQueue{}, logging.Discard(), WithProcessedStore(processed))

	if _, err := d.HandleBody(context.Background(), body); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(processed) != 0 {
		t.Fatalf("skipped run must not be recorded: %v", processed)
	}
}

func TestDispatcher_FailureRequeuesWithBackoff(t *testing.T) {
	store := NewMemoryJobStore()
	body, payload := publishOne(t, store, queuePayload{Kind: KindAgentBotReply, AgentBotReply: &orchestrator.Job{AgentBotID: 3, MessageID: 7}})

	queue := &stubQueue{}
	runner := &stubRunner{err: orchestrator.ErrNotFound}
	d := NewDispatcher(runner, queue, logging.Discard(), WithJobUpdater(store), WithRetryPolicy(3, time.Second))

	outcome, err := d.HandleBody(context.Background(), body)
	if err != nil || outcome != OutcomeRetried {
		t.Fatalf("expected retried, got %s %v", outcome, err)
	}
	if len(queue.sent) != 1 || queue.delays[0] != time.Second {
		t.Fatalf("expected one requeue after 1s, got %v %v", queue.sent, queue.delays)
	}
	next := decodeSent(t, queue.sent[0])
	if next.ID != payload.ID || next.Attempt != 1 {
		t.Fatalf("unexpected requeued payload: %#v", next)
	}
	record, _ := store.GetJob(context.Background(), payload.ID)
	if record.Status != StatusRetrying || record.Attempts != 1 || record.ErrorMessage == "" {
		t.Fatalf("unexpected record: %#v", record)
	}

	outcome, _ = d.HandleBody(context.Background(), queue.sent[0])
	if outcome != OutcomeRetried || queue.delays[1] != 2*time.Second {
		t.Fatalf("expected second retry after 2s, got %s %v", outcome, queue.delays)
	}
}

func TestDispatcher_DeadLettersAfterMaxAttempts(t *testing.T) {
	store := NewMemoryJobStore()
	_, payload := publishOne(t, store, queuePayload{Kind: KindContactEnrich, ContactEnrich: &EnrichRequest{ContactID: 9}})
	payload.Attempt = 2
	_, body, err := encodePayload(payload)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	queue := &stubQueue{}
	resolver := &stubResolver{err: identity.ErrNotFound}
	metrics := jobCounter{}
	d := NewDispatcher(&stubRunner{}, queue, logging.Discard(),
		WithContactResolver(resolver),
		WithJobUpdater(store),
		WithRetryPolicy(3, time.Second),
		WithJobMetrics(metrics),
	)

	outcome, err := d.HandleBody(context.Background(), body)
	if err != nil || outcome != OutcomeDeadLettered {
		t.Fatalf("expected dead lettered, got %s %v", outcome, err)
	}
	if len(queue.sent) != 0 {
		t.Fatal("dead-lettered job must not be requeued")
	}
	record, _ := store.GetJob(context.Background(), payload.ID)
	if record.Status != StatusDeadLettered || record.Attempts != 3 {
		t.Fatalf("unexpected record: %#v", record)
	}
	if metrics["contact.enrich/dead_lettered"] != 1 {
		t.Fatalf("expected dead letter metric, got %v", metrics)
	}
}

func TestDispatcher_RequeueFailureAsksForRedelivery(t *testing.T) {
	body, _ := publishOne(t, NewMemoryJobStore(), queuePayload{Kind: KindContactEnrich, ContactEnrich: &EnrichRequest{ContactID: 9}})
	d := NewDispatcher(&stubRunner{}, &stubQueue{sendErr: errors.New("sqs down")}, logging.Discard(),
		WithContactResolver(&stubResolver{err: errors.New("db down")}),
	)

	if _, err := d.HandleBody(context.Background(), body); err == nil {
		t.Fatal("expected error so the message is redelivered")
	}
}

func TestDispatcher_ContactEnrich(t *testing.T) {
	store := NewMemoryJobStore()
	body, payload := publishOne(t, store, queuePayload{Kind: KindContactEnrich, ContactEnrich: &EnrichRequest{ContactID: 9}})
	resolver := &stubResolver{res: identity.Resolution{Status: identity.StatusLinked}}
	d := NewDispatcher(&stubRunner{}, &stubQueue{}, logging.Discard(), WithContactResolver(resolver), WithJobUpdater(store))

	if outcome, err := d.HandleBody(context.Background(), body); err != nil || outcome != OutcomeCompleted {
		t.Fatalf("expected completed, got %s %v", outcome, err)
	}
	if len(resolver.calls) != 1 || resolver.calls[0] != 9 {
		t.Fatalf("unexpected resolver calls: %v", resolver.calls)
	}
	record, _ := store.GetJob(context.Background(), payload.ID)
	if record.Result != "linked" {
		t.Fatalf("unexpected result: %q", record.Result)
	}
}

func TestDispatcher_ContactEnrichDisabled(t *testing.T) {
	body, _ := publishOne(t, NewMemoryJobStore(), queuePayload{Kind: KindContactEnrich, ContactEnrich: &EnrichRequest{ContactID: 9}})
	d := NewDispatcher(&stubRunner{}, &stubQueue{}, logging.Discard())

	if outcome, err := d.HandleBody(context.Background(), body); err != nil || outcome != OutcomeCompleted {
		t.Fatalf("expected completed, got %s %v", outcome, err)
	}
}

func TestDispatcher_RejectsBadBodies(t *testing.T) {
	store := NewMemoryJobStore()
	if err := store.PutPending(context.Background(), &Record{JobID: "job-x"}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	tests := []struct {
		name string
		body string
	}{
		{"invalid json", `not json`},
		{"unknown kind", `{"id":"job-x","kind":"avatar.refresh","track_status":true}`},
		{"missing request", `{"id":"job-y","kind":"agent_bot.reply"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			queue := &stubQueue{}
			runner := &stubRunner{}
			d := NewDispatcher(runner, queue, logging.Discard(), WithJobUpdater(store))

			outcome, err := d.HandleBody(context.Background(), tt.body)
			if err != nil || outcome != OutcomeRejected {
				t.Fatalf("expected rejected, got %s %v", outcome, err)
			}
			if len(runner.calls) != 0 || len(queue.sent) != 0 {
				t.Fatal("rejected job must not run or requeue")
			}
		})
	}
	record, _ := store.GetJob(context.Background(), "job-x")
	if record.Status != StatusFailed {
		t.Fatalf("expected unknown kind to mark job failed, got %s", record.Status)
	}
}
