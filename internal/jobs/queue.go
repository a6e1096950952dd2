// Package jobs carries integration work from the intake API to the workers:
// the queue envelope, publishing, job status records, retries and the
// dispatcher shared by the long-running worker and the Lambda handler.
package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/support-integrations/internal/orchestrator"
)

// Queue is implemented by MemoryQueue and SQSQueue.
type Queue interface {
	Send(ctx context.Context, body string, delay time.Duration) error
	Receive(ctx context.Context, maxMessages int, waitSeconds int) ([]queueMessage, error)
	Delete(ctx context.Context, receiptHandle string) error
}

type queueMessage struct {
	ID            string
	Body          string
	ReceiptHandle string
}

// Kind names a job type on the wire.
type Kind string

const (
	KindAgentBotReply Kind = "agent_bot.reply"
	KindContactEnrich Kind = "contact.enrich"
)

// EnrichRequest asks for one contact to be resolved.
type EnrichRequest struct {
	ContactID int64 `json:"contact_id"`
}

type queuePayload struct {
	ID            string            `json:"id"`
	Kind          Kind              `json:"kind"`
	Attempt       int               `json:"attempt"`
	AgentBotReply *orchestrator.Job `json:"agent_bot_reply,omitempty"`
	ContactEnrich *EnrichRequest    `json:"contact_enrich,omitempty"`
	TrackStatus   bool              `json:"track_status"`
}

// subjectID is the message or contact the job acts on.
func (p queuePayload) subjectID() int64 {
	switch {
	case p.AgentBotReply != nil:
		return p.AgentBotReply.MessageID
	case p.ContactEnrich != nil:
		return p.ContactEnrich.ContactID
	default:
		return 0
	}
}

func (p queuePayload) validate() error {
	switch p.Kind {
	case KindAgentBotReply:
		if p.AgentBotReply == nil {
			return fmt.Errorf("jobs: %s job %s has no request", p.Kind, p.ID)
		}
	case KindContactEnrich:
		if p.ContactEnrich == nil {
			return fmt.Errorf("jobs: %s job %s has no request", p.Kind, p.ID)
		}
	default:
		return fmt.Errorf("jobs: unknown job kind %q", p.Kind)
	}
	return nil
}

func encodePayload(payload queuePayload) (queuePayload, string, error) {
	if payload.ID == "" {
		payload.ID = uuid.NewString()
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return queuePayload{}, "", fmt.Errorf("jobs: failed to encode payload: %w", err)
	}

	return payload, string(body), nil
}

func decodePayload(body string) (queuePayload, error) {
	var payload queuePayload
	if err := json.Unmarshal([]byte(body), &payload); err != nil {
		return queuePayload{}, fmt.Errorf("jobs: failed to decode payload: %w", err)
	}
	return payload, nil
}
