// Package audit records what the integration workers did to conversations
// and contacts, for support staff reviewing automated changes.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// EventType names an audited integration action.
type EventType string

const (
	// EventBotReplyPosted is logged when an agent bot reply was posted.
	EventBotReplyPosted EventType = "bot.reply_posted"
	// EventBotHandoff is logged when the bot service asked for a human.
	EventBotHandoff EventType = "bot.handoff"
	// EventBotFallbackOpen is logged when no usable reply was obtained.
	EventBotFallbackOpen EventType = "bot.fallback_open"
	// EventContactEnriched is logged when an external id was recorded.
	EventContactEnriched EventType = "contact.enriched"
)

// Event is an immutable audit record.
type Event struct {
	ID             string
	Type           EventType
	AccountID      int64
	ConversationID int64
	MessageID      int64
	ContactID      int64
	Outcome        string
	FilledFields   []string
	CreatedAt      time.Time
}

// Service writes audit events.
type Service struct {
	db *sql.DB
}

// NewService creates an audit service. A nil db yields a no-op service.
func NewService(db *sql.DB) *Service {
	return &Service{db: db}
}

// Record inserts one event.
func (s *Service) Record(ctx context.Context, event Event) error {
	if s == nil || s.db == nil {
		return nil
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	if event.FilledFields == nil {
		event.FilledFields = []string{}
	}

	query := `
		INSERT INTO integration_audit_events (
			id, event_type, account_id, conversation_id, message_id,
			contact_id, outcome, filled_fields, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := s.db.ExecContext(ctx, query,
		event.ID,
		string(event.Type),
		nullInt(event.AccountID),
		nullInt(event.ConversationID),
		nullInt(event.MessageID),
		nullInt(event.ContactID),
		nullString(event.Outcome),
		pq.Array(event.FilledFields),
		event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("audit: insert event: %w", err)
	}
	return nil
}

// ListForConversation returns events for a conversation, newest first.
func (s *Service) ListForConversation(ctx context.Context, conversationID int64, limit int) ([]Event, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT id, event_type, COALESCE(account_id, 0), COALESCE(conversation_id, 0),
			COALESCE(message_id, 0), COALESCE(contact_id, 0), COALESCE(outcome, ''),
			filled_fields, created_at
		FROM integration_audit_events
		WHERE conversation_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	rows, err := s.db.QueryContext(ctx, query, conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("audit: query events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var (
			e      Event
			typ    string
			fields pq.StringArray
		)
		if err := rows.Scan(&e.ID, &typ, &e.AccountID, &e.ConversationID, &e.MessageID,
			&e.ContactID, &e.Outcome, &fields, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("audit: scan event: %w", err)
		}
		e.Type = EventType(typ)
		e.FilledFields = []string(fields)
		events = append(events, e)
	}
	return events, rows.Err()
}

func nullInt(v int64) sql.NullInt64 {
	return sql.NullInt64{Int64: v, Valid: v != 0}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
