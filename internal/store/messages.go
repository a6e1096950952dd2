package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/wolfman30/support-integrations/internal/agentbots"
	"github.com/wolfman30/support-integrations/internal/conversations"
	"github.com/wolfman30/support-integrations/internal/messages"
)

// MessageStore implements messages.Store. Contact senders are joined so the
// bot snapshot can be taken without a second query.
type MessageStore struct {
	db rowQuerier
}

var _ messages.Store = (*MessageStore)(nil)

func (s *MessageStore) Get(ctx context.Context, id int64) (*messages.Message, error) {
	query := `
		SELECT m.id, m.account_id, m.inbox_id, m.conversation_id, m.content, m.message_type,
			m.sender_type, m.sender_id,
			COALESCE(c.name, b.name), c.email, c.phone_number, c.custom_attributes
		FROM messages m
		LEFT JOIN contacts c ON m.sender_type = 'Contact' AND c.id = m.sender_id
		LEFT JOIN agent_bots b ON m.sender_type = 'AgentBot' AND b.id = m.sender_id
		WHERE m.id = $1
	`
	var (
		m           messages.Message
		content     pgtype.Text
		messageType string
		senderType  pgtype.Text
		senderID    pgtype.Int8
		name        pgtype.Text
		email       pgtype.Text
		phone       pgtype.Text
		attributes  []byte
	)
	err := s.db.QueryRow(ctx, query, id).Scan(
		&m.ID, &m.AccountID, &m.InboxID, &m.ConversationID, &content, &messageType,
		&senderType, &senderID,
		&name, &email, &phone, &attributes,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, messages.ErrNotFound
		}
		return nil, fmt.Errorf("store: select message %d: %w", id, err)
	}
	m.Content = textOrEmpty(content)
	m.MessageType = messages.MessageType(messageType)

	if senderType.Valid && senderID.Valid {
		attrs, err := decodeAttributes(attributes)
		if err != nil {
			return nil, fmt.Errorf("store: message %d sender attributes: %w", id, err)
		}
		m.Sender = &messages.Sender{
			Type:             messages.SenderType(senderType.String),
			ID:               senderID.Int64,
			Name:             textOrEmpty(name),
			Email:            textOrEmpty(email),
			PhoneNumber:      textOrEmpty(phone),
			CustomAttributes: attrs,
		}
	}
	return &m, nil
}

// MessageBuilder implements messages.Builder by inserting an outgoing message
// attributed to the agent bot.
type MessageBuilder struct {
	db rowQuerier
}

var _ messages.Builder = (*MessageBuilder)(nil)

func (b *MessageBuilder) Build(ctx context.Context, sender *agentbots.AgentBot, conv *conversations.Conversation, params messages.Content) (*messages.Message, error) {
	if sender == nil {
		return nil, errors.New("store: message sender required")
	}
	query := `
		INSERT INTO messages (account_id, inbox_id, conversation_id, content, message_type, sender_type, sender_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`
	msg := &messages.Message{
		AccountID:      conv.AccountID,
		InboxID:        conv.InboxID,
		ConversationID: conv.ID,
		Content:        params.Content,
		MessageType:    messages.TypeOutgoing,
		Sender:         &messages.Sender{Type: messages.SenderAgentBot, ID: sender.ID, Name: sender.Name},
	}
	err := b.db.QueryRow(ctx, query,
		msg.AccountID,
		msg.InboxID,
		msg.ConversationID,
		msg.Content,
		string(msg.MessageType),
		string(messages.SenderAgentBot),
		sender.ID,
	).Scan(&msg.ID)
	if err != nil {
		return nil, fmt.Errorf("store: insert message for conversation %d: %w", conv.ID, err)
	}
	return msg, nil
}
