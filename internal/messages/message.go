// Package messages defines the read-only message view the agent bot
// orchestrator consumes and the builder it delegates outbound messages to.
package messages

import (
	"context"
	"errors"

	"github.com/wolfman30/support-integrations/internal/agentbots"
	"github.com/wolfman30/support-integrations/internal/conversations"
)

// ErrNotFound is returned when a message id does not exist.
var ErrNotFound = errors.New("messages: message not found")

// SenderType identifies the polymorphic sender of a message.
type SenderType string

const (
	SenderContact  SenderType = "Contact"
	SenderAgentBot SenderType = "AgentBot"
	SenderUser     SenderType = "User"
)

// MessageType mirrors the stored message_type column.
type MessageType string

const (
	TypeIncoming MessageType = "incoming"
	TypeOutgoing MessageType = "outgoing"
)

// Sender is a projection of whoever sent the message.
type Sender struct {
	Type             SenderType
	ID               int64
	Name             string
	Email            string
	PhoneNumber      string
	CustomAttributes map[string]any
}

// Message is an immutable stored message.
type Message struct {
	ID             int64
	AccountID      int64
	InboxID        int64
	ConversationID int64
	Content        string
	MessageType    MessageType
	Sender         *Sender
}

// Content is what the builder needs to create an outbound message.
type Content struct {
	Content string
}

// Store loads messages with their sender projection.
type Store interface {
	Get(ctx context.Context, id int64) (*Message, error)
}

// Builder creates an outbound message on behalf of an agent bot.
type Builder interface {
	Build(ctx context.Context, sender *agentbots.AgentBot, conversation *conversations.Conversation, params Content) (*Message, error)
}
