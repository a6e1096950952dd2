// Package conversations models the conversation status and the single
// transition rule applied after every agent bot turn.
package conversations

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotFound is returned when a conversation id does not exist.
var ErrNotFound = errors.New("conversations: conversation not found")

// Status is the persisted conversation status.
type Status string

const (
	StatusOpen     Status = "open"
	StatusResolved Status = "resolved"
	StatusPending  Status = "pending"
	StatusSnoozed  Status = "snoozed"
)

// ParseStatus validates a stored status value.
func ParseStatus(raw string) (Status, error) {
	switch s := Status(raw); s {
	case StatusOpen, StatusResolved, StatusPending, StatusSnoozed:
		return s, nil
	default:
		return "", fmt.Errorf("conversations: unknown status %q", raw)
	}
}

// Resolution is who owns the next turn after the bot service was consulted.
type Resolution int

const (
	// ResolutionHuman routes the conversation to an agent: the bot was
	// unreachable, returned nothing usable, or asked for a handoff.
	ResolutionHuman Resolution = iota
	// ResolutionBotReplied means an automated reply was posted.
	ResolutionBotReplied
)

func (r Resolution) String() string {
	if r == ResolutionBotReplied {
		return "bot_replied"
	}
	return "human"
}

// NextStatus is the only transition the orchestrator performs.
func NextStatus(r Resolution) Status {
	if r == ResolutionBotReplied {
		return StatusPending
	}
	return StatusOpen
}

// Conversation is the subset of the conversation record the workers touch.
type Conversation struct {
	ID        int64
	AccountID int64
	InboxID   int64
	Status    Status
}

// Resolve applies NextStatus and returns the previous status.
func (c *Conversation) Resolve(r Resolution) Status {
	prev := c.Status
	c.Status = NextStatus(r)
	return prev
}

// Store loads and persists conversations.
type Store interface {
	Get(ctx context.Context, id int64) (*Conversation, error)
	Save(ctx context.Context, conversation *Conversation) error
}
