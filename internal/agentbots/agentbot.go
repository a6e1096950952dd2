// Package agentbots identifies the automated sender used for bot replies.
package agentbots

import (
	"context"
	"errors"
)

// ErrNotFound is returned when an agent bot id does not exist.
var ErrNotFound = errors.New("agentbots: agent bot not found")

// AgentBot is the automated sender attributed on bot-generated messages.
type AgentBot struct {
	ID          int64
	Name        string
	Description string
}

// Store resolves agent bots by id.
type Store interface {
	Get(ctx context.Context, id int64) (*AgentBot, error)
}
