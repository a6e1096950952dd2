// Package botservice talks to the conversational-agent service: it captures
// the sender snapshot, posts it, and turns the raw response into a tagged
// Outcome.
package botservice

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/wolfman30/support-integrations/internal/contacts"
	"github.com/wolfman30/support-integrations/internal/integration"
	"github.com/wolfman30/support-integrations/internal/messages"
)

// Endpoint is the bot service location. The zero value is disabled.
type Endpoint struct {
	URL     string
	Timeout time.Duration
}

// Enabled reports whether an endpoint is configured.
func (e Endpoint) Enabled() bool {
	return strings.TrimSpace(e.URL) != ""
}

// Snapshot is the sender identity captured once per run. It is the exact
// request body sent to the bot service.
type Snapshot struct {
	ConversationID int64
	Content        string
	Name           string
	Email          string
	Phone          string
	ExternalID     string
}

// SnapshotFrom projects a loaded message. The sender may be nil for system
// messages; identity fields are then left empty.
func SnapshotFrom(msg *messages.Message) Snapshot {
	snap := Snapshot{
		ConversationID: msg.ConversationID,
		Content:        msg.Content,
	}
	if s := msg.Sender; s != nil {
		snap.Name = s.Name
		snap.Email = s.Email
		snap.Phone = s.PhoneNumber
		if v, ok := s.CustomAttributes[contacts.ExternalIDKey]; ok && v != nil {
			snap.ExternalID = stringify(v)
		}
	}
	return snap
}

type requestBody struct {
	Sender  string  `json:"sender"`
	Message string  `json:"message"`
	Name    *string `json:"name"`
	Email   *string `json:"email"`
	Phone   *string `json:"phone"`
	UserID  *string `json:"user_id"`
}

func (s Snapshot) body() requestBody {
	return requestBody{
		Sender:  strconv.FormatInt(s.ConversationID, 10),
		Message: s.Content,
		Name:    nullable(s.Name),
		Email:   nullable(s.Email),
		Phone:   nullable(s.Phone),
		UserID:  nullable(s.ExternalID),
	}
}

// OutcomeKind tags what the bot service call produced.
type OutcomeKind string

const (
	OutcomeUnreachable OutcomeKind = "unreachable"
	OutcomeBadStatus   OutcomeKind = "bad_status"
	OutcomeMalformed   OutcomeKind = "malformed"
	OutcomeEmpty       OutcomeKind = "empty"
	OutcomeHandoff     OutcomeKind = "handoff"
	OutcomeReply       OutcomeKind = "reply"
)

// Outcome is the result of one Ask.
type Outcome struct {
	Kind       OutcomeKind
	Text       string
	StatusCode int
	Err        error
}

// Usable reports whether the outcome carries text to post.
func (o Outcome) Usable() bool {
	return o.Kind == OutcomeReply && o.Text != ""
}

// Caller is the subset of integration.Client used here.
type Caller interface {
	Call(ctx context.Context, method, url string, payload any) (*integration.Response, error)
}

// Client posts snapshots to the configured endpoint.
type Client struct {
	endpoint Endpoint
	caller   Caller
}

// NewClient builds a bot service client. When caller is nil a default
// integration client bounded by the endpoint timeout is used.
func NewClient(endpoint Endpoint, caller Caller) *Client {
	if caller == nil {
		caller = integration.New("bot", integration.WithTimeout(endpoint.Timeout))
	}
	return &Client{endpoint: endpoint, caller: caller}
}

// Enabled reports whether the endpoint is configured.
func (c *Client) Enabled() bool {
	return c != nil && c.endpoint.Enabled()
}

// Ask sends the snapshot and interprets the answer. It never returns an
// error: every failure is folded into the Outcome.
func (c *Client) Ask(ctx context.Context, snap Snapshot) Outcome {
	resp, err := c.caller.Call(ctx, http.MethodPost, c.endpoint.URL, snap.body())
	if err != nil {
		return Outcome{Kind: OutcomeUnreachable, Err: err}
	}
	if !resp.OK() {
		return Outcome{Kind: OutcomeBadStatus, StatusCode: resp.StatusCode}
	}
	reply, err := Interpret(resp.Body)
	if err != nil {
		return Outcome{Kind: OutcomeMalformed, StatusCode: resp.StatusCode, Err: err}
	}
	switch reply.Kind {
	case KindHandoff:
		return Outcome{Kind: OutcomeHandoff, StatusCode: resp.StatusCode}
	case KindReply:
		return Outcome{Kind: OutcomeReply, Text: reply.Text, StatusCode: resp.StatusCode}
	default:
		return Outcome{Kind: OutcomeEmpty, StatusCode: resp.StatusCode}
	}
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int64:
		return strconv.FormatInt(t, 10)
	case int:
		return strconv.Itoa(t)
	default:
		return ""
	}
}
