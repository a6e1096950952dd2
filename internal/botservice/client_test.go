package botservice

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/support-integrations/internal/integration"
	"github.com/wolfman30/support-integrations/internal/messages"
)

func TestSnapshotFrom(t *testing.T) {
	msg := &messages.Message{
		ID:             10,
		ConversationID: 42,
		Content:        "where is my order?",
		Sender: &messages.Sender{
			Type:             messages.SenderContact,
			Name:             "Jane",
			Email:            "jane@example.com",
			PhoneNumber:      "+919876543210",
			CustomAttributes: map[string]any{"external_id": float64(777)},
		},
	}
	snap := SnapshotFrom(msg)
	assert.Equal(t, Snapshot{
		ConversationID: 42,
		Content:        "where is my order?",
		Name:           "Jane",
		Email:          "jane@example.com",
		Phone:          "+919876543210",
		ExternalID:     "777",
	}, snap)

	msg.Sender.Name = "Changed later"
	assert.Equal(t, "Jane", snap.Name, "snapshot must not follow sender edits")
}

func TestSnapshotFromNilSender(t *testing.T) {
	snap := SnapshotFrom(&messages.Message{ConversationID: 1, Content: "hi"})
	assert.Empty(t, snap.Name)
	assert.Empty(t, snap.ExternalID)
}

func TestAsk_SendsSnapshotPayload(t *testing.T) {
	var body map[string]any
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		_, _ = w.Write([]byte(`[{"recipient_id":"42","text":"Hello!"}]`))
	}))
	defer ts.Close()

	client := NewClient(Endpoint{URL: ts.URL, Timeout: time.Second}, nil)
	out := client.Ask(context.Background(), Snapshot{ConversationID: 42, Content: "hi", Name: "Jane"})

	assert.Equal(t, OutcomeReply, out.Kind)
	assert.Equal(t, "Hello!", out.Text)
	assert.True(t, out.Usable())

	assert.Equal(t, "42", body["sender"])
	assert.Equal(t, "hi", body["message"])
	assert.Equal(t, "Jane", body["name"])
	assert.Contains(t, body, "email")
	assert.Nil(t, body["email"])
	assert.Contains(t, body, "user_id")
}

func TestAsk_Outcomes(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   OutcomeKind
	}{
		{"handoff", http.StatusOK, `[{"text":"human_handoff"}]`, OutcomeHandoff},
		{"empty array", http.StatusOK, `[]`, OutcomeMalformed},
		{"no text", http.StatusOK, `[{}]`, OutcomeEmpty},
		{"invalid json", http.StatusOK, `<html>`, OutcomeMalformed},
		{"server error", http.StatusInternalServerError, `[{"text":"hi"}]`, OutcomeBadStatus},
		{"created is not ok", http.StatusCreated, `[{"text":"hi"}]`, OutcomeBadStatus},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer ts.Close()

			out := NewClient(Endpoint{URL: ts.URL}, nil).Ask(context.Background(), Snapshot{ConversationID: 1})
			assert.Equal(t, tt.want, out.Kind)
			assert.False(t, out.Usable())
		})
	}
}

func TestAsk_Unreachable(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := ts.URL
	ts.Close()

	out := NewClient(Endpoint{URL: url}, integration.New("bot", integration.WithTimeout(time.Second))).
		Ask(context.Background(), Snapshot{ConversationID: 1})
	assert.Equal(t, OutcomeUnreachable, out.Kind)
	assert.True(t, integration.IsTransport(out.Err))
}

func TestEndpointEnabled(t *testing.T) {
	assert.False(t, Endpoint{}.Enabled())
	assert.False(t, Endpoint{URL: "   "}.Enabled())
	assert.True(t, Endpoint{URL: "http://bot"}.Enabled())

	var nilClient *Client
	assert.False(t, nilClient.Enabled())
}
