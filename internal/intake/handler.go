// Package intake accepts integration events over HTTP and turns them into
// queued jobs.
package intake

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/support-integrations/internal/jobs"
	"github.com/wolfman30/support-integrations/internal/orchestrator"
	"github.com/wolfman30/support-integrations/pkg/logging"
)

// Publisher enqueues integration jobs.
type Publisher interface {
	PublishAgentBotReply(ctx context.Context, job orchestrator.Job) (string, error)
	PublishContactEnrich(ctx context.Context, contactID int64) (string, error)
}

// JobReader looks up job records.
type JobReader interface {
	GetJob(ctx context.Context, jobID string) (*jobs.Record, error)
}

// Handler serves the event intake endpoints.
type Handler struct {
	publisher Publisher
	jobs      JobReader
	logger    *logging.Logger
}

// NewHandler creates an intake handler. jobs may be nil when job status is not
// tracked.
func NewHandler(publisher Publisher, jobs JobReader, logger *logging.Logger) *Handler {
	if publisher == nil {
		panic("intake: publisher required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{publisher: publisher, jobs: jobs, logger: logger}
}

// MessageEventRequest asks for an agent bot reply to a stored message.
type MessageEventRequest struct {
	AgentBotID int64 `json:"agent_bot_id"`
	MessageID  int64 `json:"message_id"`
}

// ContactEventRequest asks for identity enrichment of a contact.
type ContactEventRequest struct {
	ContactID int64 `json:"contact_id"`
}

// AcceptedResponse is returned once a job is queued.
type AcceptedResponse struct {
	JobID  string `json:"jobId"`
	Status string `json:"status"`
}

// MessageCreated handles POST /v1/events/messages.
func (h *Handler) MessageCreated(w http.ResponseWriter, r *http.Request) {
	var req MessageEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.AgentBotID <= 0 || req.MessageID <= 0 {
		http.Error(w, "agent_bot_id and message_id are required", http.StatusBadRequest)
		return
	}

	jobID, err := h.publisher.PublishAgentBotReply(r.Context(), orchestrator.Job{AgentBotID: req.AgentBotID, MessageID: req.MessageID})
	if err != nil {
		h.logger.Error("failed to enqueue agent bot reply", "error", err, "message_id", req.MessageID)
		http.Error(w, "failed to enqueue job", http.StatusInternalServerError)
		return
	}
	h.logger.Info("agent bot reply queued", "job_id", jobID, "message_id", req.MessageID, "agent_bot_id", req.AgentBotID)
	writeJSON(w, http.StatusAccepted, AcceptedResponse{JobID: jobID, Status: string(jobs.StatusPending)})
}

// ContactChanged handles POST /v1/events/contacts.
func (h *Handler) ContactChanged(w http.ResponseWriter, r *http.Request) {
	var req ContactEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.ContactID <= 0 {
		http.Error(w, "contact_id is required", http.StatusBadRequest)
		return
	}

	jobID, err := h.publisher.PublishContactEnrich(r.Context(), req.ContactID)
	if err != nil {
		h.logger.Error("failed to enqueue contact enrichment", "error", err, "contact_id", req.ContactID)
		http.Error(w, "failed to enqueue job", http.StatusInternalServerError)
		return
	}
	h.logger.Info("contact enrichment queued", "job_id", jobID, "contact_id", req.ContactID)
	writeJSON(w, http.StatusAccepted, AcceptedResponse{JobID: jobID, Status: string(jobs.StatusPending)})
}

// GetJob handles GET /v1/jobs/{jobID}.
func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	if h.jobs == nil {
		http.Error(w, "job tracking disabled", http.StatusNotFound)
		return
	}
	jobID := chi.URLParam(r, "jobID")
	if jobID == "" {
		http.Error(w, "missing job id", http.StatusBadRequest)
		return
	}

	record, err := h.jobs.GetJob(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, jobs.ErrJobNotFound) {
			http.Error(w, "job not found", http.StatusNotFound)
			return
		}
		h.logger.Error("failed to load job", "error", err, "job_id", jobID)
		http.Error(w, "failed to load job", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

// HealthCheck handles GET /health.
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
