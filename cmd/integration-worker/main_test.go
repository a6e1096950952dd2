package main

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/wolfman30/support-integrations/internal/app/bootstrap"
	appconfig "github.com/wolfman30/support-integrations/internal/config"
	"github.com/wolfman30/support-integrations/internal/jobs"
	"github.com/wolfman30/support-integrations/pkg/logging"
)

func TestAdminHandlerWithoutMemoryQueueServesOnlyAdmin(t *testing.T) {
	handler := adminHandler(&appconfig.Config{}, &bootstrap.Integrations{}, nil, nil, logging.Discard())

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/events/contacts", strings.NewReader(`{"contact_id":1}`)))
	if rr.Code != http.StatusNotFound && rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected intake to be unavailable, got %d", rr.Code)
	}
}

func TestAdminHandlerWithMemoryQueueMountsIntake(t *testing.T) {
	queue := jobs.NewMemoryQueue(4)
	store := jobs.NewMemoryJobStore()
	integrations := &bootstrap.Integrations{Publisher: jobs.NewPublisher(queue, store, logging.Discard())}

	handler := adminHandler(&appconfig.Config{UseMemoryQueue: true}, integrations, store, nil, logging.Discard())

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/events/contacts", strings.NewReader(`{"contact_id":1}`)))
	if rr.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", rr.Code)
	}
	if queue.Len() != 1 {
		t.Fatalf("expected queued job, got %d", queue.Len())
	}
}
