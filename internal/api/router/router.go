package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wolfman30/support-integrations/internal/intake"
	"github.com/wolfman30/support-integrations/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger         *logging.Logger
	Intake         *intake.Handler
	MetricsHandler http.Handler
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(cfg.Logger))

	r.Get("/health", cfg.Intake.HealthCheck)
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	r.Route("/v1", func(v1 chi.Router) {
		v1.Post("/events/messages", cfg.Intake.MessageCreated)
		v1.Post("/events/contacts", cfg.Intake.ContactChanged)
		v1.Get("/jobs/{jobID}", cfg.Intake.GetJob)
	})

	return r
}

// NewAdmin serves only health and metrics, for worker processes.
func NewAdmin(metrics http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	if metrics != nil {
		r.Handle("/metrics", metrics)
	}
	return r
}

func requestLogger(logger *logging.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			logger.Info("request completed",
				"method", r.Method,
				"path", r.URL.Path,
				"request_id", middleware.GetReqID(r.Context()),
				"status", ww.Status(),
				"duration_ms", time.Since(start).Milliseconds(),
			)
		})
	}
}
