package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestNewLevels(t *testing.T) {
	tests := []struct {
		name   string
		level  string
		enable slog.Level
	}{
		{"debug level", "debug", slog.LevelDebug},
		{"warn level", "warn", slog.LevelWarn},
		{"warning alias", "WARNING", slog.LevelWarn},
		{"default info", "", slog.LevelInfo},
	}

	ctx := context.Background()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger := New(tt.level)
			if !logger.Enabled(ctx, tt.enable) {
				t.Fatalf("expected level %s to be enabled", tt.enable)
			}
		})
	}
}

func TestDefaultLogger(t *testing.T) {
	logger := Default()
	ctx := context.Background()
	if !logger.Enabled(ctx, slog.LevelInfo) {
		t.Error("Default() should enable info level")
	}
	if logger.Enabled(ctx, slog.LevelDebug) {
		t.Error("Default() should not enable debug level")
	}
	if Default() == logger {
		t.Error("Default() returned the same instance twice")
	}
}

func TestWithCarriesAttributes(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithOptions(Options{Level: "info", Output: &buf}).With("job_id", "job-1")
	logger.Info("processed", "kind", "contact.enrich")

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("expected json line, got %q: %v", buf.String(), err)
	}
	if line["job_id"] != "job-1" || line["kind"] != "contact.enrich" {
		t.Fatalf("unexpected attributes: %v", line)
	}
}

func TestTextFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithOptions(Options{Format: "text", Output: &buf})
	logger.Info("hello", "contact_id", 7)
	if !strings.Contains(buf.String(), "contact_id=7") {
		t.Fatalf("expected text output, got %q", buf.String())
	}
}

func TestWithOnNilLogger(t *testing.T) {
	var logger *Logger
	if logger.With("k", "v") == nil {
		t.Fatal("expected a usable logger")
	}
}
