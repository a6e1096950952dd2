package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func counterValue(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
		for _, metric := range fam.GetMetric() {
			if matches(metric, labels) {
				return metric.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func histogramCount(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) uint64 {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
		for _, metric := range fam.GetMetric() {
			if matches(metric, labels) {
				return metric.GetHistogram().GetSampleCount()
			}
		}
	}
	return 0
}

func matches(metric *dto.Metric, labels map[string]string) bool {
	for _, pair := range metric.GetLabel() {
		if want, ok := labels[pair.GetName()]; ok && want != pair.GetValue() {
			return false
		}
	}
	return true
}

func TestIntegrationMetricsObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewIntegrationMetrics(reg)

	m.ObserveBotOutcome("reply")
	m.ObserveBotOutcome("reply")
	m.ObserveBotOutcome("handoff")
	m.ObserveIdentityLookup("phone", "miss")
	m.ObserveJob("agent_bot.reply", "success", 0.2)
	m.ObserveCall("bot", 200, 0.1)
	m.ObserveCall("identity", 0, 10)

	if got := counterValue(t, reg, "support_integrations_bot_outcomes_total", map[string]string{"outcome": "reply"}); got != 2 {
		t.Fatalf("expected 2 reply outcomes, got %v", got)
	}
	if got := counterValue(t, reg, "support_integrations_identity_lookups_total", map[string]string{"strategy": "phone", "result": "miss"}); got != 1 {
		t.Fatalf("expected 1 phone miss, got %v", got)
	}
	if got := counterValue(t, reg, "support_integrations_jobs_total", map[string]string{"kind": "agent_bot.reply", "result": "success"}); got != 1 {
		t.Fatalf("expected 1 job, got %v", got)
	}
	if got := histogramCount(t, reg, "support_integrations_external_call_seconds", map[string]string{"service": "identity", "status": "transport_error"}); got != 1 {
		t.Fatalf("expected transport error sample, got %v", got)
	}
}

func TestIntegrationMetricsCustomRegistry(t *testing.T) {
	m := NewIntegrationMetrics(prometheus.NewRegistry())
	m.ObserveCall("bot", 503, 0.5)
}

func TestIntegrationMetricsNilSafe(t *testing.T) {
	var m *IntegrationMetrics
	m.ObserveJob("contact.enrich", "failed", 1)
	m.ObserveBotOutcome("empty")
	m.ObserveIdentityLookup("email", "found")
	m.ObserveCall("bot", 200, 0.1)
}
