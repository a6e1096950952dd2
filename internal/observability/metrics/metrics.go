package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// IntegrationMetrics exposes counters/histograms for the integration workers.
type IntegrationMetrics struct {
	jobsTotal       *prometheus.CounterVec
	jobDuration     *prometheus.HistogramVec
	botOutcomes     *prometheus.CounterVec
	identityLookups *prometheus.CounterVec
	callLatency     *prometheus.HistogramVec
}

func NewIntegrationMetrics(reg prometheus.Registerer) *IntegrationMetrics {
	m := &IntegrationMetrics{
		jobsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "support",
			Subsystem: "integrations",
			Name:      "jobs_total",
			Help:      "Integration jobs processed by kind and result",
		}, []string{"kind", "result"}),
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "support",
			Subsystem: "integrations",
			Name:      "job_duration_seconds",
			Help:      "Time spent handling one integration job",
			Buckets:   prometheus.DefBuckets,
		}, []string{"kind"}),
		botOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "support",
			Subsystem: "integrations",
			Name:      "bot_outcomes_total",
			Help:      "Agent bot service outcomes",
		}, []string{"outcome"}),
		identityLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "support",
			Subsystem: "integrations",
			Name:      "identity_lookups_total",
			Help:      "Identity service lookups by strategy and result",
		}, []string{"strategy", "result"}),
		callLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "support",
			Subsystem: "integrations",
			Name:      "external_call_seconds",
			Help:      "Latency of outbound integration calls",
			Buckets:   prometheus.DefBuckets,
		}, []string{"service", "status"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.jobsTotal, m.jobDuration, m.botOutcomes, m.identityLookups, m.callLatency)
	return m
}

func (m *IntegrationMetrics) ObserveJob(kind, result string, seconds float64) {
	if m == nil {
		return
	}
	m.jobsTotal.WithLabelValues(kind, result).Inc()
	m.jobDuration.WithLabelValues(kind).Observe(seconds)
}

func (m *IntegrationMetrics) ObserveBotOutcome(outcome string) {
	if m == nil {
		return
	}
	m.botOutcomes.WithLabelValues(outcome).Inc()
}

func (m *IntegrationMetrics) ObserveIdentityLookup(strategy, result string) {
	if m == nil {
		return
	}
	m.identityLookups.WithLabelValues(strategy, result).Inc()
}

// ObserveCall records an outbound call. Status 0 means no response.
func (m *IntegrationMetrics) ObserveCall(service string, status int, seconds float64) {
	if m == nil {
		return
	}
	label := "transport_error"
	if status > 0 {
		label = strconv.Itoa(status)
	}
	m.callLatency.WithLabelValues(service, label).Observe(seconds)
}
