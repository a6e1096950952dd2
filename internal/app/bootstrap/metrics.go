package bootstrap

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wolfman30/support-integrations/internal/observability/metrics"
)

// BuildMetrics registers integration metrics plus the Go and process
// collectors on a private registry and returns its scrape handler.
func BuildMetrics() (http.Handler, *metrics.IntegrationMetrics) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewIntegrationMetrics(reg)
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), m
}
