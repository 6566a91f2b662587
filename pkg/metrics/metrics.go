// Package metrics provides the Prometheus metrics Cubicler exposes on
// GET /metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "cubicler"

const (
	subsystemDispatch = "dispatch"
	subsystemRouter    = "router"
	subsystemHealth    = "health"
)

// DurationBuckets covers 10ms RPC calls through two-minute LLM round trips.
var DurationBuckets = []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120}

var (
	// DispatchRequestsTotal counts dispatch attempts by agent and outcome.
	DispatchRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemDispatch,
			Name:      "requests_total",
			Help:      "Total number of agent dispatch requests",
		},
		[]string{"agent", "outcome"},
	)

	// DispatchDuration measures end-to-end dispatch latency.
	DispatchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystemDispatch,
			Name:      "duration_seconds",
			Help:      "Agent dispatch latency in seconds",
			Buckets:   DurationBuckets,
		},
		[]string{"agent"},
	)

	// RouterRequestsTotal counts router method invocations.
	RouterRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemRouter,
			Name:      "requests_total",
			Help:      "Total number of MCP router requests",
		},
		[]string{"method", "outcome"},
	)

	// HealthChecksTotal counts health aggregation runs by overall status.
	HealthChecksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemHealth,
			Name:      "checks_total",
			Help:      "Total number of health aggregation runs",
		},
		[]string{"status"},
	)

	registry = prometheus.NewRegistry()
)

func init() {
	registry.MustRegister(
		DispatchRequestsTotal,
		DispatchDuration,
		RouterRequestsTotal,
		HealthChecksTotal,
	)
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
}

// Handler returns the HTTP handler to mount at GET /metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// RecordDispatch records one dispatch attempt's outcome and latency.
func RecordDispatch(agent, outcome string, durationSeconds float64) {
	DispatchRequestsTotal.WithLabelValues(agent, outcome).Inc()
	DispatchDuration.WithLabelValues(agent).Observe(durationSeconds)
}

// RecordRouterRequest records one router method invocation's outcome.
func RecordRouterRequest(method, outcome string) {
	RouterRequestsTotal.WithLabelValues(method, outcome).Inc()
}

// RecordHealthCheck records one health aggregation run's overall status.
func RecordHealthCheck(status string) {
	HealthChecksTotal.WithLabelValues(status).Inc()
}
