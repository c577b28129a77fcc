package mcp

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Metrics bundles the facade's Prometheus instruments on a private registry
// so isolated instances never collide in tests.
type Metrics struct {
	registry      *prometheus.Registry
	sessionGauge  prometheus.Gauge
	toolCalls     *prometheus.CounterVec
	propagations  *prometheus.CounterVec
	notifications prometheus.Counter
}

// NewMetrics builds a registry with the facade's instruments plus the
// standard Go runtime collectors.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	m := &Metrics{
		registry: registry,
		sessionGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "todos_active_sessions",
			Help: "Number of currently connected MCP sessions.",
		}),
		toolCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "todos_tool_calls_total",
			Help: "Tool invocations by tool name and result.",
		}, []string{"tool", "result"}),
		propagations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "todos_sync_propagations_total",
			Help: "Sync engine propagations by direction and result.",
		}, []string{"direction", "result"}),
		notifications: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "todos_progress_notifications_total",
			Help: "Progress notifications pushed to sessions.",
		}),
	}
	registry.MustRegister(
		collectors.NewGoCollector(),
		m.sessionGauge,
		m.toolCalls,
		m.propagations,
		m.notifications,
	)
	return m
}

// Registry exposes the backing registry for the /metrics handler.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveSync adapts the metrics to the sync engine's observer hook.
func (m *Metrics) ObserveSync(direction string, ok bool) {
	result := "ok"
	if !ok {
		result = "error"
	}
	m.propagations.WithLabelValues(direction, result).Inc()
}

func (m *Metrics) observeTool(tool string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.toolCalls.WithLabelValues(tool, result).Inc()
}
