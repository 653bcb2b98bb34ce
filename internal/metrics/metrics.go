package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application
type Metrics struct {
	registry *prometheus.Registry

	// Turn metrics
	TurnsTotal        *prometheus.CounterVec
	TurnDuration      *prometheus.HistogramVec
	TurnErrorsTotal   *prometheus.CounterVec
	ShortCircuitTotal *prometheus.CounterVec

	// Tool metrics
	ToolExecutionsTotal   *prometheus.CounterVec
	ToolExecutionDuration *prometheus.HistogramVec

	// Provider metrics
	ProviderProbesTotal *prometheus.CounterVec
	ModelCallsTotal     *prometheus.CounterVec

	// Escalation metrics
	EscalationsCreatedTotal *prometheus.CounterVec
	EscalationsPending      prometheus.Gauge

	// Channel metrics
	ChannelDeliveriesTotal *prometheus.CounterVec
}

// NewMetrics creates and registers all metrics
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,

		// Turn metrics
		TurnsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "turns_total",
				Help: "Total number of conversation turns processed",
			},
			[]string{"channel", "status"},
		),
		TurnDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "turn_duration_seconds",
				Help:    "Duration of conversation turns in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"channel"},
		),
		TurnErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "turn_errors_total",
				Help: "Total number of turns that ended in an apology",
			},
			[]string{"channel"},
		),
		ShortCircuitTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "middleware_short_circuits_total",
				Help: "Total number of turns short-circuited before the model",
			},
			[]string{"stage"},
		),

		// Tool metrics
		ToolExecutionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tool_executions_total",
				Help: "Total number of tool executions",
			},
			[]string{"tool_name", "status"},
		),
		ToolExecutionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tool_execution_duration_seconds",
				Help:    "Duration of tool executions in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"tool_name"},
		),

		// Provider metrics
		ProviderProbesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "provider_probes_total",
				Help: "Total number of provider health probes",
			},
			[]string{"provider", "status"},
		),
		ModelCallsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "model_calls_total",
				Help: "Total number of model invocations",
			},
			[]string{"provider", "status"},
		),

		// Escalation metrics
		EscalationsCreatedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "escalations_created_total",
				Help: "Total number of escalations created",
			},
			[]string{"priority", "reason"},
		),
		EscalationsPending: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "escalations_pending",
				Help: "Number of escalations awaiting assignment",
			},
		),

		// Channel metrics
		ChannelDeliveriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "channel_deliveries_total",
				Help: "Total number of replies delivered per channel",
			},
			[]string{"channel"},
		),
	}

	m.registerMetrics()

	return m
}

// registerMetrics registers all metrics with the registry
func (m *Metrics) registerMetrics() {
	m.registry.MustRegister(m.TurnsTotal)
	m.registry.MustRegister(m.TurnDuration)
	m.registry.MustRegister(m.TurnErrorsTotal)
	m.registry.MustRegister(m.ShortCircuitTotal)

	m.registry.MustRegister(m.ToolExecutionsTotal)
	m.registry.MustRegister(m.ToolExecutionDuration)

	m.registry.MustRegister(m.ProviderProbesTotal)
	m.registry.MustRegister(m.ModelCallsTotal)

	m.registry.MustRegister(m.EscalationsCreatedTotal)
	m.registry.MustRegister(m.EscalationsPending)

	m.registry.MustRegister(m.ChannelDeliveriesTotal)
}

// Handler returns an HTTP handler for the metrics endpoint
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// Registry returns the Prometheus registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
