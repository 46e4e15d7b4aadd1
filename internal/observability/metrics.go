package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "calassist"

// Metrics groups all Prometheus instruments used by the assistant.
type Metrics struct {
	GatewayCalls    *prometheus.CounterVec
	GatewayLatency  *prometheus.HistogramVec
	DispatcherTurns *prometheus.CounterVec
	Confirmations   *prometheus.CounterVec
	Connections     prometheus.Gauge
}

// NewMetrics registers the instruments on reg. Pass a fresh registry in
// tests to avoid duplicate registration.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		GatewayCalls: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gateway_calls_total",
			Help:      "Scheduling API calls by operation and outcome.",
		}, []string{"operation", "outcome"}),
		GatewayLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "gateway_latency_ms",
			Help:      "Scheduling API latency in milliseconds.",
			Buckets:   []float64{50, 100, 250, 500, 1000, 2500, 5000, 10000},
		}, []string{"operation"}),
		DispatcherTurns: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatcher_turns_total",
			Help:      "Conversation turns by the state they ended in.",
		}, []string{"state"}),
		Confirmations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "confirmations_total",
			Help:      "Confirmation replies by decision.",
		}, []string{"decision"}),
		Connections: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ws_connections",
			Help:      "Open websocket chat connections.",
		}),
	}
}

// ObserveGatewayCall records one upstream request.
func (m *Metrics) ObserveGatewayCall(op, outcome string, d time.Duration) {
	m.GatewayCalls.WithLabelValues(op, outcome).Inc()
	m.GatewayLatency.WithLabelValues(op).Observe(float64(d.Milliseconds()))
}

// ObserveTurn records the state a turn ended in.
func (m *Metrics) ObserveTurn(state string) {
	m.DispatcherTurns.WithLabelValues(state).Inc()
}

// ObserveConfirmation records how a confirmation reply was read.
func (m *Metrics) ObserveConfirmation(decision string) {
	m.Confirmations.WithLabelValues(decision).Inc()
}

// Handler exposes the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
