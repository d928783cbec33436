package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects the signaling counters. A fresh registry per instance
// keeps tests isolated from the default registry.
type Metrics struct {
	registry *prometheus.Registry

	CallsInitiated   *prometheus.CounterVec
	CallsEnded       *prometheus.CounterVec
	ActiveCalls      prometheus.Gauge
	SignalsPosted    *prometheus.CounterVec
	SignalsDropped   *prometheus.CounterVec
	SignalsDelivered prometheus.Counter
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		CallsInitiated: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "voicerelay_calls_initiated_total",
			Help: "Call initiation attempts by outcome (accepted, busy, offline, already_in_call).",
		}, []string{"outcome"}),
		CallsEnded: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "voicerelay_calls_ended_total",
			Help: "Ended call sessions by end reason.",
		}, []string{"reason"}),
		ActiveCalls: factory.NewGauge(prometheus.GaugeOpts{
			Name: "voicerelay_active_calls",
			Help: "Call sessions currently in a non-ended state.",
		}),
		SignalsPosted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "voicerelay_signals_posted_total",
			Help: "Signaling messages accepted into a mailbox, by kind.",
		}, []string{"kind"}),
		SignalsDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "voicerelay_signals_dropped_total",
			Help: "Signaling messages dropped before delivery, by cause.",
		}, []string{"cause"}),
		SignalsDelivered: factory.NewCounter(prometheus.CounterOpts{
			Name: "voicerelay_signals_delivered_total",
			Help: "Signaling messages handed to a polling recipient.",
		}),
	}
}

// Handler serves this instance's registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
