// Package metrics provides Prometheus instrumentation for the agent.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the agent's Prometheus collectors on a private
// registry so multiple instances can coexist in tests.
type Metrics struct {
	registry *prometheus.Registry

	EventsTotal    *prometheus.CounterVec
	FiringsTotal   *prometheus.CounterVec
	ProbeErrors    *prometheus.CounterVec
	BufferRetained prometheus.GaugeFunc
	BufferEvicted  prometheus.CounterFunc
}

// BufferStats supplies the buffer gauges with live values.
type BufferStats interface {
	Len() int
}

// New creates the agent metrics, registering the buffer gauges against
// the given stats source.
func New(buf BufferStats, evicted func() uint64) *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,
		EventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hostmend_events_total",
			Help: "Events accepted by the engine, by type.",
		}, []string{"type"}),
		FiringsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hostmend_pattern_firings_total",
			Help: "Pattern firing attempts, by pattern and result.",
		}, []string{"pattern", "result"}),
		ProbeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hostmend_probe_errors_total",
			Help: "Probe-level check failures, by probe.",
		}, []string{"probe"}),
		BufferRetained: prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "hostmend_buffer_retained",
			Help: "Events currently retained in the buffer.",
		}, func() float64 { return float64(buf.Len()) }),
		BufferEvicted: prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "hostmend_buffer_evicted_total",
			Help: "Events evicted from the buffer.",
		}, func() float64 { return float64(evicted()) }),
	}

	reg.MustRegister(
		m.EventsTotal,
		m.FiringsTotal,
		m.ProbeErrors,
		m.BufferRetained,
		m.BufferEvicted,
	)
	return m
}

// Handler returns the Prometheus exposition handler.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveEvent records an accepted event.
func (m *Metrics) ObserveEvent(eventType string) {
	m.EventsTotal.WithLabelValues(eventType).Inc()
}

// ObserveFiring records a pattern firing attempt.
func (m *Metrics) ObserveFiring(pattern string, failed bool) {
	result := "ok"
	if failed {
		result = "error"
	}
	m.FiringsTotal.WithLabelValues(pattern, result).Inc()
}

// ObserveProbeError records a probe check failure.
func (m *Metrics) ObserveProbeError(probe string) {
	m.ProbeErrors.WithLabelValues(probe).Inc()
}
