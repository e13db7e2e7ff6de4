// Package metrics provides Prometheus metrics for the EV monitor.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects the monitor's Prometheus metrics on a private registry.
// All helper methods are safe to call on a nil *Metrics.
type Metrics struct {
	registry *prometheus.Registry

	AlertsTotal       *prometheus.CounterVec
	ScrapeRequests    *prometheus.CounterVec
	BrokerQueueDepth  prometheus.Gauge
	CircuitOpen       prometheus.Gauge
	ActiveEvents      prometheus.Gauge
	RefreshCycle      prometheus.Histogram
	BroadcastMessages *prometheus.CounterVec
	Subscribers       prometheus.Gauge
	DispatchCycles    *prometheus.CounterVec
}

// New creates the collectors and registers them
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		AlertsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ev_alerts_total",
				Help: "Alerts received by ingress, by outcome",
			},
			[]string{"outcome"},
		),
		ScrapeRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ev_scrape_requests_total",
				Help: "Target book scrape requests, by result",
			},
			[]string{"result"},
		),
		BrokerQueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ev_broker_queue_depth",
			Help: "Scrape requests waiting in the broker queue",
		}),
		CircuitOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ev_circuit_open",
			Help: "1 while the broker circuit breaker is open",
		}),
		ActiveEvents: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ev_active_events",
			Help: "Events currently tracked in the store",
		}),
		RefreshCycle: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "ev_refresh_cycle_seconds",
			Help:    "Duration of one background refresh cycle",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~40s
		}),
		BroadcastMessages: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ev_broadcast_messages_total",
				Help: "Messages broadcast to subscribers, by type",
			},
			[]string{"type"},
		),
		Subscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ev_subscribers",
			Help: "Connected subscribers",
		}),
		DispatchCycles: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ev_dispatch_cycles_total",
				Help: "Per-event dispatch cycles, by result",
			},
			[]string{"result"},
		),
	}

	m.registry.MustRegister(
		m.AlertsTotal,
		m.ScrapeRequests,
		m.BrokerQueueDepth,
		m.CircuitOpen,
		m.ActiveEvents,
		m.RefreshCycle,
		m.BroadcastMessages,
		m.Subscribers,
		m.DispatchCycles,
	)

	return m
}

// Registry returns the prometheus registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// --- Helper methods for recording metrics ---

// RecordAlert counts an ingress decision
func (m *Metrics) RecordAlert(outcome string) {
	if m == nil {
		return
	}
	m.AlertsTotal.WithLabelValues(outcome).Inc()
}

// RecordScrape counts a finished broker request
func (m *Metrics) RecordScrape(result string) {
	if m == nil {
		return
	}
	m.ScrapeRequests.WithLabelValues(result).Inc()
}

// SetQueueDepth reports the broker queue length
func (m *Metrics) SetQueueDepth(n int) {
	if m == nil {
		return
	}
	m.BrokerQueueDepth.Set(float64(n))
}

// SetCircuitOpen reports the breaker state
func (m *Metrics) SetCircuitOpen(open bool) {
	if m == nil {
		return
	}
	if open {
		m.CircuitOpen.Set(1)
		return
	}
	m.CircuitOpen.Set(0)
}

// SetActiveEvents reports the store size
func (m *Metrics) SetActiveEvents(n int) {
	if m == nil {
		return
	}
	m.ActiveEvents.Set(float64(n))
}

// ObserveRefreshCycle records a refresh cycle duration
func (m *Metrics) ObserveRefreshCycle(seconds float64) {
	if m == nil {
		return
	}
	m.RefreshCycle.Observe(seconds)
}

// RecordBroadcast counts a broadcast message
func (m *Metrics) RecordBroadcast(msgType string) {
	if m == nil {
		return
	}
	m.BroadcastMessages.WithLabelValues(msgType).Inc()
}

// SetSubscribers reports the subscriber count
func (m *Metrics) SetSubscribers(n int) {
	if m == nil {
		return
	}
	m.Subscribers.Set(float64(n))
}

// RecordDispatch counts a dispatcher cycle
func (m *Metrics) RecordDispatch(result string) {
	if m == nil {
		return
	}
	m.DispatchCycles.WithLabelValues(result).Inc()
}
