// Package metrics defines the Prometheus collectors of the alert relay and the
// handler that exposes them.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome label values.
const (
	OutcomeOK          = "ok"
	OutcomeEmpty       = "empty"
	OutcomeError       = "error"
	OutcomeUnavailable = "unavailable"
	OutcomePanic       = "panic"
	OutcomeSuccess     = "success"
	OutcomeStatus      = "bad_status"
	OutcomeUnconfig    = "unconfigured"
)

// Metrics groups every collector. A nil *Metrics records nothing.
type Metrics struct {
	Cycles         *prometheus.CounterVec
	Fetches        *prometheus.CounterVec
	Matches        prometheus.Counter
	WebhookSends   *prometheus.CounterVec
	WebhookLatency prometheus.Histogram
	LastDispatch   prometheus.Gauge
}

// New registers the collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Cycles: f.NewCounterVec(prometheus.CounterOpts{
			Name: "alertbot_cycles_total",
			Help: "Poll cycles by outcome",
		}, []string{"outcome"}),
		Fetches: f.NewCounterVec(prometheus.CounterOpts{
			Name: "alertbot_fetch_total",
			Help: "Alert feed requests by outcome",
		}, []string{"outcome"}),
		Matches: f.NewCounter(prometheus.CounterOpts{
			Name: "alertbot_matches_total",
			Help: "New locality matches selected for dispatch",
		}),
		WebhookSends: f.NewCounterVec(prometheus.CounterOpts{
			Name: "alertbot_webhook_send_total",
			Help: "Webhook send attempts by outcome",
		}, []string{"outcome"}),
		WebhookLatency: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "alertbot_webhook_send_duration_seconds",
			Help:    "Duration of webhook POST requests",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		LastDispatch: f.NewGauge(prometheus.GaugeOpts{
			Name: "alertbot_last_dispatch_timestamp_seconds",
			Help: "Unix time of the last dispatched alert",
		}),
	}
}

// NewProcessRegistry returns a registry preloaded with the Go and process
// collectors, for use by the binary.
func NewProcessRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Cycle counts one finished poll cycle by outcome.
func (m *Metrics) Cycle(outcome string) {
	if m == nil {
		return
	}
	m.Cycles.WithLabelValues(outcome).Inc()
}

// Fetch counts one endpoint attempt by outcome.
func (m *Metrics) Fetch(outcome string) {
	if m == nil {
		return
	}
	m.Fetches.WithLabelValues(outcome).Inc()
}

// Match counts a new matching alert selected for dispatch.
func (m *Metrics) Match() {
	if m == nil {
		return
	}
	m.Matches.Inc()
}

// Dispatched stamps the time of the last successful webhook delivery.
func (m *Metrics) Dispatched(at time.Time) {
	if m == nil {
		return
	}
	m.LastDispatch.Set(float64(at.Unix()))
}

// WebhookSend records one send attempt. elapsed is zero when no request was made.
func (m *Metrics) WebhookSend(outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.WebhookSends.WithLabelValues(outcome).Inc()
	if elapsed > 0 {
		m.WebhookLatency.Observe(elapsed.Seconds())
	}
}

// Handler serves the gathered metrics.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
