package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTPMetrics records API request and authentication activity.
//
// A nil *HTTPMetrics is valid and records nothing, so construction can be
// unconditional at wiring time.
type HTTPMetrics struct {
	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	handshakes      *prometheus.CounterVec
	sessions        prometheus.Gauge
	popFailures     *prometheus.CounterVec
}

// NewHTTPMetrics creates the Prometheus-backed HTTP metrics instance.
//
// Returns nil if metrics are not enabled (InitRegistry not called).
func NewHTTPMetrics() *HTTPMetrics {
	if !IsEnabled() {
		return nil
	}

	reg := GetRegistry()

	return &HTTPMetrics{
		requests: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "excalibur_http_requests_total",
				Help: "Total number of HTTP requests by method and status code",
			},
			[]string{"method", "status"},
		),
		requestDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "excalibur_http_request_duration_seconds",
				Help:    "HTTP request latency by method",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method"},
		),
		handshakes: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "excalibur_srp_handshakes_total",
				Help: "Total number of SRP handshakes by outcome",
			},
			[]string{"outcome"}, // "success", "aborted", "error"
		),
		sessions: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "excalibur_live_sessions",
				Help: "Number of live login sessions",
			},
		),
		popFailures: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "excalibur_pop_failures_total",
				Help: "Total number of proof-of-possession rejections by reason",
			},
			[]string{"reason"}, // "missing", "malformed", "stale", "replayed", "bad_mac"
		),
	}
}

// RecordRequest records a completed HTTP request.
func (m *HTTPMetrics) RecordRequest(method, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(method, status).Inc()
	m.requestDuration.WithLabelValues(method).Observe(duration.Seconds())
}

// RecordHandshake records an SRP handshake outcome.
func (m *HTTPMetrics) RecordHandshake(outcome string) {
	if m == nil {
		return
	}
	m.handshakes.WithLabelValues(outcome).Inc()
}

// SetLiveSessions records the current session cache occupancy.
func (m *HTTPMetrics) SetLiveSessions(n int) {
	if m == nil {
		return
	}
	m.sessions.Set(float64(n))
}

// RecordPoPFailure records a rejected proof-of-possession header.
func (m *HTTPMetrics) RecordPoPFailure(reason string) {
	if m == nil {
		return
	}
	m.popFailures.WithLabelValues(reason).Inc()
}
