// Package metrics exposes Prometheus collectors for duet sessions.
//
// A nil *Metrics is valid and records nothing, so callers can pass one
// through unconditionally.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// DefaultNamespace prefixes every metric name.
const DefaultNamespace = "duet"

// Metrics holds all Prometheus metrics for a duet process.
type Metrics struct {
	registry *prometheus.Registry

	// Session metrics
	SessionsActive  prometheus.Gauge
	SessionsTotal   *prometheus.CounterVec
	SessionDuration prometheus.Histogram

	// Turn metrics
	TurnsTotal   *prometheus.CounterVec
	TurnDuration *prometheus.HistogramVec

	// Wire metrics
	FramesTotal     *prometheus.CounterVec
	AudioBytesTotal *prometheus.CounterVec
	ErrorsTotal     *prometheus.CounterVec
}

// New creates a Metrics instance with all collectors registered on a
// private registry.
func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = DefaultNamespace
	}

	registry := prometheus.NewRegistry()

	sessionsActive := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of sessions currently running",
		},
	)

	sessionsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_total",
			Help:      "Total number of finished sessions",
		},
		[]string{"end_reason"},
	)

	sessionDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "session_duration_seconds",
			Help:      "Session duration in seconds",
			Buckets:   []float64{10, 30, 60, 120, 300, 600, 1200, 3600},
		},
	)

	turnsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Total number of turns by outcome",
		},
		[]string{"role", "outcome"},
	)

	turnDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "turn_duration_seconds",
			Help:      "Time from response request to response.done",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
		},
		[]string{"role"},
	)

	framesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_received_total",
			Help:      "Total inbound realtime frames by type",
		},
		[]string{"role", "type"},
	)

	audioBytesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_bytes_total",
			Help:      "Total PCM bytes by direction",
		},
		[]string{"role", "direction"},
	)

	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Total errors by kind",
		},
		[]string{"role", "kind"},
	)

	registry.MustRegister(
		sessionsActive,
		sessionsTotal,
		sessionDuration,
		turnsTotal,
		turnDuration,
		framesTotal,
		audioBytesTotal,
		errorsTotal,
	)

	return &Metrics{
		registry:        registry,
		SessionsActive:  sessionsActive,
		SessionsTotal:   sessionsTotal,
		SessionDuration: sessionDuration,
		TurnsTotal:      turnsTotal,
		TurnDuration:    turnDuration,
		FramesTotal:     framesTotal,
		AudioBytesTotal: audioBytesTotal,
		ErrorsTotal:     errorsTotal,
	}
}

// Registry returns the private registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordSessionStart records a session starting.
func (m *Metrics) RecordSessionStart() {
	if m == nil {
		return
	}
	m.SessionsActive.Inc()
}

// RecordSessionEnd records a session ending.
func (m *Metrics) RecordSessionEnd(endReason string, duration time.Duration) {
	if m == nil {
		return
	}
	m.SessionsActive.Dec()
	m.SessionsTotal.WithLabelValues(endReason).Inc()
	m.SessionDuration.Observe(duration.Seconds())
}

// RecordTurn records a finished turn. Outcome is "ok" or a failure reason.
func (m *Metrics) RecordTurn(role, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.TurnsTotal.WithLabelValues(role, outcome).Inc()
	if outcome == "ok" {
		m.TurnDuration.WithLabelValues(role).Observe(duration.Seconds())
	}
}

// RecordFrame records an inbound frame.
func (m *Metrics) RecordFrame(role, frameType string) {
	if m == nil {
		return
	}
	m.FramesTotal.WithLabelValues(role, frameType).Inc()
}

// RecordAudio records PCM bytes. Direction is "in" (sent to the model) or
// "out" (received from it).
func (m *Metrics) RecordAudio(role, direction string, bytes int) {
	if m == nil || bytes <= 0 {
		return
	}
	m.AudioBytesTotal.WithLabelValues(role, direction).Add(float64(bytes))
}

// RecordError records an error of the given kind.
func (m *Metrics) RecordError(role, kind string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(role, kind).Inc()
}
