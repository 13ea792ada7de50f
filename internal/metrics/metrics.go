// Package metrics exposes service counters in the Prometheus text format.
package metrics

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all application metrics
type Metrics struct {
	// Frame processing counters
	FramesRead         atomic.Uint64
	FramesProcessed    atomic.Uint64
	CorruptFrames      atomic.Uint64
	InterpolatedFrames atomic.Uint64
	Detections         atomic.Uint64

	// Rally counters
	RalliesFound     atomic.Uint64
	RalliesDiscarded atomic.Uint64
	MistakesDetected atomic.Uint64

	// Session lifecycle
	SessionsStarted   atomic.Uint64
	SessionsCompleted atomic.Uint64
	SessionsFailed    atomic.Uint64
	SessionsCanceled  atomic.Uint64
	ActiveSessions    atomic.Int64

	// Progress events dropped for slow listeners
	ProgressDropped atomic.Uint64

	// Latency tracking
	ExtractLatencyUs atomic.Uint64 // Last frame extraction latency in microseconds

	// Prometheus collectors
	registry *prometheus.Registry
}

// New creates a new Metrics instance with Prometheus collectors
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
	}

	m.registerPrometheusMetrics()

	return m
}

func (m *Metrics) counter(name, help string, v *atomic.Uint64) {
	m.registry.MustRegister(prometheus.NewCounterFunc(
		prometheus.CounterOpts{Name: name, Help: help},
		func() float64 { return float64(v.Load()) },
	))
}

// registerPrometheusMetrics registers all metrics with Prometheus
func (m *Metrics) registerPrometheusMetrics() {
	// Frame processing metrics
	m.counter("shuttlescope_frames_read_total", "Total frames decoded from video sources", &m.FramesRead)
	m.counter("shuttlescope_frames_processed_total", "Total frames run through tracking and segmentation", &m.FramesProcessed)
	m.counter("shuttlescope_corrupt_frames_total", "Total frames that failed to decode", &m.CorruptFrames)
	m.counter("shuttlescope_interpolated_frames_total", "Total trajectory points without a detection", &m.InterpolatedFrames)
	m.counter("shuttlescope_detections_total", "Total shuttlecock candidates extracted", &m.Detections)

	// Rally metrics
	m.counter("shuttlescope_rallies_found_total", "Total rallies finalized", &m.RalliesFound)
	m.counter("shuttlescope_rallies_discarded_total", "Total rally candidates discarded as too short", &m.RalliesDiscarded)
	m.counter("shuttlescope_mistakes_detected_total", "Total mistakes attributed", &m.MistakesDetected)

	// Session metrics
	m.counter("shuttlescope_sessions_started_total", "Total analysis sessions started", &m.SessionsStarted)
	m.counter("shuttlescope_sessions_completed_total", "Total analysis sessions completed", &m.SessionsCompleted)
	m.counter("shuttlescope_sessions_failed_total", "Total analysis sessions failed", &m.SessionsFailed)
	m.counter("shuttlescope_sessions_canceled_total", "Total analysis sessions canceled", &m.SessionsCanceled)

	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "shuttlescope_active_sessions",
			Help: "Analysis sessions currently running",
		},
		func() float64 { return float64(m.ActiveSessions.Load()) },
	))

	m.counter("shuttlescope_progress_dropped_total", "Total progress events dropped for slow listeners", &m.ProgressDropped)

	// Latency metrics
	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "shuttlescope_extract_latency_us",
			Help: "Latest per-frame candidate extraction latency in microseconds",
		},
		func() float64 { return float64(m.ExtractLatencyUs.Load()) },
	))
}

// UpdateExtractLatency records the latest extraction latency
func (m *Metrics) UpdateExtractLatency(d time.Duration) {
	m.ExtractLatencyUs.Store(uint64(d.Microseconds()))
}

// Handler returns the Prometheus HTTP handler
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
