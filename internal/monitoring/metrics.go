// Package monitoring exposes Prometheus metrics for the client.
package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics. A nil *Metrics is valid; every
// recording method is a no-op on it, so components can run uninstrumented.
type Metrics struct {
	// Connection metrics
	ConnectionState   prometheus.Gauge
	ConnectAttempts   prometheus.Counter
	ReconnectsTotal   prometheus.Counter
	ConnectionsFailed prometheus.Counter

	// Frame metrics
	Frames *prometheus.CounterVec

	// Stream metrics
	StreamsCompleted prometheus.Counter
	StreamsDiscarded prometheus.Counter

	// History metrics
	HistoryMerges      prometheus.Counter
	HistoryFetchErrors prometheus.Counter

	// Debug server metrics
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec

	// System metrics
	Uptime    prometheus.Gauge
	startTime time.Time
}

// NewMetrics creates a new metrics collector registered on the default
// Prometheus registry.
func NewMetrics() *Metrics {
	return &Metrics{
		startTime: time.Now(),

		ConnectionState: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "chatlink_connection_state",
			Help: "Current connection state (0=disconnected 1=connecting 2=connected 3=closing 4=errored)",
		}),
		ConnectAttempts: promauto.NewCounter(prometheus.CounterOpts{
			Name: "chatlink_connect_attempts_total",
			Help: "Total number of connection attempts",
		}),
		ReconnectsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "chatlink_reconnects_total",
			Help: "Total number of automatic reconnect attempts",
		}),
		ConnectionsFailed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "chatlink_connections_failed_total",
			Help: "Total number of connections that exhausted their retry budget",
		}),

		Frames: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chatlink_frames_total",
				Help: "Total number of protocol frames by direction and type",
			},
			[]string{"direction", "type"},
		),

		StreamsCompleted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "chatlink_streams_completed_total",
			Help: "Total number of streaming replies finalized",
		}),
		StreamsDiscarded: promauto.NewCounter(prometheus.CounterOpts{
			Name: "chatlink_streams_discarded_total",
			Help: "Total number of streaming buffers discarded before finalization",
		}),

		HistoryMerges: promauto.NewCounter(prometheus.CounterOpts{
			Name: "chatlink_history_merges_total",
			Help: "Total number of local/server history merges performed",
		}),
		HistoryFetchErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "chatlink_history_fetch_errors_total",
			Help: "Total number of failed history fetches",
		}),

		HTTPRequests: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chatlink_http_requests_total",
				Help: "Total number of debug server requests by path and status",
			},
			[]string{"path", "status"},
		),
		HTTPDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "chatlink_http_request_duration_seconds",
				Help:    "Debug server request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"path"},
		),

		Uptime: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "chatlink_uptime_seconds",
			Help: "Client uptime in seconds",
		}),
	}
}

// SetConnectionState records the connection state as a numeric gauge.
func (m *Metrics) SetConnectionState(state int) {
	if m == nil {
		return
	}
	m.ConnectionState.Set(float64(state))
	m.Uptime.Set(time.Since(m.startTime).Seconds())
}

// IncConnectAttempts increments the connection attempt counter.
func (m *Metrics) IncConnectAttempts() {
	if m == nil {
		return
	}
	m.ConnectAttempts.Inc()
}

// IncReconnects increments the automatic reconnect counter.
func (m *Metrics) IncReconnects() {
	if m == nil {
		return
	}
	m.ReconnectsTotal.Inc()
}

// IncConnectionsFailed increments the exhausted-retry counter.
func (m *Metrics) IncConnectionsFailed() {
	if m == nil {
		return
	}
	m.ConnectionsFailed.Inc()
}

// RecordFrame counts one frame. Direction is "in" or "out".
func (m *Metrics) RecordFrame(direction, frameType string) {
	if m == nil {
		return
	}
	m.Frames.WithLabelValues(direction, frameType).Inc()
}

// IncStreamsCompleted increments the finalized-stream counter.
func (m *Metrics) IncStreamsCompleted() {
	if m == nil {
		return
	}
	m.StreamsCompleted.Inc()
}

// IncStreamsDiscarded increments the discarded-stream counter.
func (m *Metrics) IncStreamsDiscarded() {
	if m == nil {
		return
	}
	m.StreamsDiscarded.Inc()
}

// IncHistoryMerges increments the merge counter.
func (m *Metrics) IncHistoryMerges() {
	if m == nil {
		return
	}
	m.HistoryMerges.Inc()
}

// IncHistoryFetchErrors increments the failed-fetch counter.
func (m *Metrics) IncHistoryFetchErrors() {
	if m == nil {
		return
	}
	m.HistoryFetchErrors.Inc()
}
