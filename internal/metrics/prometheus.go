package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the caption session service.
// A nil *Metrics is valid; all Record helpers become no-ops, which keeps
// metrics optional in tests.
type Metrics struct {
	// WebSocket connection metrics
	ConnectionsOpened prometheus.Counter
	ConnectionsClosed prometheus.Counter
	ConnectionsActive prometheus.Gauge
	FramesReceived    prometheus.Counter
	DecodeErrors      prometheus.Counter

	// Session metrics
	SessionsCreated   prometheus.Counter
	SessionsDestroyed prometheus.Counter
	SessionsActive    prometheus.Gauge
	SessionDuration   prometheus.Histogram
	HeartbeatTimeouts prometheus.Counter

	// Envelope delivery metrics
	EnvelopesSent    prometheus.Counter
	FlowControlDrops prometheus.Counter
	ReplayPruned     prometheus.Counter
	ProtocolErrors   *prometheus.CounterVec

	// Resume metrics
	ResumeAttempts  prometheus.Counter
	ResumeSuccesses prometheus.Counter
	ResumeRejected  *prometheus.CounterVec
	SnapshotSize    prometheus.Histogram
	ReplayBatchSize prometheus.Histogram

	// Aggregator metrics
	PartialEvents   prometheus.Counter
	FinalEvents     prometheus.Counter
	PartialsEvicted prometheus.Counter
	FinalsEvicted   prometheus.Counter
	IngestDropped   prometheus.Counter

	// Translation metrics
	TranslationRequests prometheus.Counter
	TranslationFailures prometheus.Counter
	TranslationDuration prometheus.Histogram

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPErrors          *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics() *Metrics {
	return &Metrics{
		// WebSocket connection metrics
		ConnectionsOpened: promauto.NewCounter(prometheus.CounterOpts{
			Name: "llx_ws_connections_opened_total",
			Help: "Total number of WebSocket connections accepted",
		}),
		ConnectionsClosed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "llx_ws_connections_closed_total",
			Help: "Total number of WebSocket connections closed",
		}),
		ConnectionsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "llx_ws_connections_active",
			Help: "Current number of live WebSocket connections",
		}),
		FramesReceived: promauto.NewCounter(prometheus.CounterOpts{
			Name: "llx_ws_frames_received_total",
			Help: "Total number of WebSocket text frames received",
		}),
		DecodeErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "llx_ws_decode_errors_total",
			Help: "Total number of inbound frames that failed envelope decoding",
		}),

		// Session metrics
		SessionsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "llx_sessions_created_total",
			Help: "Total number of sessions created",
		}),
		SessionsDestroyed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "llx_sessions_destroyed_total",
			Help: "Total number of sessions destroyed",
		}),
		SessionsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "llx_sessions_active",
			Help: "Current number of active sessions",
		}),
		SessionDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "llx_session_duration_seconds",
			Help:    "Duration of sessions in seconds",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12), // 1s to ~68 minutes
		}),
		HeartbeatTimeouts: promauto.NewCounter(prometheus.CounterOpts{
			Name: "llx_heartbeat_timeouts_total",
			Help: "Total number of sessions closed by the heartbeat watchdog",
		}),

		// Envelope delivery metrics
		EnvelopesSent: promauto.NewCounter(prometheus.CounterOpts{
			Name: "llx_envelopes_sent_total",
			Help: "Total number of domain-event envelopes delivered",
		}),
		FlowControlDrops: promauto.NewCounter(prometheus.CounterOpts{
			Name: "llx_flow_control_drops_total",
			Help: "Total number of domain events dropped by the flow-control window",
		}),
		ReplayPruned: promauto.NewCounter(prometheus.CounterOpts{
			Name: "llx_replay_pruned_total",
			Help: "Total number of replay buffer entries pruned by age or capacity",
		}),
		ProtocolErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "llx_protocol_errors_total",
			Help: "Total number of protocol errors reported to clients",
		}, []string{"code"}),

		// Resume metrics
		ResumeAttempts: promauto.NewCounter(prometheus.CounterOpts{
			Name: "llx_resume_attempts_total",
			Help: "Total number of resume attempts",
		}),
		ResumeSuccesses: promauto.NewCounter(prometheus.CounterOpts{
			Name: "llx_resume_successes_total",
			Help: "Total number of successful resumes",
		}),
		ResumeRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "llx_resume_rejected_total",
			Help: "Total number of rejected resume attempts",
		}, []string{"reason"}),
		SnapshotSize: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "llx_snapshot_size_bytes",
			Help:    "Size of reconnect snapshots in bytes",
			Buckets: prometheus.ExponentialBuckets(256, 2, 12), // 256B to ~512KB
		}),
		ReplayBatchSize: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "llx_replay_batch_envelopes",
			Help:    "Number of envelopes replayed per resume",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		}),

		// Aggregator metrics
		PartialEvents: promauto.NewCounter(prometheus.CounterOpts{
			Name: "llx_partial_events_total",
			Help: "Total number of partial recognition events aggregated",
		}),
		FinalEvents: promauto.NewCounter(prometheus.CounterOpts{
			Name: "llx_final_events_total",
			Help: "Total number of final recognition events aggregated",
		}),
		PartialsEvicted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "llx_partials_evicted_total",
			Help: "Total number of live partials evicted by the capacity bound",
		}),
		FinalsEvicted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "llx_finals_evicted_total",
			Help: "Total number of finals evicted from the recent history",
		}),
		IngestDropped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "llx_ingest_dropped_total",
			Help: "Total number of raw engine events dropped by a full ingest queue",
		}),

		// Translation metrics
		TranslationRequests: promauto.NewCounter(prometheus.CounterOpts{
			Name: "llx_translation_requests_total",
			Help: "Total number of translation requests sent",
		}),
		TranslationFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "llx_translation_failures_total",
			Help: "Total number of failed translation requests",
		}),
		TranslationDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "llx_translation_duration_seconds",
			Help:    "Duration of translation requests",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms to ~51s
		}),

		// HTTP API metrics
		HTTPRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "llx_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status_code"}),
		HTTPRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "llx_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
		HTTPErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "llx_http_errors_total",
			Help: "Total number of HTTP errors",
		}, []string{"method", "endpoint", "error_type"}),
	}
}

// RecordConnectionOpened records a newly accepted WebSocket connection
func (m *Metrics) RecordConnectionOpened() {
	if m == nil {
		return
	}
	m.ConnectionsOpened.Inc()
	m.ConnectionsActive.Inc()
}

// RecordConnectionClosed records a closed WebSocket connection
func (m *Metrics) RecordConnectionClosed() {
	if m == nil {
		return
	}
	m.ConnectionsClosed.Inc()
	m.ConnectionsActive.Dec()
}

// RecordFrameReceived increments the received frame counter
func (m *Metrics) RecordFrameReceived() {
	if m == nil {
		return
	}
	m.FramesReceived.Inc()
}

// RecordDecodeError increments the inbound decode error counter
func (m *Metrics) RecordDecodeError() {
	if m == nil {
		return
	}
	m.DecodeErrors.Inc()
}

// RecordSessionCreated records a created session
func (m *Metrics) RecordSessionCreated() {
	if m == nil {
		return
	}
	m.SessionsCreated.Inc()
	m.SessionsActive.Inc()
}

// RecordSessionDestroyed records a destroyed session and its lifetime
func (m *Metrics) RecordSessionDestroyed(durationSeconds float64) {
	if m == nil {
		return
	}
	m.SessionsDestroyed.Inc()
	m.SessionsActive.Dec()
	m.SessionDuration.Observe(durationSeconds)
}

// RecordHeartbeatTimeout increments the watchdog timeout counter
func (m *Metrics) RecordHeartbeatTimeout() {
	if m == nil {
		return
	}
	m.HeartbeatTimeouts.Inc()
}

// RecordEnvelopeSent increments the delivered envelope counter
func (m *Metrics) RecordEnvelopeSent() {
	if m == nil {
		return
	}
	m.EnvelopesSent.Inc()
}

// RecordFlowControlDrop increments the flow-control drop counter
func (m *Metrics) RecordFlowControlDrop() {
	if m == nil {
		return
	}
	m.FlowControlDrops.Inc()
}

// RecordReplayPruned adds pruned replay entries to the counter
func (m *Metrics) RecordReplayPruned(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.ReplayPruned.Add(float64(n))
}

// RecordProtocolError records a protocol error by code
func (m *Metrics) RecordProtocolError(code string) {
	if m == nil {
		return
	}
	m.ProtocolErrors.WithLabelValues(code).Inc()
}

// RecordResumeAttempt increments the resume attempt counter
func (m *Metrics) RecordResumeAttempt() {
	if m == nil {
		return
	}
	m.ResumeAttempts.Inc()
}

// RecordResumeSuccess records a successful resume with its snapshot and
// replay batch sizes
func (m *Metrics) RecordResumeSuccess(snapshotBytes, replayed int) {
	if m == nil {
		return
	}
	m.ResumeSuccesses.Inc()
	m.SnapshotSize.Observe(float64(snapshotBytes))
	m.ReplayBatchSize.Observe(float64(replayed))
}

// RecordResumeRejected records a rejected resume by reason
func (m *Metrics) RecordResumeRejected(reason string) {
	if m == nil {
		return
	}
	m.ResumeRejected.WithLabelValues(reason).Inc()
}

// RecordAggregatorEvent records an aggregated partial or final event
func (m *Metrics) RecordAggregatorEvent(final bool) {
	if m == nil {
		return
	}
	if final {
		m.FinalEvents.Inc()
	} else {
		m.PartialEvents.Inc()
	}
}

// RecordPartialEvicted increments the live-partial eviction counter
func (m *Metrics) RecordPartialEvicted() {
	if m == nil {
		return
	}
	m.PartialsEvicted.Inc()
}

// RecordFinalEvicted increments the final-history eviction counter
func (m *Metrics) RecordFinalEvicted() {
	if m == nil {
		return
	}
	m.FinalsEvicted.Inc()
}

// RecordIngestDropped increments the ingest queue drop counter
func (m *Metrics) RecordIngestDropped() {
	if m == nil {
		return
	}
	m.IngestDropped.Inc()
}

// RecordTranslation records a translation request outcome
func (m *Metrics) RecordTranslation(success bool, durationSeconds float64) {
	if m == nil {
		return
	}
	m.TranslationRequests.Inc()
	if !success {
		m.TranslationFailures.Inc()
	}
	m.TranslationDuration.Observe(durationSeconds)
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(durationSeconds)
}

// RecordHTTPError records an HTTP error
func (m *Metrics) RecordHTTPError(method, endpoint, errorType string) {
	if m == nil {
		return
	}
	m.HTTPErrors.WithLabelValues(method, endpoint, errorType).Inc()
}
