// Package metrics provides Prometheus metrics for observability.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "transcript_sync"

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	// Session metrics
	SessionsStarted prometheus.Counter
	SessionsLoaded  prometheus.Counter
	SessionDuration prometheus.Histogram

	// Segment metrics
	SegmentsApplied   *prometheus.CounterVec
	SegmentsRejected  prometheus.Counter
	ProtocolAnomalies *prometheus.CounterVec
	StaleEvents       prometheus.Counter

	// Reconcile metrics
	Reconciles        *prometheus.CounterVec
	AppendFallbacks   prometheus.Counter
	PendingSuperseded prometheus.Counter
	Resolutions       *prometheus.CounterVec

	// Playback metrics
	PlaybackEvaluations prometheus.Counter
	HighlightChanges    prometheus.Counter

	// Transport metrics
	WSClientsActive prometheus.Gauge
	WSEventsIn      *prometheus.CounterVec

	// Kafka publish metrics
	KafkaPublishTotal   *prometheus.CounterVec
	KafkaPublishErrors  *prometheus.CounterVec
	KafkaPublishLatency *prometheus.HistogramVec

	// Store metrics
	StoreOps    *prometheus.CounterVec
	StoreErrors *prometheus.CounterVec

	// Recording metrics
	AudioBytesReceived  prometheus.Counter
	AudioChunksReceived prometheus.Counter
	RecordingsFinalized prometheus.Counter
}

// DefaultMetrics is the global metrics instance.
var DefaultMetrics = NewMetrics()

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		SessionsStarted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_started_total",
			Help:      "Total number of transcription sessions started",
		}),
		SessionsLoaded: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_loaded_total",
			Help:      "Total number of stored sessions loaded",
		}),
		SessionDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "session_duration_seconds",
			Help:      "Duration of transcription sessions in seconds",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		}),

		SegmentsApplied: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "segments_applied_total",
			Help:      "Total number of segment patches applied to the word index",
		}, []string{"kind"}),
		SegmentsRejected: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "segments_rejected_total",
			Help:      "Total number of segment patches rejected by the immutability rule",
		}),
		ProtocolAnomalies: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "protocol_anomalies_total",
			Help:      "Total number of protocol anomalies detected",
		}, []string{"kind"}),
		StaleEvents: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stale_session_events_total",
			Help:      "Total number of events discarded for mismatched session IDs",
		}),

		Reconciles: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconciles_total",
			Help:      "Total number of document reconciliations by outcome",
		}, []string{"outcome"}),
		AppendFallbacks: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "append_fallbacks_total",
			Help:      "Total number of structural appends degraded to full replace",
		}),
		PendingSuperseded: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pending_updates_superseded_total",
			Help:      "Total number of pending updates superseded before resolution",
		}),
		Resolutions: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "resolutions_total",
			Help:      "Total number of pending-update resolutions by action",
		}, []string{"action"}),

		PlaybackEvaluations: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "playback_evaluations_total",
			Help:      "Total number of active-word evaluations",
		}),
		HighlightChanges: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "highlight_changes_total",
			Help:      "Total number of active-word identity changes",
		}),

		WSClientsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ws_clients_active",
			Help:      "Number of currently connected WebSocket clients",
		}),
		WSEventsIn: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_events_in_total",
			Help:      "Total number of inbound WebSocket events by type",
		}, []string{"type"}),

		KafkaPublishTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_total",
			Help:      "Total number of Kafka messages published",
		}, []string{"topic", "event_type"}),
		KafkaPublishErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_errors_total",
			Help:      "Total number of Kafka publish errors",
		}, []string{"topic", "event_type"}),
		KafkaPublishLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "kafka_publish_latency_seconds",
			Help:      "Kafka publish latency in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"topic"}),

		StoreOps: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_operations_total",
			Help:      "Total number of store operations",
		}, []string{"op"}),
		StoreErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_errors_total",
			Help:      "Total number of store operation errors",
		}, []string{"op"}),

		AudioBytesReceived: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_bytes_received_total",
			Help:      "Total audio bytes received",
		}),
		AudioChunksReceived: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_chunks_received_total",
			Help:      "Total audio chunks received",
		}),
		RecordingsFinalized: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recordings_finalized_total",
			Help:      "Total number of recordings finalized to disk",
		}),
	}
}

// RecordSessionStart records a new session being created.
func (m *Metrics) RecordSessionStart() {
	m.SessionsStarted.Inc()
}

// RecordSessionLoad records a stored session being reopened.
func (m *Metrics) RecordSessionLoad() {
	m.SessionsLoaded.Inc()
}

// RecordSessionEnd records a session finishing.
func (m *Metrics) RecordSessionEnd(durationSeconds float64) {
	m.SessionDuration.Observe(durationSeconds)
}

// RecordSegmentApplied records a segment patch applied to the index.
func (m *Metrics) RecordSegmentApplied(isFinal bool) {
	kind := "interim"
	if isFinal {
		kind = "final"
	}
	m.SegmentsApplied.WithLabelValues(kind).Inc()
}

// RecordSegmentRejected records a patch rejected by the immutability rule.
func (m *Metrics) RecordSegmentRejected() {
	m.SegmentsRejected.Inc()
}

// RecordProtocolAnomaly records an anomaly of the given kind.
func (m *Metrics) RecordProtocolAnomaly(kind string) {
	m.ProtocolAnomalies.WithLabelValues(kind).Inc()
}

// RecordStaleEvent records an event discarded for a mismatched session.
func (m *Metrics) RecordStaleEvent() {
	m.StaleEvents.Inc()
}

// RecordReconcile records a document reconciliation outcome.
func (m *Metrics) RecordReconcile(outcome string) {
	m.Reconciles.WithLabelValues(outcome).Inc()
}

// RecordAppendFallback records a structural append degraded to replace.
func (m *Metrics) RecordAppendFallback() {
	m.AppendFallbacks.Inc()
}

// RecordPendingSuperseded records a pending update replaced by a newer one.
func (m *Metrics) RecordPendingSuperseded() {
	m.PendingSuperseded.Inc()
}

// RecordResolution records a user resolution action.
func (m *Metrics) RecordResolution(action string) {
	m.Resolutions.WithLabelValues(action).Inc()
}

// RecordPlaybackEvaluation records one active-word evaluation.
func (m *Metrics) RecordPlaybackEvaluation() {
	m.PlaybackEvaluations.Inc()
}

// RecordHighlightChange records an active-word identity change.
func (m *Metrics) RecordHighlightChange() {
	m.HighlightChanges.Inc()
}

// SetWSClients records the current number of connected websocket clients.
func (m *Metrics) SetWSClients(n int) {
	m.WSClientsActive.Set(float64(n))
}

// RecordWSEvent records one inbound websocket event by type.
func (m *Metrics) RecordWSEvent(msgType string) {
	m.WSEventsIn.WithLabelValues(msgType).Inc()
}

// RecordKafkaPublish records a Kafka publish attempt.
func (m *Metrics) RecordKafkaPublish(topic, eventType string, err error, latencySeconds float64) {
	m.KafkaPublishTotal.WithLabelValues(topic, eventType).Inc()
	m.KafkaPublishLatency.WithLabelValues(topic).Observe(latencySeconds)
	if err != nil {
		m.KafkaPublishErrors.WithLabelValues(topic, eventType).Inc()
	}
}

// RecordStoreOp records a store operation and its error, if any.
func (m *Metrics) RecordStoreOp(op string, err error) {
	m.StoreOps.WithLabelValues(op).Inc()
	if err != nil {
		m.StoreErrors.WithLabelValues(op).Inc()
	}
}

// RecordAudioReceived records audio bytes and chunks received.
func (m *Metrics) RecordAudioReceived(bytes int) {
	m.AudioBytesReceived.Add(float64(bytes))
	m.AudioChunksReceived.Inc()
}

// RecordRecordingFinalized records a recording written to disk.
func (m *Metrics) RecordRecordingFinalized() {
	m.RecordingsFinalized.Inc()
}
