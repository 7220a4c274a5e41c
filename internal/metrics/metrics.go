// Package metrics exposes Prometheus instrumentation for the audio pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the voice pipeline
type Metrics struct {
	// Router metrics
	MessagesRouted    *prometheus.CounterVec
	MessagesDuplicate prometheus.Counter
	QueueDepth        prometheus.Gauge

	// Pipeline metrics
	ChunksProcessed prometheus.Counter
	ChunksBuffered  prometheus.Gauge
	DecodeErrors    prometheus.Counter
	ActiveSessions  prometheus.Gauge
	SessionsClosed  prometheus.Counter

	// Playback metrics
	ChunksPlayed    prometheus.Counter
	ChunksCancelled prometheus.Counter
	PlaybackErrors  prometheus.Counter
	ChunkDuration   prometheus.Histogram
}

// New creates and registers all Prometheus metrics on the default registry.
func New() *Metrics {
	return &Metrics{
		MessagesRouted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "swara_messages_routed_total",
			Help: "Total number of inbound messages routed, by type",
		}, []string{"type"}),
		MessagesDuplicate: promauto.NewCounter(prometheus.CounterOpts{
			Name: "swara_messages_duplicate_total",
			Help: "Total number of duplicate message deliveries discarded",
		}),
		QueueDepth: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "swara_router_queue_depth",
			Help: "Current number of messages waiting in the router queue",
		}),

		ChunksProcessed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "swara_chunks_processed_total",
			Help: "Total number of audio chunks processed by the pipeline",
		}),
		ChunksBuffered: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "swara_chunks_buffered",
			Help: "Current number of out-of-order chunks held back for sequencing",
		}),
		DecodeErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "swara_decode_errors_total",
			Help: "Total number of audio payloads that failed to decode",
		}),
		ActiveSessions: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "swara_active_sessions",
			Help: "Current number of open message sessions",
		}),
		SessionsClosed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "swara_sessions_closed_total",
			Help: "Total number of message sessions closed",
		}),

		ChunksPlayed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "swara_chunks_played_total",
			Help: "Total number of audio chunks handed to the output device",
		}),
		ChunksCancelled: promauto.NewCounter(prometheus.CounterOpts{
			Name: "swara_chunks_cancelled_total",
			Help: "Total number of scheduled chunks cancelled before playback",
		}),
		PlaybackErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "swara_playback_errors_total",
			Help: "Total number of platform playback failures",
		}),
		ChunkDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "swara_chunk_duration_seconds",
			Help:    "Estimated playback duration of processed audio chunks",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 10), // 10ms to ~10s
		}),
	}
}
