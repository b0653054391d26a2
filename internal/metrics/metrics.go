// Package metrics holds the Prometheus collectors shared by the binaries.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "netsankey"

// Drop reasons reported by RecordsDropped.
const (
	ReasonQueueFull   = "queue_full"
	ReasonWriteFailed = "write_failed"
	ReasonStopped     = "stopped"
)

// Metrics groups the collectors of the capture, ingest and query paths.
type Metrics struct {
	PacketsCaptured prometheus.Counter
	PacketsSkipped  prometheus.Counter
	RecordsWritten  prometheus.Counter
	RecordsDropped  *prometheus.CounterVec
	WriteErrors     prometheus.Counter
	QueueLength     prometheus.Gauge
	QueryDuration   *prometheus.HistogramVec
	QueryErrors     *prometheus.CounterVec
	CacheHits       *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		PacketsCaptured: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "packets_captured_total",
			Help:      "Packets turned into flow records.",
		}),
		PacketsSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "packets_skipped_total",
			Help:      "Packets without an IP layer.",
		}),
		RecordsWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_written_total",
			Help:      "Flow records handed to the writer successfully.",
		}),
		RecordsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_dropped_total",
			Help:      "Flow records dropped before reaching the writer.",
		}, []string{"reason"}),
		WriteErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "write_errors_total",
			Help:      "Failed batch write attempts, retries included.",
		}),
		QueueLength: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_length",
			Help:      "Flow records waiting in the ingest queue.",
		}),
		QueryDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "query_duration_seconds",
			Help:      "Duration of graph and host queries.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"query"}),
		QueryErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "query_errors_total",
			Help:      "Queries that failed with a store error.",
		}, []string{"query"}),
		CacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "query_cache_hits_total",
			Help:      "Queries answered from the response cache.",
		}, []string{"query"}),
	}

	if reg != nil {
		reg.MustRegister(
			m.PacketsCaptured,
			m.PacketsSkipped,
			m.RecordsWritten,
			m.RecordsDropped,
			m.WriteErrors,
			m.QueueLength,
			m.QueryDuration,
			m.QueryErrors,
			m.CacheHits,
		)
	}
	return m
}
