// Package metrics implements table.MetricsSink against Prometheus
// collectors, plus a handful of collectors for the ambient services
// (buildstream, membership) built around the table.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every Prometheus collector for a statehost process.
type Metrics struct {
	PrepareBatchesTotal   prometheus.Counter
	PrepareEntriesTotal   prometheus.Counter
	CommitTotal           prometheus.CounterVec
	CommitDuration        prometheus.Histogram
	CommitGroupsDrained   prometheus.Histogram
	ApplyEntriesTotal     prometheus.Counter

	StagingDepth   prometheus.Gauge
	CommittedSize  prometheus.Gauge
	PendingGroups  prometheus.Gauge

	StreamSegmentsTotal   prometheus.CounterVec
	StreamEntriesTotal    prometheus.Counter
	StreamChecksumFails   prometheus.Counter
	StreamDuration        prometheus.Histogram

	MembersTotal   prometheus.Gauge
	MembersHealthy prometheus.Gauge
}

// New creates and registers every collector, labeled with nodeID.
func New(nodeID string) *Metrics {
	labels := prometheus.Labels{"node_id": nodeID}

	return &Metrics{
		PrepareBatchesTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace:   "statehost",
			Subsystem:   "table",
			Name:        "prepare_batches_total",
			Help:        "Total number of Prepare calls",
			ConstLabels: labels,
		}),
		PrepareEntriesTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace:   "statehost",
			Subsystem:   "table",
			Name:        "prepare_entries_total",
			Help:        "Total number of entries passed to Prepare",
			ConstLabels: labels,
		}),
		CommitTotal: *promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "statehost",
			Subsystem:   "table",
			Name:        "commit_total",
			Help:        "Total number of Commit calls by outcome",
			ConstLabels: labels,
		}, []string{"outcome"}),
		CommitDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace:   "statehost",
			Subsystem:   "table",
			Name:        "commit_duration_seconds",
			Help:        "Histogram of time spent inside Commit, including the drain",
			ConstLabels: labels,
			Buckets:     prometheus.DefBuckets,
		}),
		CommitGroupsDrained: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace:   "statehost",
			Subsystem:   "table",
			Name:        "commit_groups_drained",
			Help:        "Histogram of the number of replication groups a single Commit call drained",
			ConstLabels: labels,
			Buckets:     prometheus.LinearBuckets(0, 1, 10),
		}),
		ApplyEntriesTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace:   "statehost",
			Subsystem:   "table",
			Name:        "apply_entries_total",
			Help:        "Total number of entries applied via ApplyMany",
			ConstLabels: labels,
		}),
		StagingDepth: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace:   "statehost",
			Subsystem:   "table",
			Name:        "staging_depth",
			Help:        "Current number of entries in the staging list",
			ConstLabels: labels,
		}),
		CommittedSize: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace:   "statehost",
			Subsystem:   "table",
			Name:        "committed_size",
			Help:        "Current number of nodes in the committed list, including any tombstone",
			ConstLabels: labels,
		}),
		PendingGroups: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace:   "statehost",
			Subsystem:   "table",
			Name:        "pending_groups",
			Help:        "Current number of replication groups awaiting Commit",
			ConstLabels: labels,
		}),
		StreamSegmentsTotal: *promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "statehost",
			Subsystem:   "buildstream",
			Name:        "segments_total",
			Help:        "Total number of catch-up stream segments sent, by kind",
			ConstLabels: labels,
		}, []string{"kind"}),
		StreamEntriesTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace:   "statehost",
			Subsystem:   "buildstream",
			Name:        "entries_total",
			Help:        "Total number of entries sent over catch-up streams",
			ConstLabels: labels,
		}),
		StreamChecksumFails: promauto.NewCounter(prometheus.CounterOpts{
			Namespace:   "statehost",
			Subsystem:   "buildstream",
			Name:        "checksum_failures_total",
			Help:        "Total number of catch-up stream checksum mismatches",
			ConstLabels: labels,
		}),
		StreamDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace:   "statehost",
			Subsystem:   "buildstream",
			Name:        "duration_seconds",
			Help:        "Histogram of catch-up stream durations",
			ConstLabels: labels,
			Buckets:     prometheus.DefBuckets,
		}),
		MembersTotal: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace:   "statehost",
			Subsystem:   "membership",
			Name:        "members_total",
			Help:        "Total number of known members",
			ConstLabels: labels,
		}),
		MembersHealthy: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace:   "statehost",
			Subsystem:   "membership",
			Name:        "members_healthy",
			Help:        "Number of members currently marked alive",
			ConstLabels: labels,
		}),
	}
}

// ObservePrepare implements table.MetricsSink.
func (m *Metrics) ObservePrepare(batchSize int) {
	m.PrepareBatchesTotal.Inc()
	m.PrepareEntriesTotal.Add(float64(batchSize))
}

// ObserveCommit implements table.MetricsSink.
func (m *Metrics) ObserveCommit(latency time.Duration, drained int, failed bool) {
	outcome := "ok"
	if failed {
		outcome = "failed"
	}
	m.CommitTotal.WithLabelValues(outcome).Inc()
	m.CommitDuration.Observe(latency.Seconds())
	m.CommitGroupsDrained.Observe(float64(drained))
}

// ObserveApply implements table.MetricsSink.
func (m *Metrics) ObserveApply(count int) {
	m.ApplyEntriesTotal.Add(float64(count))
}

// SetStagingDepth implements table.MetricsSink.
func (m *Metrics) SetStagingDepth(n int) { m.StagingDepth.Set(float64(n)) }

// SetCommittedSize implements table.MetricsSink.
func (m *Metrics) SetCommittedSize(n int) { m.CommittedSize.Set(float64(n)) }

// SetPendingGroups implements table.MetricsSink.
func (m *Metrics) SetPendingGroups(n int) { m.PendingGroups.Set(float64(n)) }

// RecordStreamSegment records one catch-up stream segment sent to a
// joining secondary.
func (m *Metrics) RecordStreamSegment(kind string, entries int) {
	m.StreamSegmentsTotal.WithLabelValues(kind).Inc()
	m.StreamEntriesTotal.Add(float64(entries))
}

// RecordStreamChecksumFailure records a checksum mismatch detected while
// verifying a catch-up stream segment.
func (m *Metrics) RecordStreamChecksumFailure() {
	m.StreamChecksumFails.Inc()
}

// RecordStreamDuration records the wall time of one full catch-up stream.
func (m *Metrics) RecordStreamDuration(d time.Duration) {
	m.StreamDuration.Observe(d.Seconds())
}

// UpdateMembership updates the membership gauges.
func (m *Metrics) UpdateMembership(total, healthy int) {
	m.MembersTotal.Set(float64(total))
	m.MembersHealthy.Set(float64(healthy))
}
