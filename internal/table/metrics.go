package table

import "time"

// MetricsSink receives observations from a StateTable. internal/metrics
// implements this against Prometheus collectors; tests and simple
// embedders can use NoopMetrics.
type MetricsSink interface {
	ObservePrepare(batchSize int)
	ObserveCommit(latency time.Duration, drained int, failed bool)
	ObserveApply(count int)
	SetStagingDepth(n int)
	SetCommittedSize(n int)
	SetPendingGroups(n int)
}

// NoopMetrics discards every observation. It is the default sink for a
// StateTable constructed without one.
type NoopMetrics struct{}

func (NoopMetrics) ObservePrepare(int)                    {}
func (NoopMetrics) ObserveCommit(time.Duration, int, bool) {}
func (NoopMetrics) ObserveApply(int)                       {}
func (NoopMetrics) SetStagingDepth(int)                    {}
func (NoopMetrics) SetCommittedSize(int)                   {}
func (NoopMetrics) SetPendingGroups(int)                   {}
