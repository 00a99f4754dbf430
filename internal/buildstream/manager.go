// Package buildstream drives the catch-up lifecycle for a secondary
// replica joining after the primary already has committed history: a
// bulk-copy phase over a point-in-time snapshot, a live-tail phase that
// keeps forwarding newly known entries (staged ones included), and a checksum verification
// phase that catches drift between what was sent and what the target
// actually applied.
package buildstream

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/devrev/actorstate/internal/table"
	"github.com/devrev/actorstate/internal/util"
	"github.com/devrev/actorstate/internal/util/workerpool"
)

// State is the lifecycle stage of one stream to one target.
type State string

const (
	StateCopying   State = "copying"
	StateTailing   State = "tailing"
	StateVerifying State = "verifying"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

// Snapshotter is the subset of StateTable a stream needs.
type Snapshotter interface {
	SnapshotUpTo(maxSeq uint64) *table.SnapshotEnumerator
	HighestKnownSeq() uint64
}

// Sender delivers a batch of entries to one target replica. Callers
// implement this against whatever transport hosts the target's ApplyMany
// (a gRPC client, an in-process channel for tests, and so on).
type Sender interface {
	SendBatch(ctx context.Context, targetID string, entries []table.Entry) error
}

// ChecksumComparer reports the target's checksum over the same entries
// this stream already sent it, so the verification phase can detect
// drift without a full re-copy.
type ChecksumComparer interface {
	RemoteChecksum(ctx context.Context, targetID string, upToSeq uint64) (uint32, error)
}

// Config configures a Manager.
type Config struct {
	Workers       int
	BatchSize     int
	ChecksumEvery int
	StreamTimeout time.Duration
}

// streamContext tracks one target's progress through the lifecycle.
type streamContext struct {
	mu         sync.RWMutex
	targetID   string
	state      State
	lastSeq    uint64
	entriesSent int64
	startedAt  time.Time
}

func (s *streamContext) getState() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *streamContext) setState(st State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = st
}

// Manager drives catch-up streams for a set of joining secondaries.
type Manager struct {
	snap     Snapshotter
	sender   Sender
	checksum ChecksumComparer
	pool     *workerpool.WorkerPool
	logger   *zap.Logger
	metrics  StreamMetricsSink

	cfg Config

	mu      sync.RWMutex
	streams map[string]*streamContext
}

// StreamMetricsSink receives buildstream observations. internal/metrics
// implements this against Prometheus collectors.
type StreamMetricsSink interface {
	RecordStreamSegment(kind string, entries int)
	RecordStreamChecksumFailure()
	RecordStreamDuration(d time.Duration)
}

type noopStreamMetrics struct{}

func (noopStreamMetrics) RecordStreamSegment(string, int)   {}
func (noopStreamMetrics) RecordStreamChecksumFailure()      {}
func (noopStreamMetrics) RecordStreamDuration(time.Duration) {}

// New creates a Manager backed by a bounded worker pool for parallel
// batch delivery.
func New(cfg Config, snap Snapshotter, sender Sender, checksum ChecksumComparer, metrics StreamMetricsSink, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = noopStreamMetrics{}
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 500
	}
	if cfg.ChecksumEvery <= 0 {
		cfg.ChecksumEvery = 1000
	}
	if cfg.StreamTimeout <= 0 {
		cfg.StreamTimeout = 5 * time.Minute
	}

	pool := workerpool.NewWorkerPool(&workerpool.Config{
		Name:       "buildstream",
		MaxWorkers: cfg.Workers,
		QueueSize:  cfg.Workers * 4,
		Logger:     logger,
	})

	return &Manager{
		snap:     snap,
		sender:   sender,
		checksum: checksum,
		pool:     pool,
		logger:   logger,
		metrics:  metrics,
		cfg:      cfg,
		streams:  make(map[string]*streamContext),
	}
}

// StartCatchUp runs the full lifecycle for targetID: bulk copy up to the
// current known seq, then tail newly known entries until caught up within a small
// window, then a checksum pass. It returns once the target is verified
// caught up, ctx is canceled, or a phase fails.
func (m *Manager) StartCatchUp(ctx context.Context, targetID string) error {
	sc := &streamContext{targetID: targetID, state: StateCopying, startedAt: time.Now()}
	m.mu.Lock()
	m.streams[targetID] = sc
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		delete(m.streams, targetID)
		m.mu.Unlock()
	}()

	ctx, cancel := context.WithTimeout(ctx, m.cfg.StreamTimeout)
	defer cancel()

	buildSeq := m.snap.HighestKnownSeq()

	if err := m.bulkCopy(ctx, sc, buildSeq); err != nil {
		sc.setState(StateFailed)
		return fmt.Errorf("bulk copy to %s failed: %w", targetID, err)
	}

	sc.setState(StateTailing)
	if err := m.tail(ctx, sc); err != nil {
		sc.setState(StateFailed)
		return fmt.Errorf("live tail to %s failed: %w", targetID, err)
	}

	sc.setState(StateVerifying)
	if err := m.verify(ctx, sc); err != nil {
		sc.setState(StateFailed)
		return fmt.Errorf("verification for %s failed: %w", targetID, err)
	}

	sc.setState(StateCompleted)
	m.metrics.RecordStreamDuration(time.Since(sc.startedAt))
	m.logger.Info("catch-up stream completed",
		zap.String("target", targetID),
		zap.Int64("entries_sent", sc.entriesSent))
	return nil
}

// bulkCopy sends the point-in-time snapshot up to buildSeq in batches,
// fanned out across the worker pool.
func (m *Manager) bulkCopy(ctx context.Context, sc *streamContext, buildSeq uint64) error {
	enum := m.snap.SnapshotUpTo(buildSeq)

	var batch []table.Entry
	var wg sync.WaitGroup
	var firstErr error
	var errMu sync.Mutex

	flush := func(b []table.Entry) {
		if len(b) == 0 {
			return
		}
		wg.Add(1)
		task := workerpool.Task{
			ID:      fmt.Sprintf("%s-copy-%d", sc.targetID, b[len(b)-1].Seq),
			Context: ctx,
			Fn: func(taskCtx context.Context) error {
				defer wg.Done()
				if err := m.sender.SendBatch(taskCtx, sc.targetID, b); err != nil {
					errMu.Lock()
					if firstErr == nil {
						firstErr = err
					}
					errMu.Unlock()
					return err
				}
				m.metrics.RecordStreamSegment("copy", len(b))
				return nil
			},
		}
		if err := m.pool.SubmitWithContext(ctx, task); err != nil {
			wg.Done()
			errMu.Lock()
			if firstErr == nil {
				firstErr = err
			}
			errMu.Unlock()
		}
	}

	for enum.MoveNext() {
		e, _ := enum.Entry()
		batch = append(batch, e)
		if len(batch) >= m.cfg.BatchSize {
			flush(batch)
			batch = nil
		}
	}
	flush(batch)

	wg.Wait()

	if firstErr != nil {
		return firstErr
	}

	sc.mu.Lock()
	sc.lastSeq = buildSeq
	sc.entriesSent += int64(enum.CommittedCount() + enum.UncommittedCount())
	sc.mu.Unlock()

	return nil
}

// tail polls for newly known entries past lastSeq and forwards them,
// until the gap between what's known and what's been sent stays within
// one batch for two consecutive polls (caught up).
func (m *Manager) tail(ctx context.Context, sc *streamContext) error {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	caughtUpStreak := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		known := m.snap.HighestKnownSeq()
		sc.mu.RLock()
		lastSeq := sc.lastSeq
		sc.mu.RUnlock()

		if known <= lastSeq {
			caughtUpStreak++
			if caughtUpStreak >= 2 {
				return nil
			}
			continue
		}

		enum := m.snap.SnapshotUpTo(known)
		var fresh []table.Entry
		for enum.MoveNext() {
			e, _ := enum.Entry()
			if e.Seq > lastSeq {
				fresh = append(fresh, e)
			}
		}
		if len(fresh) == 0 {
			continue
		}

		if err := m.sender.SendBatch(ctx, sc.targetID, fresh); err != nil {
			return err
		}
		m.metrics.RecordStreamSegment("tail", len(fresh))

		sc.mu.Lock()
		sc.lastSeq = fresh[len(fresh)-1].Seq
		sc.entriesSent += int64(len(fresh))
		sc.mu.Unlock()

		if known-lastSeq <= uint64(m.cfg.BatchSize) {
			caughtUpStreak++
			if caughtUpStreak >= 2 {
				return nil
			}
		} else {
			caughtUpStreak = 0
		}
	}
}

// verify compares a local checksum over everything sent so far against
// the target's report of the same range, when a ChecksumComparer is
// configured.
func (m *Manager) verify(ctx context.Context, sc *streamContext) error {
	if m.checksum == nil {
		return nil
	}

	sc.mu.RLock()
	lastSeq := sc.lastSeq
	sc.mu.RUnlock()

	enum := m.snap.SnapshotUpTo(lastSeq)
	var buf []byte
	for enum.MoveNext() {
		e, _ := enum.Entry()
		buf = append(buf, []byte(e.Type)...)
		buf = append(buf, []byte(e.Key)...)
		buf = append(buf, e.Value...)
	}
	local := util.ComputeChecksum(buf)

	remote, err := m.checksum.RemoteChecksum(ctx, sc.targetID, lastSeq)
	if err != nil {
		return fmt.Errorf("failed to fetch remote checksum: %w", err)
	}

	if local != remote {
		m.metrics.RecordStreamChecksumFailure()
		return fmt.Errorf("checksum mismatch for %s up to seq %d: local=%d remote=%d",
			sc.targetID, lastSeq, local, remote)
	}
	return nil
}

// ActiveStreams returns the state of every stream currently in flight.
func (m *Manager) ActiveStreams() map[string]State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]State, len(m.streams))
	for id, sc := range m.streams {
		out[id] = sc.getState()
	}
	return out
}

// Stop shuts down the underlying worker pool, waiting up to timeout for
// in-flight batch sends to finish.
func (m *Manager) Stop(timeout time.Duration) error {
	return m.pool.Stop(timeout)
}
