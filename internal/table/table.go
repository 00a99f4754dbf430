package table

import (
	"sort"
	"time"

	tableerr "github.com/devrev/actorstate/internal/errors"
	"go.uber.org/zap"
)

// StateTable is the public facade (C6): Prepare, Commit, ApplyMany,
// TryGet, Keys, Values, EnumerateType, SnapshotUpTo, and the two
// highest-seq accessors. It owns the staging list, the committed
// list+index, the pending map, and the gate that serializes writers
// against readers.
//
// All mutating operations (Prepare, Commit, ApplyMany) serialize through
// the write side of gate. Reads take the read side and never block each
// other.
type StateTable struct {
	gate rwGate

	staging   stagingList
	committed *committedList
	pending   map[uint64]*replicationContext

	// lastPreparedSeq enforces the defensive ordering check described in
	// the design notes: Prepare's seq must be strictly greater than
	// every seq previously passed to Prepare. Zero means "none yet".
	lastPreparedSeq uint64

	logger    *zap.Logger
	metrics   MetricsSink
	validator Validator
}

// New constructs an empty StateTable. logger and metrics may be nil, in
// which case a no-op logger/sink is used. No validation is performed on
// Prepare/ApplyMany until WithValidator attaches one.
func New(logger *zap.Logger, metrics MetricsSink) *StateTable {
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = NoopMetrics{}
	}
	return &StateTable{
		committed: newCommittedList(),
		pending:   make(map[uint64]*replicationContext),
		logger:    logger,
		metrics:   metrics,
		validator: noopValidator{},
	}
}

// WithValidator attaches a Validator and returns the same table, for
// chaining onto New. A nil validator restores the no-op default.
func (t *StateTable) WithValidator(v Validator) *StateTable {
	if v == nil {
		v = noopValidator{}
	}
	t.validator = v
	return t
}

// Prepare stages a batch of entries under one sequence number, assigned
// by the caller (an external replicator). seq == 0 is treated as an
// invalid/rejected LSN: a no-op, no state change, no error. The batch
// must be non-empty.
//
// Precondition (caller's contract): seq must be strictly greater than
// every seq previously passed to Prepare. This implementation detects
// violations defensively and returns an ordering-violation error rather
// than silently corrupting the staging list's ordering invariant.
func (t *StateTable) Prepare(entries []Entry, seq uint64) error {
	if seq == 0 {
		return nil
	}
	if len(entries) == 0 {
		return tableerr.InvalidArgument("prepare requires at least one entry", nil)
	}
	if err := t.validator.ValidateBatch(entries); err != nil {
		return err
	}

	unlock := t.gate.lockWrite()
	defer unlock()

	if seq <= t.lastPreparedSeq {
		err := tableerr.OrderingViolation(t.lastPreparedSeq, seq)
		t.logger.Error("prepare ordering violation",
			zap.Uint64("last_prepared_seq", t.lastPreparedSeq),
			zap.Uint64("seq", seq))
		return err
	}

	ctx := newReplicationContext(seq, len(entries))
	for i := range entries {
		e := entries[i]
		e.Seq = seq
		t.staging.pushBack(&stagingNode{entry: e, ctx: ctx})
	}
	t.pending[seq] = ctx
	t.lastPreparedSeq = seq

	t.metrics.ObservePrepare(len(entries))
	t.metrics.SetStagingDepth(t.staging.Len())
	t.metrics.SetPendingGroups(len(t.pending))

	t.logger.Debug("prepared replication group",
		zap.Uint64("seq", seq),
		zap.Int("entries", len(entries)))

	return nil
}

// Commit reports that replication for seq has finished, successfully
// unless failure is non-nil. If seq's group is now at the head of
// staging and replication-complete, Commit drains the longest complete
// prefix of staging into the committed view (or discards it, for failed
// groups) and returns an awaiter for the caller's own group.
//
// The awaiter may already be fulfilled by the time Commit returns (if
// this call's own group was part of the drain), or it may fire later,
// when a subsequent Commit for a lower, still-pending seq catches the
// head up to this one.
func (t *StateTable) Commit(seq uint64, failure error) (*CommitAwaiter, error) {
	if seq == 0 {
		if failure != nil {
			return nil, failure
		}
		return nil, tableerr.InvalidSequenceNumber()
	}

	start := time.Now()
	unlock := t.gate.lockWrite()

	ownCtx, ok := t.pending[seq]
	if !ok {
		unlock()
		return nil, tableerr.MissingContext(seq)
	}

	ownCtx.replicationDone = true
	ownCtx.failure = failure

	var toSignal []*replicationContext
	if head, hasHead := t.staging.headSeq(); hasHead && head == seq {
		for {
			front := t.staging.front()
			if front == nil || !front.ctx.replicationDone {
				break
			}
			node := t.staging.popFront()
			if node.ctx.failure == nil {
				t.committed.apply(node.entry)
			}
			node.ctx.associatedEntries--
			if node.ctx.associatedEntries == 0 {
				delete(t.pending, node.ctx.seq)
				// staging is seq-ordered, so nodes pop off (and their
				// contexts complete) in ascending seq order already.
				toSignal = append(toSignal, node.ctx)
			}
		}
	}

	stagingDepth := t.staging.Len()
	committedSize := t.committed.Len()
	pendingGroups := len(t.pending)

	// Signaling happens strictly after the write gate is released: a
	// completion continuation may run synchronously on this goroutine and
	// call back into the table, which would deadlock against a
	// non-reentrant gate still held here.
	unlock()

	for _, c := range toSignal {
		c.signal()
	}

	t.metrics.ObserveCommit(time.Since(start), len(toSignal), failure != nil)
	t.metrics.SetStagingDepth(stagingDepth)
	t.metrics.SetCommittedSize(committedSize)
	t.metrics.SetPendingGroups(pendingGroups)

	if failure != nil {
		t.logger.Warn("commit reported replication failure",
			zap.Uint64("seq", seq), zap.Error(failure))
	} else {
		t.logger.Debug("commit acknowledged", zap.Uint64("seq", seq),
			zap.Int("groups_drained", len(toSignal)))
	}

	return &CommitAwaiter{ctx: ownCtx}, nil
}

// ApplyMany applies already-committed entries directly to the committed
// view, bypassing staging and replication contexts entirely. This is the
// secondary-replica path (4.7): the caller is responsible for supplying
// entries in ascending seq order.
func (t *StateTable) ApplyMany(entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}
	if err := t.validator.ValidateAscendingSeqs(entries); err != nil {
		return err
	}

	unlock := t.gate.lockWrite()
	defer unlock()

	for _, e := range entries {
		t.committed.apply(e)
	}

	t.metrics.ObserveApply(len(entries))
	t.metrics.SetCommittedSize(t.committed.Len())
	return nil
}

// TryGet returns the live value for (typ, key), or ok=false if absent
// (never staged, deleted, or never committed).
func (t *StateTable) TryGet(typ, key string) ([]byte, bool) {
	unlock := t.gate.lockRead()
	defer unlock()
	return t.committed.tryGet(typ, key)
}

// Keys returns the type's live keys, sorted ascending by the key's total
// order. The sort happens outside the read lock to minimize contention;
// the returned slice is a detached snapshot.
func (t *StateTable) Keys(typ string) []string {
	unlock := t.gate.lockRead()
	keys := t.committed.keysUnsorted(typ)
	unlock()

	sort.Strings(keys)
	return keys
}

// Values returns the type's live values in unspecified order, as a
// detached snapshot.
func (t *StateTable) Values(typ string) [][]byte {
	unlock := t.gate.lockRead()
	defer unlock()
	return t.committed.values(typ)
}

// EnumerateType returns a snapshot enumerator over the type's current
// committed entries only — no uncommitted slice, unlike SnapshotUpTo.
func (t *StateTable) EnumerateType(typ string) *SnapshotEnumerator {
	unlock := t.gate.lockRead()
	defer unlock()
	return newSnapshotEnumerator(t.committed.entriesOfType(typ), nil)
}

// SnapshotUpTo captures a point-in-time view bounded by maxSeq, suitable
// for streaming to a joining secondary (4.6): committed entries with
// seq <= maxSeq, and — only if the committed segment didn't already reach
// maxSeq — staging entries with seq <= maxSeq as a provisional tail.
func (t *StateTable) SnapshotUpTo(maxSeq uint64) *SnapshotEnumerator {
	unlock := t.gate.lockRead()
	defer unlock()

	committedEntries, highest, any := t.committed.snapshotUpTo(maxSeq)

	var uncommitted []Entry
	if !any || highest < maxSeq {
		uncommitted = t.staging.snapshotUpTo(maxSeq)
	}

	return newSnapshotEnumerator(committedEntries, uncommitted)
}

// HighestKnownSeq returns the seq of the last staging node if any, else
// the last committed node, else 0.
func (t *StateTable) HighestKnownSeq() uint64 {
	unlock := t.gate.lockRead()
	defer unlock()

	if seq, ok := t.staging.tailSeq(); ok {
		return seq
	}
	if seq, ok := t.committed.tailSeq(); ok {
		return seq
	}
	return 0
}

// HighestCommittedSeq returns the seq of the last committed node, else 0.
func (t *StateTable) HighestCommittedSeq() uint64 {
	unlock := t.gate.lockRead()
	defer unlock()

	seq, _ := t.committed.tailSeq()
	return seq
}
