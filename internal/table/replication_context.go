package table

import "context"

// replicationContext tracks the completion state of one replication
// group — the set of entries submitted together in a single Prepare
// call, committed atomically.
type replicationContext struct {
	seq uint64

	// replicationDone is set true once Commit has been called for this
	// seq. Guarded by the table's write gate, not by a separate mutex:
	// every field on this struct is only ever touched while the caller
	// holds the table's write side, except for reading failure/done
	// after the completion signal has fired (safe by the happens-before
	// edge of a closed channel).
	replicationDone bool

	// failure is the caller-supplied error from Commit, if any. When
	// present the group's entries are never applied to the committed
	// view, but they still drain from staging.
	failure error

	// associatedEntries counts staging nodes still referencing this
	// context. Decremented as each node drains, regardless of whether
	// applying it succeeded; reaching zero removes the group from the
	// pending map and queues its completion signal.
	associatedEntries int

	// done is closed exactly once, after the write gate is released, to
	// fulfill Commit's returned awaiter. Never closed while the caller
	// holds the write gate: completion callbacks may run synchronously
	// on the signaling goroutine and may call back into the table.
	done chan struct{}
}

func newReplicationContext(seq uint64, entryCount int) *replicationContext {
	return &replicationContext{
		seq:               seq,
		associatedEntries: entryCount,
		done:              make(chan struct{}),
	}
}

// signal closes the completion channel. Must be called at most once, and
// never while the write gate is held.
func (c *replicationContext) signal() {
	close(c.done)
}

// CommitAwaiter is returned by Commit. It fires (Wait returns) once the
// staging prefix has drained past this call's sequence number — which may
// be immediately, if this call's own group was part of the drain.
type CommitAwaiter struct {
	ctx *replicationContext
}

// Wait blocks until the awaiter's replication group has been drained from
// staging, or ctx is canceled first. It returns the group's replication
// failure, if any; nil means the group committed successfully.
func (a *CommitAwaiter) Wait(ctx context.Context) error {
	select {
	case <-a.ctx.done:
		return a.ctx.failure
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done exposes the raw completion channel for callers that want to select
// on it alongside other channels instead of blocking in Wait.
func (a *CommitAwaiter) Done() <-chan struct{} {
	return a.ctx.done
}
