package table

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustCommit(t *testing.T, tbl *StateTable, seq uint64, failure error) *CommitAwaiter {
	t.Helper()
	aw, err := tbl.Commit(seq, failure)
	require.NoError(t, err)
	return aw
}

func waitOK(t *testing.T, aw *CommitAwaiter) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, aw.Wait(ctx))
}

func TestPrepareThenCommitInOrderBecomesVisible(t *testing.T) {
	tbl := New(nil, nil)

	require.NoError(t, tbl.Prepare([]Entry{{Type: "actor", Key: "a1", Value: []byte("v1")}}, 1))
	aw := mustCommit(t, tbl, 1, nil)
	waitOK(t, aw)

	val, ok := tbl.TryGet("actor", "a1")
	assert.True(t, ok)
	assert.Equal(t, []byte("v1"), val)
	assert.Equal(t, uint64(1), tbl.HighestCommittedSeq())
}

func TestOutOfOrderCommitDefersVisibility(t *testing.T) {
	tbl := New(nil, nil)

	require.NoError(t, tbl.Prepare([]Entry{{Type: "actor", Key: "a1", Value: []byte("v1")}}, 1))
	require.NoError(t, tbl.Prepare([]Entry{{Type: "actor", Key: "a2", Value: []byte("v2")}}, 2))

	// Commit seq 2 first: its group is not at the head of staging, so
	// nothing becomes visible yet and its awaiter must not have fired.
	aw2 := mustCommit(t, tbl, 2, nil)
	select {
	case <-aw2.Done():
		t.Fatal("seq 2 awaiter fired before seq 1 drained")
	default:
	}
	_, ok := tbl.TryGet("actor", "a2")
	assert.False(t, ok)
	assert.Equal(t, uint64(0), tbl.HighestCommittedSeq())

	// Commit seq 1: both groups drain together since seq 2 was already
	// replication-complete.
	aw1 := mustCommit(t, tbl, 1, nil)
	waitOK(t, aw1)
	waitOK(t, aw2)

	_, ok = tbl.TryGet("actor", "a1")
	assert.True(t, ok)
	_, ok = tbl.TryGet("actor", "a2")
	assert.True(t, ok)
	assert.Equal(t, uint64(2), tbl.HighestCommittedSeq())
}

func TestGroupedAtomicity(t *testing.T) {
	tbl := New(nil, nil)

	entries := []Entry{
		{Type: "actor", Key: "a1", Value: []byte("v1")},
		{Type: "actor", Key: "a2", Value: []byte("v2")},
		{Type: "actor", Key: "a3", Value: []byte("v3")},
	}
	require.NoError(t, tbl.Prepare(entries, 1))

	// Before commit, none of the group's entries are visible.
	for _, e := range entries {
		_, ok := tbl.TryGet(e.Type, e.Key)
		assert.False(t, ok)
	}

	waitOK(t, mustCommit(t, tbl, 1, nil))

	for _, e := range entries {
		val, ok := tbl.TryGet(e.Type, e.Key)
		assert.True(t, ok)
		assert.Equal(t, e.Value, val)
	}
}

func TestFailedGroupNeverApplied(t *testing.T) {
	tbl := New(nil, nil)

	require.NoError(t, tbl.Prepare([]Entry{{Type: "actor", Key: "a1", Value: []byte("v1")}}, 1))
	failure := errors.New("replica timeout")
	aw := mustCommit(t, tbl, 1, failure)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	err := aw.Wait(ctx)
	assert.Equal(t, failure, err)

	_, ok := tbl.TryGet("actor", "a1")
	assert.False(t, ok)
	// The failed group still drained from staging and still advances
	// highest-known-seq, even though nothing committed.
	assert.Equal(t, uint64(1), tbl.HighestKnownSeq())
	assert.Equal(t, uint64(0), tbl.HighestCommittedSeq())
}

func TestFailedGroupDoesNotBlockLaterGroups(t *testing.T) {
	tbl := New(nil, nil)

	require.NoError(t, tbl.Prepare([]Entry{{Type: "actor", Key: "a1", Value: []byte("v1")}}, 1))
	require.NoError(t, tbl.Prepare([]Entry{{Type: "actor", Key: "a2", Value: []byte("v2")}}, 2))

	boom := errors.New("boom")
	aw1 := mustCommit(t, tbl, 1, boom)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.Equal(t, boom, aw1.Wait(ctx))
	waitOK(t, mustCommit(t, tbl, 2, nil))

	_, ok := tbl.TryGet("actor", "a1")
	assert.False(t, ok)
	val, ok := tbl.TryGet("actor", "a2")
	assert.True(t, ok)
	assert.Equal(t, []byte("v2"), val)
}

func TestDeleteHidesEntryButAdvancesHighestCommitted(t *testing.T) {
	tbl := New(nil, nil)

	require.NoError(t, tbl.Prepare([]Entry{{Type: "actor", Key: "a1", Value: []byte("v1")}}, 1))
	waitOK(t, mustCommit(t, tbl, 1, nil))

	require.NoError(t, tbl.Prepare([]Entry{{Type: "actor", Key: "a1", IsDelete: true}}, 2))
	waitOK(t, mustCommit(t, tbl, 2, nil))

	_, ok := tbl.TryGet("actor", "a1")
	assert.False(t, ok)
	assert.Equal(t, uint64(2), tbl.HighestCommittedSeq())
	assert.Empty(t, tbl.Keys("actor"))
}

func TestDeleteOfUnknownTypeIsNoop(t *testing.T) {
	tbl := New(nil, nil)

	require.NoError(t, tbl.Prepare([]Entry{{Type: "actor", Key: "ghost", IsDelete: true}}, 1))
	waitOK(t, mustCommit(t, tbl, 1, nil))

	_, ok := tbl.TryGet("actor", "ghost")
	assert.False(t, ok)
	assert.Equal(t, uint64(0), tbl.HighestCommittedSeq())
}

func TestKeysReturnsSortedLiveKeysOnly(t *testing.T) {
	tbl := New(nil, nil)

	require.NoError(t, tbl.Prepare([]Entry{
		{Type: "actor", Key: "c", Value: []byte("3")},
		{Type: "actor", Key: "a", Value: []byte("1")},
		{Type: "actor", Key: "b", Value: []byte("2")},
	}, 1))
	waitOK(t, mustCommit(t, tbl, 1, nil))

	require.NoError(t, tbl.Prepare([]Entry{{Type: "actor", Key: "b", IsDelete: true}}, 2))
	waitOK(t, mustCommit(t, tbl, 2, nil))

	assert.Equal(t, []string{"a", "c"}, tbl.Keys("actor"))
}

func TestOverwriteReplacesValueAndAdvancesHighestCommitted(t *testing.T) {
	tbl := New(nil, nil)

	require.NoError(t, tbl.Prepare([]Entry{{Type: "actor", Key: "a1", Value: []byte("v1")}}, 1))
	waitOK(t, mustCommit(t, tbl, 1, nil))
	require.NoError(t, tbl.Prepare([]Entry{{Type: "actor", Key: "a1", Value: []byte("v2")}}, 2))
	waitOK(t, mustCommit(t, tbl, 2, nil))

	val, ok := tbl.TryGet("actor", "a1")
	assert.True(t, ok)
	assert.Equal(t, []byte("v2"), val)
	assert.Equal(t, uint64(2), tbl.HighestCommittedSeq())
}

func TestPrepareOrderingViolationIsRejected(t *testing.T) {
	tbl := New(nil, nil)

	require.NoError(t, tbl.Prepare([]Entry{{Type: "actor", Key: "a1", Value: []byte("v1")}}, 5))
	err := tbl.Prepare([]Entry{{Type: "actor", Key: "a2", Value: []byte("v2")}}, 3)
	require.Error(t, err)
	assert.Equal(t, uint64(5), tbl.HighestKnownSeq())
}

func TestPrepareWithZeroSeqIsNoop(t *testing.T) {
	tbl := New(nil, nil)

	require.NoError(t, tbl.Prepare([]Entry{{Type: "actor", Key: "a1", Value: []byte("v1")}}, 0))
	assert.Equal(t, uint64(0), tbl.HighestKnownSeq())
	assert.Equal(t, 0, tbl.staging.Len())
}

func TestCommitWithZeroSeqReturnsInvalidSequenceNumberOrCallerFailure(t *testing.T) {
	tbl := New(nil, nil)

	_, err := tbl.Commit(0, nil)
	require.Error(t, err)

	callerErr := errors.New("caller supplied")
	_, err = tbl.Commit(0, callerErr)
	assert.Equal(t, callerErr, err)
}

func TestCommitWithoutPrepareReturnsMissingContext(t *testing.T) {
	tbl := New(nil, nil)

	_, err := tbl.Commit(1, nil)
	require.Error(t, err)
}

func TestApplyManyBypassesStagingForSecondaryReplicas(t *testing.T) {
	tbl := New(nil, nil)

	err := tbl.ApplyMany([]Entry{
		{Type: "actor", Key: "a1", Value: []byte("v1"), Seq: 1},
		{Type: "actor", Key: "a2", Value: []byte("v2"), Seq: 2},
	})
	require.NoError(t, err)

	val, ok := tbl.TryGet("actor", "a1")
	assert.True(t, ok)
	assert.Equal(t, []byte("v1"), val)
	assert.Equal(t, uint64(2), tbl.HighestCommittedSeq())
}

func TestSnapshotUpToOnlyCommitted(t *testing.T) {
	tbl := New(nil, nil)

	require.NoError(t, tbl.Prepare([]Entry{{Type: "actor", Key: "a1", Value: []byte("v1")}}, 1))
	waitOK(t, mustCommit(t, tbl, 1, nil))

	snap := tbl.SnapshotUpTo(1)
	assert.Equal(t, 1, snap.CommittedCount())
	assert.Equal(t, 0, snap.UncommittedCount())

	e, ok := snap.PeekNext()
	require.True(t, ok)
	assert.Equal(t, "a1", e.Key)

	require.True(t, snap.MoveNext())
	got, ok := snap.Entry()
	require.True(t, ok)
	assert.Equal(t, "a1", got.Key)
	assert.False(t, snap.MoveNext())
}

func TestSnapshotUpToIncludesStagingTailWhenCommittedDoesNotReachMaxSeq(t *testing.T) {
	tbl := New(nil, nil)

	require.NoError(t, tbl.Prepare([]Entry{{Type: "actor", Key: "a1", Value: []byte("v1")}}, 1))
	waitOK(t, mustCommit(t, tbl, 1, nil))

	// seq 2 stays in staging: its replicator has not called Commit yet.
	require.NoError(t, tbl.Prepare([]Entry{{Type: "actor", Key: "a2", Value: []byte("v2")}}, 2))

	snap := tbl.SnapshotUpTo(2)
	assert.Equal(t, 1, snap.CommittedCount())
	assert.Equal(t, 1, snap.UncommittedCount())

	var seen []string
	for snap.MoveNext() {
		e, _ := snap.Entry()
		seen = append(seen, e.Key)
	}
	assert.Equal(t, []string{"a1", "a2"}, seen)
}

func TestSnapshotUpToStopsAtMaxSeqEvenWithMoreCommitted(t *testing.T) {
	tbl := New(nil, nil)

	require.NoError(t, tbl.Prepare([]Entry{{Type: "actor", Key: "a1", Value: []byte("v1")}}, 1))
	waitOK(t, mustCommit(t, tbl, 1, nil))
	require.NoError(t, tbl.Prepare([]Entry{{Type: "actor", Key: "a2", Value: []byte("v2")}}, 2))
	waitOK(t, mustCommit(t, tbl, 2, nil))

	snap := tbl.SnapshotUpTo(1)
	assert.Equal(t, 1, snap.CommittedCount())
	assert.Equal(t, 0, snap.UncommittedCount())
}

func TestHighestKnownSeqPrefersStagingOverCommitted(t *testing.T) {
	tbl := New(nil, nil)

	assert.Equal(t, uint64(0), tbl.HighestKnownSeq())

	require.NoError(t, tbl.Prepare([]Entry{{Type: "actor", Key: "a1", Value: []byte("v1")}}, 1))
	assert.Equal(t, uint64(1), tbl.HighestKnownSeq())
	assert.Equal(t, uint64(0), tbl.HighestCommittedSeq())

	waitOK(t, mustCommit(t, tbl, 1, nil))
	assert.Equal(t, uint64(1), tbl.HighestKnownSeq())
	assert.Equal(t, uint64(1), tbl.HighestCommittedSeq())

	require.NoError(t, tbl.Prepare([]Entry{{Type: "actor", Key: "a2", Value: []byte("v2")}}, 2))
	assert.Equal(t, uint64(2), tbl.HighestKnownSeq())
	assert.Equal(t, uint64(1), tbl.HighestCommittedSeq())
}

func TestValuesReturnsLiveValuesForType(t *testing.T) {
	tbl := New(nil, nil)

	require.NoError(t, tbl.Prepare([]Entry{
		{Type: "actor", Key: "a1", Value: []byte("v1")},
		{Type: "actor", Key: "a2", Value: []byte("v2")},
	}, 1))
	waitOK(t, mustCommit(t, tbl, 1, nil))

	vals := tbl.Values("actor")
	assert.Len(t, vals, 2)
}

func TestEnumerateTypeIgnoresUncommittedEntries(t *testing.T) {
	tbl := New(nil, nil)

	require.NoError(t, tbl.Prepare([]Entry{{Type: "actor", Key: "a1", Value: []byte("v1")}}, 1))
	waitOK(t, mustCommit(t, tbl, 1, nil))
	require.NoError(t, tbl.Prepare([]Entry{{Type: "actor", Key: "a2", Value: []byte("v2")}}, 2))

	enum := tbl.EnumerateType("actor")
	assert.Equal(t, 1, enum.CommittedCount())
	assert.Equal(t, 0, enum.UncommittedCount())
}

func TestConcurrentReadsDuringCommitDoNotRace(t *testing.T) {
	tbl := New(nil, nil)
	require.NoError(t, tbl.Prepare([]Entry{{Type: "actor", Key: "a1", Value: []byte("v1")}}, 1))

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 100; i++ {
			tbl.TryGet("actor", "a1")
			tbl.Keys("actor")
			tbl.HighestKnownSeq()
		}
	}()

	waitOK(t, mustCommit(t, tbl, 1, nil))
	<-done
}
