package undo

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veldra/versadb/internal/clock"
)

func TestChain_InstallAndVisible(t *testing.T) {
	var chain Chain
	src := clock.NewSource()

	txn1 := src.AllocateTxnID()
	r1 := NewRecord(Insert, txn1, nil, 0, nil, nil)
	require.True(t, chain.CompareAndSwapHead(nil, r1))

	// Uncommitted: visible only to its own writer.
	assert.NotNil(t, chain.Visible(src.Current(), txn1))
	assert.Nil(t, chain.Visible(src.Current(), src.AllocateTxnID()))

	commitTS := src.AllocateCommitTS()
	r1.Publish(commitTS)

	readerStart := src.AllocateCommitTS()
	got := chain.Visible(readerStart, 0)
	require.NotNil(t, got)
	assert.Equal(t, commitTS, got.Timestamp())
}

func TestChain_NewestToOldestOrdering(t *testing.T) {
	var chain Chain
	src := clock.NewSource()

	// Install three committed versions oldest-first, each as the new head.
	var last *Record
	var commits []clock.Timestamp
	for i := 0; i < 3; i++ {
		txn := src.AllocateTxnID()
		r := NewRecord(Update, txn, nil, 0, nil, nil)
		old := chain.Head()
		require.True(t, chain.CompareAndSwapHead(old, r))
		r.SetNext(old)
		ts := src.AllocateCommitTS()
		r.Publish(ts)
		commits = append(commits, ts)
		last = r
	}
	_ = last

	// Walking from head must see strictly decreasing commit timestamps.
	prevTS := clock.Timestamp(^uint64(0) >> 1) // below the uncommitted bit
	count := 0
	for r := chain.Head(); r != nil; r = r.Next() {
		ts := r.Timestamp()
		assert.True(t, clock.NewerThan(prevTS, ts) || prevTS == clock.Timestamp(^uint64(0)>>1))
		prevTS = ts
		count++
	}
	assert.Equal(t, 3, count)
}

func TestChain_CompareAndSwapHeadConflict(t *testing.T) {
	var chain Chain
	src := clock.NewSource()

	txn1 := src.AllocateTxnID()
	r1 := NewRecord(Insert, txn1, nil, 0, nil, nil)
	require.True(t, chain.CompareAndSwapHead(nil, r1))

	// A second writer racing against a stale "old" observation must fail.
	txn2 := src.AllocateTxnID()
	r2 := NewRecord(Update, txn2, nil, 0, nil, nil)
	assert.False(t, chain.CompareAndSwapHead(nil, r2))
	assert.True(t, chain.CompareAndSwapHead(r1, r2))
}

func TestRecord_AbortedFlagSharedWithOwner(t *testing.T) {
	src := clock.NewSource()
	var aborted atomic.Bool
	r := NewRecord(Update, src.AllocateTxnID(), nil, 0, nil, &aborted)
	assert.False(t, r.Aborted())
	aborted.Store(true)
	assert.True(t, r.Aborted())
}

func TestChain_OldestCommittedOlderThan(t *testing.T) {
	var chain Chain
	src := clock.NewSource()

	var head, mid, tail *Record
	tail = NewRecord(Insert, src.AllocateTxnID(), nil, 0, nil, nil)
	tail.Publish(src.AllocateCommitTS())

	mid = NewRecord(Update, src.AllocateTxnID(), nil, 0, nil, nil)
	mid.SetNext(tail)
	mid.Publish(src.AllocateCommitTS())

	head = NewRecord(Update, src.AllocateTxnID(), nil, 0, nil, nil)
	head.SetNext(mid)
	head.Publish(src.AllocateCommitTS())

	require.True(t, chain.CompareAndSwapHead(nil, head))

	watermark := src.AllocateCommitTS() // newer than all three
	target, predecessor := chain.OldestCommittedOlderThan(watermark)
	require.NotNil(t, target)
	assert.Equal(t, head, target) // head is already older than watermark
	assert.Nil(t, predecessor)
}
