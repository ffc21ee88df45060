package txn

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veldra/versadb/internal/clock"
	"github.com/veldra/versadb/internal/undo"
)

type fakeLogHandoff struct {
	mu    sync.Mutex
	calls []clock.Timestamp
}

func (f *fakeLogHandoff) Enqueue(txn *Context, commitTS clock.Timestamp, callback CommitCallback) {
	f.mu.Lock()
	f.calls = append(f.calls, commitTS)
	f.mu.Unlock()
	txn.MarkLogProcessed()
	if callback != nil {
		callback()
	}
}

func TestManager_BeginTracksActiveStarts(t *testing.T) {
	m := NewManager(nil, nil)
	ctx := m.Begin()
	assert.Equal(t, 1, m.ActiveCount())
	assert.Equal(t, ctx.StartTime, m.OldestTransactionStartTime())
}

func TestManager_CommitReadOnlySkipsLog(t *testing.T) {
	log := &fakeLogHandoff{}
	m := NewManager(log, nil)
	ctx := m.Begin()

	fired := false
	ts := m.Commit(ctx, func() { fired = true })

	assert.Zero(t, ts)
	assert.True(t, fired)
	assert.Empty(t, log.calls)
	assert.Equal(t, 0, m.ActiveCount())
	assert.True(t, ctx.LogProcessed())
}

func TestManager_CommitPublishesUndoRecords(t *testing.T) {
	log := &fakeLogHandoff{}
	m := NewManager(log, nil)
	ctx := m.Begin()

	rec := undo.NewRecord(undo.Insert, ctx.TxnID, nil, 0, nil, ctx.AbortedFlag())
	ctx.Undo.Append(rec)

	commitTS := m.Commit(ctx, nil)
	require.NotZero(t, commitTS)
	assert.Equal(t, commitTS, rec.Timestamp())
	assert.True(t, clock.Committed(rec.Timestamp()))
	assert.Equal(t, []clock.Timestamp{commitTS}, log.calls)
}

func TestManager_AbortMarksContextAndSkipsCommitTS(t *testing.T) {
	m := NewManager(nil, nil)
	ctx := m.Begin()
	rec := undo.NewRecord(undo.Update, ctx.TxnID, nil, 0, nil, ctx.AbortedFlag())
	ctx.Undo.Append(rec)

	m.Abort(ctx)

	assert.True(t, ctx.Aborted())
	assert.True(t, rec.Aborted())
	assert.False(t, clock.Committed(rec.Timestamp()))
	assert.Equal(t, 0, m.ActiveCount())
}

func TestManager_CompletedTransactionsForGCDrains(t *testing.T) {
	m := NewManager(nil, nil)
	ctx1 := m.Begin()
	ctx2 := m.Begin()
	m.Commit(ctx1, nil)
	m.Abort(ctx2)

	drained := m.CompletedTransactionsForGC()
	assert.ElementsMatch(t, []*Context{ctx1, ctx2}, drained)
	assert.Empty(t, m.CompletedTransactionsForGC())
}

func TestManager_DeferredActionsForGCGatedByWatermark(t *testing.T) {
	m := NewManager(nil, nil)
	var ran []int

	m.Defer(clock.Timestamp(10), func() { ran = append(ran, 1) })
	m.Defer(clock.Timestamp(5), func() { ran = append(ran, 2) })
	m.Defer(clock.Timestamp(20), func() { ran = append(ran, 3) })

	n := m.DeferredActionsForGC(clock.Timestamp(10))
	assert.Equal(t, 2, n)
	assert.Equal(t, []int{2, 1}, ran) // gate order, not registration order

	n = m.DeferredActionsForGC(clock.Timestamp(100))
	assert.Equal(t, 1, n)
}
