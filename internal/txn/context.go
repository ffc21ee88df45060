// Package txn implements the transaction context and manager: begin/commit/
// abort, the active-starts watermark, and the hand-off of completed
// transactions and deferred actions to the garbage collector.
package txn

import (
	"sync"
	"sync/atomic"

	"github.com/veldra/versadb/internal/arena"
	"github.com/veldra/versadb/internal/clock"
)

// Context is a TransactionContext: the per-transaction state a worker
// goroutine owns exclusively until handoff to commit/abort, after which it
// is read by the serializer and the garbage collector.
type Context struct {
	StartTime clock.Timestamp
	TxnID     clock.Timestamp

	Undo *arena.UndoBuffer
	Redo *arena.RedoBuffer

	finishTime uint64 // atomic clock.Timestamp; 0 until a read-write Commit sets it

	abortedFlag      atomic.Bool
	logProcessedFlag atomic.Bool

	looseMu   sync.Mutex
	loosePtrs [][]byte
}

func newContext(start, txnID clock.Timestamp, undoPool *arena.RecordSegmentPool, redoPool *arena.Pool) *Context {
	return &Context{
		StartTime: start,
		TxnID:     txnID,
		Undo:      arena.NewUndoBuffer(undoPool),
		Redo:      arena.NewRedoBuffer(redoPool),
	}
}

// Aborted reports whether this transaction has been rolled back. Shared with
// every undo.Record this context produced, letting a concurrent GC pass
// detect a rewind after the fact.
func (c *Context) Aborted() bool { return c.abortedFlag.Load() }

// AbortedFlag exposes the shared flag pointer undo.NewRecord expects.
func (c *Context) AbortedFlag() *atomic.Bool { return &c.abortedFlag }

func (c *Context) markAborted() { c.abortedFlag.Store(true) }

// LogProcessed reports whether the serializer/disk-writer pipeline has
// durably flushed this transaction's redo records (or determined it has
// none to flush). Gates deallocation per spec.md invariant 6.
func (c *Context) LogProcessed() bool { return c.logProcessedFlag.Load() }

// MarkLogProcessed is called by the disk writer once a buffer containing
// this transaction's COMMIT record (or immediately, for read-only/aborted
// transactions that never logged) is durable.
func (c *Context) MarkLogProcessed() { c.logProcessedFlag.Store(true) }

// FinishTime returns the commit timestamp (committed) or the zero Timestamp
// (not yet finished, or aborted without ever publishing one).
func (c *Context) FinishTime() clock.Timestamp {
	return clock.Timestamp(atomic.LoadUint64(&c.finishTime))
}

func (c *Context) setFinishTime(ts clock.Timestamp) {
	atomic.StoreUint64(&c.finishTime, uint64(ts))
}

// AppendLoosePtr queues a varlen heap allocation (made obsolete by an
// UPDATE/DELETE) for the garbage collector to free once this context is
// deallocated.
func (c *Context) AppendLoosePtr(p []byte) {
	c.looseMu.Lock()
	c.loosePtrs = append(c.loosePtrs, p)
	c.looseMu.Unlock()
}

// LoosePtrs returns the queued varlen allocations. Only safe to call once
// the transaction has finished and is no longer being written to.
func (c *Context) LoosePtrs() [][]byte {
	c.looseMu.Lock()
	defer c.looseMu.Unlock()
	return c.loosePtrs
}

// ReadOnly reports whether this transaction produced no undo records —
// the signal Commit uses to route down the read-only fast path.
func (c *Context) ReadOnly() bool { return c.Undo.Empty() }

// Visibility returns the (txnID, startTime) pair table.Table.Select uses to
// decide which version of a row this transaction can see.
func (c *Context) Visibility() (clock.Timestamp, clock.Timestamp) {
	return c.TxnID, c.StartTime
}
