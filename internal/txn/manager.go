package txn

import (
	"container/heap"
	"sync"

	"github.com/veldra/versadb/internal/arena"
	"github.com/veldra/versadb/internal/clock"
	"github.com/veldra/versadb/internal/logging"
	"github.com/veldra/versadb/internal/undo"
)

// CommitCallback is invoked once a committing transaction's redo records are
// durably flushed (or, for read-only transactions, immediately).
type CommitCallback func()

// LogHandoff is the consumer a committing transaction's redo buffer and
// commit callback are handed to. internal/wal.Serializer implements this;
// the interface exists so this package never imports wal.
type LogHandoff interface {
	Enqueue(txn *Context, commitTS clock.Timestamp, callback CommitCallback)
}

// deferredAction is one entry of the GC's deferred-action priority queue:
// an action gated behind a timestamp watermark.
type deferredAction struct {
	gate clock.Timestamp
	fn   func()
}

type deferredQueue []*deferredAction

func (q deferredQueue) Len() int            { return len(q) }
func (q deferredQueue) Less(i, j int) bool  { return q[i].gate < q[j].gate }
func (q deferredQueue) Swap(i, j int)       { q[i], q[j] = q[j], q[i] }
func (q *deferredQueue) Push(x interface{}) { *q = append(*q, x.(*deferredAction)) }
func (q *deferredQueue) Pop() interface{} {
	old := *q
	n := len(old)
	item := old[n-1]
	*q = old[:n-1]
	return item
}

// Manager is the transaction manager: Begin/Commit/Abort plus the
// bookkeeping the garbage collector drains — active-starts watermark,
// completed-transaction queue, and deferred-action priority queue.
type Manager struct {
	clock *clock.Source
	log   LogHandoff
	logger logging.Logger

	undoPool *arena.RecordSegmentPool
	redoPool *arena.Pool

	// commitMu linearizes Commit so commit_ts assignment and redo handoff
	// order match, per spec.md §4.1's "commit latch".
	commitMu sync.Mutex

	mu           sync.RWMutex
	activeStarts map[*Context]struct{}

	completedMu sync.Mutex
	completed   []*Context

	deferredMu sync.Mutex
	deferred   deferredQueue
}

// NewManager constructs a transaction manager. log may be nil in tests that
// don't exercise durability; logger may be nil (defaults to a no-op logger).
func NewManager(log LogHandoff, logger logging.Logger) *Manager {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Manager{
		clock:        clock.NewSource(),
		log:          log,
		logger:       logger,
		undoPool:     arena.NewRecordSegmentPool(),
		redoPool:     arena.NewPool(),
		activeStarts: make(map[*Context]struct{}),
	}
}

// Clock exposes the manager's timestamp source, e.g. for table operations
// that need to read "now" without allocating.
func (m *Manager) Clock() *clock.Source { return m.clock }

// Begin allocates a new transaction context, assigns its start time and txn
// id, and registers it in the active-starts set.
func (m *Manager) Begin() *Context {
	start := m.clock.AllocateCommitTS()
	txnID := m.clock.AllocateTxnID()
	ctx := newContext(start, txnID, m.undoPool, m.redoPool)

	m.mu.Lock()
	m.activeStarts[ctx] = struct{}{}
	m.mu.Unlock()

	m.logger.Debug("transaction begun", "txn_id", uint64(txnID), "start_time", uint64(start))
	return ctx
}

// Commit assigns a commit timestamp (unless the transaction is read-only),
// publishes every undo record's timestamp, hands the redo buffer to the log
// and moves the transaction to the GC's completed queue. callback fires once
// the transaction's redo is durable (or immediately, for read-only/no-log
// transactions).
func (m *Manager) Commit(ctx *Context, callback CommitCallback) clock.Timestamp {
	m.commitMu.Lock()
	defer m.commitMu.Unlock()

	if ctx.ReadOnly() {
		m.removeActive(ctx)
		ctx.MarkLogProcessed()
		m.enqueueCompleted(ctx)
		if callback != nil {
			callback()
		}
		m.logger.Debug("read-only transaction committed", "txn_id", uint64(ctx.TxnID))
		return 0
	}

	commitTS := m.clock.AllocateCommitTS()
	ctx.Undo.Each(func(r *undo.Record) { r.Publish(commitTS) })
	ctx.setFinishTime(commitTS)

	m.removeActive(ctx)
	m.enqueueCompleted(ctx)

	if m.log != nil {
		m.log.Enqueue(ctx, commitTS, callback)
	} else {
		ctx.MarkLogProcessed()
		if callback != nil {
			callback()
		}
	}

	m.logger.Info("transaction committed", "txn_id", uint64(ctx.TxnID), "commit_ts", uint64(commitTS))
	return commitTS
}

// Abort marks ctx aborted, rewinds every undo record's in-place image
// (newest first), and best-effort CASes each slot's chain head past its now-
// aborted record so the very next writer to that slot doesn't have to wait
// for a GC pass to stop seeing it — per spec.md §4.1's "CAS-resets the
// version pointer chain head past aborted records where possible". ctx is
// then moved to the GC's completed queue; its undo chain entries are
// unreachable as soon as the transaction is no longer active, since they
// never acquire a commit timestamp.
func (m *Manager) Abort(ctx *Context) {
	ctx.markAborted()
	ctx.Undo.EachReverse(func(r *undo.Record) {
		if ref := r.Table; ref != nil {
			_ = ref.Rewind(r)
			unlinkAbortedHead(ref.Chain(r.Slot), r)
		}
	})

	m.removeActive(ctx)
	ctx.MarkLogProcessed() // aborted transactions never log a COMMIT
	m.enqueueCompleted(ctx)

	m.logger.Info("transaction aborted", "txn_id", uint64(ctx.TxnID))
}

// unlinkAbortedHead makes a few attempts to splice rec out of chain
// immediately. A failed attempt (rec already removed, or the head moved
// again) is not an error: checkWriteConflict-equivalent callers treat an
// aborted head as non-blocking regardless, and the garbage collector's
// unlink phase retries this splice unconditionally on its next pass.
func unlinkAbortedHead(chain *undo.Chain, rec *undo.Record) {
	const maxAttempts = 4
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if chain.Remove(rec) {
			return
		}
	}
}

func (m *Manager) removeActive(ctx *Context) {
	m.mu.Lock()
	delete(m.activeStarts, ctx)
	m.mu.Unlock()
}

func (m *Manager) enqueueCompleted(ctx *Context) {
	m.completedMu.Lock()
	m.completed = append(m.completed, ctx)
	m.completedMu.Unlock()
}

// OldestTransactionStartTime returns the minimum StartTime across active
// transactions, or the clock's next value (nothing older can exist) if none
// are active.
func (m *Manager) OldestTransactionStartTime() clock.Timestamp {
	m.mu.RLock()
	defer m.mu.RUnlock()

	oldest := m.clock.Current()
	for ctx := range m.activeStarts {
		if ctx.StartTime < oldest {
			oldest = ctx.StartTime
		}
	}
	return oldest
}

// ActiveCount reports the number of currently active transactions.
func (m *Manager) ActiveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.activeStarts)
}

// Requeue puts ctx back on the completed-for-GC queue: used by the unlink
// phase when oldestActive hasn't yet passed ctx's commit timestamp.
func (m *Manager) Requeue(ctx *Context) {
	m.enqueueCompleted(ctx)
}

// CompletedTransactionsForGC drains and returns every transaction that has
// committed or aborted since the last drain.
func (m *Manager) CompletedTransactionsForGC() []*Context {
	m.completedMu.Lock()
	defer m.completedMu.Unlock()
	drained := m.completed
	m.completed = nil
	return drained
}

// Defer registers action to run once oldest_active reaches gate — used for
// bookkeeping that must wait until no transaction predating gate can still
// be running (an "epoch quiescence" gate, per spec.md §9).
func (m *Manager) Defer(gate clock.Timestamp, action func()) {
	m.deferredMu.Lock()
	heap.Push(&m.deferred, &deferredAction{gate: gate, fn: action})
	m.deferredMu.Unlock()
}

// DeferredActionsForGC drains and runs every deferred action whose gate is
// at or before oldestActive.
func (m *Manager) DeferredActionsForGC(oldestActive clock.Timestamp) int {
	m.deferredMu.Lock()
	var ready []*deferredAction
	for len(m.deferred) > 0 && m.deferred[0].gate <= oldestActive {
		ready = append(ready, heap.Pop(&m.deferred).(*deferredAction))
	}
	m.deferredMu.Unlock()

	for _, a := range ready {
		a.fn()
	}
	return len(ready)
}
