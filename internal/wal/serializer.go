package wal

import (
	"sync"
	"time"

	"github.com/veldra/versadb/internal/clock"
	"github.com/veldra/versadb/internal/logging"
	"github.com/veldra/versadb/internal/txn"
)

// DefaultSerializationInterval is how often the serializer drains its
// incoming queue even if no handoff has woken it, per spec.md §6's
// log_serialization_interval_ms.
const DefaultSerializationInterval = 5 * time.Millisecond

// handoff is one committing transaction's redo buffer plus the caller's
// commit callback, queued by Enqueue and drained by the consumer loop.
type handoff struct {
	ctx      *txn.Context
	commitTS clock.Timestamp
	callback txn.CommitCallback
}

// OutputSink is the collaborator a filled output buffer is pushed to: the
// disk writer. Decoupled from a concrete *DiskWriter so tests can substitute
// a fake.
type OutputSink interface {
	Submit(buf []byte, handoffs []pendingCommit)
}

// pendingCommit pairs a callback with the context it must mark log-processed
// once the buffer carrying its COMMIT record is durable.
type pendingCommit struct {
	ctx      *txn.Context
	callback txn.CommitCallback
}

// Serializer is the consumer-thread loop of spec.md §4.4: a single
// background goroutine that periodically swaps the incoming handoff queue
// under a latch, walks each transaction's redo buffer in commit order,
// appends a COMMIT record after each one's REDO/DELETE records, and pushes
// filled output segments to the disk writer. Grounded on the teacher's
// internal/storage.WAL buffered-append idiom (fixed buffer, flush-on-full),
// generalized from a single mutex-guarded Append call to a dedicated
// consumer goroutine fed by a handoff queue.
type Serializer struct {
	sink   OutputSink
	logger logging.Logger

	interval time.Duration

	mu      sync.Mutex
	pending []handoff
	woken   chan struct{}

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewSerializer constructs a serializer that pushes filled buffers to sink.
// logger may be nil (defaults to a no-op logger).
func NewSerializer(sink OutputSink, logger logging.Logger, interval time.Duration) *Serializer {
	if logger == nil {
		logger = logging.NewNop()
	}
	if interval <= 0 {
		interval = DefaultSerializationInterval
	}
	return &Serializer{
		sink:     sink,
		logger:   logger,
		interval: interval,
		woken:    make(chan struct{}, 1),
	}
}

// Enqueue implements txn.LogHandoff: queues ctx's redo buffer for
// serialization and wakes the consumer loop.
func (s *Serializer) Enqueue(ctx *txn.Context, commitTS clock.Timestamp, callback txn.CommitCallback) {
	s.mu.Lock()
	s.pending = append(s.pending, handoff{ctx: ctx, commitTS: commitTS, callback: callback})
	s.mu.Unlock()

	select {
	case s.woken <- struct{}{}:
	default:
	}
}

// Start launches the background consumer goroutine.
func (s *Serializer) Start() {
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	go s.run()
}

// Stop signals the consumer goroutine to exit and waits for it to drain.
func (s *Serializer) Stop() {
	if s.stopCh == nil {
		return
	}
	close(s.stopCh)
	<-s.doneCh
}

func (s *Serializer) run() {
	defer close(s.doneCh)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			s.DrainOnce()
			return
		case <-ticker.C:
			s.DrainOnce()
		case <-s.woken:
			s.DrainOnce()
		}
	}
}

// DrainOnce swaps the incoming queue and serializes every queued
// transaction's redo buffer into one output byte slice, pushing it (plus
// the commit callbacks it satisfies) to the disk writer. Exported so tests
// and a caller without a running goroutine can drive it synchronously.
func (s *Serializer) DrainOnce() {
	s.mu.Lock()
	batch := s.pending
	s.pending = nil
	s.mu.Unlock()

	if len(batch) == 0 {
		return
	}

	var out []byte
	commits := make([]pendingCommit, 0, len(batch))

	for _, h := range batch {
		for _, seg := range h.ctx.Redo.Segments() {
			out = append(out, seg.Bytes()...)
		}
		out = append(out, EncodeCommit(h.ctx.TxnID, h.commitTS)...)
		h.ctx.Redo.Release()
		commits = append(commits, pendingCommit{ctx: h.ctx, callback: h.callback})
	}

	s.logger.Debug("wal: serialized batch", "txns", len(batch), "bytes", len(out))
	s.sink.Submit(out, commits)
}
