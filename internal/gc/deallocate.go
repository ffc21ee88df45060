package gc

import (
	"github.com/veldra/versadb/internal/clock"
	"github.com/veldra/versadb/internal/txn"
	"github.com/veldra/versadb/internal/undo"
)

// deallocItem is one entry of the deallocate queue: a transaction context
// unlinked at gate (the clock's next timestamp, read during its unlink pass)
// plus the block ids its unlink touched, for diagnostics.
type deallocItem struct {
	ctx    *txn.Context
	gate   clock.Timestamp
	blocks []uint64
}

// enqueueDeallocate moves ctx onto the deallocate queue, recording the
// epoch at which it was unlinked and the set of block ids its undo records
// touched. ctx may only be freed once oldestActive has advanced past gate —
// spec's "last_unlinked" watermark — since any reader active at unlink time
// may still hold a pointer into a record this pass truncated.
func (c *Collector) enqueueDeallocate(ctx *txn.Context, gate clock.Timestamp) {
	var blocks []uint64
	ctx.Undo.Each(func(rec *undo.Record) {
		blocks = append(blocks, rec.Slot.Block())
	})

	c.deallocMu.Lock()
	c.deallocQueue = append(c.deallocQueue, deallocItem{ctx: ctx, gate: gate, blocks: blocks})
	if gate > c.lastUnlinked {
		c.lastUnlinked = gate
	}
	c.deallocMu.Unlock()
}

// ProcessDeallocateQueue frees every queued transaction whose unlink epoch
// is old enough that no transaction active at that time could still be
// running — oldestActive > gate — and whose redo records are durably
// flushed (log_processed). Anything not yet eligible is requeued. Returns
// the number of transactions freed this pass.
func (c *Collector) ProcessDeallocateQueue(oldestActive clock.Timestamp) int {
	c.deallocMu.Lock()
	pending := c.deallocQueue
	c.deallocQueue = nil
	c.deallocMu.Unlock()

	freed := 0
	var requeue []deallocItem

	for _, item := range pending {
		if !clock.NewerThan(oldestActive, item.gate) {
			requeue = append(requeue, item)
			continue
		}
		if !item.ctx.LogProcessed() {
			requeue = append(requeue, item)
			continue
		}

		c.logFreedBlocks(item)
		freeContext(item.ctx)
		freed++
	}

	if len(requeue) > 0 {
		c.deallocMu.Lock()
		c.deallocQueue = append(c.deallocQueue, requeue...)
		c.deallocMu.Unlock()
	}

	return freed
}

// logFreedBlocks emits a debug trace for every block this transaction's
// unlink pass touched, now safe to reclaim.
func (c *Collector) logFreedBlocks(item deallocItem) {
	for _, block := range item.blocks {
		c.logger.Debug("block reclaimed", "txn_id", uint64(item.ctx.TxnID), "block", block)
	}
}

// freeContext returns a finished transaction's undo/redo arena segments to
// their pools. loose_ptrs and the context itself need no explicit free:
// once nothing references them, the runtime's own collector reclaims them.
func freeContext(ctx *txn.Context) {
	ctx.Undo.Release()
	ctx.Redo.Release()
}
