package gc

import (
	"github.com/veldra/versadb/internal/clock"
	"github.com/veldra/versadb/internal/tuple"
	"github.com/veldra/versadb/internal/txn"
	"github.com/veldra/versadb/internal/undo"
)

// slotKey identifies one table+slot pair visited during an unlink pass, so
// TruncateVersionChain runs at most once per slot per pass even if a
// transaction's undo buffer touched the same slot more than once.
type slotKey struct {
	table undo.TableRef
	slot  tuple.Slot
}

// ProcessUnlinkQueue drains the transaction manager's completed-transaction
// queue and, for every transaction no longer visible to any active reader,
// truncates the version chains it touched and moves it to the deallocate
// queue. Returns the number of version chains truncated this pass.
func (c *Collector) ProcessUnlinkQueue(oldestActive clock.Timestamp) int {
	completed := c.manager.CompletedTransactionsForGC()
	if len(completed) == 0 {
		return 0
	}

	truncated := 0
	var requeue []*txn.Context

	for _, ctx := range completed {
		if ctx.ReadOnly() {
			// Nothing was ever linked; free immediately, no deallocate-queue
			// watermark wait needed.
			continue
		}

		if !c.eligibleForUnlink(ctx, oldestActive) {
			requeue = append(requeue, ctx)
			continue
		}

		visited := make(map[slotKey]bool)
		aborted := ctx.Aborted()

		ctx.Undo.Each(func(rec *undo.Record) {
			if rec.Table == nil {
				return
			}
			key := slotKey{table: rec.Table, slot: rec.Slot}

			if aborted {
				c.unlinkAbortedRecord(rec)
				if rec.Kind == undo.Insert {
					reclaimSlotInto(ctx, rec.Table, rec.Slot)
				}
				return
			}

			if !visited[key] {
				visited[key] = true
				if n := TruncateVersionChain(rec.Table, rec.Slot, oldestActive); n > 0 {
					truncated++
				}
			}

			if rec.Kind == undo.Delete {
				reclaimSlotInto(ctx, rec.Table, rec.Slot)
			}
			if rec.Kind == undo.Update && rec.Delta != nil {
				for i, v := range rec.Delta.Values {
					if !rec.Delta.Nulls[i] && v != nil {
						ctx.AppendLoosePtr(v)
					}
				}
			}
		})

		c.enqueueDeallocate(ctx, c.manager.Clock().Current())
	}

	for _, ctx := range requeue {
		c.manager.Requeue(ctx)
	}
	return truncated
}

// reclaimSlotInto frees slot's physical storage and folds any varlen column
// pointers it held back onto ctx's loose-pointer list.
func reclaimSlotInto(ctx *txn.Context, table undo.TableRef, slot tuple.Slot) {
	var loose [][]byte
	if err := table.ReclaimSlot(slot, &loose); err != nil {
		return
	}
	for _, p := range loose {
		ctx.AppendLoosePtr(p)
	}
}

// eligibleForUnlink reports whether no currently active transaction could
// still observe ctx's writes. Aborted transactions are eligible immediately
// — an aborted record's timestamp never leaves the uncommitted space, so
// Chain.Visible only ever shows it to its own (now-dead) writer. Committed
// transactions are eligible once oldestActive has passed their commit
// timestamp.
func (c *Collector) eligibleForUnlink(ctx *txn.Context, oldestActive clock.Timestamp) bool {
	if ctx.Aborted() {
		return true
	}
	return clock.NewerThan(oldestActive, ctx.FinishTime())
}

// unlinkAbortedRecord removes rec from its chain entirely, retrying up to
// eight times if a concurrent writer replaced the head out from under it.
func (c *Collector) unlinkAbortedRecord(rec *undo.Record) {
	chain := rec.Table.Chain(rec.Slot)
	const maxAttempts = 8
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if chain.Remove(rec) {
			return
		}
	}
}

// TruncateVersionChain finds the newest record on slot's chain whose
// timestamp is strictly older than oldestActive — the version the oldest
// active reader still needs — and cuts everything beneath it loose by
// nulling that keeper's own Next pointer. The keeper itself is never the
// target of a Chain-head CAS: mutating a node's Next field never races with
// CompareAndSwapHead, which only ever compares the head pointer itself, so
// no CAS is needed here even when the keeper happens to be the current
// head. Returns the number of chains actually truncated (0 or 1).
func TruncateVersionChain(table undo.TableRef, slot tuple.Slot, oldestActive clock.Timestamp) int {
	chain := table.Chain(slot)
	keeper, _ := chain.OldestCommittedOlderThan(oldestActive)
	if keeper == nil || keeper.Next() == nil {
		return 0
	}
	keeper.SetNext(nil)
	return 1
}
