package undo

import (
	"sync/atomic"

	"github.com/veldra/versadb/internal/clock"
)

// Chain is the per-tuple VersionPointer: an atomic cell living in the
// slot's metadata, pointing at the head of its undo chain (newest-to-oldest
// by timestamp), or nil if the tuple has never been written.
//
// The chain head is the only node whose successor races with concurrent
// writers; Chain.head is the pointer that actually carries that race, via
// CompareAndSwap.
type Chain struct {
	head atomic.Pointer[Record]
}

// Head returns the current chain head, or nil if the tuple has no version
// yet.
func (c *Chain) Head() *Record {
	return c.head.Load()
}

// CompareAndSwapHead installs new as the chain head iff the current head is
// still old. Used by Insert (old == nil) and by Update/Delete's
// write-write-conflict-checked install.
func (c *Chain) CompareAndSwapHead(old, new *Record) bool {
	return c.head.CompareAndSwap(old, new)
}

// Visible walks the chain from head looking for the version visible to a
// reader with the given start timestamp and (if it is itself a writer)
// txnID. Per invariant 3: a transaction sees version V iff
// Committed(V.ts) && V.ts < start, or V.ts == txnID.
//
// Returns the visible record (nil if the tuple is visible-as-nonexistent,
// i.e. the walk ran off the tail without finding a visible version).
func (c *Chain) Visible(start clock.Timestamp, txnID clock.Timestamp) *Record {
	for r := c.Head(); r != nil; r = r.Next() {
		ts := r.Timestamp()
		if ts == txnID || (clock.Committed(ts) && clock.NewerThan(start, ts)) {
			return r
		}
	}
	return nil
}

// Remove splices target out of the chain: if target is currently the head,
// it CASes the head down to target's successor; otherwise it walks to find
// target's predecessor and rewrites that predecessor's Next directly (safe
// under the single-threaded GC invariant, since only the head is raced by
// writers). Reports whether target was found and removed; a false return
// means a concurrent writer already moved the head or a concurrent GC pass
// already removed target; the callers (txn.Manager.Abort's
// unlinkAbortedHead and the GC's unlinkAbortedRecord) retry a bounded
// number of times.
func (c *Chain) Remove(target *Record) bool {
	head := c.Head()
	if head == target {
		return c.head.CompareAndSwap(head, target.Next())
	}
	for r := head; r != nil; r = r.Next() {
		if r.Next() == target {
			r.SetNext(target.Next())
			return true
		}
	}
	return false
}

// OldestCommittedOlderThan returns the newest record on the chain whose
// timestamp is a commit timestamp strictly older than watermark, along with
// its predecessor (the record immediately newer than it on the chain; nil
// when target is the head). The GC truncates by clearing target's own Next
// and does not use predecessor. Both return values are nil if no such record
// exists (every version is still needed).
//
// This implements the search half of TruncateVersionChain: "find the newest
// UndoRecord whose timestamp is strictly older than oldest_active."
func (c *Chain) OldestCommittedOlderThan(watermark clock.Timestamp) (target, predecessor *Record) {
	var prev *Record
	for r := c.Head(); r != nil; r = r.Next() {
		ts := r.Timestamp()
		if clock.Committed(ts) && clock.NewerThan(watermark, ts) {
			return r, prev
		}
		prev = r
	}
	return nil, nil
}
