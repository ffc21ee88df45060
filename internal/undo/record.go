// Package undo implements the per-tuple version chain: singly-linked,
// newest-to-oldest lists of before-images that let readers reconstruct
// older versions of a row and let aborts roll back in-place writes.
//
// The chain head is the only node that races with concurrent writers (via
// CAS on the owning Chain's pointer); every other node is immutable once
// linked except for the two fields the transaction manager and garbage
// collector are allowed to mutate after install: Timestamp (flipped from
// txn id to commit ts at commit) and Next (rewritten only by a single-
// threaded GC unlink pass, or CAS'd by a writer at the head).
package undo

import (
	"sync/atomic"

	"github.com/veldra/versadb/internal/clock"
	"github.com/veldra/versadb/internal/tuple"
)

// Kind is the closed set of undo record variants. Modeled as a tagged
// variant rather than a type hierarchy: INSERT, UPDATE, DELETE are the only
// cases the engine ever produces.
type Kind uint8

const (
	// Insert records that a slot had no prior version.
	Insert Kind = iota
	// Update records the pre-image of a projected set of columns.
	Update
	// Delete records a logical deletion; physical reclamation happens in
	// the GC's unlink phase once the deleting transaction is committed and
	// unlinked.
	Delete
)

func (k Kind) String() string {
	switch k {
	case Insert:
		return "INSERT"
	case Update:
		return "UPDATE"
	case Delete:
		return "DELETE"
	default:
		return "UNKNOWN"
	}
}

// Delta is the projected row carried by an UPDATE undo record: a subset of
// columns, a null bitmap, and the pre-image values for those columns.
type Delta struct {
	ColumnIDs []uint16
	Nulls     []bool
	Values    [][]byte
}

// TableRef is the non-owning back-reference an undo Record keeps to the
// table it belongs to, used by Abort to rewind the in-place tuple image and
// by the garbage collector to reclaim physical storage. It is an interface
// (rather than a concrete *table.Table) so this package never imports the
// table package back.
type TableRef interface {
	// Chain returns the version-chain cell for slot, letting the garbage
	// collector truncate it without the table exposing its internal
	// per-slot registry.
	Chain(slot tuple.Slot) *Chain
	// Rewind re-applies this record's before-image to its slot: for an
	// INSERT record that means erasing the tuple, for UPDATE re-applying
	// Delta's old values, for DELETE clearing the logical-deletion mark.
	Rewind(rec *Record) error
	ReclaimSlot(slot tuple.Slot, loosePtrs *[][]byte) error
}

// Record is one entry in a tuple's version chain.
type Record struct {
	Kind  Kind
	Delta *Delta // non-nil only for Update

	// timestamp starts as the writer's txn id (high bit set) and is
	// atomically flipped to the commit timestamp when the owning
	// transaction commits. Readers must use Timestamp()/Publish() to
	// avoid torn reads on 32-bit platforms.
	timestamp uint64

	// next points to the next-older record on the same slot's chain, or
	// nil at the tail. Only the head node's next may race with a writer's
	// CAS; non-head nodes are rewritten only by the (single-threaded) GC.
	next atomic.Pointer[Record]

	// Table and Slot are the nullable back-reference the GC uses to
	// reclaim physical storage. An aborted tail record installed then
	// immediately unlinked may carry a nil Table.
	Table TableRef
	Slot  tuple.Slot

	// aborted is a pointer shared with the owning transaction's context.
	// It lets a concurrent writer (table.checkWriteConflict) detect that
	// this record's writer has aborted, so a stale aborted head never
	// blocks a new write.
	aborted *atomic.Bool
}

// NewRecord constructs an undo record owned by the given writer, not yet
// linked to any chain. aborted is the writer's shared abort flag (may be
// nil, e.g. in tests that never abort).
func NewRecord(kind Kind, writerTxnID clock.Timestamp, table TableRef, slot tuple.Slot, delta *Delta, aborted *atomic.Bool) *Record {
	r := &Record{
		Kind:    kind,
		Delta:   delta,
		Table:   table,
		Slot:    slot,
		aborted: aborted,
	}
	r.timestamp = uint64(writerTxnID)
	return r
}

// Aborted reports whether the writer that created this record has since
// rewound it.
func (r *Record) Aborted() bool {
	return r.aborted != nil && r.aborted.Load()
}

// Timestamp returns the record's current timestamp: a txn id before commit,
// a commit timestamp after.
func (r *Record) Timestamp() clock.Timestamp {
	return clock.Timestamp(atomic.LoadUint64(&r.timestamp))
}

// Publish atomically flips the record's timestamp from the writer's txn id
// to its commit timestamp. Called once, by Commit, for every undo record in
// a committing transaction's undo buffer — this is the "version publication"
// step readers rely on.
func (r *Record) Publish(commitTS clock.Timestamp) {
	atomic.StoreUint64(&r.timestamp, uint64(commitTS))
}

// Next returns the next-older record in the chain, or nil at the tail.
func (r *Record) Next() *Record {
	return r.next.Load()
}

// SetNext installs next as the successor. Safe without CAS only when the
// caller holds the exclusive right to mutate this node: either it is not
// yet reachable from any Chain (the writer linking a freshly built record
// onto the old head before attempting CompareAndSwapHead), or the caller is
// the single-threaded GC truncating a non-head node.
func (r *Record) SetNext(next *Record) {
	r.next.Store(next)
}

// CompareAndSwapNext atomically replaces the successor with new iff it is
// still old. The chain-head install/unlink CAS is Chain.CompareAndSwapHead.
func (r *Record) CompareAndSwapNext(old, new *Record) bool {
	return r.next.CompareAndSwap(old, new)
}
