// Package table implements data table operations — Insert, Update, Select,
// Delete — against versioned storage: write-write conflict detection and
// CAS-retry on each slot's undo.Chain head, and snapshot-consistent reads by
// walking the chain and replaying undo deltas.
package table

import (
	"errors"
	"sync"

	"github.com/veldra/versadb/internal/clock"
	"github.com/veldra/versadb/internal/tuple"
	"github.com/veldra/versadb/internal/undo"
	"github.com/veldra/versadb/internal/wal"
)

// ErrConflict is returned by Update/Delete on a write-write conflict: the
// caller's transaction must abort.
var ErrConflict = errors.New("table: write-write conflict")

// ErrNotFound is returned by Select when the slot's reconstructed version is
// not visible (deleted or never written, from the reader's snapshot).
var ErrNotFound = errors.New("table: row not visible")

// ErrNotMarkedDeleted is returned by ReclaimSlot when asked to free a slot
// whose accessor doesn't have it marked logically deleted.
var ErrNotMarkedDeleted = errors.New("table: reclaiming a slot not marked deleted")

// BlockStore is the "Allocate()/Deallocate(slot)" collaborator: obtains and
// frees the stable (block, offset) handle a tuple physically lives at. Block
// internals (slotted layout, free lists) are an external collaborator's
// concern; the core only ever sees the TupleSlot handle.
type BlockStore interface {
	Allocate() (tuple.Slot, error)
	Deallocate(slot tuple.Slot) error
}

// ColumnWrite is one column's value for a physical write (full row insert or
// partial delta application). A nil Value marks the column null.
type ColumnWrite struct {
	ID    uint16
	Value []byte
}

// TupleAccessor is the column access strategy collaborator: physical
// read/write of a row's columns, independent of versioning.
type TupleAccessor interface {
	// Access returns the column's current physical value and whether it is
	// present (non-null).
	Access(slot tuple.Slot, col uint16) ([]byte, bool)
	// AccessForceNotNull is Access but panics (a Logic error per spec.md §7)
	// if the column is null — used where the caller has already verified
	// presence via a null bitmap.
	AccessForceNotNull(slot tuple.Slot, col uint16) []byte
	IsVarlen(col uint16) bool
	NumColumns() int
	AttrSize(col uint16) int

	// WriteFull installs row as slot's entire physical image (Insert).
	WriteFull(slot tuple.Slot, row []ColumnWrite) error
	// WritePartial applies delta's columns in place (Update, and Abort's
	// rewind of an UPDATE's before-image).
	WritePartial(slot tuple.Slot, delta []ColumnWrite) error
	// MarkDeleted/ClearDeleted flip the slot's logical-deletion mark; the
	// physical row is only actually freed later, in the GC's unlink phase.
	MarkDeleted(slot tuple.Slot) error
	ClearDeleted(slot tuple.Slot) error
	// IsDeleted reports the slot's current logical-deletion mark. ReclaimSlot
	// consults it as a last-line invariant check before physically freeing a
	// slot's storage.
	IsDeleted(slot tuple.Slot) bool
}

// Row is a reconstructed tuple: one value per column, indexed by column id,
// nil meaning null.
type Row map[uint16][]byte

// Table is a single versioned relation: physical storage (BlockStore +
// TupleAccessor) plus the per-slot version-chain registry every undo record
// installs into.
type Table struct {
	OID   uint32
	DBOID uint32

	Store    BlockStore
	Accessor TupleAccessor

	chainsMu sync.RWMutex
	chains   map[tuple.Slot]*undo.Chain
}

// New constructs a Table over the given physical collaborators.
func New(dbOID, oid uint32, store BlockStore, accessor TupleAccessor) *Table {
	return &Table{
		OID:      oid,
		DBOID:    dbOID,
		Store:    store,
		Accessor: accessor,
		chains:   make(map[tuple.Slot]*undo.Chain),
	}
}

func (t *Table) chainFor(slot tuple.Slot) *undo.Chain {
	t.chainsMu.RLock()
	c, ok := t.chains[slot]
	t.chainsMu.RUnlock()
	if ok {
		return c
	}

	t.chainsMu.Lock()
	defer t.chainsMu.Unlock()
	if c, ok = t.chains[slot]; ok {
		return c
	}
	c = &undo.Chain{}
	t.chains[slot] = c
	return c
}

// Chain exposes a slot's version chain — used by the garbage collector's
// unlink/truncate pass, which otherwise has no route to a table's internal
// per-slot registry.
func (t *Table) Chain(slot tuple.Slot) *undo.Chain { return t.chainFor(slot) }

// Select reconstructs the row visible to txn at slot: starts from the
// physical (current) image and walks the version chain from head, applying
// each visited UPDATE's before-image in reverse until a version timestamped
// visible per invariant 3 is reached. Returns ErrNotFound if that version is
// a DELETE, or the walk never finds one.
func (t *Table) Select(txn Snapshot, slot tuple.Slot) (Row, error) {
	row := t.physicalRow(slot)
	txnID, startTime := txn.Visibility()

	chain := t.chainFor(slot)
	for r := chain.Head(); r != nil; r = r.Next() {
		ts := r.Timestamp()
		visible := ts == txnID || (clock.Committed(ts) && clock.NewerThan(startTime, ts))
		if visible {
			switch r.Kind {
			case undo.Delete:
				return nil, ErrNotFound
			default:
				return row, nil
			}
		}
		if r.Kind == undo.Update && r.Delta != nil {
			applyDelta(row, r.Delta)
		}
		if r.Kind == undo.Insert {
			// Nothing older than an INSERT; if we reach it without having
			// matched visibility, the row didn't exist yet for this reader.
			return nil, ErrNotFound
		}
	}
	// Ran off the tail (or the chain is empty, as after an aborted INSERT
	// was spliced out) without a visible version.
	return nil, ErrNotFound
}

func (t *Table) physicalRow(slot tuple.Slot) Row {
	row := make(Row, t.Accessor.NumColumns())
	for col := uint16(0); col < uint16(t.Accessor.NumColumns()); col++ {
		if v, present := t.Accessor.Access(slot, col); present {
			row[col] = v
		} else {
			row[col] = nil
		}
	}
	return row
}

func applyDelta(row Row, delta *undo.Delta) {
	for i, col := range delta.ColumnIDs {
		if i < len(delta.Nulls) && delta.Nulls[i] {
			row[col] = nil
		} else if i < len(delta.Values) {
			row[col] = delta.Values[i]
		}
	}
}

// columnSizer adapts TupleAccessor's separate AttrSize/IsVarlen methods to
// the single two-valued method wal.Decode expects when replaying this
// table's redo records.
type columnSizer struct{ accessor TupleAccessor }

func (s columnSizer) AttrSize(col uint16) (int, bool) {
	return s.accessor.AttrSize(col), s.accessor.IsVarlen(col)
}

// ColumnSizer returns the wal.ColumnSizer for this table's column layout.
func (t *Table) ColumnSizer() wal.ColumnSizer { return columnSizer{t.Accessor} }

// Snapshot is the minimal view Select/Update/Delete need of a transaction:
// its own id (for read-your-writes and CAS ownership checks) and its start
// timestamp (for snapshot visibility). internal/txn.Context satisfies this.
type Snapshot interface {
	Visibility() (txnID, startTime clock.Timestamp)
}
