package table

import (
	"github.com/veldra/versadb/internal/clock"
	"github.com/veldra/versadb/internal/tuple"
	"github.com/veldra/versadb/internal/txn"
	"github.com/veldra/versadb/internal/undo"
	"github.com/veldra/versadb/internal/wal"
)

// Insert allocates a slot, writes row as its physical image, and installs an
// INSERT undo record as the (necessarily uncontended) chain head.
func (t *Table) Insert(tx *txn.Context, row []ColumnWrite) (tuple.Slot, error) {
	slot, err := t.Store.Allocate()
	if err != nil {
		return 0, err
	}
	if err := t.Accessor.WriteFull(slot, row); err != nil {
		return 0, err
	}

	rec := undo.NewRecord(undo.Insert, tx.TxnID, t, slot, nil, tx.AbortedFlag())
	chain := t.chainFor(slot)
	if !chain.CompareAndSwapHead(nil, rec) {
		// A slot fresh off Allocate can't already have a chain; a non-nil
		// head here is a programmer error in the BlockStore collaborator.
		panic("table: freshly allocated slot already has a version chain")
	}
	tx.Undo.Append(rec)
	tx.Redo.Write(wal.EncodeRedo(tx.TxnID, t.DBOID, t.OID, slot, t.columnValues(row)))
	return slot, nil
}

// Update stages an undo record carrying delta's pre-image, installs it as
// the new chain head via CAS (retrying on contention from another writer
// that lost the race and must see ErrConflict, not silently retry forever),
// and applies delta to the physical tuple.
func (t *Table) Update(tx *txn.Context, slot tuple.Slot, delta []ColumnWrite) error {
	chain := t.chainFor(slot)

	for {
		head := chain.Head()
		if err := checkWriteConflict(head, tx); err != nil {
			return err
		}

		oldDelta := t.captureOldImage(slot, delta)
		rec := undo.NewRecord(undo.Update, tx.TxnID, t, slot, oldDelta, tx.AbortedFlag())
		rec.SetNext(head)

		if chain.CompareAndSwapHead(head, rec) {
			if err := t.Accessor.WritePartial(slot, delta); err != nil {
				return err
			}
			tx.Undo.Append(rec)
			tx.Redo.Write(wal.EncodeRedo(tx.TxnID, t.DBOID, t.OID, slot, t.columnValues(delta)))
			return nil
		}
		// Lost the race: re-read and re-check from the top.
	}
}

// Delete installs a DELETE undo record using the same protocol as Update;
// physical reclamation happens later, in the GC's unlink phase.
func (t *Table) Delete(tx *txn.Context, slot tuple.Slot) error {
	chain := t.chainFor(slot)

	for {
		head := chain.Head()
		if err := checkWriteConflict(head, tx); err != nil {
			return err
		}

		rec := undo.NewRecord(undo.Delete, tx.TxnID, t, slot, nil, tx.AbortedFlag())
		rec.SetNext(head)

		if chain.CompareAndSwapHead(head, rec) {
			if err := t.Accessor.MarkDeleted(slot); err != nil {
				return err
			}
			tx.Undo.Append(rec)
			tx.Redo.Write(wal.EncodeDelete(tx.TxnID, t.DBOID, t.OID, slot))
			return nil
		}
	}
}

// columnValues adapts a ColumnWrite slice to wal.ColumnValue for redo
// encoding, consulting the accessor to mark each column varlen or fixed.
func (t *Table) columnValues(writes []ColumnWrite) []wal.ColumnValue {
	cols := make([]wal.ColumnValue, len(writes))
	for i, cw := range writes {
		cols[i] = wal.ColumnValue{
			ID:      cw.ID,
			Present: cw.Value != nil,
			Varlen:  t.Accessor.IsVarlen(cw.ID),
			Value:   cw.Value,
		}
	}
	return cols
}

func checkWriteConflict(head *undo.Record, tx *txn.Context) error {
	if head == nil || head.Aborted() {
		// An aborted head is invisible to every transaction but its own
		// (dead) writer — per spec.md §4.1, Abort is supposed to CAS the
		// chain head past it immediately, but that reset races with this
		// check and with the garbage collector's own unlink pass, so a
		// stale aborted head must never block a fresh writer. The new
		// record links on top of it exactly as it would on top of any
		// other invisible version; the GC unlink phase splices the aborted
		// record out for good on its next pass.
		return nil
	}
	ts := head.Timestamp()
	ownedByMe := ts == tx.TxnID
	committedOlder := clock.Committed(ts) && clock.NewerThan(tx.StartTime, ts)
	if !ownedByMe && !committedOlder {
		return ErrConflict
	}
	return nil
}

// captureOldImage snapshots delta's columns as they currently stand
// physically, before WritePartial overwrites them — this is the UPDATE
// undo record's before-image.
func (t *Table) captureOldImage(slot tuple.Slot, delta []ColumnWrite) *undo.Delta {
	d := &undo.Delta{
		ColumnIDs: make([]uint16, len(delta)),
		Nulls:     make([]bool, len(delta)),
		Values:    make([][]byte, len(delta)),
	}
	for i, cw := range delta {
		d.ColumnIDs[i] = cw.ID
		if v, present := t.Accessor.Access(slot, cw.ID); present {
			d.Values[i] = v
		} else {
			d.Nulls[i] = true
		}
	}
	return d
}

// Rewind implements undo.TableRef for Abort: reverses this record's effect
// on the physical tuple.
func (t *Table) Rewind(rec *undo.Record) error {
	switch rec.Kind {
	case undo.Insert:
		return t.Accessor.MarkDeleted(rec.Slot)
	case undo.Update:
		if rec.Delta == nil {
			return nil
		}
		writes := make([]ColumnWrite, len(rec.Delta.ColumnIDs))
		for i, col := range rec.Delta.ColumnIDs {
			writes[i] = ColumnWrite{ID: col}
			if !rec.Delta.Nulls[i] {
				writes[i].Value = rec.Delta.Values[i]
			}
		}
		return t.Accessor.WritePartial(rec.Slot, writes)
	case undo.Delete:
		return t.Accessor.ClearDeleted(rec.Slot)
	}
	return nil
}

// ReclaimSlot implements undo.TableRef for the garbage collector's
// unlink phase: frees the physical slot and queues any varlen pointers
// made obsolete by the records up to this point onto loosePtrs. The only two
// callers — a committed DELETE and an aborted INSERT's rewind — both call
// Accessor.MarkDeleted on this slot before the record they installed can
// ever reach here, so a slot arriving unmarked means some other path
// reclaimed it without going through the version chain first.
func (t *Table) ReclaimSlot(slot tuple.Slot, loosePtrs *[][]byte) error {
	if !t.Accessor.IsDeleted(slot) {
		return ErrNotMarkedDeleted
	}
	for col := uint16(0); col < uint16(t.Accessor.NumColumns()); col++ {
		if !t.Accessor.IsVarlen(col) {
			continue
		}
		if v, present := t.Accessor.Access(slot, col); present {
			*loosePtrs = append(*loosePtrs, v)
		}
	}
	t.chainsMu.Lock()
	delete(t.chains, slot)
	t.chainsMu.Unlock()
	return t.Store.Deallocate(slot)
}
