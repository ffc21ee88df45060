package blockstore

import (
	"sync"

	"github.com/veldra/versadb/internal/table"
	"github.com/veldra/versadb/internal/tuple"
)

// MemoryStore is the default in-process Block Store backend: rows live in a
// map keyed by tuple.Slot, with a reusable-slot free list so a slot freed by
// GC deallocation is handed back out before minting a new one. Grounded on
// the teacher's internal/storage.FreeList (an in-memory cache of reusable
// page ids, `freePages []PageID`, populated by Deallocate and drained by
// Allocate before minting a fresh id) — generalized from page ids to row
// slots, and from an on-disk page array to an in-memory map since this
// backend never persists.
type MemoryStore struct {
	schema Schema

	mu        sync.RWMutex
	next      uint64
	freeSlots []tuple.Slot
	rows      map[tuple.Slot]map[uint16][]byte
	deleted   map[tuple.Slot]bool
}

// NewMemoryStore constructs an empty store for the given column schema.
func NewMemoryStore(schema Schema) *MemoryStore {
	return &MemoryStore{
		schema:  schema,
		rows:    make(map[tuple.Slot]map[uint16][]byte),
		deleted: make(map[tuple.Slot]bool),
	}
}

// Allocate implements table.BlockStore: reuses a freed slot if one is
// available, otherwise mints the next one.
func (s *MemoryStore) Allocate() (tuple.Slot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n := len(s.freeSlots); n > 0 {
		slot := s.freeSlots[n-1]
		s.freeSlots = s.freeSlots[:n-1]
		s.rows[slot] = make(map[uint16][]byte, len(s.schema))
		delete(s.deleted, slot)
		return slot, nil
	}

	s.next++
	slot := tuple.NewSlot(s.next, 0)
	s.rows[slot] = make(map[uint16][]byte, len(s.schema))
	return slot, nil
}

// Deallocate implements table.BlockStore: drops the row's physical storage
// and returns the slot to the free list for reuse.
func (s *MemoryStore) Deallocate(slot tuple.Slot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rows, slot)
	delete(s.deleted, slot)
	s.freeSlots = append(s.freeSlots, slot)
	return nil
}

// Access implements table.TupleAccessor.
func (s *MemoryStore) Access(slot tuple.Slot, col uint16) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.rows[slot][col]
	return v, ok
}

// AccessForceNotNull implements table.TupleAccessor.
func (s *MemoryStore) AccessForceNotNull(slot tuple.Slot, col uint16) []byte {
	v, present := s.Access(slot, col)
	if !present {
		panic("blockstore: column is null")
	}
	return v
}

// IsVarlen implements table.TupleAccessor.
func (s *MemoryStore) IsVarlen(col uint16) bool { return s.schema.isVarlen(col) }

// NumColumns implements table.TupleAccessor.
func (s *MemoryStore) NumColumns() int { return len(s.schema) }

// AttrSize implements table.TupleAccessor.
func (s *MemoryStore) AttrSize(col uint16) int { return s.schema.attrSize(col) }

// WriteFull implements table.TupleAccessor.
func (s *MemoryStore) WriteFull(slot tuple.Slot, row []table.ColumnWrite) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := make(map[uint16][]byte, len(row))
	for _, cw := range row {
		if cw.Value != nil {
			m[cw.ID] = cw.Value
		}
	}
	s.rows[slot] = m
	return nil
}

// WritePartial implements table.TupleAccessor.
func (s *MemoryStore) WritePartial(slot tuple.Slot, delta []table.ColumnWrite) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row := s.rows[slot]
	for _, cw := range delta {
		if cw.Value == nil {
			delete(row, cw.ID)
		} else {
			row[cw.ID] = cw.Value
		}
	}
	return nil
}

// MarkDeleted implements table.TupleAccessor.
func (s *MemoryStore) MarkDeleted(slot tuple.Slot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleted[slot] = true
	return nil
}

// ClearDeleted implements table.TupleAccessor.
func (s *MemoryStore) ClearDeleted(slot tuple.Slot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.deleted, slot)
	return nil
}

// IsDeleted implements table.TupleAccessor.
func (s *MemoryStore) IsDeleted(slot tuple.Slot) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.deleted[slot]
}
