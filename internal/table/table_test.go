package table

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veldra/versadb/internal/tuple"
	"github.com/veldra/versadb/internal/txn"
)

// memStore is a minimal in-memory BlockStore + TupleAccessor double used to
// exercise Table's versioning logic independent of any real physical layout.
type memStore struct {
	mu       sync.Mutex
	next     uint64
	rows     map[tuple.Slot]map[uint16][]byte
	deleted  map[tuple.Slot]bool
	numCols  int
	varlenOf map[uint16]bool
}

func newMemStore(numCols int, varlen map[uint16]bool) *memStore {
	return &memStore{
		rows:     make(map[tuple.Slot]map[uint16][]byte),
		deleted:  make(map[tuple.Slot]bool),
		numCols:  numCols,
		varlenOf: varlen,
	}
}

func (s *memStore) Allocate() (tuple.Slot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	slot := tuple.NewSlot(0, uint16(s.next))
	s.rows[slot] = make(map[uint16][]byte)
	return slot, nil
}

func (s *memStore) Deallocate(slot tuple.Slot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rows, slot)
	delete(s.deleted, slot)
	return nil
}

func (s *memStore) Access(slot tuple.Slot, col uint16) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.rows[slot][col]
	return v, ok
}

func (s *memStore) AccessForceNotNull(slot tuple.Slot, col uint16) []byte {
	v, ok := s.Access(slot, col)
	if !ok {
		panic("table: column is null")
	}
	return v
}

func (s *memStore) IsVarlen(col uint16) bool { return s.varlenOf[col] }
func (s *memStore) NumColumns() int          { return s.numCols }
func (s *memStore) AttrSize(col uint16) int {
	if s.varlenOf[col] {
		return 0
	}
	return 8
}

func (s *memStore) WriteFull(slot tuple.Slot, row []ColumnWrite) error {
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

func (s *memStore) WritePartial(slot tuple.Slot, delta []ColumnWrite) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, cw := range delta {
		if cw.Value == nil {
			delete(s.rows[slot], cw.ID)
		} else {
			s.rows[slot][cw.ID] = cw.Value
		}
	}
	return nil
}

func (s *memStore) MarkDeleted(slot tuple.Slot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleted[slot] = true
	return nil
}

func (s *memStore) ClearDeleted(slot tuple.Slot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.deleted, slot)
	return nil
}

func (s *memStore) IsDeleted(slot tuple.Slot) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deleted[slot]
}

func TestTable_InsertThenSelectSameTxn(t *testing.T) {
	store := newMemStore(1, nil)
	tbl := New(1, 1, store, store)
	m := txn.NewManager(nil, nil)

	tx := m.Begin()
	slot, err := tbl.Insert(tx, []ColumnWrite{{ID: 0, Value: []byte("a")}})
	require.NoError(t, err)

	row, err := tbl.Select(tx, slot)
	require.NoError(t, err)
	assert.Equal(t, []byte("a"), row[0])
}

func TestTable_SingleWriterSingleReaderSnapshotIsolation(t *testing.T) {
	store := newMemStore(1, nil)
	tbl := New(1, 1, store, store)
	m := txn.NewManager(nil, nil)

	t1 := m.Begin()
	slot, err := tbl.Insert(t1, []ColumnWrite{{ID: 0, Value: []byte("1")}})
	require.NoError(t, err)
	m.Commit(t1, nil)

	t2 := m.Begin()
	row, err := tbl.Select(t2, slot)
	require.NoError(t, err)
	assert.Equal(t, []byte("1"), row[0])
}

func TestTable_ConcurrentUpdateExactlyOneConflicts(t *testing.T) {
	store := newMemStore(1, nil)
	tbl := New(1, 1, store, store)
	m := txn.NewManager(nil, nil)

	setup := m.Begin()
	slot, err := tbl.Insert(setup, []ColumnWrite{{ID: 0, Value: []byte("1")}})
	require.NoError(t, err)
	m.Commit(setup, nil)

	t1 := m.Begin()
	t2 := m.Begin()

	err1 := tbl.Update(t1, slot, []ColumnWrite{{ID: 0, Value: []byte("2")}})
	err2 := tbl.Update(t2, slot, []ColumnWrite{{ID: 0, Value: []byte("3")}})

	assert.NoError(t, err1)
	assert.ErrorIs(t, err2, ErrConflict)
}

func TestTable_AbortRewindsInsert(t *testing.T) {
	store := newMemStore(1, nil)
	tbl := New(1, 1, store, store)
	m := txn.NewManager(nil, nil)

	t1 := m.Begin()
	slot, err := tbl.Insert(t1, []ColumnWrite{{ID: 0, Value: []byte("x")}})
	require.NoError(t, err)
	m.Abort(t1)

	assert.True(t, store.deleted[slot])
}

func TestTable_UpdateAfterPriorAbortDoesNotSpuriouslyConflict(t *testing.T) {
	store := newMemStore(1, nil)
	tbl := New(1, 1, store, store)
	m := txn.NewManager(nil, nil)

	setup := m.Begin()
	slot, err := tbl.Insert(setup, []ColumnWrite{{ID: 0, Value: []byte("1")}})
	require.NoError(t, err)
	m.Commit(setup, nil)

	aborter := m.Begin()
	require.NoError(t, tbl.Update(aborter, slot, []ColumnWrite{{ID: 0, Value: []byte("2")}}))
	m.Abort(aborter)

	// A fresh writer must see this slot as if the aborted update never
	// happened, with no stall waiting for a GC pass to clean up the chain.
	next := m.Begin()
	require.NoError(t, tbl.Update(next, slot, []ColumnWrite{{ID: 0, Value: []byte("3")}}))
	m.Commit(next, nil)

	reader := m.Begin()
	row, err := tbl.Select(reader, slot)
	require.NoError(t, err)
	assert.Equal(t, []byte("3"), row[0])
}

func TestTable_DeleteAfterPriorAbortedDeleteDoesNotSpuriouslyConflict(t *testing.T) {
	store := newMemStore(1, nil)
	tbl := New(1, 1, store, store)
	m := txn.NewManager(nil, nil)

	setup := m.Begin()
	slot, err := tbl.Insert(setup, []ColumnWrite{{ID: 0, Value: []byte("1")}})
	require.NoError(t, err)
	m.Commit(setup, nil)

	aborter := m.Begin()
	require.NoError(t, tbl.Delete(aborter, slot))
	m.Abort(aborter)

	next := m.Begin()
	require.NoError(t, tbl.Update(next, slot, []ColumnWrite{{ID: 0, Value: []byte("still alive")}}))
	m.Commit(next, nil)
}

func TestTable_ReclaimSlotRejectsSlotNotMarkedDeleted(t *testing.T) {
	store := newMemStore(1, nil)
	tbl := New(1, 1, store, store)
	m := txn.NewManager(nil, nil)

	tx := m.Begin()
	slot, err := tbl.Insert(tx, []ColumnWrite{{ID: 0, Value: []byte("x")}})
	require.NoError(t, err)
	m.Commit(tx, nil)

	var loose [][]byte
	err = tbl.ReclaimSlot(slot, &loose)
	assert.ErrorIs(t, err, ErrNotMarkedDeleted)
}

func TestTable_ReclaimSlotFreesSlotMarkedDeleted(t *testing.T) {
	store := newMemStore(1, nil)
	tbl := New(1, 1, store, store)
	m := txn.NewManager(nil, nil)

	setup := m.Begin()
	slot, err := tbl.Insert(setup, []ColumnWrite{{ID: 0, Value: []byte("x")}})
	require.NoError(t, err)
	m.Commit(setup, nil)

	del := m.Begin()
	require.NoError(t, tbl.Delete(del, slot))
	m.Commit(del, nil)

	var loose [][]byte
	require.NoError(t, tbl.ReclaimSlot(slot, &loose))

	_, stillPresent := store.rows[slot]
	assert.False(t, stillPresent, "reclaimed slot's physical storage must be gone")
}

func TestTable_DeleteThenSelectNotFound(t *testing.T) {
	store := newMemStore(1, nil)
	tbl := New(1, 1, store, store)
	m := txn.NewManager(nil, nil)

	setup := m.Begin()
	slot, err := tbl.Insert(setup, []ColumnWrite{{ID: 0, Value: []byte("1")}})
	require.NoError(t, err)
	m.Commit(setup, nil)

	del := m.Begin()
	require.NoError(t, tbl.Delete(del, slot))
	m.Commit(del, nil)

	reader := m.Begin()
	_, err = tbl.Select(reader, slot)
	assert.ErrorIs(t, err, ErrNotFound)
}
