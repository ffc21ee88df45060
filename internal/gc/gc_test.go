package gc

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veldra/versadb/internal/clock"
	"github.com/veldra/versadb/internal/table"
	"github.com/veldra/versadb/internal/tuple"
	"github.com/veldra/versadb/internal/txn"
)

// memStore is a minimal in-memory table.BlockStore + table.TupleAccessor
// double, mirroring the table package's own test double.
type memStore struct {
	mu      sync.Mutex
	next    uint64
	rows    map[tuple.Slot]map[uint16][]byte
	deleted map[tuple.Slot]bool
	freed   map[tuple.Slot]bool
}

func newMemStore() *memStore {
	return &memStore{
		rows:    make(map[tuple.Slot]map[uint16][]byte),
		deleted: make(map[tuple.Slot]bool),
		freed:   make(map[tuple.Slot]bool),
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
	s.freed[slot] = true
	return nil
}

func (s *memStore) Access(slot tuple.Slot, col uint16) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.rows[slot][col]
	return v, ok
}

func (s *memStore) AccessForceNotNull(slot tuple.Slot, col uint16) []byte {
	v, _ := s.Access(slot, col)
	return v
}

func (s *memStore) IsVarlen(col uint16) bool { return false }
func (s *memStore) NumColumns() int          { return 1 }
func (s *memStore) AttrSize(col uint16) int  { return 8 }

func (s *memStore) WriteFull(slot tuple.Slot, row []table.ColumnWrite) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := make(map[uint16][]byte, len(row))
	for _, cw := range row {
		m[cw.ID] = cw.Value
	}
	s.rows[slot] = m
	return nil
}

func (s *memStore) WritePartial(slot tuple.Slot, delta []table.ColumnWrite) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, cw := range delta {
		s.rows[slot][cw.ID] = cw.Value
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

func TestCollector_AbortedInsertReclaimedNextPass(t *testing.T) {
	store := newMemStore()
	tbl := table.New(1, 1, store, store)
	mgr := txn.NewManager(nil, nil)
	coll := New(mgr, nil, DefaultConfig())

	tx := mgr.Begin()
	slot, err := tbl.Insert(tx, []table.ColumnWrite{{ID: 0, Value: []byte("x")}})
	require.NoError(t, err)
	mgr.Abort(tx)

	coll.RunOnce()

	assert.Nil(t, tbl.Chain(slot).Head())
	assert.True(t, store.freed[slot])
}

func TestCollector_CommittedDeleteHeldBackByActiveReader(t *testing.T) {
	store := newMemStore()
	tbl := table.New(1, 1, store, store)
	mgr := txn.NewManager(nil, nil)
	coll := New(mgr, nil, DefaultConfig())

	setup := mgr.Begin()
	slot, err := tbl.Insert(setup, []table.ColumnWrite{{ID: 0, Value: []byte("x")}})
	require.NoError(t, err)
	mgr.Commit(setup, nil)

	reader := mgr.Begin() // long-running reader predates the delete

	del := mgr.Begin()
	require.NoError(t, tbl.Delete(del, slot))
	mgr.Commit(del, nil)

	coll.RunOnce()
	assert.NotNil(t, tbl.Chain(slot).Head(), "delete record must survive while reader is active")
	assert.False(t, store.freed[slot])

	mgr.Commit(reader, nil)
	coll.RunOnce() // unlinks and reclaims the slot, but the txn context isn't deallocatable yet

	assert.True(t, store.freed[slot])
	assert.Equal(t, 0, coll.Stats().LastDeallocated)

	bump := mgr.Begin()
	mgr.Commit(bump, nil) // advances oldest_active past the unlink epoch
	coll.RunOnce()

	// Both setup's and del's contexts were unlinked at the same epoch, so
	// both become deallocatable on this pass.
	assert.Equal(t, 2, coll.Stats().LastDeallocated)
}

func TestCollector_ReadOnlyTransactionsNeverQueueForDeallocation(t *testing.T) {
	mgr := txn.NewManager(nil, nil)
	coll := New(mgr, nil, DefaultConfig())

	ro := mgr.Begin()
	mgr.Commit(ro, nil)

	n := coll.ProcessUnlinkQueue(mgr.OldestTransactionStartTime())
	assert.Equal(t, 0, n)
	assert.Equal(t, 0, coll.pendingDeallocateCount())
}

func TestCollector_IndexesNotifiedEveryPass(t *testing.T) {
	mgr := txn.NewManager(nil, nil)
	coll := New(mgr, nil, DefaultConfig())

	var calls int
	coll.RegisterIndex(fakeIndex{onGC: func() { calls++ }})

	coll.RunOnce()
	coll.RunOnce()
	assert.Equal(t, 2, calls)
}

type fakeIndex struct {
	onGC func()
}

func (f fakeIndex) PerformGarbageCollection(oldestActive clock.Timestamp) { f.onGC() }
