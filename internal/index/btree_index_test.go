package index

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/veldra/versadb/internal/tuple"
)

func TestBTreeIndex_InsertLookup(t *testing.T) {
	idx := New()
	slot := tuple.NewSlot(1, 2)
	idx.Insert([]byte("a"), slot)

	got, ok := idx.Lookup([]byte("a"))
	assert.True(t, ok)
	assert.Equal(t, slot, got)

	_, ok = idx.Lookup([]byte("missing"))
	assert.False(t, ok)
}

func TestBTreeIndex_DeleteTombstonesUntilGC(t *testing.T) {
	idx := New()
	idx.Insert([]byte("a"), tuple.NewSlot(1, 1))
	idx.Delete([]byte("a"), 10)

	_, ok := idx.Lookup([]byte("a"))
	assert.False(t, ok, "tombstoned key must not be visible")
	assert.Equal(t, 1, idx.Len(), "tombstone stays until GC retires it")

	idx.PerformGarbageCollection(5) // oldestActive still predates the delete
	assert.Equal(t, 1, idx.Len())

	idx.PerformGarbageCollection(11) // oldestActive now past the delete
	assert.Equal(t, 0, idx.Len())
}

func TestBTreeIndex_AscendSkipsTombstonesAndRespectsRange(t *testing.T) {
	idx := New()
	idx.Insert([]byte("a"), tuple.NewSlot(1, 1))
	idx.Insert([]byte("b"), tuple.NewSlot(1, 2))
	idx.Insert([]byte("c"), tuple.NewSlot(1, 3))
	idx.Delete([]byte("b"), 1)

	var keys []string
	idx.Ascend([]byte("a"), []byte("c"), func(key []byte, slot tuple.Slot) bool {
		keys = append(keys, string(key))
		return true
	})

	assert.Equal(t, []string{"a", "c"}, keys)
}
