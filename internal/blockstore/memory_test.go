package blockstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veldra/versadb/internal/table"
)

var testSchema = Schema{
	{ID: 0, Varlen: false, Size: 8},
	{ID: 1, Varlen: true},
}

func TestMemoryStore_WriteFullThenAccess(t *testing.T) {
	s := NewMemoryStore(testSchema)
	slot, err := s.Allocate()
	require.NoError(t, err)

	require.NoError(t, s.WriteFull(slot, []table.ColumnWrite{
		{ID: 0, Value: []byte("12345678")},
		{ID: 1, Value: []byte("hello")},
	}))

	v, ok := s.Access(slot, 1)
	assert.True(t, ok)
	assert.Equal(t, []byte("hello"), v)
}

func TestMemoryStore_DeallocateRecyclesSlot(t *testing.T) {
	s := NewMemoryStore(testSchema)
	slot, err := s.Allocate()
	require.NoError(t, err)
	require.NoError(t, s.Deallocate(slot))

	reused, err := s.Allocate()
	require.NoError(t, err)
	assert.Equal(t, slot, reused, "a freed slot is handed back out before minting a new one")
}

func TestMemoryStore_WritePartialUpdatesOnlyGivenColumns(t *testing.T) {
	s := NewMemoryStore(testSchema)
	slot, _ := s.Allocate()
	require.NoError(t, s.WriteFull(slot, []table.ColumnWrite{
		{ID: 0, Value: []byte("12345678")},
		{ID: 1, Value: []byte("hello")},
	}))

	require.NoError(t, s.WritePartial(slot, []table.ColumnWrite{{ID: 1, Value: []byte("bye")}}))

	v, _ := s.Access(slot, 0)
	assert.Equal(t, []byte("12345678"), v)
	v, _ = s.Access(slot, 1)
	assert.Equal(t, []byte("bye"), v)
}

func TestMemoryStore_MarkAndClearDeleted(t *testing.T) {
	s := NewMemoryStore(testSchema)
	slot, _ := s.Allocate()
	assert.False(t, s.IsDeleted(slot))

	require.NoError(t, s.MarkDeleted(slot))
	assert.True(t, s.IsDeleted(slot))

	require.NoError(t, s.ClearDeleted(slot))
	assert.False(t, s.IsDeleted(slot))
}

func TestMemoryStore_DeallocateClearsDeletedMark(t *testing.T) {
	s := NewMemoryStore(testSchema)
	slot, _ := s.Allocate()
	require.NoError(t, s.MarkDeleted(slot))

	require.NoError(t, s.Deallocate(slot))
	reused, _ := s.Allocate()
	require.Equal(t, slot, reused)
	assert.False(t, s.IsDeleted(reused), "a reused slot must not inherit its prior occupant's deleted mark")
}
