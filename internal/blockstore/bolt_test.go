package blockstore

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veldra/versadb/internal/table"
)

func TestBoltBlockStore_WriteFullThenAccessSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "blocks.db")

	s, err := OpenBoltBlockStore(path, testSchema, 16)
	require.NoError(t, err)

	slot, err := s.Allocate()
	require.NoError(t, err)
	require.NoError(t, s.WriteFull(slot, []table.ColumnWrite{
		{ID: 0, Value: []byte("12345678")},
		{ID: 1, Value: []byte("hello")},
	}))
	require.NoError(t, s.Close())

	reopened, err := OpenBoltBlockStore(path, testSchema, 16)
	require.NoError(t, err)
	defer reopened.Close()

	v, ok := reopened.Access(slot, 1)
	assert.True(t, ok)
	assert.Equal(t, []byte("hello"), v)
}

func TestBoltBlockStore_DeallocateInvalidatesCachedRow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "blocks.db")
	s, err := OpenBoltBlockStore(path, testSchema, 16)
	require.NoError(t, err)
	defer s.Close()

	slot, err := s.Allocate()
	require.NoError(t, err)
	require.NoError(t, s.WriteFull(slot, []table.ColumnWrite{{ID: 1, Value: []byte("stale")}}))

	// Populate the cache.
	v, ok := s.Access(slot, 1)
	require.True(t, ok)
	require.Equal(t, []byte("stale"), v)

	require.NoError(t, s.Deallocate(slot))
	reused, err := s.Allocate()
	require.NoError(t, err)
	require.Equal(t, slot, reused)

	_, ok = s.Access(reused, 1)
	assert.False(t, ok, "deallocated slot's cached row must not leak into its reuse")
}

func TestBoltBlockStore_DeallocateRecyclesSlot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "blocks.db")
	s, err := OpenBoltBlockStore(path, testSchema, 16)
	require.NoError(t, err)
	defer s.Close()

	slot, err := s.Allocate()
	require.NoError(t, err)
	require.NoError(t, s.Deallocate(slot))

	reused, err := s.Allocate()
	require.NoError(t, err)
	assert.Equal(t, slot, reused)
}

func TestBoltBlockStore_MarkAndClearDeleted(t *testing.T) {
	path := filepath.Join(t.TempDir(), "blocks.db")
	s, err := OpenBoltBlockStore(path, testSchema, 16)
	require.NoError(t, err)
	defer s.Close()

	slot, err := s.Allocate()
	require.NoError(t, err)
	assert.False(t, s.IsDeleted(slot))

	require.NoError(t, s.MarkDeleted(slot))
	assert.True(t, s.IsDeleted(slot))

	require.NoError(t, s.ClearDeleted(slot))
	assert.False(t, s.IsDeleted(slot))
}

func TestBoltBlockStore_DeallocateClearsDeletedMark(t *testing.T) {
	path := filepath.Join(t.TempDir(), "blocks.db")
	s, err := OpenBoltBlockStore(path, testSchema, 16)
	require.NoError(t, err)
	defer s.Close()

	slot, err := s.Allocate()
	require.NoError(t, err)
	require.NoError(t, s.MarkDeleted(slot))

	require.NoError(t, s.Deallocate(slot))
	reused, err := s.Allocate()
	require.NoError(t, err)
	require.Equal(t, slot, reused)
	assert.False(t, s.IsDeleted(reused), "a reused slot must not inherit its prior occupant's deleted mark")
}
