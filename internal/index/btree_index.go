// Package index implements the secondary index collaborator: a
// (key []byte) -> tuple.Slot mapping the table layer consults for
// non-sequential lookups, kept outside the core MVCC substrate per the
// "Index is a small open set — model as a capability interface" guidance.
package index

import (
	"bytes"
	"sync"

	"github.com/google/btree"

	"github.com/veldra/versadb/internal/clock"
	"github.com/veldra/versadb/internal/tuple"
)

// defaultDegree is twice the teacher pack's own google/btree degree
// (storage/kvrows.MakeBTreeKV uses btree.New(16)); this index packs more
// entries per node since keys are short index keys, not full rows.
const defaultDegree = 32

// entry is one btree.Item: a key plus either a live slot or a tombstone
// recording the commit timestamp it was retired at.
type entry struct {
	key       []byte
	slot      tuple.Slot
	tombstone bool
	retiredAt clock.Timestamp
}

func (e entry) Less(other btree.Item) bool {
	return bytes.Compare(e.key, other.(entry).key) < 0
}

// BTreeIndex is an in-memory secondary index implementing the "Index"
// collaborator of spec.md §4.3/§9: its callers record key changes through
// its own Insert/Delete methods (the table package does not call it), and it
// implements PerformGarbageCollection to retire its own
// tombstones once no active transaction predates the retiring delete —
// the same epoch-quiescence the core GC applies to version chains, applied
// here to the index's own stale entries. Grounded on the teacher pack's
// storage/kvrows.btreeKV (google/btree.Item wrapping a byte-compared key),
// generalized from a single-version KV store to carry tombstones with a
// retirement timestamp the GC's index-notification step can act on.
type BTreeIndex struct {
	mu   sync.RWMutex
	tree *btree.BTree
}

// New constructs an empty index.
func New() *BTreeIndex {
	return &BTreeIndex{tree: btree.New(defaultDegree)}
}

// Insert maps key to slot, replacing any existing mapping (live or
// tombstoned) for that key.
func (idx *BTreeIndex) Insert(key []byte, slot tuple.Slot) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.tree.ReplaceOrInsert(entry{key: key, slot: slot})
}

// Delete replaces key's entry with a tombstone stamped at retiredAt (the
// deleting transaction's commit timestamp) rather than removing it
// outright, so a concurrent Ascend in flight doesn't miss the boundary.
// The tombstone is physically removed later by PerformGarbageCollection.
func (idx *BTreeIndex) Delete(key []byte, retiredAt clock.Timestamp) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.tree.ReplaceOrInsert(entry{key: key, tombstone: true, retiredAt: retiredAt})
}

// Lookup returns the slot mapped to key, or false if key is absent or its
// entry is a tombstone.
func (idx *BTreeIndex) Lookup(key []byte) (tuple.Slot, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	item := idx.tree.Get(entry{key: key})
	if item == nil {
		return 0, false
	}
	e := item.(entry)
	if e.tombstone {
		return 0, false
	}
	return e.slot, true
}

// Ascend calls fn for every live (non-tombstoned) key in [minKey, maxKey],
// in key order, until fn returns false.
func (idx *BTreeIndex) Ascend(minKey, maxKey []byte, fn func(key []byte, slot tuple.Slot) bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	idx.tree.AscendGreaterOrEqual(entry{key: minKey}, func(item btree.Item) bool {
		e := item.(entry)
		if bytes.Compare(maxKey, e.key) < 0 {
			return false
		}
		if e.tombstone {
			return true
		}
		return fn(e.key, e.slot)
	})
}

// PerformGarbageCollection implements gc.Index: physically removes every
// tombstone retired strictly before oldestActive, since no active
// transaction can still need to see the boundary it marked.
func (idx *BTreeIndex) PerformGarbageCollection(oldestActive clock.Timestamp) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	var stale []entry
	idx.tree.Ascend(func(item btree.Item) bool {
		e := item.(entry)
		if e.tombstone && clock.NewerThan(oldestActive, e.retiredAt) {
			stale = append(stale, e)
		}
		return true
	})
	for _, e := range stale {
		idx.tree.Delete(e)
	}
}

// Len reports the total number of entries, live and tombstoned.
func (idx *BTreeIndex) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.tree.Len()
}
