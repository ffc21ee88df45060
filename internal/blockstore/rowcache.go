package blockstore

import (
	"container/list"
	"sync"

	"github.com/veldra/versadb/internal/tuple"
)

// rowCache is a bounded least-recently-used cache of decoded rows, sitting
// in front of BoltBlockStore's bbolt reads so a hot slot doesn't pay for a
// db.View transaction on every Access. Grounded on the teacher's
// internal/storage.LRUCache (a container/list doubly-linked list plus a
// map[PageID]*list.Element for O(1) lookup, generalized here from PageID to
// tuple.Slot, and from bookkeeping-only entries to entries that also carry
// the cached value, since unlike the teacher's page cache this one fronts a
// store that already owns the pages themselves).
type rowCache struct {
	mu       sync.Mutex
	capacity int
	list     *list.List
	entries  map[tuple.Slot]*list.Element
}

type rowCacheEntry struct {
	slot tuple.Slot
	row  map[uint16][]byte
}

// newRowCache returns a cache holding at most capacity rows; capacity <= 0
// disables caching (every read goes straight to bbolt).
func newRowCache(capacity int) *rowCache {
	return &rowCache{
		capacity: capacity,
		list:     list.New(),
		entries:  make(map[tuple.Slot]*list.Element),
	}
}

// get returns the cached row for slot, moving it to the front, or nil, false
// on a miss.
func (c *rowCache) get(slot tuple.Slot) (map[uint16][]byte, bool) {
	if c.capacity <= 0 {
		return nil, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	elem, ok := c.entries[slot]
	if !ok {
		return nil, false
	}
	c.list.MoveToFront(elem)
	return elem.Value.(*rowCacheEntry).row, true
}

// put inserts or refreshes slot's cached row, evicting the least-recently
// used entry if the cache is at capacity.
func (c *rowCache) put(slot tuple.Slot, row map[uint16][]byte) {
	if c.capacity <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[slot]; ok {
		elem.Value.(*rowCacheEntry).row = row
		c.list.MoveToFront(elem)
		return
	}

	elem := c.list.PushFront(&rowCacheEntry{slot: slot, row: row})
	c.entries[slot] = elem

	for c.list.Len() > c.capacity {
		back := c.list.Back()
		if back == nil {
			break
		}
		c.list.Remove(back)
		delete(c.entries, back.Value.(*rowCacheEntry).slot)
	}
}

// invalidate drops slot's cached row, if any — used by Deallocate, since a
// freed slot's next occupant must never see a stale cached row.
func (c *rowCache) invalidate(slot tuple.Slot) {
	if c.capacity <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, ok := c.entries[slot]; ok {
		c.list.Remove(elem)
		delete(c.entries, slot)
	}
}
