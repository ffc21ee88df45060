package blockstore

import (
	"encoding/binary"

	"go.etcd.io/bbolt"

	"github.com/veldra/versadb/internal/table"
	"github.com/veldra/versadb/internal/tuple"
)

var (
	rowsBucket = []byte("rows")
	freeBucket = []byte("free")
	delBucket  = []byte("deleted")
	metaBucket = []byte("meta")
	nextKey    = []byte("next")
)

// BoltBlockStore is the optional persistent Block Store backend, selected
// via config in place of MemoryStore. Grounded on the teacher pack's
// engine/bbolt.bboltStore (`bbolt.Open(path, 0644, nil)`, per-bucket
// key/value access via `db.Update`/`Bucket.Put`/`Bucket.Get`) —
// generalized from that package's string-keyed row buckets to a single
// fixed-schema row bucket keyed by an 8-byte tuple.Slot, plus a free-slot
// bucket mirroring MemoryStore's in-memory free list so both backends
// satisfy table.BlockStore identically. Reads go through a bounded rowCache
// (storage.page_cache_pages) before falling back to a bbolt transaction.
type BoltBlockStore struct {
	schema Schema
	db     *bbolt.DB
	cache  *rowCache
}

// OpenBoltBlockStore opens or creates the backing file at path and ensures
// its buckets exist. cachePages bounds the in-memory row cache sitting in
// front of bbolt reads (0 disables caching).
func OpenBoltBlockStore(path string, schema Schema, cachePages int) (*BoltBlockStore, error) {
	db, err := bbolt.Open(path, 0644, nil)
	if err != nil {
		return nil, err
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{rowsBucket, freeBucket, delBucket, metaBucket} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltBlockStore{schema: schema, db: db, cache: newRowCache(cachePages)}, nil
}

// Close releases the underlying bbolt file handle.
func (s *BoltBlockStore) Close() error { return s.db.Close() }

func slotKey(slot tuple.Slot) []byte {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], uint64(slot))
	return b[:]
}

// Allocate implements table.BlockStore: pops a slot from the free bucket if
// one exists, otherwise mints the next one from the persisted counter.
func (s *BoltBlockStore) Allocate() (tuple.Slot, error) {
	var slot tuple.Slot
	err := s.db.Update(func(tx *bbolt.Tx) error {
		free := tx.Bucket(freeBucket)
		if k, _ := free.Cursor().First(); k != nil {
			slot = tuple.Slot(binary.LittleEndian.Uint64(k))
			if err := free.Delete(k); err != nil {
				return err
			}
		} else {
			meta := tx.Bucket(metaBucket)
			var next uint64
			if v := meta.Get(nextKey); v != nil {
				next = binary.LittleEndian.Uint64(v)
			}
			next++
			var buf [8]byte
			binary.LittleEndian.PutUint64(buf[:], next)
			if err := meta.Put(nextKey, buf[:]); err != nil {
				return err
			}
			slot = tuple.NewSlot(next, 0)
		}
		return tx.Bucket(rowsBucket).Put(slotKey(slot), encodeRow(nil))
	})
	return slot, err
}

// Deallocate implements table.BlockStore.
func (s *BoltBlockStore) Deallocate(slot tuple.Slot) error {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.Bucket(rowsBucket).Delete(slotKey(slot)); err != nil {
			return err
		}
		if err := tx.Bucket(delBucket).Delete(slotKey(slot)); err != nil {
			return err
		}
		return tx.Bucket(freeBucket).Put(slotKey(slot), nil)
	})
	s.cache.invalidate(slot)
	return err
}

func (s *BoltBlockStore) readRow(slot tuple.Slot) map[uint16][]byte {
	if row, ok := s.cache.get(slot); ok {
		return row
	}
	var row map[uint16][]byte
	s.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(rowsBucket).Get(slotKey(slot))
		row = decodeRow(v)
		return nil
	})
	s.cache.put(slot, row)
	return row
}

// Access implements table.TupleAccessor.
func (s *BoltBlockStore) Access(slot tuple.Slot, col uint16) ([]byte, bool) {
	v, ok := s.readRow(slot)[col]
	return v, ok
}

// AccessForceNotNull implements table.TupleAccessor.
func (s *BoltBlockStore) AccessForceNotNull(slot tuple.Slot, col uint16) []byte {
	v, present := s.Access(slot, col)
	if !present {
		panic("blockstore: column is null")
	}
	return v
}

// IsVarlen implements table.TupleAccessor.
func (s *BoltBlockStore) IsVarlen(col uint16) bool { return s.schema.isVarlen(col) }

// NumColumns implements table.TupleAccessor.
func (s *BoltBlockStore) NumColumns() int { return len(s.schema) }

// AttrSize implements table.TupleAccessor.
func (s *BoltBlockStore) AttrSize(col uint16) int { return s.schema.attrSize(col) }

// WriteFull implements table.TupleAccessor.
func (s *BoltBlockStore) WriteFull(slot tuple.Slot, row []table.ColumnWrite) error {
	m := make(map[uint16][]byte, len(row))
	for _, cw := range row {
		if cw.Value != nil {
			m[cw.ID] = cw.Value
		}
	}
	err := s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(rowsBucket).Put(slotKey(slot), encodeRow(m))
	})
	if err == nil {
		s.cache.put(slot, m)
	}
	return err
}

// WritePartial implements table.TupleAccessor.
func (s *BoltBlockStore) WritePartial(slot tuple.Slot, delta []table.ColumnWrite) error {
	var updated map[uint16][]byte
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(rowsBucket)
		row := decodeRow(b.Get(slotKey(slot)))
		for _, cw := range delta {
			if cw.Value == nil {
				delete(row, cw.ID)
			} else {
				row[cw.ID] = cw.Value
			}
		}
		updated = row
		return b.Put(slotKey(slot), encodeRow(row))
	})
	if err == nil {
		s.cache.put(slot, updated)
	}
	return err
}

// MarkDeleted implements table.TupleAccessor.
func (s *BoltBlockStore) MarkDeleted(slot tuple.Slot) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(delBucket).Put(slotKey(slot), []byte{1})
	})
}

// ClearDeleted implements table.TupleAccessor.
func (s *BoltBlockStore) ClearDeleted(slot tuple.Slot) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(delBucket).Delete(slotKey(slot))
	})
}

// IsDeleted implements table.TupleAccessor.
func (s *BoltBlockStore) IsDeleted(slot tuple.Slot) bool {
	var deleted bool
	s.db.View(func(tx *bbolt.Tx) error {
		deleted = tx.Bucket(delBucket).Get(slotKey(slot)) != nil
		return nil
	})
	return deleted
}

// encodeRow serializes a sparse column map as: u16 count, then per entry
// u16 id, u32 len, bytes. A nil map encodes as zero entries.
func encodeRow(row map[uint16][]byte) []byte {
	size := 2
	for _, v := range row {
		size += 2 + 4 + len(v)
	}
	buf := make([]byte, size)
	binary.LittleEndian.PutUint16(buf[0:2], uint16(len(row)))
	off := 2
	for id, v := range row {
		binary.LittleEndian.PutUint16(buf[off:], id)
		off += 2
		binary.LittleEndian.PutUint32(buf[off:], uint32(len(v)))
		off += 4
		off += copy(buf[off:], v)
	}
	return buf
}

func decodeRow(buf []byte) map[uint16][]byte {
	row := make(map[uint16][]byte)
	if len(buf) < 2 {
		return row
	}
	count := int(binary.LittleEndian.Uint16(buf[0:2]))
	off := 2
	for i := 0; i < count && off+6 <= len(buf); i++ {
		id := binary.LittleEndian.Uint16(buf[off:])
		off += 2
		l := int(binary.LittleEndian.Uint32(buf[off:]))
		off += 4
		if off+l > len(buf) {
			break
		}
		v := make([]byte, l)
		copy(v, buf[off:off+l])
		off += l
		row[id] = v
	}
	return row
}
