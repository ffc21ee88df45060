// Package wal implements the on-disk log record format and the serializer/
// disk-writer pipeline that turns committing transactions' redo buffers into
// a durable, ordered byte stream.
package wal

import (
	"encoding/binary"
	"errors"

	"github.com/veldra/versadb/internal/clock"
	"github.com/veldra/versadb/internal/tuple"
)

// Type is the on-disk record tag.
type Type uint8

const (
	Redo   Type = 1
	Delete Type = 2
	Commit Type = 3
)

func (t Type) String() string {
	switch t {
	case Redo:
		return "REDO"
	case Delete:
		return "DELETE"
	case Commit:
		return "COMMIT"
	default:
		return "UNKNOWN"
	}
}

// headerSize is u32 size + u8 type + u64 txn_begin.
const headerSize = 4 + 1 + 8

// ErrTruncated is returned by Decode when buf doesn't hold a complete record.
var ErrTruncated = errors.New("wal: truncated record")

// ErrUnknownType is returned by Decode on an unrecognized type byte.
var ErrUnknownType = errors.New("wal: unknown record type")

// ColumnValue is one column's present-or-null value for a REDO record. A nil
// Value with Present false means the null bitmap bit is clear; the column is
// then omitted from the body entirely, matching spec.md §6's
// "for each present column" wording.
type ColumnValue struct {
	ID      uint16
	Present bool
	Varlen  bool
	Value   []byte // ignored when !Present
}

// Record is a fully decoded log record, used by the round-trip tests and by
// anything that reads the log back (replay is out of scope here; only the
// decode shape is).
type Record struct {
	Type     Type
	TxnBegin clock.Timestamp // 0 marks the bootstrap transaction

	CommitTS clock.Timestamp // valid when Type == Commit

	DBOID, TableOID uint32   // valid when Type == Redo || Type == Delete
	Slot            tuple.Slot
	Columns         []ColumnValue // valid when Type == Redo
}

// EncodeCommit produces a full COMMIT record: header + u64 commit_ts.
func EncodeCommit(txnBegin, commitTS clock.Timestamp) []byte {
	body := make([]byte, 8)
	binary.LittleEndian.PutUint64(body, uint64(commitTS))
	return encode(Commit, txnBegin, body)
}

// EncodeDelete produces a full DELETE record: header + db/table oids + slot.
func EncodeDelete(txnBegin clock.Timestamp, dbOID, tableOID uint32, slot tuple.Slot) []byte {
	body := make([]byte, 4+4+8)
	binary.LittleEndian.PutUint32(body[0:4], dbOID)
	binary.LittleEndian.PutUint32(body[4:8], tableOID)
	binary.LittleEndian.PutUint64(body[8:16], uint64(slot))
	return encode(Delete, txnBegin, body)
}

// EncodeRedo produces a full REDO record: header + db/table oids + slot +
// column count + column ids + null bitmap + present column values, varlen
// columns length-prefixed, fixed columns raw.
func EncodeRedo(txnBegin clock.Timestamp, dbOID, tableOID uint32, slot tuple.Slot, cols []ColumnValue) []byte {
	numCols := len(cols)
	bitmapLen := (numCols + 7) / 8

	size := 4 + 4 + 8 + 2 + numCols*2 + bitmapLen
	for _, c := range cols {
		if !c.Present {
			continue
		}
		if c.Varlen {
			size += 4 + len(c.Value)
		} else {
			size += len(c.Value)
		}
	}

	body := make([]byte, size)
	off := 0
	binary.LittleEndian.PutUint32(body[off:], dbOID)
	off += 4
	binary.LittleEndian.PutUint32(body[off:], tableOID)
	off += 4
	binary.LittleEndian.PutUint64(body[off:], uint64(slot))
	off += 8
	binary.LittleEndian.PutUint16(body[off:], uint16(numCols))
	off += 2
	for _, c := range cols {
		binary.LittleEndian.PutUint16(body[off:], c.ID)
		off += 2
	}
	bitmap := body[off : off+bitmapLen]
	off += bitmapLen
	for i, c := range cols {
		if c.Present {
			bitmap[i/8] |= 1 << uint(i%8)
		}
	}
	for _, c := range cols {
		if !c.Present {
			continue
		}
		if c.Varlen {
			binary.LittleEndian.PutUint32(body[off:], uint32(len(c.Value)))
			off += 4
		}
		off += copy(body[off:], c.Value)
	}

	return encode(Redo, txnBegin, body)
}

func encode(t Type, txnBegin clock.Timestamp, body []byte) []byte {
	buf := make([]byte, headerSize+len(body))
	binary.LittleEndian.PutUint32(buf[0:4], uint32(headerSize-4+len(body)))
	buf[4] = byte(t)
	binary.LittleEndian.PutUint64(buf[5:13], uint64(txnBegin))
	copy(buf[headerSize:], body)
	return buf
}

// ColumnSizer supplies the per-column width information the wire format
// itself doesn't carry: whether a column is varlen, and if not, its fixed
// attribute size. Decode needs this to know how many bytes a present
// fixed-width column occupies, mirroring how EncodeRedo's caller (the table
// layer) knows it via TupleAccessor.AttrSize/IsVarlen.
type ColumnSizer interface {
	AttrSize(colID uint16) (size int, varlen bool)
}

// Decode parses one record from the front of buf, returning it along with
// the unconsumed remainder. sizer is consulted only for REDO records; pass
// nil when decoding COMMIT/DELETE records or a stream known to hold none.
func Decode(buf []byte, sizer ColumnSizer) (Record, []byte, error) {
	if len(buf) < headerSize {
		return Record{}, nil, ErrTruncated
	}
	size := binary.LittleEndian.Uint32(buf[0:4])
	total := 4 + int(size)
	if len(buf) < total {
		return Record{}, nil, ErrTruncated
	}

	typ := Type(buf[4])
	txnBegin := clock.Timestamp(binary.LittleEndian.Uint64(buf[5:13]))
	body := buf[headerSize:total]
	rest := buf[total:]

	rec := Record{Type: typ, TxnBegin: txnBegin}
	switch typ {
	case Commit:
		if len(body) < 8 {
			return Record{}, nil, ErrTruncated
		}
		rec.CommitTS = clock.Timestamp(binary.LittleEndian.Uint64(body))
	case Delete:
		if len(body) < 16 {
			return Record{}, nil, ErrTruncated
		}
		rec.DBOID = binary.LittleEndian.Uint32(body[0:4])
		rec.TableOID = binary.LittleEndian.Uint32(body[4:8])
		rec.Slot = tuple.Slot(binary.LittleEndian.Uint64(body[8:16]))
	case Redo:
		if err := decodeRedoBody(&rec, body, sizer); err != nil {
			return Record{}, nil, err
		}
	default:
		return Record{}, nil, ErrUnknownType
	}
	return rec, rest, nil
}

func decodeRedoBody(rec *Record, body []byte, sizer ColumnSizer) error {
	if len(body) < 18 {
		return ErrTruncated
	}
	rec.DBOID = binary.LittleEndian.Uint32(body[0:4])
	rec.TableOID = binary.LittleEndian.Uint32(body[4:8])
	rec.Slot = tuple.Slot(binary.LittleEndian.Uint64(body[8:16]))
	numCols := int(binary.LittleEndian.Uint16(body[16:18]))
	off := 18

	if len(body) < off+numCols*2 {
		return ErrTruncated
	}
	ids := make([]uint16, numCols)
	for i := 0; i < numCols; i++ {
		ids[i] = binary.LittleEndian.Uint16(body[off:])
		off += 2
	}

	bitmapLen := (numCols + 7) / 8
	if len(body) < off+bitmapLen {
		return ErrTruncated
	}
	bitmap := body[off : off+bitmapLen]
	off += bitmapLen

	cols := make([]ColumnValue, numCols)
	for i := 0; i < numCols; i++ {
		present := bitmap[i/8]&(1<<uint(i%8)) != 0
		cols[i] = ColumnValue{ID: ids[i], Present: present}
		if !present {
			continue
		}

		size, varlen := 0, true
		if sizer != nil {
			size, varlen = sizer.AttrSize(ids[i])
		}
		cols[i].Varlen = varlen

		if varlen {
			if len(body) < off+4 {
				return ErrTruncated
			}
			l := int(binary.LittleEndian.Uint32(body[off:]))
			off += 4
			if len(body) < off+l {
				return ErrTruncated
			}
			cols[i].Value = body[off : off+l]
			off += l
		} else {
			if len(body) < off+size {
				return ErrTruncated
			}
			cols[i].Value = body[off : off+size]
			off += size
		}
	}
	rec.Columns = cols
	return nil
}
