package arena

import (
	"sync"

	"github.com/veldra/versadb/internal/undo"
)

// RecordSegmentCapacity is the number of undo record pointers held by one
// segment before the buffer chains into a fresh one.
const RecordSegmentCapacity = 512

// RecordSegment is one fixed-capacity page of a UndoBuffer.
type RecordSegment struct {
	items [RecordSegmentCapacity]*undo.Record
	n     int
}

// append stores r if the segment has room, reporting whether it fit.
func (s *RecordSegment) append(r *undo.Record) bool {
	if s.n >= RecordSegmentCapacity {
		return false
	}
	s.items[s.n] = r
	s.n++
	return true
}

// reset clears a segment for reuse. It nils every used slot rather than
// just zeroing n, so a segment sitting in the pool doesn't keep the GC from
// reclaiming the *undo.Record values it used to hold.
func (s *RecordSegment) reset() {
	for i := 0; i < s.n; i++ {
		s.items[i] = nil
	}
	s.n = 0
}

// UndoBuffer is a transaction's append-only segmented list of undo records,
// per spec.md §3's "undo_buffer". Not safe for concurrent writers; the owning
// transaction is the only writer, matching its per-context ownership until
// handoff.
type UndoBuffer struct {
	pool     *RecordSegmentPool
	segments []*RecordSegment
}

// NewUndoBuffer returns an empty buffer drawing segments from pool.
func NewUndoBuffer(pool *RecordSegmentPool) *UndoBuffer {
	return &UndoBuffer{pool: pool}
}

// Append adds r to the buffer, growing with a fresh pooled segment if the
// current tail is full.
func (b *UndoBuffer) Append(r *undo.Record) {
	if len(b.segments) == 0 || !b.segments[len(b.segments)-1].append(r) {
		seg := b.pool.Get()
		seg.append(r)
		b.segments = append(b.segments, seg)
	}
}

// Len reports the total number of records appended.
func (b *UndoBuffer) Len() int {
	n := 0
	for _, seg := range b.segments {
		n += seg.n
	}
	return n
}

// Empty reports whether no undo records have been appended — the signal the
// transaction manager uses to route a transaction down the read-only commit
// fast path.
func (b *UndoBuffer) Empty() bool { return b.Len() == 0 }

// Each calls fn for every record in append order.
func (b *UndoBuffer) Each(fn func(*undo.Record)) {
	for _, seg := range b.segments {
		for i := 0; i < seg.n; i++ {
			fn(seg.items[i])
		}
	}
}

// EachReverse calls fn for every record in reverse append order (newest
// first) — the order Abort must rewind in, since later undo records record
// the pre-image of values an earlier record in the same transaction may
// itself have overwritten.
func (b *UndoBuffer) EachReverse(fn func(*undo.Record)) {
	for i := len(b.segments) - 1; i >= 0; i-- {
		seg := b.segments[i]
		for j := seg.n - 1; j >= 0; j-- {
			fn(seg.items[j])
		}
	}
}

// Release returns every segment to the pool. Called once the buffer's
// records have all been unlinked by the garbage collector.
func (b *UndoBuffer) Release() {
	for _, seg := range b.segments {
		b.pool.Release(seg)
	}
	b.segments = nil
}

// RecordSegmentPool is the Get()/Release() buffer pool collaborator for
// undo-record segments, mirroring Pool's role for byte segments. Safe for
// concurrent use: every transaction's Begin acquires segments from the same
// shared pool.
type RecordSegmentPool struct {
	mu   sync.Mutex
	free []*RecordSegment
}

// NewRecordSegmentPool returns a pool of reusable undo-record segments.
func NewRecordSegmentPool() *RecordSegmentPool {
	return &RecordSegmentPool{}
}

// Get returns a zeroed record segment, either recycled or freshly allocated.
func (p *RecordSegmentPool) Get() *RecordSegment {
	p.mu.Lock()
	defer p.mu.Unlock()
	if n := len(p.free); n > 0 {
		seg := p.free[n-1]
		p.free = p.free[:n-1]
		return seg
	}
	return new(RecordSegment)
}

// Release returns a segment to the pool for reuse.
func (p *RecordSegmentPool) Release(seg *RecordSegment) {
	if seg == nil {
		return
	}
	seg.reset()
	p.mu.Lock()
	p.free = append(p.free, seg)
	p.mu.Unlock()
}
