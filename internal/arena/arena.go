// Package arena implements the per-transaction append-only buffers described
// in the design notes: segmented singly-linked lists of fixed-size pages
// obtained from a shared Pool, so that writing undo/redo records never
// allocates per-record. Deallocation is bulk return of every segment to the
// pool.
package arena

import "sync"

// SegmentSize is the fixed capacity, in bytes, of a pooled redo-log segment.
// This is also the collaborator surface spec.md §6 calls "buffer pool for
// record segments".
const SegmentSize = 64 * 1024

// ByteSegment is one fixed-size page of a RedoBuffer.
type ByteSegment struct {
	buf [SegmentSize]byte
	pos int
}

// Reset clears the segment for reuse from the pool.
func (s *ByteSegment) Reset() { s.pos = 0 }

// Remaining reports how many bytes are free in this segment.
func (s *ByteSegment) Remaining() int { return SegmentSize - s.pos }

// Write appends p to the segment if it fits, returning false otherwise. The
// caller is responsible for chaining into a fresh segment on false.
func (s *ByteSegment) Write(p []byte) bool {
	if len(p) > s.Remaining() {
		return false
	}
	copy(s.buf[s.pos:], p)
	s.pos += len(p)
	return true
}

// Bytes returns the written portion of the segment.
func (s *ByteSegment) Bytes() []byte { return s.buf[:s.pos] }

// Pool is the shared buffer pool record segments are obtained from and
// released to. It is the concrete implementation of the
// "Buffer pool for record segments: Get() -> Segment*, Release(Segment*)"
// collaborator interface.
type Pool struct {
	sp sync.Pool
}

// NewPool creates an empty segment pool.
func NewPool() *Pool {
	return &Pool{sp: sync.Pool{New: func() any { return new(ByteSegment) }}}
}

// Get returns a zeroed segment, either recycled or freshly allocated.
func (p *Pool) Get() *ByteSegment {
	seg := p.sp.Get().(*ByteSegment)
	seg.Reset()
	return seg
}

// Release returns a segment to the pool for reuse.
func (p *Pool) Release(seg *ByteSegment) {
	if seg == nil {
		return
	}
	p.sp.Put(seg)
}
