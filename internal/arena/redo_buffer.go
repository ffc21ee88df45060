package arena

// RedoBuffer is a transaction's append-only segmented list of already
// wire-encoded log record bytes (REDO/DELETE/COMMIT bodies), per spec.md
// §3's "redo_buffer". Segments come from a shared Pool and are released back
// to it once the serializer has consumed the buffer.
type RedoBuffer struct {
	pool     *Pool
	segments []*ByteSegment
}

// NewRedoBuffer returns an empty buffer drawing segments from pool.
func NewRedoBuffer(pool *Pool) *RedoBuffer {
	return &RedoBuffer{pool: pool}
}

// Write appends p, chaining into a fresh segment when the tail is full. A
// single record never spans a segment: if p doesn't fit in a fresh segment
// either, that's a caller bug (records must be smaller than SegmentSize).
func (b *RedoBuffer) Write(p []byte) {
	if len(b.segments) > 0 && b.segments[len(b.segments)-1].Write(p) {
		return
	}
	seg := b.pool.Get()
	if !seg.Write(p) {
		panic("arena: record larger than segment size")
	}
	b.segments = append(b.segments, seg)
}

// Empty reports whether nothing has been written.
func (b *RedoBuffer) Empty() bool { return len(b.segments) == 0 }

// Segments returns the buffer's segments in write order.
func (b *RedoBuffer) Segments() []*ByteSegment { return b.segments }

// Release returns every segment to the pool. Called by the serializer once
// a buffer's bytes have been copied into an output stream.
func (b *RedoBuffer) Release() {
	for _, seg := range b.segments {
		b.pool.Release(seg)
	}
	b.segments = nil
}
