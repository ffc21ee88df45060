package wal

import (
	"os"
	"sync"
	"time"

	"github.com/veldra/versadb/internal/logging"
)

// DefaultPersistInterval is how often the disk writer flushes and fsyncs
// even if the byte threshold hasn't been reached, per spec.md §6's
// log_persist_interval_ms.
const DefaultPersistInterval = 10 * time.Millisecond

// DefaultPersistThresholdBytes is the queued-byte watermark that forces an
// immediate flush ahead of the next tick, per log_persist_threshold_bytes.
const DefaultPersistThresholdBytes = 256 * 1024

// DefaultNumLogBuffers is the output ring's capacity when config doesn't
// override it, per spec.md §6's num_log_buffers.
const DefaultNumLogBuffers = 16

// submission is one serialized batch awaiting durability, plus the commits
// it will satisfy once written and fsynced.
type submission struct {
	buf     []byte
	commits []pendingCommit
}

// DiskWriter is the disk-writer thread of spec.md §4.4: appends serialized
// bytes to the log file, fsyncs, and only then fires the queued commit
// callbacks and marks each transaction log-processed — the durability point
// invariant 6 depends on. Grounded on the teacher's internal/storage.WAL,
// which does the write-then-Sync sequence inline under Append/Sync; here
// it's split into its own consumer goroutine fed by the serializer.
type DiskWriter struct {
	file   *os.File
	logger logging.Logger

	interval      time.Duration
	flushBytes    int

	// slots bounds the number of output buffers in flight at once, per
	// spec.md §6's num_log_buffers — Submit acquires one per call (blocking
	// the caller, i.e. the serializer's consumer goroutine, when the ring is
	// full) and FlushOnce releases them back as it drains each submission.
	slots chan struct{}

	mu       sync.Mutex
	queued   []submission
	queuedSz int
	woken    chan struct{}

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewDiskWriter constructs a disk writer appending to file. logger may be
// nil (defaults to a no-op logger); numBuffers <= 0 uses
// DefaultNumLogBuffers.
func NewDiskWriter(file *os.File, logger logging.Logger, interval time.Duration, flushThresholdBytes, numBuffers int) *DiskWriter {
	if logger == nil {
		logger = logging.NewNop()
	}
	if interval <= 0 {
		interval = DefaultPersistInterval
	}
	if flushThresholdBytes <= 0 {
		flushThresholdBytes = DefaultPersistThresholdBytes
	}
	if numBuffers <= 0 {
		numBuffers = DefaultNumLogBuffers
	}
	slots := make(chan struct{}, numBuffers)
	for i := 0; i < numBuffers; i++ {
		slots <- struct{}{}
	}
	return &DiskWriter{
		file:       file,
		logger:     logger,
		interval:   interval,
		flushBytes: flushThresholdBytes,
		slots:      slots,
		woken:      make(chan struct{}, 1),
	}
}

// Submit implements OutputSink: acquires a free ring slot (blocking until
// FlushOnce frees one if the ring is at num_log_buffers capacity), queues
// the batch, and wakes the disk writer immediately if the queued-byte
// threshold is exceeded.
func (d *DiskWriter) Submit(buf []byte, commits []pendingCommit) {
	if len(buf) == 0 && len(commits) == 0 {
		return
	}
	<-d.slots

	d.mu.Lock()
	d.queued = append(d.queued, submission{buf: buf, commits: commits})
	d.queuedSz += len(buf)
	over := d.queuedSz >= d.flushBytes
	d.mu.Unlock()

	if over {
		select {
		case d.woken <- struct{}{}:
		default:
		}
	}
}

// Start launches the background flush goroutine.
func (d *DiskWriter) Start() {
	d.stopCh = make(chan struct{})
	d.doneCh = make(chan struct{})
	go d.run()
}

// Stop signals the flush goroutine to exit after one final drain.
func (d *DiskWriter) Stop() {
	if d.stopCh == nil {
		return
	}
	close(d.stopCh)
	<-d.doneCh
}

func (d *DiskWriter) run() {
	defer close(d.doneCh)
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-d.stopCh:
			d.FlushOnce()
			return
		case <-ticker.C:
			d.FlushOnce()
		case <-d.woken:
			d.FlushOnce()
		}
	}
}

// FlushOnce writes every queued batch, fsyncs once for the whole drain, and
// then fires commit callbacks and marks each transaction log-processed.
// Exported so tests and a caller with no running goroutine can drive it
// synchronously.
func (d *DiskWriter) FlushOnce() {
	d.mu.Lock()
	batch := d.queued
	d.queued = nil
	d.queuedSz = 0
	d.mu.Unlock()

	if len(batch) == 0 {
		return
	}
	defer func() {
		for range batch {
			d.slots <- struct{}{}
		}
	}()

	for _, s := range batch {
		if len(s.buf) == 0 {
			continue
		}
		if _, err := d.file.Write(s.buf); err != nil {
			d.logger.Error("wal: write failed", "error", err)
			return
		}
	}

	if err := fdatasync(d.file); err != nil {
		d.logger.Error("wal: fdatasync failed", "error", err)
		return
	}

	for _, s := range batch {
		for _, c := range s.commits {
			c.ctx.MarkLogProcessed()
			if c.callback != nil {
				c.callback()
			}
		}
	}
	d.logger.Debug("wal: flushed batch", "submissions", len(batch))
}
