// Package gc implements the background garbage collector: the single
// dedicated thread that unlinks version-chain entries no active transaction
// can still see, then deallocates their owning transaction contexts once a
// full quiescence epoch has passed.
package gc

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/veldra/versadb/internal/clock"
	"github.com/veldra/versadb/internal/logging"
	"github.com/veldra/versadb/internal/txn"
)

// Index is the capability interface the GC holds registered indexes
// through: a single hook called once per pass so an index can reclaim its
// own epoch-retired internal nodes. Modeled as a small interface rather
// than a concrete type since the index set is an open, pluggable set.
type Index interface {
	PerformGarbageCollection(oldestActive clock.Timestamp)
}

// DefaultInterval is the default period between GC passes.
const DefaultInterval = 200 * time.Millisecond

// Config holds the collector's tunables.
type Config struct {
	// Interval is the time between automatic passes.
	Interval time.Duration
}

// DefaultConfig returns the default collector configuration.
func DefaultConfig() Config {
	return Config{Interval: DefaultInterval}
}

// Stats tracks cumulative and last-pass collector activity, surfaced by a
// diagnostics endpoint.
type Stats struct {
	TotalRuns         uint64
	TotalUnlinked     uint64
	TotalDeallocated  uint64
	LastRunTime       time.Time
	LastRunDuration   time.Duration
	LastUnlinked      int
	LastDeallocated   int
	PendingDeallocate int
}

// Collector is the garbage collector: two reclamation phases plus deferred-
// action drain and index notification, run on a timer from a single
// goroutine.
type Collector struct {
	manager *txn.Manager
	logger  logging.Logger
	config  Config

	indexMu sync.RWMutex
	indexes []Index

	deallocMu    sync.Mutex
	deallocQueue []deallocItem
	lastUnlinked clock.Timestamp

	running int32
	stopCh  chan struct{}
	doneCh  chan struct{}

	statsMu sync.RWMutex
	stats   Stats
}

// New constructs a Collector. logger may be nil (defaults to a no-op
// logger).
func New(manager *txn.Manager, logger logging.Logger, config Config) *Collector {
	if logger == nil {
		logger = logging.NewNop()
	}
	if config.Interval <= 0 {
		config.Interval = DefaultInterval
	}
	return &Collector{
		manager: manager,
		logger:  logger,
		config:  config,
	}
}

// RegisterIndex adds idx to the set notified at the end of every pass.
func (c *Collector) RegisterIndex(idx Index) {
	c.indexMu.Lock()
	c.indexes = append(c.indexes, idx)
	c.indexMu.Unlock()
}

// Start launches the background collection loop. Safe to call once; a
// second call while already running is a no-op.
func (c *Collector) Start() {
	if !atomic.CompareAndSwapInt32(&c.running, 0, 1) {
		return
	}
	c.stopCh = make(chan struct{})
	c.doneCh = make(chan struct{})
	go c.runBackground(c.stopCh, c.doneCh)
}

// Stop halts the background loop and waits for the in-flight pass, if any,
// to finish.
func (c *Collector) Stop() {
	if !atomic.CompareAndSwapInt32(&c.running, 1, 0) {
		return
	}
	close(c.stopCh)
	<-c.doneCh
}

func (c *Collector) runBackground(stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)

	ticker := time.NewTicker(c.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			c.RunOnce()
		}
	}
}

// RunOnce performs a single collection pass: deferred-action drain, the
// unlink phase, the deallocate phase, and index notification, in that
// order. Exported so tests and an operator CLI can trigger a pass
// synchronously instead of waiting on the ticker.
func (c *Collector) RunOnce() {
	start := time.Now()
	oldestActive := c.manager.OldestTransactionStartTime()

	c.manager.DeferredActionsForGC(oldestActive)
	unlinked := c.ProcessUnlinkQueue(oldestActive)
	deallocated := c.ProcessDeallocateQueue(oldestActive)
	c.notifyIndexes(oldestActive)

	c.statsMu.Lock()
	c.stats.TotalRuns++
	c.stats.TotalUnlinked += uint64(unlinked)
	c.stats.TotalDeallocated += uint64(deallocated)
	c.stats.LastRunTime = start
	c.stats.LastRunDuration = time.Since(start)
	c.stats.LastUnlinked = unlinked
	c.stats.LastDeallocated = deallocated
	c.stats.PendingDeallocate = c.pendingDeallocateCount()
	c.statsMu.Unlock()

	c.logger.Debug("gc pass completed", "oldest_active", uint64(oldestActive), "unlinked", unlinked, "deallocated", deallocated)
}

func (c *Collector) notifyIndexes(oldestActive clock.Timestamp) {
	c.indexMu.RLock()
	defer c.indexMu.RUnlock()
	for _, idx := range c.indexes {
		idx.PerformGarbageCollection(oldestActive)
	}
}

// Stats returns a snapshot of the collector's cumulative counters.
func (c *Collector) Stats() Stats {
	c.statsMu.RLock()
	defer c.statsMu.RUnlock()
	return c.stats
}

func (c *Collector) pendingDeallocateCount() int {
	c.deallocMu.Lock()
	defer c.deallocMu.Unlock()
	return len(c.deallocQueue)
}
