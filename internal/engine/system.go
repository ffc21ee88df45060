// Package engine wires the storage engine's subsystems — config, logging,
// the WAL pipeline, the transaction manager, the garbage collector, and the
// table/index registries — into a single handle, the way the teacher's
// cmd/oba server bootstrap wires acl/backend/ldap/server/storage into one
// LDAPServer. Unlike the teacher's server, System has no network listener:
// it is the programmatic entry point cmd/versadb and tests drive directly.
package engine

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"github.com/veldra/versadb/internal/clock"
	"github.com/veldra/versadb/internal/config"
	"github.com/veldra/versadb/internal/gc"
	"github.com/veldra/versadb/internal/index"
	"github.com/veldra/versadb/internal/logging"
	"github.com/veldra/versadb/internal/table"
	"github.com/veldra/versadb/internal/txn"
	"github.com/veldra/versadb/internal/wal"
)

// Errors returned by System's lifecycle and registry methods.
var (
	ErrAlreadyRunning  = errors.New("engine: already running")
	ErrNotRunning      = errors.New("engine: not running")
	ErrTableExists     = errors.New("engine: table already exists")
	ErrIndexExists     = errors.New("engine: index already exists")
	ErrUnknownTable    = errors.New("engine: unknown table")
	ErrUnknownIndex    = errors.New("engine: unknown index")
	ErrUnknownBackend  = errors.New("engine: unknown block store backend")
)

// closableStore is implemented by block store backends that own an
// underlying file handle (blockstore.BoltBlockStore); MemoryStore doesn't
// need it and isn't required to implement it.
type closableStore interface {
	Close() error
}

// System is the top-level handle every other package in this module is
// reached through: the process-wide timestamp source and dedicated GC
// thread spec.md §9 calls out are owned here as fields of one value rather
// than as package-level singletons, and handed out by reference.
type System struct {
	mgr     *config.Manager
	watcher *config.ConfigWatcher
	logger  logging.Logger

	logFile    *os.File
	diskWriter *wal.DiskWriter
	serializer *wal.Serializer
	txnMgr     *txn.Manager
	gc         *gc.Collector

	nextOID uint32 // atomic; table/index object id allocator

	mu      sync.RWMutex
	tables  map[string]*table.Table
	stores  map[string]interface{} // same keys as tables, for Close at Stop
	indexes map[string]*index.BTreeIndex

	runningMu sync.Mutex
	running   bool
}

// Open constructs a System from cfg but does not start its background
// loops; call Start before using it for transactions.
func Open(cfg *config.Config, configFile string) (*System, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if errs := config.ValidateConfig(cfg); len(errs) > 0 {
		return nil, fmt.Errorf("engine: invalid config: %v", errs[0])
	}

	logger := logging.New(logging.Config{Level: cfg.Logging.Level})

	logFile, err := os.OpenFile(cfg.WAL.LogFile, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("engine: open log file: %w", err)
	}

	diskWriter := wal.NewDiskWriter(logFile, logger, cfg.WAL.PersistInterval(), cfg.WAL.PersistThresholdBytes, cfg.WAL.NumLogBuffers)
	serializer := wal.NewSerializer(diskWriter, logger, cfg.WAL.SerializationInterval())
	txnMgr := txn.NewManager(serializer, logger)
	gcCollector := gc.New(txnMgr, logger, gc.Config{Interval: cfg.GC.Period()})

	s := &System{
		mgr:        config.NewManager(cfg, configFile),
		logger:     logger,
		logFile:    logFile,
		diskWriter: diskWriter,
		serializer: serializer,
		txnMgr:     txnMgr,
		gc:         gcCollector,
		tables:     make(map[string]*table.Table),
		stores:     make(map[string]interface{}),
		indexes:    make(map[string]*index.BTreeIndex),
	}
	s.mgr.SetOnUpdate(s.applyConfigUpdate)

	return s, nil
}

// Config returns the currently active configuration.
func (s *System) Config() *config.Config { return s.mgr.Config() }

// ConfigManager exposes the config.Manager backing this System.
func (s *System) ConfigManager() *config.Manager { return s.mgr }

// Logger returns the System's logger.
func (s *System) Logger() logging.Logger { return s.logger }

// Clock exposes the transaction manager's timestamp source.
func (s *System) Clock() *clock.Source { return s.txnMgr.Clock() }

// Start launches the WAL disk-writer, serializer, and (if enabled) GC
// background goroutines. Safe to call only once per System.
func (s *System) Start() error {
	s.runningMu.Lock()
	defer s.runningMu.Unlock()
	if s.running {
		return ErrAlreadyRunning
	}

	s.diskWriter.Start()
	s.serializer.Start()
	if s.mgr.Config().GC.Enabled {
		s.gc.Start()
	}

	// configFile == "" means cfg was handed in as an in-memory value (the
	// common case in tests); there is nothing on disk to poll, so the
	// engine just runs with the config it was given and no hot reload.
	// Deferred to Start rather than done in Open so a caller that creates
	// its config file between Open and Start (e.g. Open then SaveToFile)
	// doesn't get rejected for a file that doesn't exist yet.
	if s.mgr.ConfigFile() != "" {
		watcher, err := config.NewConfigWatcher(s.mgr, 0, 0)
		if err != nil {
			return fmt.Errorf("engine: config watcher: %w", err)
		}
		s.watcher = watcher
		s.watcher.Start()
	}

	s.running = true
	s.logger.Info("engine started", "pid", os.Getpid())
	return nil
}

// Stop halts the background goroutines in order — the config watcher (if
// any), then GC, then the WAL pipeline from producer to consumer (serializer,
// then disk writer) so every queued record is durable before the file
// closes — and closes every owned store and the log file.
func (s *System) Stop() error {
	s.runningMu.Lock()
	defer s.runningMu.Unlock()
	if !s.running {
		return ErrNotRunning
	}

	if s.watcher != nil {
		s.watcher.Stop()
	}
	s.gc.Stop()
	s.serializer.Stop()
	s.diskWriter.Stop()

	s.mu.RLock()
	stores := make([]interface{}, 0, len(s.stores))
	for _, st := range s.stores {
		stores = append(stores, st)
	}
	s.mu.RUnlock()
	for _, st := range stores {
		if cs, ok := st.(closableStore); ok {
			if err := cs.Close(); err != nil {
				s.logger.Warn("error closing block store", "error", err.Error())
			}
		}
	}

	if err := s.logFile.Close(); err != nil {
		s.logger.Warn("error closing log file", "error", err.Error())
	}

	s.running = false
	s.logger.Info("engine stopped")
	return nil
}

// applyConfigUpdate is the config.Manager.SetOnUpdate callback: only the GC
// enabled/disabled flag is actually hot-reloadable today, per SPEC_FULL.md's
// "GC off" diagnostics story; other sections take effect on the next Open.
func (s *System) applyConfigUpdate(old, new *config.Config) {
	if old.GC.Enabled == new.GC.Enabled {
		return
	}
	if new.GC.Enabled {
		s.gc.Start()
	} else {
		s.gc.Stop()
	}
	s.logger.Info("gc enabled flag changed", "enabled", new.GC.Enabled)
}

// allocOID returns the next process-unique table/index object id.
func (s *System) allocOID() uint32 {
	return atomic.AddUint32(&s.nextOID, 1)
}
