package engine

import (
	"fmt"

	"github.com/veldra/versadb/internal/blockstore"
	"github.com/veldra/versadb/internal/table"
)

// CreateTable allocates a new table over the configured Block Store
// backend. name must be unique within this System.
func (s *System) CreateTable(name string, schema blockstore.Schema) (*table.Table, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tables[name]; exists {
		return nil, fmt.Errorf("%w: %s", ErrTableExists, name)
	}

	store, err := s.openStore(name, schema)
	if err != nil {
		return nil, err
	}

	tbl := table.New(1, s.allocOID(), store, store)
	s.tables[name] = tbl
	s.stores[name] = store
	return tbl, nil
}

// openStore opens the physical backend named by the System's
// StorageConfig.BlockStoreBackend — "memory" for the in-process
// blockstore.MemoryStore, "bolt" for the bbolt-backed BoltBlockStore, one
// data file per bolt-backed table, named "<DataFile>.<name>".
func (s *System) openStore(name string, schema blockstore.Schema) (tableStore, error) {
	cfg := s.mgr.Config().Storage
	switch cfg.BlockStoreBackend {
	case "", "memory":
		return blockstore.NewMemoryStore(schema), nil
	case "bolt":
		path := fmt.Sprintf("%s.%s", cfg.DataFile, name)
		return blockstore.OpenBoltBlockStore(path, schema, cfg.PageCachePages)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.BlockStoreBackend)
	}
}

// tableStore is the union of the two capability interfaces a table needs
// from its physical backend — every concrete backend in internal/blockstore
// implements both.
type tableStore interface {
	table.BlockStore
	table.TupleAccessor
}

// Table looks up a previously created table by name.
func (s *System) Table(name string) (*table.Table, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tbl, ok := s.tables[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTable, name)
	}
	return tbl, nil
}

// TableNames returns the names of every table registered with this System.
func (s *System) TableNames() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.tables))
	for name := range s.tables {
		names = append(names, name)
	}
	return names
}
