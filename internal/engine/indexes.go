package engine

import (
	"fmt"

	"github.com/veldra/versadb/internal/index"
)

// CreateIndex allocates a new secondary index and registers it with the
// garbage collector so its epoch-retired internal nodes get reclaimed on
// every GC pass.
func (s *System) CreateIndex(name string) (*index.BTreeIndex, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.indexes[name]; exists {
		return nil, fmt.Errorf("%w: %s", ErrIndexExists, name)
	}

	idx := index.New()
	s.gc.RegisterIndex(idx)
	s.indexes[name] = idx
	return idx, nil
}

// Index looks up a previously created index by name.
func (s *System) Index(name string) (*index.BTreeIndex, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx, ok := s.indexes[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownIndex, name)
	}
	return idx, nil
}

// IndexNames returns the names of every index registered with this System.
func (s *System) IndexNames() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.indexes))
	for name := range s.indexes {
		names = append(names, name)
	}
	return names
}
