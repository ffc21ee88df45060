package engine

import "github.com/veldra/versadb/internal/gc"

// Stats is a snapshot of System-wide diagnostics: GC activity plus
// transaction manager occupancy, the two things spec.md §8's operator-facing
// surface calls out.
type Stats struct {
	GC         gc.Stats
	ActiveTxns int
	TableCount int
	IndexCount int
}

// Stats returns a snapshot of the System's current diagnostics.
func (s *System) Stats() Stats {
	s.mu.RLock()
	tableCount := len(s.tables)
	indexCount := len(s.indexes)
	s.mu.RUnlock()

	return Stats{
		GC:         s.gc.Stats(),
		ActiveTxns: s.txnMgr.ActiveCount(),
		TableCount: tableCount,
		IndexCount: indexCount,
	}
}
