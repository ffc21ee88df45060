package engine

import (
	"github.com/veldra/versadb/internal/clock"
	"github.com/veldra/versadb/internal/txn"
)

// Begin starts a new transaction against this System.
func (s *System) Begin() *txn.Context {
	return s.txnMgr.Begin()
}

// Commit commits ctx, assigning it a commit timestamp and handing its redo
// buffer to the WAL pipeline. callback (may be nil) fires once the commit
// is durable.
func (s *System) Commit(ctx *txn.Context, callback txn.CommitCallback) clock.Timestamp {
	return s.txnMgr.Commit(ctx, callback)
}

// Abort rolls ctx back: every undo record it installed is rewound in
// reverse order and the transaction is retired without a commit timestamp.
func (s *System) Abort(ctx *txn.Context) {
	s.txnMgr.Abort(ctx)
}

// TxnManager exposes the underlying transaction manager, e.g. for a caller
// that needs ActiveCount or OldestTransactionStartTime directly.
func (s *System) TxnManager() *txn.Manager { return s.txnMgr }
