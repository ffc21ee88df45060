// Package logging provides structured, leveled logging for the storage
// engine, built on logrus.
//
// # Overview
//
// The engine logs through the small Logger interface rather than depending
// on logrus directly: transaction begin/commit/abort, GC sweep summaries,
// and WAL flush/fsync events all go through a Logger obtained from New.
//
// # Creating a Logger
//
//	logger := logging.New(logging.Config{
//	    Level:  "info",
//	    Format: "json",
//	    Output: "/var/log/versadb/engine.log",
//	})
//
// Or use defaults:
//
//	logger := logging.NewDefault() // info level, text format, stdout
//
// For tests:
//
//	logger := logging.NewNop()
//
// # Structured Logging
//
//	logger.Info("transaction committed",
//	    "txn_id", txn.TxnID,
//	    "commit_ts", commitTS,
//	    "undo_records", txn.Undo.Len(),
//	)
//
// # Contextual Fields
//
//	gcLogger := logger.WithFields("component", "gc")
//	gcLogger.Info("unlink pass complete", "unlinked", n)
package logging
