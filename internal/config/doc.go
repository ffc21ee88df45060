// Package config loads the storage engine's operational surface — WAL
// buffering/flush timing, GC period, Block Store backend selection, and log
// level — from a YAML file, with environment-variable substitution and
// defaults for anything the file omits.
//
// # Configuration structure
//
//	type Config struct {
//	    WAL     WALConfig     // redo-buffer pool, serializer, disk writer
//	    GC      GCConfig      // background collector period and enable flag
//	    Storage StorageConfig // Block Store backend selection and sizing
//	    Logging LoggingConfig // logrus level
//	}
//
// # Loading configuration
//
//	cfg, err := config.LoadConfig("/etc/versadb/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// Or use defaults:
//
//	cfg := config.DefaultConfig()
//
// # Environment variables
//
// Values in the YAML file may reference environment variables with
// ${VAR} or ${VAR:-default} before parsing:
//
//	storage:
//	  data_file: "${VERSADB_DATA_DIR:-/var/lib/versadb}/versadb.data"
//
// # Example configuration
//
//	wal:
//	  num_log_buffers: 8
//	  log_serialization_interval_ms: 5
//	  log_persist_interval_ms: 10
//	  log_persist_threshold_bytes: 262144
//	  log_file: "versadb.wal"
//
//	gc:
//	  gc_period_ms: 200
//	  gc_enabled: true
//
//	storage:
//	  data_file: "versadb.data"
//	  block_store_backend: "memory"
//	  page_cache_pages: 10000
//
//	logging:
//	  log_level: "info"
package config
