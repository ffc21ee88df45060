// Package config provides configuration loading for the storage engine.
package config

import "time"

// Config holds the complete engine configuration, loaded from YAML via
// LoadConfig or defaulted via DefaultConfig.
type Config struct {
	WAL     WALConfig     `yaml:"wal"`
	GC      GCConfig      `yaml:"gc"`
	Storage StorageConfig `yaml:"storage"`
	Logging LoggingConfig `yaml:"logging"`
}

// WALConfig configures the redo-buffer pool, serializer, and disk writer.
type WALConfig struct {
	NumLogBuffers           int    `yaml:"num_log_buffers"`
	SerializationIntervalMS int    `yaml:"log_serialization_interval_ms"`
	PersistIntervalMS       int    `yaml:"log_persist_interval_ms"`
	PersistThresholdBytes   int    `yaml:"log_persist_threshold_bytes"`
	LogFile                 string `yaml:"log_file"`
}

// SerializationInterval is WAL.SerializationIntervalMS as a time.Duration.
func (w WALConfig) SerializationInterval() time.Duration {
	return time.Duration(w.SerializationIntervalMS) * time.Millisecond
}

// PersistInterval is WAL.PersistIntervalMS as a time.Duration.
func (w WALConfig) PersistInterval() time.Duration {
	return time.Duration(w.PersistIntervalMS) * time.Millisecond
}

// GCConfig configures the garbage collector's background loop.
type GCConfig struct {
	PeriodMS int  `yaml:"gc_period_ms"`
	Enabled  bool `yaml:"gc_enabled"`
}

// Period is GC.PeriodMS as a time.Duration.
func (g GCConfig) Period() time.Duration {
	return time.Duration(g.PeriodMS) * time.Millisecond
}

// StorageConfig selects and sizes the Block Store backend.
type StorageConfig struct {
	DataFile          string `yaml:"data_file"`
	BlockStoreBackend string `yaml:"block_store_backend"` // "memory" | "bolt"
	PageCachePages    int    `yaml:"page_cache_pages"`
}

// LoggingConfig configures the logrus-backed logger.
type LoggingConfig struct {
	Level string `yaml:"log_level"`
}
