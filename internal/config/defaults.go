package config

// DefaultConfig returns a Config with sensible default values, following the
// teacher's own internal/config.DefaultConfig shape (one literal per
// section) generalized from LDAP server settings to storage engine ones.
func DefaultConfig() *Config {
	return &Config{
		WAL: WALConfig{
			NumLogBuffers:           8,
			SerializationIntervalMS: 5,
			PersistIntervalMS:       10,
			PersistThresholdBytes:   256 * 1024,
			LogFile:                 "versadb.wal",
		},
		GC: GCConfig{
			PeriodMS: 200,
			Enabled:  true,
		},
		Storage: StorageConfig{
			DataFile:          "versadb.data",
			BlockStoreBackend: "memory",
			PageCachePages:    10000,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}
