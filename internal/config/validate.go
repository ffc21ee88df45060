package config

import "fmt"

// ValidationError represents one invalid configuration field.
type ValidationError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateConfig validates cfg and returns every problem found; an empty
// slice means cfg is usable as-is.
func ValidateConfig(cfg *Config) []error {
	var errs []error
	errs = append(errs, validateWALConfig(&cfg.WAL)...)
	errs = append(errs, validateGCConfig(&cfg.GC)...)
	errs = append(errs, validateStorageConfig(&cfg.Storage)...)
	errs = append(errs, validateLoggingConfig(&cfg.Logging)...)
	return errs
}

func validateWALConfig(c *WALConfig) []error {
	var errs []error
	if c.NumLogBuffers <= 0 {
		errs = append(errs, ValidationError{"wal.num_log_buffers", "must be positive"})
	}
	if c.SerializationIntervalMS <= 0 {
		errs = append(errs, ValidationError{"wal.log_serialization_interval_ms", "must be positive"})
	}
	if c.PersistIntervalMS <= 0 {
		errs = append(errs, ValidationError{"wal.log_persist_interval_ms", "must be positive"})
	}
	if c.PersistThresholdBytes <= 0 {
		errs = append(errs, ValidationError{"wal.log_persist_threshold_bytes", "must be positive"})
	}
	if c.LogFile == "" {
		errs = append(errs, ValidationError{"wal.log_file", "must not be empty"})
	}
	return errs
}

func validateGCConfig(c *GCConfig) []error {
	var errs []error
	if c.PeriodMS <= 0 {
		errs = append(errs, ValidationError{"gc.gc_period_ms", "must be positive"})
	}
	return errs
}

func validateStorageConfig(c *StorageConfig) []error {
	var errs []error
	switch c.BlockStoreBackend {
	case "memory", "bolt":
	default:
		errs = append(errs, ValidationError{"storage.block_store_backend", `must be "memory" or "bolt"`})
	}
	if c.BlockStoreBackend == "bolt" && c.DataFile == "" {
		errs = append(errs, ValidationError{"storage.data_file", "must not be empty for the bolt backend"})
	}
	if c.PageCachePages <= 0 {
		errs = append(errs, ValidationError{"storage.page_cache_pages", "must be positive"})
	}
	return errs
}

func validateLoggingConfig(c *LoggingConfig) []error {
	var errs []error
	switch c.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, ValidationError{"logging.log_level", `must be one of "debug", "info", "warn", "error"`})
	}
	return errs
}
