// Package config defines the save engine configuration structure.
package config

import "time"

// Config is the root configuration for the save engine.
type Config struct {
	Store     StoreSection     `koanf:"store"`
	Scheduler SchedulerSection `koanf:"scheduler"`
	Governor  GovernorSection  `koanf:"governor"`
	Startup   StartupSection   `koanf:"startup"`
	Log       LogSection       `koanf:"log"`
}

// StoreSection configures the on-disk save store.
type StoreSection struct {
	// Dir is the flat directory holding all save blobs.
	Dir string `koanf:"dir"`

	// QuotaBytes is the hard disk budget for Dir.
	QuotaBytes int64 `koanf:"quota_bytes"`

	// CompressionThreshold is the serialized size above which payloads
	// are compressed before hitting disk.
	CompressionThreshold int64 `koanf:"compression_threshold"`

	// CompressionLevel is the gzip level (1-9, 0 selects the default).
	CompressionLevel int `koanf:"compression_level"`

	// EncryptionKey enables at-rest encryption of blobs when non-empty.
	// Must be 16 or 32 bytes after hex decoding.
	EncryptionKey string `koanf:"encryption_key"`
}

// SchedulerSection configures save scheduling and backup retention.
type SchedulerSection struct {
	// PeriodicInterval is the base timer-driven save interval.
	PeriodicInterval time.Duration `koanf:"periodic_interval"`

	// QuickSaveDelay is the debounce window for change-triggered saves.
	QuickSaveDelay time.Duration `koanf:"quick_save_delay"`

	// BackupRetentionDays is how long timestamped backups are kept.
	BackupRetentionDays int `koanf:"backup_retention_days"`

	// BackupCleanupInterval is how often the retention sweep runs.
	BackupCleanupInterval time.Duration `koanf:"backup_cleanup_interval"`

	// CriticalFields overrides the top-level snapshot fields compared
	// for change detection. Empty means the built-in default subset.
	CriticalFields []string `koanf:"critical_fields"`
}

// GovernorSection configures the performance governor.
type GovernorSection struct {
	// MemoryCeilingBytes is the process memory budget; warning and
	// critical alarms fire at 80% and 95% of it.
	MemoryCeilingBytes uint64 `koanf:"memory_ceiling_bytes"`

	// LowActivityPerMin and HighActivityPerMin bound the adaptive
	// save-interval algorithm.
	LowActivityPerMin  int `koanf:"low_activity_per_min"`
	HighActivityPerMin int `koanf:"high_activity_per_min"`
}

// StartupSection configures the startup accelerator.
type StartupSection struct {
	// TargetLatency bounds the wait for background startup phases.
	TargetLatency time.Duration `koanf:"target_latency"`

	// CacheTTL invalidates the startup metadata cache by age.
	CacheTTL time.Duration `koanf:"cache_ttl"`

	// PreloadCount is how many recent saves are pre-stat'ed at boot.
	PreloadCount int `koanf:"preload_count"`
}

// LogSection configures logging.
type LogSection struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}
