// Package config defines the save engine configuration structure.
package config

import "time"

// Default configuration values.
const (
	DefaultStoreDir = "saves"

	DefaultQuotaBytes           = 100 << 20 // 100 MiB
	DefaultCompressionThreshold = 1 << 10   // 1 KiB
	DefaultCompressionLevel     = 6

	DefaultPeriodicInterval      = 30 * time.Second
	DefaultQuickSaveDelay        = 5 * time.Second
	DefaultBackupRetentionDays   = 30
	DefaultBackupCleanupInterval = 24 * time.Hour

	DefaultMemoryCeilingBytes = 512 << 20 // 512 MiB
	DefaultLowActivityPerMin  = 5
	DefaultHighActivityPerMin = 30

	DefaultStartupTargetLatency = 2 * time.Second
	DefaultCacheTTL             = 24 * time.Hour
	DefaultPreloadCount         = 5

	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"
)

// Default returns the default save engine configuration.
func Default() *Config {
	return &Config{
		Store: StoreSection{
			Dir:                  DefaultStoreDir,
			QuotaBytes:           DefaultQuotaBytes,
			CompressionThreshold: DefaultCompressionThreshold,
			CompressionLevel:     DefaultCompressionLevel,
		},
		Scheduler: SchedulerSection{
			PeriodicInterval:      DefaultPeriodicInterval,
			QuickSaveDelay:        DefaultQuickSaveDelay,
			BackupRetentionDays:   DefaultBackupRetentionDays,
			BackupCleanupInterval: DefaultBackupCleanupInterval,
		},
		Governor: GovernorSection{
			MemoryCeilingBytes: DefaultMemoryCeilingBytes,
			LowActivityPerMin:  DefaultLowActivityPerMin,
			HighActivityPerMin: DefaultHighActivityPerMin,
		},
		Startup: StartupSection{
			TargetLatency: DefaultStartupTargetLatency,
			CacheTTL:      DefaultCacheTTL,
			PreloadCount:  DefaultPreloadCount,
		},
		Log: LogSection{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
	}
}
