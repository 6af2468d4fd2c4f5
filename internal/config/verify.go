// Package config defines the save engine configuration structure.
package config

import (
	"encoding/hex"
	"errors"
	"fmt"
)

// Verify validates the configuration.
func Verify(cfg *Config) error {
	if err := verifyStore(&cfg.Store); err != nil {
		return err
	}
	if err := verifyScheduler(&cfg.Scheduler); err != nil {
		return err
	}
	if err := verifyGovernor(&cfg.Governor); err != nil {
		return err
	}
	if err := verifyStartup(&cfg.Startup); err != nil {
		return err
	}
	return nil
}

func verifyStore(cfg *StoreSection) error {
	if cfg.Dir == "" {
		return errors.New("store.dir is required")
	}
	if cfg.QuotaBytes <= 0 {
		return errors.New("store.quota_bytes must be positive")
	}
	if cfg.CompressionThreshold < 0 {
		return errors.New("store.compression_threshold must not be negative")
	}
	if cfg.CompressionLevel < 0 || cfg.CompressionLevel > 9 {
		return fmt.Errorf("store.compression_level %d out of range 0-9", cfg.CompressionLevel)
	}
	if cfg.EncryptionKey != "" {
		key, err := hex.DecodeString(cfg.EncryptionKey)
		if err != nil {
			return errors.New("store.encryption_key is not valid hex")
		}
		if len(key) != 16 && len(key) != 32 {
			return fmt.Errorf("store.encryption_key must decode to 16 or 32 bytes, got %d", len(key))
		}
	}
	return nil
}

func verifyScheduler(cfg *SchedulerSection) error {
	if cfg.PeriodicInterval <= 0 {
		return errors.New("scheduler.periodic_interval must be positive")
	}
	if cfg.QuickSaveDelay <= 0 {
		return errors.New("scheduler.quick_save_delay must be positive")
	}
	if cfg.BackupRetentionDays < 1 {
		return errors.New("scheduler.backup_retention_days must be at least 1")
	}
	if cfg.BackupCleanupInterval <= 0 {
		return errors.New("scheduler.backup_cleanup_interval must be positive")
	}
	return nil
}

func verifyGovernor(cfg *GovernorSection) error {
	if cfg.MemoryCeilingBytes == 0 {
		return errors.New("governor.memory_ceiling_bytes must be positive")
	}
	if cfg.LowActivityPerMin < 0 || cfg.HighActivityPerMin < 0 {
		return errors.New("governor activity thresholds must not be negative")
	}
	if cfg.LowActivityPerMin >= cfg.HighActivityPerMin {
		return errors.New("governor.low_activity_per_min must be below high_activity_per_min")
	}
	return nil
}

func verifyStartup(cfg *StartupSection) error {
	if cfg.TargetLatency <= 0 {
		return errors.New("startup.target_latency must be positive")
	}
	if cfg.CacheTTL <= 0 {
		return errors.New("startup.cache_ttl must be positive")
	}
	if cfg.PreloadCount < 0 {
		return errors.New("startup.preload_count must not be negative")
	}
	return nil
}
