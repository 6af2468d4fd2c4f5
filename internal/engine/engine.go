// Package engine assembles the full save stack: store, registry,
// governor, scheduler, recovery and startup accelerator behind one
// handle the game holds.
package engine

import (
	"context"
	"encoding/hex"
	"fmt"

	"github.com/alphaleadership/skid-inc-sub000/internal/config"
	"github.com/alphaleadership/skid-inc-sub000/internal/event"
	"github.com/alphaleadership/skid-inc-sub000/internal/governor"
	"github.com/alphaleadership/skid-inc-sub000/internal/recovery"
	"github.com/alphaleadership/skid-inc-sub000/internal/registry"
	"github.com/alphaleadership/skid-inc-sub000/internal/scheduler"
	"github.com/alphaleadership/skid-inc-sub000/internal/startup"
	"github.com/alphaleadership/skid-inc-sub000/internal/state"
	"github.com/alphaleadership/skid-inc-sub000/internal/store"
	"github.com/alphaleadership/skid-inc-sub000/internal/telemetry/logger"
	"github.com/alphaleadership/skid-inc-sub000/internal/telemetry/metric"
	"github.com/alphaleadership/skid-inc-sub000/internal/validate"
	"github.com/alphaleadership/skid-inc-sub000/pkg/crypto/adaptive"
)

// Engine is the assembled save stack.
type Engine struct {
	Bus       *event.Bus
	Metrics   *metric.Registry
	Store     *store.Store
	Registry  *registry.Registry
	Governor  *governor.Governor
	Scheduler *scheduler.Scheduler
	Startup   *startup.Accelerator

	log logger.Logger
}

// New wires every component from cfg. Nothing touches disk until Boot.
func New(cfg *config.Config) (*Engine, error) {
	if err := config.Verify(cfg); err != nil {
		return nil, err
	}
	log := logger.Default()
	logger.SetLevel(cfg.Log.Level)

	bus := event.NewBus()
	metrics := metric.NewRegistry()

	gov, err := governor.New(governor.Config{
		CompressionThreshold: cfg.Store.CompressionThreshold,
		CompressionLevel:     cfg.Store.CompressionLevel,
		MemoryCeiling:        cfg.Governor.MemoryCeilingBytes,
		LowActivityPerMin:    cfg.Governor.LowActivityPerMin,
		HighActivityPerMin:   cfg.Governor.HighActivityPerMin,
		BaseInterval:         cfg.Scheduler.PeriodicInterval,
		Bus:                  bus,
		Metrics:              metrics,
	})
	if err != nil {
		return nil, err
	}

	var cipher adaptive.Cipher
	if cfg.Store.EncryptionKey != "" {
		key, err := hex.DecodeString(cfg.Store.EncryptionKey)
		if err != nil {
			return nil, fmt.Errorf("engine: decode encryption key: %w", err)
		}
		if cipher, err = adaptive.New(key); err != nil {
			return nil, fmt.Errorf("engine: %w", err)
		}
	}

	reg, err := registry.Open(cfg.Store.Dir)
	if err != nil {
		return nil, err
	}

	st, err := store.New(store.Config{
		Dir:        cfg.Store.Dir,
		QuotaBytes: cfg.Store.QuotaBytes,
		Compressor: gov,
		Cipher:     cipher,
		Registrar:  reg,
		Bus:        bus,
		Metrics:    metrics,
		Logger:     log,
	})
	if err != nil {
		return nil, err
	}

	validator := validate.New()
	if len(cfg.Scheduler.CriticalFields) > 0 {
		validator.RequiredFields = cfg.Scheduler.CriticalFields
	}

	rec, err := recovery.New(recovery.Config{
		Store:   st,
		Cleanup: backupCleanup(st),
		Metrics: metrics,
		Logger:  log,
	})
	if err != nil {
		return nil, err
	}

	sched, err := scheduler.New(scheduler.Config{
		Store:                 st,
		Pacer:                 gov,
		Validator:             validator,
		Recovery:              rec,
		Bus:                   bus,
		Metrics:               metrics,
		Logger:                log,
		PeriodicInterval:      cfg.Scheduler.PeriodicInterval,
		QuickSaveDelay:        cfg.Scheduler.QuickSaveDelay,
		BackupRetentionDays:   cfg.Scheduler.BackupRetentionDays,
		BackupCleanupInterval: cfg.Scheduler.BackupCleanupInterval,
		CriticalFields:        cfg.Scheduler.CriticalFields,
	})
	if err != nil {
		return nil, err
	}

	accel, err := startup.New(startup.Config{
		Store:         st,
		Scheduler:     sched,
		Bus:           bus,
		Logger:        log,
		TargetLatency: cfg.Startup.TargetLatency,
		CacheTTL:      cfg.Startup.CacheTTL,
		PreloadCount:  cfg.Startup.PreloadCount,
	})
	if err != nil {
		return nil, err
	}

	return &Engine{
		Bus:       bus,
		Metrics:   metrics,
		Store:     st,
		Registry:  reg,
		Governor:  gov,
		Scheduler: sched,
		Startup:   accel,
		log:       log,
	}, nil
}

// backupCleanup gives the recovery handler a way to free quota before
// re-attempting a failed write: drop the oldest backup.
func backupCleanup(st *store.Store) func(context.Context) error {
	return func(ctx context.Context) error {
		blobs, err := st.List(ctx)
		if err != nil {
			return err
		}
		oldest := ""
		for _, b := range blobs {
			if b.IsBackup {
				oldest = b.Name // List is newest-first
			}
		}
		if oldest == "" {
			return fmt.Errorf("engine: no backups to evict")
		}
		return st.Delete(ctx, oldest)
	}
}

// Boot runs the startup accelerator, which restores the newest save and
// starts the scheduler.
func (e *Engine) Boot(ctx context.Context) (*startup.BootResult, error) {
	return e.Startup.Boot(ctx)
}

// OnStateChange forwards a fresh snapshot to the scheduler.
func (e *Engine) OnStateChange(snapshot state.Snapshot) error {
	return e.Scheduler.OnStateChange(snapshot)
}

// Shutdown flushes pending state and stops the scheduler.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.Scheduler.Stop()
	e.log.Info("save engine stopped")
	return ctx.Err()
}
