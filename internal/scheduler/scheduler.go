package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/alphaleadership/skid-inc-sub000/internal/event"
	"github.com/alphaleadership/skid-inc-sub000/internal/governor"
	"github.com/alphaleadership/skid-inc-sub000/internal/recovery"
	"github.com/alphaleadership/skid-inc-sub000/internal/state"
	"github.com/alphaleadership/skid-inc-sub000/internal/store"
	"github.com/alphaleadership/skid-inc-sub000/internal/telemetry/logger"
	"github.com/alphaleadership/skid-inc-sub000/internal/telemetry/metric"
	"github.com/alphaleadership/skid-inc-sub000/internal/validate"
)

const (
	// DefaultSaveName is the blob name regular saves are written under.
	DefaultSaveName = "skidinc"

	DefaultPeriodicInterval      = 30 * time.Second
	DefaultQuickSaveDelay        = 5 * time.Second
	DefaultBackupRetentionDays   = 30
	DefaultBackupCleanupInterval = 24 * time.Hour
)

var (
	// ErrNotReady means the store directory could not be prepared.
	ErrNotReady = errors.New("scheduler: store not ready")

	// ErrNoLoadableSave means no regular save or backup survived the
	// load cascade.
	ErrNoLoadableSave = errors.New("scheduler: no loadable save found")
)

// Blobs is the slice of the store layer the scheduler drives.
// *store.Store satisfies it.
type Blobs interface {
	EnsureReady() error
	Write(ctx context.Context, name string, payload any, env *state.Envelope) (*store.WriteResult, error)
	Read(ctx context.Context, name string) (*store.ReadResult, error)
	List(ctx context.Context) ([]store.BlobInfo, error)
	Delete(ctx context.Context, name string) error
	DiskUsage(ctx context.Context) (*store.Usage, error)
}

// Pacer supplies the save interval and absorbs activity signals.
// *governor.Governor satisfies it.
type Pacer interface {
	CurrentInterval() time.Duration
	RecordActivity(kind governor.ActivityKind)
}

// Validator checks snapshots before they reach disk. *validate.Validator
// satisfies it.
type Validator interface {
	Validate(snapshot state.Snapshot) *validate.Result
	Repair(snapshot state.Snapshot, validation *validate.Result) *validate.RepairResult
}

// RecoveryHandler retries a failed write. *recovery.Handler satisfies it.
type RecoveryHandler interface {
	Handle(ctx context.Context, cause error, snapshot state.Snapshot, name string, kind state.SaveKind, env *state.Envelope) (*recovery.Outcome, error)
}

// Config assembles a Scheduler.
type Config struct {
	Store Blobs

	// Pacer is optional. When set its CurrentInterval drives the
	// periodic loop and every state change is reported to it.
	Pacer Pacer

	// Validator is optional. When set every snapshot is validated,
	// and repaired when possible, before the write.
	Validator Validator

	// Recovery is optional. When set a failed write is handed to it
	// instead of surfacing immediately.
	Recovery RecoveryHandler

	Bus     *event.Bus
	Metrics *metric.Registry
	Logger  logger.Logger

	// SaveName is the blob name for regular saves.
	SaveName string

	// PeriodicInterval is the loop interval used when no Pacer is set.
	PeriodicInterval time.Duration

	QuickSaveDelay        time.Duration
	BackupRetentionDays   int
	BackupCleanupInterval time.Duration

	// CriticalFields are the snapshot sections compared for change
	// detection. Empty means the default subset.
	CriticalFields []string
}

// Scheduler owns the save cadence: the periodic loop, the debounced
// quick save, backups and their retention.
type Scheduler struct {
	cfg Config
	log logger.Logger

	mu        sync.Mutex
	last      state.Snapshot // most recent snapshot pushed by the game
	quick     *time.Timer
	running   bool
	stopCh    chan struct{}
	stats     Stats
	lastError error

	saving atomic.Bool
	wg     sync.WaitGroup

	nowFn func() time.Time
}

// New assembles a scheduler. The store is the only hard requirement.
func New(cfg Config) (*Scheduler, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("scheduler: store is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Default()
	}
	if cfg.SaveName == "" {
		cfg.SaveName = DefaultSaveName
	}
	if cfg.PeriodicInterval <= 0 {
		cfg.PeriodicInterval = DefaultPeriodicInterval
	}
	if cfg.QuickSaveDelay <= 0 {
		cfg.QuickSaveDelay = DefaultQuickSaveDelay
	}
	if cfg.BackupRetentionDays <= 0 {
		cfg.BackupRetentionDays = DefaultBackupRetentionDays
	}
	if cfg.BackupCleanupInterval <= 0 {
		cfg.BackupCleanupInterval = DefaultBackupCleanupInterval
	}
	if len(cfg.CriticalFields) == 0 {
		cfg.CriticalFields = state.DefaultCriticalFields
	}
	return &Scheduler{
		cfg:   cfg,
		log:   cfg.Logger.With("component", "scheduler"),
		nowFn: time.Now,
	}, nil
}

// Start prepares the store and launches the periodic save loop and the
// backup retention loop. Calling Start on a running scheduler is a
// no-op.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}
	if err := s.cfg.Store.EnsureReady(); err != nil {
		return fmt.Errorf("%w: %v", ErrNotReady, err)
	}
	s.stopCh = make(chan struct{})
	s.running = true

	s.wg.Add(2)
	go s.periodicLoop(s.stopCh)
	go s.cleanupLoop(s.stopCh)

	s.log.Info("scheduler started",
		"interval", s.interval().String(),
		"quick_save_delay", s.cfg.QuickSaveDelay.String(),
		"backup_retention_days", s.cfg.BackupRetentionDays)
	return nil
}

// Stop halts the loops and any armed quick save, then waits for
// in-flight work. A snapshot pushed but not yet persisted is flushed as
// a final quick save.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopCh)
	if s.quick != nil {
		s.quick.Stop()
		s.quick = nil
	}
	snap := s.last
	s.mu.Unlock()

	s.wg.Wait()

	if snap != nil {
		// A quick save that fired just before the timer was stopped may
		// still hold the guard; wait for it so the final flush cannot
		// interleave with it on the same file.
		for !s.saving.CompareAndSwap(false, true) {
			time.Sleep(time.Millisecond)
		}
		if _, err := s.SaveWithRetry(context.Background(), snap, state.SaveQuick); err != nil {
			s.log.Error("final save on stop failed", "error", err)
		}
		s.saving.Store(false)
	}
	s.log.Info("scheduler stopped")
}

// OnStateChange hands the scheduler a fresh snapshot. The snapshot is
// cloned, so the caller may keep mutating its copy. A change in the
// critical field subset (re)arms the debounced quick save; cosmetic
// changes only refresh the cached snapshot.
func (s *Scheduler) OnStateChange(snapshot state.Snapshot) error {
	if snapshot == nil {
		return fmt.Errorf("scheduler: nil snapshot")
	}
	clone, err := snapshot.Clone()
	if err != nil {
		return fmt.Errorf("scheduler: clone snapshot: %w", err)
	}

	if s.cfg.Pacer != nil {
		s.cfg.Pacer.RecordActivity(governor.ActivityStateChange)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	changed := !state.CriticalEqual(s.last, clone, s.cfg.CriticalFields)
	s.last = clone
	if !changed || !s.running {
		return nil
	}

	// Re-arming on every change collapses a burst into one save of the
	// final snapshot.
	if s.quick != nil {
		s.quick.Stop()
	}
	s.quick = time.AfterFunc(s.cfg.QuickSaveDelay, s.fireQuickSave)
	return nil
}

// Save persists the given snapshot immediately under the regular save
// name, bypassing debounce but sharing the validate/write/recover path.
func (s *Scheduler) Save(ctx context.Context, snapshot state.Snapshot) (*event.SaveCompleted, error) {
	return s.SaveWithRetry(ctx, snapshot, state.SaveManual)
}

// SaveWithRetry runs one snapshot through validation, the store write
// and, on failure, the recovery handler. It is the single write path
// shared by periodic, quick, manual and backup saves.
func (s *Scheduler) SaveWithRetry(ctx context.Context, snapshot state.Snapshot, kind state.SaveKind) (*event.SaveCompleted, error) {
	name := s.cfg.SaveName
	if kind == state.SaveBackup {
		name = s.backupName()
	}
	return s.saveAs(ctx, snapshot, name, kind)
}

func (s *Scheduler) saveAs(ctx context.Context, snapshot state.Snapshot, name string, kind state.SaveKind) (*event.SaveCompleted, error) {
	opID := ulid.Make().String()
	started := s.nowFn()

	env := &state.Envelope{
		Timestamp: started,
		SaveType:  kind,
	}

	if s.cfg.Validator != nil {
		vstart := s.nowFn()
		result := s.cfg.Validator.Validate(snapshot)
		env.ValidationTime = s.nowFn().Sub(vstart)
		if !result.IsValid {
			if !result.WasRepaired {
				err := fmt.Errorf("scheduler: snapshot failed validation: %v", result.Errors)
				s.recordFailure(opID, name, kind, 0, err)
				return nil, err
			}
			snapshot = result.RepairedData
			env.WasRepaired = true
			s.log.Warn("snapshot repaired before save",
				"op_id", opID, "errors", result.Errors)
		}
		for _, w := range result.Warnings {
			s.log.Debug("snapshot validation warning", "op_id", opID, "warning", w)
		}
	}

	res, err := s.cfg.Store.Write(ctx, name, snapshot, env)
	retries := 0
	filename := name
	var size int64
	var checksum string
	if err == nil {
		filename, size, checksum = res.Filename, res.Size, res.Checksum
	} else if s.cfg.Recovery != nil {
		outcome, rerr := s.cfg.Recovery.Handle(ctx, err, snapshot, name, kind, env)
		if rerr != nil {
			s.recordFailure(opID, name, kind, 0, rerr)
			return nil, rerr
		}
		filename, size, retries = outcome.Filename, outcome.Size, outcome.RetryCount
	} else {
		s.recordFailure(opID, name, kind, 0, err)
		return nil, err
	}

	elapsed := s.nowFn().Sub(started)
	done := &event.SaveCompleted{
		OpID:     opID,
		Filename: filename,
		Kind:     kind,
		Size:     size,
		Checksum: checksum,
		Retries:  retries,
		Elapsed:  elapsed,
	}
	s.recordSuccess(done)
	return done, nil
}

func (s *Scheduler) recordSuccess(done *event.SaveCompleted) {
	s.mu.Lock()
	s.stats.Saves++
	s.stats.LastSaveAt = s.nowFn()
	s.stats.Retries += done.Retries
	switch done.Kind {
	case state.SavePeriodic:
		s.stats.PeriodicSaves++
	case state.SaveQuick:
		s.stats.QuickSaves++
	case state.SaveBackup:
		s.stats.Backups++
	}
	s.mu.Unlock()

	if s.cfg.Metrics != nil {
		s.cfg.Metrics.SavesTotal.WithLabelValues(string(done.Kind), "success").Inc()
		s.cfg.Metrics.SaveDuration.Observe(done.Elapsed.Seconds())
		if done.Retries > 0 {
			s.cfg.Metrics.SaveRetries.Add(float64(done.Retries))
		}
	}
	s.cfg.Bus.Publish(*done)
	s.log.Debug("save completed",
		"op_id", done.OpID, "file", done.Filename, "kind", string(done.Kind),
		"size", done.Size, "retries", done.Retries, "elapsed", done.Elapsed.String())
}

func (s *Scheduler) recordFailure(opID, name string, kind state.SaveKind, retries int, err error) {
	s.mu.Lock()
	s.stats.Failures++
	s.lastError = err
	s.mu.Unlock()

	if s.cfg.Metrics != nil {
		s.cfg.Metrics.SavesTotal.WithLabelValues(string(kind), "failure").Inc()
	}
	s.cfg.Bus.Publish(event.SaveFailed{
		OpID:     opID,
		Filename: name,
		Kind:     kind,
		Retries:  retries,
		Err:      err,
	})
	s.log.Error("save failed",
		"op_id", opID, "file", name, "kind", string(kind), "error", err)
}

func (s *Scheduler) interval() time.Duration {
	if s.cfg.Pacer != nil {
		return s.cfg.Pacer.CurrentInterval()
	}
	return s.cfg.PeriodicInterval
}

// periodicLoop re-reads the interval every cycle so adaptive interval
// changes take effect without a restart.
func (s *Scheduler) periodicLoop(stopCh chan struct{}) {
	defer s.wg.Done()
	for {
		timer := time.NewTimer(s.interval())
		select {
		case <-stopCh:
			timer.Stop()
			return
		case <-timer.C:
			s.firePeriodicSave()
		}
	}
}

func (s *Scheduler) firePeriodicSave() {
	s.mu.Lock()
	snap := s.last
	s.mu.Unlock()
	if snap == nil {
		return
	}
	if !s.saving.CompareAndSwap(false, true) {
		return
	}
	defer s.saving.Store(false)

	ctx := context.Background()
	if _, err := s.saveAs(ctx, snap, s.cfg.SaveName, state.SavePeriodic); err != nil {
		return
	}
	if _, err := s.CreateBackup(ctx, snap); err != nil {
		s.log.Warn("backup after periodic save failed", "error", err)
	}
}

func (s *Scheduler) fireQuickSave() {
	s.mu.Lock()
	snap := s.last
	running := s.running
	s.mu.Unlock()
	if snap == nil || !running {
		return
	}
	// A save already in flight wins; the next state change re-arms us.
	if !s.saving.CompareAndSwap(false, true) {
		return
	}
	defer s.saving.Store(false)

	if _, err := s.saveAs(context.Background(), snap, s.cfg.SaveName, state.SaveQuick); err != nil {
		return
	}
}

// LoadResult is a successfully loaded snapshot plus its provenance.
type LoadResult struct {
	Snapshot state.Snapshot
	Filename string
	Checksum string

	// WasRepaired is true when validation had to fix the snapshot.
	WasRepaired bool

	// WasRecoveredFromBackup is true when every regular save was
	// unreadable and a backup supplied the state.
	WasRecoveredFromBackup bool
}

// Load returns the newest loadable snapshot: regular saves newest
// first, then backups newest first. Corrupt or invalid candidates are
// logged and skipped, never fatal, as long as one candidate survives.
func (s *Scheduler) Load(ctx context.Context) (*LoadResult, error) {
	blobs, err := s.cfg.Store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("scheduler: list saves: %w", err)
	}

	var regular, backups []store.BlobInfo
	for _, b := range blobs {
		if b.IsBackup {
			backups = append(backups, b)
		} else {
			regular = append(regular, b)
		}
	}

	if res := s.loadFirstOf(ctx, regular, false); res != nil {
		return res, nil
	}
	if res := s.loadFirstOf(ctx, backups, true); res != nil {
		s.mu.Lock()
		s.stats.BackupRecoveries++
		s.mu.Unlock()
		s.log.Warn("state recovered from backup", "file", res.Filename)
		return res, nil
	}
	return nil, ErrNoLoadableSave
}

// loadFirstOf tries candidates in order (List already sorts newest
// first) and returns the first that reads and validates.
func (s *Scheduler) loadFirstOf(ctx context.Context, candidates []store.BlobInfo, fromBackup bool) *LoadResult {
	for _, c := range candidates {
		res, err := s.cfg.Store.Read(ctx, c.Name)
		if err != nil {
			s.log.Warn("skipping unreadable save", "file", c.Name, "error", err)
			continue
		}
		snap := res.Payload
		repaired := false
		if s.cfg.Validator != nil {
			v := s.cfg.Validator.Validate(snap)
			if !v.IsValid {
				if !v.WasRepaired {
					s.log.Warn("skipping invalid save", "file", c.Name, "errors", v.Errors)
					continue
				}
				snap = v.RepairedData
				repaired = true
			}
		}
		return &LoadResult{
			Snapshot:               snap,
			Filename:               c.Name,
			Checksum:               res.Checksum,
			WasRepaired:            repaired,
			WasRecoveredFromBackup: fromBackup,
		}
	}
	return nil
}
