package scheduler

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/alphaleadership/skid-inc-sub000/internal/event"
	"github.com/alphaleadership/skid-inc-sub000/internal/state"
	"github.com/alphaleadership/skid-inc-sub000/internal/store"
)

const (
	// backupStamp is the timestamp layout embedded in backup names.
	// Millisecond precision keeps back-to-back backups distinct.
	backupStamp = "20060102T150405.000"

	// usageHighWater forces usage-driven pruning before a backup.
	usageHighWater = 0.90

	// usagePanic triggers oldest-first deletion during cleanup until
	// usage falls back under usageHighWater.
	usagePanic = 0.95
)

func (s *Scheduler) backupName() string {
	return store.BackupPrefix + s.nowFn().UTC().Format(backupStamp)
}

// CreateBackup writes snapshot as a timestamped backup through the
// regular save path, so backups get the same checksum, quota and
// recovery guarantees. When usage is already past the high-water mark
// a cleanup runs first to make room.
func (s *Scheduler) CreateBackup(ctx context.Context, snapshot state.Snapshot) (*event.SaveCompleted, error) {
	if usage, err := s.cfg.Store.DiskUsage(ctx); err == nil && usage.Percent >= usageHighWater*100 {
		if _, err := s.CleanupOldBackups(ctx); err != nil {
			s.log.Warn("pre-backup cleanup failed", "error", err)
		}
	}

	done, err := s.saveAs(ctx, snapshot, s.backupName(), state.SaveBackup)
	if err != nil {
		return nil, err
	}
	s.cfg.Bus.Publish(event.BackupCreated{
		Filename: done.Filename,
		Size:     done.Size,
	})
	return done, nil
}

// CleanupOldBackups removes backups past the retention window, then,
// if usage still exceeds the panic threshold, deletes the oldest
// surviving backups until usage is back under the high-water mark.
// Regular saves are never deleted.
func (s *Scheduler) CleanupOldBackups(ctx context.Context) (*event.BackupsPruned, error) {
	blobs, err := s.cfg.Store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("scheduler: list backups: %w", err)
	}

	var backups []store.BlobInfo
	for _, b := range blobs {
		if b.IsBackup {
			backups = append(backups, b)
		}
	}
	// Oldest first so usage-driven deletion consumes from the front.
	sort.Slice(backups, func(i, j int) bool {
		return backups[i].ModTime.Before(backups[j].ModTime)
	})

	cutoff := s.nowFn().Add(-time.Duration(s.cfg.BackupRetentionDays) * 24 * time.Hour)
	pruned := &event.BackupsPruned{}

	kept := backups[:0]
	for _, b := range backups {
		if b.ModTime.Before(cutoff) {
			if err := s.cfg.Store.Delete(ctx, b.Name); err != nil {
				s.log.Warn("failed to delete expired backup", "file", b.Name, "error", err)
				kept = append(kept, b)
				continue
			}
			pruned.Removed++
			pruned.Freed += b.Size
		} else {
			kept = append(kept, b)
		}
	}

	usage, err := s.cfg.Store.DiskUsage(ctx)
	if err != nil {
		return nil, fmt.Errorf("scheduler: disk usage: %w", err)
	}
	if usage.Percent >= usagePanic*100 {
		pruned.ForUsage = true
		for _, b := range kept {
			if usage.Percent < usageHighWater*100 {
				break
			}
			if err := s.cfg.Store.Delete(ctx, b.Name); err != nil {
				s.log.Warn("failed to delete backup under pressure", "file", b.Name, "error", err)
				continue
			}
			pruned.Removed++
			pruned.Freed += b.Size
			if usage, err = s.cfg.Store.DiskUsage(ctx); err != nil {
				return nil, fmt.Errorf("scheduler: disk usage: %w", err)
			}
		}
	}
	pruned.UsagePct = usage.Percent

	if pruned.Removed > 0 {
		s.mu.Lock()
		s.stats.BackupsPruned += pruned.Removed
		s.mu.Unlock()
		if s.cfg.Metrics != nil {
			s.cfg.Metrics.BackupsPrunedTotal.Add(float64(pruned.Removed))
		}
		s.cfg.Bus.Publish(*pruned)
		s.log.Info("backups pruned",
			"removed", pruned.Removed, "freed", pruned.Freed,
			"for_usage", pruned.ForUsage, "usage_pct", fmt.Sprintf("%.1f", pruned.UsagePct))
	}
	return pruned, nil
}

func (s *Scheduler) cleanupLoop(stopCh chan struct{}) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.cfg.BackupCleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			if _, err := s.CleanupOldBackups(context.Background()); err != nil {
				s.log.Warn("scheduled backup cleanup failed", "error", err)
			}
		}
	}
}
