package scheduler

import "time"

// Stats are cumulative scheduler counters since Start.
type Stats struct {
	Saves         int
	Failures      int
	Retries       int
	PeriodicSaves int
	QuickSaves    int
	Backups       int
	BackupsPruned int

	// BackupRecoveries counts loads that had to fall back to a backup.
	BackupRecoveries int

	LastSaveAt time.Time
}

// Stats returns a copy of the current counters.
func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// LastError returns the most recent save failure, or nil.
func (s *Scheduler) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastError
}
