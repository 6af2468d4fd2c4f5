package event

import (
	"sync"
	"time"

	"github.com/alphaleadership/skid-inc-sub000/internal/state"
)

// Event is implemented by every payload published on the bus.
type Event interface {
	eventName() string
}

// SaveCompleted reports a successful write of a snapshot.
type SaveCompleted struct {
	OpID     string
	Filename string
	Kind     state.SaveKind
	Size     int64
	Checksum string
	Retries  int
	Elapsed  time.Duration
}

// SaveFailed reports a write that exhausted recovery.
type SaveFailed struct {
	OpID     string
	Filename string
	Kind     state.SaveKind
	Retries  int
	Err      error
}

// BackupCreated reports a new timestamped backup.
type BackupCreated struct {
	Filename string
	Size     int64
}

// BackupsPruned reports the outcome of a retention sweep.
type BackupsPruned struct {
	Removed  int
	Freed    int64
	ForUsage bool // true when pruning was forced by disk usage, not age
	UsagePct float64
}

// QuotaWarning reports directory usage crossing the warning line.
type QuotaWarning struct {
	UsedBytes  int64
	QuotaBytes int64
	Percent    float64
}

// MemoryLevel classifies memory pressure.
type MemoryLevel string

const (
	MemoryWarning  MemoryLevel = "warning"
	MemoryCritical MemoryLevel = "critical"
)

// MemoryPressure reports process memory crossing a governor threshold.
type MemoryPressure struct {
	Level        MemoryLevel
	UsedBytes    uint64
	CeilingBytes uint64
	Percent      float64
}

// IntervalChanged reports an adaptive save-interval adjustment.
type IntervalChanged struct {
	Previous   time.Duration
	Current    time.Duration
	RatePerMin int
}

// StartupPhase reports completion of one accelerator phase.
type StartupPhase struct {
	Phase   string
	Elapsed time.Duration
	Err     error
}

func (SaveCompleted) eventName() string   { return "save_completed" }
func (SaveFailed) eventName() string      { return "save_failed" }
func (BackupCreated) eventName() string   { return "backup_created" }
func (BackupsPruned) eventName() string   { return "backups_pruned" }
func (QuotaWarning) eventName() string    { return "quota_warning" }
func (MemoryPressure) eventName() string  { return "memory_pressure" }
func (IntervalChanged) eventName() string { return "interval_changed" }
func (StartupPhase) eventName() string    { return "startup_phase" }

// Handler consumes published events. Handlers run synchronously on the
// publisher's goroutine and must not block.
type Handler func(Event)

// Bus fans events out to registered handlers.
type Bus struct {
	mu       sync.RWMutex
	handlers []Handler
}

// NewBus creates an empty bus. A nil *Bus is valid and drops events,
// so components may treat the bus as optional.
func NewBus() *Bus {
	return &Bus{}
}

// Subscribe registers a handler for all subsequent events.
func (b *Bus) Subscribe(h Handler) {
	if b == nil || h == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, h)
}

// Publish delivers ev to every handler in registration order.
func (b *Bus) Publish(ev Event) {
	if b == nil {
		return
	}
	b.mu.RLock()
	handlers := b.handlers
	b.mu.RUnlock()

	for _, h := range handlers {
		h(ev)
	}
}
