package governor

import (
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/alphaleadership/skid-inc-sub000/internal/event"
	"github.com/alphaleadership/skid-inc-sub000/internal/telemetry/metric"
)

// Default tuning values.
const (
	DefaultCompressionThreshold int64 = 1 << 10 // 1 KiB
	DefaultMemoryCeiling              = uint64(512 << 20)
	DefaultLowActivityPerMin          = 5
	DefaultHighActivityPerMin         = 30
	DefaultBaseInterval               = 30 * time.Second
	DefaultWindowDuration             = time.Minute
	DefaultDeadband                   = 5 * time.Second

	// Interval multipliers applied to the base interval.
	lowActivityMultiplier  = 2.0
	highActivityMultiplier = 0.5

	// Memory alarm thresholds as fractions of the ceiling.
	memoryWarningFraction  = 0.80
	memoryCriticalFraction = 0.95

	memoryHistorySize = 60
)

// Config configures the governor.
type Config struct {
	// CompressionDisabled turns payload compression off entirely.
	CompressionDisabled bool

	// CompressionThreshold is the payload size above which compression
	// is attempted.
	CompressionThreshold int64

	// CompressionLevel is the gzip level (0 selects the default).
	CompressionLevel int

	// MemoryCeiling is the process memory budget in bytes.
	MemoryCeiling uint64

	// LowActivityPerMin and HighActivityPerMin bound the adaptive
	// interval algorithm.
	LowActivityPerMin  int
	HighActivityPerMin int

	// BaseInterval is the periodic save interval the multipliers apply to.
	BaseInterval time.Duration

	// WindowDuration is the activity window length.
	WindowDuration time.Duration

	// Deadband suppresses interval changes smaller than this.
	Deadband time.Duration

	// Bus receives MemoryPressure and IntervalChanged events. Optional.
	Bus *event.Bus

	// Metrics receives governor gauges. Optional.
	Metrics *metric.Registry
}

// DefaultConfig returns the default governor configuration.
func DefaultConfig() Config {
	return Config{
		CompressionThreshold: DefaultCompressionThreshold,
		MemoryCeiling:        DefaultMemoryCeiling,
		LowActivityPerMin:    DefaultLowActivityPerMin,
		HighActivityPerMin:   DefaultHighActivityPerMin,
		BaseInterval:         DefaultBaseInterval,
		WindowDuration:       DefaultWindowDuration,
		Deadband:             DefaultDeadband,
	}
}

// Governor owns compression, memory and activity state. Safe for use
// from the scheduler goroutines and the host application concurrently.
type Governor struct {
	cfg Config

	mu sync.Mutex

	// Activity window.
	windowStart    time.Time
	countInWindow  int
	lastActivityAt time.Time

	// Adaptive interval.
	currentInterval time.Duration
	lastChangeAt    time.Time

	// Memory history, newest last, bounded.
	memHistory []MemorySample
	warnCount  int
	lastWarnAt time.Time

	// Compression efficacy of the last compressed payload.
	lastRatio float64

	warnLimiter *rate.Limiter

	nowFn func() time.Time
}

// New creates a governor with the given configuration.
func New(cfg Config) (*Governor, error) {
	if cfg.CompressionThreshold == 0 {
		cfg.CompressionThreshold = DefaultCompressionThreshold
	}
	if cfg.MemoryCeiling == 0 {
		cfg.MemoryCeiling = DefaultMemoryCeiling
	}
	if cfg.LowActivityPerMin == 0 {
		cfg.LowActivityPerMin = DefaultLowActivityPerMin
	}
	if cfg.HighActivityPerMin == 0 {
		cfg.HighActivityPerMin = DefaultHighActivityPerMin
	}
	if cfg.BaseInterval == 0 {
		cfg.BaseInterval = DefaultBaseInterval
	}
	if cfg.WindowDuration == 0 {
		cfg.WindowDuration = DefaultWindowDuration
	}
	if cfg.Deadband == 0 {
		cfg.Deadband = DefaultDeadband
	}
	if cfg.LowActivityPerMin >= cfg.HighActivityPerMin {
		return nil, fmt.Errorf("governor: low activity threshold %d must be below high %d",
			cfg.LowActivityPerMin, cfg.HighActivityPerMin)
	}

	now := time.Now()
	return &Governor{
		cfg:             cfg,
		windowStart:     now,
		currentInterval: cfg.BaseInterval,
		warnLimiter:     rate.NewLimiter(rate.Every(30*time.Second), 1),
		nowFn:           time.Now,
	}, nil
}

// BaseInterval returns the configured base save interval.
func (g *Governor) BaseInterval() time.Duration {
	return g.cfg.BaseInterval
}

// CurrentInterval returns the adaptive save interval.
func (g *Governor) CurrentInterval() time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.currentInterval
}
