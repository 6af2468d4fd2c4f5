package governor

import (
	"runtime"
	"time"

	"github.com/alphaleadership/skid-inc-sub000/internal/event"
)

// MemorySample is one point of the bounded memory history.
type MemorySample struct {
	At        time.Time
	HeapBytes uint64
	Percent   float64
	Level     event.MemoryLevel // empty below the warning line
}

// CheckMemory samples process memory, appends it to the rolling history
// and raises pressure events at 80% (warning) and 95% (critical) of the
// ceiling. At critical level it also hints the garbage collector.
// Warning events are rate limited; critical events always publish.
func (g *Governor) CheckMemory() MemorySample {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	used := ms.HeapAlloc
	pct := float64(used) / float64(g.cfg.MemoryCeiling)

	sample := MemorySample{
		At:        g.nowFn(),
		HeapBytes: used,
		Percent:   pct * 100,
	}

	switch {
	case pct >= memoryCriticalFraction:
		sample.Level = event.MemoryCritical
	case pct >= memoryWarningFraction:
		sample.Level = event.MemoryWarning
	}

	g.mu.Lock()
	g.memHistory = append(g.memHistory, sample)
	if len(g.memHistory) > memoryHistorySize {
		g.memHistory = g.memHistory[len(g.memHistory)-memoryHistorySize:]
	}
	if sample.Level != "" {
		g.warnCount++
		g.lastWarnAt = sample.At
	}
	g.mu.Unlock()

	if g.cfg.Metrics != nil {
		g.cfg.Metrics.MemoryUsageBytes.Set(float64(used))
	}

	if sample.Level == event.MemoryCritical {
		// Best effort relief before the host notices.
		runtime.GC()
	}

	if sample.Level != "" && (sample.Level == event.MemoryCritical || g.warnLimiter.Allow()) {
		g.cfg.Bus.Publish(event.MemoryPressure{
			Level:        sample.Level,
			UsedBytes:    used,
			CeilingBytes: g.cfg.MemoryCeiling,
			Percent:      sample.Percent,
		})
	}

	return sample
}

// MemoryHistory returns a copy of the rolling sample history, oldest
// first.
func (g *Governor) MemoryHistory() []MemorySample {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]MemorySample, len(g.memHistory))
	copy(out, g.memHistory)
	return out
}
