package governor

import (
	"time"

	"github.com/alphaleadership/skid-inc-sub000/internal/event"
)

// ActivityKind labels what the host was doing when activity was
// recorded. Advisory, used only for event payloads.
type ActivityKind string

const (
	ActivityStateChange ActivityKind = "state_change"
	ActivitySave        ActivityKind = "save"
	ActivityCommand     ActivityKind = "command"
)

// RecordActivity counts an activity event in the rolling window. When
// the window has elapsed, the closed window's rate drives the adaptive
// interval before a fresh window opens.
func (g *Governor) RecordActivity(kind ActivityKind) {
	_ = kind

	now := g.nowFn()

	g.mu.Lock()
	var changed bool
	var prev, current time.Duration
	var ratePerMin int
	if now.Sub(g.windowStart) >= g.cfg.WindowDuration {
		ratePerMin = g.rollWindowLocked(now)
		prev = g.currentInterval
		changed = g.applyRateLocked(ratePerMin, now)
		current = g.currentInterval
	}
	g.countInWindow++
	g.lastActivityAt = now
	g.mu.Unlock()

	if changed {
		if g.cfg.Metrics != nil {
			g.cfg.Metrics.SaveIntervalSecs.Set(current.Seconds())
		}
		g.cfg.Bus.Publish(event.IntervalChanged{
			Previous:   prev,
			Current:    current,
			RatePerMin: ratePerMin,
		})
	}
}

// rollWindowLocked closes the current window and returns its event rate
// normalized to events per minute.
func (g *Governor) rollWindowLocked(now time.Time) int {
	elapsed := now.Sub(g.windowStart)
	if elapsed <= 0 {
		elapsed = g.cfg.WindowDuration
	}
	rate := float64(g.countInWindow) / elapsed.Minutes()

	g.countInWindow = 0
	g.windowStart = now
	return int(rate)
}

// applyRateLocked maps an activity rate onto the adaptive interval.
// Multipliers apply to the base interval so adjustments never compound.
// Changes within the deadband are dropped to avoid thrashing.
func (g *Governor) applyRateLocked(ratePerMin int, now time.Time) bool {
	candidate := g.cfg.BaseInterval
	switch {
	case ratePerMin < g.cfg.LowActivityPerMin:
		candidate = time.Duration(float64(g.cfg.BaseInterval) * lowActivityMultiplier)
	case ratePerMin > g.cfg.HighActivityPerMin:
		candidate = time.Duration(float64(g.cfg.BaseInterval) * highActivityMultiplier)
	}

	delta := candidate - g.currentInterval
	if delta < 0 {
		delta = -delta
	}
	if delta < g.cfg.Deadband {
		return false
	}

	g.currentInterval = candidate
	g.lastChangeAt = now
	return true
}

// LastActivity returns when activity was last recorded.
func (g *Governor) LastActivity() time.Time {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.lastActivityAt
}
