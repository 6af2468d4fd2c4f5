package governor

import "time"

// Score returns a bounded 0-100 heuristic combining memory headroom,
// compression efficacy and recent warning frequency. Advisory only;
// nothing in the engine makes correctness decisions from it.
func (g *Governor) Score() int {
	g.mu.Lock()
	defer g.mu.Unlock()

	// Memory headroom, up to 50 points.
	headroom := 1.0
	if n := len(g.memHistory); n > 0 {
		headroom = 1 - g.memHistory[n-1].Percent/100
		if headroom < 0 {
			headroom = 0
		}
	}
	score := 50 * headroom

	// Compression efficacy, up to 30 points. Before any compressed
	// write, assume a neutral middle.
	efficacy := 0.5
	if g.lastRatio > 0 {
		efficacy = 1 - g.lastRatio
		if efficacy < 0 {
			efficacy = 0
		}
	}
	score += 30 * efficacy

	// Warning recency, up to 20 points: full marks with no pressure in
	// the last five minutes, nothing with pressure right now.
	score += 20
	if !g.lastWarnAt.IsZero() {
		since := g.nowFn().Sub(g.lastWarnAt)
		if since < 5*time.Minute {
			score -= 20 * (1 - since.Minutes()/5)
		}
	}

	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return int(score)
}
