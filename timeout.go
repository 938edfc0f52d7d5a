package bootstage

import "time"

// timeoutGuard re-arms a timer on every bit of stage activity. A timer that
// was reset or stopped after it fired is recognised by its generation and
// ignored. All methods must be called with the coordinator lock held.
type timeoutGuard struct {
	d     time.Duration
	gen   uint64
	timer *time.Timer
	fire  func(gen uint64)
}

// arm sets the interval and starts the timer.
func (g *timeoutGuard) arm(d time.Duration) {
	g.d = d
	g.reset()
}

// reset restarts the timer if an interval has been set.
func (g *timeoutGuard) reset() {
	if g.d <= 0 {
		return
	}
	if g.timer != nil {
		g.timer.Stop()
	}
	g.gen++
	gen := g.gen
	g.timer = time.AfterFunc(g.d, func() { g.fire(gen) })
}

// stop cancels the timer and clears the interval.
func (g *timeoutGuard) stop() {
	if g.timer != nil {
		g.timer.Stop()
		g.timer = nil
	}
	g.gen++
	g.d = 0
}

func (g *timeoutGuard) current(gen uint64) bool {
	return g.d > 0 && gen == g.gen
}
