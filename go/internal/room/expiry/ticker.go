package expiry

import (
	"time"

	"github.com/jonboulle/clockwork"
)

// TickInterval is the countdown resolution.
const TickInterval = time.Second

// Ticker is the single interval that drives a session's countdown. At most
// one underlying ticker exists at a time: Start always releases the
// previous one first. It is not safe for concurrent use; the owning event
// loop is the only caller.
type Ticker struct {
	clock    clockwork.Clock
	interval time.Duration
	ticker   clockwork.Ticker
}

// NewTicker creates a stopped ticker on clock.
func NewTicker(clock clockwork.Clock, interval time.Duration) *Ticker {
	if interval <= 0 {
		interval = TickInterval
	}
	return &Ticker{clock: clock, interval: interval}
}

// Start begins ticking, replacing any running interval.
func (t *Ticker) Start() {
	t.Stop()
	t.ticker = t.clock.NewTicker(t.interval)
}

// Stop releases the interval. Safe to call when already stopped.
func (t *Ticker) Stop() {
	if t.ticker == nil {
		return
	}
	t.ticker.Stop()
	t.ticker = nil
}

// Running reports whether an interval is active.
func (t *Ticker) Running() bool {
	return t.ticker != nil
}

// C returns the tick channel, or nil while stopped so that a select on it
// blocks. A tick buffered before Stop is never observed.
func (t *Ticker) C() <-chan time.Time {
	if t.ticker == nil {
		return nil
	}
	return t.ticker.Chan()
}
