package expiry

// Client-side countdown.
//
// The server owns a room's expiry. The client receives remaining seconds
// from create/lookup and counts down locally at 1 Hz while chatting. The
// local value is overwritten on every fresh lookup and never smoothed, so a
// few seconds of drift against the server is expected.

// DefaultSeconds is the countdown value before any room is known and after
// a session resets.
const DefaultSeconds = 600

// Countdown is the local mirror of a room's remaining lifetime. It is a
// plain value; the ticking resource lives in Ticker and is owned by
// whoever holds the session.
type Countdown struct {
	Remaining int
	Running   bool
}

// NewCountdown returns a stopped countdown at DefaultSeconds.
func NewCountdown() Countdown {
	return Countdown{Remaining: DefaultSeconds}
}

// Resync overwrites the remaining seconds with a freshly fetched value.
func (c Countdown) Resync(seconds int) Countdown {
	if seconds < 0 {
		seconds = 0
	}
	c.Remaining = seconds
	return c
}

// Start marks the countdown as ticking.
func (c Countdown) Start() Countdown {
	c.Running = true
	return c
}

// Stop marks the countdown as paused. Remaining is kept.
func (c Countdown) Stop() Countdown {
	c.Running = false
	return c
}

// Expired reports whether the countdown has reached zero.
func (c Countdown) Expired() bool {
	return c.Remaining <= 0
}

// Tick advances a running countdown by one second. fired is true exactly
// once, on the tick that reaches zero; the countdown stops itself there so
// later ticks are no-ops.
func (c Countdown) Tick() (next Countdown, fired bool) {
	if !c.Running {
		return c, false
	}
	c.Remaining--
	if c.Remaining <= 0 {
		c.Remaining = 0
		c.Running = false
		return c, true
	}
	return c, false
}
