package expiry

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// ExpireFunc is called once when a room's deadline passes.
type ExpireFunc func(roomID string)

// Scheduler keeps one one-shot timer per room and calls onExpire when the
// room's deadline passes. It is the server-side authority that pushes
// ROOM_EXPIRED to connected clients.
type Scheduler struct {
	clock    clockwork.Clock
	onExpire ExpireFunc

	mu     sync.Mutex
	timers map[string]*scheduled
	closed bool
}

type scheduled struct {
	deadline time.Time
	timer    clockwork.Timer
	cancel   chan struct{}
}

// NewScheduler creates a scheduler. A nil clock means the real clock.
func NewScheduler(clock clockwork.Clock, onExpire ExpireFunc) *Scheduler {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Scheduler{
		clock:    clock,
		onExpire: onExpire,
		timers:   make(map[string]*scheduled),
	}
}

// Schedule arranges for onExpire(roomID) at deadline. Scheduling the same
// deadline twice is a no-op; a different deadline replaces the old timer.
// A deadline already in the past fires immediately.
func (s *Scheduler) Schedule(roomID string, deadline time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}

	if existing, ok := s.timers[roomID]; ok {
		if existing.deadline.Equal(deadline) {
			log.Debug().
				Str("room_id", roomID).
				Time("deadline", deadline).
				Msg("skipping duplicate schedule - already scheduled for this deadline")
			return
		}
		stopAndDrainTimer(existing.timer)
		close(existing.cancel)
		log.Debug().Str("room_id", roomID).Msg("replaced existing expiry timer")
	}

	wait := deadline.Sub(s.clock.Now())
	if wait < 0 {
		wait = 0
	}

	entry := &scheduled{
		deadline: deadline,
		timer:    s.clock.NewTimer(wait),
		cancel:   make(chan struct{}),
	}
	s.timers[roomID] = entry

	go s.await(roomID, entry)

	log.Debug().
		Str("room_id", roomID).
		Time("deadline", deadline).
		Dur("duration", wait).
		Msg("scheduled room expiry")
}

func (s *Scheduler) await(roomID string, entry *scheduled) {
	select {
	case <-entry.timer.Chan():
	case <-entry.cancel:
		return
	}

	s.mu.Lock()
	current, ok := s.timers[roomID]
	if !ok || current != entry {
		s.mu.Unlock()
		return
	}
	delete(s.timers, roomID)
	s.mu.Unlock()

	log.Info().Str("room_id", roomID).Msg("room expired")
	if s.onExpire != nil {
		s.onExpire(roomID)
	}
}

// Cancel drops the pending timer for roomID, if any.
func (s *Scheduler) Cancel(roomID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry, ok := s.timers[roomID]; ok {
		stopAndDrainTimer(entry.timer)
		close(entry.cancel)
		delete(s.timers, roomID)
		log.Debug().Str("room_id", roomID).Msg("cancelled expiry timer")
	}
}

// Pending returns the number of rooms with a scheduled expiry.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// Stop cancels every pending timer. Later Schedule calls are ignored.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for roomID, entry := range s.timers {
		stopAndDrainTimer(entry.timer)
		close(entry.cancel)
		log.Debug().Str("room_id", roomID).Msg("cancelled expiry timer on shutdown")
	}
	s.timers = make(map[string]*scheduled)
	s.closed = true
}

// stopAndDrainTimer stops a timer and drains its channel if it already
// fired.
func stopAndDrainTimer(timer clockwork.Timer) {
	if !timer.Stop() {
		select {
		case <-timer.Chan():
		default:
		}
	}
}
