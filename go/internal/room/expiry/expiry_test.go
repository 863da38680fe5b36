package expiry

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountdownDecrementsByOneAndFiresOnce(t *testing.T) {
	c := NewCountdown().Resync(3).Start()

	var fired int
	var seen []int
	for i := 0; i < 6; i++ {
		var f bool
		c, f = c.Tick()
		if f {
			fired++
		}
		seen = append(seen, c.Remaining)
	}

	assert.Equal(t, []int{2, 1, 0, 0, 0, 0}, seen)
	assert.Equal(t, 1, fired)
	assert.False(t, c.Running)
	assert.True(t, c.Expired())
}

func TestCountdownPausedDoesNotTick(t *testing.T) {
	c := NewCountdown().Resync(10)
	c, fired := c.Tick()
	assert.False(t, fired)
	assert.Equal(t, 10, c.Remaining)

	c = c.Start().Stop()
	c, _ = c.Tick()
	assert.Equal(t, 10, c.Remaining)
}

func TestCountdownResyncOverwrites(t *testing.T) {
	c := NewCountdown()
	assert.Equal(t, DefaultSeconds, c.Remaining)

	c = c.Resync(42).Start()
	c, _ = c.Tick()
	c = c.Resync(90)
	assert.Equal(t, 90, c.Remaining)
	assert.True(t, c.Running)

	assert.Equal(t, 0, c.Resync(-5).Remaining)
}

func TestFormat(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{0, "0:00"},
		{5, "0:05"},
		{59, "0:59"},
		{60, "1:00"},
		{61, "1:01"},
		{600, "10:00"},
		{3600, "60:00"},
		{90.7, "1:30"},
		{math.NaN(), "0:00"},
		{math.Inf(1), "0:00"},
		{math.Inf(-1), "0:00"},
		{-3, "0:00"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Format(tt.in), "Format(%v)", tt.in)
	}
	assert.Equal(t, "2:05", FormatSeconds(125))
}

func TestTickerStartReplacesExistingInterval(t *testing.T) {
	clock := clockwork.NewFakeClock()
	ticker := NewTicker(clock, time.Second)
	assert.Nil(t, ticker.C())
	assert.False(t, ticker.Running())

	ticker.Start()
	first := ticker.C()
	ticker.Start()
	second := ticker.C()
	require.NotNil(t, second)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, clock.BlockUntilContext(ctx, 1), "only one interval may be registered")

	clock.Advance(time.Second)
	select {
	case <-second:
	case <-time.After(time.Second):
		t.Fatal("expected a tick on the current interval")
	}
	select {
	case <-first:
		t.Fatal("replaced interval must not tick")
	default:
	}

	ticker.Stop()
	ticker.Stop()
	assert.Nil(t, ticker.C())
	assert.False(t, ticker.Running())
}

func TestSchedulerFiresAtDeadline(t *testing.T) {
	clock := clockwork.NewFakeClock()
	expired := make(chan string, 1)
	s := NewScheduler(clock, func(roomID string) { expired <- roomID })
	defer s.Stop()

	s.Schedule("R1", clock.Now().Add(time.Minute))
	s.Schedule("R1", clock.Now().Add(time.Minute))
	assert.Equal(t, 1, s.Pending())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, clock.BlockUntilContext(ctx, 1))

	clock.Advance(59 * time.Second)
	select {
	case <-expired:
		t.Fatal("fired early")
	case <-time.After(20 * time.Millisecond):
	}

	clock.Advance(time.Second)
	select {
	case id := <-expired:
		assert.Equal(t, "R1", id)
	case <-time.After(time.Second):
		t.Fatal("expected expiry callback")
	}
	assert.Eventually(t, func() bool { return s.Pending() == 0 }, time.Second, 5*time.Millisecond)
}

func TestSchedulerPastDeadlineFiresImmediately(t *testing.T) {
	clock := clockwork.NewFakeClock()
	expired := make(chan string, 1)
	s := NewScheduler(clock, func(roomID string) { expired <- roomID })
	defer s.Stop()

	s.Schedule("old", clock.Now().Add(-time.Second))
	select {
	case id := <-expired:
		assert.Equal(t, "old", id)
	case <-time.After(time.Second):
		t.Fatal("expected immediate expiry")
	}
}

func TestSchedulerCancelAndReplace(t *testing.T) {
	clock := clockwork.NewFakeClock()
	var mu sync.Mutex
	var fired []string
	s := NewScheduler(clock, func(roomID string) {
		mu.Lock()
		defer mu.Unlock()
		fired = append(fired, roomID)
	})
	defer s.Stop()

	s.Schedule("A", clock.Now().Add(10*time.Second))
	s.Schedule("B", clock.Now().Add(10*time.Second))
	s.Cancel("A")
	s.Schedule("B", clock.Now().Add(20*time.Second))
	assert.Equal(t, 1, s.Pending())

	clock.Advance(15 * time.Second)
	time.Sleep(20 * time.Millisecond)
	mu.Lock()
	assert.Empty(t, fired)
	mu.Unlock()

	clock.Advance(5 * time.Second)
	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(fired) == 1 && fired[0] == "B"
	}, time.Second, 5*time.Millisecond)
}

func TestSchedulerStopIgnoresLaterSchedules(t *testing.T) {
	clock := clockwork.NewFakeClock()
	s := NewScheduler(clock, nil)
	s.Schedule("A", clock.Now().Add(time.Second))
	s.Stop()
	s.Schedule("B", clock.Now().Add(time.Second))
	assert.Equal(t, 0, s.Pending())
}
