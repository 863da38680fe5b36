package models

import (
	"math"
	"time"
)

// Room lifetime bounds, in minutes.
const (
	MinExpiryMinutes     = 1
	MaxExpiryMinutes     = 60
	DefaultExpiryMinutes = 10
)

// ClampExpiryMinutes forces a requested lifetime into
// [MinExpiryMinutes, MaxExpiryMinutes].
func ClampExpiryMinutes(minutes int) int {
	if minutes < MinExpiryMinutes {
		return MinExpiryMinutes
	}
	if minutes > MaxExpiryMinutes {
		return MaxExpiryMinutes
	}
	return minutes
}

// RoomStatus defines the status reported for a room.
type RoomStatus string

const (
	RoomStatusActive RoomStatus = "active"
)

// Room represents an ephemeral chat room.
type Room struct {
	ID          string    `json:"id"`
	CreatedAt   time.Time `json:"created_at"`
	ExpiresAt   time.Time `json:"expires_at"`
	ActiveUsers int       `json:"active_users"`
}

// Expired reports whether the room is past its expiry at now. A room is
// valid only while now is strictly before ExpiresAt.
func (r Room) Expired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}

// RemainingSeconds returns the whole seconds left at now, never negative.
func (r Room) RemainingSeconds(now time.Time) int {
	left := r.ExpiresAt.Sub(now)
	if left <= 0 {
		return 0
	}
	return int(math.Floor(left.Seconds()))
}

// TTL returns the remaining lifetime at now, never negative.
func (r Room) TTL(now time.Time) time.Duration {
	left := r.ExpiresAt.Sub(now)
	if left < 0 {
		return 0
	}
	return left
}
