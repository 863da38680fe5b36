package registry

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/mcdev12/momento/go/internal/models"
)

const (
	MinExpiryMinutes     = models.MinExpiryMinutes
	MaxExpiryMinutes     = models.MaxExpiryMinutes
	DefaultExpiryMinutes = models.DefaultExpiryMinutes

	roomIDLength     = 8
	maxCreateRetries = 3
)

var (
	// ErrNotFound is returned for unknown rooms and for expired rooms alike.
	ErrNotFound = errors.New("room not found")
	// ErrUnavailable means the backing store could not be reached.
	ErrUnavailable = errors.New("room registry unavailable")
	// ErrIDCollision means no free room id was found after several attempts.
	ErrIDCollision = errors.New("room id collision")
)

// Registry owns room identity and lifetime. Rooms are never renewed; they
// disappear when their lifetime ends.
type Registry interface {
	Create(ctx context.Context, minutes int) (models.Room, error)
	Lookup(ctx context.Context, roomID string) (models.Room, error)
}

// Presence tracks which connections are in a room. Both methods return the
// member count after the change.
type Presence interface {
	AddMember(ctx context.Context, roomID, memberID string) (int, error)
	RemoveMember(ctx context.Context, roomID, memberID string) (int, error)
}

// Destroyer removes a room before its lifetime ends.
type Destroyer interface {
	Destroy(ctx context.Context, roomID string) error
}

// Store is what the server needs from a backend.
type Store interface {
	Registry
	Presence
	Destroyer
	Close() error
}

// Pinger is implemented by stores backed by a remote service.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ClampMinutes forces a requested lifetime into [MinExpiryMinutes, MaxExpiryMinutes].
func ClampMinutes(minutes int) int {
	return models.ClampExpiryMinutes(minutes)
}

// NewRoomID returns a short random room identifier.
func NewRoomID() string {
	return uuid.NewString()[:roomIDLength]
}
