package registry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/momento/go/internal/models"
)

// MemoryRegistry keeps rooms in process memory. Expired rooms are dropped
// lazily on access.
type MemoryRegistry struct {
	clock clockwork.Clock

	mu      sync.Mutex
	rooms   map[string]models.Room
	members map[string]map[string]struct{}
}

// NewMemoryRegistry creates an empty registry. A nil clock means the real
// clock.
func NewMemoryRegistry(clock clockwork.Clock) *MemoryRegistry {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &MemoryRegistry{
		clock:   clock,
		rooms:   make(map[string]models.Room),
		members: make(map[string]map[string]struct{}),
	}
}

// Create stores a new room living for minutes (clamped).
func (r *MemoryRegistry) Create(ctx context.Context, minutes int) (models.Room, error) {
	minutes = ClampMinutes(minutes)
	now := r.clock.Now()

	r.mu.Lock()
	defer r.mu.Unlock()

	r.sweepLocked(now)

	for attempt := 0; attempt < maxCreateRetries; attempt++ {
		id := NewRoomID()
		if _, taken := r.rooms[id]; taken {
			continue
		}
		room := models.Room{
			ID:        id,
			CreatedAt: now,
			ExpiresAt: now.Add(time.Duration(minutes) * time.Minute),
		}
		r.rooms[id] = room

		log.Info().
			Str("room_id", id).
			Int("expiry_minutes", minutes).
			Msg("created room")
		return room, nil
	}
	return models.Room{}, fmt.Errorf("create room: %w", ErrIDCollision)
}

// Lookup returns a live room or ErrNotFound.
func (r *MemoryRegistry) Lookup(ctx context.Context, roomID string) (models.Room, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.liveLocked(roomID, r.clock.Now())
	if !ok {
		return models.Room{}, ErrNotFound
	}
	room.ActiveUsers = len(r.members[roomID])
	return room, nil
}

// AddMember records memberID in a live room.
func (r *MemoryRegistry) AddMember(ctx context.Context, roomID, memberID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.liveLocked(roomID, r.clock.Now()); !ok {
		return 0, ErrNotFound
	}
	set, ok := r.members[roomID]
	if !ok {
		set = make(map[string]struct{})
		r.members[roomID] = set
	}
	set[memberID] = struct{}{}
	return len(set), nil
}

// RemoveMember forgets memberID. Removing from a gone room reports zero.
func (r *MemoryRegistry) RemoveMember(ctx context.Context, roomID, memberID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.members[roomID]
	if !ok {
		return 0, nil
	}
	delete(set, memberID)
	if len(set) == 0 {
		delete(r.members, roomID)
	}
	return len(set), nil
}

// Destroy drops a room and its members.
func (r *MemoryRegistry) Destroy(ctx context.Context, roomID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.rooms, roomID)
	delete(r.members, roomID)
	log.Info().Str("room_id", roomID).Msg("destroyed room")
	return nil
}

// Close is a no-op.
func (r *MemoryRegistry) Close() error {
	return nil
}

func (r *MemoryRegistry) liveLocked(roomID string, now time.Time) (models.Room, bool) {
	room, ok := r.rooms[roomID]
	if !ok {
		return models.Room{}, false
	}
	if room.Expired(now) {
		delete(r.rooms, roomID)
		delete(r.members, roomID)
		return models.Room{}, false
	}
	return room, true
}

func (r *MemoryRegistry) sweepLocked(now time.Time) {
	for id, room := range r.rooms {
		if room.Expired(now) {
			delete(r.rooms, id)
			delete(r.members, id)
		}
	}
}
