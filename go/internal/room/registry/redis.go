package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/momento/go/internal/models"
)

// RedisRegistry stores each room as a JSON value whose TTL is the room's
// remaining lifetime, so Redis itself forgets expired rooms.
type RedisRegistry struct {
	client *redis.Client
	clock  clockwork.Clock
}

// NewRedisRegistry connects to redisURL and verifies the connection.
func NewRedisRegistry(ctx context.Context, redisURL string) (*RedisRegistry, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: ping redis: %w", ErrUnavailable, err)
	}

	return NewRedisRegistryFromClient(client, nil), nil
}

// NewRedisRegistryFromClient wraps an existing client. A nil clock means the
// real clock.
func NewRedisRegistryFromClient(client *redis.Client, clock clockwork.Clock) *RedisRegistry {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &RedisRegistry{client: client, clock: clock}
}

// Close closes the Redis connection.
func (r *RedisRegistry) Close() error {
	return r.client.Close()
}

// Ping checks the Redis connection.
func (r *RedisRegistry) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func roomKey(roomID string) string {
	return fmt.Sprintf("room:%s", roomID)
}

func roomUsersKey(roomID string) string {
	return fmt.Sprintf("room:users:%s", roomID)
}

// Create stores a new room with a TTL of minutes (clamped).
func (r *RedisRegistry) Create(ctx context.Context, minutes int) (models.Room, error) {
	minutes = ClampMinutes(minutes)
	lifetime := time.Duration(minutes) * time.Minute
	now := r.clock.Now()

	for attempt := 0; attempt < maxCreateRetries; attempt++ {
		room := models.Room{
			ID:        NewRoomID(),
			CreatedAt: now,
			ExpiresAt: now.Add(lifetime),
		}

		data, err := json.Marshal(room)
		if err != nil {
			return models.Room{}, fmt.Errorf("marshal room: %w", err)
		}

		ok, err := r.client.SetNX(ctx, roomKey(room.ID), data, lifetime).Result()
		if err != nil {
			return models.Room{}, fmt.Errorf("%w: create room: %w", ErrUnavailable, err)
		}
		if !ok {
			log.Warn().Str("room_id", room.ID).Msg("room id collision, retrying")
			continue
		}

		log.Info().
			Str("room_id", room.ID).
			Int("expiry_minutes", minutes).
			Msg("created room")
		return room, nil
	}
	return models.Room{}, fmt.Errorf("create room: %w", ErrIDCollision)
}

// Lookup returns a live room with its current member count.
func (r *RedisRegistry) Lookup(ctx context.Context, roomID string) (models.Room, error) {
	room, err := r.get(ctx, roomID)
	if err != nil {
		return models.Room{}, err
	}

	count, err := r.client.SCard(ctx, roomUsersKey(roomID)).Result()
	if err != nil {
		return models.Room{}, fmt.Errorf("%w: count members: %w", ErrUnavailable, err)
	}
	room.ActiveUsers = int(count)
	return room, nil
}

// AddMember adds memberID to the room's user set. The set expires with the
// room.
func (r *RedisRegistry) AddMember(ctx context.Context, roomID, memberID string) (int, error) {
	room, err := r.get(ctx, roomID)
	if err != nil {
		return 0, err
	}

	key := roomUsersKey(roomID)
	var card *redis.IntCmd
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SAdd(ctx, key, memberID)
		pipe.Expire(ctx, key, room.TTL(r.clock.Now()))
		card = pipe.SCard(ctx, key)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%w: add member: %w", ErrUnavailable, err)
	}
	return int(card.Val()), nil
}

// RemoveMember removes memberID from the room's user set.
func (r *RedisRegistry) RemoveMember(ctx context.Context, roomID, memberID string) (int, error) {
	key := roomUsersKey(roomID)
	var card *redis.IntCmd
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SRem(ctx, key, memberID)
		card = pipe.SCard(ctx, key)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%w: remove member: %w", ErrUnavailable, err)
	}
	return int(card.Val()), nil
}

// Destroy deletes the room and its user set.
func (r *RedisRegistry) Destroy(ctx context.Context, roomID string) error {
	if err := r.client.Del(ctx, roomKey(roomID), roomUsersKey(roomID)).Err(); err != nil {
		return fmt.Errorf("%w: destroy room: %w", ErrUnavailable, err)
	}
	log.Info().Str("room_id", roomID).Msg("destroyed room")
	return nil
}

func (r *RedisRegistry) get(ctx context.Context, roomID string) (models.Room, error) {
	data, err := r.client.Get(ctx, roomKey(roomID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return models.Room{}, ErrNotFound
	}
	if err != nil {
		return models.Room{}, fmt.Errorf("%w: lookup room: %w", ErrUnavailable, err)
	}

	var room models.Room
	if err := json.Unmarshal(data, &room); err != nil {
		return models.Room{}, fmt.Errorf("decode room %s: %w", roomID, err)
	}
	// Key TTLs have millisecond granularity; the stored deadline is the
	// authority.
	if room.Expired(r.clock.Now()) {
		return models.Room{}, ErrNotFound
	}
	return room, nil
}
