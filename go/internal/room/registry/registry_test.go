package registry

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type harness struct {
	store   Store
	clock   *clockwork.FakeClock
	advance func(d time.Duration)
}

func newMemoryHarness(t *testing.T) harness {
	clock := clockwork.NewFakeClock()
	return harness{
		store:   NewMemoryRegistry(clock),
		clock:   clock,
		advance: clock.Advance,
	}
}

func newRedisHarness(t *testing.T) (harness, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	clock := clockwork.NewFakeClock()
	return harness{
		store: NewRedisRegistryFromClient(client, clock),
		clock: clock,
		advance: func(d time.Duration) {
			clock.Advance(d)
			mr.FastForward(d)
		},
	}, mr
}

func newPostgresHarness(t *testing.T) harness {
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	clock := clockwork.NewFakeClock()
	r := NewPostgresRegistryFromPool(pool, clock)
	require.NoError(t, r.EnsureSchema(ctx))
	return harness{store: r, clock: clock, advance: clock.Advance}
}

func TestMemoryRegistry(t *testing.T) {
	runContract(t, func(t *testing.T) harness { return newMemoryHarness(t) })
}

func TestRedisRegistry(t *testing.T) {
	runContract(t, func(t *testing.T) harness {
		h, _ := newRedisHarness(t)
		return h
	})
}

func TestPostgresRegistry(t *testing.T) {
	runContract(t, newPostgresHarness)
}

func runContract(t *testing.T, newHarness func(t *testing.T) harness) {
	ctx := context.Background()

	t.Run("create and lookup", func(t *testing.T) {
		h := newHarness(t)
		start := h.clock.Now()

		room, err := h.store.Create(ctx, 5)
		require.NoError(t, err)
		assert.Len(t, room.ID, roomIDLength)
		assert.WithinDuration(t, start.Add(5*time.Minute), room.ExpiresAt, time.Millisecond)
		assert.Equal(t, 300, room.RemainingSeconds(start))

		got, err := h.store.Lookup(ctx, room.ID)
		require.NoError(t, err)
		assert.Equal(t, room.ID, got.ID)
		assert.WithinDuration(t, room.ExpiresAt, got.ExpiresAt, time.Millisecond)
		assert.Equal(t, 0, got.ActiveUsers)
	})

	t.Run("clamps duration", func(t *testing.T) {
		h := newHarness(t)
		start := h.clock.Now()

		short, err := h.store.Create(ctx, 0)
		require.NoError(t, err)
		assert.WithinDuration(t, start.Add(time.Minute), short.ExpiresAt, time.Millisecond)

		long, err := h.store.Create(ctx, 999)
		require.NoError(t, err)
		assert.WithinDuration(t, start.Add(time.Hour), long.ExpiresAt, time.Millisecond)
	})

	t.Run("unknown room", func(t *testing.T) {
		h := newHarness(t)
		_, err := h.store.Lookup(ctx, "zzzzzzzz")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("room is gone at its expiry instant", func(t *testing.T) {
		h := newHarness(t)
		room, err := h.store.Create(ctx, 1)
		require.NoError(t, err)

		h.advance(59 * time.Second)
		_, err = h.store.Lookup(ctx, room.ID)
		require.NoError(t, err)

		h.advance(time.Second)
		_, err = h.store.Lookup(ctx, room.ID)
		assert.ErrorIs(t, err, ErrNotFound)

		_, err = h.store.AddMember(ctx, room.ID, "conn-1")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("presence", func(t *testing.T) {
		h := newHarness(t)
		room, err := h.store.Create(ctx, 10)
		require.NoError(t, err)

		n, err := h.store.AddMember(ctx, room.ID, "conn-1")
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		n, err = h.store.AddMember(ctx, room.ID, "conn-1")
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		n, err = h.store.AddMember(ctx, room.ID, "conn-2")
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		got, err := h.store.Lookup(ctx, room.ID)
		require.NoError(t, err)
		assert.Equal(t, 2, got.ActiveUsers)

		n, err = h.store.RemoveMember(ctx, room.ID, "conn-1")
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		_, err = h.store.AddMember(ctx, "missing", "conn-3")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("destroy", func(t *testing.T) {
		h := newHarness(t)
		room, err := h.store.Create(ctx, 10)
		require.NoError(t, err)
		_, err = h.store.AddMember(ctx, room.ID, "conn-1")
		require.NoError(t, err)

		require.NoError(t, h.store.Destroy(ctx, room.ID))
		_, err = h.store.Lookup(ctx, room.ID)
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestRedisRegistryUnavailable(t *testing.T) {
	h, mr := newRedisHarness(t)
	ctx := context.Background()

	room, err := h.store.Create(ctx, 10)
	require.NoError(t, err)

	mr.Close()

	_, err = h.store.Lookup(ctx, room.ID)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.NotErrorIs(t, err, ErrNotFound)

	_, err = h.store.Create(ctx, 10)
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestRedisRegistryKeysCarryTTL(t *testing.T) {
	h, mr := newRedisHarness(t)
	ctx := context.Background()

	room, err := h.store.Create(ctx, 3)
	require.NoError(t, err)
	_, err = h.store.AddMember(ctx, room.ID, "conn-1")
	require.NoError(t, err)

	assert.Equal(t, 3*time.Minute, mr.TTL(roomKey(room.ID)))
	assert.Equal(t, 3*time.Minute, mr.TTL(roomUsersKey(room.ID)))
}

func TestClampMinutes(t *testing.T) {
	tests := []struct {
		in, want int
	}{
		{-5, 1},
		{0, 1},
		{1, 1},
		{10, 10},
		{60, 60},
		{61, 60},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ClampMinutes(tt.in), "ClampMinutes(%d)", tt.in)
	}
}

func TestNewRoomID(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 100; i++ {
		id := NewRoomID()
		assert.Len(t, id, roomIDLength)
		seen[id] = struct{}{}
	}
	assert.Len(t, seen, 100)
}
