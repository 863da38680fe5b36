package registry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/momento/go/internal/models"
	"github.com/mcdev12/momento/go/internal/sqlutil"
)

const schema = `
CREATE TABLE IF NOT EXISTS rooms (
	id         TEXT PRIMARY KEY,
	created_at TIMESTAMPTZ NOT NULL,
	expires_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS rooms_expires_at_idx ON rooms (expires_at);

CREATE TABLE IF NOT EXISTS room_members (
	room_id   TEXT NOT NULL REFERENCES rooms (id) ON DELETE CASCADE,
	member_id TEXT NOT NULL,
	joined_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (room_id, member_id)
);
`

// PostgresRegistry keeps rooms in Postgres. Expired rows are filtered out of
// every read and swept on create.
type PostgresRegistry struct {
	pool  *pgxpool.Pool
	clock clockwork.Clock
}

// NewPostgresRegistry opens a pool from poolConfig, pings it and ensures the schema.
func NewPostgresRegistry(ctx context.Context, poolConfig *pgxpool.Config) (*PostgresRegistry, error) {
	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create database pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%w: ping database: %w", ErrUnavailable, err)
	}

	r := NewPostgresRegistryFromPool(pool, nil)
	if err := r.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return r, nil
}

// NewPostgresRegistryFromPool wraps an existing pool. A nil clock means the
// real clock.
func NewPostgresRegistryFromPool(pool *pgxpool.Pool, clock clockwork.Clock) *PostgresRegistry {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &PostgresRegistry{pool: pool, clock: clock}
}

// EnsureSchema creates the rooms tables if they do not exist.
func (r *PostgresRegistry) EnsureSchema(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// Ping checks the database connection.
func (r *PostgresRegistry) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// Close closes the pool.
func (r *PostgresRegistry) Close() error {
	r.pool.Close()
	return nil
}

// Create inserts a new room living for minutes (clamped).
func (r *PostgresRegistry) Create(ctx context.Context, minutes int) (models.Room, error) {
	minutes = ClampMinutes(minutes)
	now := r.clock.Now().UTC()

	if _, err := r.Sweep(ctx); err != nil {
		log.Warn().Err(err).Msg("failed to sweep expired rooms")
	}

	for attempt := 0; attempt < maxCreateRetries; attempt++ {
		room := models.Room{
			ID:        NewRoomID(),
			CreatedAt: now,
			ExpiresAt: now.Add(time.Duration(minutes) * time.Minute),
		}

		tag, err := r.pool.Exec(ctx, `
			INSERT INTO rooms (id, created_at, expires_at)
			VALUES ($1, $2, $3)
			ON CONFLICT (id) DO NOTHING
		`, room.ID, room.CreatedAt, room.ExpiresAt)
		if err != nil {
			return models.Room{}, fmt.Errorf("%w: create room: %w", ErrUnavailable, err)
		}
		if tag.RowsAffected() == 0 {
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

// Lookup returns a live room with its member count.
func (r *PostgresRegistry) Lookup(ctx context.Context, roomID string) (models.Room, error) {
	var room models.Room
	err := r.pool.QueryRow(ctx, `
		SELECT r.id, r.created_at, r.expires_at,
		       (SELECT count(*) FROM room_members m WHERE m.room_id = r.id)
		FROM rooms r
		WHERE r.id = $1 AND r.expires_at > $2
	`, roomID, r.clock.Now()).Scan(
		&room.ID,
		&room.CreatedAt,
		&room.ExpiresAt,
		&room.ActiveUsers,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Room{}, ErrNotFound
	}
	if err != nil {
		return models.Room{}, fmt.Errorf("%w: lookup room: %w", ErrUnavailable, err)
	}
	return room, nil
}

// AddMember records memberID in a live room.
func (r *PostgresRegistry) AddMember(ctx context.Context, roomID, memberID string) (int, error) {
	var count int
	err := sqlutil.Run(ctx, r.pool, func(tx pgx.Tx) error {
		var exists bool
		if err := tx.QueryRow(ctx, `
			SELECT EXISTS (SELECT 1 FROM rooms WHERE id = $1 AND expires_at > $2)
		`, roomID, r.clock.Now()).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return ErrNotFound
		}

		if _, err := tx.Exec(ctx, `
			INSERT INTO room_members (room_id, member_id)
			VALUES ($1, $2)
			ON CONFLICT DO NOTHING
		`, roomID, memberID); err != nil {
			return err
		}

		return tx.QueryRow(ctx, `
			SELECT count(*) FROM room_members WHERE room_id = $1
		`, roomID).Scan(&count)
	})
	if errors.Is(err, ErrNotFound) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("%w: add member: %w", ErrUnavailable, err)
	}
	return count, nil
}

// RemoveMember forgets memberID.
func (r *PostgresRegistry) RemoveMember(ctx context.Context, roomID, memberID string) (int, error) {
	var count int
	err := sqlutil.Run(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
			DELETE FROM room_members WHERE room_id = $1 AND member_id = $2
		`, roomID, memberID); err != nil {
			return err
		}
		return tx.QueryRow(ctx, `
			SELECT count(*) FROM room_members WHERE room_id = $1
		`, roomID).Scan(&count)
	})
	if err != nil {
		return 0, fmt.Errorf("%w: remove member: %w", ErrUnavailable, err)
	}
	return count, nil
}

// Destroy deletes the room; members cascade.
func (r *PostgresRegistry) Destroy(ctx context.Context, roomID string) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM rooms WHERE id = $1`, roomID); err != nil {
		return fmt.Errorf("%w: destroy room: %w", ErrUnavailable, err)
	}
	log.Info().Str("room_id", roomID).Msg("destroyed room")
	return nil
}

// Sweep deletes rooms whose lifetime has ended and returns how many went.
func (r *PostgresRegistry) Sweep(ctx context.Context) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM rooms WHERE expires_at <= $1`, r.clock.Now())
	if err != nil {
		return 0, fmt.Errorf("%w: sweep rooms: %w", ErrUnavailable, err)
	}
	if n := tag.RowsAffected(); n > 0 {
		log.Debug().Int64("count", n).Msg("swept expired rooms")
	}
	return tag.RowsAffected(), nil
}
