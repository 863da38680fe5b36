package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/momento/go/internal/dbconfig"
	"github.com/mcdev12/momento/go/internal/room/registry"
)

// setupStore connects the room registry backend named in config.
func setupStore(ctx context.Context, config *Config) (registry.Store, error) {
	switch config.Registry.Backend {
	case BackendRedis:
		store, err := registry.NewRedisRegistry(ctx, config.Registry.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		log.Info().Str("backend", BackendRedis).Msg("room registry connected")
		return store, nil

	case BackendPostgres:
		dbConfig := dbconfig.NewConfigFromEnv()
		poolConfig, err := dbConfig.PoolConfig()
		if err != nil {
			return nil, err
		}
		store, err := registry.NewPostgresRegistry(ctx, poolConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		log.Info().
			Str("backend", BackendPostgres).
			Str("host", poolConfig.ConnConfig.Host).
			Uint16("port", poolConfig.ConnConfig.Port).
			Str("database", poolConfig.ConnConfig.Database).
			Int32("max_conns", poolConfig.MaxConns).
			Msg("room registry connected")
		return store, nil

	default:
		log.Info().Str("backend", BackendMemory).Msg("using in-memory room registry")
		return registry.NewMemoryRegistry(nil), nil
	}
}
