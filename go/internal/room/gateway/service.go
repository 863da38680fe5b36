package gateway

import (
	"context"
	"fmt"

	"github.com/go-chi/chi/v5"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/momento/go/internal/room/registry"
)

// Service is the room gateway: REST room surface, websocket hub and the
// optional cross-instance relay
type Service struct {
	connectionManager *ConnectionManager
	wsHandler         *WebSocketHandler
	roomHandler       *RoomHandler
	health            *HealthChecker
	relay             *Relay
}

// Config holds configuration for the room gateway service
type Config struct {
	ConnectionConfig     ConnectionConfig
	RelayConfig          RelayConfig
	EnableRelay          bool
	DefaultExpiryMinutes int
}

// DefaultConfig returns default configuration for the room gateway
func DefaultConfig() Config {
	return Config{
		ConnectionConfig:     DefaultConnectionConfig(),
		RelayConfig:          DefaultRelayConfig(),
		DefaultExpiryMinutes: registry.DefaultExpiryMinutes,
	}
}

// NewService creates a new room gateway service
func NewService(config Config, store registry.Store, clock clockwork.Clock, metrics MetricsCollector) (*Service, error) {
	// Create connection manager
	connectionManager := NewConnectionManager(config.ConnectionConfig, store, clock, metrics)

	s := &Service{
		connectionManager: connectionManager,
		wsHandler:         NewWebSocketHandler(connectionManager),
		roomHandler:       NewRoomHandler(store, clock, metrics, config.DefaultExpiryMinutes),
	}

	if config.EnableRelay {
		relay, err := NewRelay(config.RelayConfig, connectionManager.Deliver)
		if err != nil {
			return nil, fmt.Errorf("failed to create relay: %w", err)
		}
		connectionManager.SetPublisher(relay)
		s.relay = relay
	}
	s.health = NewHealthChecker(store, s.relay, connectionManager)

	return s, nil
}

// Start runs the gateway until ctx is cancelled
func (s *Service) Start(ctx context.Context) error {
	log.Info().Bool("relay", s.relay != nil).Msg("starting room gateway service")

	if s.relay != nil {
		if err := s.relay.Start(ctx); err != nil {
			return fmt.Errorf("failed to start relay: %w", err)
		}
	}

	// Blocks until ctx is cancelled, then closes every connection
	s.connectionManager.Start(ctx)

	log.Info().Msg("room gateway service shutting down")
	return s.Stop()
}

// Stop gracefully shuts down the relay
func (s *Service) Stop() error {
	if s.relay != nil {
		if err := s.relay.Stop(); err != nil {
			log.Error().Err(err).Msg("failed to stop relay")
		}
	}

	log.Info().Msg("room gateway service stopped")
	return nil
}

// RegisterRoutes registers the room and WebSocket HTTP routes
func (s *Service) RegisterRoutes(r chi.Router) {
	s.roomHandler.RegisterRoutes(r)
	s.wsHandler.RegisterRoutes(r)
	r.Get("/health/ready", s.health.HandleReady)
	log.Info().Msg("room gateway routes registered")
}

// ConnectionManager exposes the hub, mainly for tests and stats
func (s *Service) ConnectionManager() *ConnectionManager {
	return s.connectionManager
}
