package gateway

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/momento/go/internal/room/registry"
)

const healthCheckTimeout = 2 * time.Second

// HealthStatus is the readiness report of a gateway instance
type HealthStatus struct {
	Healthy           bool     `json:"healthy"`
	RegistryConnected bool     `json:"registry_connected"`
	RelayEnabled      bool     `json:"relay_enabled"`
	RelayConnected    bool     `json:"relay_connected"`
	Connections       int      `json:"connections"`
	ActiveRooms       int      `json:"active_rooms"`
	Errors            []string `json:"errors"`
}

// HealthChecker reports whether the gateway can serve rooms
type HealthChecker struct {
	store registry.Store
	relay *Relay
	cm    *ConnectionManager
}

// NewHealthChecker creates a checker. relay may be nil.
func NewHealthChecker(store registry.Store, relay *Relay, cm *ConnectionManager) *HealthChecker {
	return &HealthChecker{store: store, relay: relay, cm: cm}
}

// Check pings the registry backend and checks the relay
func (h *HealthChecker) Check(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Healthy:           true,
		RegistryConnected: true,
		Errors:            []string{},
	}

	// In-memory stores have nothing to ping
	if pinger, ok := h.store.(registry.Pinger); ok {
		if err := pinger.Ping(ctx); err != nil {
			status.RegistryConnected = false
			status.Healthy = false
			status.Errors = append(status.Errors, fmt.Sprintf("registry ping failed: %v", err))
		}
	}

	if h.relay != nil {
		status.RelayEnabled = true
		status.RelayConnected = h.relay.Connected()
		if !status.RelayConnected {
			status.Healthy = false
			status.Errors = append(status.Errors, "NATS disconnected")
		}
	}

	stats := h.cm.GetConnectionStats()
	status.Connections = stats.TotalConnections
	status.ActiveRooms = stats.ActiveRooms

	return status
}

// HandleReady handles GET /health/ready
func (h *HealthChecker) HandleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	status := h.Check(ctx)
	code := http.StatusOK
	if !status.Healthy {
		code = http.StatusServiceUnavailable
		log.Warn().Strs("errors", status.Errors).Msg("readiness check failed")
	}
	writeJSON(w, code, status)
}
