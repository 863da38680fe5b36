package gateway

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/momento/go/internal/models"
	"github.com/mcdev12/momento/go/internal/room/registry"
)

const maxCreateBodyBytes = 1024

// CreateRoomRequest is the optional body of POST /api/rooms/create
type CreateRoomRequest struct {
	ExpiryMinutes *int `json:"expiryMinutes,omitempty"`
}

// RoomResponse represents a live room as seen by clients
type RoomResponse struct {
	RoomID           string            `json:"roomId"`
	Status           models.RoomStatus `json:"status"`
	ExpiresAt        time.Time         `json:"expiresAt"`
	RemainingSeconds int               `json:"remainingSeconds"`
	ActiveUsers      int               `json:"activeUsers"`
}

// ErrorResponse is the body of every non-2xx reply
type ErrorResponse struct {
	Error string `json:"error"`
}

// RoomHandler handles HTTP requests for rooms
type RoomHandler struct {
	registry       registry.Registry
	clock          clockwork.Clock
	metrics        MetricsCollector
	defaultMinutes int
}

// NewRoomHandler creates a new room handler. Requests without an expiry
// get defaultMinutes.
func NewRoomHandler(reg registry.Registry, clock clockwork.Clock, metrics MetricsCollector, defaultMinutes int) *RoomHandler {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if metrics == nil {
		metrics = NoOpMetricsCollector{}
	}
	if defaultMinutes <= 0 {
		defaultMinutes = registry.DefaultExpiryMinutes
	}
	return &RoomHandler{
		registry:       reg,
		clock:          clock,
		metrics:        metrics,
		defaultMinutes: defaultMinutes,
	}
}

// HandleCreateRoom handles POST /api/rooms/create
func (h *RoomHandler) HandleCreateRoom(w http.ResponseWriter, r *http.Request) {
	var req CreateRoomRequest
	body := http.MaxBytesReader(w, r.Body, maxCreateBodyBytes)
	if err := json.NewDecoder(body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	minutes := h.defaultMinutes
	if req.ExpiryMinutes != nil {
		minutes = *req.ExpiryMinutes
	}

	room, err := h.registry.Create(r.Context(), minutes)
	if err != nil {
		log.Error().Err(err).Int("expiry_minutes", minutes).Msg("failed to create room")
		writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{Error: "room registry unavailable"})
		return
	}

	h.metrics.RecordRoomCreated()
	writeJSON(w, http.StatusOK, h.toResponse(room))
}

// HandleGetRoom handles GET /api/rooms/{roomId}
func (h *RoomHandler) HandleGetRoom(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomId")

	room, err := h.registry.Lookup(r.Context(), roomID)
	switch {
	case errors.Is(err, registry.ErrNotFound):
		h.metrics.RecordRoomLookup(LookupNotFound)
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "room not found or expired"})
		return
	case err != nil:
		h.metrics.RecordRoomLookup(LookupUnavailable)
		log.Error().Err(err).Str("room_id", roomID).Msg("failed to look up room")
		writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{Error: "room registry unavailable"})
		return
	}

	h.metrics.RecordRoomLookup(LookupFound)
	writeJSON(w, http.StatusOK, h.toResponse(room))
}

// RegisterRoutes registers room routes under /api/rooms
func (h *RoomHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api/rooms", func(r chi.Router) {
		r.Post("/create", h.HandleCreateRoom)
		r.Get("/{roomId}", h.HandleGetRoom)
	})
}

func (h *RoomHandler) toResponse(room models.Room) RoomResponse {
	return RoomResponse{
		RoomID:           room.ID,
		Status:           models.RoomStatusActive,
		ExpiresAt:        room.ExpiresAt,
		RemainingSeconds: room.RemainingSeconds(h.clock.Now()),
		ActiveUsers:      room.ActiveUsers,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}
