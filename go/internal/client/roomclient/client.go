// Package roomclient talks to the room registry's HTTP API.
package roomclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/url"
	"time"

	"github.com/mcdev12/momento/go/clients"
)

var (
	// ErrNotFound is returned when the registry answers a lookup with a
	// non-success status. The room is unknown or already expired.
	ErrNotFound = errors.New("room not found or expired")
	// ErrUnavailable is returned when the registry cannot be reached or
	// answers with something unusable.
	ErrUnavailable = errors.New("room registry unavailable")
)

const roomsPath = "/api/rooms"

// Room is what the client learns about a room.
type Room struct {
	ID               string
	RemainingSeconds int
}

type createRequest struct {
	ExpiryMinutes int `json:"expiryMinutes"`
}

// roomResponse accepts both the seconds form and the older minutes form.
type roomResponse struct {
	RoomID           string   `json:"roomId"`
	RemainingSeconds *int     `json:"remainingSeconds"`
	RemainingMinutes *float64 `json:"remainingMinutes"`
}

// remaining prefers remainingSeconds whenever it is present, even at zero.
func (r roomResponse) remaining() int {
	switch {
	case r.RemainingSeconds != nil:
		return max(*r.RemainingSeconds, 0)
	case r.RemainingMinutes != nil:
		return max(int(math.Floor(*r.RemainingMinutes*60)), 0)
	}
	return 0
}

// Client is a room registry client.
type Client struct {
	base *clients.BaseClient
}

// New creates a client for the server at baseURL, e.g. http://localhost:8080.
func New(baseURL string, timeout time.Duration) *Client {
	base := clients.NewBaseClient(baseURL)
	base.SetHeader("Accept", "application/json")
	base.SetHeader("Content-Type", "application/json")
	if timeout > 0 {
		base.SetTimeout(timeout)
	}
	return &Client{base: base}
}

// BaseURL returns the server address the client was built with.
func (c *Client) BaseURL() string {
	return c.base.BaseURL()
}

// Create asks the registry for a new room living the given minutes.
func (c *Client) Create(ctx context.Context, minutes int) (Room, error) {
	body, err := json.Marshal(createRequest{ExpiryMinutes: minutes})
	if err != nil {
		return Room{}, fmt.Errorf("marshal create request: %w", err)
	}

	data, err := c.base.Post(ctx, roomsPath+"/create", bytes.NewReader(body))
	if err != nil {
		return Room{}, fmt.Errorf("%w: create room: %w", ErrUnavailable, err)
	}

	resp, err := decode(data)
	if err != nil {
		return Room{}, err
	}
	if resp.RoomID == "" {
		return Room{}, fmt.Errorf("%w: create response has no roomId", ErrUnavailable)
	}
	return Room{ID: resp.RoomID, RemainingSeconds: resp.remaining()}, nil
}

// Lookup fetches a room. Any non-success status is reported as ErrNotFound.
func (c *Client) Lookup(ctx context.Context, roomID string) (Room, error) {
	data, err := c.base.Get(ctx, roomsPath+"/"+url.PathEscape(roomID))
	if err != nil {
		var statusErr *clients.StatusError
		if errors.As(err, &statusErr) {
			return Room{}, fmt.Errorf("%w: %s: status %d", ErrNotFound, roomID, statusErr.StatusCode)
		}
		return Room{}, fmt.Errorf("%w: lookup room: %w", ErrUnavailable, err)
	}

	resp, err := decode(data)
	if err != nil {
		return Room{}, err
	}
	return Room{ID: roomID, RemainingSeconds: resp.remaining()}, nil
}

func decode(data []byte) (roomResponse, error) {
	var resp roomResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return roomResponse{}, fmt.Errorf("%w: decode room response: %w", ErrUnavailable, err)
	}
	return resp, nil
}
