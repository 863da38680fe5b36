package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/momento/go/internal/room/protocol"
)

// Delivery is one encoded protocol frame addressed to a room
type Delivery struct {
	RoomID        string          `json:"roomId"`
	Origin        string          `json:"origin"`        // Connection ID of the sender
	ExcludeOrigin bool            `json:"excludeOrigin"` // JOIN and LEAVE skip their sender
	Type          protocol.Type   `json:"type"`
	Payload       json.RawMessage `json:"payload"`
}

// Publisher fans a delivery out to every gateway instance
type Publisher interface {
	Publish(ctx context.Context, d Delivery) error
}

// RelayConfig holds configuration for the NATS relay
type RelayConfig struct {
	URL           string
	SubjectPrefix string // e.g., "momento.rooms"
	MaxReconnects int
	ReconnectWait time.Duration
}

// DefaultRelayConfig returns default NATS relay configuration
func DefaultRelayConfig() RelayConfig {
	return RelayConfig{
		URL:           nats.DefaultURL,
		SubjectPrefix: "momento.rooms",
		MaxReconnects: -1, // Infinite
		ReconnectWait: 2 * time.Second,
	}
}

// Relay publishes room broadcasts on NATS and delivers what it receives to
// the local connection manager. Every instance subscribes to every room, so
// the publishing instance receives its own broadcasts back like any other.
// Messages from one publisher arrive in publish order.
type Relay struct {
	nc      *nats.Conn
	sub     *nats.Subscription
	config  RelayConfig
	deliver func(Delivery)
}

// NewRelay connects to NATS. Nothing is received until Start.
func NewRelay(config RelayConfig, deliver func(Delivery)) (*Relay, error) {
	opts := []nats.Option{
		nats.Name("momento-gateway"),
		nats.MaxReconnects(config.MaxReconnects),
		nats.ReconnectWait(config.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
	}

	nc, err := nats.Connect(config.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	return &Relay{nc: nc, config: config, deliver: deliver}, nil
}

// Subject returns the NATS subject for a room
func (r *Relay) Subject(roomID string) string {
	return roomSubject(r.config.SubjectPrefix, roomID)
}

func roomSubject(prefix, roomID string) string {
	return prefix + "." + roomID
}

// Start subscribes to every room subject
func (r *Relay) Start(ctx context.Context) error {
	sub, err := r.nc.Subscribe(r.config.SubjectPrefix+".>", r.handleMessage)
	if err != nil {
		return fmt.Errorf("subscribe to rooms: %w", err)
	}
	r.sub = sub

	log.Info().
		Str("subject", sub.Subject).
		Msg("NATS relay started")
	return nil
}

// Publish sends d on its room's subject
func (r *Relay) Publish(ctx context.Context, d Delivery) error {
	data, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("marshal delivery: %w", err)
	}
	if err := r.nc.Publish(r.Subject(d.RoomID), data); err != nil {
		return fmt.Errorf("publish to %s: %w", r.Subject(d.RoomID), err)
	}
	return nil
}

func (r *Relay) handleMessage(msg *nats.Msg) {
	d, err := decodeDelivery(r.config.SubjectPrefix, msg.Subject, msg.Data)
	if err != nil {
		log.Error().
			Err(err).
			Str("subject", msg.Subject).
			Msg("failed to process relayed message")
		return
	}

	log.Debug().
		Str("room_id", d.RoomID).
		Str("message_type", string(d.Type)).
		Str("subject", msg.Subject).
		Msg("processing relayed message")

	r.deliver(d)
}

// decodeDelivery parses a relayed message and checks that it was published
// on its own room's subject.
func decodeDelivery(prefix, subject string, data []byte) (Delivery, error) {
	var d Delivery
	if err := json.Unmarshal(data, &d); err != nil {
		return Delivery{}, fmt.Errorf("unmarshal delivery: %w", err)
	}
	roomID := strings.TrimPrefix(subject, prefix+".")
	if d.RoomID == "" || roomID != d.RoomID {
		return Delivery{}, fmt.Errorf("delivery for room %q published on %s", d.RoomID, subject)
	}
	return d, nil
}

// Connected reports whether the NATS connection is up
func (r *Relay) Connected() bool {
	return r.nc != nil && r.nc.IsConnected()
}

// Stop drains the subscription and closes the connection
func (r *Relay) Stop() error {
	log.Info().Msg("stopping NATS relay")

	if r.nc != nil {
		if err := r.nc.Drain(); err != nil {
			r.nc.Close()
			return fmt.Errorf("drain NATS connection: %w", err)
		}
	}
	return nil
}
