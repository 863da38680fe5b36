// Package channel owns the client's single realtime connection to a room.
//
// A Manager holds at most one live channel. Open, Send and Close never block
// on the network: dialing, writing and reading happen on goroutines owned by
// the channel, and everything that happens to it is reported through the
// sink passed to Open. A new channel only dials after the previous one has
// fully shut down.
package channel

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/momento/go/internal/room/protocol"
)

var (
	// ErrAlreadyOpen is returned by Open while a channel is still held.
	ErrAlreadyOpen = errors.New("channel already open")
	// ErrNotOpen is returned by Send when no channel is held.
	ErrNotOpen = errors.New("channel not open")
	// ErrSendBufferFull is returned by Send when the outbound queue is full.
	ErrSendBufferFull = errors.New("channel send buffer full")
)

// Kind is the kind of a channel event.
type Kind int

const (
	// Opened is emitted once the handshake succeeds.
	Opened Kind = iota
	// OpenFailed is emitted when the dial fails. No other event follows.
	OpenFailed
	// Received carries one decoded protocol message.
	Received
	// Failed reports a runtime error that did not close the channel, such
	// as an undecodable frame.
	Failed
	// Closed is emitted exactly once after Opened, when the channel ends.
	Closed
)

func (k Kind) String() string {
	switch k {
	case Opened:
		return "opened"
	case OpenFailed:
		return "open_failed"
	case Received:
		return "received"
	case Failed:
		return "failed"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// Event is something that happened to a channel.
type Event struct {
	Kind    Kind
	Message protocol.Message
	Err     error
	// Voluntary is set on Closed when the owner called Close.
	Voluntary bool
}

// Sink receives the events of one channel, in order, from a single
// goroutine.
type Sink func(Event)

// Config holds channel settings.
type Config struct {
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	SendBufferSize   int
	MaxMessageSize   int64
}

// DefaultConfig returns default channel settings.
func DefaultConfig() Config {
	return Config{
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     10 * time.Second,
		SendBufferSize:   64,
		MaxMessageSize:   64 * 1024,
	}
}

// Manager holds the client's channel.
type Manager struct {
	config Config
	dialer *websocket.Dialer

	mu       sync.Mutex
	link     *link
	lastDone chan struct{}
}

// link is one channel's lifetime, from dial to teardown.
type link struct {
	id      uint64
	conn    *websocket.Conn
	out     chan []byte
	cancel  context.CancelFunc
	done    chan struct{}
	closing atomic.Bool
}

var linkSeq atomic.Uint64

// NewManager creates a manager with no channel.
func NewManager(config Config) *Manager {
	if config.SendBufferSize <= 0 {
		config.SendBufferSize = DefaultConfig().SendBufferSize
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = DefaultConfig().WriteTimeout
	}
	return &Manager{
		config: config,
		dialer: &websocket.Dialer{
			Proxy:            websocket.DefaultDialer.Proxy,
			HandshakeTimeout: config.HandshakeTimeout,
		},
	}
}

// Open starts a channel to rawURL. It returns ErrAlreadyOpen if a channel
// is still held; otherwise the outcome arrives on sink as Opened or
// OpenFailed. There is a single dial attempt and no reconnection.
func (m *Manager) Open(ctx context.Context, rawURL string, sink Sink) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.link != nil {
		return ErrAlreadyOpen
	}

	l := &link{
		id:   linkSeq.Add(1),
		out:  make(chan []byte, m.config.SendBufferSize),
		done: make(chan struct{}),
	}
	dialCtx, cancel := context.WithCancel(ctx)
	l.cancel = cancel

	prev := m.lastDone
	m.link = l
	m.lastDone = l.done

	go m.run(dialCtx, l, rawURL, prev, sink)
	return nil
}

// Send queues msg on the open channel. Messages are written in the order
// they are queued.
func (m *Manager) Send(msg protocol.Message) error {
	data, err := protocol.Encode(msg)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.link == nil {
		return ErrNotOpen
	}
	select {
	case m.link.out <- data:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// Close releases the channel. Closing with nothing open is a no-op.
func (m *Manager) Close() {
	m.CloseWith(nil)
}

// CloseWith releases the channel after writing farewell, if not nil. The
// manager is free for a new Open as soon as CloseWith returns; that Open
// dials once this channel has fully shut down.
func (m *Manager) CloseWith(farewell protocol.Message) {
	var data []byte
	if farewell != nil {
		encoded, err := protocol.Encode(farewell)
		if err != nil {
			log.Error().Err(err).Msg("failed to encode farewell message")
		} else {
			data = encoded
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	l := m.link
	if l == nil {
		return
	}
	l.closing.Store(true)
	l.cancel()
	if data != nil {
		select {
		case l.out <- data:
		default:
			log.Warn().Uint64("channel_id", l.id).Msg("send buffer full, dropping farewell message")
		}
	}
	close(l.out)
	m.link = nil
}

// IsOpen reports whether a channel is held, including one still dialing.
func (m *Manager) IsOpen() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.link != nil
}

// Wait blocks until the most recent channel has fully shut down or ctx ends.
func (m *Manager) Wait(ctx context.Context) error {
	m.mu.Lock()
	done := m.lastDone
	m.mu.Unlock()
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// detach drops l if it is still the held channel. The caller must hold mu.
func (m *Manager) detach(l *link) {
	if m.link == l {
		close(l.out)
		m.link = nil
	}
}

func (m *Manager) run(ctx context.Context, l *link, rawURL string, prev chan struct{}, sink Sink) {
	defer close(l.done)
	defer l.cancel()

	if prev != nil {
		select {
		case <-prev:
		case <-ctx.Done():
		}
	}

	conn, err := m.dial(ctx, rawURL)
	if err != nil {
		m.mu.Lock()
		m.detach(l)
		m.mu.Unlock()

		if l.closing.Load() {
			return
		}
		log.Warn().Err(err).Str("url", rawURL).Uint64("channel_id", l.id).Msg("failed to open channel")
		sink(Event{Kind: OpenFailed, Err: err})
		return
	}

	m.mu.Lock()
	if l.closing.Load() {
		m.mu.Unlock()
		conn.Close()
		return
	}
	l.conn = conn
	m.mu.Unlock()

	log.Info().Str("url", rawURL).Uint64("channel_id", l.id).Msg("channel opened")

	written := make(chan struct{})
	go m.writePump(l, written)

	sink(Event{Kind: Opened})
	err = m.readPump(l, sink)

	m.mu.Lock()
	m.detach(l)
	m.mu.Unlock()

	conn.Close()
	<-written

	voluntary := l.closing.Load()
	if voluntary {
		err = nil
	}
	log.Info().Uint64("channel_id", l.id).Bool("voluntary", voluntary).Msg("channel closed")
	sink(Event{Kind: Closed, Err: err, Voluntary: voluntary})
}

func (m *Manager) dial(ctx context.Context, rawURL string) (*websocket.Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	conn, _, err := m.dialer.DialContext(ctx, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", rawURL, err)
	}
	if m.config.MaxMessageSize > 0 {
		conn.SetReadLimit(m.config.MaxMessageSize)
	}
	return conn, nil
}

// writePump drains the outbound queue, then sends a normal close.
func (m *Manager) writePump(l *link, written chan struct{}) {
	defer close(written)
	defer l.conn.Close()

	for data := range l.out {
		l.conn.SetWriteDeadline(time.Now().Add(m.config.WriteTimeout))
		if err := l.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			log.Error().Err(err).Uint64("channel_id", l.id).Msg("failed to write message to channel")
			l.conn.Close()
			for range l.out {
			}
			return
		}
	}

	l.conn.SetWriteDeadline(time.Now().Add(m.config.WriteTimeout))
	l.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

// readPump delivers inbound messages until the connection ends. It returns
// nil for a normal close from either side.
func (m *Manager) readPump(l *link, sink Sink) error {
	for {
		_, data, err := l.conn.ReadMessage()
		if err != nil {
			if l.closing.Load() || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return err
		}

		msg, err := protocol.Decode(data)
		if err != nil {
			log.Warn().Err(err).Uint64("channel_id", l.id).Msg("dropping undecodable frame")
			sink(Event{Kind: Failed, Err: err})
			continue
		}
		sink(Event{Kind: Received, Message: msg})
	}
}

// WebSocketURL derives the realtime endpoint from the server's base URL.
func WebSocketURL(base string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(base))
	if err != nil {
		return "", fmt.Errorf("parse server url: %w", err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported server url scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("server url %q has no host", base)
	}
	u.Path = "/ws"
	u.RawQuery = ""
	u.Fragment = ""
	return u.String(), nil
}
