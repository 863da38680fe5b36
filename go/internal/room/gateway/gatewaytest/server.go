// Package gatewaytest runs an in-process room gateway for tests.
package gatewaytest

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/momento/go/internal/models"
	"github.com/mcdev12/momento/go/internal/room/gateway"
	"github.com/mcdev12/momento/go/internal/room/protocol"
	"github.com/mcdev12/momento/go/internal/room/registry"
)

// Server is a gateway backed by an in-memory registry and a fake clock.
type Server struct {
	URL     string
	Store   *registry.MemoryRegistry
	Clock   *clockwork.FakeClock
	Service *gateway.Service
}

// NewServer starts a gateway that is torn down with t.
func NewServer(t *testing.T) *Server {
	t.Helper()

	clock := clockwork.NewFakeClock()
	store := registry.NewMemoryRegistry(clock)
	svc, err := gateway.NewService(gateway.DefaultConfig(), store, clock, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go svc.Start(ctx)

	r := chi.NewRouter()
	svc.RegisterRoutes(r)
	srv := httptest.NewServer(r)

	t.Cleanup(func() {
		cancel()
		srv.Close()
	})

	return &Server{URL: srv.URL, Store: store, Clock: clock, Service: svc}
}

// WebSocketURL is the gateway's realtime endpoint.
func (s *Server) WebSocketURL() string {
	return "ws" + strings.TrimPrefix(s.URL, "http") + "/ws"
}

// CreateRoom registers a room directly in the store.
func (s *Server) CreateRoom(t *testing.T, minutes int) models.Room {
	t.Helper()
	room, err := s.Store.Create(context.Background(), minutes)
	require.NoError(t, err)
	return room
}

// WaitRoomSize blocks until roomID has n bound connections.
func (s *Server) WaitRoomSize(t *testing.T, roomID string, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return s.Service.ConnectionManager().RoomSize(roomID) == n },
		2*time.Second, 5*time.Millisecond, "room %s never reached %d connections", roomID, n)
}

// Peer is a raw websocket participant.
type Peer struct {
	t    *testing.T
	conn *websocket.Conn
}

// Join dials the gateway, sends JOIN and waits until it is bound.
func (s *Server) Join(t *testing.T, roomID, username string) *Peer {
	t.Helper()
	size := s.Service.ConnectionManager().RoomSize(roomID)
	conn, _, err := websocket.DefaultDialer.Dial(s.WebSocketURL(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	p := &Peer{t: t, conn: conn}
	p.Send(protocol.NewJoin(roomID, username))
	s.WaitRoomSize(t, roomID, size+1)
	return p
}

// Send writes msg.
func (p *Peer) Send(msg protocol.Message) {
	p.t.Helper()
	data, err := protocol.Encode(msg)
	require.NoError(p.t, err)
	require.NoError(p.t, p.conn.WriteMessage(websocket.TextMessage, data))
}

// Recv reads the next message, failing after two seconds.
func (p *Peer) Recv() protocol.Message {
	p.t.Helper()
	require.NoError(p.t, p.conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := p.conn.ReadMessage()
	require.NoError(p.t, err)
	msg, err := protocol.Decode(data)
	require.NoError(p.t, err)
	return msg
}

// Close drops the connection without a LEAVE.
func (p *Peer) Close() {
	p.conn.Close()
}
