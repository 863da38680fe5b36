package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/momento/go/internal/models"
	"github.com/mcdev12/momento/go/internal/room/expiry"
	"github.com/mcdev12/momento/go/internal/room/protocol"
	"github.com/mcdev12/momento/go/internal/room/registry"
)

// ConnectionManager manages WebSocket connections and fans protocol
// messages out to the participants of each room
type ConnectionManager struct {
	// Every upgraded connection, and the subset bound to each room by JOIN
	connections map[*Connection]bool
	rooms       map[string]map[*Connection]bool
	mu          sync.RWMutex

	// Upgrader for WebSocket connections
	upgrader websocket.Upgrader

	// Connection configuration
	config ConnectionConfig

	// Event broadcasting
	broadcastCh chan Delivery
	publisher   Publisher

	store     registry.Store
	scheduler *expiry.Scheduler
	metrics   MetricsCollector
}

// Connection represents a WebSocket connection to a client
type Connection struct {
	ID      string
	Conn    *websocket.Conn
	Send    chan []byte
	Manager *ConnectionManager

	// Connection metadata
	ConnectedAt time.Time
	LastPing    time.Time

	// Set by JOIN, guarded by Manager.mu
	roomID   string
	username string

	// left is set once the client said LEAVE or the room went away, so no
	// LEAVE is broadcast on its behalf at close.
	left atomic.Bool
}

// ConnectionConfig holds configuration for WebSocket connections
type ConnectionConfig struct {
	WriteTimeout      time.Duration
	ReadTimeout       time.Duration
	PingInterval      time.Duration
	MaxMessageSize    int64
	ReadBufferSize    int
	WriteBufferSize   int
	SendBufferSize    int
	BroadcastBuffer   int
	RegistryTimeout   time.Duration
	DestroyEmptyRooms bool
	CheckOrigin       func(r *http.Request) bool
}

// DefaultConnectionConfig returns default WebSocket configuration
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  64 * 1024,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		SendBufferSize:  256,
		BroadcastBuffer: 1000,
		RegistryTimeout: 5 * time.Second,
		CheckOrigin: func(r *http.Request) bool {
			// Same policy as the REST CORS config
			return true
		},
	}
}

// ConnectionStats is the JSON body of /ws/stats
type ConnectionStats struct {
	TotalConnections int            `json:"total_connections"`
	ActiveRooms      int            `json:"active_rooms"`
	RoomConnections  map[string]int `json:"room_connections"`
}

// NewConnectionManager creates a new WebSocket connection manager. Room
// expiry deadlines are tracked on clock; a nil clock means the real clock.
func NewConnectionManager(config ConnectionConfig, store registry.Store, clock clockwork.Clock, metrics MetricsCollector) *ConnectionManager {
	if metrics == nil {
		metrics = NoOpMetricsCollector{}
	}

	cm := &ConnectionManager{
		connections: make(map[*Connection]bool),
		rooms:       make(map[string]map[*Connection]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:      config,
		broadcastCh: make(chan Delivery, config.BroadcastBuffer),
		store:       store,
		metrics:     metrics,
	}
	cm.scheduler = expiry.NewScheduler(clock, cm.ExpireRoom)

	return cm
}

// SetPublisher routes every broadcast through p instead of delivering it
// locally. p is expected to hand each delivery back to Deliver on every
// instance, this one included.
func (cm *ConnectionManager) SetPublisher(p Publisher) {
	cm.publisher = p
}

// Start begins processing broadcast messages
func (cm *ConnectionManager) Start(ctx context.Context) {
	log.Info().Msg("connection manager started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("connection manager shutting down")
			cm.scheduler.Stop()
			cm.closeAll()
			return
		case delivery := <-cm.broadcastCh:
			cm.handleBroadcast(delivery)
		}
	}
}

// UpgradeConnection upgrades an HTTP connection to WebSocket
func (cm *ConnectionManager) UpgradeConnection(w http.ResponseWriter, r *http.Request) error {
	conn, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("failed to upgrade connection: %w", err)
	}

	// Create connection object
	connection := &Connection{
		ID:          uuid.New().String(),
		Conn:        conn,
		Send:        make(chan []byte, cm.config.SendBufferSize),
		Manager:     cm,
		ConnectedAt: time.Now(),
		LastPing:    time.Now(),
	}

	// Register the connection
	cm.registerConnection(connection)

	// Start connection handlers
	go connection.writePump()
	go connection.readPump()

	log.Info().
		Str("connection_id", connection.ID).
		Str("remote_addr", r.RemoteAddr).
		Msg("WebSocket connection established")

	return nil
}

// registerConnection adds a connection to the manager
func (cm *ConnectionManager) registerConnection(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	cm.connections[conn] = true
	cm.metrics.RecordConnectionOpened()

	log.Debug().
		Str("connection_id", conn.ID).
		Int("total_connections", len(cm.connections)).
		Msg("connection registered")
}

// bind attaches a connection to a room after its JOIN
func (cm *ConnectionManager) bind(conn *Connection, roomID, username string) bool {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if !cm.connections[conn] {
		return false
	}
	conn.roomID = roomID
	conn.username = username
	if cm.rooms[roomID] == nil {
		cm.rooms[roomID] = make(map[*Connection]bool)
	}
	cm.rooms[roomID][conn] = true

	log.Debug().
		Str("connection_id", conn.ID).
		Str("room_id", roomID).
		Int("room_connections", len(cm.rooms[roomID])).
		Msg("connection joined room")
	return true
}

// unregisterConnection removes a connection from the manager
func (cm *ConnectionManager) unregisterConnection(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if cm.removeLocked(conn) {
		log.Info().
			Str("connection_id", conn.ID).
			Str("room_id", conn.roomID).
			Msg("connection unregistered")
	}
}

// removeLocked drops conn and closes its send buffer. The write pump
// flushes whatever is still buffered, then sends a close frame.
func (cm *ConnectionManager) removeLocked(conn *Connection) bool {
	if !cm.connections[conn] {
		return false
	}
	delete(cm.connections, conn)

	if members, ok := cm.rooms[conn.roomID]; ok {
		delete(members, conn)
		// Clean up empty room pools
		if len(members) == 0 {
			delete(cm.rooms, conn.roomID)
		}
	}

	close(conn.Send)
	cm.metrics.RecordConnectionClosed()
	return true
}

// Deliver queues a delivery for the local connections of its room
func (cm *ConnectionManager) Deliver(d Delivery) {
	select {
	case cm.broadcastCh <- d:
	default:
		log.Warn().Str("room_id", d.RoomID).Msg("broadcast channel full, dropping message")
	}
}

// dispatch encodes msg and hands it to the publisher, or delivers it
// locally when no publisher is configured. A message the publisher rejects
// is dropped: delivering it locally could overtake the sender's earlier
// messages still in flight through the relay.
func (cm *ConnectionManager) dispatch(origin string, excludeOrigin bool, msg protocol.Message) {
	payload, err := protocol.Encode(msg)
	if err != nil {
		log.Error().Err(err).Msg("failed to encode message for broadcast")
		return
	}

	d := Delivery{
		RoomID:        msg.Room(),
		Origin:        origin,
		ExcludeOrigin: excludeOrigin,
		Type:          msg.Type(),
		Payload:       json.RawMessage(payload),
	}

	if cm.publisher != nil {
		ctx, cancel := context.WithTimeout(context.Background(), cm.config.RegistryTimeout)
		defer cancel()
		if err := cm.publisher.Publish(ctx, d); err != nil {
			log.Error().
				Err(err).
				Str("room_id", d.RoomID).
				Str("type", string(d.Type)).
				Msg("failed to publish message, dropping")
			cm.metrics.RecordMessageDropped(d.Type)
		}
		return
	}
	cm.Deliver(d)
}

// handleBroadcast processes a broadcast message
func (cm *ConnectionManager) handleBroadcast(d Delivery) {
	var stale []*Connection
	delivered := 0

	// Sends happen under the read lock so no send buffer can be closed
	// mid-broadcast
	cm.mu.RLock()
	for conn := range cm.rooms[d.RoomID] {
		if d.ExcludeOrigin && conn.ID == d.Origin {
			continue
		}
		select {
		case conn.Send <- d.Payload:
			delivered++
		default:
			stale = append(stale, conn)
		}
	}
	cm.mu.RUnlock()

	// Connection is slow/dead, close it
	for _, conn := range stale {
		log.Warn().
			Str("connection_id", conn.ID).
			Str("room_id", d.RoomID).
			Msg("connection send buffer full, closing connection")
		cm.unregisterConnection(conn)
	}

	cm.metrics.RecordMessageBroadcast(d.Type)

	log.Debug().
		Str("message_type", string(d.Type)).
		Str("room_id", d.RoomID).
		Int("connections", delivered).
		Msg("message broadcasted")
}

// ExpireRoom pushes ROOM_EXPIRED to every local connection of roomID and
// closes them. It is the expiry scheduler's callback.
func (cm *ConnectionManager) ExpireRoom(roomID string) {
	payload, err := protocol.Encode(protocol.NewRoomExpired(roomID))
	if err != nil {
		log.Error().Err(err).Msg("failed to encode room expiry")
		return
	}

	cm.mu.Lock()
	members := cm.rooms[roomID]
	count := len(members)
	for conn := range members {
		conn.left.Store(true)
		select {
		case conn.Send <- payload:
		default:
		}
		cm.removeLocked(conn)
	}
	cm.mu.Unlock()

	cm.metrics.RecordRoomExpired()

	log.Info().
		Str("room_id", roomID).
		Int("connections", count).
		Msg("room expired, connections closed")
}

// rejectExpired answers a frame for a missing room with ROOM_EXPIRED and
// closes the connection.
func (cm *ConnectionManager) rejectExpired(conn *Connection, roomID string) {
	payload, err := protocol.Encode(protocol.NewRoomExpired(roomID))
	if err != nil {
		log.Error().Err(err).Msg("failed to encode room expiry")
		return
	}

	conn.left.Store(true)

	cm.mu.Lock()
	defer cm.mu.Unlock()

	if !cm.connections[conn] {
		return
	}
	select {
	case conn.Send <- payload:
	default:
	}
	cm.removeLocked(conn)

	log.Info().
		Str("connection_id", conn.ID).
		Str("room_id", roomID).
		Msg("rejected message for missing room")
}

// closeAll closes every connection on shutdown
func (cm *ConnectionManager) closeAll() {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	for conn := range cm.connections {
		conn.left.Store(true)
		cm.removeLocked(conn)
	}
}

// GetConnectionStats returns statistics about active connections
func (cm *ConnectionManager) GetConnectionStats() ConnectionStats {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	roomCounts := make(map[string]int, len(cm.rooms))
	for roomID, members := range cm.rooms {
		roomCounts[roomID] = len(members)
	}

	return ConnectionStats{
		TotalConnections: len(cm.connections),
		ActiveRooms:      len(cm.rooms),
		RoomConnections:  roomCounts,
	}
}

// RoomSize returns the number of local connections joined to roomID
func (cm *ConnectionManager) RoomSize(roomID string) int {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return len(cm.rooms[roomID])
}

func (cm *ConnectionManager) registryContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), cm.config.RegistryTimeout)
}

func (cm *ConnectionManager) lookupRoom(roomID string) (models.Room, error) {
	if roomID == "" {
		return models.Room{}, registry.ErrNotFound
	}
	ctx, cancel := cm.registryContext()
	defer cancel()
	return cm.store.Lookup(ctx, roomID)
}

// join binds conn to the room, records presence, arms the room's expiry
// push and tells the other participants.
func (cm *ConnectionManager) join(conn *Connection, msg protocol.Join, room models.Room) {
	if !cm.bind(conn, room.ID, msg.Sender) {
		return
	}

	ctx, cancel := cm.registryContext()
	defer cancel()
	if _, err := cm.store.AddMember(ctx, room.ID, conn.ID); err != nil {
		log.Warn().Err(err).Str("room_id", room.ID).Msg("failed to record room member")
	}

	cm.scheduler.Schedule(room.ID, room.ExpiresAt)
	cm.dispatch(conn.ID, true, msg)
}

// disconnect runs once when a connection's read side ends
func (cm *ConnectionManager) disconnect(conn *Connection) {
	cm.mu.RLock()
	roomID, username := conn.roomID, conn.username
	cm.mu.RUnlock()

	cm.unregisterConnection(conn)

	if roomID == "" {
		return
	}

	if !conn.left.Load() {
		cm.dispatch(conn.ID, true, protocol.NewLeave(roomID, username))
	}

	ctx, cancel := cm.registryContext()
	defer cancel()

	remaining, err := cm.store.RemoveMember(ctx, roomID, conn.ID)
	if err != nil {
		log.Warn().Err(err).Str("room_id", roomID).Msg("failed to remove room member")
		return
	}

	if cm.config.DestroyEmptyRooms && remaining == 0 {
		if err := cm.store.Destroy(ctx, roomID); err != nil {
			log.Error().Err(err).Str("room_id", roomID).Msg("failed to destroy empty room")
			return
		}
		cm.scheduler.Cancel(roomID)
	}
}

// writePump handles sending messages to the WebSocket connection
func (c *Connection) writePump() {
	ticker := time.NewTicker(c.Manager.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if !ok {
				// Channel was closed
				c.Conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}

			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to write message to WebSocket")
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to send ping")
				return
			}
		}
	}
}

// readPump handles reading messages from the WebSocket connection. Frames
// from one connection are handled strictly in order.
func (c *Connection) readPump() {
	defer func() {
		c.Manager.disconnect(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(c.Manager.config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
		c.LastPing = time.Now()
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("unexpected WebSocket close error")
			}
			break
		}

		c.handleClientMessage(message)
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	}
}

// handleClientMessage processes messages received from the client
func (c *Connection) handleClientMessage(data []byte) {
	cm := c.Manager

	msg, err := protocol.Decode(data)
	if err != nil {
		log.Warn().
			Err(err).
			Str("connection_id", c.ID).
			Msg("dropping undecodable client message")
		return
	}

	if msg.Type() == protocol.TypeRoomExpired {
		log.Warn().Str("connection_id", c.ID).Msg("dropping ROOM_EXPIRED sent by client")
		return
	}

	roomID := msg.Room()

	cm.mu.RLock()
	bound := c.roomID
	cm.mu.RUnlock()
	if bound != "" && bound != roomID {
		log.Warn().
			Str("connection_id", c.ID).
			Str("room_id", bound).
			Str("target_room_id", roomID).
			Msg("dropping message addressed to another room")
		return
	}

	room, err := cm.lookupRoom(roomID)
	if errors.Is(err, registry.ErrNotFound) {
		cm.rejectExpired(c, roomID)
		return
	}
	if err != nil {
		log.Error().Err(err).Str("room_id", roomID).Msg("failed to look up room")
		return
	}

	switch m := msg.(type) {
	case protocol.Join:
		cm.join(c, m, room)
	case protocol.Leave:
		c.left.Store(true)
		cm.dispatch(c.ID, true, m)
	case protocol.Chat:
		cm.dispatch(c.ID, false, m)
	}

	log.Debug().
		Str("connection_id", c.ID).
		Str("room_id", roomID).
		Str("sender", msg.From()).
		Str("message_type", string(msg.Type())).
		Msg("received client message")
}
