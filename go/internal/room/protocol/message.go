package protocol

import "time"

// Type identifies the kind of a protocol message.
type Type string

const (
	TypeJoin        Type = "JOIN"
	TypeLeave       Type = "LEAVE"
	TypeChat        Type = "CHAT"
	TypeRoomExpired Type = "ROOM_EXPIRED"
)

// SystemSender is the sender used for server-originated messages.
const SystemSender = "SYSTEM"

// Message is one of Join, Leave, Chat or RoomExpired.
type Message interface {
	Type() Type
	Room() string
	From() string
	isMessage()
}

// Join announces a participant's presence. Sent once, right after the
// channel opens.
type Join struct {
	RoomID  string
	Sender  string
	Content string
}

// Leave announces a voluntary departure. Sent once, right before the
// channel is closed by its owner.
type Leave struct {
	RoomID  string
	Sender  string
	Content string
}

// Chat carries conversation content. Timestamp is stamped by the client.
type Chat struct {
	RoomID    string
	Sender    string
	Content   string
	Timestamp time.Time
}

// RoomExpired is pushed by the server when the room's lifetime ends.
type RoomExpired struct {
	RoomID  string
	Sender  string
	Content string
}

func (Join) Type() Type        { return TypeJoin }
func (Leave) Type() Type       { return TypeLeave }
func (Chat) Type() Type        { return TypeChat }
func (RoomExpired) Type() Type { return TypeRoomExpired }

func (m Join) Room() string        { return m.RoomID }
func (m Leave) Room() string       { return m.RoomID }
func (m Chat) Room() string        { return m.RoomID }
func (m RoomExpired) Room() string { return m.RoomID }

func (m Join) From() string        { return m.Sender }
func (m Leave) From() string       { return m.Sender }
func (m Chat) From() string        { return m.Sender }
func (m RoomExpired) From() string { return m.Sender }

func (Join) isMessage()        {}
func (Leave) isMessage()       {}
func (Chat) isMessage()        {}
func (RoomExpired) isMessage() {}

// NewJoin builds the JOIN a client sends after connecting.
func NewJoin(roomID, username string) Join {
	return Join{RoomID: roomID, Sender: username, Content: username + " joined the room"}
}

// NewLeave builds the LEAVE a client sends before disconnecting.
func NewLeave(roomID, username string) Leave {
	return Leave{RoomID: roomID, Sender: username, Content: username + " left the room"}
}

// NewChat builds a CHAT stamped with now.
func NewChat(roomID, username, content string, now time.Time) Chat {
	return Chat{RoomID: roomID, Sender: username, Content: content, Timestamp: now}
}

// NewRoomExpired builds the server notice for a room that is gone.
func NewRoomExpired(roomID string) RoomExpired {
	return RoomExpired{RoomID: roomID, Sender: SystemSender, Content: "Room expired or doesn't exist"}
}

// IsPresence reports whether m is a JOIN or LEAVE, which are rendered as
// system notices rather than attributed chat.
func IsPresence(m Message) bool {
	switch m.(type) {
	case Join, Leave:
		return true
	default:
		return false
	}
}
