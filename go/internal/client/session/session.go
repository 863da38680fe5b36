// Package session is the client's view of one visit to a room: which
// screen it is on, which room it is in, the local countdown and the
// message history.
//
// The state machine is a pure reducer (Reducer.Apply) that turns events
// into a new Session plus a list of effects. Controller owns the side
// effects and feeds results back as events.
package session

import (
	"errors"
	"fmt"

	"github.com/mcdev12/momento/go/internal/room/expiry"
	"github.com/mcdev12/momento/go/internal/room/protocol"
)

// Phase is the screen the client is on.
type Phase int

const (
	PhaseHome Phase = iota
	PhaseRoomCreated
	PhaseUsernameEntry
	PhaseChat
)

func (p Phase) String() string {
	switch p {
	case PhaseHome:
		return "home"
	case PhaseRoomCreated:
		return "room_created"
	case PhaseUsernameEntry:
		return "username_entry"
	case PhaseChat:
		return "chat"
	default:
		return "unknown"
	}
}

// Pending is the asynchronous operation the session is waiting on.
type Pending int

const (
	PendingNone Pending = iota
	PendingCreate
	PendingJoin
	PendingEnter
	PendingOpen
)

func (p Pending) String() string {
	switch p {
	case PendingNone:
		return "none"
	case PendingCreate:
		return "create"
	case PendingJoin:
		return "join"
	case PendingEnter:
		return "enter"
	case PendingOpen:
		return "open"
	default:
		return "unknown"
	}
}

var (
	ErrRegistryUnavailable = errors.New("failed to reach the room server")
	ErrRoomNotFound        = errors.New("room not found or expired")
	ErrChannelOpenFailure  = errors.New("failed to connect to the room")
	ErrChannelRuntime      = errors.New("connection error")
	ErrChannelClosed       = errors.New("disconnected from the room")
	ErrRoomExpired         = errors.New("room expired")
	ErrEmptyRoomID         = errors.New("enter a room ID")
	ErrNotConnected        = errors.New("not connected")
)

// Notice is a user-facing report. Err always wraps one of the Err*
// sentinels above.
type Notice struct {
	Err error
}

func newNotice(kind error, cause error) Notice {
	if cause == nil {
		return Notice{Err: kind}
	}
	return Notice{Err: fmt.Errorf("%w: %w", kind, cause)}
}

// Is reports whether the notice is of the given kind.
func (n Notice) Is(kind error) bool {
	return errors.Is(n.Err, kind)
}

// Text is the short message shown to the user.
func (n Notice) Text() string {
	for _, kind := range []error{
		ErrRegistryUnavailable, ErrRoomNotFound, ErrChannelOpenFailure, ErrChannelRuntime,
		ErrChannelClosed, ErrRoomExpired, ErrEmptyRoomID, ErrNotConnected,
	} {
		if errors.Is(n.Err, kind) {
			return kind.Error()
		}
	}
	return n.Err.Error()
}

// Session is the whole client state. It is a value: Apply returns a new
// one and never mutates its input.
type Session struct {
	Phase    Phase
	Pending  Pending
	Username string
	RoomID   string
	// Minutes is the lifetime requested for the next created room.
	Minutes   int
	Countdown expiry.Countdown
	Connected bool
	History   []protocol.Message
	// Gen identifies the current room visit. Results and channel events
	// tagged with an older Gen are dropped.
	Gen uint64
}

// InRoom reports whether a room is attached to the session.
func (s Session) InRoom() bool {
	return s.RoomID != ""
}
