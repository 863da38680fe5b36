package session

import (
	"github.com/mcdev12/momento/go/internal/client/channel"
	"github.com/mcdev12/momento/go/internal/client/roomclient"
	"github.com/mcdev12/momento/go/internal/room/protocol"
)

// Event is an input to the state machine: a user intent, the result of
// an effect, a channel event or a countdown tick.
type Event interface {
	isEvent()
}

// MinutesChanged picks the lifetime of the next created room.
type MinutesChanged struct {
	Minutes int
}

// CreateRequested asks for a new room.
type CreateRequested struct{}

// JoinRequested asks to join an existing room by ID.
type JoinRequested struct {
	RoomID string
}

// EnterRequested asks to open the chat for the attached room.
type EnterRequested struct{}

// BackRequested returns to the home screen, abandoning whatever is
// pending.
type BackRequested struct{}

// LeaveRequested leaves the chat.
type LeaveRequested struct{}

// SendRequested sends a chat message.
type SendRequested struct {
	Content string
}

// CreateCompleted is the result of a CreateRoom effect.
type CreateCompleted struct {
	Gen  uint64
	Room roomclient.Room
	Err  error
}

// LookupCompleted is the result of a LookupRoom effect.
type LookupCompleted struct {
	Gen    uint64
	RoomID string
	Room   roomclient.Room
	Err    error
}

// ChannelEvent wraps an event of the channel opened at Gen.
type ChannelEvent struct {
	Gen   uint64
	Event channel.Event
}

// SendFailed reports a message that could not be queued on the channel.
type SendFailed struct {
	Gen uint64
	Err error
}

// Tick is one second of countdown.
type Tick struct{}

func (MinutesChanged) isEvent()  {}
func (CreateRequested) isEvent() {}
func (JoinRequested) isEvent()   {}
func (EnterRequested) isEvent()  {}
func (BackRequested) isEvent()   {}
func (LeaveRequested) isEvent()  {}
func (SendRequested) isEvent()   {}
func (CreateCompleted) isEvent() {}
func (LookupCompleted) isEvent() {}
func (ChannelEvent) isEvent()    {}
func (SendFailed) isEvent()      {}
func (Tick) isEvent()            {}

// Effect is a side effect requested by the state machine.
type Effect interface {
	isEffect()
}

// CreateRoom calls the registry's create operation.
type CreateRoom struct {
	Gen     uint64
	Minutes int
}

// LookupRoom calls the registry's lookup operation.
type LookupRoom struct {
	Gen    uint64
	RoomID string
}

// OpenChannel opens the realtime channel.
type OpenChannel struct {
	Gen uint64
}

// SendMessage writes a message on the open channel.
type SendMessage struct {
	Gen     uint64
	Message protocol.Message
}

// CloseChannel releases the channel, writing Farewell first if set.
type CloseChannel struct {
	Farewell protocol.Message
}

// StartTicker starts the countdown interval, replacing any running one.
type StartTicker struct{}

// StopTicker stops the countdown interval.
type StopTicker struct{}

// Notify shows a notice to the user.
type Notify struct {
	Notice Notice
}

func (CreateRoom) isEffect()   {}
func (LookupRoom) isEffect()   {}
func (OpenChannel) isEffect()  {}
func (SendMessage) isEffect()  {}
func (CloseChannel) isEffect() {}
func (StartTicker) isEffect()  {}
func (StopTicker) isEffect()   {}
func (Notify) isEffect()       {}
