package session

import (
	"errors"
	"strings"
	"time"

	"github.com/mcdev12/momento/go/internal/client/channel"
	"github.com/mcdev12/momento/go/internal/client/roomclient"
	"github.com/mcdev12/momento/go/internal/models"
	"github.com/mcdev12/momento/go/internal/room/expiry"
	"github.com/mcdev12/momento/go/internal/room/protocol"
)

// Reducer is the session state machine.
type Reducer struct {
	// Names returns a fresh username.
	Names func() string
	// Now stamps outgoing chat messages.
	Now func() time.Time
}

// Initial is the state on startup.
func (r Reducer) Initial() Session {
	return Session{
		Phase:     PhaseHome,
		Username:  r.Names(),
		Minutes:   models.DefaultExpiryMinutes,
		Countdown: expiry.NewCountdown(),
	}
}

// Apply returns the state after ev and the effects to run, in order.
func (r Reducer) Apply(s Session, ev Event) (Session, []Effect) {
	switch ev := ev.(type) {
	case MinutesChanged:
		if s.Phase == PhaseHome {
			s.Minutes = models.ClampExpiryMinutes(ev.Minutes)
		}
		return s, nil

	case CreateRequested:
		if s.Phase != PhaseHome || s.Pending != PendingNone {
			return s, nil
		}
		s.Pending = PendingCreate
		return s, []Effect{CreateRoom{Gen: s.Gen, Minutes: models.ClampExpiryMinutes(s.Minutes)}}

	case CreateCompleted:
		if ev.Gen != s.Gen || s.Pending != PendingCreate {
			return s, nil
		}
		s.Pending = PendingNone
		if ev.Err != nil {
			return s, []Effect{Notify{Notice: registryNotice(ev.Err)}}
		}
		s.Phase = PhaseRoomCreated
		s.RoomID = ev.Room.ID
		s.Username = r.Names()
		s.Countdown = expiry.NewCountdown().Resync(ev.Room.RemainingSeconds)
		return s, nil

	case JoinRequested:
		if s.Phase != PhaseHome || s.Pending != PendingNone {
			return s, nil
		}
		roomID := strings.TrimSpace(ev.RoomID)
		if roomID == "" {
			return s, []Effect{Notify{Notice: newNotice(ErrEmptyRoomID, nil)}}
		}
		s.Pending = PendingJoin
		return s, []Effect{LookupRoom{Gen: s.Gen, RoomID: roomID}}

	case EnterRequested:
		if (s.Phase != PhaseRoomCreated && s.Phase != PhaseUsernameEntry) || s.Pending != PendingNone {
			return s, nil
		}
		s.Pending = PendingEnter
		return s, []Effect{LookupRoom{Gen: s.Gen, RoomID: s.RoomID}}

	case LookupCompleted:
		if ev.Gen != s.Gen {
			return s, nil
		}
		return r.lookupCompleted(s, ev)

	case BackRequested:
		switch s.Phase {
		case PhaseHome:
			if s.Pending == PendingNone {
				return s, nil
			}
			// Abandon the call in flight; its result will carry a stale Gen.
			s.Pending = PendingNone
			s.Gen++
			return s, nil
		case PhaseChat:
			return r.leave(s)
		default:
			return r.reset(s, nil)
		}

	case LeaveRequested:
		if s.Phase != PhaseChat {
			return s, nil
		}
		return r.leave(s)

	case SendRequested:
		if s.Phase != PhaseChat || strings.TrimSpace(ev.Content) == "" {
			return s, nil
		}
		if !s.Connected {
			return s, []Effect{Notify{Notice: newNotice(ErrNotConnected, nil)}}
		}
		msg := protocol.NewChat(s.RoomID, s.Username, ev.Content, r.Now())
		return s, []Effect{SendMessage{Gen: s.Gen, Message: msg}}

	case SendFailed:
		if ev.Gen != s.Gen || s.Phase != PhaseChat {
			return s, nil
		}
		return s, []Effect{Notify{Notice: newNotice(ErrChannelRuntime, ev.Err)}}

	case ChannelEvent:
		if ev.Gen != s.Gen {
			return s, nil
		}
		return r.channelEvent(s, ev.Event)

	case Tick:
		if s.Phase != PhaseChat {
			return s, nil
		}
		var fired bool
		s.Countdown, fired = s.Countdown.Tick()
		if fired {
			return r.expire(s)
		}
		return s, nil
	}

	return s, nil
}

func (r Reducer) lookupCompleted(s Session, ev LookupCompleted) (Session, []Effect) {
	switch s.Pending {
	case PendingJoin:
		s.Pending = PendingNone
		if ev.Err != nil {
			return s, []Effect{Notify{Notice: registryNotice(ev.Err)}}
		}
		s.Phase = PhaseUsernameEntry
		s.RoomID = ev.RoomID
		s.Username = r.Names()
		s.Countdown = expiry.NewCountdown().Resync(ev.Room.RemainingSeconds)
		return s, nil

	case PendingEnter:
		if ev.RoomID != s.RoomID {
			return s, nil
		}
		if ev.Err != nil {
			s.Pending = PendingNone
			return s, []Effect{Notify{Notice: registryNotice(ev.Err)}}
		}
		s.Pending = PendingOpen
		s.Countdown = s.Countdown.Resync(ev.Room.RemainingSeconds)
		return s, []Effect{OpenChannel{Gen: s.Gen}}
	}
	return s, nil
}

func (r Reducer) channelEvent(s Session, ev channel.Event) (Session, []Effect) {
	switch ev.Kind {
	case channel.Opened:
		if s.Pending != PendingOpen {
			return s, nil
		}
		s.Pending = PendingNone
		s.Phase = PhaseChat
		s.Connected = true
		s.History = nil
		if s.Countdown.Expired() {
			return r.expire(s)
		}
		s.Countdown = s.Countdown.Start()
		return s, []Effect{
			SendMessage{Gen: s.Gen, Message: protocol.NewJoin(s.RoomID, s.Username)},
			StartTicker{},
		}

	case channel.OpenFailed:
		if s.Pending != PendingOpen {
			return s, nil
		}
		s.Pending = PendingNone
		return s, []Effect{Notify{Notice: newNotice(ErrChannelOpenFailure, ev.Err)}}

	case channel.Received:
		if s.Phase != PhaseChat {
			return s, nil
		}
		if _, ok := ev.Message.(protocol.RoomExpired); ok {
			return r.expire(s)
		}
		s.History = append(s.History, ev.Message)
		return s, nil

	case channel.Failed:
		if s.Phase != PhaseChat {
			return s, nil
		}
		return s, []Effect{Notify{Notice: newNotice(ErrChannelRuntime, ev.Err)}}

	case channel.Closed:
		if s.Phase != PhaseChat || !s.Connected || ev.Voluntary {
			return s, nil
		}
		s.Connected = false
		return s, []Effect{Notify{Notice: newNotice(ErrChannelClosed, ev.Err)}}
	}
	return s, nil
}

// leave says goodbye on the channel if it is still up, then resets.
func (r Reducer) leave(s Session) (Session, []Effect) {
	var farewell protocol.Message
	if s.Connected {
		farewell = protocol.NewLeave(s.RoomID, s.Username)
	}
	return r.reset(s, farewell)
}

// expire ends the visit without a LEAVE. Only reachable from PhaseChat, so
// a second trigger finds the session already home and does nothing.
func (r Reducer) expire(s Session) (Session, []Effect) {
	next, effects := r.reset(s, nil)
	return next, append(effects, Notify{Notice: newNotice(ErrRoomExpired, nil)})
}

// reset returns home with a fresh identity. The ticker is stopped and the
// channel released whatever state they were in.
func (r Reducer) reset(s Session, farewell protocol.Message) (Session, []Effect) {
	next := Session{
		Phase:     PhaseHome,
		Username:  r.Names(),
		Minutes:   s.Minutes,
		Countdown: expiry.NewCountdown(),
		Gen:       s.Gen + 1,
	}
	return next, []Effect{StopTicker{}, CloseChannel{Farewell: farewell}}
}

func registryNotice(err error) Notice {
	if errors.Is(err, roomclient.ErrNotFound) {
		return newNotice(ErrRoomNotFound, err)
	}
	return newNotice(ErrRegistryUnavailable, err)
}
