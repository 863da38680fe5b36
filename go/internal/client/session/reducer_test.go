package session

import (
	"errors"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/momento/go/internal/client/channel"
	"github.com/mcdev12/momento/go/internal/client/roomclient"
	"github.com/mcdev12/momento/go/internal/room/expiry"
	"github.com/mcdev12/momento/go/internal/room/protocol"
)

var fixedNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func newReducer() Reducer {
	n := 0
	return Reducer{
		Names: func() string {
			n++
			return fmt.Sprintf("user-%d", n)
		},
		Now: func() time.Time { return fixedNow },
	}
}

func notices(effects []Effect) []Notice {
	var out []Notice
	for _, e := range effects {
		if n, ok := e.(Notify); ok {
			out = append(out, n.Notice)
		}
	}
	return out
}

func requireNotice(t *testing.T, effects []Effect, kind error) {
	t.Helper()
	ns := notices(effects)
	require.Len(t, ns, 1, "effects: %#v", effects)
	assert.True(t, ns[0].Is(kind), "got notice %v, want %v", ns[0].Err, kind)
}

// chatSession drives a fresh session into the chat for room R1 with the
// given seconds remaining.
func chatSession(t *testing.T, r Reducer, remaining int) Session {
	t.Helper()
	s := r.Initial()
	s, _ = r.Apply(s, JoinRequested{RoomID: "R1"})
	s, _ = r.Apply(s, LookupCompleted{Gen: s.Gen, RoomID: "R1", Room: roomclient.Room{ID: "R1", RemainingSeconds: remaining}})
	require.Equal(t, PhaseUsernameEntry, s.Phase)
	s, _ = r.Apply(s, EnterRequested{})
	s, _ = r.Apply(s, LookupCompleted{Gen: s.Gen, RoomID: "R1", Room: roomclient.Room{ID: "R1", RemainingSeconds: remaining}})
	s, _ = r.Apply(s, ChannelEvent{Gen: s.Gen, Event: channel.Event{Kind: channel.Opened}})
	require.Equal(t, PhaseChat, s.Phase)
	return s
}

func TestInitialState(t *testing.T) {
	s := newReducer().Initial()
	assert.Equal(t, PhaseHome, s.Phase)
	assert.Equal(t, "user-1", s.Username)
	assert.Equal(t, 10, s.Minutes)
	assert.Equal(t, expiry.DefaultSeconds, s.Countdown.Remaining)
	assert.False(t, s.Countdown.Running)
	assert.False(t, s.InRoom())
}

func TestCreateRoom(t *testing.T) {
	r := newReducer()
	s := r.Initial()

	s, effects := r.Apply(s, MinutesChanged{Minutes: 90})
	assert.Empty(t, effects)
	assert.Equal(t, 60, s.Minutes)

	s, _ = r.Apply(s, MinutesChanged{Minutes: 1})
	s, effects = r.Apply(s, CreateRequested{})
	assert.Equal(t, []Effect{CreateRoom{Gen: 0, Minutes: 1}}, effects)
	assert.Equal(t, PendingCreate, s.Pending)

	// a second click while pending does nothing
	_, effects = r.Apply(s, CreateRequested{})
	assert.Empty(t, effects)

	s, effects = r.Apply(s, CreateCompleted{Gen: 0, Room: roomclient.Room{ID: "R1", RemainingSeconds: 60}})
	assert.Empty(t, effects)
	assert.Equal(t, PhaseRoomCreated, s.Phase)
	assert.Equal(t, PendingNone, s.Pending)
	assert.Equal(t, "R1", s.RoomID)
	assert.Equal(t, "user-2", s.Username)
	assert.Equal(t, expiry.Countdown{Remaining: 60}, s.Countdown)
}

func TestCreateRoomFailure(t *testing.T) {
	r := newReducer()
	s := r.Initial()
	s, _ = r.Apply(s, CreateRequested{})

	err := fmt.Errorf("%w: connection refused", roomclient.ErrUnavailable)
	s, effects := r.Apply(s, CreateCompleted{Gen: 0, Err: err})
	requireNotice(t, effects, ErrRegistryUnavailable)
	assert.Equal(t, PhaseHome, s.Phase)
	assert.Equal(t, PendingNone, s.Pending)
	assert.Equal(t, "user-1", s.Username)
	assert.False(t, s.InRoom())
}

func TestJoinUnknownRoomHasNoSideEffects(t *testing.T) {
	r := newReducer()
	start := r.Initial()

	s, effects := r.Apply(start, JoinRequested{RoomID: "  nope  "})
	assert.Equal(t, []Effect{LookupRoom{Gen: 0, RoomID: "nope"}}, effects)

	err := fmt.Errorf("%w: nope: status 404", roomclient.ErrNotFound)
	s, effects = r.Apply(s, LookupCompleted{Gen: 0, RoomID: "nope", Err: err})
	require.Len(t, effects, 1)
	requireNotice(t, effects, ErrRoomNotFound)
	assert.Equal(t, "room not found or expired", notices(effects)[0].Text())

	assert.Equal(t, start, s)
}

func TestJoinRequiresRoomID(t *testing.T) {
	r := newReducer()
	s, effects := r.Apply(r.Initial(), JoinRequested{RoomID: "   "})
	requireNotice(t, effects, ErrEmptyRoomID)
	assert.Equal(t, PendingNone, s.Pending)
}

func TestEnterChat(t *testing.T) {
	r := newReducer()
	s := r.Initial()
	s, _ = r.Apply(s, JoinRequested{RoomID: "R1"})
	s, _ = r.Apply(s, LookupCompleted{Gen: 0, RoomID: "R1", Room: roomclient.Room{ID: "R1", RemainingSeconds: 120}})
	assert.Equal(t, PhaseUsernameEntry, s.Phase)
	assert.Equal(t, "user-2", s.Username)

	s, effects := r.Apply(s, EnterRequested{})
	assert.Equal(t, []Effect{LookupRoom{Gen: 0, RoomID: "R1"}}, effects)

	// fresh lookup resyncs the countdown
	s, effects = r.Apply(s, LookupCompleted{Gen: 0, RoomID: "R1", Room: roomclient.Room{ID: "R1", RemainingSeconds: 42}})
	assert.Equal(t, []Effect{OpenChannel{Gen: 0}}, effects)
	assert.Equal(t, PendingOpen, s.Pending)
	assert.Equal(t, 42, s.Countdown.Remaining)
	assert.Equal(t, PhaseUsernameEntry, s.Phase)

	s, effects = r.Apply(s, ChannelEvent{Gen: 0, Event: channel.Event{Kind: channel.Opened}})
	assert.Equal(t, []Effect{
		SendMessage{Gen: 0, Message: protocol.NewJoin("R1", "user-2")},
		StartTicker{},
	}, effects)
	assert.Equal(t, PhaseChat, s.Phase)
	assert.True(t, s.Connected)
	assert.True(t, s.Countdown.Running)
	assert.Equal(t, 42, s.Countdown.Remaining)
}

func TestEnterLookupFailureStays(t *testing.T) {
	r := newReducer()
	s := r.Initial()
	s, _ = r.Apply(s, CreateRequested{})
	s, _ = r.Apply(s, CreateCompleted{Gen: 0, Room: roomclient.Room{ID: "R1", RemainingSeconds: 60}})
	s, _ = r.Apply(s, EnterRequested{})

	before := s
	s, effects := r.Apply(s, LookupCompleted{Gen: 0, RoomID: "R1", Err: roomclient.ErrNotFound})
	requireNotice(t, effects, ErrRoomNotFound)
	assert.Equal(t, PhaseRoomCreated, s.Phase)
	assert.Equal(t, PendingNone, s.Pending)
	assert.Equal(t, before.Username, s.Username)
	assert.Equal(t, "R1", s.RoomID)
}

func TestChannelOpenFailureStays(t *testing.T) {
	r := newReducer()
	s := r.Initial()
	s, _ = r.Apply(s, JoinRequested{RoomID: "R1"})
	s, _ = r.Apply(s, LookupCompleted{Gen: 0, RoomID: "R1", Room: roomclient.Room{ID: "R1", RemainingSeconds: 60}})
	s, _ = r.Apply(s, EnterRequested{})
	s, _ = r.Apply(s, LookupCompleted{Gen: 0, RoomID: "R1", Room: roomclient.Room{ID: "R1", RemainingSeconds: 60}})

	s, effects := r.Apply(s, ChannelEvent{Gen: 0, Event: channel.Event{Kind: channel.OpenFailed, Err: errors.New("refused")}})
	requireNotice(t, effects, ErrChannelOpenFailure)
	assert.Equal(t, PhaseUsernameEntry, s.Phase)
	assert.Equal(t, PendingNone, s.Pending)
	assert.False(t, s.Connected)

	// and the user can retry
	_, effects = r.Apply(s, EnterRequested{})
	assert.Equal(t, []Effect{LookupRoom{Gen: 0, RoomID: "R1"}}, effects)
}

func TestSixtyTicksExpireTheRoom(t *testing.T) {
	r := newReducer()
	s := chatSession(t, r, 60)
	gen := s.Gen

	for i := 1; i < 60; i++ {
		var effects []Effect
		prev := s.Countdown.Remaining
		s, effects = r.Apply(s, Tick{})
		require.Empty(t, effects)
		require.Equal(t, PhaseChat, s.Phase)
		require.Equal(t, prev-1, s.Countdown.Remaining)
	}
	assert.Equal(t, 1, s.Countdown.Remaining)

	s, effects := r.Apply(s, Tick{})
	assert.Equal(t, []Effect{
		StopTicker{},
		CloseChannel{},
		Notify{Notice: Notice{Err: ErrRoomExpired}},
	}, effects)
	assert.Equal(t, PhaseHome, s.Phase)
	assert.False(t, s.InRoom())
	assert.False(t, s.Connected)
	assert.Empty(t, s.History)
	assert.Equal(t, expiry.NewCountdown(), s.Countdown)
	assert.Equal(t, "user-3", s.Username)
	assert.Equal(t, gen+1, s.Gen)

	// later ticks and the server's own notice do nothing
	after, effects := r.Apply(s, Tick{})
	assert.Empty(t, effects)
	assert.Equal(t, s, after)

	after, effects = r.Apply(s, ChannelEvent{Gen: gen, Event: channel.Event{Kind: channel.Received, Message: protocol.NewRoomExpired("R1")}})
	assert.Empty(t, effects)
	assert.Equal(t, s, after)
}

func TestRoomExpiredMessageStopsTicker(t *testing.T) {
	r := newReducer()
	s := chatSession(t, r, 300)
	gen := s.Gen

	s, effects := r.Apply(s, ChannelEvent{Gen: gen, Event: channel.Event{Kind: channel.Received, Message: protocol.NewRoomExpired("R1")}})
	require.NotEmpty(t, effects)
	assert.Equal(t, StopTicker{}, effects[0])
	assert.Equal(t, CloseChannel{}, effects[1])
	requireNotice(t, effects, ErrRoomExpired)
	assert.Equal(t, PhaseHome, s.Phase)

	// the server closes right after; that close belongs to the old visit
	after, effects := r.Apply(s, ChannelEvent{Gen: gen, Event: channel.Event{Kind: channel.Closed}})
	assert.Empty(t, effects)
	assert.Equal(t, s, after)
}

func TestLeaveSendsFarewell(t *testing.T) {
	r := newReducer()
	s := chatSession(t, r, 300)
	username := s.Username

	s, effects := r.Apply(s, LeaveRequested{})
	assert.Equal(t, []Effect{
		StopTicker{},
		CloseChannel{Farewell: protocol.NewLeave("R1", username)},
	}, effects)
	assert.Empty(t, notices(effects))
	assert.Equal(t, PhaseHome, s.Phase)
	assert.NotEqual(t, username, s.Username)
	assert.Equal(t, expiry.DefaultSeconds, s.Countdown.Remaining)
}

func TestLeaveAfterDisconnectSkipsFarewell(t *testing.T) {
	r := newReducer()
	s := chatSession(t, r, 300)

	s, effects := r.Apply(s, ChannelEvent{Gen: s.Gen, Event: channel.Event{Kind: channel.Closed, Err: errors.New("EOF")}})
	requireNotice(t, effects, ErrChannelClosed)
	assert.Equal(t, PhaseChat, s.Phase)
	assert.False(t, s.Connected)

	_, effects = r.Apply(s, SendRequested{Content: "anyone?"})
	requireNotice(t, effects, ErrNotConnected)

	// the countdown keeps running while disconnected
	next, _ := r.Apply(s, Tick{})
	assert.Equal(t, s.Countdown.Remaining-1, next.Countdown.Remaining)

	_, effects = r.Apply(s, LeaveRequested{})
	assert.Equal(t, []Effect{StopTicker{}, CloseChannel{}}, effects)
}

func TestBackFromWaitingScreens(t *testing.T) {
	r := newReducer()
	s := r.Initial()
	s, _ = r.Apply(s, CreateRequested{})
	s, _ = r.Apply(s, CreateCompleted{Gen: 0, Room: roomclient.Room{ID: "R1", RemainingSeconds: 60}})

	s, effects := r.Apply(s, BackRequested{})
	assert.Equal(t, []Effect{StopTicker{}, CloseChannel{}}, effects)
	assert.Equal(t, PhaseHome, s.Phase)
	assert.False(t, s.InRoom())
}

func TestBackAbandonsPendingCalls(t *testing.T) {
	r := newReducer()
	s := r.Initial()
	s, _ = r.Apply(s, CreateRequested{})

	s, effects := r.Apply(s, BackRequested{})
	assert.Empty(t, effects)
	assert.Equal(t, PendingNone, s.Pending)
	assert.Equal(t, uint64(1), s.Gen)

	after, effects := r.Apply(s, CreateCompleted{Gen: 0, Room: roomclient.Room{ID: "R1", RemainingSeconds: 60}})
	assert.Empty(t, effects)
	assert.Equal(t, s, after)
}

func TestBackDuringEnterDropsLateChannel(t *testing.T) {
	r := newReducer()
	s := r.Initial()
	s, _ = r.Apply(s, JoinRequested{RoomID: "R1"})
	s, _ = r.Apply(s, LookupCompleted{Gen: 0, RoomID: "R1", Room: roomclient.Room{ID: "R1", RemainingSeconds: 60}})
	s, _ = r.Apply(s, EnterRequested{})
	s, _ = r.Apply(s, LookupCompleted{Gen: 0, RoomID: "R1", Room: roomclient.Room{ID: "R1", RemainingSeconds: 60}})

	s, effects := r.Apply(s, BackRequested{})
	assert.Contains(t, effects, CloseChannel{})

	after, effects := r.Apply(s, ChannelEvent{Gen: 0, Event: channel.Event{Kind: channel.Opened}})
	assert.Empty(t, effects)
	assert.Equal(t, PhaseHome, after.Phase)
}

func TestSendChat(t *testing.T) {
	r := newReducer()
	s := chatSession(t, r, 300)

	_, effects := r.Apply(s, SendRequested{Content: "hello there"})
	assert.Equal(t, []Effect{
		SendMessage{Gen: s.Gen, Message: protocol.NewChat("R1", s.Username, "hello there", fixedNow)},
	}, effects)

	_, effects = r.Apply(s, SendRequested{Content: "   "})
	assert.Empty(t, effects)
}

func TestHistoryKeepsArrivalOrder(t *testing.T) {
	r := newReducer()
	s := chatSession(t, r, 300)

	in := []protocol.Message{
		protocol.NewJoin("R1", "bob"),
		protocol.NewChat("R1", "bob", "one", fixedNow),
		protocol.NewChat("R1", s.Username, "two", fixedNow),
		protocol.NewLeave("R1", "bob"),
	}
	for _, m := range in {
		s, _ = r.Apply(s, ChannelEvent{Gen: s.Gen, Event: channel.Event{Kind: channel.Received, Message: m}})
	}
	assert.Equal(t, in, s.History)

	s, effects := r.Apply(s, ChannelEvent{Gen: s.Gen, Event: channel.Event{Kind: channel.Failed, Err: errors.New("bad frame")}})
	requireNotice(t, effects, ErrChannelRuntime)
	assert.Len(t, s.History, 4)
}

func TestOpenWithNoTimeLeftExpires(t *testing.T) {
	r := newReducer()
	s := r.Initial()
	s, _ = r.Apply(s, JoinRequested{RoomID: "R1"})
	s, _ = r.Apply(s, LookupCompleted{Gen: 0, RoomID: "R1", Room: roomclient.Room{ID: "R1", RemainingSeconds: 5}})
	s, _ = r.Apply(s, EnterRequested{})
	s, _ = r.Apply(s, LookupCompleted{Gen: 0, RoomID: "R1", Room: roomclient.Room{ID: "R1", RemainingSeconds: 0}})

	s, effects := r.Apply(s, ChannelEvent{Gen: 0, Event: channel.Event{Kind: channel.Opened}})
	requireNotice(t, effects, ErrRoomExpired)
	assert.NotContains(t, effects, StartTicker{})
	assert.Equal(t, PhaseHome, s.Phase)
}

// world plays the registry, channel and ticker against effects, so random
// event sequences can check the resource invariants.
type world struct {
	t       *testing.T
	held    bool
	ticking bool
	pending []Event
}

func (w *world) run(s Session, effects []Effect) {
	for _, e := range effects {
		switch e := e.(type) {
		case CreateRoom:
			w.pending = append(w.pending, CreateCompleted{Gen: e.Gen, Room: roomclient.Room{ID: "R1", RemainingSeconds: 3}})
		case LookupRoom:
			w.pending = append(w.pending, LookupCompleted{Gen: e.Gen, RoomID: e.RoomID, Room: roomclient.Room{ID: e.RoomID, RemainingSeconds: 3}})
		case OpenChannel:
			require.False(w.t, w.held, "second channel opened while one is held")
			w.held = true
			w.pending = append(w.pending, ChannelEvent{Gen: e.Gen, Event: channel.Event{Kind: channel.Opened}})
		case CloseChannel:
			w.held = false
		case StartTicker:
			require.False(w.t, w.ticking, "second ticker started")
			w.ticking = true
		case StopTicker:
			w.ticking = false
		}
	}
}

func TestRandomSequencesKeepResourcesExclusive(t *testing.T) {
	intents := []Event{
		CreateRequested{}, JoinRequested{RoomID: "R1"}, EnterRequested{}, BackRequested{},
		LeaveRequested{}, SendRequested{Content: "hi"}, Tick{}, Tick{}, Tick{},
	}

	for seed := int64(1); seed <= 50; seed++ {
		rng := rand.New(rand.NewSource(seed))
		r := newReducer()
		s := r.Initial()
		w := &world{t: t}

		for i := 0; i < 200; i++ {
			var ev Event
			if len(w.pending) > 0 && rng.Intn(2) == 0 {
				ev = w.pending[0]
				w.pending = w.pending[1:]
			} else {
				ev = intents[rng.Intn(len(intents))]
			}

			prev := s
			var effects []Effect
			s, effects = r.Apply(s, ev)
			w.run(s, effects)

			if s.Phase == PhaseHome {
				require.False(t, w.held, "seed %d: channel held at home", seed)
				require.False(t, w.ticking, "seed %d: ticker running at home", seed)
			}
			if w.ticking {
				require.Equal(t, PhaseChat, s.Phase, "seed %d", seed)
			}
			if prev.Phase == PhaseChat && s.Phase == PhaseChat {
				require.LessOrEqual(t, s.Countdown.Remaining, prev.Countdown.Remaining, "seed %d: countdown went up", seed)
			}
		}
	}
}
