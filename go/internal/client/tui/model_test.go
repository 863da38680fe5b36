package tui

import (
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/momento/go/internal/client/session"
	"github.com/mcdev12/momento/go/internal/room/expiry"
	"github.com/mcdev12/momento/go/internal/room/protocol"
)

type recordingDispatcher struct {
	events []session.Event
}

func (d *recordingDispatcher) Dispatch(ev session.Event) {
	d.events = append(d.events, ev)
}

func newTestModel(state session.Session) (Model, *recordingDispatcher) {
	d := &recordingDispatcher{}
	m := NewModel(d, nil)
	next, _ := m.Update(updateMsg{State: state})
	return next.(Model), d
}

func press(t *testing.T, m Model, msg tea.KeyMsg) Model {
	t.Helper()
	next, _ := m.Update(msg)
	return next.(Model)
}

func typeText(t *testing.T, m Model, text string) Model {
	t.Helper()
	return press(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(text)})
}

func homeState() session.Session {
	return session.Session{
		Phase:     session.PhaseHome,
		Username:  "anonymous-calm-otter-1a2b3",
		Minutes:   10,
		Countdown: expiry.NewCountdown(),
	}
}

func chatState() session.Session {
	return session.Session{
		Phase:     session.PhaseChat,
		Username:  "me",
		RoomID:    "abcd1234",
		Minutes:   10,
		Countdown: expiry.Countdown{Remaining: 125, Running: true},
		Connected: true,
	}
}

func TestHomeKeys(t *testing.T) {
	m, d := newTestModel(homeState())

	m = press(t, m, tea.KeyMsg{Type: tea.KeyCtrlN})
	m = press(t, m, tea.KeyMsg{Type: tea.KeyUp})
	m = press(t, m, tea.KeyMsg{Type: tea.KeyDown})
	m = typeText(t, m, "abcd1234")
	press(t, m, tea.KeyMsg{Type: tea.KeyEnter})

	assert.Equal(t, []session.Event{
		session.CreateRequested{},
		session.MinutesChanged{Minutes: 11},
		session.MinutesChanged{Minutes: 9},
		session.JoinRequested{RoomID: "abcd1234"},
	}, d.events)
}

func TestWaitingScreenKeys(t *testing.T) {
	state := homeState()
	state.Phase = session.PhaseRoomCreated
	state.RoomID = "abcd1234"
	m, d := newTestModel(state)

	assert.Contains(t, m.View(), "abcd1234")

	m = typeText(t, m, "ignored")
	m = press(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	press(t, m, tea.KeyMsg{Type: tea.KeyEsc})

	assert.Equal(t, []session.Event{session.EnterRequested{}, session.BackRequested{}}, d.events)
}

func TestChatSendsAndClearsInput(t *testing.T) {
	m, d := newTestModel(chatState())

	m = typeText(t, m, "hello all")
	m = press(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	assert.Empty(t, m.input.Value())

	m = typeText(t, m, "/file notes.txt")
	m = press(t, m, tea.KeyMsg{Type: tea.KeyEnter})

	// blank input sends nothing
	m = press(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	press(t, m, tea.KeyMsg{Type: tea.KeyEsc})

	assert.Equal(t, []session.Event{
		session.SendRequested{Content: "hello all"},
		session.SendRequested{Content: "[File: notes.txt]"},
		session.LeaveRequested{},
	}, d.events)
}

func TestQuit(t *testing.T) {
	m, d := newTestModel(chatState())
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
	assert.Empty(t, d.events)
}

func TestParseChatInput(t *testing.T) {
	assert.Nil(t, parseChatInput("   "))
	assert.Nil(t, parseChatInput("/file   "))
	assert.Equal(t, session.LeaveRequested{}, parseChatInput(" /leave "))
	assert.Equal(t, session.SendRequested{Content: "[File: a b.png]"}, parseChatInput("/file a b.png"))
	assert.Equal(t, session.SendRequested{Content: " spaced "}, parseChatInput(" spaced "))
}

func TestChatView(t *testing.T) {
	state := chatState()
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	state.History = []protocol.Message{
		protocol.NewJoin("abcd1234", "bob"),
		protocol.NewChat("abcd1234", "bob", "hi there", now),
		protocol.NewChat("abcd1234", "me", "hey bob", now),
		protocol.NewLeave("abcd1234", "bob"),
	}
	m, _ := newTestModel(state)

	view := m.View()
	assert.Contains(t, view, "abcd1234")
	assert.Contains(t, view, "2:05")
	assert.Contains(t, view, "bob joined")
	assert.Contains(t, view, "hi there")
	assert.Contains(t, view, "hey bob")
	assert.Contains(t, view, "bob left")
	assert.Less(t, strings.Index(view, "bob joined"), strings.Index(view, "bob left"))
}

func TestNoticeShownUntilNextKey(t *testing.T) {
	m, _ := newTestModel(homeState())

	next, _ := m.Update(updateMsg{
		State:   homeState(),
		Notices: []session.Notice{{Err: session.ErrRoomNotFound}},
	})
	m = next.(Model)
	assert.Contains(t, m.View(), "room not found or expired")

	m = typeText(t, m, "x")
	assert.NotContains(t, m.View(), "room not found or expired")
}

func TestPhaseChangeResetsInput(t *testing.T) {
	m, _ := newTestModel(homeState())
	m = typeText(t, m, "abcd1234")
	require.Equal(t, "abcd1234", m.input.Value())

	state := homeState()
	state.Phase = session.PhaseUsernameEntry
	state.RoomID = "abcd1234"
	next, _ := m.Update(updateMsg{State: state})
	assert.Empty(t, next.(Model).input.Value())
}

func TestListenForUpdateReadsMailbox(t *testing.T) {
	mb := session.NewMailbox()
	mb.Post(homeState(), []session.Notice{{Err: session.ErrRoomNotFound}})
	mb.Post(chatState(), []session.Notice{{Err: session.ErrChannelClosed}})

	msg, ok := listenForUpdate(mb)().(updateMsg)
	require.True(t, ok)
	assert.Equal(t, chatState(), msg.State)
	assert.Len(t, msg.Notices, 2)

	mb.Close()
	assert.Nil(t, listenForUpdate(mb)())
}
