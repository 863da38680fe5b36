// Package tui is the terminal front end of the chat client. It renders
// session state pushed from the controller and turns keys into session
// events; it holds no session logic of its own.
package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/mcdev12/momento/go/internal/client/session"
	"github.com/mcdev12/momento/go/internal/room/expiry"
	"github.com/mcdev12/momento/go/internal/room/protocol"
)

// lowSeconds is where the countdown turns red.
const lowSeconds = 60

// Dispatcher accepts session events.
type Dispatcher interface {
	Dispatch(ev session.Event)
}

// Source yields controller output. *session.Mailbox implements it.
type Source interface {
	Receive(ctx context.Context) (session.Session, []session.Notice, bool)
}

type updateMsg struct {
	State   session.Session
	Notices []session.Notice
}

// Model implements tea.Model.
type Model struct {
	dispatcher Dispatcher
	updates    Source
	keys       KeyMap

	state  session.Session
	notice string
	input  textinput.Model

	width  int
	height int
}

// NewModel creates a model that reads state from updates and sends user
// intents to dispatcher. dispatcher must not block.
func NewModel(dispatcher Dispatcher, updates Source) Model {
	input := textinput.New()
	input.Prompt = "> "
	input.CharLimit = 500
	input.Focus()

	m := Model{
		dispatcher: dispatcher,
		updates:    updates,
		keys:       DefaultKeyMap,
		input:      input,
		width:      80,
		height:     24,
	}
	m.setPlaceholder()
	return m
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, listenForUpdate(m.updates))
}

// listenForUpdate blocks until the controller pushes state.
func listenForUpdate(updates Source) tea.Cmd {
	if updates == nil {
		return nil
	}
	return func() tea.Msg {
		s, notices, ok := updates.Receive(context.Background())
		if !ok {
			return nil
		}
		return updateMsg{State: s, Notices: notices}
	}
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.input.Width = msg.Width - 4
		return m, nil

	case updateMsg:
		prev := m.state.Phase
		m.state = msg.State
		if len(msg.Notices) > 0 {
			m.notice = msg.Notices[len(msg.Notices)-1].Text()
		}
		if m.state.Phase != prev {
			m.input.Reset()
			m.setPlaceholder()
		}
		return m, listenForUpdate(m.updates)

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, m.keys.Quit) {
		return m, tea.Quit
	}
	m.notice = ""

	switch m.state.Phase {
	case session.PhaseHome:
		switch {
		case key.Matches(msg, m.keys.Create):
			m.dispatcher.Dispatch(session.CreateRequested{})
			return m, nil
		case key.Matches(msg, m.keys.Submit):
			m.dispatcher.Dispatch(session.JoinRequested{RoomID: m.input.Value()})
			return m, nil
		case key.Matches(msg, m.keys.MoreMinutes):
			m.dispatcher.Dispatch(session.MinutesChanged{Minutes: m.state.Minutes + 1})
			return m, nil
		case key.Matches(msg, m.keys.FewerMinutes):
			m.dispatcher.Dispatch(session.MinutesChanged{Minutes: m.state.Minutes - 1})
			return m, nil
		case key.Matches(msg, m.keys.Back):
			m.dispatcher.Dispatch(session.BackRequested{})
			return m, nil
		}

	case session.PhaseRoomCreated, session.PhaseUsernameEntry:
		switch {
		case key.Matches(msg, m.keys.Submit):
			m.dispatcher.Dispatch(session.EnterRequested{})
			return m, nil
		case key.Matches(msg, m.keys.Back):
			m.dispatcher.Dispatch(session.BackRequested{})
			return m, nil
		}
		// Nothing to type on these screens.
		return m, nil

	case session.PhaseChat:
		switch {
		case key.Matches(msg, m.keys.Submit):
			ev := parseChatInput(m.input.Value())
			if ev != nil {
				m.dispatcher.Dispatch(ev)
			}
			m.input.Reset()
			return m, nil
		case key.Matches(msg, m.keys.Back):
			m.dispatcher.Dispatch(session.LeaveRequested{})
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// parseChatInput turns the chat box contents into an event. "/file NAME"
// posts a file reference and "/leave" leaves. Blank input yields nil.
func parseChatInput(text string) session.Event {
	trimmed := strings.TrimSpace(text)
	switch {
	case trimmed == "":
		return nil
	case trimmed == "/leave":
		return session.LeaveRequested{}
	case strings.HasPrefix(trimmed, "/file "):
		name := strings.TrimSpace(strings.TrimPrefix(trimmed, "/file "))
		if name == "" {
			return nil
		}
		return session.SendRequested{Content: fmt.Sprintf("[File: %s]", name)}
	}
	return session.SendRequested{Content: text}
}

func (m *Model) setPlaceholder() {
	switch m.state.Phase {
	case session.PhaseHome:
		m.input.Placeholder = "room ID to join"
	case session.PhaseChat:
		m.input.Placeholder = "type a message, /file NAME, /leave"
	default:
		m.input.Placeholder = ""
	}
}

// View implements tea.Model.
func (m Model) View() string {
	var sections []string
	switch m.state.Phase {
	case session.PhaseHome:
		sections = m.renderHome()
	case session.PhaseRoomCreated:
		sections = m.renderWaiting("Room created. Share this ID:")
	case session.PhaseUsernameEntry:
		sections = m.renderWaiting("Joining room")
	case session.PhaseChat:
		sections = m.renderChat()
	}

	if m.notice != "" {
		sections = append(sections, "", noticeStyle.Render(m.notice))
	}
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m Model) renderHome() []string {
	status := ""
	switch m.state.Pending {
	case session.PendingCreate:
		status = mutedStyle.Render("creating room...")
	case session.PendingJoin:
		status = mutedStyle.Render("looking up room...")
	}

	return []string{
		titleStyle.Render("momento"),
		mutedStyle.Render("ephemeral chat rooms"),
		"",
		fmt.Sprintf("New room lifetime: %d min  %s", m.state.Minutes, mutedStyle.Render("(↑/↓)")),
		"",
		m.input.View(),
		status,
		"",
		mutedStyle.Render("C-n create room • enter join • C-c quit"),
	}
}

func (m Model) renderWaiting(heading string) []string {
	status := mutedStyle.Render("enter join chat • esc back")
	if m.state.Pending != session.PendingNone {
		status = mutedStyle.Render("connecting...")
	}
	return []string{
		titleStyle.Render(heading),
		"",
		roomIDStyle.Render(m.state.RoomID),
		"",
		"You are " + senderStyle.Render(m.state.Username),
		"Expires in " + m.renderCountdown(),
		"",
		status,
	}
}

func (m Model) renderChat() []string {
	connection := "connected"
	if !m.state.Connected {
		connection = noticeStyle.Render("disconnected")
	}
	header := fmt.Sprintf("%s  %s  %s  %s",
		titleStyle.Render("momento"),
		roomIDStyle.Render(m.state.RoomID),
		m.renderCountdown(),
		mutedStyle.Render(connection),
	)

	// header, blank, input, help and a notice line
	room := m.height - 6
	if room < 1 {
		room = 1
	}
	history := m.state.History
	if len(history) > room {
		history = history[len(history)-room:]
	}

	sections := []string{header, ""}
	for _, msg := range history {
		sections = append(sections, m.renderMessage(msg))
	}
	sections = append(sections,
		m.input.View(),
		mutedStyle.Render("enter send • esc leave • C-c quit"),
	)
	return sections
}

func (m Model) renderCountdown() string {
	text := expiry.FormatSeconds(m.state.Countdown.Remaining)
	if m.state.Countdown.Remaining <= lowSeconds {
		return countdownLowStyle.Render(text)
	}
	return countdownStyle.Render(text)
}

func (m Model) renderMessage(msg protocol.Message) string {
	switch msg := msg.(type) {
	case protocol.Join:
		return m.center(presenceStyle.Render(msg.Sender + " joined"))
	case protocol.Leave:
		return m.center(presenceStyle.Render(msg.Sender + " left"))
	case protocol.Chat:
		stamp := mutedStyle.Render(msg.Timestamp.Local().Format("15:04"))
		if msg.Sender == m.state.Username {
			line := stamp + " " + ownBubbleStyle.Render(msg.Content)
			return lipgloss.PlaceHorizontal(m.width, lipgloss.Right, line)
		}
		return senderStyle.Render(msg.Sender) + " " + otherBubbleStyle.Render(msg.Content) + " " + stamp
	default:
		return mutedStyle.Render(msg.From() + ": " + string(msg.Type()))
	}
}

func (m Model) center(s string) string {
	return lipgloss.PlaceHorizontal(m.width, lipgloss.Center, s)
}
