package tui

import "github.com/charmbracelet/bubbles/key"

// KeyMap defines the key bindings of the chat client.
type KeyMap struct {
	Submit       key.Binding // Join by ID, enter the chat, or send.
	Create       key.Binding
	Back         key.Binding // Back to home, or leave the chat.
	MoreMinutes  key.Binding
	FewerMinutes key.Binding
	Quit         key.Binding
}

// DefaultKeyMap is the built-in key binding set. Letters are left to the
// text input.
var DefaultKeyMap = KeyMap{
	Submit: key.NewBinding(
		key.WithKeys("enter"),
		key.WithHelp("enter", "submit"),
	),
	Create: key.NewBinding(
		key.WithKeys("ctrl+n"),
		key.WithHelp("C-n", "create room"),
	),
	Back: key.NewBinding(
		key.WithKeys("esc"),
		key.WithHelp("esc", "back"),
	),
	MoreMinutes: key.NewBinding(
		key.WithKeys("up"),
		key.WithHelp("↑", "more minutes"),
	),
	FewerMinutes: key.NewBinding(
		key.WithKeys("down"),
		key.WithHelp("↓", "fewer minutes"),
	),
	Quit: key.NewBinding(
		key.WithKeys("ctrl+c"),
		key.WithHelp("C-c", "quit"),
	),
}
