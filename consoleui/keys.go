// Copyright 2026 The Gantry Authors
// SPDX-License-Identifier: Apache-2.0

package consoleui

import "github.com/charmbracelet/bubbles/key"

// KeyMap defines all key bindings for the operator console.
type KeyMap struct {
	// Timeline scrolling (active when the timeline pane has focus).
	Up       key.Binding
	Down     key.Binding
	PageUp   key.Binding
	PageDown key.Binding

	// Focus switching between the timeline pane and the chat input.
	FocusToggle key.Binding

	// Operations.
	StartRun key.Binding // Start an orchestration run for the unit.
	Resume   key.Binding // Clear the backend halt after an incident.

	Quit key.Binding
}

// DefaultKeyMap is the built-in key binding set. Vim-style navigation
// (j/k) alongside standard arrow keys.
var DefaultKeyMap = KeyMap{
	Up: key.NewBinding(
		key.WithKeys("k", "up"),
		key.WithHelp("k/↑", "scroll up"),
	),
	Down: key.NewBinding(
		key.WithKeys("j", "down"),
		key.WithHelp("j/↓", "scroll down"),
	),
	PageUp: key.NewBinding(
		key.WithKeys("pgup", "ctrl+u"),
		key.WithHelp("pgup", "page up"),
	),
	PageDown: key.NewBinding(
		key.WithKeys("pgdown", "ctrl+d"),
		key.WithHelp("pgdn", "page down"),
	),
	FocusToggle: key.NewBinding(
		key.WithKeys("tab"),
		key.WithHelp("tab", "chat"),
	),
	StartRun: key.NewBinding(
		key.WithKeys("o"),
		key.WithHelp("o", "orchestrate"),
	),
	Resume: key.NewBinding(
		key.WithKeys("r"),
		key.WithHelp("r", "resume"),
	),
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
}
