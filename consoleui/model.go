// Copyright 2026 The Gantry Authors
// SPDX-License-Identifier: Apache-2.0

package consoleui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/gantry-systems/gantry/incident"
	"github.com/gantry-systems/gantry/stream"
)

// FocusRegion identifies which pane has keyboard focus.
type FocusRegion int

const (
	// FocusTimeline means navigation keys scroll the timeline viewport.
	FocusTimeline FocusRegion = iota
	// FocusChat means keystrokes go to the chat input.
	FocusChat
)

// requestTimeout bounds every operator-initiated backend call.
const requestTimeout = 30 * time.Second

// noticeFadeDelay is how long a status notice stays visible.
const noticeFadeDelay = 5 * time.Second

// sourceEventMsg wraps a connection manager event for delivery through
// the bubbletea message loop.
type sourceEventMsg struct {
	event stream.Event
}

// clockTickMsg drives the periodic redraw so the downtime counter and
// grace countdown advance between stream frames.
type clockTickMsg struct{}

// chatResultMsg is sent when an asynchronous chat call completes.
type chatResultMsg struct {
	reply *incident.ChatReply
	err   error
}

// runResultMsg is sent when a start-run call completes. The solution
// itself lands in the store through the session; only the error is
// carried here.
type runResultMsg struct {
	err error
}

// resumeResultMsg is sent when a resume call completes.
type resumeResultMsg struct {
	err error
}

// noticeFadeMsg clears the status notice after a delay.
type noticeFadeMsg struct{}

// chatLine is one entry in the chat transcript.
type chatLine struct {
	fromOperator bool
	text         string
}

// Model is the bubbletea model for the operator console. One model per
// monitored unit; the session and event channel are injected so tests
// can drive the loop synchronously.
type Model struct {
	session *incident.Session
	events  <-chan stream.Event
	theme   Theme
	keys    KeyMap

	width  int
	height int
	ready  bool

	focus    FocusRegion
	timeline viewport.Model
	chat     textinput.Model
	chatLog  []chatLine

	notice         string
	runInFlight    bool
	resumeInFlight bool
	chatInFlight   bool
}

// NewModel creates a console model over an incident session and the
// connection manager's event channel. The model is the channel's sole
// consumer.
func NewModel(session *incident.Session, events <-chan stream.Event) Model {
	chat := textinput.New()
	chat.Placeholder = `ask the supervisor, or type "override"`
	chat.CharLimit = 240
	return Model{
		session:  session,
		events:   events,
		theme:    DefaultTheme,
		keys:     DefaultKeyMap,
		timeline: viewport.New(0, 0),
		chat:     chat,
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.waitForEvent(), scheduleTick())
}

// waitForEvent blocks on the next connection manager event. Re-issued
// after each delivery so the loop consumes exactly one event per
// bubbletea message.
func (m Model) waitForEvent() tea.Cmd {
	events := m.events
	return func() tea.Msg {
		return sourceEventMsg{event: <-events}
	}
}

func scheduleTick() tea.Cmd {
	return tea.Tick(time.Second, func(time.Time) tea.Msg {
		return clockTickMsg{}
	})
}

func fadeNotice() tea.Cmd {
	return tea.Tick(noticeFadeDelay, func(time.Time) tea.Msg {
		return noticeFadeMsg{}
	})
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.ready = true
		m.layout()
		return m, nil

	case sourceEventMsg:
		m.session.Handle(msg.event)
		m.refreshTimeline()
		return m, m.waitForEvent()

	case clockTickMsg:
		return m, scheduleTick()

	case chatResultMsg:
		m.chatInFlight = false
		if msg.err != nil {
			m.chatLog = append(m.chatLog, chatLine{text: fmt.Sprintf("(chat failed: %v)", msg.err)})
			return m, nil
		}
		m.chatLog = append(m.chatLog, chatLine{text: msg.reply.Reply})
		if msg.reply.OverrideActive {
			m.notice = "override armed: the next decision will be flipped"
			return m, fadeNotice()
		}
		return m, nil

	case runResultMsg:
		m.runInFlight = false
		if msg.err != nil {
			m.notice = fmt.Sprintf("orchestration failed: %v", msg.err)
			return m, fadeNotice()
		}
		m.refreshTimeline()
		return m, nil

	case resumeResultMsg:
		m.resumeInFlight = false
		if msg.err != nil {
			m.notice = fmt.Sprintf("resume: %v", msg.err)
			return m, fadeNotice()
		}
		return m, nil

	case noticeFadeMsg:
		m.notice = ""
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.focus == FocusChat {
		switch msg.Type {
		case tea.KeyEsc, tea.KeyTab:
			m.focus = FocusTimeline
			m.chat.Blur()
			return m, nil
		case tea.KeyEnter:
			message := strings.TrimSpace(m.chat.Value())
			if message == "" || m.chatInFlight {
				return m, nil
			}
			m.chat.Reset()
			m.chatLog = append(m.chatLog, chatLine{fromOperator: true, text: message})
			m.chatInFlight = true
			return m, m.sendChat(message)
		}
		if msg.Type == tea.KeyCtrlC {
			return m, tea.Quit
		}
		var cmd tea.Cmd
		m.chat, cmd = m.chat.Update(msg)
		return m, cmd
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.FocusToggle):
		m.focus = FocusChat
		return m, m.chat.Focus()
	case key.Matches(msg, m.keys.StartRun):
		if m.runInFlight {
			return m, nil
		}
		m.runInFlight = true
		return m, m.startRun()
	case key.Matches(msg, m.keys.Resume):
		if m.resumeInFlight || !m.session.Store().View().Halted {
			return m, nil
		}
		m.resumeInFlight = true
		return m, m.resume()
	}

	var cmd tea.Cmd
	m.timeline, cmd = m.timeline.Update(msg)
	return m, cmd
}

func (m Model) sendChat(message string) tea.Cmd {
	session := m.session
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		reply, err := session.SendChat(ctx, message)
		return chatResultMsg{reply: reply, err: err}
	}
}

func (m Model) startRun() tea.Cmd {
	session := m.session
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		_, err := session.StartRun(ctx)
		return runResultMsg{err: err}
	}
}

func (m Model) resume() tea.Cmd {
	session := m.session
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		return resumeResultMsg{err: session.Resume(ctx)}
	}
}

// layout recomputes pane sizes from the terminal dimensions. The
// timeline viewport takes whatever height the fixed chrome (header,
// telemetry block, chat pane, help line) leaves over.
func (m *Model) layout() {
	chrome := 12
	timelineHeight := m.height - chrome
	if timelineHeight < 3 {
		timelineHeight = 3
	}
	m.timeline.Width = m.width
	m.timeline.Height = timelineHeight
	m.chat.Width = m.width - 4
}

// refreshTimeline rebuilds the viewport content from the session
// timeline and pins the view to the newest step.
func (m *Model) refreshTimeline() {
	steps := m.session.Timeline().Steps()
	if len(steps) == 0 {
		m.timeline.SetContent(lipgloss.NewStyle().Foreground(m.theme.FaintText).Render("  no orchestration activity"))
		return
	}

	agentStyle := lipgloss.NewStyle().Foreground(m.theme.HeaderForeground)
	faint := lipgloss.NewStyle().Foreground(m.theme.FaintText)

	var b strings.Builder
	for _, step := range steps {
		fmt.Fprintf(&b, "  %s %s %s\n",
			faint.Render(fmt.Sprintf("%2d", step.ID)),
			agentStyle.Render(fmt.Sprintf("%-14s", step.Agent)),
			step.Event,
		)
	}
	m.timeline.SetContent(strings.TrimRight(b.String(), "\n"))
	m.timeline.GotoBottom()
}

func (m Model) View() string {
	if !m.ready {
		return "starting console..."
	}

	view := m.session.Store().View()
	sections := []string{
		m.renderHeader(view),
		m.renderTelemetry(view),
		m.renderTimelinePane(view),
		m.renderChatPane(),
		m.renderHelp(),
	}
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m Model) renderHeader(view incident.View) string {
	title := lipgloss.NewStyle().
		Foreground(m.theme.HeaderForeground).
		Bold(true).
		Render(" GANTRY " + m.session.UnitID())

	connection := "offline"
	if m.session.Connected() {
		connection = "live"
	}

	badge := lipgloss.NewStyle().
		Foreground(m.theme.StatusColor(view.Status)).
		Bold(true).
		Render(strings.ToUpper(string(view.Phase)))

	parts := []string{title, badge, lipgloss.NewStyle().Foreground(m.theme.FaintText).Render(connection)}
	if m.notice != "" {
		parts = append(parts, lipgloss.NewStyle().Foreground(m.theme.OverrideAccent).Render(m.notice))
	}
	if view.ResumeNotifyFailed {
		parts = append(parts, lipgloss.NewStyle().Foreground(m.theme.AlertAccent).Render("resume notify failed"))
	}
	return strings.Join(parts, "  ")
}

func (m Model) renderTelemetry(view incident.View) string {
	tick := view.Live
	if view.Halted && view.Frozen != nil {
		tick = view.Frozen
	}
	if tick == nil {
		return lipgloss.NewStyle().Foreground(m.theme.FaintText).Render("  waiting for telemetry")
	}

	statusStyle := lipgloss.NewStyle().Foreground(m.theme.StatusColor(tick.Status)).Bold(true)
	line := fmt.Sprintf("  cycle %-5d RUL %-7.1f vib %-7.3f s11 %-7.2f %s",
		tick.Cycle, tick.RUL, tick.Vibration, tick.SensorS11,
		statusStyle.Render(string(tick.Status)),
	)

	if view.Halted {
		line += lipgloss.NewStyle().Foreground(m.theme.AlertAccent).
			Render(fmt.Sprintf("  HALTED %s", formatSeconds(tick.DowntimeSeconds)))
	}
	if view.Alert != nil && view.Halted {
		line += "\n  " + lipgloss.NewStyle().Foreground(m.theme.AlertAccent).Render(view.Alert.Message)
	}
	return line
}

func (m Model) renderTimelinePane(view incident.View) string {
	border := lipgloss.NewStyle().
		Border(lipgloss.NormalBorder(), true, false).
		BorderForeground(m.theme.BorderColor)

	content := m.timeline.View()
	if view.Solution != nil {
		decision := view.Solution.Decision
		label := lipgloss.NewStyle().Foreground(m.theme.StatusColor(view.Solution.Status)).Bold(true).Render(decision.Label)
		reason := decision.Reason
		if decision.Overridden {
			label = lipgloss.NewStyle().Foreground(m.theme.OverrideAccent).Bold(true).Render(decision.Label)
		}
		content += "\n\n  " + label + "  " + reason
		if view.Solution.Cost.CostSaved > 0 {
			content += lipgloss.NewStyle().Foreground(m.theme.FaintText).
				Render(fmt.Sprintf("  (saved $%.0f)", view.Solution.Cost.CostSaved))
		}
	}
	return border.Render(content)
}

func (m Model) renderChatPane() string {
	faint := lipgloss.NewStyle().Foreground(m.theme.FaintText)

	lines := m.chatLog
	if len(lines) > 3 {
		lines = lines[len(lines)-3:]
	}
	var b strings.Builder
	for _, line := range lines {
		speaker := faint.Render("supervisor")
		if line.fromOperator {
			speaker = faint.Render("you       ")
		}
		fmt.Fprintf(&b, "  %s %s\n", speaker, line.text)
	}
	b.WriteString("  " + m.chat.View())
	return b.String()
}

func (m Model) renderHelp() string {
	help := lipgloss.NewStyle().Foreground(m.theme.HelpText)
	if m.focus == FocusChat {
		return help.Render("  enter send · esc back")
	}
	return help.Render("  o orchestrate · r resume · tab chat · j/k scroll · q quit")
}

// formatSeconds renders a downtime duration as "XmYYs".
func formatSeconds(seconds float64) string {
	total := int(seconds)
	return fmt.Sprintf("%dm%02ds", total/60, total%60)
}
