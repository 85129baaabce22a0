// Package chat implements the interactive TUI around a session.
package chat

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"

	"archon/cmd/archon/ui"
	"archon/internal/config"
	"archon/internal/session"
)

// Messages for tea updates.
type (
	turnMsg struct {
		turn *session.TurnResult
		err  error
	}
	noticeMsg string
)

// Model is the main model for the interactive chat interface.
type Model struct {
	textarea textarea.Model
	viewport viewport.Model
	spinner  spinner.Model
	styles   ui.Styles
	renderer *glamour.TermRenderer

	sess *session.Session
	cfg  *config.UserConfig

	isLoading bool
	status    string
	err       error
	width     int
	height    int
	ready     bool

	// Per-call context, cancelled on /new so late results are dropped.
	callCancel context.CancelFunc
}

// New builds the chat model around an existing session.
func New(sess *session.Session, cfg *config.UserConfig) Model {
	styles := ui.DefaultStyles()
	if cfg.Theme == "dark" {
		styles = ui.NewStyles(ui.DarkTheme())
	} else if cfg.Theme == "light" {
		styles = ui.NewStyles(ui.LightTheme())
	}

	ta := textarea.New()
	ta.Placeholder = "Ask me anything... (Enter to send, /help for commands)"
	ta.Focus()
	ta.Prompt = "│ "
	ta.CharLimit = 8192
	ta.SetWidth(80)
	ta.SetHeight(3)
	ta.ShowLineNumbers = false

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = styles.Spinner

	vp := viewport.New(80, 20)

	var renderer *glamour.TermRenderer
	if styles.Theme.IsDark {
		renderer, _ = glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(80))
	} else {
		renderer, _ = glamour.NewTermRenderer(glamour.WithStylePath("light"), glamour.WithWordWrap(80))
	}

	m := Model{
		textarea: ta,
		viewport: vp,
		spinner:  sp,
		styles:   styles,
		renderer: renderer,
		sess:     sess,
		cfg:      cfg,
	}
	m.viewport.SetContent(m.renderHistory())
	return m
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(textarea.Blink, m.spinner.Tick)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var (
		taCmd tea.Cmd
		vpCmd tea.Cmd
		spCmd tea.Cmd
	)

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit

		case tea.KeyEnter:
			// Shift-free Enter sends; a trailing backslash continues the line.
			if m.isLoading {
				return m, nil
			}
			text := strings.TrimSpace(m.textarea.Value())
			if text == "" {
				return m, nil
			}
			if strings.HasSuffix(text, "\\") {
				break
			}
			m.textarea.Reset()
			return m.handleSubmit(text)
		}

		if !m.isLoading {
			m.textarea, taCmd = m.textarea.Update(msg)
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

		headerHeight := 2
		footerHeight := 2
		inputHeight := 4

		if !m.ready {
			m.viewport = viewport.New(msg.Width-4, msg.Height-headerHeight-footerHeight-inputHeight)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width - 4
			m.viewport.Height = msg.Height - headerHeight - footerHeight - inputHeight
		}
		m.textarea.SetWidth(msg.Width - 4)

		if m.renderer != nil {
			m.renderer, _ = glamour.NewTermRenderer(
				glamour.WithAutoStyle(),
				glamour.WithWordWrap(msg.Width-8),
			)
		}
		m.viewport.SetContent(m.renderHistory())
		m.viewport.GotoBottom()

	case spinner.TickMsg:
		if m.isLoading {
			m.spinner, spCmd = m.spinner.Update(msg)
			return m, spCmd
		}

	case turnMsg:
		m.isLoading = false
		m.status = ""
		m.callCancel = nil
		if msg.err != nil {
			m.err = msg.err
		} else {
			m.err = nil
		}
		m.viewport.SetContent(m.renderHistory())
		m.viewport.GotoBottom()

	case noticeMsg:
		if s := string(msg); s != "" {
			m.status = s
		}
		m.viewport.SetContent(m.renderHistory())
		m.viewport.GotoBottom()
		if m.isLoading {
			return m, m.refreshWhileLoading()
		}
	}

	m.viewport, vpCmd = m.viewport.Update(msg)
	return m, tea.Batch(taCmd, vpCmd, spCmd)
}

// handleSubmit routes slash commands or sends a user message.
func (m Model) handleSubmit(text string) (tea.Model, tea.Cmd) {
	if strings.HasPrefix(text, "/") {
		return m.handleCommand(text)
	}

	ctx, cancel := context.WithCancel(context.Background())
	m.callCancel = cancel
	m.isLoading = true
	m.err = nil
	m.status = "Thinking..."

	sess := m.sess
	send := func() tea.Msg {
		turn, err := sess.Send(ctx, text, nil)
		return turnMsg{turn: turn, err: err}
	}
	return m, tea.Batch(m.spinner.Tick, send, m.refreshWhileLoading())
}

// refreshWhileLoading re-renders the viewport periodically so transient
// status entries (thinking, retrying) show up while a call is active.
func (m Model) refreshWhileLoading() tea.Cmd {
	return tea.Tick(300*time.Millisecond, func(time.Time) tea.Msg {
		return noticeMsg("")
	})
}

func statusLine(m Model) string {
	if m.isLoading {
		return fmt.Sprintf("%s %s", m.spinner.View(), m.status)
	}
	if m.err != nil {
		return m.styles.Error.Render(fmt.Sprintf("error: %v", m.err))
	}
	return m.styles.Muted.Render("Enter to send · /help for commands · Ctrl+C to quit")
}
