package chat

import (
	"context"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"archon/internal/config"
)

const helpText = `Commands:
  /new               start a new topic (resets the conversation)
  /escalate          hand the current question to the architect
  /review            ask the architect to critique the latest answer
  /revise <notes>    request a revision of the latest answer
  /speech on|off     toggle spoken answers
  /keys              show which provider keys are configured
  /help              this help
  /quit              exit`

// handleCommand dispatches one slash command.
func (m Model) handleCommand(text string) (tea.Model, tea.Cmd) {
	fields := strings.Fields(text)
	cmd := fields[0]
	args := fields[1:]

	switch cmd {
	case "/quit", "/exit":
		return m, tea.Quit

	case "/help":
		m.status = ""
		m.err = nil
		return m, func() tea.Msg { return noticeMsg(helpText) }

	case "/new":
		// Cancel any in-flight call so a late result cannot land after
		// the reset.
		if m.callCancel != nil {
			m.callCancel()
			m.callCancel = nil
		}
		m.isLoading = false
		if err := m.sess.NewTopic(); err != nil {
			m.err = err
			return m, nil
		}
		m.err = nil
		m.viewport.SetContent(m.renderHistory())
		return m, func() tea.Msg { return noticeMsg("New topic started.") }

	case "/escalate":
		if m.isLoading {
			return m, nil
		}
		ctx, cancel := context.WithCancel(context.Background())
		m.callCancel = cancel
		m.isLoading = true
		m.status = "Consulting the architect..."
		sess := m.sess
		return m, tea.Batch(m.spinner.Tick, func() tea.Msg {
			turn, err := sess.Escalate(ctx)
			return turnMsg{turn: turn, err: err}
		}, m.refreshWhileLoading())

	case "/review":
		if m.isLoading {
			return m, nil
		}
		ctx, cancel := context.WithCancel(context.Background())
		m.callCancel = cancel
		m.isLoading = true
		m.status = "Requesting an architect review..."
		sess := m.sess
		return m, tea.Batch(m.spinner.Tick, func() tea.Msg {
			turn, err := sess.RequestReview(ctx)
			return turnMsg{turn: turn, err: err}
		}, m.refreshWhileLoading())

	case "/revise":
		if m.isLoading {
			return m, nil
		}
		var improvements []string
		if notes := strings.TrimSpace(strings.TrimPrefix(text, "/revise")); notes != "" {
			for _, line := range strings.Split(notes, ";") {
				if line = strings.TrimSpace(line); line != "" {
					improvements = append(improvements, line)
				}
			}
		}
		ctx, cancel := context.WithCancel(context.Background())
		m.callCancel = cancel
		m.isLoading = true
		m.status = "Revising..."
		sess := m.sess
		return m, tea.Batch(m.spinner.Tick, func() tea.Msg {
			turn, err := sess.RequestRevision(ctx, improvements, nil)
			return turnMsg{turn: turn, err: err}
		}, m.refreshWhileLoading())

	case "/speech":
		if len(args) != 1 || (args[0] != "on" && args[0] != "off") {
			return m, func() tea.Msg { return noticeMsg("usage: /speech on|off") }
		}
		m.cfg.SpeechEnabled = args[0] == "on"
		m.sess.UpdateConfig(m.cfg)
		if err := m.cfg.Save(config.DefaultUserConfigPath()); err != nil {
			m.err = err
			return m, nil
		}
		return m, func() tea.Msg { return noticeMsg("Speech " + args[0] + ".") }

	case "/keys":
		return m, func() tea.Msg { return noticeMsg(describeKeys(m.cfg)) }

	default:
		return m, func() tea.Msg {
			return noticeMsg(fmt.Sprintf("Unknown command %s. Try /help.", cmd))
		}
	}
}

// describeKeys reports which provider credentials are configured,
// masked.
func describeKeys(cfg *config.UserConfig) string {
	var b strings.Builder
	b.WriteString("Configured keys:\n")
	for _, p := range []config.Provider{config.ProviderReasoner, config.ProviderReviewer, config.ProviderSpeech} {
		key := cfg.Credential(p)
		fmt.Fprintf(&b, "  %-10s %s\n", p, maskKey(key))
	}
	b.WriteString("Use `archon keys set` to change them.")
	return b.String()
}

func maskKey(key string) string {
	if key == "" {
		return "(not set)"
	}
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "..." + key[len(key)-4:]
}
