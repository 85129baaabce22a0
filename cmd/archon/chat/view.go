package chat

import (
	"fmt"
	"strings"

	"archon/internal/conversation"
)

func (m Model) View() string {
	if !m.ready {
		return "starting..."
	}

	header := m.styles.Header.Width(m.width).Render("archon")
	footer := m.styles.Footer.Width(m.width).Render(statusLine(m))

	return fmt.Sprintf("%s\n%s\n%s\n%s",
		header,
		m.viewport.View(),
		m.textarea.View(),
		footer,
	)
}

// renderHistory renders the session log for the viewport.
func (m Model) renderHistory() string {
	var b strings.Builder
	for _, msg := range m.sess.Messages() {
		rendered := m.renderMessage(msg)
		if rendered == "" {
			continue
		}
		b.WriteString(rendered)
		b.WriteString("\n\n")
	}
	if m.status != "" && !m.isLoading {
		b.WriteString(m.styles.Muted.Render(m.status))
		b.WriteString("\n")
	}
	return b.String()
}

func (m Model) renderMessage(msg conversation.Message) string {
	switch msg.Kind {
	case conversation.KindUser:
		return m.styles.Prompt.Render("You: ") + m.styles.UserInput.Render(msg.Text)

	case conversation.KindReasoning:
		return m.styles.Reasoning.Render("thinking: " + msg.Text)

	case conversation.KindAnswer:
		body := msg.Text
		if m.renderer != nil {
			if out, err := m.renderer.Render(msg.Text); err == nil {
				body = strings.TrimRight(out, "\n")
			}
		}
		if msg.Marker == conversation.MarkerReview {
			return m.styles.Architect.Render(body)
		}
		return m.styles.AgentResponse.Render(body)

	case conversation.KindSystem:
		switch msg.Marker {
		case conversation.MarkerBanner:
			return m.styles.Subtitle.Render(msg.Text)
		case conversation.MarkerThinking, conversation.MarkerRetry:
			return m.styles.Muted.Render(msg.Text)
		case conversation.MarkerTimeout, conversation.MarkerError:
			return m.styles.Error.Render(msg.Text)
		case conversation.MarkerEscalation:
			return m.styles.Warning.Render(msg.Text)
		case conversation.MarkerRevision:
			return m.styles.Info.Render(msg.Text)
		default:
			return m.styles.SystemNotice.Render(msg.Text)
		}
	}
	return ""
}
