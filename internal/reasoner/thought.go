package reasoner

import (
	"encoding/json"
	"strings"
	"time"
)

// defaultThoughtText stands in when the thinking phase returns
// something we cannot parse. The solve continues; a mangled breakdown
// is not worth failing the whole call over.
const defaultThoughtText = "Still analyzing the problem..."

// thoughtPayload is the loose shape the thinking instruction asks for.
type thoughtPayload struct {
	Summary string   `json:"summary"`
	Steps   []string `json:"steps"`
}

// parseThought turns raw thinking-phase output into a ThoughtUpdate.
// It accepts a JSON object (possibly fenced or surrounded by prose) or,
// failing that, uses the raw text itself; only blank output falls back
// to the default thought.
func parseThought(raw string) ThoughtUpdate {
	update := ThoughtUpdate{Phase: "thinking", At: time.Now()}

	if payload := extractJSON(raw); payload != "" {
		var tp thoughtPayload
		if err := json.Unmarshal([]byte(payload), &tp); err == nil && strings.TrimSpace(tp.Summary) != "" {
			var b strings.Builder
			b.WriteString(strings.TrimSpace(tp.Summary))
			for _, step := range tp.Steps {
				if step = strings.TrimSpace(step); step != "" {
					b.WriteString("\n- ")
					b.WriteString(step)
				}
			}
			update.Text = b.String()
			return update
		}
	}

	if text := strings.TrimSpace(raw); text != "" {
		update.Text = text
		return update
	}

	update.Text = defaultThoughtText
	return update
}

// extractJSON finds the first balanced JSON object in a response,
// tolerating markdown fences and surrounding prose.
func extractJSON(response string) string {
	start := strings.Index(response, "{")
	if start == -1 {
		return ""
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(response); i++ {
		c := response[i]
		if escaped {
			escaped = false
			continue
		}
		switch c {
		case '\\':
			if inString {
				escaped = true
			}
		case '"':
			inString = !inString
		case '{':
			if !inString {
				depth++
			}
		case '}':
			if !inString {
				depth--
				if depth == 0 {
					return response[start : i+1]
				}
			}
		}
	}

	return ""
}
