package conversation

import (
	"strings"
	"time"

	"archon/internal/logging"
)

// MessageContext is the normalized view of a log snapshot that every
// orchestration step works from. It is derived, never stored, and
// rebuilt from scratch on each call.
type MessageContext struct {
	// OriginalQuestion is the text of the first user entry, or "".
	OriginalQuestion string

	// LastUserMessage points at a copy of the most recent user entry,
	// nil when the log has none.
	LastUserMessage *Message

	// RelevantHistory is the valid, non-transient entries in order.
	RelevantHistory []Message

	// HasFailedAttempts is set when any system entry records a
	// failure-class condition.
	HasFailedAttempts bool

	// Counts carries debug statistics over the valid entries.
	Counts struct {
		Total int
		User  int
	}

	// Dropped is the number of structurally invalid entries filtered
	// out before derivation.
	Dropped int

	ProcessedAt time.Time
}

// failureSubstrings is the fallback scan for system entries rehydrated
// from history persisted before markers existed.
var failureSubstrings = []string{
	"error",
	"failed",
	"failure",
	"unable",
	"retry",
	"retrying",
	"timed out",
	"timeout",
	"escalat",
}

func textLooksFailed(text string) bool {
	lower := strings.ToLower(text)
	for _, s := range failureSubstrings {
		if strings.Contains(lower, s) {
			return true
		}
	}
	return false
}

// DeriveContext builds a MessageContext from a message sequence. It is
// a pure function of its input: malformed entries are filtered (and
// counted in Dropped) rather than causing a failure, and an empty or
// fully invalid input produces a well-defined empty context.
func DeriveContext(messages []Message) MessageContext {
	ctx := MessageContext{ProcessedAt: time.Now()}

	for _, msg := range messages {
		if !msg.Valid() {
			ctx.Dropped++
			continue
		}

		ctx.Counts.Total++

		if msg.Kind == KindUser {
			ctx.Counts.User++
			if ctx.OriginalQuestion == "" {
				ctx.OriginalQuestion = msg.Text
			}
			last := msg
			ctx.LastUserMessage = &last
		}

		if msg.Kind == KindSystem {
			if msg.Marker.Failure() {
				ctx.HasFailedAttempts = true
			} else if msg.Marker == MarkerNone && textLooksFailed(msg.Text) {
				ctx.HasFailedAttempts = true
			}
		}

		if !msg.Marker.Transient() {
			ctx.RelevantHistory = append(ctx.RelevantHistory, msg)
		}
	}

	if ctx.Dropped > 0 {
		logging.Conversation("derive: dropped %d invalid entries (%d valid)", ctx.Dropped, ctx.Counts.Total)
	}

	return ctx
}
