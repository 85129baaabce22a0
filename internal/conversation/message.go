// Package conversation holds the message log and context derivation at
// the center of archon's orchestration: typed conversation entries, an
// append-only log with transient status handling, and the pure
// DeriveContext snapshot used before every upstream call.
package conversation

import (
	"strings"
	"time"
)

// Kind is the closed set of conversation entry types.
type Kind int

const (
	KindUser Kind = iota
	KindReasoning
	KindAnswer
	KindSystem
)

// String returns the storage/display name of the kind.
func (k Kind) String() string {
	switch k {
	case KindUser:
		return "user"
	case KindReasoning:
		return "reasoning"
	case KindAnswer:
		return "answer"
	case KindSystem:
		return "system"
	default:
		return "unknown"
	}
}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	return k >= KindUser && k <= KindSystem
}

// ParseKind maps a storage name back to its Kind.
func ParseKind(s string) (Kind, bool) {
	switch s {
	case "user":
		return KindUser, true
	case "reasoning":
		return KindReasoning, true
	case "answer":
		return KindAnswer, true
	case "system":
		return KindSystem, true
	}
	return 0, false
}

// Marker categorizes system/status entries explicitly, so orchestration
// never has to sniff message text.
type Marker int

const (
	MarkerNone Marker = iota
	MarkerBanner
	MarkerThinking
	MarkerRetry
	MarkerEscalation
	MarkerTimeout
	MarkerError
	MarkerRevision
	MarkerReview
)

// String returns the storage name of the marker.
func (m Marker) String() string {
	switch m {
	case MarkerNone:
		return "none"
	case MarkerBanner:
		return "banner"
	case MarkerThinking:
		return "thinking"
	case MarkerRetry:
		return "retry"
	case MarkerEscalation:
		return "escalation"
	case MarkerTimeout:
		return "timeout"
	case MarkerError:
		return "error"
	case MarkerRevision:
		return "revision"
	case MarkerReview:
		return "review"
	default:
		return "none"
	}
}

// ParseMarker maps a storage name back to its Marker.
func ParseMarker(s string) Marker {
	switch s {
	case "banner":
		return MarkerBanner
	case "thinking":
		return MarkerThinking
	case "retry":
		return MarkerRetry
	case "escalation":
		return MarkerEscalation
	case "timeout":
		return MarkerTimeout
	case "error":
		return MarkerError
	case "revision":
		return MarkerRevision
	case "review":
		return MarkerReview
	}
	return MarkerNone
}

// Transient reports whether the marker denotes an in-progress status
// entry that is replaced in place rather than accumulated.
func (m Marker) Transient() bool {
	return m == MarkerThinking || m == MarkerRetry
}

// Failure reports whether the marker denotes a failed or degraded step.
func (m Marker) Failure() bool {
	switch m {
	case MarkerRetry, MarkerEscalation, MarkerTimeout, MarkerError:
		return true
	}
	return false
}

// Message is one conversation entry. Ordering in the log is significant
// and chronological.
type Message struct {
	Kind   Kind
	Marker Marker
	Text   string
	Time   time.Time
}

// Valid reports whether the entry is structurally sound: a known kind
// and non-blank text.
func (m Message) Valid() bool {
	return m.Kind.Valid() && strings.TrimSpace(m.Text) != ""
}

// User builds a user entry.
func User(text string) Message {
	return Message{Kind: KindUser, Text: text, Time: time.Now()}
}

// Reasoning builds a reasoning entry.
func Reasoning(text string) Message {
	return Message{Kind: KindReasoning, Text: text, Time: time.Now()}
}

// Answer builds an answer entry.
func Answer(text string) Message {
	return Message{Kind: KindAnswer, Text: text, Time: time.Now()}
}

// ReviewAnswer builds an answer entry produced by the architect reviewer.
func ReviewAnswer(text string) Message {
	return Message{Kind: KindAnswer, Marker: MarkerReview, Text: text, Time: time.Now()}
}

// System builds a system entry with an explicit marker.
func System(marker Marker, text string) Message {
	return Message{Kind: KindSystem, Marker: marker, Text: text, Time: time.Now()}
}
