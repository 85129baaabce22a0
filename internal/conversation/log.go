package conversation

import (
	"sync"

	"archon/internal/logging"
)

// Log is the ordered conversation record. It is append-only apart from
// two sanctioned mutations: replacing the trailing transient status
// entry, and truncating back to the banner on reset. A mutex serializes
// access so the speech worker and a late solver goroutine cannot
// interleave badly.
type Log struct {
	mu      sync.Mutex
	entries []Message
}

// NewLog returns an empty log.
func NewLog() *Log {
	return &Log{}
}

// NewLogWithBanner returns a log seeded with the session banner entry
// that reset truncates back to.
func NewLogWithBanner(text string) *Log {
	l := &Log{}
	l.entries = append(l.entries, System(MarkerBanner, text))
	return l
}

// Append adds an entry to the end of the log.
func (l *Log) Append(msg Message) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, msg)
	logging.Conversation("append %s/%s (%d chars), len=%d", msg.Kind, msg.Marker, len(msg.Text), len(l.entries))
}

// SetTransient replaces the trailing transient status entry, or appends
// one if none is trailing. At most one transient entry is ever visible.
func (l *Log) SetTransient(marker Marker, text string) {
	if !marker.Transient() {
		marker = MarkerThinking
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	msg := System(marker, text)
	if n := len(l.entries); n > 0 && l.entries[n-1].Marker.Transient() {
		l.entries[n-1] = msg
		return
	}
	l.entries = append(l.entries, msg)
}

// ClearTransient drops the trailing transient status entry if present.
// Called when a terminal outcome replaces the in-progress status.
func (l *Log) ClearTransient() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if n := len(l.entries); n > 0 && l.entries[n-1].Marker.Transient() {
		l.entries = l.entries[:n-1]
	}
}

// Reset truncates the log back to its first banner entry. A log without
// a banner is cleared entirely.
func (l *Log) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()

	for i, msg := range l.entries {
		if msg.Marker == MarkerBanner {
			l.entries = l.entries[:i+1]
			logging.Conversation("reset to banner, len=%d", len(l.entries))
			return
		}
	}
	l.entries = nil
	logging.Conversation("reset cleared log (no banner)")
}

// Replace swaps the full contents, used when rehydrating a persisted
// session.
func (l *Log) Replace(msgs []Message) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = make([]Message, len(msgs))
	copy(l.entries, msgs)
}

// Snapshot returns a copy of the current entries. Callers own the copy.
func (l *Log) Snapshot() []Message {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Message, len(l.entries))
	copy(out, l.entries)
	return out
}

// Len returns the number of entries.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Last returns the final entry, if any.
func (l *Log) Last() (Message, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.entries) == 0 {
		return Message{}, false
	}
	return l.entries[len(l.entries)-1], true
}
