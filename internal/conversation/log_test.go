package conversation

import (
	"testing"
)

func TestLogAppendAndSnapshot(t *testing.T) {
	l := NewLog()
	l.Append(User("hello"))
	l.Append(Answer("hi"))

	snap := l.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("Snapshot length = %d, want 2", len(snap))
	}

	// Mutating the snapshot must not touch the log
	snap[0].Text = "mutated"
	again := l.Snapshot()
	if again[0].Text != "hello" {
		t.Error("Snapshot is not isolated from the log")
	}
}

func TestLogTransientReplacedNotAccumulated(t *testing.T) {
	l := NewLogWithBanner("welcome")
	l.Append(User("question"))

	l.SetTransient(MarkerThinking, "Thinking...")
	l.SetTransient(MarkerThinking, "Still thinking...")
	l.SetTransient(MarkerRetry, "Retrying (attempt 1)...")

	if l.Len() != 3 {
		t.Fatalf("Log length = %d, want 3 (banner, user, one transient)", l.Len())
	}

	last, ok := l.Last()
	if !ok {
		t.Fatal("Expected a last entry")
	}
	if last.Marker != MarkerRetry || last.Text != "Retrying (attempt 1)..." {
		t.Errorf("Trailing transient = %s %q, want retry marker with latest text", last.Marker, last.Text)
	}
}

func TestLogClearTransient(t *testing.T) {
	l := NewLog()
	l.Append(User("question"))
	l.SetTransient(MarkerThinking, "Thinking...")

	l.ClearTransient()
	if l.Len() != 1 {
		t.Errorf("Log length after clear = %d, want 1", l.Len())
	}

	// Clearing with no trailing transient is a no-op
	l.ClearTransient()
	if l.Len() != 1 {
		t.Errorf("Second clear changed length to %d", l.Len())
	}
}

func TestLogTransientNotReplacedAfterTerminal(t *testing.T) {
	l := NewLog()
	l.Append(User("question"))
	l.SetTransient(MarkerThinking, "Thinking...")
	l.ClearTransient()
	l.Append(Answer("the answer"))

	// A new transient after a terminal entry appends, never overwrites
	l.SetTransient(MarkerThinking, "Thinking about the follow-up...")
	snap := l.Snapshot()
	if len(snap) != 3 {
		t.Fatalf("Log length = %d, want 3", len(snap))
	}
	if snap[1].Kind != KindAnswer {
		t.Error("Answer entry was overwritten by a transient")
	}
}

func TestLogResetToBanner(t *testing.T) {
	l := NewLogWithBanner("welcome")
	l.Append(User("q1"))
	l.Append(Answer("a1"))
	l.Append(User("q2"))

	l.Reset()
	snap := l.Snapshot()
	if len(snap) != 1 {
		t.Fatalf("Log length after reset = %d, want 1", len(snap))
	}
	if snap[0].Marker != MarkerBanner {
		t.Errorf("Surviving entry marker = %s, want banner", snap[0].Marker)
	}
}

func TestLogResetWithoutBanner(t *testing.T) {
	l := NewLog()
	l.Append(User("q"))
	l.Append(Answer("a"))

	l.Reset()
	if l.Len() != 0 {
		t.Errorf("Log length after reset = %d, want 0", l.Len())
	}
}

func TestLogReplace(t *testing.T) {
	l := NewLogWithBanner("welcome")
	restored := []Message{
		System(MarkerBanner, "welcome back"),
		User("restored question"),
		Answer("restored answer"),
	}

	l.Replace(restored)
	snap := l.Snapshot()
	if len(snap) != 3 {
		t.Fatalf("Log length = %d, want 3", len(snap))
	}
	if snap[1].Text != "restored question" {
		t.Errorf("Replace did not install entries: %q", snap[1].Text)
	}

	// The log must own its copy
	restored[1].Text = "mutated"
	if l.Snapshot()[1].Text != "restored question" {
		t.Error("Replace did not copy its input")
	}
}

func TestKindAndMarkerRoundTrip(t *testing.T) {
	kinds := []Kind{KindUser, KindReasoning, KindAnswer, KindSystem}
	for _, k := range kinds {
		parsed, ok := ParseKind(k.String())
		if !ok || parsed != k {
			t.Errorf("ParseKind(%q) = %v, %v", k.String(), parsed, ok)
		}
	}
	if _, ok := ParseKind("bogus"); ok {
		t.Error("ParseKind accepted bogus input")
	}

	markers := []Marker{
		MarkerBanner, MarkerThinking, MarkerRetry, MarkerEscalation,
		MarkerTimeout, MarkerError, MarkerRevision, MarkerReview,
	}
	for _, m := range markers {
		if parsed := ParseMarker(m.String()); parsed != m {
			t.Errorf("ParseMarker(%q) = %v, want %v", m.String(), parsed, m)
		}
	}
	if ParseMarker("bogus") != MarkerNone {
		t.Error("ParseMarker should map unknown input to MarkerNone")
	}
}
