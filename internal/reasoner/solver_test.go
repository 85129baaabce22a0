package reasoner

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"archon/internal/config"
	"archon/internal/conversation"
	"archon/internal/escalation"
	"archon/internal/provider"
)

// fakeChat lets each test script the upstream behavior per call.
type fakeChat struct {
	calls int
	fn    func(call int, systemPrompt string, chain []provider.ChatMessage) (string, error)
}

func (f *fakeChat) Complete(ctx context.Context, credential, systemPrompt string, chain []provider.ChatMessage) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	f.calls++
	return f.fn(f.calls, systemPrompt, chain)
}

const testCredential = "valid-test-key-12345"

func fastPolicy() *escalation.Policy {
	return escalation.NewPolicy(escalation.Config{
		MaxRetries:       3,
		FailureThreshold: 2,
		BackoffBase:      time.Millisecond,
		BackoffJitter:    time.Millisecond,
		BackoffMax:       10 * time.Millisecond,
	})
}

func newTestSolver(chat ChatCompleter, log *conversation.Log) *Solver {
	return NewSolver(chat, fastPolicy(), log, nil, config.FastTimeouts())
}

func TestSolve_TwoPhases_Complete(t *testing.T) {
	chat := &fakeChat{fn: func(call int, systemPrompt string, chain []provider.ChatMessage) (string, error) {
		switch call {
		case 1:
			if !strings.Contains(systemPrompt, "analysis stage") {
				t.Errorf("First call should carry the thinking instruction, got %q", systemPrompt)
			}
			return `{"summary": "Simple arithmetic.", "steps": ["Add the numbers"]}`, nil
		case 2:
			if !strings.Contains(systemPrompt, "answer stage") {
				t.Errorf("Second call should carry the solution instruction, got %q", systemPrompt)
			}
			// The analysis must be folded into the chain
			found := false
			for _, m := range chain {
				if m.Role == "assistant" && strings.Contains(m.Content, "Simple arithmetic.") {
					found = true
				}
			}
			if !found {
				t.Error("Solution chain should include the thinking-phase output")
			}
			return "4", nil
		}
		t.Fatalf("Unexpected call %d", call)
		return "", nil
	}}

	var thoughts []ThoughtUpdate
	result, err := newTestSolver(chat, conversation.NewLog()).Solve(
		context.Background(), "What is 2+2?", testCredential, nil,
		func(u ThoughtUpdate) { thoughts = append(thoughts, u) })
	if err != nil {
		t.Fatalf("Solve failed: %v", err)
	}

	if result.Outcome != OutcomeComplete {
		t.Fatalf("Expected complete, got %s", result.Outcome)
	}
	if result.Content != "4" {
		t.Errorf("Expected content 4, got %q", result.Content)
	}
	if !strings.Contains(result.Reasoning, "Simple arithmetic.") {
		t.Errorf("Expected reasoning from thinking phase, got %q", result.Reasoning)
	}
	if chat.calls != 2 {
		t.Errorf("Expected exactly 2 upstream calls, got %d", chat.calls)
	}
	if len(thoughts) < 1 || thoughts[0].Phase != "thinking" {
		t.Errorf("Expected a thinking thought first, got %+v", thoughts)
	}
	if len(result.Thoughts) != len(thoughts) {
		t.Errorf("Result.Thoughts should mirror delivered thoughts")
	}
}

func TestSolve_MissingCredential_NoCall(t *testing.T) {
	chat := &fakeChat{fn: func(int, string, []provider.ChatMessage) (string, error) {
		t.Fatal("No network call should happen without a credential")
		return "", nil
	}}

	_, err := newTestSolver(chat, nil).Solve(context.Background(), "hi", "", nil, nil)
	if !errors.Is(err, config.ErrCredentialMissing) {
		t.Errorf("Expected ErrCredentialMissing, got %v", err)
	}
}

func TestSolve_MalformedCredential_NoCall(t *testing.T) {
	chat := &fakeChat{fn: func(int, string, []provider.ChatMessage) (string, error) {
		t.Fatal("No network call should happen with a malformed credential")
		return "", nil
	}}

	_, err := newTestSolver(chat, nil).Solve(context.Background(), "hi", "short!", nil, nil)

	var credErr *config.CredentialFormatError
	if !errors.As(err, &credErr) {
		t.Errorf("Expected CredentialFormatError, got %v", err)
	}
}

func TestSolve_RejectedCredential_NoRetry(t *testing.T) {
	chat := &fakeChat{fn: func(int, string, []provider.ChatMessage) (string, error) {
		return "", &config.CredentialFormatError{
			Provider: config.ProviderReasoner,
			Reason:   "rejected by provider (status 401)",
		}
	}}

	_, err := newTestSolver(chat, nil).Solve(context.Background(), "hi", testCredential, nil, nil)

	var credErr *config.CredentialFormatError
	if !errors.As(err, &credErr) {
		t.Fatalf("Expected CredentialFormatError, got %v", err)
	}
	if chat.calls != 1 {
		t.Errorf("401 must not be retried; got %d calls", chat.calls)
	}
}

func TestSolve_TransientError_RetriesThenSucceeds(t *testing.T) {
	chat := &fakeChat{fn: func(call int, _ string, _ []provider.ChatMessage) (string, error) {
		if call <= 2 {
			return "", &provider.TransportError{Status: 503, Body: "overloaded"}
		}
		if call == 3 {
			return `{"summary": "ok", "steps": []}`, nil
		}
		return "answer", nil
	}}

	log := conversation.NewLog()
	result, err := newTestSolver(chat, log).Solve(context.Background(), "hi", testCredential, nil, nil)
	if err != nil {
		t.Fatalf("Solve failed: %v", err)
	}
	if result.Outcome != OutcomeComplete {
		t.Fatalf("Expected complete after retries, got %s", result.Outcome)
	}
	if chat.calls != 4 {
		t.Errorf("Expected 2 failures + 2 successes = 4 calls, got %d", chat.calls)
	}
}

func TestSolve_RetriesExhausted_Escalates(t *testing.T) {
	chat := &fakeChat{fn: func(int, string, []provider.ChatMessage) (string, error) {
		return "", &provider.TransportError{Status: 503, Body: "down"}
	}}

	result, err := newTestSolver(chat, nil).Solve(context.Background(), "hi", testCredential, nil, nil)
	if err != nil {
		t.Fatalf("Exhausted retries should escalate, not error: %v", err)
	}
	if result.Outcome != OutcomeEscalate {
		t.Fatalf("Expected escalate, got %s", result.Outcome)
	}
	if result.EscalationReason == "" {
		t.Error("Escalation reason must name the failure")
	}
	// MaxRetries=3: initial attempt + 3 retries, then the policy flips
	if chat.calls != 4 {
		t.Errorf("Expected 4 attempts before escalation, got %d", chat.calls)
	}
}

func TestSolve_Timeout_IsOutcomeNotError(t *testing.T) {
	chat := &fakeChat{fn: func(int, string, []provider.ChatMessage) (string, error) {
		time.Sleep(100 * time.Millisecond)
		return "", context.DeadlineExceeded
	}}

	timeouts := config.FastTimeouts()
	timeouts.SolveTimeout = 50 * time.Millisecond
	solver := NewSolver(chat, fastPolicy(), conversation.NewLog(), nil, timeouts)

	result, err := solver.Solve(context.Background(), "hi", testCredential, nil, nil)
	if err != nil {
		t.Fatalf("Timeout must be an outcome, not an error: %v", err)
	}
	if result.Outcome != OutcomeTimeout {
		t.Fatalf("Expected timeout outcome, got %s", result.Outcome)
	}
	if result.TimeoutReason == "" {
		t.Error("Timeout reason must be user-facing and non-empty")
	}
}

func TestSolve_EmptySolution_RetriedAsError(t *testing.T) {
	chat := &fakeChat{fn: func(call int, _ string, _ []provider.ChatMessage) (string, error) {
		if call == 1 {
			return `{"summary": "ok", "steps": []}`, nil
		}
		return "", provider.ErrEmptyResponse
	}}

	result, err := newTestSolver(chat, nil).Solve(context.Background(), "hi", testCredential, nil, nil)
	if err != nil {
		t.Fatalf("Expected escalation after empty responses, got error %v", err)
	}
	if result.Outcome != OutcomeEscalate {
		t.Fatalf("Expected escalate, got %s", result.Outcome)
	}
	if !strings.Contains(result.EscalationReason, "empty response") {
		t.Errorf("Reason should name the empty-response failure, got %q", result.EscalationReason)
	}
}

func TestSolve_TransientStatus_ReplacedNotAccumulated(t *testing.T) {
	chat := &fakeChat{fn: func(call int, _ string, _ []provider.ChatMessage) (string, error) {
		if call == 1 {
			return `{"summary": "thinking it through", "steps": ["a", "b"]}`, nil
		}
		return "done", nil
	}}

	log := conversation.NewLog()
	log.Append(conversation.User("hi"))

	_, err := newTestSolver(chat, log).Solve(context.Background(), "hi", testCredential, log.Snapshot(), nil)
	if err != nil {
		t.Fatalf("Solve failed: %v", err)
	}

	transients := 0
	for _, msg := range log.Snapshot() {
		if msg.Marker.Transient() {
			transients++
		}
	}
	if transients > 1 {
		t.Errorf("At most one transient status entry may be visible, found %d", transients)
	}
}

func TestBuildChain_RolesAndOrdering(t *testing.T) {
	prior := []conversation.Message{
		conversation.User("first question"),
		conversation.Reasoning("internal notes"),
		conversation.Answer("first answer"),
		conversation.System(conversation.MarkerThinking, "transient"),
		conversation.System(conversation.MarkerBanner, "banner"),
	}

	chain := buildChain(prior, "second question")

	want := []provider.ChatMessage{
		{Role: "user", Content: "first question"},
		{Role: "assistant", Content: "first answer"},
		{Role: "user", Content: "second question"},
	}
	if len(chain) != len(want) {
		t.Fatalf("Expected %d chain messages, got %d: %+v", len(want), len(chain), chain)
	}
	for i := range want {
		if chain[i] != want[i] {
			t.Errorf("chain[%d] = %+v, want %+v", i, chain[i], want[i])
		}
	}
}
