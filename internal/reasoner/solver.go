package reasoner

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"archon/internal/config"
	"archon/internal/conversation"
	"archon/internal/escalation"
	"archon/internal/logging"
	"archon/internal/provider"

	"github.com/google/uuid"
)

// ChatCompleter is the upstream call the solver drives. Satisfied by
// provider.ChatClient; tests substitute function-backed fakes.
type ChatCompleter interface {
	Complete(ctx context.Context, credential, systemPrompt string, chain []provider.ChatMessage) (string, error)
}

// System instructions for the two phases. The provider sees the same
// message chain both times; only the instruction differs.
const (
	thinkingInstruction = `You are the analysis stage of a two-stage assistant. Break the user's request down before answering.
Respond with a JSON object only: {"summary": "<one-sentence summary of your approach>", "steps": ["<step>", ...]}.
Do not produce the final answer yet.`

	solutionInstruction = `You are the answer stage of a two-stage assistant. The preceding assistant message is your own analysis of the request.
Respond with the complete, direct answer to the user's request. No meta-commentary about the analysis.`
)

// Solver runs the two-phase reasoning protocol.
type Solver struct {
	chat      ChatCompleter
	policy    *escalation.Policy
	log       *conversation.Log
	validator *config.Validator
	timeouts  config.Timeouts
}

// NewSolver wires a Solver. log may be nil when no transient status
// surface exists (one-shot CLI use).
func NewSolver(chat ChatCompleter, policy *escalation.Policy, log *conversation.Log, validator *config.Validator, timeouts config.Timeouts) *Solver {
	if validator == nil {
		validator = config.NewValidator(nil)
	}
	return &Solver{
		chat:      chat,
		policy:    policy,
		log:       log,
		validator: validator,
		timeouts:  timeouts,
	}
}

// phaseOutcome is the internal result of one bounded-retry phase.
type phaseOutcome struct {
	text           string
	escalateReason string
	timedOut       bool
	err            error
}

// Solve runs the thinking phase then the solution phase against the
// primary reasoner. prior is the current log snapshot; message is the
// user's request. Credential problems and exhausted retries return a
// non-nil error; timeout and escalation are Result outcomes, not errors.
func (s *Solver) Solve(ctx context.Context, message, credential string, prior []conversation.Message, onThought ThoughtFunc) (*Result, error) {
	if err := s.validator.Validate(config.ProviderReasoner, credential); err != nil {
		return nil, err
	}

	reqID := uuid.NewString()[:8]
	rlog := logging.WithRequestID(logging.CategoryReasoner, reqID)
	timer := logging.StartTimer(logging.CategoryReasoner, "solve "+reqID)
	defer timer.Stop()

	// One wall-clock budget for both phases and all backoff between them.
	solveCtx, cancel := context.WithTimeout(ctx, s.timeouts.SolveTimeout)
	defer cancel()

	result := &Result{}
	emit := func(update ThoughtUpdate) {
		result.Thoughts = append(result.Thoughts, update)
		if onThought != nil {
			onThought(update)
		}
	}

	chain := buildChain(prior, message)

	// Phase 1: thinking
	s.setTransient(conversation.MarkerThinking, "Analyzing the request...")
	rlog.Info("thinking phase: %d chain messages", len(chain))

	thinking := s.callPhase(solveCtx, "thinking", message, credential, thinkingInstruction, chain, prior)
	if out, done, err := s.terminal(thinking, "thinking", result); done {
		return out, err
	}

	thought := parseThought(thinking.text)
	emit(thought)
	s.setTransient(conversation.MarkerThinking, thought.Text)

	// Phase 2: solution, with the analysis folded into the chain
	solutionChain := append(append([]provider.ChatMessage{}, chain...),
		provider.ChatMessage{Role: "assistant", Content: thought.Text},
		provider.ChatMessage{Role: "user", Content: "Now give the complete answer."},
	)

	s.setTransient(conversation.MarkerThinking, "Composing the answer...")
	rlog.Info("solution phase")

	solution := s.callPhase(solveCtx, "solution", message, credential, solutionInstruction, solutionChain, prior)
	if out, done, err := s.terminal(solution, "solution", result); done {
		return out, err
	}

	emit(ThoughtUpdate{Phase: "solution", Text: "Answer ready.", At: time.Now()})

	result.Outcome = OutcomeComplete
	result.Content = solution.text
	result.Reasoning = thought.Text
	rlog.Info("complete: %d chars", len(result.Content))
	return result, nil
}

// terminal folds a phase outcome into a terminal Result when the phase
// did not produce text. done reports whether the solve is over.
func (s *Solver) terminal(p phaseOutcome, phase string, result *Result) (out *Result, done bool, err error) {
	switch {
	case p.timedOut:
		result.Outcome = OutcomeTimeout
		result.TimeoutReason = fmt.Sprintf(
			"The %s phase did not finish within %s. You can retry, or escalate to the architect for a second opinion.",
			phase, s.timeouts.SolveTimeout)
		logging.Reasoner("timeout in %s phase after %s", phase, s.timeouts.SolveTimeout)
		return result, true, nil

	case p.escalateReason != "":
		result.Outcome = OutcomeEscalate
		result.EscalationReason = p.escalateReason
		return result, true, nil

	case p.err != nil:
		logging.ReasonerError("%s phase failed: %v", phase, p.err)
		return nil, true, fmt.Errorf("%s phase: %w", phase, p.err)
	}
	return nil, false, nil
}

// callPhase runs one phase in a bounded-attempt retry loop. Failures
// are classified by the policy: retry with backoff, escalate, or give
// up. The overall deadline expiring is reported as a timeout and does
// not consume a retry.
func (s *Solver) callPhase(ctx context.Context, phase, message, credential, instruction string, chain []provider.ChatMessage, history []conversation.Message) phaseOutcome {
	retryCount := 0
	var lastErr error

	for attempt := 0; attempt <= s.policy.MaxRetries(); attempt++ {
		text, err := s.chat.Complete(ctx, credential, instruction, chain)
		if err == nil {
			return phaseOutcome{text: text}
		}
		lastErr = err

		if deadlineExpired(ctx, err) {
			return phaseOutcome{timedOut: true}
		}
		if !provider.Retryable(err) {
			return phaseOutcome{err: err}
		}

		decision := s.policy.Decide(message, provider.ErrKind(err), retryCount, history)
		if decision.ShouldEscalate {
			return phaseOutcome{escalateReason: decision.Reason}
		}

		retryCount = decision.RetryCount
		delay := s.policy.RetryDelay(retryCount - 1)
		s.setTransient(conversation.MarkerRetry,
			fmt.Sprintf("Hit a snag (%s). Retrying in %s...", provider.ErrKind(err), delay.Round(time.Millisecond)))
		logging.Reasoner("%s phase retry %d after %s: %v", phase, retryCount, delay, err)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return phaseOutcome{timedOut: true}
			}
			return phaseOutcome{err: ctx.Err()}
		}
	}

	return phaseOutcome{err: fmt.Errorf("retries exhausted: %w", lastErr)}
}

// deadlineExpired reports whether the failure is the solve budget
// running out rather than an upstream problem.
func deadlineExpired(ctx context.Context, err error) bool {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// setTransient updates the in-progress status entry when a log is wired.
func (s *Solver) setTransient(marker conversation.Marker, text string) {
	if s.log != nil {
		s.log.SetTransient(marker, text)
	}
}

// buildChain converts the persisted conversation into the provider's
// role/content shape, ending with the current request. System entries
// and transient status messages never reach the provider.
func buildChain(prior []conversation.Message, message string) []provider.ChatMessage {
	chain := make([]provider.ChatMessage, 0, len(prior)+1)
	for _, msg := range prior {
		if !msg.Valid() || msg.Marker.Transient() {
			continue
		}
		switch msg.Kind {
		case conversation.KindUser:
			chain = append(chain, provider.ChatMessage{Role: "user", Content: msg.Text})
		case conversation.KindAnswer:
			chain = append(chain, provider.ChatMessage{Role: "assistant", Content: msg.Text})
		}
		// Reasoning and system entries stay local.
	}

	if n := len(chain); n == 0 || chain[n-1].Role != "user" || chain[n-1].Content != message {
		if strings.TrimSpace(message) != "" {
			chain = append(chain, provider.ChatMessage{Role: "user", Content: message})
		}
	}
	return chain
}
