package reviewer

import (
	"context"
	"fmt"
	"strings"

	"archon/internal/config"
	"archon/internal/conversation"
	"archon/internal/logging"
)

// Generator is the upstream call the reviewer drives. Satisfied by
// provider.GeminiClient; tests substitute function-backed fakes.
type Generator interface {
	Generate(ctx context.Context, credential, prompt string) (string, error)
}

const reviewInstruction = `You are a senior software architect reviewing another assistant's work.
Respond with a JSON object only, no prose, no markdown fence:
{"criticalIssues": ["..."], "potentialProblems": ["..."], "improvements": ["..."], "verdict": "APPROVED" or "NEEDS_REVISION"}
Critical issues are problems that make the solution wrong or unusable. Use empty lists when a category has nothing.`

const solveInstruction = `You are a senior software architect asked to solve the user's request yourself.
Respond with a JSON object only, no prose, no markdown fence:
{"criticalIssues": ["..."], "potentialProblems": ["..."], "improvements": ["..."], "verdict": "APPROVED" or "NEEDS_REVISION", "solution": "..."}
Always include a solution, even a partial one. Critique your own solution in the list fields.`

// Client drives the architect reviewer. Review never returns an error:
// every failure becomes a degraded NEEDS_REVISION result so the caller
// always has something to show.
type Client struct {
	gen       Generator
	validator *config.Validator
	timeouts  config.Timeouts
}

// NewClient wires a reviewer Client.
func NewClient(gen Generator, validator *config.Validator, timeouts config.Timeouts) *Client {
	if validator == nil {
		validator = config.NewValidator(nil)
	}
	return &Client{gen: gen, validator: validator, timeouts: timeouts}
}

// Review asks the architect to critique (ModeReview) or independently
// solve (ModeSolve) based on the conversation so far.
func (c *Client) Review(ctx context.Context, messages []conversation.Message, credential string, mode Mode) *Result {
	mctx := conversation.DeriveContext(messages)
	fallback := latestAnswer(mctx.RelevantHistory)

	if err := c.validator.Validate(config.ProviderReviewer, credential); err != nil {
		logging.ReviewerWarn("credential unusable: %v", err)
		return degraded(fmt.Sprintf("Architect unavailable: %v", err), mode, fallback)
	}

	callCtx, cancel := context.WithTimeout(ctx, c.timeouts.ReviewTimeout)
	defer cancel()

	prompt := buildPrompt(mctx, mode)
	logging.Reviewer("%s mode, %d history entries, prompt %d chars", mode, len(mctx.RelevantHistory), len(prompt))

	raw, err := c.gen.Generate(callCtx, credential, prompt)
	if err != nil {
		logging.ReviewerWarn("generate failed: %v", err)
		return degraded(fmt.Sprintf("Architect call failed: %v", err), mode, fallback)
	}

	decoded := decode(raw, mode, fallback)
	if decoded.Status != DecodeOK {
		logging.Reviewer("decode %s: %s", decoded.Status, strings.Join(decoded.Notes, "; "))
	}

	result := decoded.Result

	// The scan target is whatever code the verdict is about: the
	// architect's own solution in solve mode, the reviewed answer
	// otherwise.
	content := result.Solution
	if mode == ModeReview {
		content = fallback
	}
	c.applyHeuristics(&result, content)
	return &result
}

// applyHeuristics merges the static code-quality scan into the result,
// forcing NEEDS_REVISION when a critical heuristic fires.
func (c *Client) applyHeuristics(result *Result, content string) {
	if content == "" {
		return
	}

	report := scanContent(content)
	if len(report.critical) == 0 && len(report.potential) == 0 {
		return
	}

	logging.Reviewer("heuristics: %d critical, %d potential", len(report.critical), len(report.potential))

	if len(report.critical) > 0 {
		result.CriticalIssues = mergeFindings(result.CriticalIssues, report.critical, noCriticalPlaceholder)
		result.Verdict = VerdictNeedsRevision
	}
	if len(report.potential) > 0 {
		result.PotentialProblems = mergeFindings(result.PotentialProblems, report.potential, noPotentialPlaceholder)
	}
}

// mergeFindings appends heuristic hits, displacing the placeholder if
// it was the only entry.
func mergeFindings(existing, findings []string, placeholder string) []string {
	if len(existing) == 1 && existing[0] == placeholder {
		existing = nil
	}
	return append(existing, findings...)
}

// degraded builds the result used when the architect cannot be reached
// at all.
func degraded(reason string, mode Mode, fallback string) *Result {
	d := failedDecode(reason, mode, fallback)
	return &d.Result
}

// buildPrompt formats the transcript the architect sees: original
// question, current question, then the full chronological history with
// role labels.
func buildPrompt(mctx conversation.MessageContext, mode Mode) string {
	var b strings.Builder

	if mode == ModeSolve {
		b.WriteString(solveInstruction)
	} else {
		b.WriteString(reviewInstruction)
	}
	b.WriteString("\n\n")

	if mctx.OriginalQuestion != "" {
		b.WriteString("ORIGINAL QUESTION:\n")
		b.WriteString(mctx.OriginalQuestion)
		b.WriteString("\n\n")
	}
	if mctx.LastUserMessage != nil && mctx.LastUserMessage.Text != mctx.OriginalQuestion {
		b.WriteString("CURRENT QUESTION:\n")
		b.WriteString(mctx.LastUserMessage.Text)
		b.WriteString("\n\n")
	}

	b.WriteString("CONVERSATION:\n")
	for _, msg := range mctx.RelevantHistory {
		b.WriteString(roleLabel(msg))
		b.WriteString(": ")
		b.WriteString(msg.Text)
		b.WriteString("\n")
	}

	return b.String()
}

func roleLabel(msg conversation.Message) string {
	switch msg.Kind {
	case conversation.KindUser:
		return "USER"
	case conversation.KindReasoning:
		return "ASSISTANT (reasoning)"
	case conversation.KindAnswer:
		if msg.Marker == conversation.MarkerReview {
			return "ARCHITECT"
		}
		return "ASSISTANT"
	default:
		return "SYSTEM"
	}
}

// latestAnswer returns the most recent answer text in history, used to
// backfill a missing solve-mode solution.
func latestAnswer(history []conversation.Message) string {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Kind == conversation.KindAnswer {
			return history[i].Text
		}
	}
	return ""
}
