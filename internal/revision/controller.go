// Package revision runs user-initiated revision rounds: a prior
// solution plus requested improvements is resubmitted through the
// primary reasoner, with a monotonically increasing round counter for
// labeling.
package revision

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"archon/internal/conversation"
	"archon/internal/logging"
	"archon/internal/reasoner"
)

// Solver is the slice of the reasoner the controller drives.
type Solver interface {
	Solve(ctx context.Context, message, credential string, prior []conversation.Message, onThought reasoner.ThoughtFunc) (*reasoner.Result, error)
}

// Controller owns the revision counter and the revision-round flow.
// The counter starts at 1, increments once per completed round, and is
// persisted with the session.
type Controller struct {
	log    *conversation.Log
	solver Solver

	mu    sync.Mutex
	count int
}

// NewController builds a Controller with the counter at 1.
func NewController(log *conversation.Log, solver Solver) *Controller {
	return &Controller{log: log, solver: solver, count: 1}
}

// Count returns the current revision counter.
func (c *Controller) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.count
}

// Reset returns the counter to 1 (new topic).
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.count = 1
}

// Restore sets the counter from persisted state. Values below 1 are
// clamped.
func (c *Controller) Restore(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if n < 1 {
		n = 1
	}
	c.count = n
}

// RequestRevision resubmits the prior solution with the requested
// improvements through the solver. An empty improvements list is valid:
// the round still runs and the counter still increments on completion.
// On a completed round the log gains a labeled revision marker, the new
// reasoning, and the new answer; timeout and escalation outcomes leave
// the counter untouched and are returned for the caller to handle.
func (c *Controller) RequestRevision(ctx context.Context, improvements []string, credential string, onThought reasoner.ThoughtFunc) (*reasoner.Result, error) {
	snapshot := c.log.Snapshot()
	mctx := conversation.DeriveContext(snapshot)

	prior := latestOwnAnswer(snapshot)
	round := c.Count()

	prompt := buildRevisionPrompt(mctx.OriginalQuestion, prior, improvements)
	logging.Revision("round %d: %d improvements, prior solution %d chars", round, len(improvements), len(prior))

	result, err := c.solver.Solve(ctx, prompt, credential, snapshot, onThought)
	if err != nil {
		return nil, fmt.Errorf("revision round %d: %w", round, err)
	}

	if result.Outcome == reasoner.OutcomeComplete {
		c.log.ClearTransient()
		c.log.Append(conversation.System(conversation.MarkerRevision, fmt.Sprintf("Revision Attempt #%d", round)))
		if result.Reasoning != "" {
			c.log.Append(conversation.Reasoning(result.Reasoning))
		}
		c.log.Append(conversation.Answer(result.Content))

		c.mu.Lock()
		c.count++
		c.mu.Unlock()
		logging.Revision("round %d complete, counter now %d", round, c.Count())
	}

	return result, nil
}

// latestOwnAnswer finds the most recent answer that was not produced by
// the architect reviewer.
func latestOwnAnswer(msgs []conversation.Message) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Kind == conversation.KindAnswer && msgs[i].Marker != conversation.MarkerReview {
			return msgs[i].Text
		}
	}
	return ""
}

// buildRevisionPrompt embeds the original question, the prior solution,
// and the improvement list into one explicit revision instruction.
func buildRevisionPrompt(originalQuestion, priorSolution string, improvements []string) string {
	var b strings.Builder

	b.WriteString("Revise your previous solution.\n\n")

	if originalQuestion != "" {
		b.WriteString("ORIGINAL QUESTION:\n")
		b.WriteString(originalQuestion)
		b.WriteString("\n\n")
	}

	if priorSolution != "" {
		b.WriteString("PREVIOUS SOLUTION:\n")
		b.WriteString(priorSolution)
		b.WriteString("\n\n")
	}

	b.WriteString("REQUESTED IMPROVEMENTS:\n")
	if len(improvements) == 0 {
		b.WriteString("- Review the previous solution and improve anything that falls short.\n")
	}
	for _, imp := range improvements {
		b.WriteString("- ")
		b.WriteString(imp)
		b.WriteString("\n")
	}

	b.WriteString("\nProduce a complete revised solution that addresses every improvement listed above.")
	return b.String()
}
