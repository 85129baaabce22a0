// Package reasoner drives the multi-phase call sequence against the
// primary reasoning model: a thinking phase that produces a structured
// breakdown, then a solution phase that produces the answer. Retries,
// backoff, and escalation signals are classified through the escalation
// policy; a single wall-clock budget bounds the whole exchange.
package reasoner

import "time"

// Outcome tags the terminal state of one solve.
type Outcome int

const (
	// OutcomeComplete carries content and reasoning.
	OutcomeComplete Outcome = iota
	// OutcomeTimeout means the wall-clock budget expired. Not an error:
	// the caller offers manual escalation.
	OutcomeTimeout
	// OutcomeEscalate signals the caller to invoke the architect
	// reviewer in solve mode.
	OutcomeEscalate
)

// String returns the display name of the outcome.
func (o Outcome) String() string {
	switch o {
	case OutcomeComplete:
		return "complete"
	case OutcomeTimeout:
		return "timeout"
	case OutcomeEscalate:
		return "escalate"
	default:
		return "unknown"
	}
}

// ThoughtUpdate is one intermediate status/reasoning fragment produced
// during a solve. Delivered synchronously on the calling goroutine.
type ThoughtUpdate struct {
	Phase string // "thinking" or "solution"
	Text  string
	At    time.Time
}

// ThoughtFunc receives thought updates as phases progress. May be nil.
type ThoughtFunc func(ThoughtUpdate)

// Result is the tagged outcome of one solve. Exactly one of the
// outcome-specific fields is meaningful; Thoughts holds whatever was
// captured before the terminal state regardless of outcome.
type Result struct {
	Outcome          Outcome
	Content          string
	Reasoning        string
	Thoughts         []ThoughtUpdate
	TimeoutReason    string
	EscalationReason string
}
