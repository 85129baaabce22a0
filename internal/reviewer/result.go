// Package reviewer drives the architect model: the secondary provider
// invoked to critique a solution or independently solve a request. Its
// structured output is decoded with repair, cross-checked against fixed
// code-quality heuristics, and always returned as a usable Result -
// failures degrade the result, they never propagate.
package reviewer

// Verdict is the architect's judgment on the reviewed solution.
type Verdict string

const (
	VerdictApproved      Verdict = "APPROVED"
	VerdictNeedsRevision Verdict = "NEEDS_REVISION"
)

// Valid reports whether v is one of the two recognized verdicts.
func (v Verdict) Valid() bool {
	return v == VerdictApproved || v == VerdictNeedsRevision
}

// Mode selects what the architect is asked to do.
type Mode int

const (
	// ModeReview critiques the latest solution without producing one.
	ModeReview Mode = iota
	// ModeSolve asks the architect for its own solution, always
	// producing a solution field, even partial.
	ModeSolve
)

// String returns the display name of the mode.
func (m Mode) String() string {
	if m == ModeSolve {
		return "solve"
	}
	return "review"
}

// Result is the validated review. After repair all three list fields
// are non-empty, and the verdict is NEEDS_REVISION whenever
// CriticalIssues holds anything.
type Result struct {
	CriticalIssues    []string `json:"criticalIssues"`
	PotentialProblems []string `json:"potentialProblems"`
	Improvements      []string `json:"improvements"`
	Verdict           Verdict  `json:"verdict"`
	Solution          string   `json:"solution,omitempty"`
}

// DecodeStatus tags how much repair the raw payload needed.
type DecodeStatus int

const (
	// DecodeOK means the payload parsed cleanly and needed no repair.
	DecodeOK DecodeStatus = iota
	// DecodeRepaired means the payload parsed but fields were coerced,
	// backfilled, or the verdict was recomputed.
	DecodeRepaired
	// DecodeFailed means the payload was unusable and the result is a
	// synthesized default.
	DecodeFailed
)

// String returns the display name of the status.
func (s DecodeStatus) String() string {
	switch s {
	case DecodeOK:
		return "ok"
	case DecodeRepaired:
		return "repaired"
	default:
		return "failed"
	}
}

// Decoded is the outcome of the decode-with-repair step. Never an
// error: Failed still carries a well-formed default Result.
type Decoded struct {
	Result Result
	Status DecodeStatus
	Notes  []string
}
