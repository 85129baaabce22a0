package reviewer

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Placeholder entries used when the architect leaves a list empty.
const (
	noCriticalPlaceholder    = "No critical issues found: the review did not flag any blocking problems."
	noPotentialPlaceholder   = "No potential problems noted: the review did not flag any risks."
	noImprovementPlaceholder = "No improvements suggested: the review offered no refinements."
)

// rawResult is the loose payload shape. List fields stay raw so scalars
// and malformed values can be coerced instead of failing the unmarshal.
type rawResult struct {
	CriticalIssues    json.RawMessage `json:"criticalIssues"`
	PotentialProblems json.RawMessage `json:"potentialProblems"`
	Improvements      json.RawMessage `json:"improvements"`
	Verdict           string          `json:"verdict"`
	Solution          string          `json:"solution"`
}

// decode runs the repair pipeline over raw architect output:
// fence stripping, shape check, loose parse, list coercion, backfill,
// verdict recomputation, and solve-mode solution backfill. It never
// fails; unusable input produces a synthesized default result.
func decode(raw string, mode Mode, fallbackSolution string) Decoded {
	text := stripFences(raw)
	notes := []string{}

	if !strings.HasPrefix(strings.TrimSpace(text), "{") {
		return failedDecode(
			fmt.Sprintf("Architect response was not structured data: %q", truncate(text, 120)),
			mode, fallbackSolution)
	}

	var payload rawResult
	if err := json.Unmarshal([]byte(strings.TrimSpace(text)), &payload); err != nil {
		return failedDecode(
			fmt.Sprintf("Could not parse architect response: %v", err),
			mode, fallbackSolution)
	}

	result := Result{Solution: strings.TrimSpace(payload.Solution)}

	var changed bool
	result.CriticalIssues, changed = coerceList(payload.CriticalIssues, "criticalIssues", noCriticalPlaceholder, &notes)
	repaired := changed
	result.PotentialProblems, changed = coerceList(payload.PotentialProblems, "potentialProblems", noPotentialPlaceholder, &notes)
	repaired = repaired || changed
	result.Improvements, changed = coerceList(payload.Improvements, "improvements", noImprovementPlaceholder, &notes)
	repaired = repaired || changed

	// Verdict: critical issues always force NEEDS_REVISION; otherwise
	// keep the architect's verdict only when it is a recognized value.
	stated := Verdict(strings.TrimSpace(payload.Verdict))
	switch {
	case hasRealCriticalIssues(result.CriticalIssues):
		result.Verdict = VerdictNeedsRevision
		if stated != VerdictNeedsRevision {
			notes = append(notes, "verdict forced to NEEDS_REVISION: critical issues present")
			repaired = true
		}
	case stated.Valid():
		result.Verdict = stated
	default:
		result.Verdict = VerdictNeedsRevision
		notes = append(notes, fmt.Sprintf("unrecognized verdict %q defaulted to NEEDS_REVISION", payload.Verdict))
		repaired = true
	}

	if mode == ModeSolve && result.Solution == "" {
		result.Solution = fallbackSolution
		result.PotentialProblems = append(result.PotentialProblems,
			"The architect did not return a solution; the latest prior answer is shown instead and may be incomplete.")
		notes = append(notes, "solution backfilled from history")
		repaired = true
	}

	status := DecodeOK
	if repaired {
		status = DecodeRepaired
	}
	return Decoded{Result: result, Status: status, Notes: notes}
}

// failedDecode synthesizes the default result for unusable payloads.
func failedDecode(reason string, mode Mode, fallbackSolution string) Decoded {
	result := Result{
		CriticalIssues:    []string{reason},
		PotentialProblems: []string{noPotentialPlaceholder},
		Improvements:      []string{noImprovementPlaceholder},
		Verdict:           VerdictNeedsRevision,
	}
	if mode == ModeSolve && fallbackSolution != "" {
		result.Solution = fallbackSolution
		result.PotentialProblems = append(result.PotentialProblems,
			"The architect did not return a solution; the latest prior answer is shown instead and may be incomplete.")
	}
	return Decoded{Result: result, Status: DecodeFailed, Notes: []string{reason}}
}

// coerceList turns a raw JSON value into a string list: arrays pass
// through (elements stringified), scalars are wrapped, absent or
// unusable values get the placeholder. changed reports any repair.
func coerceList(raw json.RawMessage, field, placeholder string, notes *[]string) ([]string, bool) {
	if len(raw) == 0 {
		*notes = append(*notes, field+" absent, placeholder inserted")
		return []string{placeholder}, true
	}

	var list []interface{}
	if err := json.Unmarshal(raw, &list); err == nil {
		out := make([]string, 0, len(list))
		for _, v := range list {
			if s := stringify(v); s != "" {
				out = append(out, s)
			}
		}
		if len(out) == 0 {
			*notes = append(*notes, field+" empty, placeholder inserted")
			return []string{placeholder}, true
		}
		return out, false
	}

	// Scalar: wrap it.
	var scalar interface{}
	if err := json.Unmarshal(raw, &scalar); err == nil {
		if s := stringify(scalar); s != "" {
			*notes = append(*notes, field+" was a scalar, wrapped into a list")
			return []string{s}, true
		}
	}

	*notes = append(*notes, field+" unusable, placeholder inserted")
	return []string{placeholder}, true
}

func stringify(v interface{}) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case nil:
		return ""
	default:
		return strings.TrimSpace(fmt.Sprintf("%v", t))
	}
}

// hasRealCriticalIssues ignores the placeholder when deciding whether
// critical issues force the verdict.
func hasRealCriticalIssues(issues []string) bool {
	for _, issue := range issues {
		if issue != noCriticalPlaceholder {
			return true
		}
	}
	return false
}

// stripFences removes a wrapping Markdown code fence, tolerating a
// language tag on the opening line.
func stripFences(s string) string {
	text := strings.TrimSpace(s)
	if !strings.HasPrefix(text, "```") {
		return text
	}

	if idx := strings.IndexByte(text, '\n'); idx >= 0 {
		text = text[idx+1:]
	} else {
		return strings.TrimSpace(strings.TrimPrefix(text, "```"))
	}

	if idx := strings.LastIndex(text, "```"); idx >= 0 {
		text = text[:idx]
	}
	return strings.TrimSpace(text)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
