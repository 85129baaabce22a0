package reviewer

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestDecode_WellFormed_PassesThroughUnchanged(t *testing.T) {
	raw := `{
		"criticalIssues": ["Null check missing"],
		"potentialProblems": ["Large allocation in loop"],
		"improvements": ["Add tests"],
		"verdict": "NEEDS_REVISION"
	}`

	decoded := decode(raw, ModeReview, "")

	if decoded.Status != DecodeOK {
		t.Fatalf("Expected DecodeOK, got %s (notes: %v)", decoded.Status, decoded.Notes)
	}

	want := Result{
		CriticalIssues:    []string{"Null check missing"},
		PotentialProblems: []string{"Large allocation in loop"},
		Improvements:      []string{"Add tests"},
		Verdict:           VerdictNeedsRevision,
	}
	if diff := cmp.Diff(want, decoded.Result); diff != "" {
		t.Errorf("Result mismatch (-want +got):\n%s", diff)
	}
}

func TestDecode_ApprovedWithCleanLists_Idempotent(t *testing.T) {
	raw := `{
		"criticalIssues": ["` + noCriticalPlaceholder + `"],
		"potentialProblems": ["None observed"],
		"improvements": ["Consider caching"],
		"verdict": "APPROVED"
	}`

	decoded := decode(raw, ModeReview, "")
	if decoded.Status != DecodeOK {
		t.Fatalf("Expected DecodeOK, got %s", decoded.Status)
	}
	if decoded.Result.Verdict != VerdictApproved {
		t.Errorf("Placeholder critical entry must not force a revision verdict")
	}
}

func TestDecode_CriticalIssuesForceNeedsRevision(t *testing.T) {
	raw := `{"criticalIssues": ["X"], "potentialProblems": ["p"], "improvements": ["i"], "verdict": "APPROVED"}`

	decoded := decode(raw, ModeReview, "")

	if decoded.Result.Verdict != VerdictNeedsRevision {
		t.Errorf("Verdict must be forced to NEEDS_REVISION when criticalIssues is non-empty, got %s", decoded.Result.Verdict)
	}
	if decoded.Status != DecodeRepaired {
		t.Errorf("Forcing the verdict is a repair, got %s", decoded.Status)
	}
}

func TestDecode_UnparseableText_NonThrowingDefault(t *testing.T) {
	decoded := decode("I refuse to answer in JSON today.", ModeReview, "")

	if decoded.Status != DecodeFailed {
		t.Fatalf("Expected DecodeFailed, got %s", decoded.Status)
	}
	if decoded.Result.Verdict != VerdictNeedsRevision {
		t.Errorf("Failed decode must yield NEEDS_REVISION")
	}
	if len(decoded.Result.CriticalIssues) == 0 {
		t.Error("Failed decode must record the parse failure in criticalIssues")
	}
	if len(decoded.Result.PotentialProblems) == 0 || len(decoded.Result.Improvements) == 0 {
		t.Error("All list fields must be non-empty after repair")
	}
}

func TestDecode_MalformedJSON_Default(t *testing.T) {
	decoded := decode(`{"criticalIssues": [unterminated`, ModeReview, "")

	if decoded.Status != DecodeFailed {
		t.Fatalf("Expected DecodeFailed, got %s", decoded.Status)
	}
	if !strings.Contains(decoded.Result.CriticalIssues[0], "Could not parse") {
		t.Errorf("Failure entry should describe the parse problem, got %q", decoded.Result.CriticalIssues[0])
	}
}

func TestDecode_FencedResponse(t *testing.T) {
	raw := "```json\n" + `{"criticalIssues": [], "potentialProblems": [], "improvements": [], "verdict": "APPROVED"}` + "\n```"

	decoded := decode(raw, ModeReview, "")

	if decoded.Result.Verdict != VerdictApproved {
		t.Errorf("Fenced JSON should decode, got verdict %s", decoded.Result.Verdict)
	}
	// Empty lists are backfilled, so this counts as repaired
	if decoded.Status != DecodeRepaired {
		t.Errorf("Empty-list backfill should mark the decode repaired, got %s", decoded.Status)
	}
	if decoded.Result.CriticalIssues[0] != noCriticalPlaceholder {
		t.Errorf("Empty criticalIssues should get the placeholder")
	}
}

func TestDecode_ScalarCoercedToList(t *testing.T) {
	raw := `{"criticalIssues": "just one problem", "potentialProblems": ["p"], "improvements": ["i"], "verdict": "NEEDS_REVISION"}`

	decoded := decode(raw, ModeReview, "")

	if decoded.Status != DecodeRepaired {
		t.Fatalf("Scalar coercion is a repair, got %s", decoded.Status)
	}
	if len(decoded.Result.CriticalIssues) != 1 || decoded.Result.CriticalIssues[0] != "just one problem" {
		t.Errorf("Scalar should wrap into a single-entry list, got %v", decoded.Result.CriticalIssues)
	}
}

func TestDecode_InvalidVerdictDefaults(t *testing.T) {
	raw := `{"criticalIssues": [], "potentialProblems": ["p"], "improvements": ["i"], "verdict": "MAYBE"}`

	decoded := decode(raw, ModeReview, "")
	if decoded.Result.Verdict != VerdictNeedsRevision {
		t.Errorf("Unrecognized verdict must default to NEEDS_REVISION, got %s", decoded.Result.Verdict)
	}
}

func TestDecode_SolveModeBackfillsSolution(t *testing.T) {
	raw := `{"criticalIssues": ["x"], "potentialProblems": ["p"], "improvements": ["i"], "verdict": "NEEDS_REVISION"}`

	decoded := decode(raw, ModeSolve, "the prior answer")

	if decoded.Result.Solution != "the prior answer" {
		t.Errorf("Missing solution should backfill from history, got %q", decoded.Result.Solution)
	}
	found := false
	for _, p := range decoded.Result.PotentialProblems {
		if strings.Contains(p, "may be incomplete") {
			found = true
		}
	}
	if !found {
		t.Error("Backfilled solution must be flagged as possibly incomplete")
	}
}

func TestDecode_SolveModeKeepsProvidedSolution(t *testing.T) {
	raw := `{"criticalIssues": ["x"], "potentialProblems": ["p"], "improvements": ["i"], "verdict": "NEEDS_REVISION", "solution": "fresh solution"}`

	decoded := decode(raw, ModeSolve, "stale prior answer")
	if decoded.Result.Solution != "fresh solution" {
		t.Errorf("Provided solution must win over the fallback, got %q", decoded.Result.Solution)
	}
}

func TestStripFences(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"no fence", `{"a":1}`, `{"a":1}`},
		{"plain fence", "```\n{\"a\":1}\n```", `{"a":1}`},
		{"json fence", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"leading space", "  ```json\n{\"a\":1}\n```  ", `{"a":1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := stripFences(tt.in); got != tt.want {
				t.Errorf("stripFences(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
