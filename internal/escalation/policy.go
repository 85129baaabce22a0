// Package escalation decides when a request leaves the primary reasoner
// and is handed to the architect reviewer: immediately for recognizably
// hard problems, after repeated failed answers, or once transient-error
// retries are exhausted. It also owns the retry backoff schedule.
package escalation

import (
	"fmt"
	"math/rand"
	"regexp"
	"strings"
	"time"

	"archon/internal/conversation"
	"archon/internal/logging"
)

// Decision is the outcome of one policy evaluation. Produced fresh per
// attempt, never persisted.
type Decision struct {
	ShouldEscalate bool
	Reason         string
	RetryCount     int
}

// Config tunes the policy.
type Config struct {
	// MaxRetries is how many transient-error retries are allowed before
	// the policy escalates.
	MaxRetries int

	// FailureThreshold is how many failure-reporting answers trigger
	// the repeated-failure escalation.
	FailureThreshold int

	// Backoff schedule: base << retryCount plus jitter, capped at max.
	BackoffBase   time.Duration
	BackoffJitter time.Duration
	BackoffMax    time.Duration

	// ExtraPatterns extends the built-in complexity set with
	// user-supplied regular expressions.
	ExtraPatterns []string
}

// DefaultConfig returns the standard tuning.
func DefaultConfig() Config {
	return Config{
		MaxRetries:       3,
		FailureThreshold: 2,
		BackoffBase:      2 * time.Second,
		BackoffJitter:    1 * time.Second,
		BackoffMax:       2 * time.Minute,
	}
}

// complexityPattern pairs a compiled matcher with the label used in
// escalation reasons.
type complexityPattern struct {
	re    *regexp.Regexp
	label string
}

// Built-in complexity patterns. A match means the request is handed to
// the architect before the primary reasoner ever sees it.
var builtinPatterns = []complexityPattern{
	{regexp.MustCompile(`(?i)\b(implement|build|design|create|architect)\b.*\b(system|architecture|framework|infrastructure|platform|engine)\b`), "systems design"},
	{regexp.MustCompile(`(?i)\boptimi[sz]e\b.*\b(performance|speed|memory|latency|throughput)\b`), "performance optimization"},
	{regexp.MustCompile(`(?i)\b(3d|three\.js|webgl|shader|graphics pipeline|ray ?tracing)\b`), "graphics"},
	{regexp.MustCompile(`(?i)\b(security|auth(entication|orization)?|encryption|oauth|csrf|xss)\b`), "security"},
	{regexp.MustCompile(`(?i)\b(concurren(t|cy)|distributed|parallel(ism)?|multi-?thread(ed|ing)?|race condition)\b`), "concurrency"},
}

// answerFailureWords flag an answer that reported a problem instead of
// solving one.
var answerFailureWords = []string{"error", "failed", "unable"}

// Policy evaluates escalation decisions. Safe for concurrent use.
type Policy struct {
	cfg      Config
	patterns []complexityPattern
}

// NewPolicy builds a Policy. Invalid extra patterns are logged and
// skipped rather than failing construction.
func NewPolicy(cfg Config) *Policy {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultConfig().MaxRetries
	}
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = DefaultConfig().FailureThreshold
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = DefaultConfig().BackoffBase
	}
	if cfg.BackoffMax <= 0 {
		cfg.BackoffMax = DefaultConfig().BackoffMax
	}

	patterns := make([]complexityPattern, 0, len(builtinPatterns)+len(cfg.ExtraPatterns))
	patterns = append(patterns, builtinPatterns...)
	for _, raw := range cfg.ExtraPatterns {
		re, err := regexp.Compile("(?i)" + raw)
		if err != nil {
			logging.Get(logging.CategoryPolicy).Warn("skipping invalid extra pattern %q: %v", raw, err)
			continue
		}
		patterns = append(patterns, complexityPattern{re: re, label: "configured pattern"})
	}

	return &Policy{cfg: cfg, patterns: patterns}
}

// Decide evaluates one attempt. errKind is empty on the pre-send check
// and names the failure class on retry checks. history is the current
// log snapshot.
func (p *Policy) Decide(message, errKind string, retryCount int, history []conversation.Message) Decision {
	if label, ok := p.matchComplexity(message); ok {
		d := Decision{
			ShouldEscalate: true,
			Reason:         fmt.Sprintf("complexity: request matches %s pattern", label),
			RetryCount:     retryCount,
		}
		logging.Policy("escalate: %s", d.Reason)
		return d
	}

	if n := p.countFailedAnswers(history); n >= p.cfg.FailureThreshold {
		d := Decision{
			ShouldEscalate: true,
			Reason:         fmt.Sprintf("repeated failure: %d prior answers reported problems", n),
			RetryCount:     retryCount,
		}
		logging.Policy("escalate: %s", d.Reason)
		return d
	}

	if errKind != "" {
		if retryCount < p.cfg.MaxRetries {
			return Decision{
				ShouldEscalate: false,
				Reason:         fmt.Sprintf("retry %d/%d after %s", retryCount+1, p.cfg.MaxRetries, errKind),
				RetryCount:     retryCount + 1,
			}
		}
		d := Decision{
			ShouldEscalate: true,
			Reason:         fmt.Sprintf("%s persisted after %d retries", errKind, retryCount),
			RetryCount:     retryCount,
		}
		logging.Policy("escalate: %s", d.Reason)
		return d
	}

	return Decision{RetryCount: retryCount}
}

// RetryDelay computes the backoff before retry number retryCount:
// base << retryCount plus random jitter, capped.
func (p *Policy) RetryDelay(retryCount int) time.Duration {
	if retryCount < 0 {
		retryCount = 0
	}

	d := p.cfg.BackoffBase << uint(retryCount)
	if d <= 0 || d > p.cfg.BackoffMax {
		// Shift overflow lands here too
		d = p.cfg.BackoffMax
	}

	if p.cfg.BackoffJitter > 0 {
		d += time.Duration(rand.Int63n(int64(p.cfg.BackoffJitter)))
	}
	if d > p.cfg.BackoffMax {
		d = p.cfg.BackoffMax
	}
	return d
}

// MaxRetries exposes the configured retry bound.
func (p *Policy) MaxRetries() int {
	return p.cfg.MaxRetries
}

func (p *Policy) matchComplexity(message string) (string, bool) {
	for _, cp := range p.patterns {
		if cp.re.MatchString(message) {
			return cp.label, true
		}
	}
	return "", false
}

func (p *Policy) countFailedAnswers(history []conversation.Message) int {
	n := 0
	for _, msg := range history {
		if msg.Kind != conversation.KindAnswer {
			continue
		}
		lower := strings.ToLower(msg.Text)
		for _, w := range answerFailureWords {
			if strings.Contains(lower, w) {
				n++
				break
			}
		}
	}
	return n
}
