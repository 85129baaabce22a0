package config

import "time"

// Timeouts centralizes all timeout configuration for provider operations.
// This keeps the solver, reviewer, and speech clients from fighting each
// other with conflicting deadlines.
//
// KEY INSIGHT: in Go, the SHORTEST timeout in the chain wins. A generous
// HTTP client timeout is useless if the call is wrapped in a shorter
// context, so the solve timeout must always exceed the per-call timeout.
type Timeouts struct {
	// HTTPClientTimeout is the maximum time for a single HTTP operation
	// including connection, TLS handshake, and full response body read.
	HTTPClientTimeout time.Duration `json:"http_client_timeout" yaml:"http_client_timeout"`

	// PerCallTimeout bounds one provider call context (one phase, one attempt).
	PerCallTimeout time.Duration `json:"per_call_timeout" yaml:"per_call_timeout"`

	// SolveTimeout is the overall wall-clock budget for a full solve:
	// thinking phase, solution phase, and any retries/backoff between them.
	// Exceeding it is reported as a timeout outcome, not an error.
	SolveTimeout time.Duration `json:"solve_timeout" yaml:"solve_timeout"`

	// ReviewTimeout bounds a single architect review call.
	ReviewTimeout time.Duration `json:"review_timeout" yaml:"review_timeout"`

	// SpeechTimeout bounds a single TTS synthesis call.
	SpeechTimeout time.Duration `json:"speech_timeout" yaml:"speech_timeout"`

	// RetryBackoffBase is the base duration for exponential backoff between retries.
	RetryBackoffBase time.Duration `json:"retry_backoff_base" yaml:"retry_backoff_base"`

	// RetryBackoffJitter is the upper bound of the random jitter added to each backoff.
	RetryBackoffJitter time.Duration `json:"retry_backoff_jitter" yaml:"retry_backoff_jitter"`

	// RetryBackoffMax caps the total backoff wait regardless of retry count.
	RetryBackoffMax time.Duration `json:"retry_backoff_max" yaml:"retry_backoff_max"`

	// MaxRetries is the number of retry attempts for transient failures
	// before the escalation policy takes over.
	MaxRetries int `json:"max_retries" yaml:"max_retries"`

	// RateLimitDelay is the minimum spacing between consecutive calls to
	// the same provider.
	RateLimitDelay time.Duration `json:"rate_limit_delay" yaml:"rate_limit_delay"`
}

// DefaultTimeouts returns the standard profile. The solve budget sits at
// 150s so that two phases plus a couple of backoff sleeps fit inside it.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		HTTPClientTimeout:  60 * time.Second,
		PerCallTimeout:     60 * time.Second,
		SolveTimeout:       150 * time.Second,
		ReviewTimeout:      90 * time.Second,
		SpeechTimeout:      30 * time.Second,
		RetryBackoffBase:   2 * time.Second,
		RetryBackoffJitter: 1 * time.Second,
		RetryBackoffMax:    2 * time.Minute,
		MaxRetries:         3,
		RateLimitDelay:     600 * time.Millisecond,
	}
}

// FastTimeouts returns a profile for tests and quick local iteration.
func FastTimeouts() Timeouts {
	return Timeouts{
		HTTPClientTimeout:  5 * time.Second,
		PerCallTimeout:     5 * time.Second,
		SolveTimeout:       15 * time.Second,
		ReviewTimeout:      10 * time.Second,
		SpeechTimeout:      5 * time.Second,
		RetryBackoffBase:   10 * time.Millisecond,
		RetryBackoffJitter: 5 * time.Millisecond,
		RetryBackoffMax:    100 * time.Millisecond,
		MaxRetries:         2,
		RateLimitDelay:     0,
	}
}
