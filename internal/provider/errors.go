// Package provider holds archon's hand-written HTTP clients for the
// three upstream services (chat reasoner, architect reviewer, speech)
// and the shared error taxonomy the orchestration layers classify on.
//
// Clients here perform exactly one attempt per call and report typed
// failures; retry and backoff live in the solver, driven by the
// escalation policy.
package provider

import (
	"errors"
	"fmt"
	"net/http"

	"archon/internal/config"
)

// ErrEmptyResponse indicates the provider answered 200 with no usable
// content field. Retried like a transport failure.
var ErrEmptyResponse = errors.New("empty response from provider")

// TransportError is a network failure or non-2xx status from a provider.
type TransportError struct {
	Status int // 0 when the request never got a response
	Body   string
	Err    error
}

func (e *TransportError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("provider returned status %d: %s", e.Status, truncate(e.Body, 200))
	}
	return fmt.Sprintf("provider request failed: %v", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ParseError is a structurally malformed provider payload. The reviewer
// recovers these locally; the solver treats them like transport errors.
type ParseError struct {
	Reason string
	Raw    string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("malformed provider output: %s", e.Reason)
}

// statusError maps an HTTP status to the right error class. 401/403
// become credential errors so callers never retry them.
func statusError(p config.Provider, status int, body string) error {
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		return &config.CredentialFormatError{
			Provider: p,
			Reason:   fmt.Sprintf("rejected by provider (status %d)", status),
		}
	}
	return &TransportError{Status: status, Body: body}
}

// Retryable reports whether the error class is worth another attempt.
// Credential problems and context cancellation are terminal.
func Retryable(err error) bool {
	var credErr *config.CredentialFormatError
	if errors.As(err, &credErr) {
		return false
	}
	if errors.Is(err, config.ErrCredentialMissing) {
		return false
	}
	var te *TransportError
	if errors.As(err, &te) {
		return true
	}
	if errors.Is(err, ErrEmptyResponse) {
		return true
	}
	var pe *ParseError
	return errors.As(err, &pe)
}

// ErrKind names the failure class for escalation reasons and logs.
func ErrKind(err error) string {
	var credErr *config.CredentialFormatError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &credErr), errors.Is(err, config.ErrCredentialMissing):
		return "credential error"
	case errors.Is(err, ErrEmptyResponse):
		return "empty response"
	default:
		var te *TransportError
		if errors.As(err, &te) {
			if te.Status != 0 {
				return fmt.Sprintf("transport error (status %d)", te.Status)
			}
			return "transport error"
		}
		var pe *ParseError
		if errors.As(err, &pe) {
			return "parse error"
		}
		return "provider error"
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
