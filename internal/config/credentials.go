package config

import (
	"errors"
	"fmt"
	"regexp"
	"sync"
	"time"

	"archon/internal/logging"
)

// Provider identifies which upstream service a credential belongs to.
type Provider string

const (
	ProviderReasoner Provider = "reasoner"
	ProviderReviewer Provider = "reviewer"
	ProviderSpeech   Provider = "speech"
)

// ErrCredentialMissing indicates an empty credential where one is required.
// Surfaced before any network call; never retried.
var ErrCredentialMissing = errors.New("credential missing")

// CredentialFormatError indicates a credential that fails its provider's
// format rule, or one the provider itself rejected.
type CredentialFormatError struct {
	Provider Provider
	Reason   string
}

func (e *CredentialFormatError) Error() string {
	return fmt.Sprintf("%s credential invalid: %s", e.Provider, e.Reason)
}

// Format rules per provider. These match the shape of real keys for the
// default providers (Groq-style, ElevenLabs-style, Google-style) without
// being tied to any one of them.
var (
	reasonerKeyPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{10,}$`)
	speechKeyPattern   = regexp.MustCompile(`^[A-Za-z0-9]{32}$`)
	reviewerKeyPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{39}$`)
)

// formatRule returns the pattern and a human description for a provider.
func formatRule(p Provider) (*regexp.Regexp, string) {
	switch p {
	case ProviderReasoner:
		return reasonerKeyPattern, "alphanumeric/_/- with at least 10 characters"
	case ProviderSpeech:
		return speechKeyPattern, "exactly 32 alphanumeric characters"
	case ProviderReviewer:
		return reviewerKeyPattern, "exactly 39 characters of alphanumeric/_/-"
	}
	return nil, ""
}

// ValidationCache is a bounded TTL cache of validation verdicts. It is an
// explicit object owned by whoever constructs the Validator; there is no
// package-level cache.
type ValidationCache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
	max     int
	ttl     time.Duration
}

type cacheEntry struct {
	verdict error
	expires time.Time
}

// Default cache bounds.
const (
	DefaultValidationCacheSize = 128
	DefaultValidationTTL       = 5 * time.Minute
)

// NewValidationCache creates a cache holding at most max entries, each
// valid for ttl. Non-positive arguments fall back to the defaults.
func NewValidationCache(max int, ttl time.Duration) *ValidationCache {
	if max <= 0 {
		max = DefaultValidationCacheSize
	}
	if ttl <= 0 {
		ttl = DefaultValidationTTL
	}
	return &ValidationCache{
		entries: make(map[string]cacheEntry),
		max:     max,
		ttl:     ttl,
	}
}

// get returns a cached verdict if present and unexpired.
func (c *ValidationCache) get(key string) (error, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if time.Now().After(e.expires) {
		delete(c.entries, key)
		return nil, false
	}
	return e.verdict, true
}

// put stores a verdict, evicting the entry closest to expiry when full.
func (c *ValidationCache) put(key string, verdict error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.entries) >= c.max {
		var oldest string
		var oldestExpiry time.Time
		for k, e := range c.entries {
			if oldest == "" || e.expires.Before(oldestExpiry) {
				oldest = k
				oldestExpiry = e.expires
			}
		}
		if oldest != "" {
			delete(c.entries, oldest)
		}
	}

	c.entries[key] = cacheEntry{verdict: verdict, expires: time.Now().Add(c.ttl)}
}

// Len reports the current number of cached verdicts.
func (c *ValidationCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Validator checks credential formats, memoizing verdicts in its cache.
type Validator struct {
	cache *ValidationCache
}

// NewValidator creates a Validator around the given cache. A nil cache
// gets the default bounds.
func NewValidator(cache *ValidationCache) *Validator {
	if cache == nil {
		cache = NewValidationCache(DefaultValidationCacheSize, DefaultValidationTTL)
	}
	return &Validator{cache: cache}
}

// Validate checks a credential against its provider's format rule.
// Returns ErrCredentialMissing for an empty key, a *CredentialFormatError
// for a malformed one, and nil when the format is acceptable.
func (v *Validator) Validate(p Provider, key string) error {
	if key == "" {
		return fmt.Errorf("%s: %w", p, ErrCredentialMissing)
	}

	cacheKey := string(p) + "\x00" + key
	if verdict, ok := v.cache.get(cacheKey); ok {
		return verdict
	}

	verdict := checkFormat(p, key)
	v.cache.put(cacheKey, verdict)

	if verdict != nil {
		logging.Config("credential rejected for %s: %v", p, verdict)
	}
	return verdict
}

func checkFormat(p Provider, key string) error {
	pattern, desc := formatRule(p)
	if pattern == nil {
		return &CredentialFormatError{Provider: p, Reason: "unknown provider"}
	}
	if !pattern.MatchString(key) {
		return &CredentialFormatError{Provider: p, Reason: "expected " + desc}
	}
	return nil
}
