package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// UserConfig holds per-user archon configuration from .archon/config.json.
// Credentials and user overrides live here; endpoint defaults and tuning
// live in the YAML system config (see config.go).
type UserConfig struct {
	// =========================================================================
	// PROVIDER CREDENTIALS
	// =========================================================================

	// ReasonerAPIKey authenticates against the primary reasoning provider.
	ReasonerAPIKey string `json:"reasoner_api_key,omitempty"`

	// ReviewerAPIKey authenticates against the architect reviewer provider.
	// Optional: without it, escalation falls back to the primary reasoner.
	ReviewerAPIKey string `json:"reviewer_api_key,omitempty"`

	// SpeechAPIKey authenticates against the text-to-speech provider.
	// Optional: without it, spoken playback is disabled.
	SpeechAPIKey string `json:"speech_api_key,omitempty"`

	// =========================================================================
	// MODEL OVERRIDES
	// =========================================================================

	ReasonerModel string `json:"reasoner_model,omitempty"`
	ReviewerModel string `json:"reviewer_model,omitempty"`
	SpeechVoice   string `json:"speech_voice,omitempty"`

	// =========================================================================
	// BEHAVIOR
	// =========================================================================

	// HistoryLimit caps how many conversation entries are persisted per session.
	HistoryLimit int `json:"history_limit,omitempty"`

	// SpeechEnabled turns spoken answers on. Requires SpeechAPIKey.
	SpeechEnabled bool `json:"speech_enabled,omitempty"`

	// Theme for the TUI ("light" or "dark")
	Theme string `json:"theme,omitempty"`

	// =========================================================================
	// LOGGING
	// =========================================================================

	Logging *LoggingConfig `json:"logging,omitempty"`
}

// LoggingConfig controls the categorized file logging subsystem.
// The logging package reads this same JSON shape directly to avoid a
// circular import.
type LoggingConfig struct {
	DebugMode  bool            `json:"debug_mode"`
	Categories map[string]bool `json:"categories,omitempty"`
	Level      string          `json:"level,omitempty"`
	JSONFormat bool            `json:"json_format,omitempty"`
}

// DefaultHistoryLimit is the persisted-entry cap used when the user has
// not configured one.
const DefaultHistoryLimit = 5

// DefaultUserConfigPath returns the conventional user config location.
func DefaultUserConfigPath() string {
	root, err := FindWorkspaceRoot()
	if err != nil {
		return ".archon/config.json"
	}
	return filepath.Join(root, ".archon", "config.json")
}

// FindWorkspaceRoot attempts to find the workspace root by looking for an
// existing .archon directory, walking up from the working directory. If
// none is found, returns the user home directory when it carries .archon,
// falling back to the working directory.
func FindWorkspaceRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}

	originalDir := dir
	for {
		if _, err := os.Stat(filepath.Join(dir, ".archon")); err == nil {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	if home, err := os.UserHomeDir(); err == nil {
		if _, err := os.Stat(filepath.Join(home, ".archon")); err == nil {
			return home, nil
		}
	}

	return originalDir, nil
}

// LoadUserConfig loads configuration from .archon/config.json.
// A missing file yields an empty config, not an error.
func LoadUserConfig(path string) (*UserConfig, error) {
	cfg := &UserConfig{}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read user config: %w", err)
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse user config: %w", err)
	}

	return cfg, nil
}

// Save writes the configuration to the given path, creating the
// .archon directory if needed.
func (c *UserConfig) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal user config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write user config: %w", err)
	}

	return nil
}

// GetHistoryLimit returns the persisted-history cap with its default.
func (c *UserConfig) GetHistoryLimit() int {
	if c.HistoryLimit > 0 {
		return c.HistoryLimit
	}
	return DefaultHistoryLimit
}

// GetLogging returns logging settings with defaults applied.
func (c *UserConfig) GetLogging() LoggingConfig {
	if c.Logging != nil {
		cfg := *c.Logging
		if cfg.Level == "" {
			cfg.Level = "info"
		}
		return cfg
	}
	return LoggingConfig{
		Level:     "info",
		DebugMode: false, // Production mode by default
	}
}

// Credential returns the stored key for the given provider, or "".
func (c *UserConfig) Credential(p Provider) string {
	switch p {
	case ProviderReasoner:
		return c.ReasonerAPIKey
	case ProviderReviewer:
		return c.ReviewerAPIKey
	case ProviderSpeech:
		return c.SpeechAPIKey
	}
	return ""
}

// SetCredential stores the key for the given provider.
func (c *UserConfig) SetCredential(p Provider, key string) {
	switch p {
	case ProviderReasoner:
		c.ReasonerAPIKey = key
	case ProviderReviewer:
		c.ReviewerAPIKey = key
	case ProviderSpeech:
		c.SpeechAPIKey = key
	}
}

// DefaultUserConfig returns a UserConfig with sensible defaults.
func DefaultUserConfig() *UserConfig {
	return &UserConfig{
		Theme:        "dark",
		HistoryLimit: DefaultHistoryLimit,
	}
}

// GlobalConfig loads the config from the default path. Returns an empty
// config (defaults available via Get* methods) if the file doesn't exist.
func GlobalConfig() (*UserConfig, error) {
	return LoadUserConfig(DefaultUserConfigPath())
}
