// Package config holds archon's layered configuration: a YAML system
// config for endpoints and tuning (.archon/archon.yaml), a JSON user
// config for credentials and overrides (.archon/config.json), the
// central timeout profile, and credential format validation.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config is the system-level configuration. Everything here has a
// working default; the YAML file only overrides.
type Config struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// Reasoner is the primary reasoning provider endpoint.
	Reasoner EndpointConfig `yaml:"reasoner"`

	// Reviewer is the architect reviewer endpoint.
	Reviewer EndpointConfig `yaml:"reviewer"`

	// Speech is the text-to-speech endpoint.
	Speech SpeechConfig `yaml:"speech"`

	// Escalation tunes the escalation policy.
	Escalation EscalationConfig `yaml:"escalation"`

	// Timeouts is the central timeout profile.
	Timeouts Timeouts `yaml:"timeouts"`
}

// EndpointConfig describes one chat-style provider endpoint.
type EndpointConfig struct {
	BaseURL     string  `yaml:"base_url"`
	Model       string  `yaml:"model"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
}

// SpeechConfig describes the TTS provider endpoint.
type SpeechConfig struct {
	BaseURL string `yaml:"base_url"`
	Voice   string `yaml:"voice"`
	Model   string `yaml:"model"`
}

// EscalationConfig tunes the escalation policy. ExtraPatterns extends
// (never replaces) the built-in complexity pattern set.
type EscalationConfig struct {
	MaxRetries       int      `yaml:"max_retries"`
	FailureThreshold int      `yaml:"failure_threshold"`
	ExtraPatterns    []string `yaml:"extra_patterns"`
}

// DefaultConfig returns the built-in system configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:    "archon",
		Version: "0.3.0",
		Reasoner: EndpointConfig{
			BaseURL:     "https://api.groq.com/openai/v1/chat/completions",
			Model:       "llama-3.3-70b-versatile",
			Temperature: 0.7,
			MaxTokens:   4096,
		},
		Reviewer: EndpointConfig{
			BaseURL:     "https://generativelanguage.googleapis.com/v1beta",
			Model:       "gemini-2.0-flash",
			Temperature: 0.3,
			MaxTokens:   8192,
		},
		Speech: SpeechConfig{
			BaseURL: "https://api.elevenlabs.io",
			Voice:   "21m00Tcm4TlvDq8ikWAM",
			Model:   "eleven_turbo_v2",
		},
		Escalation: EscalationConfig{
			MaxRetries:       3,
			FailureThreshold: 2,
		},
		Timeouts: DefaultTimeouts(),
	}
}

// DefaultConfigPath returns the conventional system config location.
func DefaultConfigPath() string {
	root, err := FindWorkspaceRoot()
	if err != nil {
		return ".archon/archon.yaml"
	}
	return filepath.Join(root, ".archon", "archon.yaml")
}

// LoadConfig reads the YAML system config, applying it over the
// defaults. A missing file yields the defaults, not an error.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	// Zero values from a sparse file fall back to defaults
	def := DefaultConfig()
	if cfg.Reasoner.BaseURL == "" {
		cfg.Reasoner.BaseURL = def.Reasoner.BaseURL
	}
	if cfg.Reasoner.Model == "" {
		cfg.Reasoner.Model = def.Reasoner.Model
	}
	if cfg.Reasoner.MaxTokens == 0 {
		cfg.Reasoner.MaxTokens = def.Reasoner.MaxTokens
	}
	if cfg.Reviewer.BaseURL == "" {
		cfg.Reviewer.BaseURL = def.Reviewer.BaseURL
	}
	if cfg.Reviewer.Model == "" {
		cfg.Reviewer.Model = def.Reviewer.Model
	}
	if cfg.Reviewer.MaxTokens == 0 {
		cfg.Reviewer.MaxTokens = def.Reviewer.MaxTokens
	}
	if cfg.Speech.BaseURL == "" {
		cfg.Speech.BaseURL = def.Speech.BaseURL
	}
	if cfg.Speech.Voice == "" {
		cfg.Speech.Voice = def.Speech.Voice
	}
	if cfg.Speech.Model == "" {
		cfg.Speech.Model = def.Speech.Model
	}
	if cfg.Escalation.MaxRetries == 0 {
		cfg.Escalation.MaxRetries = def.Escalation.MaxRetries
	}
	if cfg.Escalation.FailureThreshold == 0 {
		cfg.Escalation.FailureThreshold = def.Escalation.FailureThreshold
	}
	if cfg.Timeouts.SolveTimeout == 0 {
		cfg.Timeouts = def.Timeouts
	}

	return cfg, nil
}

// Save writes the system config as YAML.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}
