package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"archon/internal/config"
	"archon/internal/logging"
)

// GeminiClient talks to a Gemini-style generateContent endpoint (the
// default architect reviewer provider). Auth is an API-key header.
type GeminiClient struct {
	baseURL     string
	model       string
	temperature float64
	maxTokens   int
	httpClient  *http.Client

	mu             sync.Mutex
	lastRequest    time.Time
	rateLimitDelay time.Duration
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiGenerationConfig struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
}

type geminiSafetySetting struct {
	Category  string `json:"category"`
	Threshold string `json:"threshold"`
}

type geminiRequest struct {
	Contents         []geminiContent        `json:"contents"`
	GenerationConfig geminiGenerationConfig `json:"generationConfig"`
	SafetySettings   []geminiSafetySetting  `json:"safetySettings"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []geminiPart `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// defaultSafetySettings keeps the reviewer from refusing to critique
// code that mentions security topics.
var defaultSafetySettings = []geminiSafetySetting{
	{Category: "HARM_CATEGORY_HARASSMENT", Threshold: "BLOCK_ONLY_HIGH"},
	{Category: "HARM_CATEGORY_DANGEROUS_CONTENT", Threshold: "BLOCK_ONLY_HIGH"},
}

// NewGeminiClient builds a client for the given endpoint config.
func NewGeminiClient(ep config.EndpointConfig, timeouts config.Timeouts) *GeminiClient {
	return &GeminiClient{
		baseURL:     ep.BaseURL,
		model:       ep.Model,
		temperature: ep.Temperature,
		maxTokens:   ep.MaxTokens,
		httpClient: &http.Client{
			Timeout: timeouts.HTTPClientTimeout,
		},
		rateLimitDelay: timeouts.RateLimitDelay,
	}
}

// SetModel changes the model used for generation.
func (c *GeminiClient) SetModel(model string) {
	if strings.TrimSpace(model) != "" {
		c.model = model
	}
}

// Generate sends one prompt and returns the candidate text. One attempt
// only; the reviewer converts failures into degraded results itself.
func (c *GeminiClient) Generate(ctx context.Context, credential, prompt string) (string, error) {
	if credential == "" {
		return "", fmt.Errorf("%s: %w", config.ProviderReviewer, config.ErrCredentialMissing)
	}

	c.mu.Lock()
	if c.rateLimitDelay > 0 {
		if elapsed := time.Since(c.lastRequest); elapsed < c.rateLimitDelay {
			time.Sleep(c.rateLimitDelay - elapsed)
		}
	}
	c.lastRequest = time.Now()
	c.mu.Unlock()

	reqBody := geminiRequest{
		Contents: []geminiContent{
			{Role: "user", Parts: []geminiPart{{Text: prompt}}},
		},
		GenerationConfig: geminiGenerationConfig{
			Temperature:     c.temperature,
			MaxOutputTokens: c.maxTokens,
		},
		SafetySettings: defaultSafetySettings,
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", c.baseURL, c.model)

	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", credential)

	logging.APIDebug("[gemini] POST %s prompt_len=%d", url, len(prompt))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", &TransportError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &TransportError{Err: fmt.Errorf("failed to read response: %w", err)}
	}

	if resp.StatusCode != http.StatusOK {
		logging.APIWarn("[gemini] status %d: %s", resp.StatusCode, truncate(string(body), 200))
		return "", statusError(config.ProviderReviewer, resp.StatusCode, string(body))
	}

	var geminiResp geminiResponse
	if err := json.Unmarshal(body, &geminiResp); err != nil {
		return "", &ParseError{Reason: err.Error(), Raw: truncate(string(body), 500)}
	}

	if geminiResp.Error != nil {
		return "", &TransportError{Status: resp.StatusCode, Body: geminiResp.Error.Message}
	}

	if len(geminiResp.Candidates) == 0 || len(geminiResp.Candidates[0].Content.Parts) == 0 {
		return "", ErrEmptyResponse
	}

	text := strings.TrimSpace(geminiResp.Candidates[0].Content.Parts[0].Text)
	if text == "" {
		return "", ErrEmptyResponse
	}

	logging.APIDebug("[gemini] ok, %d chars", len(text))
	return text, nil
}
