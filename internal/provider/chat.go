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

// ChatClient talks to an OpenAI-compatible chat completions endpoint
// (the default reasoning provider). The credential is passed per call so
// hot-reloaded keys take effect without rebuilding the client.
type ChatClient struct {
	baseURL     string
	model       string
	temperature float64
	maxTokens   int
	httpClient  *http.Client

	mu             sync.Mutex
	lastRequest    time.Time
	rateLimitDelay time.Duration
}

// ChatMessage is one entry in the request message chain.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// NewChatClient builds a client for the given endpoint config.
func NewChatClient(ep config.EndpointConfig, timeouts config.Timeouts) *ChatClient {
	return &ChatClient{
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

// SetModel changes the model used for completions.
func (c *ChatClient) SetModel(model string) {
	if strings.TrimSpace(model) != "" {
		c.model = model
	}
}

// Model returns the current model.
func (c *ChatClient) Model() string {
	return c.model
}

// Complete sends one system-instructed message chain and returns the
// assistant content. One attempt only; callers own retry policy.
func (c *ChatClient) Complete(ctx context.Context, credential, systemPrompt string, chain []ChatMessage) (string, error) {
	if credential == "" {
		return "", fmt.Errorf("%s: %w", config.ProviderReasoner, config.ErrCredentialMissing)
	}

	// Rate limiting: minimum spacing between consecutive calls
	c.mu.Lock()
	if c.rateLimitDelay > 0 {
		if elapsed := time.Since(c.lastRequest); elapsed < c.rateLimitDelay {
			time.Sleep(c.rateLimitDelay - elapsed)
		}
	}
	c.lastRequest = time.Now()
	c.mu.Unlock()

	messages := make([]ChatMessage, 0, len(chain)+1)
	if systemPrompt != "" {
		messages = append(messages, ChatMessage{Role: "system", Content: systemPrompt})
	}
	messages = append(messages, chain...)

	reqBody := chatRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL, bytes.NewReader(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+credential)

	logging.APIDebug("[chat] POST %s model=%s messages=%d", c.baseURL, c.model, len(messages))

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
		logging.APIWarn("[chat] status %d: %s", resp.StatusCode, truncate(string(body), 200))
		return "", statusError(config.ProviderReasoner, resp.StatusCode, string(body))
	}

	var chatResp chatResponse
	if err := json.Unmarshal(body, &chatResp); err != nil {
		return "", &ParseError{Reason: err.Error(), Raw: truncate(string(body), 500)}
	}

	if chatResp.Error != nil {
		return "", &TransportError{Status: resp.StatusCode, Body: chatResp.Error.Message}
	}

	if len(chatResp.Choices) == 0 {
		return "", ErrEmptyResponse
	}

	content := strings.TrimSpace(chatResp.Choices[0].Message.Content)
	if content == "" {
		return "", ErrEmptyResponse
	}

	logging.APIDebug("[chat] ok, %d chars", len(content))
	return content, nil
}
