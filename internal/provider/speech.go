package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"archon/internal/config"
	"archon/internal/logging"
)

// SpeechClient talks to an ElevenLabs-style text-to-speech endpoint.
// Synthesize returns raw playable audio bytes.
type SpeechClient struct {
	baseURL    string
	voice      string
	model      string
	httpClient *http.Client
}

type speechRequest struct {
	Text          string         `json:"text"`
	ModelID       string         `json:"model_id"`
	VoiceSettings *voiceSettings `json:"voice_settings,omitempty"`
}

type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
}

// NewSpeechClient builds a client for the given speech config.
func NewSpeechClient(sc config.SpeechConfig, timeouts config.Timeouts) *SpeechClient {
	return &SpeechClient{
		baseURL: sc.BaseURL,
		voice:   sc.Voice,
		model:   sc.Model,
		httpClient: &http.Client{
			Timeout: timeouts.SpeechTimeout,
		},
	}
}

// SetVoice changes the voice used for synthesis.
func (c *SpeechClient) SetVoice(voice string) {
	if voice != "" {
		c.voice = voice
	}
}

// Synthesize converts text to audio. One attempt only; the speech
// manager logs and skips failures rather than retrying.
func (c *SpeechClient) Synthesize(ctx context.Context, credential, text string) ([]byte, error) {
	if credential == "" {
		return nil, fmt.Errorf("%s: %w", config.ProviderSpeech, config.ErrCredentialMissing)
	}

	reqBody := speechRequest{
		Text:    text,
		ModelID: c.model,
		VoiceSettings: &voiceSettings{
			Stability:       0.5,
			SimilarityBoost: 0.75,
		},
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/v1/text-to-speech/%s", c.baseURL, c.voice)

	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("xi-api-key", credential)

	logging.APIDebug("[speech] POST voice=%s text_len=%d", c.voice, len(text))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &TransportError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Err: fmt.Errorf("failed to read audio: %w", err)}
	}

	if resp.StatusCode != http.StatusOK {
		logging.APIWarn("[speech] status %d: %s", resp.StatusCode, truncate(string(body), 200))
		return nil, statusError(config.ProviderSpeech, resp.StatusCode, string(body))
	}

	if len(body) == 0 {
		return nil, ErrEmptyResponse
	}

	logging.APIDebug("[speech] ok, %d audio bytes", len(body))
	return body, nil
}
