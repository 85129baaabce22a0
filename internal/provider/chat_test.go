package provider

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"archon/internal/config"
)

func testTimeouts() config.Timeouts {
	return config.FastTimeouts()
}

func TestChatClient_Complete_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("Expected POST, got %s", r.Method)
		}
		if r.Header.Get("Authorization") != "Bearer test-key-12345" {
			t.Error("Expected bearer auth with the passed credential")
		}

		var body map[string]interface{}
		json.NewDecoder(r.Body).Decode(&body)
		if body["model"] != "test-model" {
			t.Errorf("Expected model test-model, got %v", body["model"])
		}
		msgs, _ := body["messages"].([]interface{})
		if len(msgs) != 2 {
			t.Errorf("Expected system+user messages, got %d", len(msgs))
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"choices":[{"message":{"content":"Hello, world!"}}]}`))
	}))
	defer server.Close()

	client := NewChatClient(config.EndpointConfig{
		BaseURL: server.URL, Model: "test-model", Temperature: 0.7, MaxTokens: 100,
	}, testTimeouts())

	resp, err := client.Complete(context.Background(), "test-key-12345", "be direct",
		[]ChatMessage{{Role: "user", Content: "Hello"}})
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if resp != "Hello, world!" {
		t.Errorf("Expected 'Hello, world!', got %q", resp)
	}
}

func TestChatClient_Complete_MissingCredential(t *testing.T) {
	client := NewChatClient(config.EndpointConfig{BaseURL: "http://unused"}, testTimeouts())

	_, err := client.Complete(context.Background(), "", "", nil)
	if !errors.Is(err, config.ErrCredentialMissing) {
		t.Errorf("Expected ErrCredentialMissing, got %v", err)
	}
}

func TestChatClient_Complete_Unauthorized(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"message":"invalid api key"}}`))
	}))
	defer server.Close()

	client := NewChatClient(config.EndpointConfig{BaseURL: server.URL}, testTimeouts())

	_, err := client.Complete(context.Background(), "bad-key-12345", "", nil)

	var credErr *config.CredentialFormatError
	if !errors.As(err, &credErr) {
		t.Fatalf("Expected CredentialFormatError on 401, got %v", err)
	}
	if Retryable(err) {
		t.Error("401 must not be retryable")
	}
}

func TestChatClient_Complete_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("upstream exploded"))
	}))
	defer server.Close()

	client := NewChatClient(config.EndpointConfig{BaseURL: server.URL}, testTimeouts())

	_, err := client.Complete(context.Background(), "test-key-12345", "", nil)

	var te *TransportError
	if !errors.As(err, &te) {
		t.Fatalf("Expected TransportError, got %v", err)
	}
	if te.Status != http.StatusInternalServerError {
		t.Errorf("Expected status 500, got %d", te.Status)
	}
	if !Retryable(err) {
		t.Error("500 should be retryable")
	}
}

func TestChatClient_Complete_EmptyContent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"choices":[{"message":{"content":"   "}}]}`))
	}))
	defer server.Close()

	client := NewChatClient(config.EndpointConfig{BaseURL: server.URL}, testTimeouts())

	_, err := client.Complete(context.Background(), "test-key-12345", "", nil)
	if !errors.Is(err, ErrEmptyResponse) {
		t.Errorf("Expected ErrEmptyResponse for blank content, got %v", err)
	}
}

func TestChatClient_Complete_NoChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"choices":[]}`))
	}))
	defer server.Close()

	client := NewChatClient(config.EndpointConfig{BaseURL: server.URL}, testTimeouts())

	_, err := client.Complete(context.Background(), "test-key-12345", "", nil)
	if !errors.Is(err, ErrEmptyResponse) {
		t.Errorf("Expected ErrEmptyResponse for no choices, got %v", err)
	}
}

func TestChatClient_Complete_APIErrorEnvelope(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"error":{"message":"model overloaded"}}`))
	}))
	defer server.Close()

	client := NewChatClient(config.EndpointConfig{BaseURL: server.URL}, testTimeouts())

	_, err := client.Complete(context.Background(), "test-key-12345", "", nil)

	var te *TransportError
	if !errors.As(err, &te) {
		t.Fatalf("Expected TransportError for error envelope, got %v", err)
	}
}

func TestErrKind_Names(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{ErrEmptyResponse, "empty response"},
		{&TransportError{Status: 503}, "transport error (status 503)"},
		{&TransportError{Err: errors.New("refused")}, "transport error"},
		{&ParseError{Reason: "bad json"}, "parse error"},
		{&config.CredentialFormatError{Provider: config.ProviderReasoner, Reason: "x"}, "credential error"},
	}

	for _, tt := range tests {
		if got := ErrKind(tt.err); got != tt.want {
			t.Errorf("ErrKind(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}
