package llm

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	json "github.com/goccy/go-json"

	"pumpadvisor/internal/config"
)

type capturedRequest struct {
	Model       string              `json:"model"`
	Temperature float64             `json:"temperature"`
	Stop        []string            `json:"stop"`
	Messages    []map[string]string `json:"messages"`
}

func TestCompleteSendsExpectedPayload(t *testing.T) {
	var captured capturedRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("unexpected auth header %q", got)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[{"message":{"content":"### Pattern Identified\n..."}}]}`))
	}))
	defer srv.Close()

	client := New(srv.Client(), config.LLMConfig{Model: "test-model", BaseURL: srv.URL, APIKey: "test-key"})
	got, err := client.Complete(context.Background(), "system text", "user text")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "### Pattern Identified\n..." {
		t.Fatalf("response not returned verbatim: %q", got)
	}

	if captured.Model != "test-model" {
		t.Fatalf("unexpected model %q", captured.Model)
	}
	if captured.Temperature != 0 {
		t.Fatalf("expected temperature 0, got %v", captured.Temperature)
	}
	if len(captured.Stop) != 1 || captured.Stop[0] != "```" {
		t.Fatalf("unexpected stop sequence %v", captured.Stop)
	}
	if len(captured.Messages) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(captured.Messages))
	}
	if captured.Messages[0]["role"] != "system" || captured.Messages[0]["content"] != "system text" {
		t.Fatalf("unexpected system message %v", captured.Messages[0])
	}
	if captured.Messages[1]["role"] != "user" || captured.Messages[1]["content"] != "user text" {
		t.Fatalf("unexpected user message %v", captured.Messages[1])
	}
	if captured.Messages[2]["role"] != "assistant" || captured.Messages[2]["content"] != "```markdown" {
		t.Fatalf("expected assistant fence primer, got %v", captured.Messages[2])
	}
}

func TestCompleteAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client := New(srv.Client(), config.LLMConfig{Model: "m", BaseURL: srv.URL})
	_, err := client.Complete(context.Background(), "s", "u")
	if !errors.Is(err, ErrCompletion) {
		t.Fatalf("expected ErrCompletion, got %v", err)
	}
}

func TestCompleteTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // connection refused from here on

	client := New(nil, config.LLMConfig{Model: "m", BaseURL: srv.URL})
	_, err := client.Complete(context.Background(), "s", "u")
	if !errors.Is(err, ErrCompletion) {
		t.Fatalf("expected ErrCompletion, got %v", err)
	}
}

func TestCompleteEmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	client := New(srv.Client(), config.LLMConfig{Model: "m", BaseURL: srv.URL})
	_, err := client.Complete(context.Background(), "s", "u")
	if !errors.Is(err, ErrCompletion) {
		t.Fatalf("expected ErrCompletion, got %v", err)
	}
}
