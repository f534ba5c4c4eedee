// Package llm talks to an OpenAI-compatible chat-completions endpoint.
// The exchange is seeded with an opening markdown code fence and stopped
// on the closing fence, so the model's reply arrives as one markdown block.
package llm

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	json "github.com/goccy/go-json"

	"pumpadvisor/internal/config"
)

// ErrCompletion marks any transport or API failure from the completion
// service. It is surfaced to the caller as-is; there is no retry and no
// fallback model.
var ErrCompletion = errors.New("completion service error")

const (
	// Deterministic decoding; identical prompts yield identical replies.
	temperature = 0
	// The assistant primer opens a markdown fence, the stop sequence
	// closes it.
	assistantPrimer = "```markdown"
	stopSequence    = "```"
)

// Client calls the configured completion endpoint.
type Client struct {
	httpClient *http.Client
	cfg        config.LLMConfig
}

// New builds a client. A nil httpClient gets a long transport timeout;
// the completion call is the dominant latency source of the pipeline.
func New(httpClient *http.Client, cfg config.LLMConfig) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 180 * time.Second}
	}
	return &Client{httpClient: httpClient, cfg: cfg}
}

// Complete sends the system and user prompts and returns the raw
// response text verbatim.
func (c *Client) Complete(ctx context.Context, system, user string) (string, error) {
	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/v1/chat/completions"
	payload := map[string]interface{}{
		"model":       c.cfg.Model,
		"temperature": temperature,
		"stop":        []string{stopSequence},
		"messages": []map[string]string{
			{"role": "system", "content": system},
			{"role": "user", "content": user},
			{"role": "assistant", "content": assistantPrimer},
		},
	}
	buf, _ := json.Marshal(payload)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(buf))
	if err != nil {
		return "", fmt.Errorf("build request: %v: %w", err, ErrCompletion)
	}
	req.Header.Set("Content-Type", "application/json")
	if strings.TrimSpace(c.cfg.APIKey) != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%v: %w", err, ErrCompletion)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("status %d: %s: %w", resp.StatusCode, strings.TrimSpace(string(body)), ErrCompletion)
	}

	var wrapper struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&wrapper); err != nil {
		return "", fmt.Errorf("decode response: %v: %w", err, ErrCompletion)
	}
	if len(wrapper.Choices) == 0 {
		return "", fmt.Errorf("empty choices: %w", ErrCompletion)
	}
	return wrapper.Choices[0].Message.Content, nil
}
