// Package notify posts a short message to an optional webhook when a
// drop-directory analysis finishes.
package notify

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	json "github.com/goccy/go-json"

	"pumpadvisor/internal/config"
)

// Message represents the outbound notification payload.
type Message struct {
	Text string `json:"text"`
}

var client = &http.Client{Timeout: 15 * time.Second}

// Send posts the message to the configured webhook. A missing webhook
// URL makes this a no-op.
func Send(ctx context.Context, cfg config.Config, msg Message) error {
	if cfg.WebhookURL == "" {
		return nil
	}
	buf, _ := json.Marshal(msg)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.WebhookURL, bytes.NewReader(buf))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook status %d", resp.StatusCode)
	}
	return nil
}
