// Package deliver sends rendered replies to the chat platform.
package deliver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/onetwotrip/punk/internal/render"
)

// Sink delivers a reply to a target channel. SendRich may fail; callers keep
// a plain-text string ready and fall back to SendPlainText.
type Sink interface {
	SendRich(ctx context.Context, target string, msg render.Message) error
	SendPlainText(ctx context.Context, target, text string) error
}

// Webhook posts attachment-shaped JSON to a chat webhook URL.
type Webhook struct {
	url    string
	client *http.Client
}

// NewWebhook creates a webhook sink. url may be empty; sends then fail with
// a configuration error.
func NewWebhook(url string) *Webhook {
	return &Webhook{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// IsConfigured returns true if a webhook URL is set.
func (w *Webhook) IsConfigured() bool {
	return w.url != ""
}

type webhookPayload struct {
	Channel     string           `json:"channel,omitempty"`
	Text        string           `json:"text,omitempty"`
	Attachments []render.Message `json:"attachments,omitempty"`
}

// SendRich delivers the structured form as a single attachment.
func (w *Webhook) SendRich(ctx context.Context, target string, msg render.Message) error {
	return w.post(ctx, webhookPayload{
		Channel:     target,
		Attachments: []render.Message{msg},
	})
}

// SendPlainText delivers the fallback form.
func (w *Webhook) SendPlainText(ctx context.Context, target, text string) error {
	return w.post(ctx, webhookPayload{
		Channel: target,
		Text:    text,
	})
}

func (w *Webhook) post(ctx context.Context, payload webhookPayload) error {
	if !w.IsConfigured() {
		return fmt.Errorf("chat webhook not configured")
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("post to chat webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return fmt.Errorf("chat webhook returned %d: %s", resp.StatusCode, snippet)
	}
	return nil
}
