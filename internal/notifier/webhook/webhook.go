// Package webhook implements an HTTP webhook notifier
package webhook

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/newthinker/nextsignal/internal/core"
	"github.com/newthinker/nextsignal/internal/notifier"
)

// Webhook implements the Notifier interface for HTTP webhooks
type Webhook struct {
	url     string
	headers map[string]string
	client  *http.Client
}

// New creates a new Webhook notifier
func New(url string, headers map[string]string) *Webhook {
	return &Webhook{
		url:     url,
		headers: headers,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

func (w *Webhook) Name() string { return "webhook" }

// Payload is the JSON body posted for each delivery.
type Payload struct {
	Type       string        `json:"type"`
	Owner      string        `json:"owner"`
	Market     core.Market   `json:"market"`
	At         string        `json:"at"`
	Signals    []core.Signal `json:"signals"`
	RevealedAt string        `json:"revealed_at"`
}

func (w *Webhook) Send(ctx context.Context, d notifier.Delivery) error {
	signals := d.Signals
	if signals == nil {
		signals = []core.Signal{}
	}
	return w.post(ctx, Payload{
		Type:       "generation",
		Owner:      d.Owner,
		Market:     d.Market,
		At:         d.At.String(),
		Signals:    signals,
		RevealedAt: d.RevealedAt.UTC().Format(time.RFC3339),
	})
}

func (w *Webhook) post(ctx context.Context, payload any) error {
	body, err := sonic.Marshal(payload)
	if err != nil {
		return fmt.Errorf("webhook: failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook: failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	for k, v := range w.headers {
		req.Header.Set(k, v)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook: server returned %d", resp.StatusCode)
	}

	return nil
}
