package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// Webhook POSTs change reports as JSON to a configured endpoint.
type Webhook struct {
	endpoint string
	client   *http.Client
}

// NewWebhook creates a Webhook notifier. The endpoint comes from operator
// config and may point at internal services; only the scheme is checked.
func NewWebhook(endpoint string, timeout time.Duration) (*Webhook, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("webhook endpoint: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" || u.Host == "" {
		return nil, fmt.Errorf("webhook endpoint: must be an http(s) URL, got %q", endpoint)
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Webhook{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
	}, nil
}

// Notify implements Notifier.
func (w *Webhook) Notify(ctx context.Context, ch *Change) error {
	payload, err := json.Marshal(ch)
	if err != nil {
		return fmt.Errorf("webhook marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook http %d", resp.StatusCode)
	}
	return nil
}
