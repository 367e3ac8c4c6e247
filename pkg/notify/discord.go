package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/netip"
	"strings"
)

// Discord posts messages to a Discord channel webhook.
type Discord struct {
	client     *http.Client
	webhookURL string
}

// New returns a Discord notifier, or Noop when webhookURL is empty.
func New(webhookURL string, client *http.Client) Notifier {
	if webhookURL == "" {
		return Noop{}
	}
	return NewDiscord(webhookURL, client)
}

// NewDiscord creates a notifier for webhookURL. A nil client uses http.DefaultClient.
func NewDiscord(webhookURL string, client *http.Client) *Discord {
	if client == nil {
		client = http.DefaultClient
	}
	return &Discord{client: client, webhookURL: webhookURL}
}

// NotifyUpdate posts the record update summary. Nothing is sent for an
// update without records.
func (d *Discord) NotifyUpdate(ctx context.Context, u Update) error {
	if len(u.Records) == 0 {
		return nil
	}
	return d.send(ctx, FormatUpdate(u))
}

// NotifyLeak posts the leak warning.
func (d *Discord) NotifyLeak(ctx context.Context, primary, vpn netip.Addr) error {
	return d.send(ctx, FormatLeak(primary, vpn))
}

func (d *Discord) send(ctx context.Context, content string) error {
	body, err := json.Marshal(map[string]string{"content": content})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDelivery, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDelivery, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDelivery, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return fmt.Errorf("%w: status %d: %s", ErrDelivery, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	return nil
}
