package observer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/netip"
	"strings"
)

// maxBody caps how much of a lookup response is read.
const maxBody = 1 << 10

// HTTPObserver asks a web service such as ipify for the caller's address.
// The service may answer with {"ip":"..."} or a bare address.
type HTTPObserver struct {
	client *http.Client
	url    string
}

// NewHTTP creates an observer for url. A nil client uses http.DefaultClient.
func NewHTTP(url string, client *http.Client) *HTTPObserver {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPObserver{client: client, url: url}
}

// Observe performs one lookup.
func (o *HTTPObserver) Observe(ctx context.Context) (netip.Addr, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.url, nil)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("build ip lookup request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("ip lookup: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return netip.Addr{}, fmt.Errorf("%w: status %d", ErrInvalidResponse, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return netip.Addr{}, fmt.Errorf("read ip lookup response: %w", err)
	}

	raw := strings.TrimSpace(string(body))
	var payload struct {
		IP string `json:"ip"`
	}
	if strings.HasPrefix(raw, "{") {
		if err := json.Unmarshal(body, &payload); err != nil {
			return netip.Addr{}, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
		}
		raw = payload.IP
	}

	addr, err := netip.ParseAddr(raw)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("%w: %q", ErrInvalidResponse, raw)
	}
	return ipv4(addr)
}
