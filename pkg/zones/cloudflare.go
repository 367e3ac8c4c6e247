package zones

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/cloudflare/cloudflare-go"
)

// Cloudflare implements Directory on the Cloudflare v4 API.
type Cloudflare struct {
	api *cloudflare.API
}

// CloudflareOption customises the API client.
type CloudflareOption = cloudflare.Option

// WithBaseURL points the client at another API endpoint, e.g. a test server.
func WithBaseURL(url string) CloudflareOption {
	return cloudflare.BaseURL(url)
}

// WithHTTPClient sets the HTTP client used for API calls.
func WithHTTPClient(client *http.Client) CloudflareOption {
	return cloudflare.HTTPClient(client)
}

// NewCloudflare creates a directory authenticated with an API token.
func NewCloudflare(token string, opts ...CloudflareOption) (*Cloudflare, error) {
	if token == "" {
		return nil, errors.New("cloudflare api token is empty")
	}
	api, err := cloudflare.NewWithAPIToken(token, opts...)
	if err != nil {
		return nil, fmt.Errorf("error creating cloudflare api client: %w", err)
	}
	return &Cloudflare{api: api}, nil
}

// ListZones returns every zone visible to the token.
func (c *Cloudflare) ListZones(ctx context.Context) ([]Zone, error) {
	zs, err := c.api.ListZones(ctx)
	if err != nil {
		return nil, fmt.Errorf("error listing zones: %w", err)
	}
	out := make([]Zone, 0, len(zs))
	for _, z := range zs {
		out = append(out, Zone{ID: z.ID, Name: z.Name})
	}
	return out, nil
}

// ListRecords returns the A records of a zone.
func (c *Cloudflare) ListRecords(ctx context.Context, zoneID string) ([]Record, error) {
	rs, _, err := c.api.ListDNSRecords(ctx, cloudflare.ZoneIdentifier(zoneID), cloudflare.ListDNSRecordsParams{
		Type: "A",
	})
	if err != nil {
		return nil, fmt.Errorf("error listing records for zone %s: %w", zoneID, err)
	}
	out := make([]Record, 0, len(rs))
	for _, r := range rs {
		out = append(out, Record{
			ZoneID:  zoneID,
			ID:      r.ID,
			Name:    r.Name,
			Type:    r.Type,
			Content: r.Content,
			Comment: r.Comment,
			Tags:    r.Tags,
			TTL:     r.TTL,
			Proxied: r.Proxied != nil && *r.Proxied,
		})
	}
	return out, nil
}

// UpdateRecord overwrites rec at the provider. Comment and tags are sent back
// unchanged so the update does not clear them. The provider may answer 200
// with success false and an empty result, so the echoed record is checked
// against what was sent.
func (c *Cloudflare) UpdateRecord(ctx context.Context, rec Record) error {
	proxied := rec.Proxied
	tags := rec.Tags
	if tags == nil {
		tags = []string{}
	}
	got, err := c.api.UpdateDNSRecord(ctx, cloudflare.ZoneIdentifier(rec.ZoneID), cloudflare.UpdateDNSRecordParams{
		ID:      rec.ID,
		Type:    rec.Type,
		Name:    rec.Name,
		Content: rec.Content,
		TTL:     rec.TTL,
		Proxied: &proxied,
		Comment: rec.Comment,
		Tags:    tags,
	})
	if err != nil {
		return fmt.Errorf("error updating record %s: %w", rec.Name, err)
	}
	if got.ID != rec.ID || got.Content != rec.Content {
		return fmt.Errorf("%w: %s", ErrUpdateRejected, rec.Name)
	}
	return nil
}
