// Package zones looks up and rewrites A records at the DNS provider.
package zones

import (
	"context"
	"errors"
	"strings"
)

var (
	// ErrZoneNotFound is returned when no zone matches a record name
	ErrZoneNotFound = errors.New("zone not found")

	// ErrRecordNotFound is returned when a zone has no A record with the exact name
	ErrRecordNotFound = errors.New("record not found")

	// ErrUpdateRejected is returned when the provider does not confirm an update
	ErrUpdateRejected = errors.New("update not confirmed by provider")
)

// Zone is a DNS zone hosted at the provider.
type Zone struct {
	ID   string
	Name string
}

// Record is a DNS record as the provider reports it.
type Record struct {
	ZoneID  string
	ID      string
	Name    string
	Type    string
	Content string
	Comment string
	Tags    []string
	TTL     int
	Proxied bool
}

// Directory is the subset of a DNS provider used for reconciliation.
type Directory interface {
	ListZones(ctx context.Context) ([]Zone, error)
	// ListRecords returns the A records of zoneID.
	ListRecords(ctx context.Context, zoneID string) ([]Record, error)
	UpdateRecord(ctx context.Context, rec Record) error
}

// ZoneName derives the zone of a record name from its last two labels, so
// "home.example.com" lives in "example.com". Multi-label public suffixes such
// as "co.uk" are not special-cased. Case is preserved; one trailing dot is
// dropped. ok is false for names with fewer than two labels.
func ZoneName(fqdn string) (zone string, ok bool) {
	labels := strings.Split(strings.TrimSuffix(fqdn, "."), ".")
	if len(labels) < 2 || labels[len(labels)-1] == "" || labels[len(labels)-2] == "" {
		return "", false
	}
	return labels[len(labels)-2] + "." + labels[len(labels)-1], true
}

// FindZone returns the zone whose name equals name exactly.
func FindZone(zones []Zone, name string) (Zone, error) {
	for _, z := range zones {
		if z.Name == name {
			return z, nil
		}
	}
	return Zone{}, ErrZoneNotFound
}

// FindARecord returns the A record whose name equals name exactly.
func FindARecord(records []Record, name string) (Record, error) {
	for _, r := range records {
		if r.Type == "A" && r.Name == name {
			return r, nil
		}
	}
	return Record{}, ErrRecordNotFound
}
