// Package storage persists the last known public IP of each device so a
// restart neither re-notifies for an unchanged primary IP nor forgets the
// most recent VPN report.
package storage

import (
	"context"
	"fmt"
	"net/netip"
	"time"
)

// Store defines the interface for all storage backends.
// Implementations must be safe for concurrent use.
type Store interface {
	// Load returns the persisted entry for key, or ErrNotFound.
	Load(ctx context.Context, key string) (*Entry, error)
	// Save replaces the persisted entry for key.
	Save(ctx context.Context, key string, ip netip.Addr) error
	Close() error
}

// Entry is a persisted device IP.
type Entry struct {
	UpdatedAt time.Time  `json:"updated_at"`
	Key       string     `json:"key"`
	IP        netip.Addr `json:"ip"`
}

// Keys understood by every backend.
const (
	KeyPrimary = "primary"
	KeyVPN     = "vpn"
)

// BackendType represents the type of storage backend
type BackendType string

const (
	BackendFile   BackendType = "file"
	BackendSQLite BackendType = "sqlite"
)

// Config represents storage configuration
type Config struct {
	Backend     BackendType   `yaml:"backend"`
	PrimaryFile string        `yaml:"primary_file"`
	VPNFile     string        `yaml:"vpn_file"`
	SQLitePath  string        `yaml:"sqlite_path"`
	BusyTimeout time.Duration `yaml:"busy_timeout"`
}

// DefaultConfig returns the file backend using the historical file names.
func DefaultConfig() Config {
	return Config{
		Backend:     BackendFile,
		PrimaryFile: "./last-ip.txt",
		VPNFile:     "./vpn-ip.txt",
		SQLitePath:  "./bt-dns-manager.db",
		BusyTimeout: 5 * time.Second,
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendFile:
		if c.PrimaryFile == "" || c.VPNFile == "" {
			return fmt.Errorf("%w: file backend needs primary and vpn paths", ErrInvalidConfig)
		}
	case BackendSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("%w: sqlite backend needs a path", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: %s", ErrInvalidBackend, c.Backend)
	}
	return nil
}
