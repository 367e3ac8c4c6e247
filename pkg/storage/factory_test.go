package storage

import (
	"context"
	"net/netip"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingMetrics struct {
	failures atomic.Int64
}

func (c *countingMetrics) AddPersistFailure(context.Context, string) {
	c.failures.Add(1)
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, BackendFile, cfg.Backend)
	assert.Equal(t, "./last-ip.txt", cfg.PrimaryFile)
	assert.Equal(t, "./vpn-ip.txt", cfg.VPNFile)
	assert.NoError(t, cfg.Validate())
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr error
	}{
		{
			name:   "valid file config",
			config: Config{Backend: BackendFile, PrimaryFile: "a", VPNFile: "b"},
		},
		{
			name:   "valid sqlite config",
			config: Config{Backend: BackendSQLite, SQLitePath: "x.db"},
		},
		{
			name:    "file config missing path",
			config:  Config{Backend: BackendFile, PrimaryFile: "a"},
			wantErr: ErrInvalidConfig,
		},
		{
			name:    "sqlite config missing path",
			config:  Config{Backend: BackendSQLite},
			wantErr: ErrInvalidConfig,
		},
		{
			name:    "invalid backend",
			config:  Config{Backend: "d1"},
			wantErr: ErrInvalidBackend,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestNew(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name string
		cfg  Config
	}{
		{
			name: "file",
			cfg: Config{
				Backend:     BackendFile,
				PrimaryFile: filepath.Join(dir, "last-ip.txt"),
				VPNFile:     filepath.Join(dir, "vpn-ip.txt"),
			},
		},
		{
			name: "sqlite",
			cfg:  Config{Backend: BackendSQLite, SQLitePath: filepath.Join(dir, "state.db")},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, err := New(&tt.cfg, nil)
			require.NoError(t, err)
			defer func() { _ = store.Close() }()

			ctx := context.Background()
			require.NoError(t, store.Save(ctx, KeyVPN, netip.MustParseAddr("203.0.113.7")))
			entry, err := store.Load(ctx, KeyVPN)
			require.NoError(t, err)
			assert.Equal(t, "203.0.113.7", entry.IP.String())
		})
	}
}

func TestNewInvalid(t *testing.T) {
	_, err := New(&Config{Backend: "redis"}, nil)
	assert.ErrorIs(t, err, ErrInvalidBackend)
}

func TestNewRecordsPersistFailures(t *testing.T) {
	metrics := &countingMetrics{}
	store, err := New(&Config{
		Backend:     BackendFile,
		PrimaryFile: "/nonexistent/dir/last-ip.txt",
		VPNFile:     "/nonexistent/dir/vpn-ip.txt",
	}, metrics)
	require.NoError(t, err)

	err = store.Save(context.Background(), KeyPrimary, netip.MustParseAddr("198.51.100.1"))
	assert.Error(t, err)
	assert.Equal(t, int64(1), metrics.failures.Load())
}

func TestMemoryStore(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	_, err := store.Load(ctx, KeyVPN)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.Save(ctx, KeyVPN, netip.MustParseAddr("203.0.113.7")))
	entry, err := store.Load(ctx, KeyVPN)
	require.NoError(t, err)
	assert.Equal(t, "203.0.113.7", entry.IP.String())
	assert.NoError(t, store.Close())
}
