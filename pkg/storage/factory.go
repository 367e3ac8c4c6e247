package storage

import (
	"context"
	"fmt"
	"net/netip"
	"sync"
	"time"
)

// MetricsRecorder defines the interface for recording storage metrics
// This interface breaks the import cycle between storage and telemetry packages
type MetricsRecorder interface {
	AddPersistFailure(ctx context.Context, backend string)
}

// New creates a store for the configured backend. Write failures are
// reported to metrics when it is non-nil.
func New(cfg *Config, metrics MetricsRecorder) (Store, error) {
	if cfg == nil {
		def := DefaultConfig()
		cfg = &def
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	var (
		store Store
		err   error
	)
	switch cfg.Backend {
	case BackendFile:
		store, err = NewFileStore(map[string]string{
			KeyPrimary: cfg.PrimaryFile,
			KeyVPN:     cfg.VPNFile,
		})
	case BackendSQLite:
		store, err = NewSQLiteStore(cfg.SQLitePath, cfg.BusyTimeout)
	}
	if err != nil {
		return nil, err
	}

	if metrics == nil {
		return store, nil
	}
	return &instrumented{Store: store, backend: string(cfg.Backend), metrics: metrics}, nil
}

type instrumented struct {
	Store
	metrics MetricsRecorder
	backend string
}

func (s *instrumented) Save(ctx context.Context, key string, ip netip.Addr) error {
	err := s.Store.Save(ctx, key, ip)
	if err != nil {
		s.metrics.AddPersistFailure(ctx, s.backend)
	}
	return err
}

// MemoryStore keeps entries in memory only. Used when nothing should touch
// disk, e.g. by the reporter client and in tests.
type MemoryStore struct {
	entries map[string]Entry
	mu      sync.Mutex
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]Entry)}
}

// Load returns the stored entry or ErrNotFound
func (m *MemoryStore) Load(_ context.Context, key string) (*Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok {
		return nil, ErrNotFound
	}
	return &e, nil
}

// Save stores ip under key
func (m *MemoryStore) Save(_ context.Context, key string, ip netip.Addr) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = Entry{Key: key, IP: ip, UpdatedAt: time.Now()}
	return nil
}

// Close does nothing
func (m *MemoryStore) Close() error {
	return nil
}
