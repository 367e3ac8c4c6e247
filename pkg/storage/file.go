package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/netip"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// FileStore keeps one plain-text file per key holding just the IP address,
// the format older deployments already have on disk.
type FileStore struct {
	paths  map[string]string
	mu     sync.Mutex
	closed bool
}

// NewFileStore creates a store writing each key to its mapped path.
func NewFileStore(paths map[string]string) (*FileStore, error) {
	if len(paths) == 0 {
		return nil, ErrInvalidConfig
	}
	cp := make(map[string]string, len(paths))
	for k, p := range paths {
		if p == "" {
			return nil, fmt.Errorf("%w: empty path for %s", ErrInvalidConfig, k)
		}
		cp[k] = p
	}
	return &FileStore{paths: cp}, nil
}

// Load reads the file for key. A missing or empty file is ErrNotFound.
func (s *FileStore) Load(_ context.Context, key string) (*Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrClosed
	}
	path, ok := s.paths[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	raw := strings.TrimSpace(string(data))
	if raw == "" {
		return nil, ErrNotFound
	}
	ip, err := netip.ParseAddr(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, path, err)
	}

	entry := &Entry{Key: key, IP: ip}
	if info, statErr := os.Stat(path); statErr == nil {
		entry.UpdatedAt = info.ModTime()
	}
	return entry, nil
}

// Save writes ip to a temp file next to the target and renames it into
// place so readers never observe a partial write.
func (s *FileStore) Save(_ context.Context, key string, ip netip.Addr) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	path, ok := s.paths[key]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.WriteString(ip.String()); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write %s: %w", tmpName, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", tmpName, err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("chmod %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename into %s: %w", path, err)
	}
	return nil
}

// Close marks the store closed. Files are not held open between calls.
func (s *FileStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}
