package config

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWatcher(t *testing.T) {
	clearEnv(t)

	watcher, err := NewWatcher("testdata/config.yml", slog.Default())
	require.NoError(t, err)
	defer func() { _ = watcher.Close() }()

	require.NotNil(t, watcher.Config())
	assert.Equal(t, []string{"home.example.com", "nas.example.com"}, watcher.Records())
}

func TestNewWatcherNonExistent(t *testing.T) {
	_, err := NewWatcher("nonexistent.yml", slog.Default())
	assert.Error(t, err)
}

func TestWatcherReload(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "config.yml")
	initial := `
records:
  - home.example.com
logging:
  level: "info"
`
	require.NoError(t, os.WriteFile(path, []byte(initial), 0o644))

	watcher, err := NewWatcher(path, slog.Default())
	require.NoError(t, err)
	defer func() { _ = watcher.Close() }()

	assert.Equal(t, []string{"home.example.com"}, watcher.Records())

	changed := make(chan *Config, 1)
	watcher.OnChange(func(cfg *Config) {
		select {
		case changed <- cfg:
		default:
		}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	go func() { _ = watcher.Start(ctx) }()

	// Give watcher time to start
	time.Sleep(100 * time.Millisecond)

	updated := `
records:
  - home.example.com
  - vpn.example.com
logging:
  level: "debug"
`
	require.NoError(t, os.WriteFile(path, []byte(updated), 0o644))

	select {
	case cfg := <-changed:
		assert.Equal(t, "debug", cfg.Logging.Level)
	case <-time.After(2 * time.Second):
		t.Fatal("Timeout waiting for config change notification")
	}

	assert.Equal(t, []string{"home.example.com", "vpn.example.com"}, watcher.Records())
}

func TestWatcherKeepsConfigOnInvalidReload(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte("records:\n  - home.example.com\n"), 0o644))

	watcher, err := NewWatcher(path, slog.Default())
	require.NoError(t, err)
	defer func() { _ = watcher.Close() }()

	_, err = watcher.reload()
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("records:\n  - localhost\n"), 0o644))
	_, err = watcher.reload()
	assert.Error(t, err)
	assert.Equal(t, []string{"home.example.com"}, watcher.Records())
}

func TestWatcherConcurrentAccess(t *testing.T) {
	clearEnv(t)

	watcher, err := NewWatcher("testdata/config.yml", slog.Default())
	require.NoError(t, err)
	defer func() { _ = watcher.Close() }()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				assert.NotNil(t, watcher.Config())
			}
		}()
	}
	wg.Wait()
}

func TestWatcherClose(t *testing.T) {
	watcher, err := NewWatcher("testdata/config.yml", slog.Default())
	require.NoError(t, err)

	assert.NoError(t, watcher.Close())
	// Second close is a no-op
	assert.NoError(t, watcher.Close())
}
