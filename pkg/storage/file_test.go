package storage

import (
	"context"
	"net/netip"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFileStore(t *testing.T) (*FileStore, string) {
	t.Helper()
	dir := t.TempDir()
	store, err := NewFileStore(map[string]string{
		KeyPrimary: filepath.Join(dir, "last-ip.txt"),
		KeyVPN:     filepath.Join(dir, "vpn-ip.txt"),
	})
	require.NoError(t, err)
	return store, dir
}

func TestFileStore_LoadMissing(t *testing.T) {
	store, _ := newTestFileStore(t)

	_, err := store.Load(context.Background(), KeyPrimary)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFileStore_RoundTrip(t *testing.T) {
	store, dir := newTestFileStore(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, KeyVPN, netip.MustParseAddr("203.0.113.7")))

	entry, err := store.Load(ctx, KeyVPN)
	require.NoError(t, err)
	assert.Equal(t, "203.0.113.7", entry.IP.String())

	// On-disk format is just the address
	data, err := os.ReadFile(filepath.Join(dir, "vpn-ip.txt"))
	require.NoError(t, err)
	assert.Equal(t, "203.0.113.7", string(data))

	// No temp files left behind
	files, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, files, 1)
}

func TestFileStore_ReadsLegacyFileWithNewline(t *testing.T) {
	store, dir := newTestFileStore(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "last-ip.txt"), []byte("198.51.100.4\n"), 0o644))

	entry, err := store.Load(context.Background(), KeyPrimary)
	require.NoError(t, err)
	assert.Equal(t, netip.MustParseAddr("198.51.100.4"), entry.IP)
}

func TestFileStore_Errors(t *testing.T) {
	store, dir := newTestFileStore(t)
	ctx := context.Background()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "last-ip.txt"), []byte("not-an-ip"), 0o644))
	_, err := store.Load(ctx, KeyPrimary)
	assert.ErrorIs(t, err, ErrCorrupt)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "vpn-ip.txt"), []byte("  \n"), 0o644))
	_, err = store.Load(ctx, KeyVPN)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = store.Load(ctx, "laptop")
	assert.ErrorIs(t, err, ErrUnknownKey)

	require.NoError(t, store.Close())
	assert.ErrorIs(t, store.Save(ctx, KeyVPN, netip.MustParseAddr("203.0.113.7")), ErrClosed)
}

func TestFileStore_SaveToMissingDirectory(t *testing.T) {
	store, err := NewFileStore(map[string]string{KeyVPN: "/nonexistent/dir/vpn-ip.txt"})
	require.NoError(t, err)

	assert.Error(t, store.Save(context.Background(), KeyVPN, netip.MustParseAddr("203.0.113.7")))
}
