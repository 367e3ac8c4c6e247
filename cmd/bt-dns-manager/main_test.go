package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeProvider serves the ip lookup and a single-zone Cloudflare API.
type fakeProvider struct {
	ip      string
	updates atomic.Int64
}

func (f *fakeProvider) start(t *testing.T) *httptest.Server {
	t.Helper()
	writeJSON := func(w http.ResponseWriter, v any) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(v)
	}
	envelope := func(result any) map[string]any {
		return map[string]any{
			"success": true, "errors": []any{}, "messages": []any{}, "result": result,
			"result_info": map[string]any{"page": 1, "per_page": 50, "total_pages": 1, "count": 1, "total_count": 1},
		}
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /ip", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, map[string]string{"ip": f.ip})
	})
	mux.HandleFunc("GET /cf/zones", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, envelope([]map[string]any{{"id": "zone-1", "name": "example.com"}}))
	})
	mux.HandleFunc("GET /cf/zones/zone-1/dns_records", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, envelope([]map[string]any{{
			"id": "rec-1", "zone_id": "zone-1", "type": "A", "name": "home.example.com",
			"content": "198.51.100.1", "ttl": 1, "proxied": false,
		}}))
	})
	update := func(w http.ResponseWriter, r *http.Request) {
		f.updates.Add(1)
		var payload map[string]any
		_ = json.NewDecoder(r.Body).Decode(&payload)
		payload["id"] = "rec-1"
		writeJSON(w, envelope(payload))
	}
	mux.HandleFunc("PATCH /cf/zones/zone-1/dns_records/rec-1", update)
	mux.HandleFunc("PUT /cf/zones/zone-1/dns_records/rec-1", update)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func writeConfig(t *testing.T, dir, baseURL string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yml")
	body := fmt.Sprintf(`
records:
  - home.example.com
observer:
  mode: http
  url: %[1]s/ip
cloudflare:
  api_token: test-token
  base_url: %[1]s/cf
storage:
  backend: file
  primary_file: %[2]s
  vpn_file: %[3]s
logging:
  level: error
  output: stderr
`, baseURL, filepath.Join(dir, "last-ip.txt"), filepath.Join(dir, "vpn-ip.txt"))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := rootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestReconcileCommand(t *testing.T) {
	t.Setenv("CLOUDFLARE_API_TOKEN", "")
	t.Setenv("DISCORD_WEBHOOK_URL", "")
	t.Setenv("PORT", "")

	fake := &fakeProvider{ip: "203.0.113.7"}
	srv := fake.start(t)
	dir := t.TempDir()
	cfgPath := writeConfig(t, dir, srv.URL)

	out, err := runCommand(t, "--config", cfgPath, "reconcile")
	require.NoError(t, err, out)
	assert.Contains(t, out, "result: updated")
	assert.Contains(t, out, "home.example.com")
	assert.Equal(t, int64(1), fake.updates.Load())

	persisted, err := os.ReadFile(filepath.Join(dir, "last-ip.txt"))
	require.NoError(t, err)
	assert.Equal(t, "203.0.113.7", strings.TrimSpace(string(persisted)))

	// The persisted baseline makes a second run a no-op.
	out, err = runCommand(t, "--config", cfgPath, "reconcile")
	require.NoError(t, err, out)
	assert.Contains(t, out, "result: unchanged")
	assert.Equal(t, int64(1), fake.updates.Load())
}

func TestLoadConfigFallsBackToDefaults(t *testing.T) {
	t.Setenv("CLOUDFLARE_API_TOKEN", "")
	t.Setenv("DISCORD_WEBHOOK_URL", "")
	t.Setenv("PORT", "")

	missing := filepath.Join(t.TempDir(), "config.yml")

	cmd := rootCmd()
	require.NoError(t, cmd.ParseFlags(nil))
	cfg, err := loadConfig(cmd, missing)
	require.NoError(t, err)
	assert.Equal(t, ":3000", cfg.Server.ListenAddress)

	cmd = rootCmd()
	require.NoError(t, cmd.ParseFlags([]string{"--config", missing}))
	_, err = loadConfig(cmd, missing)
	assert.Error(t, err, "an explicitly named config file must exist")
}

func TestRootCommandHasSubcommands(t *testing.T) {
	cmd := rootCmd()
	var names []string
	for _, c := range cmd.Commands() {
		names = append(names, c.Name())
	}
	assert.Subset(t, names, []string{"serve", "reconcile", "report"})
}
