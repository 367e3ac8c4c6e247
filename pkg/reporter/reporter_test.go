package reporter

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bt-dns-manager/pkg/api"
	"bt-dns-manager/pkg/device"
	"bt-dns-manager/pkg/logging"
	"bt-dns-manager/pkg/observer"
	"bt-dns-manager/pkg/storage"
)

func fixedIP(s string) observer.Observer {
	return observer.Func(func(context.Context) (netip.Addr, error) {
		return netip.MustParseAddr(s), nil
	})
}

// startServer runs the real API handler so the wire format is exercised end to end.
func startServer(t *testing.T) (*httptest.Server, *device.Registry) {
	t.Helper()
	registry := device.NewRegistry(storage.NewMemoryStore(), logging.Discard())
	srv, err := api.New(&api.Config{
		ListenAddress: ":0",
		Registry:      registry,
		Logger:        logging.Discard().Logger,
	})
	require.NoError(t, err)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, registry
}

func newReporter(t *testing.T, url string, obs observer.Observer) *Reporter {
	t.Helper()
	r, err := New(Config{ServerURL: url + "/", Timeout: time.Second}, obs, nil, logging.Discard())
	require.NoError(t, err)
	return r
}

func TestRunOnceReportsVPN(t *testing.T) {
	ts, registry := startServer(t)
	registry.Observe(device.Primary, netip.MustParseAddr("1.2.3.4"))

	rep, err := newReporter(t, ts.URL, fixedIP("5.6.7.8")).RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, netip.MustParseAddr("5.6.7.8"), rep.IP)
	assert.Equal(t, "1.2.3.4", rep.ServerIP)
	assert.Equal(t, device.VPNDistinct, rep.Status)

	got, ok := registry.Get(device.VPN)
	require.True(t, ok)
	assert.Equal(t, "5.6.7.8", got.Addr.String())
}

func TestRunOnceDetectsLeak(t *testing.T) {
	ts, registry := startServer(t)
	registry.Observe(device.Primary, netip.MustParseAddr("1.2.3.4"))

	rep, err := newReporter(t, ts.URL, fixedIP("1.2.3.4")).RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, device.VPNLeaked, rep.Status)
	assert.Equal(t, device.VPNLeaked, registry.Status())
}

func TestRunOnceUnknownMain(t *testing.T) {
	ts, _ := startServer(t)

	rep, err := newReporter(t, ts.URL, fixedIP("5.6.7.8")).RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "unknown", rep.ServerIP)
	assert.Equal(t, device.VPNUnknown, rep.Status)
}

func TestRunOnceServerUnreachable(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer ts.Close()

	var observed atomic.Bool
	obs := observer.Func(func(context.Context) (netip.Addr, error) {
		observed.Store(true)
		return netip.MustParseAddr("5.6.7.8"), nil
	})

	_, err := newReporter(t, ts.URL, obs).RunOnce(context.Background())
	assert.ErrorIs(t, err, ErrServerUnreachable)
	assert.False(t, observed.Load(), "ip lookup should not run when the server is down")
}

func TestRunOnceObserverFailure(t *testing.T) {
	ts, registry := startServer(t)
	obs := observer.Func(func(context.Context) (netip.Addr, error) {
		return netip.Addr{}, errors.New("ipify down")
	})

	_, err := newReporter(t, ts.URL, obs).RunOnce(context.Background())
	assert.Error(t, err)
	_, ok := registry.Get(device.VPN)
	assert.False(t, ok)
}

func TestRunOnceReportRejected(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/status", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"status":"ok","devices":{"main":"unknown","vpn":"unknown"},"vpn_status":"vpn-unknown"}`))
	})
	mux.HandleFunc("POST /api/report-ip", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":"Too many requests"}`))
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	_, err := newReporter(t, ts.URL, fixedIP("5.6.7.8")).RunOnce(context.Background())
	require.ErrorIs(t, err, ErrReportRejected)
	assert.Contains(t, err.Error(), "Too many requests")
}

func TestRunContinuous(t *testing.T) {
	var reports atomic.Int64
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/status", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"status":"ok","devices":{"main":"1.2.3.4"}}`))
	})
	mux.HandleFunc("POST /api/report-ip", func(w http.ResponseWriter, _ *http.Request) {
		reports.Add(1)
		_, _ = w.Write([]byte(`{"success":true}`))
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	r, err := New(Config{ServerURL: ts.URL, Interval: 10 * time.Millisecond, Continuous: true, Timeout: time.Second},
		fixedIP("5.6.7.8"), nil, logging.Discard())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	assert.Eventually(t, func() bool { return reports.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("reporter did not stop")
	}
}

func TestRunOnceMode(t *testing.T) {
	ts, _ := startServer(t)
	r := newReporter(t, ts.URL, fixedIP("5.6.7.8"))
	assert.NoError(t, r.Run(context.Background()))
}

func TestNewValidation(t *testing.T) {
	obs := fixedIP("5.6.7.8")

	_, err := New(Config{}, obs, nil, nil)
	assert.Error(t, err)

	_, err = New(Config{ServerURL: "http://x"}, nil, nil, nil)
	assert.Error(t, err)

	_, err = New(Config{ServerURL: "http://x", Continuous: true}, obs, nil, nil)
	assert.Error(t, err)
}
