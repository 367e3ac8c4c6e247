// Package observer discovers the public IPv4 address of the host it runs on.
package observer

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/netip"
	"time"

	"bt-dns-manager/pkg/config"
)

var (
	// ErrInvalidResponse is returned when the lookup service answers with something unusable
	ErrInvalidResponse = errors.New("invalid ip lookup response")

	// ErrNotIPv4 is returned when the service reports a non-IPv4 address
	ErrNotIPv4 = errors.New("address is not IPv4")
)

// Observer returns the current public IP.
type Observer interface {
	Observe(ctx context.Context) (netip.Addr, error)
}

// Func adapts a plain function to Observer.
type Func func(ctx context.Context) (netip.Addr, error)

// Observe calls f(ctx)
func (f Func) Observe(ctx context.Context) (netip.Addr, error) {
	return f(ctx)
}

// New builds the observer selected by cfg.Mode. timeout bounds each lookup.
func New(cfg config.ObserverConfig, timeout time.Duration) (Observer, error) {
	switch cfg.Mode {
	case config.ObserverHTTP, "":
		return NewHTTP(cfg.URL, &http.Client{Timeout: timeout}), nil
	case config.ObserverDNS:
		return NewDNS(cfg.DNSServer, cfg.DNSName, timeout), nil
	default:
		return nil, fmt.Errorf("unknown observer mode %q", cfg.Mode)
	}
}

func ipv4(addr netip.Addr) (netip.Addr, error) {
	addr = addr.Unmap()
	if !addr.Is4() {
		return netip.Addr{}, fmt.Errorf("%w: %s", ErrNotIPv4, addr)
	}
	return addr, nil
}
