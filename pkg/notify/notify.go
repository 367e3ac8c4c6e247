// Package notify tells a human when DNS records moved or the VPN path leaked.
package notify

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"strings"

	"bt-dns-manager/pkg/device"
)

// ErrDelivery is returned when a sink rejects or cannot receive a message
var ErrDelivery = errors.New("notification delivery failed")

// Notifier delivers reconciliation events.
type Notifier interface {
	NotifyUpdate(ctx context.Context, u Update) error
	NotifyLeak(ctx context.Context, primary, vpn netip.Addr) error
}

// Update describes the records moved in one cycle.
type Update struct {
	IP      netip.Addr
	VPN     netip.Addr // zero when no VPN report is known
	Records []string
}

// FormatUpdate renders the update message. The VPN block is only present
// when a VPN address is known.
func FormatUpdate(u Update) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🔧 IP updated to `%s`\n🎯 DNS Records:\n", u.IP)
	for i, r := range u.Records {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "• `%s`", r)
	}

	if u.VPN.IsValid() {
		fmt.Fprintf(&b, "\n\n🔒 VPN IP: `%s`", u.VPN)
		if device.Classify(u.IP, u.VPN) == device.VPNLeaked {
			b.WriteString("\n⚠️ WARNING: VPN IP matches main IP!")
		} else {
			b.WriteString("\n✅ VPN IP differs from main IP (good)")
		}
	}
	return b.String()
}

// FormatLeak renders the leak warning.
func FormatLeak(primary, vpn netip.Addr) string {
	return fmt.Sprintf("⚠️ WARNING: VPN IP matches main IP!\n🔒 VPN IP: `%s`\n🏠 Main IP: `%s`", vpn, primary)
}

// Noop discards every message. Used when no sink is configured.
type Noop struct{}

// NotifyUpdate does nothing
func (Noop) NotifyUpdate(context.Context, Update) error { return nil }

// NotifyLeak does nothing
func (Noop) NotifyLeak(context.Context, netip.Addr, netip.Addr) error { return nil }
