// Package device tracks the most recently observed public IP of each network
// path and classifies whether the VPN path has collapsed onto the primary one.
package device

import (
	"fmt"
	"net/netip"
	"strings"
	"time"

	"bt-dns-manager/pkg/storage"
)

// Device identifies one network path.
type Device int

const (
	Primary Device = iota
	VPN
)

// All lists every device in registry order.
var All = []Device{Primary, VPN}

// String returns the internal name, also used as the storage key.
func (d Device) String() string {
	switch d {
	case Primary:
		return storage.KeyPrimary
	case VPN:
		return storage.KeyVPN
	default:
		return fmt.Sprintf("device(%d)", int(d))
	}
}

// WireName is the name used on the HTTP API, where the primary path has
// always been called "main".
func (d Device) WireName() string {
	if d == Primary {
		return "main"
	}
	return d.String()
}

// ParseDevice accepts "main", "primary" and "vpn" in any case.
func ParseDevice(s string) (Device, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "main", "primary":
		return Primary, true
	case "vpn":
		return VPN, true
	default:
		return 0, false
	}
}

// ObservedIP is the latest known address of a device.
type ObservedIP struct {
	ObservedAt time.Time
	Addr       netip.Addr
	Device     Device
}
