package device

import "net/netip"

// LeakStatus classifies the VPN path relative to the primary path.
type LeakStatus string

const (
	VPNUnknown  LeakStatus = "vpn-unknown"
	VPNLeaked   LeakStatus = "vpn-leaked"
	VPNDistinct LeakStatus = "vpn-distinct"
)

// Classify compares the two paths. A zero Addr means no value is known.
// Without a VPN address the status is unknown; without a primary address the
// VPN cannot be leaked.
func Classify(primary, vpn netip.Addr) LeakStatus {
	switch {
	case !vpn.IsValid():
		return VPNUnknown
	case primary.IsValid() && primary == vpn:
		return VPNLeaked
	default:
		return VPNDistinct
	}
}
