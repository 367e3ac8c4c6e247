package observer

import (
	"context"
	"fmt"
	"net/netip"
	"time"

	"github.com/miekg/dns"
)

// DNSObserver resolves a "what is my ip" name against a resolver that
// answers with the querying address, e.g. myip.opendns.com @resolver1.opendns.com.
type DNSObserver struct {
	client *dns.Client
	server string
	name   string
}

// NewDNS creates an observer querying name on server (host:port).
func NewDNS(server, name string, timeout time.Duration) *DNSObserver {
	return &DNSObserver{
		client: &dns.Client{Net: "udp", Timeout: timeout},
		server: server,
		name:   dns.Fqdn(name),
	}
}

// Observe performs one lookup and returns the first A record in the answer.
func (o *DNSObserver) Observe(ctx context.Context) (netip.Addr, error) {
	msg := new(dns.Msg)
	msg.SetQuestion(o.name, dns.TypeA)

	resp, _, err := o.client.ExchangeContext(ctx, msg, o.server)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("dns ip lookup: %w", err)
	}
	if resp.Rcode != dns.RcodeSuccess {
		return netip.Addr{}, fmt.Errorf("%w: rcode %s", ErrInvalidResponse, dns.RcodeToString[resp.Rcode])
	}

	for _, rr := range resp.Answer {
		a, ok := rr.(*dns.A)
		if !ok {
			continue
		}
		addr, ok := netip.AddrFromSlice(a.A)
		if !ok {
			continue
		}
		return ipv4(addr)
	}
	return netip.Addr{}, fmt.Errorf("%w: no A record for %s", ErrInvalidResponse, o.name)
}
