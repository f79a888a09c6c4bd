package targets

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"time"

	"github.com/miekg/dns"

	"github.com/anstrom/hostenum/internal/errors"
)

const defaultDNSPort = "53"

// Resolver resolves a DNS name to its IPv4 addresses.
type Resolver interface {
	LookupA(ctx context.Context, name string) ([]netip.Addr, error)
}

// DNSResolver sends A queries to a single DNS server.
type DNSResolver struct {
	// Server is a host:port pair
	Server string
	Client *dns.Client
}

// NewDNSResolver creates a resolver that queries server with the given timeout.
func NewDNSResolver(server string, timeout time.Duration) *DNSResolver {
	return &DNSResolver{
		Server: server,
		Client: &dns.Client{Net: "udp", Timeout: timeout},
	}
}

// LookupA implements Resolver.
func (r *DNSResolver) LookupA(ctx context.Context, name string) ([]netip.Addr, error) {
	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(name), dns.TypeA)
	msg.RecursionDesired = true

	in, _, err := r.Client.ExchangeContext(ctx, msg, r.Server)
	if err != nil {
		return nil, errors.WrapTargetError(errors.CodeDNSResolution, "DNS query failed", name, err)
	}
	if in.Rcode != dns.RcodeSuccess {
		return nil, errors.NewTargetError(errors.CodeDNSResolution,
			fmt.Sprintf("DNS server answered %s", dns.RcodeToString[in.Rcode]), name)
	}

	var addrs []netip.Addr
	for _, rr := range in.Answer {
		a, ok := rr.(*dns.A)
		if !ok {
			continue
		}
		if addr, ok := netip.AddrFromSlice(a.A.To4()); ok {
			addrs = append(addrs, addr)
		}
	}
	if len(addrs) == 0 {
		return nil, errors.NewTargetError(errors.CodeDNSResolution, "no A records found", name)
	}
	return addrs, nil
}

// DNSServer returns the server used for name resolution as host:port. An
// explicit server wins; otherwise the first nameserver in resolvConf is used.
func DNSServer(server, resolvConf string) (string, error) {
	if server != "" {
		if _, _, err := net.SplitHostPort(server); err == nil {
			return server, nil
		}
		return net.JoinHostPort(server, defaultDNSPort), nil
	}

	cfg, err := dns.ClientConfigFromFile(resolvConf)
	if err != nil {
		return "", errors.WrapTargetError(errors.CodeDNSResolution, "failed to read resolver configuration", resolvConf, err)
	}
	if len(cfg.Servers) == 0 {
		return "", errors.NewTargetError(errors.CodeDNSResolution, "no nameserver configured", resolvConf)
	}
	port := cfg.Port
	if port == "" {
		port = defaultDNSPort
	}
	return net.JoinHostPort(cfg.Servers[0], port), nil
}
