// Package ssrf validates user-supplied URLs before any network fetch is made.
//
// The guard resolves the hostname itself and returns the resolved addresses so
// the fetcher can dial the pinned IP instead of re-resolving, closing the
// DNS-rebinding window between validation and use.
package ssrf

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strings"
)

// Reason classifies why a URL was rejected.
type Reason string

const (
	ReasonUnsupportedScheme Reason = "unsupported_scheme"
	ReasonCredentialsInURL  Reason = "credentials_in_url"
	ReasonBlockedHost       Reason = "blocked_host"
	ReasonPrivateAddress    Reason = "private_address"
	ReasonUnresolvableHost  Reason = "unresolvable_host"
)

// Error is a security rejection. It is never retried against another host.
type Error struct {
	Reason Reason
	Host   string
	Detail string
}

func (e *Error) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("ssrf: %s (%s): %s", e.Reason, e.Host, e.Detail)
	}
	return fmt.Sprintf("ssrf: %s (%s)", e.Reason, e.Host)
}

// Resolver resolves hostnames to IP addresses. net.DefaultResolver satisfies
// it; tests inject a fake.
type Resolver interface {
	LookupIPAddr(ctx context.Context, host string) ([]net.IPAddr, error)
}

// Config contains guard configuration.
type Config struct {
	// Resolver defaults to net.DefaultResolver.
	Resolver Resolver
	// AllowPrivate disables the private/loopback address checks. Only for
	// tests and explicitly trusted deployments.
	AllowPrivate bool
	// AllowedHosts lists hostnames exempted from the address-range checks.
	// Scheme and credential checks still apply.
	AllowedHosts []string
}

// Guard performs URL validation. It holds no mutable state and is safe for
// concurrent use.
type Guard struct {
	resolver     Resolver
	allowPrivate bool
	allowedHosts map[string]bool
}

// Target is a validated URL with its resolved addresses pinned for the fetch.
type Target struct {
	URL      *url.URL
	Hostname string
	Port     string
	IPs      []net.IP
}

// DialAddr returns the pinned "ip:port" address the fetch must connect to.
func (t *Target) DialAddr() string {
	return net.JoinHostPort(t.IPs[0].String(), t.Port)
}

// NewGuard creates a Guard.
func NewGuard(cfg Config) *Guard {
	resolver := cfg.Resolver
	if resolver == nil {
		resolver = net.DefaultResolver
	}
	allowed := make(map[string]bool, len(cfg.AllowedHosts))
	for _, h := range cfg.AllowedHosts {
		allowed[strings.ToLower(h)] = true
	}
	return &Guard{resolver: resolver, allowPrivate: cfg.AllowPrivate, allowedHosts: allowed}
}

// Additional ranges not covered by the net.IP predicates: carrier-grade NAT,
// IETF protocol assignments, benchmarking, and the v6 discard prefix.
var reservedNets = mustParseCIDRs(
	"100.64.0.0/10",
	"192.0.0.0/24",
	"198.18.0.0/15",
	"240.0.0.0/4",
	"100::/64",
)

func mustParseCIDRs(cidrs ...string) []*net.IPNet {
	nets := make([]*net.IPNet, 0, len(cidrs))
	for _, c := range cidrs {
		_, n, err := net.ParseCIDR(c)
		if err != nil {
			panic(err)
		}
		nets = append(nets, n)
	}
	return nets
}

var blockedHostNames = map[string]bool{
	"localhost": true,
	"127.0.0.1": true,
	"::1":       true,
}

// Validate checks rawURL against the full rejection sequence and resolves the
// hostname. It must be called immediately before each fetch attempt, including
// each followed redirect, so the returned addresses are fresh.
func (g *Guard) Validate(ctx context.Context, rawURL string) (*Target, error) {
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return nil, &Error{Reason: ReasonUnsupportedScheme, Host: rawURL, Detail: "unparseable URL"}
	}

	scheme := strings.ToLower(parsed.Scheme)
	if scheme != "http" && scheme != "https" {
		return nil, &Error{Reason: ReasonUnsupportedScheme, Host: parsed.Host, Detail: parsed.Scheme}
	}

	if parsed.User != nil {
		return nil, &Error{Reason: ReasonCredentialsInURL, Host: parsed.Hostname()}
	}

	hostname := parsed.Hostname()
	if hostname == "" {
		return nil, &Error{Reason: ReasonBlockedHost, Host: rawURL, Detail: "no hostname"}
	}
	skipRangeChecks := g.allowPrivate || g.allowedHosts[strings.ToLower(hostname)]
	if !skipRangeChecks && blockedHostNames[strings.ToLower(hostname)] {
		return nil, &Error{Reason: ReasonBlockedHost, Host: hostname}
	}

	addrs, err := g.resolver.LookupIPAddr(ctx, hostname)
	if err != nil || len(addrs) == 0 {
		return nil, &Error{Reason: ReasonUnresolvableHost, Host: hostname, Detail: errDetail(err)}
	}

	ips := make([]net.IP, 0, len(addrs))
	for _, addr := range addrs {
		if !skipRangeChecks {
			if blocked, why := blockedIP(addr.IP); blocked {
				return nil, &Error{
					Reason: ReasonPrivateAddress,
					Host:   hostname,
					Detail: fmt.Sprintf("%s is %s", addr.IP, why),
				}
			}
		}
		ips = append(ips, addr.IP)
	}

	port := parsed.Port()
	if port == "" {
		if scheme == "https" {
			port = "443"
		} else {
			port = "80"
		}
	}

	return &Target{URL: parsed, Hostname: hostname, Port: port, IPs: ips}, nil
}

// blockedIP reports whether ip falls in a loopback, private, link-local,
// multicast, unspecified, or reserved range.
func blockedIP(ip net.IP) (bool, string) {
	switch {
	case ip.IsLoopback():
		return true, "loopback"
	case ip.IsPrivate():
		return true, "private"
	case ip.IsLinkLocalUnicast():
		return true, "link-local"
	case ip.IsLinkLocalMulticast(), ip.IsMulticast():
		return true, "multicast"
	case ip.IsUnspecified():
		return true, "unspecified"
	}
	for _, n := range reservedNets {
		if n.Contains(ip) {
			return true, "reserved"
		}
	}
	return false, ""
}

func errDetail(err error) string {
	if err == nil {
		return "no addresses"
	}
	return err.Error()
}
