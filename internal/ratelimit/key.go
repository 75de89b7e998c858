package ratelimit

import (
	"net"
	"net/http"
	"strings"
)

// KeyFunc is a function that extracts a rate limit key from an HTTP request.
type KeyFunc func(r *http.Request) string

// ClientIPExtractor derives the client address used as rate limit key.
//
// With no trusted hops and no trusted proxies only RemoteAddr is used.
// Otherwise the chain formed by X-Forwarded-For followed by RemoteAddr is
// walked right-to-left, skipping the configured number of proxy hops and
// any address inside a trusted proxy CIDR.
type ClientIPExtractor struct {
	trustedHops  int
	trustedCIDRs []*net.IPNet
}

// NewClientIPExtractor creates an extractor. Invalid proxy entries are skipped.
func NewClientIPExtractor(trustedHops int, trustedProxies []string) *ClientIPExtractor {
	if trustedHops < 0 {
		trustedHops = 0
	}
	cidrs := make([]*net.IPNet, 0, len(trustedProxies))
	for _, proxy := range trustedProxies {
		_, cidr, err := net.ParseCIDR(proxy)
		if err != nil {
			ip := net.ParseIP(proxy)
			if ip == nil {
				continue
			}
			cidr = singleIPToCIDR(ip)
		}
		cidrs = append(cidrs, cidr)
	}
	return &ClientIPExtractor{trustedHops: trustedHops, trustedCIDRs: cidrs}
}

func singleIPToCIDR(ip net.IP) *net.IPNet {
	bits := 32
	if ip.To4() == nil {
		bits = 128
	}
	return &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)}
}

// Extract returns the client address for r.
func (e *ClientIPExtractor) Extract(r *http.Request) string {
	remoteIP := stripPort(r.RemoteAddr)
	if e.trustedHops == 0 && len(e.trustedCIDRs) == 0 {
		return remoteIP
	}

	chain := forwardedChain(r.Header.Get("X-Forwarded-For"))
	chain = append(chain, remoteIP)

	idx := len(chain) - 1
	for hops := 0; idx > 0; hops++ {
		if hops >= e.trustedHops && !e.isTrusted(chain[idx]) {
			break
		}
		idx--
	}
	return chain[idx]
}

// KeyFunc returns Extract as a KeyFunc.
func (e *ClientIPExtractor) KeyFunc() KeyFunc {
	return e.Extract
}

func (e *ClientIPExtractor) isTrusted(ipStr string) bool {
	ip := net.ParseIP(ipStr)
	if ip == nil {
		return false
	}
	for _, cidr := range e.trustedCIDRs {
		if cidr.Contains(ip) {
			return true
		}
	}
	return false
}

func forwardedChain(xff string) []string {
	if xff == "" {
		return nil
	}
	parts := strings.Split(xff, ",")
	chain := make([]string, 0, len(parts)+1)
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			chain = append(chain, p)
		}
	}
	return chain
}

// stripPort removes the port from an address string.
// Handles both IPv4 ("192.168.1.1:8080") and IPv6 ("[::1]:8080") formats.
func stripPort(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return strings.Trim(addr, "[]")
	}
	return host
}

// RemoteAddrKeyFunc keys requests by the connection's remote address only.
func RemoteAddrKeyFunc(r *http.Request) string {
	return stripPort(r.RemoteAddr)
}
