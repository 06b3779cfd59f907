// Package metadata resolves the real client address and User-Agent for each
// request and stores both in the request context. Derived audit events read
// them from there.
package metadata

import (
	"net"
	"net/http"
	"net/netip"
	"strings"

	"audittrail/pkg/requestcontext"
)

// maxForwardedLength bounds forwarding headers so an oversized value cannot
// smuggle junk into the audit trail.
const maxForwardedLength = 500

// Config controls which upstream proxies may speak for the client.
type Config struct {
	// TrustedProxies lists CIDR prefixes whose X-Forwarded-For and X-Real-IP
	// headers are honored. Empty means forwarding headers are ignored.
	TrustedProxies []netip.Prefix
}

// Middleware extracts client metadata per request.
type Middleware struct {
	config *Config
}

// NewMiddleware builds the middleware. A nil config trusts no proxies.
func NewMiddleware(cfg *Config) *Middleware {
	if cfg == nil {
		cfg = &Config{}
	}
	return &Middleware{config: cfg}
}

// Handler places the client IP and User-Agent into the request context.
func (m *Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := requestcontext.WithClientMetadata(r.Context(),
			m.clientIP(r), r.Header.Get("User-Agent"))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// clientIP prefers forwarding headers only when the direct peer is a trusted
// proxy; otherwise the socket address wins.
func (m *Middleware) clientIP(r *http.Request) string {
	peer := stripPort(r.RemoteAddr)
	if peer == "" {
		return "unknown"
	}
	if !m.trusted(peer) {
		return peer
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" && len(xff) <= maxForwardedLength {
		first, _, _ := strings.Cut(xff, ",")
		candidate := strings.TrimSpace(first)
		if _, err := netip.ParseAddr(candidate); err == nil {
			return candidate
		}
		return peer
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" && len(xri) <= maxForwardedLength {
		return strings.TrimSpace(xri)
	}
	return peer
}

func (m *Middleware) trusted(ip string) bool {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	for _, prefix := range m.config.TrustedProxies {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}

func stripPort(remoteAddr string) string {
	if remoteAddr == "" {
		return ""
	}
	if host, _, err := net.SplitHostPort(remoteAddr); err == nil {
		return host
	}
	return strings.Trim(remoteAddr, "[]")
}
