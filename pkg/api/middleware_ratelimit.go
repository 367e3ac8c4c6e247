package api

import (
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// rateLimitMiddleware enforces per-IP limits on the wrapped handler.
func (s *Server) rateLimitMiddleware(next http.Handler) http.Handler {
	if s.rateLimiter == nil {
		return next
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		clientIP := s.clientIPFromRequest(r)
		if s.rateLimiter.Allow(clientIP) {
			next.ServeHTTP(w, r)
			return
		}

		if s.rateLimiter.LogViolations() {
			s.logger.Warn("HTTP request rate limited",
				"client_ip", clientIP,
				"path", r.URL.Path,
			)
		}
		s.metrics.AddRateLimited(r.Context())

		w.Header().Set("Retry-After", "1")
		s.writeError(w, http.StatusTooManyRequests, "Too many requests")
	})
}

func (s *Server) clientIPFromRequest(r *http.Request) string {
	// Extract the actual remote address first
	remoteAddr := r.RemoteAddr
	if host, _, err := net.SplitHostPort(remoteAddr); err == nil {
		remoteAddr = host
	}

	// Forwarding headers are client controlled; only honour them from a trusted proxy
	remoteIP, err := netip.ParseAddr(remoteAddr)
	if err != nil || !s.isTrustedProxy(remoteIP.Unmap()) {
		return remoteAddr
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		for _, part := range strings.Split(xff, ",") {
			if ip := strings.TrimSpace(part); ip != "" {
				return ip
			}
		}
	}

	if realIP := strings.TrimSpace(r.Header.Get("X-Real-IP")); realIP != "" {
		return realIP
	}

	return remoteAddr
}

func (s *Server) isTrustedProxy(ip netip.Addr) bool {
	s.proxyMu.RLock()
	defer s.proxyMu.RUnlock()
	for _, p := range s.trustedProxies {
		if p.Contains(ip) {
			return true
		}
	}
	return false
}
