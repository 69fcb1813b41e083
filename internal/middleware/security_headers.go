package middleware

import (
	"net/http"
	"strconv"
	"strings"
)

// SecurityConfig controls response hardening headers.
type SecurityConfig struct {
	HSTSMaxAge        int // seconds
	IncludeSubdomains bool
	TrustProxyHeader  bool // honor X-Forwarded-Proto
}

func DefaultSecurityConfig() SecurityConfig {
	return SecurityConfig{HSTSMaxAge: 31536000, TrustProxyHeader: true}
}

// SecurityHeaders sets baseline headers on every response and HSTS on HTTPS ones.
func SecurityHeaders(cfg SecurityConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("X-Frame-Options", "DENY")
			h.Set("Referrer-Policy", "no-referrer")
			if isHTTPS(r, cfg.TrustProxyHeader) {
				h.Set("Strict-Transport-Security", hstsValue(cfg))
			}
			next.ServeHTTP(w, r)
		})
	}
}

func isHTTPS(r *http.Request, trustProxy bool) bool {
	if r.TLS != nil {
		return true
	}
	return trustProxy && strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")
}

func hstsValue(cfg SecurityConfig) string {
	maxAge := cfg.HSTSMaxAge
	if maxAge <= 0 {
		maxAge = 31536000
	}
	v := "max-age=" + strconv.Itoa(maxAge)
	if cfg.IncludeSubdomains {
		v += "; includeSubDomains"
	}
	return v
}
