package headers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	ContentSecurityPolicy = "default-src 'self'; script-src 'self'; style-src 'self' 'unsafe-inline'; " +
		"img-src 'self' data:; font-src 'self' data:; connect-src 'self'; frame-ancestors 'none'"
	PermissionsPolicy       = "geolocation=(), microphone=(), camera=(), payment=(), usb=()"
	StrictTransportSecurity = "max-age=31536000; includeSubDomains; preload"
)

// Options controls the transport-dependent part of the header set.
type Options struct {
	Production bool
	Secure     bool
}

// Apply writes the fixed security header set into h.
func Apply(h http.Header, opts Options) {
	h.Set("X-Frame-Options", "DENY")
	h.Set("X-Content-Type-Options", "nosniff")
	h.Set("X-XSS-Protection", "1; mode=block")
	h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
	h.Set("Content-Security-Policy", ContentSecurityPolicy)
	h.Set("Permissions-Policy", PermissionsPolicy)
	if opts.Production && opts.Secure {
		h.Set("Strict-Transport-Security", StrictTransportSecurity)
	}
}

// IsSecure reports whether the request arrived over TLS, directly or behind a proxy.
func IsSecure(r *http.Request) bool {
	if r.TLS != nil {
		return true
	}
	return strings.EqualFold(strings.TrimSpace(r.Header.Get("X-Forwarded-Proto")), "https")
}

// Middleware applies the header set before the rest of the chain runs.
func Middleware(production bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		Apply(c.Writer.Header(), Options{Production: production, Secure: IsSecure(c.Request)})
		c.Next()
	}
}
