package ipallow

import (
	"net/http"
	"strings"
)

// Unknown is returned by ClientIP when no forwarding header is present.
const Unknown = "unknown"

// ClientIP returns the leftmost X-Forwarded-For entry, then X-Real-IP, then Unknown.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	return Unknown
}

// ParseAllowlist splits a comma separated list, dropping blanks.
func ParseAllowlist(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if ip := strings.TrimSpace(part); ip != "" {
			out = append(out, ip)
		}
	}
	return out
}

// IsAllowed reports whether ip is on the allowlist. An empty allowlist admits everyone.
func IsAllowed(ip string, allowlist []string) bool {
	if len(allowlist) == 0 {
		return true
	}
	for _, allowed := range allowlist {
		if ip == allowed {
			return true
		}
	}
	return false
}

// Checker binds a parsed allowlist.
type Checker struct {
	allowlist []string
}

func NewChecker(allowlist []string) *Checker {
	return &Checker{allowlist: append([]string(nil), allowlist...)}
}

func (c *Checker) Allowed(ip string) bool {
	return IsAllowed(ip, c.allowlist)
}

// Permissive is true when no allowlist is configured and every IP passes.
func (c *Checker) Permissive() bool {
	return len(c.allowlist) == 0
}

func (c *Checker) Entries() []string {
	return append([]string(nil), c.allowlist...)
}
