// Package csrf rejects cross-site state-changing requests by comparing the
// Origin and Referer headers with the Host the request was sent to.
package csrf

import (
	"net/http"
	"net/url"
	"strings"
)

// IsStateChanging reports whether method can mutate server state.
func IsStateChanging(method string) bool {
	switch strings.ToUpper(method) {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace:
		return false
	default:
		return true
	}
}

// Verify returns false when a state-changing request carries an Origin or
// Referer that does not resolve to host. A request with neither header is
// treated as same-origin; browsers drop both in several legitimate cases.
// Headers that do not parse as absolute URLs are rejected.
func Verify(method, origin, referer, host string) bool {
	if !IsStateChanging(method) {
		return true
	}
	origin = strings.TrimSpace(origin)
	referer = strings.TrimSpace(referer)
	if origin == "" && referer == "" {
		return true
	}
	if origin != "" && !sameHost(origin, host) {
		return false
	}
	if referer != "" && !sameHost(referer, host) {
		return false
	}
	return true
}

// FromRequest runs Verify against the request's own headers.
func FromRequest(r *http.Request) bool {
	return Verify(r.Method, r.Header.Get("Origin"), r.Header.Get("Referer"), r.Host)
}

func sameHost(raw, host string) bool {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return false
	}
	return host != "" && strings.EqualFold(u.Host, host)
}
