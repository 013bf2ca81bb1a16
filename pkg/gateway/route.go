package gateway

import "strings"

// Class selects which rate-limit partition and gates apply to a path.
type Class string

const (
	ClassPublic Class = "public"
	ClassAPI    Class = "api"
	ClassAuth   Class = "auth"
	ClassAdmin  Class = "admin"
)

// Route is the classification of a request path.
type Route struct {
	Class Class
	// AdminScoped routes are subject to the IP allowlist.
	AdminScoped bool
	// Browser routes answer an IP denial with a redirect instead of JSON.
	Browser bool
}

// DefaultAdminLoginPath is the browser login page; it stays reachable from any IP.
const DefaultAdminLoginPath = "/admin/login"

func hasSegmentPrefix(path, prefix string) bool {
	return path == prefix || strings.HasPrefix(path, prefix+"/")
}

// Classify maps a path to its route class.
func Classify(path, adminLoginPath string) Route {
	if adminLoginPath == "" {
		adminLoginPath = DefaultAdminLoginPath
	}

	switch {
	case path == "/api/admin/login":
		return Route{Class: ClassAuth, AdminScoped: true}
	case hasSegmentPrefix(path, "/api/auth"), path == "/api/login":
		return Route{Class: ClassAuth}
	case hasSegmentPrefix(path, "/api/admin"):
		return Route{Class: ClassAdmin, AdminScoped: true}
	case path == adminLoginPath:
		return Route{Class: ClassPublic}
	case hasSegmentPrefix(path, "/admin"):
		return Route{Class: ClassAdmin, AdminScoped: true, Browser: true}
	case hasSegmentPrefix(path, "/api"):
		return Route{Class: ClassAPI}
	default:
		return Route{Class: ClassPublic}
	}
}
