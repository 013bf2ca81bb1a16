package headers

import (
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func TestApplySetsFixedHeaders(t *testing.T) {
	h := http.Header{}
	Apply(h, Options{})

	require.Equal(t, "DENY", h.Get("X-Frame-Options"))
	require.Equal(t, "nosniff", h.Get("X-Content-Type-Options"))
	require.Equal(t, "1; mode=block", h.Get("X-XSS-Protection"))
	require.Equal(t, "strict-origin-when-cross-origin", h.Get("Referrer-Policy"))
	require.Equal(t, ContentSecurityPolicy, h.Get("Content-Security-Policy"))
	require.Equal(t, PermissionsPolicy, h.Get("Permissions-Policy"))
	require.Empty(t, h.Get("Strict-Transport-Security"))
}

func TestApplyHSTSOnlyInSecureProduction(t *testing.T) {
	tests := []struct {
		name string
		opts Options
		want string
	}{
		{name: "production over tls", opts: Options{Production: true, Secure: true}, want: StrictTransportSecurity},
		{name: "production over http", opts: Options{Production: true}, want: ""},
		{name: "development over tls", opts: Options{Secure: true}, want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := http.Header{}
			Apply(h, tt.opts)
			require.Equal(t, tt.want, h.Get("Strict-Transport-Security"))
		})
	}
}

func TestApplyIsDeterministic(t *testing.T) {
	a, b := http.Header{}, http.Header{}
	Apply(a, Options{Production: true, Secure: true})
	Apply(b, Options{Production: true, Secure: true})
	require.Equal(t, a, b)
}

func TestIsSecure(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	require.False(t, IsSecure(r))

	r.Header.Set("X-Forwarded-Proto", "HTTPS")
	require.True(t, IsSecure(r))

	r = httptest.NewRequest(http.MethodGet, "/", nil)
	r.TLS = &tls.ConnectionState{}
	require.True(t, IsSecure(r))
}

func TestMiddlewareAppliesHeaders(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Middleware(true))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Forwarded-Proto", "https")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	require.Equal(t, http.StatusOK, resp.Code)
	require.Equal(t, "DENY", resp.Header().Get("X-Frame-Options"))
	require.Equal(t, StrictTransportSecurity, resp.Header().Get("Strict-Transport-Security"))
}
