package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func securedEngine(opts SecurityOptions) *gin.Engine {
	r := gin.New()
	r.Use(SecurityHeaders(opts))
	r.GET("/join", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/admin/members", func(c *gin.Context) { c.Status(http.StatusOK) })
	return r
}

func TestSecurityHeadersPublicPage(t *testing.T) {
	r := securedEngine(SecurityOptions{CaptchaProvider: "recaptcha", NoStorePrefixes: []string{"/admin"}})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/join", nil))

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	require.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	require.Equal(t, "same-origin", w.Header().Get("Referrer-Policy"))
	require.Empty(t, w.Header().Get("Strict-Transport-Security"))
	require.Empty(t, w.Header().Get("Cache-Control"))

	csp := w.Header().Get("Content-Security-Policy")
	require.Contains(t, csp, "script-src 'self' https://www.google.com https://www.gstatic.com")
	require.NotContains(t, csp, "hcaptcha")
}

func TestSecurityHeadersAdminAndHTTPS(t *testing.T) {
	r := securedEngine(SecurityOptions{CaptchaProvider: "hcaptcha", NoStorePrefixes: []string{"/admin"}})

	req := httptest.NewRequest(http.MethodGet, "/admin/members", nil)
	req.Header.Set("X-Forwarded-Proto", "https")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, "no-store", w.Header().Get("Cache-Control"))
	require.Equal(t, "max-age=31536000; includeSubDomains", w.Header().Get("Strict-Transport-Security"))
	require.Contains(t, w.Header().Get("Content-Security-Policy"), "frame-src 'self' https://hcaptcha.com")
}

func TestContentSecurityPolicyUnknownProvider(t *testing.T) {
	csp := ContentSecurityPolicy("none")
	require.True(t, strings.HasPrefix(csp, "default-src 'self'; script-src 'self';"))
	require.NotContains(t, csp, "https://www.google.com")
	require.NotContains(t, csp, "https://www.gstatic.com")
	require.NotContains(t, csp, "hcaptcha.com")
	require.Contains(t, csp, "style-src 'self' 'unsafe-inline' https://fonts.googleapis.com")
}
