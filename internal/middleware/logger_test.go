package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/charlesng35/csahub/pkg/logger"
)

func TestLoggerMiddleware(t *testing.T) {
	core, recorded := observer.New(zap.InfoLevel)
	logger.Replace(zap.New(core))
	t.Cleanup(func() { logger.Replace(nil) })

	r := gin.New()
	r.Use(RequestID(), Logger())
	r.GET("/verify", func(c *gin.Context) { c.String(http.StatusOK, "verified") })
	r.GET("/health/live", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/admin/events/:id", func(c *gin.Context) { c.Status(http.StatusInternalServerError) })

	for _, target := range []string{"/verify?token=deadbeef", "/health/live", "/admin/events/9"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, target, nil))
	}

	entries := recorded.All()
	require.Len(t, entries, 2)

	verify := entries[0].ContextMap()
	require.Equal(t, zapcore.InfoLevel, entries[0].Level)
	require.Equal(t, "/verify", verify["path"])
	require.NotEmpty(t, verify["request_id"])
	for key, value := range verify {
		if text, ok := value.(string); ok {
			require.NotContains(t, text, "deadbeef", key)
		}
	}

	failed := entries[1].ContextMap()
	require.Equal(t, zapcore.ErrorLevel, entries[1].Level)
	require.Equal(t, "/admin/events/:id", failed["route"])
	require.Equal(t, int64(500), failed["status"])
}

func TestRequestID(t *testing.T) {
	r := gin.New()
	r.Use(RequestID())
	r.GET("/join", func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString(CtxRequestIDKey))
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/join", nil))
	generated := w.Header().Get(RequestIDHeader)
	require.Len(t, generated, 36)
	require.Equal(t, generated, w.Body.String())

	req := httptest.NewRequest(http.MethodGet, "/join", nil)
	req.Header.Set(RequestIDHeader, "trace-123")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, "trace-123", w.Header().Get(RequestIDHeader))
}
