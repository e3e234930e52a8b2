package middleware

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/charlesng35/csahub/pkg/logger"
)

// quietPrefixes are logged at debug level; load balancers poll them constantly.
var quietPrefixes = []string{"/health", "/static"}

// Logger writes one access log entry per request. Only the path is logged:
// query strings can carry verification tokens.
func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		status := c.Writer.Status()
		log := logger.WithModule("http")
		if ce := log.Check(accessLevel(path, status), "request"); ce != nil {
			fields := []zap.Field{
				zap.String("method", c.Request.Method),
				zap.String("path", path),
				zap.Int("status", status),
				zap.Duration("duration", time.Since(start)),
				zap.String("client_ip", c.ClientIP()),
				zap.String("user_agent", c.Request.UserAgent()),
			}
			if route := c.FullPath(); route != "" && route != path {
				fields = append(fields, zap.String("route", route))
			}
			if id := c.GetString(CtxRequestIDKey); id != "" {
				fields = append(fields, zap.String("request_id", id))
			}
			if len(c.Errors) > 0 {
				fields = append(fields, zap.String("errors", c.Errors.String()))
			}
			ce.Write(fields...)
		}
	}
}

func accessLevel(path string, status int) zapcore.Level {
	switch {
	case status >= 500:
		return zapcore.ErrorLevel
	case status >= 400:
		return zapcore.WarnLevel
	}
	for _, prefix := range quietPrefixes {
		if strings.HasPrefix(path, prefix) {
			return zapcore.DebugLevel
		}
	}
	return zapcore.InfoLevel
}
