package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/charlesng35/csahub/pkg/errors"
	"github.com/charlesng35/csahub/pkg/logger"
	"github.com/charlesng35/csahub/pkg/metrics"
	"github.com/charlesng35/csahub/pkg/response"
)

// Recovery turns a handler panic into a generic 500. The panic value is
// logged with the request ID and never echoed to the client.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}

			metrics.Panics.Inc()
			logger.WithModule("http").Error("handler panic",
				zap.String("method", c.Request.Method),
				zap.String("path", c.Request.URL.Path),
				zap.String("request_id", c.GetString(CtxRequestIDKey)),
				zap.Any("panic", rec),
				zap.Stack("stack"),
			)

			if c.Writer.Written() {
				c.Abort()
				return
			}
			response.Error(c, errors.ErrInternalServer)
			c.Abort()
		}()
		c.Next()
	}
}

// NotFoundHandler answers unknown routes with the JSON error envelope.
func NotFoundHandler(c *gin.Context) {
	response.Error(c, errors.ErrNotFound)
}
