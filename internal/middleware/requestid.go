package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	// CtxRequestIDKey holds the request correlation id.
	CtxRequestIDKey = "requestID"
	// RequestIDHeader carries the correlation id in both directions.
	RequestIDHeader = "X-Request-ID"

	maxRequestIDLength = 64
)

// RequestID propagates a caller supplied X-Request-ID or generates one.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(RequestIDHeader)
		if requestID == "" || len(requestID) > maxRequestIDLength {
			requestID = uuid.NewString()
		}
		c.Set(CtxRequestIDKey, requestID)
		c.Header(RequestIDHeader, requestID)
		c.Next()
	}
}
