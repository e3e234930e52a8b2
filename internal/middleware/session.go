package middleware

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/charlesng35/csahub/internal/session"
	"github.com/charlesng35/csahub/pkg/errors"
	"github.com/charlesng35/csahub/pkg/logger"
	"github.com/charlesng35/csahub/pkg/response"
)

// Sessions loads the visitor session before the handler runs and persists it
// afterwards when it changed.
func Sessions(manager *session.Manager) gin.HandlerFunc {
	log := logger.WithModule("session")
	return func(c *gin.Context) {
		s, err := manager.Load(c)
		if err != nil {
			log.Error("load session", zap.Error(err))
			response.Error(c, errors.ErrInternalServer)
			c.Abort()
			return
		}
		session.Attach(c, s)
		manager.Touch(s)

		c.Next()

		if err := manager.Save(c.Request.Context(), s); err != nil {
			log.Error("save session", zap.String("path", c.Request.URL.Path), zap.Error(err))
		}
	}
}
