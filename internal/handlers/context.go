package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/csahub/internal/middleware"
	"github.com/charlesng35/csahub/internal/services"
	"github.com/charlesng35/csahub/internal/session"
)

// requestContext safely returns the request context with a background fallback for tests.
func requestContext(c *gin.Context) context.Context {
	if c == nil {
		return context.Background()
	}
	if req := c.Request; req != nil {
		return req.Context()
	}
	return context.Background()
}

// currentSession returns the session attached by middleware.Sessions.
func currentSession(c *gin.Context) *session.Session {
	s, _ := session.FromContext(c)
	return s
}

// sessionCSRFToken is the token the submitted form must echo, or "" without a session.
func sessionCSRFToken(c *gin.Context) string {
	if s := currentSession(c); s != nil {
		return s.CSRFToken()
	}
	return ""
}

// actorFromContext describes the signed-in admin for audit entries.
func actorFromContext(c *gin.Context) services.Actor {
	actor := services.Actor{
		IPAddress: c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	}
	if admin, ok := middleware.AdminFromContext(c); ok {
		actor.AdminID = admin.ID
		actor.Email = admin.Email
	}
	return actor
}
