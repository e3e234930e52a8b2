package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/csahub/internal/session"
	"github.com/charlesng35/csahub/pkg/errors"
	"github.com/charlesng35/csahub/pkg/response"
)

const (
	// CtxAdminKey holds the session.AdminIdentity of the signed-in admin.
	CtxAdminKey = "admin"

	// AdminLoginPath is where unauthenticated admin page requests are sent.
	AdminLoginPath = "/admin/login"
)

// RequireAdmin admits requests whose session carries an admin identity.
// Browsers are redirected to the login page; JSON clients receive 401.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s, ok := session.FromContext(c); ok {
			if admin, ok := s.Admin(); ok {
				c.Set(CtxAdminKey, admin)
				c.Next()
				return
			}
		}

		if WantsJSON(c) {
			response.Error(c, errors.ErrUnauthorized)
			c.Abort()
			return
		}
		c.Redirect(http.StatusSeeOther, AdminLoginPath)
		c.Abort()
	}
}

// AdminFromContext returns the identity stored by RequireAdmin.
func AdminFromContext(c *gin.Context) (session.AdminIdentity, bool) {
	value, ok := c.Get(CtxAdminKey)
	if !ok {
		return session.AdminIdentity{}, false
	}
	admin, ok := value.(session.AdminIdentity)
	return admin, ok
}
