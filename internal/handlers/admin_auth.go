package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/charlesng35/csahub/internal/middleware"
	"github.com/charlesng35/csahub/internal/services"
	"github.com/charlesng35/csahub/internal/session"
	appErrors "github.com/charlesng35/csahub/pkg/errors"
	"github.com/charlesng35/csahub/pkg/logger"
)

// AdminHomePath is where admins land after logging in.
const AdminHomePath = "/admin/members"

// AdminAuthHandler handles admin login and logout.
type AdminAuthHandler struct {
	svc      *services.AdminAuthService
	sessions *session.Manager
	site     Site
}

// NewAdminAuthHandler constructs the handler.
func NewAdminAuthHandler(svc *services.AdminAuthService, sessions *session.Manager, site Site) (*AdminAuthHandler, error) {
	if svc == nil {
		return nil, errors.New("admin auth handler: service is required")
	}
	if sessions == nil {
		return nil, errors.New("admin auth handler: session manager is required")
	}
	return &AdminAuthHandler{svc: svc, sessions: sessions, site: site}, nil
}

// GET /admin/login
func (h *AdminAuthHandler) LoginForm(c *gin.Context) {
	if s := currentSession(c); s != nil {
		if _, ok := s.Admin(); ok {
			c.Redirect(http.StatusSeeOther, AdminHomePath)
			return
		}
	}
	render(c, h.site, http.StatusOK, "admin_login.tmpl", "Admin login", nil)
}

// POST /admin/login
func (h *AdminAuthHandler) Login(c *gin.Context) {
	s := currentSession(c)
	if s == nil {
		fail(c, appErrors.ErrCSRFInvalid, middleware.AdminLoginPath)
		return
	}

	admin, err := h.svc.Login(requestContext(c), services.AdminLoginInput{
		CSRFExpected:  s.CSRFToken(),
		CSRFSubmitted: middleware.SubmittedCSRFToken(c),
		CaptchaToken:  c.PostForm("captcha_token"),
		ClientIP:      c.ClientIP(),
		UserAgent:     c.Request.UserAgent(),
		Email:         c.PostForm("email"),
		Password:      c.PostForm("password"),
	})
	if err != nil {
		fail(c, err, middleware.AdminLoginPath)
		return
	}

	if err := h.sessions.Regenerate(c, s); err != nil {
		fail(c, appErrors.ErrInternalServer.WithInternal(err), middleware.AdminLoginPath)
		return
	}
	loginAt := admin.LastLoginAt
	identity := session.AdminIdentity{ID: admin.ID, Email: admin.Email, Role: admin.Role}
	if loginAt != nil {
		identity.LoginAt = *loginAt
	}
	s.SetAdmin(identity)

	succeed(c, "Welcome back!", AdminHomePath, gin.H{"redirect": AdminHomePath})
}

// POST /admin/logout
func (h *AdminAuthHandler) Logout(c *gin.Context) {
	h.svc.RecordLogout(requestContext(c), actorFromContext(c))

	if s := currentSession(c); s != nil {
		if err := h.sessions.Destroy(c, s); err != nil {
			logger.WithModule("handlers").Warn("destroy admin session", zap.Error(err))
		}
	}

	if middleware.WantsJSON(c) {
		succeed(c, "You have been logged out.", middleware.AdminLoginPath, gin.H{"redirect": middleware.AdminLoginPath})
		return
	}
	c.Redirect(http.StatusSeeOther, middleware.AdminLoginPath)
}
