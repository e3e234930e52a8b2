package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/charlesng35/csahub/internal/security"
	"github.com/charlesng35/csahub/internal/session"
	"github.com/charlesng35/csahub/pkg/errors"
	"github.com/charlesng35/csahub/pkg/logger"
	"github.com/charlesng35/csahub/pkg/response"
)

const (
	// CSRFHeaderName is the header clients may use to present the token.
	CSRFHeaderName = "X-CSRF-Token"
	// CSRFFormField is the form field rendered into every page form.
	CSRFFormField = "csrf_token"
	// CtxCSRFTokenKey holds the session token for templates.
	CtxCSRFTokenKey = "csrfToken"

	csrfLoggerModule = "csrf"
)

var unsafeMethods = map[string]struct{}{
	http.MethodPost:   {},
	http.MethodPut:    {},
	http.MethodPatch:  {},
	http.MethodDelete: {},
}

// CSRFToken makes sure the session holds a token and exposes it to handlers
// and, on safe methods, in the X-CSRF-Token response header.
func CSRFToken() gin.HandlerFunc {
	return func(c *gin.Context) {
		s, ok := session.FromContext(c)
		if !ok {
			c.Next()
			return
		}
		token, err := security.EnsureCSRFToken(s)
		if err != nil {
			logger.WithModule(csrfLoggerModule).Error("issue csrf token", zap.Error(err))
			response.Error(c, errors.ErrInternalServer)
			c.Abort()
			return
		}
		c.Set(CtxCSRFTokenKey, token)
		if !isUnsafeMethod(c.Request.Method) {
			c.Header(CSRFHeaderName, token)
		}
		c.Next()
	}
}

// RequireCSRF rejects unsafe requests whose submitted token does not match the
// session token. Browsers get a flash message and a redirect back to the page.
func RequireCSRF() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !isUnsafeMethod(c.Request.Method) {
			c.Next()
			return
		}

		s, ok := session.FromContext(c)
		if ok && security.VerifyCSRFToken(s.CSRFToken(), SubmittedCSRFToken(c)) {
			c.Next()
			return
		}

		logger.WithModule(csrfLoggerModule).Warn("csrf validation failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Bool("has_session", ok),
		)
		if WantsJSON(c) || !ok {
			response.Error(c, errors.ErrCSRFInvalid)
			c.Abort()
			return
		}
		s.AddFlash("error", errors.ErrCSRFInvalid.Message)
		c.Redirect(http.StatusSeeOther, c.Request.URL.Path)
		c.Abort()
	}
}

// SubmittedCSRFToken returns the token from the header, falling back to the
// form field.
func SubmittedCSRFToken(c *gin.Context) string {
	if token := strings.TrimSpace(c.GetHeader(CSRFHeaderName)); token != "" {
		return token
	}
	return strings.TrimSpace(c.PostForm(CSRFFormField))
}

func isUnsafeMethod(method string) bool {
	_, ok := unsafeMethods[method]
	return ok
}
