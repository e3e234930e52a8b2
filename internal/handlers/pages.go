package handlers

import (
	"html"
	"html/template"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/charlesng35/csahub/internal/middleware"
	appErrors "github.com/charlesng35/csahub/pkg/errors"
	"github.com/charlesng35/csahub/pkg/logger"
	"github.com/charlesng35/csahub/pkg/response"
)

// Flash keys rendered by the page layout.
const (
	flashSuccess = "success"
	flashError   = "error"
)

// Site carries the organisation details every page renders.
type Site struct {
	Name            string
	ShortName       string
	CaptchaProvider string
	CaptchaSiteKey  string
	// Location is used to display and parse event times.
	Location *time.Location
}

func (s Site) location() *time.Location {
	if s.Location == nil {
		return time.UTC
	}
	return s.Location
}

// TemplateFuncs are the helpers page templates may call.
func TemplateFuncs(loc *time.Location) template.FuncMap {
	if loc == nil {
		loc = time.UTC
	}
	return template.FuncMap{
		"add": func(a, b int) int { return a + b },
		// Member text is stored escaped; unescape so the template escapes it once.
		"unescape": html.UnescapeString,
		"deref": func(s *string) string {
			if s == nil {
				return ""
			}
			return *s
		},
		"formatTime": func(t time.Time) string {
			return t.In(loc).Format("Jan 2, 2006 3:04 PM")
		},
		"inputTime": func(t time.Time) string {
			return t.In(loc).Format("2006-01-02T15:04")
		},
		"inputTimePtr": func(t *time.Time) string {
			if t == nil {
				return ""
			}
			return t.In(loc).Format("2006-01-02T15:04")
		},
	}
}

// render writes an HTML page with the layout fields filled in. Reading the
// flashes consumes them.
func render(c *gin.Context, site Site, status int, name, title string, data gin.H) {
	page := gin.H{
		"Title":     title,
		"Site":      site,
		"CSRFToken": c.GetString(middleware.CtxCSRFTokenKey),
	}
	if s := currentSession(c); s != nil {
		page["Flashes"] = s.Flashes()
	}
	if admin, ok := middleware.AdminFromContext(c); ok {
		page["Admin"] = &admin
	}
	for key, value := range data {
		page[key] = value
	}
	c.HTML(status, name, page)
}

// succeed answers a form submission. JSON clients receive message plus fields;
// browsers get a success flash and a redirect to target.
func succeed(c *gin.Context, message, target string, fields gin.H) {
	if middleware.WantsJSON(c) {
		response.Message(c, http.StatusOK, message, fields)
		return
	}
	if s := currentSession(c); s != nil {
		s.AddFlash(flashSuccess, message)
	}
	c.Redirect(http.StatusSeeOther, target)
}

// fail answers a rejected form submission. JSON clients receive the error
// status and message; browsers get an error flash and a redirect to target.
// Internal causes are logged, never shown.
func fail(c *gin.Context, err error, target string) {
	appErr := appErrors.FromError(err)
	if appErr == nil {
		appErr = appErrors.ErrInternalServer
	}
	logInternal(c, appErr)
	if middleware.WantsJSON(c) {
		response.Error(c, appErr)
		return
	}
	if s := currentSession(c); s != nil {
		s.AddFlash(flashError, appErr.Message)
	}
	c.Redirect(http.StatusSeeOther, target)
}

func logInternal(c *gin.Context, appErr *appErrors.AppError) {
	if appErr == nil || appErr.Internal == nil {
		return
	}
	logger.WithModule("handlers").Error("request failed",
		zap.String("path", c.FullPath()),
		zap.Error(appErr.Internal),
	)
}

// logAndRespond writes err as a JSON error after logging any internal cause.
func logAndRespond(c *gin.Context, err error) {
	appErr := appErrors.FromError(err)
	if appErr == nil {
		appErr = appErrors.ErrInternalServer
	}
	logInternal(c, appErr)
	response.Error(c, appErr)
}

// returnPath keeps an admin on the filtered list they submitted from. Only
// targets on the base page are honoured.
func returnPath(c *gin.Context, base string) string {
	target := strings.TrimSpace(c.PostForm("return_to"))
	if target == base || strings.HasPrefix(target, base+"?") {
		return target
	}
	return base
}
