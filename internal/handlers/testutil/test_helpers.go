package testutil

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/charlesng35/csahub/internal/api"
	"github.com/charlesng35/csahub/internal/app"
	"github.com/charlesng35/csahub/internal/captcha"
	sharedtestutil "github.com/charlesng35/csahub/internal/database/testutil"
	"github.com/charlesng35/csahub/internal/middleware"
	"github.com/charlesng35/csahub/internal/models"
	"github.com/charlesng35/csahub/internal/services"
	"github.com/charlesng35/csahub/pkg/mail/mailtest"
)

// ClientIP is the address every test request originates from.
const ClientIP = "192.0.2.10"

// Env encapsulates a fully-wired site backed by an in-memory database for handler tests.
type Env struct {
	T      *testing.T
	DB     *gorm.DB
	Router *gin.Engine
	Config *app.Config
	Mail   *mailtest.Recorder

	captchaOK bool
	cookies   map[string]*http.Cookie
	csrfToken string
}

// NewConfig returns the configuration handler tests run with.
func NewConfig() *app.Config {
	return &app.Config{
		Server: app.ServerConfig{
			BaseURL: "https://csa.example.edu",
			Session: app.SessionConfig{
				CookieName: "csa_session",
				TTL:        12 * time.Hour,
			},
		},
		Security: app.SecurityConfig{
			Captcha: app.CaptchaConfig{
				Provider: "hcaptcha",
				SiteKey:  "test-site-key",
				Secret:   "test-secret",
			},
			RateLimit: app.RateLimitConfig{
				Window:      time.Hour,
				MaxAttempts: 5,
			},
			Verification: app.VerificationConfig{
				TokenTTL:   7 * 24 * time.Hour,
				TokenBytes: 32,
			},
		},
		Site: app.SiteConfig{
			Name:       "Computer Science Association",
			ShortName:  "CSA",
			AdminEmail: "board@csa.example.edu",
			Timezone:   "UTC",
		},
		Features: app.FeatureConfig{
			EmailVerification:  true,
			AdminNotifications: true,
		},
		Monitoring: app.MonitoringConfig{
			Health: app.HealthConfig{Enabled: true},
		},
	}
}

// NewEnv provisions a fresh handler test environment with migrations applied.
// mutators adjust the configuration before the router is built.
func NewEnv(t *testing.T, mutators ...func(*app.Config)) *Env {
	t.Helper()

	gin.SetMode(gin.TestMode)

	db := sharedtestutil.MustOpenTestDB(t, sharedtestutil.WithMigrations())
	cfg := NewConfig()
	for _, mutate := range mutators {
		mutate(cfg)
	}

	env := &Env{
		T:         t,
		DB:        db,
		Config:    cfg,
		Mail:      &mailtest.Recorder{},
		captchaOK: true,
		cookies:   make(map[string]*http.Cookie),
	}

	router, err := api.NewRouter(db, cfg, api.Options{
		Captcha: captcha.VerifierFunc(func(context.Context, string, string) bool {
			return env.captchaOK
		}),
		Mailer:    env.Mail,
		RateStore: middleware.NewMemoryRateStore(),
	})
	require.NoError(t, err)
	env.Router = router

	return env
}

// Cookie returns the value of the named cookie the client holds, or "".
func (e *Env) Cookie(name string) string {
	if c, ok := e.cookies[name]; ok {
		return c.Value
	}
	return ""
}

// SetCaptcha decides whether subsequent CAPTCHA checks pass.
func (e *Env) SetCaptcha(ok bool) {
	e.captchaOK = ok
}

// CreateAdmin inserts an administrator with the given credentials.
func (e *Env) CreateAdmin(email, password string) *models.Admin {
	e.T.Helper()

	svc, err := services.NewAdminAuthService(e.DB, nil, nil)
	require.NoError(e.T, err)
	admin, err := svc.CreateAdmin(context.Background(), email, password, "")
	require.NoError(e.T, err)
	return admin
}

// LoginAdmin signs the client in through POST /admin/login.
func (e *Env) LoginAdmin(email, password string) {
	e.T.Helper()

	w := e.PostFormXHR("/admin/login", url.Values{
		"email":    {email},
		"password": {password},
	})
	require.Equal(e.T, http.StatusOK, w.Code, w.Body.String())
}

// CSRFToken returns the token bound to the client's session, starting a
// session when none exists.
func (e *Env) CSRFToken() string {
	e.T.Helper()
	if e.csrfToken != "" {
		return e.csrfToken
	}

	w := e.GetJSON("/api/csrf-token")
	require.Equal(e.T, http.StatusOK, w.Code, w.Body.String())

	var payload struct {
		CSRFToken string `json:"csrf_token"`
	}
	DecodeInto(e.T, DecodeResponse(e.T, w).Data, &payload)
	require.NotEmpty(e.T, payload.CSRFToken)
	e.csrfToken = payload.CSRFToken
	return e.csrfToken
}

// Get performs a browser GET.
func (e *Env) Get(path string) *httptest.ResponseRecorder {
	e.T.Helper()
	return e.do(httptest.NewRequest(http.MethodGet, path, nil), false)
}

// GetJSON performs a GET as an XMLHttpRequest.
func (e *Env) GetJSON(path string) *httptest.ResponseRecorder {
	e.T.Helper()
	return e.do(httptest.NewRequest(http.MethodGet, path, nil), true)
}

// PostForm submits form as a browser would. The session CSRF token is added
// unless form already carries one.
func (e *Env) PostForm(path string, form url.Values) *httptest.ResponseRecorder {
	e.T.Helper()
	return e.postForm(path, form, false)
}

// PostFormXHR submits form as an XMLHttpRequest.
func (e *Env) PostFormXHR(path string, form url.Values) *httptest.ResponseRecorder {
	e.T.Helper()
	return e.postForm(path, form, true)
}

func (e *Env) postForm(path string, form url.Values, xhr bool) *httptest.ResponseRecorder {
	e.T.Helper()

	if form == nil {
		form = url.Values{}
	}
	if _, ok := form[middleware.CSRFFormField]; !ok {
		form.Set(middleware.CSRFFormField, e.CSRFToken())
	}

	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return e.do(req, xhr)
}

func (e *Env) do(req *http.Request, xhr bool) *httptest.ResponseRecorder {
	e.T.Helper()

	req.RemoteAddr = ClientIP + ":40000"
	if xhr {
		req.Header.Set("X-Requested-With", "XMLHttpRequest")
	}
	for _, cookie := range e.cookies {
		req.AddCookie(cookie)
	}

	w := httptest.NewRecorder()
	e.Router.ServeHTTP(w, req)
	e.captureCookies(w.Result())
	return w
}

// captureCookies applies Set-Cookie headers in order so a regenerated session
// ID replaces the one issued earlier in the same response.
func (e *Env) captureCookies(resp *http.Response) {
	if resp == nil {
		return
	}
	defer resp.Body.Close()

	for _, c := range resp.Cookies() {
		if c.MaxAge < 0 || c.Value == "" {
			delete(e.cookies, c.Name)
			if c.Name == e.Config.Server.Session.CookieName {
				e.csrfToken = ""
			}
			continue
		}
		e.cookies[c.Name] = &http.Cookie{Name: c.Name, Value: c.Value}
	}
}

// APIResponse represents the canonical API envelope returned by handlers.
type APIResponse struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Meta    *struct {
		Page       int `json:"page"`
		PerPage    int `json:"per_page"`
		Total      int `json:"total"`
		TotalPages int `json:"total_pages"`
	} `json:"meta"`
}

// DecodeResponse parses the standard API response object from a recorder.
func DecodeResponse(t *testing.T, w *httptest.ResponseRecorder) APIResponse {
	t.Helper()
	var resp APIResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp
}

// DecodeMap parses a flat message payload such as {"success", "message", "member_id"}.
func DecodeMap(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var payload map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &payload), w.Body.String())
	return payload
}

// DecodeInto unmarshals the data payload into the provided destination.
func DecodeInto[T any](t *testing.T, raw json.RawMessage, dest *T) {
	t.Helper()
	if dest == nil {
		t.Fatal("destination must not be nil")
	}
	require.NoError(t, json.Unmarshal(raw, dest))
}
