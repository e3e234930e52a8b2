package handlers_test

import (
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/csahub/internal/handlers/testutil"
	"github.com/charlesng35/csahub/internal/models"
	appErrors "github.com/charlesng35/csahub/pkg/errors"
)

const (
	adminEmail    = "chair@csa.example.edu"
	adminPassword = "correct-horse-battery"
)

func loggedInEnv(t *testing.T) (*testutil.Env, *models.Admin) {
	t.Helper()
	env := testutil.NewEnv(t)
	admin := env.CreateAdmin(adminEmail, adminPassword)
	env.LoginAdmin(adminEmail, adminPassword)
	return env, admin
}

func TestAdminPagesRequireLogin(t *testing.T) {
	env := testutil.NewEnv(t)

	w := env.Get("/admin/members")
	require.Equal(t, http.StatusSeeOther, w.Code)
	require.Equal(t, "/admin/login", w.Header().Get("Location"))

	w = env.GetJSON("/admin/events")
	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.False(t, testutil.DecodeResponse(t, w).Success)

	w = env.PostFormXHR("/admin/members", url.Values{"action": {"delete"}, "member_id": {"1"}})
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAdminLoginRejectsBadCredentials(t *testing.T) {
	env := testutil.NewEnv(t)
	env.CreateAdmin(adminEmail, adminPassword)

	for _, password := range []string{"wrong-password", ""} {
		w := env.PostFormXHR("/admin/login", url.Values{
			"email":    {adminEmail},
			"password": {password},
		})
		require.NotEqual(t, http.StatusOK, w.Code)
		require.False(t, testutil.DecodeResponse(t, w).Success)
	}

	w := env.PostFormXHR("/admin/login", url.Values{
		"email":    {"nobody@csa.example.edu"},
		"password": {adminPassword},
	})
	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.Equal(t, appErrors.ErrInvalidCredentials.Message, testutil.DecodeResponse(t, w).Message)

	browser := env.PostForm("/admin/login", url.Values{
		"email":    {adminEmail},
		"password": {"wrong-password"},
	})
	require.Equal(t, http.StatusSeeOther, browser.Code)
	require.Equal(t, "/admin/login", browser.Header().Get("Location"))
	page := env.Get("/admin/login")
	require.Contains(t, page.Body.String(), appErrors.ErrInvalidCredentials.Message)
}

func TestAdminLoginRejectsForgedCSRF(t *testing.T) {
	env := testutil.NewEnv(t)
	env.CreateAdmin(adminEmail, adminPassword)
	env.CSRFToken()

	w := env.PostFormXHR("/admin/login", url.Values{
		"csrf_token": {"forged"},
		"email":      {adminEmail},
		"password":   {adminPassword},
	})
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Equal(t, appErrors.ErrCSRFInvalid.Message, testutil.DecodeResponse(t, w).Message)
}

func TestAdminLoginAndLogout(t *testing.T) {
	env := testutil.NewEnv(t)
	admin := env.CreateAdmin(adminEmail, adminPassword)
	cookieName := env.Config.Server.Session.CookieName

	env.CSRFToken()
	anonymous := env.Cookie(cookieName)
	require.NotEmpty(t, anonymous)

	w := env.PostFormXHR("/admin/login", url.Values{
		"email":    {"Chair@CSA.example.edu"},
		"password": {adminPassword},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	payload := testutil.DecodeMap(t, w)
	require.Equal(t, "/admin/members", payload["redirect"])

	signedIn := env.Cookie(cookieName)
	require.NotEmpty(t, signedIn)
	require.NotEqual(t, anonymous, signedIn)

	var stored models.Admin
	require.NoError(t, env.DB.First(&stored, admin.ID).Error)
	require.NotNil(t, stored.LastLoginAt)

	loginPage := env.Get("/admin/login")
	require.Equal(t, http.StatusSeeOther, loginPage.Code)
	require.Equal(t, "/admin/members", loginPage.Header().Get("Location"))

	members := env.Get("/admin/members")
	require.Equal(t, http.StatusOK, members.Code)
	require.Contains(t, members.Body.String(), adminEmail)

	logout := env.PostForm("/admin/logout", nil)
	require.Equal(t, http.StatusSeeOther, logout.Code)
	require.Equal(t, "/admin/login", logout.Header().Get("Location"))
	require.Empty(t, env.Cookie(cookieName))

	after := env.GetJSON("/admin/members")
	require.Equal(t, http.StatusUnauthorized, after.Code)

	var actions []string
	require.NoError(t, env.DB.Model(&models.AuditLog{}).Order("id").Pluck("action", &actions).Error)
	require.Equal(t, []string{"admin.login", "admin.logout"}, actions)
}

func TestAdminPostsRequireCSRF(t *testing.T) {
	env, _ := loggedInEnv(t)
	member := models.Member{FirstName: "Ada", LastName: "Lovelace", Email: "ada@example.edu", Status: models.MemberStatusPending}
	require.NoError(t, env.DB.Create(&member).Error)

	form := url.Values{
		"csrf_token": {"forged"},
		"action":     {"delete"},
		"member_id":  {"1"},
	}
	w := env.PostFormXHR("/admin/members", form)
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Equal(t, appErrors.ErrCSRFInvalid.Message, testutil.DecodeResponse(t, w).Message)

	browser := env.PostForm("/admin/members", form)
	require.Equal(t, http.StatusSeeOther, browser.Code)
	require.Equal(t, "/admin/members", browser.Header().Get("Location"))

	var count int64
	require.NoError(t, env.DB.Model(&models.Member{}).Count(&count).Error)
	require.Equal(t, int64(1), count)
}
