package handlers_test

import (
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/csahub/internal/handlers/testutil"
	"github.com/charlesng35/csahub/internal/middleware"
	"github.com/charlesng35/csahub/internal/models"
	appErrors "github.com/charlesng35/csahub/pkg/errors"
)

const welcomeAda = "Welcome to CSA, Ada! Please check your email to confirm your membership."

func joinForm(email string) url.Values {
	return url.Values{
		"first_name":      {"Ada"},
		"last_name":       {"Lovelace"},
		"email":           {email},
		"year_level":      {"Junior"},
		"major":           {"Mathematics"},
		"campus":          {"Central"},
		"consent_comms":   {"1"},
		"accepted_code":   {"1"},
		"consent_privacy": {"1"},
		"captcha_token":   {"captcha-response"},
	}
}

func TestJoinFormRendersChoices(t *testing.T) {
	env := testutil.NewEnv(t)

	w := env.Get("/join")
	require.Equal(t, http.StatusOK, w.Code)
	require.NotEmpty(t, w.Header().Get(middleware.CSRFHeaderName))

	body := w.Body.String()
	require.Contains(t, body, `name="csrf_token"`)
	require.Contains(t, body, w.Header().Get(middleware.CSRFHeaderName))
	require.Contains(t, body, "Computer Science")
	require.Contains(t, body, "Online Student")
	require.Contains(t, body, `data-sitekey="test-site-key"`)
}

func TestJoinSubmitJSONCreatesPendingMember(t *testing.T) {
	env := testutil.NewEnv(t)

	w := env.PostFormXHR("/api/join", joinForm("Ada@Example.EDU"))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	payload := testutil.DecodeMap(t, w)
	require.Equal(t, true, payload["success"])
	require.Equal(t, welcomeAda, payload["message"])
	require.NotZero(t, payload["member_id"])

	var member models.Member
	require.NoError(t, env.DB.Where("email = ?", "ada@example.edu").Take(&member).Error)
	require.Equal(t, models.MemberStatusPending, member.Status)
	require.True(t, member.ConsentComms)
	require.NotNil(t, member.VerificationToken)
	require.Len(t, *member.VerificationToken, 64)

	msg, ok := env.Mail.Last()
	require.True(t, ok)
	require.Equal(t, []string{"ada@example.edu"}, msg.To)
	require.Contains(t, msg.TextBody, "https://csa.example.edu/verify?token="+*member.VerificationToken)
}

func TestJoinSubmitBrowserRedirectsWithFlash(t *testing.T) {
	env := testutil.NewEnv(t)

	w := env.PostForm("/api/join", joinForm("ada@example.edu"))
	require.Equal(t, http.StatusSeeOther, w.Code)
	require.Equal(t, "/join", w.Header().Get("Location"))

	page := env.Get("/join")
	require.Equal(t, http.StatusOK, page.Code)
	require.Contains(t, page.Body.String(), welcomeAda)

	again := env.Get("/join")
	require.NotContains(t, again.Body.String(), welcomeAda)
}

func TestJoinSubmitRejections(t *testing.T) {
	tests := []struct {
		name    string
		prepare func(env *testutil.Env, form url.Values)
		message string
	}{
		{
			name: "csrf mismatch",
			prepare: func(env *testutil.Env, form url.Values) {
				env.CSRFToken()
				form.Set("csrf_token", "not-the-session-token")
			},
			message: appErrors.ErrCSRFInvalid.Message,
		},
		{
			name: "captcha rejected",
			prepare: func(env *testutil.Env, form url.Values) {
				env.SetCaptcha(false)
			},
			message: appErrors.ErrCaptchaFailed.Message,
		},
		{
			name: "privacy consent missing",
			prepare: func(env *testutil.Env, form url.Values) {
				form.Del("consent_privacy")
			},
			message: "You must agree to the Privacy Policy.",
		},
		{
			name: "code of conduct declined",
			prepare: func(env *testutil.Env, form url.Values) {
				form.Set("accepted_code", "0")
			},
			message: "You must agree to follow the Code of Conduct.",
		},
		{
			name: "short first name",
			prepare: func(env *testutil.Env, form url.Values) {
				form.Set("first_name", "A")
			},
			message: "First name must be between 2 and 80 characters.",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			env := testutil.NewEnv(t)
			form := joinForm("ada@example.edu")
			tc.prepare(env, form)

			w := env.PostFormXHR("/api/join", form)
			require.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
			resp := testutil.DecodeResponse(t, w)
			require.False(t, resp.Success)
			require.Equal(t, tc.message, resp.Message)

			var count int64
			require.NoError(t, env.DB.Model(&models.Member{}).Count(&count).Error)
			require.Zero(t, count)
			require.Empty(t, env.Mail.Messages())
		})
	}
}

func TestJoinSubmitRenewsPendingThenRateLimits(t *testing.T) {
	env := testutil.NewEnv(t)

	for i := 0; i < env.Config.Security.RateLimit.MaxAttempts; i++ {
		w := env.PostFormXHR("/api/join", joinForm("ada@example.edu"))
		require.Equal(t, http.StatusOK, w.Code, "attempt %d: %s", i+1, w.Body.String())
	}

	var count int64
	require.NoError(t, env.DB.Model(&models.Member{}).Count(&count).Error)
	require.Equal(t, int64(1), count)

	w := env.PostFormXHR("/api/join", joinForm("ada@example.edu"))
	require.Equal(t, http.StatusTooManyRequests, w.Code, w.Body.String())
	require.Equal(t, "Too many registration attempts. Please wait before trying again.", testutil.DecodeResponse(t, w).Message)
}

func TestJoinSubmitRejectsVerifiedEmail(t *testing.T) {
	env := testutil.NewEnv(t)
	require.NoError(t, env.DB.Create(&models.Member{
		FirstName: "Ada",
		LastName:  "Lovelace",
		Email:     "ada@example.edu",
		Status:    models.MemberStatusVerified,
	}).Error)

	w := env.PostFormXHR("/api/join", joinForm("ada@example.edu"))
	require.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
	require.False(t, testutil.DecodeResponse(t, w).Success)
	require.Empty(t, env.Mail.Messages())
}

func TestCSRFTokenEndpointIsStablePerSession(t *testing.T) {
	env := testutil.NewEnv(t)

	first := env.GetJSON("/api/csrf-token")
	require.Equal(t, http.StatusOK, first.Code)
	second := env.GetJSON("/api/csrf-token")
	require.Equal(t, http.StatusOK, second.Code)

	var a, b struct {
		CSRFToken string `json:"csrf_token"`
	}
	testutil.DecodeInto(t, testutil.DecodeResponse(t, first).Data, &a)
	testutil.DecodeInto(t, testutil.DecodeResponse(t, second).Data, &b)
	require.NotEmpty(t, a.CSRFToken)
	require.Equal(t, a.CSRFToken, b.CSRFToken)
}
