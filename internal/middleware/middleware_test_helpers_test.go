package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/charlesng35/csahub/internal/cache"
	"github.com/charlesng35/csahub/internal/database/testutil"
	"github.com/charlesng35/csahub/internal/session"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newSessionEngine(t *testing.T) (*gin.Engine, *session.Manager) {
	t.Helper()
	db := testutil.MustOpenTestDB(t, testutil.WithMigrations())
	manager := session.NewManager(cache.NewDatabaseStore(db), session.Options{})
	r := gin.New()
	r.Use(Sessions(manager))
	return r, manager
}

func findCookie(t *testing.T, rec *httptest.ResponseRecorder, name string) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	require.Failf(t, "cookie not set", "expected cookie %q", name)
	return nil
}
