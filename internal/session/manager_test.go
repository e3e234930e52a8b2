package session

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/charlesng35/csahub/internal/cache"
	"github.com/charlesng35/csahub/internal/database/testutil"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newManager(t *testing.T) (*Manager, cache.Store) {
	t.Helper()
	store := cache.NewDatabaseStore(testutil.MustOpenTestDB(t, testutil.WithMigrations()))
	return NewManager(store, Options{CookieName: "sid", TTL: time.Hour}), store
}

func newContext(cookie *http.Cookie) (*gin.Context, *httptest.ResponseRecorder) {
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if cookie != nil {
		req.AddCookie(cookie)
	}
	c.Request = req
	return c, rec
}

func sessionCookie(t *testing.T, rec *httptest.ResponseRecorder, name string) *http.Cookie {
	t.Helper()
	// Result freezes the headers, so parse the live map instead.
	for _, ck := range (&http.Response{Header: rec.Header()}).Cookies() {
		if ck.Name == name {
			return ck
		}
	}
	return nil
}

func TestLoadCreatesSessionWithoutCookieUntilChanged(t *testing.T) {
	m, _ := newManager(t)
	c, rec := newContext(nil)

	s, err := m.Load(c)
	require.NoError(t, err)
	require.True(t, s.IsNew())
	require.False(t, s.Dirty())
	require.Nil(t, sessionCookie(t, rec, "sid"))

	s.SetCSRFToken("token")
	ck := sessionCookie(t, rec, "sid")
	require.NotNil(t, ck)
	require.Equal(t, s.ID(), ck.Value)
	require.True(t, ck.HttpOnly)
	require.Equal(t, http.SameSiteLaxMode, ck.SameSite)
	require.False(t, ck.Secure)
}

func TestSaveAndReload(t *testing.T) {
	m, _ := newManager(t)
	c, rec := newContext(nil)

	s, err := m.Load(c)
	require.NoError(t, err)
	s.SetCSRFToken("abc")
	s.AddFlash("success", "Saved")
	require.NoError(t, m.Save(context.Background(), s))
	require.False(t, s.Dirty())

	c2, _ := newContext(sessionCookie(t, rec, "sid"))
	loaded, err := m.Load(c2)
	require.NoError(t, err)
	require.False(t, loaded.IsNew())
	require.Equal(t, s.ID(), loaded.ID())
	require.Equal(t, "abc", loaded.CSRFToken())
	require.Equal(t, map[string]string{"success": "Saved"}, loaded.Flashes())
	require.Nil(t, loaded.Flashes())
	require.True(t, loaded.Dirty())
}

func TestLoadIgnoresUnknownIDs(t *testing.T) {
	m, _ := newManager(t)
	forged := &http.Cookie{Name: "sid", Value: "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"}
	c, _ := newContext(forged)

	s, err := m.Load(c)
	require.NoError(t, err)
	require.True(t, s.IsNew())
	require.NotEqual(t, forged.Value, s.ID())

	c, _ = newContext(&http.Cookie{Name: "sid", Value: "short"})
	s, err = m.Load(c)
	require.NoError(t, err)
	require.True(t, s.IsNew())
}

func TestRegenerateMovesData(t *testing.T) {
	m, store := newManager(t)
	c, _ := newContext(nil)

	s, err := m.Load(c)
	require.NoError(t, err)
	s.SetCSRFToken("abc")
	require.NoError(t, m.Save(context.Background(), s))
	oldID := s.ID()

	c2, rec2 := newContext(nil)
	require.NoError(t, m.Regenerate(c2, s))
	require.NotEqual(t, oldID, s.ID())
	require.True(t, s.Dirty())
	require.Equal(t, s.ID(), sessionCookie(t, rec2, "sid").Value)

	_, ok, err := store.Get(context.Background(), keyPrefix+oldID)
	require.NoError(t, err)
	require.False(t, ok)

	s.SetAdmin(AdminIdentity{ID: 7, Email: "admin@example.com", Role: "admin"})
	require.NoError(t, m.Save(context.Background(), s))

	c3, _ := newContext(&http.Cookie{Name: "sid", Value: s.ID()})
	loaded, err := m.Load(c3)
	require.NoError(t, err)
	admin, ok := loaded.Admin()
	require.True(t, ok)
	require.Equal(t, uint(7), admin.ID)
	require.Equal(t, "abc", loaded.CSRFToken())
}

func TestDestroyExpiresCookie(t *testing.T) {
	m, store := newManager(t)
	c, _ := newContext(nil)
	s, err := m.Load(c)
	require.NoError(t, err)
	s.SetAdmin(AdminIdentity{ID: 1})
	require.NoError(t, m.Save(context.Background(), s))

	c2, rec2 := newContext(nil)
	require.NoError(t, m.Destroy(c2, s))
	require.False(t, s.Dirty())
	_, ok := s.Admin()
	require.False(t, ok)

	ck := sessionCookie(t, rec2, "sid")
	require.NotNil(t, ck)
	require.Empty(t, ck.Value)
	require.Less(t, ck.MaxAge, 0)

	_, ok, err = store.Get(context.Background(), keyPrefix+s.ID())
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, m.Save(context.Background(), s))
}

func TestSecureCookie(t *testing.T) {
	store := cache.NewDatabaseStore(testutil.MustOpenTestDB(t, testutil.WithMigrations()))
	m := NewManager(store, Options{ForceSecure: true})
	require.Equal(t, defaultCookieName, m.CookieName())

	c, rec := newContext(nil)
	s, err := m.Load(c)
	require.NoError(t, err)
	s.SetCSRFToken("x")
	require.True(t, sessionCookie(t, rec, defaultCookieName).Secure)

	m = NewManager(store, Options{})
	c, rec = newContext(nil)
	c.Request.Header.Set("X-Forwarded-Proto", "https")
	s, err = m.Load(c)
	require.NoError(t, err)
	s.SetCSRFToken("x")
	require.True(t, sessionCookie(t, rec, defaultCookieName).Secure)
}

func TestTouchGranularity(t *testing.T) {
	s := &Session{id: "x"}
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.Touch(now, time.Minute)
	require.True(t, s.Dirty())

	s.dirty = false
	s.Touch(now.Add(30*time.Second), time.Minute)
	require.False(t, s.Dirty())

	s.Touch(now.Add(2*time.Minute), time.Minute)
	require.True(t, s.Dirty())
}

func TestContextAttachment(t *testing.T) {
	c, _ := newContext(nil)
	_, ok := FromContext(c)
	require.False(t, ok)

	s := &Session{id: "abc"}
	Attach(c, s)
	got, ok := FromContext(c)
	require.True(t, ok)
	require.Same(t, s, got)
}
