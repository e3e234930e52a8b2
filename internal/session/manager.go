package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/csahub/internal/cache"
	"github.com/charlesng35/csahub/pkg/crypto"
)

const (
	defaultCookieName = "csa_session"
	defaultTTL        = 12 * time.Hour
	idBytes           = 32
	keyPrefix         = cache.SessionPrefix
	contextKey        = "csahub.session"
)

// Options configure the session cookie.
type Options struct {
	CookieName  string
	TTL         time.Duration
	ForceSecure bool
}

// Manager loads and persists sessions.
type Manager struct {
	store cache.Store
	opts  Options
	now   func() time.Time
}

// NewManager constructs a Manager over store.
func NewManager(store cache.Store, opts Options) *Manager {
	if strings.TrimSpace(opts.CookieName) == "" {
		opts.CookieName = defaultCookieName
	}
	if opts.TTL <= 0 {
		opts.TTL = defaultTTL
	}
	return &Manager{store: store, opts: opts, now: func() time.Time { return time.Now().UTC() }}
}

// CookieName returns the configured cookie name.
func (m *Manager) CookieName() string {
	return m.opts.CookieName
}

// Load returns the session referenced by the request cookie or a fresh one.
// Unknown or expired IDs are never adopted.
func (m *Manager) Load(c *gin.Context) (*Session, error) {
	if id, err := c.Cookie(m.opts.CookieName); err == nil && validID(id) {
		raw, ok, err := m.store.Get(c.Request.Context(), keyPrefix+id)
		if err != nil {
			return nil, fmt.Errorf("session: load: %w", err)
		}
		if ok {
			var data Data
			if err := json.Unmarshal(raw, &data); err == nil {
				s := &Session{id: id, data: data}
				s.onChange = m.cookieWriter(c)
				return s, nil
			}
		}
	}

	id, err := crypto.GenerateToken(idBytes)
	if err != nil {
		return nil, fmt.Errorf("session: generate id: %w", err)
	}
	s := &Session{id: id, isNew: true}
	s.onChange = m.cookieWriter(c)
	return s, nil
}

// cookieWriter issues the cookie for a new session the first time it changes,
// before the handler writes its response.
func (m *Manager) cookieWriter(c *gin.Context) func(*Session) {
	return func(s *Session) {
		if s.isNew && !s.destroyed {
			m.setCookie(c, s.id, int(m.opts.TTL.Seconds()))
			s.isNew = false
		}
	}
}

// Save persists a dirty session.
func (m *Manager) Save(ctx context.Context, s *Session) error {
	if s == nil || !s.Dirty() {
		return nil
	}
	raw, err := json.Marshal(s.data)
	if err != nil {
		return fmt.Errorf("session: encode: %w", err)
	}
	if err := m.store.Set(ctx, keyPrefix+s.id, raw, m.opts.TTL); err != nil {
		return fmt.Errorf("session: save: %w", err)
	}
	s.dirty = false
	return nil
}

// Regenerate moves the session to a new ID, discarding the old one.
// Call it whenever privilege changes.
func (m *Manager) Regenerate(c *gin.Context, s *Session) error {
	if s == nil {
		return errors.New("session: nil session")
	}
	if err := m.store.Delete(c.Request.Context(), keyPrefix+s.id); err != nil {
		return fmt.Errorf("session: regenerate: %w", err)
	}
	id, err := crypto.GenerateToken(idBytes)
	if err != nil {
		return fmt.Errorf("session: generate id: %w", err)
	}
	s.id = id
	s.isNew = false
	s.dirty = true
	m.setCookie(c, id, int(m.opts.TTL.Seconds()))
	return nil
}

// Destroy deletes the session and expires the cookie.
func (m *Manager) Destroy(c *gin.Context, s *Session) error {
	if s == nil {
		return nil
	}
	s.destroyed = true
	s.data = Data{}
	m.setCookie(c, "", -1)
	if err := m.store.Delete(c.Request.Context(), keyPrefix+s.id); err != nil {
		return fmt.Errorf("session: destroy: %w", err)
	}
	return nil
}

// Touch extends the session lifetime on activity.
func (m *Manager) Touch(s *Session) {
	if s == nil || s.destroyed {
		return
	}
	// Only sessions that already hold state are worth extending.
	if s.isNew {
		return
	}
	s.Touch(m.now(), m.opts.TTL/24)
}

func (m *Manager) setCookie(c *gin.Context, value string, maxAge int) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     m.opts.CookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   m.opts.ForceSecure || isSecureRequest(c.Request),
		SameSite: http.SameSiteLaxMode,
	})
}

func isSecureRequest(r *http.Request) bool {
	if r == nil {
		return false
	}
	if r.TLS != nil {
		return true
	}
	return strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")
}

func validID(id string) bool {
	if len(id) < 32 || len(id) > 64 {
		return false
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			return false
		}
	}
	return true
}

// Attach stores s on the request context.
func Attach(c *gin.Context, s *Session) {
	c.Set(contextKey, s)
}

// FromContext returns the session attached by the session middleware.
func FromContext(c *gin.Context) (*Session, bool) {
	v, ok := c.Get(contextKey)
	if !ok {
		return nil, false
	}
	s, ok := v.(*Session)
	return s, ok && s != nil
}
