// Package session keeps per-visitor state server side. The browser holds only
// an opaque random ID in an HttpOnly cookie; the data lives in a cache.Store.
package session

import (
	"time"
)

// Data is the persisted part of a session.
type Data struct {
	CSRFToken  string            `json:"csrf_token,omitempty"`
	AdminID    uint              `json:"admin_id,omitempty"`
	AdminEmail string            `json:"admin_email,omitempty"`
	AdminRole  string            `json:"admin_role,omitempty"`
	LoginAt    time.Time         `json:"login_at,omitempty"`
	LastSeen   time.Time         `json:"last_seen,omitempty"`
	Flash      map[string]string `json:"flash,omitempty"`
}

// AdminIdentity is the admin bound to a session after login.
type AdminIdentity struct {
	ID      uint
	Email   string
	Role    string
	LoginAt time.Time
}

// Session is a loaded session. It is not safe for concurrent use; each request
// gets its own copy.
type Session struct {
	id        string
	data      Data
	isNew     bool
	dirty     bool
	destroyed bool
	onChange  func(*Session)
}

// ID returns the opaque session identifier.
func (s *Session) ID() string {
	return s.id
}

// IsNew reports whether the session was created during this request.
func (s *Session) IsNew() bool {
	return s.isNew
}

// CSRFToken returns the session CSRF token, or "" when none was issued yet.
func (s *Session) CSRFToken() string {
	return s.data.CSRFToken
}

// SetCSRFToken stores the CSRF token.
func (s *Session) SetCSRFToken(token string) {
	s.data.CSRFToken = token
	s.markDirty()
}

// Admin returns the logged-in admin, if any.
func (s *Session) Admin() (AdminIdentity, bool) {
	if s.data.AdminID == 0 {
		return AdminIdentity{}, false
	}
	return AdminIdentity{
		ID:      s.data.AdminID,
		Email:   s.data.AdminEmail,
		Role:    s.data.AdminRole,
		LoginAt: s.data.LoginAt,
	}, true
}

// SetAdmin binds an admin to the session.
func (s *Session) SetAdmin(admin AdminIdentity) {
	s.data.AdminID = admin.ID
	s.data.AdminEmail = admin.Email
	s.data.AdminRole = admin.Role
	s.data.LoginAt = admin.LoginAt
	s.markDirty()
}

// AddFlash queues a one-shot message for the next page render.
func (s *Session) AddFlash(key, message string) {
	if s.data.Flash == nil {
		s.data.Flash = make(map[string]string)
	}
	s.data.Flash[key] = message
	s.markDirty()
}

// Flashes returns and clears queued flash messages.
func (s *Session) Flashes() map[string]string {
	if len(s.data.Flash) == 0 {
		return nil
	}
	out := s.data.Flash
	s.data.Flash = nil
	s.markDirty()
	return out
}

// Touch records activity at now when the last recorded activity is older than
// granularity, so idle sessions keep being extended without a write per request.
func (s *Session) Touch(now time.Time, granularity time.Duration) {
	if now.Sub(s.data.LastSeen) < granularity {
		return
	}
	s.data.LastSeen = now
	s.markDirty()
}

// Dirty reports whether the session must be persisted.
func (s *Session) Dirty() bool {
	return s.dirty && !s.destroyed
}

func (s *Session) markDirty() {
	s.dirty = true
	if s.onChange != nil {
		s.onChange(s)
	}
}
