package services

import (
	"context"
	"sync"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/charlesng35/csahub/internal/database/testutil"
	"github.com/charlesng35/csahub/internal/models"
	"github.com/charlesng35/csahub/internal/security"
)

const (
	testCSRF = "csrf-token-value"
	testIP   = "203.0.113.10"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 4, 6, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type stubCaptcha struct {
	mu    sync.Mutex
	pass  bool
	calls int
}

func (s *stubCaptcha) Verify(context.Context, string, string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.pass
}

func (s *stubCaptcha) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type stubLimiter struct {
	allow bool
	err   error
}

func (s stubLimiter) Allow(context.Context, string, string, string) (bool, error) {
	return s.allow, s.err
}

type recordedVerification struct {
	member models.Member
	token  string
}

type stubMailer struct {
	mu       sync.Mutex
	err      error
	sent     []recordedVerification
	verified []models.Member
}

func (m *stubMailer) SendVerification(_ context.Context, member *models.Member, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, recordedVerification{member: *member, token: token})
	return m.err
}

func (m *stubMailer) SendMemberVerified(_ context.Context, member *models.Member) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.verified = append(m.verified, *member)
	return m.err
}

func openServiceTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	return testutil.MustOpenTestDB(t, testutil.WithMigrations())
}

func newTestGuard(t *testing.T, db *gorm.DB, captchaOK bool, limits security.Limits, bypass bool) (*RequestGuard, *stubCaptcha, *testClock) {
	t.Helper()
	clock := newTestClock()
	limiter, err := security.NewRateLimiter(db, limits)
	require.NoError(t, err)
	limiter.WithClock(clock.Now)
	verifier := &stubCaptcha{pass: captchaOK}
	guard, err := NewRequestGuard(verifier, limiter, bypass)
	require.NoError(t, err)
	return guard, verifier, clock
}

func seedMember(t *testing.T, db *gorm.DB, email string, status models.MemberStatus) models.Member {
	t.Helper()
	member := models.Member{
		FirstName:      "Seed",
		LastName:       "Member",
		Email:          email,
		Major:          "Computer Science",
		Status:         status,
		AcceptedCode:   true,
		ConsentPrivacy: true,
	}
	if status == models.MemberStatusPending {
		token := "seed-token-" + email
		member.VerificationToken = &token
	}
	require.NoError(t, db.Create(&member).Error)
	return member
}
