package security

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/csahub/internal/database"
	"github.com/charlesng35/csahub/internal/models"
	"github.com/charlesng35/csahub/pkg/logger"
	"github.com/charlesng35/csahub/pkg/metrics"
)

const (
	defaultLimitWindow      = time.Hour
	defaultLimitMaxAttempts = 5

	// Column widths of rate_limits. Keys are clipped to fit because the
	// limiter runs before the form is validated.
	maxLimitIPLen       = 45
	maxLimitEmailLen    = 255
	maxLimitEndpointLen = 100
)

// Limits bound how many attempts a client may make per endpoint.
type Limits struct {
	Window      time.Duration
	MaxAttempts int
}

// RateLimiter enforces Limits using the rate_limits table so the count is
// shared by every server process.
type RateLimiter struct {
	db     *gorm.DB
	limits Limits
	now    func() time.Time
	log    *zap.Logger
}

// NewRateLimiter constructs a limiter. Non-positive limits fall back to one
// hour and five attempts.
func NewRateLimiter(db *gorm.DB, limits Limits) (*RateLimiter, error) {
	if db == nil {
		return nil, errors.New("security: rate limiter requires a database")
	}
	if limits.Window <= 0 {
		limits.Window = defaultLimitWindow
	}
	if limits.MaxAttempts <= 0 {
		limits.MaxAttempts = defaultLimitMaxAttempts
	}
	return &RateLimiter{
		db:     db,
		limits: limits,
		now:    func() time.Time { return time.Now().UTC() },
		log:    logger.WithModule("ratelimit"),
	}, nil
}

// WithClock overrides the limiter's time source.
func (l *RateLimiter) WithClock(now func() time.Time) *RateLimiter {
	if now != nil {
		l.now = now
	}
	return l
}

// Limits returns the effective limits.
func (l *RateLimiter) Limits() Limits {
	return l.limits
}

// Allow records an attempt and reports whether it is within limits.
//
// Rows of endpoint older than the window are removed first. The attempt is
// denied when any row for endpoint matching ip, or email when it is non-empty,
// already holds MaxAttempts. Otherwise the exact (ip, email, endpoint) row is
// incremented, or created with one attempt.
func (l *RateLimiter) Allow(ctx context.Context, ip, email, endpoint string) (bool, error) {
	ip = clip(strings.TrimSpace(ip), maxLimitIPLen)
	email = clip(NormalizeEmail(email), maxLimitEmailLen)
	endpoint = clip(strings.TrimSpace(endpoint), maxLimitEndpointLen)
	if endpoint == "" {
		return false, errors.New("security: rate limit endpoint is required")
	}

	now := l.now()
	db := l.db.WithContext(ctx)

	if err := db.Where("endpoint = ? AND last_attempt < ?", endpoint, now.Add(-l.limits.Window)).
		Delete(&models.RateLimitRecord{}).Error; err != nil {
		return false, fmt.Errorf("security: prune rate limits: %w", err)
	}

	match := db.Where("ip_address = ?", ip)
	if email != "" {
		match = match.Or("email = ?", email)
	}
	var worst models.RateLimitRecord
	err := db.Where(match).Where("endpoint = ?", endpoint).
		Order("attempts DESC").
		Limit(1).
		Take(&worst).Error
	switch {
	case err == nil:
		if worst.Attempts >= l.limits.MaxAttempts {
			l.log.Info("rate limit exceeded",
				zap.String("endpoint", endpoint),
				zap.String("ip", ip),
				zap.Int("attempts", worst.Attempts),
			)
			metrics.RateLimitDenials.WithLabelValues(endpoint).Inc()
			return false, nil
		}
	case errors.Is(err, gorm.ErrRecordNotFound):
	default:
		return false, fmt.Errorf("security: load rate limit: %w", err)
	}

	if err := l.record(ctx, ip, email, endpoint, now); err != nil {
		return false, err
	}
	return true, nil
}

func (l *RateLimiter) record(ctx context.Context, ip, email, endpoint string, now time.Time) error {
	db := l.db.WithContext(ctx)
	increment := func() (int64, error) {
		res := db.Model(&models.RateLimitRecord{}).
			Where("ip_address = ? AND email = ? AND endpoint = ?", ip, email, endpoint).
			Updates(map[string]any{
				"attempts":     gorm.Expr("attempts + 1"),
				"last_attempt": now,
			})
		return res.RowsAffected, res.Error
	}

	updated, err := increment()
	if err != nil {
		return fmt.Errorf("security: update rate limit: %w", err)
	}
	if updated > 0 {
		return nil
	}

	rec := models.RateLimitRecord{
		IPAddress:   ip,
		Email:       email,
		Endpoint:    endpoint,
		Attempts:    1,
		LastAttempt: now,
	}
	if err := db.Create(&rec).Error; err != nil {
		if !database.IsUniqueViolation(err) {
			return fmt.Errorf("security: insert rate limit: %w", err)
		}
		// A concurrent request inserted the row first.
		if _, err := increment(); err != nil {
			return fmt.Errorf("security: update rate limit: %w", err)
		}
	}
	return nil
}

// DeleteExpired removes every row older than the window, across endpoints.
func (l *RateLimiter) DeleteExpired(ctx context.Context) (int64, error) {
	res := l.db.WithContext(ctx).
		Where("last_attempt < ?", l.now().Add(-l.limits.Window)).
		Delete(&models.RateLimitRecord{})
	if res.Error != nil {
		return 0, fmt.Errorf("security: delete expired rate limits: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// clip shortens s to at most n characters without splitting a rune.
func clip(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
