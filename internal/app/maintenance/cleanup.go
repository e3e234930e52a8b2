package maintenance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/csahub/internal/models"
	"github.com/charlesng35/csahub/internal/monitoring"
	"github.com/charlesng35/csahub/internal/services"
	"github.com/charlesng35/csahub/pkg/logger"
)

// JobName identifies cleanup runs in the job tracker.
const JobName = "cleanup"

const (
	defaultAuditRetentionDays = 90
	defaultVerificationTTL    = 7 * 24 * time.Hour
)

// Expirer removes rows whose lifetime has passed. It is satisfied by
// *security.RateLimiter and *cache.DatabaseStore.
type Expirer interface {
	DeleteExpired(ctx context.Context) (int64, error)
}

// Stats counts the rows removed by one RunOnce pass.
type Stats struct {
	RateLimits     int64
	CacheEntries   int64
	PendingMembers int64
	AuditLogs      int64
}

// Cleaner purges expired rate-limit rows, expired cache entries, abandoned
// pending registrations and old audit logs.
type Cleaner struct {
	db        *gorm.DB
	limiter   Expirer
	cache     Expirer
	audit     *services.AuditService
	tracker   *monitoring.JobTracker
	cron      *cron.Cron
	now       func() time.Time
	log       *zap.Logger
	retention int

	pendingRetention time.Duration
	verificationTTL  time.Duration
}

// Option customises the Cleaner.
type Option func(*Cleaner)

// WithCron injects a preconfigured cron instance, primarily for testing.
func WithCron(c *cron.Cron) Option {
	return func(cleaner *Cleaner) {
		if c != nil {
			cleaner.cron = c
		}
	}
}

// WithNow overrides the clock used for cleanup comparisons.
func WithNow(now func() time.Time) Option {
	return func(cleaner *Cleaner) {
		if now != nil {
			cleaner.now = now
		}
	}
}

// WithRateLimiter enables purging of expired attempt-limiter rows.
func WithRateLimiter(limiter Expirer) Option {
	return func(cleaner *Cleaner) {
		cleaner.limiter = limiter
	}
}

// WithCache enables purging of expired sessions and request counters.
func WithCache(store Expirer) Option {
	return func(cleaner *Cleaner) {
		cleaner.cache = store
	}
}

// WithTracker records every RunOnce outcome for health reporting.
func WithTracker(tracker *monitoring.JobTracker) Option {
	return func(cleaner *Cleaner) {
		cleaner.tracker = tracker
	}
}

// WithAuditRetentionDays adjusts how long audit logs are retained before cleanup.
func WithAuditRetentionDays(days int) Option {
	return func(cleaner *Cleaner) {
		if days > 0 {
			cleaner.retention = days
		}
	}
}

// WithPendingRetention deletes PENDING members whose verification link
// expired more than d ago. Zero keeps them.
func WithPendingRetention(d time.Duration) Option {
	return func(cleaner *Cleaner) {
		if d >= 0 {
			cleaner.pendingRetention = d
		}
	}
}

// WithVerificationTTL sets the verification link lifetime used to decide when
// a pending registration expired.
func WithVerificationTTL(ttl time.Duration) Option {
	return func(cleaner *Cleaner) {
		if ttl > 0 {
			cleaner.verificationTTL = ttl
		}
	}
}

// NewCleaner constructs a Cleaner. Jobs whose dependency is nil are skipped.
func NewCleaner(db *gorm.DB, audit *services.AuditService, opts ...Option) *Cleaner {
	cleaner := &Cleaner{
		db:              db,
		audit:           audit,
		now:             func() time.Time { return time.Now().UTC() },
		retention:       defaultAuditRetentionDays,
		verificationTTL: defaultVerificationTTL,
		log:             logger.WithModule("maintenance"),
	}

	for _, opt := range opts {
		opt(cleaner)
	}

	if cleaner.cron == nil {
		cleaner.cron = cron.New(cron.WithLogger(cron.DiscardLogger))
	}
	return cleaner
}

// Start runs RunOnce on the cron schedule spec. An empty spec leaves the
// scheduler stopped.
func (c *Cleaner) Start(spec string) error {
	if spec == "" {
		return nil
	}
	if _, err := c.cron.AddFunc(spec, func() {
		stats, err := c.RunOnce(context.Background())
		if err != nil {
			c.log.Warn("scheduled cleanup failed", zap.Error(err))
			return
		}
		c.log.Info("scheduled cleanup finished", statsFields(stats)...)
	}); err != nil {
		return fmt.Errorf("maintenance: schedule %q: %w", spec, err)
	}
	c.cron.Start()
	return nil
}

// Stop halts the underlying scheduler, waiting for any running jobs to complete.
func (c *Cleaner) Stop() context.Context {
	if c.cron == nil {
		return context.Background()
	}
	return c.cron.Stop()
}

// RunOnce executes every configured cleanup routine. A failing routine does
// not stop the others; all errors are returned together.
func (c *Cleaner) RunOnce(ctx context.Context) (Stats, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	var (
		stats Stats
		errs  error
	)
	start := time.Now()
	defer func() {
		c.tracker.Record(JobName, errs, time.Since(start))
	}()

	if c.limiter != nil {
		n, err := c.limiter.DeleteExpired(ctx)
		errs = multierr.Append(errs, err)
		stats.RateLimits = n
	}

	if c.cache != nil {
		n, err := c.cache.DeleteExpired(ctx)
		errs = multierr.Append(errs, err)
		stats.CacheEntries = n
	}

	if c.db != nil && c.pendingRetention > 0 {
		n, err := PrunePendingMembers(ctx, c.db, c.now().Add(-c.verificationTTL-c.pendingRetention))
		errs = multierr.Append(errs, err)
		stats.PendingMembers = n
	}

	if c.audit != nil && c.retention > 0 {
		n, err := c.audit.CleanupOlderThan(ctx, c.retention)
		errs = multierr.Append(errs, err)
		stats.AuditLogs = n
	}

	return stats, errs
}

// PrunePendingMembers deletes PENDING members registered before cutoff.
func PrunePendingMembers(ctx context.Context, db *gorm.DB, cutoff time.Time) (int64, error) {
	if db == nil {
		return 0, errors.New("prune pending members: db is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	result := db.WithContext(ctx).
		Where("status = ? AND created_at < ?", models.MemberStatusPending, cutoff).
		Delete(&models.Member{})
	if result.Error != nil {
		return 0, fmt.Errorf("prune pending members: %w", result.Error)
	}
	return result.RowsAffected, nil
}

func statsFields(stats Stats) []zap.Field {
	return []zap.Field{
		zap.Int64("rate_limits", stats.RateLimits),
		zap.Int64("cache_entries", stats.CacheEntries),
		zap.Int64("pending_members", stats.PendingMembers),
		zap.Int64("audit_logs", stats.AuditLogs),
	}
}

// LogStats writes a one-line summary of a cleanup pass.
func LogStats(log *zap.Logger, stats Stats) {
	if log == nil {
		log = logger.WithModule("maintenance")
	}
	log.Info("cleanup finished", statsFields(stats)...)
}
