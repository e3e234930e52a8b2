package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/csahub/internal/models"
	"github.com/charlesng35/csahub/pkg/logger"
	"github.com/charlesng35/csahub/pkg/metrics"
)

const defaultVerificationTTL = 7 * 24 * time.Hour

// VerificationOption customises the VerificationService.
type VerificationOption func(*VerificationService)

// WithVerificationTTL overrides the token lifetime.
func WithVerificationTTL(d time.Duration) VerificationOption {
	return func(s *VerificationService) {
		if d > 0 {
			s.ttl = d
		}
	}
}

// WithAdminNotifications sends a notice to the admin inbox after each verification.
func WithAdminNotifications(notifier AdminNotifier) VerificationOption {
	return func(s *VerificationService) {
		s.notifier = notifier
	}
}

// WithVerificationClock injects a custom time source.
func WithVerificationClock(clock func() time.Time) VerificationOption {
	return func(s *VerificationService) {
		if clock != nil {
			s.now = clock
		}
	}
}

// VerificationService redeems email verification links.
type VerificationService struct {
	db       *gorm.DB
	notifier AdminNotifier
	ttl      time.Duration
	now      func() time.Time
	log      *zap.Logger
}

// NewVerificationService constructs a verification service.
func NewVerificationService(db *gorm.DB, opts ...VerificationOption) (*VerificationService, error) {
	if db == nil {
		return nil, errors.New("verification service: db is required")
	}
	s := &VerificationService{
		db:  db,
		ttl: defaultVerificationTTL,
		now: func() time.Time { return time.Now().UTC() },
		log: logger.WithModule("verification"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// TTL returns the token lifetime.
func (s *VerificationService) TTL() time.Duration {
	return s.ttl
}

// Redeem verifies the pending member holding token. An expired token leaves
// the member pending with the token intact so a new registration can renew it.
func (s *VerificationService) Redeem(ctx context.Context, token string) (*models.Member, error) {
	ctx = ensureContext(ctx)
	token = strings.TrimSpace(token)
	if token == "" {
		metrics.Verifications.WithLabelValues("invalid").Inc()
		return nil, ErrVerificationMissing
	}

	var member models.Member
	err := s.db.WithContext(ctx).
		Where("verification_token = ? AND status = ?", token, models.MemberStatusPending).
		Take(&member).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		metrics.Verifications.WithLabelValues("invalid").Inc()
		return nil, ErrVerificationInvalid
	}
	if err != nil {
		metrics.Verifications.WithLabelValues("error").Inc()
		return nil, internalError(fmt.Errorf("load pending member: %w", err))
	}

	now := s.now()
	if now.After(member.CreatedAt.Add(s.ttl)) {
		metrics.Verifications.WithLabelValues("expired").Inc()
		s.log.Info("verification link expired", zap.Uint("member_id", member.ID))
		return nil, ErrVerificationExpired
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Member{}).
			Where("id = ? AND status = ? AND verification_token = ?", member.ID, models.MemberStatusPending, token).
			Updates(map[string]any{
				"status":             models.MemberStatusVerified,
				"verified_at":        now,
				"verification_token": nil,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrVerificationInvalid
		}
		return nil
	})
	if errors.Is(err, ErrVerificationInvalid) {
		metrics.Verifications.WithLabelValues("invalid").Inc()
		return nil, ErrVerificationInvalid
	}
	if err != nil {
		metrics.Verifications.WithLabelValues("error").Inc()
		return nil, internalError(fmt.Errorf("verify member: %w", err))
	}

	member.Status = models.MemberStatusVerified
	member.VerifiedAt = &now
	member.VerificationToken = nil
	metrics.Verifications.WithLabelValues("verified").Inc()
	s.log.Info("member verified", zap.Uint("member_id", member.ID))

	if s.notifier != nil {
		if err := s.notifier.SendMemberVerified(ctx, &member); err != nil {
			s.log.Warn("admin notification not sent", zap.Uint("member_id", member.ID), zap.Error(err))
		}
	}
	return &member, nil
}
