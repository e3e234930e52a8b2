package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/csahub/internal/database"
	"github.com/charlesng35/csahub/internal/models"
	"github.com/charlesng35/csahub/internal/security"
	"github.com/charlesng35/csahub/pkg/crypto"
	apperrors "github.com/charlesng35/csahub/pkg/errors"
	"github.com/charlesng35/csahub/pkg/logger"
	"github.com/charlesng35/csahub/pkg/metrics"
	"github.com/charlesng35/csahub/pkg/validator"
)

const (
	// AdminRoleAdmin is the default role.
	AdminRoleAdmin = "admin"

	minAdminPasswordLength = 8
	msgLoginLimited        = "Too many login attempts. Please wait before trying again."
)

var (
	dummyHashOnce sync.Once
	dummyHash     string
)

// timingHash is compared against when the admin does not exist so unknown
// emails cost the same as wrong passwords.
func timingHash() string {
	dummyHashOnce.Do(func() {
		hash, err := crypto.HashPassword("csahub-unknown-admin")
		if err == nil {
			dummyHash = hash
		}
	})
	return dummyHash
}

// AdminLoginInput is a login form submission.
type AdminLoginInput struct {
	CSRFExpected  string
	CSRFSubmitted string
	CaptchaToken  string
	ClientIP      string
	UserAgent     string
	Email         string
	Password      string
}

// AdminAuthService authenticates administrators.
type AdminAuthService struct {
	db    *gorm.DB
	guard *RequestGuard
	audit *AuditService
	now   func() time.Time
	log   *zap.Logger
}

// NewAdminAuthService constructs the service. guard may be nil for tooling
// that only manages accounts.
func NewAdminAuthService(db *gorm.DB, guard *RequestGuard, audit *AuditService) (*AdminAuthService, error) {
	if db == nil {
		return nil, errors.New("admin auth service: db is required")
	}
	return &AdminAuthService{
		db:    db,
		guard: guard,
		audit: audit,
		now:   func() time.Time { return time.Now().UTC() },
		log:   logger.WithModule("admin_auth"),
	}, nil
}

// Login checks the guard, then the credentials. Every credential failure
// yields ErrInvalidCredentials.
func (s *AdminAuthService) Login(ctx context.Context, in AdminLoginInput) (*models.Admin, error) {
	ctx = ensureContext(ctx)
	if s.guard == nil {
		return nil, internalError(errors.New("admin auth service: guard not configured"))
	}

	if err := s.guard.Check(ctx, GuardCheck{
		CSRFExpected:  in.CSRFExpected,
		CSRFSubmitted: in.CSRFSubmitted,
		CaptchaToken:  in.CaptchaToken,
		ClientIP:      in.ClientIP,
		Email:         in.Email,
		Endpoint:      EndpointAdminLogin,
		LimitMessage:  msgLoginLimited,
	}); err != nil {
		metrics.AuthAttempts.WithLabelValues("failure").Inc()
		return nil, err
	}

	email := security.NormalizeEmail(in.Email)
	if email == "" || in.Password == "" {
		metrics.AuthAttempts.WithLabelValues("failure").Inc()
		return nil, apperrors.NewValidation("Please enter both email and password.")
	}
	if !validator.IsEmail(email) {
		metrics.AuthAttempts.WithLabelValues("failure").Inc()
		return nil, apperrors.NewValidation("Please enter a valid email address.")
	}

	actor := Actor{Email: email, IPAddress: in.ClientIP, UserAgent: in.UserAgent}

	var admin models.Admin
	err := s.db.WithContext(ctx).Where("email = ?", email).Take(&admin).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		metrics.AuthAttempts.WithLabelValues("failure").Inc()
		return nil, internalError(fmt.Errorf("load admin: %w", err))
	}
	found := err == nil

	hash := timingHash()
	if found {
		hash = admin.PasswordHash
	}
	if !crypto.VerifyPassword(hash, in.Password) || !found {
		metrics.AuthAttempts.WithLabelValues("failure").Inc()
		recordAudit(s.audit, ctx, actor.entry("admin.login", "", AuditFailure, nil))
		s.log.Info("admin login failed", zap.String("ip", in.ClientIP))
		return nil, apperrors.ErrInvalidCredentials
	}

	now := s.now()
	if err := s.db.WithContext(ctx).Model(&admin).Update("last_login_at", now).Error; err != nil {
		s.log.Warn("record last login", zap.Uint("admin_id", admin.ID), zap.Error(err))
	}
	admin.LastLoginAt = &now

	actor.AdminID = admin.ID
	recordAudit(s.audit, ctx, actor.entry("admin.login", resourceRef("admin", admin.ID), AuditSuccess, nil))
	metrics.AuthAttempts.WithLabelValues("success").Inc()
	s.log.Info("admin logged in", zap.Uint("admin_id", admin.ID))
	return &admin, nil
}

// RecordLogout writes the logout to the audit log.
func (s *AdminAuthService) RecordLogout(ctx context.Context, actor Actor) {
	recordAudit(s.audit, ensureContext(ctx), actor.entry("admin.logout", resourceRef("admin", actor.AdminID), AuditSuccess, nil))
}

// CreateAdmin adds an administrator with a bcrypt-hashed password.
func (s *AdminAuthService) CreateAdmin(ctx context.Context, email, password, role string) (*models.Admin, error) {
	ctx = ensureContext(ctx)
	email = security.NormalizeEmail(email)
	if !validator.IsEmail(email) {
		return nil, apperrors.NewValidation("Please enter a valid email address.")
	}
	if len(password) < minAdminPasswordLength {
		return nil, apperrors.NewValidation(fmt.Sprintf("Password must be at least %d characters.", minAdminPasswordLength))
	}
	role = strings.TrimSpace(role)
	if role == "" {
		role = AdminRoleAdmin
	}

	hash, err := crypto.HashPassword(password)
	if err != nil {
		return nil, internalError(fmt.Errorf("hash password: %w", err))
	}

	admin := models.Admin{Email: email, PasswordHash: hash, Role: role}
	if err := s.db.WithContext(ctx).Create(&admin).Error; err != nil {
		if database.IsUniqueViolation(err) {
			return nil, apperrors.NewValidation("An admin with this email already exists.")
		}
		return nil, internalError(fmt.Errorf("create admin: %w", err))
	}
	return &admin, nil
}

// SetPassword replaces an admin's password.
func (s *AdminAuthService) SetPassword(ctx context.Context, email, password string) error {
	ctx = ensureContext(ctx)
	if len(password) < minAdminPasswordLength {
		return apperrors.NewValidation(fmt.Sprintf("Password must be at least %d characters.", minAdminPasswordLength))
	}
	hash, err := crypto.HashPassword(password)
	if err != nil {
		return internalError(fmt.Errorf("hash password: %w", err))
	}
	res := s.db.WithContext(ctx).Model(&models.Admin{}).
		Where("email = ?", security.NormalizeEmail(email)).
		Update("pass_hash", hash)
	if res.Error != nil {
		return internalError(fmt.Errorf("update password: %w", res.Error))
	}
	if res.RowsAffected == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

// EnsureBootstrapAdmin creates the first admin when the table is empty.
// It reports whether an account was created.
func (s *AdminAuthService) EnsureBootstrapAdmin(ctx context.Context, email, password string) (bool, error) {
	ctx = ensureContext(ctx)
	if strings.TrimSpace(email) == "" || password == "" {
		return false, nil
	}
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.Admin{}).Count(&count).Error; err != nil {
		return false, fmt.Errorf("count admins: %w", err)
	}
	if count > 0 {
		return false, nil
	}
	if _, err := s.CreateAdmin(ctx, email, password, AdminRoleAdmin); err != nil {
		return false, err
	}
	s.log.Info("bootstrap admin created", zap.String("email", security.NormalizeEmail(email)))
	return true, nil
}
