package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
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
	defaultVerificationTokenBytes = 32

	msgJoinLimited = "Too many registration attempts. Please wait before trying again."
)

// RegistrationInput is a raw join form submission.
type RegistrationInput struct {
	CSRFExpected  string
	CSRFSubmitted string
	CaptchaToken  string
	ClientIP      string

	FirstName      string
	LastName       string
	Email          string
	YearLevel      string
	Major          string
	Campus         string
	Phone          string
	ConsentComms   bool
	AcceptedCode   bool
	ConsentPrivacy bool
}

// RegistrationResult reports a successful registration.
type RegistrationResult struct {
	MemberID uint
	Message  string
	// Renewed is true when an existing pending registration was refreshed.
	Renewed bool
}

type registrationFields struct {
	firstName      string
	lastName       string
	email          string
	yearLevel      string
	major          string
	campus         string
	phone          *string
	consentComms   bool
	acceptedCode   bool
	consentPrivacy bool
}

// RegistrationOption customises the RegistrationService.
type RegistrationOption func(*RegistrationService)

// WithVerificationEmails toggles sending the confirmation email.
func WithVerificationEmails(enabled bool) RegistrationOption {
	return func(s *RegistrationService) {
		s.sendEmails = enabled
	}
}

// WithRegistrationTokenBytes sets the random payload size of verification tokens.
func WithRegistrationTokenBytes(n int) RegistrationOption {
	return func(s *RegistrationService) {
		if n >= crypto.MinTokenBytes {
			s.tokenBytes = n
		}
	}
}

// WithRegistrationSiteName sets the organisation name used in messages.
func WithRegistrationSiteName(name string) RegistrationOption {
	return func(s *RegistrationService) {
		if name = strings.TrimSpace(name); name != "" {
			s.siteName = name
		}
	}
}

// WithRegistrationClock injects a custom time source.
func WithRegistrationClock(clock func() time.Time) RegistrationOption {
	return func(s *RegistrationService) {
		if clock != nil {
			s.now = clock
		}
	}
}

// RegistrationService handles membership sign-ups.
type RegistrationService struct {
	db         *gorm.DB
	guard      *RequestGuard
	mailer     VerificationMailer
	sendEmails bool
	tokenBytes int
	siteName   string
	now        func() time.Time
	log        *zap.Logger
}

// NewRegistrationService constructs the service. mailer may be nil when
// verification emails are disabled.
func NewRegistrationService(db *gorm.DB, guard *RequestGuard, mailer VerificationMailer, opts ...RegistrationOption) (*RegistrationService, error) {
	if db == nil {
		return nil, errors.New("registration service: db is required")
	}
	if guard == nil {
		return nil, errors.New("registration service: guard is required")
	}
	s := &RegistrationService{
		db:         db,
		guard:      guard,
		mailer:     mailer,
		tokenBytes: defaultVerificationTokenBytes,
		siteName:   "CSA",
		now:        func() time.Time { return time.Now().UTC() },
		log:        logger.WithModule("registration"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Register validates a submission and creates or refreshes the pending
// membership. Registrations for verified or blocked emails are rejected.
func (s *RegistrationService) Register(ctx context.Context, in RegistrationInput) (*RegistrationResult, error) {
	ctx = ensureContext(ctx)

	if err := s.guard.Check(ctx, GuardCheck{
		CSRFExpected:  in.CSRFExpected,
		CSRFSubmitted: in.CSRFSubmitted,
		CaptchaToken:  in.CaptchaToken,
		ClientIP:      in.ClientIP,
		Email:         in.Email,
		Endpoint:      EndpointJoin,
		LimitMessage:  msgJoinLimited,
	}); err != nil {
		s.reject(err)
		return nil, err
	}

	fields, err := normaliseRegistration(in)
	if err != nil {
		s.reject(err)
		return nil, err
	}

	token, err := crypto.GenerateHexToken(s.tokenBytes)
	if err != nil {
		metrics.Registrations.WithLabelValues("error").Inc()
		return nil, internalError(fmt.Errorf("generate verification token: %w", err))
	}

	var (
		member  *models.Member
		renewed bool
	)
	for attempt := 0; ; attempt++ {
		member, renewed, err = s.upsert(ctx, fields, token)
		if err == nil {
			break
		}
		// A concurrent submission for the same email won the insert; take
		// the existing-row path once.
		if attempt == 0 && database.IsUniqueViolation(err) {
			continue
		}
		var appErr *apperrors.AppError
		if errors.As(err, &appErr) {
			s.reject(err)
			return nil, err
		}
		metrics.Registrations.WithLabelValues("error").Inc()
		s.log.Error("registration failed", zap.Error(err))
		return nil, internalError(err)
	}

	if renewed {
		metrics.Registrations.WithLabelValues("updated").Inc()
	} else {
		metrics.Registrations.WithLabelValues("created").Inc()
	}
	s.log.Info("registration accepted",
		zap.Uint("member_id", member.ID),
		zap.Bool("renewed", renewed),
	)

	if s.sendEmails && s.mailer != nil {
		if err := s.mailer.SendVerification(ctx, member, token); err != nil {
			s.log.Warn("verification email not sent", zap.Uint("member_id", member.ID), zap.Error(err))
		}
	}

	return &RegistrationResult{
		MemberID: member.ID,
		Message:  s.successMessage(strings.TrimSpace(in.FirstName)),
		Renewed:  renewed,
	}, nil
}

func (s *RegistrationService) upsert(ctx context.Context, f registrationFields, token string) (*models.Member, bool, error) {
	now := s.now()
	var (
		member  models.Member
		renewed bool
	)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where("email = ?", f.email).Take(&member).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			member = models.Member{
				FirstName:         f.firstName,
				LastName:          f.lastName,
				Email:             f.email,
				YearLevel:         f.yearLevel,
				Major:             f.major,
				Campus:            f.campus,
				Phone:             f.phone,
				ConsentComms:      f.consentComms,
				AcceptedCode:      f.acceptedCode,
				ConsentPrivacy:    f.consentPrivacy,
				Status:            models.MemberStatusPending,
				VerificationToken: &token,
				CreatedAt:         now,
			}
			return tx.Create(&member).Error
		}
		if err != nil {
			return fmt.Errorf("load member: %w", err)
		}

		switch member.Status {
		case models.MemberStatusVerified:
			return ErrAlreadyRegistered
		case models.MemberStatusBlocked:
			return ErrRegistrationBlocked
		}

		if err := tx.Model(&member).Updates(map[string]any{
			"first_name":         f.firstName,
			"last_name":          f.lastName,
			"year_level":         f.yearLevel,
			"major":              f.major,
			"campus":             f.campus,
			"phone":              f.phone,
			"consent_comms":      f.consentComms,
			"accepted_code":      f.acceptedCode,
			"consent_privacy":    f.consentPrivacy,
			"verification_token": token,
			"created_at":         now,
		}).Error; err != nil {
			return fmt.Errorf("refresh pending member: %w", err)
		}
		renewed = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return &member, renewed, nil
}

func (s *RegistrationService) reject(err error) {
	metrics.Registrations.WithLabelValues("rejected").Inc()
	s.log.Info("registration rejected", zap.String("reason", apperrors.FromError(err).Code))
}

func (s *RegistrationService) successMessage(firstName string) string {
	if s.sendEmails {
		return fmt.Sprintf("Welcome to %s, %s! Please check your email to confirm your membership.", s.siteName, firstName)
	}
	return fmt.Sprintf("Welcome to %s, %s! Your membership is now pending approval.", s.siteName, firstName)
}

// registrationForm carries the validation rules for the join form. Fields
// are checked in declaration order and the first failure is reported.
type registrationForm struct {
	FirstName      string `form:"first_name" validate:"min=2,max=80"`
	LastName       string `form:"last_name" validate:"min=2,max=80"`
	Email          string `form:"email" validate:"required,email,max=255"`
	AcceptedCode   bool   `form:"accepted_code" validate:"eq=true"`
	ConsentPrivacy bool   `form:"consent_privacy" validate:"eq=true"`
	YearLevel      string `form:"year_level" validate:"max=50"`
	Major          string `form:"major" validate:"max=120"`
	Campus         string `form:"campus" validate:"max=120"`
	Phone          string `form:"phone" validate:"max=40"`
}

var registrationMessages = map[string]string{
	"first_name":      "First name must be between 2 and 80 characters.",
	"last_name":       "Last name must be between 2 and 80 characters.",
	"email":           "Please enter a valid email address.",
	"accepted_code":   "You must agree to follow the Code of Conduct.",
	"consent_privacy": "You must agree to the Privacy Policy.",
	"year_level":      "Year level must be at most 50 characters.",
	"major":           "Major must be at most 120 characters.",
	"campus":          "Campus must be at most 120 characters.",
	"phone":           "Phone must be at most 40 characters.",
}

func normaliseRegistration(in RegistrationInput) (registrationFields, error) {
	form := registrationForm{
		FirstName:      strings.TrimSpace(in.FirstName),
		LastName:       strings.TrimSpace(in.LastName),
		Email:          security.NormalizeEmail(in.Email),
		AcceptedCode:   in.AcceptedCode,
		ConsentPrivacy: in.ConsentPrivacy,
		YearLevel:      strings.TrimSpace(in.YearLevel),
		Major:          strings.TrimSpace(in.Major),
		Campus:         strings.TrimSpace(in.Campus),
		Phone:          strings.TrimSpace(in.Phone),
	}
	if err := validator.Struct(form); err != nil {
		var fieldErrs validator.FieldErrors
		if errors.As(err, &fieldErrs) {
			if msg, ok := fieldErrs.Message(registrationMessages); ok {
				return registrationFields{}, apperrors.NewValidation(msg)
			}
		}
		return registrationFields{}, internalError(err)
	}
	var phone *string
	if p := optionalString(form.Phone); p != nil {
		escaped := security.SanitizeText(*p)
		phone = &escaped
	}

	return registrationFields{
		firstName:      security.SanitizeText(form.FirstName),
		lastName:       security.SanitizeText(form.LastName),
		email:          form.Email,
		yearLevel:      security.SanitizeText(form.YearLevel),
		major:          security.SanitizeText(form.Major),
		campus:         security.SanitizeText(form.Campus),
		phone:          phone,
		consentComms:   in.ConsentComms,
		acceptedCode:   in.AcceptedCode,
		consentPrivacy: in.ConsentPrivacy,
	}, nil
}
