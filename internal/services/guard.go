package services

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/charlesng35/csahub/internal/captcha"
	"github.com/charlesng35/csahub/internal/security"
	apperrors "github.com/charlesng35/csahub/pkg/errors"
	"github.com/charlesng35/csahub/pkg/logger"
	"github.com/charlesng35/csahub/pkg/metrics"
)

// Endpoint names recorded by the attempt limiter.
const (
	EndpointJoin       = "join"
	EndpointAdminLogin = "admin_login"
)

// AttemptLimiter is satisfied by *security.RateLimiter.
type AttemptLimiter interface {
	Allow(ctx context.Context, ip, email, endpoint string) (bool, error)
}

// GuardCheck carries the anti-abuse inputs of a public form submission.
type GuardCheck struct {
	CSRFExpected  string
	CSRFSubmitted string
	CaptchaToken  string
	ClientIP      string
	Email         string
	Endpoint      string
	// LimitMessage is shown when the attempt limiter denies the request.
	LimitMessage string
}

// RequestGuard runs the CSRF, CAPTCHA and attempt-limit checks in that order.
type RequestGuard struct {
	captcha        captcha.Verifier
	limiter        AttemptLimiter
	loopbackBypass bool
	log            *zap.Logger
}

// NewRequestGuard constructs a guard. loopbackBypass skips CAPTCHA for
// loopback clients only; the limiter always runs.
func NewRequestGuard(verifier captcha.Verifier, limiter AttemptLimiter, loopbackBypass bool) (*RequestGuard, error) {
	if verifier == nil {
		return nil, errors.New("request guard: captcha verifier is required")
	}
	if limiter == nil {
		return nil, errors.New("request guard: limiter is required")
	}
	return &RequestGuard{
		captcha:        verifier,
		limiter:        limiter,
		loopbackBypass: loopbackBypass,
		log:            logger.WithModule("guard"),
	}, nil
}

// Check returns nil when the submission may proceed. The first failing check
// determines the error.
func (g *RequestGuard) Check(ctx context.Context, in GuardCheck) error {
	ctx = ensureContext(ctx)

	if !security.VerifyCSRFToken(in.CSRFExpected, in.CSRFSubmitted) {
		return apperrors.ErrCSRFInvalid
	}

	if g.loopbackBypass && security.IsLoopback(in.ClientIP) {
		metrics.CaptchaChecks.WithLabelValues("loopback", "bypass").Inc()
	} else if !g.captcha.Verify(ctx, in.CaptchaToken, in.ClientIP) {
		return apperrors.ErrCaptchaFailed
	}

	allowed, err := g.limiter.Allow(ctx, in.ClientIP, security.NormalizeEmail(in.Email), in.Endpoint)
	if err != nil {
		g.log.Error("attempt limiter failed", zap.String("endpoint", in.Endpoint), zap.Error(err))
		return internalError(err)
	}
	if !allowed {
		message := in.LimitMessage
		if message == "" {
			message = apperrors.ErrRateLimit.Message
		}
		return rateLimited(message)
	}
	return nil
}
