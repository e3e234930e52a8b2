package app

import (
	"github.com/charlesng35/csahub/internal/captcha"
	"github.com/charlesng35/csahub/internal/security"
)

// CaptchaSettings converts CaptchaConfig to the verifier settings.
func (c CaptchaConfig) CaptchaSettings() captcha.Settings {
	return captcha.Settings{
		Provider:  captcha.Provider(c.Provider),
		Secret:    c.Secret,
		MinScore:  c.MinScore,
		Timeout:   c.Timeout,
		VerifyURL: c.VerifyURL,
	}
}

// Limits converts RateLimitConfig to the attempt limiter representation.
func (c RateLimitConfig) Limits() security.Limits {
	return security.Limits{
		Window:      c.Window,
		MaxAttempts: c.MaxAttempts,
	}
}
