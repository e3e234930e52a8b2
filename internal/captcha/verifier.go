package captcha

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/charlesng35/csahub/pkg/logger"
	"github.com/charlesng35/csahub/pkg/metrics"
)

// Provider identifies a CAPTCHA service.
type Provider string

const (
	// ProviderRecaptcha is Google reCAPTCHA v3, which returns a score.
	ProviderRecaptcha Provider = "recaptcha"
	// ProviderHCaptcha is hCaptcha, which returns a boolean verdict.
	ProviderHCaptcha Provider = "hcaptcha"
)

const (
	recaptchaVerifyURL = "https://www.google.com/recaptcha/api/siteverify"
	hcaptchaVerifyURL  = "https://hcaptcha.com/siteverify"

	defaultTimeout  = 5 * time.Second
	defaultMinScore = 0.5
	maxResponseSize = 64 << 10
)

// Verifier decides whether a client-supplied CAPTCHA token is genuine.
// Implementations fail closed: any doubt yields false.
type Verifier interface {
	Verify(ctx context.Context, token, remoteIP string) bool
}

// VerifierFunc adapts a function to the Verifier interface.
type VerifierFunc func(ctx context.Context, token, remoteIP string) bool

// Verify calls f.
func (f VerifierFunc) Verify(ctx context.Context, token, remoteIP string) bool {
	return f(ctx, token, remoteIP)
}

// Settings configure an HTTPVerifier.
type Settings struct {
	Provider Provider
	Secret   string
	MinScore float64
	Timeout  time.Duration
	// VerifyURL overrides the provider endpoint.
	VerifyURL string
}

// HTTPVerifier verifies tokens against the provider's siteverify endpoint.
type HTTPVerifier struct {
	settings Settings
	client   *http.Client
	log      *zap.Logger
}

// Option customises an HTTPVerifier.
type Option func(*HTTPVerifier)

// WithHTTPClient overrides the HTTP client. Its timeout is replaced by the
// configured CAPTCHA timeout.
func WithHTTPClient(client *http.Client) Option {
	return func(v *HTTPVerifier) {
		if client != nil {
			cpy := *client
			v.client = &cpy
		}
	}
}

// NewHTTPVerifier constructs a verifier with provider defaults applied.
func NewHTTPVerifier(settings Settings, opts ...Option) *HTTPVerifier {
	settings.Provider = Provider(strings.ToLower(strings.TrimSpace(string(settings.Provider))))
	if settings.Provider == "" {
		settings.Provider = ProviderRecaptcha
	}
	if settings.Timeout <= 0 {
		settings.Timeout = defaultTimeout
	}
	if settings.MinScore <= 0 {
		settings.MinScore = defaultMinScore
	}
	if strings.TrimSpace(settings.VerifyURL) == "" {
		settings.VerifyURL = defaultVerifyURL(settings.Provider)
	}

	v := &HTTPVerifier{
		settings: settings,
		client:   &http.Client{},
		log:      logger.WithModule("captcha"),
	}
	for _, opt := range opts {
		opt(v)
	}
	v.client.Timeout = settings.Timeout
	return v
}

func defaultVerifyURL(p Provider) string {
	if p == ProviderHCaptcha {
		return hcaptchaVerifyURL
	}
	return recaptchaVerifyURL
}

type siteVerifyResponse struct {
	Success    bool     `json:"success"`
	Score      *float64 `json:"score,omitempty"`
	Action     string   `json:"action,omitempty"`
	Hostname   string   `json:"hostname,omitempty"`
	ErrorCodes []string `json:"error-codes,omitempty"`
}

// Verify posts the token to the provider. Missing token or secret, transport
// failures, timeouts, non-2xx replies and undecodable bodies all return false.
func (v *HTTPVerifier) Verify(ctx context.Context, token, remoteIP string) bool {
	provider := string(v.settings.Provider)
	token = strings.TrimSpace(token)
	if token == "" {
		metrics.CaptchaChecks.WithLabelValues(provider, "fail").Inc()
		return false
	}
	if strings.TrimSpace(v.settings.Secret) == "" {
		v.log.Warn("captcha secret not configured; rejecting")
		metrics.CaptchaChecks.WithLabelValues(provider, "error").Inc()
		return false
	}

	result, err := v.siteVerify(ctx, token, remoteIP)
	if err != nil {
		v.log.Warn("captcha verification failed", zap.Error(err))
		metrics.CaptchaChecks.WithLabelValues(provider, "error").Inc()
		return false
	}

	passed := result.Success
	if passed && v.settings.Provider == ProviderRecaptcha && result.Score != nil {
		passed = *result.Score >= v.settings.MinScore
	}

	if passed {
		metrics.CaptchaChecks.WithLabelValues(provider, "pass").Inc()
	} else {
		v.log.Info("captcha rejected",
			zap.Strings("error_codes", result.ErrorCodes),
			zap.Bool("success", result.Success),
		)
		metrics.CaptchaChecks.WithLabelValues(provider, "fail").Inc()
	}
	return passed
}

func (v *HTTPVerifier) siteVerify(ctx context.Context, token, remoteIP string) (*siteVerifyResponse, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, v.settings.Timeout)
	defer cancel()

	form := url.Values{}
	form.Set("secret", v.settings.Secret)
	form.Set("response", token)
	if remoteIP != "" {
		form.Set("remoteip", remoteIP)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.settings.VerifyURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("captcha: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := v.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("captcha: request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseSize))
		return nil, fmt.Errorf("captcha: unexpected status %d", resp.StatusCode)
	}

	var payload siteVerifyResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseSize)).Decode(&payload); err != nil {
		return nil, fmt.Errorf("captcha: decode response: %w", err)
	}
	return &payload, nil
}
