package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Registrations counts join submissions by result
	// (created|updated|rejected|error).
	Registrations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "csahub_registrations_total",
			Help: "Total number of membership registration submissions",
		},
		[]string{"result"},
	)

	// Verifications counts verification link redemptions by result
	// (verified|expired|invalid|error).
	Verifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "csahub_verifications_total",
			Help: "Total number of email verification attempts",
		},
		[]string{"result"},
	)

	// CaptchaChecks counts CAPTCHA verifications by provider and outcome (pass|fail|error|bypass).
	CaptchaChecks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "csahub_captcha_checks_total",
			Help: "Total number of CAPTCHA verifications",
		},
		[]string{"provider", "result"},
	)

	// RateLimitDenials counts requests rejected by the attempt limiter, per endpoint.
	RateLimitDenials = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "csahub_rate_limit_denials_total",
			Help: "Total number of rate limited attempts",
		},
		[]string{"endpoint"},
	)

	// AuthAttempts records admin login attempts by result (success|failure).
	AuthAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "csahub_admin_login_attempts_total",
			Help: "Total number of admin login attempts",
		},
		[]string{"result"},
	)

	// MailDeliveries counts outbound mail by kind and result (sent|failed).
	MailDeliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "csahub_mail_deliveries_total",
			Help: "Total number of outbound email deliveries",
		},
		[]string{"kind", "result"},
	)

	// Panics counts handler panics caught by the recovery middleware.
	Panics = promauto.NewCounter(prometheus.CounterOpts{
		Name: "csahub_http_panics_total",
		Help: "Total number of recovered handler panics",
	})

	// InFlight tracks requests currently being served.
	InFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "csahub_http_requests_in_flight",
		Help: "Number of HTTP requests being served",
	})

	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "csahub_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
