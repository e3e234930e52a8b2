package app

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"go.uber.org/multierr"
)

// Config represents the runtime configuration for the CSA hub backend. It is
// loaded once at start-up and passed explicitly; treat it as read-only.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Security    SecurityConfig    `mapstructure:"security"`
	Email       EmailConfig       `mapstructure:"email"`
	Site        SiteConfig        `mapstructure:"app"`
	Features    FeatureConfig     `mapstructure:"features"`
	Admin       AdminConfig       `mapstructure:"admin"`
	Maintenance MaintenanceConfig `mapstructure:"maintenance"`
	Monitoring  MonitoringConfig  `mapstructure:"monitoring"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port            int                `mapstructure:"port"`
	LogLevel        string             `mapstructure:"log_level"`
	LogFormat       string             `mapstructure:"log_format"`
	BaseURL         string             `mapstructure:"base_url"`
	TrustedProxies  []string           `mapstructure:"trusted_proxies"`
	ShutdownTimeout time.Duration      `mapstructure:"shutdown_timeout"`
	Session         SessionConfig      `mapstructure:"session"`
	RequestLimit    RequestLimitConfig `mapstructure:"request_limit"`
	CORS            CORSConfig         `mapstructure:"cors"`
}

// SessionConfig controls the server-side session cookie.
type SessionConfig struct {
	CookieName string        `mapstructure:"cookie_name"`
	TTL        time.Duration `mapstructure:"ttl"`
	// ForceSecure marks the cookie Secure even when TLS terminates upstream
	// without forwarding headers.
	ForceSecure bool `mapstructure:"force_secure"`
}

// RequestLimitConfig bounds raw request volume per client and route.
type RequestLimitConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	MaxRequests int           `mapstructure:"max_requests"`
	Window      time.Duration `mapstructure:"window"`
}

// CORSConfig lists origins allowed to call /api from a browser.
type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// DatabaseConfig describes connection options for the supported databases.
type DatabaseConfig struct {
	Driver   string       `mapstructure:"driver"`
	Path     string       `mapstructure:"path"`
	DSN      string       `mapstructure:"dsn"`
	Postgres DBAuthConfig `mapstructure:"postgres"`
	MySQL    DBAuthConfig `mapstructure:"mysql"`

	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// DBAuthConfig represents host based database parameters.
type DBAuthConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Database string `mapstructure:"database"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	SSLMode  string `mapstructure:"sslmode"`
}

// SecurityConfig groups the CAPTCHA, attempt limiting and verification settings.
type SecurityConfig struct {
	Captcha      CaptchaConfig      `mapstructure:"captcha"`
	RateLimit    RateLimitConfig    `mapstructure:"rate_limit"`
	Verification VerificationConfig `mapstructure:"verification"`
}

// CaptchaConfig selects and configures the CAPTCHA provider.
type CaptchaConfig struct {
	Provider  string        `mapstructure:"provider"`
	SiteKey   string        `mapstructure:"site_key"`
	Secret    string        `mapstructure:"secret"`
	MinScore  float64       `mapstructure:"min_score"`
	Timeout   time.Duration `mapstructure:"timeout"`
	VerifyURL string        `mapstructure:"verify_url"`
	// LoopbackBypass skips CAPTCHA for requests from loopback addresses.
	// Development only.
	LoopbackBypass bool `mapstructure:"loopback_bypass"`
}

// RateLimitConfig configures the per-endpoint attempt limiter.
type RateLimitConfig struct {
	Window      time.Duration `mapstructure:"window"`
	MaxAttempts int           `mapstructure:"max_attempts"`
}

// VerificationConfig configures email verification tokens.
type VerificationConfig struct {
	TokenTTL   time.Duration `mapstructure:"token_ttl"`
	TokenBytes int           `mapstructure:"token_bytes"`
}

// EmailConfig captures outbound email settings.
type EmailConfig struct {
	SMTP      SMTPConfig `mapstructure:"smtp"`
	SendRate  float64    `mapstructure:"send_rate"`
	SendBurst int        `mapstructure:"send_burst"`
}

// SMTPConfig defines SMTP dialer settings for sending email.
type SMTPConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Host     string        `mapstructure:"host"`
	Port     int           `mapstructure:"port"`
	Username string        `mapstructure:"username"`
	Password string        `mapstructure:"password"`
	From     string        `mapstructure:"from"`
	FromName string        `mapstructure:"from_name"`
	UseTLS   bool          `mapstructure:"use_tls"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// SiteConfig holds organisation details used in messages.
type SiteConfig struct {
	Name       string `mapstructure:"name"`
	ShortName  string `mapstructure:"short_name"`
	AdminEmail string `mapstructure:"admin_email"`
	Timezone   string `mapstructure:"timezone"`
}

// FeatureConfig toggles optional behaviour.
type FeatureConfig struct {
	EmailVerification  bool `mapstructure:"email_verification"`
	AdminNotifications bool `mapstructure:"admin_notifications"`
}

// AdminConfig configures the first administrator account.
type AdminConfig struct {
	Bootstrap AdminBootstrapConfig `mapstructure:"bootstrap"`
}

// AdminBootstrapConfig creates an admin on start-up when none exist.
type AdminBootstrapConfig struct {
	Email    string `mapstructure:"email"`
	Password string `mapstructure:"password"`
}

// MaintenanceConfig controls housekeeping run by csactl cleanup.
type MaintenanceConfig struct {
	AuditRetentionDays int `mapstructure:"audit_retention_days"`
	// PendingRetention deletes PENDING members whose token expired this long
	// ago. Zero keeps them.
	PendingRetention time.Duration `mapstructure:"pending_retention"`
	// Schedule is a cron expression for running housekeeping inside the
	// server. Empty disables it.
	Schedule string `mapstructure:"schedule"`
}

// MonitoringConfig enables health checks and metrics.
type MonitoringConfig struct {
	Prometheus PrometheusConfig `mapstructure:"prometheus"`
	Health     HealthConfig     `mapstructure:"health_check"`
}

// PrometheusConfig toggles metrics endpoints.
type PrometheusConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Endpoint string `mapstructure:"endpoint"`
}

// HealthConfig toggles health endpoints.
type HealthConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// LoadConfig reads config.yaml from ./config and the given directories, then
// applies .env files and CSA_* environment overrides. A missing file is not an
// error; defaults apply.
func LoadConfig(paths ...string) (*Config, error) {
	return load(paths, "")
}

// LoadConfigPath loads from path, which may be a directory holding
// config.yaml or the config file itself. An empty path uses LoadConfig's
// search order.
func LoadConfigPath(path string) (*Config, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return LoadConfig()
	}

	info, err := os.Stat(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return nil, fmt.Errorf("config path %q does not exist", path)
	case err != nil:
		return nil, fmt.Errorf("config: stat %s: %w", path, err)
	case info.IsDir():
		return LoadConfig(path)
	}
	return load([]string{filepath.Dir(path)}, path)
}

func load(dirs []string, file string) (*Config, error) {
	if err := loadDotEnv(dirs); err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetConfigType("yaml")
	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath("./config")
		for _, dir := range dirs {
			v.AddConfigPath(dir)
		}
	}

	setDefaults(v)

	v.SetEnvPrefix("CSA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config: read file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config, decodeHook()); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	return &config, nil
}

func loadDotEnv(paths []string) error {
	candidates := append([]string{"."}, paths...)
	for _, dir := range candidates {
		file := filepath.Join(dir, ".env")
		if _, err := os.Stat(file); err != nil {
			continue
		}
		if err := godotenv.Load(file); err != nil {
			return fmt.Errorf("config: load %s: %w", file, err)
		}
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.log_format", "json")
	v.SetDefault("server.base_url", "")
	v.SetDefault("server.trusted_proxies", []string{})
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("server.session.cookie_name", "csa_session")
	v.SetDefault("server.session.ttl", "12h")
	v.SetDefault("server.session.force_secure", false)
	v.SetDefault("server.request_limit.enabled", true)
	v.SetDefault("server.request_limit.max_requests", 120)
	v.SetDefault("server.request_limit.window", "1m")
	v.SetDefault("server.cors.allowed_origins", []string{})

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/csahub.sqlite")
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.postgres.host", "localhost")
	v.SetDefault("database.postgres.port", 5432)
	v.SetDefault("database.postgres.database", "")
	v.SetDefault("database.postgres.username", "")
	v.SetDefault("database.postgres.password", "")
	v.SetDefault("database.postgres.sslmode", "disable")
	v.SetDefault("database.mysql.host", "localhost")
	v.SetDefault("database.mysql.port", 3306)
	v.SetDefault("database.mysql.database", "")
	v.SetDefault("database.mysql.username", "")
	v.SetDefault("database.mysql.password", "")

	v.SetDefault("security.captcha.provider", "recaptcha")
	v.SetDefault("security.captcha.site_key", "")
	v.SetDefault("security.captcha.secret", "")
	v.SetDefault("security.captcha.min_score", 0.5)
	v.SetDefault("security.captcha.timeout", "5s")
	v.SetDefault("security.captcha.verify_url", "")
	v.SetDefault("security.captcha.loopback_bypass", false)
	v.SetDefault("security.rate_limit.window", "1h")
	v.SetDefault("security.rate_limit.max_attempts", 5)
	v.SetDefault("security.verification.token_ttl", "168h") // 7 days
	v.SetDefault("security.verification.token_bytes", 32)

	v.SetDefault("email.smtp.enabled", false)
	v.SetDefault("email.smtp.host", "")
	v.SetDefault("email.smtp.port", 587)
	v.SetDefault("email.smtp.username", "")
	v.SetDefault("email.smtp.password", "")
	v.SetDefault("email.smtp.from", "")
	v.SetDefault("email.smtp.from_name", "")
	v.SetDefault("email.smtp.use_tls", false)
	v.SetDefault("email.smtp.timeout", "10s")
	v.SetDefault("email.send_rate", 2.0)
	v.SetDefault("email.send_burst", 5)

	v.SetDefault("app.name", "Computer Science Association")
	v.SetDefault("app.short_name", "CSA")
	v.SetDefault("app.admin_email", "")
	v.SetDefault("app.timezone", "America/Chicago")

	v.SetDefault("features.email_verification", true)
	v.SetDefault("features.admin_notifications", true)

	v.SetDefault("admin.bootstrap.email", "")
	v.SetDefault("admin.bootstrap.password", "")

	v.SetDefault("maintenance.audit_retention_days", 90)
	v.SetDefault("maintenance.pending_retention", "0s")
	v.SetDefault("maintenance.schedule", "")

	v.SetDefault("monitoring.prometheus.enabled", true)
	v.SetDefault("monitoring.prometheus.endpoint", "/metrics")
	v.SetDefault("monitoring.health_check.enabled", true)
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Verification tokens are hex encoded into members.verification_token (128).
const (
	minTokenBytes = 16
	maxTokenBytes = 64
)

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config: nil")
	}

	var err error
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		err = multierr.Append(err, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	switch strings.ToLower(strings.TrimSpace(c.Database.Driver)) {
	case "", "sqlite", "postgres", "postgresql", "mysql":
	default:
		err = multierr.Append(err, fmt.Errorf("database.driver %q is not supported", c.Database.Driver))
	}
	switch strings.ToLower(strings.TrimSpace(c.Security.Captcha.Provider)) {
	case "recaptcha", "hcaptcha":
	default:
		err = multierr.Append(err, fmt.Errorf("security.captcha.provider %q is not supported", c.Security.Captcha.Provider))
	}
	if c.Security.Captcha.MinScore < 0 || c.Security.Captcha.MinScore > 1 {
		err = multierr.Append(err, fmt.Errorf("security.captcha.min_score must be within [0,1]"))
	}
	if c.Security.Captcha.Timeout <= 0 {
		err = multierr.Append(err, errors.New("security.captcha.timeout must be positive"))
	}
	if c.Security.RateLimit.Window <= 0 {
		err = multierr.Append(err, errors.New("security.rate_limit.window must be positive"))
	}
	if c.Security.RateLimit.MaxAttempts <= 0 {
		err = multierr.Append(err, errors.New("security.rate_limit.max_attempts must be positive"))
	}
	if c.Security.Verification.TokenTTL <= 0 {
		err = multierr.Append(err, errors.New("security.verification.token_ttl must be positive"))
	}
	if n := c.Security.Verification.TokenBytes; n < minTokenBytes || n > maxTokenBytes {
		err = multierr.Append(err, fmt.Errorf("security.verification.token_bytes must be within [%d,%d]", minTokenBytes, maxTokenBytes))
	}
	if c.Server.Session.TTL <= 0 {
		err = multierr.Append(err, errors.New("server.session.ttl must be positive"))
	}
	if c.Maintenance.PendingRetention < 0 {
		err = multierr.Append(err, errors.New("maintenance.pending_retention must not be negative"))
	}
	if _, locErr := c.Site.Location(); locErr != nil {
		err = multierr.Append(err, locErr)
	}
	return err
}

// Location resolves the configured timezone used to interpret event times.
func (s SiteConfig) Location() (*time.Location, error) {
	name := strings.TrimSpace(s.Timezone)
	if name == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("app.timezone %q: %w", name, err)
	}
	return loc, nil
}
