package api

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/charlesng35/csahub/internal/app"
	"github.com/charlesng35/csahub/internal/cache"
	"github.com/charlesng35/csahub/internal/captcha"
	"github.com/charlesng35/csahub/internal/handlers"
	"github.com/charlesng35/csahub/internal/middleware"
	"github.com/charlesng35/csahub/internal/monitoring"
	"github.com/charlesng35/csahub/internal/monitoring/checks"
	"github.com/charlesng35/csahub/internal/security"
	"github.com/charlesng35/csahub/internal/services"
	"github.com/charlesng35/csahub/internal/session"
	"github.com/charlesng35/csahub/pkg/mail"
	"github.com/charlesng35/csahub/web"
)

const defaultMetricsEndpoint = "/metrics"

// Options carries collaborators the router would otherwise build from
// configuration. Zero values select the configured implementation.
type Options struct {
	Captcha   captcha.Verifier
	Mailer    mail.Mailer
	Health    *monitoring.HealthManager
	RateStore middleware.RateStore
}

// NewRouter builds the Gin engine, wires middleware and registers the public
// site, the admin console and the probe endpoints.
func NewRouter(db *gorm.DB, cfg *app.Config, opts Options) (*gin.Engine, error) {
	if db == nil {
		return nil, fmt.Errorf("database handle must be provided")
	}
	if cfg == nil {
		return nil, fmt.Errorf("config must be provided")
	}

	deps, err := buildServices(db, cfg, opts)
	if err != nil {
		return nil, err
	}

	loc, err := cfg.Site.Location()
	if err != nil {
		return nil, err
	}
	site := handlers.Site{
		Name:            cfg.Site.Name,
		ShortName:       cfg.Site.ShortName,
		CaptchaProvider: cfg.Security.Captcha.Provider,
		CaptchaSiteKey:  cfg.Security.Captcha.SiteKey,
		Location:        loc,
	}

	r := gin.New()
	if err := r.SetTrustedProxies(cfg.Server.TrustedProxies); err != nil {
		return nil, fmt.Errorf("trusted proxies: %w", err)
	}

	tmpl, err := web.Templates(handlers.TemplateFuncs(loc))
	if err != nil {
		return nil, fmt.Errorf("parse page templates: %w", err)
	}
	r.SetHTMLTemplate(tmpl)

	// Global middleware
	r.Use(middleware.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics("/health", "/static", metricsEndpoint(cfg)))
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		CaptchaProvider: cfg.Security.Captcha.Provider,
		NoStorePrefixes: []string{"/admin"},
	}))
	r.Use(middleware.CORS(cfg.Server.CORS.AllowedOrigins))
	if cfg.Server.RequestLimit.Enabled {
		rateStore := opts.RateStore
		if rateStore == nil {
			rateStore = middleware.NewStoreRateStore(deps.store)
		}
		r.Use(middleware.RateLimit(rateStore, cfg.Server.RequestLimit.MaxRequests, cfg.Server.RequestLimit.Window))
	}

	if err := registerHealthRoutes(r, cfg, db, opts.Health); err != nil {
		return nil, err
	}
	registerMetricsRoutes(r, cfg)

	static, err := web.Static()
	if err != nil {
		return nil, fmt.Errorf("static assets: %w", err)
	}
	r.StaticFS("/static", http.FS(static))

	withSession := []gin.HandlerFunc{middleware.Sessions(deps.sessions), middleware.CSRFToken()}

	if err := registerPublicRoutes(r, withSession, deps, site); err != nil {
		return nil, err
	}
	if err := registerAdminRoutes(r, withSession, deps, site); err != nil {
		return nil, err
	}

	r.NoRoute(middleware.NotFoundHandler)

	return r, nil
}

// routerServices are the collaborators shared by the route groups.
type routerServices struct {
	store        *cache.DatabaseStore
	sessions     *session.Manager
	registration *services.RegistrationService
	verification *services.VerificationService
	adminAuth    *services.AdminAuthService
	members      *services.MemberService
	events       *services.EventService
}

func buildServices(db *gorm.DB, cfg *app.Config, opts Options) (*routerServices, error) {
	loc, err := cfg.Site.Location()
	if err != nil {
		return nil, err
	}

	store := cache.NewDatabaseStore(db)
	sessions := session.NewManager(store, session.Options{
		CookieName:  cfg.Server.Session.CookieName,
		TTL:         cfg.Server.Session.TTL,
		ForceSecure: cfg.Server.Session.ForceSecure,
	})

	limiter, err := security.NewRateLimiter(db, cfg.Security.RateLimit.Limits())
	if err != nil {
		return nil, err
	}

	verifier := opts.Captcha
	if verifier == nil {
		verifier = captcha.NewHTTPVerifier(cfg.Security.Captcha.CaptchaSettings())
	}
	guard, err := services.NewRequestGuard(verifier, limiter, cfg.Security.Captcha.LoopbackBypass)
	if err != nil {
		return nil, err
	}

	mailer := opts.Mailer
	if mailer == nil {
		if mailer, err = cfg.Email.NewMailer(); err != nil {
			return nil, fmt.Errorf("mailer: %w", err)
		}
	}
	notifier, err := services.NewNotifier(mailer, services.NotifierOptions{
		BaseURL:    cfg.Server.BaseURL,
		SiteName:   cfg.Site.Name,
		ShortName:  cfg.Site.ShortName,
		AdminEmail: cfg.Site.AdminEmail,
		TokenTTL:   cfg.Security.Verification.TokenTTL,
		Location:   loc,
	})
	if err != nil {
		return nil, err
	}

	audit, err := services.NewAuditService(db)
	if err != nil {
		return nil, err
	}

	registration, err := services.NewRegistrationService(db, guard, notifier,
		services.WithVerificationEmails(cfg.Features.EmailVerification),
		services.WithRegistrationTokenBytes(cfg.Security.Verification.TokenBytes),
		services.WithRegistrationSiteName(cfg.Site.ShortName),
	)
	if err != nil {
		return nil, err
	}

	verifyOpts := []services.VerificationOption{services.WithVerificationTTL(cfg.Security.Verification.TokenTTL)}
	if cfg.Features.AdminNotifications {
		verifyOpts = append(verifyOpts, services.WithAdminNotifications(notifier))
	}
	verification, err := services.NewVerificationService(db, verifyOpts...)
	if err != nil {
		return nil, err
	}

	adminAuth, err := services.NewAdminAuthService(db, guard, audit)
	if err != nil {
		return nil, err
	}
	members, err := services.NewMemberService(db, audit)
	if err != nil {
		return nil, err
	}
	events, err := services.NewEventService(db, audit)
	if err != nil {
		return nil, err
	}

	return &routerServices{
		store:        store,
		sessions:     sessions,
		registration: registration,
		verification: verification,
		adminAuth:    adminAuth,
		members:      members,
		events:       events,
	}, nil
}

func registerHealthRoutes(r *gin.Engine, cfg *app.Config, db *gorm.DB, manager *monitoring.HealthManager) error {
	if !cfg.Monitoring.Health.Enabled {
		r.GET("/health", handlers.HealthDisabled)
		r.GET("/health/live", handlers.HealthDisabled)
		r.GET("/health/ready", handlers.HealthDisabled)
		return nil
	}

	if manager == nil {
		manager = monitoring.NewHealthManager()
		manager.RegisterReadiness(checks.Database(db, 2*time.Second))
	}
	health, err := handlers.NewHealthHandler(manager)
	if err != nil {
		return err
	}
	r.GET("/health", health.Summary)
	r.GET("/health/live", health.Live)
	r.GET("/health/ready", health.Ready)
	return nil
}

func metricsEndpoint(cfg *app.Config) string {
	if !cfg.Monitoring.Prometheus.Enabled {
		return ""
	}
	if endpoint := strings.TrimSpace(cfg.Monitoring.Prometheus.Endpoint); endpoint != "" {
		return endpoint
	}
	return defaultMetricsEndpoint
}

func registerMetricsRoutes(r *gin.Engine, cfg *app.Config) {
	if endpoint := metricsEndpoint(cfg); endpoint != "" {
		r.GET(endpoint, gin.WrapH(promhttp.Handler()))
	}
}

func registerPublicRoutes(r *gin.Engine, withSession []gin.HandlerFunc, deps *routerServices, site handlers.Site) error {
	joinHandler, err := handlers.NewJoinHandler(deps.registration, site)
	if err != nil {
		return err
	}
	verifyHandler, err := handlers.NewVerifyHandler(deps.verification, site)
	if err != nil {
		return err
	}
	feedHandler, err := handlers.NewEventFeedHandler(deps.events)
	if err != nil {
		return err
	}

	pages := r.Group("/", withSession...)
	{
		pages.GET("", func(c *gin.Context) { c.Redirect(http.StatusSeeOther, handlers.JoinPath) })
		pages.GET("join", joinHandler.Form)
		pages.GET("verify", verifyHandler.Verify)
	}

	api := r.Group("/api")
	api.GET("/events", feedHandler.List)

	forms := api.Group("", withSession...)
	{
		forms.GET("/csrf-token", handlers.CSRFToken)
		forms.POST("/join", joinHandler.Submit)
	}
	return nil
}

func registerAdminRoutes(r *gin.Engine, withSession []gin.HandlerFunc, deps *routerServices, site handlers.Site) error {
	authHandler, err := handlers.NewAdminAuthHandler(deps.adminAuth, deps.sessions, site)
	if err != nil {
		return err
	}
	memberHandler, err := handlers.NewMemberAdminHandler(deps.members, site)
	if err != nil {
		return err
	}
	eventHandler, err := handlers.NewEventAdminHandler(deps.events, site)
	if err != nil {
		return err
	}

	// Login verifies its CSRF token together with the CAPTCHA and the attempt limit.
	public := r.Group("/admin", withSession...)
	{
		public.GET("", func(c *gin.Context) { c.Redirect(http.StatusSeeOther, handlers.AdminHomePath) })
		public.GET("/login", authHandler.LoginForm)
		public.POST("/login", authHandler.Login)
	}

	admin := r.Group("/admin", withSession...)
	admin.Use(middleware.RequireAdmin(), middleware.RequireCSRF())
	{
		admin.POST("/logout", authHandler.Logout)
		admin.GET("/members", memberHandler.List)
		admin.POST("/members", memberHandler.Command)
		admin.GET("/events", eventHandler.List)
		admin.POST("/events", eventHandler.Command)
	}
	return nil
}
