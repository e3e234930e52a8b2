package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/csahub/internal/api"
	"github.com/charlesng35/csahub/internal/app"
	"github.com/charlesng35/csahub/internal/app/maintenance"
	"github.com/charlesng35/csahub/internal/cache"
	"github.com/charlesng35/csahub/internal/database"
	"github.com/charlesng35/csahub/internal/middleware"
	"github.com/charlesng35/csahub/internal/monitoring"
	"github.com/charlesng35/csahub/internal/monitoring/checks"
	"github.com/charlesng35/csahub/internal/security"
	"github.com/charlesng35/csahub/internal/services"
	"github.com/charlesng35/csahub/pkg/logger"
	"github.com/charlesng35/csahub/pkg/mail"
)

const databaseProbeTimeout = 2 * time.Second

// runtimeStack bundles long-lived services used by the HTTP server.
type runtimeStack struct {
	DB      *gorm.DB
	Mailer  mail.Mailer
	Tracker *monitoring.JobTracker
	Health  *monitoring.HealthManager
	Cleaner *maintenance.Cleaner
	Router  *gin.Engine
}

// runtimeOptions replaces collaborators that tests cannot reach over the network.
type runtimeOptions struct {
	mailer mail.Mailer
	router api.Options
}

// bootstrapRuntime opens the database, provisions the first admin, schedules
// housekeeping and builds the HTTP router.
func bootstrapRuntime(ctx context.Context, cfg *app.Config, log *zap.Logger) (*runtimeStack, error) {
	return bootstrapRuntimeWith(ctx, cfg, log, runtimeOptions{})
}

func bootstrapRuntimeWith(ctx context.Context, cfg *app.Config, log *zap.Logger, opts runtimeOptions) (*runtimeStack, error) {
	stack := &runtimeStack{}
	var err error
	success := false

	defer func() {
		if !success {
			stack.Shutdown(context.Background(), log)
		}
	}()

	// enable gin debug mode
	if debug, _ := os.LookupEnv("GIN_DEBUG"); debug != "true" {
		gin.SetMode(gin.ReleaseMode)
	}

	stack.DB, err = initialiseDatabase(cfg)
	if err != nil {
		return nil, err
	}

	auditSvc, err := services.NewAuditService(stack.DB)
	if err != nil {
		return nil, fmt.Errorf("initialise audit service: %w", err)
	}

	if err := ensureBootstrapAdmin(ctx, stack.DB, auditSvc, cfg.Admin.Bootstrap, log); err != nil {
		return nil, err
	}

	stack.Mailer = opts.mailer
	if stack.Mailer == nil {
		if stack.Mailer, err = cfg.Email.NewMailer(); err != nil {
			return nil, fmt.Errorf("initialise mailer: %w", err)
		}
	}
	if !cfg.Email.SMTP.Enabled {
		log.Warn("smtp disabled; verification emails will not be delivered")
	}

	limiter, err := security.NewRateLimiter(stack.DB, cfg.Security.RateLimit.Limits())
	if err != nil {
		return nil, fmt.Errorf("initialise rate limiter: %w", err)
	}
	store := cache.NewDatabaseStore(stack.DB)

	stack.Tracker = monitoring.NewJobTracker()
	stack.Cleaner = maintenance.NewCleaner(stack.DB, auditSvc,
		maintenance.WithRateLimiter(limiter),
		maintenance.WithCache(store),
		maintenance.WithTracker(stack.Tracker),
		maintenance.WithAuditRetentionDays(cfg.Maintenance.AuditRetentionDays),
		maintenance.WithPendingRetention(cfg.Maintenance.PendingRetention),
		maintenance.WithVerificationTTL(cfg.Security.Verification.TokenTTL),
	)
	if err := stack.Cleaner.Start(cfg.Maintenance.Schedule); err != nil {
		return nil, fmt.Errorf("start maintenance jobs: %w", err)
	}
	if cfg.Maintenance.Schedule != "" {
		log.Info("maintenance scheduled", zap.String("schedule", cfg.Maintenance.Schedule))
	}

	stack.Health = monitoring.NewHealthManager()
	stack.Health.RegisterReadiness(checks.Database(stack.DB, databaseProbeTimeout))
	stack.Health.RegisterReadiness(checks.Maintenance(stack.Tracker, 0))

	routerOpts := opts.router
	routerOpts.Mailer = stack.Mailer
	routerOpts.Health = stack.Health
	if routerOpts.RateStore == nil {
		routerOpts.RateStore = middleware.NewStoreRateStore(store)
	}

	stack.Router, err = api.NewRouter(stack.DB, cfg, routerOpts)
	if err != nil {
		return nil, fmt.Errorf("build api router: %w", err)
	}

	success = true
	return stack, nil
}

// Shutdown stops background jobs, runs a final cleanup pass and releases resources.
func (s *runtimeStack) Shutdown(ctx context.Context, log *zap.Logger) {
	if s == nil {
		return
	}

	if s.Cleaner != nil {
		stopCtx := s.Cleaner.Stop()
		<-stopCtx.Done()
		stats, err := s.Cleaner.RunOnce(ctx)
		if err != nil {
			log.Warn("maintenance shutdown cleanup failed", zap.Error(err))
		} else {
			maintenance.LogStats(log, stats)
		}
		s.Cleaner = nil
	}

	if s.DB != nil {
		closeDatabase(s.DB, log)
		s.DB = nil
	}
}

func ensureBootstrapAdmin(ctx context.Context, db *gorm.DB, audit *services.AuditService, cfg app.AdminBootstrapConfig, log *zap.Logger) error {
	if cfg.Email == "" || cfg.Password == "" {
		return nil
	}
	authSvc, err := services.NewAdminAuthService(db, nil, audit)
	if err != nil {
		return fmt.Errorf("initialise admin auth service: %w", err)
	}
	created, err := authSvc.EnsureBootstrapAdmin(ctx, cfg.Email, cfg.Password)
	if err != nil {
		return fmt.Errorf("bootstrap admin: %w", err)
	}
	if !created {
		log.Debug("bootstrap admin skipped; admins already exist")
	}
	return nil
}

func initialiseDatabase(cfg *app.Config) (*gorm.DB, error) {
	dbCfg := cfg.Database.ConnectionConfig()
	db, err := database.Open(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := database.Migrate(db); err != nil {
		_ = database.Close(db)
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	logger.WithModule("database").Info("database connected", zap.String("driver", dbCfg.Driver))
	return db, nil
}

func closeDatabase(db *gorm.DB, log *zap.Logger) {
	if err := database.Close(db); err != nil {
		log.Warn("failed to close database", zap.Error(err))
	}
}
