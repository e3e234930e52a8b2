package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"gorm.io/gorm"

	"github.com/charlesng35/csahub/internal/app"
	"github.com/charlesng35/csahub/internal/app/maintenance"
	"github.com/charlesng35/csahub/internal/cache"
	"github.com/charlesng35/csahub/internal/database"
	"github.com/charlesng35/csahub/internal/security"
	"github.com/charlesng35/csahub/internal/services"
	"github.com/charlesng35/csahub/pkg/logger"
	"github.com/charlesng35/csahub/pkg/mail"
)

// cliEnv lazily opens the resources a command needs.
type cliEnv struct {
	cfg    *app.Config
	stdin  io.Reader
	stdout io.Writer
	mailer mail.Mailer

	db *gorm.DB
}

// database opens and migrates the configured database on first use.
func (e *cliEnv) database() (*gorm.DB, error) {
	if e.db != nil {
		return e.db, nil
	}
	db, err := database.Open(e.cfg.Database.ConnectionConfig())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := database.Migrate(db); err != nil {
		_ = database.Close(db)
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	e.db = db
	return db, nil
}

func (e *cliEnv) close() {
	if e.db != nil {
		_ = database.Close(e.db)
		e.db = nil
	}
}

func (e *cliEnv) adminAuth() (*services.AdminAuthService, error) {
	db, err := e.database()
	if err != nil {
		return nil, err
	}
	audit, err := services.NewAuditService(db)
	if err != nil {
		return nil, err
	}
	return services.NewAdminAuthService(db, nil, audit)
}

// readPassword returns value, or the first line of stdin when value is "-".
func (e *cliEnv) readPassword(value string) (string, error) {
	if value != "-" {
		return value, nil
	}
	line, err := bufio.NewReader(e.stdin).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func newCommandFlags(name string) *flag.FlagSet {
	fs := flag.NewFlagSet("csactl "+name, flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	return fs
}

func runCreateAdmin(ctx context.Context, env *cliEnv, args []string) error {
	fs := newCommandFlags("create-admin")
	email := fs.String("email", "", "Administrator email address")
	password := fs.String("password", "-", `Password, or "-" to read it from stdin`)
	role := fs.String("role", services.AdminRoleAdmin, "Administrator role")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*email) == "" {
		return errors.New("create-admin: --email is required")
	}

	pw, err := env.readPassword(*password)
	if err != nil {
		return err
	}
	svc, err := env.adminAuth()
	if err != nil {
		return err
	}
	admin, err := svc.CreateAdmin(ctx, *email, pw, *role)
	if err != nil {
		return fmt.Errorf("create-admin: %w", err)
	}
	fmt.Fprintf(env.stdout, "created admin %s (id %d)\n", admin.Email, admin.ID)
	return nil
}

func runSetPassword(ctx context.Context, env *cliEnv, args []string) error {
	fs := newCommandFlags("set-password")
	email := fs.String("email", "", "Administrator email address")
	password := fs.String("password", "-", `New password, or "-" to read it from stdin`)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*email) == "" {
		return errors.New("set-password: --email is required")
	}

	pw, err := env.readPassword(*password)
	if err != nil {
		return err
	}
	svc, err := env.adminAuth()
	if err != nil {
		return err
	}
	if err := svc.SetPassword(ctx, *email, pw); err != nil {
		return fmt.Errorf("set-password: %w", err)
	}
	fmt.Fprintf(env.stdout, "password updated for %s\n", security.NormalizeEmail(*email))
	return nil
}

func runExportMembers(ctx context.Context, env *cliEnv, args []string) error {
	fs := newCommandFlags("export-members")
	status := fs.String("status", "", "Only export PENDING, VERIFIED or BLOCKED members")
	includeBlocked := fs.Bool("include-blocked", false, "Include blocked members when no status is given")
	out := fs.String("out", "", "Write to this file instead of stdout")
	if err := fs.Parse(args); err != nil {
		return err
	}

	filter, err := services.ParseExportStatus(*status)
	if err != nil {
		return fmt.Errorf("export-members: %w", err)
	}

	db, err := env.database()
	if err != nil {
		return err
	}
	reports, err := services.NewReportService(db)
	if err != nil {
		return err
	}

	w := env.stdout
	if *out != "" {
		f, err := os.Create(*out)
		if err != nil {
			return fmt.Errorf("export-members: %w", err)
		}
		defer f.Close()
		w = f
	}

	n, err := reports.ExportMembers(ctx, w, services.ExportOptions{Status: filter, IncludeBlocked: *includeBlocked})
	if err != nil {
		return err
	}
	if *out != "" {
		fmt.Fprintf(env.stdout, "exported %d members to %s\n", n, *out)
	}
	return nil
}

func runDigest(ctx context.Context, env *cliEnv, args []string) error {
	fs := newCommandFlags("digest")
	dryRun := fs.Bool("dry-run", false, "Print the digest instead of mailing it")
	to := fs.String("to", "", "Comma-separated recipients (defaults to app.admin_email)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	db, err := env.database()
	if err != nil {
		return err
	}
	reports, err := services.NewReportService(db)
	if err != nil {
		return err
	}
	digest, err := reports.WeeklyDigest(ctx)
	if err != nil {
		return err
	}

	mailer := env.mailer
	if mailer == nil {
		if mailer, err = env.cfg.Email.NewMailer(); err != nil {
			return fmt.Errorf("digest: mailer: %w", err)
		}
	}
	loc, err := env.cfg.Site.Location()
	if err != nil {
		return err
	}
	notifier, err := services.NewNotifier(mailer, services.NotifierOptions{
		BaseURL:    env.cfg.Server.BaseURL,
		SiteName:   env.cfg.Site.Name,
		ShortName:  env.cfg.Site.ShortName,
		AdminEmail: env.cfg.Site.AdminEmail,
		TokenTTL:   env.cfg.Security.Verification.TokenTTL,
		Location:   loc,
	})
	if err != nil {
		return err
	}

	if *dryRun {
		body, err := notifier.RenderDigest(digest)
		if err != nil {
			return err
		}
		_, err = io.WriteString(env.stdout, body)
		return err
	}

	recipients := splitList(*to)
	if err := notifier.SendDigest(ctx, digest, recipients); err != nil {
		return fmt.Errorf("digest: %w", err)
	}
	fmt.Fprintln(env.stdout, "digest sent")
	return nil
}

func runCleanup(ctx context.Context, env *cliEnv, args []string) error {
	fs := newCommandFlags("cleanup")
	if err := fs.Parse(args); err != nil {
		return err
	}

	db, err := env.database()
	if err != nil {
		return err
	}
	audit, err := services.NewAuditService(db)
	if err != nil {
		return err
	}
	limiter, err := security.NewRateLimiter(db, env.cfg.Security.RateLimit.Limits())
	if err != nil {
		return err
	}

	cleaner := maintenance.NewCleaner(db, audit,
		maintenance.WithRateLimiter(limiter),
		maintenance.WithCache(cache.NewDatabaseStore(db)),
		maintenance.WithAuditRetentionDays(env.cfg.Maintenance.AuditRetentionDays),
		maintenance.WithPendingRetention(env.cfg.Maintenance.PendingRetention),
		maintenance.WithVerificationTTL(env.cfg.Security.Verification.TokenTTL),
	)
	stats, err := cleaner.RunOnce(ctx)
	maintenance.LogStats(logger.WithModule("csactl"), stats)
	fmt.Fprintf(env.stdout, "rate_limits=%d cache_entries=%d pending_members=%d audit_logs=%d\n",
		stats.RateLimits, stats.CacheEntries, stats.PendingMembers, stats.AuditLogs)
	return err
}

func runMigrate(_ context.Context, env *cliEnv, args []string) error {
	fs := newCommandFlags("migrate")
	if err := fs.Parse(args); err != nil {
		return err
	}
	db, err := env.database()
	if err != nil {
		return err
	}
	version, err := database.CurrentVersion(db)
	if err != nil {
		return err
	}
	fmt.Fprintf(env.stdout, "schema at version %d\n", version)
	return nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
