// Command csactl runs administrative tasks against the CSA hub database:
// account management, member exports, the weekly digest and housekeeping.
// It is meant to be invoked by operators and external schedulers.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/charlesng35/csahub/internal/app"
	"github.com/charlesng35/csahub/pkg/logger"
	"github.com/charlesng35/csahub/pkg/mail"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c := &cli{stdin: os.Stdin, stdout: os.Stdout, stderr: os.Stderr}
	if err := c.run(ctx, os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// cli carries the process streams and the collaborators tests replace.
type cli struct {
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer

	// loadConfig defaults to reading config.yaml and CSA_ environment variables.
	loadConfig func(path string) (*app.Config, error)
	// mailer defaults to the configured SMTP mailer.
	mailer mail.Mailer
}

type command struct {
	summary string
	run     func(ctx context.Context, env *cliEnv, args []string) error
}

var commands = map[string]command{
	"create-admin":   {summary: "Create an administrator account", run: runCreateAdmin},
	"set-password":   {summary: "Replace an administrator's password", run: runSetPassword},
	"export-members": {summary: "Write members as CSV", run: runExportMembers},
	"digest":         {summary: "Send (or print with --dry-run) the weekly digest", run: runDigest},
	"cleanup":        {summary: "Remove expired rate limits, sessions, stale registrations and old audit rows", run: runCleanup},
	"migrate":        {summary: "Apply pending schema migrations", run: runMigrate},
}

func (c *cli) run(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("csactl", flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	fs.Usage = func() { c.usage(fs) }

	var configPath, logLevel string
	fs.StringVar(&configPath, "config", "", "Path to configuration directory or file")
	fs.StringVar(&logLevel, "log-level", "warn", "Log level for diagnostic output")

	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		c.usage(fs)
		return errors.New("missing command")
	}

	name := fs.Arg(0)
	cmd, ok := commands[name]
	if !ok {
		c.usage(fs)
		return fmt.Errorf("unknown command %q", name)
	}

	load := c.loadConfig
	if load == nil {
		load = app.LoadConfigPath
	}
	cfg, err := load(configPath)
	if err != nil {
		return err
	}
	if _, err := app.ApplyRuntimeDefaults(cfg); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if err := logger.InitWithOptions(logger.Options{Level: logLevel, Format: "console"}); err != nil {
		return fmt.Errorf("configure logging: %w", err)
	}
	defer logger.Sync() // best effort

	env := &cliEnv{cfg: cfg, stdin: c.stdin, stdout: c.stdout, mailer: c.mailer}
	defer env.close()

	return cmd.run(ctx, env, fs.Args()[1:])
}

func (c *cli) usage(fs *flag.FlagSet) {
	fmt.Fprintln(c.stderr, "Usage: csactl [flags] <command> [command flags]")
	fmt.Fprintln(c.stderr)
	fmt.Fprintln(c.stderr, "Commands:")

	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(c.stderr, "  %-15s %s\n", name, commands[name].summary)
	}

	fmt.Fprintln(c.stderr)
	fmt.Fprintln(c.stderr, "Flags:")
	fs.PrintDefaults()
}
