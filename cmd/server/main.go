// Command csahub-server serves the public join form, the email verification
// endpoint, the events feed and the admin console.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/charlesng35/csahub/internal/app"
	"github.com/charlesng35/csahub/pkg/logger"
)

const (
	defaultShutdownTimeout = 15 * time.Second
	readHeaderTimeout      = 10 * time.Second
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err := run(ctx, os.Args[1:])
	switch {
	case err == nil, errors.Is(err, flag.ErrHelp):
	default:
		fmt.Fprintln(os.Stderr, "csahub-server:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("csahub-server", flag.ContinueOnError)
	configPath := fs.String("config", "", "config directory or config.yaml file")
	checkOnly := fs.Bool("check-config", false, "validate configuration and exit")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := app.LoadConfigPath(*configPath)
	if err != nil {
		return err
	}
	derived, err := app.ApplyRuntimeDefaults(cfg)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if *checkOnly {
		fmt.Fprintln(fs.Output(), "configuration ok")
		return nil
	}

	if err := app.ConfigureLogging(cfg.Server.LogLevel, cfg.Server.LogFormat); err != nil {
		return fmt.Errorf("configure logging: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	log := logger.WithModule("server")
	for key := range derived {
		log.Info("derived configuration value", zap.String("key", key))
	}

	stack, err := bootstrapRuntime(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer stack.Shutdown(context.Background(), log)

	ln, err := net.Listen("tcp", ":"+strconv.Itoa(cfg.Server.Port))
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	srv := &http.Server{Handler: stack.Router, ReadHeaderTimeout: readHeaderTimeout}

	timeout := cfg.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = defaultShutdownTimeout
	}
	log.Info("server listening", zap.Stringer("addr", ln.Addr()), zap.String("base_url", cfg.Server.BaseURL))
	return serve(ctx, srv, ln, timeout, log)
}

// serve runs srv on ln until ctx is cancelled, then drains in-flight requests
// for at most timeout.
func serve(ctx context.Context, srv *http.Server, ln net.Listener, timeout time.Duration, log *zap.Logger) error {
	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(ln) }()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
		log.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve: %w", err)
	}
	log.Info("server stopped")
	return nil
}
