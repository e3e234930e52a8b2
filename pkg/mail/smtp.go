package mail

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/mail"
	"net/smtp"
	"strconv"
	"strings"
	"time"
)

const defaultSMTPTimeout = 10 * time.Second

// SMTPSettings configure the SMTP mailer.
type SMTPSettings struct {
	Enabled  bool
	Host     string
	Port     int
	Username string
	Password string
	From     string
	FromName string
	// UseTLS dials with implicit TLS (port 465). Otherwise STARTTLS is used
	// when the server offers it.
	UseTLS  bool
	Timeout time.Duration
}

// smtpSession is the part of *smtp.Client a delivery needs.
type smtpSession interface {
	Mail(from string) error
	Rcpt(to string) error
	Data() (io.WriteCloser, error)
	Quit() error
	Close() error
}

// connectFunc opens an authenticated session.
type connectFunc func(ctx context.Context, cfg SMTPSettings) (smtpSession, error)

type smtpMailer struct {
	cfg     SMTPSettings
	connect connectFunc
	now     func() time.Time
}

// NewSMTPMailer returns a Mailer delivering through cfg. A disabled config is
// valid; its Send always fails with ErrSMTPDisabled.
func NewSMTPMailer(cfg SMTPSettings) (Mailer, error) {
	if cfg.Enabled {
		if strings.TrimSpace(cfg.Host) == "" {
			return nil, errors.New("smtp: host is required when enabled")
		}
		if cfg.Port <= 0 {
			return nil, errors.New("smtp: port is required when enabled")
		}
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultSMTPTimeout
	}
	return &smtpMailer{cfg: cfg, connect: dialSMTP, now: time.Now}, nil
}

func (m *smtpMailer) Send(ctx context.Context, msg Message) error {
	if !m.cfg.Enabled {
		return ErrSMTPDisabled
	}
	if ctx == nil {
		ctx = context.Background()
	}

	env, err := prepare(msg, m.cfg.From)
	if err != nil {
		return err
	}
	payload, err := compose(m.displayFrom(env.from), env, m.now())
	if err != nil {
		return err
	}

	session, err := m.connect(ctx, m.cfg)
	if err != nil {
		return err
	}
	defer session.Close()

	return deliver(session, env, payload)
}

func deliver(session smtpSession, env envelope, payload []byte) error {
	if err := session.Mail(env.from); err != nil {
		return fmt.Errorf("smtp: mail from: %w", err)
	}
	for _, rcpt := range env.recipients {
		if err := session.Rcpt(rcpt); err != nil {
			return fmt.Errorf("smtp: rcpt to %s: %w", rcpt, err)
		}
	}

	w, err := session.Data()
	if err != nil {
		return fmt.Errorf("smtp: data: %w", err)
	}
	if _, err := w.Write(payload); err != nil {
		_ = w.Close()
		return fmt.Errorf("smtp: write body: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("smtp: end data: %w", err)
	}
	return session.Quit()
}

func (m *smtpMailer) displayFrom(from string) string {
	name := strings.TrimSpace(m.cfg.FromName)
	if name == "" {
		return from
	}
	return (&mail.Address{Name: name, Address: from}).String()
}

// dialSMTP connects, upgrades to TLS when possible and authenticates with
// PLAIN when a username is configured. The whole exchange is bounded by a
// deadline of three timeouts.
func dialSMTP(ctx context.Context, cfg SMTPSettings) (smtpSession, error) {
	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	dialer := &net.Dialer{Timeout: cfg.Timeout}
	tlsConfig := &tls.Config{ServerName: cfg.Host, MinVersion: tls.VersionTLS12}

	var (
		conn net.Conn
		err  error
	)
	if cfg.UseTLS {
		conn, err = (&tls.Dialer{NetDialer: dialer, Config: tlsConfig}).DialContext(ctx, "tcp", addr)
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return nil, fmt.Errorf("smtp: dial %s: %w", addr, err)
	}
	_ = conn.SetDeadline(time.Now().Add(3 * cfg.Timeout))

	client, err := smtp.NewClient(conn, cfg.Host)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("smtp: handshake: %w", err)
	}

	if !cfg.UseTLS {
		if ok, _ := client.Extension("STARTTLS"); ok {
			if err := client.StartTLS(tlsConfig); err != nil {
				_ = client.Close()
				return nil, fmt.Errorf("smtp: starttls: %w", err)
			}
		}
	}

	if strings.TrimSpace(cfg.Username) != "" {
		auth := smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
		if err := client.Auth(auth); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("smtp: auth: %w", err)
		}
	}
	return client, nil
}
