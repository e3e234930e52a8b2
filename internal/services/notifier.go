package services

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"html"
	htmltemplate "html/template"
	"strings"
	texttemplate "text/template"
	"time"

	"go.uber.org/zap"

	"github.com/charlesng35/csahub/internal/models"
	"github.com/charlesng35/csahub/pkg/logger"
	"github.com/charlesng35/csahub/pkg/mail"
	"github.com/charlesng35/csahub/pkg/metrics"
)

//go:embed templates/*.tmpl
var mailTemplates embed.FS

// VerificationMailer sends the confirmation link to a new registrant.
type VerificationMailer interface {
	SendVerification(ctx context.Context, member *models.Member, token string) error
}

// AdminNotifier tells the organisation a member verified their email.
type AdminNotifier interface {
	SendMemberVerified(ctx context.Context, member *models.Member) error
}

// NotifierOptions configure message content.
type NotifierOptions struct {
	BaseURL    string
	SiteName   string
	ShortName  string
	AdminEmail string
	TokenTTL   time.Duration
	Location   *time.Location
}

// Notifier renders and sends every outbound email.
type Notifier struct {
	mailer mail.Mailer
	opts   NotifierOptions
	html   *htmltemplate.Template
	text   *texttemplate.Template
	log    *zap.Logger
}

// NewNotifier parses the embedded templates.
func NewNotifier(mailer mail.Mailer, opts NotifierOptions) (*Notifier, error) {
	if mailer == nil {
		return nil, errors.New("notifier: mailer is required")
	}
	opts.BaseURL = strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if opts.SiteName == "" {
		opts.SiteName = "CSA"
	}
	if opts.ShortName == "" {
		opts.ShortName = opts.SiteName
	}
	if opts.TokenTTL <= 0 {
		opts.TokenTTL = defaultVerificationTTL
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}

	n := &Notifier{mailer: mailer, opts: opts, log: logger.WithModule("notifier")}
	funcs := map[string]any{
		"plain":     html.UnescapeString,
		"localtime": n.formatTime,
	}

	htmlTmpl, err := htmltemplate.New("html").Funcs(funcs).ParseFS(mailTemplates, "templates/*.html.tmpl")
	if err != nil {
		return nil, fmt.Errorf("notifier: parse html templates: %w", err)
	}
	textTmpl, err := texttemplate.New("text").Funcs(funcs).ParseFS(mailTemplates, "templates/*.txt.tmpl")
	if err != nil {
		return nil, fmt.Errorf("notifier: parse text templates: %w", err)
	}
	n.html = htmlTmpl
	n.text = textTmpl
	return n, nil
}

// VerificationLink builds the public confirmation URL for token.
func (n *Notifier) VerificationLink(token string) string {
	return n.opts.BaseURL + "/verify?token=" + token
}

// SendVerification mails the confirmation link to member.
func (n *Notifier) SendVerification(ctx context.Context, member *models.Member, token string) error {
	if member == nil {
		return errors.New("notifier: member is required")
	}
	data := map[string]any{
		"SiteName":  n.opts.SiteName,
		"Member":    member,
		"Link":      n.VerificationLink(token),
		"ExpiresIn": humanDuration(n.opts.TokenTTL),
	}
	textBody, err := n.renderText("verification.txt.tmpl", data)
	if err != nil {
		return err
	}
	htmlBody, err := n.renderHTML("verification.html.tmpl", data)
	if err != nil {
		return err
	}
	return n.send(ctx, "verification", mail.Message{
		To:       []string{member.Email},
		Subject:  fmt.Sprintf("Confirm your %s membership", n.opts.ShortName),
		TextBody: textBody,
		HTMLBody: htmlBody,
	})
}

// SendMemberVerified notifies the admin inbox. It is a no-op when no admin
// address is configured.
func (n *Notifier) SendMemberVerified(ctx context.Context, member *models.Member) error {
	if member == nil {
		return errors.New("notifier: member is required")
	}
	if strings.TrimSpace(n.opts.AdminEmail) == "" {
		return nil
	}
	verifiedAt := ""
	if member.VerifiedAt != nil {
		verifiedAt = n.formatTime(*member.VerifiedAt)
	}
	body, err := n.renderText("member_verified.txt.tmpl", map[string]any{
		"Member":     member,
		"VerifiedAt": verifiedAt,
		"AdminURL":   n.opts.BaseURL + "/admin/members?status=verified",
	})
	if err != nil {
		return err
	}
	return n.send(ctx, "member_verified", mail.Message{
		To:       []string{n.opts.AdminEmail},
		ReplyTo:  member.Email,
		Subject:  fmt.Sprintf("New %s member verified: %s", n.opts.ShortName, html.UnescapeString(member.FullName())),
		TextBody: body,
	})
}

// SendDigest mails the weekly digest to recipients, defaulting to the admin inbox.
func (n *Notifier) SendDigest(ctx context.Context, digest *Digest, recipients []string) error {
	if digest == nil {
		return errors.New("notifier: digest is required")
	}
	if len(recipients) == 0 && n.opts.AdminEmail != "" {
		recipients = []string{n.opts.AdminEmail}
	}
	if len(recipients) == 0 {
		return errors.New("notifier: no digest recipients")
	}
	body, err := n.RenderDigest(digest)
	if err != nil {
		return err
	}
	return n.send(ctx, "digest", mail.Message{
		To:       recipients,
		Subject:  fmt.Sprintf("%s weekly digest", n.opts.ShortName),
		TextBody: body,
	})
}

// RenderDigest returns the plain-text digest body.
func (n *Notifier) RenderDigest(digest *Digest) (string, error) {
	return n.renderText("digest.txt.tmpl", map[string]any{
		"SiteName": n.opts.SiteName,
		"Digest":   digest,
		"Since":    n.formatTime(digest.Since),
		"Until":    n.formatTime(digest.GeneratedAt),
	})
}

func (n *Notifier) send(ctx context.Context, kind string, msg mail.Message) error {
	if err := n.mailer.Send(ensureContext(ctx), msg); err != nil {
		metrics.MailDeliveries.WithLabelValues(kind, "failed").Inc()
		return fmt.Errorf("notifier: send %s: %w", kind, err)
	}
	metrics.MailDeliveries.WithLabelValues(kind, "sent").Inc()
	n.log.Debug("mail sent", zap.String("kind", kind), logger.Emails("to", msg.To...))
	return nil
}

func (n *Notifier) renderText(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := n.text.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("notifier: render %s: %w", name, err)
	}
	return buf.String(), nil
}

func (n *Notifier) renderHTML(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := n.html.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("notifier: render %s: %w", name, err)
	}
	return buf.String(), nil
}

func (n *Notifier) formatTime(t time.Time) string {
	return t.In(n.opts.Location).Format("Mon Jan 2, 2006 3:04 PM MST")
}

func humanDuration(d time.Duration) string {
	switch {
	case d >= 48*time.Hour && d%(24*time.Hour) == 0:
		return fmt.Sprintf("%d days", int(d/(24*time.Hour)))
	case d >= time.Hour && d%time.Hour == 0:
		hours := int(d / time.Hour)
		if hours == 1 {
			return "1 hour"
		}
		return fmt.Sprintf("%d hours", hours)
	default:
		return d.String()
	}
}
