package app

import (
	"strings"

	"github.com/charlesng35/csahub/pkg/mail"
)

// NewMailer builds the outbound mailer: SMTP delivery behind the configured
// send-rate throttle. With SMTP disabled every send fails with
// mail.ErrSMTPDisabled, which callers treat as "email not sent".
func (c EmailConfig) NewMailer() (mail.Mailer, error) {
	smtp := c.SMTP
	from := strings.TrimSpace(smtp.From)
	if from == "" && strings.Contains(smtp.Username, "@") {
		from = strings.TrimSpace(smtp.Username)
	}

	mailer, err := mail.NewSMTPMailer(mail.SMTPSettings{
		Enabled:  smtp.Enabled,
		Host:     strings.TrimSpace(smtp.Host),
		Port:     smtp.Port,
		Username: strings.TrimSpace(smtp.Username),
		Password: smtp.Password,
		From:     from,
		FromName: strings.TrimSpace(smtp.FromName),
		UseTLS:   smtp.UseTLS,
		Timeout:  smtp.Timeout,
	})
	if err != nil {
		return nil, err
	}
	return mail.NewThrottledMailer(mailer, c.SendRate, c.SendBurst), nil
}
