// Package mail sends the site's transactional email: verification links,
// admin notices and the weekly digest.
package mail

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
)

// ErrSMTPDisabled is returned by the SMTP mailer when delivery is switched off.
var ErrSMTPDisabled = errors.New("smtp: delivery disabled")

// Message is one outbound email. Setting both bodies produces a
// multipart/alternative message.
type Message struct {
	From     string
	To       []string
	ReplyTo  string
	Subject  string
	TextBody string
	HTMLBody string
}

type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// MailerFunc adapts a function to Mailer.
type MailerFunc func(ctx context.Context, msg Message) error

func (f MailerFunc) Send(ctx context.Context, msg Message) error {
	return f(ctx, msg)
}

// envelope is a message whose addresses have been checked.
type envelope struct {
	from       string
	recipients []string
	msg        Message
}

// prepare checks msg and resolves the sender, falling back to defaultFrom.
func prepare(msg Message, defaultFrom string) (envelope, error) {
	recipients := uniqueAddresses(msg.To)
	if len(recipients) == 0 {
		return envelope{}, errors.New("smtp: at least one recipient is required")
	}
	for _, rcpt := range recipients {
		if _, err := mail.ParseAddress(rcpt); err != nil {
			return envelope{}, fmt.Errorf("smtp: invalid recipient address %q: %w", rcpt, err)
		}
	}

	from := strings.TrimSpace(msg.From)
	if from == "" {
		from = strings.TrimSpace(defaultFrom)
	}
	if from == "" {
		return envelope{}, errors.New("smtp: sender address is required")
	}
	if _, err := mail.ParseAddress(from); err != nil {
		return envelope{}, fmt.Errorf("smtp: invalid from address: %w", err)
	}

	if strings.TrimSpace(msg.TextBody) == "" && strings.TrimSpace(msg.HTMLBody) == "" {
		return envelope{}, errors.New("smtp: message body is required")
	}
	return envelope{from: from, recipients: recipients, msg: msg}, nil
}

// uniqueAddresses trims addresses and drops blanks and repeats, keeping the
// first occurrence order.
func uniqueAddresses(addresses []string) []string {
	seen := make(map[string]bool, len(addresses))
	out := make([]string, 0, len(addresses))
	for _, addr := range addresses {
		addr = strings.TrimSpace(addr)
		if addr == "" || seen[addr] {
			continue
		}
		seen[addr] = true
		out = append(out, addr)
	}
	return out
}
