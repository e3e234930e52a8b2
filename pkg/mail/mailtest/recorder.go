// Package mailtest provides an in-memory Mailer for tests.
package mailtest

import (
	"context"
	"sync"

	"github.com/charlesng35/csahub/pkg/mail"
)

// Recorder captures every message it is asked to send. Set Err to make Send fail.
type Recorder struct {
	mu       sync.Mutex
	messages []mail.Message
	Err      error
}

// Send records msg and returns r.Err.
func (r *Recorder) Send(_ context.Context, msg mail.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, msg)
	return r.Err
}

// Messages returns a copy of the recorded messages.
func (r *Recorder) Messages() []mail.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]mail.Message(nil), r.messages...)
}

// Last returns the most recent message, or false when nothing was sent.
func (r *Recorder) Last() (mail.Message, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.messages) == 0 {
		return mail.Message{}, false
	}
	return r.messages[len(r.messages)-1], true
}
