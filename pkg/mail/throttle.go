package mail

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

type throttledMailer struct {
	next    Mailer
	limiter *rate.Limiter
}

// NewThrottledMailer bounds outbound delivery to perSecond messages with the
// given burst. A non-positive rate returns next unchanged.
func NewThrottledMailer(next Mailer, perSecond float64, burst int) Mailer {
	if next == nil || perSecond <= 0 {
		return next
	}
	if burst < 1 {
		burst = 1
	}
	return &throttledMailer{
		next:    next,
		limiter: rate.NewLimiter(rate.Limit(perSecond), burst),
	}
}

func (m *throttledMailer) Send(ctx context.Context, msg Message) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := m.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("mail: throttle: %w", err)
	}
	return m.next.Send(ctx, msg)
}
