package client

import (
	"context"
	"time"

	"feedprobe/internal/poll"
)

// DefaultTimeout is the default timeout for single feed requests
const DefaultTimeout = 30 * time.Second

// WithTimeout creates a context with the default timeout
func WithTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return WithCustomTimeout(ctx, DefaultTimeout)
}

// WithCustomTimeout creates a context with a custom timeout
func WithCustomTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(ctx, timeout)
}

// WithPushTimeout bounds a whole conditional push: the existence check, the
// push itself and the full polling window of p
func WithPushTimeout(ctx context.Context, p poll.Policy) (context.Context, context.CancelFunc) {
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = poll.DefaultTimeout
	}
	return WithCustomTimeout(ctx, timeout+2*DefaultTimeout)
}
