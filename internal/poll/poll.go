package poll

import (
	"context"
	"errors"
	"time"
)

// Default policy used when waiting for a pushed package to become visible
const (
	DefaultInterval = time.Second
	DefaultTimeout  = 20 * time.Minute
)

// ErrTimeout is returned by [Policy.Run] when the deadline passes before the
// condition is satisfied.
var ErrTimeout = errors.New("poll deadline exceeded")

// Policy is a fixed-interval retry with an overall deadline
type Policy struct {
	Interval time.Duration
	Timeout  time.Duration
}

// Default returns the 1 second / 20 minute policy
func Default() Policy {
	return Policy{Interval: DefaultInterval, Timeout: DefaultTimeout}
}

// Condition is checked on every attempt. Returning done=true stops polling;
// returning an error aborts it.
type Condition func(ctx context.Context) (done bool, err error)

// Run checks cond until it reports done, the timeout measured from start
// elapses, or ctx ends. The deadline is checked before every attempt, so a
// start time already past the timeout yields ErrTimeout without calling cond.
// Waits between attempts are timers, never busy loops.
func (p Policy) Run(ctx context.Context, start time.Time, cond Condition) error {
	p = p.withDefaults()

	for {
		if time.Since(start) >= p.Timeout {
			return ErrTimeout
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		done, err := cond(ctx)
		if err != nil {
			return err
		}
		if done {
			return nil
		}

		timer := time.NewTimer(p.Interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func (p Policy) withDefaults() Policy {
	if p.Interval <= 0 {
		p.Interval = DefaultInterval
	}
	if p.Timeout <= 0 {
		p.Timeout = DefaultTimeout
	}
	return p
}
