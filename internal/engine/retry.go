package engine

import (
	"context"
	"time"
)

// Policy controls how a flow's request loop retries. The production
// protocol retries indefinitely at a fixed interval with no backoff and
// no jitter; tests inject zero-delay bounded variants.
//
// MaxAttempts == 0 means retry forever. When a bounded policy runs out
// of attempts the flow is left in flight, exactly as a process
// interruption would leave it, so the resumption coordinator can decide
// what to do with it.
type Policy struct {
	Interval    time.Duration
	MaxAttempts int
}

// DefaultPolicy returns the production retry policy.
func DefaultPolicy() Policy {
	return Policy{Interval: 2 * time.Second}
}

// wait blocks for the policy interval or until ctx is done.
func (p Policy) wait(ctx context.Context) error {
	if p.Interval <= 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			return nil
		}
	}
	t := time.NewTimer(p.Interval)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// exhausted reports whether the given failure count has reached the
// policy limit.
func (p Policy) exhausted(attempts int) bool {
	return p.MaxAttempts > 0 && attempts >= p.MaxAttempts
}

// sleepCtx blocks for d or until ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
