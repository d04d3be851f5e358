package custody

import (
	"context"
	"math/rand/v2"
	"time"
)

// RetryPolicy bounds how often a conflicting transaction is attempted.
type RetryPolicy struct {
	Attempts int
	Base     time.Duration
	Max      time.Duration
}

// DefaultRetryPolicy returns 5 attempts with backoff from 20ms to 500ms.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Attempts: 5, Base: 20 * time.Millisecond, Max: 500 * time.Millisecond}
}

// backoff returns the wait before attempt n+1: exponential, capped, with up
// to half of it replaced by jitter.
func (p RetryPolicy) backoff(n int) time.Duration {
	d := p.Base
	for i := 0; i < n && d < p.Max; i++ {
		d *= 2
	}
	if d > p.Max {
		d = p.Max
	}
	if d <= 0 {
		return 0
	}
	half := d / 2
	return half + rand.N(half+1)
}

// inTx runs fn in a store transaction, retrying on conflict. Any other error,
// or a cancelled context, ends the loop.
func (s *Service) inTx(ctx context.Context, op string, fn func(ctx context.Context, tx Tx) error) error {
	attempts := max(s.retry.Attempts, 1)
	var err error
	for n := 0; n < attempts; n++ {
		err = s.store.RunInTx(ctx, fn)
		if err == nil || !IsConflict(err) {
			return err
		}
		if n == attempts-1 {
			break
		}
		wait := s.retry.backoff(n)
		s.log.Warn("transaction conflict, retrying", "op", op, "attempt", n+1, "wait", wait)

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
	return err
}
