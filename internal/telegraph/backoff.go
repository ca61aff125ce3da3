package telegraph

import (
	"context"
	"time"
)

// Backoff is a capped exponential delay schedule. Platform adapters use it
// for socket reconnects and for rate-limited sends.
type Backoff struct {
	Base     time.Duration
	Max      time.Duration
	Attempts int // retries after the first call
}

// Delay returns the wait before retry n, counting from zero.
func (b Backoff) Delay(n int) time.Duration {
	d := b.Base
	for i := 0; i < n && d < b.Max; i++ {
		d *= 2
	}
	if b.Max > 0 && d > b.Max {
		d = b.Max
	}
	return d
}

// Retry calls fn until it succeeds or fails with an error classify rejects.
// classify may return a server-provided wait; zero falls back to Delay.
// The last error is returned once Attempts retries are spent.
func (b Backoff) Retry(ctx context.Context, fn func() error, classify func(error) (time.Duration, bool)) error {
	for n := 0; ; n++ {
		err := fn()
		if err == nil {
			return nil
		}
		hint, retry := classify(err)
		if !retry || n >= b.Attempts {
			return err
		}
		wait := hint
		if wait <= 0 {
			wait = b.Delay(n)
		}
		if !Sleep(ctx, wait) {
			return ctx.Err()
		}
	}
}

// Sleep waits for d and reports false if ctx ended first.
func Sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
