package telegraph

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestBackoff_Delay(t *testing.T) {
	b := Backoff{Base: time.Second, Max: 10 * time.Second}
	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second, 10 * time.Second, 10 * time.Second}
	for n, w := range want {
		if got := b.Delay(n); got != w {
			t.Errorf("Delay(%d) = %v, want %v", n, got, w)
		}
	}
}

var errRetry = errors.New("retry me")

func retryable(err error) (time.Duration, bool) {
	return 0, errors.Is(err, errRetry)
}

func TestBackoff_Retry(t *testing.T) {
	b := Backoff{Base: time.Millisecond, Max: 2 * time.Millisecond, Attempts: 3}

	calls := 0
	err := b.Retry(context.Background(), func() error {
		calls++
		if calls < 3 {
			return errRetry
		}
		return nil
	}, retryable)
	if err != nil || calls != 3 {
		t.Errorf("err = %v, calls = %d", err, calls)
	}

	calls = 0
	err = b.Retry(context.Background(), func() error {
		calls++
		return errRetry
	}, retryable)
	if !errors.Is(err, errRetry) || calls != 4 {
		t.Errorf("exhausted: err = %v, calls = %d, want 4", err, calls)
	}

	calls = 0
	err = b.Retry(context.Background(), func() error {
		calls++
		return errors.New("fatal")
	}, retryable)
	if err == nil || calls != 1 {
		t.Errorf("fatal error retried: calls = %d", calls)
	}
}

func TestBackoff_RetryHonorsHintAndContext(t *testing.T) {
	b := Backoff{Base: time.Millisecond, Attempts: 3}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := b.Retry(ctx, func() error { return errRetry }, func(error) (time.Duration, bool) {
		return time.Hour, true
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestSleep(t *testing.T) {
	if !Sleep(context.Background(), time.Millisecond) {
		t.Error("Sleep returned false without cancellation")
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if Sleep(ctx, time.Hour) {
		t.Error("Sleep returned true after cancellation")
	}
}
