package lock

import (
	"context"
	"math/rand"
	"time"
)

const (
	defaultBaseDelay    = 5 * time.Millisecond
	defaultMaxDelay     = 200 * time.Millisecond
	defaultJitterFactor = 0.3
)

// backoff polls attempt with exponentially growing, jittered pauses until it
// succeeds, fails, or the wait window closes.
type backoff struct {
	baseDelay    time.Duration
	maxDelay     time.Duration
	jitterFactor float64
}

func defaultBackoff() backoff {
	return backoff{
		baseDelay:    defaultBaseDelay,
		maxDelay:     defaultMaxDelay,
		jitterFactor: defaultJitterFactor,
	}
}

func (b backoff) poll(ctx context.Context, wait time.Duration, attempt func(ctx context.Context) (bool, error)) error {
	deadline := time.Now().Add(wait)

	for n := 0; ; n++ {
		if n > 0 {
			delay := b.delay(n)
			remaining := time.Until(deadline)
			if remaining <= 0 {
				return ErrNotAcquired
			}
			delay = min(delay, remaining)

			timer := time.NewTimer(delay)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			}
		}

		if err := ctx.Err(); err != nil {
			return err
		}

		ok, err := attempt(ctx)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		if !time.Now().Before(deadline) {
			return ErrNotAcquired
		}
	}
}

// delay returns baseDelay * 2^(n-1) plus jitter, capped at maxDelay.
func (b backoff) delay(n int) time.Duration {
	shift := min(n-1, 16)
	d := min(b.baseDelay*time.Duration(1<<shift), b.maxDelay)
	jitter := rand.Float64() * float64(d) * b.jitterFactor //nolint:gosec // math/rand is enough for jitter
	return d + time.Duration(jitter)
}
