package agent

import (
	"context"
	"errors"
	"regexp"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
)

var retryAfterPattern = regexp.MustCompile(`(?i)try again in (\d+) seconds?`)

// newBackOff returns the deterministic delay schedule between attempts:
// base, 2*base, 4*base... capped at max.
func newBackOff(base, max time.Duration) *backoff.ExponentialBackOff {
	b := &backoff.ExponentialBackOff{
		InitialInterval:     base,
		RandomizationFactor: 0,
		Multiplier:          2,
		MaxInterval:         max,
		MaxElapsedTime:      0,
		Stop:                backoff.Stop,
		Clock:               backoff.SystemClock,
	}
	b.Reset()
	return b
}

// retryDelay picks the wait before the next attempt. A throttled run that
// names its own retry delay is honoured up to the cap.
func retryDelay(b *backoff.ExponentialBackOff, lastErr error) time.Duration {
	d := b.NextBackOff()

	var runErr *AgentRunError
	if errors.As(lastErr, &runErr) {
		if m := retryAfterPattern.FindStringSubmatch(runErr.Reason); m != nil {
			if secs, err := strconv.Atoi(m[1]); err == nil {
				if hint := time.Duration(secs) * time.Second; hint > d {
					d = hint
				}
			}
		}
	}

	if d > b.MaxInterval {
		d = b.MaxInterval
	}
	return d
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
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
