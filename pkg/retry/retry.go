// Package retry wraps units of scan work with bounded exponential-backoff
// retry and paces consecutive units to stay under the community site's
// implicit rate limits.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	DefaultMaxAttempts  = 3
	DefaultBaseDelay    = 2 * time.Second
	DefaultMaxDelay     = time.Minute
	DefaultRequestDelay = time.Second

	// After this many consecutive failed units the pacer adds an extra
	// penalty proportional to the streak, so a failing run does not keep
	// hammering the host at full speed.
	failureStreakThreshold = 3
)

// Driver retries individual units of work and paces between them.
// A Driver is not safe for concurrent use; the scanner is strictly
// sequential by design.
type Driver struct {
	MaxAttempts  int
	BaseDelay    time.Duration
	MaxDelay     time.Duration
	RequestDelay time.Duration

	// Sleep is injectable for tests; nil means a context-aware sleep.
	Sleep func(ctx context.Context, d time.Duration) error

	failureStreak int
}

func New() *Driver {
	return &Driver{
		MaxAttempts:  DefaultMaxAttempts,
		BaseDelay:    DefaultBaseDelay,
		MaxDelay:     DefaultMaxDelay,
		RequestDelay: DefaultRequestDelay,
	}
}

func (d *Driver) sleep(ctx context.Context, dur time.Duration) error {
	if d.Sleep != nil {
		return d.Sleep(ctx, dur)
	}
	if dur <= 0 {
		return nil
	}
	t := time.NewTimer(dur)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (d *Driver) newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = d.BaseDelay
	b.Multiplier = 2
	// Monotonic, deterministic growth; jitter buys nothing against a
	// single sequential client.
	b.RandomizationFactor = 0
	b.MaxInterval = d.MaxDelay
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// Execute runs work, retrying with exponential backoff while isTransient
// approves of the failure, up to MaxAttempts invocations. Non-transient
// errors propagate immediately; cancellation is never retried and skips all
// backoff sleeps.
func (d *Driver) Execute(ctx context.Context, work func(context.Context) error, isTransient func(error) bool) error {
	b := d.newBackOff()

	var err error
	for attempt := 0; attempt < d.MaxAttempts; attempt++ {
		err = work(ctx)
		if err == nil {
			d.failureStreak = 0
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			d.failureStreak++
			return ctxErr
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			d.failureStreak++
			return err
		}
		if isTransient == nil || !isTransient(err) {
			d.failureStreak++
			return err
		}
		if attempt+1 >= d.MaxAttempts {
			break
		}
		if sleepErr := d.sleep(ctx, b.NextBackOff()); sleepErr != nil {
			return sleepErr
		}
	}

	d.failureStreak++
	return err
}

// Pace applies the fixed inter-request delay between consecutive units,
// plus the failure-streak penalty when the run has been failing across
// items. It is called between units, not on retries (Execute handles those).
func (d *Driver) Pace(ctx context.Context) error {
	delay := d.RequestDelay
	if d.failureStreak >= failureStreakThreshold {
		delay += time.Duration(d.failureStreak) * d.BaseDelay
	}
	return d.sleep(ctx, delay)
}

// FailureStreak exposes the consecutive cross-item failure count.
func (d *Driver) FailureStreak() int {
	return d.failureStreak
}
