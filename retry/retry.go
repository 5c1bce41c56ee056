// Package retry implements bounded polling for writes that depend on a row
// another process may not have committed yet.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// ErrNotReady marks a dependent record that has not landed yet. Only
// errors wrapping it are retried.
var ErrNotReady = errors.New("dependent record not visible yet")

// NotReady wraps err so that it matches ErrNotReady.
func NotReady(err error) error {
	if err == nil {
		return ErrNotReady
	}
	return fmt.Errorf("%w: %w", ErrNotReady, err)
}

// Outcome is the result of a retried operation that did not fail outright.
type Outcome int

const (
	Succeeded Outcome = iota
	Exhausted
)

func (o Outcome) String() string {
	if o == Succeeded {
		return "succeeded"
	}
	return "exhausted"
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep is the real SleepFunc.
func Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Policy bounds a retry loop.
type Policy struct {
	MaxAttempts int
	Delay       time.Duration
	Sleep       SleepFunc
	Logger      logrus.FieldLogger
}

// Do runs op until it succeeds, fails with an error other than ErrNotReady,
// or MaxAttempts is reached. Exhaustion is logged and reported through the
// Outcome, not as an error.
func (p Policy) Do(ctx context.Context, name string, op func(context.Context) error) (Outcome, error) {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = Sleep
	}
	log := p.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}

	var last error
	for attempt := 1; attempt <= attempts; attempt++ {
		err := op(ctx)
		if err == nil {
			return Succeeded, nil
		}
		if !errors.Is(err, ErrNotReady) {
			return Exhausted, err
		}
		last = err
		if attempt == attempts {
			break
		}
		log.WithFields(logrus.Fields{"op": name, "attempt": attempt}).Debug("[Retry] dependent record not ready, waiting")
		if err := sleep(ctx, p.Delay); err != nil {
			return Exhausted, err
		}
	}

	log.WithFields(logrus.Fields{"op": name, "attempts": attempts}).WithError(last).Warn("[Retry] giving up")
	return Exhausted, nil
}

// WithRetry runs op with a default Policy.
func WithRetry(ctx context.Context, op func(context.Context) error, maxAttempts int, delay time.Duration) (Outcome, error) {
	return Policy{MaxAttempts: maxAttempts, Delay: delay}.Do(ctx, "operation", op)
}
