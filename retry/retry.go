// Package retry provides the named retry strategies used while establishing
// a connection. Waiting is done through a [clock.Clock] so strategies can be
// exercised with simulated time.
package retry

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lone-faerie/sensorlink/internal/clock"
)

// ErrGaveUp is returned by [Do] when the policy stops retrying.
var ErrGaveUp = errors.New("gave up")

// Policy decides how long to wait after a failed attempt.
type Policy interface {
	// Delay returns the wait before the next attempt given the number of
	// failed attempts so far, and false if no further attempt should be made.
	Delay(failures int) (time.Duration, bool)
}

// Forever retries indefinitely with a fixed delay. It is the default policy
// for every connection step.
type Forever time.Duration

func (f Forever) Delay(int) (time.Duration, bool) {
	return time.Duration(f), true
}

func (f Forever) String() string {
	return "forever every " + time.Duration(f).String()
}

// Limited retries with a fixed delay until Attempts attempts have failed.
type Limited struct {
	Interval time.Duration
	Attempts int
}

func (l Limited) Delay(failures int) (time.Duration, bool) {
	if failures >= l.Attempts {
		return 0, false
	}
	return l.Interval, true
}

func (l Limited) String() string {
	return fmt.Sprintf("%d attempts every %s", l.Attempts, l.Interval)
}

// Exponential doubles the delay after each failure, starting at Initial and
// capped at Max. Attempts <= 0 means no limit.
type Exponential struct {
	Initial  time.Duration
	Max      time.Duration
	Attempts int
}

func (e Exponential) Delay(failures int) (time.Duration, bool) {
	if e.Attempts > 0 && failures >= e.Attempts {
		return 0, false
	}
	d := e.Initial
	for i := 1; i < failures; i++ {
		d *= 2
		if e.Max > 0 && d >= e.Max {
			return e.Max, true
		}
	}
	if e.Max > 0 && d > e.Max {
		d = e.Max
	}
	return d, true
}

func (e Exponential) String() string {
	return fmt.Sprintf("exponential from %s to %s", e.Initial, e.Max)
}

// New returns the policy named by backoff ("constant" or "exponential")
// retrying every interval. If attempts > 0 the policy gives up after that
// many failed attempts.
func New(backoff string, interval time.Duration, attempts int) (Policy, error) {
	switch strings.ToLower(backoff) {
	case "", "constant", "fixed":
		if attempts > 0 {
			return Limited{Interval: interval, Attempts: attempts}, nil
		}
		return Forever(interval), nil
	case "exponential":
		return Exponential{Initial: interval, Max: 64 * interval, Attempts: attempts}, nil
	}
	return nil, fmt.Errorf("unknown backoff %q", backoff)
}

// Notify is called after each failed attempt with the number of failures so
// far, the error and the delay before the next attempt.
type Notify func(failures int, err error, next time.Duration)

// Do calls fn until it succeeds, the policy gives up or ctx is done.
// Between attempts Do sleeps on clk for the delay given by p.
func Do(ctx context.Context, clk clock.Clock, p Policy, fn func(context.Context) error, notify Notify) error {
	for failures := 0; ; {
		err := fn(ctx)
		if err == nil {
			return nil
		}

		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		failures++

		d, ok := p.Delay(failures)
		if !ok {
			return fmt.Errorf("%w after %d attempts: %w", ErrGaveUp, failures, err)
		}

		if notify != nil {
			notify(failures, err, d)
		}

		if err := clk.Sleep(ctx, d); err != nil {
			return err
		}
	}
}
