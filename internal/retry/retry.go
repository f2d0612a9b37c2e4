// Package retry repeats calls against a database that may not be reachable yet.
package retry

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
)

var ErrTooManyAttempts = errors.New("too many retry attempts")

// Callable receives the 1-based attempt number
type Callable func(attempt int) error

// Policy makes up to MaxAttempts calls. The pause after attempt n is n*Step,
// capped at MaxDelay when MaxDelay is set.
type Policy struct {
	MaxAttempts int
	Step        time.Duration
	MaxDelay    time.Duration
}

// ExhaustedError is returned when every attempt failed with a retryable error
type ExhaustedError struct {
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("%s (%d): %s", ErrTooManyAttempts, e.Attempts, e.Last)
}

func (e *ExhaustedError) Is(target error) bool {
	return target == ErrTooManyAttempts
}

func (e *ExhaustedError) Unwrap() error {
	return e.Last
}

type retryable struct {
	error
}

func (r retryable) Unwrap() error {
	return r.error
}

// Retryable marks err as recoverable. Any other error returned from
// a Callable stops the loop immediately.
func Retryable(err error) error {
	if err == nil {
		return nil
	}
	return retryable{error: err}
}

func IsRetryable(err error) bool {
	var r retryable
	return errors.As(err, &r)
}

// Delay is the pause taken after the given attempt failed
func (p Policy) Delay(attempt int) time.Duration {
	d := time.Duration(attempt) * p.Step
	if p.MaxDelay > 0 && d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

func (p Policy) Do(ctx context.Context, cb Callable) error {
	maxAttempts := p.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	for attempt := 1; ; attempt++ {
		err := cb(attempt)
		if err == nil {
			return nil
		}

		var r retryable
		if !errors.As(err, &r) {
			return err
		}

		if attempt >= maxAttempts {
			return &ExhaustedError{Attempts: attempt, Last: r.error}
		}

		timer := time.NewTimer(p.Delay(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return errors.Wrapf(ctx.Err(), "gave up after attempt %d: %s", attempt, r.error)
		case <-timer.C:
		}
	}
}
