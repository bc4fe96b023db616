package retry

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// PermanentError wraps a non-retryable error.
type PermanentError struct {
	err error
}

func (e PermanentError) Error() string {
	if e.err == nil {
		return "permanent error"
	}
	return e.err.Error()
}

func (e PermanentError) Unwrap() error { return e.err }

// Permanent marks an error as non-retryable.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	if IsPermanent(err) {
		return err
	}
	return PermanentError{err: err}
}

// IsPermanent reports whether err is marked as non-retryable.
func IsPermanent(err error) bool {
	var pe PermanentError
	if errors.As(err, &pe) {
		return true
	}

	var bpe *backoff.PermanentError
	return errors.As(err, &bpe)
}

// Policy is a fixed-delay retry budget.
type Policy struct {
	Attempts int           // total attempts, including the first; < 1 means 1
	Delay    time.Duration // pause between attempts, never after the last one
}

// NotifyFunc is called after a failed attempt that will be retried.
// attempt is 1-based; next is the pause before the following attempt.
type NotifyFunc func(attempt int, err error, next time.Duration)

// Result describes a finished Constant run.
type Result struct {
	Attempts int
}

// Constant runs fn until it succeeds, returns a permanent error, the
// attempt budget is spent, or ctx is done. The last error is returned
// unwrapped from any PermanentError marker.
func Constant(ctx context.Context, p Policy, fn func(ctx context.Context) error, notify NotifyFunc) (Result, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}
	delay := p.Delay
	if delay < 0 {
		delay = 0
	}

	var res Result
	op := func() (struct{}, error) {
		res.Attempts++
		err := fn(ctx)
		if err != nil && IsPermanent(err) {
			var bpe *backoff.PermanentError
			if !errors.As(err, &bpe) {
				err = backoff.Permanent(err)
			}
		}
		return struct{}{}, err
	}

	opts := []backoff.RetryOption{
		backoff.WithBackOff(backoff.NewConstantBackOff(delay)),
		backoff.WithMaxTries(uint(attempts)),
		backoff.WithMaxElapsedTime(0),
	}
	if notify != nil {
		opts = append(opts, backoff.WithNotify(func(err error, next time.Duration) {
			notify(res.Attempts, err, next)
		}))
	}

	_, err := backoff.Retry(ctx, op, opts...)
	if err == nil {
		return res, nil
	}

	var pe PermanentError
	if errors.As(err, &pe) && pe.err != nil {
		return res, pe.err
	}
	var bpe *backoff.PermanentError
	if errors.As(err, &bpe) && bpe.Err != nil {
		return res, bpe.Err
	}
	return res, err
}
