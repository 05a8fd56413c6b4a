// Package poll provides a bounded retry-until-deadline loop shared by the
// readiness check and the DOM waits.
package poll

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

// ErrTimeout is matched by every *TimeoutError
var ErrTimeout = errors.New("poll: timed out")

// ProbeFunc reports whether the awaited condition holds. A non-nil error means
// "not yet" and is kept as the last observed error.
type ProbeFunc func(ctx context.Context) (bool, error)

// Options bounds a poll
type Options struct {
	Interval time.Duration
	Timeout  time.Duration
}

const (
	DefaultInterval = 200 * time.Millisecond
	DefaultTimeout  = 10 * time.Second
)

func (o Options) withDefaults() Options {
	if o.Interval <= 0 {
		o.Interval = DefaultInterval
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	return o
}

// TimeoutError is returned when the probe never succeeded before the deadline
type TimeoutError struct {
	Waited   time.Duration
	Attempts int
	Last     error
}

func (e *TimeoutError) Error() string {
	if e.Last != nil {
		return fmt.Sprintf("timed out after %v (%d attempts), last error: %v", e.Waited.Round(time.Millisecond), e.Attempts, e.Last)
	}
	return fmt.Sprintf("timed out after %v (%d attempts)", e.Waited.Round(time.Millisecond), e.Attempts)
}

func (e *TimeoutError) Is(target error) bool {
	return target == ErrTimeout
}

func (e *TimeoutError) Unwrap() error {
	return e.Last
}

// Until calls probe every opts.Interval until it reports true or opts.Timeout
// elapses. The first successful probe ends the poll. Cancelling ctx aborts with
// ctx.Err().
func Until(ctx context.Context, opts Options, probe ProbeFunc) error {
	opts = opts.withDefaults()

	start := time.Now()
	pollCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	limiter := rate.NewLimiter(rate.Every(opts.Interval), 1)

	attempts := 0
	var last error
	for {
		if err := limiter.Wait(pollCtx); err != nil {
			// Wait refuses up front when the next slot lies past the deadline;
			// the full timeout still has to elapse before reporting.
			<-pollCtx.Done()
			break
		}

		attempts++
		done, err := probe(pollCtx)
		if done {
			return nil
		}
		if err != nil {
			last = err
		}
		if pollCtx.Err() != nil {
			break
		}
	}

	if ctx.Err() != nil {
		return ctx.Err()
	}
	return &TimeoutError{Waited: time.Since(start), Attempts: attempts, Last: last}
}
