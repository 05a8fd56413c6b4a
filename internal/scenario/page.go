// Package scenario drives the two user flows of the library application
// (adding a book and borrowing one) through a Page and checks what the
// browser renders.
package scenario

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/shelfcheck/internal/poll"
)

// Page is the browser surface the flows need. Selectors are CSS selectors.
// *browser.Session is the real implementation.
type Page interface {
	Navigate(ctx context.Context, url string) error
	CurrentURL(ctx context.Context) (string, error)
	WaitPresent(ctx context.Context, selector string) error
	WaitVisible(ctx context.Context, selector string) error
	Count(ctx context.Context, selector string) (int, error)
	Texts(ctx context.Context, selector string) ([]string, error)
	Text(ctx context.Context, selector string) (string, error)
	Fill(ctx context.Context, selector, value string) error
	Click(ctx context.Context, selector string) error
	IsEnabled(ctx context.Context, selector string) (bool, error)
	VisibleCount(ctx context.Context, selector string) (int, error)
	HTML(ctx context.Context) (string, error)
}

// ErrUnexpectedURL means the browser ended up on a different page than the flow expects
var ErrUnexpectedURL = errors.New("unexpected page")

// DefaultWaitTimeout bounds every wait of a flow
const DefaultWaitTimeout = 5 * time.Second

// Options tune a flow run
type Options struct {
	WaitTimeout  time.Duration
	PollInterval time.Duration
}

func (o Options) withDefaults() Options {
	if o.WaitTimeout <= 0 {
		o.WaitTimeout = DefaultWaitTimeout
	}
	if o.PollInterval <= 0 {
		o.PollInterval = 100 * time.Millisecond
	}
	return o
}

// StepError reports which step of a flow failed
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %q failed: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

func stepErr(step string, err error) error {
	return &StepError{Step: step, Err: err}
}

// waitFor runs a single page call bounded by opts.WaitTimeout. Running out of
// time is reported as a *poll.TimeoutError.
func waitFor(ctx context.Context, opts Options, wait func(context.Context) error) error {
	waitCtx, cancel := context.WithTimeout(ctx, opts.WaitTimeout)
	defer cancel()

	if err := wait(waitCtx); err != nil {
		if waitCtx.Err() != nil && ctx.Err() == nil {
			return &poll.TimeoutError{Waited: opts.WaitTimeout, Attempts: 1, Last: err}
		}
		return err
	}
	return nil
}

// boundedPage holds every call of the wrapped Page to the wait timeout, so a
// missing element fails the step instead of blocking until ctx ends.
type boundedPage struct {
	page Page
	opts Options
}

func bound(page Page, opts Options) Page {
	if b, ok := page.(*boundedPage); ok {
		return b
	}
	return &boundedPage{page: page, opts: opts}
}

// within runs call under the wait timeout and returns its value
func within[T any](ctx context.Context, opts Options, call func(context.Context) (T, error)) (T, error) {
	var value T
	err := waitFor(ctx, opts, func(ctx context.Context) error {
		var err error
		value, err = call(ctx)
		return err
	})
	return value, err
}

func (b *boundedPage) Navigate(ctx context.Context, url string) error {
	return waitFor(ctx, b.opts, func(ctx context.Context) error { return b.page.Navigate(ctx, url) })
}

func (b *boundedPage) CurrentURL(ctx context.Context) (string, error) {
	return within(ctx, b.opts, b.page.CurrentURL)
}

func (b *boundedPage) WaitPresent(ctx context.Context, selector string) error {
	return waitFor(ctx, b.opts, func(ctx context.Context) error { return b.page.WaitPresent(ctx, selector) })
}

func (b *boundedPage) WaitVisible(ctx context.Context, selector string) error {
	return waitFor(ctx, b.opts, func(ctx context.Context) error { return b.page.WaitVisible(ctx, selector) })
}

func (b *boundedPage) Count(ctx context.Context, selector string) (int, error) {
	return within(ctx, b.opts, func(ctx context.Context) (int, error) { return b.page.Count(ctx, selector) })
}

func (b *boundedPage) Texts(ctx context.Context, selector string) ([]string, error) {
	return within(ctx, b.opts, func(ctx context.Context) ([]string, error) { return b.page.Texts(ctx, selector) })
}

func (b *boundedPage) Text(ctx context.Context, selector string) (string, error) {
	return within(ctx, b.opts, func(ctx context.Context) (string, error) { return b.page.Text(ctx, selector) })
}

func (b *boundedPage) Fill(ctx context.Context, selector, value string) error {
	return waitFor(ctx, b.opts, func(ctx context.Context) error { return b.page.Fill(ctx, selector, value) })
}

func (b *boundedPage) Click(ctx context.Context, selector string) error {
	return waitFor(ctx, b.opts, func(ctx context.Context) error { return b.page.Click(ctx, selector) })
}

func (b *boundedPage) IsEnabled(ctx context.Context, selector string) (bool, error) {
	return within(ctx, b.opts, func(ctx context.Context) (bool, error) { return b.page.IsEnabled(ctx, selector) })
}

func (b *boundedPage) VisibleCount(ctx context.Context, selector string) (int, error) {
	return within(ctx, b.opts, func(ctx context.Context) (int, error) { return b.page.VisibleCount(ctx, selector) })
}

func (b *boundedPage) HTML(ctx context.Context) (string, error) {
	return within(ctx, b.opts, b.page.HTML)
}

// waitForURL polls the current location until it contains fragment
func waitForURL(ctx context.Context, page Page, fragment string, opts Options) error {
	var last string
	err := poll.Until(ctx, poll.Options{Interval: opts.PollInterval, Timeout: opts.WaitTimeout}, func(ctx context.Context) (bool, error) {
		location, err := page.CurrentURL(ctx)
		if err != nil {
			return false, err
		}
		last = location
		return strings.Contains(location, fragment), nil
	})
	if err != nil {
		return fmt.Errorf("%w: url %q does not contain %q: %w", ErrUnexpectedURL, last, fragment, err)
	}
	return nil
}

func joinURL(baseURL, path string) string {
	return strings.TrimRight(baseURL, "/") + path
}
