package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/ternarybob/arbor"
)

// Session is one exclusive browser. All selectors are CSS selectors.
type Session struct {
	ctx    context.Context
	logger arbor.ILogger

	cleanup   []func()
	closeOnce sync.Once

	mu      sync.Mutex
	console []string
}

// Close releases the browser, the allocator and the session timeout in that order
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		for i := len(s.cleanup) - 1; i >= 0; i-- {
			s.cleanup[i]()
		}
	})
}

// Console returns the console messages and uncaught exceptions seen so far
func (s *Session) Console() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.console...)
}

func (s *Session) listenConsole() {
	chromedp.ListenTarget(s.ctx, func(ev interface{}) {
		switch ev := ev.(type) {
		case *runtime.EventConsoleAPICalled:
			args := make([]string, 0, len(ev.Args))
			for _, arg := range ev.Args {
				args = append(args, remoteObjectString(arg))
			}
			line := fmt.Sprintf("console.%s: %s", ev.Type, strings.Join(args, " "))
			s.record(line)
			s.logger.Debug().Str("type", string(ev.Type)).Msg(line)
		case *runtime.EventExceptionThrown:
			if ev.ExceptionDetails == nil {
				return
			}
			text := ev.ExceptionDetails.Text
			if ev.ExceptionDetails.Exception != nil && ev.ExceptionDetails.Exception.Description != "" {
				text = ev.ExceptionDetails.Exception.Description
			}
			line := "exception: " + text
			s.record(line)
			s.logger.Warn().Str("url", ev.ExceptionDetails.URL).Msg(line)
		}
	})
}

func (s *Session) record(line string) {
	s.mu.Lock()
	s.console = append(s.console, line)
	s.mu.Unlock()
}

func remoteObjectString(obj *runtime.RemoteObject) string {
	if obj == nil {
		return ""
	}
	if len(obj.Value) > 0 {
		var str string
		if err := json.Unmarshal(obj.Value, &str); err == nil {
			return str
		}
		return string(obj.Value)
	}
	return obj.Description
}

// bind derives a context from the browser that also ends with ctx
func (s *Session) bind(ctx context.Context) (context.Context, context.CancelFunc) {
	runCtx, cancel := context.WithCancel(s.ctx)
	if deadline, ok := ctx.Deadline(); ok {
		var cancelDeadline context.CancelFunc
		runCtx, cancelDeadline = context.WithDeadline(runCtx, deadline)
		parentCancel := cancel
		cancel = func() {
			cancelDeadline()
			parentCancel()
		}
	}
	stop := context.AfterFunc(ctx, cancel)
	return runCtx, func() {
		stop()
		cancel()
	}
}

func (s *Session) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := s.bind(ctx)
	defer cancel()
	return chromedp.Run(runCtx, actions...)
}

// Navigate loads url and waits for the load event
func (s *Session) Navigate(ctx context.Context, url string) error {
	if err := s.run(ctx, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("failed to navigate to %s: %w", url, err)
	}
	return nil
}

// CurrentURL returns the location of the current page
func (s *Session) CurrentURL(ctx context.Context) (string, error) {
	var location string
	if err := s.run(ctx, chromedp.Location(&location)); err != nil {
		return "", fmt.Errorf("failed to read current url: %w", err)
	}
	return location, nil
}

// WaitPresent blocks until selector is in the DOM or ctx ends
func (s *Session) WaitPresent(ctx context.Context, selector string) error {
	return s.run(ctx, chromedp.WaitReady(selector, chromedp.ByQuery))
}

// WaitVisible blocks until selector is displayed or ctx ends
func (s *Session) WaitVisible(ctx context.Context, selector string) error {
	return s.run(ctx, chromedp.WaitVisible(selector, chromedp.ByQuery))
}

// Count returns the number of elements matching selector without waiting
func (s *Session) Count(ctx context.Context, selector string) (int, error) {
	var count int
	js := fmt.Sprintf(`document.querySelectorAll(%s).length`, jsString(selector))
	if err := s.run(ctx, chromedp.Evaluate(js, &count)); err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", selector, err)
	}
	return count, nil
}

// Texts returns the rendered text of every element matching selector, in document order
func (s *Session) Texts(ctx context.Context, selector string) ([]string, error) {
	var texts []string
	js := fmt.Sprintf(`Array.from(document.querySelectorAll(%s), e => e.innerText || e.textContent || "")`, jsString(selector))
	if err := s.run(ctx, chromedp.Evaluate(js, &texts)); err != nil {
		return nil, fmt.Errorf("failed to read texts of %s: %w", selector, err)
	}
	return texts, nil
}

// Text returns the rendered text of the first element matching selector
func (s *Session) Text(ctx context.Context, selector string) (string, error) {
	var text string
	if err := s.run(ctx, chromedp.Text(selector, &text, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("failed to read text of %s: %w", selector, err)
	}
	return text, nil
}

// Fill clears the input matching selector and types value into it
func (s *Session) Fill(ctx context.Context, selector, value string) error {
	if err := s.run(ctx,
		chromedp.WaitReady(selector, chromedp.ByQuery),
		chromedp.Clear(selector, chromedp.ByQuery),
		chromedp.SendKeys(selector, value, chromedp.ByQuery),
	); err != nil {
		return fmt.Errorf("failed to fill %s: %w", selector, err)
	}
	return nil
}

// Click clicks the first element matching selector once it is visible
func (s *Session) Click(ctx context.Context, selector string) error {
	if err := s.run(ctx,
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.Click(selector, chromedp.ByQuery),
	); err != nil {
		return fmt.Errorf("failed to click %s: %w", selector, err)
	}
	return nil
}

// IsEnabled reports whether the first element matching selector exists and is not disabled
func (s *Session) IsEnabled(ctx context.Context, selector string) (bool, error) {
	var enabled bool
	js := fmt.Sprintf(`(() => { const e = document.querySelector(%s); return !!e && !e.disabled; })()`, jsString(selector))
	if err := s.run(ctx, chromedp.Evaluate(js, &enabled)); err != nil {
		return false, fmt.Errorf("failed to check %s: %w", selector, err)
	}
	return enabled, nil
}

// VisibleCount returns how many elements matching selector take up layout space
func (s *Session) VisibleCount(ctx context.Context, selector string) (int, error) {
	var count int
	js := fmt.Sprintf(`Array.from(document.querySelectorAll(%s)).filter(e => !!(e.offsetWidth || e.offsetHeight || e.getClientRects().length)).length`, jsString(selector))
	if err := s.run(ctx, chromedp.Evaluate(js, &count)); err != nil {
		return 0, fmt.Errorf("failed to count visible %s: %w", selector, err)
	}
	return count, nil
}

// HTML returns the serialized document
func (s *Session) HTML(ctx context.Context) (string, error) {
	var html string
	if err := s.run(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("failed to read page html: %w", err)
	}
	return html, nil
}

// Screenshot writes a PNG of the viewport to path
func (s *Session) Screenshot(ctx context.Context, path string) error {
	var buf []byte
	if err := s.run(ctx, chromedp.CaptureScreenshot(&buf)); err != nil {
		return fmt.Errorf("failed to capture screenshot: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create screenshots directory: %w", err)
	}
	if err := os.WriteFile(path, buf, 0644); err != nil {
		return fmt.Errorf("failed to save screenshot: %w", err)
	}

	s.logger.Debug().Str("path", path).Msg("Screenshot saved")
	return nil
}

// jsString quotes s as a JavaScript string literal
func jsString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}
