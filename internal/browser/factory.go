// Package browser hands out isolated headless Chrome sessions, one per test.
package browser

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"runtime"

	"github.com/chromedp/chromedp"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/shelfcheck/internal/common"
)

// Factory creates browser sessions from one configuration
type Factory struct {
	config common.BrowserConfig
	logger arbor.ILogger
}

// NewFactory creates a session factory
func NewFactory(config common.BrowserConfig, logger arbor.ILogger) *Factory {
	if logger == nil {
		logger = common.GetLogger()
	}
	return &Factory{config: config, logger: logger}
}

// New launches a fresh browser with its own temporary profile. The browser is
// started before New returns so launch failures surface here. The caller must
// Close the session.
func (f *Factory) New(ctx context.Context) (*Session, error) {
	timeoutCtx, cancelTimeout := context.WithTimeout(ctx, f.config.SessionTimeoutDuration())

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", f.config.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.WindowSize(f.config.WindowWidth, f.config.WindowHeight),
	)
	if f.config.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(f.config.ExecPath))
	}
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(timeoutCtx, opts...)

	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)

	s := &Session{
		ctx:     browserCtx,
		logger:  f.logger,
		cleanup: make([]func(), 0, 4),
	}

	// Registered in reverse order of release (LIFO)
	s.cleanup = append(s.cleanup, cancelTimeout)
	s.cleanup = append(s.cleanup, cancelAlloc)
	s.cleanup = append(s.cleanup, cancelBrowser)
	s.cleanup = append(s.cleanup, func() {
		if err := chromedp.Cancel(browserCtx); err != nil {
			s.logger.Debug().Err(err).Msg("Browser cancel returned error")
		}
	})

	s.listenConsole()

	if err := chromedp.Run(browserCtx); err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}

	f.logger.Debug().
		Bool("headless", f.config.Headless).
		Int("width", f.config.WindowWidth).
		Int("height", f.config.WindowHeight).
		Msg("Browser session started")

	return s, nil
}

// execCandidates mirrors the names chromedp probes when no exec path is set
var execCandidates = []string{
	"headless_shell",
	"headless-shell",
	"chromium",
	"chromium-browser",
	"google-chrome",
	"google-chrome-stable",
	"google-chrome-beta",
	"google-chrome-unstable",
	"chrome",
	"chrome.exe",
}

// LookupExecPath reports the Chrome binary a session would use, or "" when
// none can be found.
func LookupExecPath(config common.BrowserConfig) string {
	if config.ExecPath != "" {
		if _, err := os.Stat(config.ExecPath); err != nil {
			return ""
		}
		return config.ExecPath
	}

	for _, name := range execCandidates {
		if path, err := exec.LookPath(name); err == nil {
			return path
		}
	}

	if runtime.GOOS == "darwin" {
		for _, path := range []string{
			"/Applications/Google Chrome.app/Contents/MacOS/Google Chrome",
			"/Applications/Chromium.app/Contents/MacOS/Chromium",
		} {
			if _, err := os.Stat(path); err == nil {
				return path
			}
		}
	}

	return ""
}
