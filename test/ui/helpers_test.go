package ui

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ternarybob/shelfcheck/internal/browser"
)

// newBrowser opens an exclusive browser for t. It is closed when t ends, after
// a screenshot if t failed.
func newBrowser(t *testing.T) (*browser.Session, *suite) {
	t.Helper()
	if skipReason != "" {
		t.Skip(skipReason)
	}
	require.NotNil(t, current, "suite not initialised")

	page, err := current.factory.New(context.Background())
	require.NoError(t, err)

	t.Cleanup(func() {
		if t.Failed() {
			name := strings.ReplaceAll(t.Name(), "/", "_") + "-failure.png"
			path := filepath.Join(current.session.ResultsDir, "screenshots", name)
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := page.Screenshot(ctx, path); err != nil {
				t.Logf("Failed to capture screenshot: %v", err)
			} else {
				t.Logf("Screenshot saved: %s", path)
			}
			for _, line := range page.Console() {
				t.Logf("browser %s", line)
			}
		}
		page.Close()
	})

	return page, current
}

// testContext bounds one test
func testContext(t *testing.T, s *suite) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Browser.SessionTimeoutDuration())
	t.Cleanup(cancel)
	return ctx
}
