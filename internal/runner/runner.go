// Package runner executes the flows outside of go test: one fresh browser per
// flow, a screenshot when a flow fails and a summary at the end.
package runner

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/shelfcheck/internal/browser"
	"github.com/ternarybob/shelfcheck/internal/common"
	"github.com/ternarybob/shelfcheck/internal/scenario"
)

// Browser is a page the runner can also photograph and close
type Browser interface {
	scenario.Page
	Screenshot(ctx context.Context, path string) error
	Console() []string
	Close()
}

// Factory opens one browser per flow
type Factory interface {
	NewBrowser(ctx context.Context) (Browser, error)
}

// FactoryFunc adapts a function to Factory
type FactoryFunc func(ctx context.Context) (Browser, error)

func (f FactoryFunc) NewBrowser(ctx context.Context) (Browser, error) {
	return f(ctx)
}

// ChromeFactory opens chromedp sessions
func ChromeFactory(f *browser.Factory) Factory {
	return FactoryFunc(func(ctx context.Context) (Browser, error) {
		s, err := f.New(ctx)
		if err != nil {
			return nil, err
		}
		return s, nil
	})
}

// Scenario is a named flow
type Scenario struct {
	Name string
	Run  func(ctx context.Context, page scenario.Page, baseURL string) error
}

// Scenarios returns the add-book and borrow-book flows, in that order
func Scenarios(inputs *scenario.Inputs, opts scenario.Options) []Scenario {
	return []Scenario{
		{
			Name: "add_book",
			Run: func(ctx context.Context, page scenario.Page, baseURL string) error {
				_, err := scenario.AddBook(ctx, page, baseURL, inputs.AddBook, opts)
				return err
			},
		},
		{
			Name: "borrow_book",
			Run: func(ctx context.Context, page scenario.Page, baseURL string) error {
				_, err := scenario.BorrowBook(ctx, page, baseURL, inputs.BorrowBook, opts)
				return err
			},
		},
	}
}

// Result is the outcome of one flow
type Result struct {
	Name       string
	Err        error
	Duration   time.Duration
	Screenshot string
	Console    []string
}

// Passed reports whether the flow succeeded
func (r Result) Passed() bool {
	return r.Err == nil
}

// Report collects the results of a run
type Report struct {
	RunID    string
	Dir      string
	Started  time.Time
	Finished time.Time
	Results  []Result
}

// Failed returns the number of failed flows
func (r *Report) Failed() int {
	failed := 0
	for _, res := range r.Results {
		if !res.Passed() {
			failed++
		}
	}
	return failed
}

// Passed reports whether every flow succeeded
func (r *Report) Passed() bool {
	return r.Failed() == 0
}

// Runner executes flows sequentially
type Runner struct {
	factory     Factory
	logger      arbor.ILogger
	screenshots bool
}

// New creates a runner
func New(factory Factory, screenshots bool, logger arbor.ILogger) *Runner {
	if logger == nil {
		logger = common.GetLogger()
	}
	return &Runner{factory: factory, logger: logger, screenshots: screenshots}
}

// NewRunDir creates a timestamped, uniquely named directory for one run's artifacts
func NewRunDir(base string) (dir string, runID string, err error) {
	runID = uuid.New().String()
	name := fmt.Sprintf("run-%s-%s", time.Now().Format("20060102-150405"), runID[:8])
	dir = filepath.Join(base, name)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", "", fmt.Errorf("failed to create results directory: %w", err)
	}
	return dir, runID, nil
}

// Run executes every scenario against baseURL. A failing flow never stops the
// run; ctx cancellation does.
func (r *Runner) Run(ctx context.Context, runID, dir, baseURL string, scenarios []Scenario) *Report {
	report := &Report{RunID: runID, Dir: dir, Started: time.Now()}

	for _, sc := range scenarios {
		if ctx.Err() != nil {
			report.Results = append(report.Results, Result{Name: sc.Name, Err: ctx.Err()})
			continue
		}
		report.Results = append(report.Results, r.runOne(ctx, dir, baseURL, sc))
	}

	report.Finished = time.Now()
	return report
}

func (r *Runner) runOne(ctx context.Context, dir, baseURL string, sc Scenario) Result {
	result := Result{Name: sc.Name}
	start := time.Now()

	r.logger.Info().Str("scenario", sc.Name).Msg("Running scenario")

	b, err := r.factory.NewBrowser(ctx)
	if err != nil {
		result.Err = fmt.Errorf("failed to open browser: %w", err)
		result.Duration = time.Since(start)
		r.logger.Error().Err(result.Err).Str("scenario", sc.Name).Msg("Scenario failed")
		return result
	}
	defer b.Close()

	result.Err = sc.Run(ctx, b, baseURL)
	result.Console = b.Console()
	result.Duration = time.Since(start)

	if result.Err == nil {
		r.logger.Info().Str("scenario", sc.Name).Str("duration", result.Duration.Round(time.Millisecond).String()).Msg("Scenario passed")
		return result
	}

	r.logger.Error().Err(result.Err).Str("scenario", sc.Name).Msg("Scenario failed")

	if r.screenshots && dir != "" {
		path := filepath.Join(dir, "screenshots", screenshotName(sc.Name))
		shotCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if err := b.Screenshot(shotCtx, path); err != nil {
			r.logger.Warn().Err(err).Str("scenario", sc.Name).Msg("Failed to capture failure screenshot")
		} else {
			result.Screenshot = path
		}
	}

	return result
}

var unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)

func screenshotName(name string) string {
	return strings.Trim(unsafeChars.ReplaceAllString(name, "_"), "_") + "-failure.png"
}
