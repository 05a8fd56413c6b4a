package runner

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/shelfcheck/internal/dom"
	"github.com/ternarybob/shelfcheck/internal/scenario"
)

type fakeBrowser struct {
	scenario.Page
	closed  bool
	console []string
}

func (b *fakeBrowser) Screenshot(ctx context.Context, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte("png"), 0644)
}

func (b *fakeBrowser) Console() []string { return b.console }

func (b *fakeBrowser) Close() { b.closed = true }

type fakeFactory struct {
	browsers []*fakeBrowser
	err      error
}

func (f *fakeFactory) NewBrowser(ctx context.Context) (Browser, error) {
	if f.err != nil {
		return nil, f.err
	}
	b := &fakeBrowser{console: []string{"console.log: hello"}}
	f.browsers = append(f.browsers, b)
	return b, nil
}

func passing(name string) Scenario {
	return Scenario{Name: name, Run: func(ctx context.Context, page scenario.Page, baseURL string) error {
		return nil
	}}
}

func failing(name string, err error) Scenario {
	return Scenario{Name: name, Run: func(ctx context.Context, page scenario.Page, baseURL string) error {
		return err
	}}
}

func TestRunFreshBrowserPerScenario(t *testing.T) {
	factory := &fakeFactory{}
	r := New(factory, true, arbor.NewLogger())

	report := r.Run(context.Background(), "run-1", t.TempDir(), "http://127.0.0.1:5000",
		[]Scenario{passing("add_book"), passing("borrow_book")})

	assert.True(t, report.Passed())
	require.Len(t, report.Results, 2)
	require.Len(t, factory.browsers, 2)
	assert.NotSame(t, factory.browsers[0], factory.browsers[1])
	for _, b := range factory.browsers {
		assert.True(t, b.closed, "every browser must be closed")
	}
	assert.Empty(t, report.Results[0].Screenshot)
}

func TestRunContinuesAfterFailure(t *testing.T) {
	factory := &fakeFactory{}
	dir := t.TempDir()
	r := New(factory, true, arbor.NewLogger())

	failure := &scenario.StepError{Step: scenario.StepAddedFlash, Err: &dom.AssertionError{Check: "flash", Expected: "x", Actual: "y"}}
	report := r.Run(context.Background(), "run-2", dir, "http://127.0.0.1:5000",
		[]Scenario{failing("add book", failure), passing("borrow_book")})

	assert.False(t, report.Passed())
	assert.Equal(t, 1, report.Failed())
	require.Len(t, report.Results, 2)

	first := report.Results[0]
	assert.ErrorIs(t, first.Err, dom.ErrAssertion)
	assert.Equal(t, filepath.Join(dir, "screenshots", "add_book-failure.png"), first.Screenshot)
	assert.FileExists(t, first.Screenshot)
	assert.Equal(t, []string{"console.log: hello"}, first.Console)

	assert.True(t, report.Results[1].Passed())
}

func TestRunScreenshotsDisabled(t *testing.T) {
	r := New(&fakeFactory{}, false, arbor.NewLogger())

	report := r.Run(context.Background(), "run-3", t.TempDir(), "", []Scenario{failing("add_book", errors.New("boom"))})
	assert.Empty(t, report.Results[0].Screenshot)
}

func TestRunBrowserLaunchFailure(t *testing.T) {
	launchErr := errors.New("chrome not found")
	r := New(&fakeFactory{err: launchErr}, true, arbor.NewLogger())

	report := r.Run(context.Background(), "run-4", t.TempDir(), "", []Scenario{passing("add_book")})
	require.Len(t, report.Results, 1)
	assert.ErrorIs(t, report.Results[0].Err, launchErr)
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	factory := &fakeFactory{}
	report := New(factory, true, arbor.NewLogger()).Run(ctx, "run-5", "", "", []Scenario{passing("add_book")})
	assert.ErrorIs(t, report.Results[0].Err, context.Canceled)
	assert.Empty(t, factory.browsers)
}

func TestNewRunDir(t *testing.T) {
	base := t.TempDir()
	dir, runID, err := NewRunDir(base)
	require.NoError(t, err)

	assert.DirExists(t, dir)
	assert.Equal(t, base, filepath.Dir(dir))
	assert.Contains(t, filepath.Base(dir), runID[:8])
}

func TestPrintSummary(t *testing.T) {
	color.NoColor = true

	report := &Report{
		RunID: "abc",
		Results: []Result{
			{Name: "add_book"},
			{Name: "borrow_book", Err: errors.New("step \"due date\" failed"), Screenshot: "shot.png"},
		},
	}

	var buf bytes.Buffer
	PrintSummary(&buf, report)
	out := buf.String()

	assert.Contains(t, out, "PASS add_book")
	assert.Contains(t, out, "FAIL borrow_book")
	assert.Contains(t, out, "screenshot: shot.png")
	assert.Contains(t, out, "FAILED 1/2 scenarios failed")
}

func TestScenariosOrder(t *testing.T) {
	scenarios := Scenarios(scenario.DefaultInputs(), scenario.Options{})
	require.Len(t, scenarios, 2)
	assert.Equal(t, "add_book", scenarios[0].Name)
	assert.Equal(t, "borrow_book", scenarios[1].Name)
}
