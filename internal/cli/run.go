package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ternarybob/shelfcheck/internal/browser"
	"github.com/ternarybob/shelfcheck/internal/common"
	"github.com/ternarybob/shelfcheck/internal/lifecycle"
	"github.com/ternarybob/shelfcheck/internal/runner"
	"github.com/ternarybob/shelfcheck/internal/scenario"
)

// RunOptions holds flags for the run command
type RunOptions struct {
	*RootOptions
	ScenarioFile string
	Only         []string
	NoBanner     bool
}

// NewRunCommand creates the run command
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the server and run the browser flows",
		Long: `Reset the application state, start the server, wait until it is ready
and run each flow in its own headless browser. The server is always stopped
before the command returns.

Exit codes: 0 all flows passed, 1 a flow failed, 2 the run could not start.

Example:
  shelfcheck run -c shelfcheck.toml
  shelfcheck run --scenarios inputs.yaml --only borrow_book`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScenarios(cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.ScenarioFile, "scenarios", "s", "", "YAML file with scenario inputs (overrides config)")
	cmd.Flags().StringSliceVar(&opts.Only, "only", nil, "run only the named scenarios (add_book, borrow_book)")
	cmd.Flags().BoolVar(&opts.NoBanner, "no-banner", false, "do not print the banner")

	return cmd
}

func runScenarios(cmd *cobra.Command, opts *RunOptions) (err error) {
	config, err := loadConfig(opts.RootOptions, opts.ScenarioFile)
	if err != nil {
		return err
	}

	dir, runID, err := runner.NewRunDir(config.Output.ResultsDir)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to prepare results", err)
	}

	logger := common.InitLogger(config, dir)
	common.InstallCrashHandler(dir)
	defer common.RecoverWithCrashFile()

	if !opts.NoBanner {
		common.PrintBanner("Shelfcheck")
	}

	logger.Info().
		Str("run_id", runID).
		Str("results", dir).
		Strs("config_files", opts.ConfigFiles).
		Msg("Run starting")

	inputs, err := scenario.LoadInputs(config.Scenarios.File)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid scenario inputs", err)
	}

	scenarios, err := selectScenarios(runner.Scenarios(inputs, scenario.Options{
		WaitTimeout: config.Browser.WaitTimeoutDuration(),
	}), opts.Only)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid --only", err)
	}

	execPath := browser.LookupExecPath(config.Browser)
	if execPath == "" {
		return NewExitError(ExitCommandError, "no Chrome or Chromium binary found (set browser.exec_path or SHELFCHECK_CHROME_PATH)")
	}
	logger.Debug().Str("chrome", execPath).Msg("Browser found")

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	manager := lifecycle.New(config.Service, dir, logger)
	defer func() {
		if stopErr := manager.Stop(); stopErr != nil {
			logger.Error().Err(stopErr).Msg("Failed to stop server")
		}
	}()

	session, err := manager.Start(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "server did not start", err)
	}

	r := runner.New(runner.ChromeFactory(browser.NewFactory(config.Browser, logger)), config.Output.Screenshots, logger)
	report := r.Run(ctx, runID, dir, session.BaseURL, scenarios)

	runner.PrintSummary(cmd.OutOrStdout(), report)

	if failed := report.Failed(); failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d of %d scenarios failed", failed, len(report.Results)))
	}
	return nil
}

// selectScenarios keeps the named scenarios in their original order
func selectScenarios(all []runner.Scenario, only []string) ([]runner.Scenario, error) {
	if len(only) == 0 {
		return all, nil
	}

	wanted := make(map[string]bool, len(only))
	for _, name := range only {
		wanted[name] = true
	}

	var selected []runner.Scenario
	for _, sc := range all {
		if wanted[sc.Name] {
			selected = append(selected, sc)
			delete(wanted, sc.Name)
		}
	}
	for name := range wanted {
		return nil, fmt.Errorf("unknown scenario %q", name)
	}
	return selected, nil
}

