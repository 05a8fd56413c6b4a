// Package cli implements the shelfcheck command line: run the browser flows
// against a freshly started server, wait for a server to become ready, or
// print the version.
package cli

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/ternarybob/shelfcheck/internal/common"
)

// defaultConfigFile is picked up from the working directory when no --config is given
const defaultConfigFile = "shelfcheck.toml"

// RootOptions holds global flags for all commands
type RootOptions struct {
	ConfigFiles []string
	Host        string
	Port        int
	Verbose     bool
}

// NewRootCommand creates the shelfcheck command tree
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "shelfcheck",
		Short: "End-to-end browser checks for the library application",
		Long: `shelfcheck boots the library application, waits until it answers,
and drives the add-book and borrow-book flows in a headless browser.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringArrayVarP(&opts.ConfigFiles, "config", "c", nil,
		"configuration file (repeatable, later files override earlier ones)")
	cmd.PersistentFlags().StringVar(&opts.Host, "host", "", "server host (overrides config)")
	cmd.PersistentFlags().IntVarP(&opts.Port, "port", "p", 0, "server port (overrides config)")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "debug logging")

	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewWaitCommand(opts))
	cmd.AddCommand(NewVersionCommand())

	return cmd
}

// loadConfig resolves defaults -> files -> env -> flags and validates the result
func loadConfig(opts *RootOptions, scenarioFile string) (*common.Config, error) {
	files := opts.ConfigFiles
	if len(files) == 0 {
		if _, err := os.Stat(defaultConfigFile); err == nil {
			files = []string{defaultConfigFile}
		}
	}

	config, err := common.LoadFromFiles(files...)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load configuration", err)
	}

	common.ApplyFlagOverrides(config, opts.Port, opts.Host, scenarioFile)
	if opts.Verbose {
		config.Logging.Level = "debug"
	}

	if err := config.Validate(); err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid configuration", err)
	}
	return config, nil
}
