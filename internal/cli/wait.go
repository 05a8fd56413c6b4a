package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ternarybob/shelfcheck/internal/poll"
)

// WaitOptions holds flags for the wait command
type WaitOptions struct {
	*RootOptions
	Timeout  time.Duration
	Interval time.Duration
}

// NewWaitCommand creates the wait command
func NewWaitCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &WaitOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "wait [url]",
		Short: "Block until a server answers without a server error",
		Long: `Poll url (default: the configured server's readiness URL) until it
returns a status below 500, or fail once the timeout elapses.

Example:
  shelfcheck wait http://127.0.0.1:5000/ --timeout 30s`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			url := ""
			if len(args) == 1 {
				url = args[0]
			}
			return waitForServer(cmd, opts, url)
		},
	}

	cmd.Flags().DurationVarP(&opts.Timeout, "timeout", "t", poll.DefaultTimeout, "give up after this long")
	cmd.Flags().DurationVar(&opts.Interval, "interval", poll.DefaultInterval, "delay between probes")

	return cmd
}

func waitForServer(cmd *cobra.Command, opts *WaitOptions, url string) error {
	if url == "" {
		config, err := loadConfig(opts.RootOptions, "")
		if err != nil {
			return err
		}
		url = config.Service.BaseURL() + config.Service.ReadinessPath
	}

	start := time.Now()
	err := poll.WaitForHTTP(cmd.Context(), nil, url, poll.Options{Interval: opts.Interval, Timeout: opts.Timeout})
	if err != nil {
		return WrapExitError(ExitCommandError, "server not ready", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s ready after %s\n", url, time.Since(start).Round(time.Millisecond))
	return nil
}
