package runner

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"
)

var (
	passColor  = color.New(color.FgGreen, color.Bold)
	failColor  = color.New(color.FgRed, color.Bold)
	grayColor  = color.New(color.Faint)
	valueColor = color.New(color.FgCyan)
)

// PrintSummary writes a per-flow result list and totals
func PrintSummary(w io.Writer, report *Report) {
	fmt.Fprintf(w, "\nrun %s\n", valueColor.Sprint(report.RunID))
	if report.Dir != "" {
		fmt.Fprintf(w, "%s %s\n", grayColor.Sprint("artifacts:"), report.Dir)
	}
	fmt.Fprintln(w)

	for _, res := range report.Results {
		mark := passColor.Sprint("PASS")
		if !res.Passed() {
			mark = failColor.Sprint("FAIL")
		}
		fmt.Fprintf(w, "  %s %-14s %s\n", mark, res.Name, grayColor.Sprint(res.Duration.Round(time.Millisecond)))

		if res.Passed() {
			continue
		}
		for _, line := range strings.Split(res.Err.Error(), "\n") {
			fmt.Fprintf(w, "       %s\n", line)
		}
		if res.Screenshot != "" {
			fmt.Fprintf(w, "       %s %s\n", grayColor.Sprint("screenshot:"), res.Screenshot)
		}
		for _, line := range res.Console {
			fmt.Fprintf(w, "       %s %s\n", grayColor.Sprint("console:"), line)
		}
	}

	total := len(report.Results)
	failed := report.Failed()
	fmt.Fprintln(w)
	if failed == 0 {
		fmt.Fprintf(w, "%s %d/%d scenarios passed in %s\n", passColor.Sprint("OK"), total, total,
			report.Finished.Sub(report.Started).Round(time.Millisecond))
		return
	}
	fmt.Fprintf(w, "%s %d/%d scenarios failed\n", failColor.Sprint("FAILED"), failed, total)
}
