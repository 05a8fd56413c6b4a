//go:build windows

package lifecycle

import (
	"os"
)

// Windows has no SIGTERM for console processes started without a console
// group, so a terminate request is a kill.
func terminate(p *os.Process) error {
	return p.Kill()
}
