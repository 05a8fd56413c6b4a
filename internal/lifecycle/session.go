package lifecycle

import (
	"strings"
	"time"
)

// Session is the context shared by every test of one run: the server process
// and where to reach it. It is valid between Manager.Start and Manager.Stop.
type Session struct {
	BaseURL    string
	StateFile  string
	ResultsDir string
	LogPath    string
	StartedAt  time.Time

	pid int
}

// PID returns the server process id
func (s *Session) PID() int {
	return s.pid
}

// URL joins path onto the base URL
func (s *Session) URL(path string) string {
	if path == "" {
		return s.BaseURL
	}
	return strings.TrimRight(s.BaseURL, "/") + "/" + strings.TrimLeft(path, "/")
}
