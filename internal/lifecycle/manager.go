// Package lifecycle owns the single application server process of a test
// session: it resets persisted state, launches the process, waits until the
// server answers and guarantees termination afterwards.
package lifecycle

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/alessio/shellescape"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/shelfcheck/internal/common"
	"github.com/ternarybob/shelfcheck/internal/poll"
)

// Manager starts and stops the application under test
type Manager struct {
	config     common.ServiceConfig
	resultsDir string
	logger     arbor.ILogger

	mu      sync.Mutex
	cmd     *exec.Cmd
	exited  chan struct{}
	waitErr error
	logFile *os.File
	session *Session
}

// New creates a manager. Server output is written to service.log in resultsDir.
func New(config common.ServiceConfig, resultsDir string, logger arbor.ILogger) *Manager {
	if logger == nil {
		logger = common.GetLogger()
	}
	return &Manager{
		config:     config,
		resultsDir: resultsDir,
		logger:     logger,
	}
}

// Session returns the running session, or nil
func (m *Manager) Session() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session
}

// Start resets the state file, launches the server and blocks until it is
// ready. Any failure is a *StartupError and leaves no process behind.
func (m *Manager) Start(ctx context.Context) (*Session, error) {
	address := m.config.Address()
	startupErr := func(cause error) error {
		return &StartupError{Address: address, Cause: cause}
	}

	m.mu.Lock()
	if m.cmd != nil {
		m.mu.Unlock()
		return nil, startupErr(ErrAlreadyRunning)
	}

	stateFile, err := m.resetState()
	if err != nil {
		m.mu.Unlock()
		return nil, startupErr(err)
	}

	if isServiceRunning(address) {
		m.mu.Unlock()
		return nil, startupErr(ErrPortInUse)
	}

	logPath, err := m.launch()
	if err != nil {
		m.mu.Unlock()
		return nil, startupErr(err)
	}
	cmd := m.cmd
	exited := m.exited
	pid := cmd.Process.Pid
	m.mu.Unlock()

	// Lock released while polling so Stop can interrupt a slow start
	if err := m.waitReady(ctx, exited); err != nil {
		m.logger.Error().Err(err).Int("pid", pid).Msg("Server did not become ready")
		m.Stop()
		return nil, startupErr(err)
	}

	session := &Session{
		BaseURL:    m.config.BaseURL(),
		StateFile:  stateFile,
		ResultsDir: m.resultsDir,
		LogPath:    logPath,
		StartedAt:  time.Now(),
		pid:        pid,
	}

	m.mu.Lock()
	if m.cmd != cmd {
		m.mu.Unlock()
		return nil, startupErr(ErrProcessExited)
	}
	m.session = session
	m.mu.Unlock()

	m.logger.Info().
		Str("url", session.BaseURL).
		Int("pid", pid).
		Msg("Server ready")

	return session, nil
}

// resetState deletes the persisted state file so the server boots from its seed data
func (m *Manager) resetState() (string, error) {
	if m.config.StateFile == "" {
		return "", nil
	}

	path := m.config.StateFile
	if !filepath.IsAbs(path) {
		path = filepath.Join(m.config.Dir, path)
	}

	if err := os.Remove(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			m.logger.Debug().Str("path", path).Msg("No persisted state to reset")
			return path, nil
		}
		return "", fmt.Errorf("failed to reset state file %s: %w", path, err)
	}

	m.logger.Info().Str("path", path).Msg("Persisted state reset")
	return path, nil
}

// launch starts the child process; caller holds m.mu
func (m *Manager) launch() (string, error) {
	if len(m.config.Command) == 0 {
		return "", errors.New("no server command configured")
	}

	if err := os.MkdirAll(m.resultsDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create results directory: %w", err)
	}

	logPath := filepath.Join(m.resultsDir, "service.log")
	logFile, err := os.Create(logPath)
	if err != nil {
		return "", fmt.Errorf("failed to create service log file: %w", err)
	}

	cmd := exec.Command(m.config.Command[0], m.config.Command[1:]...)
	cmd.Dir = m.config.Dir
	cmd.Env = append(os.Environ(), m.config.Env...)
	output := io.MultiWriter(logFile, &lineLogger{logger: m.logger})
	cmd.Stdout = output
	cmd.Stderr = output

	commandLine := quoteCommand(m.config.Command)
	fmt.Fprintf(logFile, "Command:     %s\n", commandLine)
	fmt.Fprintf(logFile, "Working Dir: %s\n", m.config.Dir)
	fmt.Fprintf(logFile, "Listen URL:  %s\n\n", m.config.BaseURL())

	m.logger.Info().
		Str("command", commandLine).
		Str("dir", m.config.Dir).
		Str("address", m.config.Address()).
		Msg("Starting server process")

	if err := cmd.Start(); err != nil {
		logFile.Close()
		return "", fmt.Errorf("failed to start server process: %w", err)
	}

	exited := make(chan struct{})
	go func() {
		err := cmd.Wait()
		m.mu.Lock()
		m.waitErr = err
		m.mu.Unlock()
		close(exited)
	}()

	m.cmd = cmd
	m.exited = exited
	m.logFile = logFile

	fmt.Fprintf(logFile, "--- Service Output Begins Below (PID %d) ---\n", cmd.Process.Pid)
	return logPath, nil
}

// waitReady polls the readiness URL, aborting as soon as the process exits
func (m *Manager) waitReady(ctx context.Context, exited <-chan struct{}) error {
	pollCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		select {
		case <-exited:
			cancel()
		case <-pollCtx.Done():
		}
	}()

	url := m.config.BaseURL() + m.config.ReadinessPath
	err := poll.WaitForHTTP(pollCtx, nil, url, poll.Options{
		Interval: poll.DefaultInterval,
		Timeout:  m.config.StartupTimeoutDuration(),
	})
	if err == nil {
		return nil
	}

	select {
	case <-exited:
		m.mu.Lock()
		waitErr := m.waitErr
		m.mu.Unlock()
		if waitErr != nil {
			return fmt.Errorf("%w: %v", ErrProcessExited, waitErr)
		}
		return ErrProcessExited
	default:
	}
	return err
}

// Stop requests a graceful shutdown, waits for the grace period and then
// kills the process. It is safe to call at any time and more than once.
func (m *Manager) Stop() error {
	m.mu.Lock()
	cmd, exited, logFile := m.cmd, m.exited, m.logFile
	m.mu.Unlock()

	if cmd == nil {
		return nil
	}

	// The waiter goroutine takes m.mu to record the exit status, so waits
	// below run unlocked.
	defer m.release(cmd, logFile)

	pid := cmd.Process.Pid
	grace := m.config.ShutdownGraceDuration()

	m.logger.Info().Int("pid", pid).Msg("Stopping server")

	if err := terminate(cmd.Process); err != nil {
		m.logger.Debug().Err(err).Int("pid", pid).Msg("Terminate request failed")
	}

	if waitFor(exited, grace) {
		m.logger.Info().Int("pid", pid).Str("mode", "graceful").Msg("Server stopped")
		return nil
	}

	m.logger.Warn().Int("pid", pid).Str("grace", grace.String()).Msg("Server ignored terminate, killing")
	if err := cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		m.logger.Error().Err(err).Int("pid", pid).Msg("Failed to kill server")
	}

	if !waitFor(exited, grace) {
		return fmt.Errorf("server process %d did not exit after kill", pid)
	}

	m.logger.Info().Int("pid", pid).Str("mode", "forced").Msg("Server stopped")
	return nil
}

// release clears the manager state if it still belongs to cmd
func (m *Manager) release(cmd *exec.Cmd, logFile *os.File) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cmd != cmd {
		return
	}
	if logFile != nil {
		logFile.Close()
	}
	m.cmd = nil
	m.exited = nil
	m.logFile = nil
	m.session = nil
}

func waitFor(ch <-chan struct{}, timeout time.Duration) bool {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-ch:
		return true
	case <-timer.C:
		return false
	}
}

// isServiceRunning checks if something accepts connections on address
func isServiceRunning(address string) bool {
	conn, err := net.DialTimeout("tcp", address, 2*time.Second)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

func quoteCommand(args []string) string {
	quoted := make([]string, len(args))
	for i, a := range args {
		quoted[i] = shellescape.Quote(a)
	}
	return strings.Join(quoted, " ")
}

// lineLogger forwards complete lines of server output to the logger at debug level
type lineLogger struct {
	logger arbor.ILogger
	buf    bytes.Buffer
}

func (l *lineLogger) Write(p []byte) (int, error) {
	l.buf.Write(p)
	for {
		line, err := l.buf.ReadString('\n')
		if err != nil {
			// Partial line stays buffered until its newline arrives
			l.buf.Reset()
			l.buf.WriteString(line)
			break
		}
		if text := strings.TrimRight(line, "\r\n"); text != "" {
			l.logger.Debug().Str("source", "server").Msg(text)
		}
	}
	return len(p), nil
}
