package lifecycle

import (
	"errors"
	"fmt"
)

var (
	// ErrPortInUse means something already listens on the configured address
	ErrPortInUse = errors.New("port already in use")

	// ErrProcessExited means the server process ended before it became ready
	ErrProcessExited = errors.New("server process exited before becoming ready")

	// ErrAlreadyRunning is returned by Start on a manager that owns a live process
	ErrAlreadyRunning = errors.New("server already running for this session")
)

// StartupError is fatal for the whole test session
type StartupError struct {
	Address string
	Cause   error
}

func (e *StartupError) Error() string {
	return fmt.Sprintf("server startup failed at %s: %v", e.Address, e.Cause)
}

func (e *StartupError) Unwrap() error {
	return e.Cause
}
