package gwatchdog

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by [*Supervisor] methods.
// Use [errors.Is] to match them, as most are wrapped in a more specific type.
var (
	ErrNotInitialized     = errors.New("watchdog supervisor not initialized")
	ErrAlreadyInitialized = errors.New("watchdog supervisor already initialized")
	ErrNotStarted         = errors.New("watchdog supervisor not started")

	ErrConfigMissing = errors.New("watchdog task registry missing")
	ErrConfigInvalid = errors.New("watchdog task registry invalid")

	ErrPlatformFailure = errors.New("watchdog platform failure")
	ErrInvalidArgument = errors.New("invalid argument")
)

// PlatformError indicates that a [Platform] primitive reported a failure.
// It matches [ErrPlatformFailure] with [errors.Is].
type PlatformError struct {
	// The platform operation that failed, e.g. "arm".
	Op string

	Err error
}

func (e PlatformError) Error() string {
	return fmt.Sprintf("watchdog platform %s failed: %v", e.Op, e.Err)
}

func (e PlatformError) Unwrap() error {
	return e.Err
}

func (e PlatformError) Is(target error) bool {
	return target == ErrPlatformFailure
}

// UnknownTaskError is returned when a [TaskID] outside the registry is passed
// to a Supervisor method.
// It matches [ErrInvalidArgument] with [errors.Is].
type UnknownTaskError struct {
	ID       TaskID
	NumTasks int
}

func (e UnknownTaskError) Error() string {
	return fmt.Sprintf("unknown task ID %d (registry has %d tasks)", e.ID, e.NumTasks)
}

func (e UnknownTaskError) Is(target error) bool {
	return target == ErrInvalidArgument
}

// MissedDeadlineError describes the task that caused the supervisor
// to stop kicking the hardware watchdog.
//
// It is never returned from a Supervisor method;
// it is available through [*Supervisor.Violation] for diagnostics,
// particularly from a pre-reset callback.
type MissedDeadlineError struct {
	TaskID   TaskID
	TaskName string

	// Ticks since the last report, and the configured timeout,
	// as observed by the handler tick that detected the miss.
	Elapsed, Timeout uint32
}

func (e MissedDeadlineError) Error() string {
	return fmt.Sprintf(
		"task %s failed to report within %d ticks (elapsed %d)",
		e.TaskName, e.Timeout, e.Elapsed,
	)
}
