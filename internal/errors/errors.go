package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors that can be used with errors.Is() for error type checking
var (
	// ErrNotRepository indicates the watch root is not inside a git repository
	ErrNotRepository = errors.New("not a git repository")

	// ErrWatchSetup indicates the filesystem watch could not be established.
	// This is fatal: there is nothing meaningful to watch.
	ErrWatchSetup = errors.New("failed to establish filesystem watch")

	// ErrRepositoryOp indicates a staging or commit operation failed for a
	// cause not expected in normal operation. Recoverable: the watch loop
	// continues and the next settled batch gets a fresh attempt.
	ErrRepositoryOp = errors.New("repository operation failed")

	// ErrAgentUnavailable indicates no running ssh agent could be reached
	ErrAgentUnavailable = errors.New("ssh agent unavailable")

	// ErrPassphraseRequired indicates the ssh key is encrypted and no
	// passphrase was supplied
	ErrPassphraseRequired = errors.New("ssh key is encrypted: passphrase required")

	// ErrInvalidPassphrase indicates the supplied passphrase does not decrypt
	// the ssh key
	ErrInvalidPassphrase = errors.New("passphrase does not decrypt ssh key")

	// ErrPushFailed indicates the exit-time push did not complete. Terminal
	// for the push attempt, non-fatal to the process.
	ErrPushFailed = errors.New("push failed")

	// ErrLockAcquisitionFailure indicates a lock file could not be acquired
	ErrLockAcquisitionFailure = errors.New("failed to acquire lock")

	// ErrAlreadyRunning indicates another scriv instance is watching this repository
	ErrAlreadyRunning = errors.New("another scriv instance is already running for this repository")

	// ErrInvalidConfiguration indicates an invalid or conflicting user configuration
	ErrInvalidConfiguration = errors.New("invalid configuration")
)

// New creates a new error with the given message.
// This is a convenience function that wraps errors.New.
func New(message string) error {
	return errors.New(message)
}

// Errorf creates a new formatted error.
// This is a convenience function that wraps fmt.Errorf.
func Errorf(format string, args ...interface{}) error {
	return fmt.Errorf(format, args...)
}

// Wrap wraps an error with a message for better context.
func Wrap(err error, message string) error {
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with a formatted message for better context.
func Wrapf(err error, format string, args ...interface{}) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// Is reports whether target is in err's chain.
// This is a convenience function that wraps errors.Is.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
// This is a convenience function that wraps errors.As.
func As(err error, target any) bool {
	return errors.As(err, target)
}

// WatchError represents a failure to establish or maintain a filesystem watch.
type WatchError struct {
	Path string
	Err  error
}

// Error implements the error interface with the offending path.
func (e *WatchError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("watch error for %s: %v", e.Path, e.Err)
	}
	return fmt.Sprintf("watch error: %v", e.Err)
}

// Unwrap returns the underlying error for use with errors.Is and errors.As.
func (e *WatchError) Unwrap() error {
	return e.Err
}

// NewWatchError creates a new WatchError with the given parameters.
func NewWatchError(path string, err error) *WatchError {
	return &WatchError{Path: path, Err: err}
}

// RepositoryError represents an error that occurred during a repository
// operation. It captures the operation name, the paths involved, and the
// underlying error.
type RepositoryError struct {
	Operation string
	Paths     []string
	Err       error
}

// Error implements the error interface with a detailed, user-friendly error message.
func (e *RepositoryError) Error() string {
	msg := fmt.Sprintf("git %s failed", e.Operation)
	if len(e.Paths) > 0 {
		msg = fmt.Sprintf("%s (%d path(s))", msg, len(e.Paths))
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap returns the underlying error for use with errors.Is and errors.As.
func (e *RepositoryError) Unwrap() error {
	return e.Err
}

// NewRepositoryError creates a new RepositoryError with the given parameters.
func NewRepositoryError(operation string, paths []string, err error) *RepositoryError {
	return &RepositoryError{
		Operation: operation,
		Paths:     paths,
		Err:       err,
	}
}

// AuthError represents a failure to resolve a configured authentication
// mechanism into a usable credential.
type AuthError struct {
	Mechanism string
	Err       error
}

// Error implements the error interface with the mechanism that failed.
func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication via %s failed: %v", e.Mechanism, e.Err)
}

// Unwrap returns the underlying error for use with errors.Is and errors.As.
func (e *AuthError) Unwrap() error {
	return e.Err
}

// NewAuthError creates a new AuthError with the given parameters.
func NewAuthError(mechanism string, err error) *AuthError {
	return &AuthError{Mechanism: mechanism, Err: err}
}

// PushError represents a failure of the exit-time push attempt.
type PushError struct {
	Remote string
	Err    error
}

// Error implements the error interface with the target remote.
func (e *PushError) Error() string {
	if e.Remote != "" {
		return fmt.Sprintf("push to %s failed: %v", e.Remote, e.Err)
	}
	return fmt.Sprintf("push failed: %v", e.Err)
}

// Unwrap returns the underlying error for use with errors.Is and errors.As.
func (e *PushError) Unwrap() error {
	return e.Err
}

// NewPushError creates a new PushError with the given parameters.
func NewPushError(remote string, err error) *PushError {
	return &PushError{Remote: remote, Err: err}
}

// LockError represents an error that occurred when interacting with file locks.
// It includes the lock file path, process ID if available, and underlying error.
type LockError struct {
	LockFile string
	PID      int
	Err      error
}

// Error implements the error interface with details about the lock file and process.
func (e *LockError) Error() string {
	if e.PID > 0 {
		return fmt.Sprintf("lock error with file %s (PID: %d): %v", e.LockFile, e.PID, e.Err)
	}
	return fmt.Sprintf("lock error with file %s: %v", e.LockFile, e.Err)
}

// Unwrap returns the underlying error for use with errors.Is and errors.As.
func (e *LockError) Unwrap() error {
	return e.Err
}

// NewLockError creates a new LockError with the given parameters.
func NewLockError(lockFile string, pid int, err error) *LockError {
	return &LockError{
		LockFile: lockFile,
		PID:      pid,
		Err:      err,
	}
}

// ConfigError represents an error in the application configuration.
// It includes the parameter name, its value if available, and the underlying error.
type ConfigError struct {
	Parameter string
	Value     interface{}
	Err       error
}

// Error implements the error interface with details about the invalid configuration.
func (e *ConfigError) Error() string {
	if e.Value != nil {
		return fmt.Sprintf("configuration error for %s = %v: %v", e.Parameter, e.Value, e.Err)
	}
	return fmt.Sprintf("configuration error for %s: %v", e.Parameter, e.Err)
}

// Unwrap returns the underlying error for use with errors.Is and errors.As.
func (e *ConfigError) Unwrap() error {
	return e.Err
}

// NewConfigError creates a new ConfigError with the given parameters.
func NewConfigError(parameter string, value interface{}, err error) *ConfigError {
	return &ConfigError{
		Parameter: parameter,
		Value:     value,
		Err:       err,
	}
}
