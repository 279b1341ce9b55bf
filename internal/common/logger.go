package common

// Logger is the logging capability handed to the watch, debounce, commit,
// auth, and push layers. It carries two channels: Info/Warning/Error feed the
// debug log file and stay off the terminal, while InfoToUser, WarningToUser,
// Success, and StatusMessage narrate the session on stdout/stderr. Internal
// packages depend on this interface rather than the concrete logger so tests
// can substitute recording doubles.
type Logger interface {
	// Debug-log channel

	// Info records internal progress detail, such as observed events and
	// batch sizes.
	Info(format string, args ...interface{})

	// Warning records a recoverable oddity; shown to the user only in
	// verbose mode.
	Warning(format string, args ...interface{})

	// Error records a failure; always surfaced on stderr as well.
	Error(format string, args ...interface{})

	// User-facing channel

	// InfoToUser prints an informational line for the user.
	InfoToUser(format string, args ...interface{})

	// WarningToUser prints a warning the user must see regardless of
	// verbosity, such as a failed commit attempt.
	WarningToUser(format string, args ...interface{})

	// Success prints a completed-action line, such as a created checkpoint.
	Success(format string, args ...interface{})

	// StatusMessage prints session narration verbatim, with no level marker.
	StatusMessage(format string, args ...interface{})
}
