// Package logger implements the application's logging facilities: an
// slog-backed debug log written to an optional log file, and emoji-prefixed
// user-facing messages on stdout/stderr. User-facing and debug channels are
// deliberately separate so a quiet terminal session can still leave a full
// trace on disk.
package logger
