// Package common provides shared interfaces used throughout the
// application, chiefly the Logger contract that separates internal debug
// logging from user-facing output.
package common
