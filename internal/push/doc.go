// Package push guards the exit-time push behind a single-shot gate.
//
// A Gate performs at most one push per process lifetime regardless of how
// many shutdown triggers fire, bounds the attempt with a timeout so a hung
// transport cannot stall termination, and records a terminal state that
// later invocations observe and skip.
package push
