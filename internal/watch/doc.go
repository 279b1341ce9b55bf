// Package watch wraps OS-level filesystem notification into a filtered
// stream of change events for a single watch root.
//
// A Watcher produces a lazy, unbounded, non-restartable sequence of Events
// until stopped. In recursive mode it walks the tree at startup and
// dynamically subscribes subdirectories created later, rescanning them so
// files written before the subscription landed are not missed.
//
// Filtering is a correctness requirement, not an optimization: events under
// the repository metadata directory are dropped before they reach the
// consumer, otherwise every commit would retrigger the watcher.
package watch
