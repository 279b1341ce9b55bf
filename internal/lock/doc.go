// Package lock provides a file-based locking mechanism to prevent multiple
// scriv instances from watching the same repository simultaneously.
//
// The lock is a PID file under the system temporary directory, keyed by a
// hash of the repository root and held with an exclusive flock. Stale locks
// left by dead processes are detected and reclaimed.
package lock
