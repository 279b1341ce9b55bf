// Package scriv is an automatic change-to-commit pipeline for git working trees.
//
// scriv watches a directory, coalesces bursts of filesystem events into
// settled batches using a quiet-window debounce, and turns each settled batch
// into a checkpoint commit. At orderly shutdown it can push the current
// branch to its remote, authenticating through the running ssh agent or an
// on-disk key file.
//
// # Quick Start
//
//	# Watch the current directory's repository
//	scriv watch
//
//	# Watch recursively and push once when stopping
//	scriv watch -r --push-on-exit --ssh-agent
//
//	# Press Ctrl+C to stop; pending changes are flushed into a final commit
//
// # Module Structure
//
// The module is organized into these packages:
//
//   - cmd/scriv: Command-line interface and orchestration
//   - internal/watch: Filesystem change source (fsnotify)
//   - internal/debounce: Quiet-window batching of change events
//   - internal/git: Staging, commit, and push operations (go-git)
//   - internal/auth: Credential resolution for the exit push
//   - internal/push: Single-shot push gate
//   - internal/config: Configuration loading and validation
//   - internal/lock: Per-repository single-instance locking
//   - internal/logger: Logging facilities
//   - internal/errors: Error handling utilities
//
// # Design Philosophy
//
//   - Coalesce, don't spam: one commit per burst of related changes
//   - Robustness: commit failures are contained per batch; the watch goes on
//   - Safety: the exit push happens at most once and never blocks termination
//   - Transparency: every staged batch, commit, and push is reported
package scriv
