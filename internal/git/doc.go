// Package git implements the commit engine: staging settled batches,
// creating checkpoint commits, and pushing the current branch.
//
// Operations are built on go-git rather than the git executable, so the
// engine needs no external tooling and observes the repository through the
// same index the commits are written to. A batch whose staged state matches
// HEAD yields a no-op outcome instead of an empty commit; paths that vanish
// between event capture and staging are staged as deletions.
//
// The DryRun engine substitutes narration for mutation and backs the
// --dry-run flag.
package git
