// Command scriv watches a directory tree and automatically commits settled
// batches of changes, optionally pushing the current branch once at
// shutdown.
package main
