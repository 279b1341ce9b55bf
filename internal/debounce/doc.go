// Package debounce converts a noisy stream of change events into discrete
// settled batches.
//
// Events arriving within the quiet window of each other coalesce into a
// single pending batch; the batch settles once the window elapses with no
// new events. Settle handlers run synchronously inside the batcher's loop,
// so at most one is ever in flight and a burst generated while one runs
// simply becomes the next batch.
package debounce
