package debounce

import (
	"context"
	"sort"
	"time"

	"github.com/fennwick/scriv/internal/common"
	"github.com/fennwick/scriv/internal/watch"
)

// Batch accumulates distinct changed paths since the last settle, plus the
// time of the most recent event observed.
type Batch struct {
	paths     map[string]struct{}
	lastEvent time.Time
}

func newBatch() *Batch {
	return &Batch{paths: make(map[string]struct{})}
}

func (b *Batch) add(path string, at time.Time) {
	b.paths[path] = struct{}{}
	if at.After(b.lastEvent) {
		b.lastEvent = at
	}
}

// Len returns the number of distinct paths in the batch.
func (b *Batch) Len() int {
	return len(b.paths)
}

// Paths returns the batch contents as a sorted slice.
func (b *Batch) Paths() []string {
	out := make([]string, 0, len(b.paths))
	for p := range b.paths {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// SettleFunc receives a drained batch snapshot. The batcher guarantees that
// at most one invocation is in flight at any time.
type SettleFunc func(ctx context.Context, paths []string)

// Batcher coalesces bursts of change events into settled batches. Each
// incoming event (re)arms a quiet-window timer; when the timer fires with no
// intervening event the pending batch is handed to the settle function and
// reset. A continuously active directory therefore defers settling
// indefinitely; that is the intended trade-off, favoring coalescing over
// frequent small commits.
type Batcher struct {
	window  time.Duration
	settle  SettleFunc
	logger  common.Logger
	pending *Batch
}

// New creates a Batcher with the given quiet window.
func New(window time.Duration, settle SettleFunc, logger common.Logger) *Batcher {
	return &Batcher{
		window:  window,
		settle:  settle,
		logger:  logger,
		pending: newBatch(),
	}
}

// Run consumes events until the channel closes or the context is canceled,
// then flushes any non-empty pending batch (flush-and-commit, never discard)
// and returns.
//
// Settling happens synchronously inside this loop, so commit attempts are
// strictly serialized: events arriving while a settle is in flight queue on
// the channel and form the next batch, whose timer only starts counting once
// the settle has returned.
func (b *Batcher) Run(ctx context.Context, events <-chan watch.Event) {
	timer := time.NewTimer(b.window)
	if !timer.Stop() {
		<-timer.C
	}
	var armed <-chan time.Time

	defer b.flush(ctx)

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			b.pending.add(ev.Path, ev.At)
			b.logger.Info("Change observed: %s (%s), batch size now %d", ev.Path, ev.Kind, b.pending.Len())
			if armed != nil && !timer.Stop() {
				<-timer.C
			}
			timer.Reset(b.window)
			armed = timer.C

		case <-armed:
			armed = nil
			b.settleNow(ctx)

		case <-ctx.Done():
			// The change source closes the channel once it observes the
			// cancellation; drain what it already captured so the final
			// flush commits every observed change.
			for ev := range events {
				b.pending.add(ev.Path, ev.At)
			}
			return
		}
	}
}

// settleNow hands the current batch to the settle function and resets the
// pending batch to empty. The reset happens before the call so the drained
// snapshot is moved, not shared.
func (b *Batcher) settleNow(ctx context.Context) {
	if b.pending.Len() == 0 {
		return
	}
	paths := b.pending.Paths()
	last := b.pending.lastEvent
	b.pending = newBatch()

	b.logger.Info("Batch settled with %d path(s), last event at %s", len(paths), last.Format(time.RFC3339))
	b.settle(ctx, paths)
}

// flush performs the shutdown settle. The commit must be allowed to finish
// even though the run context is already canceled, so a detached context is
// used.
func (b *Batcher) flush(ctx context.Context) {
	if b.pending.Len() == 0 {
		return
	}
	b.logger.Info("Flushing %d pending path(s) before shutdown", b.pending.Len())
	b.settleNow(context.WithoutCancel(ctx))
}
