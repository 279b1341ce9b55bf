package watch

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/fennwick/scriv/internal/common"
	"github.com/fennwick/scriv/internal/errors"
)

// Kind classifies a filesystem change.
type Kind int

const (
	KindCreated Kind = iota
	KindModified
	KindRemoved
	KindRenamed
)

// String returns a human-readable name for the change kind.
func (k Kind) String() string {
	switch k {
	case KindCreated:
		return "created"
	case KindModified:
		return "modified"
	case KindRemoved:
		return "removed"
	case KindRenamed:
		return "renamed"
	default:
		return "unknown"
	}
}

// Event is a single path change observed under the watch root.
// Events are ephemeral: they are consumed immediately by the batcher.
type Event struct {
	Path string
	Kind Kind
	At   time.Time
}

// Options configures a Watcher.
type Options struct {
	// Root is the absolute directory to watch.
	Root string

	// Recursive watches descendants as well, subscribing newly created
	// subdirectories dynamically.
	Recursive bool

	// Ignore lists directory names whose events are dropped entirely.
	// The repository metadata directory is always in this list.
	Ignore []string
}

// Watcher wraps OS-level filesystem notification for a single watch root and
// produces a stream of Events until stopped. It is not restartable.
type Watcher struct {
	fs        *fsnotify.Watcher
	root      string
	recursive bool
	ignore    map[string]struct{}
	events    chan Event
	logger    common.Logger
}

// New establishes the filesystem watch. It fails with a WatchError wrapping
// ErrWatchSetup when the root does not exist, is not a directory, or cannot
// be read; such failures are fatal to the caller since there is nothing
// meaningful to watch.
func New(opts Options, logger common.Logger) (*Watcher, error) {
	info, err := os.Stat(opts.Root)
	if err != nil {
		return nil, errors.NewWatchError(opts.Root,
			errors.Wrap(errors.ErrWatchSetup, err.Error()))
	}
	if !info.IsDir() {
		return nil, errors.NewWatchError(opts.Root,
			errors.Wrap(errors.ErrWatchSetup, "watch root is not a directory"))
	}
	if _, err := os.ReadDir(opts.Root); err != nil {
		return nil, errors.NewWatchError(opts.Root,
			errors.Wrap(errors.ErrWatchSetup, err.Error()))
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.NewWatchError(opts.Root,
			errors.Wrap(errors.ErrWatchSetup, err.Error()))
	}

	w := &Watcher{
		fs:        fsw,
		root:      opts.Root,
		recursive: opts.Recursive,
		ignore:    make(map[string]struct{}, len(opts.Ignore)),
		events:    make(chan Event, 64),
		logger:    logger,
	}
	for _, name := range opts.Ignore {
		w.ignore[name] = struct{}{}
	}

	if err := w.subscribe(opts.Root); err != nil {
		_ = fsw.Close()
		return nil, err
	}

	return w, nil
}

// Events returns the single-consumer event queue. The channel is closed when
// Run returns.
func (w *Watcher) Events() <-chan Event {
	return w.events
}

// Run owns the notification loop. It blocks until the context is canceled or
// the underlying watcher is closed, then closes the event channel so the
// consumer can drain.
func (w *Watcher) Run(ctx context.Context) {
	defer close(w.events)

	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-w.fs.Events:
			if !ok {
				return
			}
			w.handle(ctx, ev)

		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			if err != nil {
				w.logger.Warning("Watcher error: %v", err)
			}
		}
	}
}

// Close stops OS-level notification. Safe to call while Run is blocked.
func (w *Watcher) Close() error {
	return w.fs.Close()
}

// handle translates one fsnotify event into zero or more Events.
func (w *Watcher) handle(ctx context.Context, ev fsnotify.Event) {
	if w.ignored(ev.Name) {
		return
	}

	switch {
	case ev.Has(fsnotify.Create):
		info, err := os.Stat(ev.Name)
		if err == nil && info.IsDir() {
			// A directory itself never reaches the commit pipeline; subscribe
			// to it so changes under it are not missed, and rescan for files
			// written before the subscription landed.
			if w.recursive {
				if err := w.subscribe(ev.Name); err != nil {
					w.logger.Warning("Failed to watch new directory %s: %v", ev.Name, err)
					return
				}
				w.rescan(ctx, ev.Name)
			}
			return
		}
		w.emit(ctx, Event{Path: ev.Name, Kind: KindCreated, At: time.Now()})

	case ev.Has(fsnotify.Write):
		w.emit(ctx, Event{Path: ev.Name, Kind: KindModified, At: time.Now()})

	case ev.Has(fsnotify.Remove):
		w.emit(ctx, Event{Path: ev.Name, Kind: KindRemoved, At: time.Now()})

	case ev.Has(fsnotify.Rename):
		// Reported on the old path; the new path arrives as a Create.
		w.emit(ctx, Event{Path: ev.Name, Kind: KindRenamed, At: time.Now()})

	default:
		// Chmod-only churn carries no committable content change.
	}
}

func (w *Watcher) emit(ctx context.Context, ev Event) {
	select {
	case w.events <- ev:
	case <-ctx.Done():
	}
}

// subscribe registers dir, and in recursive mode every non-ignored
// descendant directory, with the OS watcher.
func (w *Watcher) subscribe(dir string) error {
	if !w.recursive {
		if err := w.fs.Add(dir); err != nil {
			return errors.NewWatchError(dir, errors.Wrap(errors.ErrWatchSetup, err.Error()))
		}
		w.logger.Info("Watching %s", dir)
		return nil
	}

	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return errors.NewWatchError(path, errors.Wrap(errors.ErrWatchSetup, err.Error()))
		}
		if !d.IsDir() {
			return nil
		}
		if w.ignored(path) {
			return filepath.SkipDir
		}
		if err := w.fs.Add(path); err != nil {
			return errors.NewWatchError(path, errors.Wrap(errors.ErrWatchSetup, err.Error()))
		}
		w.logger.Info("Watching %s", path)
		return nil
	})
}

// rescan emits Created events for files already present under dir. Used when
// a directory appears after startup: files may land in it before its watch
// is active.
func (w *Watcher) rescan(ctx context.Context, dir string) {
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if w.ignored(path) {
				return filepath.SkipDir
			}
			return nil
		}
		if !w.ignored(path) {
			w.emit(ctx, Event{Path: path, Kind: KindCreated, At: time.Now()})
		}
		return nil
	})
}

// ignored reports whether any element of path, relative to the watch root,
// names an ignored directory. Filtering here is a hard invariant: events for
// the repository metadata directory must never reach the commit pipeline or
// the watcher would trigger itself.
func (w *Watcher) ignored(path string) bool {
	rel, err := filepath.Rel(w.root, path)
	if err != nil {
		return true
	}
	if rel == "." {
		return false
	}
	for _, element := range strings.Split(rel, string(filepath.Separator)) {
		if _, ok := w.ignore[element]; ok {
			return true
		}
	}
	return false
}
