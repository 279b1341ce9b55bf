package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/go-git/go-git/v5/plumbing/transport"

	"github.com/fennwick/scriv/internal/auth"
	"github.com/fennwick/scriv/internal/config"
	"github.com/fennwick/scriv/internal/debounce"
	scrivErrors "github.com/fennwick/scriv/internal/errors"
	"github.com/fennwick/scriv/internal/git"
	"github.com/fennwick/scriv/internal/lock"
	"github.com/fennwick/scriv/internal/logger"
	"github.com/fennwick/scriv/internal/push"
	"github.com/fennwick/scriv/internal/watch"
)

// Committer performs repository operations for settled batches and the
// exit-time push
type Committer interface {
	Root() string
	CommitBatch(paths []string) git.Outcome
	Push(ctx context.Context, credential transport.AuthMethod) error
}

// ChangeSource produces the raw change event stream
type ChangeSource interface {
	Run(ctx context.Context)
	Events() <-chan watch.Event
	Close() error
}

// PushGate performs the single-shot exit push
type PushGate interface {
	Push(ctx context.Context) push.State
	State() push.State
}

// Locker manages file locking
type Locker interface {
	Acquire() error
	Release() error
}

// Logger alias to logger.Logger
type Logger = logger.Logger

// AppOptions contains app configuration and dependencies
type AppOptions struct {
	// Required
	Config *config.Config

	// Optional components
	Logger   Logger
	Locker   Locker
	Engine   Committer
	Source   ChangeSource
	Gate     PushGate
	Resolver push.CredentialResolver

	// I/O dependencies
	Stdout io.Writer
	Stderr io.Writer

	// System dependencies
	Exit func(code int)
}

// App is the main scriv application
type App struct {
	Config   *config.Config
	Logger   Logger
	Locker   Locker
	Engine   Committer
	Source   ChangeSource
	Gate     PushGate
	Resolver push.CredentialResolver

	// I/O streams
	Stdout io.Writer
	Stderr io.Writer

	// System dependencies
	exit func(code int)

	// Session accounting
	startTime    time.Time
	commitsCount int
	noopCount    int
	failedCount  int
}

// NewApp creates an App with custom dependencies
func NewApp(opts AppOptions) *App {
	if opts.Config == nil {
		panic("Config is required in AppOptions")
	}

	app := &App{
		Config:   opts.Config,
		Logger:   opts.Logger,
		Locker:   opts.Locker,
		Engine:   opts.Engine,
		Source:   opts.Source,
		Gate:     opts.Gate,
		Resolver: opts.Resolver,
		Stdout:   opts.Stdout,
		Stderr:   opts.Stderr,
		exit:     opts.Exit,
	}

	if app.Stdout == nil {
		app.Stdout = os.Stdout
	}
	if app.Stderr == nil {
		app.Stderr = os.Stderr
	}
	if app.exit == nil {
		app.exit = os.Exit
	}

	return app
}

// Initialize sets up components not provided during construction
func (a *App) Initialize() error {
	if err := a.Config.Finalize(); err != nil {
		if scrivErrors.Is(err, scrivErrors.ErrInvalidConfiguration) {
			return err
		}
		return scrivErrors.Wrap(scrivErrors.ErrInvalidConfiguration, err.Error())
	}

	if a.Logger == nil {
		a.Logger = logger.New(a.Config.Debug, a.Config.LogFile, a.Config.Verbose)
	}

	if a.Engine == nil {
		if a.Config.DryRun {
			a.Engine = git.NewDryRun(a.Config.WatchPath, a.Logger)
		} else {
			engine, err := git.Open(a.Config.WatchPath, a.Logger)
			if err != nil {
				return err
			}
			a.Engine = engine
		}
	}

	if a.Locker == nil {
		if a.Config.DryRun {
			a.Locker = noopLocker{}
		} else {
			locker, err := lock.New(a.Engine.Root())
			if err != nil {
				return scrivErrors.Wrap(err, "failed to initialize lock")
			}
			a.Locker = locker
		}
	}

	if a.Source == nil {
		source, err := watch.New(watch.Options{
			Root:      a.Config.WatchPath,
			Recursive: a.Config.Recursive,
			Ignore:    a.Config.Ignore,
		}, a.Logger)
		if err != nil {
			return err
		}
		a.Source = source
	}

	if a.Gate == nil && a.Config.PushOnExit {
		resolver := a.Resolver
		if resolver == nil {
			if a.Config.DryRun {
				// Dry runs never touch the agent or key material.
				resolver = push.ResolverFunc(func(auth.Method) (transport.AuthMethod, error) {
					return nil, nil
				})
			} else {
				resolver = auth.NewResolver(a.Logger)
			}
		}
		a.Gate = push.NewGate(a.Engine, resolver, a.authMethod(), a.Config.PushTimeout, a.Logger)
	}

	return nil
}

// authMethod maps the validated configuration onto a credential method.
func (a *App) authMethod() auth.Method {
	if a.Config.SSHKey != "" {
		return auth.KeyFileMethod(a.Config.SSHKey, a.Config.SSHPassphrase)
	}
	return auth.AgentMethod()
}

// Run executes the application with the given context. It blocks until the
// context is canceled, then drains the final batch and, if configured,
// performs the exit push.
func (a *App) Run(ctx context.Context) error {
	if err := a.Initialize(); err != nil {
		return err
	}

	a.startTime = time.Now()

	if err := a.Locker.Acquire(); err != nil {
		if scrivErrors.Is(err, scrivErrors.ErrAlreadyRunning) {
			return err
		}
		return scrivErrors.Wrap(scrivErrors.ErrLockAcquisitionFailure, err.Error())
	}

	a.displayStartupInfo()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		a.Source.Run(ctx)
	}()

	batcher := debounce.New(a.Config.Window, a.settleBatch, a.Logger)
	batcher.Run(ctx, a.Source.Events())

	// The batcher has flushed its final commit; the source loop is done or
	// about to be.
	wg.Wait()
	if err := a.Source.Close(); err != nil {
		a.Logger.Warning("Failed to close watcher: %v", err)
	}

	if a.Gate != nil {
		// The run context is already canceled; the push gets its own,
		// bounded inside the gate by the configured timeout.
		a.Gate.Push(context.WithoutCancel(ctx))
	}

	return nil
}

// settleBatch is the debounce batcher's settle function: one commit attempt
// per settled batch, strictly serialized by the batcher.
func (a *App) settleBatch(ctx context.Context, paths []string) {
	outcome := a.Engine.CommitBatch(paths)

	switch outcome.State {
	case git.StateCommitted:
		a.commitsCount++
		if outcome.Hash.IsZero() {
			return
		}
		a.Logger.Success("Checkpoint %s (%d file(s))", shortHash(outcome.Hash.String()), len(paths))

	case git.StateNoChanges:
		a.noopCount++
		a.Logger.Info("Nothing to commit: working tree matches HEAD after staging %d path(s)", len(paths))
		if a.Config.Verbose {
			a.Logger.InfoToUser("No changes to commit")
		}

	case git.StateFailed:
		a.failedCount++
		a.Logger.Error("Commit failed: %v", outcome.Err)
		a.Logger.WarningToUser("Changes remain uncommitted; will retry on the next settled batch")
	}
}

// displayStartupInfo outputs the active configuration to the user
func (a *App) displayStartupInfo() {
	a.Logger.StatusMessage("🔄 scriv started at %s", a.startTime.Format("2006-01-02 15:04:05"))
	a.Logger.StatusMessage("📂 Watching: %s (recursive: %t)", a.Config.WatchPath, a.Config.Recursive)
	a.Logger.StatusMessage("📦 Repository: %s", a.Engine.Root())
	a.Logger.StatusMessage("⏱️  Quiet window: %s", a.Config.Window)
	a.Logger.StatusMessage("🚀 Push on exit: %t", a.Config.PushOnExit)
	if a.Config.DryRun {
		a.Logger.StatusMessage("🧪 Dry run: repository will not be modified")
	}
	a.Logger.StatusMessage("❓ Press Ctrl+C to stop and view session summary")
}

// PrintSummary prints a summary of the watch session
func (a *App) PrintSummary() {
	duration := time.Since(a.startTime)
	hours := int(duration.Hours())
	minutes := int(duration.Minutes()) % 60
	seconds := int(duration.Seconds()) % 60

	a.Logger.StatusMessage("")
	a.Logger.StatusMessage("---------------------------------------------")
	a.Logger.StatusMessage("📊 scriv Session Summary")
	a.Logger.StatusMessage("---------------------------------------------")
	a.Logger.StatusMessage("✅ Checkpoints committed: %d", a.commitsCount)
	a.Logger.StatusMessage("⏭️  Settles with no changes: %d", a.noopCount)
	if a.failedCount > 0 {
		a.Logger.StatusMessage("❌ Failed commit attempts: %d", a.failedCount)
	}
	a.Logger.StatusMessage("⏱️  Session duration: %dh %dm %ds", hours, minutes, seconds)
	if a.Gate != nil {
		a.Logger.StatusMessage("🚀 Push: %s", a.Gate.State())
	}
	a.Logger.StatusMessage("---------------------------------------------")
	a.Logger.StatusMessage("🛑 scriv stopped at %s", time.Now().Format("2006-01-02 15:04:05"))
}

// Close releases resources held by the App
func (a *App) Close() error {
	var errs []error

	if a.Locker != nil {
		if err := a.Locker.Release(); err != nil {
			if a.Logger != nil {
				a.Logger.Error("Failed to release lock during cleanup: %v", err)
			} else {
				_, _ = fmt.Fprintf(a.Stderr, "❌ Failed to release lock during cleanup: %v\n", err)
			}
			errs = append(errs, err)
		}
	}

	if a.Logger != nil {
		if err := a.Logger.Close(); err != nil {
			_, _ = fmt.Fprintf(a.Stderr, "❌ Failed to close logger: %v\n", err)
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// CleanupOnSignal runs the forced-shutdown path: the push gate (which skips
// if an attempt already ran), the summary, and resource cleanup.
func (a *App) CleanupOnSignal() {
	if a.Gate != nil {
		a.Gate.Push(context.Background())
	}

	a.PrintSummary()

	if err := a.Close(); err != nil {
		_, _ = fmt.Fprintf(a.Stderr, "❌ Error during cleanup: %v\n", err)
	}
}

// noopLocker satisfies Locker for dry runs, which never mutate the index.
type noopLocker struct{}

func (noopLocker) Acquire() error { return nil }
func (noopLocker) Release() error { return nil }

func shortHash(hash string) string {
	if len(hash) > 8 {
		return hash[:8]
	}
	return hash
}
