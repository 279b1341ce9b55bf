package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/fennwick/scriv/internal/config"
	scrivErrors "github.com/fennwick/scriv/internal/errors"
)

// newWatchCmd constructs the `scriv watch` command. Flag values beat
// environment variables, which beat the configuration file, which beats the
// built-in defaults.
func newWatchCmd(versionInfo config.VersionInfo) *cobra.Command {
	defaults := config.New()
	var configFile string
	var quiet bool

	cmd := &cobra.Command{
		Use:   "watch [path]",
		Short: "Watch a directory and commit settled change batches",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.New()
			cfg.VersionInfo = versionInfo
			if len(args) > 0 {
				cfg.WatchPath = args[0]
			}

			if err := cfg.Load(configFile); err != nil {
				return err
			}

			// Re-apply flags the user actually set so they win over the file
			// and environment.
			flags := cmd.Flags()
			if flags.Changed("recursive") {
				cfg.Recursive = defaults.Recursive
			}
			if flags.Changed("window") {
				cfg.Window = defaults.Window
			}
			if flags.Changed("ignore") {
				cfg.Ignore = defaults.Ignore
			}
			if flags.Changed("push-on-exit") {
				cfg.PushOnExit = defaults.PushOnExit
			}
			if flags.Changed("push-timeout") {
				cfg.PushTimeout = defaults.PushTimeout
			}
			if flags.Changed("ssh-agent") {
				cfg.SSHAgent = defaults.SSHAgent
			}
			if flags.Changed("ssh-key") {
				cfg.SSHKey = defaults.SSHKey
			}
			if flags.Changed("ssh-passphrase") {
				cfg.SSHPassphrase = defaults.SSHPassphrase
			}
			if flags.Changed("debug") {
				cfg.Debug = defaults.Debug
			}
			if flags.Changed("log-file") {
				cfg.LogFile = defaults.LogFile
			}
			if flags.Changed("quiet") {
				cfg.Verbose = !quiet
			}
			cfg.DryRun = defaults.DryRun

			return runWatch(cfg)
		},
	}

	flags := cmd.Flags()
	flags.BoolVarP(&defaults.Recursive, "recursive", "r", defaults.Recursive, "Watch subdirectories as well")
	flags.DurationVar(&defaults.Window, "window", defaults.Window, "Quiet window: a batch commits after this long without new events")
	flags.StringSliceVar(&defaults.Ignore, "ignore", defaults.Ignore, "Directory names to ignore")
	flags.BoolVar(&defaults.DryRun, "dry-run", defaults.DryRun, "Log operations without performing them")
	flags.StringVarP(&configFile, "config", "c", "", "Path to the configuration file")
	flags.BoolVar(&defaults.PushOnExit, "push-on-exit", defaults.PushOnExit, "Push the current branch once at shutdown")
	flags.DurationVar(&defaults.PushTimeout, "push-timeout", defaults.PushTimeout, "Bound on the exit push attempt")
	flags.BoolVar(&defaults.SSHAgent, "ssh-agent", defaults.SSHAgent, "Authenticate the push via the running ssh agent")
	flags.StringVar(&defaults.SSHKey, "ssh-key", defaults.SSHKey, "Authenticate the push with this ssh key file")
	flags.StringVar(&defaults.SSHPassphrase, "ssh-passphrase", defaults.SSHPassphrase, "Passphrase for the ssh key")
	flags.BoolVar(&defaults.Debug, "debug", defaults.Debug, "Enable debug logging")
	flags.StringVar(&defaults.LogFile, "log-file", defaults.LogFile, "Path to the debug log file")
	flags.BoolVarP(&quiet, "quiet", "q", false, "Hide informational messages")

	return cmd
}

// runWatch wires the application together and owns the shutdown sequence.
// A failed but attempted push still exits 0; only setup failures are
// reported as errors.
func runWatch(cfg *config.Config) error {
	app := NewApp(AppOptions{Config: cfg})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigCh)

	runDone := make(chan struct{})
	go superviseShutdown(app, sigCh, runDone, cancel, shutdownStallTimeout, finalFlushTimeout)

	err := app.Run(ctx)
	close(runDone)
	if err != nil && !scrivErrors.Is(err, context.Canceled) {
		_ = app.Close()
		return err
	}

	app.PrintSummary()
	_ = app.Close()
	return nil
}

const (
	// shutdownStallTimeout bounds how long an unanswered first signal waits
	// before the shutdown is treated as stuck.
	shutdownStallTimeout = 30 * time.Second

	// finalFlushTimeout bounds the forced path's wait for the run loop. The
	// final flush commit must land before any push, or the push would
	// capture stale branch state.
	finalFlushTimeout = 10 * time.Second
)

// superviseShutdown drives the signal-initiated shutdown. The first signal
// cancels the run context; the run loop then flushes the pending batch,
// commits it, and performs the exit push itself. A second signal, or a stall,
// escalates to the forced path, which still waits (bounded) for the run loop
// before cleaning up, so a commit in flight at signal time always finishes
// ahead of the push attempt.
func superviseShutdown(app *App, sigCh <-chan os.Signal, runDone <-chan struct{}, cancel context.CancelFunc, stallTimeout, flushTimeout time.Duration) {
	select {
	case sig := <-sigCh:
		fmt.Printf("\nReceived signal %v, stopping scriv...\n", sig)
		cancel()
	case <-runDone:
		return
	}

	select {
	case <-runDone:
		return
	case sig := <-sigCh:
		fmt.Printf("\nReceived signal %v during shutdown, forcing exit...\n", sig)
	case <-time.After(stallTimeout):
		fmt.Println("\nShutdown did not complete in time, forcing exit...")
	}

	select {
	case <-runDone:
		// The run loop finished its flush and push; the normal path prints
		// the summary and releases resources.
		return
	case <-time.After(flushTimeout):
		fmt.Println("\nFinal commit did not complete in time, cleaning up...")
	}

	app.CleanupOnSignal()
	app.exit(0)
}
