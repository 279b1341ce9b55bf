package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fennwick/scriv/internal/auth"
	"github.com/fennwick/scriv/internal/config"
	scrivErrors "github.com/fennwick/scriv/internal/errors"
	"github.com/fennwick/scriv/internal/git"
	"github.com/fennwick/scriv/internal/push"
	"github.com/fennwick/scriv/internal/watch"
)

// mockLogger records user-facing messages and satisfies logger.Logger.
type mockLogger struct {
	mu       sync.Mutex
	errors   []string
	warnings []string
}

func (l *mockLogger) Info(string, ...interface{})       {}
func (l *mockLogger) InfoToUser(string, ...interface{}) {}
func (l *mockLogger) Warning(format string, _ ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.warnings = append(l.warnings, format)
}
func (l *mockLogger) WarningToUser(format string, _ ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.warnings = append(l.warnings, format)
}
func (l *mockLogger) Error(format string, _ ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errors = append(l.errors, format)
}
func (l *mockLogger) Success(string, ...interface{})       {}
func (l *mockLogger) StatusMessage(string, ...interface{}) {}
func (l *mockLogger) Close() error                         { return nil }

// mockEngine scripts commit outcomes and records every settled batch.
type mockEngine struct {
	mu       sync.Mutex
	root     string
	outcomes []git.Outcome
	batches  [][]string
	pushErr  error
	pushes   atomic.Int32
}

func (e *mockEngine) Root() string { return e.root }

func (e *mockEngine) CommitBatch(paths []string) git.Outcome {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.batches = append(e.batches, paths)
	if len(e.outcomes) == 0 {
		return git.Outcome{State: git.StateCommitted, Hash: plumbing.NewHash("0102030405060708090a0b0c0d0e0f1011121314")}
	}
	outcome := e.outcomes[0]
	e.outcomes = e.outcomes[1:]
	return outcome
}

func (e *mockEngine) Push(context.Context, transport.AuthMethod) error {
	e.pushes.Add(1)
	return e.pushErr
}

func (e *mockEngine) batchCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.batches)
}

// mockSource feeds scripted events and closes its channel on cancellation,
// mirroring the real watcher's contract.
type mockSource struct {
	events chan watch.Event
	closed atomic.Bool
}

func newMockSource() *mockSource {
	return &mockSource{events: make(chan watch.Event, 64)}
}

func (s *mockSource) Run(ctx context.Context) {
	<-ctx.Done()
	close(s.events)
}

func (s *mockSource) Events() <-chan watch.Event { return s.events }

func (s *mockSource) Close() error {
	s.closed.Store(true)
	return nil
}

func (s *mockSource) emit(path string) {
	s.events <- watch.Event{Path: path, Kind: watch.KindModified, At: time.Now()}
}

type mockLocker struct {
	acquireErr error
	acquired   atomic.Int32
	released   atomic.Int32
}

func (l *mockLocker) Acquire() error {
	if l.acquireErr != nil {
		return l.acquireErr
	}
	l.acquired.Add(1)
	return nil
}

func (l *mockLocker) Release() error {
	l.released.Add(1)
	return nil
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.New()
	cfg.WatchPath = t.TempDir()
	cfg.Window = time.Second
	cfg.LogFile = filepath.Join(t.TempDir(), "scriv.log")
	return cfg
}

func TestNewAppRequiresConfig(t *testing.T) {
	assert.Panics(t, func() { NewApp(AppOptions{}) })
}

func TestNewAppDefaultsSystemDependencies(t *testing.T) {
	app := NewApp(AppOptions{Config: config.New()})
	assert.Equal(t, os.Stdout, app.Stdout)
	assert.Equal(t, os.Stderr, app.Stderr)
	assert.NotNil(t, app.exit)
}

func TestInitializeRejectsInvalidConfiguration(t *testing.T) {
	cfg := testConfig(t)
	cfg.Window = 100 * time.Millisecond

	app := NewApp(AppOptions{Config: cfg, Logger: &mockLogger{}})
	err := app.Initialize()
	require.Error(t, err)
	assert.True(t, scrivErrors.Is(err, scrivErrors.ErrInvalidConfiguration))
}

func TestInitializeFailsOutsideRepository(t *testing.T) {
	cfg := testConfig(t)

	app := NewApp(AppOptions{Config: cfg, Logger: &mockLogger{}})
	err := app.Initialize()
	require.Error(t, err)
	assert.True(t, scrivErrors.Is(err, scrivErrors.ErrNotRepository))
}

func TestInitializeDryRunAvoidsRepositoryAndLock(t *testing.T) {
	cfg := testConfig(t)
	cfg.DryRun = true

	app := NewApp(AppOptions{Config: cfg, Logger: &mockLogger{}})
	require.NoError(t, app.Initialize())

	_, isDry := app.Engine.(*git.DryRun)
	assert.True(t, isDry)
	_, isNoop := app.Locker.(noopLocker)
	assert.True(t, isNoop)
	assert.Nil(t, app.Gate, "no gate without push-on-exit")
	require.NoError(t, app.Source.Close())
}

func TestInitializeCreatesGateWhenPushConfigured(t *testing.T) {
	cfg := testConfig(t)
	cfg.DryRun = true
	cfg.PushOnExit = true
	cfg.SSHAgent = true

	app := NewApp(AppOptions{Config: cfg, Logger: &mockLogger{}})
	require.NoError(t, app.Initialize())
	defer func() { _ = app.Source.Close() }()

	require.NotNil(t, app.Gate)
	assert.Equal(t, push.StateNotAttempted, app.Gate.State())
}

func TestAuthMethodSelection(t *testing.T) {
	cfg := testConfig(t)
	app := NewApp(AppOptions{Config: cfg, Logger: &mockLogger{}})

	assert.Equal(t, "ssh-agent", app.authMethod().Mechanism.String())

	cfg.SSHKey = "/home/u/.ssh/id_ed25519"
	cfg.SSHPassphrase = "pw"
	method := app.authMethod()
	assert.Equal(t, "ssh-key", method.Mechanism.String())
	assert.Equal(t, "/home/u/.ssh/id_ed25519", method.KeyPath)
}

func TestRunFailsWhenAlreadyLocked(t *testing.T) {
	cfg := testConfig(t)
	engine := &mockEngine{root: cfg.WatchPath}
	locker := &mockLocker{
		acquireErr: scrivErrors.NewLockError("/tmp/scriv.lock", 1234, scrivErrors.ErrAlreadyRunning),
	}

	app := NewApp(AppOptions{
		Config: cfg,
		Logger: &mockLogger{},
		Engine: engine,
		Locker: locker,
		Source: newMockSource(),
	})

	err := app.Run(context.Background())
	require.Error(t, err)
	assert.True(t, scrivErrors.Is(err, scrivErrors.ErrAlreadyRunning))
}

func TestRunCommitsSettledBatchAndPushesOnExit(t *testing.T) {
	cfg := testConfig(t)
	engine := &mockEngine{root: cfg.WatchPath}
	source := newMockSource()
	locker := &mockLocker{}
	gate := push.NewGate(engine, push.ResolverFunc(func(auth.Method) (transport.AuthMethod, error) {
		return nil, nil
	}), auth.AgentMethod(), cfg.PushTimeout, &mockLogger{})

	app := NewApp(AppOptions{
		Config: cfg,
		Logger: &mockLogger{},
		Engine: engine,
		Locker: locker,
		Source: source,
		Gate:   gate,
		Stdout: &bytes.Buffer{},
		Stderr: &bytes.Buffer{},
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()

	source.emit(filepath.Join(cfg.WatchPath, "a.txt"))
	source.emit(filepath.Join(cfg.WatchPath, "b.txt"))

	require.Eventually(t, func() bool { return engine.batchCount() == 1 }, 5*time.Second, 20*time.Millisecond)

	cancel()
	require.NoError(t, <-done)

	assert.ElementsMatch(t,
		[]string{filepath.Join(cfg.WatchPath, "a.txt"), filepath.Join(cfg.WatchPath, "b.txt")},
		engine.batches[0])
	assert.True(t, source.closed.Load())
	assert.Equal(t, int32(1), engine.pushes.Load())
	assert.Equal(t, push.StateSucceeded, gate.State())
	assert.Equal(t, int32(1), locker.acquired.Load())
}

func TestRunFlushesPendingBatchOnShutdown(t *testing.T) {
	cfg := testConfig(t)
	cfg.Window = time.Hour
	engine := &mockEngine{root: cfg.WatchPath}
	source := newMockSource()

	app := NewApp(AppOptions{
		Config: cfg,
		Logger: &mockLogger{},
		Engine: engine,
		Locker: &mockLocker{},
		Source: source,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()

	source.emit(filepath.Join(cfg.WatchPath, "a.txt"))
	time.Sleep(50 * time.Millisecond)

	// The quiet window never elapses; cancellation must still commit.
	cancel()
	require.NoError(t, <-done)
	assert.Equal(t, 1, engine.batchCount())
}

func TestSettleBatchAccounting(t *testing.T) {
	cfg := testConfig(t)
	log := &mockLogger{}
	engine := &mockEngine{
		root: cfg.WatchPath,
		outcomes: []git.Outcome{
			{State: git.StateCommitted, Hash: plumbing.NewHash("0102030405060708090a0b0c0d0e0f1011121314")},
			{State: git.StateNoChanges},
			{State: git.StateFailed, Err: scrivErrors.ErrRepositoryOp},
		},
	}

	app := NewApp(AppOptions{Config: cfg, Logger: log, Engine: engine})
	app.settleBatch(context.Background(), []string{"a"})
	app.settleBatch(context.Background(), []string{"b"})
	app.settleBatch(context.Background(), []string{"c"})

	assert.Equal(t, 1, app.commitsCount)
	assert.Equal(t, 1, app.noopCount)
	assert.Equal(t, 1, app.failedCount)
	assert.NotEmpty(t, log.errors, "a failed commit is reported")
	assert.NotEmpty(t, log.warnings, "the user learns changes remain uncommitted")
}

func TestCleanupOnSignalPushesAtMostOnce(t *testing.T) {
	cfg := testConfig(t)
	engine := &mockEngine{root: cfg.WatchPath}
	gate := push.NewGate(engine, push.ResolverFunc(func(auth.Method) (transport.AuthMethod, error) {
		return nil, nil
	}), auth.AgentMethod(), cfg.PushTimeout, &mockLogger{})

	app := NewApp(AppOptions{
		Config: cfg,
		Logger: &mockLogger{},
		Engine: engine,
		Locker: &mockLocker{},
		Gate:   gate,
		Stdout: &bytes.Buffer{},
		Stderr: &bytes.Buffer{},
	})

	app.CleanupOnSignal()
	app.CleanupOnSignal()

	assert.Equal(t, int32(1), engine.pushes.Load())
	assert.Equal(t, push.StateSucceeded, gate.State())
}

func TestForcedShutdownWaitsForRunLoop(t *testing.T) {
	cfg := testConfig(t)
	engine := &mockEngine{root: cfg.WatchPath}
	gate := push.NewGate(engine, push.ResolverFunc(func(auth.Method) (transport.AuthMethod, error) {
		return nil, nil
	}), auth.AgentMethod(), cfg.PushTimeout, &mockLogger{})

	var exits atomic.Int32
	app := NewApp(AppOptions{
		Config: cfg,
		Logger: &mockLogger{},
		Engine: engine,
		Locker: &mockLocker{},
		Gate:   gate,
		Exit:   func(int) { exits.Add(1) },
		Stdout: &bytes.Buffer{},
		Stderr: &bytes.Buffer{},
	})

	sigCh := make(chan os.Signal, 2)
	runDone := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		superviseShutdown(app, sigCh, runDone, func() {}, time.Hour, time.Hour)
	}()

	// Two rapid signals escalate to the forced path while the final flush
	// commit is still in flight.
	sigCh <- syscall.SIGINT
	sigCh <- syscall.SIGINT
	time.Sleep(100 * time.Millisecond)

	assert.Zero(t, engine.pushes.Load(), "no push while the flush commit is still running")
	assert.Zero(t, exits.Load())

	// The flush lands and the run loop returns; the normal shutdown path
	// owns the push and the summary from here.
	close(runDone)
	<-done

	assert.Zero(t, engine.pushes.Load())
	assert.Zero(t, exits.Load())
	assert.Equal(t, push.StateNotAttempted, gate.State())
}

func TestForcedShutdownCleansUpWhenFlushStalls(t *testing.T) {
	cfg := testConfig(t)
	engine := &mockEngine{root: cfg.WatchPath}
	gate := push.NewGate(engine, push.ResolverFunc(func(auth.Method) (transport.AuthMethod, error) {
		return nil, nil
	}), auth.AgentMethod(), cfg.PushTimeout, &mockLogger{})

	var exits atomic.Int32
	app := NewApp(AppOptions{
		Config: cfg,
		Logger: &mockLogger{},
		Engine: engine,
		Locker: &mockLocker{},
		Gate:   gate,
		Exit:   func(int) { exits.Add(1) },
		Stdout: &bytes.Buffer{},
		Stderr: &bytes.Buffer{},
	})

	sigCh := make(chan os.Signal, 2)
	runDone := make(chan struct{}) // never closed: the run loop is stuck
	done := make(chan struct{})
	go func() {
		defer close(done)
		superviseShutdown(app, sigCh, runDone, func() {}, time.Hour, 50*time.Millisecond)
	}()

	sigCh <- syscall.SIGINT
	sigCh <- syscall.SIGINT
	<-done

	assert.Equal(t, int32(1), engine.pushes.Load())
	assert.Equal(t, push.StateSucceeded, gate.State())
	assert.Equal(t, int32(1), exits.Load())
}

func TestSupervisorExitsQuietlyWhenRunFinishesFirst(t *testing.T) {
	cfg := testConfig(t)
	var canceled atomic.Int32
	app := NewApp(AppOptions{Config: cfg, Logger: &mockLogger{}, Stdout: &bytes.Buffer{}, Stderr: &bytes.Buffer{}})

	sigCh := make(chan os.Signal, 2)
	runDone := make(chan struct{})
	close(runDone)

	done := make(chan struct{})
	go func() {
		defer close(done)
		superviseShutdown(app, sigCh, runDone, func() { canceled.Add(1) }, time.Hour, time.Hour)
	}()
	<-done

	assert.Zero(t, canceled.Load())
}

func TestCloseReleasesLock(t *testing.T) {
	cfg := testConfig(t)
	locker := &mockLocker{}

	app := NewApp(AppOptions{Config: cfg, Logger: &mockLogger{}, Locker: locker})
	require.NoError(t, app.Close())
	assert.Equal(t, int32(1), locker.released.Load())
}

func TestShortHash(t *testing.T) {
	assert.Equal(t, "01020304", shortHash("0102030405060708090a"))
	assert.Equal(t, "abc", shortHash("abc"))
}
