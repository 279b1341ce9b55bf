package push

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-git/go-git/v5/plumbing/transport"

	"github.com/fennwick/scriv/internal/auth"
	"github.com/fennwick/scriv/internal/common"
)

// State tracks the single-shot push attempt across the process lifetime.
type State int32

const (
	StateNotAttempted State = iota
	StateSucceeded
	StateFailed
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateNotAttempted:
		return "not attempted"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Pusher is the slice of the commit engine the gate drives.
type Pusher interface {
	Push(ctx context.Context, credential transport.AuthMethod) error
}

// CredentialResolver derives a usable credential from the configured method.
type CredentialResolver interface {
	Resolve(method auth.Method) (transport.AuthMethod, error)
}

// ResolverFunc adapts a function to the CredentialResolver interface.
type ResolverFunc func(method auth.Method) (transport.AuthMethod, error)

// Resolve implements CredentialResolver.
func (f ResolverFunc) Resolve(method auth.Method) (transport.AuthMethod, error) {
	return f(method)
}

// Gate performs at most one push per process lifetime, at shutdown.
// Credential resolution happens inside the attempt, never eagerly, so runs
// that are interrupted before shutdown perform no agent or key I/O. Repeated
// or concurrent invocations observe the terminal state and skip.
type Gate struct {
	pusher   Pusher
	resolver CredentialResolver
	method   auth.Method
	timeout  time.Duration
	logger   common.Logger

	once  sync.Once
	state atomic.Int32
}

// NewGate creates a Gate for the given engine and credential configuration.
func NewGate(pusher Pusher, resolver CredentialResolver, method auth.Method, timeout time.Duration, logger common.Logger) *Gate {
	g := &Gate{
		pusher:   pusher,
		resolver: resolver,
		method:   method,
		timeout:  timeout,
		logger:   logger,
	}
	g.state.Store(int32(StateNotAttempted))
	return g
}

// State reports the current push state.
func (g *Gate) State() State {
	return State(g.state.Load())
}

// Push runs the exit-time push attempt. Failures are reported as a final
// diagnostic and never retried; the process is terminating regardless, so
// the attempt is bounded by the configured timeout. The returned state is
// terminal.
func (g *Gate) Push(ctx context.Context) State {
	g.once.Do(func() {
		g.state.Store(int32(g.attempt(ctx)))
	})
	return g.State()
}

func (g *Gate) attempt(ctx context.Context) State {
	credential, err := g.resolver.Resolve(g.method)
	if err != nil {
		g.logger.Error("Cannot push: %v", err)
		return StateFailed
	}

	pushCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	if err := g.pusher.Push(pushCtx, credential); err != nil {
		g.logger.Error("Push failed: %v", err)
		return StateFailed
	}

	g.logger.Success("Pushed current branch to remote")
	return StateSucceeded
}
