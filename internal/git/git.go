package git

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"

	"github.com/fennwick/scriv/internal/common"
	"github.com/fennwick/scriv/internal/errors"
)

// MessagePrefix starts every commit message this tool creates. Commits are
// otherwise indistinguishable from manually authored ones.
const MessagePrefix = "scriv: checkpoint"

// CommitMessage renders the fixed message format for a settled batch.
func CommitMessage(pathCount int, at time.Time) string {
	return fmt.Sprintf("%s %d file(s) @ %s", MessagePrefix, pathCount, at.UTC().Format(time.RFC3339))
}

// OutcomeState classifies the result of one commit attempt.
type OutcomeState int

const (
	// StateNoChanges means staging produced no difference from HEAD.
	// Not an error: a change reverted within the quiet window lands here.
	StateNoChanges OutcomeState = iota

	// StateCommitted means a new commit was created.
	StateCommitted

	// StateFailed means staging or commit creation failed for a cause not
	// expected in normal operation.
	StateFailed
)

// Outcome is the result of one commit attempt. Never persisted; consumed by
// logging only.
type Outcome struct {
	State OutcomeState
	Hash  plumbing.Hash
	Err   error
}

// Repository wraps a git repository whose working tree is being watched.
// All mutation happens through CommitBatch on a single goroutine; Push only
// reads branch state and performs network I/O.
type Repository struct {
	repo   *gogit.Repository
	root   string
	logger common.Logger
}

// Open locates the repository enclosing path (walking up to the nearest
// directory containing repository metadata) and returns a Repository rooted
// at its working tree.
func Open(path string, logger common.Logger) (*Repository, error) {
	repo, err := gogit.PlainOpenWithOptions(path, &gogit.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		if errors.Is(err, gogit.ErrRepositoryNotExists) {
			return nil, errors.Wrapf(errors.ErrNotRepository, "no repository found at or above %s", path)
		}
		return nil, errors.NewRepositoryError("open", []string{path},
			errors.Wrap(errors.ErrRepositoryOp, err.Error()))
	}

	wt, err := repo.Worktree()
	if err != nil {
		return nil, errors.NewRepositoryError("worktree", []string{path},
			errors.Wrap(errors.ErrRepositoryOp, err.Error()))
	}

	return &Repository{
		repo:   repo,
		root:   wt.Filesystem.Root(),
		logger: logger,
	}, nil
}

// Root returns the repository's working tree root.
func (r *Repository) Root() string {
	return r.root
}

// CommitBatch stages every path in the settled batch and attempts to create
// a commit. Paths that vanished between event capture and staging are staged
// as deletions. A batch whose net effect leaves the index identical to HEAD
// yields StateNoChanges, never an empty commit.
func (r *Repository) CommitBatch(paths []string) Outcome {
	wt, err := r.repo.Worktree()
	if err != nil {
		return failed("worktree", paths, err)
	}

	for _, path := range paths {
		rel, err := r.relative(path)
		if err != nil {
			r.logger.Warning("Skipping path outside working tree: %s", path)
			continue
		}

		if _, statErr := os.Stat(path); os.IsNotExist(statErr) {
			// Race with a subsequent delete: stage as a deletion. A path
			// that was never tracked simply has nothing to stage.
			if _, rmErr := wt.Remove(rel); rmErr != nil {
				r.logger.Info("Nothing to stage for vanished path %s: %v", rel, rmErr)
			}
			continue
		}

		if _, addErr := wt.Add(rel); addErr != nil {
			return failed("add", paths, addErr)
		}
	}

	staged, err := r.hasStagedChanges(wt)
	if err != nil {
		return failed("status", paths, err)
	}
	if !staged {
		return Outcome{State: StateNoChanges}
	}

	hash, err := wt.Commit(CommitMessage(len(paths), time.Now()), &gogit.CommitOptions{})
	if err != nil {
		if errors.Is(err, gogit.ErrEmptyCommit) {
			return Outcome{State: StateNoChanges}
		}
		return failed("commit", paths, err)
	}

	return Outcome{State: StateCommitted, Hash: hash}
}

// Push pushes the current branch to the remote it tracks, falling back to
// origin when no upstream is configured. Already-up-to-date is success.
func (r *Repository) Push(ctx context.Context, auth transport.AuthMethod) error {
	remoteName, err := r.remoteName()
	if err != nil {
		return errors.NewPushError("", errors.Wrap(errors.ErrPushFailed, err.Error()))
	}

	err = r.repo.PushContext(ctx, &gogit.PushOptions{
		RemoteName: remoteName,
		Auth:       auth,
	})
	if err != nil {
		if errors.Is(err, gogit.NoErrAlreadyUpToDate) {
			r.logger.Info("Remote %s already up to date", remoteName)
			return nil
		}
		return errors.NewPushError(remoteName, errors.Wrap(errors.ErrPushFailed, err.Error()))
	}

	return nil
}

// remoteName resolves the remote the current branch tracks.
func (r *Repository) remoteName() (string, error) {
	remote := gogit.DefaultRemoteName

	head, err := r.repo.Head()
	if err != nil {
		return "", err
	}

	cfg, err := r.repo.Config()
	if err != nil {
		return "", err
	}

	if branch, ok := cfg.Branches[head.Name().Short()]; ok && branch.Remote != "" {
		remote = branch.Remote
	}

	return remote, nil
}

// relative converts an absolute event path into a slash-separated path
// relative to the working tree root, as the index expects.
func (r *Repository) relative(path string) (string, error) {
	rel, err := filepath.Rel(r.root, path)
	if err != nil {
		return "", err
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", errors.Errorf("path %s is outside %s", path, r.root)
	}
	return filepath.ToSlash(rel), nil
}

// hasStagedChanges reports whether the index differs from HEAD.
func (r *Repository) hasStagedChanges(wt *gogit.Worktree) (bool, error) {
	status, err := wt.Status()
	if err != nil {
		return false, err
	}

	for _, fileStatus := range status {
		switch fileStatus.Staging {
		case gogit.Unmodified, gogit.Untracked:
		default:
			return true, nil
		}
	}
	return false, nil
}

func failed(operation string, paths []string, err error) Outcome {
	return Outcome{
		State: StateFailed,
		Err: errors.NewRepositoryError(operation, paths,
			errors.Wrap(errors.ErrRepositoryOp, err.Error())),
	}
}
