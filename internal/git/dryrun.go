package git

import (
	"context"
	"time"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"

	"github.com/fennwick/scriv/internal/common"
)

// DryRun is a commit engine that narrates the operations it would perform
// without touching the repository. Used by `scriv watch --dry-run`.
type DryRun struct {
	root   string
	logger common.Logger
}

// NewDryRun creates a DryRun engine rooted at the given directory.
func NewDryRun(root string, logger common.Logger) *DryRun {
	return &DryRun{root: root, logger: logger}
}

// Root returns the configured root.
func (d *DryRun) Root() string {
	return d.root
}

// CommitBatch logs the staging and commit that a real engine would perform.
func (d *DryRun) CommitBatch(paths []string) Outcome {
	for _, path := range paths {
		d.logger.InfoToUser("[dry-run] would stage %s", path)
	}
	d.logger.InfoToUser("[dry-run] would commit: %s", CommitMessage(len(paths), time.Now()))
	return Outcome{State: StateCommitted, Hash: plumbing.ZeroHash}
}

// Push logs the push that a real engine would perform.
func (d *DryRun) Push(ctx context.Context, auth transport.AuthMethod) error {
	d.logger.InfoToUser("[dry-run] would push current branch to its remote")
	return nil
}
