package repoplugin

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"

	"github.com/datashades/converge/internal/model"
	"github.com/datashades/converge/internal/plugin"
	"github.com/datashades/converge/internal/plugins/ownership"
	"github.com/datashades/converge/internal/resource"
)

type repoPlugin struct{}

// New creates the git checkout back end.
func New() plugin.Plugin {
	return &repoPlugin{}
}

var _ plugin.Plugin = (*repoPlugin)(nil)

func (p *repoPlugin) Metadata() plugin.Metadata {
	return plugin.Metadata{
		Name:        "git_checkout",
		Kind:        resource.KindGitCheckout,
		Description: "Fetches an existing source tree and checks out a revision.",
	}
}

type repoEvaluationData struct {
	HeadBefore plumbing.Hash
}

// Evaluate always asks for a fetch: whether the remote moved is only known
// after talking to it.
func (p *repoPlugin) Evaluate(ctx context.Context, desc *resource.Descriptor) (*model.EvaluationResult, error) {
	spec, err := specOf(desc)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, plugin.NewStateError(desc.Identity, err)
	}

	if _, err := os.Stat(spec.Path); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, plugin.NewStateError(desc.Identity, fmt.Errorf("cannot access %s: %w", spec.Path, err))
		}
		return &model.EvaluationResult{
			StepID:         desc.Identity,
			CurrentState:   model.StatusMissing,
			RequiresAction: true,
			Message:        fmt.Sprintf("source tree %s is not present yet", spec.Path),
			Diff:           fmt.Sprintf("Would check out %s", spec.Revision),
		}, nil
	}

	repo, err := git.PlainOpen(spec.Path)
	if err != nil {
		return nil, plugin.NewStateError(desc.Identity, fmt.Errorf("open %s: %w", spec.Path, err))
	}
	head, err := repo.Head()
	if err != nil {
		return nil, plugin.NewStateError(desc.Identity, fmt.Errorf("read HEAD of %s: %w", spec.Path, err))
	}

	return &model.EvaluationResult{
		StepID:         desc.Identity,
		CurrentState:   model.StatusUnknown,
		RequiresAction: true,
		Message:        fmt.Sprintf("%s at %s (%s), will fetch %s", spec.Path, head.Name().Short(), head.Hash().String()[:7], spec.Revision),
		Diff:           fmt.Sprintf("Would fetch %s and check out %s", remoteName(spec), spec.Revision),
		InternalData:   &repoEvaluationData{HeadBefore: head.Hash()},
	}, nil
}

func (p *repoPlugin) Apply(ctx context.Context, _ *model.EvaluationResult, desc *resource.Descriptor) (*model.StepResult, error) {
	spec, err := specOf(desc)
	if err != nil {
		return nil, err
	}

	owner, err := ownership.Resolve(spec.Ownership)
	if err != nil {
		return nil, plugin.NewValidationError(desc.Identity, err)
	}

	before, after, err := checkout(ctx, spec)
	if err == nil {
		// The fetch runs as the engine user; hand new objects and files
		// back to the tree's owner.
		var reowned int
		reowned, err = owner.Chown(spec.Path)
		if err == nil {
			return checkoutResult(desc.Identity, spec, before, after, reowned), nil
		}
	}
	return &model.StepResult{
		StepID:  desc.Identity,
		Status:  model.StatusFailed,
		Message: err.Error(),
		Error:   err,
	}, plugin.NewExecutionError(desc.Identity, err)
}

func checkoutResult(id string, spec *resource.GitSpec, before, after plumbing.Hash, reowned int) *model.StepResult {
	switch {
	case before != after:
		return &model.StepResult{
			StepID:  id,
			Status:  model.StatusApplied,
			Message: fmt.Sprintf("checked out %s: %s -> %s", spec.Revision, short(before), short(after)),
		}
	case reowned > 0:
		return &model.StepResult{
			StepID:  id,
			Status:  model.StatusApplied,
			Message: fmt.Sprintf("%s already at %s, restored ownership of %d path(s)", spec.Revision, short(after), reowned),
		}
	default:
		return &model.StepResult{
			StepID:  id,
			Status:  model.StatusSkipped,
			Message: fmt.Sprintf("%s already at %s", spec.Revision, short(after)),
		}
	}
}

// checkout fetches the remote and moves the worktree to the revision. A
// branch is tracked and fast-forwarded; a tag or hash is checked out detached.
func checkout(ctx context.Context, spec *resource.GitSpec) (plumbing.Hash, plumbing.Hash, error) {
	repo, err := git.PlainOpen(spec.Path)
	if err != nil {
		return plumbing.ZeroHash, plumbing.ZeroHash, fmt.Errorf("open %s: %w", spec.Path, err)
	}
	head, err := repo.Head()
	if err != nil {
		return plumbing.ZeroHash, plumbing.ZeroHash, fmt.Errorf("read HEAD: %w", err)
	}
	before := head.Hash()

	remote := remoteName(spec)
	err = repo.FetchContext(ctx, &git.FetchOptions{RemoteName: remote, Tags: git.AllTags})
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return before, before, fmt.Errorf("fetch %s: %w", remote, err)
	}

	wt, err := repo.Worktree()
	if err != nil {
		return before, before, fmt.Errorf("open worktree: %w", err)
	}

	if remoteRef, err := repo.Reference(plumbing.NewRemoteReferenceName(remote, spec.Revision), true); err == nil {
		local := plumbing.NewBranchReferenceName(spec.Revision)
		_, missing := repo.Reference(local, false)
		opts := &git.CheckoutOptions{Branch: local, Create: missing != nil}
		if opts.Create {
			opts.Hash = remoteRef.Hash()
		}
		if err := wt.Checkout(opts); err != nil {
			return before, before, fmt.Errorf("checkout branch %s: %w", spec.Revision, err)
		}
		err = wt.PullContext(ctx, &git.PullOptions{RemoteName: remote, ReferenceName: local, SingleBranch: true})
		if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
			return before, before, fmt.Errorf("pull %s: %w", spec.Revision, err)
		}
	} else {
		hash, err := repo.ResolveRevision(plumbing.Revision(spec.Revision))
		if err != nil {
			return before, before, fmt.Errorf("resolve revision %s: %w", spec.Revision, err)
		}
		if err := wt.Checkout(&git.CheckoutOptions{Hash: *hash}); err != nil {
			return before, before, fmt.Errorf("checkout %s: %w", spec.Revision, err)
		}
	}

	head, err = repo.Head()
	if err != nil {
		return before, before, fmt.Errorf("read HEAD: %w", err)
	}
	return before, head.Hash(), nil
}

func remoteName(spec *resource.GitSpec) string {
	if spec.Remote == "" {
		return git.DefaultRemoteName
	}
	return spec.Remote
}

func short(h plumbing.Hash) string {
	return h.String()[:7]
}

func specOf(desc *resource.Descriptor) (*resource.GitSpec, error) {
	if desc == nil || desc.Git == nil {
		id := ""
		if desc != nil {
			id = desc.Identity
		}
		return nil, plugin.NewValidationError(id, fmt.Errorf("git_checkout payload missing"))
	}
	return desc.Git, nil
}
