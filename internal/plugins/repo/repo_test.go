package repoplugin

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/require"

	"github.com/datashades/converge/internal/model"
	"github.com/datashades/converge/internal/plugins/ownership"
	"github.com/datashades/converge/internal/resource"
)

func commit(t *testing.T, dir, file, content string) plumbing.Hash {
	t.Helper()

	repo, err := git.PlainOpen(dir)
	require.NoError(t, err)
	wt, err := repo.Worktree()
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, file), []byte(content), 0o644))
	_, err = wt.Add(file)
	require.NoError(t, err)

	hash, err := wt.Commit("update "+file, &git.CommitOptions{
		Author: &object.Signature{Name: "Datashades", Email: "ops@example.com", When: time.Now()},
	})
	require.NoError(t, err)
	return hash
}

// setup creates an origin with one commit and a clone of it.
func setup(t *testing.T) (origin, clone string) {
	t.Helper()

	origin = t.TempDir()
	_, err := git.PlainInit(origin, false)
	require.NoError(t, err)
	commit(t, origin, "setup.py", "v1")

	clone = filepath.Join(t.TempDir(), "ckanext-harvest")
	_, err = git.PlainClone(clone, false, &git.CloneOptions{URL: origin})
	require.NoError(t, err)
	return origin, clone
}

func run(t *testing.T, desc resource.Descriptor) *model.StepResult {
	t.Helper()
	p := New()
	eval, err := p.Evaluate(context.Background(), &desc)
	require.NoError(t, err)
	require.True(t, eval.RequiresAction)
	res, err := p.Apply(context.Background(), eval, &desc)
	require.NoError(t, err)
	return res
}

func TestCheckoutBranchSkipsWhenCurrent(t *testing.T) {
	t.Parallel()

	_, clone := setup(t)
	res := run(t, resource.GitCheckout(clone, "master"))
	require.Equal(t, model.StatusSkipped, res.Status)
}

func TestCheckoutBranchFastForwards(t *testing.T) {
	t.Parallel()

	origin, clone := setup(t)
	want := commit(t, origin, "setup.py", "v2")

	res := run(t, resource.GitCheckout(clone, "master"))
	require.Equal(t, model.StatusApplied, res.Status)

	repo, err := git.PlainOpen(clone)
	require.NoError(t, err)
	head, err := repo.Head()
	require.NoError(t, err)
	require.Equal(t, want, head.Hash())

	content, err := os.ReadFile(filepath.Join(clone, "setup.py"))
	require.NoError(t, err)
	require.Equal(t, "v2", string(content))
}

func TestCheckoutHashDetaches(t *testing.T) {
	t.Parallel()

	origin, clone := setup(t)
	first, err := git.PlainOpen(origin)
	require.NoError(t, err)
	ref, err := first.Head()
	require.NoError(t, err)
	commit(t, origin, "setup.py", "v2")

	// Move the clone forward, then pin it back to the first commit.
	run(t, resource.GitCheckout(clone, "master"))
	res := run(t, resource.GitCheckout(clone, ref.Hash().String()))
	require.Equal(t, model.StatusApplied, res.Status)

	repo, err := git.PlainOpen(clone)
	require.NoError(t, err)
	head, err := repo.Head()
	require.NoError(t, err)
	require.Equal(t, ref.Hash(), head.Hash())
}

func TestUnknownRevisionFails(t *testing.T) {
	t.Parallel()

	_, clone := setup(t)
	desc := resource.GitCheckout(clone, "no-such-branch")
	res, err := New().Apply(context.Background(), nil, &desc)
	require.Error(t, err)
	require.Equal(t, model.StatusFailed, res.Status)
}

func TestMissingTreeEvaluatesAsMissing(t *testing.T) {
	t.Parallel()

	desc := resource.GitCheckout(filepath.Join(t.TempDir(), "absent"), "master")
	eval, err := New().Evaluate(context.Background(), &desc)
	require.NoError(t, err)
	require.Equal(t, model.StatusMissing, eval.CurrentState)
	require.True(t, eval.RequiresAction)
}

func TestCheckoutHandsTreeBackToOwner(t *testing.T) {
	t.Parallel()
	if os.Geteuid() != 0 {
		t.Skip("chown to another user needs root")
	}

	origin, clone := setup(t)
	commit(t, origin, "setup.py", "v2")

	res := run(t, resource.GitCheckout(clone, "master").OwnedBy("65534", "65534"))
	require.Equal(t, model.StatusApplied, res.Status)

	err := filepath.WalkDir(clone, func(path string, d fs.DirEntry, err error) error {
		require.NoError(t, err)
		st, err := ownership.Stat(path)
		require.NoError(t, err)
		require.Equal(t, 65534, st.UID, path)
		require.Equal(t, 65534, st.GID, path)
		return nil
	})
	require.NoError(t, err)

	// The tree is already owned and current, so a second pass changes nothing.
	res = run(t, resource.GitCheckout(clone, "master").OwnedBy("65534", "65534"))
	require.Equal(t, model.StatusSkipped, res.Status)
}

func TestCheckoutOwnedByCurrentUserSkips(t *testing.T) {
	t.Parallel()

	_, clone := setup(t)
	uid, gid := strconv.Itoa(os.Geteuid()), strconv.Itoa(os.Getegid())
	res := run(t, resource.GitCheckout(clone, "master").OwnedBy(uid, gid))
	require.Equal(t, model.StatusSkipped, res.Status)
}

func TestCheckoutUnknownOwnerFails(t *testing.T) {
	t.Parallel()

	_, clone := setup(t)
	desc := resource.GitCheckout(clone, "master").OwnedBy("no-such-user-converge", "")
	_, err := New().Apply(context.Background(), nil, &desc)
	require.Error(t, err)
	require.Contains(t, err.Error(), "no-such-user-converge")
}
