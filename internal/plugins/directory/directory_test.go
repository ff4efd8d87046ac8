package directoryplugin

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/datashades/converge/internal/model"
	"github.com/datashades/converge/internal/plugin"
	"github.com/datashades/converge/internal/resource"
)

func TestRecursiveCreateIsIdempotent(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	path := filepath.Join(root, "data", "nfs", "logs", "web_nginx")
	desc := resource.Directory(path, "", "", 0o775, true)
	p := New()

	eval, err := p.Evaluate(context.Background(), &desc)
	require.NoError(t, err)
	require.Equal(t, model.StatusMissing, eval.CurrentState)

	res, err := p.Apply(context.Background(), eval, &desc)
	require.NoError(t, err)
	require.Equal(t, model.StatusApplied, res.Status)
	require.Contains(t, res.Message, filepath.Join(root, "data"))

	for _, dir := range []string{filepath.Join(root, "data"), filepath.Join(root, "data", "nfs"), path} {
		info, err := os.Stat(dir)
		require.NoError(t, err)
		require.True(t, info.IsDir())
		require.Equal(t, os.FileMode(0o775), info.Mode().Perm(), dir)
	}

	eval, err = p.Evaluate(context.Background(), &desc)
	require.NoError(t, err)
	require.False(t, eval.RequiresAction)
}

func TestNonRecursiveNeedsParent(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "a", "b")
	desc := resource.Directory(path, "", "", 0o755, false)

	_, err := New().Apply(context.Background(), nil, &desc)
	require.Error(t, err)
	require.True(t, errors.Is(err, &plugin.ExecutionError{}))
}

func TestModeDrift(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "shared_content")
	require.NoError(t, os.Mkdir(path, 0o700))
	require.NoError(t, os.Chmod(path, 0o700))

	desc := resource.Directory(path, "", "", 0o775, true)
	p := New()
	eval, err := p.Evaluate(context.Background(), &desc)
	require.NoError(t, err)
	require.Equal(t, model.StatusDrifted, eval.CurrentState)

	res, err := p.Apply(context.Background(), eval, &desc)
	require.NoError(t, err)
	require.Equal(t, "updated "+path, res.Message)

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o775), info.Mode().Perm())
}

func TestFileInTheWayIsStateError(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "logs")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	desc := resource.Directory(path, "", "", 0, false)
	_, err := New().Evaluate(context.Background(), &desc)
	require.True(t, errors.Is(err, &plugin.StateError{}))
}
