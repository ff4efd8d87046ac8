package lineinfileplugin

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCreateBackup(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	target := filepath.Join(dir, "production.ini")
	require.NoError(t, os.WriteFile(target, []byte("original"), 0o644))

	backupPath, err := createBackup(target, []byte("backup data"), 0o600)
	require.NoError(t, err)

	info, err := os.Stat(backupPath)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), info.Mode().Perm())
	require.Equal(t, dir, filepath.Dir(backupPath))
	require.True(t, strings.HasPrefix(filepath.Base(backupPath), "production.ini."))
	require.True(t, strings.HasSuffix(filepath.Base(backupPath), ".bak"))

	data, err := os.ReadFile(backupPath)
	require.NoError(t, err)
	require.Equal(t, "backup data", string(data))
}

func TestEncodeDecodeContent(t *testing.T) {
	t.Parallel()

	content := "Olá Mundo"

	encoded, err := encodeContent(content, "latin-1")
	require.NoError(t, err)
	require.Len(t, encoded, len("Ola Mundo"))

	decoded, err := decodeContent(encoded, "latin-1")
	require.NoError(t, err)
	require.Equal(t, content, decoded)
}

func TestEncodingSupportHelpers(t *testing.T) {
	t.Parallel()

	require.True(t, isSupportedEncoding("utf-8"))
	require.True(t, isSupportedEncoding("LATIN1"))
	require.False(t, isSupportedEncoding("utf-32"))

	require.NotNil(t, encodingByName("latin-1"))
	require.Nil(t, encodingByName("unknown-encoding"))
}

func TestSplitJoinRoundTrip(t *testing.T) {
	t.Parallel()

	for _, content := range []string{"", "a", "a\n", "a\nb\n", "\n", "a\n\nb"} {
		lines, trailing := splitLines(content)
		require.Equal(t, content, joinLines(lines, trailing), "%q", content)
	}
}

func TestWriteFileAtomicKeepsMode(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "hostnames")
	require.NoError(t, os.WriteFile(path, []byte("a\n"), 0o600))

	state, err := readFileState(path, "")
	require.NoError(t, err)
	require.NoError(t, writeFileAtomic(state, []byte("a\nb\n")))

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestReadFileStateFollowsSymlink(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	real := filepath.Join(dir, "real.ini")
	link := filepath.Join(dir, "production.ini")
	require.NoError(t, os.WriteFile(real, []byte("x\n"), 0o644))
	require.NoError(t, os.Symlink(real, link))

	state, err := readFileState(link, "")
	require.NoError(t, err)
	require.Equal(t, real, state.Path)
	require.Equal(t, []string{"x"}, state.Lines)
}
