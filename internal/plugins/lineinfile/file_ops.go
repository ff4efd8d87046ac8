package lineinfileplugin

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/datashades/converge/internal/plugins/ownership"
)

const defaultFileMode os.FileMode = 0o644

// encodings maps accepted names to decoders. A nil entry is UTF-8, read
// and written as is.
var encodings = map[string]encoding.Encoding{
	"":             nil,
	"utf-8":        nil,
	"utf8":         nil,
	"ascii":        charmap.ISO8859_1,
	"latin-1":      charmap.ISO8859_1,
	"latin1":       charmap.ISO8859_1,
	"iso-8859-1":   charmap.ISO8859_1,
	"windows-1252": charmap.Windows1252,
	"utf-16":       unicode.UTF16(unicode.LittleEndian, unicode.ExpectBOM),
	"utf-16le":     unicode.UTF16(unicode.LittleEndian, unicode.ExpectBOM),
	"utf-16be":     unicode.UTF16(unicode.BigEndian, unicode.ExpectBOM),
}

// FileState is the target file as read during evaluation. Path is the
// symlink-resolved location that Apply writes to.
type FileState struct {
	Path            string
	Exists          bool
	Permissions     os.FileMode
	Owner           ownership.State
	Content         string
	Lines           []string
	TrailingNewline bool
}

func readFileState(path, enc string) (*FileState, error) {
	if !filepath.IsAbs(path) {
		return nil, fmt.Errorf("path %q is not absolute", path)
	}
	state := &FileState{Path: filepath.Clean(path), Permissions: defaultFileMode, Lines: []string{}}

	resolved, err := filepath.EvalSymlinks(state.Path)
	switch {
	case err == nil:
		state.Path = resolved
	case errors.Is(err, os.ErrNotExist):
		return state, nil
	default:
		return nil, err
	}

	f, err := os.Open(state.Path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory", state.Path)
	}
	raw, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}
	content, err := decodeContent(raw, enc)
	if err != nil {
		return nil, fmt.Errorf("decode %s as %s: %w", state.Path, enc, err)
	}

	state.Exists = true
	state.Permissions = info.Mode().Perm()
	state.Owner = ownership.FromInfo(info)
	state.Content = content
	state.Lines, state.TrailingNewline = splitLines(content)
	return state, nil
}

// splitLines splits content on newlines and reports whether it ended in
// one, so joinLines can restore it exactly.
func splitLines(content string) ([]string, bool) {
	body, trailing := strings.CutSuffix(content, "\n")
	if body == "" && (trailing || content == "") {
		return []string{}, trailing
	}
	return strings.Split(body, "\n"), trailing
}

func joinLines(lines []string, trailing bool) string {
	out := strings.Join(lines, "\n")
	if trailing {
		out += "\n"
	}
	return out
}

// writeFileAtomic replaces the file through a sibling temp file. The mode
// is kept, and the owner too when the file already existed.
func writeFileAtomic(state *FileState, data []byte) error {
	dir := filepath.Dir(state.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(state.Path)+".*")
	if err != nil {
		return err
	}
	name := tmp.Name()
	defer os.Remove(name)

	_, werr := tmp.Write(data)
	if werr == nil {
		werr = tmp.Sync()
	}
	if cerr := tmp.Close(); werr == nil {
		werr = cerr
	}
	if werr != nil {
		return werr
	}

	target := ownership.Target{UID: -1, GID: -1, Mode: state.Permissions}
	if state.Exists {
		target.UID, target.GID = state.Owner.UID, state.Owner.GID
	}
	if err := target.Apply(name); err != nil {
		return err
	}
	return os.Rename(name, state.Path)
}

// createBackup writes content next to path as <name>.<utc stamp>.bak.
func createBackup(path string, content []byte, perm os.FileMode) (string, error) {
	stamp := time.Now().UTC().Format("20060102T150405")
	backup := fmt.Sprintf("%s.%s.bak", path, stamp)
	if err := os.WriteFile(backup, content, perm); err != nil {
		return "", err
	}
	return backup, nil
}

func encodingByName(name string) encoding.Encoding {
	return encodings[strings.ToLower(name)]
}

func decodeContent(data []byte, name string) (string, error) {
	enc := encodingByName(name)
	if enc == nil {
		return string(data), nil
	}
	out, _, err := transform.Bytes(enc.NewDecoder(), data)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func encodeContent(content string, name string) ([]byte, error) {
	enc := encodingByName(name)
	if enc == nil {
		return []byte(content), nil
	}
	var buf bytes.Buffer
	w := transform.NewWriter(&buf, enc.NewEncoder())
	if _, err := io.WriteString(w, content); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
