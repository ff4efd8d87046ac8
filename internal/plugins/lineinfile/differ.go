package lineinfileplugin

import (
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

// ChangeSet summarises how an edit changes a file.
type ChangeSet struct {
	Action  string
	Diff    string
	Changed bool
}

func generateChangeSet(path string, original, modified []string, action string) *ChangeSet {
	cs := &ChangeSet{Action: action, Changed: !equalLines(original, modified)}
	if !cs.Changed {
		cs.Action = "none"
		return cs
	}

	ud := difflib.UnifiedDiff{
		A:        withNewlines(original),
		B:        withNewlines(modified),
		FromFile: path + " (current)",
		ToFile:   path,
		Context:  3,
	}
	diff, _ := difflib.GetUnifiedDiffString(ud)
	cs.Diff = strings.TrimSpace(diff)
	return cs
}

func withNewlines(lines []string) []string {
	out := make([]string, len(lines))
	for i, l := range lines {
		out[i] = l + "\n"
	}
	return out
}

func equalLines(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
