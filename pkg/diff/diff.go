package diff

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

const (
	maxDiffLines    = 10000
	truncateMessage = "... (diff truncated, exceeds 10,000 lines) ..."
)

// GenerateUnifiedDiff renders a line-oriented diff from before to after.
// Returns an empty string when the content is identical and truncates
// output longer than 10,000 lines.
func GenerateUnifiedDiff(before, after []byte, beforeLabel, afterLabel string) string {
	if bytes.Equal(before, after) {
		return ""
	}

	dmp := diffmatchpatch.New()
	a, b, lineArray := dmp.DiffLinesToChars(string(before), string(after))
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(a, b, false), lineArray)

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "--- %s\n", beforeLabel)
	fmt.Fprintf(&buf, "+++ %s\n", afterLabel)
	fmt.Fprintf(&buf, "@@ -1,%d +1,%d @@\n", countLines(before), countLines(after))

	for _, d := range diffs {
		prefix := " "
		switch d.Type {
		case diffmatchpatch.DiffDelete:
			prefix = "-"
		case diffmatchpatch.DiffInsert:
			prefix = "+"
		}
		for _, line := range splitKeep(d.Text) {
			buf.WriteString(prefix)
			buf.WriteString(line)
			buf.WriteString("\n")
		}
	}

	result := buf.String()
	lines := strings.Split(result, "\n")
	if len(lines) > maxDiffLines {
		return strings.Join(lines[:maxDiffLines], "\n") + "\n" + truncateMessage + "\n"
	}
	return result
}

func splitKeep(text string) []string {
	text = strings.TrimSuffix(text, "\n")
	if text == "" {
		return nil
	}
	return strings.Split(text, "\n")
}

func countLines(content []byte) int {
	return len(splitKeep(string(content)))
}
