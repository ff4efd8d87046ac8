package lineinfileplugin

import (
	"regexp"
	"strings"
)

func findMatches(lines []string, pattern *regexp.Regexp) []int {
	var idx []int
	if pattern == nil {
		return idx
	}
	for i, line := range lines {
		if pattern.MatchString(line) {
			idx = append(idx, i)
		}
	}
	return idx
}

// ensureLine inserts line unless some line already matches. The new line goes
// after the last line matching insertAfter, or at the end.
func ensureLine(lines []string, cfg *editConfig) ([]string, string) {
	if len(findMatches(lines, cfg.match)) > 0 {
		return lines, ""
	}
	if anchors := findMatches(lines, cfg.insertAfter); len(anchors) > 0 {
		at := anchors[len(anchors)-1] + 1
		out := make([]string, 0, len(lines)+1)
		out = append(out, lines[:at]...)
		out = append(out, cfg.Line)
		out = append(out, lines[at:]...)
		return out, "insert"
	}
	return append(append([]string(nil), lines...), cfg.Line), "append"
}

// containsWords reports whether words appear contiguously in fields.
func containsWords(fields, words []string) bool {
	if len(words) == 0 || len(words) > len(fields) {
		return false
	}
	for i := 0; i+len(words) <= len(fields); i++ {
		match := true
		for j, w := range words {
			if fields[i+j] != w {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

// appendToken adds the token words to the end of every target line that
// does not already carry them.
func appendToken(lines []string, cfg *editConfig) ([]string, string) {
	out := append([]string(nil), lines...)
	action := ""
	for _, i := range findMatches(out, cfg.target) {
		if containsWords(strings.Fields(out[i]), cfg.Token) {
			continue
		}
		out[i] = strings.TrimRight(out[i], " \t") + " " + strings.Join(cfg.Token, " ")
		action = "append_token"
	}
	return out, action
}

// reorder moves the token to directly follow After on target lines. Lines
// missing either word are left untouched.
func reorder(lines []string, cfg *editConfig) ([]string, string) {
	out := append([]string(nil), lines...)
	token := cfg.Token[0]
	action := ""
	for _, i := range findMatches(out, cfg.target) {
		fields := strings.Fields(out[i])
		tokenAt, afterAt := indexOf(fields, token), indexOf(fields, cfg.After)
		if tokenAt < 0 || afterAt < 0 || tokenAt == afterAt+1 {
			continue
		}

		rest := make([]string, 0, len(fields))
		for _, f := range fields {
			if f != token {
				rest = append(rest, f)
			}
		}
		afterAt = indexOf(rest, cfg.After)
		reordered := make([]string, 0, len(fields))
		reordered = append(reordered, rest[:afterAt+1]...)
		reordered = append(reordered, token)
		reordered = append(reordered, rest[afterAt+1:]...)

		out[i] = leadingSpace(out[i]) + strings.Join(reordered, " ")
		action = "reorder"
	}
	return out, action
}

func indexOf(fields []string, word string) int {
	for i, f := range fields {
		if f == word {
			return i
		}
	}
	return -1
}

func leadingSpace(line string) string {
	return line[:len(line)-len(strings.TrimLeft(line, " \t"))]
}
