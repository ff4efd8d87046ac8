// Package guard decides whether a resource step should run by checking
// observable host state. Predicates never mutate anything.
package guard

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"strings"
)

// Sense selects whether a Gate runs its step when the predicate holds or
// when it does not.
type Sense int

const (
	RunIfTrue Sense = iota
	RunIfFalse
)

func (s Sense) String() string {
	if s == RunIfFalse {
		return "run_if_false"
	}
	return "run_if_true"
}

// Predicate is a read-only check against the host.
type Predicate interface {
	Check(ctx context.Context) (bool, error)
	String() string
}

// Gate guards a single step.
type Gate struct {
	Predicate Predicate
	Sense     Sense
}

// OnlyIf returns a gate that runs the step when p holds.
func OnlyIf(p Predicate) *Gate {
	return &Gate{Predicate: p, Sense: RunIfTrue}
}

// NotIf returns a gate that runs the step when p does not hold.
func NotIf(p Predicate) *Gate {
	return &Gate{Predicate: p, Sense: RunIfFalse}
}

// Evaluate reports whether the guarded step should proceed. A nil gate
// always proceeds.
func (g *Gate) Evaluate(ctx context.Context) (bool, error) {
	if g == nil || g.Predicate == nil {
		return true, nil
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}
	holds, err := g.Predicate.Check(ctx)
	if err != nil {
		return false, err
	}
	if g.Sense == RunIfFalse {
		return !holds, nil
	}
	return holds, nil
}

func (g *Gate) String() string {
	if g == nil || g.Predicate == nil {
		return "always"
	}
	if g.Sense == RunIfFalse {
		return "not_if " + g.Predicate.String()
	}
	return "only_if " + g.Predicate.String()
}

type pathExists struct{ path string }

// PathExists holds when anything exists at path.
func PathExists(path string) Predicate { return pathExists{path: path} }

func (p pathExists) Check(context.Context) (bool, error) {
	_, err := os.Lstat(p.path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("stat %s: %w", p.path, err)
}

func (p pathExists) String() string { return fmt.Sprintf("exists(%s)", p.path) }

type dirExists struct{ path string }

// DirExists holds when path is a directory.
func DirExists(path string) Predicate { return dirExists{path: path} }

func (p dirExists) Check(context.Context) (bool, error) {
	info, err := os.Stat(p.path)
	if err == nil {
		return info.IsDir(), nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("stat %s: %w", p.path, err)
}

func (p dirExists) String() string { return fmt.Sprintf("dir(%s)", p.path) }

type fileMatches struct {
	path    string
	pattern *regexp.Regexp
}

// FileMatches holds when any line of the file at path matches pattern.
// A missing file does not match.
func FileMatches(path, pattern string) (Predicate, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("compile pattern %q: %w", pattern, err)
	}
	return fileMatches{path: path, pattern: re}, nil
}

// MustFileMatches is FileMatches for patterns known at compile time.
func MustFileMatches(path, pattern string) Predicate {
	p, err := FileMatches(path, pattern)
	if err != nil {
		panic(err)
	}
	return p
}

func (p fileMatches) Check(context.Context) (bool, error) {
	data, err := os.ReadFile(p.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("read %s: %w", p.path, err)
	}
	for _, line := range strings.Split(string(data), "\n") {
		if p.pattern.MatchString(strings.TrimSuffix(line, "\r")) {
			return true, nil
		}
	}
	return false, nil
}

func (p fileMatches) String() string {
	return fmt.Sprintf("grep(%s, %q)", p.path, p.pattern.String())
}

type flag struct {
	name  string
	value bool
}

// Flag is a constant predicate named after the attribute that produced it.
func Flag(name string, value bool) Predicate { return flag{name: name, value: value} }

func (p flag) Check(context.Context) (bool, error) { return p.value, nil }

func (p flag) String() string { return fmt.Sprintf("flag(%s=%t)", p.name, p.value) }

type all []Predicate

// All holds when every predicate holds. Evaluation stops at the first false.
func All(preds ...Predicate) Predicate { return all(preds) }

func (a all) Check(ctx context.Context) (bool, error) {
	for _, p := range a {
		ok, err := p.Check(ctx)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

func (a all) String() string { return "all(" + join(a) + ")" }

type anyOf []Predicate

// Any holds when at least one predicate holds.
func Any(preds ...Predicate) Predicate { return anyOf(preds) }

func (a anyOf) Check(ctx context.Context) (bool, error) {
	for _, p := range a {
		ok, err := p.Check(ctx)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

func (a anyOf) String() string { return "any(" + join(a) + ")" }

type not struct{ inner Predicate }

// Not negates p.
func Not(p Predicate) Predicate { return not{inner: p} }

func (n not) Check(ctx context.Context) (bool, error) {
	ok, err := n.inner.Check(ctx)
	if err != nil {
		return false, err
	}
	return !ok, nil
}

func (n not) String() string { return "not(" + n.inner.String() + ")" }

func join(preds []Predicate) string {
	parts := make([]string, 0, len(preds))
	for _, p := range preds {
		parts = append(parts, p.String())
	}
	return strings.Join(parts, ", ")
}
