package resource

import (
	"os"
	"strings"

	"github.com/datashades/converge/internal/guard"
)

// Package declares that every named package is installed.
func Package(names ...string) Descriptor {
	clean := make([]string, 0, len(names))
	for _, n := range names {
		if n = strings.TrimSpace(n); n != "" {
			clean = append(clean, n)
		}
	}
	return Descriptor{
		Kind:     KindPackage,
		Identity: strings.Join(clean, " "),
		Package:  &PackageSpec{Names: clean},
	}
}

// File declares a file with exact content, owner, group and mode.
func File(path, content, owner, group string, mode os.FileMode) Descriptor {
	return Descriptor{
		Kind:     KindFileContent,
		Identity: path,
		File: &FileSpec{
			Path:      path,
			Content:   content,
			Ownership: Ownership{Owner: owner, Group: group, Mode: mode},
		},
	}
}

// Directory declares a directory with owner, group and mode.
func Directory(path, owner, group string, mode os.FileMode, recursive bool) Descriptor {
	return Descriptor{
		Kind:     KindDirectory,
		Identity: path,
		Dir: &DirSpec{
			Path:      path,
			Recursive: recursive,
			Ownership: Ownership{Owner: owner, Group: group, Mode: mode},
		},
	}
}

// EnsureLine declares that a line matching match exists in path. An empty
// match means the literal line. When insertAfter is set the line is placed
// after the last line matching it, otherwise it is appended.
func EnsureLine(path, line, match, insertAfter string) Descriptor {
	return Descriptor{
		Kind:     KindLineInFile,
		Identity: path + "#" + line,
		Line: &LineSpec{
			Path:        path,
			Edit:        EditEnsureLine,
			Line:        line,
			Match:       match,
			InsertAfter: insertAfter,
		},
	}
}

// AppendToken declares that lines matching target end with token unless they
// already contain it.
func AppendToken(path, target, token string) Descriptor {
	return Descriptor{
		Kind:     KindLineInFile,
		Identity: path + "#" + target + "+" + token,
		Line: &LineSpec{
			Path:   path,
			Edit:   EditAppendToken,
			Target: target,
			Token:  token,
		},
	}
}

// Reorder declares that token directly follows after on lines matching target.
func Reorder(path, target, token, after string) Descriptor {
	return Descriptor{
		Kind:     KindLineInFile,
		Identity: path + "#" + target + ":" + after + ">" + token,
		Line: &LineSpec{
			Path:   path,
			Edit:   EditReorder,
			Target: target,
			Token:  token,
			After:  after,
		},
	}
}

// Service declares the requested actions for a service.
func Service(name string, actions ...ServiceAction) Descriptor {
	return Descriptor{
		Kind:     KindService,
		Identity: name,
		Service:  &ServiceSpec{Name: name, Actions: actions},
	}
}

// Shell declares a command run under identity.
func Shell(identity, command string) Descriptor {
	return Descriptor{
		Kind:     KindShell,
		Identity: identity,
		Shell:    &ShellSpec{Command: command},
	}
}

// GitCheckout declares that the tree at path is at revision.
func GitCheckout(path, revision string) Descriptor {
	return Descriptor{
		Kind:     KindGitCheckout,
		Identity: path,
		Git:      &GitSpec{Path: path, Revision: revision, Remote: "origin"},
	}
}

// WithGuard returns a copy guarded by g.
func (d Descriptor) WithGuard(g *guard.Gate) Descriptor {
	d.Guard = g
	return d
}

// Describe returns a copy with a human readable description.
func (d Descriptor) Describe(description string) Descriptor {
	d.Description = description
	return d
}

// RunAs returns a copy of a shell descriptor that runs as user and group.
func (d Descriptor) RunAs(user, group string) Descriptor {
	if d.Shell != nil {
		shell := *d.Shell
		shell.User = user
		shell.Group = group
		d.Shell = &shell
	}
	return d
}

// OwnedBy returns a copy of a git checkout descriptor whose tree is handed
// back to user and group after every fetch.
func (d Descriptor) OwnedBy(user, group string) Descriptor {
	if d.Git != nil {
		git := *d.Git
		git.Ownership = Ownership{Owner: user, Group: group}
		d.Git = &git
	}
	return d
}

// In returns a copy of a shell descriptor that runs in dir.
func (d Descriptor) In(dir string) Descriptor {
	if d.Shell != nil {
		shell := *d.Shell
		shell.WorkDir = dir
		d.Shell = &shell
	}
	return d
}

// Subscribe returns a copy of a service or shell descriptor that acts only
// when one of the identities changed earlier in the run. For a service that
// is the restart.
func (d Descriptor) Subscribe(identities ...string) Descriptor {
	switch {
	case d.Service != nil:
		svc := *d.Service
		svc.Subscribes = append(append([]string(nil), svc.Subscribes...), identities...)
		d.Service = &svc
	case d.Shell != nil:
		shell := *d.Shell
		shell.Subscribes = append(append([]string(nil), shell.Subscribes...), identities...)
		d.Shell = &shell
	}
	return d
}
