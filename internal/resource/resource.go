package resource

import (
	"fmt"
	"os"
	"strings"

	"github.com/datashades/converge/internal/guard"
)

// Kind enumerates the supported resource kinds.
type Kind string

const (
	KindPackage     Kind = "package"
	KindFileContent Kind = "file"
	KindDirectory   Kind = "directory"
	KindLineInFile  Kind = "line_in_file"
	KindService     Kind = "service"
	KindShell       Kind = "shell"
	KindGitCheckout Kind = "git_checkout"
)

var validKinds = []Kind{
	KindPackage,
	KindFileContent,
	KindDirectory,
	KindLineInFile,
	KindService,
	KindShell,
	KindGitCheckout,
}

// Kinds returns every supported kind in declaration order.
func Kinds() []Kind {
	return append([]Kind(nil), validKinds...)
}

// Descriptor declares the desired state of a single system resource.
//
// Exactly one payload field is set and it must match Kind. Guard is optional;
// a nil Guard means the step always proceeds to evaluation.
type Descriptor struct {
	Kind        Kind
	Identity    string
	Description string
	Guard       *guard.Gate

	Package *PackageSpec
	File    *FileSpec
	Dir     *DirSpec
	Line    *LineSpec
	Service *ServiceSpec
	Shell   *ShellSpec
	Git     *GitSpec
}

// Key identifies the descriptor for idempotence bookkeeping within a run.
func (d Descriptor) Key() string {
	return string(d.Kind) + ":" + d.Identity
}

// Label returns the description when set and the identity otherwise.
func (d Descriptor) Label() string {
	if strings.TrimSpace(d.Description) != "" {
		return d.Description
	}
	return d.Identity
}

// Validate checks that the descriptor is internally consistent.
func (d Descriptor) Validate() error {
	if strings.TrimSpace(d.Identity) == "" {
		return fmt.Errorf("%s resource requires an identity", d.Kind)
	}

	set := 0
	for _, present := range []bool{
		d.Package != nil, d.File != nil, d.Dir != nil, d.Line != nil,
		d.Service != nil, d.Shell != nil, d.Git != nil,
	} {
		if present {
			set++
		}
	}
	if set != 1 {
		return fmt.Errorf("resource %s must carry exactly one payload, found %d", d.Identity, set)
	}

	switch d.Kind {
	case KindPackage:
		if d.Package == nil {
			return payloadMismatch(d)
		}
		return d.Package.validate()
	case KindFileContent:
		if d.File == nil {
			return payloadMismatch(d)
		}
		return d.File.validate()
	case KindDirectory:
		if d.Dir == nil {
			return payloadMismatch(d)
		}
		return d.Dir.validate()
	case KindLineInFile:
		if d.Line == nil {
			return payloadMismatch(d)
		}
		return d.Line.validate()
	case KindService:
		if d.Service == nil {
			return payloadMismatch(d)
		}
		return d.Service.validate()
	case KindShell:
		if d.Shell == nil {
			return payloadMismatch(d)
		}
		return d.Shell.validate()
	case KindGitCheckout:
		if d.Git == nil {
			return payloadMismatch(d)
		}
		return d.Git.validate()
	default:
		return fmt.Errorf("resource %s has unknown kind %q", d.Identity, d.Kind)
	}
}

func payloadMismatch(d Descriptor) error {
	return fmt.Errorf("resource %s: payload does not match kind %s", d.Identity, d.Kind)
}

// Ownership describes the owner, group and permission bits of a path.
// Empty Owner or Group leaves that attribute unmanaged; a zero Mode leaves
// permissions unmanaged.
type Ownership struct {
	Owner string
	Group string
	Mode  os.FileMode
}

// Managed reports whether any attribute is under management.
func (o Ownership) Managed() bool {
	return o.Owner != "" || o.Group != "" || o.Mode != 0
}

// PackageSpec installs system packages.
type PackageSpec struct {
	Names []string
}

func (s *PackageSpec) validate() error {
	if len(s.Names) == 0 {
		return fmt.Errorf("package resource requires at least one package name")
	}
	for _, name := range s.Names {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("package names must not be empty")
		}
	}
	return nil
}

// FileSpec writes a file with exact content and ownership.
type FileSpec struct {
	Path    string
	Content string
	Ownership
}

func (s *FileSpec) validate() error {
	if strings.TrimSpace(s.Path) == "" {
		return fmt.Errorf("file resource requires a path")
	}
	return nil
}

// DirSpec ensures a directory exists.
type DirSpec struct {
	Path      string
	Recursive bool
	Ownership
}

func (s *DirSpec) validate() error {
	if strings.TrimSpace(s.Path) == "" {
		return fmt.Errorf("directory resource requires a path")
	}
	return nil
}

// LineEdit selects how a LineSpec changes its file.
type LineEdit string

const (
	// EditEnsureLine inserts Line when no line matches Match.
	EditEnsureLine LineEdit = "ensure_line"
	// EditAppendToken appends Token to lines matching Target unless present.
	EditAppendToken LineEdit = "append_token"
	// EditReorder moves Token to directly follow After on lines matching Target.
	EditReorder LineEdit = "reorder"
)

// LineSpec manages a single line, or a token within a line, of a text file.
type LineSpec struct {
	Path string
	Edit LineEdit

	// EditEnsureLine
	Line        string
	Match       string
	InsertAfter string

	// EditAppendToken and EditReorder
	Target string
	Token  string
	After  string

	Backup   bool
	Encoding string
}

func (s *LineSpec) validate() error {
	if strings.TrimSpace(s.Path) == "" {
		return fmt.Errorf("line_in_file resource requires a path")
	}
	switch s.Edit {
	case EditEnsureLine:
		if s.Line == "" {
			return fmt.Errorf("ensure_line edit requires a line")
		}
	case EditAppendToken:
		if s.Target == "" || strings.TrimSpace(s.Token) == "" {
			return fmt.Errorf("append_token edit requires target and token")
		}
	case EditReorder:
		if s.Target == "" || s.Token == "" || s.After == "" {
			return fmt.Errorf("reorder edit requires target, token and after")
		}
		if s.Token == s.After {
			return fmt.Errorf("reorder edit requires distinct token and after")
		}
	default:
		return fmt.Errorf("unknown line edit %q", s.Edit)
	}
	return nil
}

// ServiceAction is a verb understood by the service manager.
type ServiceAction string

const (
	ServiceEnable  ServiceAction = "enable"
	ServiceDisable ServiceAction = "disable"
	ServiceStart   ServiceAction = "start"
	ServiceStop    ServiceAction = "stop"
	ServiceRestart ServiceAction = "restart"
)

// ServiceSpec converges a service's enablement and run state.
//
// Restart is honoured when the service is already running: always when
// Subscribes is empty, otherwise only when one of the subscribed identities
// changed earlier in the same run.
type ServiceSpec struct {
	Name       string
	Actions    []ServiceAction
	Subscribes []string
}

// Has reports whether the action was requested.
func (s *ServiceSpec) Has(action ServiceAction) bool {
	for _, a := range s.Actions {
		if a == action {
			return true
		}
	}
	return false
}

func (s *ServiceSpec) validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return fmt.Errorf("service resource requires a name")
	}
	if len(s.Actions) == 0 {
		return fmt.Errorf("service %s requires at least one action", s.Name)
	}
	for _, a := range s.Actions {
		switch a {
		case ServiceEnable, ServiceDisable, ServiceStart, ServiceStop, ServiceRestart:
		default:
			return fmt.Errorf("service %s: unknown action %q", s.Name, a)
		}
	}
	if s.Has(ServiceEnable) && s.Has(ServiceDisable) {
		return fmt.Errorf("service %s: enable and disable are exclusive", s.Name)
	}
	if s.Has(ServiceStop) && (s.Has(ServiceStart) || s.Has(ServiceRestart)) {
		return fmt.Errorf("service %s: stop cannot be combined with start or restart", s.Name)
	}
	return nil
}

// ShellSpec runs a command. Shell steps always report side effects.
type ShellSpec struct {
	Command string
	User    string
	Group   string
	WorkDir string
	Env     map[string]string
	// Subscribes limits the command to runs in which one of these
	// identities changed earlier. Empty runs it every time.
	Subscribes []string
}

func (s *ShellSpec) validate() error {
	if strings.TrimSpace(s.Command) == "" {
		return fmt.Errorf("shell resource requires a command")
	}
	return nil
}

// GitSpec checks out a revision of an existing source tree.
type GitSpec struct {
	Path     string
	Revision string
	Remote   string
	// Ownership is restored over the whole tree after a fetch. Mode is
	// ignored.
	Ownership Ownership
}

func (s *GitSpec) validate() error {
	if strings.TrimSpace(s.Path) == "" {
		return fmt.Errorf("git_checkout resource requires a path")
	}
	if strings.TrimSpace(s.Revision) == "" {
		return fmt.Errorf("git_checkout resource requires a revision")
	}
	return nil
}
