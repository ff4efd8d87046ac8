package config

import (
	"fmt"
	"path"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults used when the attributes document leaves a value unset.
const (
	DefaultVirtualenv   = "/usr/lib/ckan/default"
	DefaultCKANConfig   = "/etc/ckan/default/production.ini"
	DefaultShellTimeout = 30 * time.Minute
	DefaultLockPath     = "/var/lock/converge.lock"
	DefaultJournalPath  = "/var/lib/converge/journal.db"
	DefaultDNSService   = "drupal"
)

// Attributes are the node attributes a recipe is built from. They are
// decoded once per invocation and never mutated afterwards.
type Attributes struct {
	AppID    string `yaml:"app_id" validate:"required,shortname"`
	Version  string `yaml:"version" validate:"required"`
	Sitename string `yaml:"sitename" validate:"required,shortname"`

	CKANExt   CKANExt   `yaml:"ckan_ext"`
	CKANWeb   CKANWeb   `yaml:"ckan_web"`
	DrupalWeb DrupalWeb `yaml:"drupal_web"`
	NFS       NFS       `yaml:"nfs"`
	Auditd    Auditd    `yaml:"auditd"`
	DNS       DNS       `yaml:"dns"`
	Settings  Settings  `yaml:"settings"`
}

// CKANExt configures extension deployment.
type CKANExt struct {
	Packages   []string `yaml:"packages" validate:"omitempty,dive,required"`
	Virtualenv string   `yaml:"virtualenv" validate:"omitempty,abspath"`
	ConfigFile string   `yaml:"config_file" validate:"omitempty,abspath"`
	// User and Group own the virtualenv and run pip.
	User  string `yaml:"user"`
	Group string `yaml:"group"`
}

// SourceDir is where pip installs an editable extension checkout.
func (c CKANExt) SourceDir(shortName string) string {
	return path.Join(c.Virtualenv, "src", shortName)
}

type CKANWeb struct {
	DSEnable string `yaml:"dsenable" validate:"omitempty,oneof=yes no"`
}

// DataStoreEnabled reports whether the datastore plugins should be enabled.
func (c CKANWeb) DataStoreEnabled() bool {
	return c.DSEnable == "yes"
}

type DrupalWeb struct {
	Packages []string `yaml:"packages" validate:"omitempty,dive,required"`
}

// NFS lists the directories exported by an NFS node.
type NFS struct {
	Exports []string `yaml:"exports" validate:"omitempty,dive,abspath"`
	Owner   string   `yaml:"owner"`
	Group   string   `yaml:"group"`
	Mode    string   `yaml:"mode" validate:"omitempty,octal_mode"`
}

type Auditd struct {
	Rules []string `yaml:"rules"`
}

// DNS names the service registered in /etc/hostnames.
type DNS struct {
	Service string `yaml:"service" validate:"omitempty,shortname"`
	Host    string `yaml:"host"`
}

// Settings tune the engine rather than the host.
type Settings struct {
	PackageManager  string   `yaml:"package_manager" validate:"omitempty,pkg_manager"`
	Shell           string   `yaml:"shell"`
	ShellTimeout    Duration `yaml:"shell_timeout"`
	LockPath        string   `yaml:"lock_path" validate:"omitempty,abspath"`
	JournalPath     string   `yaml:"journal_path"`
	MetricsTextfile string   `yaml:"metrics_textfile"`
}

// Duration decodes Go duration strings such as "90s" or "30m".
type Duration time.Duration

// UnmarshalYAML accepts a duration string or a plain number of seconds.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: duration must be a scalar", value.Line)
	}
	raw := strings.TrimSpace(value.Value)
	if raw == "" {
		*d = 0
		return nil
	}
	var secs int64
	if err := value.Decode(&secs); err == nil {
		*d = Duration(time.Duration(secs) * time.Second)
		return nil
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) Std() time.Duration { return time.Duration(d) }

// applyDefaults fills unset values. Export paths depend on Sitename so it
// runs after decoding.
func (a *Attributes) applyDefaults() {
	if a.CKANExt.Virtualenv == "" {
		a.CKANExt.Virtualenv = DefaultVirtualenv
	}
	if a.CKANExt.ConfigFile == "" {
		a.CKANExt.ConfigFile = DefaultCKANConfig
	}
	if a.CKANExt.User == "" {
		a.CKANExt.User = "ckan"
	}
	if a.CKANExt.Group == "" {
		a.CKANExt.Group = "ckan"
	}
	if len(a.NFS.Exports) == 0 && a.Sitename != "" {
		a.NFS.Exports = []string{
			"/data/nfs/shared_content",
			fmt.Sprintf("/data/nfs/logs/%s_nginx", a.Sitename),
			fmt.Sprintf("/data/nfs/logs/%s_apache", a.Sitename),
		}
	}
	if a.NFS.Owner == "" {
		a.NFS.Owner = "root"
	}
	if a.NFS.Group == "" {
		a.NFS.Group = "ec2-user"
	}
	if a.NFS.Mode == "" {
		a.NFS.Mode = "0775"
	}
	if a.DNS.Service == "" {
		a.DNS.Service = DefaultDNSService
	}
	if a.Settings.PackageManager == "" {
		a.Settings.PackageManager = "auto"
	}
	if a.Settings.ShellTimeout == 0 {
		a.Settings.ShellTimeout = Duration(DefaultShellTimeout)
	}
	if a.Settings.LockPath == "" {
		a.Settings.LockPath = DefaultLockPath
	}
	if a.Settings.JournalPath == "" {
		a.Settings.JournalPath = DefaultJournalPath
	}
}

// WithAuditRule returns a copy of a with rule appended to the auditd rules.
// The receiver is left untouched.
func (a Attributes) WithAuditRule(rule string) Attributes {
	for _, existing := range a.Auditd.Rules {
		if existing == rule {
			return a
		}
	}
	rules := make([]string, 0, len(a.Auditd.Rules)+1)
	rules = append(rules, a.Auditd.Rules...)
	a.Auditd.Rules = append(rules, rule)
	return a
}
