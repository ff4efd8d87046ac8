package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	convergeerrors "github.com/datashades/converge/pkg/errors"
)

const minimalAttributes = `app_id: ckan
version: "2.8"
sitename: opendata
`

func writeAttributes(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "attributes.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestParseAttributesAppliesDefaults(t *testing.T) {
	t.Parallel()

	attrs, err := ParseAttributes(writeAttributes(t, minimalAttributes))
	require.NoError(t, err)

	assert.Equal(t, DefaultVirtualenv, attrs.CKANExt.Virtualenv)
	assert.Equal(t, DefaultCKANConfig, attrs.CKANExt.ConfigFile)
	assert.Equal(t, "ckan", attrs.CKANExt.User)
	assert.Equal(t, []string{
		"/data/nfs/shared_content",
		"/data/nfs/logs/opendata_nginx",
		"/data/nfs/logs/opendata_apache",
	}, attrs.NFS.Exports)
	assert.Equal(t, "root", attrs.NFS.Owner)
	assert.Equal(t, "ec2-user", attrs.NFS.Group)
	assert.Equal(t, "0775", attrs.NFS.Mode)
	assert.Equal(t, "auto", attrs.Settings.PackageManager)
	assert.Equal(t, DefaultShellTimeout, attrs.Settings.ShellTimeout.Std())
	assert.Equal(t, DefaultLockPath, attrs.Settings.LockPath)
	assert.False(t, attrs.CKANWeb.DataStoreEnabled())
	assert.Equal(t, "/usr/lib/ckan/default/src/ckanext-harvest", attrs.CKANExt.SourceDir("ckanext-harvest"))
}

func TestParseAttributesFull(t *testing.T) {
	t.Parallel()

	doc := minimalAttributes + `ckan_ext:
  packages: [libxml2-devel, geos-devel]
ckan_web:
  dsenable: "yes"
drupal_web:
  packages: [php-fpm]
settings:
  package_manager: yum
  shell_timeout: 90s
`
	attrs, err := ParseAttributes(writeAttributes(t, doc))
	require.NoError(t, err)
	assert.Equal(t, []string{"libxml2-devel", "geos-devel"}, attrs.CKANExt.Packages)
	assert.True(t, attrs.CKANWeb.DataStoreEnabled())
	assert.Equal(t, 90*time.Second, attrs.Settings.ShellTimeout.Std())
	assert.Equal(t, "yum", attrs.Settings.PackageManager)
}

func TestShellTimeoutAcceptsSeconds(t *testing.T) {
	t.Parallel()

	attrs, err := DecodeAttributes("inline", []byte(minimalAttributes+"settings:\n  shell_timeout: 120\n"))
	require.NoError(t, err)
	assert.Equal(t, 2*time.Minute, attrs.Settings.ShellTimeout.Std())
}

func TestParseAttributesErrors(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name  string
		doc   string
		field string
		line  int
	}{
		{name: "syntax error reports line", doc: "app_id: ckan\n  bad: indent\n", line: 2},
		{name: "unknown key", doc: minimalAttributes + "colour: blue\n", line: 4},
		{name: "bad duration", doc: minimalAttributes + "settings:\n  shell_timeout: soon\n", line: 5},
		{name: "missing app id", doc: "version: \"2.8\"\nsitename: x\n", field: "app_id"},
		{name: "bad dsenable", doc: minimalAttributes + "ckan_web:\n  dsenable: maybe\n", field: "ckan_web.dsenable"},
		{name: "bad package manager", doc: minimalAttributes + "settings:\n  package_manager: brew\n", field: "settings.package_manager"},
		{name: "bad nfs mode", doc: minimalAttributes + "nfs:\n  mode: \"0999\"\n", field: "nfs.mode"},
		{name: "relative export", doc: minimalAttributes + "nfs:\n  exports: [data/nfs]\n", field: "nfs.exports[0]"},
		{name: "bad sitename", doc: "app_id: ckan\nversion: \"2.8\"\nsitename: \"has space\"\n", field: "sitename"},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			_, err := DecodeAttributes("attributes.yaml", []byte(tc.doc))
			require.Error(t, err)

			if tc.field != "" {
				var verr *convergeerrors.ValidationError
				require.ErrorAs(t, err, &verr)
				assert.Equal(t, tc.field, verr.Field)
				return
			}
			var perr *convergeerrors.ParseError
			require.ErrorAs(t, err, &perr)
			assert.Equal(t, tc.line, perr.Line)
		})
	}
}

func TestParseAttributesMissingFile(t *testing.T) {
	t.Parallel()

	_, err := ParseAttributes(filepath.Join(t.TempDir(), "absent.yaml"))
	var perr *convergeerrors.ParseError
	require.ErrorAs(t, err, &perr)
}

func TestWithAuditRuleCopies(t *testing.T) {
	t.Parallel()

	attrs, err := DecodeAttributes("inline", []byte(minimalAttributes+"auditd:\n  rules: [/etc/passwd]\n"))
	require.NoError(t, err)

	updated := attrs.WithAuditRule("/etc/exports")
	assert.Equal(t, []string{"/etc/passwd"}, attrs.Auditd.Rules)
	assert.Equal(t, []string{"/etc/passwd", "/etc/exports"}, updated.Auditd.Rules)
	assert.Equal(t, updated.Auditd.Rules, updated.WithAuditRule("/etc/exports").Auditd.Rules)
}

func TestParseMode(t *testing.T) {
	t.Parallel()

	mode, err := ParseMode("0775")
	require.NoError(t, err)
	assert.Equal(t, uint32(0o775), mode)

	_, err = ParseMode("rwx")
	require.Error(t, err)
}
