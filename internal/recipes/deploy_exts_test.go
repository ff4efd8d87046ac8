package recipes

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datashades/converge/internal/config"
	"github.com/datashades/converge/internal/engine"
	"github.com/datashades/converge/internal/inventory"
	"github.com/datashades/converge/internal/model"
	"github.com/datashades/converge/internal/plugins"
	"github.com/datashades/converge/internal/plugins/internalexec"
	"github.com/datashades/converge/internal/resource"
)

type fixture struct {
	attrs config.Attributes
	ini   string
	venv  string
}

func newFixture(t *testing.T, extra string) fixture {
	t.Helper()
	dir := t.TempDir()
	venv := filepath.Join(dir, "venv")
	ini := filepath.Join(dir, "production.ini")
	doc := "app_id: ckan\nversion: \"2.8\"\nsitename: opendata\n" +
		"ckan_ext:\n  virtualenv: " + venv + "\n  config_file: " + ini + "\n" + extra
	attrs, err := config.DecodeAttributes("fixture", []byte(doc))
	require.NoError(t, err)
	return fixture{attrs: *attrs, ini: ini, venv: venv}
}

func (f fixture) writeIni(t *testing.T, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(f.ini, []byte(content), 0o644))
}

func ext(t *testing.T, short, revision string) inventory.ExtensionRecord {
	t.Helper()
	rec := inventory.Record{"shortname": short, "app_source.url": "https://github.com/example/" + short + ".git"}
	if revision != "" {
		rec["app_source.revision"] = revision
	}
	out, err := inventory.NewExtensionRecord(rec)
	require.NoError(t, err)
	return out
}

func identities(plan *resource.Plan) []string {
	out := make([]string, 0, plan.Len())
	for _, s := range plan.Steps {
		out = append(out, s.Identity)
	}
	return out
}

func evaluate(t *testing.T, d resource.Descriptor) bool {
	t.Helper()
	ok, err := d.Guard.Evaluate(context.Background())
	require.NoError(t, err)
	return ok
}

func TestHarvestEndToEnd(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "")
	f.writeIni(t, "[app:main]\nckan.plugins = stats text_view\nckan.views.default_views = image_view\n")
	snap := inventory.NewSnapshot(f.attrs, inventory.Record{}, false, []inventory.ExtensionRecord{ext(t, "org-ckanext-harvest", "")})

	plan, err := DeployExtensions(snap)
	require.NoError(t, err)
	require.Equal(t, "deploy-exts", plan.Name)

	srcDir := filepath.Join(f.venv, "src", "org-ckanext-harvest")
	require.Equal(t, []string{
		"pip-install:org-ckanext-harvest",
		srcDir,
		f.ini + "#^ckan.plugins+harvest ckan_harvester",
		"pip-extras:harvest",
		f.ini + "#^ckan.plugins+datastore",
		f.ini + "#^ckan.plugins+datapusher",
	}, identities(plan))

	install := plan.Steps[0]
	assert.Equal(t, resource.KindShell, install.Kind)
	assert.True(t, evaluate(t, install), "source directory is absent so install fires")
	assert.Equal(t, "ckan", install.Shell.User)
	assert.Contains(t, install.Shell.Command, `pip install -e "git+https://github.com/example/org-ckanext-harvest.git#egg=org-ckanext-harvest"`)

	checkout := plan.Steps[1]
	assert.Equal(t, resource.KindGitCheckout, checkout.Kind)
	assert.Equal(t, "master", checkout.Git.Revision)
	assert.Equal(t, resource.Ownership{Owner: "ckan", Group: "ckan"}, checkout.Git.Ownership, "the tree is handed back to the ckan user")
	assert.Nil(t, checkout.Guard)

	enable := plan.Steps[2]
	assert.Equal(t, resource.EditAppendToken, enable.Line.Edit)
	assert.Equal(t, "harvest ckan_harvester", enable.Line.Token)
	assert.Equal(t, "not_if grep("+f.ini+`, "ckan.plugins.*harvest ckan_harvester")`, enable.Guard.String())
	assert.True(t, evaluate(t, enable))

	extras := plan.Steps[3]
	assert.Contains(t, extras.Shell.Command, "pip install --cache-dir=/tmp/ jsonschema\npip install --cache-dir=/tmp/ pika")

	for _, step := range plan.Steps[4:] {
		assert.False(t, evaluate(t, step), "datastore trailer is gated off by dsenable")
	}
	for _, step := range plan.Steps {
		if step.Line != nil {
			assert.NotEqual(t, "^ckan.views.default_views", step.Line.Target, "harvest registers no view")
		}
	}
}

func TestInstallGuardSuppressedWhenSourcePresent(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "")
	require.NoError(t, os.MkdirAll(filepath.Join(f.venv, "src", "ckanext-spatial"), 0o755))
	snap := inventory.NewSnapshot(f.attrs, nil, false, []inventory.ExtensionRecord{ext(t, "ckanext-spatial", "v2")})

	plan, err := DeployExtensions(snap)
	require.NoError(t, err)
	assert.False(t, evaluate(t, plan.Steps[0]))
	assert.Equal(t, "v2", plan.Steps[1].Git.Revision)
	assert.Equal(t, "spatial_metadata spatial_query", plan.Steps[2].Line.Token)
}

func TestInstalledExtensionPlansNoInstall(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "")
	rec := ext(t, "ckanext-spatial", "v2")
	rec.Installed = true
	plan, err := DeployExtensions(inventory.NewSnapshot(f.attrs, nil, false, []inventory.ExtensionRecord{rec}))
	require.NoError(t, err)

	ids := identities(plan)
	assert.Equal(t, filepath.Join(f.venv, "src", "ckanext-spatial"), ids[0])
	for _, id := range ids {
		assert.False(t, strings.HasPrefix(id, "pip-install:"), id)
	}
}

func TestBatchNodeKeepsAllowListInOrder(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "")
	exts := []inventory.ExtensionRecord{
		ext(t, "ckanext-spatial", ""),
		ext(t, "ckanext-pdfview", ""),
		ext(t, "org-ckanext-harvest", ""),
		ext(t, "ckanext-qgov", ""),
		ext(t, "ckanext-datajson", ""),
	}

	selected := SelectExtensions(exts, true, DefaultPolicy())
	var names []string
	for _, e := range selected {
		names = append(names, e.PluginName)
	}
	assert.Equal(t, []string{"spatial", "harvest", "datajson"}, names)

	plan, err := DeployExtensions(inventory.NewSnapshot(f.attrs, nil, true, exts))
	require.NoError(t, err)
	var installs []string
	for _, id := range identities(plan) {
		if strings.HasPrefix(id, "pip-install:") {
			installs = append(installs, strings.TrimPrefix(id, "pip-install:"))
		}
	}
	assert.Equal(t, []string{"ckanext-spatial", "org-ckanext-harvest", "ckanext-datajson"}, installs)

	all := SelectExtensions(exts, false, DefaultPolicy())
	assert.Len(t, all, len(exts))
}

func TestRenameFallback(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "")
	snap := inventory.NewSnapshot(f.attrs, nil, false, []inventory.ExtensionRecord{ext(t, "ckanext-dcat", "")})
	plan, err := DeployExtensions(snap)
	require.NoError(t, err)
	assert.Equal(t, "dcat", plan.Steps[2].Line.Token)
	assert.Equal(t, "dcat", DefaultPolicy().ExtName("dcat"))
	assert.Equal(t, "pdf_view", DefaultPolicy().ExtName("pdfview"))
}

func TestViewAndToolEntries(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "")
	snap := inventory.NewSnapshot(f.attrs, nil, false, []inventory.ExtensionRecord{ext(t, "ckanext-cesiumpreview", "")})
	plan, err := DeployExtensions(snap)
	require.NoError(t, err)

	srcDir := filepath.Join(f.venv, "src", "ckanext-cesiumpreview")
	require.Equal(t, []string{
		"pip-install:ckanext-cesiumpreview",
		srcDir,
		f.ini + "#^ckan.plugins+cesium_viewer",
		f.ini + "#^ckan.views.default_views+cesium_viewer",
		"tool:cesiumpreview:geojson-extent",
		f.ini + "#^ckan.plugins+datastore",
		f.ini + "#^ckan.plugins+datapusher",
	}, identities(plan))

	tool := plan.Steps[4]
	assert.Equal(t, "npm install --save geojson-extent", tool.Shell.Command)
	assert.Equal(t, "root", tool.Shell.User)
	assert.Equal(t, srcDir, tool.Shell.WorkDir)
}

func TestPackagesComeFirst(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "  packages: [libxml2-devel, geos-devel]\n")
	plan, err := DeployExtensions(inventory.NewSnapshot(f.attrs, nil, false, nil))
	require.NoError(t, err)
	require.Equal(t, resource.KindPackage, plan.Steps[0].Kind)
	assert.Equal(t, []string{"libxml2-devel", "geos-devel"}, plan.Steps[0].Package.Names)
	assert.Equal(t, 3, plan.Len())
}

func TestPipRequirement(t *testing.T) {
	t.Parallel()

	cases := []struct{ url, want string }{
		{"https://github.com/ckan/ckanext-harvest.git", "git+https://github.com/ckan/ckanext-harvest.git#egg=ckanext-harvest"},
		{"http://example.org/x.git#egg=other", "git+http://example.org/x.git#egg=other"},
		{"git+https://example.org/x.git", "git+https://example.org/x.git#egg=ckanext-harvest"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, PipRequirement(tc.url, "ckanext-harvest"))
	}
}

func TestDatastoreTrailerWhenEnabled(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "ckan_web:\n  dsenable: \"yes\"\n")
	f.writeIni(t, "ckan.plugins = stats datastore\n")
	plan, err := DeployExtensions(inventory.NewSnapshot(f.attrs, nil, false, nil))
	require.NoError(t, err)
	require.Equal(t, 2, plan.Len())
	assert.False(t, evaluate(t, plan.Steps[0]), "datastore already enabled")
	assert.True(t, evaluate(t, plan.Steps[1]), "datapusher missing")
}

func runPlan(t *testing.T, plan *resource.Plan) *model.RunReport {
	t.Helper()
	reg, err := plugins.NewRegistry(plugins.Options{Runner: &internalexec.Fake{}, PackageManager: "yum"})
	require.NoError(t, err)
	eng, err := engine.New(engine.Options{Registry: reg})
	require.NoError(t, err)
	report, err := eng.Run(context.Background(), plan)
	require.NoError(t, err)
	return report
}

func reorderOnly(t *testing.T, f fixture) *resource.Plan {
	t.Helper()
	snap := inventory.NewSnapshot(f.attrs, nil, false, []inventory.ExtensionRecord{ext(t, "ckanext-viewhelpers", "")})
	full, err := DeployExtensions(snap)
	require.NoError(t, err)

	plan := resource.NewPlan("reorder")
	for _, step := range full.Steps {
		if step.Line != nil && step.Line.Edit == resource.EditReorder {
			plan.Add(step)
		}
	}
	require.Equal(t, 1, plan.Len())
	return plan
}

func TestViewhelpersReorderNormalizes(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "")
	f.writeIni(t, "ckan.plugins = viewhelpers text_view stats harvest\n")

	report := runPlan(t, reorderOnly(t, f))
	require.Equal(t, model.StatusApplied, report.Steps[0].Status)

	data, err := os.ReadFile(f.ini)
	require.NoError(t, err)
	assert.Equal(t, "ckan.plugins = text_view stats viewhelpers harvest\n", string(data))

	again := runPlan(t, reorderOnly(t, f))
	assert.Equal(t, model.StatusSkipped, again.Steps[0].Status)
	assert.Contains(t, again.Steps[0].Message, "guard not satisfied")
}

func TestViewhelpersAlreadyOrderedIsUntouched(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "")
	content := "ckan.plugins = stats viewhelpers text_view\n"
	f.writeIni(t, content)
	info, err := os.Stat(f.ini)
	require.NoError(t, err)

	report := runPlan(t, reorderOnly(t, f))
	assert.Equal(t, model.StatusSkipped, report.Steps[0].Status)

	data, err := os.ReadFile(f.ini)
	require.NoError(t, err)
	assert.Equal(t, content, string(data))
	after, err := os.Stat(f.ini)
	require.NoError(t, err)
	assert.Equal(t, info.ModTime(), after.ModTime())
}

func TestAppendTokenIsIdempotentThroughEngine(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "ckan_web:\n  dsenable: \"yes\"\n")
	f.writeIni(t, "ckan.plugins = stats\n")
	snap := inventory.NewSnapshot(f.attrs, nil, false, nil)

	plan, err := DeployExtensions(snap)
	require.NoError(t, err)
	first := runPlan(t, plan)
	assert.Equal(t, []string{model.StatusApplied, model.StatusApplied}, []string{first.Steps[0].Status, first.Steps[1].Status})

	plan, err = DeployExtensions(snap)
	require.NoError(t, err)
	second := runPlan(t, plan)
	assert.Equal(t, []string{model.StatusSkipped, model.StatusSkipped}, []string{second.Steps[0].Status, second.Steps[1].Status})

	data, err := os.ReadFile(f.ini)
	require.NoError(t, err)
	assert.Equal(t, "ckan.plugins = stats datastore datapusher\n", string(data))
}
