package recipes

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/datashades/converge/internal/config"
	"github.com/datashades/converge/internal/guard"
	"github.com/datashades/converge/internal/inventory"
	"github.com/datashades/converge/internal/resource"
)

const (
	pluginsLine      = "^ckan.plugins"
	defaultViewsLine = "^ckan.views.default_views"
)

// DeployExtensions builds the extension deployment plan with the default
// policy tables.
func DeployExtensions(snap inventory.Snapshot) (*resource.Plan, error) {
	return DeployExtensionsWith(DefaultPolicy())(snap)
}

// DeployExtensionsWith returns a builder using policy.
func DeployExtensionsWith(policy ExtensionPolicy) Builder {
	return func(snap inventory.Snapshot) (*resource.Plan, error) {
		attrs := snap.Attributes()
		plan := resource.NewPlan("deploy-exts")
		plan.Add(InstallPackages(attrs.CKANExt.Packages...)...)

		for _, ext := range SelectExtensions(snap.Extensions(), snap.BatchNode(), policy) {
			steps, err := extensionSteps(attrs.CKANExt, ext, policy)
			if err != nil {
				return nil, err
			}
			plan.Add(steps...)
		}

		plan.Add(trailerSteps(attrs, policy)...)
		return plan, plan.Validate()
	}
}

// SelectExtensions keeps every record on a regular node and only
// allow-listed plugins on a batch node, preserving order.
func SelectExtensions(exts []inventory.ExtensionRecord, batchNode bool, policy ExtensionPolicy) []inventory.ExtensionRecord {
	out := make([]inventory.ExtensionRecord, 0, len(exts))
	for _, ext := range exts {
		if !batchNode || policy.AllowedOnBatch(ext.PluginName) {
			out = append(out, ext)
		}
	}
	return out
}

// PipRequirement turns an app source URL into a pip VCS requirement: http
// becomes git+http and an #egg fragment is added when missing.
func PipRequirement(sourceURL, shortName string) string {
	req := sourceURL
	if !strings.HasPrefix(req, "git+") {
		req = strings.Replace(req, "http", "git+http", 1)
	}
	if !strings.Contains(req, "#egg") {
		req += "#egg=" + shortName
	}
	return req
}

func extensionSteps(ext config.CKANExt, rec inventory.ExtensionRecord, policy ExtensionPolicy) ([]resource.Descriptor, error) {
	srcDir := ext.SourceDir(rec.ShortName)
	ini := ext.ConfigFile
	extname := policy.ExtName(rec.PluginName)

	var steps []resource.Descriptor
	// An existing checkout seen by the snapshot needs no install. The guard
	// still covers a tree that appears between snapshot and run.
	if !rec.Installed {
		steps = append(steps, resource.Shell("pip-install:"+rec.ShortName, pipInstallScript(ext.Virtualenv, srcDir, PipRequirement(rec.SourceURL, rec.ShortName))).
			RunAs(ext.User, ext.Group).
			WithGuard(guard.NotIf(guard.DirExists(srcDir))).
			Describe(fmt.Sprintf("Pip install %s", rec.ShortName)))
	}
	steps = append(steps, resource.GitCheckout(srcDir, rec.Revision).
		OwnedBy(ext.User, ext.Group).
		Describe(fmt.Sprintf("Check out %s at %s", rec.ShortName, rec.Revision)))

	enabled, err := guard.FileMatches(ini, "ckan.plugins.*"+regexp.QuoteMeta(extname))
	if err != nil {
		return nil, err
	}
	steps = append(steps, resource.AppendToken(ini, pluginsLine, extname).
		WithGuard(guard.NotIf(enabled)).
		Describe(fmt.Sprintf("Enable %s plugin", rec.ShortName)))

	if view, ok := policy.Views[rec.PluginName]; ok {
		registered, err := guard.FileMatches(ini, "ckan.views.default_views.*"+regexp.QuoteMeta(view))
		if err != nil {
			return nil, err
		}
		steps = append(steps, resource.AppendToken(ini, defaultViewsLine, view).
			WithGuard(guard.NotIf(registered)).
			Describe(fmt.Sprintf("Register %s default view", rec.ShortName)))
	}

	if order, ok := policy.Orderings[rec.PluginName]; ok {
		present, err := guard.FileMatches(ini, regexp.QuoteMeta(order.Token))
		if err != nil {
			return nil, err
		}
		ordered, err := guard.FileMatches(ini, regexp.QuoteMeta(order.After+" "+order.Token))
		if err != nil {
			return nil, err
		}
		steps = append(steps, resource.Reorder(ini, pluginsLine, order.Token, order.After).
			WithGuard(guard.OnlyIf(guard.All(present, guard.Not(ordered)))).
			Describe(fmt.Sprintf("Load %s after %s", order.Token, order.After)))
	}

	if extras, ok := policy.Extras[rec.PluginName]; ok && len(extras) > 0 {
		steps = append(steps, resource.Shell("pip-extras:"+rec.PluginName, pipExtrasScript(ext.Virtualenv, extras)).
			RunAs(ext.User, ext.Group).
			Describe(fmt.Sprintf("Install extra pip packages for %s: %s", rec.PluginName, strings.Join(extras, " "))))
	}

	if tool, ok := policy.Tools[rec.PluginName]; ok {
		steps = append(steps, resource.Shell("tool:"+rec.PluginName+":"+tool.Name, tool.Command).
			RunAs(tool.User, tool.User).
			In(srcDir).
			Describe(fmt.Sprintf("Install %s for %s", tool.Name, rec.PluginName)))
	}

	return steps, nil
}

func trailerSteps(attrs config.Attributes, policy ExtensionPolicy) []resource.Descriptor {
	ini := attrs.CKANExt.ConfigFile
	toggle := guard.Flag("dsenable", attrs.CKANWeb.DataStoreEnabled())

	steps := make([]resource.Descriptor, 0, len(policy.Trailer))
	for _, plugin := range policy.Trailer {
		enabled := guard.MustFileMatches(ini, "ckan.plugins.*"+regexp.QuoteMeta(plugin))
		steps = append(steps, resource.AppendToken(ini, pluginsLine, plugin).
			WithGuard(guard.OnlyIf(guard.All(toggle, guard.Not(enabled)))).
			Describe(fmt.Sprintf("Enable %s plugin", plugin)))
	}
	return steps
}

func pipInstallScript(venv, srcDir, requirement string) string {
	return strings.Join([]string{
		fmt.Sprintf(". %s/bin/activate", venv),
		fmt.Sprintf("pip install -e %q", requirement),
		fmt.Sprintf("cd %q", srcDir),
		`if [ -f "requirements.txt" ]; then`,
		`	pip install --cache-dir=/tmp/ -r requirements.txt`,
		`fi`,
		`if [ -f "pip-requirements.txt" ]; then`,
		`	pip install --cache-dir=/tmp/ -r pip-requirements.txt`,
		`fi`,
	}, "\n")
}

func pipExtrasScript(venv string, packages []string) string {
	lines := []string{fmt.Sprintf(". %s/bin/activate", venv)}
	for _, pkg := range packages {
		lines = append(lines, "pip install --cache-dir=/tmp/ "+pkg)
	}
	return strings.Join(lines, "\n")
}
