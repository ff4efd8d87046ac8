package recipes

import (
	"os"

	"github.com/datashades/converge/internal/config"
	"github.com/datashades/converge/internal/inventory"
	"github.com/datashades/converge/internal/resource"
)

// NFS paths.
const (
	ExportsFile    = "/etc/exports"
	AuditRulesFile = "/etc/audit/rules.d/datashades.rules"
)

// NFSDeploy creates the export directories, renders /etc/exports and
// (re)exports them.
func NFSDeploy(snap inventory.Snapshot) (*resource.Plan, error) {
	attrs := snap.Attributes().WithAuditRule(ExportsFile)

	mode, err := config.ParseMode(attrs.NFS.Mode)
	if err != nil {
		return nil, err
	}

	plan := resource.NewPlan("nfs-deploy")
	for _, export := range attrs.NFS.Exports {
		plan.Add(resource.Directory(export, attrs.NFS.Owner, attrs.NFS.Group, os.FileMode(mode), true))
	}

	exports, err := render("nfs-exports.tmpl", map[string]any{
		"Sitename": attrs.Sitename,
		"Exports":  attrs.NFS.Exports,
	})
	if err != nil {
		return nil, err
	}
	rules, err := render("audit.rules.tmpl", map[string]any{
		"Rules": attrs.Auditd.Rules,
		"Key":   "datashades",
	})
	if err != nil {
		return nil, err
	}

	plan.Add(
		resource.File(ExportsFile, exports, "root", "root", 0o644).Describe("Render NFS exports"),
		resource.File(AuditRulesFile, rules, "root", "root", 0o640).Describe("Watch audited files"),
		resource.Shell("augenrules", "augenrules --load").
			RunAs("root", "root").
			Subscribe(AuditRulesFile).
			Describe("Load audit rules"),
		resource.Service("nfs", resource.ServiceEnable, resource.ServiceRestart).Subscribe(ExportsFile),
		resource.Shell("exportfs", "exportfs -a").RunAs("root", "root"),
	)
	return plan, plan.Validate()
}
