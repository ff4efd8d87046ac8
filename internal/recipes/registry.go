// Package recipes turns an inventory snapshot into resource plans.
package recipes

import (
	"fmt"
	"sort"

	"github.com/datashades/converge/internal/inventory"
	"github.com/datashades/converge/internal/resource"
)

// Builder builds a plan from a snapshot. Builders are pure: they read the
// snapshot and return descriptors without touching the host.
type Builder func(snap inventory.Snapshot) (*resource.Plan, error)

// Recipe is a named builder.
type Recipe struct {
	Name        string
	Description string
	Build       Builder
}

var catalogue = []Recipe{
	{Name: "deploy-exts", Description: "Install, check out and enable CKAN extensions", Build: DeployExtensions},
	{Name: "nfs-deploy", Description: "Create NFS export directories and export them", Build: NFSDeploy},
	{Name: "httpd-shutdown", Description: "Stop httpd and archive its logs", Build: HTTPDShutdown},
	{Name: "drupalweb-setup", Description: "Install Drupal web packages, nginx and DNS", Build: DrupalWebSetup},
}

// All returns every recipe sorted by name.
func All() []Recipe {
	out := append([]Recipe(nil), catalogue...)
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Lookup finds a recipe by name.
func Lookup(name string) (Recipe, error) {
	for _, r := range catalogue {
		if r.Name == name {
			return r, nil
		}
	}
	return Recipe{}, fmt.Errorf("unknown recipe %q", name)
}

// Names returns the recipe names sorted.
func Names() []string {
	all := All()
	names := make([]string, 0, len(all))
	for _, r := range all {
		names = append(names, r.Name)
	}
	return names
}
