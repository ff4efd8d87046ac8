package recipes

import (
	"errors"

	"github.com/datashades/converge/internal/inventory"
	"github.com/datashades/converge/internal/resource"
)

// DrupalWebSetup installs the Drupal web packages, runs nginx and registers
// the host in DNS.
func DrupalWebSetup(snap inventory.Snapshot) (*resource.Plan, error) {
	attrs := snap.Attributes()

	host := attrs.DNS.Host
	if host == "" {
		host = snap.Hostname()
	}
	if host == "" {
		return nil, errors.New("drupalweb-setup: instance has no hostname and dns.host is unset")
	}

	dns, err := AddDNS(attrs.DNS.Service, host)
	if err != nil {
		return nil, err
	}

	plan := resource.NewPlan("drupalweb-setup")
	plan.Add(InstallPackages(attrs.DrupalWeb.Packages...)...)
	plan.Add(resource.Service("nginx", resource.ServiceEnable, resource.ServiceStart))
	plan.Add(dns...)
	plan.Add(UpdateDNS()...)
	return plan, plan.Validate()
}
