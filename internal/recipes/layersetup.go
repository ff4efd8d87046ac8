package recipes

import (
	"regexp"

	"github.com/datashades/converge/internal/resource"
)

// Paths used by DNS registration.
const (
	HostnamesFile  = "/etc/hostnames"
	UpdateDNSPath  = "/sbin/updatedns"
	updateDNSAsset = "files/updatedns"
)

// InstallPackages declares the packages installed. No names yields no step.
func InstallPackages(names ...string) []resource.Descriptor {
	pkg := resource.Package(names...)
	if len(pkg.Package.Names) == 0 {
		return nil
	}
	return []resource.Descriptor{pkg.Describe("Install packages " + pkg.Identity)}
}

// AddDNS registers host under service in /etc/hostnames and installs the
// updatedns script.
func AddDNS(service, host string) ([]resource.Descriptor, error) {
	script, err := assets.ReadFile(updateDNSAsset)
	if err != nil {
		return nil, err
	}
	key := service + "_name"
	return []resource.Descriptor{
		resource.EnsureLine(HostnamesFile, key+"="+host, regexp.QuoteMeta(key), "").
			Describe("Add " + service + " DNS entry"),
		resource.File(UpdateDNSPath, string(script), "root", "root", 0o755).
			Describe("Install updatedns"),
	}, nil
}

// UpdateDNS runs the updatedns script.
func UpdateDNS() []resource.Descriptor {
	return []resource.Descriptor{
		resource.Shell("update-dns", UpdateDNSPath).
			RunAs("root", "root").
			Describe("Update DNS"),
	}
}
