package recipes

import (
	"github.com/datashades/converge/internal/inventory"
	"github.com/datashades/converge/internal/resource"
)

const archiveHTTPDLogs = `/etc/cron.daily/logrotate
TIMESTAMP=$(date +'%s')
for logfile in $(ls -d /var/log/httpd/*log /var/log/httpd/*/*log 2>/dev/null); do
	mv "$logfile" "$logfile.$TIMESTAMP"
	gzip "$logfile.$TIMESTAMP"
done
/usr/local/bin/archive-logs.sh httpd`

// HTTPDShutdown stops httpd and archives whatever logs it left behind.
func HTTPDShutdown(inventory.Snapshot) (*resource.Plan, error) {
	plan := resource.NewPlan("httpd-shutdown")
	plan.Add(
		resource.Service("httpd", resource.ServiceStop),
		resource.Shell("archive-httpd-logs", archiveHTTPDLogs).
			RunAs("root", "root").
			In("/").
			Describe("Archive remaining logs"),
	)
	return plan, plan.Validate()
}
