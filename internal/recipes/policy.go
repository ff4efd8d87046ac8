package recipes

// Ordering requires Token to directly follow After on the plugins line.
type Ordering struct {
	Token string
	After string
}

// ToolInstall is an extra command an extension needs beyond pip.
type ToolInstall struct {
	Name    string
	Command string
	User    string
}

// ExtensionPolicy holds the per-plugin special cases of extension
// deployment. Keys are plugin names as derived from app shortnames.
type ExtensionPolicy struct {
	// BatchAllowList names the only plugins deployed on batch nodes.
	BatchAllowList []string
	// Renames maps a plugin name to the token(s) it registers on the
	// ckan.plugins line. Missing entries use the plugin name unchanged.
	Renames map[string]string
	// Views maps a plugin name to the view it adds to default_views.
	Views map[string]string
	// Extras lists additional pip packages.
	Extras map[string][]string
	Orderings map[string]Ordering
	Tools     map[string]ToolInstall
	// Trailer plugins are enabled after all extensions when the datastore
	// toggle is on.
	Trailer []string
}

// DefaultPolicy returns the tables used in production.
func DefaultPolicy() ExtensionPolicy {
	return ExtensionPolicy{
		BatchAllowList: []string{"datastore", "datapusher", "harvest", "datajson", "spatial"},
		Renames: map[string]string{
			"qgov":          "qgovext",
			"officedocs":    "officedocs_view",
			"cesiumpreview": "cesium_viewer",
			"basiccharts":   "linechart barchart piechart basicgrid",
			"scheming":      "scheming_datasets",
			"pdfview":       "pdf_view",
			"dashboard":     "dashboard_preview",
			"datajson":      "datajson datajson_harvest",
			"harvest":       "harvest ckan_harvester",
			"spatial":       "spatial_metadata spatial_query",
			"zippreview":    "zip_view",
		},
		Views: map[string]string{
			"officedocs":    "officedocs_view",
			"cesiumpreview": "cesium_viewer",
			"pdfview":       "pdf_view",
			"zippreview":    "zip_view",
		},
		Extras: map[string][]string{
			"datajson": {"jsonschema"},
			"harvest":  {"jsonschema", "pika"},
			"spatial":  {"geoalchemy2", "lxml"},
		},
		Orderings: map[string]Ordering{
			"viewhelpers": {Token: "viewhelpers", After: "stats"},
		},
		Tools: map[string]ToolInstall{
			"cesiumpreview": {Name: "geojson-extent", Command: "npm install --save geojson-extent", User: "root"},
		},
		Trailer: []string{"datastore", "datapusher"},
	}
}

// ExtName resolves the plugins-line token(s) for a plugin.
func (p ExtensionPolicy) ExtName(plugin string) string {
	if name, ok := p.Renames[plugin]; ok {
		return name
	}
	return plugin
}

// AllowedOnBatch reports whether plugin is deployed on batch nodes.
func (p ExtensionPolicy) AllowedOnBatch(plugin string) bool {
	for _, allowed := range p.BatchAllowList {
		if allowed == plugin {
			return true
		}
	}
	return false
}
