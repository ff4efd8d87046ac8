package inventory

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/datashades/converge/internal/guard"
	convergeerrors "github.com/datashades/converge/pkg/errors"
)

// DefaultRevision is checked out when an app does not name a revision.
const DefaultRevision = "master"

// ExtensionQuery selects extension apps from the app index.
const ExtensionQuery = "shortname:*ckanext*"

var pluginPrefix = regexp.MustCompile(`^.*ckanext-`)

// ExtensionRecord is an extension app as the plan builder consumes it.
type ExtensionRecord struct {
	// ShortName has its first '_' replaced by '-'.
	ShortName string
	// PluginName is ShortName without everything up to "ckanext-".
	PluginName string
	SourceURL  string
	Revision   string
	// Installed reports whether the source checkout existed when the
	// snapshot was taken.
	Installed bool
}

// NormalizeShortName replaces the first underscore with a dash.
func NormalizeShortName(short string) string {
	return strings.Replace(short, "_", "-", 1)
}

// PluginName strips the leading "...ckanext-" from a normalized shortname.
func PluginName(short string) string {
	return pluginPrefix.ReplaceAllString(short, "")
}

// NewExtensionRecord converts an app record. It fails when the record has
// no shortname or source URL.
func NewExtensionRecord(app Record) (ExtensionRecord, error) {
	short, ok := app.String("shortname")
	if !ok || short == "" {
		return ExtensionRecord{}, fmt.Errorf("app record has no shortname")
	}
	short = NormalizeShortName(short)

	url, ok := app.String("app_source.url")
	if !ok || url == "" {
		return ExtensionRecord{}, fmt.Errorf("app %s has no app_source.url", short)
	}

	revision, ok := app.String("app_source.revision")
	if !ok || strings.TrimSpace(revision) == "" {
		revision = DefaultRevision
	}

	return ExtensionRecord{
		ShortName:  short,
		PluginName: PluginName(short),
		SourceURL:  url,
		Revision:   revision,
	}, nil
}

// FindExtensions returns every extension app in inventory order. sourceDir
// maps a shortname to its checkout directory for the Installed fact; nil
// skips the check.
func FindExtensions(ctx context.Context, r Resolver, sourceDir func(short string) string) ([]ExtensionRecord, error) {
	apps, err := r.FindAll(ctx, IndexApp, ExtensionQuery)
	if err != nil {
		return nil, err
	}

	out := make([]ExtensionRecord, 0, len(apps))
	for _, app := range apps {
		rec, err := NewExtensionRecord(app)
		if err != nil {
			return nil, convergeerrors.NewResolverError(IndexApp, ExtensionQuery, err)
		}
		if sourceDir != nil {
			dir := sourceDir(rec.ShortName)
			installed, err := guard.DirExists(dir).Check(ctx)
			if err != nil {
				return nil, convergeerrors.NewGuardEvaluationError(dir, "directory", err)
			}
			rec.Installed = installed
		}
		out = append(out, rec)
	}
	return out, nil
}

// Lookup is one index/query pair.
type Lookup struct {
	Index string
	Query string
}

// BatchLayerLookups returns the lookups used to locate the batch layer, in
// the order they are tried.
func BatchLayerLookups(appID, version string) []Lookup {
	return []Lookup{
		{IndexLayer, fmt.Sprintf("shortname:%s-%s-batch", appID, version)},
		{IndexApp, fmt.Sprintf("shortname:ckan-%s-batch", version)},
	}
}

// IsBatchNode reports whether instance belongs to the batch layer. A
// missing batch layer, or one without a layer_id, means false.
func IsBatchNode(ctx context.Context, r Resolver, instance Record, appID, version string) (bool, error) {
	var batch Record
	for _, l := range BatchLayerLookups(appID, version) {
		rec, found, err := r.FindFirst(ctx, l.Index, l.Query)
		if err != nil {
			return false, err
		}
		if found {
			batch = rec
			break
		}
	}
	if batch == nil {
		return false, nil
	}

	layerID, ok := batch.String("layer_id")
	if !ok {
		return false, nil
	}
	for _, id := range instance.Strings("layer_ids") {
		if id == layerID {
			return true, nil
		}
	}
	return false, nil
}
