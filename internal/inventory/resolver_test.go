package inventory

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	convergeerrors "github.com/datashades/converge/pkg/errors"
)

const sampleInventory = `instance:
  - hostname: web1
    self: true
    layer_ids: [layer-web]
  - hostname: batch1
    self: false
    layer_ids: [layer-batch]
layer:
  - shortname: ckan-2.8-web
    layer_id: layer-web
  - shortname: ckan-2.8-batch
    layer_id: layer-batch
app:
  - shortname: org-ckanext-harvest
    app_source:
      url: https://github.com/ckan/ckanext-harvest.git
      revision: null
  - shortname: ckanext_spatial
    app_source:
      url: https://github.com/ckan/ckanext-spatial.git
      revision: v2.0
  - shortname: drupal
    app_source:
      url: https://example.org/drupal.git
`

func newSample(t *testing.T) *FileResolver {
	t.Helper()
	r, err := NewFileResolver("inventory.yaml", []byte(sampleInventory))
	require.NoError(t, err)
	return r
}

func TestFindFirstAndAll(t *testing.T) {
	t.Parallel()

	r := newSample(t)
	ctx := context.Background()

	self, ok, err := r.FindFirst(ctx, IndexInstance, "self:true")
	require.NoError(t, err)
	require.True(t, ok)
	host, _ := self.String("hostname")
	assert.Equal(t, "web1", host)
	assert.Equal(t, []string{"layer-web"}, self.Strings("layer_ids"))

	apps, err := r.FindAll(ctx, IndexApp, "shortname:*ckanext*")
	require.NoError(t, err)
	require.Len(t, apps, 2)
	first, _ := apps[0].String("shortname")
	assert.Equal(t, "org-ckanext-harvest", first)

	url, ok := apps[1].String("app_source.url")
	require.True(t, ok)
	assert.Equal(t, "https://github.com/ckan/ckanext-spatial.git", url)

	_, ok = apps[0].String("app_source.revision")
	assert.False(t, ok, "null revision reads as absent")
}

func TestZeroMatchesAreNotErrors(t *testing.T) {
	t.Parallel()

	r := newSample(t)
	ctx := context.Background()

	_, ok, err := r.FindFirst(ctx, IndexLayer, "shortname:nothing-*")
	require.NoError(t, err)
	assert.False(t, ok)

	all, err := r.FindAll(ctx, IndexApp, "missing_field:x")
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestListFieldsMatchAnyElement(t *testing.T) {
	t.Parallel()

	r := newSample(t)
	recs, err := r.FindAll(context.Background(), IndexInstance, "layer_ids:layer-b*")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	host, _ := recs[0].String("hostname")
	assert.Equal(t, "batch1", host)
}

func TestReturnedRecordsAreCopies(t *testing.T) {
	t.Parallel()

	r := newSample(t)
	ctx := context.Background()
	rec, _, err := r.FindFirst(ctx, IndexInstance, "hostname:web1")
	require.NoError(t, err)
	rec["hostname"] = "mutated"

	again, _, err := r.FindFirst(ctx, IndexInstance, "hostname:web1")
	require.NoError(t, err)
	host, _ := again.String("hostname")
	assert.Equal(t, "web1", host)
}

func TestQueryErrors(t *testing.T) {
	t.Parallel()

	r := newSample(t)
	ctx := context.Background()

	cases := []struct {
		name  string
		index string
		query string
	}{
		{"no colon", IndexApp, "shortname"},
		{"empty field", IndexApp, ":x"},
		{"bad pattern", IndexApp, "shortname:[abc"},
		{"unknown index", "stack", "shortname:x"},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := r.FindAll(ctx, tc.index, tc.query)
			var rerr *convergeerrors.ResolverError
			require.ErrorAs(t, err, &rerr)
			assert.Equal(t, tc.index, rerr.Index)
		})
	}
}

func TestMalformedDocuments(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"not yaml":            "instance: [",
		"index not a list":    "app: {shortname: x}",
		"record not a map":    "app: [x, y]",
		"unknown index":       "stacks: []",
		"top level is a list": "- a\n- b\n",
	}
	for name, doc := range cases {
		doc := doc
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			_, err := NewFileResolver("bad.yaml", []byte(doc))
			var rerr *convergeerrors.ResolverError
			require.ErrorAs(t, err, &rerr)
		})
	}
}

func TestJSONInventory(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "inventory.json")
	doc := `{"instance": [{"hostname": "web1", "self": true, "meta": {"az": "ap-southeast-2a"}}]}`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	r, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{IndexInstance: 1}, r.Indexes())
	assert.Equal(t, path, r.Source())

	rec, ok, err := r.FindFirst(context.Background(), IndexInstance, "meta.az:ap-southeast-*")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []string{"hostname", "meta.az", "self"}, rec.Keys())
}

func TestEmptyDocument(t *testing.T) {
	t.Parallel()

	r, err := NewFileResolver("empty.yaml", nil)
	require.NoError(t, err)
	all, err := r.FindAll(context.Background(), IndexApp, "shortname:*")
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestLoadFileMissing(t *testing.T) {
	t.Parallel()

	_, err := LoadFile(filepath.Join(t.TempDir(), "nope.yaml"))
	var rerr *convergeerrors.ResolverError
	require.ErrorAs(t, err, &rerr)
}

func TestCancelledQuery(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newSample(t).FindAll(ctx, IndexApp, "shortname:*")
	require.ErrorIs(t, err, context.Canceled)
}
