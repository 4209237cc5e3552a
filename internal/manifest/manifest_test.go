package manifest

import (
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/arbiter/internal/registry"
)

const shopManifest = `
owner: com.acme.shop
content_types:
  - id: product
    fields: 4
  - order
routes:
  - /shop
  - /shop/cart
menu_entries:
  - id: shop
    label: Shop
    weight: 10
ui_blocks:
  - id: hero
field_groups:
  - id: seo
    target: product
`

func TestParse_FullManifest(t *testing.T) {
	f, err := Parse([]byte(shopManifest))
	require.NoError(t, err)

	require.Equal(t, "com.acme.shop", f.Owner)
	require.Equal(t, []string{"/shop", "/shop/cart"}, f.Routes)
	require.Len(t, f.ContentTypes, 2)
	require.Equal(t, "product", f.ContentTypes[0].ID)
	require.Equal(t, map[string]any{"fields": 4}, f.ContentTypes[0].Metadata)
	require.Equal(t, "order", f.ContentTypes[1].ID)
	require.Nil(t, f.ContentTypes[1].Metadata)
	require.Equal(t, "Shop", f.MenuEntries[0].Metadata["label"])

	m := f.Manifest()
	require.Equal(t, 7, m.Len())
	require.Equal(t, registry.Metadata{"target": "product"}, m.FieldGroups[0].Metadata)
}

func TestParse_RequiresOwner(t *testing.T) {
	_, err := Parse([]byte("routes: [/a]\n"))
	require.ErrorIs(t, err, registry.ErrEmptyOwner)
}

func TestParse_RejectsDuplicateIDs(t *testing.T) {
	_, err := Parse([]byte("owner: a\nroutes: [/a, /a]\n"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "declared twice")
}

func TestParse_SameIDAcrossKindsAllowed(t *testing.T) {
	f, err := Parse([]byte("owner: a\nroutes: [x]\nui_blocks: [x]\n"))
	require.NoError(t, err)
	require.Equal(t, 2, f.Manifest().Len())
}

func TestParse_EntryWithoutID(t *testing.T) {
	_, err := Parse([]byte("owner: a\nui_blocks:\n  - label: nope\n"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "string id")
}

func TestParse_MalformedYAML(t *testing.T) {
	_, err := Parse([]byte("owner: [unterminated"))
	require.Error(t, err)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shop.manifest.yaml")
	require.NoError(t, os.WriteFile(path, []byte(shopManifest), 0o600))

	f, err := LoadFile(path)
	require.NoError(t, err)
	require.Equal(t, path, f.Path)
	require.Equal(t, "com.acme.shop", f.Owner)
}

func TestLoadFile_ErrorNamesPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.manifest.yaml")
	require.NoError(t, os.WriteFile(path, []byte("routes: [/a]\n"), 0o600))

	_, err := LoadFile(path)
	require.ErrorIs(t, err, registry.ErrEmptyOwner)
	require.Contains(t, err.Error(), path)
}

func TestLoadDir(t *testing.T) {
	fsys := fstest.MapFS{
		"ext/b/blog.manifest.yml":  {Data: []byte("owner: blog\nroutes: [/blog]\n")},
		"ext/a/shop.manifest.yaml": {Data: []byte(shopManifest)},
		"ext/a/README.md":          {Data: []byte("# not a manifest")},
		"ext/a/config.yaml":        {Data: []byte("owner: ignored\n")},
		"other/x.manifest.yaml":    {Data: []byte("owner: elsewhere\n")},
	}

	files, err := LoadDir(fsys, "ext")
	require.NoError(t, err)
	require.Len(t, files, 2)
	require.Equal(t, "com.acme.shop", files[0].Owner)
	require.Equal(t, "ext/a/shop.manifest.yaml", files[0].Path)
	require.Equal(t, "blog", files[1].Owner)
}

func TestLoadDir_Empty(t *testing.T) {
	fsys := fstest.MapFS{"ext/readme.txt": {Data: []byte("hi")}}

	_, err := LoadDir(fsys, "ext")
	require.ErrorIs(t, err, ErrNoManifests)
}

func TestLoadDir_ParseErrorNamesFile(t *testing.T) {
	fsys := fstest.MapFS{"ext/broken.manifest.yaml": {Data: []byte("routes: [/a]\n")}}

	_, err := LoadDir(fsys, "ext")
	require.Error(t, err)
	require.Contains(t, err.Error(), "ext/broken.manifest.yaml")
}

func TestIsManifestName(t *testing.T) {
	require.True(t, IsManifestName("a.manifest.yaml"))
	require.True(t, IsManifestName("a.manifest.yml"))
	require.False(t, IsManifestName("manifest.yaml"))
	require.False(t, IsManifestName("a.yaml"))
}
