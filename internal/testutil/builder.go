// Package testutil provides fixtures for tests that need populated
// registries or manifest files on disk.
package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/zjrosen/arbiter/internal/registry"
)

// Builder accumulates the claims of one extension.
type Builder struct {
	owner    string
	manifest registry.Manifest
}

// NewBuilder starts a manifest for owner.
func NewBuilder(owner string) *Builder {
	return &Builder{owner: owner}
}

// Owner returns the extension the manifest belongs to.
func (b *Builder) Owner() string {
	return b.owner
}

// WithContentType adds a content type claim.
func (b *Builder) WithContentType(id string, opts ...EntryOption) *Builder {
	b.manifest.ContentTypes = append(b.manifest.ContentTypes, newEntry(id, opts))
	return b
}

// WithRoutes adds route claims. Routes carry no metadata.
func (b *Builder) WithRoutes(paths ...string) *Builder {
	b.manifest.Routes = append(b.manifest.Routes, paths...)
	return b
}

// WithMenuEntry adds a menu entry claim.
func (b *Builder) WithMenuEntry(id string, opts ...EntryOption) *Builder {
	b.manifest.MenuEntries = append(b.manifest.MenuEntries, newEntry(id, opts))
	return b
}

// WithUIBlock adds a UI block claim.
func (b *Builder) WithUIBlock(id string, opts ...EntryOption) *Builder {
	b.manifest.UIBlocks = append(b.manifest.UIBlocks, newEntry(id, opts))
	return b
}

// WithFieldGroup adds a field group extension claim.
func (b *Builder) WithFieldGroup(id string, opts ...EntryOption) *Builder {
	b.manifest.FieldGroups = append(b.manifest.FieldGroups, newEntry(id, opts))
	return b
}

// Build returns the accumulated manifest.
func (b *Builder) Build() registry.Manifest {
	return b.manifest
}

// Register loads the manifest into reg and fails the test on an aborting
// error. Per-claim rejections are returned in the outcome.
func (b *Builder) Register(t *testing.T, reg *registry.Registry) registry.Outcome {
	t.Helper()
	out, err := reg.RegisterFromManifest(t.Context(), b.owner, b.manifest)
	require.NoError(t, err)
	return out
}

// YAML renders the manifest in the on-disk manifest format.
func (b *Builder) YAML(t *testing.T) []byte {
	t.Helper()
	doc := map[string]any{"owner": b.owner}
	if len(b.manifest.Routes) > 0 {
		doc["routes"] = b.manifest.Routes
	}
	for key, list := range map[string][]registry.Entry{
		"content_types": b.manifest.ContentTypes,
		"menu_entries":  b.manifest.MenuEntries,
		"ui_blocks":     b.manifest.UIBlocks,
		"field_groups":  b.manifest.FieldGroups,
	} {
		if len(list) > 0 {
			doc[key] = yamlEntries(list)
		}
	}
	data, err := yaml.Marshal(doc)
	require.NoError(t, err)
	return data
}

// WriteFile writes the manifest to dir/<name> and returns the path.
func (b *Builder) WriteFile(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750))
	require.NoError(t, os.WriteFile(path, b.YAML(t), 0o600))
	return path
}

func yamlEntries(list []registry.Entry) []map[string]any {
	out := make([]map[string]any, len(list))
	for i, e := range list {
		m := make(map[string]any, len(e.Metadata)+1)
		for k, v := range e.Metadata {
			m[k] = v
		}
		m["id"] = e.ID
		out[i] = m
	}
	return out
}
