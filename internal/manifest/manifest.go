// Package manifest loads extension manifests from YAML files.
package manifest

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	stdpath "path"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/zjrosen/arbiter/internal/log"
	"github.com/zjrosen/arbiter/internal/registry"
)

// ErrNoManifests is returned by LoadDir when the walk finds no manifest files.
var ErrNoManifests = errors.New("no manifests found")

// File is the root structure of a *.manifest.yaml document.
type File struct {
	Owner        string   `yaml:"owner"`         // Extension id, e.g. "com.acme.shop"
	ContentTypes []Entry  `yaml:"content_types"` // Data model declarations
	Routes       []string `yaml:"routes"`        // URL paths, plain strings
	MenuEntries  []Entry  `yaml:"menu_entries"`
	UIBlocks     []Entry  `yaml:"ui_blocks"`
	FieldGroups  []Entry  `yaml:"field_groups"`

	// Path is the file the manifest was loaded from, empty for Parse.
	Path string `yaml:"-"`
}

// Entry is a list item with an id. Every other key is kept as metadata.
type Entry struct {
	ID       string
	Metadata map[string]any
}

// UnmarshalYAML decodes `{id: x, ...}` into an Entry. A bare scalar is
// accepted as shorthand for `{id: x}`.
func (e *Entry) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		e.ID = node.Value
		return nil
	}

	var raw map[string]any
	if err := node.Decode(&raw); err != nil {
		return err
	}
	id, ok := raw["id"].(string)
	if !ok {
		return fmt.Errorf("line %d: entry needs a string id", node.Line)
	}
	delete(raw, "id")

	e.ID = id
	if len(raw) > 0 {
		e.Metadata = raw
	}
	return nil
}

// Parse decodes a single manifest document.
func Parse(content []byte) (File, error) {
	var f File
	if err := yaml.Unmarshal(content, &f); err != nil {
		return File{}, err
	}
	if err := f.validate(); err != nil {
		return File{}, err
	}
	return f, nil
}

// LoadFile reads and parses the manifest at path.
func LoadFile(path string) (File, error) {
	content, err := os.ReadFile(path) //nolint:gosec // G304: path is an operator-supplied manifest
	if err != nil {
		return File{}, fmt.Errorf("read %s: %w", path, err)
	}
	f, err := Parse(content)
	if err != nil {
		return File{}, fmt.Errorf("parse %s: %w", path, err)
	}
	f.Path = path
	log.Debug(log.CatManifest, "Loaded manifest", "path", path, "owner", f.Owner, "resources", f.Manifest().Len())
	return f, nil
}

// LoadDir walks root in fsys and parses every *.manifest.yaml and
// *.manifest.yml file, in lexical path order.
func LoadDir(fsys fs.FS, root string) ([]File, error) {
	var files []File

	err := fs.WalkDir(fsys, root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !IsManifestName(d.Name()) {
			return nil
		}

		content, err := fs.ReadFile(fsys, path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		f, err := Parse(content)
		if err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
		f.Path = stdpath.Clean(path)
		files = append(files, f)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan manifests: %w", err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w under %s", ErrNoManifests, root)
	}

	log.Debug(log.CatManifest, "Scanned manifests", "root", root, "count", len(files))
	return files, nil
}

// IsManifestName reports whether name follows the manifest file convention.
func IsManifestName(name string) bool {
	return strings.HasSuffix(name, ".manifest.yaml") || strings.HasSuffix(name, ".manifest.yml")
}

// Manifest converts the file into the registry's input form.
func (f File) Manifest() registry.Manifest {
	return registry.Manifest{
		ContentTypes: entries(f.ContentTypes),
		Routes:       append([]string(nil), f.Routes...),
		MenuEntries:  entries(f.MenuEntries),
		UIBlocks:     entries(f.UIBlocks),
		FieldGroups:  entries(f.FieldGroups),
	}
}

func entries(in []Entry) []registry.Entry {
	if len(in) == 0 {
		return nil
	}
	out := make([]registry.Entry, len(in))
	for i, e := range in {
		out[i] = registry.Entry{ID: e.ID, Metadata: registry.Metadata(e.Metadata)}
	}
	return out
}

// validate requires an owner and rejects an id declared twice for the same
// kind within one file.
func (f File) validate() error {
	if strings.TrimSpace(f.Owner) == "" {
		return registry.ErrEmptyOwner
	}

	check := func(kind registry.Kind, ids []string) error {
		seen := make(map[string]bool, len(ids))
		for _, id := range ids {
			if id == "" {
				return fmt.Errorf("%s: %w", kind, registry.ErrEmptyResourceID)
			}
			if seen[id] {
				return fmt.Errorf("%s %q declared twice", kind, id)
			}
			seen[id] = true
		}
		return nil
	}

	lists := []struct {
		kind registry.Kind
		ids  []string
	}{
		{registry.KindContentType, ids(f.ContentTypes)},
		{registry.KindRoute, f.Routes},
		{registry.KindMenuEntry, ids(f.MenuEntries)},
		{registry.KindUIBlock, ids(f.UIBlocks)},
		{registry.KindFieldGroupExtension, ids(f.FieldGroups)},
	}
	for _, l := range lists {
		if err := check(l.kind, l.ids); err != nil {
			return err
		}
	}
	return nil
}

func ids(in []Entry) []string {
	out := make([]string, len(in))
	for i, e := range in {
		out[i] = e.ID
	}
	return out
}
