package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/zjrosen/arbiter/internal/registry"
)

// SetPolicy writes kind's policy into the config file's policies section.
// Comments and formatting elsewhere in the file are preserved by editing
// the yaml.Node tree. The file is created if missing.
func SetPolicy(configPath string, kind registry.Kind, policy registry.Policy) error {
	if !kind.Valid() {
		return fmt.Errorf("%w: %d", registry.ErrUnknownKind, int(kind))
	}
	if !policy.Valid() {
		return fmt.Errorf("%w: %q", registry.ErrUnknownPolicy, string(policy))
	}

	data, err := os.ReadFile(configPath) //nolint:gosec // G304: operator-supplied config path
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("reading config: %w", err)
	}

	var doc yaml.Node
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return fmt.Errorf("parsing config: %w", err)
		}
	}

	if doc.Kind == 0 {
		doc = yaml.Node{
			Kind:    yaml.DocumentNode,
			Content: []*yaml.Node{{Kind: yaml.MappingNode}},
		}
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 || doc.Content[0].Kind != yaml.MappingNode {
		return fmt.Errorf("parsing config: top level is not a mapping")
	}

	policies := mappingValue(doc.Content[0], "policies")
	setScalar(policies, policyKey(kind), string(policy))

	var buf bytes.Buffer
	encoder := yaml.NewEncoder(&buf)
	encoder.SetIndent(2)
	if err := encoder.Encode(&doc); err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	_ = encoder.Close()

	return writeAtomic(configPath, buf.Bytes())
}

// policyKey renders kind the way the default template spells it.
func policyKey(kind registry.Kind) string {
	return map[registry.Kind]string{
		registry.KindContentType:         "content_type",
		registry.KindRoute:               "route",
		registry.KindMenuEntry:           "menu_entry",
		registry.KindUIBlock:             "ui_block",
		registry.KindFieldGroupExtension: "field_group_extension",
	}[kind]
}

// mappingValue returns the mapping stored under key in m, creating it (or
// replacing a non-mapping value) as needed.
func mappingValue(m *yaml.Node, key string) *yaml.Node {
	for i := 0; i < len(m.Content)-1; i += 2 {
		if m.Content[i].Value == key {
			if m.Content[i+1].Kind != yaml.MappingNode {
				m.Content[i+1] = &yaml.Node{Kind: yaml.MappingNode}
			}
			return m.Content[i+1]
		}
	}
	value := &yaml.Node{Kind: yaml.MappingNode}
	m.Content = append(m.Content, &yaml.Node{Kind: yaml.ScalarNode, Value: key}, value)
	return value
}

// setScalar sets key to value in m. Any spelling of the same kind ("route",
// "Route", "content-type" for "content_type") is replaced in place.
func setScalar(m *yaml.Node, key, value string) {
	want, _ := registry.ParseKind(key)
	for i := 0; i < len(m.Content)-1; i += 2 {
		if k, err := registry.ParseKind(m.Content[i].Value); err == nil && k == want {
			m.Content[i+1] = &yaml.Node{Kind: yaml.ScalarNode, Value: value}
			return
		}
	}
	m.Content = append(m.Content,
		&yaml.Node{Kind: yaml.ScalarNode, Value: key},
		&yaml.Node{Kind: yaml.ScalarNode, Value: value},
	)
}

// writeAtomic writes to a temp file in the target directory and renames it.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	temp, err := os.CreateTemp(dir, ".arbiter.yaml.tmp.*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tempPath := temp.Name()

	if _, err := temp.Write(data); err != nil {
		_ = temp.Close()
		_ = os.Remove(tempPath)
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := temp.Close(); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("closing temp file: %w", err)
	}

	if err := os.Rename(tempPath, path); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("renaming temp file: %w", err)
	}
	return nil
}
