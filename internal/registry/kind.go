// Package registry tracks which extension owns each named resource in a shared
// runtime and resolves competing claims according to a per-kind merge policy.
package registry

import (
	"fmt"
	"strings"
)

// Kind is a resource namespace. Resource ids are unique only within a kind.
type Kind int

const (
	KindContentType Kind = iota
	KindRoute
	KindMenuEntry
	KindUIBlock
	KindFieldGroupExtension

	numKinds
)

var kindNames = [numKinds]string{
	KindContentType:         "content-type",
	KindRoute:               "route",
	KindMenuEntry:           "menu-entry",
	KindUIBlock:             "ui-block",
	KindFieldGroupExtension: "field-group-extension",
}

// Kinds returns every resource kind in catalog order.
func Kinds() []Kind {
	kinds := make([]Kind, 0, numKinds)
	for k := Kind(0); k < numKinds; k++ {
		kinds = append(kinds, k)
	}
	return kinds
}

// Valid reports whether k is part of the catalog.
func (k Kind) Valid() bool {
	return k >= 0 && k < numKinds
}

func (k Kind) String() string {
	if !k.Valid() {
		return fmt.Sprintf("kind(%d)", int(k))
	}
	return kindNames[k]
}

// MarshalText encodes the kind by name so it can be used as a JSON map key.
func (k Kind) MarshalText() ([]byte, error) {
	if !k.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownKind, int(k))
	}
	return []byte(kindNames[k]), nil
}

// UnmarshalText decodes a kind name.
func (k *Kind) UnmarshalText(text []byte) error {
	parsed, err := ParseKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// ParseKind maps a kind name (e.g. "content-type") to its Kind.
// Underscores are accepted in place of dashes so config keys like
// "content_type" resolve too.
func ParseKind(name string) (Kind, error) {
	normalized := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), "_", "-")
	for k, n := range kindNames {
		if n == normalized {
			return Kind(k), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownKind, name)
}
