package testutil

import "github.com/zjrosen/arbiter/internal/registry"

// EntryOption configures one claimed entry.
type EntryOption func(*registry.Entry)

// Meta sets one metadata key on the entry.
func Meta(key string, value any) EntryOption {
	return func(e *registry.Entry) {
		if e.Metadata == nil {
			e.Metadata = registry.Metadata{}
		}
		e.Metadata[key] = value
	}
}

// Label is shorthand for Meta("label", label).
func Label(label string) EntryOption {
	return Meta("label", label)
}

// Weight is shorthand for Meta("weight", weight), as used by menu entries.
func Weight(weight int) EntryOption {
	return Meta("weight", weight)
}

func newEntry(id string, opts []EntryOption) registry.Entry {
	e := registry.Entry{ID: id}
	for _, opt := range opts {
		opt(&e)
	}
	return e
}
