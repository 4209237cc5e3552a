package registry

import (
	"fmt"
	"maps"
	"strings"
)

// Policy decides what happens when a claim targets a resource owned by
// someone else.
type Policy string

const (
	// PolicyIgnore keeps the existing owner and reports the claim as ignored.
	PolicyIgnore Policy = "ignore"
	// PolicyOverride hands the resource to the new claimant.
	PolicyOverride Policy = "override"
	// PolicyError rejects the claim and reports a per-resource failure.
	PolicyError Policy = "error"
	// PolicyFallback keeps the existing owner as the effective definition.
	PolicyFallback Policy = "fallback"
)

// Valid reports whether p is one of the known policies.
func (p Policy) Valid() bool {
	switch p {
	case PolicyIgnore, PolicyOverride, PolicyError, PolicyFallback:
		return true
	default:
		return false
	}
}

// ParsePolicy converts a configuration value into a Policy.
func ParsePolicy(value string) (Policy, error) {
	p := Policy(strings.ToLower(strings.TrimSpace(value)))
	if !p.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownPolicy, value)
	}
	return p, nil
}

// PolicyTable maps each kind to its active merge policy.
type PolicyTable map[Kind]Policy

// DefaultPolicies returns the built-in policy table. Kinds that carry
// structural or addressing meaning reject collisions; presentation-layer
// kinds let later-loaded extensions take over.
func DefaultPolicies() PolicyTable {
	return PolicyTable{
		KindContentType:         PolicyError,
		KindRoute:               PolicyError,
		KindMenuEntry:           PolicyOverride,
		KindUIBlock:             PolicyOverride,
		KindFieldGroupExtension: PolicyOverride,
	}
}

// Clone returns an independent copy of the table.
func (t PolicyTable) Clone() PolicyTable {
	out := make(PolicyTable, len(t))
	maps.Copy(out, t)
	return out
}

// Validate returns an error for the first unknown kind or policy value.
func (t PolicyTable) Validate() error {
	for _, k := range Kinds() {
		p, ok := t[k]
		if !ok {
			continue
		}
		if !p.Valid() {
			return fmt.Errorf("policy for %s: %w: %q", k, ErrUnknownPolicy, string(p))
		}
	}
	for k := range t {
		if !k.Valid() {
			return fmt.Errorf("%w: %d", ErrUnknownKind, int(k))
		}
	}
	return nil
}

// Strings renders the table with kind names as keys, for config files and
// diagnostics output.
func (t PolicyTable) Strings() map[string]string {
	out := make(map[string]string, len(t))
	for k, p := range t {
		out[k.String()] = string(p)
	}
	return out
}

// ParsePolicyTable builds a table from kind-name → policy-name pairs, as
// supplied by a configuration loader. Kinds missing from raw keep their
// default policy. Any unknown kind or policy value is an error.
func ParsePolicyTable(raw map[string]string) (PolicyTable, error) {
	table := DefaultPolicies()
	for name, value := range raw {
		k, err := ParseKind(name)
		if err != nil {
			return nil, err
		}
		p, err := ParsePolicy(value)
		if err != nil {
			return nil, fmt.Errorf("policy for %s: %w", k, err)
		}
		table[k] = p
	}
	return table, nil
}
