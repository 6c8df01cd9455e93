package auth

import (
	"fmt"
	"maps"
	"strings"
)

// AliasTable maps the logical role names used in route and page policies
// to the role names stored in the catalog, e.g. "member" to "student".
//
// A table is immutable once built. Version identifies the mapping so a
// policy change can be traced to the table that introduced it.
type AliasTable struct {
	version int
	aliases map[string]string
}

// DefaultAliases is version 1 of the alias table.
var DefaultAliases = MustAliasTable(1, map[string]string{
	"member":      RoleStudent,
	"teacher":     RoleStaff,
	"tech":        RoleTechTeam,
	"supervisors": RoleSupervisor,
})

// NewAliasTable builds a table from logical to canonical names. Names are
// matched case-insensitively. Chains are rejected: a canonical target may
// not itself be an alias, so every lookup is a single step.
func NewAliasTable(version int, aliases map[string]string) (*AliasTable, error) {
	if version < 1 {
		return nil, fmt.Errorf("alias table version must be positive, got %d", version)
	}

	t := &AliasTable{version: version, aliases: make(map[string]string, len(aliases))}
	for logical, canonical := range aliases {
		logical = strings.ToLower(strings.TrimSpace(logical))
		canonical = strings.ToLower(strings.TrimSpace(canonical))
		if logical == "" || canonical == "" {
			return nil, fmt.Errorf("alias table v%d: empty name in %q -> %q", version, logical, canonical)
		}
		if logical == canonical {
			return nil, fmt.Errorf("alias table v%d: %q maps to itself", version, logical)
		}
		t.aliases[logical] = canonical
	}

	for logical, canonical := range t.aliases {
		if _, chained := t.aliases[canonical]; chained {
			return nil, fmt.Errorf("alias table v%d: %q -> %q is chained", version, logical, canonical)
		}
	}
	return t, nil
}

// MustAliasTable is NewAliasTable that panics on error. For package-level tables.
func MustAliasTable(version int, aliases map[string]string) *AliasTable {
	t, err := NewAliasTable(version, aliases)
	if err != nil {
		panic(err)
	}
	return t
}

// Version returns the table version.
func (t *AliasTable) Version() int {
	return t.version
}

// Resolve returns the canonical name for name. Names without an alias,
// including canonical names themselves, are returned lower-cased and
// otherwise unchanged.
func (t *AliasTable) Resolve(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	if t == nil {
		return name
	}
	if canonical, ok := t.aliases[name]; ok {
		return canonical
	}
	return name
}

// ResolveAll resolves each name and drops duplicates, keeping first
// occurrences in order.
func (t *AliasTable) ResolveAll(names []string) []string {
	resolved := make([]string, len(names))
	for i, n := range names {
		resolved[i] = t.Resolve(n)
	}
	return dedupe(resolved)
}

// Mapping returns a copy of the logical to canonical mapping.
func (t *AliasTable) Mapping() map[string]string {
	return maps.Clone(t.aliases)
}
