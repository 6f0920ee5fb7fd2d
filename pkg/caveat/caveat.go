// Package caveat holds the table of acknowledged outdated dependencies.
//
// A caveat pins a dependency to a known-outdated state. It stays valid only
// while the registry still reports the snapshot it was written against:
// either the same declared range (OverrideVersion) or the same stable
// version (CurrentVersion). Once neither matches, the caveat is stale and no
// longer hides the dependency.
//
// The table is loaded once and never modified afterwards.
package caveat

import (
	"maps"
	"slices"
)

// Caveat records the situation under which an outdated dependency is accepted.
type Caveat struct {
	// OverrideVersion is the range the manifest intentionally declares.
	OverrideVersion string `json:"overrideVersion" toml:"overrideVersion" yaml:"overrideVersion"`
	// CurrentVersion is the stable registry version at the time of writing.
	CurrentVersion string `json:"currentVersion" toml:"currentVersion" yaml:"currentVersion"`
	// Reason is free-form documentation, not used for matching.
	Reason string `json:"reason,omitempty" toml:"reason,omitempty" yaml:"reason,omitempty"`
}

// Verdict is the result of evaluating an outdated dependency against the table.
type Verdict int

const (
	// NoCaveat means the table has no entry for the dependency.
	NoCaveat Verdict = iota
	// Suppressed means a matching caveat accepts the dependency as outdated.
	Suppressed
	// Stale means a caveat exists but no longer matches the registry.
	Stale
)

func (v Verdict) String() string {
	switch v {
	case NoCaveat:
		return "none"
	case Suppressed:
		return "suppressed"
	case Stale:
		return "stale"
	default:
		return "unknown"
	}
}

// Table maps dependency names to caveats. The zero value is an empty table.
type Table struct {
	entries map[string]Caveat
}

// NewTable copies entries into a new table.
func NewTable(entries map[string]Caveat) *Table {
	return &Table{entries: maps.Clone(entries)}
}

// Len returns the number of caveats.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.entries)
}

// Lookup returns the caveat for name.
func (t *Table) Lookup(name string) (Caveat, bool) {
	if t == nil {
		return Caveat{}, false
	}
	c, ok := t.entries[name]
	return c, ok
}

// Names returns the sorted dependency names with a caveat.
func (t *Table) Names() []string {
	if t == nil {
		return nil
	}
	return slices.Sorted(maps.Keys(t.entries))
}

// Evaluate decides how an outdated dependency is treated. A caveat matches
// when either the declared range or the stable version equals its
// recorded snapshot.
func (t *Table) Evaluate(name, required, stable string) Verdict {
	c, ok := t.Lookup(name)
	if !ok {
		return NoCaveat
	}
	if required == c.OverrideVersion || stable == c.CurrentVersion {
		return Suppressed
	}
	return Stale
}

// Unused returns the caveats whose dependency is not in reported, i.e.
// dependencies that are no longer outdated and can lose their caveat.
func (t *Table) Unused(reported []string) []string {
	var unused []string
	for _, name := range t.Names() {
		if !slices.Contains(reported, name) {
			unused = append(unused, name)
		}
	}
	return unused
}
