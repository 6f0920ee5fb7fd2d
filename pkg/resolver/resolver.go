// Package resolver finds the dependencies of a manifest that are behind
// their registry.
//
// [Resolver] is the boundary the freshness checker depends on. [Registry]
// implements it against an npm registry; [Func] adapts a plain function,
// which is what tests and alternative backends use.
package resolver

import (
	"context"

	"github.com/matzehuels/depcheck/pkg/manifest"
)

// Options controls a resolution.
type Options struct {
	// Stable compares against the newest non-prerelease version instead of
	// the newest version overall.
	Stable bool
	// Dev selects devDependencies instead of dependencies.
	Dev bool
	// Refresh bypasses cached registry responses.
	Refresh bool
}

// Outdated describes a dependency whose declared range does not include the
// registry's current version.
type Outdated struct {
	Name     string `json:"name"`
	Required string `json:"required"`
	Stable   string `json:"stable"`
	Latest   string `json:"latest,omitempty"`
	// Deprecated is the registry's deprecation message for the newest
	// version the declared range admits.
	Deprecated string `json:"deprecated,omitempty"`
}

// Resolver reports the outdated dependencies of one manifest group.
type Resolver interface {
	// Updated returns the outdated dependencies keyed by name. An empty map
	// means everything is current. Any lookup failure fails the whole call.
	Updated(ctx context.Context, m *manifest.Manifest, opts Options) (map[string]Outdated, error)
}

// Func adapts a function to the Resolver interface.
type Func func(ctx context.Context, m *manifest.Manifest, opts Options) (map[string]Outdated, error)

// Updated calls f.
func (f Func) Updated(ctx context.Context, m *manifest.Manifest, opts Options) (map[string]Outdated, error) {
	return f(ctx, m, opts)
}
