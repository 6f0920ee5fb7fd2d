package resolver

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/Masterminds/semver/v3"
	"golang.org/x/sync/errgroup"

	deperrors "github.com/matzehuels/depcheck/pkg/errors"
	"github.com/matzehuels/depcheck/pkg/integrations"
	"github.com/matzehuels/depcheck/pkg/integrations/npm"
	"github.com/matzehuels/depcheck/pkg/manifest"
)

// DefaultConcurrency bounds the number of in-flight registry requests.
const DefaultConcurrency = 8

// Fetcher retrieves registry metadata for a package.
type Fetcher interface {
	FetchPackage(ctx context.Context, name string, refresh bool) (*npm.PackageInfo, error)
}

// Registry resolves outdated dependencies by querying an npm registry.
type Registry struct {
	fetcher     Fetcher
	concurrency int
}

// NewRegistry creates a Registry. concurrency <= 0 selects DefaultConcurrency.
func NewRegistry(f Fetcher, concurrency int) *Registry {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	return &Registry{fetcher: f, concurrency: concurrency}
}

// Updated fetches every dependency of the selected group and returns those
// whose declared range is behind. Dependencies declared with something other
// than a semver range (git URLs, local paths, dist-tags) are skipped.
func (r *Registry) Updated(ctx context.Context, m *manifest.Manifest, opts Options) (map[string]Outdated, error) {
	group := m.Group(opts.Dev)
	out := make(map[string]Outdated)
	var mu sync.Mutex

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)

	for _, name := range m.Names(opts.Dev) {
		required := group[name]
		constraint, ok := parseRange(required)
		if !ok {
			continue
		}

		g.Go(func() error {
			info, err := r.fetcher.FetchPackage(ctx, name, opts.Refresh)
			if err != nil {
				return fetchError(name, err)
			}
			o, ok := compare(name, required, constraint, info, opts.Stable)
			if !ok {
				return nil
			}
			mu.Lock()
			out[name] = o
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func fetchError(name string, err error) error {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	case errors.Is(err, integrations.ErrNotFound):
		return deperrors.Wrap(deperrors.ErrCodeNotFound, err, "package %s", name)
	default:
		return deperrors.Wrap(deperrors.ErrCodeNetwork, err, "fetch %s", name)
	}
}

// nonSemverPrefixes mark dependency specs that do not name a registry range.
var nonSemverPrefixes = []string{
	"git+", "git:", "git@", "http:", "https:", "file:", "link:",
	"github:", "gitlab:", "bitbucket:", "npm:", "workspace:", "portal:",
}

// parseRange parses a declared npm range. ok is false for specs that are
// not semver ranges.
func parseRange(spec string) (*semver.Constraints, bool) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return nil, false
	}
	for _, p := range nonSemverPrefixes {
		if strings.HasPrefix(spec, p) {
			return nil, false
		}
	}
	// "user/repo" is GitHub shorthand.
	if strings.Contains(spec, "/") {
		return nil, false
	}
	c, err := semver.NewConstraint(spec)
	if err != nil {
		return nil, false
	}
	return c, true
}

// compare reports whether the declared range is behind the registry. ok is
// false when the dependency is current or cannot be judged (no published
// version to compare against).
func compare(name, required string, c *semver.Constraints, info *npm.PackageInfo, stableOnly bool) (Outdated, bool) {
	versions := parseVersions(info.Versions)
	stable := pickStable(info.Latest(), versions)
	latest := pickLatest(versions)

	target := latest
	if stableOnly {
		target = stable
	}
	if target == nil {
		return Outdated{}, false
	}

	if c.Check(target) || ahead(c, target, versions) {
		return Outdated{}, false
	}

	o := Outdated{Name: name, Required: required}
	if stable != nil {
		o.Stable = stable.Original()
	}
	if latest != nil {
		o.Latest = latest.Original()
	}
	if pinned := newestMatching(c, versions); pinned != nil {
		o.Deprecated = info.Deprecated[pinned.Original()]
	}
	return o, true
}

// newestMatching returns the highest version c admits, or nil.
func newestMatching(c *semver.Constraints, versions []*semver.Version) *semver.Version {
	var best *semver.Version
	for _, v := range versions {
		if c.Check(v) && (best == nil || v.GreaterThan(best)) {
			best = v
		}
	}
	return best
}

// ahead reports whether c only admits versions newer than target, i.e. the
// manifest is pinned ahead of the registry rather than behind it.
func ahead(c *semver.Constraints, target *semver.Version, versions []*semver.Version) bool {
	matched := false
	for _, v := range versions {
		if !c.Check(v) {
			continue
		}
		if !v.GreaterThan(target) {
			return false
		}
		matched = true
	}
	return matched
}

func parseVersions(raw []string) []*semver.Version {
	out := make([]*semver.Version, 0, len(raw))
	for _, s := range raw {
		if v, err := semver.NewVersion(s); err == nil {
			out = append(out, v)
		}
	}
	return out
}

// pickStable prefers the "latest" dist-tag when it is a release version and
// otherwise falls back to the highest published release.
func pickStable(tag string, versions []*semver.Version) *semver.Version {
	if v, err := semver.NewVersion(tag); err == nil && v.Prerelease() == "" {
		return v
	}
	var best *semver.Version
	for _, v := range versions {
		if v.Prerelease() != "" {
			continue
		}
		if best == nil || v.GreaterThan(best) {
			best = v
		}
	}
	return best
}

func pickLatest(versions []*semver.Version) *semver.Version {
	var best *semver.Version
	for _, v := range versions {
		if best == nil || v.GreaterThan(best) {
			best = v
		}
	}
	return best
}
