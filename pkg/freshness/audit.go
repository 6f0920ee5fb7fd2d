package freshness

import (
	"context"
	"slices"

	"golang.org/x/sync/errgroup"

	"github.com/matzehuels/depcheck/pkg/caveat"
	"github.com/matzehuels/depcheck/pkg/errors"
	"github.com/matzehuels/depcheck/pkg/manifest"
	"github.com/matzehuels/depcheck/pkg/resolver"
)

// CaveatStatus describes whether a caveat still does any work.
type CaveatStatus string

const (
	// StatusActive caveats suppress an outdated dependency.
	StatusActive CaveatStatus = "active"
	// StatusStale caveats no longer match the registry.
	StatusStale CaveatStatus = "stale"
	// StatusUnused caveats cover a dependency that is not outdated.
	StatusUnused CaveatStatus = "unused"
)

// CaveatAudit is the status of one caveat.
type CaveatAudit struct {
	Name     string             `json:"name"`
	Caveat   caveat.Caveat      `json:"caveat"`
	Status   CaveatStatus       `json:"status"`
	Outdated *resolver.Outdated `json:"outdated,omitempty"`
}

// Audit resolves both groups of m and reports the status of every caveat,
// sorted by name. Groups are judged separately: a caveat that is stale for
// either group is stale, and a caveat is unused only when its dependency is
// current in both.
func (c *Checker) Audit(ctx context.Context, m *manifest.Manifest, refresh bool) ([]CaveatAudit, error) {
	var groups [2]map[string]resolver.Outdated

	g, gctx := errgroup.WithContext(ctx)
	for i, dev := range []bool{false, true} {
		g.Go(func() error {
			deps, err := c.resolver.Updated(gctx, m, Options{Dev: dev, Refresh: refresh}.resolverOptions())
			if err != nil {
				return errors.Wrap(errors.ErrCodeResolver, err, "audit %s", manifest.GroupName(dev))
			}
			groups[i] = deps
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var reported []string
	for _, deps := range groups {
		for name := range deps {
			reported = append(reported, name)
		}
	}
	unused := c.caveats.Unused(reported)

	audits := make([]CaveatAudit, 0, c.caveats.Len())
	for _, name := range c.caveats.Names() {
		cv, _ := c.caveats.Lookup(name)
		a := CaveatAudit{Name: name, Caveat: cv, Status: StatusUnused}
		if !slices.Contains(unused, name) {
			a.Status, a.Outdated = c.auditGroups(name, groups)
		}
		audits = append(audits, a)
	}
	return audits, nil
}

// auditGroups evaluates name in every group that reports it. The entry of
// the first stale group wins over an active one.
func (c *Checker) auditGroups(name string, groups [2]map[string]resolver.Outdated) (CaveatStatus, *resolver.Outdated) {
	var active *resolver.Outdated
	for _, deps := range groups {
		dep, ok := deps[name]
		if !ok {
			continue
		}
		if c.caveats.Evaluate(name, dep.Required, dep.Stable) == caveat.Stale {
			return StatusStale, &dep
		}
		if active == nil {
			active = &dep
		}
	}
	return StatusActive, active
}
