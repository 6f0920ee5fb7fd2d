package freshness

import (
	"context"
	"io"
	"maps"
	"slices"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/matzehuels/depcheck/pkg/caveat"
	"github.com/matzehuels/depcheck/pkg/errors"
	"github.com/matzehuels/depcheck/pkg/manifest"
	"github.com/matzehuels/depcheck/pkg/observability"
	"github.com/matzehuels/depcheck/pkg/resolver"
)

// Options selects what a single check evaluates.
type Options struct {
	// Dev checks devDependencies instead of dependencies.
	Dev bool
	// Refresh bypasses cached registry responses.
	Refresh bool
}

// resolverOptions always asks for stable versions.
func (o Options) resolverOptions() resolver.Options {
	return resolver.Options{Stable: true, Dev: o.Dev, Refresh: o.Refresh}
}

// Residual holds the outdated dependencies that no caveat accepts.
type Residual map[string]resolver.Outdated

// Names returns the sorted dependency names.
func (r Residual) Names() []string {
	return slices.Sorted(maps.Keys(r))
}

// Checker runs freshness checks. It is safe for concurrent use.
type Checker struct {
	resolver resolver.Resolver
	caveats  *caveat.Table
	logger   *log.Logger
}

// NewChecker creates a Checker. A nil caveats table accepts nothing and a
// nil logger discards diagnostics.
func NewChecker(r resolver.Resolver, caveats *caveat.Table, logger *log.Logger) *Checker {
	if caveats == nil {
		caveats = caveat.NewTable(nil)
	}
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Checker{resolver: r, caveats: caveats, logger: logger}
}

// Check resolves one dependency group of m and returns its residual.
// Resolver failures are returned wrapped in a RESOLVER_FAILED error and no
// partial residual is produced.
func (c *Checker) Check(ctx context.Context, m *manifest.Manifest, opts Options) (Residual, error) {
	residual, _, err := c.check(ctx, m, opts)
	return residual, err
}

func (c *Checker) check(ctx context.Context, m *manifest.Manifest, opts Options) (Residual, []string, error) {
	group := manifest.GroupName(opts.Dev)
	hooks := observability.Check()
	hooks.OnCheckStart(ctx, group)
	start := time.Now()

	c.logger.Debug("Starting check for dependencies", "group", group)

	outdated, err := c.resolver.Updated(ctx, m, opts.resolverOptions())
	if err != nil {
		c.logger.Error("Resolver failed", "group", group, "err", err)
		hooks.OnCheckComplete(ctx, group, 0, 0, time.Since(start), err)
		return nil, nil, errors.Wrap(errors.ErrCodeResolver, err, "check %s", group)
	}
	c.logger.Debug("Resolved outdated dependencies", "group", group, "deps", Residual(outdated).Names())

	residual, stale := c.filter(ctx, outdated)
	for _, name := range stale {
		c.logger.Warn("Dependency caveat for " + name + " is out of date")
	}
	c.logger.Debug("Filtered outdated dependencies", "group", group, "deps", residual.Names())

	if len(residual) > 0 {
		c.logResidual(opts.Dev, residual)
	}

	hooks.OnCheckComplete(ctx, group, len(outdated), len(residual), time.Since(start), nil)
	return residual, stale, nil
}

// filter applies the caveat table to the resolver output and returns the
// residual together with the names whose caveat is stale.
func (c *Checker) filter(ctx context.Context, outdated map[string]resolver.Outdated) (Residual, []string) {
	residual := make(Residual)
	var stale []string

	for _, name := range slices.Sorted(maps.Keys(outdated)) {
		dep := outdated[name]
		switch c.caveats.Evaluate(name, dep.Required, dep.Stable) {
		case caveat.Suppressed:
			continue
		case caveat.Stale:
			stale = append(stale, name)
			observability.Check().OnStaleCaveat(ctx, name)
		}
		residual[name] = dep
	}
	return residual, stale
}

func (c *Checker) logResidual(dev bool, residual Residual) {
	c.logger.Errorf("Out of Date %s", Title(dev))
	for _, name := range residual.Names() {
		dep := residual[name]
		c.logger.Errorf("%s is out of date. package.json requires: %s, NPM Stable is: %s", name, dep.Required, dep.Stable)
	}
}

// Title names a dependency group for display.
func Title(dev bool) string {
	if dev {
		return "Dev Dependencies"
	}
	return "Dependencies"
}

// Groups selects the dependency groups of a report.
type Groups struct {
	Runtime bool
	Dev     bool
}

// AllGroups checks dependencies and devDependencies.
var AllGroups = Groups{Runtime: true, Dev: true}

func (g Groups) devFlags() []bool {
	var out []bool
	if g.Runtime {
		out = append(out, false)
	}
	if g.Dev {
		out = append(out, true)
	}
	return out
}

// CheckAll checks the runtime and dev groups concurrently. Either failure
// aborts both and no report is returned.
func (c *Checker) CheckAll(ctx context.Context, m *manifest.Manifest, refresh bool) (*Report, error) {
	return c.CheckGroups(ctx, m, AllGroups, refresh)
}

// CheckGroups is CheckAll restricted to the selected groups. Unselected
// groups are nil in the report.
func (c *Checker) CheckGroups(ctx context.Context, m *manifest.Manifest, groups Groups, refresh bool) (*Report, error) {
	report := newReport(m)

	g, ctx := errgroup.WithContext(ctx)
	for _, dev := range groups.devFlags() {
		g.Go(func() error {
			residual, stale, err := c.check(ctx, m, Options{Dev: dev, Refresh: refresh})
			if err != nil {
				return err
			}
			result := &GroupResult{Group: manifest.GroupName(dev), Residual: residual, StaleCaveats: stale}
			if dev {
				report.Dev = result
			} else {
				report.Runtime = result
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	report.FinishedAt = time.Now()
	return report, nil
}
