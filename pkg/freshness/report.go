package freshness

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/matzehuels/depcheck/pkg/errors"
	"github.com/matzehuels/depcheck/pkg/manifest"
)

// DefaultSkipEnv is the environment variable that disables checks on
// pull request builds.
const DefaultSkipEnv = "TRAVIS_PULL_REQUEST"

// Report is the outcome of checking both dependency groups of a manifest.
type Report struct {
	ID         string       `json:"id"`
	Manifest   string       `json:"manifest,omitempty"`
	Project    string       `json:"project,omitempty"`
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt time.Time    `json:"finished_at"`
	Runtime    *GroupResult `json:"dependencies"`
	Dev        *GroupResult `json:"dev_dependencies"`
}

// GroupResult holds the residual of one dependency group.
type GroupResult struct {
	Group        string   `json:"group"`
	Residual     Residual `json:"outdated"`
	StaleCaveats []string `json:"stale_caveats,omitempty"`
}

// Failed reports whether the group has unacknowledged outdated dependencies.
func (g *GroupResult) Failed() bool {
	return g != nil && len(g.Residual) > 0
}

func newReport(m *manifest.Manifest) *Report {
	return &Report{
		ID:        uuid.New().String(),
		Manifest:  m.Path,
		Project:   m.Name,
		StartedAt: time.Now(),
	}
}

// Groups returns the checked groups in runtime, dev order, skipping any
// group that was not checked.
func (r *Report) Groups() []*GroupResult {
	var out []*GroupResult
	for _, g := range []*GroupResult{r.Runtime, r.Dev} {
		if g != nil {
			out = append(out, g)
		}
	}
	return out
}

// Failed reports whether either group has a non-empty residual.
func (r *Report) Failed() bool {
	return r.Runtime.Failed() || r.Dev.Failed()
}

// Err returns an OUTDATED_DEPENDENCIES error naming every residual
// dependency, or nil if the report passed.
func (r *Report) Err() error {
	if !r.Failed() {
		return nil
	}
	var parts []string
	for _, g := range r.Groups() {
		if g.Failed() {
			parts = append(parts, g.Group+": "+strings.Join(g.Residual.Names(), ", "))
		}
	}
	return errors.New(errors.ErrCodeOutdated, "outdated %s", strings.Join(parts, "; "))
}

// Skip reports whether the environment variable name is set to a non-empty
// value. An empty name falls back to DefaultSkipEnv.
func Skip(getenv func(string) string, name string) bool {
	if name == "" {
		name = DefaultSkipEnv
	}
	return getenv(name) != ""
}
