package freshness

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"maps"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/depcheck/pkg/caveat"
	deperrors "github.com/matzehuels/depcheck/pkg/errors"
	"github.com/matzehuels/depcheck/pkg/integrations"
	"github.com/matzehuels/depcheck/pkg/manifest"
	"github.com/matzehuels/depcheck/pkg/observability"
	"github.com/matzehuels/depcheck/pkg/resolver"
)

var lodashManifest = &manifest.Manifest{
	Name:         "web-starter-kit",
	Dependencies: map[string]string{"lodash": "^3.0.0"},
}

// fixedResolver answers every call with the same outdated map per group.
func fixedResolver(runtime, dev map[string]resolver.Outdated) resolver.Resolver {
	return resolver.Func(func(ctx context.Context, m *manifest.Manifest, opts resolver.Options) (map[string]resolver.Outdated, error) {
		if opts.Dev {
			return maps.Clone(dev), nil
		}
		return maps.Clone(runtime), nil
	})
}

func lodash(stable string) map[string]resolver.Outdated {
	return map[string]resolver.Outdated{
		"lodash": {Name: "lodash", Required: "^3.0.0", Stable: stable, Latest: stable},
	}
}

func newTestChecker(r resolver.Resolver, caveats map[string]caveat.Caveat) (*Checker, *bytes.Buffer) {
	var buf bytes.Buffer
	logger := log.New(&buf)
	logger.SetLevel(log.DebugLevel)
	return NewChecker(r, caveat.NewTable(caveats), logger), &buf
}

func TestCheckScenarios(t *testing.T) {
	tests := []struct {
		name      string
		stable    string
		caveats   map[string]caveat.Caveat
		wantLeft  bool
		wantStale bool
	}{
		{
			name:     "no caveat",
			stable:   "4.0.0",
			wantLeft: true,
		},
		{
			name:    "matching caveat",
			stable:  "4.0.0",
			caveats: map[string]caveat.Caveat{"lodash": {OverrideVersion: "^3.0.0", CurrentVersion: "4.0.0"}},
		},
		{
			name:    "override matches after registry moved",
			stable:  "4.1.0",
			caveats: map[string]caveat.Caveat{"lodash": {OverrideVersion: "^3.0.0", CurrentVersion: "4.0.0"}},
		},
		{
			name:      "stale caveat",
			stable:    "4.1.0",
			caveats:   map[string]caveat.Caveat{"lodash": {OverrideVersion: "^2.0.0", CurrentVersion: "4.0.0"}},
			wantLeft:  true,
			wantStale: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, buf := newTestChecker(fixedResolver(lodash(tt.stable), nil), tt.caveats)

			residual, err := c.Check(context.Background(), lodashManifest, Options{})
			if err != nil {
				t.Fatalf("Check() error: %v", err)
			}

			_, left := residual["lodash"]
			if left != tt.wantLeft {
				t.Errorf("lodash in residual = %v, want %v", left, tt.wantLeft)
			}
			if left && residual["lodash"].Stable != tt.stable {
				t.Errorf("residual entry = %+v", residual["lodash"])
			}

			warned := strings.Contains(buf.String(), "Dependency caveat for lodash is out of date")
			if warned != tt.wantStale {
				t.Errorf("stale warning = %v, want %v\n%s", warned, tt.wantStale, buf.String())
			}
			if listed := strings.Contains(buf.String(), "Out of Date Dependencies"); listed != tt.wantLeft {
				t.Errorf("diagnostic block = %v, want %v", listed, tt.wantLeft)
			}
		})
	}
}

func TestCheckIdentityPassThrough(t *testing.T) {
	outdated := map[string]resolver.Outdated{
		"lodash":  {Name: "lodash", Required: "^3.0.0", Stable: "4.0.0"},
		"express": {Name: "express", Required: "^3.0.0", Stable: "4.18.2"},
		"gulp":    {Name: "gulp", Required: "^3.9.0", Stable: "4.0.2"},
	}
	c, _ := newTestChecker(fixedResolver(outdated, nil), map[string]caveat.Caveat{
		"gulp": {OverrideVersion: "^3.9.0", CurrentVersion: "4.0.2"},
		"del":  {OverrideVersion: "^2.0.0", CurrentVersion: "6.0.0"},
	})

	residual, err := c.Check(context.Background(), lodashManifest, Options{})
	if err != nil {
		t.Fatalf("Check() error: %v", err)
	}

	want := Residual{"lodash": outdated["lodash"], "express": outdated["express"]}
	if !maps.Equal(residual, want) {
		t.Errorf("Check() = %v, want %v", residual, want)
	}
}

func TestCheckIdempotent(t *testing.T) {
	c, _ := newTestChecker(fixedResolver(lodash("4.0.0"), nil), nil)
	ctx := context.Background()

	first, err := c.Check(ctx, lodashManifest, Options{})
	if err != nil {
		t.Fatal(err)
	}
	second, err := c.Check(ctx, lodashManifest, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if !maps.Equal(first, second) {
		t.Errorf("Check() not idempotent: %v vs %v", first, second)
	}
}

func TestCheckEmpty(t *testing.T) {
	c, buf := newTestChecker(fixedResolver(nil, nil), nil)

	residual, err := c.Check(context.Background(), lodashManifest, Options{Dev: true})
	if err != nil {
		t.Fatalf("Check() error: %v", err)
	}
	if len(residual) != 0 {
		t.Errorf("Check() = %v, want empty", residual)
	}
	if strings.Contains(buf.String(), "Out of Date") {
		t.Error("no diagnostic block expected for an empty residual")
	}
}

func TestCheckForcesStable(t *testing.T) {
	var got resolver.Options
	r := resolver.Func(func(ctx context.Context, m *manifest.Manifest, opts resolver.Options) (map[string]resolver.Outdated, error) {
		got = opts
		return nil, nil
	})
	c := NewChecker(r, nil, nil)

	if _, err := c.Check(context.Background(), lodashManifest, Options{Dev: true, Refresh: true}); err != nil {
		t.Fatal(err)
	}
	want := resolver.Options{Stable: true, Dev: true, Refresh: true}
	if got != want {
		t.Errorf("resolver options = %+v, want %+v", got, want)
	}
}

func TestCheckResolverError(t *testing.T) {
	cause := errors.Join(integrations.ErrNetwork, errors.New("connection reset"))
	r := resolver.Func(func(ctx context.Context, m *manifest.Manifest, opts resolver.Options) (map[string]resolver.Outdated, error) {
		return nil, cause
	})
	c := NewChecker(r, nil, nil)

	residual, err := c.Check(context.Background(), lodashManifest, Options{})
	if residual != nil {
		t.Errorf("Check() residual = %v, want nil on failure", residual)
	}
	if !deperrors.Is(err, deperrors.ErrCodeResolver) {
		t.Errorf("Check() error = %v, want RESOLVER_FAILED", err)
	}
	if !errors.Is(err, integrations.ErrNetwork) {
		t.Error("resolver error should unwrap to its cause")
	}
}

func TestCheckDoesNotMutateInputs(t *testing.T) {
	outdated := lodash("4.0.0")
	r := resolver.Func(func(ctx context.Context, m *manifest.Manifest, opts resolver.Options) (map[string]resolver.Outdated, error) {
		return outdated, nil
	})
	caveats := map[string]caveat.Caveat{"lodash": {OverrideVersion: "^3.0.0", CurrentVersion: "4.0.0"}}
	c, _ := newTestChecker(r, caveats)

	residual, err := c.Check(context.Background(), lodashManifest, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if len(residual) != 0 {
		t.Fatalf("Check() = %v, want empty", residual)
	}
	if len(outdated) != 1 || len(lodashManifest.Dependencies) != 1 {
		t.Error("Check() mutated its inputs")
	}
}

type recordingCheckHooks struct {
	observability.NoopCheckHooks
	mu       sync.Mutex
	groups   []string
	stale    []string
	complete atomic.Int32
}

func (h *recordingCheckHooks) OnCheckStart(ctx context.Context, group string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.groups = append(h.groups, group)
}

func (h *recordingCheckHooks) OnCheckComplete(context.Context, string, int, int, time.Duration, error) {
	h.complete.Add(1)
}

func (h *recordingCheckHooks) OnStaleCaveat(ctx context.Context, dep string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stale = append(h.stale, dep)
}

func TestCheckEmitsHooks(t *testing.T) {
	hooks := &recordingCheckHooks{}
	observability.SetCheckHooks(hooks)
	defer observability.Reset()

	c, _ := newTestChecker(fixedResolver(lodash("5.0.0"), nil), map[string]caveat.Caveat{
		"lodash": {OverrideVersion: "^2.0.0", CurrentVersion: "4.0.0"},
	})
	if _, err := c.Check(context.Background(), lodashManifest, Options{}); err != nil {
		t.Fatal(err)
	}

	if len(hooks.groups) != 1 || hooks.groups[0] != "dependencies" {
		t.Errorf("OnCheckStart groups = %v", hooks.groups)
	}
	if hooks.complete.Load() != 1 {
		t.Errorf("OnCheckComplete called %d times", hooks.complete.Load())
	}
	if len(hooks.stale) != 1 || hooks.stale[0] != "lodash" {
		t.Errorf("OnStaleCaveat = %v", hooks.stale)
	}
}

func TestCheckAll(t *testing.T) {
	dev := map[string]resolver.Outdated{
		"gulp": {Name: "gulp", Required: "^3.9.0", Stable: "4.0.2"},
	}
	c, _ := newTestChecker(fixedResolver(nil, dev), nil)

	m := &manifest.Manifest{Name: "web-starter-kit", Path: "/src/package.json"}
	report, err := c.CheckAll(context.Background(), m, false)
	if err != nil {
		t.Fatalf("CheckAll() error: %v", err)
	}

	if report.ID == "" {
		t.Error("report ID should be set")
	}
	if report.FinishedAt.Before(report.StartedAt) {
		t.Error("FinishedAt before StartedAt")
	}
	if report.Runtime.Failed() {
		t.Errorf("runtime group should pass: %v", report.Runtime.Residual)
	}
	if !report.Dev.Failed() {
		t.Error("dev group should fail")
	}
	if !report.Failed() {
		t.Error("report should fail")
	}

	err = report.Err()
	if !deperrors.Is(err, deperrors.ErrCodeOutdated) {
		t.Fatalf("Err() = %v, want OUTDATED_DEPENDENCIES", err)
	}
	if !strings.Contains(err.Error(), "devDependencies: gulp") {
		t.Errorf("Err() should name the dependency: %v", err)
	}
}

func TestCheckAllAbortsOnError(t *testing.T) {
	r := resolver.Func(func(ctx context.Context, m *manifest.Manifest, opts resolver.Options) (map[string]resolver.Outdated, error) {
		if opts.Dev {
			return nil, integrations.ErrNotFound
		}
		<-ctx.Done()
		return nil, ctx.Err()
	})
	c := NewChecker(r, nil, nil)

	report, err := c.CheckAll(context.Background(), lodashManifest, false)
	if report != nil {
		t.Error("no report expected when a group fails")
	}
	if !errors.Is(err, integrations.ErrNotFound) {
		t.Errorf("CheckAll() error = %v, want ErrNotFound", err)
	}
}

func TestReportJSON(t *testing.T) {
	c, _ := newTestChecker(fixedResolver(lodash("4.0.0"), nil), nil)
	report, err := c.CheckAll(context.Background(), lodashManifest, false)
	if err != nil {
		t.Fatal(err)
	}

	data, err := json.Marshal(report)
	if err != nil {
		t.Fatalf("Marshal() error: %v", err)
	}
	var decoded struct {
		ID           string `json:"id"`
		Dependencies struct {
			Outdated map[string]resolver.Outdated `json:"outdated"`
		} `json:"dependencies"`
	}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatal(err)
	}
	if decoded.ID != report.ID {
		t.Errorf("id = %q, want %q", decoded.ID, report.ID)
	}
	if decoded.Dependencies.Outdated["lodash"].Stable != "4.0.0" {
		t.Errorf("decoded report = %s", data)
	}
}

func TestReportPassed(t *testing.T) {
	r := &Report{Runtime: &GroupResult{Residual: Residual{}}, Dev: &GroupResult{}}
	if r.Failed() || r.Err() != nil {
		t.Error("empty residuals should pass")
	}
}

func TestSkip(t *testing.T) {
	env := map[string]string{"TRAVIS_PULL_REQUEST": "42", "CI_SKIP": ""}
	getenv := func(k string) string { return env[k] }

	tests := []struct {
		name string
		want bool
	}{
		{"", true},
		{"TRAVIS_PULL_REQUEST", true},
		{"CI_SKIP", false},
		{"UNSET", false},
	}
	for _, tt := range tests {
		if got := Skip(getenv, tt.name); got != tt.want {
			t.Errorf("Skip(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestCheckGroupsDevOnly(t *testing.T) {
	var calls atomic.Int32
	r := resolver.Func(func(ctx context.Context, m *manifest.Manifest, opts resolver.Options) (map[string]resolver.Outdated, error) {
		calls.Add(1)
		if !opts.Dev {
			t.Error("runtime group should not be resolved")
		}
		return nil, nil
	})

	report, err := NewChecker(r, nil, nil).CheckGroups(context.Background(), lodashManifest, Groups{Dev: true}, false)
	if err != nil {
		t.Fatalf("CheckGroups() error: %v", err)
	}
	if report.Runtime != nil || report.Dev == nil {
		t.Errorf("report groups = %v, %v", report.Runtime, report.Dev)
	}
	if len(report.Groups()) != 1 || calls.Load() != 1 {
		t.Errorf("Groups() = %d, resolver calls = %d", len(report.Groups()), calls.Load())
	}
}
