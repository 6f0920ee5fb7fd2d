package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/matzehuels/depcheck/pkg/cache"
	"github.com/matzehuels/depcheck/pkg/freshness"
	"github.com/matzehuels/depcheck/pkg/integrations"
	"github.com/matzehuels/depcheck/pkg/manifest"
	"github.com/matzehuels/depcheck/pkg/resolver"
)

type fakeChecker struct {
	calls    atomic.Int32
	outdated bool
	err      error
	delay    time.Duration
}

func (f *fakeChecker) CheckGroups(ctx context.Context, m *manifest.Manifest, groups freshness.Groups, refresh bool) (*freshness.Report, error) {
	f.calls.Add(1)
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}

	report := &freshness.Report{ID: "test", StartedAt: time.Now(), FinishedAt: time.Now()}
	residual := freshness.Residual{}
	if f.outdated {
		residual["lodash"] = resolver.Outdated{Name: "lodash", Required: "^3.0.0", Stable: "4.0.0"}
	}
	if groups.Runtime {
		report.Runtime = &freshness.GroupResult{Group: "dependencies", Residual: residual}
	}
	if groups.Dev {
		report.Dev = &freshness.GroupResult{Group: "devDependencies", Residual: freshness.Residual{}}
	}
	return report, nil
}

func newTestServer(t *testing.T, checker Checker, opts ...Option) *httptest.Server {
	t.Helper()
	s := New(checker, Config{
		Manifest:     &manifest.Manifest{Name: "web-starter-kit", Path: "/src/package.json"},
		ManifestHash: "abc",
		Registry:     "https://registry.npmjs.org",
		Timeout:      time.Second,
		ReportTTL:    time.Minute,
	}, opts...)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func get(t *testing.T, url string) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()

	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode %s: %v", url, err)
	}
	return resp, body
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, &fakeChecker{})

	resp, body := get(t, ts.URL+"/healthz")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
	if body["status"] != "ok" || body["manifest"] != "/src/package.json" {
		t.Errorf("body = %v", body)
	}
}

func TestStatusCodes(t *testing.T) {
	tests := []struct {
		name    string
		checker *fakeChecker
		path    string
		want    int
	}{
		{"fresh", &fakeChecker{}, "/v1/status", http.StatusOK},
		{"outdated", &fakeChecker{outdated: true}, "/v1/status", http.StatusConflict},
		{"outdated runtime", &fakeChecker{outdated: true}, "/v1/status/runtime", http.StatusConflict},
		{"dev only", &fakeChecker{outdated: true}, "/v1/status/dev", http.StatusOK},
		{"resolver failure", &fakeChecker{err: integrations.ErrNetwork}, "/v1/status", http.StatusBadGateway},
		{"unknown group", &fakeChecker{}, "/v1/status/optional", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t, tt.checker)
			resp, body := get(t, ts.URL+tt.path)
			if resp.StatusCode != tt.want {
				t.Errorf("status = %d, want %d (body %v)", resp.StatusCode, tt.want, body)
			}
		})
	}
}

func TestStatusTimeout(t *testing.T) {
	checker := &fakeChecker{delay: time.Second}
	s := New(checker, Config{
		Manifest: &manifest.Manifest{},
		Timeout:  20 * time.Millisecond,
	})
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	resp, body := get(t, ts.URL+"/v1/status")
	if resp.StatusCode != http.StatusGatewayTimeout {
		t.Errorf("status = %d, want 504", resp.StatusCode)
	}
	if body["code"] != "TIMEOUT" {
		t.Errorf("code = %v, want TIMEOUT", body["code"])
	}
}

func TestStatusReportBody(t *testing.T) {
	ts := newTestServer(t, &fakeChecker{outdated: true})

	_, body := get(t, ts.URL+"/v1/status")
	deps, ok := body["dependencies"].(map[string]any)
	if !ok {
		t.Fatalf("body = %v", body)
	}
	outdated := deps["outdated"].(map[string]any)
	lodash := outdated["lodash"].(map[string]any)
	if lodash["stable"] != "4.0.0" || lodash["required"] != "^3.0.0" {
		t.Errorf("lodash = %v", lodash)
	}
}

func TestStatusCachesReports(t *testing.T) {
	c, err := cache.NewFileCache(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	checker := &fakeChecker{outdated: true}
	ts := newTestServer(t, checker, WithCache(c, nil))

	first, _ := get(t, ts.URL+"/v1/status")
	second, body := get(t, ts.URL+"/v1/status")

	if checker.calls.Load() != 1 {
		t.Errorf("checker calls = %d, want 1", checker.calls.Load())
	}
	if first.Header.Get("X-Depcheck-Cache") != "miss" || second.Header.Get("X-Depcheck-Cache") != "hit" {
		t.Errorf("cache headers = %q, %q", first.Header.Get("X-Depcheck-Cache"), second.Header.Get("X-Depcheck-Cache"))
	}
	if second.StatusCode != http.StatusConflict {
		t.Errorf("cached report status = %d, want 409 (body %v)", second.StatusCode, body)
	}

	get(t, ts.URL+"/v1/status/dev")
	if checker.calls.Load() != 2 {
		t.Error("group reports should be cached under their own key")
	}

	get(t, ts.URL+"/v1/status?refresh=1")
	if checker.calls.Load() != 3 {
		t.Error("refresh should bypass the report cache")
	}
}

func TestStatusGroupAliasesShareReports(t *testing.T) {
	c, err := cache.NewFileCache(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	checker := &fakeChecker{outdated: true}
	ts := newTestServer(t, checker, WithCache(c, nil))

	get(t, ts.URL+"/v1/status/runtime")
	alias, _ := get(t, ts.URL+"/v1/status/dependencies")
	if checker.calls.Load() != 1 {
		t.Errorf("checker calls = %d, want 1", checker.calls.Load())
	}
	if alias.Header.Get("X-Depcheck-Cache") != "hit" {
		t.Errorf("alias cache header = %q, want hit", alias.Header.Get("X-Depcheck-Cache"))
	}

	get(t, ts.URL+"/v1/status/devDependencies")
	get(t, ts.URL+"/v1/status/dev")
	get(t, ts.URL+"/v1/status/all")
	get(t, ts.URL+"/v1/status")
	if checker.calls.Load() != 3 {
		t.Errorf("checker calls = %d, want 3", checker.calls.Load())
	}
}

func TestStatusConcurrentRequestsShareCheck(t *testing.T) {
	checker := &fakeChecker{delay: 300 * time.Millisecond}
	ts := newTestServer(t, checker)

	const clients = 5
	var (
		wg    sync.WaitGroup
		start = make(chan struct{})
		codes = make([]int, clients)
		errs  = make([]error, clients)
	)
	for i := range clients {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			resp, err := http.Get(ts.URL + "/v1/status")
			if err != nil {
				errs[i] = err
				return
			}
			resp.Body.Close()
			codes[i] = resp.StatusCode
		}()
	}
	close(start)
	wg.Wait()

	for i := range clients {
		if errs[i] != nil {
			t.Errorf("client %d: %v", i, errs[i])
		} else if codes[i] != http.StatusOK {
			t.Errorf("client %d status = %d, want 200", i, codes[i])
		}
	}
	if checker.calls.Load() != 1 {
		t.Errorf("checker calls = %d, want 1", checker.calls.Load())
	}
}

func TestStatusClientCancelDoesNotAbortSharedCheck(t *testing.T) {
	checker := &fakeChecker{delay: 300 * time.Millisecond}
	ts := newTestServer(t, checker)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/v1/status", nil)
	if err != nil {
		t.Fatal(err)
	}
	cancelled := make(chan error, 1)
	go func() {
		resp, err := http.DefaultClient.Do(req)
		if err == nil {
			resp.Body.Close()
		}
		cancelled <- err
	}()

	deadline := time.Now().Add(time.Second)
	for checker.calls.Load() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("check never started")
		}
		time.Sleep(5 * time.Millisecond)
	}

	done := make(chan int, 1)
	go func() {
		resp, err := http.Get(ts.URL + "/v1/status")
		if err != nil {
			done <- 0
			return
		}
		resp.Body.Close()
		done <- resp.StatusCode
	}()
	time.Sleep(50 * time.Millisecond)
	cancel()

	if err := <-cancelled; err == nil {
		t.Error("cancelled request should fail")
	}
	if code := <-done; code != http.StatusOK {
		t.Errorf("status = %d, want 200", code)
	}
	if checker.calls.Load() != 1 {
		t.Errorf("checker calls = %d, want 1", checker.calls.Load())
	}
}

func TestGroupsName(t *testing.T) {
	tests := []struct {
		param string
		want  string
	}{
		{"", "all"},
		{"all", "all"},
		{"runtime", "runtime"},
		{"dependencies", "runtime"},
		{"dev", "dev"},
		{"devDependencies", "dev"},
	}
	for _, tt := range tests {
		groups, _ := parseGroups(tt.param)
		if got := groupsName(groups); got != tt.want {
			t.Errorf("groupsName(%q) = %q, want %q", tt.param, got, tt.want)
		}
	}
}

func TestParseGroups(t *testing.T) {
	tests := []struct {
		name string
		want freshness.Groups
		ok   bool
	}{
		{"", freshness.AllGroups, true},
		{"all", freshness.AllGroups, true},
		{"runtime", freshness.Groups{Runtime: true}, true},
		{"devDependencies", freshness.Groups{Dev: true}, true},
		{"peer", freshness.Groups{}, false},
	}
	for _, tt := range tests {
		got, ok := parseGroups(tt.name)
		if got != tt.want || ok != tt.ok {
			t.Errorf("parseGroups(%q) = %v, %v; want %v, %v", tt.name, got, ok, tt.want, tt.ok)
		}
	}
}
