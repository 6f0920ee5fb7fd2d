// Package server exposes dependency check reports over HTTP.
//
// Routes:
//
//	GET /healthz               liveness and build version
//	GET /v1/status             report for dependencies and devDependencies
//	GET /v1/status/{group}     report for "runtime" or "dev" only
//
// Status endpoints answer 200 when every dependency is fresh, 409 when the
// report failed, 502 when the registry could not be queried and 504 when
// the check timed out. Reports are cached for the configured TTL; add
// ?refresh=1 to force a new check. Concurrent requests for the same report
// share a single check.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/singleflight"

	"github.com/matzehuels/depcheck/pkg/buildinfo"
	"github.com/matzehuels/depcheck/pkg/cache"
	deperrors "github.com/matzehuels/depcheck/pkg/errors"
	"github.com/matzehuels/depcheck/pkg/freshness"
	"github.com/matzehuels/depcheck/pkg/manifest"
)

const shutdownTimeout = 5 * time.Second

// Checker produces reports. *freshness.Checker satisfies it.
type Checker interface {
	CheckGroups(ctx context.Context, m *manifest.Manifest, groups freshness.Groups, refresh bool) (*freshness.Report, error)
}

// Config describes the project being served.
type Config struct {
	Manifest *manifest.Manifest
	// ManifestHash and CaveatsHash identify the inputs of a cached report.
	ManifestHash string
	CaveatsHash  string
	Registry     string
	// Timeout bounds a single check.
	Timeout time.Duration
	// ReportTTL is how long a report is reused. Zero disables report caching.
	ReportTTL time.Duration
}

// Server serves check reports.
type Server struct {
	cfg     Config
	checker Checker
	cache   cache.Cache
	keyer   cache.Keyer
	logger  *log.Logger
	flight  singleflight.Group
	started time.Time
}

// Option customizes server construction.
type Option func(*Server)

// WithCache stores reports in c under keys produced by k.
func WithCache(c cache.Cache, k cache.Keyer) Option {
	return func(s *Server) {
		if c != nil {
			s.cache = c
		}
		if k != nil {
			s.keyer = k
		}
	}
}

// WithLogger overrides the default discarding logger.
func WithLogger(l *log.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// New creates a server for checker and cfg.
func New(checker Checker, cfg Config, opts ...Option) *Server {
	s := &Server{
		cfg:     cfg,
		checker: checker,
		cache:   cache.NewNullCache(),
		keyer:   cache.NewDefaultKeyer(),
		logger:  log.New(io.Discard),
		started: time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the chi router serving all routes.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/healthz", s.handleHealth)
	r.Route("/v1", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Get("/status/{group}", s.handleStatus)
	})
	return r
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	s.logger.Info("Listening", "addr", addr)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		s.logger.Info("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

type healthResponse struct {
	Status        string `json:"status"`
	Version       string `json:"version"`
	Manifest      string `json:"manifest,omitempty"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:        "ok",
		Version:       buildinfo.Version,
		Manifest:      s.cfg.Manifest.Path,
		UptimeSeconds: int64(time.Since(s.started).Seconds()),
	})
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	param := chi.URLParam(r, "group")
	groups, ok := parseGroups(param)
	if !ok {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "unknown group " + strconv.Quote(param)})
		return
	}
	name := groupsName(groups)
	refresh, _ := strconv.ParseBool(r.URL.Query().Get("refresh"))

	report, hit, err := s.report(r.Context(), name, groups, refresh)
	if err != nil {
		status := http.StatusBadGateway
		if deperrors.Is(err, deperrors.ErrCodeTimeout) {
			status = http.StatusGatewayTimeout
		}
		s.logger.Error("Check failed", "group", name, "err", err)
		writeJSON(w, status, errorResponse{Error: err.Error(), Code: string(deperrors.GetCode(err))})
		return
	}

	w.Header().Set("X-Depcheck-Cache", cacheStatus(hit))
	status := http.StatusOK
	if report.Failed() {
		status = http.StatusConflict
	}
	writeJSON(w, status, report)
}

// report returns a cached report or runs a check. Concurrent calls for the
// same key share one check.
func (s *Server) report(ctx context.Context, name string, groups freshness.Groups, refresh bool) (*freshness.Report, bool, error) {
	key := s.keyer.ReportKey(s.cfg.ManifestHash, cache.ReportKeyOpts{
		Registry:    s.cfg.Registry,
		CaveatsHash: s.cfg.CaveatsHash,
		Groups:      name,
	})

	if !refresh && s.cfg.ReportTTL > 0 {
		if data, hit, err := s.cache.Get(ctx, key); err == nil && hit {
			var report freshness.Report
			if err := json.Unmarshal(data, &report); err == nil {
				return &report, true, nil
			}
		}
	}

	v, err, _ := s.flight.Do(key, func() (any, error) {
		// A disconnecting client must not cancel a check other requests wait on.
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.Timeout)
		defer cancel()

		report, err := s.checker.CheckGroups(ctx, s.cfg.Manifest, groups, refresh)
		if err != nil {
			if ctx.Err() == context.DeadlineExceeded {
				return nil, deperrors.Wrap(deperrors.ErrCodeTimeout, err, "check did not finish within %s", s.cfg.Timeout)
			}
			return nil, err
		}

		if s.cfg.ReportTTL > 0 {
			if data, err := json.Marshal(report); err == nil {
				if err := s.cache.Set(ctx, key, data, s.cfg.ReportTTL); err != nil {
					s.logger.Warn("Caching report failed", "err", err)
				}
			}
		}
		return report, nil
	})
	if err != nil {
		return nil, false, err
	}
	return v.(*freshness.Report), false, nil
}

func parseGroups(name string) (freshness.Groups, bool) {
	switch name {
	case "", "all":
		return freshness.AllGroups, true
	case "runtime", "dependencies":
		return freshness.Groups{Runtime: true}, true
	case "dev", "devDependencies":
		return freshness.Groups{Dev: true}, true
	}
	return freshness.Groups{}, false
}

// groupsName is the canonical name of a group selection. Aliases share
// cache entries and in-flight checks through it.
func groupsName(g freshness.Groups) string {
	switch {
	case g.Runtime && g.Dev:
		return "all"
	case g.Dev:
		return "dev"
	}
	return "runtime"
}

func cacheStatus(hit bool) string {
	if hit {
		return "hit"
	}
	return "miss"
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("Request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start).Round(time.Millisecond),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
