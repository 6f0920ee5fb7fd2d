package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/matzehuels/depcheck/internal/server"
	"github.com/matzehuels/depcheck/pkg/cache"
)

// serveCommand creates the serve command.
func (c *CLI) serveCommand() *cobra.Command {
	var (
		addr    string
		noCache bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve dependency check reports over HTTP",
		Long: `Serve dependency check reports over HTTP.

  GET /healthz            liveness
  GET /v1/status          both groups (200 fresh, 409 outdated, 502 registry failure)
  GET /v1/status/{group}  "runtime" or "dev"

Reports are cached for server.report_ttl. Configure cache.redis_url to share
the cache between several instances.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}
			p, err := c.loadProject(cfg)
			if err != nil {
				return err
			}

			manifestHash, caveatsHash, err := projectHashes(p)
			if err != nil {
				return err
			}

			store, err := newCache(ctx, cfg, noCache)
			if err != nil {
				return err
			}
			defer store.Close()

			srv := server.New(c.newChecker(p, store), server.Config{
				Manifest:     p.manifest,
				ManifestHash: manifestHash,
				CaveatsHash:  caveatsHash,
				Registry:     cfg.Registry,
				Timeout:      cfg.Timeout,
				ReportTTL:    cfg.Server.ReportTTL,
			},
				server.WithCache(store, cache.NewScopedKeyer(nil, appName+":"+p.manifest.Name+":")),
				server.WithLogger(c.Logger),
			)

			printInfo("Serving %s on %s", StyleTitle.Render(p.manifest.Path), StyleLink.Render(cfg.Server.Addr))
			printKeyValue("Registry", cfg.Registry)
			printKeyValue("Caveats", fmt.Sprintf("%d (%s)", p.caveats.Len(), cfg.Caveats))
			printKeyValue("Report TTL", cfg.Server.ReportTTL.String())
			return srv.ListenAndServe(ctx, cfg.Server.Addr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config, :8080)")
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "disable registry and report caching")

	return cmd
}

// projectHashes returns the hashes of the manifest file and the caveat table
// that scope cached reports.
func projectHashes(p *project) (manifestHash, caveatsHash string, err error) {
	manifestData, err := os.ReadFile(p.manifest.Path)
	if err != nil {
		return "", "", fmt.Errorf("read manifest: %w", err)
	}
	caveatsData, err := p.caveats.Marshal(".json")
	if err != nil {
		return "", "", fmt.Errorf("encode caveats: %w", err)
	}
	return cache.Hash(manifestData), cache.Hash(caveatsData), nil
}
