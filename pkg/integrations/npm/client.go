package npm

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/matzehuels/depcheck/pkg/cache"
	"github.com/matzehuels/depcheck/pkg/integrations"
)

// DefaultRegistry is the public npm registry.
const DefaultRegistry = "https://registry.npmjs.org"

// installMetadata asks the registry for the abbreviated document, which
// carries dist-tags and the version list without readmes.
const installMetadata = "application/vnd.npm.install-v1+json; q=1.0, application/json; q=0.8"

// PackageInfo is the subset of a registry document needed to decide
// whether a declared range is outdated.
type PackageInfo struct {
	Name     string            `json:"name"`
	DistTags map[string]string `json:"dist_tags"`
	Versions []string          `json:"versions"`
	// Deprecated maps version to its deprecation message.
	Deprecated map[string]string `json:"deprecated,omitempty"`
}

// Latest returns the version tagged "latest", or "" when the tag is absent.
func (p *PackageInfo) Latest() string { return p.DistTags["latest"] }

type Client struct {
	*integrations.Client
	baseURL string
}

// NewClient creates a client for the registry at baseURL (DefaultRegistry
// when empty) caching responses in c for ttl.
func NewClient(c cache.Cache, baseURL string, ttl time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultRegistry
	}
	return &Client{
		Client:  integrations.NewClient(c, "npm:"+baseURL, ttl, map[string]string{"Accept": installMetadata}),
		baseURL: baseURL,
	}
}

// BaseURL returns the registry URL the client queries.
func (c *Client) BaseURL() string { return c.baseURL }

func (c *Client) FetchPackage(ctx context.Context, pkg string, refresh bool) (*PackageInfo, error) {
	var info PackageInfo
	err := c.Cached(ctx, pkg, refresh, &info, func() error {
		return c.fetch(ctx, pkg, &info)
	})
	if err != nil {
		return nil, err
	}
	return &info, nil
}

func (c *Client) fetch(ctx context.Context, pkg string, info *PackageInfo) error {
	var data registryResponse
	if err := c.Get(ctx, integrations.JoinURL(c.baseURL, pkg), &data); err != nil {
		if errors.Is(err, integrations.ErrNotFound) {
			return fmt.Errorf("%w: npm package %s", err, pkg)
		}
		return err
	}

	versions := slices.Sorted(maps.Keys(data.Versions))
	deprecated := make(map[string]string)
	for v, d := range data.Versions {
		if msg := deprecationMessage(d.Deprecated); msg != "" {
			deprecated[v] = msg
		}
	}
	if len(deprecated) == 0 {
		deprecated = nil
	}

	name := data.Name
	if name == "" {
		name = pkg
	}
	*info = PackageInfo{
		Name:       name,
		DistTags:   data.DistTags,
		Versions:   versions,
		Deprecated: deprecated,
	}
	return nil
}

// deprecationMessage normalizes the "deprecated" field, which the registry
// sends as a string, or occasionally as a boolean.
func deprecationMessage(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case bool:
		if val {
			return "deprecated"
		}
	}
	return ""
}

type registryResponse struct {
	Name     string                    `json:"name"`
	DistTags map[string]string         `json:"dist-tags"`
	Versions map[string]versionDetails `json:"versions"`
}

type versionDetails struct {
	Deprecated any `json:"deprecated"`
}
