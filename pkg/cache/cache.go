// Package cache provides the byte-level cache used for registry responses
// and status reports.
//
// Three backends implement [Cache]:
//
//   - [FileCache]: one JSON file per entry under the user cache directory.
//     This is what the CLI uses by default.
//   - [RedisCache]: a shared cache for CI fleets and the status server.
//   - [NullCache]: stores nothing, used for --no-cache.
//
// Keys are produced by a [Keyer] so that callers never build raw key strings.
package cache

import (
	"context"
	"time"
)

// Cache stores opaque byte values under string keys with an optional TTL.
// Implementations must be safe for concurrent use.
type Cache interface {
	// Get returns the value for key. hit is false when the key is absent
	// or expired; err is reserved for backend failures.
	Get(ctx context.Context, key string) (data []byte, hit bool, err error)
	// Set stores data under key. A ttl of 0 means no expiration.
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
	// Close releases backend resources.
	Close() error
}

// Keyer generates cache keys.
type Keyer interface {
	// HTTPKey returns the key for a registry response.
	HTTPKey(namespace, key string) string
	// ReportKey returns the key for a check report of a manifest.
	ReportKey(manifestHash string, opts ReportKeyOpts) string
}

// ReportKeyOpts holds the inputs that change the outcome of a check.
type ReportKeyOpts struct {
	Registry    string `json:"registry"`
	CaveatsHash string `json:"caveats_hash"`
	// Groups names the checked dependency groups ("all", "runtime", "dev").
	Groups string `json:"groups"`
}

// DefaultKeyer is the standard [Keyer].
type DefaultKeyer struct{}

// NewDefaultKeyer returns a DefaultKeyer.
func NewDefaultKeyer() Keyer {
	return DefaultKeyer{}
}

// HTTPKey returns "http:<namespace>:<key>".
func (DefaultKeyer) HTTPKey(namespace, key string) string {
	return "http:" + namespace + ":" + key
}

// ReportKey hashes the manifest hash together with opts.
func (DefaultKeyer) ReportKey(manifestHash string, opts ReportKeyOpts) string {
	return hashKey("report", manifestHash, opts)
}
