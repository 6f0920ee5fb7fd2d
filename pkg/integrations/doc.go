// Package integrations provides the HTTP plumbing shared by registry clients.
//
// [Client] wraps an [http.Client] with:
//
//   - response caching through a [cache.Cache] (namespaced keys, TTL)
//   - retry with exponential backoff for transient failures
//   - status mapping: 404 becomes [ErrNotFound], 429 and 5xx become a
//     retryable [ErrNetwork]
//   - HTTP observability hooks
//
// Registry specific clients live in subpackages, currently [npm].
//
// [npm]: github.com/matzehuels/depcheck/pkg/integrations/npm
// [cache.Cache]: github.com/matzehuels/depcheck/pkg/cache.Cache
package integrations
