package cache

// ScopedKeyer wraps a Keyer with a prefix so several projects can share one
// backend (typically Redis) without their entries colliding.
//
//	projectKeyer := NewScopedKeyer(NewDefaultKeyer(), "project:web-starter-kit:")
type ScopedKeyer struct {
	inner  Keyer
	prefix string
}

// NewScopedKeyer creates a keyer with a prefix.
// The prefix is prepended to all generated keys.
func NewScopedKeyer(inner Keyer, prefix string) Keyer {
	if inner == nil {
		inner = NewDefaultKeyer()
	}
	return &ScopedKeyer{
		inner:  inner,
		prefix: prefix,
	}
}

// HTTPKey generates a prefixed key for HTTP response caching.
func (k *ScopedKeyer) HTTPKey(namespace, key string) string {
	return k.prefix + k.inner.HTTPKey(namespace, key)
}

// ReportKey generates a prefixed key for report caching.
func (k *ScopedKeyer) ReportKey(manifestHash string, opts ReportKeyOpts) string {
	return k.prefix + k.inner.ReportKey(manifestHash, opts)
}
