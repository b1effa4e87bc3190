package cache

// ScopedKeyer wraps a Keyer with a prefix so several projects can share one
// cache backend without colliding.
//
// Example usage:
//
//	// Keys for one project on a shared Redis instance
//	keyer := NewScopedKeyer(NewDefaultKeyer(), "project:blocks:")
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

// AtlasKey generates a prefixed key for atlas artifacts.
func (k *ScopedKeyer) AtlasKey(opts AtlasKeyOpts) string {
	return k.prefix + k.inner.AtlasKey(opts)
}
