// Package cache provides byte-level caching of built atlas artifacts.
//
// The [Cache] interface is deliberately small so it can be backed by local
// files ([FileCache]), a shared Redis instance ([RedisCache]) or nothing at
// all ([NullCache]). Keys are produced by a [Keyer], which hashes every input
// that affects the composite: grid geometry and each slot's source
// identifier together with its fingerprint.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"
)

// TTL values for cached artifacts.
const (
	// TTLAtlas is how long an encoded atlas and its diagnostics are kept.
	// Source fingerprints are part of the key, so a changed source never
	// hits a stale entry.
	TTLAtlas = 7 * 24 * time.Hour
)

// Cache stores opaque byte values under string keys.
type Cache interface {
	// Get returns the value for key. The bool is false on a miss.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores data under key. A ttl of zero means no expiry.
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Close releases resources held by the cache.
	Close() error
}

// SourceRef identifies the content fetched for one slot.
type SourceRef struct {
	ID          string `json:"id"`
	Fingerprint string `json:"fp"`
}

// AtlasKeyOpts are the inputs that determine an atlas artifact.
type AtlasKeyOpts struct {
	GridWidth  int         `json:"w"`
	GridHeight int         `json:"h"`
	TileSize   int         `json:"tile"`
	Sources    []SourceRef `json:"sources"`
}

// Keyer generates cache keys.
type Keyer interface {
	// AtlasKey generates a key for an encoded atlas artifact.
	AtlasKey(opts AtlasKeyOpts) string
}

// DefaultKeyer hashes key inputs with SHA-256.
type DefaultKeyer struct{}

// NewDefaultKeyer creates the default keyer.
func NewDefaultKeyer() Keyer {
	return DefaultKeyer{}
}

// AtlasKey returns "atlas:<sha256>" over all options.
func (DefaultKeyer) AtlasKey(opts AtlasKeyOpts) string {
	return hashKey("atlas", opts)
}

// hashKey returns "prefix:<sha256>" over the JSON encoding of v.
func hashKey(prefix string, v any) string {
	h := sha256.New()
	_ = json.NewEncoder(h).Encode(v)
	return prefix + ":" + hex.EncodeToString(h.Sum(nil))
}

// Hash returns the hex SHA-256 of data.
func Hash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// NullCache stores nothing; every Get misses. It is used when caching is
// disabled with --no-cache or no cache directory can be determined.
type NullCache struct{}

// NewNullCache returns a cache that never hits.
func NewNullCache() *NullCache { return &NullCache{} }

func (*NullCache) Get(context.Context, string) ([]byte, bool, error)        { return nil, false, nil }
func (*NullCache) Set(context.Context, string, []byte, time.Duration) error { return nil }
func (*NullCache) Delete(context.Context, string) error                     { return nil }
func (*NullCache) Close() error                                             { return nil }

var _ Cache = (*NullCache)(nil)
