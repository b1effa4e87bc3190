package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/matzehuels/atlaspack/pkg/atlas"
	"github.com/matzehuels/atlaspack/pkg/cache"
	"github.com/matzehuels/atlaspack/pkg/errors"
	"github.com/matzehuels/atlaspack/pkg/observability"
	"github.com/matzehuels/atlaspack/pkg/source"
)

// cacheFormat scopes atlas keys to the layout of cachedAtlas. Bump it when
// that layout changes.
const cacheFormat = "v1:"

// absentFingerprint stands in for sources that do not exist yet, so that
// adding the file later changes the key.
const absentFingerprint = "-"

// Runner encapsulates atlas builds with caching.
// Both the CLI and the HTTP server use it.
//
// The Runner is stateless except for the cache and logger. Multiple
// goroutines can safely use the same Runner with different options.
type Runner struct {
	Cache  cache.Cache
	Keyer  cache.Keyer
	Logger *log.Logger
}

// NewRunner creates a runner with the given cache and keyer.
// If keyer is nil, a DefaultKeyer scoped to the cache entry format is used.
// If cache is nil, a NullCache is used (caching disabled).
func NewRunner(c cache.Cache, keyer cache.Keyer, logger *log.Logger) *Runner {
	if keyer == nil {
		keyer = cache.NewScopedKeyer(cache.NewDefaultKeyer(), cacheFormat)
	}
	if c == nil {
		c = cache.NewNullCache()
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Runner{
		Cache:  c,
		Keyer:  keyer,
		Logger: logger,
	}
}

// cachedAtlas is the value stored under an atlas key.
type cachedAtlas struct {
	PNG         []byte             `json:"png"`
	Diagnostics []atlas.Diagnostic `json:"diagnostics"`
	Composited  int                `json:"composited"`
}

// Execute builds the atlas described by opts from loader, using the cache
// when the loader can fingerprint its sources.
func (r *Runner) Execute(ctx context.Context, opts Options, loader source.Loader) (*Result, error) {
	r.applyLogger(&opts)
	grid, err := opts.ValidateAndSetDefaults()
	if err != nil {
		return nil, fmt.Errorf("invalid options: %w", err)
	}
	if loader == nil {
		return nil, errors.New(errors.ErrCodeInvalidConfig, "no source loader")
	}

	result := &Result{RunID: uuid.NewString(), Grid: grid}
	logger := opts.Logger.With("run", result.RunID[:8])

	key := r.atlasKey(ctx, opts, loader)
	result.CacheInfo.Key = key

	if key != "" && !opts.Refresh {
		if hit := r.fromCache(ctx, key, result); hit {
			logger.Info("atlas from cache", "key", key[:min(len(key), 18)], "failed", result.Stats.Failed)
			return result, nil
		}
	}

	built, err := atlas.Build(ctx, grid, opts.Sources, loader,
		atlas.WithWorkers(opts.Workers),
		atlas.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("build: %w", err)
	}
	result.Atlas = built
	result.Stats.Slots = grid.SlotCount()
	result.Stats.Composited = built.Composited
	result.Stats.Failed = len(built.Diagnostics)
	result.Stats.BuildTime = built.Duration

	encodeStart := time.Now()
	data, err := EncodePNG(built.Image)
	if err != nil {
		return nil, err
	}
	result.PNG = data
	result.Stats.EncodeTime = time.Since(encodeStart)
	result.Stats.Bytes = len(data)

	logger.Debug("encoded atlas", "bytes", len(data), "duration", result.Stats.EncodeTime)

	if key != "" {
		r.store(ctx, key, cachedAtlas{PNG: data, Diagnostics: built.Diagnostics, Composited: built.Composited})
	}
	return result, nil
}

// atlasKey returns the cache key for opts, or "" when the run must not be
// cached.
func (r *Runner) atlasKey(ctx context.Context, opts Options, loader source.Loader) string {
	fp, ok := loader.(source.Fingerprinter)
	if !ok {
		return ""
	}
	refs := make([]cache.SourceRef, len(opts.Sources))
	for i, id := range opts.Sources {
		fingerprint, err := fp.Fingerprint(ctx, id)
		switch source.Classify(err) {
		case source.Found:
		case source.NotFound:
			fingerprint = absentFingerprint
		default:
			opts.Logger.Debug("source not fingerprinted, caching disabled", "source", id, "err", err)
			return ""
		}
		refs[i] = cache.SourceRef{ID: id, Fingerprint: fingerprint}
	}
	return r.Keyer.AtlasKey(cache.AtlasKeyOpts{
		GridWidth:  opts.GridWidth,
		GridHeight: opts.GridHeight,
		TileSize:   opts.TileSize,
		Sources:    refs,
	})
}

// fromCache fills result from the entry at key. It reports false on a miss
// or an unreadable entry.
func (r *Runner) fromCache(ctx context.Context, key string, result *Result) bool {
	data, hit, err := r.Cache.Get(ctx, key)
	if err != nil || !hit {
		observability.Cache().OnCacheMiss(ctx, "atlas")
		return false
	}

	var entry cachedAtlas
	if err := json.Unmarshal(data, &entry); err != nil {
		observability.Cache().OnCacheMiss(ctx, "atlas")
		return false
	}
	img, err := DecodePNG(entry.PNG)
	if err != nil {
		observability.Cache().OnCacheMiss(ctx, "atlas")
		return false
	}
	if img.Rect != result.Grid.Bounds() {
		observability.Cache().OnCacheMiss(ctx, "atlas")
		return false
	}
	observability.Cache().OnCacheHit(ctx, "atlas")

	if entry.Diagnostics == nil {
		entry.Diagnostics = make([]atlas.Diagnostic, 0)
	}
	result.Atlas = &atlas.Result{
		Image:       img,
		Diagnostics: entry.Diagnostics,
		Composited:  entry.Composited,
	}
	result.PNG = entry.PNG
	result.CacheInfo.Hit = true
	result.Stats.Slots = result.Grid.SlotCount()
	result.Stats.Composited = entry.Composited
	result.Stats.Failed = len(entry.Diagnostics)
	result.Stats.Bytes = len(entry.PNG)
	return true
}

func (r *Runner) store(ctx context.Context, key string, entry cachedAtlas) {
	data, err := json.Marshal(entry)
	if err != nil {
		return
	}
	if err := r.Cache.Set(ctx, key, data, cache.TTLAtlas); err != nil {
		r.Logger.Warn("cache write failed", "err", err)
		return
	}
	observability.Cache().OnCacheSet(ctx, "atlas", len(data))
}

// Close releases resources held by the runner (primarily the cache).
func (r *Runner) Close() error {
	if r.Cache != nil {
		return r.Cache.Close()
	}
	return nil
}

// applyLogger sets the runner's logger on options if not already set.
func (r *Runner) applyLogger(opts *Options) {
	if opts.Logger == nil {
		opts.Logger = r.Logger
	}
}
