// Package pipeline runs atlas builds end to end for the CLI and the HTTP
// server.
//
// A run validates [Options], computes a cache key from the grid and the
// fingerprints of every source, returns a cached artifact when one exists
// and otherwise calls [atlas.Build], encodes the composite as PNG and stores
// it together with the slot diagnostics.
//
// # Usage
//
//	runner := pipeline.NewRunner(c, nil, logger)
//	res, err := runner.Execute(ctx, pipeline.Options{
//	    GridWidth:  4,
//	    GridHeight: 4,
//	    TileSize:   512,
//	    Sources:    ids,
//	}, source.NewDirLoader(basePath))
//	if err != nil {
//	    return err
//	}
//	err = pipeline.WriteFile("block_atlas.png", res.PNG)
//
// Loaders that do not implement [source.Fingerprinter] are never cached,
// since there is no way to tell whether their content changed.
package pipeline

import (
	"io"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/atlaspack/pkg/atlas"
	"github.com/matzehuels/atlaspack/pkg/errors"
	"github.com/matzehuels/atlaspack/pkg/layout"
)

// =============================================================================
// Default Values
// =============================================================================

const (
	// DefaultGridWidth is the number of slot columns.
	DefaultGridWidth = 4

	// DefaultGridHeight is the number of slot rows.
	DefaultGridHeight = 4

	// DefaultTileSize is the edge length of one slot in pixels.
	DefaultTileSize = 512

	// DefaultWorkers keeps builds sequential.
	DefaultWorkers = 1

	// DefaultOutput is where the atlas is written when no path is given.
	DefaultOutput = "assets/textures/block_atlas.png"

	// MaxWorkers bounds concurrent slot processing.
	MaxWorkers = 64
)

// =============================================================================
// Options - Pipeline Configuration
// =============================================================================

// Options contains all configuration for one atlas build.
type Options struct {
	GridWidth  int      `json:"grid_width"`
	GridHeight int      `json:"grid_height"`
	TileSize   int      `json:"tile_size"`
	Sources    []string `json:"sources"`          // index-aligned with slots
	Labels     []string `json:"labels,omitempty"` // optional, index-aligned
	Workers    int      `json:"workers,omitempty"`
	Output     string   `json:"output,omitempty"`
	Refresh    bool     `json:"refresh,omitempty"` // skip cache reads

	// Runtime options (not serialized)
	Logger *log.Logger `json:"-"`
}

// Result contains the outputs of a pipeline run.
type Result struct {
	// RunID identifies this run in logs and HTTP responses.
	RunID string

	// Atlas is the compositor result. On a cache hit Slots is nil.
	Atlas *atlas.Result

	// Grid is the layout the atlas was built on.
	Grid *layout.Grid

	// PNG is the encoded composite.
	PNG []byte

	// Stats contains timing and size information.
	Stats Stats

	// CacheInfo tracks whether the artifact came from the cache.
	CacheInfo CacheInfo
}

// Diagnostics is a shorthand for r.Atlas.Diagnostics.
func (r *Result) Diagnostics() []atlas.Diagnostic {
	if r.Atlas == nil {
		return nil
	}
	return r.Atlas.Diagnostics
}

// Stats contains pipeline execution statistics.
type Stats struct {
	Slots      int
	Composited int
	Failed     int
	BuildTime  time.Duration
	EncodeTime time.Duration
	Bytes      int
}

// CacheInfo describes the cache lookup of a run.
type CacheInfo struct {
	Key string // empty when the loader cannot be fingerprinted
	Hit bool
}

// =============================================================================
// Options Methods
// =============================================================================

// SetDefaults fills zero-valued fields with the package defaults.
func (o *Options) SetDefaults() {
	if o.GridWidth == 0 {
		o.GridWidth = DefaultGridWidth
	}
	if o.GridHeight == 0 {
		o.GridHeight = DefaultGridHeight
	}
	if o.TileSize == 0 {
		o.TileSize = DefaultTileSize
	}
	if o.Workers == 0 {
		o.Workers = DefaultWorkers
	}
	if o.Output == "" {
		o.Output = DefaultOutput
	}
	if o.Logger == nil {
		o.Logger = log.NewWithOptions(io.Discard, log.Options{})
	}
}

// ValidateAndSetDefaults applies defaults and checks the options. It returns
// the grid described by the options. Source identifiers are not checked
// here: an identifier the loader cannot resolve becomes a per-slot
// diagnostic, not a configuration error.
func (o *Options) ValidateAndSetDefaults() (*layout.Grid, error) {
	o.SetDefaults()

	grid, err := layout.New(o.GridWidth, o.GridHeight, o.TileSize)
	if err != nil {
		return nil, err
	}
	if len(o.Sources) != grid.SlotCount() {
		return nil, errors.New(errors.ErrCodeInvalidConfig,
			"%d sources for a %dx%d grid (%d slots)", len(o.Sources), o.GridWidth, o.GridHeight, grid.SlotCount())
	}
	if len(o.Labels) != 0 && len(o.Labels) != len(o.Sources) {
		return nil, errors.New(errors.ErrCodeInvalidConfig,
			"%d labels for %d sources", len(o.Labels), len(o.Sources))
	}
	if o.Workers < 0 || o.Workers > MaxWorkers {
		return nil, errors.New(errors.ErrCodeInvalidConfig, "workers must be between 1 and %d, got %d", MaxWorkers, o.Workers)
	}
	if err := errors.ValidateOutputPath(o.Output); err != nil {
		return nil, err
	}
	return grid, nil
}

// Label returns the label of slot i, or "" when none was given.
func (o *Options) Label(i int) string {
	if i < 0 || i >= len(o.Labels) {
		return ""
	}
	return o.Labels[i]
}
