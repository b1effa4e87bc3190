// Package manifest reads atlas manifests.
//
// A manifest is a TOML file naming the grid geometry, where the source
// images live, where the atlas goes and which source fills each slot:
//
//	output      = "assets/textures/block_atlas.png"
//	base_path   = "assets/textures/512x512"
//	grid_width  = 2
//	grid_height = 1
//	tile_size   = 512
//	sources     = ["Grass/Grass_01.png", "Tile/Tile_01.png"]
//
// Slots can instead be listed as [[slot]] tables, which also carry a label
// shown by the CLI:
//
//	[[slot]]
//	source = "Grass/Grass_01.png"
//	label  = "Grass top"
//
// An optional [store] table selects where sources are read from: "dir"
// (the default, files under base_path), "gridfs" (a MongoDB GridFS
// bucket) or "http" (paths below the base URL in uri). Relative paths are resolved against the manifest's directory.
package manifest

import (
	_ "embed"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/matzehuels/atlaspack/pkg/errors"
	"github.com/matzehuels/atlaspack/pkg/layout"
	"github.com/matzehuels/atlaspack/pkg/pipeline"
)

// Store kinds.
const (
	StoreDir    = "dir"
	StoreGridFS = "gridfs"
	StoreHTTP   = "http"
)

// DefaultDatabase is the MongoDB database used when [store] names none.
const DefaultDatabase = "atlaspack"

//go:embed default.toml
var defaultManifest []byte

// Manifest describes one atlas.
type Manifest struct {
	Output     string   `toml:"output"`
	BasePath   string   `toml:"base_path"`
	GridWidth  int      `toml:"grid_width"`
	GridHeight int      `toml:"grid_height"`
	TileSize   int      `toml:"tile_size"`
	Workers    int      `toml:"workers,omitempty"`
	Sources    []string `toml:"sources,omitempty"`
	Slots      []Slot   `toml:"slot,omitempty"`
	Store      Store    `toml:"store,omitempty"`

	dir string
}

// Slot is one [[slot]] entry.
type Slot struct {
	Source string `toml:"source"`
	Label  string `toml:"label,omitempty"`
}

// Store selects where source images are read from.
type Store struct {
	Kind     string `toml:"kind,omitempty"`
	URI      string `toml:"uri,omitempty"`
	Database string `toml:"database,omitempty"`
	Bucket   string `toml:"bucket,omitempty"`
}

// Load reads and validates the manifest at path.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, errors.Wrap(errors.ErrCodeFileNotFound, err, "manifest %s", path)
	}
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidManifest, err, "read %s", path)
	}
	m, err := Parse(data, filepath.Dir(path))
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidManifest, err, "%s", path)
	}
	return m, nil
}

// Parse decodes and validates manifest data. Relative paths in the
// manifest are resolved against dir.
func Parse(data []byte, dir string) (*Manifest, error) {
	var m Manifest
	md, err := toml.Decode(string(data), &m)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidManifest, err, "parse manifest")
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, errors.New(errors.ErrCodeInvalidManifest, "unknown key %q", undecoded[0].String())
	}
	m.dir = dir
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Default returns the built-in block atlas manifest, resolved against the
// working directory.
func Default() *Manifest {
	m, err := Parse(defaultManifest, ".")
	if err != nil {
		panic("manifest: invalid default manifest: " + err.Error())
	}
	return m
}

// DefaultData returns the TOML text of the built-in manifest.
func DefaultData() []byte {
	return append([]byte(nil), defaultManifest...)
}

// Validate checks the manifest for errors that make a build impossible.
func (m *Manifest) Validate() error {
	if len(m.Sources) > 0 && len(m.Slots) > 0 {
		return errors.New(errors.ErrCodeInvalidManifest, "use either sources or [[slot]], not both")
	}
	grid, err := layout.New(m.GridWidth, m.GridHeight, m.TileSize)
	if err != nil {
		return errors.Wrap(errors.ErrCodeInvalidManifest, err, "grid")
	}
	if n := len(m.SourceIDs()); n != grid.SlotCount() {
		return errors.New(errors.ErrCodeInvalidManifest,
			"%d sources for a %dx%d grid, want %d", n, m.GridWidth, m.GridHeight, grid.SlotCount())
	}
	for i, s := range m.Slots {
		if s.Source == "" {
			return errors.New(errors.ErrCodeInvalidManifest, "slot %d has no source", i)
		}
	}
	if m.Workers < 0 || m.Workers > pipeline.MaxWorkers {
		return errors.New(errors.ErrCodeInvalidManifest, "workers must be in [0, %d], got %d", pipeline.MaxWorkers, m.Workers)
	}
	if m.Output != "" {
		if err := errors.ValidateOutputPath(m.Output); err != nil {
			return errors.Wrap(errors.ErrCodeInvalidManifest, err, "output")
		}
	}
	switch m.Store.Kind {
	case "", StoreDir:
	case StoreGridFS:
	case StoreHTTP:
		if m.Store.URI == "" {
			return errors.New(errors.ErrCodeInvalidManifest, "http store needs a uri")
		}
	default:
		return errors.New(errors.ErrCodeInvalidManifest, "unknown store kind %q (must be dir, gridfs or http)", m.Store.Kind)
	}
	return nil
}

// SourceIDs returns the source identifier of every slot in index order.
func (m *Manifest) SourceIDs() []string {
	if len(m.Slots) == 0 {
		return m.Sources
	}
	ids := make([]string, len(m.Slots))
	for i, s := range m.Slots {
		ids[i] = s.Source
	}
	return ids
}

// Labels returns per-slot labels, or nil when the manifest has none.
func (m *Manifest) Labels() []string {
	if len(m.Slots) == 0 {
		return nil
	}
	labels := make([]string, len(m.Slots))
	for i, s := range m.Slots {
		labels[i] = s.Label
	}
	return labels
}

// SourceRoot returns the directory source identifiers are relative to.
func (m *Manifest) SourceRoot() string {
	return m.resolve(m.BasePath)
}

// OutputPath returns where the atlas is written.
func (m *Manifest) OutputPath() string {
	if m.Output == "" {
		return m.resolve(pipeline.DefaultOutput)
	}
	return m.resolve(m.Output)
}

// StoreKind returns the configured store kind, defaulting to dir.
func (m *Manifest) StoreKind() string {
	if m.Store.Kind == "" {
		return StoreDir
	}
	return m.Store.Kind
}

// Options converts the manifest to pipeline options.
func (m *Manifest) Options() pipeline.Options {
	return pipeline.Options{
		GridWidth:  m.GridWidth,
		GridHeight: m.GridHeight,
		TileSize:   m.TileSize,
		Sources:    m.SourceIDs(),
		Labels:     m.Labels(),
		Workers:    m.Workers,
		Output:     m.OutputPath(),
	}
}

// Dir returns the directory relative paths are resolved against.
func (m *Manifest) Dir() string { return m.dir }

func (m *Manifest) resolve(p string) string {
	if p == "" {
		p = "."
	}
	if filepath.IsAbs(p) || m.dir == "" {
		return filepath.Clean(p)
	}
	return filepath.Join(m.dir, p)
}
