package manifest

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/matzehuels/atlaspack/pkg/errors"
)

const twoSlots = `
output      = "out/atlas.png"
base_path   = "textures"
grid_width  = 2
grid_height = 1
tile_size   = 16
workers     = 4
sources     = ["a.png", "b/c.png"]
`

func TestParse(t *testing.T) {
	m, err := Parse([]byte(twoSlots), "/work/project")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if diff := cmp.Diff([]string{"a.png", "b/c.png"}, m.SourceIDs()); diff != "" {
		t.Errorf("SourceIDs mismatch (-want +got):\n%s", diff)
	}
	if m.Labels() != nil {
		t.Errorf("Labels() = %v, want nil", m.Labels())
	}
	if got, want := m.SourceRoot(), filepath.Join("/work/project", "textures"); got != want {
		t.Errorf("SourceRoot() = %q, want %q", got, want)
	}
	if got, want := m.OutputPath(), filepath.Join("/work/project", "out", "atlas.png"); got != want {
		t.Errorf("OutputPath() = %q, want %q", got, want)
	}
	if m.StoreKind() != StoreDir {
		t.Errorf("StoreKind() = %q, want %q", m.StoreKind(), StoreDir)
	}

	opts := m.Options()
	if opts.GridWidth != 2 || opts.GridHeight != 1 || opts.TileSize != 16 || opts.Workers != 4 {
		t.Errorf("Options() = %+v", opts)
	}
	if opts.Output != m.OutputPath() {
		t.Errorf("Options().Output = %q, want %q", opts.Output, m.OutputPath())
	}
}

func TestParseSlotTables(t *testing.T) {
	data := `
grid_width  = 2
grid_height = 1
tile_size   = 8

[[slot]]
source = "grass.png"
label  = "Grass"

[[slot]]
source = "dirt.png"

[store]
kind     = "gridfs"
uri      = "mongodb://localhost:27017"
database = "assets"
`
	m, err := Parse([]byte(data), "")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if diff := cmp.Diff([]string{"grass.png", "dirt.png"}, m.SourceIDs()); diff != "" {
		t.Errorf("SourceIDs mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"Grass", ""}, m.Labels()); diff != "" {
		t.Errorf("Labels mismatch (-want +got):\n%s", diff)
	}
	if m.StoreKind() != StoreGridFS || m.Store.Database != "assets" {
		t.Errorf("Store = %+v", m.Store)
	}
	if !strings.HasSuffix(m.OutputPath(), "block_atlas.png") {
		t.Errorf("OutputPath() = %q, want the default output", m.OutputPath())
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		data string
		want string
	}{
		{"syntax", `grid_width = `, "parse manifest"},
		{"unknown key", twoSlots + "colour = \"red\"\n", "unknown key"},
		{"count mismatch", strings.Replace(twoSlots, `"b/c.png"`, `"b/c.png", "d.png"`, 1), "3 sources"},
		{"zero tile", strings.Replace(twoSlots, "tile_size   = 16", "tile_size   = 0", 1), "grid"},
		{"both forms", twoSlots + "[[slot]]\nsource = \"x.png\"\n", "not both"},
		{"bad output", strings.Replace(twoSlots, "out/atlas.png", "out/atlas.jpg", 1), "output"},
		{"bad store", twoSlots + "[store]\nkind = \"s3\"\n", "unknown store kind"},
		{"http store without uri", twoSlots + "[store]\nkind = \"http\"\n", "needs a uri"},
		{"too many workers", strings.Replace(twoSlots, "workers     = 4", "workers     = 1000", 1), "workers"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.data), ".")
			if !errors.Is(err, errors.ErrCodeInvalidManifest) {
				t.Fatalf("Parse() error = %v, want INVALID_MANIFEST", err)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Parse() error = %q, want it to mention %q", err, tt.want)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "atlas.toml")
	if err := os.WriteFile(path, []byte(twoSlots), 0644); err != nil {
		t.Fatal(err)
	}

	m, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if m.Dir() != dir {
		t.Errorf("Dir() = %q, want %q", m.Dir(), dir)
	}
	if got, want := m.SourceRoot(), filepath.Join(dir, "textures"); got != want {
		t.Errorf("SourceRoot() = %q, want %q", got, want)
	}

	if _, err := Load(filepath.Join(dir, "nope.toml")); !errors.Is(err, errors.ErrCodeFileNotFound) {
		t.Errorf("Load(missing) error = %v, want FILE_NOT_FOUND", err)
	}
}

func TestDefault(t *testing.T) {
	m := Default()

	ids := m.SourceIDs()
	if len(ids) != 16 {
		t.Fatalf("len(SourceIDs) = %d, want 16", len(ids))
	}
	if ids[0] != "Grass/Grass_01-512x512.png" || ids[12] != "Bricks/Bricks_03-512x512.png" {
		t.Errorf("unexpected slot sources: %q, %q", ids[0], ids[12])
	}
	for _, i := range []int{13, 14, 15} {
		if ids[i] != ids[2] {
			t.Errorf("placeholder slot %d = %q, want %q", i, ids[i], ids[2])
		}
	}
	if m.Labels()[9] != "Leaves" {
		t.Errorf("label 9 = %q, want Leaves", m.Labels()[9])
	}
	if m.GridWidth != 4 || m.GridHeight != 4 || m.TileSize != 512 {
		t.Errorf("grid = %dx%dx%d, want 4x4x512", m.GridWidth, m.GridHeight, m.TileSize)
	}
	if got := filepath.ToSlash(m.OutputPath()); got != "assets/textures/block_atlas.png" {
		t.Errorf("OutputPath() = %q", got)
	}

	if _, err := Parse(DefaultData(), "."); err != nil {
		t.Errorf("DefaultData() does not parse: %v", err)
	}
}

func TestExampleManifests(t *testing.T) {
	paths, err := filepath.Glob(filepath.Join("..", "..", "examples", "*.toml"))
	if err != nil {
		t.Fatal(err)
	}
	if len(paths) == 0 {
		t.Skip("no example manifests")
	}
	for _, path := range paths {
		t.Run(filepath.Base(path), func(t *testing.T) {
			if _, err := Load(path); err != nil {
				t.Errorf("Load() error: %v", err)
			}
		})
	}
}
