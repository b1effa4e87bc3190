package layout

import (
	"image"

	"github.com/matzehuels/atlaspack/pkg/errors"
)

// MaxDimension is the largest composite width or height, in pixels, a Grid
// accepts. It keeps width*height*4 well inside int on 32-bit platforms.
const MaxDimension = 1 << 15

// Grid is the fixed slot table of an atlas.
type Grid struct {
	cols, rows int
	tile       int
}

// New creates a grid of gridWidth columns and gridHeight rows of square
// tiles of tileSize pixels. Non-positive dimensions, or a composite side
// larger than MaxDimension, fail with an INVALID_CONFIG error.
func New(gridWidth, gridHeight, tileSize int) (*Grid, error) {
	switch {
	case gridWidth <= 0:
		return nil, errors.New(errors.ErrCodeInvalidConfig, "grid width must be positive, got %d", gridWidth)
	case gridHeight <= 0:
		return nil, errors.New(errors.ErrCodeInvalidConfig, "grid height must be positive, got %d", gridHeight)
	case tileSize <= 0:
		return nil, errors.New(errors.ErrCodeInvalidConfig, "tile size must be positive, got %d", tileSize)
	}
	if gridWidth > MaxDimension/tileSize || gridHeight > MaxDimension/tileSize {
		return nil, errors.New(errors.ErrCodeInvalidConfig,
			"atlas %dx%d tiles of %dpx exceeds %dpx per side", gridWidth, gridHeight, tileSize, MaxDimension)
	}
	return &Grid{cols: gridWidth, rows: gridHeight, tile: tileSize}, nil
}

// GridWidth returns the number of columns.
func (g *Grid) GridWidth() int { return g.cols }

// GridHeight returns the number of rows.
func (g *Grid) GridHeight() int { return g.rows }

// TileSize returns the side of one slot in pixels.
func (g *Grid) TileSize() int { return g.tile }

// SlotCount returns N = gridWidth * gridHeight.
func (g *Grid) SlotCount() int { return g.cols * g.rows }

// Bounds returns the composite rectangle, anchored at the origin.
func (g *Grid) Bounds() image.Rectangle {
	return image.Rect(0, 0, g.cols*g.tile, g.rows*g.tile)
}

// SlotOrigin returns the top-left pixel of slot index.
// It panics with an INDEX_OUT_OF_RANGE *errors.Error if index is not in
// [0, SlotCount()).
func (g *Grid) SlotOrigin(index int) image.Point {
	s, err := g.Slot(index)
	if err != nil {
		panic(err)
	}
	return s.Origin
}

// Slot returns the cell for index, or an INDEX_OUT_OF_RANGE error.
func (g *Grid) Slot(index int) (Slot, error) {
	if index < 0 || index >= g.SlotCount() {
		return Slot{}, errors.IndexOutOfRange(index, g.SlotCount())
	}
	row, col := index/g.cols, index%g.cols
	return Slot{
		Index:  index,
		Row:    row,
		Col:    col,
		Origin: image.Pt(col*g.tile, row*g.tile),
		Size:   g.tile,
	}, nil
}

// Slots returns every slot in ascending index order.
func (g *Grid) Slots() []Slot {
	slots := make([]Slot, g.SlotCount())
	for i := range slots {
		slots[i], _ = g.Slot(i)
	}
	return slots
}

// UV returns the normalized sub-rectangle [u0, v0, u1, v1] of slot index
// with v growing downwards, as a renderer samples it. It panics like
// SlotOrigin on an invalid index.
func (g *Grid) UV(index int) [4]float64 {
	r := g.SlotOrigin(index)
	b := g.Bounds()
	w, h := float64(b.Dx()), float64(b.Dy())
	return [4]float64{
		float64(r.X) / w,
		float64(r.Y) / h,
		float64(r.X+g.tile) / w,
		float64(r.Y+g.tile) / h,
	}
}
