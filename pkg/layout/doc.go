// Package layout maps atlas slot indices to grid cells and pixel origins.
//
// A [Grid] is fixed at construction from three positive integers: the number
// of columns (gridWidth), the number of rows (gridHeight) and the square tile
// size in pixels. Slots are numbered 0..N-1 in row-major order:
//
//	row = index / gridWidth
//	col = index % gridWidth
//	x   = col * tileSize
//	y   = row * tileSize
//
// There is no other placement policy. The grid is immutable and all methods
// are pure, so a Grid can be shared between goroutines.
//
// # Index Contract
//
// Callers are expected to iterate exactly [0, SlotCount()). [Grid.SlotOrigin]
// treats an index outside that range as a programming error and panics with
// an INDEX_OUT_OF_RANGE *errors.Error, the same way a slice index would.
// [Grid.Slot] is the checked variant that returns the error instead.
package layout
