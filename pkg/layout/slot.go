package layout

import "image"

// Slot is one cell of the atlas grid.
type Slot struct {
	Index    int
	Row, Col int
	Origin   image.Point
	Size     int // tile size in pixels
}

// Bounds returns the pixel rectangle the slot covers in the composite.
func (s Slot) Bounds() image.Rectangle {
	return image.Rectangle{Min: s.Origin, Max: s.Origin.Add(image.Pt(s.Size, s.Size))}
}
