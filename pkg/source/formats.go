package source

// Formats beyond the PNG, JPEG and GIF decoders the standard library ships.
import (
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)
