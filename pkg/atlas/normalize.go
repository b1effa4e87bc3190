package atlas

import (
	"image"

	"github.com/disintegration/imaging"
	"golang.org/x/image/draw"

	"github.com/matzehuels/atlaspack/pkg/errors"
)

// Normalize converts img to 8-bit non-premultiplied RGBA anchored at the
// origin. Sources without alpha become fully opaque, grayscale sources have
// their luminance copied to R, G and B. The pixel dimensions never change.
//
// An NRGBA image already anchored at the origin is returned as is.
// Conversions that cannot be performed fail with NORMALIZE_FAILED.
func Normalize(img image.Image) (*image.NRGBA, error) {
	if isNilImage(img) {
		return nil, errors.New(errors.ErrCodeNormalizeFailed, "no image")
	}
	b := img.Bounds()
	if b.Empty() {
		return nil, errors.New(errors.ErrCodeNormalizeFailed, "empty image %v", b)
	}

	if src, ok := img.(*image.NRGBA); ok && b.Min == (image.Point{}) {
		if err := checkPix(src); err != nil {
			return nil, err
		}
		return src, nil
	}

	var out *image.NRGBA
	switch src := img.(type) {
	case *image.NRGBA, *image.NRGBA64, *image.RGBA, *image.RGBA64, *image.Gray, *image.Gray16:
		if err := checkPix(img); err != nil {
			return nil, err
		}
		out = imaging.Clone(img)
	case *image.Paletted:
		if err := checkPalette(src); err != nil {
			return nil, err
		}
		out = imaging.Clone(img)
	case *image.YCbCr:
		if err := checkYCbCr(src); err != nil {
			return nil, err
		}
		out = imaging.Clone(img)
	default:
		// imaging reads arbitrary images from its own goroutines, where a
		// panicking At cannot be recovered.
		var err error
		if out, err = drawNRGBA(img); err != nil {
			return nil, err
		}
	}

	if out.Bounds().Size() != b.Size() {
		return nil, errors.New(errors.ErrCodeNormalizeFailed,
			"conversion changed size from %v to %v", b.Size(), out.Bounds().Size())
	}
	return out, nil
}

func drawNRGBA(img image.Image) (out *image.NRGBA, err error) {
	defer func() {
		if r := recover(); r != nil {
			out = nil
			err = errors.New(errors.ErrCodeNormalizeFailed, "unsupported channel layout %T: %v", img, r)
		}
	}()
	b := img.Bounds()
	out = image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(out, out.Rect, img, b.Min, draw.Src)
	return out, nil
}

// checkPix reports whether the pixel buffer of a packed image covers its
// bounds.
func checkPix(img image.Image) error {
	var (
		pix    []uint8
		stride int
		bpp    int
		off    int
	)
	b := img.Bounds()
	last := image.Pt(b.Max.X-1, b.Max.Y-1)
	switch src := img.(type) {
	case *image.NRGBA:
		pix, stride, bpp, off = src.Pix, src.Stride, 4, src.PixOffset(last.X, last.Y)
	case *image.NRGBA64:
		pix, stride, bpp, off = src.Pix, src.Stride, 8, src.PixOffset(last.X, last.Y)
	case *image.RGBA:
		pix, stride, bpp, off = src.Pix, src.Stride, 4, src.PixOffset(last.X, last.Y)
	case *image.RGBA64:
		pix, stride, bpp, off = src.Pix, src.Stride, 8, src.PixOffset(last.X, last.Y)
	case *image.Gray:
		pix, stride, bpp, off = src.Pix, src.Stride, 1, src.PixOffset(last.X, last.Y)
	case *image.Gray16:
		pix, stride, bpp, off = src.Pix, src.Stride, 2, src.PixOffset(last.X, last.Y)
	default:
		return nil
	}
	if stride < b.Dx()*bpp || off < 0 || off+bpp > len(pix) {
		return errors.New(errors.ErrCodeNormalizeFailed,
			"pixel buffer of %d bytes does not cover %v", len(pix), b)
	}
	return nil
}

func checkYCbCr(src *image.YCbCr) error {
	b := src.Rect
	for _, p := range []image.Point{b.Min, {b.Max.X - 1, b.Max.Y - 1}} {
		yi, ci := src.YOffset(p.X, p.Y), src.COffset(p.X, p.Y)
		if yi < 0 || yi >= len(src.Y) || ci < 0 || ci >= len(src.Cb) || ci >= len(src.Cr) {
			return errors.New(errors.ErrCodeNormalizeFailed,
				"ycbcr planes do not cover %v", b)
		}
	}
	return nil
}

func checkPalette(src *image.Paletted) error {
	if len(src.Palette) == 0 {
		return errors.New(errors.ErrCodeNormalizeFailed, "paletted image has no colours")
	}
	if err := checkPix(&image.Gray{Pix: src.Pix, Stride: src.Stride, Rect: src.Rect}); err != nil {
		return err
	}
	n := len(src.Palette)
	b := src.Rect
	for y := b.Min.Y; y < b.Max.Y; y++ {
		i := src.PixOffset(b.Min.X, y)
		for _, idx := range src.Pix[i : i+b.Dx()] {
			if int(idx) >= n {
				return errors.New(errors.ErrCodeNormalizeFailed,
					"palette index %d out of range for %d colours", idx, n)
			}
		}
	}
	return nil
}

// isNilImage reports whether img is nil or a nil pointer to one of the
// standard image types.
func isNilImage(img image.Image) bool {
	switch p := img.(type) {
	case nil:
		return true
	case *image.NRGBA:
		return p == nil
	case *image.NRGBA64:
		return p == nil
	case *image.RGBA:
		return p == nil
	case *image.RGBA64:
		return p == nil
	case *image.Gray:
		return p == nil
	case *image.Gray16:
		return p == nil
	case *image.Paletted:
		return p == nil
	case *image.YCbCr:
		return p == nil
	case *image.CMYK:
		return p == nil
	case *image.Alpha:
		return p == nil
	case *image.Alpha16:
		return p == nil
	case *image.NYCbCrA:
		return p == nil
	}
	return false
}
