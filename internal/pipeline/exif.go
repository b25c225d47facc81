package pipeline

import (
	"image"
	"io"

	"github.com/disintegration/imaging"
	"github.com/rwcarlsen/goexif/exif"
)

// orientations maps an EXIF orientation tag to the transform that brings the
// stored pixels upright. imaging rotates counter-clockwise.
var orientations = map[int]func(image.Image) *image.NRGBA{
	2: imaging.FlipH,
	3: imaging.Rotate180,
	4: imaging.FlipV,
	5: imaging.Transpose,
	6: imaging.Rotate270,
	7: imaging.Transverse,
	8: imaging.Rotate90,
}

// ReadOrientation returns the EXIF orientation tag found in r. ok is false
// when there is no EXIF block, no orientation tag, or a value outside 1-8.
func ReadOrientation(r io.Reader) (orientation int, ok bool) {
	if r == nil {
		return 0, false
	}
	// Decode can report sub-IFD errors alongside a usable result.
	x, _ := exif.Decode(r)
	if x == nil {
		return 0, false
	}
	tag, err := x.Get(exif.Orientation)
	if err != nil {
		return 0, false
	}
	o, err := tag.Int(0)
	if err != nil || o < 1 || o > 8 {
		return 0, false
	}
	return o, true
}

// Orient applies the correction for orientation to img. Tag 1 and unknown
// values return img unchanged.
func Orient(img image.Image, orientation int) image.Image {
	fn, ok := orientations[orientation]
	if !ok {
		return img
	}
	return fn(img)
}

// SwapsDimensions reports whether correcting orientation exchanges width and height.
func SwapsDimensions(orientation int) bool {
	return orientation >= 5 && orientation <= 8
}
