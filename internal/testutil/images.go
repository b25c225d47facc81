package testutil

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"

	"github.com/disintegration/imaging"
)

// Quadrant colors used by QuadrantImage, top-left first in reading order.
var (
	QuadrantTL = color.NRGBA{R: 220, G: 30, B: 30, A: 255}
	QuadrantTR = color.NRGBA{R: 30, G: 200, B: 40, A: 255}
	QuadrantBL = color.NRGBA{R: 30, G: 40, B: 210, A: 255}
	QuadrantBR = color.NRGBA{R: 240, G: 240, B: 240, A: 255}
)

// GradientImage returns an opaque gradient of the given size.
func GradientImage(width, height int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			r := uint8((x * 255) / width)
			g := uint8((y * 255) / height)
			img.SetNRGBA(x, y, color.NRGBA{R: r, G: g, B: 128, A: 255})
		}
	}

	return img
}

// QuadrantImage returns an image split into four flat quadrants, which makes
// flips and rotations easy to tell apart after lossy encoding.
func QuadrantImage(width, height int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			var c color.NRGBA
			switch {
			case x < width/2 && y < height/2:
				c = QuadrantTL
			case y < height/2:
				c = QuadrantTR
			case x < width/2:
				c = QuadrantBL
			default:
				c = QuadrantBR
			}
			img.SetNRGBA(x, y, c)
		}
	}
	return img
}

// StoreAs returns the pixels a camera would store for an upright image
// tagged with orientation. It is the inverse of the display correction.
func StoreAs(upright image.Image, orientation int) image.Image {
	switch orientation {
	case 2:
		return imaging.FlipH(upright)
	case 3:
		return imaging.Rotate180(upright)
	case 4:
		return imaging.FlipV(upright)
	case 5:
		return imaging.Transpose(upright)
	case 6:
		return imaging.Rotate90(upright)
	case 7:
		return imaging.Transverse(upright)
	case 8:
		return imaging.Rotate270(upright)
	default:
		return upright
	}
}

// EncodeJPEG encodes img as JPEG at quality.
func EncodeJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// EncodePNG encodes img as PNG.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WithEXIFOrientation inserts a minimal APP1 EXIF segment carrying the
// orientation tag right after the JPEG SOI marker.
func WithEXIFOrientation(jpegData []byte, orientation int) []byte {
	if len(jpegData) < 2 {
		return jpegData
	}
	seg := exifSegment(orientation)
	out := make([]byte, 0, len(jpegData)+len(seg))
	out = append(out, jpegData[:2]...)
	out = append(out, seg...)
	return append(out, jpegData[2:]...)
}

func exifSegment(orientation int) []byte {
	tiff := []byte{
		'I', 'I', 0x2A, 0x00, // little-endian TIFF header
		0x08, 0x00, 0x00, 0x00, // IFD0 offset
		0x01, 0x00, // one entry
		0x12, 0x01, // tag 0x0112 Orientation
		0x03, 0x00, // SHORT
		0x01, 0x00, 0x00, 0x00, // count
		byte(orientation), 0x00, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00, // no next IFD
	}
	payload := append([]byte("Exif\x00\x00"), tiff...)
	size := len(payload) + 2
	seg := []byte{0xFF, 0xE1, byte(size >> 8), byte(size)}
	return append(seg, payload...)
}
