package testutil

import (
	"testing"
)

// GenerateTestImage creates a gradient test image encoded in format.
func GenerateTestImage(t *testing.T, format string, width, height int) []byte {
	t.Helper()

	img := GradientImage(width, height)

	var (
		data []byte
		err  error
	)
	switch format {
	case "jpeg", "jpg":
		data, err = EncodeJPEG(img, 90)
	case "png":
		data, err = EncodePNG(img)
	default:
		t.Fatalf("unsupported image format: %s", format)
	}
	if err != nil {
		t.Fatalf("failed to encode %s: %v", format, err)
	}

	return data
}

// GenerateOrientedJPEG stores the QuadrantImage of width x height the way a
// camera tagged with orientation would, and returns the EXIF-tagged JPEG.
func GenerateOrientedJPEG(t *testing.T, width, height, orientation int) []byte {
	t.Helper()

	stored := StoreAs(QuadrantImage(width, height), orientation)
	data, err := EncodeJPEG(stored, 95)
	if err != nil {
		t.Fatalf("failed to encode JPEG: %v", err)
	}
	return WithEXIFOrientation(data, orientation)
}
