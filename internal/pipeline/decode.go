package pipeline

import (
	"bytes"
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"

	webp "github.com/chai2010/webp"
	"github.com/gabriel-vasile/mimetype"
	"github.com/gen2brain/avif"
)

// DetectFormat returns the sniffed MIME type of data.
func DetectFormat(data []byte) string {
	return mimetype.Detect(data).String()
}

// ValidateAndDecode reads up to maxBytes from r, checks content type, decodes to image.Image
// and validates dimensions (MaxDimension). Every failure matches ErrDecode.
func ValidateAndDecode(r io.Reader, maxBytes int64) (image.Image, string, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	// read up to maxBytes+1 to detect overflow
	data, err := io.ReadAll(io.LimitReader(r, maxBytes+1))
	if err != nil {
		return nil, "", fmt.Errorf("%w: read: %v", ErrDecode, err)
	}
	if int64(len(data)) > maxBytes {
		return nil, "", ErrTooLarge
	}
	return decodeBytes(data)
}

func decodeBytes(data []byte) (image.Image, string, error) {
	ct := DetectFormat(data)

	var img image.Image
	var decodeErr error

	br := bytes.NewReader(data)
	switch {
	case mimetype.EqualsAny(ct, "image/jpeg"):
		img, decodeErr = jpeg.Decode(br)
	case mimetype.EqualsAny(ct, "image/png"):
		img, decodeErr = png.Decode(br)
	case mimetype.EqualsAny(ct, "image/gif"):
		img, decodeErr = gif.Decode(br)
	case mimetype.EqualsAny(ct, "image/webp"):
		img, decodeErr = webp.Decode(br)
	case mimetype.EqualsAny(ct, "image/avif"):
		img, decodeErr = avif.Decode(br)
	default:
		return nil, ct, ErrNotAnImage
	}
	if decodeErr != nil {
		return nil, ct, fmt.Errorf("%w: %s: %v", ErrDecode, ct, decodeErr)
	}

	b := img.Bounds()
	w := b.Dx()
	h := b.Dy()
	if w <= 0 || h <= 0 || w > MaxDimension || h > MaxDimension {
		return nil, ct, ErrInvalidDimensions
	}

	return img, ct, nil
}
