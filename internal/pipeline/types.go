package pipeline

import (
	"errors"
	"fmt"
)

// ErrDecode marks an input that could not be turned into pixels. The
// validation errors below wrap it so callers can match the whole family.
var ErrDecode = errors.New("image could not be decoded")

var (
	ErrNotAnImage        = fmt.Errorf("%w: not an image", ErrDecode)
	ErrTooLarge          = fmt.Errorf("%w: image exceeds size limit", ErrDecode)
	ErrInvalidDimensions = fmt.Errorf("%w: image dimensions out of range", ErrDecode)
)

// Maximum dimension (width or height) accepted by the decoder.
const MaxDimension = 8000

const (
	// DefaultMaxWidth is the output width limit in pixels.
	DefaultMaxWidth = 480
	// DefaultQuality is the lossy encoder quality factor in [0,1].
	DefaultQuality = 0.6
	// DefaultMaxBytes caps the size of a single raw upload.
	DefaultMaxBytes int64 = 25 << 20
)

// Format names an output encoding.
type Format string

const (
	FormatJPEG Format = "jpeg"
	FormatPNG  Format = "png"
	FormatWebP Format = "webp"
	FormatAVIF Format = "avif"
)

// MIME returns the media type produced for f.
func (f Format) MIME() string {
	switch f {
	case FormatPNG:
		return "image/png"
	case FormatWebP:
		return "image/webp"
	case FormatAVIF:
		return "image/avif"
	default:
		return "image/jpeg"
	}
}

// ParseFormat maps a config value to a Format.
func ParseFormat(s string) (Format, error) {
	switch f := Format(s); f {
	case FormatJPEG, FormatPNG, FormatWebP, FormatAVIF:
		return f, nil
	case "jpg":
		return FormatJPEG, nil
	case "":
		return FormatJPEG, nil
	default:
		return "", fmt.Errorf("unknown output format %q", s)
	}
}
