// Package pipeline normalizes photographs before they leave an edit session:
// decode, orientation correction, progressive downscale and encode.
package pipeline

import (
	"bytes"
	"fmt"
	"image"

	"storefront/internal/codec"
)

// Options controls Normalize.
type Options struct {
	MaxWidth int
	Quality  float64
	Format   Format
	MaxBytes int64
}

// DefaultOptions returns the storefront defaults: 480px wide JPEG at 0.6.
func DefaultOptions() Options {
	return Options{
		MaxWidth: DefaultMaxWidth,
		Quality:  DefaultQuality,
		Format:   FormatJPEG,
		MaxBytes: DefaultMaxBytes,
	}
}

func (o Options) withDefaults() Options {
	if o.MaxWidth <= 0 {
		o.MaxWidth = DefaultMaxWidth
	}
	if o.Quality <= 0 || o.Quality > 1 {
		o.Quality = DefaultQuality
	}
	if o.Format == "" {
		o.Format = FormatJPEG
	}
	if o.MaxBytes <= 0 {
		o.MaxBytes = DefaultMaxBytes
	}
	return o
}

// NormalizedAsset is the encoded output of Normalize. It is not modified
// after creation. URL carries the same bytes as Data, so only URL is
// serialized.
type NormalizedAsset struct {
	Data        []byte `json:"-"`
	MIME        string `json:"mime"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	URL         string `json:"url"`
	Orientation int    `json:"orientation,omitempty"`
}

// Size returns the encoded byte size.
func (a *NormalizedAsset) Size() int { return len(a.Data) }

// Resample corrects orientation and downscales img to maxWidth. It performs
// no I/O.
func Resample(img image.Image, orientation, maxWidth int) image.Image {
	return Downscale(Orient(img, orientation), maxWidth)
}

// Normalize runs the full policy on raw image bytes: validate+decode -> exif
// orientation -> halve -> bilinear -> encode. Inputs without a readable
// orientation tag are treated as upright.
func Normalize(data []byte, opts Options) (*NormalizedAsset, error) {
	opts = opts.withDefaults()

	img, _, err := ValidateAndDecode(bytes.NewReader(data), opts.MaxBytes)
	if err != nil {
		return nil, fmt.Errorf("validate decode: %w", err)
	}

	orientation, ok := ReadOrientation(bytes.NewReader(data))
	if !ok {
		orientation = 1
	}

	img = Resample(img, orientation, opts.MaxWidth)

	var buf bytes.Buffer
	mt, err := Encode(img, &buf, opts.Format, opts.Quality)
	if err != nil {
		return nil, err
	}

	out := buf.Bytes()
	return &NormalizedAsset{
		Data:        out,
		MIME:        mt,
		Width:       img.Bounds().Dx(),
		Height:      img.Bounds().Dy(),
		URL:         codec.BlobToPresentationURL(out),
		Orientation: orientation,
	}, nil
}
