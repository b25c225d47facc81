package pipeline

import (
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"math"

	webp "github.com/chai2010/webp"
	"github.com/gen2brain/avif"
	"github.com/sirupsen/logrus"
)

// DefaultAVIFSpeed is the standard speed used for AVIF encoding.
const DefaultAVIFSpeed = 6

// QualityPercent converts a [0,1] quality factor to the 1-100 scale used by
// the encoders. Non-positive factors fall back to DefaultQuality.
func QualityPercent(q float64) int {
	if q <= 0 || math.IsNaN(q) {
		q = DefaultQuality
	}
	p := int(math.Round(q * 100))
	if p < 1 {
		p = 1
	}
	if p > 100 {
		p = 100
	}
	return p
}

// Encode writes img to w in format at quality factor q and returns the MIME
// type written.
func Encode(img image.Image, w io.Writer, format Format, q float64) (string, error) {
	quality := QualityPercent(q)
	var err error
	switch format {
	case FormatPNG:
		err = EncodePNG(img, w)
	case FormatWebP:
		err = EncodeWebP(img, w, quality)
	case FormatAVIF:
		err = EncodeAVIF(img, w, quality, DefaultAVIFSpeed)
	case FormatJPEG, "":
		format = FormatJPEG
		err = EncodeJPEG(img, w, quality)
	default:
		return "", fmt.Errorf("encode: unknown format %q", format)
	}
	if err != nil {
		return "", fmt.Errorf("encode %s: %w", format, err)
	}
	return format.MIME(), nil
}

func checkEncodeArgs(img image.Image, w io.Writer) error {
	if img == nil {
		return errors.New("nil image")
	}
	if w == nil {
		return errors.New("nil writer")
	}
	return nil
}

// EncodeJPEG encodes img as baseline JPEG with quality 1-100.
func EncodeJPEG(img image.Image, w io.Writer, quality int) error {
	if err := checkEncodeArgs(img, w); err != nil {
		return err
	}
	c := &countingWriter{w: w}
	if err := jpeg.Encode(c, img, &jpeg.Options{Quality: quality}); err != nil {
		return err
	}
	logEncoded("jpeg", c.n, quality)
	return nil
}

// EncodePNG encodes img losslessly.
func EncodePNG(img image.Image, w io.Writer) error {
	if err := checkEncodeArgs(img, w); err != nil {
		return err
	}
	c := &countingWriter{w: w}
	if err := png.Encode(c, img); err != nil {
		return err
	}
	logEncoded("png", c.n, 100)
	return nil
}

// EncodeWebP encodes img to WebP written to w with given quality (0-100).
func EncodeWebP(img image.Image, w io.Writer, quality int) error {
	if err := checkEncodeArgs(img, w); err != nil {
		return err
	}
	if quality < 0 {
		quality = 0
	}
	if quality > 100 {
		quality = 100
	}

	c := &countingWriter{w: w}
	if err := webp.Encode(c, img, &webp.Options{Quality: float32(quality)}); err != nil {
		return err
	}
	logEncoded("webp", c.n, quality)
	return nil
}

// EncodeAVIF encodes img to AVIF written to w with given quality (0-100) and speed (0-10).
func EncodeAVIF(img image.Image, w io.Writer, quality, speed int) error {
	if err := checkEncodeArgs(img, w); err != nil {
		return err
	}
	if quality <= 0 {
		quality = QualityPercent(DefaultQuality)
	}
	if quality > 100 {
		quality = 100
	}
	if speed <= 0 {
		speed = DefaultAVIFSpeed
	}
	if speed > 10 {
		speed = 10
	}

	c := &countingWriter{w: w}
	if err := avif.Encode(c, img, avif.Options{Quality: quality, QualityAlpha: quality, Speed: speed}); err != nil {
		return err
	}
	logEncoded("avif", c.n, quality)
	return nil
}

func logEncoded(format string, size int64, quality int) {
	logrus.WithFields(logrus.Fields{
		"component": "pipeline",
		"format":    format,
		"size":      size,
		"quality":   quality,
	}).Debug("Pipeline: encoded image")
}

// countingWriter wraps an io.Writer and counts bytes written.
type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	m, err := c.w.Write(p)
	c.n += int64(m)
	return m, err
}
