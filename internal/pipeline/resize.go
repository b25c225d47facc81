package pipeline

import (
	"image"
	"math"

	"github.com/disintegration/imaging"
)

// Downscale reduces img to at most maxWidth pixels wide, preserving aspect
// ratio. Large reductions are first halved with a box filter and then finished
// with a single bilinear pass. Images already within maxWidth are returned
// unchanged.
func Downscale(img image.Image, maxWidth int) image.Image {
	if img == nil {
		return nil
	}
	b := img.Bounds()
	w := b.Dx()
	h := b.Dy()
	if w <= 0 || h <= 0 || maxWidth <= 0 || w <= maxWidth {
		return img
	}

	tw, th := TargetSize(w, h, maxWidth)
	halved := HalveUntilWithin(img, maxWidth)
	if halved.Rect.Dx() == tw && halved.Rect.Dy() == th {
		return halved
	}
	return Bilinear(halved, tw, th)
}

// TargetSize computes the output dimensions for a w x h source limited to
// maxWidth. Height follows the source aspect ratio and never drops below 1.
func TargetSize(w, h, maxWidth int) (int, int) {
	if w <= 0 || h <= 0 || maxWidth <= 0 || w <= maxWidth {
		return w, h
	}
	nh := int(math.Round(float64(h) * float64(maxWidth) / float64(w)))
	if nh < 1 {
		nh = 1
	}
	return maxWidth, nh
}

// HalveUntilWithin halves both dimensions with a 2:1 box filter while the
// width is more than twice target.
func HalveUntilWithin(img image.Image, target int) *image.NRGBA {
	out := toNRGBA(img)
	if target <= 0 {
		return out
	}
	for out.Rect.Dx() > 2*target {
		nw := out.Rect.Dx() / 2
		nh := out.Rect.Dy() / 2
		if nh < 1 {
			nh = 1
		}
		out = imaging.Resize(out, nw, nh, imaging.Box)
	}
	return out
}

// Bilinear resamples src to dw x dh. Each destination pixel blends the four
// nearest source pixels, weighted by the fractional distance along each
// axis, independently per channel.
func Bilinear(src *image.NRGBA, dw, dh int) *image.NRGBA {
	src = toNRGBA(src)
	dst := image.NewNRGBA(image.Rect(0, 0, dw, dh))
	sw, sh := src.Rect.Dx(), src.Rect.Dy()
	if dw <= 0 || dh <= 0 || sw <= 0 || sh <= 0 {
		return dst
	}

	xs := axisTaps(sw, dw)
	ys := axisTaps(sh, dh)

	for y, ty := range ys {
		row0 := src.Pix[ty.i0*src.Stride:]
		row1 := src.Pix[ty.i1*src.Stride:]
		out := dst.Pix[y*dst.Stride:]
		for x, tx := range xs {
			p00 := row0[tx.i0*4:]
			p10 := row0[tx.i1*4:]
			p01 := row1[tx.i0*4:]
			p11 := row1[tx.i1*4:]
			d := out[x*4 : x*4+4]
			for c := 0; c < 4; c++ {
				top := float64(p00[c])*(1-tx.f) + float64(p10[c])*tx.f
				bottom := float64(p01[c])*(1-tx.f) + float64(p11[c])*tx.f
				d[c] = clampUint8(top*(1-ty.f) + bottom*ty.f)
			}
		}
	}
	return dst
}

// tap holds the two source indices and the weight of the second one.
type tap struct {
	i0, i1 int
	f      float64
}

func axisTaps(srcLen, dstLen int) []tap {
	taps := make([]tap, dstLen)
	scale := float64(srcLen) / float64(dstLen)
	for i := range taps {
		s := (float64(i)+0.5)*scale - 0.5
		if s < 0 {
			s = 0
		}
		i0 := int(s)
		if i0 > srcLen-1 {
			i0 = srcLen - 1
		}
		i1 := i0 + 1
		if i1 > srcLen-1 {
			i1 = srcLen - 1
		}
		taps[i] = tap{i0: i0, i1: i1, f: s - float64(i0)}
	}
	return taps
}

func clampUint8(v float64) uint8 {
	v = math.Round(v)
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}

// toNRGBA returns img as an NRGBA buffer anchored at the origin.
func toNRGBA(img image.Image) *image.NRGBA {
	if n, ok := img.(*image.NRGBA); ok && n != nil && n.Rect.Min == (image.Point{}) {
		return n
	}
	return imaging.Clone(img)
}
