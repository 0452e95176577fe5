package compression

import (
	"image"
	"math"

	"github.com/nfnt/resize"
	"golang.org/x/image/draw"
)

// fitWithin returns the encode size for an image of size d. Only the longer
// side is clamped (width for landscape, height otherwise) and the other side
// follows the aspect ratio. Images already inside the bounds are never scaled.
func fitWithin(d Dimensions, maxW, maxH int) Dimensions {
	if d.Width <= maxW && d.Height <= maxH {
		return d
	}

	// w/aspect and h*aspect, multiplied out to keep exact ratios exact
	w, h := float64(d.Width), float64(d.Height)
	if d.Width > d.Height {
		w = math.Min(float64(maxW), w)
		h = w * float64(d.Height) / float64(d.Width)
	} else {
		h = math.Min(float64(maxH), h)
		w = h * float64(d.Width) / float64(d.Height)
	}
	// truncate like a canvas size assignment
	return Dimensions{Width: max(1, int(w)), Height: max(1, int(h))}
}

// render draws src onto a new surface of the given size. The surface belongs
// to the caller alone.
func render(src image.Image, size Dimensions, r Resampler) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, size.Width, size.Height))
	sb := src.Bounds()

	if sb.Dx() == size.Width && sb.Dy() == size.Height {
		draw.Draw(dst, dst.Bounds(), src, sb.Min, draw.Src)
		return dst
	}

	switch r {
	case ResampleLanczos:
		scaled := resize.Resize(uint(size.Width), uint(size.Height), src, resize.Lanczos3)
		draw.Draw(dst, dst.Bounds(), scaled, scaled.Bounds().Min, draw.Src)
	case ResampleBilinear:
		draw.BiLinear.Scale(dst, dst.Bounds(), src, sb, draw.Src, nil)
	default:
		draw.CatmullRom.Scale(dst, dst.Bounds(), src, sb, draw.Src, nil)
	}
	return dst
}
