package raster

import (
	"fmt"
	"image"

	"github.com/disintegration/imaging"
	"github.com/dunamismax/printflow/internal/imgerr"
	"golang.org/x/image/draw"
)

// MaxDimension bounds every resize target so a pathological request cannot
// allocate an unbounded buffer.
const MaxDimension = 20000

// Filter selects the resampling kernel used by Resize.
type Filter int

const (
	// FilterLanczos is the print path kernel. Nearest and bilinear visibly
	// soften text and edges once an image is scaled to 300 DPI.
	FilterLanczos Filter = iota
	// FilterFast is only acceptable for low resolution previews.
	FilterFast
)

func (f Filter) String() string {
	switch f {
	case FilterFast:
		return "fast"
	default:
		return "lanczos"
	}
}

// Region is an absolute pixel rectangle. It is the only crop representation
// geometry functions accept.
type Region struct {
	X, Y          int
	Width, Height int
}

func (r Region) String() string {
	return fmt.Sprintf("%dx%d+%d+%d", r.Width, r.Height, r.X, r.Y)
}

// Rect converts r to an image.Rectangle. Only call it on a clamped region:
// image.Rect swaps inverted coordinates and the sums may overflow.
func (r Region) Rect() image.Rectangle {
	return image.Rect(r.X, r.Y, r.X+r.Width, r.Y+r.Height)
}

// Clamp intersects r with a width x height source. The result may be empty.
// Offsets and sizes of any magnitude are clamped without wrapping.
func (r Region) Clamp(width, height int) Region {
	x, w, okX := clampSpan(r.X, r.Width, width)
	y, h, okY := clampSpan(r.Y, r.Height, height)
	if !okX || !okY {
		return Region{}
	}
	return Region{X: x, Y: y, Width: w, Height: h}
}

// clampSpan intersects [start, start+length) with [0, limit).
func clampSpan(start, length, limit int) (int, int, bool) {
	if length <= 0 || limit <= 0 || start >= limit {
		return 0, 0, false
	}
	if start < 0 {
		// start is negative and length positive, so the sum cannot overflow.
		end := start + length
		if end <= 0 {
			return 0, 0, false
		}
		return 0, min(end, limit), true
	}
	return start, min(length, limit-start), true
}

// Crop extracts region from img after clamping it to the image bounds.
func Crop(img Image, region Region) (Image, error) {
	if img.Empty() {
		return Image{}, imgerr.Geometryf("crop", "source image is empty")
	}

	clamped := region.Clamp(img.Width(), img.Height())
	if clamped.Width <= 0 || clamped.Height <= 0 {
		return Image{}, imgerr.Geometryf("crop", "region %s has no overlap with %dx%d source", region, img.Width(), img.Height())
	}

	out := imaging.Crop(img.NRGBA, clamped.Rect().Add(img.Rect.Min))
	return Image{NRGBA: out, Channels: img.Channels}, nil
}

// Resize resamples img to exactly width x height. Aspect ratio is the
// caller's concern.
func Resize(img Image, width, height int, filter Filter) (Image, error) {
	if img.Empty() {
		return Image{}, imgerr.Geometryf("resize", "source image is empty")
	}
	if width <= 0 || height <= 0 {
		return Image{}, imgerr.Geometryf("resize", "target %dx%d must be positive", width, height)
	}
	if width > MaxDimension || height > MaxDimension {
		return Image{}, imgerr.Geometryf("resize", "target %dx%d exceeds limit %d", width, height, MaxDimension)
	}

	if width == img.Width() && height == img.Height() {
		return img.Clone(), nil
	}

	switch filter {
	case FilterFast:
		dst := image.NewNRGBA(image.Rect(0, 0, width, height))
		draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img.NRGBA, img.Bounds(), draw.Src, nil)
		return Image{NRGBA: dst, Channels: img.Channels}, nil
	default:
		out, err := resampleLanczos(img.NRGBA, width, height)
		if err != nil {
			return Image{}, imgerr.Geometry("resize", err)
		}
		return Image{NRGBA: out, Channels: img.Channels}, nil
	}
}

// FitLongEdge returns the dimensions of a w x h image scaled so its longer
// edge equals longEdge, preserving aspect ratio.
func FitLongEdge(w, h, longEdge int) (int, int) {
	if w <= 0 || h <= 0 || longEdge <= 0 {
		return 0, 0
	}
	if w >= h {
		return longEdge, max(1, roundDiv(h*longEdge, w))
	}
	return max(1, roundDiv(w*longEdge, h)), longEdge
}

// FitBox scales w x h to the largest size that fits inside boxW x boxH.
// A zero box side leaves that axis unconstrained.
func FitBox(w, h, boxW, boxH int) (int, int) {
	if w <= 0 || h <= 0 || (boxW <= 0 && boxH <= 0) {
		return 0, 0
	}
	if boxH <= 0 {
		return boxW, max(1, roundDiv(h*boxW, w))
	}
	if boxW <= 0 {
		return max(1, roundDiv(w*boxH, h)), boxH
	}
	// Compare w/h against boxW/boxH without floating point.
	if w*boxH >= h*boxW {
		return boxW, max(1, roundDiv(h*boxW, w))
	}
	return max(1, roundDiv(w*boxH, h)), boxH
}

func roundDiv(num, den int) int {
	return (2*num + den) / (2 * den)
}
