package raster

import (
	"math"

	"github.com/dunamismax/printflow/internal/imgerr"
)

// Mask is a single-channel alpha buffer. It is built for one composite step
// and then dropped.
type Mask struct {
	Width  int
	Height int
	Pix    []uint8
}

// NewMask returns a mask with every value set to v.
func NewMask(width, height int, v uint8) Mask {
	if width < 0 {
		width = 0
	}
	if height < 0 {
		height = 0
	}
	pix := make([]uint8, width*height)
	if v != 0 {
		for i := range pix {
			pix[i] = v
		}
	}
	return Mask{Width: width, Height: height, Pix: pix}
}

func (m Mask) At(x, y int) uint8 {
	return m.Pix[y*m.Width+x]
}

// Opaque reports whether every value is 255.
func (m Mask) Opaque() bool {
	for _, v := range m.Pix {
		if v != 255 {
			return false
		}
	}
	return true
}

// CornerRadiusMask builds a rounded-rectangle mask. The radius is clamped to
// a quarter of the smaller side; a non-positive radius yields an opaque mask.
func CornerRadiusMask(width, height, radius int) Mask {
	m := NewMask(width, height, 255)
	r := min(radius, min(width, height)/4)
	if r <= 0 {
		return m
	}

	rf := float64(r)
	for y := 0; y < r; y++ {
		for x := 0; x < r; x++ {
			// Distance from the pixel centre to the corner circle centre.
			dx := rf - (float64(x) + 0.5)
			dy := rf - (float64(y) + 0.5)
			coverage := clampUnit(rf - math.Hypot(dx, dy) + 0.5)
			a := uint8(math.Round(coverage * 255))

			m.Pix[y*width+x] = a
			m.Pix[y*width+(width-1-x)] = a
			m.Pix[(height-1-y)*width+x] = a
			m.Pix[(height-1-y)*width+(width-1-x)] = a
		}
	}
	return m
}

// FeatherMask builds a mask that is 0 on the outermost pixels and rises along
// a Gaussian CDF to 255 at feather pixels from every edge. The feather width
// is clamped to half the smaller side.
func FeatherMask(width, height, feather int) Mask {
	m := NewMask(width, height, 255)
	f := min(feather, min(width, height)/2)
	if f <= 0 {
		return m
	}

	cols := featherRamp(width, f)
	rows := featherRamp(height, f)
	for y := 0; y < height; y++ {
		ry := rows[y]
		row := m.Pix[y*width : (y+1)*width]
		for x := range row {
			row[x] = uint8(math.Round(ry * cols[x] * 255))
		}
	}
	return m
}

// featherSteepness sets how sharply the ramp climbs through its midpoint.
const featherSteepness = 3.5

func featherRamp(n, f int) []float64 {
	norm := math.Erf(featherSteepness / 2)
	out := make([]float64, n)
	for i := range out {
		d := min(i, n-1-i)
		if d >= f {
			out[i] = 1
			continue
		}
		t := float64(d) / float64(f)
		out[i] = clampUnit((math.Erf(featherSteepness*(t-0.5)) + norm) / (2 * norm))
	}
	return out
}

// ApplyMask multiplies the alpha channel of img by mask. The dimensions must
// match exactly.
func ApplyMask(img Image, mask Mask) (Image, error) {
	if img.Width() != mask.Width || img.Height() != mask.Height {
		return Image{}, imgerr.Geometryf("apply mask", "mask %dx%d does not match image %dx%d",
			mask.Width, mask.Height, img.Width(), img.Height())
	}
	if len(mask.Pix) != mask.Width*mask.Height {
		return Image{}, imgerr.Geometryf("apply mask", "mask buffer holds %d values, want %d", len(mask.Pix), mask.Width*mask.Height)
	}

	out := img.Clone()
	out.Channels = 4
	for y := 0; y < mask.Height; y++ {
		mrow := mask.Pix[y*mask.Width : (y+1)*mask.Width]
		off := y * out.Stride
		for x, mv := range mrow {
			if mv == 255 {
				continue
			}
			i := off + x*4 + 3
			out.Pix[i] = uint8((uint32(out.Pix[i])*uint32(mv) + 127) / 255)
		}
	}
	return out, nil
}

func clampUnit(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
