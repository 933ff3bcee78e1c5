package domain

import (
	"errors"
	"fmt"
	"math"

	"github.com/dunamismax/printflow/internal/raster"
)

var ErrInvalidCrop = errors.New("invalid crop region")

// CropRegion is the wire form of a crop rectangle. All four values in [0,1]
// mean fractions of the source size; anything else is raw pixels.
type CropRegion struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Crop is a crop rectangle whose unit has been decided. It resolves to an
// absolute region once the source dimensions are known.
type Crop interface {
	Region(srcWidth, srcHeight int) raster.Region
}

type FractionalCrop struct {
	X, Y, Width, Height float64
}

type AbsoluteCrop struct {
	X, Y, Width, Height int
}

func (c CropRegion) IsFractional() bool {
	return c.X <= 1 && c.Y <= 1 && c.Width <= 1 && c.Height <= 1
}

// Parse decides the unit of c. It is the only place the value range is
// inspected. A zero size parses; the crop then fails with a geometry error
// once it is applied to a source.
func (c CropRegion) Parse() (Crop, error) {
	for name, v := range map[string]float64{"x": c.X, "y": c.Y, "width": c.Width, "height": c.Height} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("%w: %s is not a finite number", ErrInvalidCrop, name)
		}
	}
	if c.Width < 0 || c.Height < 0 {
		return nil, fmt.Errorf("%w: width and height must not be negative", ErrInvalidCrop)
	}

	if c.IsFractional() {
		return FractionalCrop{X: c.X, Y: c.Y, Width: c.Width, Height: c.Height}, nil
	}
	return AbsoluteCrop{
		X:      pixels(c.X),
		Y:      pixels(c.Y),
		Width:  pixels(c.Width),
		Height: pixels(c.Height),
	}, nil
}

// maxCropCoord saturates absolute values. Anything this far out already lies
// outside every decodable image, so clamping keeps the empty intersection.
const maxCropCoord = math.MaxInt32

func pixels(v float64) int {
	return int(math.Max(-maxCropCoord, math.Min(maxCropCoord, math.Round(v))))
}

func (c FractionalCrop) Region(srcWidth, srcHeight int) raster.Region {
	w, h := float64(srcWidth), float64(srcHeight)
	return raster.Region{
		X:      pixels(c.X * w),
		Y:      pixels(c.Y * h),
		Width:  pixels(c.Width * w),
		Height: pixels(c.Height * h),
	}
}

func (c AbsoluteCrop) Region(_, _ int) raster.Region {
	return raster.Region{X: c.X, Y: c.Y, Width: c.Width, Height: c.Height}
}
