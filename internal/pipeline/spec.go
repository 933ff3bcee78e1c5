package pipeline

import (
	"errors"
	"fmt"
	"image/color"

	"github.com/dunamismax/printflow/internal/domain"
	"github.com/dunamismax/printflow/internal/raster"
)

var ErrInvalidSpec = errors.New("invalid print spec")

const (
	minFrameWidth = 1
	maxFrameWidth = 100
)

type FrameSpec struct {
	Enabled bool
	Color   color.NRGBA
	Width   int
	Double  bool
}

// Spec is the normalised print contract for one call. Zero print area
// values mean the default long edge applies.
type Spec struct {
	DPI                 int
	Crop                domain.Crop
	PrintWidthIn        float64
	PrintHeightIn       float64
	CornerRadiusPercent float64
	FeatherEdgePercent  float64
	Frame               FrameSpec
	WhiteBackground     bool
}

// NewSpec applies defaults to wire options and resolves the crop variant.
func NewSpec(opts domain.PrintOptions, crop *domain.CropRegion) (Spec, error) {
	spec := Spec{
		DPI:                 opts.PrintDPI,
		CornerRadiusPercent: opts.CornerRadiusPercent,
		FeatherEdgePercent:  opts.FeatherEdgePercent,
		WhiteBackground:     opts.AddWhiteBackground,
	}
	if spec.DPI <= 0 {
		spec.DPI = domain.DefaultPrintDPI
	}

	if !inPercentRange(spec.CornerRadiusPercent) {
		return Spec{}, fmt.Errorf("%w: corner_radius_percent %.2f out of range", ErrInvalidSpec, spec.CornerRadiusPercent)
	}
	if !inPercentRange(spec.FeatherEdgePercent) {
		return Spec{}, fmt.Errorf("%w: feather_edge_percent %.2f out of range", ErrInvalidSpec, spec.FeatherEdgePercent)
	}

	if opts.PrintAreaWidth != nil {
		if *opts.PrintAreaWidth <= 0 {
			return Spec{}, fmt.Errorf("%w: print_area_width must be positive", ErrInvalidSpec)
		}
		spec.PrintWidthIn = *opts.PrintAreaWidth
	}
	if opts.PrintAreaHeight != nil {
		if *opts.PrintAreaHeight <= 0 {
			return Spec{}, fmt.Errorf("%w: print_area_height must be positive", ErrInvalidSpec)
		}
		spec.PrintHeightIn = *opts.PrintAreaHeight
	}

	if opts.FrameEnabled {
		frameColor := raster.Black
		if opts.FrameColor != "" {
			c, err := raster.ParseHexColor(opts.FrameColor)
			if err != nil {
				return Spec{}, fmt.Errorf("%w: %v", ErrInvalidSpec, err)
			}
			frameColor = c
		}
		width := opts.FrameWidth
		if width == 0 {
			width = domain.DefaultFrameWidth
		}
		spec.Frame = FrameSpec{
			Enabled: true,
			Color:   frameColor,
			Width:   min(max(width, minFrameWidth), maxFrameWidth),
			Double:  opts.DoubleFrame,
		}
	}

	if crop != nil {
		parsed, err := crop.Parse()
		if err != nil {
			return Spec{}, fmt.Errorf("%w: %v", ErrInvalidSpec, err)
		}
		spec.Crop = parsed
	}

	return spec, nil
}

func inPercentRange(v float64) bool {
	return v >= 0 && v <= 100
}

func (s Spec) hasPrintArea() bool {
	return s.PrintWidthIn > 0 || s.PrintHeightIn > 0
}
