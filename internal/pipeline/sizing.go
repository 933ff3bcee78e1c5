package pipeline

import (
	"math"

	"github.com/dunamismax/printflow/internal/imgerr"
	"github.com/dunamismax/printflow/internal/raster"
)

// targetSize computes the print pixel dimensions for a w x h source. The
// source aspect ratio is always preserved.
func targetSize(w, h int, spec Spec, longEdgeInches float64, maxDimension int) (int, int, error) {
	var tw, th int
	if spec.hasPrintArea() {
		boxW := inchesToPixels(spec.PrintWidthIn, spec.DPI)
		boxH := inchesToPixels(spec.PrintHeightIn, spec.DPI)
		tw, th = raster.FitBox(w, h, boxW, boxH)
	} else {
		tw, th = raster.FitLongEdge(w, h, inchesToPixels(longEdgeInches, spec.DPI))
	}

	if tw <= 0 || th <= 0 {
		return 0, 0, imgerr.Geometryf("compute print size", "non-positive target %dx%d", tw, th)
	}
	if tw > maxDimension || th > maxDimension {
		return 0, 0, imgerr.Geometryf("compute print size", "target %dx%d exceeds %dpx limit", tw, th, maxDimension)
	}
	return tw, th, nil
}

func inchesToPixels(inches float64, dpi int) int {
	if inches <= 0 {
		return 0
	}
	return int(math.Round(inches * float64(dpi)))
}

// cornerRadiusPixels converts a percentage of the smaller side into pixels.
func cornerRadiusPixels(w, h int, percent float64) int {
	if percent <= 0 {
		return 0
	}
	return int(math.Round(float64(min(w, h)) * percent / 100))
}

// featherPixels converts a percentage of the smaller output side into a
// feather width, never narrower than max(2, dpi/30) pixels.
func featherPixels(w, h int, percent float64, dpi int) int {
	if percent <= 0 {
		return 0
	}
	px := int(math.Round(float64(min(w, h)) * percent / 100))
	return max(px, max(2, dpi/30))
}
