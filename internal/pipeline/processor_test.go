package pipeline

import (
	"context"
	"image/color"
	"testing"

	"github.com/dunamismax/printflow/internal/domain"
	"github.com/dunamismax/printflow/internal/imgerr"
	"github.com/dunamismax/printflow/internal/raster"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSpecDefaults(t *testing.T) {
	spec, err := NewSpec(domain.PrintOptions{FrameEnabled: true}, nil)
	require.NoError(t, err)

	assert.Equal(t, domain.DefaultPrintDPI, spec.DPI)
	assert.Nil(t, spec.Crop)
	assert.True(t, spec.Frame.Enabled)
	assert.Equal(t, raster.Black, spec.Frame.Color)
	assert.Equal(t, domain.DefaultFrameWidth, spec.Frame.Width)
	assert.False(t, spec.hasPrintArea())
}

func TestNewSpecClampsFrameWidth(t *testing.T) {
	spec, err := NewSpec(domain.PrintOptions{FrameEnabled: true, FrameWidth: 500}, nil)
	require.NoError(t, err)
	assert.Equal(t, 100, spec.Frame.Width)

	spec, err = NewSpec(domain.PrintOptions{FrameEnabled: true, FrameWidth: -3}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, spec.Frame.Width)

	spec, err = NewSpec(domain.PrintOptions{FrameWidth: 50}, nil)
	require.NoError(t, err)
	assert.False(t, spec.Frame.Enabled)
}

func TestNewSpecRejectsInvalidOptions(t *testing.T) {
	negative := -1.0
	cases := map[string]struct {
		opts domain.PrintOptions
		crop *domain.CropRegion
	}{
		"corner percent":  {opts: domain.PrintOptions{CornerRadiusPercent: 120}},
		"feather percent": {opts: domain.PrintOptions{FeatherEdgePercent: -1}},
		"frame colour":    {opts: domain.PrintOptions{FrameEnabled: true, FrameColor: "#12"}},
		"print area":      {opts: domain.PrintOptions{PrintAreaHeight: &negative}},
		"crop":            {crop: &domain.CropRegion{Width: 0.5, Height: -1}},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := NewSpec(tc.opts, tc.crop)
			require.ErrorIs(t, err, ErrInvalidSpec)
		})
	}
}

func TestDimensionContract(t *testing.T) {
	sources := [][2]int{{800, 600}, {600, 800}, {1920, 1080}, {333, 777}, {50, 50}}
	for _, dpi := range []int{72, 150, 300} {
		for _, src := range sources {
			w, h, err := targetSize(src[0], src[1], Spec{DPI: dpi}, DefaultLongEdgeInches, raster.MaxDimension)
			require.NoError(t, err)

			assert.Equal(t, 8*dpi, max(w, h), "dpi=%d src=%v", dpi, src)
			srcAspect := float64(src[0]) / float64(src[1])
			gotAspect := float64(w) / float64(h)
			assert.InEpsilon(t, srcAspect, gotAspect, 0.01, "dpi=%d src=%v", dpi, src)
		}
	}
}

func TestTargetSizeUsesPrintArea(t *testing.T) {
	w, h, err := targetSize(400, 300, Spec{DPI: 300, PrintWidthIn: 4, PrintHeightIn: 6}, DefaultLongEdgeInches, raster.MaxDimension)
	require.NoError(t, err)
	assert.Equal(t, 1200, w)
	assert.Equal(t, 900, h)

	w, h, err = targetSize(400, 300, Spec{DPI: 300, PrintHeightIn: 2}, DefaultLongEdgeInches, raster.MaxDimension)
	require.NoError(t, err)
	assert.Equal(t, 800, w)
	assert.Equal(t, 600, h)
}

func TestTargetSizeRefusesPathologicalDimensions(t *testing.T) {
	_, _, err := targetSize(1000, 1000, Spec{DPI: 1200, PrintWidthIn: 60}, DefaultLongEdgeInches, raster.MaxDimension)
	assert.True(t, imgerr.Is(err, imgerr.KindGeometry))

	_, _, err = targetSize(1000, 500, Spec{DPI: 300}, DefaultLongEdgeInches, 1000)
	assert.True(t, imgerr.Is(err, imgerr.KindGeometry))
}

func TestFeatherScalesWithOutputResolution(t *testing.T) {
	assert.Equal(t, 0, featherPixels(2400, 1800, 0, 300))
	assert.Equal(t, 90, featherPixels(2400, 1800, 5, 300))
	// A small percentage on a small output still reaches the dpi floor.
	assert.Equal(t, 10, featherPixels(120, 90, 1, 300))
	assert.Equal(t, 2, featherPixels(40, 40, 1, 30))

	assert.Equal(t, 0, cornerRadiusPixels(2400, 1800, 0))
	assert.Equal(t, 180, cornerRadiusPixels(2400, 1800, 10))
}

func TestProcessImageMasksLeaveTransparentCorners(t *testing.T) {
	src, err := raster.Fill(40, 30, color.NRGBA{R: 10, G: 200, B: 30, A: 255})
	require.NoError(t, err)

	width := 1.0
	spec := mustSpec(t, domain.PrintOptions{PrintDPI: 100, CornerRadiusPercent: 20, FeatherEdgePercent: 5, PrintAreaWidth: &width}, nil)

	out, err := NewProcessor(Config{}, nil).ProcessImage(context.Background(), src, spec)
	require.NoError(t, err)
	assert.Equal(t, 100, out.Width())
	assert.Equal(t, 75, out.Height())
	assert.Equal(t, 4, out.Channels)
	assert.Equal(t, uint8(0), out.NRGBAAt(0, 0).A)
	assert.Equal(t, uint8(255), out.NRGBAAt(50, 37).A)

	spec.WhiteBackground = true
	flat, err := NewProcessor(Config{}, nil).ProcessImage(context.Background(), src, spec)
	require.NoError(t, err)
	assert.Equal(t, 3, flat.Channels)
	assert.Equal(t, raster.White, flat.NRGBAAt(0, 0))
}

func TestProcessImageCropIsRelativeToSource(t *testing.T) {
	src, err := raster.Fill(200, 100, color.NRGBA{R: 255, A: 255})
	require.NoError(t, err)

	width := 1.0
	spec := mustSpec(t, domain.PrintOptions{PrintDPI: 100, PrintAreaWidth: &width}, &domain.CropRegion{X: 0, Y: 0, Width: 0.5, Height: 1})

	out, err := NewProcessor(Config{}, nil).ProcessImage(context.Background(), src, spec)
	require.NoError(t, err)
	assert.Equal(t, 100, out.Width())
	assert.Equal(t, 100, out.Height())
}

func TestProcessImageRejectsEmptyCrop(t *testing.T) {
	src, err := raster.Fill(50, 50, raster.White)
	require.NoError(t, err)

	spec := mustSpec(t, domain.PrintOptions{}, &domain.CropRegion{X: 500, Y: 500, Width: 10, Height: 10})
	_, err = NewProcessor(Config{}, nil).ProcessImage(context.Background(), src, spec)
	assert.True(t, imgerr.Is(err, imgerr.KindGeometry))
}

func TestProcessImageCropOutsideSourceIsGeometryError(t *testing.T) {
	src, err := raster.Fill(800, 600, raster.White)
	require.NoError(t, err)

	crops := map[string]*domain.CropRegion{
		"huge offset":    {X: 9e18, Y: 0, Width: 9e18, Height: 100},
		"zero width":     {X: 0.1, Y: 0.1, Width: 0, Height: 0.5},
		"zero height px": {X: 10, Y: 10, Width: 200, Height: 0},
		"far negative":   {X: -1e30, Y: 0, Width: 50, Height: 50},
	}
	for name, crop := range crops {
		t.Run(name, func(t *testing.T) {
			spec, err := NewSpec(domain.PrintOptions{PrintDPI: 100}, crop)
			require.NoError(t, err)

			_, err = NewProcessor(Config{}, nil).ProcessImage(context.Background(), src, spec)
			require.Error(t, err)
			assert.True(t, imgerr.Is(err, imgerr.KindGeometry), "got %v", err)
		})
	}
}

func TestProcessImageHonoursCancellation(t *testing.T) {
	src, err := raster.Fill(50, 50, raster.White)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = NewProcessor(Config{}, nil).ProcessImage(ctx, src, mustSpec(t, domain.PrintOptions{}, nil))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestOutputKeySanitisesJobID(t *testing.T) {
	assert.Equal(t, "outputs/job_1_/print.png", OutputKey("", "job/1."))
	assert.Equal(t, "renders/abc/print.png", OutputKey("renders", "abc"))
	assert.Equal(t, "uploads/unknown/source", SourceKey(" "))
}
