package domain

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/dunamismax/printflow/internal/raster"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCropRegionParse(t *testing.T) {
	tests := []struct {
		name   string
		in     CropRegion
		want   raster.Region
		frac   bool
		srcW   int
		srcH   int
		hasErr bool
	}{
		{
			name: "fractional",
			in:   CropRegion{X: 0.1, Y: 0.1, Width: 0.8, Height: 0.8},
			srcW: 800, srcH: 600,
			want: raster.Region{X: 80, Y: 60, Width: 640, Height: 480},
			frac: true,
		},
		{
			name: "full frame fraction",
			in:   CropRegion{X: 0, Y: 0, Width: 1, Height: 1},
			srcW: 333, srcH: 111,
			want: raster.Region{Width: 333, Height: 111},
			frac: true,
		},
		{
			name: "absolute when any value exceeds one",
			in:   CropRegion{X: 0.5, Y: 0, Width: 200, Height: 100},
			srcW: 800, srcH: 600,
			want: raster.Region{X: 1, Y: 0, Width: 200, Height: 100},
		},
		{
			name: "zero width resolves to an empty region",
			in:   CropRegion{X: 0.1, Y: 0.1, Width: 0, Height: 0.5},
			srcW: 800, srcH: 600,
			want: raster.Region{X: 80, Y: 60, Width: 0, Height: 300},
			frac: true,
		},
		{
			name: "huge absolute values saturate",
			in:   CropRegion{X: 9e18, Y: -1e30, Width: 9e18, Height: 100},
			want: raster.Region{X: math.MaxInt32, Y: -math.MaxInt32, Width: math.MaxInt32, Height: 100},
		},
		{
			name: "far negative fraction saturates",
			in:   CropRegion{X: -1e300, Y: 0, Width: 0.5, Height: 1},
			srcW: 800, srcH: 600,
			want: raster.Region{X: -math.MaxInt32, Y: 0, Width: 400, Height: 600},
			frac: true,
		},
		{
			name:   "negative height",
			in:     CropRegion{Width: 0.5, Height: -0.5},
			hasErr: true,
		},
		{
			name:   "nan",
			in:     CropRegion{X: math.NaN(), Width: 1, Height: 1},
			hasErr: true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			crop, err := tc.in.Parse()
			if tc.hasErr {
				require.ErrorIs(t, err, ErrInvalidCrop)
				return
			}
			require.NoError(t, err)

			_, isFrac := crop.(FractionalCrop)
			assert.Equal(t, tc.frac, isFrac)
			assert.Equal(t, tc.want, crop.Region(tc.srcW, tc.srcH))
		})
	}
}

func TestPrintRequestValidate(t *testing.T) {
	valid := PrintRequest{
		Image: "data:image/png;base64,AAAA",
		Crop:  &CropRegion{X: 0.1, Y: 0.1, Width: 0.8, Height: 0.8},
		PrintOptions: PrintOptions{
			PrintDPI:     300,
			FrameEnabled: true,
			FrameColor:   "#FF0000",
			FrameWidth:   10,
		},
	}
	require.NoError(t, valid.Validate())

	cases := map[string]func(r *PrintRequest){
		"missing image":    func(r *PrintRequest) { r.Image = " " },
		"low dpi":          func(r *PrintRequest) { r.PrintDPI = 10 },
		"bad colour":       func(r *PrintRequest) { r.FrameColor = "crimson" },
		"feather too high": func(r *PrintRequest) { r.FeatherEdgePercent = 101 },
		"negative area":    func(r *PrintRequest) { w := -2.0; r.PrintAreaWidth = &w },
		"negative crop":    func(r *PrintRequest) { r.Crop = &CropRegion{Width: -1, Height: 0.5} },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			req := valid
			mutate(&req)
			err := req.Validate()
			require.Error(t, err)
			assert.True(t, IsValidationError(err))
		})
	}
}

func TestValidationMessagesUseJSONNames(t *testing.T) {
	err := PrintRequest{Image: "x", PrintOptions: PrintOptions{FrameColor: "nope"}}.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "frame_color")
}

func TestPrintRequestDecodesFlatJSON(t *testing.T) {
	body := `{"image":"abc","crop":{"x":0,"y":0,"width":10,"height":20},"print_dpi":150,"double_frame":true,"print_area_width":4.5}`

	var req PrintRequest
	require.NoError(t, json.Unmarshal([]byte(body), &req))
	assert.Equal(t, 150, req.PrintDPI)
	assert.True(t, req.DoubleFrame)
	require.NotNil(t, req.PrintAreaWidth)
	assert.InDelta(t, 4.5, *req.PrintAreaWidth, 1e-9)
	assert.Nil(t, req.PrintAreaHeight)

	crop, err := req.ParsedCrop()
	require.NoError(t, err)
	assert.IsType(t, AbsoluteCrop{}, crop)
}

func TestScreenshotRequestValidate(t *testing.T) {
	require.NoError(t, ScreenshotRequest{VideoURL: "https://cdn.example.com/v.mp4", Timestamp: 3.5}.Validate())

	assert.Error(t, ScreenshotRequest{VideoURL: "ftp://example.com/v.mp4"}.Validate())
	assert.Error(t, ScreenshotRequest{VideoURL: "https://example.com/v.mp4", Timestamp: -1}.Validate())
	assert.Error(t, ScreenshotRequest{VideoURL: "https://example.com/v.mp4", Quality: 101}.Validate())

	batch := BatchScreenshotRequest{VideoURL: "https://example.com/v.mp4", Timestamps: []float64{0, 1, 2}}
	require.NoError(t, batch.Validate())

	batch.Timestamps = nil
	assert.Error(t, batch.Validate())

	batch.Timestamps = []float64{1, -2}
	assert.Error(t, batch.Validate())

	batch.Timestamps = make([]float64, MaxBatchTimestamps+1)
	assert.Error(t, batch.Validate())
}

func TestCreatePrintJobRequestValidate(t *testing.T) {
	valid := CreatePrintJobRequest{Image: "abc", WebhookURL: "https://hooks.example.com/print"}
	require.NoError(t, valid.Validate())

	invalid := CreatePrintJobRequest{}
	require.Error(t, invalid.Validate())

	badHook := CreatePrintJobRequest{Image: "abc", WebhookURL: "not a url"}
	require.Error(t, badHook.Validate())
}

func TestQualityOrDefault(t *testing.T) {
	assert.Equal(t, DefaultScreenshotQuality, QualityOrDefault(0))
	assert.Equal(t, 40, QualityOrDefault(40))
}
