package raster

import (
	"image/color"
	"testing"

	"github.com/dunamismax/printflow/internal/imgerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var red = color.NRGBA{R: 255, A: 255}

func TestCompositeBorder(t *testing.T) {
	src := gradient(t, 100, 60)

	out, err := CompositeBorder(src, red, 10, false)
	require.NoError(t, err)
	assert.Equal(t, 100, out.Width())
	assert.Equal(t, 60, out.Height())

	for _, p := range [][2]int{{0, 0}, {9, 30}, {99, 59}, {50, 9}, {90, 50}} {
		assert.Equal(t, red, out.NRGBAAt(p[0], p[1]), "border pixel %v", p)
	}
	assert.Equal(t, src.NRGBAAt(10, 10), out.NRGBAAt(10, 10))
	assert.Equal(t, src.NRGBAAt(50, 30), out.NRGBAAt(50, 30))
}

func TestCompositeDoubleBorder(t *testing.T) {
	src := gradient(t, 200, 200)

	out, err := CompositeBorder(src, red, 12, true)
	require.NoError(t, err)

	// gap = 6, inner = 4, inner frame spans [18, 22).
	assert.Equal(t, red, out.NRGBAAt(5, 100))
	assert.Equal(t, src.NRGBAAt(14, 100), out.NRGBAAt(14, 100))
	assert.Equal(t, red, out.NRGBAAt(19, 100))
	assert.Equal(t, red, out.NRGBAAt(100, 21))
	assert.Equal(t, src.NRGBAAt(25, 100), out.NRGBAAt(25, 100))
}

func TestCompositeBorderRejectsNonPositiveWidth(t *testing.T) {
	_, err := CompositeBorder(gradient(t, 10, 10), red, 0, false)
	assert.True(t, imgerr.Is(err, imgerr.KindGeometry))
}

func TestCompositeOnBackground(t *testing.T) {
	src, err := New(3, 1)
	require.NoError(t, err)
	src.SetNRGBA(0, 0, color.NRGBA{A: 0})
	src.SetNRGBA(1, 0, color.NRGBA{R: 0, G: 0, B: 0, A: 255})
	src.SetNRGBA(2, 0, color.NRGBA{R: 0, G: 0, B: 0, A: 128})

	out, err := CompositeOnBackground(src, White)
	require.NoError(t, err)
	assert.Equal(t, 3, out.Channels)
	assert.Equal(t, White, out.NRGBAAt(0, 0))
	assert.Equal(t, color.NRGBA{A: 255}, out.NRGBAAt(1, 0))

	mid := out.NRGBAAt(2, 0)
	assert.Equal(t, uint8(255), mid.A)
	assert.InDelta(t, 127, int(mid.R), 2)
}

func TestCompositeOnBackgroundRejectsEmptyImage(t *testing.T) {
	out, err := CompositeOnBackground(Image{}, White)
	require.Error(t, err)
	assert.True(t, imgerr.Is(err, imgerr.KindGeometry))
	assert.True(t, out.Empty())
}

func TestParseHexColor(t *testing.T) {
	cases := map[string]color.NRGBA{
		"#FF0000":   red,
		"ff0000":    red,
		"#f00":      red,
		" #00ff7f ": {G: 255, B: 127, A: 255},
	}
	for in, want := range cases {
		got, err := ParseHexColor(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	for _, bad := range []string{"", "#12345", "zzzzzz", "#GG0000"} {
		_, err := ParseHexColor(bad)
		assert.Error(t, err, bad)
	}
}
