package codec

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/color"
	"image/png"
	"strings"
	"testing"

	"github.com/dunamismax/printflow/internal/imgerr"
	"github.com/dunamismax/printflow/internal/raster"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testImage(t *testing.T, w, h int, alpha uint8) raster.Image {
	t.Helper()

	src := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			src.SetNRGBA(x, y, color.NRGBA{R: uint8(x * 7), G: uint8(y * 11), B: 90, A: alpha})
		}
	}
	img, err := raster.FromImage(src)
	require.NoError(t, err)
	return img
}

func TestPNGRoundTripIsLossless(t *testing.T) {
	for _, alpha := range []uint8{255, 130} {
		img := testImage(t, 31, 17, alpha)

		data, err := EncodePNG(img, 300)
		require.NoError(t, err)

		uri := DataURI(MIMEPNG, data)
		require.True(t, strings.HasPrefix(uri, "data:image/png;base64,"))

		decoded, err := DecodeDataURI(uri, 0)
		require.NoError(t, err)
		assert.True(t, raster.Equal(img, decoded), "alpha=%d", alpha)
		assert.Equal(t, img.Channels, decoded.Channels)
	}
}

func TestJPEGRoundTripKeepsDimensions(t *testing.T) {
	img := testImage(t, 40, 24, 255)

	data, err := EncodeJPEG(img, 70)
	require.NoError(t, err)

	decoded, format, err := DecodeImage(data, 0)
	require.NoError(t, err)
	assert.Equal(t, "jpeg", format)
	assert.Equal(t, 40, decoded.Width())
	assert.Equal(t, 24, decoded.Height())
}

func TestEncodePNGWritesDPI(t *testing.T) {
	data, err := EncodePNG(testImage(t, 8, 8, 255), 300)
	require.NoError(t, err)

	dpi, err := ReadDPI(data)
	require.NoError(t, err)
	assert.Equal(t, 300, dpi)

	// The chunk must not break standard decoders.
	_, err = png.Decode(bytes.NewReader(data))
	require.NoError(t, err)

	plain, err := EncodePNG(testImage(t, 8, 8, 255), 0)
	require.NoError(t, err)
	_, err = ReadDPI(plain)
	assert.Error(t, err)
}

func TestParseDataURIAcceptsBarePayload(t *testing.T) {
	data, err := EncodePNG(testImage(t, 4, 4, 255), 0)
	require.NoError(t, err)

	bare := base64.StdEncoding.EncodeToString(data)
	mime, got, err := ParseDataURI(bare)
	require.NoError(t, err)
	assert.Equal(t, "", mime)
	assert.Equal(t, data, got)

	mime, got, err = ParseDataURI("data:image/png;base64," + bare)
	require.NoError(t, err)
	assert.Equal(t, MIMEPNG, mime)
	assert.Equal(t, data, got)

	wrapped := bare[:10] + "\n" + bare[10:]
	_, got, err = ParseDataURI(wrapped)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestMalformedInputIsDecodeError(t *testing.T) {
	data, err := EncodePNG(testImage(t, 16, 16, 255), 0)
	require.NoError(t, err)
	truncated := base64.StdEncoding.EncodeToString(data[:len(data)/3])

	cases := map[string]string{
		"empty":         "",
		"not base64":    "data:image/png;base64,@@@not-base64@@@",
		"truncated png": "data:image/png;base64," + truncated,
		"not an image":  "data:text/plain;base64,aGVsbG8=",
		"missing comma": "data:image/png;base64",
		"url encoded":   "data:image/png,hello",
		"random bytes":  base64.StdEncoding.EncodeToString([]byte("definitely not an image")),
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeDataURI(in, 0)
			require.Error(t, err)
			assert.True(t, imgerr.Is(err, imgerr.KindDecode), "got %v", err)
		})
	}
}

func TestDecodeRefusesOversizedImages(t *testing.T) {
	data, err := EncodePNG(testImage(t, 100, 100, 255), 0)
	require.NoError(t, err)

	_, _, err = DecodeImage(data, 5000)
	assert.True(t, imgerr.Is(err, imgerr.KindDecode))
}
