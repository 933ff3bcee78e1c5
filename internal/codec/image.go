package codec

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"

	"github.com/disintegration/imaging"
	"github.com/dunamismax/printflow/internal/imgerr"
	"github.com/dunamismax/printflow/internal/raster"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

// DefaultMaxPixels refuses inputs whose decoded buffer would exceed the
// largest image the geometry layer is allowed to produce.
const DefaultMaxPixels = raster.MaxDimension * raster.MaxDimension

const DefaultJPEGQuality = 85

// DecodeImage parses encoded bytes into a raster. The header is checked
// before the full decode so oversized inputs never allocate a pixel buffer.
func DecodeImage(data []byte, maxPixels int) (raster.Image, string, error) {
	if len(data) == 0 {
		return raster.Image{}, "", imgerr.Decode("decode image", ErrEmptyPayload)
	}
	if maxPixels <= 0 {
		maxPixels = DefaultMaxPixels
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return raster.Image{}, "", imgerr.Decode("decode image header", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return raster.Image{}, "", imgerr.Decodef("decode image header", "invalid dimensions %dx%d", cfg.Width, cfg.Height)
	}
	if cfg.Width*cfg.Height > maxPixels {
		return raster.Image{}, "", imgerr.Decodef("decode image header", "%dx%d exceeds %d pixel limit", cfg.Width, cfg.Height, maxPixels)
	}

	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return raster.Image{}, "", imgerr.Decode("decode image", err)
	}

	img, err := raster.FromImage(src)
	if err != nil {
		return raster.Image{}, "", imgerr.Decode("decode image", err)
	}
	return img, format, nil
}

// DecodeDataURI is ParseDataURI followed by DecodeImage.
func DecodeDataURI(s string, maxPixels int) (raster.Image, error) {
	_, data, err := ParseDataURI(s)
	if err != nil {
		return raster.Image{}, err
	}
	img, _, err := DecodeImage(data, maxPixels)
	return img, err
}

// EncodePNG serializes img as PNG and, when dpi is positive, records the
// density in a pHYs chunk.
func EncodePNG(img raster.Image, dpi int) ([]byte, error) {
	if img.Empty() {
		return nil, imgerr.Encode("encode png", fmt.Errorf("image is empty"))
	}

	var buf bytes.Buffer
	encoder := png.Encoder{CompressionLevel: png.DefaultCompression}
	if err := encoder.Encode(&buf, img.NRGBA); err != nil {
		return nil, imgerr.Encode("encode png", err)
	}
	if dpi <= 0 {
		return buf.Bytes(), nil
	}

	out, err := withPhysicalDPI(buf.Bytes(), dpi)
	if err != nil {
		return nil, imgerr.Encode("write png dpi", err)
	}
	return out, nil
}

// EncodeJPEG serializes img as JPEG. Alpha is dropped by the encoder.
func EncodeJPEG(img raster.Image, quality int) ([]byte, error) {
	if img.Empty() {
		return nil, imgerr.Encode("encode jpeg", fmt.Errorf("image is empty"))
	}
	if quality <= 0 || quality > 100 {
		quality = DefaultJPEGQuality
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img.NRGBA, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		return nil, imgerr.Encode("encode jpeg", err)
	}
	return buf.Bytes(), nil
}
