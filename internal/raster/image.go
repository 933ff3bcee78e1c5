// Package raster holds the pixel buffer type and the pure geometry operations
// of the print pipeline. Every function returns a fresh buffer and never
// mutates its inputs, so concurrent calls on independent images are safe.
package raster

import (
	"image"
	"image/color"

	"github.com/disintegration/imaging"
	"github.com/dunamismax/printflow/internal/imgerr"
)

// Image is an 8-bit non-premultiplied pixel buffer anchored at (0,0).
// Channels is 3 when every pixel is opaque and 4 when the alpha channel
// carries information.
type Image struct {
	*image.NRGBA
	Channels int
}

// FromImage copies any decoded image into an Image.
func FromImage(src image.Image) (Image, error) {
	if src == nil {
		return Image{}, imgerr.Geometryf("raster", "nil source image")
	}
	b := src.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return Image{}, imgerr.Geometryf("raster", "source image has zero area (%dx%d)", b.Dx(), b.Dy())
	}

	dst := imaging.Clone(src)

	channels := 4
	if isOpaque(src) {
		channels = 3
	}
	return Image{NRGBA: dst, Channels: channels}, nil
}

// New allocates a transparent Image of the given size.
func New(width, height int) (Image, error) {
	if width <= 0 || height <= 0 {
		return Image{}, imgerr.Geometryf("raster", "invalid dimensions %dx%d", width, height)
	}
	return Image{NRGBA: image.NewNRGBA(image.Rect(0, 0, width, height)), Channels: 4}, nil
}

// Fill allocates an Image painted with a single colour.
func Fill(width, height int, c color.NRGBA) (Image, error) {
	img, err := New(width, height)
	if err != nil {
		return Image{}, err
	}
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i+0] = c.R
		img.Pix[i+1] = c.G
		img.Pix[i+2] = c.B
		img.Pix[i+3] = c.A
	}
	if c.A == 255 {
		img.Channels = 3
	}
	return img, nil
}

func (img Image) Width() int {
	if img.NRGBA == nil {
		return 0
	}
	return img.Rect.Dx()
}

func (img Image) Height() int {
	if img.NRGBA == nil {
		return 0
	}
	return img.Rect.Dy()
}

func (img Image) Empty() bool {
	return img.Width() <= 0 || img.Height() <= 0
}

// Clone returns a deep copy normalised to a (0,0) origin.
func (img Image) Clone() Image {
	dst := image.NewNRGBA(image.Rect(0, 0, img.Width(), img.Height()))
	rowBytes := img.Width() * 4
	for y := 0; y < img.Height(); y++ {
		src := img.PixOffset(img.Rect.Min.X, img.Rect.Min.Y+y)
		copy(dst.Pix[y*dst.Stride:y*dst.Stride+rowBytes], img.Pix[src:src+rowBytes])
	}
	return Image{NRGBA: dst, Channels: img.Channels}
}

// Equal reports whether two images have identical dimensions and pixels.
func Equal(a, b Image) bool {
	if a.Width() != b.Width() || a.Height() != b.Height() {
		return false
	}
	rowBytes := a.Width() * 4
	for y := 0; y < a.Height(); y++ {
		ia := a.PixOffset(a.Rect.Min.X, a.Rect.Min.Y+y)
		ib := b.PixOffset(b.Rect.Min.X, b.Rect.Min.Y+y)
		if string(a.Pix[ia:ia+rowBytes]) != string(b.Pix[ib:ib+rowBytes]) {
			return false
		}
	}
	return true
}

func isOpaque(src image.Image) bool {
	if o, ok := src.(interface{ Opaque() bool }); ok {
		return o.Opaque()
	}
	return false
}
