package raster

import (
	"fmt"
	"image"
	"image/color"
	"strings"

	"github.com/dunamismax/printflow/internal/imgerr"
	"golang.org/x/image/draw"
)

var (
	White = color.NRGBA{R: 255, G: 255, B: 255, A: 255}
	Black = color.NRGBA{A: 255}
)

// CompositeBorder paints a solid frame of width pixels just inside the image
// bounds. With double set, a thinner second frame is drawn inset from the
// first with a gap between them. Output size equals input size.
func CompositeBorder(img Image, c color.NRGBA, width int, double bool) (Image, error) {
	if img.Empty() {
		return Image{}, imgerr.Geometryf("border", "source image is empty")
	}
	if width <= 0 {
		return Image{}, imgerr.Geometryf("border", "width %d must be positive", width)
	}

	w, h := img.Width(), img.Height()
	width = min(width, max(1, min(w, h)/2))

	out := img.Clone()
	fillFrame(out.NRGBA, out.Bounds(), width, c)

	if double {
		gap := max(1, width/2)
		inner := max(1, width/3)
		r := out.Bounds().Inset(width + gap)
		if r.Dx() > 2*inner && r.Dy() > 2*inner {
			fillFrame(out.NRGBA, r, inner, c)
		}
	}

	if c.A != 255 {
		out.Channels = 4
	}
	return out, nil
}

func fillFrame(dst *image.NRGBA, r image.Rectangle, t int, c color.NRGBA) {
	src := image.NewUniform(c)
	bands := []image.Rectangle{
		image.Rect(r.Min.X, r.Min.Y, r.Max.X, r.Min.Y+t),
		image.Rect(r.Min.X, r.Max.Y-t, r.Max.X, r.Max.Y),
		image.Rect(r.Min.X, r.Min.Y+t, r.Min.X+t, r.Max.Y-t),
		image.Rect(r.Max.X-t, r.Min.Y+t, r.Max.X, r.Max.Y-t),
	}
	for _, band := range bands {
		draw.Draw(dst, band.Intersect(r), src, image.Point{}, draw.Src)
	}
}

// CompositeOnBackground flattens img onto an opaque canvas of bg. The result
// carries no alpha information.
func CompositeOnBackground(img Image, bg color.NRGBA) (Image, error) {
	if img.Empty() {
		return Image{}, imgerr.Geometryf("composite background", "source image is empty")
	}

	bg.A = 255
	out := image.NewNRGBA(image.Rect(0, 0, img.Width(), img.Height()))
	draw.Draw(out, out.Bounds(), image.NewUniform(bg), image.Point{}, draw.Src)
	draw.Draw(out, out.Bounds(), img.NRGBA, img.Rect.Min, draw.Over)
	return Image{NRGBA: out, Channels: 3}, nil
}

// ParseHexColor accepts #RGB or #RRGGBB, with or without the leading '#'.
func ParseHexColor(s string) (color.NRGBA, error) {
	hex := strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(hex) == 3 {
		hex = string([]byte{hex[0], hex[0], hex[1], hex[1], hex[2], hex[2]})
	}
	if len(hex) != 6 {
		return color.NRGBA{}, fmt.Errorf("invalid hex color %q", s)
	}

	var r, g, b uint8
	if _, err := fmt.Sscanf(strings.ToLower(hex), "%02x%02x%02x", &r, &g, &b); err != nil {
		return color.NRGBA{}, fmt.Errorf("invalid hex color %q: %w", s, err)
	}
	return color.NRGBA{R: r, G: g, B: b, A: 255}, nil
}
