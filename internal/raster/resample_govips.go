//go:build govips && cgo

package raster

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"sync"

	"github.com/davidbyttow/govips/v2/vips"
	"github.com/disintegration/imaging"
)

var (
	startupOnce sync.Once
	shutdownMu  sync.Mutex
	started     bool
)

func Startup() error {
	startupOnce.Do(func() {
		vips.Startup(&vips.Config{
			MaxCacheFiles: 0,
			MaxCacheMem:   128 * 1024 * 1024,
			MaxCacheSize:  100,
		})

		shutdownMu.Lock()
		started = true
		shutdownMu.Unlock()
	})
	return nil
}

func Shutdown() {
	shutdownMu.Lock()
	defer shutdownMu.Unlock()
	if !started {
		return
	}
	vips.Shutdown()
	started = false
}

func Backend() string {
	return "govips"
}

func resampleLanczos(src *image.NRGBA, width, height int) (*image.NRGBA, error) {
	var buf bytes.Buffer
	encoder := png.Encoder{CompressionLevel: png.NoCompression}
	if err := encoder.Encode(&buf, src); err != nil {
		return nil, fmt.Errorf("stage source for vips: %w", err)
	}

	ref, err := vips.NewImageFromBuffer(buf.Bytes())
	if err != nil {
		return nil, fmt.Errorf("load source into vips: %w", err)
	}
	defer ref.Close()

	hScale := float64(width) / float64(src.Rect.Dx())
	vScale := float64(height) / float64(src.Rect.Dy())
	if err := ref.ResizeWithVScale(hScale, vScale, vips.KernelLanczos3); err != nil {
		return nil, fmt.Errorf("vips lanczos3 resize: %w", err)
	}

	params := vips.NewPngExportParams()
	params.Compression = 0
	data, _, err := ref.ExportPng(params)
	if err != nil {
		return nil, fmt.Errorf("export vips result: %w", err)
	}

	decoded, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode vips result: %w", err)
	}

	out := imaging.Clone(decoded)
	// vips rounds scale factors, so the last row or column can be off by one.
	if out.Rect.Dx() != width || out.Rect.Dy() != height {
		out = imaging.Resize(out, width, height, imaging.Lanczos)
	}
	return out, nil
}
