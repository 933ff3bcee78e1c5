//go:build !govips || !cgo

package raster

import (
	"image"

	"github.com/disintegration/imaging"
)

func Startup() error {
	return nil
}

func Shutdown() {}

// Backend names the Lanczos implementation compiled into this binary.
func Backend() string {
	return "imaging"
}

func resampleLanczos(src *image.NRGBA, width, height int) (*image.NRGBA, error) {
	return imaging.Resize(src, width, height, imaging.Lanczos), nil
}
