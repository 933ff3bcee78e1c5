package domain

import (
	"errors"
	"fmt"
	"strings"
)

const (
	DefaultPrintDPI   = 300
	DefaultFrameWidth = 10
)

// PrintOptions is the wire form of the print output contract.
type PrintOptions struct {
	PrintDPI            int      `json:"print_dpi,omitempty" validate:"omitempty,gte=72,lte=1200"`
	CornerRadiusPercent float64  `json:"corner_radius_percent,omitempty" validate:"gte=0,lte=100"`
	FeatherEdgePercent  float64  `json:"feather_edge_percent,omitempty" validate:"gte=0,lte=100"`
	FrameEnabled        bool     `json:"frame_enabled,omitempty"`
	FrameColor          string   `json:"frame_color,omitempty" validate:"omitempty,hexcolor_any"`
	FrameWidth          int      `json:"frame_width,omitempty"`
	DoubleFrame         bool     `json:"double_frame,omitempty"`
	AddWhiteBackground  bool     `json:"add_white_background,omitempty"`
	PrintAreaWidth      *float64 `json:"print_area_width,omitempty" validate:"omitempty,gt=0,lte=60"`
	PrintAreaHeight     *float64 `json:"print_area_height,omitempty" validate:"omitempty,gt=0,lte=60"`
}

// PrintRequest is the synchronous print endpoint body.
type PrintRequest struct {
	Image string      `json:"image" validate:"required"`
	Crop  *CropRegion `json:"crop,omitempty"`
	PrintOptions
}

func (o PrintOptions) Validate() error {
	return validateStruct(o)
}

func (r PrintRequest) Validate() error {
	if strings.TrimSpace(r.Image) == "" {
		return fmt.Errorf("%w: image is required", ErrValidation)
	}
	if err := validateStruct(r); err != nil {
		return err
	}
	if r.Crop != nil {
		if _, err := r.Crop.Parse(); err != nil {
			return fmt.Errorf("%w: crop: %v", ErrValidation, err)
		}
	}
	return nil
}

// ParsedCrop returns the resolved crop variant, or nil when no crop was sent.
func (r PrintRequest) ParsedCrop() (Crop, error) {
	if r.Crop == nil {
		return nil, nil
	}
	return r.Crop.Parse()
}

// IsValidationError reports whether err came from request validation.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrValidation) || errors.Is(err, ErrInvalidCrop)
}
