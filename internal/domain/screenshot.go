package domain

import "fmt"

const (
	DefaultScreenshotQuality = 85
	MaxBatchTimestamps       = 50
)

type ScreenshotRequest struct {
	VideoURL  string      `json:"video_url" validate:"required,http_url"`
	Timestamp float64     `json:"timestamp" validate:"gte=0"`
	Quality   int         `json:"quality,omitempty" validate:"omitempty,gte=1,lte=100"`
	Crop      *CropRegion `json:"crop,omitempty"`
}

type BatchScreenshotRequest struct {
	VideoURL   string    `json:"video_url" validate:"required,http_url"`
	Timestamps []float64 `json:"timestamps" validate:"required,min=1,max=50,dive,gte=0"`
	Quality    int       `json:"quality,omitempty" validate:"omitempty,gte=1,lte=100"`
}

type FeatherPreviewRequest struct {
	Image              string  `json:"image" validate:"required"`
	FeatherEdgePercent float64 `json:"feather_edge_percent" validate:"gte=0,lte=100"`
}

type CornerRadiusPreviewRequest struct {
	Image               string  `json:"image" validate:"required"`
	CornerRadiusPercent float64 `json:"corner_radius_percent" validate:"gte=0,lte=100"`
}

func (r ScreenshotRequest) Validate() error {
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

func (r BatchScreenshotRequest) Validate() error {
	return validateStruct(r)
}

func (r FeatherPreviewRequest) Validate() error {
	return validateStruct(r)
}

func (r CornerRadiusPreviewRequest) Validate() error {
	return validateStruct(r)
}

// QualityOrDefault returns q, or the default preview quality when unset.
func QualityOrDefault(q int) int {
	if q <= 0 {
		return DefaultScreenshotQuality
	}
	return q
}
