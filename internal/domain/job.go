package domain

import (
	"fmt"
	"strings"
	"time"
)

const (
	JobStatusCreated    = "created"
	JobStatusQueued     = "queued"
	JobStatusProcessing = "processing"
	JobStatusSucceeded  = "succeeded"
	JobStatusFailed     = "failed"
)

// CreatePrintJobRequest queues a print render. The source image is uploaded
// to object storage by the API before the job is enqueued.
type CreatePrintJobRequest struct {
	Image      string      `json:"image" validate:"required"`
	Crop       *CropRegion `json:"crop,omitempty"`
	WebhookURL string      `json:"webhook_url,omitempty" validate:"omitempty,http_url"`
	PrintOptions
}

type PrintJob struct {
	ID         string
	UserID     string
	Status     string
	WebhookURL string
	Crop       *CropRegion
	Options    PrintOptions
	SourceKey  string
	OutputKey  string
	Width      int
	Height     int
	DPI        int
	FileSize   int64
	Error      string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// JobResult carries the outcome the worker records on a finished job.
type JobResult struct {
	Status    string
	OutputKey string
	Width     int
	Height    int
	DPI       int
	FileSize  int64
	Error     string
}

func (r CreatePrintJobRequest) Validate() error {
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

func IsTerminalStatus(status string) bool {
	return status == JobStatusSucceeded || status == JobStatusFailed
}
