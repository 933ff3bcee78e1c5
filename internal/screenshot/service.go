// Package screenshot produces preview-quality frames for the storefront. It
// never upscales and never applies print sizing.
package screenshot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"

	"github.com/dunamismax/printflow/internal/codec"
	"github.com/dunamismax/printflow/internal/domain"
	"github.com/dunamismax/printflow/internal/imgerr"
	"github.com/dunamismax/printflow/internal/raster"
)

// FrameExtractor returns one decoded frame of a remote video.
type FrameExtractor interface {
	Extract(ctx context.Context, videoURL string, timestamp float64) (raster.Image, error)
}

// Shot is an encoded preview image.
type Shot struct {
	Timestamp float64
	Width     int
	Height    int
	MIME      string
	Data      []byte
}

func (s Shot) DataURI() string {
	return codec.DataURI(s.MIME, s.Data)
}

// CaptureError records a timestamp that failed inside a batch.
type CaptureError struct {
	Timestamp float64
	Err       error
}

func (e CaptureError) Error() string {
	return fmt.Sprintf("timestamp %.3f: %v", e.Timestamp, e.Err)
}

func (e CaptureError) Unwrap() error {
	return e.Err
}

type Service struct {
	extractor  FrameExtractor
	logger     *log.Logger
	maxPixels  int
	thumbWidth int
}

func NewService(extractor FrameExtractor, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Service{extractor: extractor, logger: logger, maxPixels: codec.DefaultMaxPixels}
}

// WithThumbnailWidth makes CaptureMany shrink frames wider than width. Frames
// are never enlarged. Zero keeps native resolution.
func (s *Service) WithThumbnailWidth(width int) *Service {
	s.thumbWidth = max(0, width)
	return s
}

// Capture extracts one frame, optionally crops it and encodes it as JPEG.
func (s *Service) Capture(ctx context.Context, videoURL string, timestamp float64, quality int, crop domain.Crop) (Shot, error) {
	return s.capture(ctx, videoURL, timestamp, quality, crop, 0)
}

func (s *Service) capture(ctx context.Context, videoURL string, timestamp float64, quality int, crop domain.Crop, maxWidth int) (Shot, error) {
	if s.extractor == nil {
		return Shot{}, errors.New("screenshot service has no frame extractor")
	}

	frame, err := s.extractor.Extract(ctx, videoURL, timestamp)
	if err != nil {
		return Shot{}, err
	}

	if crop != nil {
		region := crop.Region(frame.Width(), frame.Height())
		if frame, err = raster.Crop(frame, region); err != nil {
			return Shot{}, err
		}
	}

	if maxWidth > 0 && frame.Width() > maxWidth {
		w, h := raster.FitBox(frame.Width(), frame.Height(), maxWidth, 0)
		if frame, err = raster.Resize(frame, w, h, raster.FilterFast); err != nil {
			return Shot{}, err
		}
	}

	data, err := codec.EncodeJPEG(frame, domain.QualityOrDefault(quality))
	if err != nil {
		return Shot{}, err
	}

	return Shot{
		Timestamp: timestamp,
		Width:     frame.Width(),
		Height:    frame.Height(),
		MIME:      codec.MIMEJPEG,
		Data:      data,
	}, nil
}

// CaptureMany captures each timestamp in order. Failed timestamps are
// reported alongside the successful shots instead of failing the batch.
func (s *Service) CaptureMany(ctx context.Context, videoURL string, timestamps []float64, quality int) ([]Shot, []CaptureError) {
	shots := make([]Shot, 0, len(timestamps))
	var failures []CaptureError

	for _, ts := range timestamps {
		if err := ctx.Err(); err != nil {
			failures = append(failures, CaptureError{Timestamp: ts, Err: err})
			continue
		}

		shot, err := s.capture(ctx, videoURL, ts, quality, nil, s.thumbWidth)
		if err != nil {
			s.logger.Printf("batch capture failed ts=%.3f kind=%s err=%v", ts, imgerr.KindOf(err), err)
			failures = append(failures, CaptureError{Timestamp: ts, Err: err})
			continue
		}
		shots = append(shots, shot)
	}
	return shots, failures
}

// FeatherOnly applies an edge feather to a captured screenshot at its native
// resolution. The result is PNG so the soft edge survives encoding.
func (s *Service) FeatherOnly(ctx context.Context, encoded string, featherPercent float64) (Shot, error) {
	return s.maskOnly(ctx, encoded, func(img raster.Image) raster.Mask {
		w, h := img.Width(), img.Height()
		return raster.FeatherMask(w, h, percentOf(min(w, h), featherPercent))
	})
}

// CornerRadiusOnly rounds the corners of a captured screenshot at its native
// resolution and returns a PNG.
func (s *Service) CornerRadiusOnly(ctx context.Context, encoded string, radiusPercent float64) (Shot, error) {
	return s.maskOnly(ctx, encoded, func(img raster.Image) raster.Mask {
		w, h := img.Width(), img.Height()
		return raster.CornerRadiusMask(w, h, percentOf(min(w, h), radiusPercent))
	})
}

func (s *Service) maskOnly(ctx context.Context, encoded string, build func(raster.Image) raster.Mask) (Shot, error) {
	img, err := codec.DecodeDataURI(encoded, s.maxPixels)
	if err != nil {
		return Shot{}, err
	}
	if err := ctx.Err(); err != nil {
		return Shot{}, err
	}

	out, err := raster.ApplyMask(img, build(img))
	if err != nil {
		return Shot{}, err
	}

	data, err := codec.EncodePNG(out, 0)
	if err != nil {
		return Shot{}, err
	}
	return Shot{
		Width:  out.Width(),
		Height: out.Height(),
		MIME:   codec.MIMEPNG,
		Data:   data,
	}, nil
}

func percentOf(n int, percent float64) int {
	if percent <= 0 {
		return 0
	}
	return int(float64(n)*percent/100 + 0.5)
}
