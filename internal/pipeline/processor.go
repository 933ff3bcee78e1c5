package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"

	"github.com/dunamismax/printflow/internal/codec"
	"github.com/dunamismax/printflow/internal/imgerr"
	"github.com/dunamismax/printflow/internal/raster"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	FormatPNG = "PNG"

	DefaultLongEdgeInches = 8.0
)

var ErrNoObjectStore = errors.New("processor has no object store stages")

type Config struct {
	// LongEdgeInches is the printed length of the longer side when the
	// caller gives no explicit print area.
	LongEdgeInches float64
	MaxDimension   int
	MaxInputPixels int
}

func (c Config) withDefaults() Config {
	if c.LongEdgeInches <= 0 {
		c.LongEdgeInches = DefaultLongEdgeInches
	}
	if c.MaxDimension <= 0 || c.MaxDimension > raster.MaxDimension {
		c.MaxDimension = raster.MaxDimension
	}
	if c.MaxInputPixels <= 0 {
		c.MaxInputPixels = codec.DefaultMaxPixels
	}
	return c
}

// Request names a stored source image to render for a print job.
type Request struct {
	JobID     string
	SourceKey string
	Spec      Spec
}

// Output describes an emitted print asset.
type Output struct {
	ObjectKey string
	Format    string
	Bytes     int
	Width     int
	Height    int
	DPI       int
}

type Result struct {
	Width  int
	Height int
	DPI    int
	Bytes  int
	Format string
	Data   []byte
}

func (r Result) DataURI() string {
	return codec.DataURI(codec.MIMEPNG, r.Data)
}

type Fetcher interface {
	Fetch(ctx context.Context, req Request) ([]byte, error)
}

type Emitter interface {
	Emit(ctx context.Context, req Request, result Result) (Output, error)
}

type Processor struct {
	cfg     Config
	logger  *log.Logger
	tracer  trace.Tracer
	fetcher Fetcher
	emitter Emitter
}

func NewProcessor(cfg Config, logger *log.Logger) *Processor {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Processor{
		cfg:    cfg.withDefaults(),
		logger: logger,
		tracer: otel.Tracer("printflow/pipeline"),
	}
}

func NewObjectStoreProcessor(cfg Config, logger *log.Logger, fetcher Fetcher, emitter Emitter) (*Processor, error) {
	if fetcher == nil || emitter == nil {
		return nil, errors.New("fetcher and emitter are required")
	}
	p := NewProcessor(cfg, logger)
	p.fetcher = fetcher
	p.emitter = emitter
	return p, nil
}

// Process decodes a data URI or bare base64 payload and renders it.
func (p *Processor) Process(ctx context.Context, encoded string, spec Spec) (Result, error) {
	_, data, err := codec.ParseDataURI(encoded)
	if err != nil {
		return Result{}, err
	}
	return p.ProcessBytes(ctx, data, spec)
}

// ProcessBytes renders an encoded image into a DPI-tagged PNG.
func (p *Processor) ProcessBytes(ctx context.Context, data []byte, spec Spec) (Result, error) {
	ctx, span := p.tracer.Start(ctx, "pipeline.process")
	span.SetAttributes(
		attribute.Int("print.dpi", spec.DPI),
		attribute.Bool("print.crop", spec.Crop != nil),
		attribute.Bool("print.frame", spec.Frame.Enabled),
		attribute.Int("input.bytes", len(data)),
	)
	defer span.End()

	result, err := p.render(ctx, data, spec)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(imgerr.KindOf(err)))
		return Result{}, err
	}

	span.SetAttributes(
		attribute.Int("output.width", result.Width),
		attribute.Int("output.height", result.Height),
		attribute.Int("output.bytes", result.Bytes),
	)
	return result, nil
}

func (p *Processor) render(ctx context.Context, data []byte, spec Spec) (Result, error) {
	img, _, err := codec.DecodeImage(data, p.cfg.MaxInputPixels)
	if err != nil {
		return Result{}, err
	}

	out, err := p.ProcessImage(ctx, img, spec)
	if err != nil {
		return Result{}, err
	}

	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	encoded, err := codec.EncodePNG(out, spec.DPI)
	if err != nil {
		return Result{}, err
	}

	return Result{
		Width:  out.Width(),
		Height: out.Height(),
		DPI:    spec.DPI,
		Bytes:  len(encoded),
		Format: FormatPNG,
		Data:   encoded,
	}, nil
}

// ProcessImage runs the geometry steps in their fixed order: crop, resize,
// corner radius, feather, frame, background.
func (p *Processor) ProcessImage(ctx context.Context, img raster.Image, spec Spec) (raster.Image, error) {
	if spec.DPI <= 0 {
		return raster.Image{}, fmt.Errorf("%w: dpi must be positive", ErrInvalidSpec)
	}

	var err error
	if spec.Crop != nil {
		region := spec.Crop.Region(img.Width(), img.Height())
		if img, err = raster.Crop(img, region); err != nil {
			return raster.Image{}, err
		}
	}

	if err := ctx.Err(); err != nil {
		return raster.Image{}, err
	}
	tw, th, err := targetSize(img.Width(), img.Height(), spec, p.cfg.LongEdgeInches, p.cfg.MaxDimension)
	if err != nil {
		return raster.Image{}, err
	}
	if img, err = raster.Resize(img, tw, th, raster.FilterLanczos); err != nil {
		return raster.Image{}, err
	}

	if err := ctx.Err(); err != nil {
		return raster.Image{}, err
	}
	if radius := cornerRadiusPixels(tw, th, spec.CornerRadiusPercent); radius > 0 {
		if img, err = raster.ApplyMask(img, raster.CornerRadiusMask(tw, th, radius)); err != nil {
			return raster.Image{}, err
		}
	}

	if feather := featherPixels(tw, th, spec.FeatherEdgePercent, spec.DPI); feather > 0 {
		if img, err = raster.ApplyMask(img, raster.FeatherMask(tw, th, feather)); err != nil {
			return raster.Image{}, err
		}
	}

	if spec.Frame.Enabled {
		if img, err = raster.CompositeBorder(img, spec.Frame.Color, spec.Frame.Width, spec.Frame.Double); err != nil {
			return raster.Image{}, err
		}
	}

	if spec.WhiteBackground {
		if img, err = raster.CompositeOnBackground(img, raster.White); err != nil {
			return raster.Image{}, err
		}
	}

	return img, nil
}

// Run fetches a stored source, renders it and emits the print asset.
func (p *Processor) Run(ctx context.Context, req Request) (Output, error) {
	if strings.TrimSpace(req.JobID) == "" {
		return Output{}, errors.New("job_id is required")
	}
	if p.fetcher == nil || p.emitter == nil {
		return Output{}, ErrNoObjectStore
	}

	sourceBytes, err := p.fetcher.Fetch(ctx, req)
	if err != nil {
		return Output{}, fmt.Errorf("fetch stage: %w", err)
	}

	result, err := p.ProcessBytes(ctx, sourceBytes, req.Spec)
	if err != nil {
		return Output{}, fmt.Errorf("render stage: %w", err)
	}

	written, err := p.emitter.Emit(ctx, req, result)
	if err != nil {
		return Output{}, fmt.Errorf("emit stage: %w", err)
	}

	p.logger.Printf("rendered job_id=%s size=%dx%d dpi=%d bytes=%d key=%s",
		req.JobID, written.Width, written.Height, written.DPI, written.Bytes, written.ObjectKey)
	return written, nil
}
