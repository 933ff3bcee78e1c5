package pipeline

import (
	"context"
	"errors"
	"path"
	"strings"

	"github.com/dunamismax/printflow/internal/codec"
)

const (
	DefaultOutputPrefix = "outputs"
	printObjectName     = "print.png"
)

type ObjectReader interface {
	ReadObject(ctx context.Context, objectKey string) ([]byte, error)
}

type ObjectWriter interface {
	WriteObject(ctx context.Context, objectKey string, data []byte, contentType string) error
}

type ObjectStoreFetcher struct {
	Storage ObjectReader
}

func (f ObjectStoreFetcher) Fetch(ctx context.Context, req Request) ([]byte, error) {
	if f.Storage == nil {
		return nil, errors.New("storage client is required")
	}
	if strings.TrimSpace(req.SourceKey) == "" {
		return nil, errors.New("source key is required")
	}
	return f.Storage.ReadObject(ctx, req.SourceKey)
}

type ObjectStoreEmitter struct {
	Storage      ObjectWriter
	OutputPrefix string
}

func (e ObjectStoreEmitter) Emit(ctx context.Context, req Request, result Result) (Output, error) {
	if e.Storage == nil {
		return Output{}, errors.New("storage client is required")
	}

	objectKey := OutputKey(e.OutputPrefix, req.JobID)
	if err := e.Storage.WriteObject(ctx, objectKey, result.Data, codec.MIMEPNG); err != nil {
		return Output{}, err
	}

	return Output{
		ObjectKey: objectKey,
		Format:    result.Format,
		Bytes:     result.Bytes,
		Width:     result.Width,
		Height:    result.Height,
		DPI:       result.DPI,
	}, nil
}

// OutputKey is where the print asset of a job is stored.
func OutputKey(prefix, jobID string) string {
	return path.Join(defaultOutputPrefix(prefix), sanitizePathToken(jobID), printObjectName)
}

// SourceKey is where the uploaded source screenshot of a job is stored.
func SourceKey(jobID string) string {
	return path.Join("uploads", sanitizePathToken(jobID), "source")
}

func defaultOutputPrefix(prefix string) string {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		return DefaultOutputPrefix
	}
	return prefix
}

func sanitizePathToken(in string) string {
	in = strings.TrimSpace(in)
	if in == "" {
		return "unknown"
	}

	var b strings.Builder
	b.Grow(len(in))
	for _, r := range in {
		switch {
		case r >= 'a' && r <= 'z':
			b.WriteRune(r)
		case r >= 'A' && r <= 'Z':
			b.WriteRune(r)
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '-' || r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}
