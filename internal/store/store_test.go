package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dunamismax/printflow/internal/domain"
)

var (
	_ JobStore   = (*MemoryJobStore)(nil)
	_ UsageStore = (*MemoryJobStore)(nil)
	_ JobStore   = (*PostgresJobStore)(nil)
	_ UsageStore = (*PostgresJobStore)(nil)
	_ Store      = (*MemoryJobStore)(nil)
	_ Store      = (*PostgresJobStore)(nil)
)

func TestOpenSelectsBackend(t *testing.T) {
	s, err := Open(context.Background(), " Memory ", "")
	if err != nil {
		t.Fatalf("open memory: %v", err)
	}
	if _, ok := s.(*MemoryJobStore); !ok {
		t.Fatalf("expected memory store, got %T", s)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	if _, err := Open(context.Background(), "sqlite", ""); err == nil {
		t.Fatal("expected unknown backend to fail")
	}
}

func TestMemoryJobStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryJobStore()

	now := time.Now().UTC()
	job := domain.PrintJob{
		ID:        "job-1",
		Status:    domain.JobStatusCreated,
		SourceKey: "uploads/job-1/source",
		Crop:      &domain.CropRegion{Width: 0.5, Height: 0.5},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.Create(ctx, job); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.Create(ctx, job); err == nil {
		t.Fatal("expected duplicate create to fail")
	}

	updated, err := s.UpdateStatus(ctx, "job-1", domain.JobStatusQueued)
	if err != nil {
		t.Fatalf("update status: %v", err)
	}
	if updated.Status != domain.JobStatusQueued {
		t.Fatalf("expected queued, got %s", updated.Status)
	}

	done, err := s.Complete(ctx, "job-1", domain.JobResult{
		Status:    domain.JobStatusSucceeded,
		OutputKey: "outputs/job-1/print.png",
		Width:     2400,
		Height:    1800,
		DPI:       300,
		FileSize:  1234,
	})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if done.OutputKey != "outputs/job-1/print.png" || done.Width != 2400 || done.DPI != 300 {
		t.Fatalf("unexpected completed job %+v", done)
	}

	got, ok, err := s.Get(ctx, "job-1")
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if got.Status != domain.JobStatusSucceeded || got.Crop == nil {
		t.Fatalf("unexpected stored job %+v", got)
	}
}

func TestMemoryJobStoreMissingJob(t *testing.T) {
	s := NewMemoryJobStore()

	if _, err := s.UpdateStatus(context.Background(), "nope", domain.JobStatusFailed); !errors.Is(err, ErrJobNotFound) {
		t.Fatalf("expected ErrJobNotFound, got %v", err)
	}
	if _, err := s.Complete(context.Background(), "nope", domain.JobResult{}); !errors.Is(err, ErrJobNotFound) {
		t.Fatalf("expected ErrJobNotFound, got %v", err)
	}
	if _, ok, _ := s.Get(context.Background(), "nope"); ok {
		t.Fatal("expected missing job")
	}
}

func TestJobSpecJSONRoundTrip(t *testing.T) {
	height := 4.0
	job := domain.PrintJob{
		Crop:    &domain.CropRegion{X: 10, Y: 20, Width: 300, Height: 200},
		Options: domain.PrintOptions{PrintDPI: 150, DoubleFrame: true, PrintAreaHeight: &height},
	}

	cropJSON, optionsJSON, err := marshalJobSpec(job)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded domain.PrintJob
	if err := unmarshalJobSpec(&decoded, cropJSON, optionsJSON); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.Crop == nil || *decoded.Crop != *job.Crop {
		t.Fatalf("crop mismatch: %+v", decoded.Crop)
	}
	if decoded.Options.PrintDPI != 150 || !decoded.Options.DoubleFrame || *decoded.Options.PrintAreaHeight != 4 {
		t.Fatalf("options mismatch: %+v", decoded.Options)
	}

	cropJSON, _, err = marshalJobSpec(domain.PrintJob{})
	if err != nil {
		t.Fatalf("marshal empty: %v", err)
	}
	if cropJSON != nil {
		t.Fatal("expected nil crop json for job without crop")
	}
}
