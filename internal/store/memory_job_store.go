package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dunamismax/printflow/internal/domain"
)

// MemoryJobStore keeps jobs in process memory. It is meant for local
// development and tests and must be selected explicitly.
type MemoryJobStore struct {
	mu    sync.RWMutex
	jobs  map[string]domain.PrintJob
	usage []domain.UsageLog
}

func NewMemoryJobStore() *MemoryJobStore {
	return &MemoryJobStore{
		jobs: make(map[string]domain.PrintJob),
	}
}

// Close is a no-op; the store holds no external resources.
func (s *MemoryJobStore) Close() error {
	return nil
}

func (s *MemoryJobStore) Create(_ context.Context, job domain.PrintJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[job.ID]; exists {
		return fmt.Errorf("job %s already exists", job.ID)
	}
	s.jobs[job.ID] = job
	return nil
}

func (s *MemoryJobStore) Get(_ context.Context, id string) (domain.PrintJob, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	return job, ok, nil
}

func (s *MemoryJobStore) UpdateStatus(_ context.Context, id, status string) (domain.PrintJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return domain.PrintJob{}, ErrJobNotFound
	}

	job.Status = status
	job.UpdatedAt = time.Now().UTC()
	s.jobs[id] = job
	return job, nil
}

func (s *MemoryJobStore) Complete(_ context.Context, id string, result domain.JobResult) (domain.PrintJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return domain.PrintJob{}, ErrJobNotFound
	}

	job.Status = result.Status
	job.OutputKey = result.OutputKey
	job.Width = result.Width
	job.Height = result.Height
	job.DPI = result.DPI
	job.FileSize = result.FileSize
	job.Error = result.Error
	job.UpdatedAt = time.Now().UTC()
	s.jobs[id] = job
	return job, nil
}

func (s *MemoryJobStore) CreateUsageLog(_ context.Context, usage domain.UsageLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.usage = append(s.usage, usage)
	return nil
}

func (s *MemoryJobStore) UsageLogs() []domain.UsageLog {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.UsageLog(nil), s.usage...)
}
