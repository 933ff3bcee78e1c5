package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dunamismax/printflow/internal/domain"
)

var ErrJobNotFound = errors.New("job not found")

type JobStore interface {
	Create(ctx context.Context, job domain.PrintJob) error
	Get(ctx context.Context, id string) (domain.PrintJob, bool, error)
	UpdateStatus(ctx context.Context, id, status string) (domain.PrintJob, error)
	Complete(ctx context.Context, id string, result domain.JobResult) (domain.PrintJob, error)
}

type UsageStore interface {
	CreateUsageLog(ctx context.Context, usage domain.UsageLog) error
}

// Store is a job store that also records usage and owns a connection.
type Store interface {
	JobStore
	UsageStore
	Close() error
}

// Backends accepted by Open.
const (
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

// Open returns the configured backend. Postgres is the default; the memory
// store is only used when asked for by name.
func Open(ctx context.Context, backend, dsn string) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(backend)) {
	case BackendMemory:
		return NewMemoryJobStore(), nil
	case BackendPostgres, "":
		return NewPostgresJobStore(ctx, dsn)
	default:
		return nil, fmt.Errorf("unknown job store backend %q", backend)
	}
}
