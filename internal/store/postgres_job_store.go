package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dunamismax/printflow/internal/domain"
	_ "github.com/lib/pq"
)

const jobSchemaSQL = `
CREATE TABLE IF NOT EXISTS print_jobs (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL,
	webhook_url TEXT NOT NULL DEFAULT '',
	crop JSONB,
	options JSONB NOT NULL,
	source_key TEXT NOT NULL,
	output_key TEXT NOT NULL DEFAULT '',
	width INTEGER NOT NULL DEFAULT 0,
	height INTEGER NOT NULL DEFAULT 0,
	dpi INTEGER NOT NULL DEFAULT 0,
	file_size BIGINT NOT NULL DEFAULT 0,
	error TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS usage_logs (
	id BIGSERIAL PRIMARY KEY,
	user_id TEXT NOT NULL,
	job_id TEXT NOT NULL,
	pixels_processed BIGINT NOT NULL,
	output_bytes BIGINT NOT NULL,
	compute_time_ms BIGINT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);
`

const selectJobSQL = `SELECT id, user_id, status, webhook_url, crop, options, source_key, output_key,
	width, height, dpi, file_size, error, created_at, updated_at
 FROM print_jobs
 WHERE id = $1`

type PostgresJobStore struct {
	db *sql.DB
}

func NewPostgresJobStore(ctx context.Context, dsn string) (*PostgresJobStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres connection: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	store := &PostgresJobStore{db: db}
	if err := store.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

func (s *PostgresJobStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, jobSchemaSQL); err != nil {
		return fmt.Errorf("ensure print_jobs schema: %w", err)
	}
	return nil
}

func (s *PostgresJobStore) Close() error {
	return s.db.Close()
}

func (s *PostgresJobStore) Create(ctx context.Context, job domain.PrintJob) error {
	cropJSON, optionsJSON, err := marshalJobSpec(job)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(
		ctx,
		`INSERT INTO print_jobs (id, user_id, status, webhook_url, crop, options, source_key, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		job.ID,
		job.UserID,
		job.Status,
		job.WebhookURL,
		nullableJSON(cropJSON),
		string(optionsJSON),
		job.SourceKey,
		job.CreatedAt,
		job.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert print job: %w", err)
	}

	return nil
}

func (s *PostgresJobStore) Get(ctx context.Context, id string) (domain.PrintJob, bool, error) {
	row := s.db.QueryRowContext(ctx, selectJobSQL, id)

	var (
		job         domain.PrintJob
		cropJSON    []byte
		optionsJSON []byte
	)
	if err := row.Scan(
		&job.ID,
		&job.UserID,
		&job.Status,
		&job.WebhookURL,
		&cropJSON,
		&optionsJSON,
		&job.SourceKey,
		&job.OutputKey,
		&job.Width,
		&job.Height,
		&job.DPI,
		&job.FileSize,
		&job.Error,
		&job.CreatedAt,
		&job.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.PrintJob{}, false, nil
		}
		return domain.PrintJob{}, false, fmt.Errorf("query print job: %w", err)
	}

	if err := unmarshalJobSpec(&job, cropJSON, optionsJSON); err != nil {
		return domain.PrintJob{}, false, err
	}
	return job, true, nil
}

func (s *PostgresJobStore) UpdateStatus(ctx context.Context, id, status string) (domain.PrintJob, error) {
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE print_jobs
		 SET status = $1, updated_at = $2
		 WHERE id = $3`,
		status,
		time.Now().UTC(),
		id,
	)
	if err != nil {
		return domain.PrintJob{}, fmt.Errorf("update print job status: %w", err)
	}
	return s.reload(ctx, id, res)
}

func (s *PostgresJobStore) Complete(ctx context.Context, id string, result domain.JobResult) (domain.PrintJob, error) {
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE print_jobs
		 SET status = $1, output_key = $2, width = $3, height = $4, dpi = $5, file_size = $6, error = $7, updated_at = $8
		 WHERE id = $9`,
		result.Status,
		result.OutputKey,
		result.Width,
		result.Height,
		result.DPI,
		result.FileSize,
		result.Error,
		time.Now().UTC(),
		id,
	)
	if err != nil {
		return domain.PrintJob{}, fmt.Errorf("complete print job: %w", err)
	}
	return s.reload(ctx, id, res)
}

func (s *PostgresJobStore) CreateUsageLog(ctx context.Context, usage domain.UsageLog) error {
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO usage_logs (user_id, job_id, pixels_processed, output_bytes, compute_time_ms, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		usage.UserID,
		usage.JobID,
		usage.PixelsProcessed,
		usage.OutputBytes,
		usage.ComputeTimeMS,
		usage.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert usage log: %w", err)
	}
	return nil
}

func (s *PostgresJobStore) reload(ctx context.Context, id string, res sql.Result) (domain.PrintJob, error) {
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.PrintJob{}, ErrJobNotFound
	}

	job, ok, err := s.Get(ctx, id)
	if err != nil {
		return domain.PrintJob{}, err
	}
	if !ok {
		return domain.PrintJob{}, ErrJobNotFound
	}
	return job, nil
}

func marshalJobSpec(job domain.PrintJob) ([]byte, []byte, error) {
	var cropJSON []byte
	if job.Crop != nil {
		b, err := json.Marshal(job.Crop)
		if err != nil {
			return nil, nil, fmt.Errorf("marshal job crop: %w", err)
		}
		cropJSON = b
	}

	optionsJSON, err := json.Marshal(job.Options)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal job options: %w", err)
	}
	return cropJSON, optionsJSON, nil
}

// nullableJSON maps an absent document to SQL NULL. JSON is sent as text so
// the driver does not encode it as bytea.
func nullableJSON(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}

func unmarshalJobSpec(job *domain.PrintJob, cropJSON, optionsJSON []byte) error {
	if len(cropJSON) > 0 {
		var crop domain.CropRegion
		if err := json.Unmarshal(cropJSON, &crop); err != nil {
			return fmt.Errorf("unmarshal job crop: %w", err)
		}
		job.Crop = &crop
	}
	if err := json.Unmarshal(optionsJSON, &job.Options); err != nil {
		return fmt.Errorf("unmarshal job options: %w", err)
	}
	return nil
}
