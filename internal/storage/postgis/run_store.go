package postgis

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

const runsTable = "ingest_job_runs"

// RunStatus mirrors the status column of the job runs table.
type RunStatus string

// Run statuses persisted in ingest_job_runs.status.
const (
	RunRunning RunStatus = "running"
	RunSuccess RunStatus = "success"
	RunError   RunStatus = "error"
)

// RunStart describes a job that began processing.
type RunStart struct {
	JobID     string
	DataID    string
	DataType  string
	Attempt   int
	StartedAt time.Time
}

// RunEnd describes a job that reached a terminal status.
type RunEnd struct {
	JobID      string
	DataID     string
	FinishedAt time.Time
	Status     RunStatus
	ErrorKind  string
	Message    string
}

// RunStore records one row per job in ingest_job_runs. It shares the
// feature store's pool.
type RunStore struct {
	pool  txPool
	ident string
}

// RunStore returns a job run recorder bound to the same schema, creating the
// runs table when it does not exist.
func (s *FeatureStore) RunStore(ctx context.Context) (*RunStore, error) {
	if s == nil || s.pool == nil {
		return nil, fmt.Errorf("feature store is not configured")
	}
	rs := &RunStore{pool: s.pool, ident: pgx.Identifier{s.schema, runsTable}.Sanitize()}
	create := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	job_id text PRIMARY KEY,
	data_id text,
	data_type text,
	attempt integer NOT NULL DEFAULT 0,
	started_at timestamptz,
	finished_at timestamptz,
	status text NOT NULL,
	error_kind text,
	error_message text
)`, rs.ident)
	if _, err := s.pool.Exec(ctx, create); err != nil {
		return nil, fmt.Errorf("create runs table: %w", err)
	}
	return rs, nil
}

// StartRun inserts or refreshes the row for a started job. Rows that are
// already finished are left alone, so a redelivery cannot reopen them.
func (r *RunStore) StartRun(ctx context.Context, run RunStart) error {
	query := fmt.Sprintf(`
INSERT INTO %[1]s (job_id, data_id, data_type, attempt, started_at, status)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (job_id) DO UPDATE
SET data_id = EXCLUDED.data_id,
	data_type = EXCLUDED.data_type,
	attempt = EXCLUDED.attempt,
	started_at = EXCLUDED.started_at,
	status = EXCLUDED.status
WHERE %[1]s.finished_at IS NULL`, r.ident)
	_, err := r.pool.Exec(ctx, query, run.JobID, nullable(run.DataID), nullable(run.DataType), run.Attempt, run.StartedAt, RunRunning)
	if err != nil {
		return fmt.Errorf("failed to upsert job start: %w", err)
	}
	return nil
}

// CompleteRun marks a job finished, inserting the row when the start was
// never recorded.
func (r *RunStore) CompleteRun(ctx context.Context, run RunEnd) error {
	query := fmt.Sprintf(`
INSERT INTO %[1]s (job_id, data_id, finished_at, status, error_kind, error_message)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (job_id) DO UPDATE
SET data_id = COALESCE(EXCLUDED.data_id, %[1]s.data_id),
	finished_at = EXCLUDED.finished_at,
	status = EXCLUDED.status,
	error_kind = EXCLUDED.error_kind,
	error_message = EXCLUDED.error_message`, r.ident)
	_, err := r.pool.Exec(ctx, query,
		run.JobID, nullable(run.DataID), run.FinishedAt, run.Status, nullable(run.ErrorKind), nullable(run.Message))
	if err != nil {
		return fmt.Errorf("failed to complete job: %w", err)
	}
	return nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
