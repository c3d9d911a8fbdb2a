package schedule

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists deferred jobs in PostgreSQL. Claims rely on
// FOR UPDATE SKIP LOCKED so concurrent dispatchers never double-claim.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, strings.TrimSpace(databaseURL))
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &PostgresStore{pool: pool}, nil
}

func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS scheduled_jobs (
			id TEXT PRIMARY KEY,
			owner_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			platform TEXT NOT NULL DEFAULT '',
			payload JSONB NOT NULL,
			status TEXT NOT NULL,
			scheduled_at TIMESTAMPTZ NOT NULL,
			attempts INTEGER NOT NULL DEFAULT 0,
			last_attempt_at TIMESTAMPTZ,
			error_message TEXT NOT NULL DEFAULT '',
			external_service_id TEXT NOT NULL DEFAULT '',
			completed_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_scheduled_jobs_due ON scheduled_jobs (status, scheduled_at);`,
		`CREATE INDEX IF NOT EXISTS idx_scheduled_jobs_owner ON scheduled_jobs (owner_id, kind);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schedule schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *PostgresStore) Create(ctx context.Context, job Job) (Job, error) {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}
	job.Status = StatusScheduled
	job.Attempts = 0

	payload, err := marshalPayload(job)
	if err != nil {
		return Job{}, err
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO scheduled_jobs (id, owner_id, kind, platform, payload, status, scheduled_at, attempts, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		job.ID, job.OwnerID, job.Kind, job.Platform, payload, job.Status, job.ScheduledAt, job.Attempts, job.CreatedAt,
	)
	if err != nil {
		return Job{}, fmt.Errorf("insert scheduled job: %w", err)
	}
	return job, nil
}

func (s *PostgresStore) List(ctx context.Context, ownerID, kind string, filter ListFilter) ([]Job, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, owner_id, kind, platform, payload, status, scheduled_at, attempts,
			last_attempt_at, error_message, external_service_id, completed_at, created_at
		 FROM scheduled_jobs
		 WHERE owner_id = $1 AND kind = $2
			AND ($3 = '' OR status = $3)
			AND ($4 = '' OR platform = $4)
		 ORDER BY created_at`,
		ownerID, kind, filter.Status, filter.Platform,
	)
	if err != nil {
		return nil, fmt.Errorf("query scheduled jobs: %w", err)
	}
	defer rows.Close()

	return scanJobs(rows.Next, rows.Scan, rows.Err)
}

func (s *PostgresStore) Cancel(ctx context.Context, ownerID, id string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE scheduled_jobs SET status = $1
		 WHERE id = $2 AND owner_id = $3 AND status = $4`,
		StatusCancelled, id, ownerID, StatusScheduled,
	)
	if err != nil {
		return fmt.Errorf("cancel scheduled job: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	// Distinguish a missing job from one already past scheduled.
	var status string
	err = s.pool.QueryRow(ctx,
		`SELECT status FROM scheduled_jobs WHERE id = $1 AND owner_id = $2`,
		id, ownerID,
	).Scan(&status)
	if err != nil {
		return ErrNotFound
	}
	return ErrNotCancellable
}

func (s *PostgresStore) ClaimDue(ctx context.Context, now time.Time, limit int) ([]Job, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := s.pool.Query(ctx,
		`UPDATE scheduled_jobs
		 SET status = $1, attempts = attempts + 1, last_attempt_at = $2
		 WHERE id IN (
			SELECT id FROM scheduled_jobs
			WHERE status = $3 AND scheduled_at <= $2
			ORDER BY scheduled_at
			LIMIT $4
			FOR UPDATE SKIP LOCKED
		 )
		 RETURNING id, owner_id, kind, platform, payload, status, scheduled_at, attempts,
			last_attempt_at, error_message, external_service_id, completed_at, created_at`,
		StatusProcessing, now, StatusScheduled, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("claim due jobs: %w", err)
	}
	defer rows.Close()

	return scanJobs(rows.Next, rows.Scan, rows.Err)
}

func (s *PostgresStore) MarkResult(ctx context.Context, id, status, errorMessage, externalServiceID string, completedAt time.Time) error {
	var done *time.Time
	if status != StatusFailed {
		done = &completedAt
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE scheduled_jobs
		 SET status = $2, error_message = $3, external_service_id = $4, completed_at = $5
		 WHERE id = $1 AND status = $6`,
		id, status, errorMessage, externalServiceID, done, StatusProcessing,
	)
	if err != nil {
		return fmt.Errorf("mark job result: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func marshalPayload(job Job) ([]byte, error) {
	var payload any
	switch job.Kind {
	case KindPost:
		payload = job.Post
	case KindEmail:
		payload = job.Email
	default:
		return nil, fmt.Errorf("unknown job kind %q", job.Kind)
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal job payload: %w", err)
	}
	return data, nil
}

func scanJobs(next func() bool, scan func(...any) error, rowsErr func() error) ([]Job, error) {
	var out []Job
	for next() {
		var (
			j       Job
			payload []byte
		)
		if err := scan(&j.ID, &j.OwnerID, &j.Kind, &j.Platform, &payload, &j.Status, &j.ScheduledAt,
			&j.Attempts, &j.LastAttemptAt, &j.ErrorMessage, &j.ExternalServiceID, &j.CompletedAt, &j.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan scheduled job row: %w", err)
		}
		switch j.Kind {
		case KindPost:
			j.Post = &PostContent{}
			if err := json.Unmarshal(payload, j.Post); err != nil {
				return nil, fmt.Errorf("decode post payload: %w", err)
			}
		case KindEmail:
			j.Email = &EmailContent{}
			if err := json.Unmarshal(payload, j.Email); err != nil {
				return nil, fmt.Errorf("decode email payload: %w", err)
			}
		}
		out = append(out, j)
	}
	if err := rowsErr(); err != nil {
		return nil, fmt.Errorf("iterate scheduled job rows: %w", err)
	}
	return out, nil
}
