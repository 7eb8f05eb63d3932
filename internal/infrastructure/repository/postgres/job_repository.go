package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/kirillkom/knowledge-enrichment-connector/internal/core/domain"
)

type JobRepository struct {
	db *sql.DB
}

func NewJobRepository(db *sql.DB) *JobRepository {
	return &JobRepository{db: db}
}

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func (r *JobRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026101901)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS enrichment_jobs (
	id TEXT PRIMARY KEY,
	status TEXT NOT NULL,
	actions JSONB NOT NULL DEFAULT '[]'::jsonb,
	classes JSONB NOT NULL DEFAULT '[]'::jsonb,
	similar_metadata JSONB,
	extra_payload JSONB,
	items JSONB NOT NULL DEFAULT '[]'::jsonb,
	result JSONB,
	error_message TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_enrichment_jobs_status ON enrichment_jobs(status);
CREATE INDEX IF NOT EXISTS idx_enrichment_jobs_created_at ON enrichment_jobs(created_at DESC);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

func (r *JobRepository) Create(ctx context.Context, job *domain.EnrichmentJob) error {
	actions, err := marshalList(job.Actions)
	if err != nil {
		return fmt.Errorf("marshal actions: %w", err)
	}
	classes, err := marshalList(job.Classes)
	if err != nil {
		return fmt.Errorf("marshal classes: %w", err)
	}
	items, err := json.Marshal(job.Items)
	if err != nil {
		return fmt.Errorf("marshal items: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
INSERT INTO enrichment_jobs (
	id, status, actions, classes, similar_metadata, extra_payload, items, error_message, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
`,
		job.ID, string(job.Status), actions, classes, nullableJSON(job.SimilarMetadata), nullableJSON(job.ExtraPayload),
		items, job.Error, job.CreatedAt, job.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert enrichment job: %w", err)
	}
	return nil
}

func (r *JobRepository) GetByID(ctx context.Context, id string) (*domain.EnrichmentJob, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, status, actions, classes, similar_metadata, extra_payload, items, result, error_message, created_at, updated_at
FROM enrichment_jobs
WHERE id = $1
`, id)

	var job domain.EnrichmentJob
	var status string
	var actionsRaw, classesRaw, similarRaw, extraRaw, itemsRaw, resultRaw []byte

	err := row.Scan(
		&job.ID, &status, &actionsRaw, &classesRaw, &similarRaw, &extraRaw, &itemsRaw, &resultRaw,
		&job.Error, &job.CreatedAt, &job.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrJobNotFound, "get enrichment job", fmt.Errorf("id=%s", id))
		}
		return nil, fmt.Errorf("scan enrichment job: %w", err)
	}

	if err := json.Unmarshal(actionsRaw, &job.Actions); err != nil {
		return nil, fmt.Errorf("unmarshal actions: %w", err)
	}
	if err := json.Unmarshal(classesRaw, &job.Classes); err != nil {
		return nil, fmt.Errorf("unmarshal classes: %w", err)
	}
	if err := json.Unmarshal(itemsRaw, &job.Items); err != nil {
		return nil, fmt.Errorf("unmarshal items: %w", err)
	}
	job.SimilarMetadata = rawOrNil(similarRaw)
	job.ExtraPayload = rawOrNil(extraRaw)
	job.Result = rawOrNil(resultRaw)
	job.Status = domain.JobStatus(status)
	return &job, nil
}

func (r *JobRepository) UpdateStatus(ctx context.Context, id string, status domain.JobStatus, errMessage string) error {
	res, err := r.db.ExecContext(ctx, `
UPDATE enrichment_jobs
SET status = $2, error_message = $3, updated_at = $4
WHERE id = $1
`, id, string(status), errMessage, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update enrichment job status: %w", err)
	}
	return requireAffected(res, "update enrichment job status", id)
}

func (r *JobRepository) SaveResult(ctx context.Context, id string, status domain.JobStatus, result []byte) error {
	res, err := r.db.ExecContext(ctx, `
UPDATE enrichment_jobs
SET status = $2, result = $3, error_message = '', updated_at = $4
WHERE id = $1
`, id, string(status), nullableJSON(result), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("save enrichment job result: %w", err)
	}
	return requireAffected(res, "save enrichment job result", id)
}

func requireAffected(res sql.Result, operation, id string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", operation, err)
	}
	if affected == 0 {
		return domain.WrapError(domain.ErrJobNotFound, operation, fmt.Errorf("id=%s", id))
	}
	return nil
}

func marshalList(values []string) ([]byte, error) {
	if values == nil {
		values = []string{}
	}
	return json.Marshal(values)
}

func nullableJSON(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}

func rawOrNil(raw []byte) json.RawMessage {
	if len(raw) == 0 {
		return nil
	}
	return json.RawMessage(raw)
}
