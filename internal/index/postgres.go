package index

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/assessment-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// the hottest index operations.
var preparedStatements = map[string]string{
	"get_entry":    `SELECT entry FROM assessment_index WHERE run_id = $1`,
	"put_entry":    `UPDATE assessment_index SET manual_review = $1, entry = $2, updated_at = $3 WHERE run_id = $4`,
	"append_audit": `INSERT INTO audit_events (id, run_id, phase, kind, context, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS assessment_index (
	run_id             TEXT PRIMARY KEY,
	company_profile_id TEXT NOT NULL,
	manual_review      BOOLEAN NOT NULL DEFAULT false,
	entry              JSONB NOT NULL,
	created_at         TIMESTAMPTZ NOT NULL,
	updated_at         TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS batch_jobs (
	id                TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	run_id            TEXT NOT NULL REFERENCES assessment_index(run_id),
	phase             TEXT NOT NULL,
	provider_batch_id TEXT NOT NULL,
	status            TEXT NOT NULL,
	request_count     INTEGER NOT NULL,
	poll_attempts     INTEGER NOT NULL DEFAULT 0,
	created_at        TIMESTAMPTZ NOT NULL,
	updated_at        TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS audit_events (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	run_id     TEXT NOT NULL,
	phase      TEXT NOT NULL,
	kind       TEXT NOT NULL,
	context    JSONB,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_index_company_profile ON assessment_index(company_profile_id);
CREATE INDEX IF NOT EXISTS idx_index_manual_review ON assessment_index(manual_review);
CREATE INDEX IF NOT EXISTS idx_batch_jobs_run_id ON batch_jobs(run_id);
CREATE INDEX IF NOT EXISTS idx_audit_events_run_id ON audit_events(run_id);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) CreateEntry(ctx context.Context, entry *model.AssessmentIndexEntry) error {
	entryJSON, err := json.Marshal(entry)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal entry")
	}

	tag, err := s.pool.Exec(ctx,
		`INSERT INTO assessment_index (run_id, company_profile_id, manual_review, entry, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (run_id) DO NOTHING`,
		entry.AssessmentRunID, entry.CompanyProfileID, entry.ManualReview,
		entryJSON, entry.CreatedAt, entry.UpdatedAt,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: insert entry %s", entry.AssessmentRunID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrDuplicateRun, "run %s", entry.AssessmentRunID)
	}
	return nil
}

func (s *PostgresStore) PutEntry(ctx context.Context, entry *model.AssessmentIndexEntry) error {
	entryJSON, err := json.Marshal(entry)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal entry")
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE assessment_index SET manual_review = $1, entry = $2, updated_at = $3 WHERE run_id = $4`,
		entry.ManualReview, entryJSON, entry.UpdatedAt, entry.AssessmentRunID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update entry %s", entry.AssessmentRunID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrRunNotFound, "run %s", entry.AssessmentRunID)
	}
	return nil
}

func (s *PostgresStore) GetEntry(ctx context.Context, runID string) (*model.AssessmentIndexEntry, error) {
	var entryJSON []byte
	err := s.pool.QueryRow(ctx,
		`SELECT entry FROM assessment_index WHERE run_id = $1`,
		runID,
	).Scan(&entryJSON)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, eris.Wrapf(ErrRunNotFound, "run %s", runID)
		}
		return nil, eris.Wrapf(err, "postgres: get entry %s", runID)
	}

	var entry model.AssessmentIndexEntry
	if err := json.Unmarshal(entryJSON, &entry); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal entry")
	}
	return &entry, nil
}

func (s *PostgresStore) ListEntries(ctx context.Context, filter Filter) ([]model.AssessmentIndexEntry, error) {
	query := `SELECT entry FROM assessment_index WHERE true`
	args := []any{}
	argIdx := 1

	if filter.CompanyProfileID != "" {
		query += fmt.Sprintf(` AND company_profile_id = $%d`, argIdx)
		args = append(args, filter.CompanyProfileID)
		argIdx++
	}
	if filter.ManualReview != nil {
		query += fmt.Sprintf(` AND manual_review = $%d`, argIdx)
		args = append(args, *filter.ManualReview)
		argIdx++
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list entries")
	}
	defer rows.Close()

	var entries []model.AssessmentIndexEntry
	for rows.Next() {
		var entryJSON []byte
		if err := rows.Scan(&entryJSON); err != nil {
			return nil, eris.Wrap(err, "postgres: scan entry")
		}
		var entry model.AssessmentIndexEntry
		if err := json.Unmarshal(entryJSON, &entry); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal entry")
		}
		entries = append(entries, entry)
	}
	return entries, eris.Wrap(rows.Err(), "postgres: list entries iterate")
}

func (s *PostgresStore) CreateBatchJob(ctx context.Context, rec *model.BatchJobRecord) error {
	if rec.JobID == "" {
		rec.JobID = uuid.New().String()
	}
	now := time.Now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now

	_, err := s.pool.Exec(ctx,
		`INSERT INTO batch_jobs (id, run_id, phase, provider_batch_id, status, request_count, poll_attempts, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		rec.JobID, rec.AssessmentRunID, string(rec.Phase), rec.ProviderBatchID,
		string(rec.Status), rec.RequestCount, rec.PollAttempts, rec.CreatedAt, rec.UpdatedAt,
	)
	return eris.Wrapf(err, "postgres: insert batch job for run %s", rec.AssessmentRunID)
}

func (s *PostgresStore) UpdateBatchJob(ctx context.Context, jobID string, status model.BatchJobStatus, pollAttempts int) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE batch_jobs SET status = $1, poll_attempts = $2, updated_at = $3 WHERE id = $4`,
		string(status), pollAttempts, time.Now().UTC(), jobID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update batch job %s", jobID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("batch job not found: %s", jobID)
	}
	return nil
}

func (s *PostgresStore) ListBatchJobs(ctx context.Context, runID string) ([]model.BatchJobRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, run_id, phase, provider_batch_id, status, request_count, poll_attempts, created_at, updated_at
		 FROM batch_jobs WHERE run_id = $1 ORDER BY created_at ASC`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list batch jobs")
	}
	defer rows.Close()

	var recs []model.BatchJobRecord
	for rows.Next() {
		var r model.BatchJobRecord
		var phase, status string
		if err := rows.Scan(&r.JobID, &r.AssessmentRunID, &phase, &r.ProviderBatchID,
			&status, &r.RequestCount, &r.PollAttempts, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan batch job")
		}
		r.Phase = model.Phase(phase)
		r.Status = model.BatchJobStatus(status)
		recs = append(recs, r)
	}
	return recs, eris.Wrap(rows.Err(), "postgres: list batch jobs iterate")
}

func (s *PostgresStore) AppendAudit(ctx context.Context, ev *model.AuditEvent) error {
	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}

	var contextJSON []byte
	if ev.Context != nil {
		var err error
		contextJSON, err = json.Marshal(ev.Context)
		if err != nil {
			return eris.Wrap(err, "postgres: marshal audit context")
		}
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO audit_events (id, run_id, phase, kind, context, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		ev.ID, ev.AssessmentRunID, string(ev.Phase), ev.Kind, contextJSON, ev.CreatedAt,
	)
	return eris.Wrapf(err, "postgres: insert audit event for run %s", ev.AssessmentRunID)
}

func (s *PostgresStore) ListAudit(ctx context.Context, runID string) ([]model.AuditEvent, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, run_id, phase, kind, context, created_at FROM audit_events
		 WHERE run_id = $1 ORDER BY created_at ASC`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list audit events")
	}
	defer rows.Close()

	var events []model.AuditEvent
	for rows.Next() {
		var ev model.AuditEvent
		var phase string
		var contextJSON []byte
		if err := rows.Scan(&ev.ID, &ev.AssessmentRunID, &phase, &ev.Kind, &contextJSON, &ev.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan audit event")
		}
		ev.Phase = model.Phase(phase)
		if contextJSON != nil {
			if err := json.Unmarshal(contextJSON, &ev.Context); err != nil {
				return nil, eris.Wrap(err, "postgres: unmarshal audit context")
			}
		}
		events = append(events, ev)
	}
	return events, eris.Wrap(rows.Err(), "postgres: list audit events iterate")
}
