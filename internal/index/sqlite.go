package index

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/assessment-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS assessment_index (
	run_id             TEXT PRIMARY KEY,
	company_profile_id TEXT NOT NULL,
	manual_review      INTEGER NOT NULL DEFAULT 0,
	entry              TEXT NOT NULL,
	created_at         DATETIME NOT NULL,
	updated_at         DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS batch_jobs (
	id                TEXT PRIMARY KEY,
	run_id            TEXT NOT NULL REFERENCES assessment_index(run_id),
	phase             TEXT NOT NULL,
	provider_batch_id TEXT NOT NULL,
	status            TEXT NOT NULL,
	request_count     INTEGER NOT NULL,
	poll_attempts     INTEGER NOT NULL DEFAULT 0,
	created_at        DATETIME NOT NULL,
	updated_at        DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS audit_events (
	id         TEXT PRIMARY KEY,
	run_id     TEXT NOT NULL,
	phase      TEXT NOT NULL,
	kind       TEXT NOT NULL,
	context    TEXT,
	created_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_index_company_profile ON assessment_index(company_profile_id);
CREATE INDEX IF NOT EXISTS idx_index_manual_review ON assessment_index(manual_review);
CREATE INDEX IF NOT EXISTS idx_batch_jobs_run_id ON batch_jobs(run_id);
CREATE INDEX IF NOT EXISTS idx_audit_events_run_id ON audit_events(run_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateEntry(ctx context.Context, entry *model.AssessmentIndexEntry) error {
	entryJSON, err := json.Marshal(entry)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal entry")
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO assessment_index (run_id, company_profile_id, manual_review, entry, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		entry.AssessmentRunID, entry.CompanyProfileID, boolToInt(entry.ManualReview),
		string(entryJSON), entry.CreatedAt, entry.UpdatedAt,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: insert entry %s", entry.AssessmentRunID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrDuplicateRun, "run %s", entry.AssessmentRunID)
	}
	return nil
}

func (s *SQLiteStore) PutEntry(ctx context.Context, entry *model.AssessmentIndexEntry) error {
	entryJSON, err := json.Marshal(entry)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal entry")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE assessment_index SET manual_review = ?, entry = ?, updated_at = ? WHERE run_id = ?`,
		boolToInt(entry.ManualReview), string(entryJSON), entry.UpdatedAt, entry.AssessmentRunID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update entry %s", entry.AssessmentRunID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrRunNotFound, "run %s", entry.AssessmentRunID)
	}
	return nil
}

func (s *SQLiteStore) GetEntry(ctx context.Context, runID string) (*model.AssessmentIndexEntry, error) {
	var entryJSON string
	err := s.db.QueryRowContext(ctx,
		`SELECT entry FROM assessment_index WHERE run_id = ?`,
		runID,
	).Scan(&entryJSON)
	if err == sql.ErrNoRows {
		return nil, eris.Wrapf(ErrRunNotFound, "run %s", runID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get entry %s", runID)
	}

	var entry model.AssessmentIndexEntry
	if err := json.Unmarshal([]byte(entryJSON), &entry); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal entry")
	}
	return &entry, nil
}

func (s *SQLiteStore) ListEntries(ctx context.Context, filter Filter) ([]model.AssessmentIndexEntry, error) {
	query := `SELECT entry FROM assessment_index WHERE 1=1`
	var args []any

	if filter.CompanyProfileID != "" {
		query += ` AND company_profile_id = ?`
		args = append(args, filter.CompanyProfileID)
	}
	if filter.ManualReview != nil {
		query += ` AND manual_review = ?`
		args = append(args, boolToInt(*filter.ManualReview))
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list entries")
	}
	defer rows.Close()

	var entries []model.AssessmentIndexEntry
	for rows.Next() {
		var entryJSON string
		if err := rows.Scan(&entryJSON); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan entry")
		}
		var entry model.AssessmentIndexEntry
		if err := json.Unmarshal([]byte(entryJSON), &entry); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal entry")
		}
		entries = append(entries, entry)
	}
	return entries, eris.Wrap(rows.Err(), "sqlite: list entries iterate")
}

func (s *SQLiteStore) CreateBatchJob(ctx context.Context, rec *model.BatchJobRecord) error {
	if rec.JobID == "" {
		rec.JobID = uuid.New().String()
	}
	now := time.Now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO batch_jobs (id, run_id, phase, provider_batch_id, status, request_count, poll_attempts, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.JobID, rec.AssessmentRunID, string(rec.Phase), rec.ProviderBatchID,
		string(rec.Status), rec.RequestCount, rec.PollAttempts, rec.CreatedAt, rec.UpdatedAt,
	)
	return eris.Wrapf(err, "sqlite: insert batch job for run %s", rec.AssessmentRunID)
}

func (s *SQLiteStore) UpdateBatchJob(ctx context.Context, jobID string, status model.BatchJobStatus, pollAttempts int) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE batch_jobs SET status = ?, poll_attempts = ?, updated_at = ? WHERE id = ?`,
		string(status), pollAttempts, time.Now().UTC(), jobID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update batch job %s", jobID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Errorf("batch job not found: %s", jobID)
	}
	return nil
}

func (s *SQLiteStore) ListBatchJobs(ctx context.Context, runID string) ([]model.BatchJobRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, run_id, phase, provider_batch_id, status, request_count, poll_attempts, created_at, updated_at
		 FROM batch_jobs WHERE run_id = ? ORDER BY created_at ASC`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list batch jobs")
	}
	defer rows.Close()

	var recs []model.BatchJobRecord
	for rows.Next() {
		var r model.BatchJobRecord
		var phase, status string
		if err := rows.Scan(&r.JobID, &r.AssessmentRunID, &phase, &r.ProviderBatchID,
			&status, &r.RequestCount, &r.PollAttempts, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan batch job")
		}
		r.Phase = model.Phase(phase)
		r.Status = model.BatchJobStatus(status)
		recs = append(recs, r)
	}
	return recs, eris.Wrap(rows.Err(), "sqlite: list batch jobs iterate")
}

func (s *SQLiteStore) AppendAudit(ctx context.Context, ev *model.AuditEvent) error {
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
			return eris.Wrap(err, "sqlite: marshal audit context")
		}
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit_events (id, run_id, phase, kind, context, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		ev.ID, ev.AssessmentRunID, string(ev.Phase), ev.Kind, nullableString(contextJSON), ev.CreatedAt,
	)
	return eris.Wrapf(err, "sqlite: insert audit event for run %s", ev.AssessmentRunID)
}

func (s *SQLiteStore) ListAudit(ctx context.Context, runID string) ([]model.AuditEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, run_id, phase, kind, context, created_at FROM audit_events
		 WHERE run_id = ? ORDER BY created_at ASC`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list audit events")
	}
	defer rows.Close()

	var events []model.AuditEvent
	for rows.Next() {
		var ev model.AuditEvent
		var phase string
		var contextJSON sql.NullString
		if err := rows.Scan(&ev.ID, &ev.AssessmentRunID, &phase, &ev.Kind, &contextJSON, &ev.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan audit event")
		}
		ev.Phase = model.Phase(phase)
		if contextJSON.Valid {
			if err := json.Unmarshal([]byte(contextJSON.String), &ev.Context); err != nil {
				return nil, eris.Wrap(err, "sqlite: unmarshal audit context")
			}
		}
		events = append(events, ev)
	}
	return events, eris.Wrap(rows.Err(), "sqlite: list audit events iterate")
}

// helpers

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullableString(b []byte) any {
	if b == nil {
		return nil
	}
	return string(b)
}
