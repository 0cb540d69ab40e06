package jobs

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/joelkehle/clinical-handoff/internal/handoff"
)

// SQLiteStore keeps job records in a single sqlite table, written through on
// every transition so a restarted server still answers status queries.
type SQLiteStore struct {
	db  *sqlx.DB
	now func() time.Time
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS jobs (
	job_id       TEXT PRIMARY KEY,
	note_id      TEXT NOT NULL DEFAULT '',
	status       TEXT NOT NULL,
	stage        TEXT NOT NULL DEFAULT '',
	failed_stage TEXT NOT NULL DEFAULT '',
	error        TEXT NOT NULL DEFAULT '',
	summary      TEXT NOT NULL DEFAULT '',
	created_at   TEXT NOT NULL,
	updated_at   TEXT NOT NULL
);
`

type jobRow struct {
	ID          string `db:"job_id"`
	NoteID      string `db:"note_id"`
	Status      string `db:"status"`
	Stage       string `db:"stage"`
	FailedStage string `db:"failed_stage"`
	Error       string `db:"error"`
	Summary     string `db:"summary"`
	CreatedAt   string `db:"created_at"`
	UpdatedAt   string `db:"updated_at"`
}

const selectJob = `SELECT job_id, note_id, status, stage, failed_stage, error, summary, created_at, updated_at FROM jobs`

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &SQLiteStore{db: db, now: time.Now}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Create(ctx context.Context, noteID string) (Job, error) {
	now := s.now().UTC()
	j := Job{
		ID:        uuid.NewString(),
		NoteID:    noteID,
		Status:    StatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO jobs (job_id, note_id, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		j.ID, j.NoteID, string(j.Status), fmtTime(now), fmtTime(now))
	if err != nil {
		return Job{}, fmt.Errorf("insert job: %w", err)
	}
	return j, nil
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (Job, error) {
	var row jobRow
	if err := s.db.GetContext(ctx, &row, selectJob+` WHERE job_id = ?`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Job{}, ErrNotFound
		}
		return Job{}, fmt.Errorf("get job %s: %w", id, err)
	}
	return row.job()
}

func (s *SQLiteStore) SetStage(ctx context.Context, id, stage string) error {
	return s.exec(ctx, id, `UPDATE jobs SET status = ?, stage = ?, updated_at = ? WHERE job_id = ?`,
		string(StatusRunning), stage, fmtTime(s.now()), id)
}

func (s *SQLiteStore) Complete(ctx context.Context, id string, summary handoff.StructuredSummary) error {
	blob, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}
	return s.exec(ctx, id, `UPDATE jobs SET status = ?, summary = ?, updated_at = ? WHERE job_id = ?`,
		string(StatusCompleted), string(blob), fmtTime(s.now()), id)
}

func (s *SQLiteStore) Fail(ctx context.Context, id, stage, reason string) error {
	return s.exec(ctx, id, `UPDATE jobs SET status = ?, failed_stage = ?, error = ?, updated_at = ? WHERE job_id = ?`,
		string(StatusFailed), stage, reason, fmtTime(s.now()), id)
}

func (s *SQLiteStore) List(ctx context.Context, limit int) ([]Job, error) {
	query := selectJob + ` ORDER BY rowid DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	var rows []jobRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	out := make([]Job, 0, len(rows))
	for _, r := range rows {
		j, err := r.job()
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, nil
}

func (s *SQLiteStore) exec(ctx context.Context, id, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update job %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update job %s: %w", id, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r jobRow) job() (Job, error) {
	j := Job{
		ID:          r.ID,
		NoteID:      r.NoteID,
		Status:      Status(r.Status),
		Stage:       r.Stage,
		FailedStage: r.FailedStage,
		Error:       r.Error,
	}
	j.CreatedAt, _ = time.Parse(time.RFC3339Nano, r.CreatedAt)
	j.UpdatedAt, _ = time.Parse(time.RFC3339Nano, r.UpdatedAt)
	if r.Summary != "" {
		var s handoff.StructuredSummary
		if err := json.Unmarshal([]byte(r.Summary), &s); err != nil {
			return Job{}, fmt.Errorf("decode summary for job %s: %w", r.ID, err)
		}
		j.Summary = &s
	}
	return j, nil
}

func fmtTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
