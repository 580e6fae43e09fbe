package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/tidwall/gjson"
)

type SQLiteStore struct {
	db *sqlx.DB
}

// NewSQLiteStore creates or opens a SQLite database.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to init schema: %w", err)
	}

	return s, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) initSchema() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS reports (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL UNIQUE,
			received_at INTEGER NOT NULL,
			user_agent TEXT NOT NULL,
			schema_version TEXT NOT NULL,
			payload BLOB NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			started_at INTEGER NOT NULL,
			sessions INTEGER NOT NULL,
			rejected INTEGER NOT NULL,
			features INTEGER NOT NULL,
			orphans INTEGER NOT NULL,
			diagnostics INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_reports_received ON reports(received_at);`,
		// Reports are an append-only log.
		`CREATE TRIGGER IF NOT EXISTS reports_no_update BEFORE UPDATE ON reports
		BEGIN SELECT RAISE(ABORT, 'reports are append-only'); END;`,
	}

	for _, q := range queries {
		if _, err := s.db.Exec(q); err != nil {
			return err
		}
	}
	return nil
}

type reportRow struct {
	ID            string `db:"id"`
	ReceivedAt    int64  `db:"received_at"`
	UserAgent     string `db:"user_agent"`
	SchemaVersion string `db:"schema_version"`
	Payload       []byte `db:"payload"`
}

func (r reportRow) stored() StoredReport {
	return StoredReport{
		ID:            r.ID,
		ReceivedAt:    time.UnixMilli(r.ReceivedAt).UTC(),
		UserAgent:     r.UserAgent,
		SchemaVersion: r.SchemaVersion,
		Payload:       r.Payload,
	}
}

// --- ReportStore Implementation ---

// Append stores a payload under a fresh id. The payload is kept verbatim,
// valid or not; user agent and schema version are extracted when present.
func (s *SQLiteStore) Append(ctx context.Context, payload []byte, receivedAt time.Time) (StoredReport, error) {
	if receivedAt.IsZero() {
		receivedAt = time.Now()
	}
	row := reportRow{
		ID:         uuid.NewString(),
		ReceivedAt: receivedAt.UTC().UnixMilli(),
		Payload:    payload,
	}
	if gjson.ValidBytes(payload) {
		row.UserAgent = gjson.GetBytes(payload, "userAgent").String()
		row.SchemaVersion = gjson.GetBytes(payload, "__version").String()
	}

	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO reports (id, received_at, user_agent, schema_version, payload)
		VALUES (:id, :received_at, :user_agent, :schema_version, :payload)
	`, row)
	if err != nil {
		return StoredReport{}, fmt.Errorf("failed to append report: %w", err)
	}
	return row.stored(), nil
}

func (s *SQLiteStore) All(ctx context.Context) ([]StoredReport, error) {
	return s.query(ctx, `
		SELECT id, received_at, user_agent, schema_version, payload
		FROM reports ORDER BY seq
	`)
}

func (s *SQLiteStore) Since(ctx context.Context, t time.Time) ([]StoredReport, error) {
	return s.query(ctx, `
		SELECT id, received_at, user_agent, schema_version, payload
		FROM reports WHERE received_at >= ? ORDER BY seq
	`, t.UTC().UnixMilli())
}

func (s *SQLiteStore) query(ctx context.Context, q string, args ...any) ([]StoredReport, error) {
	var rows []reportRow
	if err := s.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, fmt.Errorf("failed to load reports: %w", err)
	}
	out := make([]StoredReport, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.stored())
	}
	return out, nil
}

func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM reports`); err != nil {
		return 0, err
	}
	return n, nil
}

// --- RunStore Implementation ---

type runRow struct {
	ID          string `db:"id"`
	StartedAt   int64  `db:"started_at"`
	Sessions    int    `db:"sessions"`
	Rejected    int    `db:"rejected"`
	Features    int    `db:"features"`
	Orphans     int    `db:"orphans"`
	Diagnostics int    `db:"diagnostics"`
}

func (s *SQLiteStore) RecordRun(ctx context.Context, run Run) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO runs (id, started_at, sessions, rejected, features, orphans, diagnostics)
		VALUES (:id, :started_at, :sessions, :rejected, :features, :orphans, :diagnostics)
	`, runRow{
		ID:          run.ID,
		StartedAt:   run.StartedAt.UTC().UnixMilli(),
		Sessions:    run.Sessions,
		Rejected:    run.Rejected,
		Features:    run.Features,
		Orphans:     run.Orphans,
		Diagnostics: run.Diagnostics,
	})
	return err
}

func (s *SQLiteStore) Runs(ctx context.Context) ([]Run, error) {
	var rows []runRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT * FROM runs ORDER BY started_at, id`); err != nil {
		return nil, err
	}
	out := make([]Run, 0, len(rows))
	for _, r := range rows {
		out = append(out, Run{
			ID:          r.ID,
			StartedAt:   time.UnixMilli(r.StartedAt).UTC(),
			Sessions:    r.Sessions,
			Rejected:    r.Rejected,
			Features:    r.Features,
			Orphans:     r.Orphans,
			Diagnostics: r.Diagnostics,
		})
	}
	return out, nil
}

var _ Store = (*SQLiteStore)(nil)
