package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/tabsplit/receipt-scan/internal/model"
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
CREATE TABLE IF NOT EXISTS scans (
	id         TEXT PRIMARY KEY,
	source     TEXT NOT NULL,
	location   TEXT,
	status     TEXT NOT NULL DEFAULT 'pending',
	receipt    TEXT,
	job        TEXT,
	phases     TEXT,
	error      TEXT,
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_scans_status ON scans(status);
CREATE INDEX IF NOT EXISTS idx_scans_source ON scans(source);
CREATE INDEX IF NOT EXISTS idx_scans_created_at ON scans(created_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveScan upserts by scan ID, so re-running a scan replaces its record.
// Missing IDs and timestamps are filled in.
func (s *SQLiteStore) SaveScan(ctx context.Context, scan *model.ScanResult) error {
	if scan.ID == "" {
		scan.ID = uuid.New().String()
	}
	if scan.CreatedAt.IsZero() {
		scan.CreatedAt = time.Now().UTC()
	}

	receiptJSON, jobJSON, phasesJSON, err := marshalScan(scan)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO scans (id, source, location, status, receipt, job, phases, error, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			source   = excluded.source,
			location = excluded.location,
			status   = excluded.status,
			receipt  = excluded.receipt,
			job      = excluded.job,
			phases   = excluded.phases,
			error    = excluded.error`,
		scan.ID, scan.Source, nullable(scan.Location), string(scan.Status),
		receiptJSON, jobJSON, phasesJSON, nullable(scan.Error), scan.CreatedAt,
	)
	return eris.Wrapf(err, "sqlite: save scan %s", scan.ID)
}

func (s *SQLiteStore) GetScan(ctx context.Context, id string) (*model.ScanResult, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, source, location, status, receipt, job, phases, error, created_at
		 FROM scans WHERE id = ?`,
		id,
	)
	return scanScanRow(row)
}

func (s *SQLiteStore) ListScans(ctx context.Context, filter ScanFilter) ([]model.ScanResult, error) {
	query := `SELECT id, source, location, status, receipt, job, phases, error, created_at
		 FROM scans WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.Source != "" {
		query += ` AND source = ?`
		args = append(args, filter.Source)
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
		return nil, eris.Wrap(err, "sqlite: list scans")
	}
	defer rows.Close()

	var scans []model.ScanResult
	for rows.Next() {
		sr, err := scanScanRow(rows)
		if err != nil {
			return nil, err
		}
		scans = append(scans, *sr)
	}
	return scans, eris.Wrap(rows.Err(), "sqlite: list scans iterate")
}

func (s *SQLiteStore) DeleteScan(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM scans WHERE id = ?`, id)
	if err != nil {
		return eris.Wrapf(err, "sqlite: delete scan %s", id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
