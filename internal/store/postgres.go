package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/tabsplit/receipt-scan/internal/model"
)

// Pool is the slice of pgxpool.Pool the store uses. pgxmock implements it,
// which is what the unit tests substitute.
type Pool interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
}

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
CREATE TABLE IF NOT EXISTS scans (
	id         TEXT PRIMARY KEY,
	source     TEXT NOT NULL,
	location   TEXT,
	status     TEXT NOT NULL DEFAULT 'pending',
	receipt    JSONB,
	job        JSONB,
	phases     JSONB,
	error      TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_scans_status ON scans(status);
CREATE INDEX IF NOT EXISTS idx_scans_source ON scans(source);
CREATE INDEX IF NOT EXISTS idx_scans_created_at ON scans(created_at DESC);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
}

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

// SaveScan upserts by scan ID, so re-running a scan replaces its record.
func (s *PostgresStore) SaveScan(ctx context.Context, scan *model.ScanResult) error {
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

	_, err = s.pool.Exec(ctx,
		`INSERT INTO scans (id, source, location, status, receipt, job, phases, error, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (id) DO UPDATE SET
			source   = EXCLUDED.source,
			location = EXCLUDED.location,
			status   = EXCLUDED.status,
			receipt  = EXCLUDED.receipt,
			job      = EXCLUDED.job,
			phases   = EXCLUDED.phases,
			error    = EXCLUDED.error`,
		scan.ID, scan.Source, nullable(scan.Location), string(scan.Status),
		receiptJSON, jobJSON, phasesJSON, nullable(scan.Error), scan.CreatedAt,
	)
	return eris.Wrapf(err, "postgres: save scan %s", scan.ID)
}

func (s *PostgresStore) GetScan(ctx context.Context, id string) (*model.ScanResult, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, source, location, status, receipt, job, phases, error, created_at
		 FROM scans WHERE id = $1`,
		id,
	)
	return scanScanRow(row)
}

func (s *PostgresStore) ListScans(ctx context.Context, filter ScanFilter) ([]model.ScanResult, error) {
	query := `SELECT id, source, location, status, receipt, job, phases, error, created_at
		 FROM scans WHERE 1=1`
	var args []any

	if filter.Status != "" {
		args = append(args, string(filter.Status))
		query += fmt.Sprintf(` AND status = $%d`, len(args))
	}
	if filter.Source != "" {
		args = append(args, filter.Source)
		query += fmt.Sprintf(` AND source = $%d`, len(args))
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit)
	query += fmt.Sprintf(` LIMIT $%d`, len(args))

	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(` OFFSET $%d`, len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list scans")
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
	return scans, eris.Wrap(rows.Err(), "postgres: list scans iterate")
}

func (s *PostgresStore) DeleteScan(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM scans WHERE id = $1`, id)
	if err != nil {
		return eris.Wrapf(err, "postgres: delete scan %s", id)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
