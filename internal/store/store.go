// Package store persists scan results. Two implementations share one
// schema shape: SQLite for single-user and test setups, Postgres for shared
// deployments. Receipts, job audit records, and phase timings are stored as
// JSON documents alongside the columns the list queries filter on.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/tabsplit/receipt-scan/internal/model"
)

// ErrNotFound is returned when the requested scan does not exist.
var ErrNotFound = eris.New("scan not found")

// ScanFilter specifies criteria for listing scans.
type ScanFilter struct {
	Status model.ScanStatus `json:"status,omitempty"`
	Source string           `json:"source,omitempty"`
	Limit  int              `json:"limit,omitempty"`
	Offset int              `json:"offset,omitempty"`
}

// Store defines the persistence interface for scan results.
type Store interface {
	SaveScan(ctx context.Context, scan *model.ScanResult) error
	GetScan(ctx context.Context, id string) (*model.ScanResult, error)
	ListScans(ctx context.Context, filter ScanFilter) ([]model.ScanResult, error)
	DeleteScan(ctx context.Context, id string) error

	Migrate(ctx context.Context) error
	Close() error
}

// Open builds the Store implementation for the configured driver.
func Open(ctx context.Context, driver, dsn string) (Store, error) {
	switch driver {
	case "sqlite", "":
		return NewSQLite(dsn)
	case "postgres":
		return NewPostgres(ctx, dsn, nil)
	default:
		return nil, eris.Errorf("store: unknown driver %q", driver)
	}
}

// marshalScan renders the scan's document columns. Nil documents stay NULL
// so absence survives a round trip. Raw blocks are deliberately not
// persisted; they can run to megabytes per receipt and the extracted fields
// keep their source block IDs for tracing.
func marshalScan(scan *model.ScanResult) (receipt, job, phases any, err error) {
	if scan.Receipt != nil {
		b, e := json.Marshal(scan.Receipt)
		if e != nil {
			return nil, nil, nil, eris.Wrap(e, "store: marshal receipt")
		}
		receipt = string(b)
	}
	if scan.Job != nil {
		b, e := json.Marshal(scan.Job)
		if e != nil {
			return nil, nil, nil, eris.Wrap(e, "store: marshal job")
		}
		job = string(b)
	}
	if len(scan.Phases) > 0 {
		b, e := json.Marshal(scan.Phases)
		if e != nil {
			return nil, nil, nil, eris.Wrap(e, "store: marshal phases")
		}
		phases = string(b)
	}
	return receipt, job, phases, nil
}

type scannable interface {
	Scan(dest ...any) error
}

// scanScanRow reconstructs a ScanResult from one row in column order
// id, source, location, status, receipt, job, phases, error, created_at.
func scanScanRow(row scannable) (*model.ScanResult, error) {
	var sr model.ScanResult
	var location, errMsg sql.NullString
	var receiptJSON, jobJSON, phasesJSON sql.NullString
	var createdAt time.Time

	err := row.Scan(&sr.ID, &sr.Source, &location, &sr.Status,
		&receiptJSON, &jobJSON, &phasesJSON, &errMsg, &createdAt)
	if errors.Is(err, sql.ErrNoRows) || errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "store: scan row")
	}

	sr.Location = location.String
	sr.Error = errMsg.String
	sr.CreatedAt = createdAt

	if receiptJSON.Valid {
		sr.Receipt = &model.Receipt{}
		if err := json.Unmarshal([]byte(receiptJSON.String), sr.Receipt); err != nil {
			return nil, eris.Wrap(err, "store: unmarshal receipt")
		}
	}
	if jobJSON.Valid {
		sr.Job = &model.AnalysisJob{}
		if err := json.Unmarshal([]byte(jobJSON.String), sr.Job); err != nil {
			return nil, eris.Wrap(err, "store: unmarshal job")
		}
	}
	if phasesJSON.Valid {
		if err := json.Unmarshal([]byte(phasesJSON.String), &sr.Phases); err != nil {
			return nil, eris.Wrap(err, "store: unmarshal phases")
		}
	}
	return &sr, nil
}
