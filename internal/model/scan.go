package model

import (
	"time"

	"github.com/tabsplit/receipt-scan/pkg/docanalysis"
)

// ScanStatus represents the current state of a receipt scan.
type ScanStatus string

const (
	ScanStatusPending  ScanStatus = "pending"
	ScanStatusComplete ScanStatus = "complete"
	ScanStatusFailed   ScanStatus = "failed"
)

// PhaseStatus represents the current state of a pipeline phase.
type PhaseStatus string

const (
	PhaseStatusRunning  PhaseStatus = "running"
	PhaseStatusComplete PhaseStatus = "complete"
	PhaseStatusFailed   PhaseStatus = "failed"
	PhaseStatusSkipped  PhaseStatus = "skipped"
)

// PhaseResult holds the outcome of a pipeline phase.
type PhaseResult struct {
	Name     string      `json:"name"`
	Status   PhaseStatus `json:"status"`
	Duration int64       `json:"duration_ms"`
	Error    string      `json:"error,omitempty"`
}

// ScanResult is the final output of the scan pipeline for one receipt image.
type ScanResult struct {
	ID        string              `json:"id"`
	Source    string              `json:"source"`
	Location  string              `json:"location,omitempty"`
	Status    ScanStatus          `json:"status"`
	Receipt   *Receipt            `json:"receipt,omitempty"`
	Job       *AnalysisJob        `json:"job,omitempty"`
	RawBlocks []docanalysis.Block `json:"raw_blocks,omitempty"`
	Phases    []PhaseResult       `json:"phases,omitempty"`
	Error     string              `json:"error,omitempty"`
	CreatedAt time.Time           `json:"created_at"`
}
