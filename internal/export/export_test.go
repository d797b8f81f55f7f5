package export

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/tabsplit/receipt-scan/internal/model"
)

func f64(v float64) *float64 { return &v }

func completeScan() model.ScanResult {
	return model.ScanResult{
		ID:       "scan-1",
		Source:   "receipt.jpg",
		Location: "receipts/scans/scan-1.jpg",
		Status:   model.ScanStatusComplete,
		Receipt: &model.Receipt{
			Merchant: &model.TextField{Value: "JOE'S DINER", Confidence: 97},
			Date:     &model.TextField{Value: "2024-07-15", Confidence: 96},
			Items: []model.LineItem{
				{Description: "Burger", Quantity: f64(2), UnitPrice: f64(6.25), LineTotal: 12.50, Confidence: 95},
				{Description: "Fries", LineTotal: 3.00, Confidence: 93},
			},
			Subtotal: &model.MoneyField{Value: 15.50, Confidence: 98},
			Tax:      &model.MoneyField{Value: 1.24, Confidence: 98},
			Total:    &model.MoneyField{Value: 16.74, Confidence: 99},
			Warnings: []model.Warning{},
		},
		CreatedAt: time.Date(2024, 7, 15, 12, 30, 0, 0, time.UTC),
	}
}

func failedScan() model.ScanResult {
	return model.ScanResult{
		ID:        "scan-2",
		Source:    "blurry.jpg",
		Status:    model.ScanStatusFailed,
		Error:     "prepare: unsupported image format",
		CreatedAt: time.Date(2024, 7, 16, 9, 0, 0, 0, time.UTC),
	}
}

func TestWriteXLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "receipts.xlsx")
	require.NoError(t, WriteXLSX(path, []model.ScanResult{completeScan(), failedScan()}))

	f, err := xlsx.OpenFile(path)
	require.NoError(t, err)
	require.Len(t, f.Sheets, 2)
	assert.Equal(t, "Receipts", f.Sheets[0].Name)
	assert.Equal(t, "Line Items", f.Sheets[1].Name)

	receipts := f.Sheets[0]
	require.Len(t, receipts.Rows, 3, "header plus one row per scan")

	header := receipts.Rows[0]
	assert.Equal(t, "Scan ID", header.Cells[0].String())
	assert.Equal(t, "Total", header.Cells[8].String())

	first := receipts.Rows[1]
	assert.Equal(t, "scan-1", first.Cells[0].String())
	assert.Equal(t, "receipt.jpg", first.Cells[1].String())
	assert.Equal(t, "complete", first.Cells[2].String())
	assert.Equal(t, "JOE'S DINER", first.Cells[3].String())
	assert.Equal(t, "2024-07-15", first.Cells[4].String())

	subtotal, err := first.Cells[5].Float()
	require.NoError(t, err)
	assert.InDelta(t, 15.50, subtotal, 0.0001)
	total, err := first.Cells[8].Float()
	require.NoError(t, err)
	assert.InDelta(t, 16.74, total, 0.0001)

	itemCount, err := first.Cells[9].Int()
	require.NoError(t, err)
	assert.Equal(t, 2, itemCount)
	assert.Equal(t, "", first.Cells[7].String(), "absent tip stays blank")

	second := receipts.Rows[2]
	assert.Equal(t, "scan-2", second.Cells[0].String())
	assert.Equal(t, "failed", second.Cells[2].String())
	assert.Equal(t, "", second.Cells[3].String())
}

func TestWriteXLSX_LineItems(t *testing.T) {
	path := filepath.Join(t.TempDir(), "receipts.xlsx")
	require.NoError(t, WriteXLSX(path, []model.ScanResult{completeScan(), failedScan()}))

	f, err := xlsx.OpenFile(path)
	require.NoError(t, err)

	items := f.Sheets[1]
	require.Len(t, items.Rows, 3, "header plus one row per purchased item")

	burger := items.Rows[1]
	assert.Equal(t, "scan-1", burger.Cells[0].String())
	assert.Equal(t, "JOE'S DINER", burger.Cells[1].String())
	assert.Equal(t, "Burger", burger.Cells[2].String())
	qty, err := burger.Cells[3].Float()
	require.NoError(t, err)
	assert.InDelta(t, 2, qty, 0.0001)
	unit, err := burger.Cells[4].Float()
	require.NoError(t, err)
	assert.InDelta(t, 6.25, unit, 0.0001)

	fries := items.Rows[2]
	assert.Equal(t, "Fries", fries.Cells[2].String())
	assert.Equal(t, "", fries.Cells[3].String(), "unknown quantity stays blank")
	lineTotal, err := fries.Cells[5].Float()
	require.NoError(t, err)
	assert.InDelta(t, 3.00, lineTotal, 0.0001)
}

func TestWriteXLSX_WarningsJoined(t *testing.T) {
	scan := completeScan()
	scan.Receipt.Items = nil
	scan.Receipt.Warnings = []model.Warning{model.WarningNoLineItems, model.WarningMissingTotal}

	path := filepath.Join(t.TempDir(), "receipts.xlsx")
	require.NoError(t, WriteXLSX(path, []model.ScanResult{scan}))

	f, err := xlsx.OpenFile(path)
	require.NoError(t, err)
	row := f.Sheets[0].Rows[1]
	assert.Equal(t, "NoLineItems; MissingTotal", row.Cells[10].String())
}

func TestWriteXLSX_NoScans(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.xlsx")
	require.NoError(t, WriteXLSX(path, nil))

	f, err := xlsx.OpenFile(path)
	require.NoError(t, err)
	require.Len(t, f.Sheets, 2)
	assert.Len(t, f.Sheets[0].Rows, 1, "just the header")
}

func TestWriteXLSX_BadPath(t *testing.T) {
	err := WriteXLSX(filepath.Join(t.TempDir(), "missing", "deep", "out.xlsx"), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "export: save")
}
