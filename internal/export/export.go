// Package export renders stored scan results into an XLSX workbook, one
// sheet summarizing receipts and one flattening their line items.
package export

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/tabsplit/receipt-scan/internal/model"
)

var receiptHeader = []string{
	"Scan ID", "Source", "Status", "Merchant", "Date",
	"Subtotal", "Tax", "Tip", "Total", "Items", "Warnings", "Scanned At",
}

var lineItemHeader = []string{
	"Scan ID", "Merchant", "Description", "Quantity", "Unit Price", "Line Total",
}

// WriteXLSX writes scans to path as a two-sheet workbook. Failed scans keep
// their summary row so the export accounts for every source; they just
// contribute no line items.
func WriteXLSX(path string, scans []model.ScanResult) error {
	f := xlsx.NewFile()

	receipts, err := f.AddSheet("Receipts")
	if err != nil {
		return eris.Wrap(err, "export: add receipts sheet")
	}
	items, err := f.AddSheet("Line Items")
	if err != nil {
		return eris.Wrap(err, "export: add line items sheet")
	}

	addHeader(receipts, receiptHeader)
	addHeader(items, lineItemHeader)

	for i := range scans {
		scan := &scans[i]
		writeReceiptRow(receipts, scan)
		writeItemRows(items, scan)
	}

	if err := f.Save(path); err != nil {
		return eris.Wrapf(err, "export: save %s", path)
	}
	return nil
}

func addHeader(sheet *xlsx.Sheet, header []string) {
	row := sheet.AddRow()
	for _, h := range header {
		row.AddCell().SetString(h)
	}
}

func writeReceiptRow(sheet *xlsx.Sheet, scan *model.ScanResult) {
	row := sheet.AddRow()
	row.AddCell().SetString(scan.ID)
	row.AddCell().SetString(scan.Source)
	row.AddCell().SetString(string(scan.Status))
	row.AddCell().SetString(merchantOf(scan))
	row.AddCell().SetString(dateOf(scan))

	r := scan.Receipt
	if r == nil {
		r = &model.Receipt{}
	}
	setMoney(row.AddCell(), r.Subtotal)
	setMoney(row.AddCell(), r.Tax)
	setMoney(row.AddCell(), r.Tip)
	setMoney(row.AddCell(), r.Total)
	row.AddCell().SetInt(len(r.Items))
	row.AddCell().SetString(joinWarnings(r.Warnings))
	row.AddCell().SetString(scan.CreatedAt.Format("2006-01-02 15:04:05"))
}

func writeItemRows(sheet *xlsx.Sheet, scan *model.ScanResult) {
	if scan.Receipt == nil {
		return
	}
	merchant := merchantOf(scan)
	for _, item := range scan.Receipt.Items {
		row := sheet.AddRow()
		row.AddCell().SetString(scan.ID)
		row.AddCell().SetString(merchant)
		row.AddCell().SetString(item.Description)
		setOptionalFloat(row.AddCell(), item.Quantity)
		setOptionalMoney(row.AddCell(), item.UnitPrice)
		row.AddCell().SetFloatWithFormat(item.LineTotal, "0.00")
	}
}

func merchantOf(scan *model.ScanResult) string {
	if scan.Receipt == nil || scan.Receipt.Merchant == nil {
		return ""
	}
	return scan.Receipt.Merchant.Value
}

func dateOf(scan *model.ScanResult) string {
	if scan.Receipt == nil || scan.Receipt.Date == nil {
		return ""
	}
	return scan.Receipt.Date.Value
}

func setMoney(cell *xlsx.Cell, m *model.MoneyField) {
	if m == nil {
		cell.SetString("")
		return
	}
	cell.SetFloatWithFormat(m.Value, "0.00")
}

func setOptionalMoney(cell *xlsx.Cell, v *float64) {
	if v == nil {
		cell.SetString("")
		return
	}
	cell.SetFloatWithFormat(*v, "0.00")
}

func setOptionalFloat(cell *xlsx.Cell, v *float64) {
	if v == nil {
		cell.SetString("")
		return
	}
	cell.SetFloat(*v)
}

func joinWarnings(warnings []model.Warning) string {
	if len(warnings) == 0 {
		return ""
	}
	parts := make([]string, 0, len(warnings))
	for _, w := range warnings {
		parts = append(parts, string(w))
	}
	return strings.Join(parts, "; ")
}
