package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tabsplit/receipt-scan/internal/export"
	"github.com/tabsplit/receipt-scan/internal/model"
	"github.com/tabsplit/receipt-scan/internal/store"
)

var (
	exportOutput string
	exportFormat string
	exportStatus string
	exportLimit  int
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export stored scans to a spreadsheet or JSON file",
	Long: `Export reads scans from the store and writes them to a file.

The xlsx format produces a workbook with a receipt summary sheet and a
line item sheet. The json format writes the full scan records, including
per-field confidence scores.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		scans, err := st.ListScans(ctx, store.ScanFilter{
			Status: model.ScanStatus(exportStatus),
			Limit:  exportLimit,
		})
		if err != nil {
			return eris.Wrap(err, "export: list scans")
		}

		switch exportFormat {
		case "xlsx":
			if err := export.WriteXLSX(exportOutput, scans); err != nil {
				return err
			}
		case "json":
			if err := writeJSONFile(exportOutput, scans); err != nil {
				return err
			}
		default:
			return eris.Errorf("unsupported export format %q (want xlsx or json)", exportFormat)
		}

		zap.L().Info("export: complete",
			zap.String("output", exportOutput),
			zap.String("format", exportFormat),
			zap.Int("scans", len(scans)))
		return nil
	},
}

func writeJSONFile(path string, scans []model.ScanResult) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "export: create %s", path)
	}
	defer f.Close() //nolint:errcheck

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(scans); err != nil {
		return eris.Wrapf(err, "export: write %s", path)
	}
	return nil
}

func init() {
	exportCmd.Flags().StringVar(&exportOutput, "output", "", "output file path")
	exportCmd.Flags().StringVar(&exportFormat, "format", "xlsx", "output format: xlsx or json")
	exportCmd.Flags().StringVar(&exportStatus, "status", "", "filter by scan status")
	exportCmd.Flags().IntVar(&exportLimit, "limit", 10000, "max number of scans to export")
	_ = exportCmd.MarkFlagRequired("output")
	rootCmd.AddCommand(exportCmd)
}
