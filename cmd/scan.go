package main

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tabsplit/receipt-scan/internal/model"
	"github.com/tabsplit/receipt-scan/internal/pipeline"
)

var (
	scanImage  string
	scanOutput string
	scanStore  bool
	scanRaw    bool
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan a single receipt image",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		data, err := os.ReadFile(scanImage)
		if err != nil {
			return eris.Wrap(err, "read image")
		}

		env, err := initScanEnv(ctx, "scan", scanStore)
		if err != nil {
			return err
		}
		defer env.Close()

		result, runErr := env.Pipeline.Process(ctx, pipeline.Input{
			Name:  filepath.Base(scanImage),
			Bytes: data,
		})
		if result != nil {
			if err := writeResult(result, scanOutput, scanRaw); err != nil {
				return err
			}
		}
		if runErr != nil {
			return eris.Wrap(runErr, "scan")
		}

		zap.L().Info("scan complete",
			zap.String("scan_id", result.ID),
			zap.Int("items", len(result.Receipt.Items)),
			zap.Int("warnings", len(result.Receipt.Warnings)),
		)
		return nil
	},
}

func init() {
	scanCmd.Flags().StringVar(&scanImage, "image", "", "receipt image file (required)")
	scanCmd.Flags().StringVar(&scanOutput, "output", "", "write result JSON to file instead of stdout")
	scanCmd.Flags().BoolVar(&scanStore, "store", false, "persist the result to the scan store")
	scanCmd.Flags().BoolVar(&scanRaw, "raw", false, "include raw analysis blocks in the output")
	_ = scanCmd.MarkFlagRequired("image")
	rootCmd.AddCommand(scanCmd)
}

// writeResult renders a scan result as indented JSON to the output path, or
// stdout when the path is empty.
func writeResult(result *model.ScanResult, path string, includeRaw bool) error {
	var out io.Writer = os.Stdout
	if path != "" {
		f, err := os.Create(path)
		if err != nil {
			return eris.Wrap(err, "create output file")
		}
		defer f.Close() //nolint:errcheck
		out = f
	}
	return writeResultTo(out, result, includeRaw)
}

// writeResultTo encodes the result to w. Raw analysis blocks are stripped
// unless asked for; they dwarf the rest of the result.
func writeResultTo(w io.Writer, result *model.ScanResult, includeRaw bool) error {
	if !includeRaw {
		trimmed := *result
		trimmed.RawBlocks = nil
		result = &trimmed
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}
