package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/tabsplit/receipt-scan/internal/model"
	"github.com/tabsplit/receipt-scan/internal/store"
)

var receiptsCmd = &cobra.Command{
	Use:   "receipts",
	Short: "Inspect stored scan results",
	Long:  "Commands for listing, viewing, deleting, and summarizing scanned receipts.",
}

// -- receipts list --

var receiptsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List scanned receipts",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		status, _ := cmd.Flags().GetString("status")
		source, _ := cmd.Flags().GetString("source")
		limit, _ := cmd.Flags().GetInt("limit")

		scans, err := st.ListScans(ctx, store.ScanFilter{
			Status: model.ScanStatus(status),
			Source: source,
			Limit:  limit,
		})
		if err != nil {
			return eris.Wrap(err, "receipts list")
		}

		if len(scans) == 0 {
			fmt.Fprintln(os.Stderr, "No scans found.")
			return nil
		}

		formatScansList(os.Stdout, scans)
		return nil
	},
}

// -- receipts show --

var receiptsShowCmd = &cobra.Command{
	Use:   "show <scan-id>",
	Short: "Show full details of a scan",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		scan, err := st.GetScan(ctx, args[0])
		if errors.Is(err, store.ErrNotFound) {
			return eris.Errorf("no scan with id %s", args[0])
		}
		if err != nil {
			return eris.Wrap(err, "receipts show")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(scan)
	},
}

// -- receipts delete --

var receiptsDeleteCmd = &cobra.Command{
	Use:   "delete <scan-id>",
	Short: "Delete a stored scan",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if err := st.DeleteScan(ctx, args[0]); errors.Is(err, store.ErrNotFound) {
			return eris.Errorf("no scan with id %s", args[0])
		} else if err != nil {
			return eris.Wrap(err, "receipts delete")
		}

		fmt.Fprintf(os.Stdout, "Deleted %s\n", args[0])
		return nil
	},
}

// -- receipts stats --

var receiptsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show aggregate scan statistics",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		scans, err := st.ListScans(ctx, store.ScanFilter{Limit: 10000})
		if err != nil {
			return eris.Wrap(err, "receipts stats")
		}

		formatScanStats(os.Stdout, computeScanStats(scans))
		return nil
	},
}

func init() {
	receiptsListCmd.Flags().String("status", "", "filter by scan status (pending, complete, failed)")
	receiptsListCmd.Flags().String("source", "", "filter by source name")
	receiptsListCmd.Flags().Int("limit", 50, "max number of scans to display")

	receiptsCmd.AddCommand(receiptsListCmd)
	receiptsCmd.AddCommand(receiptsShowCmd)
	receiptsCmd.AddCommand(receiptsDeleteCmd)
	receiptsCmd.AddCommand(receiptsStatsCmd)
	rootCmd.AddCommand(receiptsCmd)
}

// scanStats holds aggregate statistics computed from a set of scans.
type scanStats struct {
	Total        int
	Complete     int
	Failed       int
	Other        int
	Mismatch     int
	MissingTotal int
	NoLineItems  int
}

func computeScanStats(scans []model.ScanResult) scanStats {
	var s scanStats
	s.Total = len(scans)

	for _, scan := range scans {
		switch scan.Status {
		case model.ScanStatusComplete:
			s.Complete++
		case model.ScanStatusFailed:
			s.Failed++
		default:
			s.Other++
		}
		if scan.Receipt == nil {
			continue
		}
		if scan.Receipt.HasWarning(model.WarningArithmeticMismatch) {
			s.Mismatch++
		}
		if scan.Receipt.HasWarning(model.WarningMissingTotal) {
			s.MissingTotal++
		}
		if scan.Receipt.HasWarning(model.WarningNoLineItems) {
			s.NoLineItems++
		}
	}
	return s
}

// formatScansList writes a tabular list of scans to w.
func formatScansList(out io.Writer, scans []model.ScanResult) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tSOURCE\tSTATUS\tMERCHANT\tTOTAL\tWARNINGS\tCREATED")
	_, _ = fmt.Fprintln(w, "--\t------\t------\t--------\t-----\t--------\t-------")

	for _, scan := range scans {
		merchant := ""
		total := "-"
		warnings := 0
		if scan.Receipt != nil {
			if scan.Receipt.Merchant != nil {
				merchant = scan.Receipt.Merchant.Value
			}
			if scan.Receipt.Total != nil {
				total = fmt.Sprintf("%.2f", scan.Receipt.Total.Value)
			}
			warnings = len(scan.Receipt.Warnings)
		}
		if len(merchant) > 24 {
			merchant = merchant[:21] + "..."
		}

		source := scan.Source
		if len(source) > 30 {
			source = source[:27] + "..."
		}

		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\t%s\n",
			truncateID(scan.ID),
			source,
			scan.Status,
			merchant,
			total,
			warnings,
			scan.CreatedAt.Format("2006-01-02 15:04"),
		)
	}
	_ = w.Flush()
}

// formatScanStats writes aggregate stats to w.
func formatScanStats(out io.Writer, s scanStats) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Total scans:\t%d\n", s.Total)
	_, _ = fmt.Fprintf(w, "Complete:\t%d\n", s.Complete)
	_, _ = fmt.Fprintf(w, "Failed:\t%d\n", s.Failed)
	if s.Other > 0 {
		_, _ = fmt.Fprintf(w, "Other:\t%d\n", s.Other)
	}
	_, _ = fmt.Fprintf(w, "Arithmetic mismatches:\t%d\n", s.Mismatch)
	_, _ = fmt.Fprintf(w, "Missing totals:\t%d\n", s.MissingTotal)
	_, _ = fmt.Fprintf(w, "No line items:\t%d\n", s.NoLineItems)
	_ = w.Flush()
}

// truncateID returns the first 8 characters of a UUID for compact display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
