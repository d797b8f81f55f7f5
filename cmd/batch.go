package main

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"net/url"
	"os"
	"os/signal"
	"path"
	"path/filepath"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/tabsplit/receipt-scan/internal/fetcher"
	"github.com/tabsplit/receipt-scan/internal/model"
	"github.com/tabsplit/receipt-scan/internal/pipeline"
)

var (
	batchManifest    string
	batchConcurrency int
	batchLimit       int
	batchDryRun      bool
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Scan receipts from a CSV manifest",
	Long:  "Reads a manifest of image sources (local paths, http(s) or ftp URLs, one per line as source[,name]) and scans them concurrently.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		f, err := os.Open(batchManifest)
		if err != nil {
			return eris.Wrap(err, "open manifest")
		}
		items, err := readManifest(f)
		_ = f.Close()
		if err != nil {
			return err
		}

		if batchDryRun {
			for _, item := range items {
				fmt.Fprintf(os.Stdout, "%s\t%s\n", item.Source, item.Name)
			}
			return nil
		}

		env, err := initScanEnv(ctx, "batch", true)
		if err != nil {
			return err
		}
		defer env.Close()

		fetch := fetcher.New(fetcher.Options{
			Timeout:    time.Duration(cfg.Fetch.TimeoutSecs) * time.Second,
			RatePerSec: cfg.Fetch.RatePerSec,
		})

		concurrency := batchConcurrency
		if concurrency <= 0 {
			concurrency = cfg.Batch.MaxConcurrentScans
		}

		return processBatch(ctx, items, batchLimit, concurrency, fetch, env.Pipeline.Process)
	},
}

func init() {
	batchCmd.Flags().StringVar(&batchManifest, "manifest", "", "CSV manifest file (required)")
	batchCmd.Flags().IntVar(&batchConcurrency, "concurrency", 0, "max concurrent scans (default from config)")
	batchCmd.Flags().IntVar(&batchLimit, "limit", 0, "max number of manifest rows to process (0 = all)")
	batchCmd.Flags().BoolVar(&batchDryRun, "dry-run", false, "list resolved manifest items without scanning")
	_ = batchCmd.MarkFlagRequired("manifest")
	rootCmd.AddCommand(batchCmd)
}

// batchItem is one manifest row: a source reference plus an optional
// display name.
type batchItem struct {
	Source string
	Name   string
}

// readManifest parses a source[,name] CSV. Blank lines and #-comments are
// skipped, and an optional "source,name" header row is recognized.
func readManifest(r io.Reader) ([]batchItem, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	reader.Comment = '#'

	var items []batchItem
	first := true
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrap(err, "read manifest")
		}

		source := strings.TrimSpace(record[0])
		if source == "" {
			continue
		}
		if first && strings.EqualFold(source, "source") {
			first = false
			continue
		}
		first = false

		item := batchItem{Source: source}
		if len(record) > 1 {
			item.Name = strings.TrimSpace(record[1])
		}
		if item.Name == "" {
			item.Name = displayName(source)
		}
		items = append(items, item)
	}
	return items, nil
}

// displayName derives a scan name from the source reference.
func displayName(source string) string {
	if u, err := url.Parse(source); err == nil && u.Scheme != "" && u.Path != "" {
		if base := path.Base(u.Path); base != "." && base != "/" {
			return base
		}
	}
	return filepath.Base(source)
}

// scanFunc runs one prepared input through the pipeline.
type scanFunc func(ctx context.Context, in pipeline.Input) (*model.ScanResult, error)

// processBatch applies limit, then fetches and scans items concurrently.
// Individual failures are logged and counted, never fatal to the batch.
func processBatch(ctx context.Context, items []batchItem, limit, concurrency int, fetch fetcher.Fetcher, scan scanFunc) error {
	if len(items) == 0 {
		zap.L().Info("batch: manifest is empty")
		return nil
	}

	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}

	zap.L().Info("batch: processing",
		zap.Int("items", len(items)),
		zap.Int("concurrency", concurrency),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	var succeeded, failed atomic.Int64

	for _, item := range items {
		item := item
		g.Go(func() error {
			log := zap.L().With(zap.String("source", item.Source))

			data, err := fetch.Fetch(gctx, item.Source)
			if err != nil {
				failed.Add(1)
				log.Error("batch: fetch failed", zap.Error(err))
				return nil
			}

			result, err := scan(gctx, pipeline.Input{Name: item.Name, Bytes: data})
			if err != nil {
				failed.Add(1)
				log.Error("batch: scan failed", zap.Error(err))
				return nil
			}

			succeeded.Add(1)
			log.Info("batch: scan complete",
				zap.String("scan_id", result.ID),
				zap.Int("items", len(result.Receipt.Items)),
				zap.Int("warnings", len(result.Receipt.Warnings)),
			)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return eris.Wrap(err, "batch processing")
	}

	zap.L().Info("batch: complete",
		zap.Int64("succeeded", succeeded.Load()),
		zap.Int64("failed", failed.Load()),
	)
	return nil
}
