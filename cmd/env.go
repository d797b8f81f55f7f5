package main

import (
	"context"
	"net/http"
	"time"

	"github.com/rotisserie/eris"

	"github.com/tabsplit/receipt-scan/internal/analysis"
	"github.com/tabsplit/receipt-scan/internal/pipeline"
	"github.com/tabsplit/receipt-scan/internal/store"
	"github.com/tabsplit/receipt-scan/pkg/blobstore"
	"github.com/tabsplit/receipt-scan/pkg/docanalysis"
)

// scanEnv holds the initialized collaborators shared by the scan, batch,
// and serve commands.
type scanEnv struct {
	Store    store.Store // nil when the command runs without persistence
	Pipeline *pipeline.Pipeline
}

// Close releases resources held by the environment.
func (e *scanEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initStore opens the configured scan store and applies migrations.
func initStore(ctx context.Context) (store.Store, error) {
	dsn := cfg.Store.DatabaseURL
	if dsn == "" && (cfg.Store.Driver == "sqlite" || cfg.Store.Driver == "") {
		dsn = "receipts.db"
	}
	st, err := store.Open(ctx, cfg.Store.Driver, dsn)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

// initScanEnv validates the config for the given mode, optionally opens the
// store, and builds the scan pipeline. Callers should defer env.Close().
func initScanEnv(ctx context.Context, mode string, withStore bool) (*scanEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	var st store.Store
	if withStore {
		var err error
		st, err = initStore(ctx)
		if err != nil {
			return nil, err
		}
	}

	blobOpts := []blobstore.Option{
		blobstore.WithHTTPClient(&http.Client{Timeout: time.Duration(cfg.Blobstore.TimeoutSecs) * time.Second}),
	}
	if cfg.Blobstore.AccessToken != "" {
		blobOpts = append(blobOpts, blobstore.WithAccessToken(cfg.Blobstore.AccessToken))
	}
	blob := blobstore.NewHTTPStore(cfg.Blobstore.BaseURL, cfg.Blobstore.Bucket, blobOpts...)

	analysisClient := docanalysis.NewClient(cfg.Analysis.Key,
		docanalysis.WithBaseURL(cfg.Analysis.BaseURL),
		docanalysis.WithRateLimit(cfg.Analysis.RatePerSec, cfg.Analysis.RateBurst),
	)

	orch := analysis.NewOrchestrator(analysisClient, analysis.Config{
		PollInterval:      time.Duration(cfg.Analysis.PollIntervalSecs) * time.Second,
		Budget:            time.Duration(cfg.Analysis.BudgetSecs) * time.Second,
		SubmitMaxAttempts: cfg.Analysis.SubmitMaxAttempts,
		SubmitBackoff:     time.Duration(cfg.Analysis.SubmitBackoffMs) * time.Millisecond,
		MaxPollErrors:     cfg.Analysis.MaxPollErrors,
		JobTag:            cfg.Analysis.JobTag,
	})

	p, err := pipeline.New(cfg, blob, orch, st)
	if err != nil {
		if st != nil {
			_ = st.Close()
		}
		return nil, err
	}

	return &scanEnv{Store: st, Pipeline: p}, nil
}
