// Package pipeline runs one receipt scan end to end: prepare the image,
// upload it to the blobstore, drive the analysis job to a terminal state,
// interpret the payload into a receipt, validate it, and optionally persist
// the result. Scans are independent; any number may run concurrently.
package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/tabsplit/receipt-scan/internal/analysis"
	"github.com/tabsplit/receipt-scan/internal/config"
	"github.com/tabsplit/receipt-scan/internal/extract"
	"github.com/tabsplit/receipt-scan/internal/imageprep"
	"github.com/tabsplit/receipt-scan/internal/model"
	"github.com/tabsplit/receipt-scan/internal/resilience"
	"github.com/tabsplit/receipt-scan/internal/store"
	"github.com/tabsplit/receipt-scan/internal/validate"
	"github.com/tabsplit/receipt-scan/pkg/blobstore"
	"github.com/tabsplit/receipt-scan/pkg/docanalysis"
)

// Runner drives one analysis job to a terminal state.
// *analysis.Orchestrator is the production implementation.
type Runner interface {
	Run(ctx context.Context, loc blobstore.Location) (*model.AnalysisJob, *docanalysis.AnalysisStatus, error)
}

// Input is one receipt image to scan. ID may be pre-assigned when the
// caller hands the scan ID out before processing starts (the upload server
// does); empty means generate one.
type Input struct {
	ID    string
	Name  string
	Bytes []byte
}

// Pipeline wires the scan phases together.
type Pipeline struct {
	cfg       *config.Config
	preparer  *imageprep.Preparer
	blob      blobstore.Store
	runner    Runner
	extractor *extract.Extractor
	validator *validate.Validator
	store     store.Store
	breakers  *resilience.ServiceBreakers
}

// New creates a Pipeline. st may be nil, in which case results are not
// persisted. Fails only when the extract config is unusable (bad labels
// file).
func New(cfg *config.Config, blob blobstore.Store, runner Runner, st store.Store) (*Pipeline, error) {
	extractor, err := extract.New(extract.Config{
		LabelsFile:       cfg.Extract.LabelsFile,
		FuzzyMaxDistance: cfg.Extract.FuzzyMaxDistance,
	})
	if err != nil {
		return nil, err
	}

	cbCfg := resilience.FromCircuitConfig(cfg.Analysis.BreakerThreshold, cfg.Analysis.BreakerResetSecs)
	cbCfg.ShouldTrip = shouldTrip

	return &Pipeline{
		cfg: cfg,
		preparer: imageprep.New(imageprep.Config{
			MinBytes:    cfg.Image.MinBytes,
			MaxBytes:    cfg.Image.MaxBytes,
			JPEGQuality: cfg.Image.JPEGQuality,
		}),
		blob:      blob,
		runner:    runner,
		extractor: extractor,
		validator: validate.New(validate.Config{Tolerance: cfg.Validation.Tolerance}),
		store:     st,
		breakers:  resilience.NewServiceBreakers(cbCfg),
	}, nil
}

// Breakers exposes the per-service circuit breakers, which the serve
// health endpoint reports.
func (p *Pipeline) Breakers() *resilience.ServiceBreakers {
	return p.breakers
}

// shouldTrip counts failures that look like a struggling service: transient
// transport faults, exhausted submissions, blown budgets. Definitive
// verdicts (a rejected document, a failed analysis) say nothing about
// service health and leave the breaker alone.
func shouldTrip(err error) bool {
	return resilience.IsTransient(err) ||
		errors.Is(err, analysis.ErrSubmission) ||
		errors.Is(err, analysis.ErrTimeout)
}

// Process scans one receipt image. The returned ScanResult is populated win
// or lose: on failure it carries the failed phase, the error, and whatever
// the job recorded before dying. The error reports the terminal failure
// kind; both are also persisted when a store is wired.
func (p *Pipeline) Process(ctx context.Context, in Input) (*model.ScanResult, error) {
	log := zap.L().With(zap.String("source", in.Name))
	log.Info("pipeline: scan starting", zap.Int("bytes", len(in.Bytes)))

	id := in.ID
	if id == "" {
		id = uuid.NewString()
	}
	result := &model.ScanResult{
		ID:        id,
		Source:    in.Name,
		Status:    model.ScanStatusPending,
		CreatedAt: time.Now().UTC(),
	}

	trackPhase := func(name string, fn func() error) error {
		start := time.Now()
		fnErr := fn()
		duration := time.Since(start).Milliseconds()

		pr := model.PhaseResult{Name: name, Status: model.PhaseStatusComplete, Duration: duration}
		if fnErr != nil {
			pr.Status = model.PhaseStatusFailed
			pr.Error = fnErr.Error()
			log.Error("pipeline: phase failed",
				zap.String("phase", name),
				zap.Int64("duration_ms", duration),
				zap.Error(fnErr),
			)
		} else {
			log.Info("pipeline: phase complete",
				zap.String("phase", name),
				zap.Int64("duration_ms", duration),
			)
		}
		result.Phases = append(result.Phases, pr)
		return fnErr
	}

	fail := func(err error) (*model.ScanResult, error) {
		result.Status = model.ScanStatusFailed
		result.Error = err.Error()
		p.persist(ctx, result, log)
		return result, err
	}

	var prepared []byte
	if err := trackPhase("prepare", func() error {
		var err error
		prepared, err = p.preparer.Prepare(in.Bytes)
		return err
	}); err != nil {
		return fail(err)
	}

	uploadRetry := resilience.DefaultRetryConfig()
	uploadRetry.OnRetry = resilience.RetryLogger("blobstore", "put")

	var loc blobstore.Location
	if err := trackPhase("upload", func() error {
		return p.breakers.Get("blobstore").Execute(ctx, func(ctx context.Context) error {
			return resilience.Do(ctx, uploadRetry, func(ctx context.Context) error {
				var err error
				loc, err = p.blob.Put(ctx, p.objectKey(result.ID), prepared, p.preparer.ContentType())
				if err != nil {
					return err
				}
				// Head the object back; the analysis service reads from this
				// location and a silently dropped upload would burn the whole
				// job budget discovering it.
				ok, err := p.blob.Exists(ctx, loc)
				if err != nil {
					return err
				}
				if !ok {
					return eris.Errorf("uploaded object %s not visible", loc)
				}
				return nil
			})
		})
	}); err != nil {
		return fail(eris.Wrapf(analysis.ErrSubmission, "pipeline: upload: %v", err))
	}
	result.Location = loc.String()

	var status *docanalysis.AnalysisStatus
	if err := trackPhase("analyze", func() error {
		return p.breakers.Get("docanalysis").Execute(ctx, func(ctx context.Context) error {
			job, st, err := p.runner.Run(ctx, loc)
			result.Job = job
			status = st
			return err
		})
	}); err != nil {
		return fail(err)
	}

	var receipt *model.Receipt
	_ = trackPhase("extract", func() error {
		receipt = p.extractor.Extract(status.Blocks)
		return nil
	})
	_ = trackPhase("validate", func() error {
		result.Receipt = p.validator.Check(receipt)
		return nil
	})

	result.Status = model.ScanStatusComplete
	result.RawBlocks = status.Blocks

	p.persist(ctx, result, log)

	log.Info("pipeline: scan complete",
		zap.String("scan_id", result.ID),
		zap.Int("items", len(result.Receipt.Items)),
		zap.Int("warnings", len(result.Receipt.Warnings)),
	)
	return result, nil
}

func (p *Pipeline) objectKey(scanID string) string {
	return p.cfg.Blobstore.KeyPrefix + scanID + ".jpg"
}

// persist saves the scan when a store is wired. Persistence failures are
// logged, not fatal: the caller still gets the in-memory result. The save
// survives a cancelled scan context so failed runs leave an audit trail.
func (p *Pipeline) persist(ctx context.Context, result *model.ScanResult, log *zap.Logger) {
	if p.store == nil {
		return
	}
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := p.store.SaveScan(saveCtx, result); err != nil {
		log.Warn("pipeline: persist failed", zap.String("scan_id", result.ID), zap.Error(err))
	}
}
