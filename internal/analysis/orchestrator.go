// Package analysis drives a document-analysis job from submission to a
// terminal state. One Run call owns one job exclusively: submit with bounded
// retry, then poll at a fixed cadence until the remote verdict arrives, the
// time budget runs out, or the caller cancels. Runs share nothing, so any
// number of receipts can be orchestrated concurrently.
package analysis

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/tabsplit/receipt-scan/internal/model"
	"github.com/tabsplit/receipt-scan/internal/resilience"
	"github.com/tabsplit/receipt-scan/pkg/blobstore"
	"github.com/tabsplit/receipt-scan/pkg/docanalysis"
)

// Terminal failure kinds. Callers branch on these with errors.Is to decide
// whether resubmitting the same image makes sense.
var (
	// ErrSubmission covers transport and API failures while starting the job
	// or while polling a dead endpoint. The remote job may never have
	// existed; resubmission is safe.
	ErrSubmission = eris.New("submission failed")

	// ErrAnalysisFailed means the service definitively rejected the job. The
	// remote status message rides along verbatim. Resubmitting the same
	// image will fail again.
	ErrAnalysisFailed = eris.New("remote analysis failed")

	// ErrTimeout means the local budget ran out first. The remote job may
	// still finish later; this orchestrator has abandoned it.
	ErrTimeout = eris.New("analysis budget exceeded")
)

// Config bounds one orchestration run.
type Config struct {
	// PollInterval is the fixed wait between status polls.
	PollInterval time.Duration

	// Budget caps the whole run. Applied as a context deadline only when the
	// caller's context carries none.
	Budget time.Duration

	// SubmitMaxAttempts and SubmitBackoff bound submission retries.
	SubmitMaxAttempts int
	SubmitBackoff     time.Duration

	// MaxPollErrors aborts the run after this many consecutive transient
	// poll failures. A successful poll resets the count.
	MaxPollErrors int

	// JobTag labels submitted jobs on the service side.
	JobTag string
}

// DefaultConfig matches the service's operating envelope: analyses complete
// in tens of seconds, so 5s polls against a 5m budget.
func DefaultConfig() Config {
	return Config{
		PollInterval:      5 * time.Second,
		Budget:            5 * time.Minute,
		SubmitMaxAttempts: 3,
		SubmitBackoff:     500 * time.Millisecond,
		MaxPollErrors:     3,
		JobTag:            "ReceiptAnalysis",
	}
}

// Orchestrator runs analysis jobs against one client. Safe for concurrent
// use.
type Orchestrator struct {
	client docanalysis.Client
	cfg    Config
}

// NewOrchestrator builds an Orchestrator. Zero config fields fall back to
// defaults.
func NewOrchestrator(client docanalysis.Client, cfg Config) *Orchestrator {
	def := DefaultConfig()
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	if cfg.Budget <= 0 {
		cfg.Budget = def.Budget
	}
	if cfg.SubmitMaxAttempts <= 0 {
		cfg.SubmitMaxAttempts = def.SubmitMaxAttempts
	}
	if cfg.SubmitBackoff <= 0 {
		cfg.SubmitBackoff = def.SubmitBackoff
	}
	if cfg.MaxPollErrors <= 0 {
		cfg.MaxPollErrors = def.MaxPollErrors
	}
	if cfg.JobTag == "" {
		cfg.JobTag = def.JobTag
	}
	return &Orchestrator{client: client, cfg: cfg}
}

// Run drives one job from submission to a terminal state. The returned
// AnalysisJob is the audit record and is populated win or lose; the
// AnalysisStatus is non-nil only on success. A SUCCEEDED job with an empty
// payload is still a success: judging payload content is the extractor's
// job, not the orchestrator's.
func (o *Orchestrator) Run(ctx context.Context, loc blobstore.Location) (*model.AnalysisJob, *docanalysis.AnalysisStatus, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.cfg.Budget)
		defer cancel()
	}

	job := &model.AnalysisJob{
		ID:             uuid.NewString(),
		SourceLocation: loc.String(),
		Status:         model.JobStatusCreated,
	}

	if err := o.submit(ctx, job, loc); err != nil {
		return job, nil, err
	}

	status, err := o.poll(ctx, job)
	if err != nil {
		return job, nil, err
	}
	return job, status, nil
}

func (o *Orchestrator) submit(ctx context.Context, job *model.AnalysisJob, loc blobstore.Location) error {
	req := docanalysis.StartAnalysisRequest{
		Document: docanalysis.DocumentLocation{Bucket: loc.Bucket, Key: loc.Key},
		Features: docanalysis.FeatureSet{Forms: true, Tables: true},
		// The local job ID doubles as the idempotency token, so a retried
		// submit cannot start two remote jobs.
		ClientRequestToken: job.ID,
		JobTag:             o.cfg.JobTag,
	}

	rc := resilience.RetryConfig{
		MaxAttempts:    o.cfg.SubmitMaxAttempts,
		InitialBackoff: o.cfg.SubmitBackoff,
		ShouldRetry:    isTransportError,
		OnRetry:        resilience.RetryLogger("docanalysis", "start_analysis"),
	}
	resp, err := resilience.DoVal(ctx, rc, func(ctx context.Context) (*docanalysis.StartAnalysisResponse, error) {
		job.SubmitAttempts++
		return o.client.StartAnalysis(ctx, req)
	})
	if err != nil {
		job.Status = model.JobStatusFailed
		job.LastError = err.Error()
		return eris.Wrapf(ErrSubmission, "analysis: start after %d attempts: %v", job.SubmitAttempts, err)
	}

	now := time.Now().UTC()
	job.RemoteID = resp.JobID
	job.SubmittedAt = &now
	job.Status = model.JobStatusSubmitted

	zap.L().Info("analysis: job submitted",
		zap.String("job_id", job.ID),
		zap.String("remote_id", job.RemoteID),
		zap.String("source", job.SourceLocation),
		zap.Int("attempts", job.SubmitAttempts),
	)
	return nil
}

// poll waits one interval, asks for status, and repeats until a terminal
// answer. Polls for one job are strictly sequential; there is never more
// than one in flight.
func (o *Orchestrator) poll(ctx context.Context, job *model.AnalysisJob) (*docanalysis.AnalysisStatus, error) {
	job.Status = model.JobStatusPolling
	start := time.Now()
	consecutive := 0

	for {
		select {
		case <-ctx.Done():
			return nil, o.abandon(job, ctx.Err())
		case <-time.After(o.cfg.PollInterval):
		}

		job.PollAttempts++
		status, err := o.client.GetAnalysis(ctx, job.RemoteID)
		if err != nil {
			if ctx.Err() != nil {
				return nil, o.abandon(job, ctx.Err())
			}
			if !isTransportError(err) {
				job.Status = model.JobStatusFailed
				job.LastError = err.Error()
				return nil, eris.Wrapf(ErrSubmission, "analysis: poll rejected: %v", err)
			}
			consecutive++
			zap.L().Warn("analysis: transient poll error",
				zap.String("remote_id", job.RemoteID),
				zap.Int("consecutive", consecutive),
				zap.Error(err),
			)
			if consecutive >= o.cfg.MaxPollErrors {
				job.Status = model.JobStatusFailed
				job.LastError = err.Error()
				return nil, eris.Wrapf(ErrSubmission, "analysis: %d consecutive poll failures: %v", consecutive, err)
			}
			continue
		}
		consecutive = 0

		if !status.Status.Terminal() {
			continue
		}

		now := time.Now().UTC()
		job.CompletedAt = &now

		if status.Status == docanalysis.JobStatusFailed {
			job.Status = model.JobStatusFailed
			job.LastError = status.StatusMessage
			return nil, eris.Wrapf(ErrAnalysisFailed, "analysis: %s", status.StatusMessage)
		}

		// PARTIAL_SUCCESS still carries usable blocks; extraction works
		// with whatever came back.
		if status.Status == docanalysis.JobStatusPartialSuccess {
			zap.L().Warn("analysis: partial success",
				zap.String("remote_id", job.RemoteID),
				zap.String("message", status.StatusMessage),
			)
		}
		job.Status = model.JobStatusSucceeded

		zap.L().Info("analysis: job complete",
			zap.String("job_id", job.ID),
			zap.String("remote_id", job.RemoteID),
			zap.Int("polls", job.PollAttempts),
			zap.Int("blocks", len(status.Blocks)),
			zap.Duration("elapsed", time.Since(start)),
		)
		return status, nil
	}
}

// abandon maps a context failure to the job's terminal state. A deadline is
// the budget running out; anything else is the caller cancelling. Either
// way the remote job is left alone, the service has no cancel contract.
func (o *Orchestrator) abandon(job *model.AnalysisJob, ctxErr error) error {
	now := time.Now().UTC()
	job.CompletedAt = &now
	job.LastError = ctxErr.Error()

	if errors.Is(ctxErr, context.DeadlineExceeded) {
		job.Status = model.JobStatusTimedOut
		zap.L().Warn("analysis: job abandoned on budget",
			zap.String("job_id", job.ID),
			zap.String("remote_id", job.RemoteID),
			zap.Int("polls", job.PollAttempts),
		)
		return eris.Wrapf(ErrTimeout, "analysis: remote job %s unresolved after %d polls", job.RemoteID, job.PollAttempts)
	}

	job.Status = model.JobStatusFailed
	return eris.Wrap(ctxErr, "analysis: canceled while polling")
}

// isTransportError separates "the service is unreachable or struggling"
// from definitive API answers. Only the former is worth retrying.
func isTransportError(err error) bool {
	var apiErr *docanalysis.APIError
	if errors.As(err, &apiErr) {
		return resilience.IsTransientHTTPStatus(apiErr.StatusCode)
	}
	return resilience.IsTransient(err)
}
