// Package maintenance runs the scheduled pass over every owner: rescoring,
// duplicate sweep, staleness count, then company enrichment.
package maintenance

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"warmintro/backend/internal/dedup"
	"warmintro/backend/internal/enrich"
	"warmintro/backend/internal/graph"
	"warmintro/backend/internal/jobs"
	"warmintro/backend/internal/scoring"
	"warmintro/backend/pkg/logger"
)

// ErrAlreadyRunning is returned when a pass is requested while one is active.
var ErrAlreadyRunning = errors.New("maintenance pass already running")

// Owners lists every owner in the graph.
type Owners interface {
	ListOwners(ctx context.Context) ([]string, error)
}

// Scorer rescores owners and finds fading relationships.
type Scorer interface {
	ScoreAll(ctx context.Context, ownerID string) (*scoring.Summary, error)
	FindStale(ctx context.Context, ownerID string, opts scoring.StaleOptions) ([]graph.StaleRelationship, error)
}

// Sweeper merges stored duplicates.
type Sweeper interface {
	FindAndMergeDuplicates(ctx context.Context, ownerID string) (*dedup.SweepReport, error)
}

// Enricher fills in company details.
type Enricher interface {
	Run(ctx context.Context, limit int) (*enrich.Report, error)
}

// JobTracker records each owner's run.
type JobTracker interface {
	Create(ctx context.Context, ownerID, kind string) (*jobs.SyncJob, error)
	MarkRunning(ctx context.Context, id string) error
	Complete(ctx context.Context, id string, processed, failed int, detail string) error
	Fail(ctx context.Context, id string, cause error) error
}

// Deps are the collaborators of a Runner. Enricher and Jobs may be nil.
type Deps struct {
	Owners   Owners
	Scorer   Scorer
	Sweeper  Sweeper
	Enricher Enricher
	Jobs     JobTracker
}

// OwnerReport is the outcome for one owner.
type OwnerReport struct {
	OwnerID string `json:"owner_id"`
	Scored  int    `json:"scored"`
	Merged  int    `json:"merged"`
	Stale   int    `json:"stale"`
	Error   string `json:"error,omitempty"`
}

// Report is the outcome of a pass.
type Report struct {
	Owners    []OwnerReport  `json:"owners"`
	Succeeded int            `json:"succeeded"`
	Failed    int            `json:"failed"`
	Enriched  *enrich.Report `json:"enriched,omitempty"`
	Duration  time.Duration  `json:"duration"`
}

// Runner executes maintenance passes, one at a time.
type Runner struct {
	deps        Deps
	concurrency int
	enrichBatch int
	running     atomic.Bool
	logger      *zap.Logger
}

// NewRunner creates a runner that processes up to concurrency owners at once.
func NewRunner(deps Deps, concurrency int) *Runner {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Runner{
		deps:        deps,
		concurrency: concurrency,
		enrichBatch: enrich.DefaultBatch,
		logger:      logger.Named("maintenance"),
	}
}

// RunOnce performs a full pass. One owner failing does not stop the others.
func (r *Runner) RunOnce(ctx context.Context) (*Report, error) {
	if !r.running.CompareAndSwap(false, true) {
		runDuration.WithLabelValues("skipped").Observe(0)
		return nil, ErrAlreadyRunning
	}
	defer r.running.Store(false)

	start := time.Now()
	report, err := r.run(ctx)
	if err != nil {
		runDuration.WithLabelValues("error").Observe(time.Since(start).Seconds())
		r.logger.Error("Maintenance pass failed", zap.Error(err))
		return nil, err
	}
	report.Duration = time.Since(start)
	runDuration.WithLabelValues("ok").Observe(report.Duration.Seconds())
	lastSuccess.SetToCurrentTime()

	r.logger.Info("Maintenance pass completed",
		zap.Int("owners", len(report.Owners)),
		zap.Int("succeeded", report.Succeeded),
		zap.Int("failed", report.Failed),
		zap.Duration("duration", report.Duration),
	)
	return report, nil
}

func (r *Runner) run(ctx context.Context) (*Report, error) {
	owners, err := r.deps.Owners.ListOwners(ctx)
	if err != nil {
		return nil, err
	}

	report := &Report{Owners: make([]OwnerReport, len(owners))}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for i, ownerID := range owners {
		i, ownerID := i, ownerID
		g.Go(func() error {
			or := r.runOwner(gctx, ownerID)
			mu.Lock()
			report.Owners[i] = or
			if or.Error == "" {
				report.Succeeded++
			} else {
				report.Failed++
			}
			mu.Unlock()
			// Owner failures are recorded, never returned.
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if r.deps.Enricher != nil {
		enriched, err := r.deps.Enricher.Run(ctx, r.enrichBatch)
		if err != nil {
			r.logger.Error("Company enrichment failed", zap.Error(err))
		} else {
			report.Enriched = enriched
		}
	}
	return report, nil
}

func (r *Runner) runOwner(ctx context.Context, ownerID string) OwnerReport {
	out := OwnerReport{OwnerID: ownerID}
	jobID := r.startJob(ctx, ownerID)

	err := func() error {
		summary, err := r.deps.Scorer.ScoreAll(ctx, ownerID)
		if err != nil {
			return fmt.Errorf("rescore: %w", err)
		}
		out.Scored = summary.Scored

		sweep, err := r.deps.Sweeper.FindAndMergeDuplicates(ctx, ownerID)
		if err != nil {
			return fmt.Errorf("dedup sweep: %w", err)
		}
		out.Merged = sweep.Merged
		mergedPersons.Add(float64(sweep.Merged))

		stale, err := r.deps.Scorer.FindStale(ctx, ownerID, scoring.StaleOptions{})
		if err != nil {
			return fmt.Errorf("stale scan: %w", err)
		}
		out.Stale = len(stale)
		return nil
	}()

	if err != nil {
		out.Error = err.Error()
		ownerResults.WithLabelValues("error").Inc()
		r.logger.Error("Maintenance failed for owner",
			zap.String("owner_id", ownerID),
			zap.Error(err),
		)
		r.finishJob(ctx, jobID, out, err)
		return out
	}

	ownerResults.WithLabelValues("ok").Inc()
	r.finishJob(ctx, jobID, out, nil)
	return out
}

func (r *Runner) startJob(ctx context.Context, ownerID string) string {
	if r.deps.Jobs == nil {
		return ""
	}
	job, err := r.deps.Jobs.Create(ctx, ownerID, jobs.KindMaintenance)
	if err != nil {
		r.logger.Warn("Failed to record maintenance job", zap.String("owner_id", ownerID), zap.Error(err))
		return ""
	}
	if err := r.deps.Jobs.MarkRunning(ctx, job.ID); err != nil {
		r.logger.Warn("Failed to mark maintenance job running", zap.String("job_id", job.ID), zap.Error(err))
	}
	return job.ID
}

func (r *Runner) finishJob(ctx context.Context, jobID string, out OwnerReport, cause error) {
	if r.deps.Jobs == nil || jobID == "" {
		return
	}
	var err error
	if cause != nil {
		err = r.deps.Jobs.Fail(ctx, jobID, cause)
	} else {
		detail := fmt.Sprintf("%d scored, %d merged, %d stale", out.Scored, out.Merged, out.Stale)
		err = r.deps.Jobs.Complete(ctx, jobID, out.Scored, 0, detail)
	}
	if err != nil {
		r.logger.Warn("Failed to finish maintenance job", zap.String("job_id", jobID), zap.Error(err))
	}
}

// Start runs a pass every interval until ctx ends. The first pass starts
// after one interval.
func (r *Runner) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	r.logger.Info("Maintenance scheduler started", zap.Duration("interval", interval))
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("Maintenance scheduler stopped")
			return
		case <-ticker.C:
			if _, err := r.RunOnce(ctx); err != nil && !errors.Is(err, ErrAlreadyRunning) {
				r.logger.Warn("Scheduled maintenance pass failed", zap.Error(err))
			}
		}
	}
}
