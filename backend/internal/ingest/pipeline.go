// Package ingest loads a batch of contacts into an owner's graph:
// deduplicate, upsert, then rescore.
package ingest

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"warmintro/backend/internal/cache"
	"warmintro/backend/internal/contact"
	"warmintro/backend/internal/dedup"
	"warmintro/backend/internal/graph"
	"warmintro/backend/internal/jobs"
	"warmintro/backend/internal/scoring"
	apperrors "warmintro/backend/pkg/errors"
	"warmintro/backend/pkg/logger"
)

// Deduper resolves a raw batch into canonical contacts.
type Deduper interface {
	Deduplicate(ctx context.Context, contacts []contact.Contact, ownerID string) (*dedup.Result, error)
}

// Store writes contacts into the graph.
type Store interface {
	EnsureUser(ctx context.Context, ownerID string) error
	UpsertContact(ctx context.Context, ownerID string, c contact.Contact, sources []string) (*graph.UpsertResult, error)
}

// Scorer rescores an owner after new interactions land.
type Scorer interface {
	ScoreAll(ctx context.Context, ownerID string) (*scoring.Summary, error)
}

// JobTracker records the run. It is optional.
type JobTracker interface {
	Create(ctx context.Context, ownerID, kind string) (*jobs.SyncJob, error)
	MarkRunning(ctx context.Context, id string) error
	Complete(ctx context.Context, id string, processed, failed int, detail string) error
	Fail(ctx context.Context, id string, cause error) error
}

// Report is the outcome of one ingestion batch.
type Report struct {
	JobID          string        `json:"job_id,omitempty"`
	OwnerID        string        `json:"owner_id"`
	Received       int           `json:"received"`
	Unique         int           `json:"unique"`
	Dropped        int           `json:"dropped"`
	Inserted       int           `json:"inserted"`
	Updated        int           `json:"updated"`
	Failed         int           `json:"failed"`
	Scored         int           `json:"scored"`
	PartialFailure string        `json:"partial_failure,omitempty"`
	Duration       time.Duration `json:"duration"`
}

// Pipeline runs ingestion for one owner at a time.
type Pipeline struct {
	deduper Deduper
	store   Store
	scorer  Scorer
	jobs    JobTracker
	cache   cache.Cache
	logger  *zap.Logger
}

// NewPipeline wires the ingestion stages. jobs and c may be nil.
func NewPipeline(deduper Deduper, store Store, scorer Scorer, jobs JobTracker, c cache.Cache) *Pipeline {
	if c == nil {
		c = cache.Nop{}
	}
	return &Pipeline{
		deduper: deduper,
		store:   store,
		scorer:  scorer,
		jobs:    jobs,
		cache:   c,
		logger:  logger.Named("ingest"),
	}
}

// Run ingests contacts for ownerID. A contact that fails to upsert is logged
// and counted; the batch still succeeds. An unreachable store aborts.
func (p *Pipeline) Run(ctx context.Context, ownerID string, contacts []contact.Contact) (*Report, error) {
	if ownerID == "" {
		return nil, apperrors.NewValidation("ownerId", "is required")
	}

	start := time.Now()
	report := &Report{OwnerID: ownerID, Received: len(contacts)}
	jobID := p.startJob(ctx, ownerID)
	report.JobID = jobID

	if err := p.run(ctx, ownerID, contacts, report); err != nil {
		p.failJob(ctx, jobID, err)
		return nil, err
	}
	report.Duration = time.Since(start)

	if report.Failed > 0 {
		report.PartialFailure = apperrors.NewPartialFailure("ingest", report.Failed, report.Unique).Error()
	}
	p.completeJob(ctx, jobID, report)

	if err := p.cache.Delete(ctx, cache.StatsKey(ownerID)); err != nil {
		p.logger.Warn("Failed to invalidate stats cache", zap.String("owner_id", ownerID), zap.Error(err))
	}

	p.logger.Info("Ingestion completed",
		zap.String("owner_id", ownerID),
		zap.Int("received", report.Received),
		zap.Int("unique", report.Unique),
		zap.Int("dropped", report.Dropped),
		zap.Int("inserted", report.Inserted),
		zap.Int("updated", report.Updated),
		zap.Int("failed", report.Failed),
		zap.Int("scored", report.Scored),
		zap.Duration("duration", report.Duration),
	)
	return report, nil
}

func (p *Pipeline) run(ctx context.Context, ownerID string, contacts []contact.Contact, report *Report) error {
	if err := p.store.EnsureUser(ctx, ownerID); err != nil {
		return err
	}

	resolved, err := p.deduper.Deduplicate(ctx, contacts, ownerID)
	if err != nil {
		return err
	}
	report.Unique = len(resolved.Contacts)
	report.Dropped = resolved.Dropped
	report.Failed = resolved.Failed

	for _, rc := range resolved.Contacts {
		if err := ctx.Err(); err != nil {
			return apperrors.NewContextCancelled("ingest", err)
		}

		res, err := p.store.UpsertContact(ctx, ownerID, rc.Contact, rc.Sources)
		if err != nil {
			if apperrors.IsRetryable(err) {
				return err
			}
			report.Failed++
			p.logger.Warn("Failed to upsert contact",
				zap.String("owner_id", ownerID),
				zap.String("email", rc.Contact.Email),
				zap.Error(err),
			)
			continue
		}
		if res.Created {
			report.Inserted++
		} else {
			report.Updated++
		}
	}

	if p.scorer != nil && report.Inserted+report.Updated > 0 {
		summary, err := p.scorer.ScoreAll(ctx, ownerID)
		if err != nil {
			// Scores catch up on the next maintenance pass.
			p.logger.Warn("Rescoring after ingestion failed",
				zap.String("owner_id", ownerID),
				zap.Error(err),
			)
		} else {
			report.Scored = summary.Scored
		}
	}
	return nil
}

func (p *Pipeline) startJob(ctx context.Context, ownerID string) string {
	if p.jobs == nil {
		return ""
	}
	job, err := p.jobs.Create(ctx, ownerID, jobs.KindIngest)
	if err != nil {
		p.logger.Warn("Failed to record ingest job", zap.Error(err))
		return ""
	}
	if err := p.jobs.MarkRunning(ctx, job.ID); err != nil {
		p.logger.Warn("Failed to mark ingest job running", zap.String("job_id", job.ID), zap.Error(err))
	}
	return job.ID
}

func (p *Pipeline) completeJob(ctx context.Context, jobID string, report *Report) {
	if p.jobs == nil || jobID == "" {
		return
	}
	detail := fmt.Sprintf("%d inserted, %d updated, %d dropped", report.Inserted, report.Updated, report.Dropped)
	if err := p.jobs.Complete(ctx, jobID, report.Inserted+report.Updated, report.Failed, detail); err != nil {
		p.logger.Warn("Failed to complete ingest job", zap.String("job_id", jobID), zap.Error(err))
	}
}

func (p *Pipeline) failJob(ctx context.Context, jobID string, cause error) {
	if p.jobs == nil || jobID == "" {
		return
	}
	if err := p.jobs.Fail(ctx, jobID, cause); err != nil {
		p.logger.Warn("Failed to record ingest job failure", zap.String("job_id", jobID), zap.Error(err))
	}
}
