package scoring

import (
	"context"
	"time"

	"go.uber.org/zap"

	"warmintro/backend/internal/graph"
	apperrors "warmintro/backend/pkg/errors"
	"warmintro/backend/pkg/logger"
)

// Staleness defaults.
const (
	DefaultStaleDays = 90
	DefaultMaxScore  = 30.0
	DefaultLimit     = 50
)

// Store is the subset of the graph adapter the engine needs.
type Store interface {
	ListOwners(ctx context.Context) ([]string, error)
	ListKnows(ctx context.Context, ownerID string) ([]graph.KnowsEdge, error)
	GetKnows(ctx context.Context, ownerID, email string) (*graph.KnowsEdge, error)
	UpdateStrength(ctx context.Context, ownerID, personID string, strength float64, breakdown graph.ScoreBreakdown) error
	FindStale(ctx context.Context, ownerID string, cutoff time.Time, maxScore float64, limit int) ([]graph.StaleRelationship, error)
}

// Summary is the outcome of rescoring one owner.
type Summary struct {
	OwnerID      string  `json:"owner_id"`
	Scored       int     `json:"scored"`
	Failed       int     `json:"failed"`
	AverageScore float64 `json:"average_score"`
}

// StaleOptions narrows a staleness query. Zero values take the defaults.
type StaleOptions struct {
	StaleDays int
	MaxScore  *float64
	Limit     int
}

// Engine rescores KNOWS edges from their raw counters.
type Engine struct {
	store  Store
	now    func() time.Time
	logger *zap.Logger
}

// NewEngine creates a scoring engine.
func NewEngine(store Store) *Engine {
	return &Engine{
		store:  store,
		now:    time.Now,
		logger: logger.Named("scoring"),
	}
}

// ScoreAll recomputes every KNOWS edge of an owner from scratch. Running it
// repeatedly without new interactions leaves scores unchanged. An edge that
// fails to save is logged and skipped; a store outage aborts.
func (e *Engine) ScoreAll(ctx context.Context, ownerID string) (*Summary, error) {
	edges, err := e.store.ListKnows(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	now := e.now()
	summary := &Summary{OwnerID: ownerID}
	var total float64

	for _, edge := range edges {
		if err := ctx.Err(); err != nil {
			return nil, apperrors.NewContextCancelled("score all", err)
		}

		res := Compute(SignalsFromEdge(edge), now)
		if err := e.store.UpdateStrength(ctx, ownerID, edge.PersonID, res.Score, res.Breakdown); err != nil {
			if apperrors.IsRetryable(err) {
				return nil, err
			}
			summary.Failed++
			e.logger.Warn("Failed to store score",
				zap.String("owner_id", ownerID),
				zap.String("person_id", edge.PersonID),
				zap.Error(err),
			)
			continue
		}
		summary.Scored++
		total += res.Score
	}

	if summary.Scored > 0 {
		summary.AverageScore = round2(total / float64(summary.Scored))
	}

	e.logger.Info("Owner rescored",
		zap.String("owner_id", ownerID),
		zap.Int("scored", summary.Scored),
		zap.Int("failed", summary.Failed),
		zap.Float64("average_score", summary.AverageScore),
	)
	return summary, nil
}

// ScoreOne rescores the owner's edge to email. It returns nil when the owner
// does not know that person.
func (e *Engine) ScoreOne(ctx context.Context, ownerID, email string) (*Result, error) {
	edge, err := e.store.GetKnows(ctx, ownerID, email)
	if err != nil {
		return nil, err
	}
	if edge == nil {
		return nil, nil
	}

	res := Compute(SignalsFromEdge(*edge), e.now())
	if err := e.store.UpdateStrength(ctx, ownerID, edge.PersonID, res.Score, res.Breakdown); err != nil {
		return nil, err
	}
	return &res, nil
}

// ScoreOwners rescores each owner in turn, or every owner when none are
// given. A failing owner is logged and does not stop the others.
func (e *Engine) ScoreOwners(ctx context.Context, owners []string) ([]Summary, error) {
	if len(owners) == 0 {
		var err error
		if owners, err = e.store.ListOwners(ctx); err != nil {
			return nil, err
		}
	}

	summaries := make([]Summary, 0, len(owners))
	for _, ownerID := range owners {
		if err := ctx.Err(); err != nil {
			return summaries, apperrors.NewContextCancelled("score owners", err)
		}
		s, err := e.ScoreAll(ctx, ownerID)
		if err != nil {
			e.logger.Error("Failed to rescore owner",
				zap.String("owner_id", ownerID),
				zap.Error(err),
			)
			continue
		}
		summaries = append(summaries, *s)
	}
	return summaries, nil
}

// FindStale lists fading relationships, weakest first. It never writes.
func (e *Engine) FindStale(ctx context.Context, ownerID string, opts StaleOptions) ([]graph.StaleRelationship, error) {
	days := opts.StaleDays
	if days <= 0 {
		days = DefaultStaleDays
	}
	maxScore := DefaultMaxScore
	if opts.MaxScore != nil {
		maxScore = *opts.MaxScore
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}

	cutoff := e.now().AddDate(0, 0, -days)
	return e.store.FindStale(ctx, ownerID, cutoff, maxScore, limit)
}
