// Package search runs the read path: parse, compile, execute, summarise.
package search

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"warmintro/backend/internal/cache"
	"warmintro/backend/internal/graph"
	"warmintro/backend/internal/plan"
	"warmintro/backend/internal/query"
	"warmintro/backend/internal/traversal"
	apperrors "warmintro/backend/pkg/errors"
	"warmintro/backend/pkg/logger"
)

// BroadenSuggestion accompanies an empty result.
const BroadenSuggestion = "Try broadening your search: remove a filter, use a shorter company or role name, or include friends of friends."

// Store is the graph access the read path needs.
type Store interface {
	ExecutePlan(ctx context.Context, p *plan.Plan) (*graph.PlanResult, error)
	FindPersonByName(ctx context.Context, ownerID, name string) (*graph.Person, error)
}

// PathFinder finds introduction paths.
type PathFinder interface {
	FindIntroPath(ctx context.Context, ownerID, targetID string) (*traversal.Path, error)
}

// Result is the answer to one search. Exactly one of People, Companies or
// Path is populated.
type Result struct {
	Query      string                `json:"query"`
	Intent     *query.SearchIntent   `json:"intent"`
	People     []graph.PersonResult  `json:"people,omitempty"`
	Companies  []graph.CompanyResult `json:"companies,omitempty"`
	Path       *traversal.Path       `json:"path,omitempty"`
	Target     *graph.Person         `json:"target,omitempty"`
	Total      int                   `json:"total"`
	Summary    string                `json:"summary"`
	Suggestion string                `json:"suggestion,omitempty"`
}

// Service orchestrates a search.
type Service struct {
	parser     query.Parser
	store      Store
	paths      PathFinder
	summarizer *Summarizer
	cache      cache.Cache
	intentTTL  time.Duration
	logger     *zap.Logger
}

// NewService wires the read path. A nil cache disables caching and a nil
// summarizer uses the template summary.
func NewService(parser query.Parser, store Store, paths PathFinder, summarizer *Summarizer, c cache.Cache, intentTTL time.Duration) *Service {
	if c == nil {
		c = cache.Nop{}
	}
	if summarizer == nil {
		summarizer = NewSummarizer(nil)
	}
	return &Service{
		parser:     parser,
		store:      store,
		paths:      paths,
		summarizer: summarizer,
		cache:      c,
		intentTTL:  intentTTL,
		logger:     logger.Named("search"),
	}
}

// Search answers a natural-language question for ownerID. Zero matches is a
// normal result carrying a suggestion.
func (s *Service) Search(ctx context.Context, ownerID, text string) (*Result, error) {
	start := time.Now()
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, apperrors.NewValidation("query", "is required")
	}
	if strings.TrimSpace(ownerID) == "" {
		return nil, apperrors.NewValidation("ownerId", "is required")
	}

	intent, err := s.parse(ctx, text)
	if err != nil {
		searchLatency.WithLabelValues("unknown", "error").Observe(time.Since(start).Seconds())
		return nil, err
	}

	res, err := s.execute(ctx, ownerID, intent)
	if err != nil {
		searchLatency.WithLabelValues(string(intent.QueryType), "error").Observe(time.Since(start).Seconds())
		return nil, err
	}
	res.Query = text

	status := "ok"
	if res.Total == 0 {
		status = "empty"
		res.Suggestion = BroadenSuggestion
	}
	res.Summary = s.summarizer.Summarize(ctx, text, res)
	searchLatency.WithLabelValues(string(intent.QueryType), status).Observe(time.Since(start).Seconds())

	s.logger.Info("Search completed",
		zap.String("owner_id", ownerID),
		zap.String("query_type", string(intent.QueryType)),
		zap.String("parsed_by", intent.ParsedBy),
		zap.Int("total", res.Total),
		zap.Duration("duration", time.Since(start)),
	)
	return res, nil
}

// parse consults the intent cache before the parser. Cache failures only
// cost a parse.
func (s *Service) parse(ctx context.Context, text string) (*query.SearchIntent, error) {
	key := cache.IntentKey(strings.ToLower(text))

	var cached query.SearchIntent
	found, err := s.cache.Get(ctx, key, &cached)
	if err != nil {
		s.logger.Warn("Intent cache read failed", zap.Error(err))
	}
	if found && cached.QueryType.Valid() {
		intentSources.WithLabelValues("cache").Inc()
		cached.NaturalLanguage = text
		return &cached, nil
	}

	intent, err := s.parser.Parse(ctx, text)
	if err != nil {
		return nil, err
	}
	intentSources.WithLabelValues(intent.ParsedBy).Inc()

	// Only model answers are worth caching; rules are cheap to rerun.
	if intent.ParsedBy != "rules" {
		if err := s.cache.Set(ctx, key, intent, s.intentTTL); err != nil {
			s.logger.Warn("Intent cache write failed", zap.Error(err))
		}
	}
	return intent, nil
}

func (s *Service) execute(ctx context.Context, ownerID string, intent *query.SearchIntent) (*Result, error) {
	p, err := query.Compile(intent, ownerID)
	if err != nil {
		return nil, err
	}
	res := &Result{Intent: intent}

	if p.Kind == plan.KindIntroPath {
		target, err := s.store.FindPersonByName(ctx, ownerID, p.TargetName)
		if err != nil {
			return nil, err
		}
		if target == nil {
			return res, nil
		}
		res.Target = target
		path, err := s.paths.FindIntroPath(ctx, ownerID, target.ID)
		if err != nil {
			return nil, err
		}
		if path != nil {
			res.Path = path
			res.Total = 1
		}
		return res, nil
	}

	found, err := s.store.ExecutePlan(ctx, p)
	if err != nil {
		return nil, err
	}
	res.People = found.People
	res.Companies = found.Companies
	res.Total = found.Total()
	return res, nil
}
