// Package services builds the engine's components from configuration and
// owns the lifecycle of its background work.
package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	"warmintro/backend/internal/adapter"
	"warmintro/backend/internal/cache"
	"warmintro/backend/internal/contact"
	"warmintro/backend/internal/dedup"
	"warmintro/backend/internal/enrich"
	"warmintro/backend/internal/graph"
	"warmintro/backend/internal/ingest"
	"warmintro/backend/internal/jobs"
	"warmintro/backend/internal/maintenance"
	"warmintro/backend/internal/query"
	"warmintro/backend/internal/scoring"
	"warmintro/backend/internal/search"
	"warmintro/backend/internal/traversal"
	"warmintro/backend/pkg/config"
	"warmintro/backend/pkg/logger"
)

// ServiceManager holds every wired component and the scheduler goroutine.
type ServiceManager struct {
	Config      *config.Config
	Graph       *graph.Repository
	Cache       cache.Cache
	Jobs        *jobs.Store
	Dedup       *dedup.Engine
	Scoring     *scoring.Engine
	Traversal   *traversal.Engine
	Search      *search.Service
	Ingest      *ingest.Pipeline
	Enricher    *enrich.Enricher
	Maintenance *maintenance.Runner

	logger         *zap.Logger
	mu             sync.Mutex
	wg             sync.WaitGroup
	schedulerStop  context.CancelFunc
	closeCache     func() error
	closeJobs      func() error
	closeGraphOnce sync.Once
}

// New connects to Neo4j, Redis and the job store and wires the engines.
// Redis is skipped when no address is configured.
func New(ctx context.Context, cfg *config.Config) (*ServiceManager, error) {
	log := logger.Named("services")

	driver, err := neo4j.NewDriverWithContext(
		cfg.Neo4jURI,
		neo4j.BasicAuth(cfg.Neo4jUser, cfg.Neo4jPassword, ""),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create Neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("failed to connect to Neo4j: %w", err)
	}
	log.Info("Connected to Neo4j", zap.String("uri", cfg.Neo4jURI))

	repo := graph.NewRepository(driver, cfg.Neo4jQueryTimeout)
	matchMode := contact.MatchMode(cfg.CompanyMatchMode)
	repo.SetCompanyMatchMode(matchMode)
	if err := repo.EnsureSchema(ctx); err != nil {
		_ = repo.Close()
		return nil, err
	}

	policy, err := traversal.ParsePathPolicy(cfg.PathStrengthPolicy)
	if err != nil {
		_ = repo.Close()
		return nil, err
	}

	sm := &ServiceManager{Config: cfg, Graph: repo, Cache: cache.Nop{}, logger: log}

	if cfg.CacheEnabled() {
		rc, err := cache.NewRedis(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			// Caching is an optimisation; run without it.
			log.Warn("Redis unavailable, caching disabled", zap.String("addr", cfg.RedisAddr), zap.Error(err))
		} else {
			sm.Cache = rc
			sm.closeCache = rc.Close
		}
	}

	js, err := jobs.Open(cfg.JobsDSN)
	if err != nil {
		sm.Close()
		return nil, err
	}
	sm.Jobs = js
	sm.closeJobs = js.Close

	llm := adapter.NewLLMAdapter(cfg.LiteLLMURL, cfg.OpenRouterAPIKey, cfg.ModelID)
	// One attempt: the parser's timeout is the whole budget.
	llm.SetRetry(1, 0)

	sm.Dedup = dedup.NewEngine(repo, cfg.PlaceholderDomainSuffix, matchMode, dedup.DefaultPolicy)
	sm.Scoring = scoring.NewEngine(repo)
	sm.Traversal = traversal.NewEngine(repo, policy)

	parser := query.NewFallbackParser(query.NewLLMParser(llm), query.NewRuleParser(), cfg.LLMTimeout)
	sm.Search = search.NewService(parser, repo, sm.Traversal, search.NewSummarizer(llm), sm.Cache, cfg.IntentCacheTTL)
	sm.Ingest = ingest.NewPipeline(sm.Dedup, repo, sm.Scoring, js, sm.Cache)
	sm.Enricher = enrich.NewEnricher(repo, cfg.EnrichmentConcurrency, cfg.EnrichmentRPS)
	sm.Maintenance = maintenance.NewRunner(maintenance.Deps{
		Owners:   repo,
		Scorer:   sm.Scoring,
		Sweeper:  sm.Dedup,
		Enricher: sm.Enricher,
		Jobs:     js,
	}, cfg.MaintenanceConcurrency)

	return sm, nil
}

// StartScheduler runs maintenance passes every interval in the background.
// Calling it twice is an error.
func (sm *ServiceManager) StartScheduler(interval time.Duration) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.schedulerStop != nil {
		return fmt.Errorf("maintenance scheduler already running")
	}
	if interval <= 0 {
		sm.logger.Info("Maintenance scheduler disabled")
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	sm.schedulerStop = cancel
	sm.wg.Add(1)
	go func() {
		defer sm.wg.Done()
		sm.Maintenance.Start(ctx, interval)
	}()
	return nil
}

// StopAll stops the scheduler and waits for an in-flight pass to return.
func (sm *ServiceManager) StopAll() {
	sm.mu.Lock()
	if sm.schedulerStop != nil {
		sm.schedulerStop()
		sm.schedulerStop = nil
	}
	sm.mu.Unlock()
	sm.wg.Wait()
}

// Close stops background work and releases every connection.
func (sm *ServiceManager) Close() {
	sm.StopAll()
	if sm.closeCache != nil {
		if err := sm.closeCache(); err != nil {
			sm.logger.Warn("Error closing Redis", zap.Error(err))
		}
	}
	if sm.closeJobs != nil {
		if err := sm.closeJobs(); err != nil {
			sm.logger.Warn("Error closing job store", zap.Error(err))
		}
	}
	sm.closeGraphOnce.Do(func() {
		if err := sm.Graph.Close(); err != nil {
			sm.logger.Warn("Error closing Neo4j driver", zap.Error(err))
		}
	})
}
