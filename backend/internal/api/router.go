// Package api exposes the engine over HTTP.
package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"warmintro/backend/internal/cache"
	"warmintro/backend/internal/contact"
	"warmintro/backend/internal/dedup"
	"warmintro/backend/internal/graph"
	"warmintro/backend/internal/ingest"
	"warmintro/backend/internal/jobs"
	"warmintro/backend/internal/scoring"
	"warmintro/backend/internal/search"
	"warmintro/backend/internal/traversal"
	apperrors "warmintro/backend/pkg/errors"
)

// Searcher answers natural-language searches.
type Searcher interface {
	Search(ctx context.Context, ownerID, text string) (*search.Result, error)
}

// Network answers traversal questions.
type Network interface {
	FindSecondDegree(ctx context.Context, ownerID string, opts traversal.SecondDegreeOptions) ([]traversal.Candidate, error)
	FindIntroPath(ctx context.Context, ownerID, targetID string) (*traversal.Path, error)
	GetStats(ctx context.Context, ownerID string) (*graph.NetworkStats, error)
}

// Ingester loads contact batches.
type Ingester interface {
	Run(ctx context.Context, ownerID string, contacts []contact.Contact) (*ingest.Report, error)
}

// Scorer rescores relationships.
type Scorer interface {
	ScoreAll(ctx context.Context, ownerID string) (*scoring.Summary, error)
	ScoreOne(ctx context.Context, ownerID, email string) (*scoring.Result, error)
	FindStale(ctx context.Context, ownerID string, opts scoring.StaleOptions) ([]graph.StaleRelationship, error)
}

// Sweeper merges stored duplicates.
type Sweeper interface {
	FindAndMergeDuplicates(ctx context.Context, ownerID string) (*dedup.SweepReport, error)
}

// Jobs looks up tracked jobs.
type Jobs interface {
	Get(ctx context.Context, id string) (*jobs.SyncJob, error)
	ListByOwner(ctx context.Context, ownerID string, limit int) ([]jobs.SyncJob, error)
}

// Pinger checks a dependency for /health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the handlers' collaborators. Cache, Jobs and Graph may be nil.
type Deps struct {
	Search   Searcher
	Network  Network
	Ingest   Ingester
	Scorer   Scorer
	Sweeper  Sweeper
	Jobs     Jobs
	Graph    Pinger
	Cache    cache.Cache
	StatsTTL time.Duration
}

type handler struct {
	Deps
	log *zap.Logger
}

// NewRouter builds the gin engine with every route registered.
func NewRouter(deps Deps, log *zap.Logger) *gin.Engine {
	if deps.Cache == nil {
		deps.Cache = cache.Nop{}
	}
	if deps.StatsTTL <= 0 {
		deps.StatsTTL = 5 * time.Minute
	}
	h := &handler{Deps: deps, log: log}

	router := gin.New()
	router.Use(RequestLogger(log))
	router.Use(gin.Recovery())
	router.Use(cors())

	router.GET("/health", h.health)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api")
	{
		api.POST("/search", h.search)
		api.GET("/jobs/:id", h.job)

		network := api.Group("/network/:ownerId")
		network.GET("/stats", h.stats)
		network.GET("/second-degree", h.secondDegree)
		network.GET("/intro-path/:personId", h.introPath)
		network.POST("/contacts", h.ingest)
		network.POST("/score", h.scoreAll)
		network.GET("/score", h.scoreOne)
		network.GET("/stale", h.stale)
		network.POST("/dedup", h.dedup)
		network.GET("/jobs", h.ownerJobs)
	}
	return router
}

// RequestLogger logs one line per request.
func RequestLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		raw := c.Request.URL.RawQuery

		c.Next()

		if raw != "" {
			path = path + "?" + raw
		}
		log.Info("HTTP Request",
			zap.Int("status", c.Writer.Status()),
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Duration("latency", time.Since(start)),
			zap.String("ip", c.ClientIP()),
		)
	}
}

func cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// fail writes err with the status its type maps to.
func (h *handler) fail(c *gin.Context, op string, err error) {
	status := apperrors.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		h.log.Error("Request failed", zap.String("operation", op), zap.Error(err))
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func (h *handler) health(c *gin.Context) {
	if h.Graph != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := h.Graph.Ping(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "neo4j": err.Error()})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *handler) search(c *gin.Context) {
	var req struct {
		OwnerID string `json:"owner_id" binding:"required"`
		Query   string `json:"query" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	res, err := h.Search.Search(c.Request.Context(), req.OwnerID, req.Query)
	if err != nil {
		h.fail(c, "search", err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *handler) stats(c *gin.Context) {
	ownerID := c.Param("ownerId")
	ctx := c.Request.Context()
	key := cache.StatsKey(ownerID)

	var cached graph.NetworkStats
	if found, err := h.Cache.Get(ctx, key, &cached); err == nil && found {
		c.JSON(http.StatusOK, cached)
		return
	}

	stats, err := h.Network.GetStats(ctx, ownerID)
	if err != nil {
		h.fail(c, "stats", err)
		return
	}
	if err := h.Cache.Set(ctx, key, stats, h.StatsTTL); err != nil {
		h.log.Warn("Stats cache write failed", zap.Error(err))
	}
	c.JSON(http.StatusOK, stats)
}

func (h *handler) secondDegree(c *gin.Context) {
	opts := traversal.SecondDegreeOptions{}
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			h.fail(c, "second degree", apperrors.NewValidation("limit", "must be a positive integer"))
			return
		}
		opts.Limit = n
	}
	if v := c.Query("min_strength"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f < 0 || f > 100 {
			h.fail(c, "second degree", apperrors.NewValidation("min_strength", "must be between 0 and 100"))
			return
		}
		opts.MinStrength = f
	}

	candidates, err := h.Network.FindSecondDegree(c.Request.Context(), c.Param("ownerId"), opts)
	if err != nil {
		h.fail(c, "second degree", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"candidates": candidates, "total": len(candidates)})
}

func (h *handler) introPath(c *gin.Context) {
	path, err := h.Network.FindIntroPath(c.Request.Context(), c.Param("ownerId"), c.Param("personId"))
	if err != nil {
		h.fail(c, "intro path", err)
		return
	}
	if path == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no introduction path within reach", "path": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"path": path})
}

func (h *handler) ingest(c *gin.Context) {
	var req struct {
		Contacts []contact.Contact `json:"contacts" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	report, err := h.Ingest.Run(c.Request.Context(), c.Param("ownerId"), req.Contacts)
	if err != nil {
		h.fail(c, "ingest", err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (h *handler) scoreAll(c *gin.Context) {
	summary, err := h.Scorer.ScoreAll(c.Request.Context(), c.Param("ownerId"))
	if err != nil {
		h.fail(c, "score all", err)
		return
	}
	if err := h.Cache.Delete(c.Request.Context(), cache.StatsKey(c.Param("ownerId"))); err != nil {
		h.log.Warn("Stats cache invalidation failed", zap.Error(err))
	}
	c.JSON(http.StatusOK, summary)
}

func (h *handler) scoreOne(c *gin.Context) {
	email := contact.NormalizeEmail(c.Query("email"))
	if email == "" {
		h.fail(c, "score one", apperrors.NewValidation("email", "is required"))
		return
	}

	res, err := h.Scorer.ScoreOne(c.Request.Context(), c.Param("ownerId"), email)
	if err != nil {
		h.fail(c, "score one", err)
		return
	}
	if res == nil {
		h.fail(c, "score one", apperrors.NewNotFound("relationship", email))
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *handler) stale(c *gin.Context) {
	opts := scoring.StaleOptions{}
	if v := c.Query("days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			h.fail(c, "stale", apperrors.NewValidation("days", "must be a positive integer"))
			return
		}
		opts.StaleDays = n
	}
	if v := c.Query("max_score"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			h.fail(c, "stale", apperrors.NewValidation("max_score", "must be a number"))
			return
		}
		opts.MaxScore = &f
	}
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			h.fail(c, "stale", apperrors.NewValidation("limit", "must be a positive integer"))
			return
		}
		opts.Limit = n
	}

	stale, err := h.Scorer.FindStale(c.Request.Context(), c.Param("ownerId"), opts)
	if err != nil {
		h.fail(c, "stale", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"relationships": stale, "total": len(stale)})
}

func (h *handler) dedup(c *gin.Context) {
	report, err := h.Sweeper.FindAndMergeDuplicates(c.Request.Context(), c.Param("ownerId"))
	if err != nil {
		h.fail(c, "dedup", err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (h *handler) job(c *gin.Context) {
	if h.Jobs == nil {
		h.fail(c, "job", apperrors.NewNotFound("job", c.Param("id")))
		return
	}
	job, err := h.Jobs.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, "job", err)
		return
	}
	c.JSON(http.StatusOK, job)
}

func (h *handler) ownerJobs(c *gin.Context) {
	if h.Jobs == nil {
		c.JSON(http.StatusOK, gin.H{"jobs": []jobs.SyncJob{}, "total": 0})
		return
	}
	limit := 0
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			h.fail(c, "owner jobs", apperrors.NewValidation("limit", "must be a positive integer"))
			return
		}
		limit = n
	}

	list, err := h.Jobs.ListByOwner(c.Request.Context(), c.Param("ownerId"), limit)
	if err != nil {
		h.fail(c, "owner jobs", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"jobs": list, "total": len(list)})
}
