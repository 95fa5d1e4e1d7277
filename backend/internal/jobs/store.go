// Package jobs records the status of sync and maintenance jobs.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	apperrors "warmintro/backend/pkg/errors"
	"warmintro/backend/pkg/logger"
)

// Status of a job.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Kinds of job.
const (
	KindIngest      = "ingest"
	KindRescore     = "rescore"
	KindDedup       = "dedup"
	KindMaintenance = "maintenance"
	KindEnrich      = "enrich"
)

// SyncJob is one tracked unit of background work.
type SyncJob struct {
	ID         string     `gorm:"primaryKey;size:36" json:"id"`
	OwnerID    string     `gorm:"index;size:128" json:"owner_id"`
	Kind       string     `gorm:"size:32" json:"kind"`
	Status     Status     `gorm:"size:16;index" json:"status"`
	Progress   int        `json:"progress"`
	Processed  int        `json:"processed"`
	Failed     int        `json:"failed"`
	Detail     string     `json:"detail,omitempty"`
	Error      string     `json:"error,omitempty"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// Store persists SyncJobs through gorm.
type Store struct {
	db     *gorm.DB
	logger *zap.Logger
}

// Open connects to postgres when dsn is a postgres URL or key/value DSN,
// otherwise treats dsn as a sqlite file path, and migrates the schema.
func Open(dsn string) (*Store, error) {
	var dialector gorm.Dialector
	if isPostgres(dsn) {
		dialector = postgres.Open(dsn)
	} else {
		dialector = sqlite.Open(dsn)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, apperrors.NewUpstreamUnavailable("jobs", "open", err)
	}
	return New(db)
}

// New wraps an open database and migrates the schema.
func New(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(&SyncJob{}); err != nil {
		return nil, fmt.Errorf("migrate sync jobs: %w", err)
	}
	return &Store{db: db, logger: logger.Named("jobs")}, nil
}

func isPostgres(dsn string) bool {
	return strings.HasPrefix(dsn, "postgres://") ||
		strings.HasPrefix(dsn, "postgresql://") ||
		strings.Contains(dsn, "host=")
}

// Create records a pending job and returns it.
func (s *Store) Create(ctx context.Context, ownerID, kind string) (*SyncJob, error) {
	job := &SyncJob{
		ID:      uuid.New().String(),
		OwnerID: ownerID,
		Kind:    kind,
		Status:  StatusPending,
	}
	if err := s.db.WithContext(ctx).Create(job).Error; err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}
	s.logger.Debug("Job created",
		zap.String("job_id", job.ID),
		zap.String("owner_id", ownerID),
		zap.String("kind", kind),
	)
	return job, nil
}

// MarkRunning stamps the start time.
func (s *Store) MarkRunning(ctx context.Context, id string) error {
	now := time.Now().UTC()
	return s.update(ctx, id, map[string]interface{}{
		"status":     StatusRunning,
		"started_at": &now,
	})
}

// Complete records the outcome of a finished job.
func (s *Store) Complete(ctx context.Context, id string, processed, failed int, detail string) error {
	now := time.Now().UTC()
	return s.update(ctx, id, map[string]interface{}{
		"status":      StatusCompleted,
		"progress":    100,
		"processed":   processed,
		"failed":      failed,
		"detail":      detail,
		"finished_at": &now,
	})
}

// Fail records a job that could not finish.
func (s *Store) Fail(ctx context.Context, id string, cause error) error {
	now := time.Now().UTC()
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return s.update(ctx, id, map[string]interface{}{
		"status":      StatusFailed,
		"error":       msg,
		"finished_at": &now,
	})
}

// Get loads a job by id.
func (s *Store) Get(ctx context.Context, id string) (*SyncJob, error) {
	var job SyncJob
	err := s.db.WithContext(ctx).First(&job, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.NewNotFound("job", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return &job, nil
}

// ListByOwner returns an owner's most recent jobs, newest first.
func (s *Store) ListByOwner(ctx context.Context, ownerID string, limit int) ([]SyncJob, error) {
	if limit <= 0 {
		limit = 20
	}
	var out []SyncJob
	err := s.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("created_at DESC").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	return out, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Store) update(ctx context.Context, id string, fields map[string]interface{}) error {
	res := s.db.WithContext(ctx).Model(&SyncJob{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return fmt.Errorf("update job %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return apperrors.NewNotFound("job", id)
	}
	return nil
}
