package graph

import (
	"context"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	"warmintro/backend/internal/contact"
	"warmintro/backend/pkg/logger"
)

// DefaultQueryTimeout bounds every graph call when the caller sets none.
const DefaultQueryTimeout = 15 * time.Second

// Repository handles all Neo4j database operations
type Repository struct {
	driver      neo4j.DriverWithContext
	logger      *zap.Logger
	timeout     time.Duration
	companyMode contact.MatchMode
}

// NewRepository creates a new graph repository
func NewRepository(driver neo4j.DriverWithContext, queryTimeout time.Duration) *Repository {
	if queryTimeout <= 0 {
		queryTimeout = DefaultQueryTimeout
	}
	return &Repository{
		driver:      driver,
		logger:      logger.Named("graph"),
		timeout:     queryTimeout,
		companyMode: contact.MatchExact,
	}
}

// SetCompanyMatchMode changes how company names are keyed when linking
// WORKS_AT by name.
func (r *Repository) SetCompanyMatchMode(mode contact.MatchMode) {
	if mode != "" {
		r.companyMode = mode
	}
}

// Close closes the Neo4j driver connection
func (r *Repository) Close() error {
	return r.driver.Close(context.Background())
}

// Ping verifies the store is reachable.
func (r *Repository) Ping(ctx context.Context) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	return wrapErr("verify connectivity", r.driver.VerifyConnectivity(ctx))
}

// schemaStatements are idempotent and safe to re-run on every start.
var schemaStatements = []string{
	`CREATE CONSTRAINT user_id_unique IF NOT EXISTS FOR (u:User) REQUIRE u.id IS UNIQUE`,
	`CREATE CONSTRAINT person_id_unique IF NOT EXISTS FOR (p:Person) REQUIRE p.id IS UNIQUE`,
	`CREATE CONSTRAINT person_owner_email_unique IF NOT EXISTS FOR (p:Person) REQUIRE (p.email, p.owner_id) IS UNIQUE`,
	`CREATE CONSTRAINT company_domain_unique IF NOT EXISTS FOR (c:Company) REQUIRE c.domain IS UNIQUE`,
	`CREATE INDEX person_owner IF NOT EXISTS FOR (p:Person) ON (p.owner_id)`,
	`CREATE INDEX person_first_name IF NOT EXISTS FOR (p:Person) ON (p.owner_id, p.first_name_lower)`,
	`CREATE INDEX company_name_key IF NOT EXISTS FOR (c:Company) ON (c.name_key)`,
	`CREATE FULLTEXT INDEX ` + fullTextIndex + ` IF NOT EXISTS FOR (p:Person) ON EACH [p.name, p.email, p.title, p.company]`,
}

// EnsureSchema creates constraints and indexes the engine relies on.
func (r *Repository) EnsureSchema(ctx context.Context) error {
	session := r.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	for _, stmt := range schemaStatements {
		_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
			_, err := tx.Run(ctx, stmt, nil)
			return nil, err
		})
		if err != nil {
			return wrapErr("ensure schema", err)
		}
	}

	r.logger.Info("Graph schema ensured", zap.Int("statements", len(schemaStatements)))
	return nil
}

// EnsureUser creates the owner's root node if it does not exist yet.
func (r *Repository) EnsureUser(ctx context.Context, ownerID string) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	session := r.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	query := `
		MERGE (u:User {id: $ownerID})
		ON CREATE SET u.created_at = datetime()
		RETURN u.id as id
	`

	result, err := session.Run(ctx, query, map[string]interface{}{
		"ownerID": ownerID,
	})
	if err != nil {
		return wrapErr("ensure user", err)
	}
	if _, err := result.Single(ctx); err != nil {
		return wrapErr("verify user creation", err)
	}
	return nil
}

// ListOwners returns the ids of every User node.
func (r *Repository) ListOwners(ctx context.Context) ([]string, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	records, err := r.read(ctx, "list owners", `MATCH (u:User) RETURN u.id as id ORDER BY id`, nil)
	if err != nil {
		return nil, err
	}

	owners := make([]string, 0, len(records))
	for _, rec := range records {
		if id := getStringFromRecord(rec, "id"); id != "" {
			owners = append(owners, id)
		}
	}
	return owners, nil
}

// read runs a read query and collects every record.
func (r *Repository) read(ctx context.Context, operation, query string, params map[string]interface{}) ([]*neo4j.Record, error) {
	session := r.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	result, err := session.Run(ctx, query, params)
	if err != nil {
		return nil, wrapErr(operation, err)
	}
	records, err := result.Collect(ctx)
	if err != nil {
		return nil, wrapErr(operation, err)
	}
	return records, nil
}

// write runs a single write query inside a managed transaction.
func (r *Repository) write(ctx context.Context, operation, query string, params map[string]interface{}) ([]*neo4j.Record, error) {
	session := r.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	out, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, query, params)
		if err != nil {
			return nil, err
		}
		return result.Collect(ctx)
	})
	if err != nil {
		return nil, wrapErr(operation, err)
	}
	records, _ := out.([]*neo4j.Record)
	return records, nil
}

func (r *Repository) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, r.timeout)
}
