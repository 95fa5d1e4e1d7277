//go:build ignore

// Applies the graph schema, optionally wiping one owner's network first.
//
//	go run scripts/migrate_schema.go [-reset-owner <id>]
package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	"warmintro/backend/internal/graph"
	"warmintro/backend/pkg/config"
	"warmintro/backend/pkg/logger"
)

func main() {
	resetOwner := flag.String("reset-owner", "", "Delete this owner's people and relationships before migrating")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load configuration: %v", err))
	}
	if err := logger.Init(cfg.Env, cfg.LogLevel); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Sync()
	log := logger.Get()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	driver, err := neo4j.NewDriverWithContext(
		cfg.Neo4jURI,
		neo4j.BasicAuth(cfg.Neo4jUser, cfg.Neo4jPassword, ""),
	)
	if err != nil {
		log.Fatal("Failed to create Neo4j driver", zap.Error(err))
	}
	defer driver.Close(context.Background())

	if err := driver.VerifyConnectivity(ctx); err != nil {
		log.Fatal("Failed to verify Neo4j connectivity", zap.Error(err))
	}

	if *resetOwner != "" {
		deleted, err := resetOwnerNetwork(ctx, driver, *resetOwner)
		if err != nil {
			log.Fatal("Failed to reset owner", zap.String("owner_id", *resetOwner), zap.Error(err))
		}
		log.Info("Owner network reset", zap.String("owner_id", *resetOwner), zap.Int64("deleted_people", deleted))
	}

	repo := graph.NewRepository(driver, cfg.Neo4jQueryTimeout)
	if err := repo.EnsureSchema(ctx); err != nil {
		log.Fatal("Schema migration failed", zap.Error(err))
	}
	if err := markApplied(ctx, driver); err != nil {
		log.Fatal("Failed to record migration", zap.Error(err))
	}
	log.Info("Schema migration complete")
}

func markApplied(ctx context.Context, driver neo4j.DriverWithContext) error {
	session := driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	_, err := session.Run(ctx, `
		MERGE (m:Migration {name: 'schema'})
		ON CREATE SET m.first_applied_at = datetime()
		SET m.applied_at = datetime(), m.runs = coalesce(m.runs, 0) + 1
	`, nil)
	return err
}

// resetOwnerNetwork removes the owner's Person nodes. Companies are shared
// between owners and are left in place.
func resetOwnerNetwork(ctx context.Context, driver neo4j.DriverWithContext, ownerID string) (int64, error) {
	session := driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	result, err := session.Run(ctx, `
		MATCH (p:Person {owner_id: $owner_id})
		DETACH DELETE p
	`, map[string]interface{}{"owner_id": ownerID})
	if err != nil {
		return 0, err
	}
	summary, err := result.Consume(ctx)
	if err != nil {
		return 0, err
	}
	return int64(summary.Counters().NodesDeleted()), nil
}
