package graph

import (
	"context"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"
)

// ============================================================================
// Duplicate Person Maintenance
// ============================================================================

// FindDuplicateEmailGroups finds Person nodes of one owner sharing an exact
// email. The uniqueness constraint should make this empty; it is a safety net
// for data written before the constraint existed.
func (r *Repository) FindDuplicateEmailGroups(ctx context.Context, ownerID string) ([]DuplicateGroup, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	query := `
		MATCH (p:Person {owner_id: $ownerID})
		WITH toLower(trim(p.email)) as email, p
		ORDER BY p.created_at
		WITH email, collect(p.id) as ids
		WHERE size(ids) > 1
		RETURN email, ids
		ORDER BY email
	`
	records, err := r.read(ctx, "find duplicate email groups", query, map[string]interface{}{
		"ownerID": ownerID,
	})
	if err != nil {
		return nil, err
	}

	groups := make([]DuplicateGroup, 0, len(records))
	for _, rec := range records {
		groups = append(groups, DuplicateGroup{
			Email:     getStringFromRecord(rec, "email"),
			PersonIDs: getStringSliceFromRecord(rec, "ids"),
		})
	}
	return groups, nil
}

// MergePersons collapses duplicates into canonical: KNOWS counters add up,
// contact timestamps keep their extremes, sources are unioned, missing
// properties are filled from the duplicate, and the duplicates are deleted.
func (r *Repository) MergePersons(ctx context.Context, ownerID, canonicalID string, duplicateIDs []string) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	session := r.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	query := `
		MATCH (u:User {id: $ownerID})
		MATCH (c:Person {id: $canonicalID, owner_id: $ownerID})
		MATCH (d:Person {id: $duplicateID, owner_id: $ownerID})
		OPTIONAL MATCH (u)-[dk:KNOWS]->(d)
		MERGE (u)-[ck:KNOWS]->(c)
		ON CREATE SET ck.interaction_count = 0,
		              ck.emails_sent = 0,
		              ck.emails_received = 0,
		              ck.meeting_count = 0,
		              ck.strength = 0.0,
		              ck.created_at = datetime()
		SET ck.interaction_count = ck.interaction_count + coalesce(dk.interaction_count, 0),
		    ck.emails_sent = ck.emails_sent + coalesce(dk.emails_sent, 0),
		    ck.emails_received = ck.emails_received + coalesce(dk.emails_received, 0),
		    ck.meeting_count = ck.meeting_count + coalesce(dk.meeting_count, 0),
		    ck.first_contact = CASE
		        WHEN dk.first_contact IS NULL THEN ck.first_contact
		        WHEN ck.first_contact IS NULL OR dk.first_contact < ck.first_contact THEN dk.first_contact
		        ELSE ck.first_contact END,
		    ck.last_contact = CASE
		        WHEN dk.last_contact IS NULL THEN ck.last_contact
		        WHEN ck.last_contact IS NULL OR dk.last_contact > ck.last_contact THEN dk.last_contact
		        ELSE ck.last_contact END,
		    ck.source = coalesce(ck.source, dk.source),
		    c.sources = coalesce(c.sources, []) + [s IN coalesce(d.sources, []) WHERE NOT s IN coalesce(c.sources, [])],
		    c.name = coalesce(c.name, d.name),
		    c.first_name = coalesce(c.first_name, d.first_name),
		    c.last_name = coalesce(c.last_name, d.last_name),
		    c.phone = coalesce(c.phone, d.phone),
		    c.title = coalesce(c.title, d.title),
		    c.company = coalesce(c.company, d.company),
		    c.location = coalesce(c.location, d.location),
		    c.linkedin_url = coalesce(c.linkedin_url, d.linkedin_url),
		    c.updated_at = datetime()
		WITH c, d
		OPTIONAL MATCH (d)-[:WORKS_AT]->(co:Company)
		FOREACH (_ IN CASE WHEN co IS NULL THEN [] ELSE [1] END | MERGE (c)-[:WORKS_AT]->(co))
		WITH DISTINCT c, d
		DETACH DELETE d
		RETURN c.id as id
	`

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		for _, dupID := range duplicateIDs {
			if dupID == canonicalID {
				continue
			}
			if _, err := tx.Run(ctx, query, map[string]interface{}{
				"ownerID":     ownerID,
				"canonicalID": canonicalID,
				"duplicateID": dupID,
			}); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	if err != nil {
		return wrapErr("merge persons", err)
	}

	r.logger.Info("Duplicate persons merged",
		zap.String("owner_id", ownerID),
		zap.String("canonical_id", canonicalID),
		zap.Int("duplicates", len(duplicateIDs)),
	)
	return nil
}
