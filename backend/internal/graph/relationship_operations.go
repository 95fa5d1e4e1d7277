package graph

import (
	"context"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	"warmintro/backend/internal/contact"
)

// ============================================================================
// KNOWS Relationship Operations
// ============================================================================

const knowsProjection = `
	p.id as person_id,
	p.email as email,
	coalesce(p.name, p.email) as name,
	coalesce(k.strength, 0.0) as strength,
	coalesce(k.interaction_count, 0) as interaction_count,
	coalesce(k.emails_sent, 0) as emails_sent,
	coalesce(k.emails_received, 0) as emails_received,
	coalesce(k.meeting_count, 0) as meeting_count,
	k.first_contact as first_contact,
	k.last_contact as last_contact,
	k.source as source,
	coalesce(p.sources, []) as sources,
	k.score_breakdown as breakdown
`

// ListKnows returns the raw counters of every KNOWS edge of an owner.
func (r *Repository) ListKnows(ctx context.Context, ownerID string) ([]KnowsEdge, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	query := `
		MATCH (:User {id: $ownerID})-[k:KNOWS]->(p:Person)
		RETURN ` + knowsProjection + `
		ORDER BY p.email
	`
	records, err := r.read(ctx, "list knows", query, map[string]interface{}{
		"ownerID": ownerID,
	})
	if err != nil {
		return nil, err
	}

	edges := make([]KnowsEdge, 0, len(records))
	for _, rec := range records {
		edges = append(edges, knowsFromRecord(ownerID, rec))
	}
	return edges, nil
}

// GetKnows returns the KNOWS edge to the owner's Person with email, or nil.
func (r *Repository) GetKnows(ctx context.Context, ownerID, email string) (*KnowsEdge, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	query := `
		MATCH (:User {id: $ownerID})-[k:KNOWS]->(p:Person {email: $email, owner_id: $ownerID})
		RETURN ` + knowsProjection + `
		LIMIT 1
	`
	records, err := r.read(ctx, "get knows", query, map[string]interface{}{
		"ownerID": ownerID,
		"email":   contact.NormalizeEmail(email),
	})
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	edge := knowsFromRecord(ownerID, records[0])
	return &edge, nil
}

// UpdateStrength stores a computed score and its breakdown. Only the scoring
// engine calls this.
func (r *Repository) UpdateStrength(ctx context.Context, ownerID, personID string, strength float64, breakdown ScoreBreakdown) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	query := `
		MATCH (:User {id: $ownerID})-[k:KNOWS]->(p:Person {id: $personID})
		SET k.strength = $strength,
		    k.score_breakdown = $breakdown,
		    k.scored_at = datetime()
		RETURN p.id as id
	`
	_, err := r.write(ctx, "update strength", query, map[string]interface{}{
		"ownerID":  ownerID,
		"personID": personID,
		"strength": strength,
		// Neo4j properties cannot hold maps; the breakdown is stored as a
		// fixed-order list and decoded by breakdownFromValue.
		"breakdown": []float64{
			breakdown.Recency,
			breakdown.Frequency,
			breakdown.Reciprocity,
			breakdown.Diversity,
			breakdown.Duration,
		},
	})
	return err
}

// FindStale returns KNOWS edges last contacted before cutoff with strength at
// most maxScore, weakest first.
func (r *Repository) FindStale(ctx context.Context, ownerID string, cutoff time.Time, maxScore float64, limit int) ([]StaleRelationship, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	query := `
		MATCH (:User {id: $ownerID})-[k:KNOWS]->(p:Person)
		WHERE k.last_contact IS NOT NULL
		  AND k.last_contact < datetime($cutoff)
		  AND coalesce(k.strength, 0.0) <= $maxScore
		RETURN p.id as person_id,
		       coalesce(p.name, p.email) as name,
		       p.email as email,
		       p.company as company,
		       coalesce(k.strength, 0.0) as strength,
		       k.last_contact as last_contact
		ORDER BY strength ASC, last_contact ASC
		LIMIT $limit
	`
	records, err := r.read(ctx, "find stale", query, map[string]interface{}{
		"ownerID":  ownerID,
		"cutoff":   cutoff.UTC().Format(time.RFC3339),
		"maxScore": maxScore,
		"limit":    limit,
	})
	if err != nil {
		return nil, err
	}

	stale := make([]StaleRelationship, 0, len(records))
	for _, rec := range records {
		s := StaleRelationship{
			PersonID: getStringFromRecord(rec, "person_id"),
			Name:     getStringFromRecord(rec, "name"),
			Email:    getStringFromRecord(rec, "email"),
			Company:  getStringFromRecord(rec, "company"),
			Strength: getFloat64FromRecord(rec, "strength"),
		}
		if t := getTimePtrFromRecord(rec, "last_contact"); t != nil {
			s.LastContact = *t
		}
		stale = append(stale, s)
	}

	r.logger.Debug("Stale relationships found",
		zap.String("owner_id", ownerID),
		zap.Int("count", len(stale)),
	)
	return stale, nil
}

func knowsFromRecord(ownerID string, rec *neo4j.Record) KnowsEdge {
	edge := KnowsEdge{
		OwnerID:          ownerID,
		PersonID:         getStringFromRecord(rec, "person_id"),
		Email:            getStringFromRecord(rec, "email"),
		Name:             getStringFromRecord(rec, "name"),
		Strength:         getFloat64FromRecord(rec, "strength"),
		InteractionCount: getIntFromRecord(rec, "interaction_count"),
		EmailsSent:       getIntFromRecord(rec, "emails_sent"),
		EmailsReceived:   getIntFromRecord(rec, "emails_received"),
		MeetingCount:     getIntFromRecord(rec, "meeting_count"),
		FirstContact:     getTimePtrFromRecord(rec, "first_contact"),
		LastContact:      getTimePtrFromRecord(rec, "last_contact"),
		Source:           getStringFromRecord(rec, "source"),
		Sources:          getStringSliceFromRecord(rec, "sources"),
	}
	if val, ok := rec.Get("breakdown"); ok {
		edge.Breakdown = breakdownFromValue(val)
	}
	return edge
}

func breakdownFromValue(val interface{}) *ScoreBreakdown {
	list, ok := val.([]interface{})
	if !ok || len(list) != 5 {
		return nil
	}
	return &ScoreBreakdown{
		Recency:     toFloat64(list[0]),
		Frequency:   toFloat64(list[1]),
		Reciprocity: toFloat64(list[2]),
		Diversity:   toFloat64(list[3]),
		Duration:    toFloat64(list[4]),
	}
}
