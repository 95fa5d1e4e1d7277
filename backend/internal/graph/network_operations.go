package graph

import (
	"context"

	"go.uber.org/zap"
)

// ============================================================================
// Network Traversal Primitives
// ============================================================================

// DirectConnections returns every Person the owner KNOWS, strongest first.
func (r *Repository) DirectConnections(ctx context.Context, ownerID string) ([]Connection, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	query := `
		MATCH (:User {id: $ownerID})-[k:KNOWS]->(p:Person)
		RETURN ` + nodeProjection("p") + ` as person,
		       coalesce(k.strength, 0.0) as strength
		ORDER BY strength DESC, p.email
	`
	records, err := r.read(ctx, "list direct connections", query, map[string]interface{}{
		"ownerID": ownerID,
	})
	if err != nil {
		return nil, err
	}

	conns := make([]Connection, 0, len(records))
	for _, rec := range records {
		val, _ := rec.Get("person")
		m, ok := val.(map[string]interface{})
		if !ok {
			continue
		}
		conns = append(conns, Connection{
			Person:   nodeFromMap(m),
			Strength: getFloat64FromRecord(rec, "strength"),
		})
	}
	return conns, nil
}

// Neighbors expands a frontier by one undirected step over the given
// relationship types. Only User and Person nodes are returned.
func (r *Repository) Neighbors(ctx context.Context, nodeIDs []string, relTypes []string) ([]Hop, error) {
	if len(nodeIDs) == 0 || len(relTypes) == 0 {
		return nil, nil
	}
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	query := `
		MATCH (n) WHERE (n:User OR n:Person) AND n.id IN $ids
		MATCH (n)-[rel]-(m)
		WHERE type(rel) IN $types AND (m:User OR m:Person)
		RETURN ` + nodeProjection("n") + ` as source,
		       ` + nodeProjection("m") + ` as target,
		       type(rel) as type,
		       rel.strength as strength
		ORDER BY n.id, coalesce(rel.strength, 0.0) DESC, m.id
	`
	records, err := r.read(ctx, "expand neighbors", query, map[string]interface{}{
		"ids":   nodeIDs,
		"types": relTypes,
	})
	if err != nil {
		return nil, err
	}

	hops := make([]Hop, 0, len(records))
	for _, rec := range records {
		from, _ := rec.Get("source")
		to, _ := rec.Get("target")
		fm, ok1 := from.(map[string]interface{})
		tm, ok2 := to.(map[string]interface{})
		if !ok1 || !ok2 {
			continue
		}
		hop := Hop{
			From: nodeFromMap(fm),
			To:   nodeFromMap(tm),
			Type: getStringFromRecord(rec, "type"),
		}
		if hop.Type == RelKnows {
			if val, ok := rec.Get("strength"); ok && val != nil {
				s := toFloat64(val)
				hop.Strength = &s
			}
		}
		hops = append(hops, hop)
	}
	return hops, nil
}

// GetNode loads a User or Person by id, or nil.
func (r *Repository) GetNode(ctx context.Context, id string) (*Node, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	query := `
		MATCH (n) WHERE (n:User OR n:Person) AND n.id = $id
		RETURN ` + nodeProjection("n") + ` as node
		LIMIT 1
	`
	records, err := r.read(ctx, "get node", query, map[string]interface{}{"id": id})
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	val, _ := records[0].Get("node")
	m, ok := val.(map[string]interface{})
	if !ok {
		return nil, nil
	}
	n := nodeFromMap(m)
	return &n, nil
}

// Stats aggregates the owner's subgraph.
func (r *Repository) Stats(ctx context.Context, ownerID string) (*NetworkStats, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	query := `
		OPTIONAL MATCH (:User {id: $ownerID})-[k:KNOWS]->(p:Person)
		WITH count(p) as total, avg(k.strength) as avg_strength, collect(p) as people
		CALL {
			WITH people
			UNWIND people as p
			MATCH (p)-[:WORKS_AT]->(c:Company)
			RETURN count(DISTINCT c) as companies
		}
		CALL {
			WITH people
			UNWIND people as p
			UNWIND coalesce(p.sources, []) as source
			WITH source, count(*) as n
			RETURN collect({source: source, count: n}) as sources
		}
		RETURN total, coalesce(avg_strength, 0.0) as avg_strength, companies, sources
	`
	records, err := r.read(ctx, "compute network stats", query, map[string]interface{}{
		"ownerID": ownerID,
	})
	if err != nil {
		return nil, err
	}

	stats := &NetworkStats{Sources: make(map[string]int)}
	if len(records) == 0 {
		return stats, nil
	}
	rec := records[0]
	stats.TotalContacts = getIntFromRecord(rec, "total")
	stats.Companies = getIntFromRecord(rec, "companies")
	stats.AvgStrength = getFloat64FromRecord(rec, "avg_strength")
	if val, ok := rec.Get("sources"); ok {
		if items, ok := val.([]interface{}); ok {
			for _, item := range items {
				if m, ok := item.(map[string]interface{}); ok {
					if tag := getStringFromMap(m, "source", ""); tag != "" {
						stats.Sources[tag] = toInt(m["count"])
					}
				}
			}
		}
	}

	r.logger.Debug("Network stats computed",
		zap.String("owner_id", ownerID),
		zap.Int("total_contacts", stats.TotalContacts),
	)
	return stats, nil
}
