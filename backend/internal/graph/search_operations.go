package graph

import (
	"context"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	"warmintro/backend/internal/plan"
	apperrors "warmintro/backend/pkg/errors"
)

// ============================================================================
// Search Operations
// ============================================================================

// ExecutePlan lowers a plan and runs it against the graph.
func (r *Repository) ExecutePlan(ctx context.Context, p *plan.Plan) (*PlanResult, error) {
	stmt, err := LowerPlan(p)
	if err != nil {
		return nil, apperrors.NewValidation("plan", err.Error())
	}

	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	records, err := r.read(ctx, "execute "+string(p.Kind), stmt.Cypher, stmt.Params)
	if err != nil {
		return nil, err
	}

	result := &PlanResult{}
	switch stmt.Shape {
	case ShapeCompanies:
		result.Companies = companyResultsFromRecords(records)
	default:
		result.People = personResultsFromRecords(records)
	}

	r.logger.Debug("Plan executed",
		zap.String("owner_id", p.OwnerID),
		zap.String("kind", string(p.Kind)),
		zap.Int("results", result.Total()),
	)
	return result, nil
}

func personResultsFromRecords(records []*neo4j.Record) []PersonResult {
	people := make([]PersonResult, 0, len(records))
	for _, rec := range records {
		person, ok := personFromRecord(rec, "person")
		if !ok {
			continue
		}
		res := PersonResult{
			Person:      person,
			Strength:    getFloat64FromRecord(rec, "strength"),
			LastContact: getTimePtrFromRecord(rec, "last_contact"),
			Degree:      getIntFromRecord(rec, "degree"),
			Industry:    getStringFromRecord(rec, "industry"),
			Relevance:   getFloat64FromRecord(rec, "relevance"),
		}
		if val, ok := rec.Get("via"); ok {
			if m, ok := val.(map[string]interface{}); ok {
				via := nodeFromMap(m)
				res.Via = &via
			}
		}
		people = append(people, res)
	}
	return people
}

func companyResultsFromRecords(records []*neo4j.Record) []CompanyResult {
	companies := make([]CompanyResult, 0, len(records))
	for _, rec := range records {
		val, _ := rec.Get("company")
		m, ok := val.(map[string]interface{})
		if !ok {
			continue
		}
		res := CompanyResult{Company: companyFromMap(m), Contacts: []RosterEntry{}}
		if rosterVal, ok := rec.Get("roster"); ok {
			if items, ok := rosterVal.([]interface{}); ok {
				for _, item := range items {
					e, ok := item.(map[string]interface{})
					if !ok {
						continue
					}
					res.Contacts = append(res.Contacts, RosterEntry{
						PersonID: getStringFromMap(e, "person_id", ""),
						Name:     getStringFromMap(e, "name", ""),
						Email:    getStringFromMap(e, "email", ""),
						Title:    getStringFromMap(e, "title", ""),
						Strength: getFloat64FromMap(e, "strength", 0),
					})
				}
			}
		}
		companies = append(companies, res)
	}
	return companies
}
