// Package query turns natural-language searches into graph query plans.
package query

import (
	"context"
	"fmt"
	"strings"

	"warmintro/backend/internal/plan"
	apperrors "warmintro/backend/pkg/errors"
)

// QueryType discriminates search intents.
type QueryType string

const (
	PersonSearch      QueryType = "person_search"
	CompanySearch     QueryType = "company_search"
	RelationshipQuery QueryType = "relationship_query"
	IntroPath         QueryType = "intro_path"
	General           QueryType = "general"
)

// Valid reports whether t is a known query type.
func (t QueryType) Valid() bool {
	switch t {
	case PersonSearch, CompanySearch, RelationshipQuery, IntroPath, General:
		return true
	}
	return false
}

// Filters narrow a search. Every field is optional.
type Filters struct {
	Roles      []string `json:"roles,omitempty"`
	Companies  []string `json:"companies,omitempty"`
	Locations  []string `json:"locations,omitempty"`
	Industries []string `json:"industries,omitempty"`
	Name       string   `json:"name,omitempty"`
	Title      string   `json:"title,omitempty"`
	Degree     int      `json:"degree,omitempty"`
	Sort       string   `json:"sort,omitempty"`
}

// SearchIntent is the structured form of a natural-language search.
// ParsedBy names the parser that produced it.
type SearchIntent struct {
	QueryType       QueryType `json:"queryType"`
	Filters         Filters   `json:"filters"`
	NaturalLanguage string    `json:"naturalLanguage"`
	ParsedBy        string    `json:"parsedBy,omitempty"`
}

// Parser maps free text to an intent.
type Parser interface {
	Parse(ctx context.Context, text string) (*SearchIntent, error)
}

// strengthThreshold is the relationship_query cut-off when sorting by
// strength.
const strengthThreshold = 50.0

// Compile maps an intent to a plan. It performs no I/O.
func Compile(intent *SearchIntent, ownerID string) (*plan.Plan, error) {
	if intent == nil {
		return nil, apperrors.NewValidation("intent", "is required")
	}
	if strings.TrimSpace(ownerID) == "" {
		return nil, apperrors.NewValidation("ownerId", "is required")
	}

	f := intent.Filters
	p := &plan.Plan{
		Kind:    plan.Kind(intent.QueryType),
		OwnerID: ownerID,
		Degree:  1,
		Sort:    sortKey(f.Sort),
		Limit:   plan.DefaultLimit,
	}

	switch intent.QueryType {
	case PersonSearch:
		if f.Degree != 0 {
			if f.Degree < 1 || f.Degree > plan.MaxDegree {
				return nil, apperrors.NewValidation("filters.degree", fmt.Sprintf("must be between 1 and %d", plan.MaxDegree))
			}
			p.Degree = f.Degree
		}
		p.Filters = personPredicates(f)

	case CompanySearch:
		p.Filters = appendPredicate(nil, plan.FieldCompany, f.Companies...)
		p.Filters = appendPredicate(p.Filters, plan.FieldIndustry, f.Industries...)
		p.Filters = appendPredicate(p.Filters, plan.FieldLocation, f.Locations...)
		p.Filters = appendPredicate(p.Filters, plan.FieldTitle, titles(f)...)

	case RelationshipQuery:
		p.Filters = personPredicates(f)
		switch p.Sort {
		case plan.SortStrength:
			threshold := strengthThreshold
			p.StrengthAbove = &threshold
		case plan.SortRecency:
			p.RequireLastContact = true
		}

	case IntroPath:
		name := strings.TrimSpace(f.Name)
		if name == "" {
			return nil, apperrors.NewValidation("filters.name", "is required for intro_path")
		}
		p.TargetName = name

	case General:
		text := strings.TrimSpace(intent.NaturalLanguage)
		if text == "" {
			text = strings.TrimSpace(f.Name)
		}
		if text == "" {
			return nil, apperrors.NewValidation("naturalLanguage", "is required for general search")
		}
		p.Text = text
		p.Sort = plan.SortRelevance

	default:
		return nil, apperrors.NewValidation("queryType", fmt.Sprintf("unknown query type %q", intent.QueryType))
	}

	if err := p.Validate(); err != nil {
		return nil, apperrors.NewValidation("plan", err.Error())
	}
	return p, nil
}

// sortKey maps a requested sort to a plan key. Anything unrecognized sorts
// by strength.
func sortKey(s string) plan.SortKey {
	switch plan.SortKey(strings.ToLower(strings.TrimSpace(s))) {
	case plan.SortRecency:
		return plan.SortRecency
	case plan.SortRelevance:
		return plan.SortRelevance
	}
	return plan.SortStrength
}

func personPredicates(f Filters) []plan.Predicate {
	var preds []plan.Predicate
	preds = appendPredicate(preds, plan.FieldName, f.Name)
	preds = appendPredicate(preds, plan.FieldTitle, titles(f)...)
	preds = appendPredicate(preds, plan.FieldCompany, f.Companies...)
	preds = appendPredicate(preds, plan.FieldLocation, f.Locations...)
	preds = appendPredicate(preds, plan.FieldIndustry, f.Industries...)
	return preds
}

// titles merges the explicit title with requested roles.
func titles(f Filters) []string {
	return append([]string{f.Title}, f.Roles...)
}

// appendPredicate adds a predicate for the non-blank values, if any.
func appendPredicate(preds []plan.Predicate, field plan.Field, values ...string) []plan.Predicate {
	seen := make(map[string]bool, len(values))
	var anyOf []string
	for _, v := range values {
		v = strings.TrimSpace(v)
		key := strings.ToLower(v)
		if v == "" || seen[key] {
			continue
		}
		seen[key] = true
		anyOf = append(anyOf, v)
	}
	if len(anyOf) == 0 {
		return preds
	}
	return append(preds, plan.Predicate{Field: field, AnyOf: anyOf})
}
