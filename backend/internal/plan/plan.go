// Package plan describes graph searches as data. The query compiler builds
// plans; the graph adapter is the only code that lowers them into Cypher.
package plan

import (
	"fmt"
	"strings"
)

// Kind selects the traversal shape.
type Kind string

const (
	KindPersonSearch      Kind = "person_search"
	KindCompanySearch     Kind = "company_search"
	KindRelationshipQuery Kind = "relationship_query"
	KindIntroPath         Kind = "intro_path"
	KindGeneral           Kind = "general"
)

// Field is a filterable attribute of a Person or its Company.
type Field string

const (
	FieldName     Field = "name"
	FieldTitle    Field = "title"
	FieldCompany  Field = "company"
	FieldLocation Field = "location"
	FieldIndustry Field = "industry"
)

// SortKey orders results.
type SortKey string

const (
	SortStrength  SortKey = "strength"
	SortRecency   SortKey = "recency"
	SortRelevance SortKey = "relevance"
)

// MaxDegree bounds friend-of-friend expansion.
const MaxDegree = 3

// DefaultLimit applies when a plan does not set one.
const DefaultLimit = 50

// Predicate is a case-insensitive substring match on Field against any of
// AnyOf. Predicates in a plan are combined with AND.
type Predicate struct {
	Field Field    `json:"field"`
	AnyOf []string `json:"any_of"`
}

// Plan is a store-independent graph query.
type Plan struct {
	Kind    Kind        `json:"kind"`
	OwnerID string      `json:"owner_id"`
	Degree  int         `json:"degree"`
	Filters []Predicate `json:"filters,omitempty"`
	Sort    SortKey     `json:"sort"`
	Limit   int         `json:"limit"`

	// Text is the free-text query of a general search.
	Text string `json:"text,omitempty"`
	// StrengthAbove keeps only direct connections with strength strictly
	// greater than the value.
	StrengthAbove *float64 `json:"strength_above,omitempty"`
	// RequireLastContact drops connections that were never contacted.
	RequireLastContact bool `json:"require_last_contact,omitempty"`
	// TargetName is the fuzzy person name an intro path resolves.
	TargetName string `json:"target_name,omitempty"`
}

// Filter returns the predicate for field, if the plan has one.
func (p *Plan) Filter(field Field) (Predicate, bool) {
	for _, f := range p.Filters {
		if f.Field == field {
			return f, true
		}
	}
	return Predicate{}, false
}

// EffectiveLimit returns Limit or DefaultLimit when unset.
func (p *Plan) EffectiveLimit() int {
	if p.Limit <= 0 {
		return DefaultLimit
	}
	return p.Limit
}

// Validate checks structural invariants the store relies on.
func (p *Plan) Validate() error {
	if strings.TrimSpace(p.OwnerID) == "" {
		return fmt.Errorf("plan owner is required")
	}
	switch p.Kind {
	case KindPersonSearch:
		if p.Degree < 1 || p.Degree > MaxDegree {
			return fmt.Errorf("degree %d out of range 1..%d", p.Degree, MaxDegree)
		}
	case KindCompanySearch, KindRelationshipQuery:
	case KindIntroPath:
		if strings.TrimSpace(p.TargetName) == "" {
			return fmt.Errorf("intro path requires a target name")
		}
	case KindGeneral:
		if strings.TrimSpace(p.Text) == "" {
			return fmt.Errorf("general search requires text")
		}
	default:
		return fmt.Errorf("unknown plan kind %q", p.Kind)
	}
	for _, f := range p.Filters {
		if len(f.AnyOf) == 0 {
			return fmt.Errorf("filter on %s has no values", f.Field)
		}
	}
	return nil
}
