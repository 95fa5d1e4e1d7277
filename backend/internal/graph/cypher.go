package graph

import (
	"fmt"
	"strings"

	"warmintro/backend/internal/plan"
)

// ============================================================================
// Plan Lowering
// ============================================================================

// fullTextIndex is the Person full-text index used by general searches.
const fullTextIndex = "person_search"

// Shape tells ExecutePlan how to read the returned records.
type Shape int

const (
	ShapePeople Shape = iota
	ShapeCompanies
)

// Statement is a lowered plan ready to run.
type Statement struct {
	Cypher string
	Params map[string]interface{}
	Shape  Shape
}

// personColumns is the RETURN clause shared by every person-shaped query.
// The query must bind p, strength, last_contact, degree, via, c and relevance.
var personColumns = `
		RETURN properties(p) as person,
		       strength,
		       last_contact,
		       degree,
		       CASE WHEN via IS NULL THEN null ELSE ` + nodeProjection("via") + ` END as via,
		       c.industry as industry,
		       relevance`

// LowerPlan turns a validated plan into Cypher. Intro paths are not lowered
// here; they run through the traversal engine.
func LowerPlan(p *plan.Plan) (*Statement, error) {
	if p == nil {
		return nil, fmt.Errorf("plan is nil")
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}

	params := map[string]interface{}{
		"ownerID": p.OwnerID,
		"limit":   p.EffectiveLimit(),
	}

	switch p.Kind {
	case plan.KindPersonSearch:
		if p.Degree <= 1 {
			return lowerDirect(p, params, nil), nil
		}
		return lowerExtended(p, params), nil
	case plan.KindRelationshipQuery:
		var extra []string
		if p.StrengthAbove != nil {
			params["strengthAbove"] = *p.StrengthAbove
			extra = append(extra, "strength > $strengthAbove")
		}
		if p.RequireLastContact {
			extra = append(extra, "last_contact IS NOT NULL")
		}
		return lowerDirect(p, params, extra), nil
	case plan.KindCompanySearch:
		return lowerCompany(p, params), nil
	case plan.KindGeneral:
		return lowerGeneral(p, params), nil
	}
	return nil, fmt.Errorf("plan kind %q cannot be lowered to a graph query", p.Kind)
}

// lowerDirect matches the owner's direct connections.
func lowerDirect(p *plan.Plan, params map[string]interface{}, extra []string) *Statement {
	conds := append(predicateConditions(p.Filters, personFieldExpr, params), extra...)

	var b strings.Builder
	b.WriteString(`
		MATCH (:User {id: $ownerID})-[k:KNOWS]->(p:Person)
		OPTIONAL MATCH (p)-[:WORKS_AT]->(co:Company)
		WITH p, k, head(collect(co)) as c
		WITH p, c,
		     coalesce(k.strength, 0.0) as strength,
		     k.last_contact as last_contact,
		     1 as degree,
		     null as via,
		     0.0 as relevance`)
	writeWhere(&b, conds)
	b.WriteString(personColumns)
	b.WriteString(orderBy(p.Sort))
	b.WriteString(`
		LIMIT $limit`)

	return &Statement{Cypher: b.String(), Params: params, Shape: ShapePeople}
}

// lowerExtended matches people reachable through a direct connection with
// Degree-1 extra hops who are not already known to the owner.
func lowerExtended(p *plan.Plan, params map[string]interface{}) *Statement {
	conds := predicateConditions(p.Filters, personFieldExpr, params)

	var b strings.Builder
	fmt.Fprintf(&b, `
		MATCH (u:User {id: $ownerID})-[k:KNOWS]->(d:Person)
		MATCH path = (d)-[:KNOWS|COLLEAGUES_WITH*1..%d]-(p:Person)
		WHERE p.owner_id <> $ownerID AND NOT (u)-[:KNOWS]->(p)
		WITH p, d, k, length(path) + 1 as hops
		ORDER BY hops, coalesce(k.strength, 0.0) DESC
		WITH p, head(collect({via: d, strength: coalesce(k.strength, 0.0), hops: hops})) as best
		OPTIONAL MATCH (p)-[:WORKS_AT]->(co:Company)
		WITH p, best, head(collect(co)) as c
		WITH p, c,
		     best.strength as strength,
		     null as last_contact,
		     best.hops as degree,
		     best.via as via,
		     0.0 as relevance`, p.Degree-1)
	writeWhere(&b, conds)
	b.WriteString(personColumns)
	b.WriteString(orderBy(p.Sort))
	b.WriteString(`
		LIMIT $limit`)

	return &Statement{Cypher: b.String(), Params: params, Shape: ShapePeople}
}

// lowerCompany matches companies with at least one owned contact and returns
// each with its roster.
func lowerCompany(p *plan.Plan, params map[string]interface{}) *Statement {
	conds := predicateConditions(p.Filters, companyFieldExpr, params)

	var b strings.Builder
	b.WriteString(`
		MATCH (:User {id: $ownerID})-[k:KNOWS]->(p:Person)-[:WORKS_AT]->(c:Company)`)
	writeWhere(&b, conds)
	b.WriteString(`
		WITH c, p, coalesce(k.strength, 0.0) as strength
		ORDER BY strength DESC, p.email
		WITH c,
		     collect({person_id: p.id, name: coalesce(p.name, p.email), email: p.email, title: p.title, strength: strength}) as roster,
		     max(strength) as top
		RETURN properties(c) as company, roster
		ORDER BY top DESC, c.name
		LIMIT $limit`)

	return &Statement{Cypher: b.String(), Params: params, Shape: ShapeCompanies}
}

// lowerGeneral runs a full-text search over the owner's people, ranked by
// text relevance with strength as the tie-break.
func lowerGeneral(p *plan.Plan, params map[string]interface{}) *Statement {
	params["text"] = FullTextQuery(p.Text)
	conds := predicateConditions(p.Filters, personFieldExpr, params)

	var b strings.Builder
	b.WriteString(`
		CALL db.index.fulltext.queryNodes('` + fullTextIndex + `', $text) YIELD node, score
		WITH node as p, score
		WHERE p.owner_id = $ownerID
		OPTIONAL MATCH (:User {id: $ownerID})-[k:KNOWS]->(p)
		OPTIONAL MATCH (p)-[:WORKS_AT]->(co:Company)
		WITH p, k, score, head(collect(co)) as c
		WITH p, c,
		     coalesce(k.strength, 0.0) as strength,
		     k.last_contact as last_contact,
		     1 as degree,
		     null as via,
		     score as relevance`)
	writeWhere(&b, conds)
	b.WriteString(personColumns)
	b.WriteString(`
		ORDER BY relevance DESC, strength DESC, p.email
		LIMIT $limit`)

	return &Statement{Cypher: b.String(), Params: params, Shape: ShapePeople}
}

// personFieldExpr maps a filter field to the properties it matches in a
// person-shaped query.
func personFieldExpr(f plan.Field) []string {
	switch f {
	case plan.FieldName:
		return []string{"p.name", "p.email"}
	case plan.FieldTitle:
		return []string{"p.title"}
	case plan.FieldCompany:
		return []string{"p.company", "c.name"}
	case plan.FieldLocation:
		return []string{"p.location"}
	case plan.FieldIndustry:
		return []string{"c.industry"}
	}
	return nil
}

// companyFieldExpr maps a filter field for company searches.
func companyFieldExpr(f plan.Field) []string {
	switch f {
	case plan.FieldName, plan.FieldCompany:
		return []string{"c.name", "c.domain"}
	case plan.FieldIndustry:
		return []string{"c.industry"}
	case plan.FieldLocation:
		return []string{"c.location", "p.location"}
	case plan.FieldTitle:
		return []string{"p.title"}
	}
	return nil
}

// predicateConditions renders one condition per predicate. Values within a
// predicate are OR-ed, predicates are AND-ed by the caller.
func predicateConditions(preds []plan.Predicate, fieldExpr func(plan.Field) []string, params map[string]interface{}) []string {
	conds := make([]string, 0, len(preds))
	for i, pred := range preds {
		exprs := fieldExpr(pred.Field)
		if len(exprs) == 0 || len(pred.AnyOf) == 0 {
			continue
		}
		name := fmt.Sprintf("f%d", i)
		params[name] = lowerAll(pred.AnyOf)

		matches := make([]string, len(exprs))
		for j, e := range exprs {
			matches[j] = fmt.Sprintf("toLower(coalesce(%s, '')) CONTAINS v", e)
		}
		conds = append(conds, fmt.Sprintf("ANY(v IN $%s WHERE %s)", name, strings.Join(matches, " OR ")))
	}
	return conds
}

func writeWhere(b *strings.Builder, conds []string) {
	if len(conds) == 0 {
		return
	}
	b.WriteString(`
		WHERE `)
	b.WriteString(strings.Join(conds, "\n		  AND "))
}

// orderBy renders the sort clause. Unknown keys fall back to strength.
func orderBy(sort plan.SortKey) string {
	switch sort {
	case plan.SortRecency:
		return `
		ORDER BY last_contact IS NULL, last_contact DESC, strength DESC, p.email`
	case plan.SortRelevance:
		return `
		ORDER BY degree ASC, strength DESC, p.email`
	}
	return `
		ORDER BY strength DESC, p.email`
}

func lowerAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.ToLower(strings.TrimSpace(v)); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// luceneSpecial lists characters with meaning in the Lucene query syntax.
const luceneSpecial = `+-&|!(){}[]^"~*?:\/`

// EscapeLucene escapes every Lucene special character in s.
func EscapeLucene(s string) string {
	var b strings.Builder
	for _, r := range s {
		if strings.ContainsRune(luceneSpecial, r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// FullTextQuery builds a forgiving Lucene query from free text: every term
// matches as a prefix, and longer terms also match with one typo.
func FullTextQuery(text string) string {
	terms := strings.Fields(strings.ToLower(text))
	parts := make([]string, 0, len(terms))
	for _, t := range terms {
		esc := EscapeLucene(t)
		if len([]rune(t)) >= 4 {
			parts = append(parts, fmt.Sprintf("(%s* OR %s~1)", esc, esc))
		} else {
			parts = append(parts, esc+"*")
		}
	}
	return strings.Join(parts, " ")
}
