package graph

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"

	apperrors "warmintro/backend/pkg/errors"
)

// ============================================================================
// Helper Functions
// ============================================================================

func getStringFromRecord(record *neo4j.Record, key string) string {
	val, ok := record.Get(key)
	if !ok || val == nil {
		return ""
	}
	if str, ok := val.(string); ok {
		return str
	}
	return ""
}

func getIntFromRecord(record *neo4j.Record, key string) int {
	val, ok := record.Get(key)
	if !ok || val == nil {
		return 0
	}
	return toInt(val)
}

func getFloat64FromRecord(record *neo4j.Record, key string) float64 {
	val, ok := record.Get(key)
	if !ok || val == nil {
		return 0.0
	}
	return toFloat64(val)
}

func getStringSliceFromRecord(record *neo4j.Record, key string) []string {
	val, ok := record.Get(key)
	if !ok || val == nil {
		return []string{}
	}
	return toStringSlice(val)
}

func getTimePtrFromRecord(record *neo4j.Record, key string) *time.Time {
	val, ok := record.Get(key)
	if !ok || val == nil {
		return nil
	}
	return toTimePtr(val)
}

func getStringFromMap(m map[string]interface{}, key, defaultValue string) string {
	val, ok := m[key]
	if !ok || val == nil {
		return defaultValue
	}
	if str, ok := val.(string); ok {
		return str
	}
	return defaultValue
}

func getFloat64FromMap(m map[string]interface{}, key string, defaultValue float64) float64 {
	val, ok := m[key]
	if !ok || val == nil {
		return defaultValue
	}
	return toFloat64(val)
}

func toInt(val interface{}) int {
	switch v := val.(type) {
	case int64:
		return int(v)
	case int:
		return v
	case float64:
		return int(v)
	}
	return 0
}

func toFloat64(val interface{}) float64 {
	switch v := val.(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	case int:
		return float64(v)
	}
	return 0.0
}

func toStringSlice(val interface{}) []string {
	switch v := val.(type) {
	case []string:
		return v
	case []interface{}:
		result := make([]string, 0, len(v))
		for _, item := range v {
			if str, ok := item.(string); ok {
				result = append(result, str)
			}
		}
		return result
	}
	return []string{}
}

// toTimePtr converts the driver's temporal values. Neo4j datetime values
// arrive as time.Time, local datetimes as dbtype.LocalDateTime.
func toTimePtr(val interface{}) *time.Time {
	switch v := val.(type) {
	case time.Time:
		t := v.UTC()
		return &t
	case dbtype.LocalDateTime:
		t := v.Time().UTC()
		return &t
	case dbtype.Date:
		t := v.Time().UTC()
		return &t
	case string:
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}

func timeParam(t *time.Time) interface{} {
	if t == nil || t.IsZero() {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}

// nodeFromMap reads the projection produced by nodeProjection.
func nodeFromMap(m map[string]interface{}) Node {
	return Node{
		ID:      getStringFromMap(m, "id", ""),
		Label:   getStringFromMap(m, "label", ""),
		OwnerID: getStringFromMap(m, "owner_id", ""),
		Name:    getStringFromMap(m, "name", ""),
		Email:   getStringFromMap(m, "email", ""),
		Title:   getStringFromMap(m, "title", ""),
		Company: getStringFromMap(m, "company", ""),
	}
}

// nodeProjection renders a Cypher map projection for variable v that
// nodeFromMap understands.
func nodeProjection(v string) string {
	return fmt.Sprintf(`{id: %[1]s.id, label: head(labels(%[1]s)), owner_id: %[1]s.owner_id, name: coalesce(%[1]s.name, %[1]s.email), email: %[1]s.email, title: %[1]s.title, company: %[1]s.company}`, v)
}

// personFromMap reads a Person returned as properties(p).
func personFromMap(m map[string]interface{}) Person {
	p := Person{
		ID:          getStringFromMap(m, "id", ""),
		OwnerID:     getStringFromMap(m, "owner_id", ""),
		Email:       getStringFromMap(m, "email", ""),
		Name:        getStringFromMap(m, "name", ""),
		FirstName:   getStringFromMap(m, "first_name", ""),
		LastName:    getStringFromMap(m, "last_name", ""),
		Phone:       getStringFromMap(m, "phone", ""),
		Title:       getStringFromMap(m, "title", ""),
		Company:     getStringFromMap(m, "company", ""),
		Location:    getStringFromMap(m, "location", ""),
		LinkedInURL: getStringFromMap(m, "linkedin_url", ""),
		Bio:         getStringFromMap(m, "bio", ""),
		Sources:     toStringSlice(m["sources"]),
		EnrichedAt:  toTimePtr(m["enriched_at"]),
	}
	if t := toTimePtr(m["created_at"]); t != nil {
		p.CreatedAt = *t
	}
	if t := toTimePtr(m["updated_at"]); t != nil {
		p.UpdatedAt = *t
	}
	return p
}

func personFromRecord(record *neo4j.Record, key string) (Person, bool) {
	val, ok := record.Get(key)
	if !ok || val == nil {
		return Person{}, false
	}
	switch v := val.(type) {
	case map[string]interface{}:
		return personFromMap(v), true
	case neo4j.Node:
		return personFromMap(v.Props), true
	}
	return Person{}, false
}

func companyFromMap(m map[string]interface{}) Company {
	return Company{
		Name:           getStringFromMap(m, "name", ""),
		Domain:         getStringFromMap(m, "domain", ""),
		Industry:       getStringFromMap(m, "industry", ""),
		Size:           getStringFromMap(m, "size", ""),
		Location:       getStringFromMap(m, "location", ""),
		EnrichedAt:     toTimePtr(m["enriched_at"]),
		EnrichAttempts: toInt(m["enrich_attempts"]),
	}
}

// wrapErr classifies a driver failure. Connectivity problems and expired
// deadlines are retryable upstream outages; everything else is wrapped as is.
func wrapErr(operation string, err error) error {
	if err == nil {
		return nil
	}
	if neo4j.IsConnectivityError(err) || stderrors.Is(err, context.DeadlineExceeded) {
		return apperrors.NewUpstreamUnavailable("neo4j", operation, err)
	}
	return fmt.Errorf("failed to %s: %w", operation, err)
}
