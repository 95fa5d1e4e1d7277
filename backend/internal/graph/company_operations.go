package graph

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"
)

// ============================================================================
// Company Operations
// ============================================================================

// Enrichment retry policy for companies whose homepage could not be read.
const (
	// EnrichRetryAfter is multiplied by the attempt count to get the wait
	// before the next try.
	EnrichRetryAfter = 24 * time.Hour
	// MaxEnrichAttempts stops retrying a company for good.
	MaxEnrichAttempts = 5
)

// CompaniesMissingEnrichment returns companies with a domain that were never
// enriched and are not backing off after a failed attempt. Fewer attempts
// first, then most-linked.
func (r *Repository) CompaniesMissingEnrichment(ctx context.Context, limit int) ([]Company, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	if limit < 1 {
		limit = 50
	}

	query := `
		MATCH (c:Company)
		WHERE c.domain IS NOT NULL AND c.enriched_at IS NULL
		  AND coalesce(c.enrich_attempts, 0) < $maxAttempts
		  AND (c.enrich_attempted_at IS NULL
		       OR c.enrich_attempted_at < datetime() - duration({seconds: $retrySeconds * c.enrich_attempts}))
		OPTIONAL MATCH (c)<-[w:WORKS_AT]-(:Person)
		WITH c, count(w) as employees
		RETURN properties(c) as company
		ORDER BY coalesce(c.enrich_attempts, 0), employees DESC, c.domain
		LIMIT $limit
	`
	records, err := r.read(ctx, "list companies missing enrichment", query, map[string]interface{}{
		"limit":        limit,
		"maxAttempts":  MaxEnrichAttempts,
		"retrySeconds": int64(EnrichRetryAfter / time.Second),
	})
	if err != nil {
		return nil, err
	}

	companies := make([]Company, 0, len(records))
	for _, rec := range records {
		val, _ := rec.Get("company")
		if m, ok := val.(map[string]interface{}); ok {
			companies = append(companies, companyFromMap(m))
		}
	}
	return companies, nil
}

// ApplyCompanyEnrichment fills missing Company fields. Populated fields are
// never overwritten; enriched_at is set even when nothing was filled so the
// company is not fetched again.
func (r *Repository) ApplyCompanyEnrichment(ctx context.Context, domain string, e CompanyEnrichment) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	query := `
		MATCH (c:Company {domain: $domain})
		WITH c, ((c.name IS NULL OR c.name = c.domain) AND $name IS NOT NULL) AS rename
		SET c.name = CASE WHEN rename THEN $name ELSE c.name END,
		    c.name_key = CASE WHEN rename THEN $nameKey ELSE c.name_key END,
		    c.industry = coalesce(c.industry, $industry),
		    c.size = coalesce(c.size, $size),
		    c.location = coalesce(c.location, $location),
		    c.enriched_at = datetime()
		RETURN c.domain as domain
	`
	records, err := r.write(ctx, "apply company enrichment", query, map[string]interface{}{
		"domain":   strings.ToLower(strings.TrimSpace(domain)),
		"name":     nullIfEmpty(e.Name),
		"nameKey":  r.companyKeyParam(e.Name),
		"industry": nullIfEmpty(e.Industry),
		"size":     nullIfEmpty(e.Size),
		"location": nullIfEmpty(e.Location),
	})
	if err != nil {
		return err
	}

	r.logger.Debug("Company enrichment applied",
		zap.String("domain", domain),
		zap.Bool("found", len(records) > 0),
	)
	return nil
}

// RecordEnrichmentFailure notes a failed homepage lookup so the company backs
// off instead of heading every batch.
func (r *Repository) RecordEnrichmentFailure(ctx context.Context, domain, cause string) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	query := `
		MATCH (c:Company {domain: $domain})
		SET c.enrich_attempts = coalesce(c.enrich_attempts, 0) + 1,
		    c.enrich_attempted_at = datetime(),
		    c.enrich_error = $cause
	`
	_, err := r.write(ctx, "record enrichment failure", query, map[string]interface{}{
		"domain": strings.ToLower(strings.TrimSpace(domain)),
		"cause":  cause,
	})
	return err
}
