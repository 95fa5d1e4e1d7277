// Package enrich fills in company details from the company's own homepage.
package enrich

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"warmintro/backend/internal/graph"
	apperrors "warmintro/backend/pkg/errors"
	"warmintro/backend/pkg/logger"
)

// Defaults for the provider's request budget.
const (
	DefaultConcurrency = 5
	DefaultRPS         = 2.0
	DefaultTimeout     = 10 * time.Second
	DefaultBatch       = 50
	maxPageBytes       = 512 * 1024
)

// Store is the company access the enricher needs.
type Store interface {
	CompaniesMissingEnrichment(ctx context.Context, limit int) ([]graph.Company, error)
	ApplyCompanyEnrichment(ctx context.Context, domain string, e graph.CompanyEnrichment) error
	RecordEnrichmentFailure(ctx context.Context, domain, cause string) error
}

// Report is the outcome of one enrichment pass.
type Report struct {
	Candidates int `json:"candidates"`
	Enriched   int `json:"enriched"`
	Failed     int `json:"failed"`
}

// Enricher fetches homepages with bounded concurrency and a request rate cap.
type Enricher struct {
	store       Store
	client      *http.Client
	limiter     *rate.Limiter
	concurrency int
	urlFor      func(domain string) string
	logger      *zap.Logger
}

// NewEnricher creates an enricher. Non-positive settings take the defaults.
func NewEnricher(store Store, concurrency int, rps float64) *Enricher {
	if concurrency < 1 {
		concurrency = DefaultConcurrency
	}
	if rps <= 0 {
		rps = DefaultRPS
	}
	return &Enricher{
		store:       store,
		client:      &http.Client{Timeout: DefaultTimeout},
		limiter:     rate.NewLimiter(rate.Limit(rps), 1),
		concurrency: concurrency,
		urlFor:      func(domain string) string { return "https://" + domain },
		logger:      logger.Named("enrich"),
	}
}

// Run enriches up to limit companies that were never enriched. A company
// whose page cannot be fetched is counted and its attempt recorded so the
// store backs it off; a store outage aborts.
func (e *Enricher) Run(ctx context.Context, limit int) (*Report, error) {
	if limit < 1 {
		limit = DefaultBatch
	}
	companies, err := e.store.CompaniesMissingEnrichment(ctx, limit)
	if err != nil {
		return nil, err
	}

	report := &Report{Candidates: len(companies)}
	var enriched, failed int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for _, c := range companies {
		c := c
		g.Go(func() error {
			found, err := e.Lookup(gctx, c.Domain)
			if err != nil {
				if gctx.Err() != nil {
					return apperrors.NewContextCancelled("enrich", gctx.Err())
				}
				atomic.AddInt64(&failed, 1)
				e.logger.Warn("Company lookup failed",
					zap.String("domain", c.Domain),
					zap.Error(err),
				)
				if rerr := e.store.RecordEnrichmentFailure(gctx, c.Domain, err.Error()); rerr != nil {
					if apperrors.IsRetryable(rerr) {
						return rerr
					}
					e.logger.Warn("Failed to record enrichment attempt",
						zap.String("domain", c.Domain),
						zap.Error(rerr),
					)
				}
				return nil
			}
			if err := e.store.ApplyCompanyEnrichment(gctx, c.Domain, *found); err != nil {
				if apperrors.IsRetryable(err) {
					return err
				}
				atomic.AddInt64(&failed, 1)
				e.logger.Warn("Failed to save company enrichment",
					zap.String("domain", c.Domain),
					zap.Error(err),
				)
				return nil
			}
			atomic.AddInt64(&enriched, 1)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	report.Enriched = int(enriched)
	report.Failed = int(failed)
	e.logger.Info("Company enrichment completed",
		zap.Int("candidates", report.Candidates),
		zap.Int("enriched", report.Enriched),
		zap.Int("failed", report.Failed),
	)
	return report, nil
}

// Lookup fetches and parses one company homepage.
func (e *Enricher) Lookup(ctx context.Context, domain string) (*graph.CompanyEnrichment, error) {
	domain = strings.ToLower(strings.TrimSpace(domain))
	if domain == "" {
		return nil, apperrors.NewValidation("domain", "is required")
	}
	if err := e.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.urlFor(domain), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; WarmIntroBot/1.0)")
	req.Header.Set("Accept", "text/html")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, apperrors.NewUpstreamUnavailable(domain, "fetch homepage", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: HTTP %d", domain, resp.StatusCode)
	}

	found, err := ParseCompanyPage(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return nil, err
	}
	return &found, nil
}

// ParseCompanyPage reads the site name, description-derived industry and
// location from a homepage.
func ParseCompanyPage(r io.Reader) (graph.CompanyEnrichment, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return graph.CompanyEnrichment{}, fmt.Errorf("parse homepage: %w", err)
	}

	meta := func(selectors ...string) string {
		for _, sel := range selectors {
			if v, ok := doc.Find(sel).First().Attr("content"); ok {
				if v = strings.TrimSpace(v); v != "" {
					return v
				}
			}
		}
		return ""
	}

	name := meta(`meta[property="og:site_name"]`, `meta[name="application-name"]`)
	if name == "" {
		name = titleName(doc.Find("title").First().Text())
	}
	description := meta(`meta[name="description"]`, `meta[property="og:description"]`)
	location := meta(`meta[name="geo.placename"]`, `meta[property="og:locality"]`, `meta[property="business:contact_data:locality"]`)

	return graph.CompanyEnrichment{
		Name:     name,
		Industry: Industry(description + " " + meta(`meta[name="keywords"]`)),
		Location: location,
	}, nil
}

// titleName keeps the brand part of a page title such as "Acme | Payments".
func titleName(title string) string {
	title = strings.TrimSpace(title)
	for _, sep := range []string{" | ", " - ", " – ", " — ", ": "} {
		if i := strings.Index(title, sep); i > 0 {
			return strings.TrimSpace(title[:i])
		}
	}
	return title
}

// industryKeywords are checked in order; the first hit labels the company.
var industryKeywords = []struct {
	industry string
	words    []string
}{
	{"fintech", []string{"payments", "fintech", "banking", "lending", "invoicing"}},
	{"healthcare", []string{"healthcare", "patients", "clinical", "medical", "health"}},
	{"biotech", []string{"biotech", "therapeutics", "genomics"}},
	{"security", []string{"security", "cybersecurity", "threat"}},
	{"ai", []string{"artificial intelligence", "machine learning", " ai ", "llm"}},
	{"ecommerce", []string{"e-commerce", "ecommerce", "online store", "shopping"}},
	{"education", []string{"education", "learning platform", "students"}},
	{"gaming", []string{"games", "gaming"}},
	{"media", []string{"media", "news", "publishing"}},
	{"real estate", []string{"real estate", "property", "homes"}},
	{"logistics", []string{"logistics", "shipping", "freight", "supply chain"}},
	{"energy", []string{"energy", "solar", "climate"}},
	{"consulting", []string{"consulting", "advisory"}},
	{"saas", []string{"software", "saas", "platform", "cloud"}},
}

// Industry labels free text with the first matching industry, or "".
func Industry(text string) string {
	text = " " + strings.ToLower(text) + " "
	for _, k := range industryKeywords {
		for _, w := range k.words {
			if strings.Contains(text, w) {
				return k.industry
			}
		}
	}
	return ""
}
