package enrich

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"warmintro/backend/internal/graph"
	apperrors "warmintro/backend/pkg/errors"
)

const acmePage = `<html><head>
<title>Acme | Payments for everyone</title>
<meta property="og:site_name" content="Acme Corp">
<meta name="description" content="Acme builds payments infrastructure for online businesses.">
<meta name="geo.placename" content="San Francisco">
</head><body>hi</body></html>`

type mockStore struct {
	mu        sync.Mutex
	companies []graph.Company
	applied   map[string]graph.CompanyEnrichment
	failures  map[string]int
	applyErr  error
}

// CompaniesMissingEnrichment skips enriched and previously failed companies,
// as the graph store does while a failure is backing off.
func (m *mockStore) CompaniesMissingEnrichment(ctx context.Context, limit int) ([]graph.Company, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []graph.Company
	for _, c := range m.companies {
		if _, done := m.applied[c.Domain]; done {
			continue
		}
		if m.failures[c.Domain] > 0 {
			continue
		}
		out = append(out, c)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *mockStore) RecordEnrichmentFailure(ctx context.Context, domain, cause string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failures == nil {
		m.failures = map[string]int{}
	}
	m.failures[domain]++
	return nil
}

func (m *mockStore) ApplyCompanyEnrichment(ctx context.Context, domain string, e graph.CompanyEnrichment) error {
	if m.applyErr != nil {
		return m.applyErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.applied[domain] = e
	return nil
}

func TestParseCompanyPage(t *testing.T) {
	got, err := ParseCompanyPage(strings.NewReader(acmePage))
	require.NoError(t, err)
	assert.Equal(t, "Acme Corp", got.Name)
	assert.Equal(t, "fintech", got.Industry)
	assert.Equal(t, "San Francisco", got.Location)

	got, err = ParseCompanyPage(strings.NewReader(`<html><head><title>Globex - Home</title></head></html>`))
	require.NoError(t, err)
	assert.Equal(t, "Globex", got.Name)
	assert.Empty(t, got.Industry)
	assert.Empty(t, got.Location)
}

func TestIndustry(t *testing.T) {
	assert.Equal(t, "healthcare", Industry("Better care for patients"))
	assert.Equal(t, "saas", Industry("The platform for teams"))
	assert.Equal(t, "ai", Industry("We do AI for lawyers"))
	assert.Empty(t, Industry("We make chairs"))
}

func newTestEnricher(t *testing.T, store Store) (*Enricher, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("domain") == "broken.com" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(acmePage))
	}))
	t.Cleanup(server.Close)

	e := NewEnricher(store, 2, 1000)
	e.urlFor = func(domain string) string { return server.URL + "/?domain=" + domain }
	return e, server
}

func TestEnricher_Run(t *testing.T) {
	store := &mockStore{
		companies: []graph.Company{{Domain: "acme.com"}, {Domain: "broken.com"}, {Domain: "globex.com"}},
		applied:   map[string]graph.CompanyEnrichment{},
	}
	e, _ := newTestEnricher(t, store)

	report, err := e.Run(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Candidates)
	assert.Equal(t, 2, report.Enriched)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, "Acme Corp", store.applied["acme.com"].Name)
	assert.NotContains(t, store.applied, "broken.com")
	assert.Equal(t, 1, store.failures["broken.com"])
}

func TestEnricher_FailedDomainDoesNotBlockNextBatch(t *testing.T) {
	store := &mockStore{
		companies: []graph.Company{{Domain: "broken.com"}, {Domain: "acme.com"}},
		applied:   map[string]graph.CompanyEnrichment{},
	}
	e, _ := newTestEnricher(t, store)

	report, err := e.Run(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 1, store.failures["broken.com"])

	report, err = e.Run(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Candidates)
	assert.Equal(t, 1, report.Enriched)
	assert.Contains(t, store.applied, "acme.com")
}

func TestEnricher_StoreOutageAborts(t *testing.T) {
	store := &mockStore{
		companies: []graph.Company{{Domain: "acme.com"}},
		applyErr:  apperrors.NewUpstreamUnavailable("neo4j", "apply company enrichment", errors.New("refused")),
	}
	e, _ := newTestEnricher(t, store)

	_, err := e.Run(context.Background(), 10)
	require.Error(t, err)
	assert.True(t, apperrors.IsRetryable(err))
}

func TestEnricher_LookupValidation(t *testing.T) {
	e := NewEnricher(&mockStore{}, 0, 0)
	assert.Equal(t, DefaultConcurrency, e.concurrency)
	_, err := e.Lookup(context.Background(), " ")
	assert.True(t, apperrors.IsValidation(err))
}
