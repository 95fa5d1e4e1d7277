package dedup

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"warmintro/backend/internal/contact"
	"warmintro/backend/internal/graph"
	apperrors "warmintro/backend/pkg/errors"
)

// mockStore is an in-memory Store keyed by owner.
type mockStore struct {
	people      []graph.Person
	groups      []graph.DuplicateGroup
	merged      map[string][]string
	mergeErr    map[string]error
	emailErr    error
	lookupCalls int
}

func (m *mockStore) FindPersonByEmail(ctx context.Context, ownerID, email string) (*graph.Person, error) {
	m.lookupCalls++
	if m.emailErr != nil {
		return nil, m.emailErr
	}
	for _, p := range m.people {
		if p.OwnerID == ownerID && p.Email == contact.NormalizeEmail(email) {
			cp := p
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *mockStore) FindPersonsByFirstName(ctx context.Context, ownerID, firstName string) ([]graph.Person, error) {
	var out []graph.Person
	for _, p := range m.people {
		if p.OwnerID == ownerID && strings.EqualFold(p.FirstName, strings.TrimSpace(firstName)) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *mockStore) FindDuplicateEmailGroups(ctx context.Context, ownerID string) ([]graph.DuplicateGroup, error) {
	return m.groups, nil
}

func (m *mockStore) MergePersons(ctx context.Context, ownerID, canonicalID string, duplicateIDs []string) error {
	if err := m.mergeErr[canonicalID]; err != nil {
		return err
	}
	if m.merged == nil {
		m.merged = make(map[string][]string)
	}
	m.merged[canonicalID] = append(m.merged[canonicalID], duplicateIDs...)
	return nil
}

func (m *mockStore) ListPersonIdentities(ctx context.Context, ownerID string) ([]graph.Person, error) {
	var out []graph.Person
	for _, p := range m.people {
		if p.OwnerID == ownerID {
			out = append(out, p)
		}
	}
	return out, nil
}

const owner = "owner-1"

func newTestEngine(store Store, mode contact.MatchMode) *Engine {
	return NewEngine(store, ".placeholder", mode, nil)
}

func TestDeduplicate_BatchCollapseLastNonEmptyWins(t *testing.T) {
	engine := newTestEngine(&mockStore{}, contact.MatchExact)

	result, err := engine.Deduplicate(context.Background(), []contact.Contact{
		{Email: "a@x.com", Source: "gmail"},
		{Email: "a@x.com", Company: "Acme", Source: "gmail"},
	}, owner)
	require.NoError(t, err)

	require.Len(t, result.Contacts, 1)
	assert.Equal(t, "Acme", result.Contacts[0].Contact.Company)
	assert.False(t, result.Contacts[0].Existing)
	assert.Equal(t, 1, result.Inserts)
	assert.Equal(t, 2, result.Received)
}

func TestDeduplicate_ExactEmailMatchUpdates(t *testing.T) {
	store := &mockStore{people: []graph.Person{
		{ID: "p1", OwnerID: owner, Email: "jane@acme.com", Name: "Jane", Title: "Engineer", Sources: []string{"mail"}},
	}}
	engine := newTestEngine(store, contact.MatchExact)

	result, err := engine.Deduplicate(context.Background(), []contact.Contact{
		{Email: "Jane@Acme.com", Title: "Manager", Source: "contacts"},
	}, owner)
	require.NoError(t, err)

	require.Len(t, result.Contacts, 1)
	r := result.Contacts[0]
	assert.True(t, r.Existing)
	assert.Equal(t, "p1", r.PersonID)
	assert.Equal(t, MatchedByEmail, r.MatchedBy)
	assert.Equal(t, "jane@acme.com", r.Contact.Email)
	assert.Equal(t, "Jane", r.Contact.Name)
	assert.Equal(t, "Manager", r.Contact.Title)
	assert.Equal(t, []string{"mail", "contacts"}, r.Sources)
	assert.Equal(t, 1, result.Updates)
}

func TestDeduplicate_PlaceholderMergesIntoRealEmail(t *testing.T) {
	store := &mockStore{people: []graph.Person{
		{ID: "p1", OwnerID: owner, Email: "john@acme.com", FirstName: "John", Company: "Acme"},
	}}
	engine := newTestEngine(store, contact.MatchExact)

	result, err := engine.Deduplicate(context.Background(), []contact.Contact{
		{Email: "john.doe@linkedin.placeholder", FirstName: "John", Company: "acme", Source: "linkedin"},
	}, owner)
	require.NoError(t, err)

	require.Len(t, result.Contacts, 1)
	assert.Equal(t, "john@acme.com", result.Contacts[0].Contact.Email)
	assert.Equal(t, "p1", result.Contacts[0].PersonID)
	assert.Equal(t, MatchedByFirstNameCompany, result.Contacts[0].MatchedBy)
	assert.Equal(t, 0, store.lookupCalls, "placeholders never hit the email lookup")
}

func TestDeduplicate_PlaceholderDropped(t *testing.T) {
	store := &mockStore{people: []graph.Person{
		{ID: "p1", OwnerID: owner, Email: "john@acme.com", FirstName: "John", Company: "Acme"},
	}}
	engine := newTestEngine(store, contact.MatchExact)

	result, err := engine.Deduplicate(context.Background(), []contact.Contact{
		{Email: "john.doe@csv.placeholder", FirstName: "John"},
		{Email: "mary@csv.placeholder", FirstName: "Mary", Company: "Acme"},
		{Email: "john.x@csv.placeholder", FirstName: "John", Company: "Acme Inc."},
	}, owner)
	require.NoError(t, err)

	assert.Empty(t, result.Contacts)
	assert.Equal(t, 3, result.Dropped)
}

func TestDeduplicate_NormalizedCompanyMode(t *testing.T) {
	store := &mockStore{people: []graph.Person{
		{ID: "p1", OwnerID: owner, Email: "john@acme.com", FirstName: "John", Company: "Acme"},
	}}
	engine := newTestEngine(store, contact.MatchNormalized)

	result, err := engine.Deduplicate(context.Background(), []contact.Contact{
		{Email: "john.x@csv.placeholder", FirstName: "John", Company: "Acme Inc."},
	}, owner)
	require.NoError(t, err)
	require.Len(t, result.Contacts, 1)
	assert.Equal(t, "p1", result.Contacts[0].PersonID)
}

func TestDeduplicate_AmbiguousMatch(t *testing.T) {
	store := &mockStore{people: []graph.Person{
		{ID: "old", OwnerID: owner, Email: "john.a@acme.com", FirstName: "John", LastName: "Adams", Company: "Acme"},
		{ID: "new", OwnerID: owner, Email: "john.s@acme.com", FirstName: "John", LastName: "Smith", Company: "Acme"},
	}}
	engine := newTestEngine(store, contact.MatchExact)

	result, err := engine.Deduplicate(context.Background(), []contact.Contact{
		{Email: "john.smith@csv.placeholder", FirstName: "John", LastName: "Smith", Company: "Acme"},
		{Email: "john@csv.placeholder", FirstName: "John", Company: "Acme"},
	}, owner)
	require.NoError(t, err)

	require.Len(t, result.Contacts, 2)
	assert.Equal(t, "new", result.Contacts[0].PersonID)
	assert.Equal(t, MatchedByFullNameCompany, result.Contacts[0].MatchedBy)
	assert.Equal(t, "old", result.Contacts[1].PersonID)
	assert.Equal(t, MatchedByFirstNameCompany, result.Contacts[1].MatchedBy)
}

func TestDeduplicate_LookupFailures(t *testing.T) {
	t.Run("non-retryable failure skips the record", func(t *testing.T) {
		engine := newTestEngine(&mockStore{emailErr: errors.New("bad row")}, contact.MatchExact)
		result, err := engine.Deduplicate(context.Background(), []contact.Contact{
			{Email: "a@x.com"}, {Email: "b@x.com"},
		}, owner)
		require.NoError(t, err)
		assert.Equal(t, 2, result.Failed)
		assert.Empty(t, result.Contacts)
	})

	t.Run("upstream outage aborts", func(t *testing.T) {
		outage := apperrors.NewUpstreamUnavailable("neo4j", "find person", errors.New("connection refused"))
		engine := newTestEngine(&mockStore{emailErr: outage}, contact.MatchExact)
		_, err := engine.Deduplicate(context.Background(), []contact.Contact{{Email: "a@x.com"}}, owner)
		require.Error(t, err)
		assert.True(t, apperrors.IsRetryable(err))
	})
}

func TestFindAndMergeDuplicates(t *testing.T) {
	store := &mockStore{
		groups: []graph.DuplicateGroup{
			{Email: "a@x.com", PersonIDs: []string{"a1", "a2", "a3"}},
			{Email: "b@x.com", PersonIDs: []string{"b1", "b2"}},
		},
		mergeErr: map[string]error{"b1": errors.New("deadlock")},
		people: []graph.Person{
			{ID: "p1", OwnerID: owner, Email: "sam@acme.com", FirstName: "Sam", Company: "Acme"},
			{ID: "p2", OwnerID: owner, Email: "sam.k@acme.com", FirstName: "sam", Company: "ACME"},
			{ID: "p3", OwnerID: owner, Email: "sam@other.com", FirstName: "Sam", Company: "Other"},
			{ID: "p4", OwnerID: owner, Email: "noname@acme.com", Company: "Acme"},
		},
	}
	engine := newTestEngine(store, contact.MatchExact)

	report, err := engine.FindAndMergeDuplicates(context.Background(), owner)
	require.NoError(t, err)

	assert.Equal(t, 2, report.EmailGroups)
	assert.Equal(t, 2, report.Merged)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, []string{"a2", "a3"}, store.merged["a1"])

	require.Len(t, report.Candidates, 1)
	assert.Equal(t, []string{"p1", "p2"}, report.Candidates[0].PersonIDs)
	assert.Equal(t, "sam", report.Candidates[0].FirstName)
	assert.Len(t, store.merged, 1, "look-alikes are never merged")
}
