package ingest

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"warmintro/backend/internal/contact"
	"warmintro/backend/internal/dedup"
	"warmintro/backend/internal/graph"
	"warmintro/backend/internal/jobs"
	"warmintro/backend/internal/scoring"
	apperrors "warmintro/backend/pkg/errors"
)

// passThrough resolves every contact with an email as-is.
type passThrough struct{}

func (passThrough) Deduplicate(ctx context.Context, contacts []contact.Contact, ownerID string) (*dedup.Result, error) {
	res := &dedup.Result{Received: len(contacts)}
	for _, c := range contacts {
		if c.Email == "" {
			res.Dropped++
			continue
		}
		res.Contacts = append(res.Contacts, dedup.Resolved{Contact: c, Sources: []string{c.Source}})
	}
	return res, nil
}

type mockStore struct {
	existing map[string]bool
	failures map[string]error
	users    []string
	upserted []string
}

func (m *mockStore) EnsureUser(ctx context.Context, ownerID string) error {
	m.users = append(m.users, ownerID)
	return nil
}

func (m *mockStore) UpsertContact(ctx context.Context, ownerID string, c contact.Contact, sources []string) (*graph.UpsertResult, error) {
	if err := m.failures[c.Email]; err != nil {
		return nil, err
	}
	m.upserted = append(m.upserted, c.Email)
	return &graph.UpsertResult{PersonID: "id-" + c.Email, Created: !m.existing[c.Email]}, nil
}

type mockScorer struct {
	calls int
	err   error
}

func (m *mockScorer) ScoreAll(ctx context.Context, ownerID string) (*scoring.Summary, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return &scoring.Summary{OwnerID: ownerID, Scored: 7}, nil
}

type mockJobs struct {
	created   int
	completed map[string]int
	failed    map[string]error
}

func newMockJobs() *mockJobs {
	return &mockJobs{completed: map[string]int{}, failed: map[string]error{}}
}

func (m *mockJobs) Create(ctx context.Context, ownerID, kind string) (*jobs.SyncJob, error) {
	m.created++
	return &jobs.SyncJob{ID: "job-1", OwnerID: ownerID, Kind: kind}, nil
}

func (m *mockJobs) MarkRunning(ctx context.Context, id string) error { return nil }

func (m *mockJobs) Complete(ctx context.Context, id string, processed, failed int, detail string) error {
	m.completed[id] = processed
	return nil
}

func (m *mockJobs) Fail(ctx context.Context, id string, cause error) error {
	m.failed[id] = cause
	return nil
}

func batch() []contact.Contact {
	return []contact.Contact{
		{Email: "a@x.com", Name: "A", Source: "mail"},
		{Email: "b@x.com", Name: "B", Source: "mail"},
		{Email: "", Name: "No Email", Source: "csv"},
		{Email: "c@x.com", Name: "C", Source: "calendar"},
	}
}

func TestPipeline_Run(t *testing.T) {
	store := &mockStore{existing: map[string]bool{"b@x.com": true}}
	scorer := &mockScorer{}
	tracker := newMockJobs()
	p := NewPipeline(passThrough{}, store, scorer, tracker, nil)

	report, err := p.Run(context.Background(), "user-1", batch())
	require.NoError(t, err)

	assert.Equal(t, "job-1", report.JobID)
	assert.Equal(t, 4, report.Received)
	assert.Equal(t, 3, report.Unique)
	assert.Equal(t, 1, report.Dropped)
	assert.Equal(t, 2, report.Inserted)
	assert.Equal(t, 1, report.Updated)
	assert.Equal(t, 0, report.Failed)
	assert.Equal(t, 7, report.Scored)
	assert.Empty(t, report.PartialFailure)

	assert.Equal(t, []string{"user-1"}, store.users)
	assert.Equal(t, 1, scorer.calls)
	assert.Equal(t, 3, tracker.completed["job-1"])
}

func TestPipeline_PerRecordFailureDoesNotAbort(t *testing.T) {
	store := &mockStore{failures: map[string]error{"b@x.com": errors.New("constraint violation")}}
	p := NewPipeline(passThrough{}, store, &mockScorer{}, nil, nil)

	report, err := p.Run(context.Background(), "user-1", batch())
	require.NoError(t, err)

	assert.Equal(t, 2, report.Inserted)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, []string{"a@x.com", "c@x.com"}, store.upserted)
	assert.Contains(t, report.PartialFailure, "1 of 3")
}

func TestPipeline_StoreOutageAborts(t *testing.T) {
	down := apperrors.NewUpstreamUnavailable("neo4j", "upsert contact", errors.New("refused"))
	store := &mockStore{failures: map[string]error{"a@x.com": down}}
	tracker := newMockJobs()
	p := NewPipeline(passThrough{}, store, &mockScorer{}, tracker, nil)

	_, err := p.Run(context.Background(), "user-1", batch())
	require.Error(t, err)
	assert.True(t, apperrors.IsRetryable(err))
	assert.Empty(t, store.upserted)
	assert.Contains(t, tracker.failed, "job-1")
}

func TestPipeline_ScoringFailureKeepsReport(t *testing.T) {
	p := NewPipeline(passThrough{}, &mockStore{}, &mockScorer{err: errors.New("timeout")}, nil, nil)

	report, err := p.Run(context.Background(), "user-1", batch())
	require.NoError(t, err)
	assert.Equal(t, 3, report.Inserted)
	assert.Equal(t, 0, report.Scored)
}

func TestPipeline_EmptyBatchSkipsScoring(t *testing.T) {
	scorer := &mockScorer{}
	p := NewPipeline(passThrough{}, &mockStore{}, scorer, nil, nil)

	report, err := p.Run(context.Background(), "user-1", nil)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Received)
	assert.Equal(t, 0, scorer.calls)
}

func TestPipeline_RequiresOwner(t *testing.T) {
	p := NewPipeline(passThrough{}, &mockStore{}, &mockScorer{}, nil, nil)
	_, err := p.Run(context.Background(), "", batch())
	assert.True(t, apperrors.IsValidation(err))
}
