package maintenance

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"warmintro/backend/internal/dedup"
	"warmintro/backend/internal/enrich"
	"warmintro/backend/internal/graph"
	"warmintro/backend/internal/jobs"
	"warmintro/backend/internal/scoring"
)

type staticOwners []string

func (o staticOwners) ListOwners(ctx context.Context) ([]string, error) { return o, nil }

type mockScorer struct {
	mu      sync.Mutex
	failFor string
	scored  []string
	started chan struct{}
	release chan struct{}
}

func (m *mockScorer) ScoreAll(ctx context.Context, ownerID string) (*scoring.Summary, error) {
	if m.started != nil {
		m.started <- struct{}{}
		<-m.release
	}
	if ownerID == m.failFor {
		return nil, errors.New("neo4j timeout")
	}
	m.mu.Lock()
	m.scored = append(m.scored, ownerID)
	m.mu.Unlock()
	return &scoring.Summary{OwnerID: ownerID, Scored: 3}, nil
}

func (m *mockScorer) FindStale(ctx context.Context, ownerID string, opts scoring.StaleOptions) ([]graph.StaleRelationship, error) {
	return []graph.StaleRelationship{{PersonID: "p1"}}, nil
}

type mockSweeper struct{}

func (mockSweeper) FindAndMergeDuplicates(ctx context.Context, ownerID string) (*dedup.SweepReport, error) {
	return &dedup.SweepReport{EmailGroups: 1, Merged: 2}, nil
}

type mockEnricher struct{ calls int }

func (m *mockEnricher) Run(ctx context.Context, limit int) (*enrich.Report, error) {
	m.calls++
	return &enrich.Report{Candidates: 1, Enriched: 1}, nil
}

type mockJobs struct {
	mu        sync.Mutex
	completed int
	failed    int
}

func (m *mockJobs) Create(ctx context.Context, ownerID, kind string) (*jobs.SyncJob, error) {
	return &jobs.SyncJob{ID: "job-" + ownerID, OwnerID: ownerID, Kind: kind}, nil
}

func (m *mockJobs) MarkRunning(ctx context.Context, id string) error { return nil }

func (m *mockJobs) Complete(ctx context.Context, id string, processed, failed int, detail string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.completed++
	return nil
}

func (m *mockJobs) Fail(ctx context.Context, id string, cause error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failed++
	return nil
}

func TestRunOnce(t *testing.T) {
	scorer := &mockScorer{failFor: "u2"}
	enricher := &mockEnricher{}
	tracker := &mockJobs{}
	r := NewRunner(Deps{
		Owners:   staticOwners{"u1", "u2", "u3"},
		Scorer:   scorer,
		Sweeper:  mockSweeper{},
		Enricher: enricher,
		Jobs:     tracker,
	}, 2)

	report, err := r.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, report.Succeeded)
	assert.Equal(t, 1, report.Failed)
	require.Len(t, report.Owners, 3)
	assert.Equal(t, "u1", report.Owners[0].OwnerID)
	assert.Equal(t, 3, report.Owners[0].Scored)
	assert.Equal(t, 2, report.Owners[0].Merged)
	assert.Equal(t, 1, report.Owners[0].Stale)
	assert.Contains(t, report.Owners[1].Error, "rescore")

	sort.Strings(scorer.scored)
	assert.Equal(t, []string{"u1", "u3"}, scorer.scored)
	assert.Equal(t, 1, enricher.calls)
	require.NotNil(t, report.Enriched)
	assert.Equal(t, 2, tracker.completed)
	assert.Equal(t, 1, tracker.failed)
}

func TestRunOnce_SingleInstance(t *testing.T) {
	scorer := &mockScorer{started: make(chan struct{}), release: make(chan struct{})}
	r := NewRunner(Deps{
		Owners:  staticOwners{"u1"},
		Scorer:  scorer,
		Sweeper: mockSweeper{},
	}, 1)

	done := make(chan error, 1)
	go func() {
		_, err := r.RunOnce(context.Background())
		done <- err
	}()

	<-scorer.started
	_, err := r.RunOnce(context.Background())
	assert.ErrorIs(t, err, ErrAlreadyRunning)

	close(scorer.release)
	require.NoError(t, <-done)

	// The guard is released once the pass finishes.
	scorer.started = nil
	_, err = r.RunOnce(context.Background())
	assert.NoError(t, err)
}

func TestRunOnce_NoOwners(t *testing.T) {
	r := NewRunner(Deps{Owners: staticOwners{}, Scorer: &mockScorer{}, Sweeper: mockSweeper{}}, 0)
	report, err := r.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Empty(t, report.Owners)
	assert.Nil(t, report.Enriched)
}
