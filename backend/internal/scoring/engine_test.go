package scoring

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"warmintro/backend/internal/graph"
	apperrors "warmintro/backend/pkg/errors"
)

type stored struct {
	strength  float64
	breakdown graph.ScoreBreakdown
}

type mockStore struct {
	owners    []string
	edges     map[string][]graph.KnowsEdge
	scores    map[string]stored
	failFor   map[string]error
	listErr   map[string]error
	staleArgs struct {
		cutoff   time.Time
		maxScore float64
		limit    int
	}
}

func newMockStore() *mockStore {
	return &mockStore{
		edges:   make(map[string][]graph.KnowsEdge),
		scores:  make(map[string]stored),
		failFor: make(map[string]error),
		listErr: make(map[string]error),
	}
}

func (m *mockStore) ListOwners(ctx context.Context) ([]string, error) {
	return m.owners, nil
}

func (m *mockStore) ListKnows(ctx context.Context, ownerID string) ([]graph.KnowsEdge, error) {
	if err := m.listErr[ownerID]; err != nil {
		return nil, err
	}
	return m.edges[ownerID], nil
}

func (m *mockStore) GetKnows(ctx context.Context, ownerID, email string) (*graph.KnowsEdge, error) {
	for _, e := range m.edges[ownerID] {
		if e.Email == email {
			cp := e
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *mockStore) UpdateStrength(ctx context.Context, ownerID, personID string, strength float64, breakdown graph.ScoreBreakdown) error {
	if err := m.failFor[personID]; err != nil {
		return err
	}
	m.scores[personID] = stored{strength, breakdown}
	return nil
}

func (m *mockStore) FindStale(ctx context.Context, ownerID string, cutoff time.Time, maxScore float64, limit int) ([]graph.StaleRelationship, error) {
	m.staleArgs.cutoff = cutoff
	m.staleArgs.maxScore = maxScore
	m.staleArgs.limit = limit
	return []graph.StaleRelationship{{PersonID: "p1"}}, nil
}

func newTestEngine(store Store) *Engine {
	e := NewEngine(store)
	e.now = func() time.Time { return refNow }
	return e
}

func sampleEdge(personID, email string) graph.KnowsEdge {
	return graph.KnowsEdge{
		PersonID:         personID,
		Email:            email,
		LastContact:      daysAgo(10),
		FirstContact:     daysAgo(730),
		InteractionCount: 40,
		EmailsSent:       20,
		EmailsReceived:   18,
		MeetingCount:     2,
		Sources:          []string{"mail", "calendar"},
	}
}

func TestScoreAll(t *testing.T) {
	store := newMockStore()
	store.edges["o1"] = []graph.KnowsEdge{
		sampleEdge("p1", "a@x.com"),
		{PersonID: "p2", Email: "b@x.com"},
	}
	engine := newTestEngine(store)

	summary, err := engine.ScoreAll(context.Background(), "o1")
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Scored)
	assert.InDelta(t, 82.7, store.scores["p1"].strength, 0.001)
	assert.Equal(t, 0.0, store.scores["p2"].strength)
	assert.InDelta(t, 41.35, summary.AverageScore, 0.001)

	// Idempotent: a second run without new interactions changes nothing.
	first := store.scores["p1"]
	_, err = engine.ScoreAll(context.Background(), "o1")
	require.NoError(t, err)
	assert.Equal(t, first, store.scores["p1"])
}

func TestScoreAll_EdgeFailures(t *testing.T) {
	store := newMockStore()
	store.edges["o1"] = []graph.KnowsEdge{sampleEdge("p1", "a@x.com"), sampleEdge("p2", "b@x.com")}
	store.failFor["p1"] = errors.New("constraint violation")
	engine := newTestEngine(store)

	summary, err := engine.ScoreAll(context.Background(), "o1")
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Scored)
	assert.Equal(t, 1, summary.Failed)

	store.failFor["p1"] = apperrors.NewUpstreamUnavailable("neo4j", "update strength", errors.New("down"))
	_, err = engine.ScoreAll(context.Background(), "o1")
	assert.True(t, apperrors.IsRetryable(err))
}

func TestScoreOne(t *testing.T) {
	store := newMockStore()
	store.edges["o1"] = []graph.KnowsEdge{sampleEdge("p1", "a@x.com")}
	engine := newTestEngine(store)

	res, err := engine.ScoreOne(context.Background(), "o1", "a@x.com")
	require.NoError(t, err)
	require.NotNil(t, res)
	again, err := engine.ScoreOne(context.Background(), "o1", "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, res, again)

	missing, err := engine.ScoreOne(context.Background(), "o1", "nobody@x.com")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestScoreOwners_FailureDoesNotStopOthers(t *testing.T) {
	store := newMockStore()
	store.owners = []string{"o1", "o2", "o3"}
	store.edges["o1"] = []graph.KnowsEdge{sampleEdge("p1", "a@x.com")}
	store.listErr["o2"] = errors.New("boom")
	store.edges["o3"] = []graph.KnowsEdge{sampleEdge("p3", "c@x.com")}
	engine := newTestEngine(store)

	summaries, err := engine.ScoreOwners(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, summaries, 2)
	assert.Equal(t, "o1", summaries[0].OwnerID)
	assert.Equal(t, "o3", summaries[1].OwnerID)
}

func TestFindStale_Defaults(t *testing.T) {
	store := newMockStore()
	engine := newTestEngine(store)

	stale, err := engine.FindStale(context.Background(), "o1", StaleOptions{})
	require.NoError(t, err)
	assert.Len(t, stale, 1)
	assert.Equal(t, refNow.AddDate(0, 0, -90), store.staleArgs.cutoff)
	assert.Equal(t, 30.0, store.staleArgs.maxScore)
	assert.Equal(t, 50, store.staleArgs.limit)

	zero := 0.0
	_, err = engine.FindStale(context.Background(), "o1", StaleOptions{StaleDays: 30, MaxScore: &zero, Limit: 5})
	require.NoError(t, err)
	assert.Equal(t, refNow.AddDate(0, 0, -30), store.staleArgs.cutoff)
	assert.Equal(t, 0.0, store.staleArgs.maxScore)
	assert.Equal(t, 5, store.staleArgs.limit)
	assert.Empty(t, store.scores, "staleness never writes")
}
