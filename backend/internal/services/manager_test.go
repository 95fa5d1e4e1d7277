package services

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"warmintro/backend/internal/dedup"
	"warmintro/backend/internal/graph"
	"warmintro/backend/internal/maintenance"
	"warmintro/backend/internal/scoring"
)

type countingOwners struct{ calls atomic.Int32 }

func (o *countingOwners) ListOwners(ctx context.Context) ([]string, error) {
	o.calls.Add(1)
	return nil, nil
}

type noopScorer struct{}

func (noopScorer) ScoreAll(ctx context.Context, ownerID string) (*scoring.Summary, error) {
	return &scoring.Summary{OwnerID: ownerID}, nil
}

func (noopScorer) FindStale(ctx context.Context, ownerID string, opts scoring.StaleOptions) ([]graph.StaleRelationship, error) {
	return nil, nil
}

type noopSweeper struct{}

func (noopSweeper) FindAndMergeDuplicates(ctx context.Context, ownerID string) (*dedup.SweepReport, error) {
	return &dedup.SweepReport{}, nil
}

func newTestManager(owners *countingOwners) *ServiceManager {
	return &ServiceManager{
		Maintenance: maintenance.NewRunner(maintenance.Deps{
			Owners:  owners,
			Scorer:  noopScorer{},
			Sweeper: noopSweeper{},
		}, 1),
		logger: zap.NewNop(),
	}
}

func TestScheduler_RunsAndStops(t *testing.T) {
	owners := &countingOwners{}
	sm := newTestManager(owners)

	require.NoError(t, sm.StartScheduler(10*time.Millisecond))
	assert.Error(t, sm.StartScheduler(10*time.Millisecond))

	assert.Eventually(t, func() bool { return owners.calls.Load() >= 2 }, time.Second, 5*time.Millisecond)

	sm.StopAll()
	after := owners.calls.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, after, owners.calls.Load())

	// Stopped schedulers can be started again.
	require.NoError(t, sm.StartScheduler(time.Hour))
	sm.StopAll()
}

func TestScheduler_DisabledInterval(t *testing.T) {
	owners := &countingOwners{}
	sm := newTestManager(owners)

	require.NoError(t, sm.StartScheduler(0))
	sm.StopAll()
	assert.Zero(t, owners.calls.Load())
}
