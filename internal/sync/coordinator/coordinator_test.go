package coordinator

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/stacklok/depsync/internal/config"
	pkgsync "github.com/stacklok/depsync/internal/sync"
	syncmocks "github.com/stacklok/depsync/internal/sync/mocks"
)

var (
	repoA = config.Repository{ID: "acme/a", Kind: config.KindSourceControl}
	repoB = config.Repository{ID: "acme/b", Kind: config.KindSourceControl}
	repoC = config.Repository{ID: "left-pad", Kind: config.KindRegistry}
)

func fixedRunID() string { return "run-1" }

func publishedResult(repo config.Repository, versions ...string) *pkgsync.Result {
	result := &pkgsync.Result{Repository: repo.ID, Kind: repo.Kind, Discovered: len(versions)}
	for _, v := range versions {
		result.Outcomes = append(result.Outcomes, pkgsync.VersionOutcome{Raw: v, Version: v, State: pkgsync.StatePublished})
	}
	return result
}

func TestCalculatePollingInterval(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		interval time.Duration
	}{
		{name: "one hour", interval: time.Hour},
		{name: "one minute", interval: time.Minute},
		{name: "tiny interval has no jitter", interval: 5 * time.Nanosecond},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			jitter := tt.interval / jitterDivisor
			for range 100 {
				got := calculatePollingInterval(tt.interval)
				assert.GreaterOrEqual(t, got, tt.interval-jitter)
				assert.Less(t, got, tt.interval+jitter+1)
			}
		})
	}
}

func TestRunOnce(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	manager := syncmocks.NewMockManager(ctrl)

	manager.EXPECT().ShouldSync(gomock.Any(), repoA, false).Return(pkgsync.ReasonNeverSynced)
	manager.EXPECT().ShouldSync(gomock.Any(), repoB, false).Return(pkgsync.ReasonRecentlySynced)
	manager.EXPECT().ShouldSync(gomock.Any(), repoC, false).Return(pkgsync.ReasonFreshnessWindowElapsed)

	manager.EXPECT().PerformSync(gomock.Any(), repoA).Return(publishedResult(repoA, "1.0.0", "1.1.0"), nil)
	manager.EXPECT().PerformSync(gomock.Any(), repoC).Return(nil, &pkgsync.Error{
		Repository: repoC.ID, Stage: pkgsync.StageDiscovery, Message: "failed to discover versions", Err: errors.New("503"),
	})

	coord := New(manager, nil, WithWorkers(2), WithRunIDGenerator(fixedRunID))
	summary, err := coord.RunOnce(context.Background(), []config.Repository{repoA, repoB, repoC}, false)
	require.NoError(t, err, "a failed repository does not fail the run")

	assert.Equal(t, "run-1", summary.RunID)
	assert.False(t, summary.Aborted)
	require.Len(t, summary.Reports, 3)

	assert.Equal(t, "acme/a", summary.Reports[0].Repository)
	assert.True(t, summary.Reports[0].Synced)
	assert.Equal(t, 2, summary.Reports[0].Result.Count(pkgsync.StatePublished))

	assert.Equal(t, "acme/b", summary.Reports[1].Repository)
	assert.False(t, summary.Reports[1].Synced)
	assert.Equal(t, pkgsync.ReasonRecentlySynced, summary.Reports[1].Reason)

	failed := summary.Failed()
	require.Len(t, failed, 1)
	assert.Equal(t, "left-pad", failed[0].Repository)

	assert.Equal(t, map[pkgsync.State]int{pkgsync.StatePublished: 2}, summary.Totals())
	assert.Same(t, summary, coord.LastRun())
}

func TestRunOnce_Force(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	manager := syncmocks.NewMockManager(ctrl)
	manager.EXPECT().ShouldSync(gomock.Any(), repoA, true).Return(pkgsync.ReasonForced)
	manager.EXPECT().PerformSync(gomock.Any(), repoA).Return(publishedResult(repoA), nil)

	summary, err := New(manager, nil).RunOnce(context.Background(), []config.Repository{repoA}, true)
	require.NoError(t, err)
	assert.Equal(t, pkgsync.ReasonForced, summary.Reports[0].Reason)
}

func TestRunOnce_FatalErrorAbortsRun(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	manager := syncmocks.NewMockManager(ctrl)
	manager.EXPECT().ShouldSync(gomock.Any(), gomock.Any(), false).Return(pkgsync.ReasonNeverSynced).AnyTimes()

	fatal := &pkgsync.Error{Repository: repoA.ID, Stage: pkgsync.StageExtraction, Message: "aborting", Fatal: true}
	manager.EXPECT().PerformSync(gomock.Any(), repoA).Return(publishedResult(repoA), fatal)
	// the second repository observes the cancelled run context
	manager.EXPECT().PerformSync(gomock.Any(), repoB).DoAndReturn(
		func(ctx context.Context, repo config.Repository) (*pkgsync.Result, *pkgsync.Error) {
			<-ctx.Done()
			return publishedResult(repo), nil
		}).MaxTimes(1)

	coord := New(manager, nil, WithWorkers(2))
	summary, err := coord.RunOnce(context.Background(), []config.Repository{repoA, repoB}, false)
	require.ErrorIs(t, err, ErrRunAborted)

	var syncErr *pkgsync.Error
	require.ErrorAs(t, err, &syncErr)
	assert.Equal(t, pkgsync.StageExtraction, syncErr.Stage)
	assert.True(t, summary.Aborted)
}

// countingManager tracks concurrent passes
type countingManager struct {
	current atomic.Int32
	peak    atomic.Int32
	passes  atomic.Int32
}

func (m *countingManager) ShouldSync(context.Context, config.Repository, bool) pkgsync.Reason {
	return pkgsync.ReasonNeverSynced
}

func (m *countingManager) PerformSync(_ context.Context, repo config.Repository) (*pkgsync.Result, *pkgsync.Error) {
	n := m.current.Add(1)
	for {
		peak := m.peak.Load()
		if n <= peak || m.peak.CompareAndSwap(peak, n) {
			break
		}
	}
	time.Sleep(10 * time.Millisecond)
	m.current.Add(-1)
	m.passes.Add(1)
	return publishedResult(repo), nil
}

func TestRunOnce_BoundedWorkers(t *testing.T) {
	t.Parallel()

	repos := make([]config.Repository, 0, 12)
	for _, id := range []string{"a/1", "a/2", "a/3", "a/4", "a/5", "a/6", "a/7", "a/8", "a/9", "a/10", "a/11", "a/12"} {
		repos = append(repos, config.Repository{ID: id, Kind: config.KindSourceControl})
	}

	manager := &countingManager{}
	_, err := New(manager, nil, WithWorkers(3)).RunOnce(context.Background(), repos, false)
	require.NoError(t, err)

	assert.Equal(t, int32(12), manager.passes.Load())
	assert.LessOrEqual(t, manager.peak.Load(), int32(3))
}

func TestRunOnce_RateLimit(t *testing.T) {
	t.Parallel()

	repos := []config.Repository{repoA, repoB, repoC}
	manager := &countingManager{}
	coord := New(manager, nil, WithWorkers(3), WithRateLimit(20, 1))

	start := time.Now()
	_, err := coord.RunOnce(context.Background(), repos, false)
	require.NoError(t, err)

	// one token up front, then one every 50ms
	assert.GreaterOrEqual(t, time.Since(start), 90*time.Millisecond)
}

func TestRunOnce_Interrupted(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	manager := syncmocks.NewMockManager(ctrl)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	summary, err := New(manager, nil).RunOnce(ctx, []config.Repository{repoA}, false)
	require.NoError(t, err)
	require.Len(t, summary.Failed(), 1)
	assert.Equal(t, StagePacing, summary.Reports[0].Err.Stage)
	assert.ErrorIs(t, summary.Reports[0].Err, context.Canceled)
}

func TestCoordinator_StartStop(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	manager := syncmocks.NewMockManager(ctrl)

	ran := make(chan struct{}, 1)
	manager.EXPECT().ShouldSync(gomock.Any(), repoA, false).Return(pkgsync.ReasonNeverSynced).MinTimes(1)
	manager.EXPECT().PerformSync(gomock.Any(), repoA).DoAndReturn(
		func(context.Context, config.Repository) (*pkgsync.Result, *pkgsync.Error) {
			select {
			case ran <- struct{}{}:
			default:
			}
			return publishedResult(repoA, "1.0.0"), nil
		}).MinTimes(1)

	coord := New(manager, []config.Repository{repoA}, WithInterval(time.Hour))
	errCh := make(chan error, 1)
	go func() { errCh <- coord.Start(context.Background()) }()

	select {
	case <-ran:
	case <-time.After(5 * time.Second):
		t.Fatal("initial run did not happen")
	}

	require.Eventually(t, func() bool { return coord.LastRun() != nil }, 5*time.Second, 10*time.Millisecond)
	require.NoError(t, coord.Stop())
	require.NoError(t, <-errCh)
}

func TestCoordinator_StartEndsOnAbort(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	manager := syncmocks.NewMockManager(ctrl)
	manager.EXPECT().ShouldSync(gomock.Any(), repoA, false).Return(pkgsync.ReasonNeverSynced)
	manager.EXPECT().PerformSync(gomock.Any(), repoA).Return(nil, &pkgsync.Error{Message: "aborting", Fatal: true})

	err := New(manager, []config.Repository{repoA}).Start(context.Background())
	require.ErrorIs(t, err, ErrRunAborted)
}

func TestCoordinator_StopWithoutStart(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)
	assert.NoError(t, New(syncmocks.NewMockManager(ctrl), nil).Stop())
}
