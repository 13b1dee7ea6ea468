package queue

import (
	"context"
	"testing"
	"time"

	"github.com/arborfoundry/scoutagent/internal/job"
	"github.com/arborfoundry/scoutagent/pkg/config"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) config.QueueConfig {
	t.Helper()
	return config.QueueConfig{
		MaxConcurrentJobs:  2,
		QueueCeiling:       10,
		CompletedRetention: "24h",
		PersistenceDir:     t.TempDir(),
		PersistIntervalSec: 60,
		CleanupIntervalSec: 3600,
	}
}

func TestSubmitRejectsInvalidRequest(t *testing.T) {
	m := New(testConfig(t), nil)
	_, err := m.Submit(context.Background(), job.Request{Query: ""}, "user-1")
	require.Error(t, err)
}

func TestSubmitRejectsPastQueueCeiling(t *testing.T) {
	cfg := testConfig(t)
	cfg.QueueCeiling = 1
	m := New(cfg, nil)
	_, err := m.Submit(context.Background(), job.Request{Query: "a"}, "user-1")
	require.NoError(t, err)
	_, err = m.Submit(context.Background(), job.Request{Query: "b"}, "user-1")
	require.Error(t, err)
}

func TestNextReturnsHighestPriorityFirst(t *testing.T) {
	m := New(testConfig(t), nil)
	ctx := context.Background()
	_, err := m.Submit(ctx, job.Request{Query: "low", Priority: -5}, "u")
	require.NoError(t, err)
	_, err = m.Submit(ctx, job.Request{Query: "high", Priority: 50}, "u")
	require.NoError(t, err)

	r, err := m.Next(ctx)
	require.NoError(t, err)
	require.Equal(t, "high", r.Query)
	require.Equal(t, job.StateRunning, r.State)
}

func TestCancelPendingMovesToCompleted(t *testing.T) {
	m := New(testConfig(t), nil)
	ctx := context.Background()
	id, err := m.Submit(ctx, job.Request{Query: "q"}, "u")
	require.NoError(t, err)

	require.True(t, m.Cancel(id))
	require.False(t, m.Cancel(id))

	rec, ok := m.Get(id)
	require.True(t, ok)
	require.Equal(t, job.StateCancelled, rec.State)
}

func TestMarkCompletedAndList(t *testing.T) {
	m := New(testConfig(t), nil)
	ctx := context.Background()
	id, err := m.Submit(ctx, job.Request{Query: "q", Tags: []string{"research"}}, "u")
	require.NoError(t, err)

	r, err := m.Next(ctx)
	require.NoError(t, err)
	require.Equal(t, id, r.ID)

	m.MarkCompleted(id, &job.Result{FinalAnswer: "done"})
	m.Release()

	res := m.List(ListFilter{State: job.StateCompleted})
	require.Len(t, res.Jobs, 1)
	require.Equal(t, "done", res.Jobs[0].Result.FinalAnswer)
}

func TestStartRecoversPersistedRunningAsPending(t *testing.T) {
	cfg := testConfig(t)
	m1 := New(cfg, nil)
	ctx := context.Background()
	id, err := m1.Submit(ctx, job.Request{Query: "q"}, "u")
	require.NoError(t, err)
	_, err = m1.Next(ctx)
	require.NoError(t, err)

	m2 := New(cfg, nil)
	require.NoError(t, m2.Start(ctx))
	defer m2.Stop()

	rec, ok := m2.Get(id)
	require.True(t, ok)
	require.Equal(t, job.StatePending, rec.State)
}

func TestNextCancellationReleasesSlot(t *testing.T) {
	m := New(testConfig(t), nil)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := m.Next(ctx)
	require.Error(t, err)
	require.Equal(t, 0, len(m.sem))
}
