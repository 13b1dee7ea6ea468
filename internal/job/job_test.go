package job

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTotalStepsBoundaries(t *testing.T) {
	assert.Equal(t, 5, TotalSteps(0))
	assert.Equal(t, 80, TotalSteps(5))
}

func TestNewRecordIsPending(t *testing.T) {
	r := New(Request{Query: "origin of jazz", DeepLevel: 2})
	assert.Equal(t, StatePending, r.State)
	assert.Equal(t, TotalSteps(2), r.TotalSteps)
	assert.NotEmpty(t, r.ID)
}

func TestMarkCompletedSetsProgressInvariant(t *testing.T) {
	r := New(Request{Query: "q"})
	r.MarkStarted()
	r.MarkCompleted(&Result{FinalAnswer: "done"})
	assert.Equal(t, StateCompleted, r.State)
	assert.Equal(t, 100.0, r.Progress)
	require.NotNil(t, r.CompletedAt)
}

func TestDoubleCancelSecondReturnsFalse(t *testing.T) {
	r := New(Request{Query: "q"})
	assert.True(t, r.MarkCancelled())
	assert.False(t, r.MarkCancelled())
	assert.Equal(t, StateCancelled, r.State)
}

func TestRoundTripPersistence(t *testing.T) {
	r := New(Request{Query: "q", DeepLevel: 1, Tags: []string{"a", "b"}})
	r.MarkStarted()
	r.UpdateProgress(42, "searching", nil, nil, nil)

	data, err := r.MarshalForPersistence()
	require.NoError(t, err)

	restored, err := FromPersistence(data)
	require.NoError(t, err)

	assert.Equal(t, r.ID, restored.ID)
	assert.Equal(t, r.Query, restored.Query)
	assert.Equal(t, r.Progress, restored.Progress)
	// RUNNING restores as PENDING.
	assert.Equal(t, StatePending, restored.State)
	assert.Nil(t, restored.StartedAt)
}

func TestProgressClamped(t *testing.T) {
	r := New(Request{Query: "q"})
	r.UpdateProgress(150, "x", nil, nil, nil)
	assert.Equal(t, 100.0, r.Progress)
	r.UpdateProgress(-10, "x", nil, nil, nil)
	assert.Equal(t, 0.0, r.Progress)
}

func TestValidateRequest(t *testing.T) {
	require.NoError(t, Request{Query: "q", DeepLevel: 0, Priority: 0}.Validate())
	require.Error(t, Request{Query: "", DeepLevel: 0}.Validate())
	require.Error(t, Request{Query: "q", DeepLevel: 6}.Validate())
	require.Error(t, Request{Query: "q", Priority: 101}.Validate())
	tags := make([]string, 11)
	require.Error(t, Request{Query: "q", Tags: tags}.Validate())
}
