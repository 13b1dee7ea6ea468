package agentcontext

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInsertSourceDenseNumbering(t *testing.T) {
	c := New()
	s1 := c.InsertSource("https://a.example", "A", "snippet-a", "")
	s2 := c.InsertSource("https://b.example", "B", "snippet-b", "")
	assert.Equal(t, 1, s1.Number)
	assert.Equal(t, 2, s2.Number)
	assert.Len(t, c.Sources(), 2)
}

func TestInsertSourceDuplicateURLUpdatesContentOnly(t *testing.T) {
	c := New()
	first := c.InsertSource("https://a.example", "A", "snippet", "")
	again := c.InsertSource("https://a.example", "A", "snippet", "full text")
	assert.Equal(t, first.Number, again.Number)
	assert.Len(t, c.Sources(), 1)
	assert.Equal(t, "full text", c.Sources()[0].Content)
}

func TestRecordSearchIncrementsUsage(t *testing.T) {
	c := New()
	c.RecordSearch(SearchResult{Query: "jazz", Timestamp: time.Now()})
	assert.Equal(t, 1, c.SearchesUsed)
	assert.Len(t, c.Searches, 1)
}

func TestClarificationLatchRoundTrip(t *testing.T) {
	c := New()
	c.SetState(StateWaitingForClarification)

	done := make(chan struct{})
	go func() {
		<-c.AwaitClarificationLatch()
		close(done)
	}()

	err := c.ProvideClarification("research jazz in the 1920s", func(s string) string {
		return "Clarification: " + s
	})
	require.NoError(t, err)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("latch was not released")
	}

	assert.Equal(t, 1, c.ClarificationsUsed)
	assert.Equal(t, StateResearching, c.GetState())
	require.Len(t, c.Conversation, 1)
	assert.Equal(t, RoleUser, c.Conversation[0].Role)
}

func TestProvideClarificationRejectedWhenNotAwaiting(t *testing.T) {
	c := New()
	err := c.ProvideClarification("x", nil)
	assert.ErrorIs(t, err, ErrNotAwaitingClarification)
}

func TestDoubleProvideClarificationSecondRejected(t *testing.T) {
	c := New()
	c.SetState(StateWaitingForClarification)
	require.NoError(t, c.ProvideClarification("first", nil))

	// RearmClarificationLatch not called: still RESEARCHING, not awaiting.
	err := c.ProvideClarification("second", nil)
	assert.ErrorIs(t, err, ErrNotAwaitingClarification)
}
