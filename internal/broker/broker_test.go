package broker

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSubscribeEmitsConnectedEvent(t *testing.T) {
	b := New(4)
	sub := b.Subscribe("job-1")
	e := <-sub.Events()
	require.Equal(t, "stream_connected", e.Name)
}

func TestBroadcastDeliversToAllSubscribers(t *testing.T) {
	b := New(4)
	sub1 := b.Subscribe("job-1")
	sub2 := b.Subscribe("job-1")
	<-sub1.Events()
	<-sub2.Events()

	b.JobProgress("job-1", 50, "searching", nil, nil)

	e1 := <-sub1.Events()
	e2 := <-sub2.Events()
	require.Equal(t, "job_progress", e1.Name)
	require.Equal(t, "job_progress", e2.Name)
}

func TestBroadcastDropsOnOverflow(t *testing.T) {
	b := New(1)
	sub := b.Subscribe("job-1")
	<-sub.Events() // drain stream_connected

	b.JobStatus("job-1", "running", nil)
	b.JobStatus("job-1", "running", nil) // queue full, dropped

	require.Equal(t, int64(1), sub.Dropped())
}

func TestUnsubscribeRemovesJobEntryWhenEmpty(t *testing.T) {
	b := New(4)
	sub := b.Subscribe("job-1")
	require.Equal(t, 1, b.SubscriberCount("job-1"))

	b.Unsubscribe("job-1", sub)
	require.Equal(t, 0, b.SubscriberCount("job-1"))

	// Broadcasting to a job with no subscribers must not panic.
	b.JobStatus("job-1", "completed", nil)
}

func TestUnsubscribeIsIdempotent(t *testing.T) {
	b := New(4)
	sub := b.Subscribe("job-1")
	b.Unsubscribe("job-1", sub)
	b.Unsubscribe("job-1", sub)
}
