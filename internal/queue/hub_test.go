package queue

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zulandar/switchboard/internal/models"
)

func statusEvent(id, status string) Event {
	return Event{Kind: EventStatus, JobID: id, Job: &models.QueuedPromptJob{ID: id, Status: status}}
}

func TestHub_DeliversToJobSubscribersOnly(t *testing.T) {
	hub := NewHub(nil)
	a := hub.Subscribe("job-a")
	b := hub.Subscribe("job-b")
	defer b.Close()

	require.NoError(t, hub.Publish(context.Background(), Event{Kind: EventChunk, JobID: "job-a", Chunk: "hi"}))

	ev := <-a.C
	assert.Equal(t, "hi", ev.Chunk)
	assert.Empty(t, b.C)
	a.Close()
	assert.Zero(t, hub.Subscribers("job-a"))
}

func TestHub_TerminalClosesSubscriptions(t *testing.T) {
	hub := NewHub(nil)
	s1 := hub.Subscribe("j")
	s2 := hub.Subscribe("j")

	ctx := context.Background()
	require.NoError(t, hub.Publish(ctx, statusEvent("j", models.QueueStatusRunning)))
	require.NoError(t, hub.Publish(ctx, statusEvent("j", models.QueueStatusCompleted)))

	for _, s := range []*Subscription{s1, s2} {
		var got []string
		for ev := range s.C {
			got = append(got, ev.Job.Status)
		}
		assert.Equal(t, []string{models.QueueStatusRunning, models.QueueStatusCompleted}, got)
		s.Close() // after the hub closed it
	}
	assert.Zero(t, hub.Subscribers("j"))
}

func TestHub_TerminalDeliveredToFullBuffer(t *testing.T) {
	hub := NewHub(nil)
	s := hub.Subscribe("j")
	ctx := context.Background()
	for i := 0; i < subscriptionBuffer+10; i++ {
		require.NoError(t, hub.Publish(ctx, Event{Kind: EventChunk, JobID: "j", Chunk: "x"}))
	}
	require.NoError(t, hub.Publish(ctx, statusEvent("j", models.QueueStatusFailed)))

	var last Event
	n := 0
	for ev := range s.C {
		last = ev
		n++
	}
	assert.Equal(t, subscriptionBuffer, n)
	assert.True(t, last.Terminal())
}

func TestDecodeEvent(t *testing.T) {
	ev, err := decodeEvent(`{"kind":"status","job_id":"j1","job":{"ID":"j1","Status":"failed"}}`)
	require.NoError(t, err)
	assert.True(t, ev.Terminal())

	_, err = decodeEvent(`{"kind":"chunk"}`)
	assert.Error(t, err)
	_, err = decodeEvent(`not json`)
	assert.Error(t, err)
}

func TestNewRedisBus_RequiresAddr(t *testing.T) {
	_, err := NewRedisBus(context.Background(), RedisOpts{})
	assert.ErrorContains(t, err, "addr is required")
}
