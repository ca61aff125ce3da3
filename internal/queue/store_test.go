package queue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zulandar/switchboard/internal/db"
	"github.com/zulandar/switchboard/internal/errs"
	"github.com/zulandar/switchboard/internal/models"
)

type stepClock struct {
	mu sync.Mutex
	t  time.Time
}

// Now advances one second per call so creation order is unambiguous.
func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	gdb, err := db.OpenMemory()
	require.NoError(t, err)
	clock := &stepClock{t: time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)}
	st, err := NewStore(StoreOpts{DB: gdb, Now: clock.Now})
	require.NoError(t, err)
	return st
}

func enqueue(t *testing.T, st *Store, prompt string) *models.QueuedPromptJob {
	t.Helper()
	job, err := st.Enqueue(context.Background(), EnqueueRequest{
		ChatID: "c1", SessionID: "c1-a-00000000", SessionSlot: "A", Prompt: prompt,
	})
	require.NoError(t, err)
	return job
}

func TestEnqueue_Validation(t *testing.T) {
	st := newTestStore(t)
	_, err := st.Enqueue(context.Background(), EnqueueRequest{ChatID: "c1"})
	require.ErrorIs(t, err, errs.ErrValidation)
	assert.Contains(t, err.Error(), "session id, prompt")
}

func TestEnqueue_Pending(t *testing.T) {
	st := newTestStore(t)
	job := enqueue(t, st, "hello")
	assert.Equal(t, models.QueueStatusPending, job.Status)

	got, err := st.Get(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, "hello", got.Prompt)
	assert.Nil(t, got.StartedAt)

	_, err = st.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestClaimNextPending_OldestFirst(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	first := enqueue(t, st, "one")
	second := enqueue(t, st, "two")

	got, err := st.ClaimNextPending(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, first.ID, got.ID)
	assert.Equal(t, models.QueueStatusRunning, got.Status)
	assert.NotNil(t, got.StartedAt)

	got, err = st.ClaimNextPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, second.ID, got.ID)

	got, err = st.ClaimNextPending(ctx)
	require.NoError(t, err)
	assert.Nil(t, got, "empty queue claims nothing")
}

func TestClaimPending_OnlyOneWinner(t *testing.T) {
	st := newTestStore(t)
	job := enqueue(t, st, "race")

	const workers = 8
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := st.ClaimPending(context.Background(), job.ID)
			assert.NoError(t, err)
			if ok {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}

func TestMark_TerminalIsIdempotent(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	job := enqueue(t, st, "x")
	_, err := st.ClaimNextPending(ctx)
	require.NoError(t, err)

	code := 0
	done, err := st.MarkCompleted(ctx, job.ID, Outcome{Output: "ok", ExitCode: &code, DurationMs: 12, ContinuationToken: "tok-12345678"})
	require.NoError(t, err)
	assert.Equal(t, models.QueueStatusCompleted, done.Status)
	assert.Equal(t, "ok", done.Output)
	require.NotNil(t, done.ExitCode)
	assert.Equal(t, 0, *done.ExitCode)
	assert.NotNil(t, done.FinishedAt)

	again, err := st.MarkFailed(ctx, job.ID, "late failure", Outcome{})
	require.NoError(t, err)
	assert.Equal(t, models.QueueStatusCompleted, again.Status, "terminal state does not change")
	assert.Empty(t, again.Error)
}

func TestMarkFailed_FromPending(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	job := enqueue(t, st, "x")

	failed, err := st.MarkFailed(ctx, job.ID, "cancelled", Outcome{})
	require.NoError(t, err)
	assert.Equal(t, models.QueueStatusFailed, failed.Status)

	_, err = st.MarkCompleted(ctx, "missing", Outcome{})
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestMarkCompleted_RequiresRunning(t *testing.T) {
	st := newTestStore(t)
	job := enqueue(t, st, "x")
	_, err := st.MarkCompleted(context.Background(), job.ID, Outcome{})
	assert.ErrorIs(t, err, errs.ErrValidation)
}

func TestRecoverStuck(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	a := enqueue(t, st, "a")
	b := enqueue(t, st, "b")
	c := enqueue(t, st, "c")
	for range 2 {
		_, err := st.ClaimNextPending(ctx)
		require.NoError(t, err)
	}
	_, err := st.MarkCompleted(ctx, a.ID, Outcome{})
	require.NoError(t, err)

	n, err := st.RecoverStuck(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	// A restart with nothing left running changes nothing.
	n, err = st.RecoverStuck(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	got, err := st.Get(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, models.QueueStatusPending, got.Status)
	assert.Nil(t, got.StartedAt)

	// The recovered row keeps its place ahead of newer work.
	next, err := st.ClaimNextPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, b.ID, next.ID)
	next, err = st.ClaimNextPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, c.ID, next.ID)
}

func TestPrune_OldestTerminalFirst(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	var jobs []*models.QueuedPromptJob
	for _, p := range []string{"1", "2", "3", "4", "5"} {
		jobs = append(jobs, enqueue(t, st, p))
	}
	// Finish 1, 2 and 4; 3 stays running and 5 pending.
	for range 4 {
		_, err := st.ClaimNextPending(ctx)
		require.NoError(t, err)
	}
	for _, i := range []int{0, 1, 3} {
		_, err := st.MarkCompleted(ctx, jobs[i].ID, Outcome{})
		require.NoError(t, err)
	}

	n, err := st.Prune(ctx, 10)
	require.NoError(t, err)
	assert.Zero(t, n, "under the cap")

	n, err = st.Prune(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	left, err := st.List(ctx, "c1", 0)
	require.NoError(t, err)
	var prompts []string
	for _, j := range left {
		prompts = append(prompts, j.Prompt)
	}
	assert.Equal(t, []string{"5", "4", "3"}, prompts)

	// Only active rows left beyond the cap: nothing more can go.
	n, err = st.Prune(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	n, err = st.Prune(ctx, 1)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestList_FilterAndLimit(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	enqueue(t, st, "a")
	enqueue(t, st, "b")
	_, err := st.Enqueue(ctx, EnqueueRequest{ChatID: "c2", SessionID: "c2-a-00000000", Prompt: "other"})
	require.NoError(t, err)

	all, err := st.List(ctx, "", 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	mine, err := st.List(ctx, "c1", 1)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, "b", mine[0].Prompt)
}
