package session

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zulandar/switchboard/internal/errs"
	"github.com/zulandar/switchboard/internal/models"
)

func TestAppendRun_StoresRunAndToken(t *testing.T) {
	reg, _, _ := newTestRegistry(t)
	ctx := context.Background()

	s, err := reg.CreateAndActivate(ctx, "c1", models.ChannelWeb)
	require.NoError(t, err)

	code := 0
	updated, err := reg.AppendRun(ctx, s.ID, models.RunRecord{
		Input: "hi", Output: "hello", ExitCode: &code, DurationMs: 42,
	}, "0199a1b2-c3d4")
	require.NoError(t, err)
	assert.Equal(t, "0199a1b2-c3d4", updated.Token())
	assert.True(t, updated.UpdatedAt.After(s.UpdatedAt))

	// An empty token never clears the stored one.
	msg := "boom"
	updated, err = reg.AppendRun(ctx, s.ID, models.RunRecord{Input: "again", Error: &msg}, "")
	require.NoError(t, err)
	assert.Equal(t, "0199a1b2-c3d4", updated.Token())

	runs, err := reg.ListHistory(ctx, s.ID, 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "hi", runs[0].Input)
	assert.Equal(t, int64(42), runs[0].DurationMs)
	require.NotNil(t, runs[1].Error)
	assert.Equal(t, "boom", *runs[1].Error)
	assert.Nil(t, runs[1].ExitCode)
}

func TestAppendRun_MissingSession(t *testing.T) {
	reg, _, _ := newTestRegistry(t)
	_, err := reg.AppendRun(context.Background(), "missing", models.RunRecord{Input: "x"}, "")
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestListHistory_LimitKeepsMostRecentInOrder(t *testing.T) {
	reg, _, _ := newTestRegistry(t)
	ctx := context.Background()

	s, err := reg.CreateAndActivate(ctx, "c1", models.ChannelWeb)
	require.NoError(t, err)

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		_, err := reg.AppendRun(ctx, s.ID, models.RunRecord{
			Input:     fmt.Sprintf("run-%d", i),
			Timestamp: base.Add(time.Duration(i) * time.Minute),
		}, "")
		require.NoError(t, err)
	}
	// Same timestamp as run-4: insertion order breaks the tie.
	_, err = reg.AppendRun(ctx, s.ID, models.RunRecord{Input: "run-5", Timestamp: base.Add(4 * time.Minute)}, "")
	require.NoError(t, err)

	runs, err := reg.ListHistory(ctx, s.ID, 3)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, "run-3", runs[0].Input)
	assert.Equal(t, "run-4", runs[1].Input)
	assert.Equal(t, "run-5", runs[2].Input)
}

func TestListHistory_NoSuchSessionVsEmpty(t *testing.T) {
	reg, _, _ := newTestRegistry(t)
	ctx := context.Background()

	_, err := reg.ListHistory(ctx, "missing", 10)
	assert.ErrorIs(t, err, errs.ErrNotFound)

	s, err := reg.CreateAndActivate(ctx, "c1", models.ChannelWeb)
	require.NoError(t, err)
	runs, err := reg.ListHistory(ctx, s.ID, 10)
	require.NoError(t, err)
	assert.Empty(t, runs)
}
