package leaderboard

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chocobo244/creatingcustomersegment/internal/attribution"
	"github.com/chocobo244/creatingcustomersegment/internal/database"
	"github.com/chocobo244/creatingcustomersegment/internal/types"
)

type countingSource struct {
	inner Source
	calls int
	err   error
}

func (s *countingSource) Leaderboard(ctx context.Context, tenant string, limit int) ([]database.ChannelStanding, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.inner.Leaderboard(ctx, tenant, limit)
}

func newRunService(t *testing.T) *database.RunService {
	t.Helper()
	db, err := database.NewDB(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return database.NewRunService(database.NewRepository(db), 0)
}

func result(oppID, channel string, value float64) *attribution.Result {
	return &attribution.Result{
		OpportunityID:   oppID,
		ConversionValue: value,
		Method:          attribution.MethodWeighted,
		Weights:         attribution.DefaultWeights(),
		Credits: []attribution.Credit{{
			TouchpointID: oppID + "-tp",
			Channel:      channel,
			Type:         types.TouchpointDemoRequest,
			Value:        value,
			Share:        1,
		}},
	}
}

func TestService_ReadThroughAndInvalidate(t *testing.T) {
	ctx := context.Background()
	runs := newRunService(t)
	source := &countingSource{inner: runs}
	svc := NewService(source, time.Minute)
	defer svc.Close()

	_, err := runs.Record(ctx, "acme", result("o1", "events", 100))
	require.NoError(t, err)

	board, err := svc.Get(ctx, "acme", 10)
	require.NoError(t, err)
	assert.False(t, board.Cached)
	require.Equal(t, 1, board.Count)
	assert.Equal(t, "events", board.Channels[0].Channel)

	board, err = svc.Get(ctx, "acme", 10)
	require.NoError(t, err)
	assert.True(t, board.Cached)
	assert.Equal(t, 1, source.calls)

	_, err = runs.Record(ctx, "acme", result("o2", "webinar", 500))
	require.NoError(t, err)
	svc.Invalidate(ctx, "acme")

	board, err = svc.Get(ctx, "acme", 10)
	require.NoError(t, err)
	assert.False(t, board.Cached)
	require.Equal(t, 2, board.Count)
	assert.Equal(t, "webinar", board.Channels[0].Channel)
	assert.Equal(t, 2, source.calls)
}

func TestService_TenantsAreIsolated(t *testing.T) {
	ctx := context.Background()
	svc := NewService(newRunService(t), time.Minute)
	defer svc.Close()

	board, err := svc.Get(ctx, "empty", 5)
	require.NoError(t, err)
	assert.NotNil(t, board.Channels)
	assert.Equal(t, 0, board.Count)

	_, err = svc.Get(ctx, "other", 5)
	require.NoError(t, err)
	assert.Equal(t, 2, svc.Stats(ctx)["tenants"])

	svc.Invalidate(ctx, "empty")
	assert.Equal(t, 1, svc.Stats(ctx)["tenants"])
}

func TestService_SourceError(t *testing.T) {
	source := &countingSource{err: errors.New("db closed")}
	svc := NewService(source, time.Minute)
	defer svc.Close()

	_, err := svc.Get(context.Background(), "acme", 10)
	assert.EqualError(t, err, "db closed")
	assert.Equal(t, 0, svc.Stats(context.Background())["tenants"])
}
