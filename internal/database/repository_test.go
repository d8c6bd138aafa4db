package database

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chocobo244/creatingcustomersegment/internal/attribution"
	"github.com/chocobo244/creatingcustomersegment/internal/types"
)

func newTestRepo(t *testing.T) *Repository {
	t.Helper()
	db, err := NewDB(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewRepository(db)
}

func sampleResult(oppID string, credits map[string]string, value float64) *attribution.Result {
	res := &attribution.Result{
		OpportunityID:   oppID,
		ConversionValue: value,
		Method:          attribution.MethodWeighted,
		Weights:         attribution.DefaultWeights(),
	}
	share := 1.0 / float64(len(credits))
	for id, channel := range credits {
		res.Credits = append(res.Credits, attribution.Credit{
			TouchpointID: id,
			Channel:      channel,
			Type:         types.TouchpointWebsiteVisit,
			Value:        value * share,
			Share:        share,
		})
	}
	return res
}

func TestRepository_SaveAndGetRun(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	run := NewRun("acme", sampleResult("opp-1", map[string]string{"t1": "email", "t2": "events"}, 1000))
	require.NoError(t, repo.SaveRun(ctx, run))

	got, err := repo.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, "acme", got.Tenant)
	assert.Equal(t, "opp-1", got.OpportunityID)
	assert.Equal(t, attribution.MethodWeighted, got.Method)
	assert.Equal(t, attribution.DefaultWeights(), got.Weights)
	assert.Equal(t, 2, got.TouchpointCount)
	require.Len(t, got.Credits, 2)
	assert.InDelta(t, 1000.0, got.Credits[0].Value+got.Credits[1].Value, 1e-9)
	assert.WithinDuration(t, run.CreatedAt, got.CreatedAt, time.Second)

	_, err = repo.GetRun(ctx, "missing")
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestRepository_ListRuns(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	for i, opp := range []string{"a", "b", "c"} {
		run := NewRun("acme", sampleResult(opp, map[string]string{"t": "web"}, 10))
		run.CreatedAt = time.Date(2024, 1, i+1, 0, 0, 0, 0, time.UTC)
		require.NoError(t, repo.SaveRun(ctx, run))
	}
	require.NoError(t, repo.SaveRun(ctx, NewRun("globex", sampleResult("z", map[string]string{"t": "web"}, 10))))

	runs, err := repo.ListRuns(ctx, "acme", 2, 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "c", runs[0].OpportunityID)
	assert.Equal(t, "b", runs[1].OpportunityID)
	assert.Empty(t, runs[0].Credits)

	runs, err = repo.ListRuns(ctx, "acme", 10, 2)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "a", runs[0].OpportunityID)

	runs, err = repo.ListRuns(ctx, "nobody", 0, 0)
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestRepository_ChannelLeaderboard(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.SaveRun(ctx, NewRun("acme", sampleResult("o1", map[string]string{"t1": "email", "t2": "events"}, 100))))
	require.NoError(t, repo.SaveRun(ctx, NewRun("acme", sampleResult("o2", map[string]string{"t1": "email"}, 300))))
	require.NoError(t, repo.SaveRun(ctx, NewRun("globex", sampleResult("o3", map[string]string{"t1": "events"}, 9999))))

	board, err := repo.ChannelLeaderboard(ctx, "acme", 10)
	require.NoError(t, err)
	require.Len(t, board, 2)

	assert.Equal(t, ChannelStanding{Rank: 1, Channel: "email", TotalValue: 350, Credits: 2, Runs: 2}, board[0])
	assert.Equal(t, ChannelStanding{Rank: 2, Channel: "events", TotalValue: 50, Credits: 1, Runs: 1}, board[1])
}

func TestRepository_PruneRuns(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	old := NewRun("acme", sampleResult("old", map[string]string{"t": "web"}, 1))
	old.CreatedAt = time.Now().Add(-48 * time.Hour).UTC()
	require.NoError(t, repo.SaveRun(ctx, old))
	fresh := NewRun("acme", sampleResult("new", map[string]string{"t": "web"}, 1))
	require.NoError(t, repo.SaveRun(ctx, fresh))

	n, err := repo.PruneRuns(ctx, time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = repo.GetRun(ctx, old.ID)
	assert.ErrorIs(t, err, ErrRunNotFound)

	board, err := repo.ChannelLeaderboard(ctx, "acme", 10)
	require.NoError(t, err)
	require.Len(t, board, 1)
	assert.Equal(t, 1, board[0].Credits)
}

func TestRunService_Record(t *testing.T) {
	svc := NewRunService(newTestRepo(t), 0)
	ctx := context.Background()

	id, err := svc.Record(ctx, "", sampleResult("opp", map[string]string{"t": "web"}, 5))
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	run, err := svc.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "opp", run.OpportunityID)

	runs, err := svc.List(ctx, "", 0, 0)
	require.NoError(t, err)
	assert.Len(t, runs, 1)

	// zero retention never starts the pruner
	svc.StartRetention(ctx, time.Millisecond)
}

func TestDB_PoolStats(t *testing.T) {
	db, err := NewDBWithPool(t.TempDir(), PoolConfig{MaxOpenConns: 4, MaxIdleConns: 2, MaxLifetime: time.Minute})
	require.NoError(t, err)
	defer db.Close()

	stats := db.GetPoolStats()
	assert.Equal(t, 4, stats["max_open_connections"])
	assert.Equal(t, 2, stats["max_idle_connections"])
	assert.Equal(t, 60.0, stats["max_lifetime_seconds"])

	_, err = db.stmt("nope")
	assert.Error(t, err)
}

func TestDB_Migrations(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	db, err := NewDB(dir)
	require.NoError(t, err)

	version, err := db.SchemaVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, len(migrations), version)

	repo := NewRepository(db)
	run := NewRun("acme", sampleResult("opp-1", map[string]string{"t1": "email"}, 10))
	require.NoError(t, repo.SaveRun(ctx, run))
	require.NoError(t, db.Close())

	// reopening an up-to-date database applies nothing and keeps data
	db, err = NewDB(dir)
	require.NoError(t, err)
	defer db.Close()

	version, err = db.SchemaVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, len(migrations), version)

	got, err := NewRepository(db).GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, "opp-1", got.OpportunityID)
}
