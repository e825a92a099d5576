//go:build cgo

package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ghostpni/ghostpni/internal/config"
	"github.com/ghostpni/ghostpni/internal/core"
)

func openJournal(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()

	store, err := Open(ctx, config.StoreConfig{Driver: "libsql", Path: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	require.NoError(t, store.Migrate(ctx))
	return store
}

func TestJournalRecordAndList(t *testing.T) {
	ctx := context.Background()
	store := openJournal(t)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	records := []core.DispatchRecord{
		{ID: "d1", Kind: core.KindDecoy, Source: core.SourceHeartbeat, Endpoint: "https://a", Attempts: 1, Result: "success", Duration: 120 * time.Millisecond, CreatedAt: base},
		{ID: "d2", Kind: core.KindDecoy, Source: core.SourceStorm, Attempts: 0, Result: "all_endpoints_down", FailureKind: core.FailureAllEndpointsDown, CreatedAt: base.Add(time.Second)},
		{ID: "r1", Kind: core.KindReal, Source: core.SourceReal, Endpoint: "https://b", Attempts: 2, Result: "success", Duration: 300 * time.Millisecond, CreatedAt: base.Add(2 * time.Second)},
	}
	for _, record := range records {
		require.NoError(t, store.RecordDispatch(ctx, record))
	}

	all, err := store.ListDispatches(ctx, JournalQuery{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "r1", all[0].ID)
	assert.Equal(t, 300*time.Millisecond, all[0].Duration)
	assert.Equal(t, base.Add(2*time.Second), all[0].CreatedAt)

	decoys, err := store.ListDispatches(ctx, JournalQuery{Kind: "decoy"})
	require.NoError(t, err)
	require.Len(t, decoys, 2)
	assert.Equal(t, core.FailureAllEndpointsDown, decoys[0].FailureKind)
	assert.Empty(t, decoys[0].Endpoint)

	limited, err := store.ListDispatches(ctx, JournalQuery{Limit: 1})
	require.NoError(t, err)
	require.Len(t, limited, 1)

	count, err := store.CountDispatches(ctx, JournalQuery{Result: "success"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

func TestJournalSummarizeAndPrune(t *testing.T) {
	ctx := context.Background()
	store := openJournal(t)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 4; i++ {
		require.NoError(t, store.RecordDispatch(ctx, core.DispatchRecord{
			ID:        "d" + string(rune('a'+i)),
			Kind:      core.KindDecoy,
			Source:    core.SourceHeartbeat,
			Attempts:  1,
			Result:    "success",
			Duration:  100 * time.Millisecond,
			CreatedAt: base.Add(time.Duration(i) * time.Hour),
		}))
	}
	require.NoError(t, store.RecordDispatch(ctx, core.DispatchRecord{
		ID:        "r1",
		Kind:      core.KindReal,
		Source:    core.SourceReal,
		Attempts:  3,
		Result:    "retries_exhausted",
		CreatedAt: base.Add(5 * time.Hour),
	}))

	summary, err := store.SummarizeDispatches(ctx, JournalQuery{})
	require.NoError(t, err)
	assert.Equal(t, int64(5), summary.Total)
	require.NotNil(t, summary.Oldest)
	assert.Equal(t, base, *summary.Oldest)
	require.Len(t, summary.Buckets, 2)
	assert.Equal(t, core.KindDecoy, summary.Buckets[0].Kind)
	assert.Equal(t, int64(4), summary.Buckets[0].Count)
	assert.InDelta(t, 100.0, summary.Buckets[0].AvgDurationMS, 0.01)
	assert.InDelta(t, 3.0, summary.Buckets[1].AvgAttempts, 0.01)

	pruned, err := store.PruneDispatches(ctx, base.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(2), pruned)

	remaining, err := store.CountDispatches(ctx, JournalQuery{})
	require.NoError(t, err)
	assert.Equal(t, int64(3), remaining)
}

func TestMigrateIsIdempotent(t *testing.T) {
	store := openJournal(t)
	ctx := context.Background()
	require.NoError(t, store.Migrate(ctx))

	version, err := store.SchemaVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, len(migrations), version)

	var applied int
	require.NoError(t, store.DB.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_migrations").Scan(&applied))
	assert.Equal(t, len(migrations), applied)
}
