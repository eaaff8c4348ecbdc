package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/water-finance/rollover"
	"github.com/warp/water-finance/store/sqlite"
	"github.com/warp/water-finance/store/storetest"
)

func newStore(t *testing.T) rollover.ResultStore {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSQLiteStore(t *testing.T) {
	storetest.Run(t, newStore)
}

func TestSQLiteStore_SurvivesReopen(t *testing.T) {
	// GIVEN: A run written to a file-backed database
	path := filepath.Join(t.TempDir(), "finsim.db")
	ctx := context.Background()

	store, err := sqlite.New(path)
	require.NoError(t, err)
	require.NoError(t, store.CreateRun(ctx, storetest.SampleRun("run-1", time.Now())))
	require.NoError(t, store.AppendOutcome(ctx, "run-1", rollover.Outcome{Index: 0, Seed: 100, Result: storetest.SampleResult(0)}))
	require.NoError(t, store.Close())

	// WHEN: Reopening it
	reopened, err := sqlite.New(path)
	require.NoError(t, err)
	defer reopened.Close()

	// THEN: The run and its tables are still there
	run, err := reopened.Run(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, "nightly run-1", run.Label)

	res, err := reopened.Result(ctx, "run-1", 0)
	require.NoError(t, err)
	assert.Len(t, res.Budgets, 2)
}
