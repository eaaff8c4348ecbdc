/*
Package storetest holds the behaviour every rollover.ResultStore must share.

Each implementation runs Run against a fresh store:

	func TestContract(t *testing.T) {
	    storetest.Run(t, func(t *testing.T) rollover.ResultStore { return memory.New() })
	}
*/
package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/water-finance/finance"
	"github.com/warp/water-finance/rollover"
)

// Factory returns an empty store. Cleanup is the factory's job.
type Factory func(t *testing.T) rollover.ResultStore

// Run exercises the append-only contract against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("run headers", func(t *testing.T) { testRuns(t, newStore(t)) })
	t.Run("outcomes", func(t *testing.T) { testOutcomes(t, newStore(t)) })
	t.Run("append only", func(t *testing.T) { testAppendOnly(t, newStore(t)) })
	t.Run("not found", func(t *testing.T) { testNotFound(t, newStore(t)) })
}

func dec(s string) decimal.Decimal { return finance.MustParseDecimal(s) }

// SampleRun is a run header with distinct, checkable fields.
func SampleRun(id string, created time.Time) rollover.Run {
	return rollover.Run{
		ID:        id,
		Label:     "nightly " + id,
		Source:    "test",
		CreatedAt: created,
		Start:     2021,
		End:       2022,
		BaseSeed:  42,
		Params:    finance.DefaultScenarioParameters(),
	}
}

// SampleResult is a small two-year result with one bond and one sales row.
func SampleResult(index int) *rollover.Result {
	var funds finance.FundSet
	for _, f := range finance.Funds {
		funds[f] = finance.FundYear{Balance: dec("100"), Deposit: dec("10"), TransferIn: dec("5"), InterestIncome: dec("1")}
	}
	res := &rollover.Result{Index: index, Seed: int64(100 + index), Start: 2021, End: 2022}
	for _, fy := range []finance.FiscalYear{2021, 2022} {
		res.Budgets = append(res.Budgets, finance.Budget{FiscalYear: fy, UniformRate: dec("2.3630"), AnnualEstimate: dec("148350000")})
		res.Actuals = append(res.Actuals, finance.Actuals{FiscalYear: fy, GrossRevenues: dec("164950000"), Funds: funds})
		res.Metrics = append(res.Metrics, finance.FinancialMetrics{FiscalYear: fy, DebtCovenantRatio: dec("1.12"), RateCovenantRatio: dec("1.9")})
	}
	res.DebtIssues = []finance.DebtIssue{{ID: 1, ProjectID: 1, IssueYear: 2021, OriginalPrincipal: dec("120000000")}}
	res.Sales = []finance.WaterDeliverySales{{FiscalYear: 2021, Month: 1, Member: "Pasco County", FixedRevenue: dec("465000")}}
	res.Summary = rollover.Summarize(res.Metrics)
	return res
}

func testRuns(t *testing.T, store rollover.ResultStore) {
	ctx := context.Background()
	older := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	// GIVEN: Two runs created a day apart
	require.NoError(t, store.CreateRun(ctx, SampleRun("run-a", older)))
	require.NoError(t, store.CreateRun(ctx, SampleRun("run-b", older.Add(24*time.Hour))))

	// THEN: A header reads back intact
	run, err := store.Run(ctx, "run-a")
	require.NoError(t, err)
	assert.Equal(t, "nightly run-a", run.Label)
	assert.Equal(t, finance.FiscalYear(2021), run.Start)
	assert.Equal(t, finance.FiscalYear(2022), run.End)
	assert.Equal(t, int64(42), run.BaseSeed)
	assert.True(t, run.CreatedAt.Equal(older))
	assert.True(t, run.Params.Decisions.RRFloorFraction.Equal(dec("0.05")))

	// AND: Listing is newest first
	runs, err := store.Runs(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "run-b", runs[0].ID)
	assert.Equal(t, "run-a", runs[1].ID)

	// AND: IDs are unique
	assert.Error(t, store.CreateRun(ctx, SampleRun("run-a", older)))
}

func testOutcomes(t *testing.T, store rollover.ResultStore) {
	ctx := context.Background()
	require.NoError(t, store.CreateRun(ctx, SampleRun("run-1", time.Now())))

	// GIVEN: One failed and one successful realization, appended out of order
	failed := rollover.Outcome{Index: 1, Seed: 7, Err: errors.New("realization 1: boom")}
	ok := rollover.Outcome{Index: 0, Seed: 100, Result: SampleResult(0)}
	require.NoError(t, store.AppendOutcome(ctx, "run-1", failed))
	require.NoError(t, store.AppendOutcome(ctx, "run-1", ok))

	// THEN: Records come back by index
	records, err := store.Outcomes(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, 0, records[0].Index)
	assert.True(t, records[0].Succeeded())
	assert.Equal(t, 2, records[0].Summary.Years)
	assert.Equal(t, 1, records[1].Index)
	assert.Equal(t, "realization 1: boom", records[1].Error)

	// AND: The successful realization's tables read back
	res, err := store.Result(ctx, "run-1", 0)
	require.NoError(t, err)
	assert.Equal(t, int64(100), res.Seed)
	require.Len(t, res.Budgets, 2)
	require.Len(t, res.Actuals, 2)
	require.Len(t, res.Metrics, 2)
	require.Len(t, res.DebtIssues, 1)
	require.Len(t, res.Sales, 1)
	assert.True(t, res.Budgets[0].UniformRate.Equal(dec("2.363")))
	assert.Equal(t, finance.FiscalYear(2022), res.Actuals[1].FiscalYear)
	assert.True(t, res.Actuals[0].Funds[finance.UtilityReserve].Balance.Equal(dec("100")))
	assert.True(t, res.DebtIssues[0].OriginalPrincipal.Equal(dec("120000000")))
	assert.Equal(t, finance.MemberGovernment("Pasco County"), res.Sales[0].Member)

	// AND: The failed one has no tables
	_, err = store.Result(ctx, "run-1", 1)
	assert.ErrorIs(t, err, finance.ErrRealizationNotFound)
}

func testAppendOnly(t *testing.T, store rollover.ResultStore) {
	ctx := context.Background()
	require.NoError(t, store.CreateRun(ctx, SampleRun("run-1", time.Now())))
	o := rollover.Outcome{Index: 0, Seed: 100, Result: SampleResult(0)}
	require.NoError(t, store.AppendOutcome(ctx, "run-1", o))

	err := store.AppendOutcome(ctx, "run-1", o)

	assert.ErrorIs(t, err, finance.ErrDuplicateRealization)
	records, err := store.Outcomes(ctx, "run-1")
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func testNotFound(t *testing.T, store rollover.ResultStore) {
	ctx := context.Background()

	_, err := store.Run(ctx, "missing")
	assert.ErrorIs(t, err, finance.ErrRunNotFound)

	err = store.AppendOutcome(ctx, "missing", rollover.Outcome{Index: 0})
	assert.ErrorIs(t, err, finance.ErrRunNotFound)

	_, err = store.Result(ctx, "missing", 0)
	assert.True(t, finance.IsNotFound(err))

	runs, err := store.Runs(ctx)
	require.NoError(t, err)
	assert.Empty(t, runs)
}
