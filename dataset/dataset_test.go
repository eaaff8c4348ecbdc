package dataset_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/water-finance/dataset"
	"github.com/warp/water-finance/finance"
)

func TestLoad_Minimal(t *testing.T) {
	// GIVEN: The package test dataset
	ds, err := dataset.Load("testdata/minimal.yaml")
	require.NoError(t, err)
	in := ds.Inputs

	// THEN: History is keyed by fiscal year
	require.Contains(t, in.History.Actuals, finance.FiscalYear(2020))
	require.Contains(t, in.History.Budgets, finance.FiscalYear(2021))
	a := in.History.Actuals[2020]
	assert.True(t, a.GrossRevenues.Equal(finance.MustParseDecimal("163500000")))
	assert.True(t, a.Funds[finance.RateStabilization].Balance.Equal(finance.MustParseDecimal("38000000")))
	assert.True(t, a.Funds[finance.UtilityReserve].Balance.Equal(finance.MustParseDecimal("20500000")))

	b := in.History.Budgets[2021]
	assert.True(t, b.UniformRate.Equal(finance.MustParseDecimal("2.363")))
	assert.True(t, b.Flows[finance.RenewalReplacement].Deposit.Equal(finance.MustParseDecimal("3000000")))

	// AND: Schedules, projects and ranges are loaded
	assert.True(t, in.CIP.At(2022).FundedBy(finance.RenewalReplacement).Equal(finance.MustParseDecimal("2700000")))
	assert.True(t, in.CIP.At(2030).FundedBy(finance.RenewalReplacement).Equal(finance.MustParseDecimal("2500000")))
	assert.True(t, in.Reserves.At(2022)[finance.RenewalReplacement].Deposit.Equal(finance.MustParseDecimal("3100000")))
	assert.True(t, in.ExistingDebtService[2022].Equal(finance.MustParseDecimal("39800000")))
	assert.Len(t, in.Projects, 2)
	assert.Equal(t, "Southern Hillsborough Pipeline", in.Projects[1].Name)
	assert.True(t, in.FlowRanges[finance.CapitalImprovement].DepositMax.Equal(finance.MustParseDecimal("1800000")))
	assert.True(t, in.AcquisitionCredits.Equal(finance.MustParseDecimal("1500000")))

	// AND: Both feeds cover FY2021-FY2022
	require.Len(t, ds.Feeds, 2)
	assert.Equal(t, []finance.FiscalYear{2021, 2022}, ds.Years())
	assert.Equal(t, []finance.ProjectID{1}, ds.Feed(0).TriggersIn(2021))
	assert.Empty(t, ds.Feed(1).TriggersIn(2021))
	assert.Len(t, ds.Feed(0).ForYear(2022), 12)
}

func TestLoad_Shipped(t *testing.T) {
	ds, err := dataset.Load("../data/dataset.yaml")
	require.NoError(t, err)
	assert.Len(t, ds.Feeds, 3)
	assert.Equal(t, []finance.FiscalYear{2021, 2022, 2023, 2024, 2025}, ds.Years())
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := dataset.Load("testdata/nope.yaml")
	assert.Error(t, err)
}

func TestFeed_Cyclic(t *testing.T) {
	ds, err := dataset.Load("testdata/minimal.yaml")
	require.NoError(t, err)

	assert.Equal(t, ds.Feed(0).TriggersIn(2021), ds.Feed(2).TriggersIn(2021))
	assert.Equal(t, ds.Feed(1).TriggersIn(2021), ds.Feed(3).TriggersIn(2021))
}

func TestSpecs(t *testing.T) {
	ds, err := dataset.Load("testdata/minimal.yaml")
	require.NoError(t, err)
	params := finance.DefaultScenarioParameters()

	specs := ds.Specs(params, 2021, 2022, 3, 10)

	require.Len(t, specs, 3)
	for i, s := range specs {
		assert.Equal(t, i, s.Index)
		assert.Equal(t, int64(10+i*7919), s.Seed)
		assert.Equal(t, finance.FiscalYear(2021), s.Start)
		assert.Equal(t, finance.FiscalYear(2022), s.End)
		assert.Nil(t, s.Sampler)
	}
	assert.Equal(t, []finance.ProjectID{1}, specs[2].Feed.TriggersIn(2021))
}

const feedOnly = `
projects:
  - {id: 1, name: "Pipeline", capital_cost: "1000", annual_operating_cost: "10"}
realizations:
  - triggers: {2021: [1]}
    deliveries:
      - {fiscal_year: 2021, month: 1, member: "Pasco County", uniform_deliveries_mg: "10", tbc_deliveries_mg: "0"}
`

func TestParse_Validation(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		wantErr string
	}{
		{"valid", feedOnly, ""},
		{"not yaml", "realizations: [", "parse dataset"},
		{"no feeds", "projects: []", "no realization delivery feeds"},
		{"month out of range", strings.Replace(feedOnly, "month: 1", "month: 13", 1), "month 13 out of range"},
		{"missing member", strings.Replace(feedOnly, `member: "Pasco County"`, `member: ""`, 1), "missing member"},
		{"unknown trigger", strings.Replace(feedOnly, "[1]", "[7]", 1), "unknown infrastructure project"},
		{"project without id", strings.Replace(feedOnly, "id: 1,", "id: 0,", 1), "has no id"},
		{"inverted range", feedOnly + `
flow_ranges:
  renewal_replacement: {deposit_min: "5", deposit_max: "1", transfer_in_min: "0", transfer_in_max: "0"}
`, "max below min"},
		{"unknown fund", feedOnly + `
flow_ranges:
  sinking: {deposit_min: "0", deposit_max: "1", transfer_in_min: "0", transfer_in_max: "0"}
`, "unknown fund"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := dataset.Parse([]byte(tt.doc))
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
