package rollover_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/water-finance/finance"
	"github.com/warp/water-finance/rollover"
)

func salesBudget() finance.Budget {
	return finance.Budget{
		FiscalYear:          2021,
		UniformRate:         d("2.0"),
		VariableUniformRate: d("0.5"),
		TBCRate:             d("0.3"),
		DemandEstimateMGD:   d("10"),
	}
}

func TestBuildSales_FixedRevenueByDaysAndShare(t *testing.T) {
	// GIVEN: Two members delivering in October; annual fixed charge is
	// 1.5 $/kgal * 10 MGD * 365 * 1000 = 5,475,000
	records := []rollover.DeliveryRecord{
		{FiscalYear: 2021, Month: 1, Member: "Pasco County", UniformDeliveriesMG: d("200"), TBCDeliveriesMG: d("10")},
		{FiscalYear: 2021, Month: 1, Member: "Hillsborough County", UniformDeliveriesMG: d("100"), TBCDeliveriesMG: d("0")},
	}

	// WHEN: Pricing the year
	rows := rollover.BuildSales(2021, records, salesBudget())

	// THEN: October's 31/365 of the fixed charge is shared 1:2
	require.Len(t, rows, 24)
	assert.Equal(t, finance.MemberGovernment("Hillsborough County"), rows[0].Member)
	assert.InDelta(t, 155000.0, rows[0].FixedRevenue.InexactFloat64(), 0.01)
	assert.InDelta(t, 310000.0, rows[1].FixedRevenue.InexactFloat64(), 0.01)

	// AND: Variable and TBC revenue are volumetric
	eq(t, "100000", rows[1].VariableRevenue)
	eq(t, "3000", rows[1].TBCRevenue)
	eq(t, "50000", rows[0].VariableRevenue)
	eq(t, "0", rows[0].TBCRevenue)
}

func TestBuildSales_AggregatesAndSorts(t *testing.T) {
	records := []rollover.DeliveryRecord{
		{FiscalYear: 2021, Month: 2, Member: "Pasco County", UniformDeliveriesMG: d("50")},
		{FiscalYear: 2021, Month: 1, Member: "Pasco County", UniformDeliveriesMG: d("20")},
		{FiscalYear: 2021, Month: 1, Member: "Pasco County", UniformDeliveriesMG: d("30")},
		{FiscalYear: 2022, Month: 1, Member: "Pasco County", UniformDeliveriesMG: d("999")},
		{FiscalYear: 2021, Month: 13, Member: "Pasco County", UniformDeliveriesMG: d("999")},
	}

	rows := rollover.BuildSales(2021, records, salesBudget())

	require.Len(t, rows, 12)
	assert.Equal(t, 1, rows[0].Month)
	assert.Equal(t, 2, rows[1].Month)
	eq(t, "50", rows[0].UniformDeliveriesMG)
	eq(t, "50", rows[1].UniformDeliveriesMG)

	// Sole member: fixed revenue is exactly the month's share of the year.
	assert.InDelta(t, 465000.0, rows[0].FixedRevenue.InexactFloat64(), 0.01)
}

func TestBuildSales_MissingMonthsStillBillFixedCharge(t *testing.T) {
	// GIVEN: A member reporting only two months of the year
	records := []rollover.DeliveryRecord{
		{FiscalYear: 2021, Month: 3, Member: "Pasco County", UniformDeliveriesMG: d("40")},
		{FiscalYear: 2021, Month: 7, Member: "Pasco County", UniformDeliveriesMG: d("60")},
	}

	// WHEN: Pricing the year
	rows := rollover.BuildSales(2021, records, salesBudget())

	// THEN: Every month is billed and the fixed charge is collected in full
	require.Len(t, rows, 12)
	fixed := d("0")
	for i, row := range rows {
		assert.Equal(t, i+1, row.Month)
		fixed = fixed.Add(row.FixedRevenue)
	}
	assert.InDelta(t, 5475000.0, fixed.InexactFloat64(), 0.01)

	// AND: Months without records deliver and sell nothing by volume
	eq(t, "0", rows[0].UniformDeliveriesMG)
	eq(t, "0", rows[0].VariableRevenue)
	eq(t, "40", rows[2].UniformDeliveriesMG)
}

func TestBuildSales_NoRecords(t *testing.T) {
	rows := rollover.BuildSales(2021, nil, salesBudget())
	assert.Empty(t, rows)
}
