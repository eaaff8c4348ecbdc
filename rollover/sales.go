package rollover

import (
	"sort"

	"github.com/shopspring/decimal"
	"github.com/warp/water-finance/finance"
)

type salesKey struct {
	month  int
	member finance.MemberGovernment
}

// BuildSales prices one fiscal year of deliveries at the budgeted rates.
//
// Fixed revenue is the budgeted fixed charge (fixed rate times the demand
// estimate) billed by days in the month and shared by each member's part of
// the year's uniform deliveries. Variable and TBC revenue are volumetric.
// Every member with a record in the year gets a row for all twelve months;
// a missing month has zero deliveries but still carries its fixed charge.
func BuildSales(fy finance.FiscalYear, records []DeliveryRecord, budget finance.Budget) []finance.WaterDeliverySales {
	grouped := make(map[salesKey]*finance.WaterDeliverySales)
	memberUniform := make(map[finance.MemberGovernment]decimal.Decimal)
	totalUniform := decimal.Zero

	for _, r := range records {
		if r.FiscalYear != fy || r.Month < 1 || r.Month > finance.MonthsPerYear {
			continue
		}
		k := salesKey{month: r.Month, member: r.Member}
		row, ok := grouped[k]
		if !ok {
			row = &finance.WaterDeliverySales{
				FiscalYear:          fy,
				Month:               r.Month,
				Member:              r.Member,
				UniformDeliveriesMG: decimal.Zero,
				TBCDeliveriesMG:     decimal.Zero,
			}
			grouped[k] = row
		}
		row.UniformDeliveriesMG = row.UniformDeliveriesMG.Add(r.UniformDeliveriesMG)
		row.TBCDeliveriesMG = row.TBCDeliveriesMG.Add(r.TBCDeliveriesMG)
		memberUniform[r.Member] = memberUniform[r.Member].Add(r.UniformDeliveriesMG)
		totalUniform = totalUniform.Add(r.UniformDeliveriesMG)
	}

	for member := range memberUniform {
		for month := 1; month <= finance.MonthsPerYear; month++ {
			k := salesKey{month: month, member: member}
			if _, ok := grouped[k]; ok {
				continue
			}
			grouped[k] = &finance.WaterDeliverySales{
				FiscalYear:          fy,
				Month:               month,
				Member:              member,
				UniformDeliveriesMG: decimal.Zero,
				TBCDeliveriesMG:     decimal.Zero,
			}
		}
	}

	annualFixed := budget.FixedUniformRate().Mul(finance.AnnualVolumeKgal(budget.DemandEstimateMGD))
	days := decimal.NewFromInt(finance.DaysPerYear)

	out := make([]finance.WaterDeliverySales, 0, len(grouped))
	for k, row := range grouped {
		share := decimal.Zero
		if totalUniform.IsPositive() {
			share = memberUniform[k.member].Div(totalUniform)
		}
		monthDays := decimal.NewFromInt(int64(finance.DaysInFiscalMonth(k.month)))
		row.FixedRevenue = annualFixed.Mul(monthDays).Div(days).Mul(share)
		row.VariableRevenue = row.UniformDeliveriesMG.Mul(kgalPerMG).Mul(budget.VariableUniformRate)
		row.TBCRevenue = row.TBCDeliveriesMG.Mul(kgalPerMG).Mul(budget.TBCRate)
		out = append(out, *row)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Month != out[j].Month {
			return out[i].Month < out[j].Month
		}
		return out[i].Member < out[j].Member
	})
	return out
}

var kgalPerMG = decimal.NewFromInt(1000)
