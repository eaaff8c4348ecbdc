package rollover_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/warp/water-finance/finance"
	"github.com/warp/water-finance/rollover"
)

// =============================================================================
// SAMPLERS
// =============================================================================

func TestRandSampler_DeterministicAndBounded(t *testing.T) {
	a := rollover.NewRandSampler(42)
	b := rollover.NewRandSampler(42)
	lo, hi := d("10"), d("20")

	for i := 0; i < 100; i++ {
		x, y := a.Uniform(lo, hi), b.Uniform(lo, hi)
		assert.True(t, x.Equal(y), "draw %d differs: %s vs %s", i, x, y)
		assert.False(t, x.LessThan(lo) || x.GreaterThan(hi), "draw %d out of range: %s", i, x)
	}
}

func TestSamplers_DegenerateInterval(t *testing.T) {
	eq(t, "5", rollover.NewRandSampler(1).Uniform(d("5"), d("5")))
	eq(t, "5", rollover.NewRandSampler(1).Uniform(d("5"), d("3")))
	eq(t, "5", rollover.MidpointSampler{}.Uniform(d("5"), d("5")))
}

func TestMidpointSampler(t *testing.T) {
	eq(t, "15", rollover.MidpointSampler{}.Uniform(d("10"), d("20")))
}

// =============================================================================
// CIP POLICY
// =============================================================================

func policyInputs() *rollover.Inputs {
	var generic finance.FundFlows
	for _, f := range finance.Funds {
		generic[f] = finance.FundFlow{Deposit: d("1"), TransferIn: d("2")}
	}
	var ranges rollover.FlowRanges
	for _, f := range finance.Funds {
		ranges[f] = rollover.FlowRange{DepositMin: d("10"), DepositMax: d("20"), TransferInMin: d("0"), TransferInMax: d("4")}
	}
	return &rollover.Inputs{
		CIP: rollover.CIPSchedule{
			Years: map[finance.FiscalYear]rollover.CIPYear{
				2022: {
					Major:                rollover.SourceAmounts{RenewalReplacement: d("100"), CapitalImprovement: d("40")},
					Other:                rollover.SourceAmounts{RenewalReplacement: d("20"), Operating: d("7")},
					ScheduledDebtService: d("300"),
				},
			},
		},
		Reserves:            rollover.ReserveSchedule{Generic: generic},
		ExistingDebtService: map[finance.FiscalYear]decimal.Decimal{2022: d("500")},
		FlowRanges:          ranges,
	}
}

func TestSelectCipPolicy(t *testing.T) {
	assert.Equal(t, "schedule_driven", rollover.SelectCipPolicy(true).String())
	assert.Equal(t, "trigger_driven", rollover.SelectCipPolicy(false).String())
	assert.False(t, rollover.SelectCipPolicy(true).DrawsCapitalFunds())
	assert.True(t, rollover.SelectCipPolicy(false).DrawsCapitalFunds())
}

func TestScheduleDriven_FlowsFollowSchedules(t *testing.T) {
	// GIVEN: Half of the scheduled CIP spending is carried out
	in := policyInputs()
	p := finance.DefaultScenarioParameters()
	p.Exogenous.CIPScheduleSpendingFraction = d("0.5")

	// WHEN: Budgeting FY2022
	flows := rollover.ScheduleDriven{}.BudgetFlows(nil, in, 2022, p)

	// THEN: Capital transfers finance the scheduled spending
	eq(t, "60", flows[finance.RenewalReplacement].TransferIn)
	eq(t, "20", flows[finance.CapitalImprovement].TransferIn)
	eq(t, "0", flows[finance.EnergySavings].TransferIn)

	// AND: Everything else comes from the reserve schedule
	eq(t, "2", flows[finance.RateStabilization].TransferIn)
	eq(t, "1", flows[finance.RenewalReplacement].Deposit)
}

func TestScheduleDriven_DebtService(t *testing.T) {
	in := policyInputs()
	debt := finance.NewDebtSchedule(in.ExistingDebtService)
	p := rollover.ScheduleDriven{}

	eq(t, "800", p.DebtService(debt, in, 2022))
	assert.Nil(t, p.IssueDebt(debt, rollover.Project{ID: 1, CapitalCost: d("100")}, 2021, finance.DefaultScenarioParameters().DebtTerms()))
	assert.Empty(t, debt.Issues())
}

func TestTriggerDriven_FlowsDrawnFromRanges(t *testing.T) {
	in := policyInputs()

	flows := rollover.TriggerDriven{}.BudgetFlows(rollover.MidpointSampler{}, in, 2022, finance.DefaultScenarioParameters())

	for _, f := range finance.Funds {
		if f == finance.UtilityReserve {
			assert.True(t, flows[f].Deposit.IsZero(), "UR deposit")
			assert.True(t, flows[f].TransferIn.IsZero(), "UR transfer-in")
			continue
		}
		eq(t, "15", flows[f].Deposit)
		eq(t, "2", flows[f].TransferIn)
	}
}

func TestTriggerDriven_IssuesDebtForCapitalProjects(t *testing.T) {
	debt := finance.NewDebtSchedule(nil)
	terms := finance.DefaultScenarioParameters().DebtTerms()
	p := rollover.TriggerDriven{}

	issue := p.IssueDebt(debt, rollover.Project{ID: 3, CapitalCost: d("1000000")}, 2021, terms)
	assert.NotNil(t, issue)
	assert.Nil(t, p.IssueDebt(debt, rollover.Project{ID: 4, CapitalCost: d("0")}, 2021, terms))
	assert.Len(t, debt.Issues(), 1)
}

// =============================================================================
// FLEXIBLE SPENDING
// =============================================================================

func deposits(cip, rr, es string) *finance.FundSet {
	var flows finance.FundSet
	for _, f := range finance.Funds {
		flows[f] = finance.FundYear{Deposit: d("0"), TransferIn: d("0")}
	}
	flows[finance.CapitalImprovement].Deposit = d(cip)
	flows[finance.RenewalReplacement].Deposit = d(rr)
	flows[finance.EnergySavings].Deposit = d(es)
	return &flows
}

func TestProportionalDeduction(t *testing.T) {
	tests := []struct {
		name     string
		required string
		absorbed string
		cip, rr  string
	}{
		{"shared by size", "20", "20", "15", "5"},
		{"capped at deposits", "100", "40", "0", "0"},
		{"nothing required", "0", "0", "30", "10"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			flows := deposits("30", "10", "0")

			absorbed := rollover.ProportionalDeduction{}.Deduct(d(tt.required), flows)

			eq(t, tt.absorbed, absorbed)
			eq(t, tt.cip, flows[finance.CapitalImprovement].Deposit)
			eq(t, tt.rr, flows[finance.RenewalReplacement].Deposit)
			eq(t, "0", flows[finance.EnergySavings].Deposit)
		})
	}
}

func TestRigidDeposits(t *testing.T) {
	flows := deposits("30", "10", "5")
	eq(t, "0", rollover.RigidDeposits{}.Deduct(d("20"), flows))
	eq(t, "30", flows[finance.CapitalImprovement].Deposit)
	assert.Equal(t, "rigid", rollover.SelectFlexibleSpending(false).String())
	assert.Equal(t, "proportional", rollover.SelectFlexibleSpending(true).String())
}
