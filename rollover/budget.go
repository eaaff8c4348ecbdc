/*
budget.go - Next-Year Budget Step

PURPOSE:
  Projects Budget(Y+1) from Actuals(Y) and Budget(Y). The Annual Estimate
  is what water sales must raise once every other source is counted:

    AE = fixed + variable + debt service + deposits + acquisition credits
         - (interest + unencumbered carryover + transfers in + TBC revenue)

  The Rate Model then prices the AE into a uniform rate, possibly
  shifting part of it onto the Rate Stabilization transfer-in.

STEPS:
  1. issue debt for projects triggered during Y (trigger-driven only)
  2. debt service for Y+1, capped; the excess is deferred one year
  3. split new projects' O&M into fixed and variable accumulators
  4. inflate base operating costs and add accumulated project O&M
  5. demand estimate from the year's uniform deliveries
  6. budgeted fund flows (drawn or scheduled)
  7. RS transfer-in kept above the RS minimum ratio
  8. uniform and variable rates
  9. return Budget(Y+1)

SEE ALSO:
  - finance/rate.go: Rate Model
  - policy.go: CipPolicy variants
*/
package rollover

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/warp/water-finance/finance"
)

// BudgetInput is everything one budget projection reads besides the state.
type BudgetInput struct {
	// FiscalYear is the year being budgeted (Y+1).
	FiscalYear finance.FiscalYear

	Actuals finance.Actuals
	Budget  finance.Budget

	// PriorActuals is Actuals(Y-1), nil when not available.
	PriorActuals *finance.Actuals

	// Triggers are projects the water-supply model triggered during Y.
	Triggers []finance.ProjectID
}

// Budgeter runs the Next-Year Budget Step.
type Budgeter struct {
	Params  finance.ScenarioParameters
	Inputs  *Inputs
	Sampler Sampler
	Cip     CipPolicy
	Rate    finance.RateManagementPolicy
	Logger  zerolog.Logger
}

// NewBudgeter wires a budgeter with strategies selected from params.
func NewBudgeter(params finance.ScenarioParameters, inputs *Inputs, sampler Sampler) (*Budgeter, error) {
	rate, err := params.RatePolicy()
	if err != nil {
		return nil, err
	}
	return &Budgeter{
		Params:  params,
		Inputs:  inputs,
		Sampler: sampler,
		Cip:     SelectCipPolicy(params.Exogenous.FollowCIPSchedule),
		Rate:    rate,
		Logger:  zerolog.Nop(),
	}, nil
}

// Project builds Budget(in.FiscalYear) and updates the state's running
// accumulators and debt schedule.
func (b *Budgeter) Project(state *RealizationState, in BudgetInput) (finance.Budget, error) {
	next := in.FiscalYear
	current := next.Prev()
	exo := b.Params.Exogenous
	log := b.Logger.With().Stringer("fiscal_year", next).Logger()

	// 1. New projects and their debt.
	projects, err := b.admit(state, in.Triggers, current)
	if err != nil {
		return finance.Budget{}, err
	}
	for _, p := range projects {
		if issue := b.Cip.IssueDebt(state.Debt, p, current, b.Params.DebtTerms()); issue != nil {
			log.Info().Int("project", int(p.ID)).Str("principal", issue.OriginalPrincipal.StringFixed(2)).Msg("debt issued")
		}
	}

	// 2. Debt service with cap and deferral.
	debtService := b.Cip.DebtService(state.Debt, b.Inputs, next).Add(state.DeferredDebtService)
	state.DeferredDebtService = decimal.Zero
	deferred := decimal.Zero
	if dsCap := exo.DebtServiceCapFraction.Mul(in.Actuals.GrossRevenues); dsCap.IsPositive() && debtService.GreaterThan(dsCap) {
		deferred = debtService.Sub(dsCap)
		debtService = dsCap
		log.Info().Str("deferred", deferred.StringFixed(2)).Msg("debt service over cap, deferring")
	}
	state.Debt.Amortize(next)

	// 3. Project O&M.
	for _, p := range projects {
		variable := p.AnnualOperatingCost.Mul(exo.NewInfraVariableCostFraction)
		state.InfraVariableOpEx = state.InfraVariableOpEx.Add(variable)
		state.InfraFixedOpEx = state.InfraFixedOpEx.Add(p.AnnualOperatingCost.Sub(variable))
	}

	// 4. Operating costs.
	state.BaseFixedOpEx = state.BaseFixedOpEx.Mul(decimal.NewFromInt(1).Add(exo.FixedOpExInflation))
	state.BaseVariableOpEx = state.BaseVariableOpEx.Mul(decimal.NewFromInt(1).Add(exo.VariableOpExInflation))
	fixed := state.BaseFixedOpEx.Add(state.InfraFixedOpEx)
	variable := state.BaseVariableOpEx.Add(state.InfraVariableOpEx)

	// 5. Demand.
	demand := in.Actuals.TotalUniformDeliveriesMG.
		Div(decimal.NewFromInt(finance.DaysPerYear)).
		Mul(decimal.NewFromInt(1).Add(exo.DemandGrowthRate))
	if !demand.IsPositive() {
		demand = in.Budget.DemandEstimateMGD
	}
	if !demand.IsPositive() {
		return finance.Budget{}, &finance.InputError{FiscalYear: next, Field: "demand_estimate_mgd", Err: finance.ErrNonPositiveDemand}
	}

	// 6. Fund flows.
	flows := b.Cip.BudgetFlows(b.Sampler, b.Inputs, next, b.Params)
	for _, f := range finance.Funds {
		flows[f].Deposit = finance.NonNegative(flows[f].Deposit)
		flows[f].TransferIn = finance.NonNegative(flows[f].TransferIn)
	}

	// 7. RS minimum ratio.
	rs := finance.RateStabilization
	rsBalance := in.Actuals.Funds[rs].Balance
	rsFloor := b.Params.Decisions.RateStabilizationMinimumRatio.Mul(in.Actuals.GrossRevenues)
	if rsBalance.Sub(flows[rs].TransferIn).LessThan(rsFloor) {
		flows[rs].TransferIn = finance.NonNegative(rsBalance.Sub(rsFloor))
	}

	// 8. Annual Estimate and rates.
	acquisition := decimal.Zero
	if next <= exo.AcquisitionCreditsEndYear {
		acquisition = b.Inputs.AcquisitionCredits
	}
	unencumbered := in.Actuals.UnencumberedCarriedForward
	if in.PriorActuals != nil {
		unencumbered = in.PriorActuals.UnencumberedCarriedForward
	}
	interest := in.Actuals.InterestIncome
	tbcRate := in.Budget.TBCRate.Mul(decimal.NewFromInt(1).Add(exo.TBCRateInflation))
	tbcRevenue := tbcRate.Mul(in.Actuals.TotalTBCDeliveriesMG).Mul(kgalPerMG)

	requirement := fixed.Add(variable).Add(debtService).
		Add(flows.TotalDeposits(finance.RateStabilization, finance.RenewalReplacement, finance.CapitalImprovement, finance.EnergySavings)).
		Add(acquisition)
	sources := interest.Add(unencumbered).Add(flows.TotalTransfersIn(finance.Funds[:]...)).Add(tbcRevenue)
	annualEstimate := finance.NonNegative(requirement.Sub(sources))

	est, err := finance.EstimateUniformRate(b.Rate, finance.RateInput{
		AnnualEstimate:    annualEstimate,
		DemandEstimateMGD: demand,
		CurrentRate:       in.Budget.UniformRate,
		RSTransferIn:      flows[rs].TransferIn,
		RSFundBalance:     rsBalance,
	})
	if err != nil {
		return finance.Budget{}, fmt.Errorf("rate for %s: %w", next, err)
	}
	flows[rs].TransferIn = est.RSTransferIn
	variableRate := finance.EstimateVariableRate(est.AnnualEstimate, variable, est.Rate)

	// 9. Budget.
	waterSales := est.Rate.Mul(finance.AnnualVolumeKgal(demand)).Add(tbcRevenue)
	gross := waterSales.Add(interest).Add(unencumbered).
		Add(flows.TotalTransfersIn(finance.Funds[:]...)).
		Sub(acquisition).
		Sub(flows[rs].Deposit)

	budget := finance.Budget{
		FiscalYear:                 next,
		AnnualEstimate:             est.AnnualEstimate,
		GrossRevenues:              gross,
		WaterSalesRevenue:          waterSales,
		FixedOperatingExpenses:     fixed,
		VariableOperatingExpenses:  variable,
		NetRevenues:                gross.Sub(fixed).Sub(variable),
		DebtService:                debtService,
		DebtServiceDeferred:        deferred,
		AcquisitionCredits:         acquisition,
		UnencumberedCarryoverFunds: unencumbered,
		InterestIncome:             interest,
		Flows:                      flows,
		UniformRate:                est.Rate,
		VariableUniformRate:        variableRate,
		TBCRate:                    tbcRate,
		DemandEstimateMGD:          demand,
	}

	log.Debug().
		Str("annual_estimate", budget.AnnualEstimate.StringFixed(2)).
		Str("uniform_rate", budget.UniformRate.StringFixed(4)).
		Stringer("rate_policy", b.Rate).
		Msg("budget projected")
	return budget, nil
}

// admit resolves newly triggered project IDs against the catalog.
func (b *Budgeter) admit(state *RealizationState, triggers []finance.ProjectID, fy finance.FiscalYear) ([]Project, error) {
	var unknown []finance.ProjectID
	var known []finance.ProjectID
	for _, id := range triggers {
		if _, ok := b.Inputs.Projects[id]; !ok {
			unknown = append(unknown, id)
			continue
		}
		known = append(known, id)
	}
	if len(unknown) > 0 {
		return nil, &finance.InputError{FiscalYear: fy, Field: fmt.Sprintf("project %d", unknown[0]), Err: finance.ErrUnknownProject}
	}

	ids := state.admitProjects(known, fy)
	out := make([]Project, 0, len(ids))
	for _, id := range ids {
		out = append(out, b.Inputs.Projects[id])
	}
	return out, nil
}
