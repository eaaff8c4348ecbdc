/*
settlement.go - Annual Settlement Step

PURPOSE:
  Turns Budget(Y) and the year's realized sales into Actuals(Y) and
  FinancialMetrics(Y). Realized revenue rarely matches the budget, so the
  step rebalances reserve funds in a fixed order until the year either
  closes or the leftover deficit is recorded as a failure.

STAGES (in order, each a method on settlement):
   1. realizeRevenue             sales revenue and deliveries
   2. realizeNonSalesRevenue     interest allocation, insurance, misc
   3. holdRenewalReplacement     R&R floor: cut transfer, then raise deposit
   4. holdUtilityReserve         UR floor: record the needed top-up
   5. checkDebtCoverage          shortfall added to RS transfer-in
   6. checkRateCoverage          shortfall added to RS transfer-in
   7. capRateStabilization       RS transfer-in cap; excess is "potential"
   8. finalizeRevenue            netted gross and net revenue
   9. resolveSurplus             allocate a surplus or cover a deficit
  10. deductCapitalDeposits      flexible CIP spending
  11. recheckFloors              capital fund floors on netted gross
  12. absorbDeficit              RS, then UR; remainder is a failure
  13. persist                    Actuals + FinancialMetrics

INVARIANTS:
  - Every fund balance obeys prior - transferIn + deposit + interest
    before the final clamp, and is never negative once persisted.
  - The RS transfer-in never ends above its cap.
  - Violations and failures are recorded, never returned as errors.

SEE ALSO:
  - finance/ledger.go: Floor rules and interest allocation
  - finance/covenant.go: Coverage ratios
  - budget.go: Produces the Budget settled here
*/
package rollover

import (
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/warp/water-finance/finance"
)

// SettlementInput is everything one settlement reads.
type SettlementInput struct {
	FiscalYear   finance.FiscalYear
	PriorActuals finance.Actuals
	PriorBudget  finance.Budget
	Budget       finance.Budget
	Sales        []finance.WaterDeliverySales
}

// Settler runs the Annual Settlement Step under one realization's
// parameters and strategies.
type Settler struct {
	Params   finance.ScenarioParameters
	Sampler  Sampler
	Cip      CipPolicy
	Flexible FlexibleSpending
	Logger   zerolog.Logger
}

// NewSettler wires a settler with strategies selected from params.
func NewSettler(params finance.ScenarioParameters, sampler Sampler) *Settler {
	return &Settler{
		Params:   params,
		Sampler:  sampler,
		Cip:      SelectCipPolicy(params.Exogenous.FollowCIPSchedule),
		Flexible: SelectFlexibleSpending(params.Exogenous.FlexibleCIPSpending),
		Logger:   zerolog.Nop(),
	}
}

// Settle runs the thirteen stages for in.FiscalYear.
func (s *Settler) Settle(in SettlementInput) (finance.Actuals, finance.FinancialMetrics) {
	st := newSettlement(s, in)

	st.realizeRevenue()
	st.realizeNonSalesRevenue()
	st.holdRenewalReplacement()
	st.holdUtilityReserve()
	st.checkDebtCoverage()
	st.checkRateCoverage()
	st.capRateStabilization()
	st.finalizeRevenue()
	st.resolveSurplus()
	st.deductCapitalDeposits()
	st.recheckFloors()
	st.absorbDeficit()

	return st.persist()
}

// =============================================================================
// WORKING STATE
// =============================================================================

type settlement struct {
	s   *Settler
	in  settlementYear
	log zerolog.Logger

	covenants finance.CovenantEvaluator
	prior     finance.FundSet

	// flows holds this year's deposit, transfer-in and interest per fund;
	// Balance is unused until persist.
	flows finance.FundSet

	// rsPlannedDeposit is the budgeted RS deposit, paid out of revenue.
	// rsSurplusDeposit is surplus parked in RS after the budget closed.
	rsPlannedDeposit decimal.Decimal
	rsSurplusDeposit decimal.Decimal

	// rsToReserve is the part of the RS transfer-in that tops up UR. It
	// moves money between funds and is not revenue.
	rsToReserve decimal.Decimal

	fixedSales, variableSales, tbcSales decimal.Decimal
	uniformMG, tbcMG                    decimal.Decimal
	interest, insurance, misc           decimal.Decimal

	gross, net   decimal.Decimal
	surplus      decimal.Decimal
	carried      decimal.Decimal
	rsCap        decimal.Decimal
	totalDeficit decimal.Decimal

	metrics finance.FinancialMetrics
}

// settlementYear caches the derived inputs of one settlement.
type settlementYear struct {
	SettlementInput
	priorGross    decimal.Decimal
	priorRawGross decimal.Decimal
}

func newSettlement(s *Settler, in SettlementInput) *settlement {
	year := settlementYear{
		SettlementInput: in,
		priorGross:      in.PriorActuals.GrossRevenues,
		priorRawGross:   in.PriorActuals.RawGrossRevenues,
	}
	if !year.priorRawGross.IsPositive() {
		year.priorRawGross = year.priorGross
	}

	st := &settlement{
		s:         s,
		in:        year,
		log:       s.Logger.With().Stringer("fiscal_year", in.FiscalYear).Logger(),
		covenants: s.Params.Covenants(),
		prior:     in.PriorActuals.Funds,
		metrics: finance.FinancialMetrics{
			FiscalYear:                       in.FiscalYear,
			RemainingUnallocatedDeficit:      decimal.Zero,
			NeededReserveDeposit:             decimal.Zero,
			DebtCoverageShortfall:            decimal.Zero,
			RateCoverageShortfall:            decimal.Zero,
			PotentialOtherFundsTransferredIn: decimal.Zero,
			RequiredOtherFundsTransferredIn:  decimal.Zero,
			TotalFloorDeficit:                decimal.Zero,
		},
		rsSurplusDeposit: decimal.Zero,
		rsToReserve:      decimal.Zero,
		carried:          decimal.Zero,
		totalDeficit:     decimal.Zero,
	}
	for _, f := range finance.Funds {
		st.flows[f] = finance.FundYear{
			Balance:        decimal.Zero,
			Deposit:        finance.NonNegative(in.Budget.Flows[f].Deposit),
			TransferIn:     finance.NonNegative(in.Budget.Flows[f].TransferIn),
			InterestIncome: decimal.Zero,
		}
	}
	st.rsPlannedDeposit = st.flows[finance.RateStabilization].Deposit
	st.flows[finance.RateStabilization].Deposit = decimal.Zero
	return st
}

// balance is fund's end-of-year balance under the flows decided so far.
func (st *settlement) balance(f finance.Fund) decimal.Decimal {
	flows := st.flows[f]
	if f == finance.RateStabilization {
		flows.Deposit = flows.Deposit.Add(st.rsPlannedDeposit).Add(st.rsSurplusDeposit)
	}
	return st.prior[f].Roll(flows).Balance
}

// headroom is how much more fund can transfer in before hitting its floor.
func (st *settlement) headroom(f finance.Fund) decimal.Decimal {
	floor := st.s.Params.FloorRule(f).Floor(st.in.priorGross)
	return finance.Headroom(st.balance(f), floor)
}

// rsHeadroom is the RS transfer-in still allowed by both its cap and floor.
func (st *settlement) rsHeadroom() decimal.Decimal {
	capLeft := finance.NonNegative(st.rsCap.Sub(st.flows[finance.RateStabilization].TransferIn))
	return finance.Min(capLeft, st.headroom(finance.RateStabilization))
}

func (st *settlement) sales() decimal.Decimal {
	return st.fixedSales.Add(st.variableSales).Add(st.tbcSales)
}

func (st *settlement) nonSales() decimal.Decimal {
	return st.interest.Add(st.insurance).Add(st.misc)
}

func (st *settlement) depositsOf(funds ...finance.Fund) decimal.Decimal {
	total := decimal.Zero
	for _, f := range funds {
		total = total.Add(st.flows[f].Deposit)
	}
	return total
}

func (st *settlement) transfersIn() decimal.Decimal {
	total := decimal.Zero
	for _, f := range finance.Funds {
		total = total.Add(st.flows[f].TransferIn)
	}
	return total
}

// computeRevenue recomputes netted gross and net revenue from the current
// flows.
func (st *settlement) computeRevenue() {
	b := st.in.Budget
	st.gross = st.sales().
		Add(b.UnencumberedCarryoverFunds).
		Add(st.nonSales()).
		Sub(b.AcquisitionCredits).
		Sub(st.rsPlannedDeposit).
		Add(st.transfersIn()).
		Sub(st.rsToReserve)
	st.net = st.gross.Sub(b.FixedOperatingExpenses).Sub(b.VariableOperatingExpenses)
}

// obligations is debt service plus the capital fund deposits.
func (st *settlement) obligations() decimal.Decimal {
	return st.in.Budget.DebtService.Add(st.depositsOf(finance.CapitalImprovement, finance.RenewalReplacement, finance.EnergySavings))
}

// =============================================================================
// STAGES 1-2: REVENUE
// =============================================================================

func (st *settlement) realizeRevenue() {
	st.fixedSales, st.variableSales, st.tbcSales = decimal.Zero, decimal.Zero, decimal.Zero
	st.uniformMG, st.tbcMG = decimal.Zero, decimal.Zero
	for _, row := range st.in.Sales {
		st.fixedSales = st.fixedSales.Add(row.FixedRevenue)
		st.variableSales = st.variableSales.Add(row.VariableRevenue)
		st.tbcSales = st.tbcSales.Add(row.TBCRevenue)
		st.uniformMG = st.uniformMG.Add(row.UniformDeliveriesMG)
		st.tbcMG = st.tbcMG.Add(row.TBCDeliveriesMG)
	}
}

func (st *settlement) realizeNonSalesRevenue() {
	exo := st.s.Params.Exogenous
	sinking := st.in.Budget.DebtService

	estimate := finance.EstimatedEnterpriseFund(st.prior, sinking, exo.UnaccountedFraction)
	aggregate := finance.NonNegative(estimate.Mul(exo.FundInterestRate))
	alloc := finance.AllocateInterest(aggregate, st.prior, sinking, exo.UnaccountedFraction)
	st.interest = aggregate
	for _, f := range finance.Funds {
		st.flows[f].InterestIncome = alloc.Credited(f)
	}

	raw := st.in.priorRawGross
	st.insurance = st.s.Sampler.Uniform(raw.Mul(exo.InsuranceIncomeMinFraction), raw.Mul(exo.InsuranceIncomeMaxFraction))
	st.misc = st.s.Sampler.Uniform(raw.Mul(exo.MiscIncomeMinFraction), raw.Mul(exo.MiscIncomeMaxFraction))
}

// =============================================================================
// STAGES 3-4: FLOORS ON PLANNED FLOWS
// =============================================================================

func (st *settlement) holdRenewalReplacement() {
	rr := finance.RenewalReplacement
	r := finance.Rebalance(st.s.Params.FloorRule(rr), st.prior[rr].Balance,
		st.flows[rr].TransferIn, st.flows[rr].Deposit, st.in.priorGross)
	st.flows[rr].TransferIn = r.TransferIn
	st.flows[rr].Deposit = r.Deposit
	if r.DepositRaised {
		st.metrics.RRFundBalanceFailure = true
		st.log.Warn().Str("fund", rr.String()).Str("gap", r.Gap.StringFixed(2)).Msg("fund below floor, deposit raised")
	}
}

func (st *settlement) holdUtilityReserve() {
	ur := finance.UtilityReserve
	needed := finance.ReserveShortfall(st.s.Params.FloorRule(ur), st.balance(ur), st.in.priorGross)
	if needed.IsPositive() {
		st.metrics.NeededReserveDeposit = needed
		st.metrics.ReserveFundBalanceFailure = true
		st.log.Warn().Str("fund", ur.String()).Str("needed", needed.StringFixed(2)).Msg("fund below floor")
	}
}

// =============================================================================
// STAGES 5-7: COVENANTS AND THE RS CAP
// =============================================================================

func (st *settlement) checkDebtCoverage() {
	st.computeRevenue()
	required := st.depositsOf(finance.CapitalImprovement, finance.RenewalReplacement)
	c := st.covenants.DebtCoverage(st.net, st.in.Budget.DebtService, required)
	if !c.Violated {
		return
	}
	rs := finance.RateStabilization
	st.flows[rs].TransferIn = st.flows[rs].TransferIn.Add(c.Shortfall)
	st.metrics.DebtCovenantViolations++
	st.metrics.DebtCoverageShortfall = c.Shortfall
	st.log.Info().Str("ratio", c.Ratio.StringFixed(3)).Str("shortfall", c.Shortfall.StringFixed(2)).Msg("debt covenant violated")
}

func (st *settlement) checkRateCoverage() {
	st.computeRevenue()
	c := st.covenants.RateCoverage(st.net, st.in.Budget.DebtService, st.prior[finance.UtilityReserve].Balance)
	if !c.Violated {
		return
	}
	rs := finance.RateStabilization
	st.metrics.NeededReserveDeposit = finance.Max(st.metrics.NeededReserveDeposit, c.Shortfall)
	st.flows[rs].TransferIn = st.flows[rs].TransferIn.Add(c.Shortfall)
	st.metrics.RateCovenantViolations++
	st.metrics.RateCoverageShortfall = c.Shortfall
	st.log.Info().Str("ratio", c.Ratio.StringFixed(3)).Str("shortfall", c.Shortfall.StringFixed(2)).Msg("rate covenant violated")
}

func (st *settlement) capRateStabilization() {
	rs := finance.RateStabilization
	priorRS := st.prior[rs]
	st.rsCap = finance.NonNegative(finance.Min(
		st.s.Params.Decisions.RateStabilizationTransferCapFraction.Mul(st.in.PriorBudget.GrossRevenues),
		st.in.Budget.UnencumberedCarryoverFunds,
		priorRS.Deposit,
		priorRS.Balance,
	))
	st.metrics.RateStabilizationTransferCap = st.rsCap

	if st.flows[rs].TransferIn.GreaterThan(st.rsCap) {
		excess := st.flows[rs].TransferIn.Sub(st.rsCap)
		st.flows[rs].TransferIn = st.rsCap
		st.metrics.PotentialOtherFundsTransferredIn = excess
	}
}

// =============================================================================
// STAGES 8-10: CLOSING THE BUDGET
// =============================================================================

func (st *settlement) finalizeRevenue() {
	st.computeRevenue()
	st.surplus = st.net.Sub(st.obligations())
}

// drawCapitalFunds pulls up to amount from the R&R then CIP transfer-in
// headroom and returns what could not be drawn.
func (st *settlement) drawCapitalFunds(amount decimal.Decimal) decimal.Decimal {
	if !amount.IsPositive() || !st.s.Cip.DrawsCapitalFunds() {
		return finance.NonNegative(amount)
	}
	for _, f := range []finance.Fund{finance.RenewalReplacement, finance.CapitalImprovement} {
		draw := finance.Min(amount, st.headroom(f))
		st.flows[f].TransferIn = st.flows[f].TransferIn.Add(draw)
		amount = amount.Sub(draw)
		if !amount.IsPositive() {
			return decimal.Zero
		}
	}
	return amount
}

func (st *settlement) resolveSurplus() {
	if st.surplus.IsNegative() {
		st.coverDeficit(st.surplus.Neg())
	} else {
		st.allocateSurplus(st.surplus)
	}
	st.computeRevenue()
}

func (st *settlement) coverDeficit(deficit decimal.Decimal) {
	ur, rs := finance.UtilityReserve, finance.RateStabilization

	fromUR := finance.Min(deficit.Mul(st.s.Params.Exogenous.UtilityReserveDeficitReductionFraction), st.headroom(ur))
	st.flows[ur].TransferIn = st.flows[ur].TransferIn.Add(fromUR)
	deficit = deficit.Sub(fromUR)

	fromRS := finance.Min(deficit, st.rsHeadroom())
	st.flows[rs].TransferIn = st.flows[rs].TransferIn.Add(fromRS)
	deficit = deficit.Sub(fromRS)

	required := st.drawCapitalFunds(deficit.Add(st.metrics.PotentialOtherFundsTransferredIn))
	st.metrics.RequiredOtherFundsTransferredIn = required
}

func (st *settlement) allocateSurplus(surplus decimal.Decimal) {
	ur, rs := finance.UtilityReserve, finance.RateStabilization

	reserve := finance.Min(st.metrics.NeededReserveDeposit, surplus)
	st.flows[ur].Deposit = st.flows[ur].Deposit.Add(reserve)
	surplus = surplus.Sub(reserve)

	st.carried = finance.Min(st.s.Params.Decisions.UnencumberedFraction.Mul(st.sales()), surplus)
	surplus = surplus.Sub(st.carried)

	topUp := finance.ReserveShortfall(st.s.Params.FloorRule(ur), st.balance(ur), st.in.priorGross)
	fromSurplus := finance.Min(topUp, surplus)
	surplus = surplus.Sub(fromSurplus)
	fromRS := finance.Min(topUp.Sub(fromSurplus), st.rsHeadroom())
	st.flows[rs].TransferIn = st.flows[rs].TransferIn.Add(fromRS)
	st.rsToReserve = st.rsToReserve.Add(fromRS)
	st.flows[ur].Deposit = st.flows[ur].Deposit.Add(fromSurplus).Add(fromRS)

	st.rsSurplusDeposit = st.rsSurplusDeposit.Add(surplus)
}

func (st *settlement) deductCapitalDeposits() {
	required := st.metrics.RequiredOtherFundsTransferredIn
	if !required.IsPositive() {
		return
	}
	absorbed := st.s.Flexible.Deduct(required, &st.flows)
	if absorbed.IsPositive() {
		st.metrics.RequiredOtherFundsTransferredIn = finance.NonNegative(required.Sub(absorbed))
		st.log.Debug().Str("absorbed", absorbed.StringFixed(2)).Msg("capital deposits reduced")
	}
}

// =============================================================================
// STAGES 11-12: FLOORS AND LEFTOVER DEFICIT
// =============================================================================

func (st *settlement) recheckFloors() {
	st.computeRevenue()
	for _, f := range []finance.Fund{finance.CapitalImprovement, finance.RenewalReplacement, finance.EnergySavings} {
		floor := st.s.Params.FloorRule(f).Floor(st.gross)
		bal := st.balance(f)
		if !bal.LessThan(floor) {
			continue
		}
		gap := floor.Sub(bal)
		st.flows[f].Deposit = st.flows[f].Deposit.Add(gap)
		st.totalDeficit = st.totalDeficit.Add(gap)
		*st.metrics.FloorFailure(f) = true
		st.log.Warn().Str("fund", f.String()).Str("gap", gap.StringFixed(2)).Msg("fund below floor, deposit raised")
	}

	for _, f := range []finance.Fund{finance.UtilityReserve, finance.RateStabilization} {
		floor := st.s.Params.FloorRule(f).Floor(st.in.priorGross)
		if st.balance(f).LessThan(floor) {
			*st.metrics.FloorFailure(f) = true
		}
	}

	if st.metrics.RequiredOtherFundsTransferredIn.IsPositive() {
		st.totalDeficit = st.totalDeficit.Add(st.metrics.RequiredOtherFundsTransferredIn)
	}
	st.metrics.TotalFloorDeficit = st.totalDeficit
}

func (st *settlement) absorbDeficit() {
	deficit := st.totalDeficit
	if !deficit.IsPositive() {
		return
	}
	rs, ur := finance.RateStabilization, finance.UtilityReserve

	capLeft := finance.NonNegative(st.rsCap.Sub(st.flows[rs].TransferIn))
	fromTransfer := finance.Min(deficit, capLeft)
	st.flows[rs].TransferIn = st.flows[rs].TransferIn.Add(fromTransfer)
	deficit = deficit.Sub(fromTransfer)

	fromDeposit := finance.Min(deficit, st.rsPlannedDeposit)
	st.rsPlannedDeposit = st.rsPlannedDeposit.Sub(fromDeposit)
	deficit = deficit.Sub(fromDeposit)

	fromReserve := finance.Min(deficit, st.headroom(ur))
	st.flows[ur].TransferIn = st.flows[ur].TransferIn.Add(fromReserve)
	deficit = deficit.Sub(fromReserve)

	if deficit.IsPositive() {
		st.metrics.RemainingUnallocatedDeficit = deficit
		st.metrics.FinalBudgetFailure = true
		st.log.Warn().Str("deficit", deficit.StringFixed(2)).Msg("budget closed with unallocated deficit")
	}
}

// =============================================================================
// STAGE 13: PERSIST
// =============================================================================

func (st *settlement) persist() (finance.Actuals, finance.FinancialMetrics) {
	st.computeRevenue()
	b := st.in.Budget

	rs := finance.RateStabilization
	st.flows[rs].Deposit = st.rsPlannedDeposit.Add(st.rsSurplusDeposit)
	st.rsPlannedDeposit, st.rsSurplusDeposit = decimal.Zero, decimal.Zero

	var funds finance.FundSet
	for _, f := range finance.Funds {
		year := st.prior[f].Roll(st.flows[f])
		if year.Balance.IsNegative() {
			st.log.Warn().Str("fund", f.String()).Str("balance", year.Balance.StringFixed(2)).Msg("negative balance floored at zero")
			year.Balance = decimal.Zero
		}
		funds[f] = year
	}

	a := finance.Actuals{
		FiscalYear:                 st.in.FiscalYear,
		FixedSalesRevenue:          st.fixedSales,
		VariableSalesRevenue:       st.variableSales,
		TBCSalesRevenue:            st.tbcSales,
		WaterSalesRevenue:          st.sales(),
		InterestIncome:             st.interest,
		InsuranceLitigationIncome:  st.insurance,
		MiscellaneousIncome:        st.misc,
		RawGrossRevenues:           st.sales().Add(st.nonSales()),
		GrossRevenues:              st.gross,
		NetRevenues:                st.net,
		FixedOperatingExpenses:     b.FixedOperatingExpenses,
		VariableOperatingExpenses:  b.VariableOperatingExpenses,
		DebtService:                b.DebtService,
		AcquisitionCredits:         b.AcquisitionCredits,
		UnencumberedFunds:          b.UnencumberedCarryoverFunds,
		UnencumberedCarriedForward: st.carried,
		BudgetSurplus:              st.surplus,
		Funds:                      funds,
		TotalUniformDeliveriesMG:   st.uniformMG,
		TotalTBCDeliveriesMG:       st.tbcMG,
	}

	debt := st.covenants.DebtCoverage(st.net, b.DebtService,
		funds[finance.CapitalImprovement].Deposit.Add(funds[finance.RenewalReplacement].Deposit))
	rate := st.covenants.RateCoverage(st.net, b.DebtService, st.prior[finance.UtilityReserve].Balance)
	st.metrics.DebtCovenantRatio = debt.Ratio
	st.metrics.RateCovenantRatio = rate.Ratio

	return a, st.metrics
}
