/*
ledger.go - Fund ledger with floor-constrained adjustments

PURPOSE:
  The FundLedger holds one FundSet per fiscal year. Every year is written
  exactly once, by the Settlement Step, and read afterwards by the
  Covenant Evaluator and the Next-Year Budget Step.

CRITICAL INVARIANTS:
  1. WRITE-ONCE: A fiscal year's FundSet is recorded once and never edited
  2. RECURRENCE: Balance_Y = Balance_{Y-1} - TransferIn_Y + Deposit_Y +
     InterestIncome_Y (before clamping)
  3. FLOORS: A fund's floor is a fraction of prior-year gross revenue

FLOOR RULES:
  Rebalance (R&R):
    If prior + deposit - transferIn < floor, first cut the transfer-in
    toward zero, then raise the deposit by whatever gap remains.

  ReserveShortfall (UtilityReserve):
    The reserve has no budgeted transfer-in to cut, so the gap is simply
    the top-up needed to reach the floor.

INTEREST ALLOCATION:
  Aggregate interest is shared in proportion to each fund's prior-year
  balance over an ESTIMATED enterprise-fund total:

    estimate = (sum of five balances + sinking) / (1 - unaccountedFraction)

  The unaccountedFraction share is credited to UtilityReserve as
  "unallocated interest".

SEE ALSO:
  - types.go: FundYear and FundSet
  - rollover/settlement.go: The only writer of fund years
*/
package finance

import (
	"sort"
	"sync"

	"github.com/shopspring/decimal"
)

// =============================================================================
// FUND LEDGER
// =============================================================================

// FundLedger stores one FundSet per fiscal year.
type FundLedger struct {
	mu    sync.RWMutex
	years map[FiscalYear]FundSet
}

// NewFundLedger creates an empty ledger.
func NewFundLedger() *FundLedger {
	return &FundLedger{years: make(map[FiscalYear]FundSet)}
}

// Seed records historical balances for a year that was not simulated.
func (l *FundLedger) Seed(fy FiscalYear, set FundSet) {
	l.Record(fy, set)
}

// Record stores the settled FundSet for fy.
func (l *FundLedger) Record(fy FiscalYear, set FundSet) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.years[fy] = set
}

// Year returns the FundSet recorded for fy.
func (l *FundLedger) Year(fy FiscalYear) (FundSet, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	set, ok := l.years[fy]
	return set, ok
}

// Balance returns a fund's end-of-year balance, zero if the year is unknown.
func (l *FundLedger) Balance(fy FiscalYear, fund Fund) decimal.Decimal {
	set, ok := l.Year(fy)
	if !ok {
		return decimal.Zero
	}
	return set[fund].Balance
}

// Years returns the recorded fiscal years in ascending order.
func (l *FundLedger) Years() []FiscalYear {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]FiscalYear, 0, len(l.years))
	for fy := range l.years {
		out = append(out, fy)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// =============================================================================
// FLOOR RULES
// =============================================================================

// FloorRule sets a fund's minimum balance as a fraction of prior gross revenue.
type FloorRule struct {
	Fund     Fund
	Fraction decimal.Decimal
}

// Floor returns the minimum balance for the given prior gross revenue.
func (r FloorRule) Floor(priorGross decimal.Decimal) decimal.Decimal {
	return NonNegative(priorGross.Mul(r.Fraction))
}

// Headroom returns how far balance sits above floor, never negative.
func Headroom(balance, floor decimal.Decimal) decimal.Decimal {
	return NonNegative(balance.Sub(floor))
}

// Rebalanced is the outcome of applying a floor rule to planned flows.
type Rebalanced struct {
	TransferIn decimal.Decimal
	Deposit    decimal.Decimal

	// Gap is the amount by which the planned flows missed the floor.
	Gap decimal.Decimal

	// DepositRaised is true when cutting the transfer-in was not enough.
	DepositRaised bool
}

// Rebalance closes the gap between a fund's projected balance and its floor,
// first by reducing the planned transfer-in, then by raising the deposit.
func Rebalance(rule FloorRule, priorBalance, plannedTransferIn, plannedDeposit, priorGross decimal.Decimal) Rebalanced {
	out := Rebalanced{
		TransferIn: NonNegative(plannedTransferIn),
		Deposit:    plannedDeposit,
		Gap:        decimal.Zero,
	}

	floor := rule.Floor(priorGross)
	projected := priorBalance.Add(out.Deposit).Sub(out.TransferIn)
	if !projected.LessThan(floor) {
		return out
	}

	gap := floor.Sub(projected)
	out.Gap = gap

	cut := Min(gap, out.TransferIn)
	out.TransferIn = out.TransferIn.Sub(cut)
	gap = gap.Sub(cut)

	if gap.IsPositive() {
		out.Deposit = out.Deposit.Add(gap)
		out.DepositRaised = true
	}
	return out
}

// ReserveShortfall returns the top-up needed to bring balance to its floor.
func ReserveShortfall(rule FloorRule, balance, priorGross decimal.Decimal) decimal.Decimal {
	return NonNegative(rule.Floor(priorGross).Sub(balance))
}

// =============================================================================
// INTEREST ALLOCATION
// =============================================================================

// InterestAllocation splits one year's aggregate interest across funds.
type InterestAllocation struct {
	PerFund     [FundCount]decimal.Decimal
	Sinking     decimal.Decimal
	Unallocated decimal.Decimal
	Estimate    decimal.Decimal
}

// Credited returns the interest credited to fund, including the
// unallocated share for UtilityReserve.
func (a InterestAllocation) Credited(fund Fund) decimal.Decimal {
	if fund == UtilityReserve {
		return a.PerFund[fund].Add(a.Unallocated)
	}
	return a.PerFund[fund]
}

// EstimatedEnterpriseFund grosses the tracked balances up to the size of the
// whole enterprise fund, of which unaccountedFraction is not tracked.
func EstimatedEnterpriseFund(prior FundSet, sinking, unaccountedFraction decimal.Decimal) decimal.Decimal {
	tracked := prior.TotalBalance().Add(NonNegative(sinking))
	share := decimal.NewFromInt(1).Sub(unaccountedFraction)
	if !share.IsPositive() {
		return tracked
	}
	return tracked.Div(share)
}

// AllocateInterest shares aggregate interest by prior-year balance.
func AllocateInterest(aggregate decimal.Decimal, prior FundSet, sinking, unaccountedFraction decimal.Decimal) InterestAllocation {
	out := InterestAllocation{
		Sinking:     decimal.Zero,
		Unallocated: decimal.Zero,
	}
	for i := range out.PerFund {
		out.PerFund[i] = decimal.Zero
	}

	estimate := EstimatedEnterpriseFund(prior, sinking, unaccountedFraction)
	out.Estimate = estimate
	if !estimate.IsPositive() {
		out.Unallocated = aggregate
		return out
	}

	allocated := decimal.Zero
	for _, fund := range Funds {
		share := NonNegative(prior[fund].Balance).Div(estimate)
		out.PerFund[fund] = aggregate.Mul(share)
		allocated = allocated.Add(out.PerFund[fund])
	}
	out.Sinking = aggregate.Mul(NonNegative(sinking).Div(estimate))
	allocated = allocated.Add(out.Sinking)

	// Remainder rather than aggregate*fraction so the split always sums exactly.
	out.Unallocated = aggregate.Sub(allocated)
	return out
}
