package finance

import "github.com/shopspring/decimal"

// =============================================================================
// COVENANT EVALUATOR - Bond-indenture coverage ratios
// =============================================================================

// Coverage is one evaluated covenant ratio.
type Coverage struct {
	Ratio     decimal.Decimal
	Required  decimal.Decimal
	Violated  bool
	Shortfall decimal.Decimal

	// Defined is false when the denominator was zero; such a ratio is
	// reported as zero and never counts as a violation.
	Defined bool
}

// CovenantEvaluator checks the two regulatory ratios.
type CovenantEvaluator struct {
	DebtCovenantRequiredRatio decimal.Decimal
	RateCovenantThreshold     decimal.Decimal
}

// DebtCoverage evaluates net / (debtService + requiredDeposits).
// The shortfall is the extra net revenue that lifts the ratio to the
// required value.
func (e CovenantEvaluator) DebtCoverage(netRevenue, debtService, requiredDeposits decimal.Decimal) Coverage {
	denom := debtService.Add(requiredDeposits)
	c := Coverage{Ratio: decimal.Zero, Required: e.DebtCovenantRequiredRatio, Shortfall: decimal.Zero}
	if !denom.IsPositive() {
		return c
	}
	c.Defined = true
	c.Ratio = netRevenue.Div(denom)
	if c.Ratio.LessThan(e.DebtCovenantRequiredRatio) {
		c.Violated = true
		c.Shortfall = e.DebtCovenantRequiredRatio.Mul(denom).Sub(netRevenue)
	}
	return c
}

// RateCoverage evaluates (net + fundBalance) / debtService.
func (e CovenantEvaluator) RateCoverage(netRevenue, debtService, fundBalance decimal.Decimal) Coverage {
	c := Coverage{Ratio: decimal.Zero, Required: e.RateCovenantThreshold, Shortfall: decimal.Zero}
	if !debtService.IsPositive() {
		return c
	}
	c.Defined = true
	covered := netRevenue.Add(fundBalance)
	c.Ratio = covered.Div(debtService)
	if c.Ratio.LessThan(e.RateCovenantThreshold) {
		c.Violated = true
		c.Shortfall = e.RateCovenantThreshold.Mul(debtService).Sub(covered)
	}
	return c
}
