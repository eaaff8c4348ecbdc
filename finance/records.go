package finance

import "github.com/shopspring/decimal"

// =============================================================================
// BUDGET - Planned figures for one fiscal year
// =============================================================================

// Budget is the planned set of figures for a fiscal year. It is produced by
// the Next-Year Budget Step and read-only afterwards.
type Budget struct {
	FiscalYear FiscalYear `json:"fiscal_year"`

	AnnualEstimate             decimal.Decimal `json:"annual_estimate"`
	GrossRevenues              decimal.Decimal `json:"gross_revenues"`
	WaterSalesRevenue          decimal.Decimal `json:"water_sales_revenue"`
	FixedOperatingExpenses     decimal.Decimal `json:"fixed_operating_expenses"`
	VariableOperatingExpenses  decimal.Decimal `json:"variable_operating_expenses"`
	NetRevenues                decimal.Decimal `json:"net_revenues"`
	DebtService                decimal.Decimal `json:"debt_service"`
	DebtServiceDeferred        decimal.Decimal `json:"debt_service_deferred"`
	AcquisitionCredits         decimal.Decimal `json:"acquisition_credits"`
	UnencumberedCarryoverFunds decimal.Decimal `json:"unencumbered_carryover_funds"`
	InterestIncome             decimal.Decimal `json:"interest_income"`

	Flows FundFlows `json:"flows"`

	UniformRate         decimal.Decimal `json:"uniform_rate"`
	VariableUniformRate decimal.Decimal `json:"variable_uniform_rate"`
	TBCRate             decimal.Decimal `json:"tbc_rate"`
	DemandEstimateMGD   decimal.Decimal `json:"demand_estimate_mgd"`
}

// FixedUniformRate is the part of the uniform rate that is not variable.
func (b Budget) FixedUniformRate() decimal.Decimal {
	return NonNegative(b.UniformRate.Sub(b.VariableUniformRate))
}

// =============================================================================
// ACTUALS - Realized figures for one fiscal year
// =============================================================================

// Actuals are the realized results of a settled fiscal year.
type Actuals struct {
	FiscalYear FiscalYear `json:"fiscal_year"`

	FixedSalesRevenue    decimal.Decimal `json:"fixed_sales_revenue"`
	VariableSalesRevenue decimal.Decimal `json:"variable_sales_revenue"`
	TBCSalesRevenue      decimal.Decimal `json:"tbc_sales_revenue"`
	WaterSalesRevenue    decimal.Decimal `json:"water_sales_revenue"`

	InterestIncome            decimal.Decimal `json:"interest_income"`
	InsuranceLitigationIncome decimal.Decimal `json:"insurance_litigation_income"`
	MiscellaneousIncome       decimal.Decimal `json:"miscellaneous_income"`

	// RawGrossRevenues is sales plus non-sales revenue, before transfers.
	RawGrossRevenues decimal.Decimal `json:"raw_gross_revenues"`
	GrossRevenues    decimal.Decimal `json:"gross_revenues"`
	NetRevenues      decimal.Decimal `json:"net_revenues"`

	FixedOperatingExpenses    decimal.Decimal `json:"fixed_operating_expenses"`
	VariableOperatingExpenses decimal.Decimal `json:"variable_operating_expenses"`
	DebtService               decimal.Decimal `json:"debt_service"`
	AcquisitionCredits        decimal.Decimal `json:"acquisition_credits"`

	// UnencumberedFunds were carried into this year as revenue;
	// UnencumberedCarriedForward were set aside from this year's surplus.
	UnencumberedFunds          decimal.Decimal `json:"unencumbered_funds"`
	UnencumberedCarriedForward decimal.Decimal `json:"unencumbered_carried_forward"`

	BudgetSurplus decimal.Decimal `json:"budget_surplus"`
	Funds         FundSet         `json:"funds"`

	TotalUniformDeliveriesMG decimal.Decimal `json:"total_uniform_deliveries_mg"`
	TotalTBCDeliveriesMG     decimal.Decimal `json:"total_tbc_deliveries_mg"`
}

// NonSalesRevenue is interest plus insurance/litigation plus misc income.
func (a Actuals) NonSalesRevenue() decimal.Decimal {
	return a.InterestIncome.Add(a.InsuranceLitigationIncome).Add(a.MiscellaneousIncome)
}

// =============================================================================
// FINANCIAL METRICS - Derived covenant and failure record
// =============================================================================

// FinancialMetrics is the per-year covenant and diagnostic record.
type FinancialMetrics struct {
	FiscalYear FiscalYear `json:"fiscal_year"`

	DebtCovenantRatio decimal.Decimal `json:"debt_covenant_ratio"`
	RateCovenantRatio decimal.Decimal `json:"rate_covenant_ratio"`

	DebtCovenantViolations int `json:"debt_covenant_violations"`
	RateCovenantViolations int `json:"rate_covenant_violations"`

	RRFundBalanceFailure         bool `json:"rr_fund_balance_failure"`
	ReserveFundBalanceFailure    bool `json:"reserve_fund_balance_failure"`
	CIPFundBalanceFailure        bool `json:"cip_fund_balance_failure"`
	EnergyFundBalanceFailure     bool `json:"energy_fund_balance_failure"`
	RateStabilizationFundFailure bool `json:"rate_stabilization_fund_failure"`
	FinalBudgetFailure           bool `json:"final_budget_failure"`

	RemainingUnallocatedDeficit decimal.Decimal `json:"remaining_unallocated_deficit"`

	NeededReserveDeposit             decimal.Decimal `json:"needed_reserve_deposit"`
	DebtCoverageShortfall            decimal.Decimal `json:"debt_coverage_shortfall"`
	RateCoverageShortfall            decimal.Decimal `json:"rate_coverage_shortfall"`
	RateStabilizationTransferCap     decimal.Decimal `json:"rate_stabilization_transfer_cap"`
	PotentialOtherFundsTransferredIn decimal.Decimal `json:"potential_other_funds_transferred_in"`
	RequiredOtherFundsTransferredIn  decimal.Decimal `json:"required_other_funds_transferred_in"`
	TotalFloorDeficit                decimal.Decimal `json:"total_floor_deficit"`
}

// AnyFundFailure reports whether any floor or budget failure flag is set.
func (m FinancialMetrics) AnyFundFailure() bool {
	return m.RRFundBalanceFailure || m.ReserveFundBalanceFailure ||
		m.CIPFundBalanceFailure || m.EnergyFundBalanceFailure ||
		m.RateStabilizationFundFailure || m.FinalBudgetFailure
}

// FloorFailure returns the flag that records a floor failure for fund.
func (m *FinancialMetrics) FloorFailure(fund Fund) *bool {
	switch fund {
	case RenewalReplacement:
		return &m.RRFundBalanceFailure
	case UtilityReserve:
		return &m.ReserveFundBalanceFailure
	case CapitalImprovement:
		return &m.CIPFundBalanceFailure
	case EnergySavings:
		return &m.EnergyFundBalanceFailure
	default:
		return &m.RateStabilizationFundFailure
	}
}

// =============================================================================
// WATER DELIVERY SALES - Monthly realized sales
// =============================================================================

// WaterDeliverySales is one member government's deliveries and revenue for
// one fiscal month (1 = October).
type WaterDeliverySales struct {
	FiscalYear          FiscalYear       `json:"fiscal_year"`
	Month               int              `json:"month"`
	Member              MemberGovernment `json:"member"`
	UniformDeliveriesMG decimal.Decimal  `json:"uniform_deliveries_mg"`
	TBCDeliveriesMG     decimal.Decimal  `json:"tbc_deliveries_mg"`
	FixedRevenue        decimal.Decimal  `json:"fixed_revenue"`
	VariableRevenue     decimal.Decimal  `json:"variable_revenue"`
	TBCRevenue          decimal.Decimal  `json:"tbc_revenue"`
}

// Revenue sums fixed, variable and TBC revenue.
func (s WaterDeliverySales) Revenue() decimal.Decimal {
	return s.FixedRevenue.Add(s.VariableRevenue).Add(s.TBCRevenue)
}
