/*
params.go - Scenario parameters for one realization

PURPOSE:
  Every tunable input to the rollover engine lives in ScenarioParameters,
  built once per realization and passed down by value. Nothing inside the
  settlement or budget steps re-draws or re-indexes a parameter.

GROUPS:
  DecisionVariables (11): policy choices the authority controls
  ExogenousFactors (20):  conditions outside its control, plus the two
                          CIP schedule toggles
  KeepUniformRateStable:  the rate-management (MANAGE) toggle

DEFAULTS:
  DefaultScenarioParameters returns the documented defaults:
  covenant threshold 1.25, debt covenant ratio 1.0, R&R floor 5%,
  reserve floor 10%, unencumbered 2.5%, inflation 3.3%, 15% variable share
  of new infrastructure O&M, 27% unaccounted enterprise fund, 75% reserve
  share of a deficit.
*/
package finance

import (
	"github.com/shopspring/decimal"
)

// DecisionVariables are the authority's policy choices.
type DecisionVariables struct {
	RateCovenantThreshold                decimal.Decimal `json:"rate_covenant_threshold" yaml:"rate_covenant_threshold"`
	DebtCovenantRequiredRatio            decimal.Decimal `json:"debt_covenant_required_ratio" yaml:"debt_covenant_required_ratio"`
	RateStabilizationMinimumRatio        decimal.Decimal `json:"rate_stabilization_minimum_ratio" yaml:"rate_stabilization_minimum_ratio"`
	RateStabilizationTransferCapFraction decimal.Decimal `json:"rate_stabilization_transfer_cap_fraction" yaml:"rate_stabilization_transfer_cap_fraction"`
	UtilityReserveFloorFraction          decimal.Decimal `json:"utility_reserve_floor_fraction" yaml:"utility_reserve_floor_fraction"`
	RRFloorFraction                      decimal.Decimal `json:"rr_floor_fraction" yaml:"rr_floor_fraction"`
	CIPFloorFraction                     decimal.Decimal `json:"cip_floor_fraction" yaml:"cip_floor_fraction"`
	EnergySavingsFloorFraction           decimal.Decimal `json:"energy_savings_floor_fraction" yaml:"energy_savings_floor_fraction"`
	UnencumberedFraction                 decimal.Decimal `json:"unencumbered_fraction" yaml:"unencumbered_fraction"`
	RateIncreaseHighBound                decimal.Decimal `json:"rate_increase_high_bound" yaml:"rate_increase_high_bound"`
	RateIncreaseLowBound                 decimal.Decimal `json:"rate_increase_low_bound" yaml:"rate_increase_low_bound"`
}

// ExogenousFactors are conditions outside the authority's control.
type ExogenousFactors struct {
	FixedOpExInflation                     decimal.Decimal `json:"fixed_opex_inflation" yaml:"fixed_opex_inflation"`
	VariableOpExInflation                  decimal.Decimal `json:"variable_opex_inflation" yaml:"variable_opex_inflation"`
	DemandGrowthRate                       decimal.Decimal `json:"demand_growth_rate" yaml:"demand_growth_rate"`
	TBCRateInflation                       decimal.Decimal `json:"tbc_rate_inflation" yaml:"tbc_rate_inflation"`
	NewInfraVariableCostFraction           decimal.Decimal `json:"new_infra_variable_cost_fraction" yaml:"new_infra_variable_cost_fraction"`
	NewDebtInterestRate                    decimal.Decimal `json:"new_debt_interest_rate" yaml:"new_debt_interest_rate"`
	NewDebtTermYears                       int             `json:"new_debt_term_years" yaml:"new_debt_term_years"`
	NewDebtDeferralYears                   int             `json:"new_debt_deferral_years" yaml:"new_debt_deferral_years"`
	FundInterestRate                       decimal.Decimal `json:"fund_interest_rate" yaml:"fund_interest_rate"`
	UnaccountedFraction                    decimal.Decimal `json:"unaccounted_fraction" yaml:"unaccounted_fraction"`
	InsuranceIncomeMinFraction             decimal.Decimal `json:"insurance_income_min_fraction" yaml:"insurance_income_min_fraction"`
	InsuranceIncomeMaxFraction             decimal.Decimal `json:"insurance_income_max_fraction" yaml:"insurance_income_max_fraction"`
	MiscIncomeMinFraction                  decimal.Decimal `json:"misc_income_min_fraction" yaml:"misc_income_min_fraction"`
	MiscIncomeMaxFraction                  decimal.Decimal `json:"misc_income_max_fraction" yaml:"misc_income_max_fraction"`
	DebtServiceCapFraction                 decimal.Decimal `json:"debt_service_cap_fraction" yaml:"debt_service_cap_fraction"`
	UtilityReserveDeficitReductionFraction decimal.Decimal `json:"utility_reserve_deficit_reduction_fraction" yaml:"utility_reserve_deficit_reduction_fraction"`
	CIPScheduleSpendingFraction            decimal.Decimal `json:"cip_schedule_spending_fraction" yaml:"cip_schedule_spending_fraction"`
	AcquisitionCreditsEndYear              FiscalYear      `json:"acquisition_credits_end_year" yaml:"acquisition_credits_end_year"`
	FollowCIPSchedule                      bool            `json:"follow_cip_schedule" yaml:"follow_cip_schedule"`
	FlexibleCIPSpending                    bool            `json:"flexible_cip_spending" yaml:"flexible_cip_spending"`
}

// ScenarioParameters bundles everything one realization is parameterized by.
type ScenarioParameters struct {
	Decisions             DecisionVariables `json:"decisions" yaml:"decisions"`
	Exogenous             ExogenousFactors  `json:"exogenous" yaml:"exogenous"`
	KeepUniformRateStable bool              `json:"keep_uniform_rate_stable" yaml:"keep_uniform_rate_stable"`
}

// DefaultScenarioParameters returns the documented defaults.
func DefaultScenarioParameters() ScenarioParameters {
	return ScenarioParameters{
		Decisions: DecisionVariables{
			RateCovenantThreshold:                MustParseDecimal("1.25"),
			DebtCovenantRequiredRatio:            MustParseDecimal("1.0"),
			RateStabilizationMinimumRatio:        MustParseDecimal("0.10"),
			RateStabilizationTransferCapFraction: MustParseDecimal("0.03"),
			UtilityReserveFloorFraction:          MustParseDecimal("0.10"),
			RRFloorFraction:                      MustParseDecimal("0.05"),
			CIPFloorFraction:                     MustParseDecimal("0.0"),
			EnergySavingsFloorFraction:           MustParseDecimal("0.0"),
			UnencumberedFraction:                 MustParseDecimal("0.025"),
			RateIncreaseHighBound:                MustParseDecimal("0.0"),
			RateIncreaseLowBound:                 MustParseDecimal("0.0"),
		},
		Exogenous: ExogenousFactors{
			FixedOpExInflation:                     MustParseDecimal("0.033"),
			VariableOpExInflation:                  MustParseDecimal("0.033"),
			DemandGrowthRate:                       MustParseDecimal("0.0"),
			TBCRateInflation:                       MustParseDecimal("0.0"),
			NewInfraVariableCostFraction:           MustParseDecimal("0.15"),
			NewDebtInterestRate:                    MustParseDecimal("0.04"),
			NewDebtTermYears:                       30,
			NewDebtDeferralYears:                   1,
			FundInterestRate:                       MustParseDecimal("0.01"),
			UnaccountedFraction:                    MustParseDecimal("0.27"),
			InsuranceIncomeMinFraction:             MustParseDecimal("0.0"),
			InsuranceIncomeMaxFraction:             MustParseDecimal("0.002"),
			MiscIncomeMinFraction:                  MustParseDecimal("0.0"),
			MiscIncomeMaxFraction:                  MustParseDecimal("0.002"),
			DebtServiceCapFraction:                 MustParseDecimal("0.5"),
			UtilityReserveDeficitReductionFraction: MustParseDecimal("0.75"),
			CIPScheduleSpendingFraction:            MustParseDecimal("1.0"),
			AcquisitionCreditsEndYear:              2028,
		},
	}
}

// Validate checks every parameter is in range.
func (p ScenarioParameters) Validate() error {
	fractions := []struct {
		name string
		v    decimal.Decimal
	}{
		{"rate_stabilization_minimum_ratio", p.Decisions.RateStabilizationMinimumRatio},
		{"rate_stabilization_transfer_cap_fraction", p.Decisions.RateStabilizationTransferCapFraction},
		{"utility_reserve_floor_fraction", p.Decisions.UtilityReserveFloorFraction},
		{"rr_floor_fraction", p.Decisions.RRFloorFraction},
		{"cip_floor_fraction", p.Decisions.CIPFloorFraction},
		{"energy_savings_floor_fraction", p.Decisions.EnergySavingsFloorFraction},
		{"unencumbered_fraction", p.Decisions.UnencumberedFraction},
		{"new_infra_variable_cost_fraction", p.Exogenous.NewInfraVariableCostFraction},
		{"insurance_income_min_fraction", p.Exogenous.InsuranceIncomeMinFraction},
		{"insurance_income_max_fraction", p.Exogenous.InsuranceIncomeMaxFraction},
		{"misc_income_min_fraction", p.Exogenous.MiscIncomeMinFraction},
		{"misc_income_max_fraction", p.Exogenous.MiscIncomeMaxFraction},
		{"utility_reserve_deficit_reduction_fraction", p.Exogenous.UtilityReserveDeficitReductionFraction},
	}
	for _, f := range fractions {
		if f.v.IsNegative() || f.v.GreaterThan(decimalOne) {
			return &ParameterError{Name: f.name, Value: f.v.String(), Rule: "must be within [0, 1]"}
		}
	}

	if !p.Exogenous.UnaccountedFraction.LessThan(decimalOne) || p.Exogenous.UnaccountedFraction.IsNegative() {
		return &ParameterError{Name: "unaccounted_fraction", Value: p.Exogenous.UnaccountedFraction.String(), Rule: "must be within [0, 1)"}
	}
	if p.Exogenous.InsuranceIncomeMaxFraction.LessThan(p.Exogenous.InsuranceIncomeMinFraction) {
		return &ParameterError{Name: "insurance_income_max_fraction", Value: p.Exogenous.InsuranceIncomeMaxFraction.String(), Rule: "must not be below the min fraction"}
	}
	if p.Exogenous.MiscIncomeMaxFraction.LessThan(p.Exogenous.MiscIncomeMinFraction) {
		return &ParameterError{Name: "misc_income_max_fraction", Value: p.Exogenous.MiscIncomeMaxFraction.String(), Rule: "must not be below the min fraction"}
	}
	if p.Decisions.RateIncreaseHighBound.LessThan(p.Decisions.RateIncreaseLowBound) {
		return &ParameterError{Name: "rate_increase_high_bound", Value: p.Decisions.RateIncreaseHighBound.String(), Rule: "must not be below the low bound"}
	}
	if !p.Exogenous.DebtServiceCapFraction.IsPositive() {
		return &ParameterError{Name: "debt_service_cap_fraction", Value: p.Exogenous.DebtServiceCapFraction.String(), Rule: "must be positive"}
	}
	if p.Exogenous.NewDebtTermYears < 1 {
		return &ParameterError{Name: "new_debt_term_years", Value: decimal.NewFromInt(int64(p.Exogenous.NewDebtTermYears)).String(), Rule: "must be at least 1"}
	}
	if p.Decisions.RateCovenantThreshold.IsNegative() || p.Decisions.DebtCovenantRequiredRatio.IsNegative() {
		return &ParameterError{Name: "covenant_ratio", Value: p.Decisions.RateCovenantThreshold.String(), Rule: "must not be negative"}
	}
	return nil
}

// Covenants builds the evaluator configured by these parameters.
func (p ScenarioParameters) Covenants() CovenantEvaluator {
	return CovenantEvaluator{
		DebtCovenantRequiredRatio: p.Decisions.DebtCovenantRequiredRatio,
		RateCovenantThreshold:     p.Decisions.RateCovenantThreshold,
	}
}

// FloorRule returns the floor rule for fund.
func (p ScenarioParameters) FloorRule(fund Fund) FloorRule {
	switch fund {
	case UtilityReserve:
		return FloorRule{Fund: fund, Fraction: p.Decisions.UtilityReserveFloorFraction}
	case RenewalReplacement:
		return FloorRule{Fund: fund, Fraction: p.Decisions.RRFloorFraction}
	case CapitalImprovement:
		return FloorRule{Fund: fund, Fraction: p.Decisions.CIPFloorFraction}
	case EnergySavings:
		return FloorRule{Fund: fund, Fraction: p.Decisions.EnergySavingsFloorFraction}
	default:
		return FloorRule{Fund: fund, Fraction: p.Decisions.RateStabilizationMinimumRatio}
	}
}

// RatePolicy resolves the rate-management variant for these parameters.
func (p ScenarioParameters) RatePolicy() (RateManagementPolicy, error) {
	return SelectRatePolicy(p.KeepUniformRateStable, p.Decisions.RateIncreaseHighBound, p.Decisions.RateIncreaseLowBound)
}

// DebtTerms returns the structure of newly issued bonds.
func (p ScenarioParameters) DebtTerms() DebtTerms {
	return DebtTerms{
		InterestRate:  p.Exogenous.NewDebtInterestRate,
		TermYears:     p.Exogenous.NewDebtTermYears,
		DeferralYears: p.Exogenous.NewDebtDeferralYears,
	}
}
