/*
Package finance provides the building blocks of the annual financial rollover.

PURPOSE:
  This package contains the accounting primitives that the rollover engine
  composes once per fiscal year: the fund ledger, the uniform-rate model,
  the bond-covenant evaluator and the debt schedule. None of these know
  about realizations, random draws or persistence - they are pure
  operations over named accounts.

KEY CONCEPTS IN THIS FILE (types.go):
  - FiscalYear: Oct 1 (Y-1) through Sep 30 (Y), identified by Y
  - Fund: One of the five tracked reserve/operating funds
  - FundYear: Balance, deposit, transfer-in and interest for one fund/year
  - FundSet / FundFlows: One entry per Fund, addressed by name

DESIGN PRINCIPLES:
  1. Precision: Uses decimal.Decimal for every dollar figure
  2. Named fields: Funds are addressed as set[RenewalReplacement], never by
     column position
  3. Recurrence: Balance_Y = Balance_{Y-1} - TransferIn_Y + Deposit_Y +
     InterestIncome_Y, before any floor clamping

USAGE:
  var set finance.FundSet
  set[finance.RateStabilization].Balance = finance.Dollars(25_000_000)
  next := set[finance.RateStabilization].Roll(finance.FundYear{
      TransferIn: finance.Dollars(1_000_000),
  })

SEE ALSO:
  - ledger.go: Fund ledger and floor rules
  - records.go: Budget, Actuals and FinancialMetrics
  - rate.go: Uniform rate model
*/
package finance

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// =============================================================================
// FISCAL YEAR
// =============================================================================

// FiscalYear identifies Oct 1 (Y-1) through Sep 30 (Y) by Y.
type FiscalYear int

// Prev returns the fiscal year before fy.
func (fy FiscalYear) Prev() FiscalYear { return fy - 1 }

// Next returns the fiscal year after fy.
func (fy FiscalYear) Next() FiscalYear { return fy + 1 }

func (fy FiscalYear) String() string { return fmt.Sprintf("FY%d", int(fy)) }

// MonthsPerYear is the number of billing months in a fiscal year.
const MonthsPerYear = 12

// DaysPerYear is the day count used to convert annual volumes to MGD.
const DaysPerYear = 365

// fiscalMonthDays lists the days of each fiscal month, October first.
var fiscalMonthDays = [MonthsPerYear]int{31, 30, 31, 31, 28, 31, 30, 31, 30, 31, 31, 30}

// DaysInFiscalMonth returns the number of days in fiscal month m (1 = October).
// Leap days are ignored so that twelve months always sum to DaysPerYear.
func DaysInFiscalMonth(m int) int {
	if m < 1 || m > MonthsPerYear {
		return 0
	}
	return fiscalMonthDays[m-1]
}

// =============================================================================
// MONEY HELPERS
// =============================================================================

// Dollars converts a float dollar figure to a decimal.
func Dollars(v float64) decimal.Decimal { return decimal.NewFromFloat(v) }

// MustParseDecimal parses s, returning zero on malformed input.
func MustParseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// Min returns the smallest of the given values.
func Min(first decimal.Decimal, rest ...decimal.Decimal) decimal.Decimal {
	m := first
	for _, v := range rest {
		if v.LessThan(m) {
			m = v
		}
	}
	return m
}

// Max returns the largest of the given values.
func Max(first decimal.Decimal, rest ...decimal.Decimal) decimal.Decimal {
	m := first
	for _, v := range rest {
		if v.GreaterThan(m) {
			m = v
		}
	}
	return m
}

// NonNegative floors v at zero.
func NonNegative(v decimal.Decimal) decimal.Decimal {
	if v.IsNegative() {
		return decimal.Zero
	}
	return v
}

// Clamp bounds v to [lo, hi]. Callers guarantee lo <= hi.
func Clamp(v, lo, hi decimal.Decimal) decimal.Decimal {
	if v.LessThan(lo) {
		return lo
	}
	if v.GreaterThan(hi) {
		return hi
	}
	return v
}

// =============================================================================
// FUNDS
// =============================================================================

// Fund names one of the reserve/operating funds tracked by the ledger.
type Fund int

const (
	RateStabilization Fund = iota
	UtilityReserve
	RenewalReplacement
	CapitalImprovement
	EnergySavings

	// FundCount is the number of tracked funds.
	FundCount = 5
)

// Funds lists every tracked fund in ledger order.
var Funds = [FundCount]Fund{RateStabilization, UtilityReserve, RenewalReplacement, CapitalImprovement, EnergySavings}

var fundNames = [FundCount]string{
	"rate_stabilization",
	"utility_reserve",
	"renewal_replacement",
	"capital_improvement",
	"energy_savings",
}

func (f Fund) String() string {
	if f < 0 || int(f) >= FundCount {
		return fmt.Sprintf("fund(%d)", int(f))
	}
	return fundNames[f]
}

// ParseFund resolves a fund name as produced by Fund.String.
func ParseFund(s string) (Fund, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, name := range fundNames {
		if name == s {
			return Fund(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownFund, s)
}

// MarshalText implements encoding.TextMarshaler.
func (f Fund) MarshalText() ([]byte, error) { return []byte(f.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (f *Fund) UnmarshalText(b []byte) error {
	parsed, err := ParseFund(string(b))
	if err != nil {
		return err
	}
	*f = parsed
	return nil
}

// =============================================================================
// FUND YEAR - One fund's movement within one fiscal year
// =============================================================================

// FundYear records a fund's end-of-year balance and the flows that produced it.
type FundYear struct {
	Balance        decimal.Decimal `json:"balance"`
	Deposit        decimal.Decimal `json:"deposit"`
	TransferIn     decimal.Decimal `json:"transfer_in"`
	InterestIncome decimal.Decimal `json:"interest_income"`
}

// Roll applies this year's flows to the prior balance:
// prior - TransferIn + Deposit + InterestIncome.
func (prior FundYear) Roll(flows FundYear) FundYear {
	flows.Balance = prior.Balance.Sub(flows.TransferIn).Add(flows.Deposit).Add(flows.InterestIncome)
	return flows
}

// FundSet holds one FundYear per fund, indexed by Fund.
type FundSet [FundCount]FundYear

// TotalBalance sums the balances of every fund.
func (s FundSet) TotalBalance() decimal.Decimal {
	total := decimal.Zero
	for _, f := range s {
		total = total.Add(f.Balance)
	}
	return total
}

// FundFlow is the budgeted movement for one fund.
type FundFlow struct {
	Deposit    decimal.Decimal `json:"deposit" yaml:"deposit"`
	TransferIn decimal.Decimal `json:"transfer_in" yaml:"transfer_in"`
}

// FundFlows holds one FundFlow per fund, indexed by Fund.
type FundFlows [FundCount]FundFlow

// TotalDeposits sums the deposits of the given funds.
func (f FundFlows) TotalDeposits(funds ...Fund) decimal.Decimal {
	total := decimal.Zero
	for _, fund := range funds {
		total = total.Add(f[fund].Deposit)
	}
	return total
}

// TotalTransfersIn sums the transfers-in of the given funds.
func (f FundFlows) TotalTransfersIn(funds ...Fund) decimal.Decimal {
	total := decimal.Zero
	for _, fund := range funds {
		total = total.Add(f[fund].TransferIn)
	}
	return total
}

// =============================================================================
// IDENTIFIERS
// =============================================================================

// ProjectID identifies an infrastructure project. Zero means "no project".
type ProjectID int

// MemberGovernment names a member government buying water.
type MemberGovernment string
