/*
Package rollover runs the annual financial rollover for one or many
realizations.

PURPOSE:
  This package composes the finance primitives into the per-fiscal-year
  state machine:

    Budget(Y) + deliveries(Y) --Settle--> Actuals(Y) --Project--> Budget(Y+1)

  and repeats it from a start to an end fiscal year for each realization
  of exogenous inputs. Realizations share read-only Inputs and nothing
  else, so a batch fans out over a worker pool without locking.

KEY CONCEPTS IN THIS FILE (inputs.go):
  - Inputs: shared read-only tables (history, CIP, reserves, projects)
  - DeliveryFeed: one realization's monthly deliveries and project triggers
  - CIPSchedule / ReserveSchedule: planning-window tables plus a generic
    year used beyond the window

SEE ALSO:
  - settlement.go: Annual Settlement Step
  - budget.go: Next-Year Budget Step
  - realization.go: Per-realization driver
  - batch.go: Worker pool over realizations
*/
package rollover

import (
	"sort"

	"github.com/shopspring/decimal"
	"github.com/warp/water-finance/finance"
)

// =============================================================================
// SHARED INPUTS - Read-only across realizations
// =============================================================================

// Inputs are the tables every realization reads and none writes.
type Inputs struct {
	History             HistoricalSeed
	CIP                 CIPSchedule
	Reserves            ReserveSchedule
	ExistingDebtService map[finance.FiscalYear]decimal.Decimal
	Projects            map[finance.ProjectID]Project
	FlowRanges          FlowRanges

	// AcquisitionCredits is the fixed annual payment to member governments,
	// owed through ExogenousFactors.AcquisitionCreditsEndYear.
	AcquisitionCredits decimal.Decimal
}

// HistoricalSeed holds approved budgets and audited actuals for the years
// preceding the simulation.
type HistoricalSeed struct {
	Actuals map[finance.FiscalYear]finance.Actuals
	Budgets map[finance.FiscalYear]finance.Budget
}

// Project is an infrastructure project that may be triggered by the water
// supply model.
type Project struct {
	ID                  finance.ProjectID `json:"id" yaml:"id"`
	Name                string            `json:"name" yaml:"name"`
	CapitalCost         decimal.Decimal   `json:"capital_cost" yaml:"capital_cost"`
	AnnualOperatingCost decimal.Decimal   `json:"annual_operating_cost" yaml:"annual_operating_cost"`
}

// =============================================================================
// CIP SCHEDULE
// =============================================================================

// SourceAmounts is capital spending split by funding source.
type SourceAmounts struct {
	RevenueBonds       decimal.Decimal `json:"revenue_bonds" yaml:"revenue_bonds"`
	RenewalReplacement decimal.Decimal `json:"renewal_replacement" yaml:"renewal_replacement"`
	CapitalImprovement decimal.Decimal `json:"capital_improvement" yaml:"capital_improvement"`
	EnergySavings      decimal.Decimal `json:"energy_savings" yaml:"energy_savings"`
	Operating          decimal.Decimal `json:"operating" yaml:"operating"`
}

// FundedBy returns the spending financed from fund, zero for funds that do
// not finance capital work.
func (s SourceAmounts) FundedBy(fund finance.Fund) decimal.Decimal {
	switch fund {
	case finance.RenewalReplacement:
		return s.RenewalReplacement
	case finance.CapitalImprovement:
		return s.CapitalImprovement
	case finance.EnergySavings:
		return s.EnergySavings
	default:
		return decimal.Zero
	}
}

// CIPYear is one year of the capital improvement program.
type CIPYear struct {
	Major SourceAmounts `json:"major" yaml:"major"`
	Other SourceAmounts `json:"other" yaml:"other"`

	// ScheduledDebtService is the debt service on revenue bonds the
	// schedule plans to issue, beyond the existing debt.
	ScheduledDebtService decimal.Decimal `json:"scheduled_debt_service" yaml:"scheduled_debt_service"`
}

// FundedBy sums major and other spending financed from fund.
func (c CIPYear) FundedBy(fund finance.Fund) decimal.Decimal {
	return c.Major.FundedBy(fund).Add(c.Other.FundedBy(fund))
}

// CIPSchedule is the planning window plus a generic year beyond it.
type CIPSchedule struct {
	Years   map[finance.FiscalYear]CIPYear
	Generic CIPYear
}

// At returns the schedule for fy, falling back to the generic year.
func (s CIPSchedule) At(fy finance.FiscalYear) CIPYear {
	if y, ok := s.Years[fy]; ok {
		return y
	}
	return s.Generic
}

// ReserveSchedule is the planned deposit/transfer table per fund.
type ReserveSchedule struct {
	Years   map[finance.FiscalYear]finance.FundFlows
	Generic finance.FundFlows
}

// At returns the planned flows for fy, falling back to the generic year.
func (s ReserveSchedule) At(fy finance.FiscalYear) finance.FundFlows {
	if y, ok := s.Years[fy]; ok {
		return y
	}
	return s.Generic
}

// FlowRange bounds the uniform draws for one fund's budgeted flows.
type FlowRange struct {
	DepositMin    decimal.Decimal `json:"deposit_min" yaml:"deposit_min"`
	DepositMax    decimal.Decimal `json:"deposit_max" yaml:"deposit_max"`
	TransferInMin decimal.Decimal `json:"transfer_in_min" yaml:"transfer_in_min"`
	TransferInMax decimal.Decimal `json:"transfer_in_max" yaml:"transfer_in_max"`
}

// FlowRanges holds one FlowRange per fund.
type FlowRanges [finance.FundCount]FlowRange

// =============================================================================
// DELIVERY FEED - One realization's water-supply model output
// =============================================================================

// DeliveryRecord is one member government's deliveries in one fiscal month.
type DeliveryRecord struct {
	FiscalYear          finance.FiscalYear       `json:"fiscal_year" yaml:"fiscal_year"`
	Month               int                      `json:"month" yaml:"month"`
	Member              finance.MemberGovernment `json:"member" yaml:"member"`
	UniformDeliveriesMG decimal.Decimal          `json:"uniform_deliveries_mg" yaml:"uniform_deliveries_mg"`
	TBCDeliveriesMG     decimal.Decimal          `json:"tbc_deliveries_mg" yaml:"tbc_deliveries_mg"`
}

// DeliveryFeed is the water-supply model output for one realization.
type DeliveryFeed struct {
	Records []DeliveryRecord

	// Triggers lists the projects whose construction was triggered during
	// each fiscal year.
	Triggers map[finance.FiscalYear][]finance.ProjectID
}

// ForYear returns the records for fy.
func (f DeliveryFeed) ForYear(fy finance.FiscalYear) []DeliveryRecord {
	var out []DeliveryRecord
	for _, r := range f.Records {
		if r.FiscalYear == fy {
			out = append(out, r)
		}
	}
	return out
}

// Covers reports whether the feed has at least one record for fy.
func (f DeliveryFeed) Covers(fy finance.FiscalYear) bool {
	for _, r := range f.Records {
		if r.FiscalYear == fy {
			return true
		}
	}
	return false
}

// Years returns the fiscal years present in the feed, ascending.
func (f DeliveryFeed) Years() []finance.FiscalYear {
	seen := make(map[finance.FiscalYear]bool)
	for _, r := range f.Records {
		seen[r.FiscalYear] = true
	}
	out := make([]finance.FiscalYear, 0, len(seen))
	for fy := range seen {
		out = append(out, fy)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// TriggersIn returns the projects triggered during fy, skipping zero IDs.
func (f DeliveryFeed) TriggersIn(fy finance.FiscalYear) []finance.ProjectID {
	var out []finance.ProjectID
	for _, id := range f.Triggers[fy] {
		if id != 0 {
			out = append(out, id)
		}
	}
	return out
}
