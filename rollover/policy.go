package rollover

import (
	"math/rand"

	"github.com/shopspring/decimal"
	"github.com/warp/water-finance/finance"
)

// =============================================================================
// SAMPLER - Source of uniform draws
// =============================================================================

// Sampler draws uniformly from a closed interval.
type Sampler interface {
	Uniform(lo, hi decimal.Decimal) decimal.Decimal
}

// RandSampler draws from a seeded *rand.Rand. Not safe for concurrent use;
// every realization owns its own.
type RandSampler struct {
	rng *rand.Rand
}

// NewRandSampler seeds a sampler.
func NewRandSampler(seed int64) *RandSampler {
	return &RandSampler{rng: rand.New(rand.NewSource(seed))}
}

func (s *RandSampler) Uniform(lo, hi decimal.Decimal) decimal.Decimal {
	if !hi.GreaterThan(lo) {
		return lo
	}
	u := decimal.NewFromFloat(s.rng.Float64())
	return lo.Add(hi.Sub(lo).Mul(u))
}

// MidpointSampler always returns the interval midpoint. Used to run a
// realization with every random factor held at its mean.
type MidpointSampler struct{}

func (MidpointSampler) Uniform(lo, hi decimal.Decimal) decimal.Decimal {
	if !hi.GreaterThan(lo) {
		return lo
	}
	return lo.Add(hi).Div(decimal.NewFromInt(2))
}

// =============================================================================
// CIP POLICY - Where capital spending and its debt come from
// =============================================================================

// CipPolicy decides how the capital program drives debt and fund flows.
// It is selected once per realization from FollowCIPSchedule.
type CipPolicy interface {
	String() string

	// IssueDebt records a bond for a newly triggered project, if this
	// policy finances projects with new debt.
	IssueDebt(debt *finance.DebtSchedule, project Project, fy finance.FiscalYear, terms finance.DebtTerms) *finance.DebtIssue

	// DebtService is the service owed in fy before deferrals and caps.
	DebtService(debt *finance.DebtSchedule, in *Inputs, fy finance.FiscalYear) decimal.Decimal

	// BudgetFlows proposes the deposit/transfer-in plan for fy.
	BudgetFlows(sampler Sampler, in *Inputs, fy finance.FiscalYear, p finance.ScenarioParameters) finance.FundFlows

	// DrawsCapitalFunds reports whether settlement may pull extra
	// transfers from R&R and CIP to cover a deficit.
	DrawsCapitalFunds() bool

	cipPolicy()
}

// ScheduleDriven follows the published CIP and reserve-fund schedules.
type ScheduleDriven struct{}

// TriggerDriven issues debt when the water-supply model triggers a project
// and draws fund flows from historical ranges.
type TriggerDriven struct{}

func (ScheduleDriven) cipPolicy() {}
func (TriggerDriven) cipPolicy()  {}

func (ScheduleDriven) String() string { return "schedule_driven" }
func (TriggerDriven) String() string  { return "trigger_driven" }

// SelectCipPolicy maps the FollowCIPSchedule flag to a policy.
func SelectCipPolicy(followSchedule bool) CipPolicy {
	if followSchedule {
		return ScheduleDriven{}
	}
	return TriggerDriven{}
}

func (ScheduleDriven) IssueDebt(*finance.DebtSchedule, Project, finance.FiscalYear, finance.DebtTerms) *finance.DebtIssue {
	return nil
}

func (ScheduleDriven) DebtService(debt *finance.DebtSchedule, in *Inputs, fy finance.FiscalYear) decimal.Decimal {
	return debt.ExistingService(fy).Add(in.CIP.At(fy).ScheduledDebtService)
}

// BudgetFlows takes deposits and the RS transfer from the reserve schedule;
// capital-fund transfers finance the scheduled CIP spending.
func (ScheduleDriven) BudgetFlows(_ Sampler, in *Inputs, fy finance.FiscalYear, p finance.ScenarioParameters) finance.FundFlows {
	flows := in.Reserves.At(fy)
	cip := in.CIP.At(fy)
	for _, f := range []finance.Fund{finance.RenewalReplacement, finance.CapitalImprovement, finance.EnergySavings} {
		flows[f].TransferIn = cip.FundedBy(f).Mul(p.Exogenous.CIPScheduleSpendingFraction)
	}
	return flows
}

func (ScheduleDriven) DrawsCapitalFunds() bool { return false }

func (TriggerDriven) IssueDebt(debt *finance.DebtSchedule, project Project, fy finance.FiscalYear, terms finance.DebtTerms) *finance.DebtIssue {
	if !project.CapitalCost.IsPositive() {
		return nil
	}
	return debt.Issue(project.ID, fy, project.CapitalCost, terms)
}

func (TriggerDriven) DebtService(debt *finance.DebtSchedule, _ *Inputs, fy finance.FiscalYear) decimal.Decimal {
	return debt.ServiceFor(fy)
}

// BudgetFlows draws each fund's deposit and transfer-in within its
// historical range. UtilityReserve is never budgeted.
func (TriggerDriven) BudgetFlows(sampler Sampler, in *Inputs, _ finance.FiscalYear, _ finance.ScenarioParameters) finance.FundFlows {
	var flows finance.FundFlows
	for _, f := range finance.Funds {
		if f == finance.UtilityReserve {
			flows[f] = finance.FundFlow{Deposit: decimal.Zero, TransferIn: decimal.Zero}
			continue
		}
		r := in.FlowRanges[f]
		flows[f] = finance.FundFlow{
			Deposit:    sampler.Uniform(r.DepositMin, r.DepositMax),
			TransferIn: sampler.Uniform(r.TransferInMin, r.TransferInMax),
		}
	}
	return flows
}

func (TriggerDriven) DrawsCapitalFunds() bool { return true }

// =============================================================================
// FLEXIBLE SPENDING - Whether capital deposits give way to a shortfall
// =============================================================================

// FlexibleSpending decides whether planned capital deposits are cut when
// other funds could not cover a required transfer.
type FlexibleSpending interface {
	String() string

	// Deduct reduces planned deposits on flows toward required and returns
	// the amount absorbed.
	Deduct(required decimal.Decimal, flows *finance.FundSet) decimal.Decimal

	flexibleSpending()
}

// RigidDeposits never changes planned deposits.
type RigidDeposits struct{}

// ProportionalDeduction shares the required amount across the CIP, R&R and
// Energy deposits in proportion to their size, each capped at its deposit.
type ProportionalDeduction struct{}

func (RigidDeposits) flexibleSpending()         {}
func (ProportionalDeduction) flexibleSpending() {}

func (RigidDeposits) String() string         { return "rigid" }
func (ProportionalDeduction) String() string { return "proportional" }

// SelectFlexibleSpending maps the FlexibleCIPSpending flag to a strategy.
func SelectFlexibleSpending(flexible bool) FlexibleSpending {
	if flexible {
		return ProportionalDeduction{}
	}
	return RigidDeposits{}
}

func (RigidDeposits) Deduct(decimal.Decimal, *finance.FundSet) decimal.Decimal {
	return decimal.Zero
}

var capitalFunds = []finance.Fund{finance.CapitalImprovement, finance.RenewalReplacement, finance.EnergySavings}

func (ProportionalDeduction) Deduct(required decimal.Decimal, flows *finance.FundSet) decimal.Decimal {
	if !required.IsPositive() {
		return decimal.Zero
	}
	total := decimal.Zero
	for _, f := range capitalFunds {
		total = total.Add(finance.NonNegative(flows[f].Deposit))
	}
	if !total.IsPositive() {
		return decimal.Zero
	}

	absorbed := decimal.Zero
	for _, f := range capitalFunds {
		deposit := finance.NonNegative(flows[f].Deposit)
		cut := finance.Min(required.Mul(deposit).Div(total), deposit)
		flows[f].Deposit = deposit.Sub(cut)
		absorbed = absorbed.Add(cut)
	}
	return absorbed
}
