package rollover

import (
	"sort"

	"github.com/shopspring/decimal"
	"github.com/warp/water-finance/finance"
)

// RealizationState owns every per-year record of one realization plus the
// running accumulators that carry between budget years.
type RealizationState struct {
	Index  int
	Params finance.ScenarioParameters

	Ledger *finance.FundLedger
	Debt   *finance.DebtSchedule

	Budgets map[finance.FiscalYear]finance.Budget
	Actuals map[finance.FiscalYear]finance.Actuals
	Metrics map[finance.FiscalYear]finance.FinancialMetrics
	Sales   []finance.WaterDeliverySales

	// Base operating costs before new-infrastructure O&M, inflated each
	// budget year.
	BaseFixedOpEx    decimal.Decimal
	BaseVariableOpEx decimal.Decimal

	// O&M of projects built during the realization.
	InfraFixedOpEx    decimal.Decimal
	InfraVariableOpEx decimal.Decimal

	// DeferredDebtService is debt service pushed out of the last budget by
	// the debt service cap.
	DeferredDebtService decimal.Decimal

	built map[finance.ProjectID]finance.FiscalYear
}

// NewRealizationState seeds a state from the historical tables.
func NewRealizationState(index int, params finance.ScenarioParameters, in *Inputs, start finance.FiscalYear) *RealizationState {
	s := &RealizationState{
		Index:               index,
		Params:              params,
		Ledger:              finance.NewFundLedger(),
		Debt:                finance.NewDebtSchedule(in.ExistingDebtService),
		Budgets:             make(map[finance.FiscalYear]finance.Budget),
		Actuals:             make(map[finance.FiscalYear]finance.Actuals),
		Metrics:             make(map[finance.FiscalYear]finance.FinancialMetrics),
		InfraFixedOpEx:      decimal.Zero,
		InfraVariableOpEx:   decimal.Zero,
		DeferredDebtService: decimal.Zero,
		built:               make(map[finance.ProjectID]finance.FiscalYear),
	}
	for fy, a := range in.History.Actuals {
		if fy < start {
			s.Actuals[fy] = a
			s.Ledger.Seed(fy, a.Funds)
		}
	}
	for fy, b := range in.History.Budgets {
		if fy <= start {
			s.Budgets[fy] = b
		}
	}
	first := s.Budgets[start]
	s.BaseFixedOpEx = first.FixedOperatingExpenses
	s.BaseVariableOpEx = first.VariableOperatingExpenses
	return s
}

// commitSettlement records a settled year.
func (s *RealizationState) commitSettlement(a finance.Actuals, m finance.FinancialMetrics, sales []finance.WaterDeliverySales, deferred decimal.Decimal) {
	s.Actuals[a.FiscalYear] = a
	s.Metrics[m.FiscalYear] = m
	s.Sales = append(s.Sales, sales...)
	s.Ledger.Record(a.FiscalYear, a.Funds)
	s.DeferredDebtService = deferred
}

// admitProjects returns the projects in ids that have not been built yet and
// marks them built in fy.
func (s *RealizationState) admitProjects(ids []finance.ProjectID, fy finance.FiscalYear) []finance.ProjectID {
	var out []finance.ProjectID
	for _, id := range ids {
		if _, ok := s.built[id]; ok {
			continue
		}
		s.built[id] = fy
		out = append(out, id)
	}
	return out
}

// BuiltProjects returns the projects triggered so far, by ID.
func (s *RealizationState) BuiltProjects() []finance.ProjectID {
	out := make([]finance.ProjectID, 0, len(s.built))
	for id := range s.built {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
