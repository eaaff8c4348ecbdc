package rollover

import (
	"context"
	"fmt"
	"sort"

	"github.com/rs/zerolog"
	"github.com/warp/water-finance/finance"
)

// =============================================================================
// REALIZATION - One trajectory of exogenous inputs
// =============================================================================

// RealizationSpec identifies one realization and what it is driven by.
type RealizationSpec struct {
	Index  int
	Seed   int64
	Params finance.ScenarioParameters
	Feed   DeliveryFeed
	Start  finance.FiscalYear
	End    finance.FiscalYear

	// Sampler overrides the seeded random source when set.
	Sampler Sampler
}

// Result is everything a realization produced, ordered by fiscal year.
type Result struct {
	Index int                `json:"index"`
	Seed  int64              `json:"seed"`
	Start finance.FiscalYear `json:"start"`
	End   finance.FiscalYear `json:"end"`

	Budgets    []finance.Budget             `json:"budgets"`
	Actuals    []finance.Actuals            `json:"actuals"`
	Metrics    []finance.FinancialMetrics   `json:"metrics"`
	DebtIssues []finance.DebtIssue          `json:"debt_issues"`
	Sales      []finance.WaterDeliverySales `json:"sales"`

	Summary Summary `json:"summary"`
}

// Realization runs the fiscal-year loop for one RealizationSpec.
type Realization struct {
	Inputs *Inputs
	Spec   RealizationSpec
	Logger zerolog.Logger

	state    *RealizationState
	settler  *Settler
	budgeter *Budgeter
}

// NewRealization validates spec against inputs and seeds its state.
func NewRealization(inputs *Inputs, spec RealizationSpec, logger zerolog.Logger) (*Realization, error) {
	if err := checkInputs(inputs, spec); err != nil {
		return nil, err
	}
	if err := spec.Params.Validate(); err != nil {
		return nil, err
	}

	sampler := spec.Sampler
	if sampler == nil {
		sampler = NewRandSampler(spec.Seed)
	}
	logger = logger.With().Int("realization", spec.Index).Logger()

	settler := NewSettler(spec.Params, sampler)
	settler.Logger = logger
	budgeter, err := NewBudgeter(spec.Params, inputs, sampler)
	if err != nil {
		return nil, err
	}
	budgeter.Logger = logger

	return &Realization{
		Inputs:   inputs,
		Spec:     spec,
		Logger:   logger,
		state:    NewRealizationState(spec.Index, spec.Params, inputs, spec.Start),
		settler:  settler,
		budgeter: budgeter,
	}, nil
}

// checkInputs enforces the input-sufficiency preconditions.
func checkInputs(inputs *Inputs, spec RealizationSpec) error {
	if spec.End < spec.Start {
		return &finance.InputError{FiscalYear: spec.End, Field: "end_fiscal_year", Err: finance.ErrEndBeforeStart}
	}
	prev := spec.Start.Prev()
	if _, ok := inputs.History.Actuals[prev]; !ok {
		return &finance.InputError{FiscalYear: prev, Field: "actuals", Err: finance.ErrInsufficientHistory}
	}
	for _, fy := range []finance.FiscalYear{prev, spec.Start} {
		if _, ok := inputs.History.Budgets[fy]; !ok {
			return &finance.InputError{FiscalYear: fy, Field: "budget", Err: finance.ErrInsufficientHistory}
		}
	}
	for fy := spec.Start; fy <= spec.End; fy++ {
		if !spec.Feed.Covers(fy) {
			return &finance.InputError{FiscalYear: fy, Field: "deliveries", Err: finance.ErrFeedTooShort}
		}
	}
	return nil
}

// Run settles every fiscal year from Start to End, projecting the next
// budget after each settlement except the last.
func (r *Realization) Run(ctx context.Context) (*Result, error) {
	s := r.state
	for fy := r.Spec.Start; fy <= r.Spec.End; fy++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("realization %d stopped before %s: %w", r.Spec.Index, fy, err)
		}

		budget := s.Budgets[fy]
		sales := BuildSales(fy, r.Spec.Feed.ForYear(fy), budget)
		actuals, metrics := r.settler.Settle(SettlementInput{
			FiscalYear:   fy,
			PriorActuals: s.Actuals[fy.Prev()],
			PriorBudget:  s.Budgets[fy.Prev()],
			Budget:       budget,
			Sales:        sales,
		})
		s.commitSettlement(actuals, metrics, sales, budget.DebtServiceDeferred)

		if fy == r.Spec.End {
			break
		}

		in := BudgetInput{
			FiscalYear: fy.Next(),
			Actuals:    actuals,
			Budget:     budget,
			Triggers:   r.Spec.Feed.TriggersIn(fy),
		}
		if prior, ok := s.Actuals[fy.Prev()]; ok {
			in.PriorActuals = &prior
		}
		next, err := r.budgeter.Project(s, in)
		if err != nil {
			return nil, fmt.Errorf("realization %d budget %s: %w", r.Spec.Index, fy.Next(), err)
		}
		s.Budgets[next.FiscalYear] = next
	}

	res := r.result()
	r.Logger.Debug().
		Int("debt_violations", res.Summary.DebtCovenantViolations).
		Int("rate_violations", res.Summary.RateCovenantViolations).
		Int("fund_failures", res.Summary.FundFailures).
		Msg("realization complete")
	return res, nil
}

// State exposes the realization's state after Run, for inspection.
func (r *Realization) State() *RealizationState { return r.state }

func (r *Realization) result() *Result {
	s := r.state
	res := &Result{
		Index:      r.Spec.Index,
		Seed:       r.Spec.Seed,
		Start:      r.Spec.Start,
		End:        r.Spec.End,
		DebtIssues: s.Debt.Issues(),
		Sales:      append([]finance.WaterDeliverySales(nil), s.Sales...),
	}
	for fy := r.Spec.Start; fy <= r.Spec.End; fy++ {
		if b, ok := s.Budgets[fy]; ok {
			res.Budgets = append(res.Budgets, b)
		}
		if a, ok := s.Actuals[fy]; ok {
			res.Actuals = append(res.Actuals, a)
		}
		if m, ok := s.Metrics[fy]; ok {
			res.Metrics = append(res.Metrics, m)
		}
	}
	sort.Slice(res.Budgets, func(i, j int) bool { return res.Budgets[i].FiscalYear < res.Budgets[j].FiscalYear })
	res.Summary = Summarize(res.Metrics)
	return res
}

// RunRealization builds and runs one realization.
func RunRealization(ctx context.Context, inputs *Inputs, spec RealizationSpec, logger zerolog.Logger) (*Result, error) {
	r, err := NewRealization(inputs, spec, logger)
	if err != nil {
		return nil, fmt.Errorf("realization %d: %w", spec.Index, err)
	}
	return r.Run(ctx)
}
