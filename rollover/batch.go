package rollover

import (
	"context"
	"runtime"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/warp/water-finance/finance"
	"golang.org/x/sync/errgroup"
)

// =============================================================================
// SUMMARY - Per-realization roll-up of FinancialMetrics
// =============================================================================

// Summary condenses a realization's metrics into the figures a batch report
// compares across realizations.
type Summary struct {
	Years                  int             `json:"years"`
	DebtCovenantViolations int             `json:"debt_covenant_violations"`
	RateCovenantViolations int             `json:"rate_covenant_violations"`
	FundFailures           int             `json:"fund_failures"`
	FinalBudgetFailures    int             `json:"final_budget_failures"`
	MinDebtCovenantRatio   decimal.Decimal `json:"min_debt_covenant_ratio"`
	MinRateCovenantRatio   decimal.Decimal `json:"min_rate_covenant_ratio"`
	UnallocatedDeficit     decimal.Decimal `json:"unallocated_deficit"`
}

// Summarize rolls up metrics. A year with any failure flag counts once
// toward FundFailures.
func Summarize(metrics []finance.FinancialMetrics) Summary {
	s := Summary{
		MinDebtCovenantRatio: decimal.Zero,
		MinRateCovenantRatio: decimal.Zero,
		UnallocatedDeficit:   decimal.Zero,
	}
	for i, m := range metrics {
		s.Years++
		s.DebtCovenantViolations += m.DebtCovenantViolations
		s.RateCovenantViolations += m.RateCovenantViolations
		if m.AnyFundFailure() {
			s.FundFailures++
		}
		if m.FinalBudgetFailure {
			s.FinalBudgetFailures++
		}
		s.UnallocatedDeficit = s.UnallocatedDeficit.Add(m.RemainingUnallocatedDeficit)
		if i == 0 {
			s.MinDebtCovenantRatio = m.DebtCovenantRatio
			s.MinRateCovenantRatio = m.RateCovenantRatio
			continue
		}
		s.MinDebtCovenantRatio = finance.Min(s.MinDebtCovenantRatio, m.DebtCovenantRatio)
		s.MinRateCovenantRatio = finance.Min(s.MinRateCovenantRatio, m.RateCovenantRatio)
	}
	return s
}

// =============================================================================
// BATCH - Realizations over a bounded worker pool
// =============================================================================

// BatchOptions configures RunBatch.
type BatchOptions struct {
	// Workers bounds concurrent realizations; zero means GOMAXPROCS.
	Workers int
	Logger  zerolog.Logger
}

// Outcome is one realization's result or the error that stopped it.
type Outcome struct {
	Index  int
	Seed   int64
	Result *Result
	Err    error
}

// BatchResult collects every outcome in spec order.
type BatchResult struct {
	Outcomes []Outcome
	Elapsed  time.Duration
}

// Failed counts outcomes with an error.
func (b BatchResult) Failed() int {
	n := 0
	for _, o := range b.Outcomes {
		if o.Err != nil {
			n++
		}
	}
	return n
}

// Results returns the successful results in spec order.
func (b BatchResult) Results() []*Result {
	out := make([]*Result, 0, len(b.Outcomes))
	for _, o := range b.Outcomes {
		if o.Err == nil && o.Result != nil {
			out = append(out, o.Result)
		}
	}
	return out
}

// RunBatch runs every spec against the shared inputs. A failing realization
// records its error in its Outcome; siblings keep running.
func RunBatch(ctx context.Context, inputs *Inputs, specs []RealizationSpec, opts BatchOptions) BatchResult {
	started := time.Now()
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	outcomes := make([]Outcome, len(specs))
	var g errgroup.Group
	g.SetLimit(workers)

	for i := range specs {
		i := i
		spec := specs[i]
		g.Go(func() error {
			res, err := RunRealization(ctx, inputs, spec, opts.Logger)
			outcomes[i] = Outcome{Index: spec.Index, Seed: spec.Seed, Result: res, Err: err}
			if err != nil {
				opts.Logger.Error().Err(err).Int("realization", spec.Index).Msg("realization failed")
			}
			return nil
		})
	}
	_ = g.Wait()

	out := BatchResult{Outcomes: outcomes, Elapsed: time.Since(started)}
	opts.Logger.Info().
		Int("realizations", len(specs)).
		Int("failed", out.Failed()).
		Dur("elapsed", out.Elapsed).
		Msg("batch complete")
	return out
}

// SeedFor derives realization index's seed from a base seed.
func SeedFor(base int64, index int) int64 {
	return base + int64(index)*7919
}
