/*
Package report writes realization results as CSV tables.

PURPOSE:
  Each of the five output tables (budgets, actuals, metrics, debt_issues,
  sales) becomes one CSV with a leading realization column, so a batch
  of realizations lands in five files that load straight into a
  spreadsheet or dataframe. A sixth file summarizes each realization.

SEE ALSO:
  - rollover/realization.go: Result, the source of every row
  - api/handlers.go: Serves single tables as CSV
*/
package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/shopspring/decimal"
	"github.com/warp/water-finance/finance"
	"github.com/warp/water-finance/rollover"
)

// Table names one output table.
type Table string

const (
	Budgets    Table = "budgets"
	Actuals    Table = "actuals"
	Metrics    Table = "metrics"
	DebtIssues Table = "debt_issues"
	Sales      Table = "sales"
)

// Tables lists every output table in export order.
var Tables = []Table{Budgets, Actuals, Metrics, DebtIssues, Sales}

// ParseTable resolves a table name.
func ParseTable(s string) (Table, error) {
	for _, t := range Tables {
		if string(t) == s {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown table %q", s)
}

// =============================================================================
// TABLE WRITERS
// =============================================================================

// WriteTable writes one table across results.
func WriteTable(w io.Writer, t Table, results []*rollover.Result) error {
	cw := csv.NewWriter(w)
	var err error
	switch t {
	case Budgets:
		err = writeBudgets(cw, results)
	case Actuals:
		err = writeActuals(cw, results)
	case Metrics:
		err = writeMetrics(cw, results)
	case DebtIssues:
		err = writeDebtIssues(cw, results)
	case Sales:
		err = writeSales(cw, results)
	default:
		return fmt.Errorf("unknown table %q", t)
	}
	if err != nil {
		return err
	}
	cw.Flush()
	return cw.Error()
}

func fundColumns(suffixes ...string) []string {
	var out []string
	for _, f := range finance.Funds {
		for _, s := range suffixes {
			out = append(out, f.String()+"_"+s)
		}
	}
	return out
}

func writeBudgets(cw *csv.Writer, results []*rollover.Result) error {
	header := []string{
		"realization", "fiscal_year", "annual_estimate", "gross_revenues", "water_sales_revenue",
		"fixed_operating_expenses", "variable_operating_expenses", "net_revenues",
		"debt_service", "debt_service_deferred", "acquisition_credits",
		"unencumbered_carryover_funds", "interest_income",
		"uniform_rate", "variable_uniform_rate", "tbc_rate", "demand_estimate_mgd",
	}
	if err := cw.Write(append(header, fundColumns("deposit", "transfer_in")...)); err != nil {
		return err
	}
	for _, r := range results {
		for _, b := range r.Budgets {
			row := []string{
				strconv.Itoa(r.Index), strconv.Itoa(int(b.FiscalYear)),
				money(b.AnnualEstimate), money(b.GrossRevenues), money(b.WaterSalesRevenue),
				money(b.FixedOperatingExpenses), money(b.VariableOperatingExpenses), money(b.NetRevenues),
				money(b.DebtService), money(b.DebtServiceDeferred), money(b.AcquisitionCredits),
				money(b.UnencumberedCarryoverFunds), money(b.InterestIncome),
				rate(b.UniformRate), rate(b.VariableUniformRate), rate(b.TBCRate), rate(b.DemandEstimateMGD),
			}
			for _, f := range finance.Funds {
				row = append(row, money(b.Flows[f].Deposit), money(b.Flows[f].TransferIn))
			}
			if err := cw.Write(row); err != nil {
				return err
			}
		}
	}
	return nil
}

func writeActuals(cw *csv.Writer, results []*rollover.Result) error {
	header := []string{
		"realization", "fiscal_year",
		"fixed_sales_revenue", "variable_sales_revenue", "tbc_sales_revenue", "water_sales_revenue",
		"interest_income", "insurance_litigation_income", "miscellaneous_income",
		"raw_gross_revenues", "gross_revenues", "net_revenues",
		"fixed_operating_expenses", "variable_operating_expenses", "debt_service", "acquisition_credits",
		"unencumbered_funds", "unencumbered_carried_forward", "budget_surplus",
		"total_uniform_deliveries_mg", "total_tbc_deliveries_mg",
	}
	if err := cw.Write(append(header, fundColumns("balance", "deposit", "transfer_in", "interest_income")...)); err != nil {
		return err
	}
	for _, r := range results {
		for _, a := range r.Actuals {
			row := []string{
				strconv.Itoa(r.Index), strconv.Itoa(int(a.FiscalYear)),
				money(a.FixedSalesRevenue), money(a.VariableSalesRevenue), money(a.TBCSalesRevenue), money(a.WaterSalesRevenue),
				money(a.InterestIncome), money(a.InsuranceLitigationIncome), money(a.MiscellaneousIncome),
				money(a.RawGrossRevenues), money(a.GrossRevenues), money(a.NetRevenues),
				money(a.FixedOperatingExpenses), money(a.VariableOperatingExpenses), money(a.DebtService), money(a.AcquisitionCredits),
				money(a.UnencumberedFunds), money(a.UnencumberedCarriedForward), money(a.BudgetSurplus),
				rate(a.TotalUniformDeliveriesMG), rate(a.TotalTBCDeliveriesMG),
			}
			for _, f := range finance.Funds {
				fy := a.Funds[f]
				row = append(row, money(fy.Balance), money(fy.Deposit), money(fy.TransferIn), money(fy.InterestIncome))
			}
			if err := cw.Write(row); err != nil {
				return err
			}
		}
	}
	return nil
}

func writeMetrics(cw *csv.Writer, results []*rollover.Result) error {
	header := []string{
		"realization", "fiscal_year", "debt_covenant_ratio", "rate_covenant_ratio",
		"debt_covenant_violations", "rate_covenant_violations",
		"rr_fund_balance_failure", "reserve_fund_balance_failure", "cip_fund_balance_failure",
		"energy_fund_balance_failure", "rate_stabilization_fund_failure", "final_budget_failure",
		"remaining_unallocated_deficit", "needed_reserve_deposit",
		"debt_coverage_shortfall", "rate_coverage_shortfall", "rate_stabilization_transfer_cap",
		"potential_other_funds_transferred_in", "required_other_funds_transferred_in", "total_floor_deficit",
	}
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, r := range results {
		for _, m := range r.Metrics {
			row := []string{
				strconv.Itoa(r.Index), strconv.Itoa(int(m.FiscalYear)), rate(m.DebtCovenantRatio), rate(m.RateCovenantRatio),
				strconv.Itoa(m.DebtCovenantViolations), strconv.Itoa(m.RateCovenantViolations),
				flag(m.RRFundBalanceFailure), flag(m.ReserveFundBalanceFailure), flag(m.CIPFundBalanceFailure),
				flag(m.EnergyFundBalanceFailure), flag(m.RateStabilizationFundFailure), flag(m.FinalBudgetFailure),
				money(m.RemainingUnallocatedDeficit), money(m.NeededReserveDeposit),
				money(m.DebtCoverageShortfall), money(m.RateCoverageShortfall), money(m.RateStabilizationTransferCap),
				money(m.PotentialOtherFundsTransferredIn), money(m.RequiredOtherFundsTransferredIn), money(m.TotalFloorDeficit),
			}
			if err := cw.Write(row); err != nil {
				return err
			}
		}
	}
	return nil
}

func writeDebtIssues(cw *csv.Writer, results []*rollover.Result) error {
	header := []string{
		"realization", "id", "project_id", "issue_year", "principal_start_year", "maturity_year",
		"interest_rate", "original_principal", "outstanding_principal", "annual_payment",
	}
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, r := range results {
		for _, d := range r.DebtIssues {
			row := []string{
				strconv.Itoa(r.Index), strconv.Itoa(d.ID), strconv.Itoa(int(d.ProjectID)),
				strconv.Itoa(int(d.IssueYear)), strconv.Itoa(int(d.PrincipalStartYear)), strconv.Itoa(int(d.MaturityYear)),
				rate(d.InterestRate), money(d.OriginalPrincipal), money(d.OutstandingPrincipal), money(d.AnnualPayment),
			}
			if err := cw.Write(row); err != nil {
				return err
			}
		}
	}
	return nil
}

func writeSales(cw *csv.Writer, results []*rollover.Result) error {
	header := []string{
		"realization", "fiscal_year", "month", "member",
		"uniform_deliveries_mg", "tbc_deliveries_mg", "fixed_revenue", "variable_revenue", "tbc_revenue",
	}
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, r := range results {
		for _, s := range r.Sales {
			row := []string{
				strconv.Itoa(r.Index), strconv.Itoa(int(s.FiscalYear)), strconv.Itoa(s.Month), string(s.Member),
				rate(s.UniformDeliveriesMG), rate(s.TBCDeliveriesMG),
				money(s.FixedRevenue), money(s.VariableRevenue), money(s.TBCRevenue),
			}
			if err := cw.Write(row); err != nil {
				return err
			}
		}
	}
	return nil
}

// =============================================================================
// SUMMARY
// =============================================================================

// WriteSummary writes one row per outcome, including failed realizations.
func WriteSummary(w io.Writer, records []rollover.OutcomeRecord) error {
	cw := csv.NewWriter(w)
	header := []string{
		"realization", "seed", "error", "years",
		"debt_covenant_violations", "rate_covenant_violations", "fund_failures", "final_budget_failures",
		"min_debt_covenant_ratio", "min_rate_covenant_ratio", "unallocated_deficit",
	}
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, rec := range records {
		s := rec.Summary
		row := []string{
			strconv.Itoa(rec.Index), strconv.FormatInt(rec.Seed, 10), rec.Error, strconv.Itoa(s.Years),
			strconv.Itoa(s.DebtCovenantViolations), strconv.Itoa(s.RateCovenantViolations),
			strconv.Itoa(s.FundFailures), strconv.Itoa(s.FinalBudgetFailures),
			rate(s.MinDebtCovenantRatio), rate(s.MinRateCovenantRatio), money(s.UnallocatedDeficit),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteDir writes every table plus summary.csv into dir.
func WriteDir(dir string, runID string, batch rollover.BatchResult) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	results := batch.Results()
	for _, t := range Tables {
		if err := writeFile(filepath.Join(dir, string(t)+".csv"), func(w io.Writer) error {
			return WriteTable(w, t, results)
		}); err != nil {
			return fmt.Errorf("%s: %w", t, err)
		}
	}

	records := make([]rollover.OutcomeRecord, 0, len(batch.Outcomes))
	for _, o := range batch.Outcomes {
		records = append(records, rollover.RecordOf(runID, o))
	}
	return writeFile(filepath.Join(dir, "summary.csv"), func(w io.Writer) error {
		return WriteSummary(w, records)
	})
}

func writeFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func money(d decimal.Decimal) string { return d.StringFixed(2) }
func rate(d decimal.Decimal) string  { return d.StringFixed(6) }

func flag(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
