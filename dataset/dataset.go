/*
Package dataset loads the simulation's input tables from YAML.

PURPOSE:
  The historical seed, CIP and reserve-fund schedules, project catalog,
  flow ranges and delivery feeds are opaque input data. This package reads
  them from one YAML file into rollover.Inputs plus one DeliveryFeed per
  realization, and checks the file is complete enough to simulate.

FILE SHAPE (abridged):
  acquisition_credits: 1500000
  existing_debt_service: {2021: 41000000, 2022: 40500000}
  history:
    actuals: [{fiscal_year: 2020, gross_revenues: ..., funds: {...}}]
    budgets: [{fiscal_year: 2020, uniform_rate: 2.56, ...}]
  cip:       {years: {2022: {major: {...}, other: {...}}}, generic: {...}}
  reserves:  {years: {2022: {rate_stabilization: {deposit: ...}}}, generic: {...}}
  projects:  [{id: 1, name: ..., capital_cost: ..., annual_operating_cost: ...}]
  flow_ranges: {rate_stabilization: {deposit_min: ..., deposit_max: ...}}
  realizations:
    - deliveries: [{fiscal_year: 2021, month: 1, member: Pasco, ...}]
      triggers: {2021: [1]}

  Money values may be written as numbers or quoted strings; quoted strings
  keep full decimal precision.

SEE ALSO:
  - rollover/inputs.go: The types this package fills
  - config: Points at the dataset path
*/
package dataset

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/shopspring/decimal"
	"github.com/warp/water-finance/finance"
	"github.com/warp/water-finance/rollover"
	"gopkg.in/yaml.v3"
)

// ErrNoFeeds is returned when a dataset has no delivery feeds.
var ErrNoFeeds = errors.New("dataset has no realization delivery feeds")

// Dataset is a loaded input file.
type Dataset struct {
	Inputs *rollover.Inputs
	Feeds  []rollover.DeliveryFeed
}

// Feed returns the delivery feed for realization index. Feeds are reused
// cyclically when a batch has more realizations than the file.
func (d *Dataset) Feed(index int) rollover.DeliveryFeed {
	if len(d.Feeds) == 0 {
		return rollover.DeliveryFeed{}
	}
	if index < 0 {
		index = -index
	}
	return d.Feeds[index%len(d.Feeds)]
}

// Years returns the fiscal years covered by every feed, ascending.
func (d *Dataset) Years() []finance.FiscalYear {
	if len(d.Feeds) == 0 {
		return nil
	}
	var out []finance.FiscalYear
	for _, fy := range d.Feeds[0].Years() {
		covered := true
		for _, f := range d.Feeds[1:] {
			if !f.Covers(fy) {
				covered = false
				break
			}
		}
		if covered {
			out = append(out, fy)
		}
	}
	return out
}

// =============================================================================
// FILE FORMAT
// =============================================================================

type file struct {
	AcquisitionCredits  decimal.Decimal                        `yaml:"acquisition_credits"`
	ExistingDebtService map[finance.FiscalYear]decimal.Decimal `yaml:"existing_debt_service"`
	History             struct {
		Actuals []actualsRecord `yaml:"actuals"`
		Budgets []budgetRecord  `yaml:"budgets"`
	} `yaml:"history"`
	CIP struct {
		Years   map[finance.FiscalYear]rollover.CIPYear `yaml:"years"`
		Generic rollover.CIPYear                        `yaml:"generic"`
	} `yaml:"cip"`
	Reserves struct {
		Years   map[finance.FiscalYear]flowTable `yaml:"years"`
		Generic flowTable                        `yaml:"generic"`
	} `yaml:"reserves"`
	Projects     []rollover.Project                  `yaml:"projects"`
	FlowRanges   map[finance.Fund]rollover.FlowRange `yaml:"flow_ranges"`
	Realizations []feedRecord                        `yaml:"realizations"`
}

type flowTable map[finance.Fund]finance.FundFlow

func (t flowTable) flows() finance.FundFlows {
	var out finance.FundFlows
	for _, f := range finance.Funds {
		out[f] = finance.FundFlow{Deposit: decimal.Zero, TransferIn: decimal.Zero}
	}
	for f, flow := range t {
		out[f] = flow
	}
	return out
}

type fundRecord struct {
	Balance        decimal.Decimal `yaml:"balance"`
	Deposit        decimal.Decimal `yaml:"deposit"`
	TransferIn     decimal.Decimal `yaml:"transfer_in"`
	InterestIncome decimal.Decimal `yaml:"interest_income"`
}

type actualsRecord struct {
	FiscalYear                 finance.FiscalYear          `yaml:"fiscal_year"`
	FixedSalesRevenue          decimal.Decimal             `yaml:"fixed_sales_revenue"`
	VariableSalesRevenue       decimal.Decimal             `yaml:"variable_sales_revenue"`
	TBCSalesRevenue            decimal.Decimal             `yaml:"tbc_sales_revenue"`
	WaterSalesRevenue          decimal.Decimal             `yaml:"water_sales_revenue"`
	InterestIncome             decimal.Decimal             `yaml:"interest_income"`
	InsuranceLitigationIncome  decimal.Decimal             `yaml:"insurance_litigation_income"`
	MiscellaneousIncome        decimal.Decimal             `yaml:"miscellaneous_income"`
	RawGrossRevenues           decimal.Decimal             `yaml:"raw_gross_revenues"`
	GrossRevenues              decimal.Decimal             `yaml:"gross_revenues"`
	NetRevenues                decimal.Decimal             `yaml:"net_revenues"`
	FixedOperatingExpenses     decimal.Decimal             `yaml:"fixed_operating_expenses"`
	VariableOperatingExpenses  decimal.Decimal             `yaml:"variable_operating_expenses"`
	DebtService                decimal.Decimal             `yaml:"debt_service"`
	AcquisitionCredits         decimal.Decimal             `yaml:"acquisition_credits"`
	UnencumberedFunds          decimal.Decimal             `yaml:"unencumbered_funds"`
	UnencumberedCarriedForward decimal.Decimal             `yaml:"unencumbered_carried_forward"`
	BudgetSurplus              decimal.Decimal             `yaml:"budget_surplus"`
	Funds                      map[finance.Fund]fundRecord `yaml:"funds"`
	TotalUniformDeliveriesMG   decimal.Decimal             `yaml:"total_uniform_deliveries_mg"`
	TotalTBCDeliveriesMG       decimal.Decimal             `yaml:"total_tbc_deliveries_mg"`
}

func (r actualsRecord) actuals() finance.Actuals {
	a := finance.Actuals{
		FiscalYear:                 r.FiscalYear,
		FixedSalesRevenue:          r.FixedSalesRevenue,
		VariableSalesRevenue:       r.VariableSalesRevenue,
		TBCSalesRevenue:            r.TBCSalesRevenue,
		WaterSalesRevenue:          r.WaterSalesRevenue,
		InterestIncome:             r.InterestIncome,
		InsuranceLitigationIncome:  r.InsuranceLitigationIncome,
		MiscellaneousIncome:        r.MiscellaneousIncome,
		RawGrossRevenues:           r.RawGrossRevenues,
		GrossRevenues:              r.GrossRevenues,
		NetRevenues:                r.NetRevenues,
		FixedOperatingExpenses:     r.FixedOperatingExpenses,
		VariableOperatingExpenses:  r.VariableOperatingExpenses,
		DebtService:                r.DebtService,
		AcquisitionCredits:         r.AcquisitionCredits,
		UnencumberedFunds:          r.UnencumberedFunds,
		UnencumberedCarriedForward: r.UnencumberedCarriedForward,
		BudgetSurplus:              r.BudgetSurplus,
		TotalUniformDeliveriesMG:   r.TotalUniformDeliveriesMG,
		TotalTBCDeliveriesMG:       r.TotalTBCDeliveriesMG,
	}
	if a.WaterSalesRevenue.IsZero() {
		a.WaterSalesRevenue = a.FixedSalesRevenue.Add(a.VariableSalesRevenue).Add(a.TBCSalesRevenue)
	}
	if a.RawGrossRevenues.IsZero() {
		a.RawGrossRevenues = a.WaterSalesRevenue.Add(a.NonSalesRevenue())
	}
	for _, f := range finance.Funds {
		rec := r.Funds[f]
		a.Funds[f] = finance.FundYear{
			Balance:        rec.Balance,
			Deposit:        rec.Deposit,
			TransferIn:     rec.TransferIn,
			InterestIncome: rec.InterestIncome,
		}
	}
	return a
}

type budgetRecord struct {
	FiscalYear                 finance.FiscalYear `yaml:"fiscal_year"`
	AnnualEstimate             decimal.Decimal    `yaml:"annual_estimate"`
	GrossRevenues              decimal.Decimal    `yaml:"gross_revenues"`
	WaterSalesRevenue          decimal.Decimal    `yaml:"water_sales_revenue"`
	FixedOperatingExpenses     decimal.Decimal    `yaml:"fixed_operating_expenses"`
	VariableOperatingExpenses  decimal.Decimal    `yaml:"variable_operating_expenses"`
	NetRevenues                decimal.Decimal    `yaml:"net_revenues"`
	DebtService                decimal.Decimal    `yaml:"debt_service"`
	DebtServiceDeferred        decimal.Decimal    `yaml:"debt_service_deferred"`
	AcquisitionCredits         decimal.Decimal    `yaml:"acquisition_credits"`
	UnencumberedCarryoverFunds decimal.Decimal    `yaml:"unencumbered_carryover_funds"`
	InterestIncome             decimal.Decimal    `yaml:"interest_income"`
	Flows                      flowTable          `yaml:"flows"`
	UniformRate                decimal.Decimal    `yaml:"uniform_rate"`
	VariableUniformRate        decimal.Decimal    `yaml:"variable_uniform_rate"`
	TBCRate                    decimal.Decimal    `yaml:"tbc_rate"`
	DemandEstimateMGD          decimal.Decimal    `yaml:"demand_estimate_mgd"`
}

func (r budgetRecord) budget() finance.Budget {
	return finance.Budget{
		FiscalYear:                 r.FiscalYear,
		AnnualEstimate:             r.AnnualEstimate,
		GrossRevenues:              r.GrossRevenues,
		WaterSalesRevenue:          r.WaterSalesRevenue,
		FixedOperatingExpenses:     r.FixedOperatingExpenses,
		VariableOperatingExpenses:  r.VariableOperatingExpenses,
		NetRevenues:                r.NetRevenues,
		DebtService:                r.DebtService,
		DebtServiceDeferred:        r.DebtServiceDeferred,
		AcquisitionCredits:         r.AcquisitionCredits,
		UnencumberedCarryoverFunds: r.UnencumberedCarryoverFunds,
		InterestIncome:             r.InterestIncome,
		Flows:                      r.Flows.flows(),
		UniformRate:                r.UniformRate,
		VariableUniformRate:        r.VariableUniformRate,
		TBCRate:                    r.TBCRate,
		DemandEstimateMGD:          r.DemandEstimateMGD,
	}
}

type feedRecord struct {
	Deliveries []rollover.DeliveryRecord                  `yaml:"deliveries"`
	Triggers   map[finance.FiscalYear][]finance.ProjectID `yaml:"triggers"`
}

// =============================================================================
// LOADING
// =============================================================================

// Load reads and validates the dataset at path.
func Load(path string) (*Dataset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read dataset: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a dataset document.
func Parse(data []byte) (*Dataset, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse dataset: %w", err)
	}

	in := &rollover.Inputs{
		History: rollover.HistoricalSeed{
			Actuals: make(map[finance.FiscalYear]finance.Actuals),
			Budgets: make(map[finance.FiscalYear]finance.Budget),
		},
		CIP:                 rollover.CIPSchedule{Years: f.CIP.Years, Generic: f.CIP.Generic},
		Reserves:            rollover.ReserveSchedule{Years: make(map[finance.FiscalYear]finance.FundFlows), Generic: f.Reserves.Generic.flows()},
		ExistingDebtService: f.ExistingDebtService,
		Projects:            make(map[finance.ProjectID]rollover.Project),
		AcquisitionCredits:  f.AcquisitionCredits,
	}
	if in.CIP.Years == nil {
		in.CIP.Years = make(map[finance.FiscalYear]rollover.CIPYear)
	}
	if in.ExistingDebtService == nil {
		in.ExistingDebtService = make(map[finance.FiscalYear]decimal.Decimal)
	}
	for fy, t := range f.Reserves.Years {
		in.Reserves.Years[fy] = t.flows()
	}
	for _, r := range f.History.Actuals {
		if _, dup := in.History.Actuals[r.FiscalYear]; dup {
			return nil, fmt.Errorf("history: duplicate actuals for %s", r.FiscalYear)
		}
		in.History.Actuals[r.FiscalYear] = r.actuals()
	}
	for _, r := range f.History.Budgets {
		if _, dup := in.History.Budgets[r.FiscalYear]; dup {
			return nil, fmt.Errorf("history: duplicate budget for %s", r.FiscalYear)
		}
		in.History.Budgets[r.FiscalYear] = r.budget()
	}
	for _, p := range f.Projects {
		if p.ID == 0 {
			return nil, fmt.Errorf("projects: %q has no id", p.Name)
		}
		if _, dup := in.Projects[p.ID]; dup {
			return nil, fmt.Errorf("projects: duplicate id %d", p.ID)
		}
		in.Projects[p.ID] = p
	}
	for fund, r := range f.FlowRanges {
		if r.DepositMax.LessThan(r.DepositMin) || r.TransferInMax.LessThan(r.TransferInMin) {
			return nil, fmt.Errorf("flow_ranges: %s max below min", fund)
		}
		in.FlowRanges[fund] = r
	}

	ds := &Dataset{Inputs: in}
	for i, r := range f.Realizations {
		feed, err := r.feed()
		if err != nil {
			return nil, fmt.Errorf("realization %d: %w", i, err)
		}
		for _, ids := range feed.Triggers {
			for _, id := range ids {
				if _, ok := in.Projects[id]; id != 0 && !ok {
					return nil, fmt.Errorf("realization %d: %w: %d", i, finance.ErrUnknownProject, id)
				}
			}
		}
		ds.Feeds = append(ds.Feeds, feed)
	}
	if len(ds.Feeds) == 0 {
		return nil, ErrNoFeeds
	}
	return ds, nil
}

func (r feedRecord) feed() (rollover.DeliveryFeed, error) {
	records := make([]rollover.DeliveryRecord, 0, len(r.Deliveries))
	for _, d := range r.Deliveries {
		if d.Month < 1 || d.Month > finance.MonthsPerYear {
			return rollover.DeliveryFeed{}, fmt.Errorf("deliveries: month %d out of range for %s", d.Month, d.FiscalYear)
		}
		if d.Member == "" {
			return rollover.DeliveryFeed{}, fmt.Errorf("deliveries: missing member for %s month %d", d.FiscalYear, d.Month)
		}
		records = append(records, d)
	}
	sort.SliceStable(records, func(i, j int) bool {
		if records[i].FiscalYear != records[j].FiscalYear {
			return records[i].FiscalYear < records[j].FiscalYear
		}
		return records[i].Month < records[j].Month
	})
	return rollover.DeliveryFeed{Records: records, Triggers: r.Triggers}, nil
}

// Specs builds n realization specs over [start, end], one per feed
// (reused cyclically), with seeds derived from baseSeed.
func (d *Dataset) Specs(params finance.ScenarioParameters, start, end finance.FiscalYear, n int, baseSeed int64) []rollover.RealizationSpec {
	specs := make([]rollover.RealizationSpec, n)
	for i := range specs {
		specs[i] = rollover.RealizationSpec{
			Index:  i,
			Seed:   rollover.SeedFor(baseSeed, i),
			Params: params,
			Feed:   d.Feed(i),
			Start:  start,
			End:    end,
		}
	}
	return specs
}
