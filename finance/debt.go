/*
debt.go - Bond obligations and level debt service

PURPOSE:
  Tracks existing debt service (an opaque per-year figure from the
  approved budget) plus every bond issued during the simulation. New
  bonds pay interest only until their principal start year, then a level
  annual payment through maturity:

    payment = P * r * (1+r)^n / ((1+r)^n - 1)     (P / n when r = 0)

LIFECYCLE:
  1. Issue: created when a project trigger fires under trigger-driven CIP
  2. ServiceFor: debt service owed in a fiscal year (read-only)
  3. Amortize: applies one year's principal repayment, once per year
  Issues are never removed; outstanding principal may reach zero.

SEE ALSO:
  - rollover/policy.go: CipPolicy decides whether bonds are issued
  - rollover/budget.go: Budgets next year's debt service
*/
package finance

import (
	"sort"

	"github.com/shopspring/decimal"
)

// DebtIssue is one bond.
type DebtIssue struct {
	ID                   int             `json:"id"`
	ProjectID            ProjectID       `json:"project_id"`
	IssueYear            FiscalYear      `json:"issue_year"`
	PrincipalStartYear   FiscalYear      `json:"principal_start_year"`
	MaturityYear         FiscalYear      `json:"maturity_year"`
	InterestRate         decimal.Decimal `json:"interest_rate"`
	OriginalPrincipal    decimal.Decimal `json:"original_principal"`
	OutstandingPrincipal decimal.Decimal `json:"outstanding_principal"`
	AnnualPayment        decimal.Decimal `json:"annual_payment"`
}

// ServiceFor returns what the issue costs in fy: interest only before the
// principal start year, the level payment through maturity, nothing after.
func (d DebtIssue) ServiceFor(fy FiscalYear) decimal.Decimal {
	switch {
	case fy <= d.IssueYear || fy > d.MaturityYear:
		return decimal.Zero
	case fy < d.PrincipalStartYear:
		return d.OutstandingPrincipal.Mul(d.InterestRate)
	default:
		return Min(d.AnnualPayment, d.OutstandingPrincipal.Add(d.OutstandingPrincipal.Mul(d.InterestRate)))
	}
}

// LevelPayment returns the constant annual payment retiring principal over
// n years at rate r.
func LevelPayment(principal, rate decimal.Decimal, n int) decimal.Decimal {
	if n <= 0 || !principal.IsPositive() {
		return decimal.Zero
	}
	if !rate.IsPositive() {
		return principal.Div(decimal.NewFromInt(int64(n)))
	}
	growth := decimalOne
	step := decimalOne.Add(rate)
	for i := 0; i < n; i++ {
		growth = growth.Mul(step)
	}
	return principal.Mul(rate).Mul(growth).Div(growth.Sub(decimalOne))
}

// =============================================================================
// DEBT SCHEDULE
// =============================================================================

// DebtTerms describes how new bonds are structured.
type DebtTerms struct {
	InterestRate decimal.Decimal
	TermYears    int

	// DeferralYears is how many years after issue principal repayment starts.
	DeferralYears int
}

// DebtSchedule tracks existing and newly issued bond obligations.
type DebtSchedule struct {
	existing  map[FiscalYear]decimal.Decimal
	issues    []*DebtIssue
	amortized map[FiscalYear]bool
}

// NewDebtSchedule creates a schedule over the existing per-year debt service.
func NewDebtSchedule(existing map[FiscalYear]decimal.Decimal) *DebtSchedule {
	copied := make(map[FiscalYear]decimal.Decimal, len(existing))
	for fy, v := range existing {
		copied[fy] = v
	}
	return &DebtSchedule{existing: copied, amortized: make(map[FiscalYear]bool)}
}

// Issue creates a bond in fy for the given project. Interest starts the
// following year.
func (s *DebtSchedule) Issue(project ProjectID, fy FiscalYear, principal decimal.Decimal, terms DebtTerms) *DebtIssue {
	deferral := terms.DeferralYears
	if deferral < 1 {
		deferral = 1
	}
	term := terms.TermYears
	if term < 1 {
		term = 1
	}
	start := fy + FiscalYear(deferral)
	issue := &DebtIssue{
		ID:                   len(s.issues) + 1,
		ProjectID:            project,
		IssueYear:            fy,
		PrincipalStartYear:   start,
		MaturityYear:         start + FiscalYear(term) - 1,
		InterestRate:         terms.InterestRate,
		OriginalPrincipal:    principal,
		OutstandingPrincipal: principal,
		AnnualPayment:        LevelPayment(principal, terms.InterestRate, term),
	}
	s.issues = append(s.issues, issue)
	return issue
}

// ExistingService returns the pre-simulation debt service for fy.
func (s *DebtSchedule) ExistingService(fy FiscalYear) decimal.Decimal {
	if v, ok := s.existing[fy]; ok {
		return v
	}
	return decimal.Zero
}

// NewIssueService returns the debt service owed on simulated issues in fy.
func (s *DebtSchedule) NewIssueService(fy FiscalYear) decimal.Decimal {
	total := decimal.Zero
	for _, d := range s.issues {
		total = total.Add(d.ServiceFor(fy))
	}
	return total
}

// ServiceFor returns existing plus new-issue debt service for fy.
func (s *DebtSchedule) ServiceFor(fy FiscalYear) decimal.Decimal {
	return s.ExistingService(fy).Add(s.NewIssueService(fy))
}

// Amortize applies fy's principal repayment to every issue. Calling it
// twice for the same year is a no-op.
func (s *DebtSchedule) Amortize(fy FiscalYear) {
	if s.amortized[fy] {
		return
	}
	s.amortized[fy] = true
	for _, d := range s.issues {
		if fy < d.PrincipalStartYear || fy > d.MaturityYear {
			continue
		}
		interest := d.OutstandingPrincipal.Mul(d.InterestRate)
		principal := Min(d.ServiceFor(fy).Sub(interest), d.OutstandingPrincipal)
		if fy == d.MaturityYear {
			principal = d.OutstandingPrincipal
		}
		d.OutstandingPrincipal = NonNegative(d.OutstandingPrincipal.Sub(principal))
	}
}

// Issues returns a copy of every bond issued, ordered by ID.
func (s *DebtSchedule) Issues() []DebtIssue {
	out := make([]DebtIssue, len(s.issues))
	for i, d := range s.issues {
		out[i] = *d
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// OutstandingPrincipal sums principal still owed across new issues.
func (s *DebtSchedule) OutstandingPrincipal() decimal.Decimal {
	total := decimal.Zero
	for _, d := range s.issues {
		total = total.Add(d.OutstandingPrincipal)
	}
	return total
}
