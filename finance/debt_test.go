package finance_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/water-finance/finance"
)

func TestLevelPayment(t *testing.T) {
	assert.True(t, finance.LevelPayment(d("1000"), d("0"), 4).Equal(d("250")))
	assert.InDelta(t, 12950.4575, finance.LevelPayment(d("100000"), d("0.05"), 10).InexactFloat64(), 0.001)
	assert.True(t, finance.LevelPayment(d("1000"), d("0.05"), 0).IsZero())
	assert.True(t, finance.LevelPayment(d("0"), d("0.05"), 10).IsZero())
}

func TestDebtSchedule_IssueAndAmortize(t *testing.T) {
	// GIVEN: A 1000 bond issued in FY2022, 10%, 3 years, principal from FY2023
	s := finance.NewDebtSchedule(map[finance.FiscalYear]decimal.Decimal{2023: d("500")})
	issue := s.Issue(7, 2022, d("1000"), finance.DebtTerms{InterestRate: d("0.10"), TermYears: 3, DeferralYears: 1})

	require.Equal(t, finance.FiscalYear(2023), issue.PrincipalStartYear)
	require.Equal(t, finance.FiscalYear(2025), issue.MaturityYear)
	assert.InDelta(t, 402.1148, issue.AnnualPayment.InexactFloat64(), 0.0001)

	// THEN: Nothing is owed in the issue year
	assert.True(t, s.NewIssueService(2022).IsZero())

	// AND: Existing service is added to new-issue service
	assert.InDelta(t, 902.1148, s.ServiceFor(2023).InexactFloat64(), 0.0001)

	// WHEN: Amortizing each year through maturity
	s.Amortize(2023)
	assert.InDelta(t, 697.8852, s.OutstandingPrincipal().InexactFloat64(), 0.0001)
	s.Amortize(2023) // second call is a no-op
	assert.InDelta(t, 697.8852, s.OutstandingPrincipal().InexactFloat64(), 0.0001)
	s.Amortize(2024)
	s.Amortize(2025)

	// THEN: The bond is retired and owes nothing afterwards
	assert.True(t, s.OutstandingPrincipal().IsZero(), "outstanding %s", s.OutstandingPrincipal())
	assert.True(t, s.NewIssueService(2026).IsZero())

	issues := s.Issues()
	require.Len(t, issues, 1)
	assert.Equal(t, finance.ProjectID(7), issues[0].ProjectID)
	assert.True(t, issues[0].OriginalPrincipal.Equal(d("1000")))
}

func TestDebtIssue_InterestOnlyDuringDeferral(t *testing.T) {
	s := finance.NewDebtSchedule(nil)
	issue := s.Issue(1, 2022, d("1000"), finance.DebtTerms{InterestRate: d("0.10"), TermYears: 3, DeferralYears: 2})

	assert.True(t, issue.ServiceFor(2023).Equal(d("100")), "interest only, got %s", issue.ServiceFor(2023))
	assert.True(t, issue.ServiceFor(2024).Equal(issue.AnnualPayment))
	assert.True(t, issue.ServiceFor(2027).IsZero())
}

func TestDebtSchedule_IssueIDsAreSequential(t *testing.T) {
	s := finance.NewDebtSchedule(nil)
	terms := finance.DefaultScenarioParameters().DebtTerms()
	a := s.Issue(1, 2022, d("100"), terms)
	b := s.Issue(2, 2023, d("200"), terms)
	assert.Equal(t, 1, a.ID)
	assert.Equal(t, 2, b.ID)
	assert.True(t, s.ExistingService(2022).IsZero())
}
