package finance_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/water-finance/finance"
)

// =============================================================================
// FUND LEDGER
// =============================================================================

func TestFundLedger_RecordAndRead(t *testing.T) {
	l := finance.NewFundLedger()

	var seed finance.FundSet
	seed[finance.UtilityReserve].Balance = d("500")
	l.Seed(2020, seed)

	var settled finance.FundSet
	settled[finance.UtilityReserve].Balance = d("450")
	l.Record(2021, settled)

	assert.Equal(t, []finance.FiscalYear{2020, 2021}, l.Years())
	assert.True(t, l.Balance(2021, finance.UtilityReserve).Equal(d("450")))
	assert.True(t, l.Balance(2019, finance.UtilityReserve).IsZero())

	_, ok := l.Year(2022)
	assert.False(t, ok)
}

// =============================================================================
// FLOOR RULES
// =============================================================================

func TestRebalance(t *testing.T) {
	rule := finance.FloorRule{Fund: finance.RenewalReplacement, Fraction: d("0.05")}
	priorGross := d("1000") // floor = 50

	tests := []struct {
		name         string
		prior        string
		transferIn   string
		deposit      string
		wantTransfer string
		wantDeposit  string
		wantRaised   bool
	}{
		{"above floor is unchanged", "100", "20", "5", "20", "5", false},
		{"cutting the transfer is enough", "60", "20", "0", "10", "0", false},
		{"transfer cut to zero then deposit raised", "40", "5", "0", "0", "10", true},
		{"exactly at floor", "70", "20", "0", "20", "0", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := finance.Rebalance(rule, d(tt.prior), d(tt.transferIn), d(tt.deposit), priorGross)
			assert.True(t, got.TransferIn.Equal(d(tt.wantTransfer)), "transfer %s", got.TransferIn)
			assert.True(t, got.Deposit.Equal(d(tt.wantDeposit)), "deposit %s", got.Deposit)
			assert.Equal(t, tt.wantRaised, got.DepositRaised)

			// The rebalanced flows never leave the fund below its floor.
			end := d(tt.prior).Add(got.Deposit).Sub(got.TransferIn)
			assert.False(t, end.LessThan(rule.Floor(priorGross)), "end balance %s", end)
		})
	}
}

func TestReserveShortfall(t *testing.T) {
	rule := finance.FloorRule{Fund: finance.UtilityReserve, Fraction: d("0.10")}

	assert.True(t, finance.ReserveShortfall(rule, d("80"), d("1000")).Equal(d("20")))
	assert.True(t, finance.ReserveShortfall(rule, d("120"), d("1000")).IsZero())
}

func TestHeadroom_NeverNegative(t *testing.T) {
	assert.True(t, finance.Headroom(d("30"), d("50")).IsZero())
	assert.True(t, finance.Headroom(d("80"), d("50")).Equal(d("30")))
}

// =============================================================================
// INTEREST ALLOCATION
// =============================================================================

func priorBalances() finance.FundSet {
	var prior finance.FundSet
	prior[finance.RateStabilization].Balance = d("100")
	prior[finance.UtilityReserve].Balance = d("50")
	prior[finance.RenewalReplacement].Balance = d("30")
	prior[finance.CapitalImprovement].Balance = d("20")
	prior[finance.EnergySavings].Balance = d("0")
	return prior
}

func TestEstimatedEnterpriseFund(t *testing.T) {
	// (200 tracked + 19 sinking) / (1 - 0.27)
	got := finance.EstimatedEnterpriseFund(priorBalances(), d("19"), d("0.27"))
	assert.True(t, got.Equal(d("300")), "got %s", got)
}

func TestAllocateInterest_SplitsByPriorBalance(t *testing.T) {
	// GIVEN: An estimated enterprise fund of 300
	prior := priorBalances()

	// WHEN: Allocating 3 of aggregate interest
	alloc := finance.AllocateInterest(d("3"), prior, d("19"), d("0.27"))

	// THEN: Each fund gets its balance share
	assert.InDelta(t, 1.0, alloc.PerFund[finance.RateStabilization].InexactFloat64(), 1e-9)
	assert.InDelta(t, 0.5, alloc.PerFund[finance.UtilityReserve].InexactFloat64(), 1e-9)
	assert.InDelta(t, 0.19, alloc.Sinking.InexactFloat64(), 1e-9)
	assert.True(t, alloc.PerFund[finance.EnergySavings].IsZero())

	// AND: The unaccounted share lands in the utility reserve
	assert.InDelta(t, 0.81, alloc.Unallocated.InexactFloat64(), 1e-9)
	assert.True(t, alloc.Credited(finance.UtilityReserve).Equal(alloc.PerFund[finance.UtilityReserve].Add(alloc.Unallocated)))

	// AND: Nothing is lost to rounding
	total := alloc.Sinking.Add(alloc.Unallocated)
	for _, f := range finance.Funds {
		total = total.Add(alloc.PerFund[f])
	}
	require.True(t, total.Equal(d("3")), "total %s", total)
}

func TestAllocateInterest_EmptyFunds(t *testing.T) {
	var prior finance.FundSet
	for _, f := range finance.Funds {
		prior[f].Balance = d("0")
	}
	alloc := finance.AllocateInterest(d("5"), prior, d("0"), d("0.27"))
	assert.True(t, alloc.Unallocated.Equal(d("5")))
	assert.True(t, alloc.Credited(finance.UtilityReserve).Equal(d("5")))
}
