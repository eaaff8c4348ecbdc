package finance_test

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/warp/water-finance/finance"
)

func d(s string) decimal.Decimal { return finance.MustParseDecimal(s) }

func TestFiscalMonths_SumToYear(t *testing.T) {
	total := 0
	for m := 1; m <= finance.MonthsPerYear; m++ {
		total += finance.DaysInFiscalMonth(m)
	}
	if total != finance.DaysPerYear {
		t.Errorf("Expected %d days, got %d", finance.DaysPerYear, total)
	}
	if finance.DaysInFiscalMonth(1) != 31 {
		t.Errorf("Expected October to have 31 days")
	}
	if finance.DaysInFiscalMonth(0) != 0 || finance.DaysInFiscalMonth(13) != 0 {
		t.Errorf("Expected out-of-range months to have 0 days")
	}
}

func TestFiscalYear_String(t *testing.T) {
	fy := finance.FiscalYear(2021)
	if fy.String() != "FY2021" {
		t.Errorf("Expected FY2021, got %s", fy)
	}
	if fy.Next().Prev() != fy {
		t.Errorf("Expected Next/Prev to round-trip")
	}
}

func TestFundYear_Roll(t *testing.T) {
	// GIVEN: A fund with a prior balance
	prior := finance.FundYear{Balance: d("1000")}

	// WHEN: Rolling with a deposit, transfer-in and interest
	next := prior.Roll(finance.FundYear{Deposit: d("200"), TransferIn: d("350"), InterestIncome: d("10")})

	// THEN: Balance = prior - transferIn + deposit + interest
	if !next.Balance.Equal(d("860")) {
		t.Errorf("Expected 860, got %s", next.Balance)
	}
	if !next.Deposit.Equal(d("200")) {
		t.Errorf("Expected flows to be kept, got deposit %s", next.Deposit)
	}
}

func TestParseFund(t *testing.T) {
	for _, f := range finance.Funds {
		parsed, err := finance.ParseFund(f.String())
		if err != nil {
			t.Fatalf("ParseFund(%s): %v", f, err)
		}
		if parsed != f {
			t.Errorf("Expected %s, got %s", f, parsed)
		}
	}
	if _, err := finance.ParseFund("sinking"); !finance.IsClientError(err) {
		t.Errorf("Expected unknown fund to be a client error, got %v", err)
	}
}

func TestFundFlows_JSONUsesNames(t *testing.T) {
	m := map[finance.Fund]string{finance.RenewalReplacement: "x"}
	b, err := json.Marshal(m)
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != `{"renewal_replacement":"x"}` {
		t.Errorf("Unexpected JSON: %s", b)
	}
}

func TestFundFlows_Totals(t *testing.T) {
	var flows finance.FundFlows
	for _, f := range finance.Funds {
		flows[f] = finance.FundFlow{Deposit: d("1"), TransferIn: d("2")}
	}
	if !flows.TotalDeposits(finance.RenewalReplacement, finance.CapitalImprovement).Equal(d("2")) {
		t.Errorf("Expected deposits of two funds to be 2")
	}
	if !flows.TotalTransfersIn(finance.Funds[:]...).Equal(d("10")) {
		t.Errorf("Expected transfers across all funds to be 10")
	}
}

func TestClamp(t *testing.T) {
	tests := []struct {
		v, want string
	}{
		{"-1", "0"},
		{"0.5", "0.5"},
		{"3", "1"},
	}
	for _, tt := range tests {
		got := finance.Clamp(d(tt.v), d("0"), d("1"))
		if !got.Equal(d(tt.want)) {
			t.Errorf("Clamp(%s) = %s, want %s", tt.v, got, tt.want)
		}
	}
}
