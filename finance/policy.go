/*
policy.go - Rate management strategy variants

PURPOSE:
  The rate-management toggle and its two bounds are resolved ONCE per
  realization into one of three variants, which the budget step then
  passes to EstimateUniformRate. Nothing downstream re-checks the raw
  toggle.

VARIANTS:
  Unmanaged:      MANAGE=false
  FlatManaged:    MANAGE=true, both bounds zero (hold the rate flat)
  BoundedManaged: MANAGE=true, any nonzero bound

EXAMPLE:
  policy, err := finance.SelectRatePolicy(true, finance.Dollars(0.05), finance.Dollars(-0.02))
  // policy == finance.BoundedManaged{High: 0.05, Low: -0.02}
*/
package finance

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// RateManagementPolicy is a closed set of rate-smoothing strategies.
type RateManagementPolicy interface {
	fmt.Stringer
	rateManagement()
}

// Unmanaged lets the rate follow the Annual Estimate.
type Unmanaged struct{}

// FlatManaged holds the rate at last year's value.
type FlatManaged struct{}

// BoundedManaged clamps the year-over-year change to [1+Low, 1+High].
type BoundedManaged struct {
	High decimal.Decimal
	Low  decimal.Decimal
}

func (Unmanaged) rateManagement()      {}
func (FlatManaged) rateManagement()    {}
func (BoundedManaged) rateManagement() {}

func (Unmanaged) String() string   { return "unmanaged" }
func (FlatManaged) String() string { return "flat_managed" }
func (b BoundedManaged) String() string {
	return fmt.Sprintf("bounded_managed[%s,%s]", b.Low, b.High)
}

// SelectRatePolicy resolves the rate-management toggle and bounds.
func SelectRatePolicy(manage bool, high, low decimal.Decimal) (RateManagementPolicy, error) {
	if high.LessThan(low) {
		return nil, fmt.Errorf("%w: high=%s low=%s", ErrInvalidRateBounds, high, low)
	}
	switch {
	case !manage:
		return Unmanaged{}, nil
	case high.IsZero() && low.IsZero():
		return FlatManaged{}, nil
	default:
		return BoundedManaged{High: high, Low: low}, nil
	}
}
