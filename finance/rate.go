/*
rate.go - Uniform water rate model

PURPOSE:
  Converts a fiscal year's Annual Estimate (the revenue that must come from
  uniform-rate sales) into the $/kgal uniform rate billed to member
  governments, optionally smoothing the year-over-year change by moving
  money through the Rate Stabilization fund.

UNITS:
  Demand is in MGD (million gallons per day). One MG is 1,000 kgal, so

    rate ($/kgal) = AnnualEstimate / (DemandMGD * 365) / 1000

RATE MANAGEMENT:
  Unmanaged:       rate follows the Annual Estimate directly
  FlatManaged:     rate is held at last year's rate; the revenue gap moves
                   into the RS transfer-in
  BoundedManaged:  rate change is clamped to [1+low, 1+high] of last year's
                   rate; the gap between uncapped and clamped revenue moves
                   into the RS transfer-in

  In every managed case the adjusted transfer-in stays within [0, RS fund
  balance] and the Annual Estimate is reduced by whatever extra the fund
  contributes. The returned rate never leaves the managed band, even when
  the fund is too small to cover the whole gap.

SEE ALSO:
  - policy.go: RateManagementPolicy variants
  - rollover/budget.go: Calls the rate model once per budget
*/
package finance

import (
	"github.com/shopspring/decimal"
)

var (
	daysPerYear = decimal.NewFromInt(DaysPerYear)
	kgalPerMG   = decimal.NewFromInt(1000)
	decimalOne  = decimal.NewFromInt(1)
	decimalZero = decimal.Zero
)

// =============================================================================
// RATE INPUT / OUTPUT
// =============================================================================

// RateInput carries everything the rate model needs for one fiscal year.
type RateInput struct {
	AnnualEstimate    decimal.Decimal
	DemandEstimateMGD decimal.Decimal
	CurrentRate       decimal.Decimal
	RSTransferIn      decimal.Decimal
	RSFundBalance     decimal.Decimal
}

// RateEstimate is the rate model's answer.
type RateEstimate struct {
	Rate           decimal.Decimal
	UncappedRate   decimal.Decimal
	AnnualEstimate decimal.Decimal
	RSTransferIn   decimal.Decimal
}

// AnnualVolumeKgal converts a demand estimate in MGD to annual kgal.
func AnnualVolumeKgal(demandMGD decimal.Decimal) decimal.Decimal {
	return demandMGD.Mul(daysPerYear).Mul(kgalPerMG)
}

// =============================================================================
// UNIFORM RATE
// =============================================================================

// EstimateUniformRate prices the Annual Estimate under the given policy.
func EstimateUniformRate(policy RateManagementPolicy, in RateInput) (RateEstimate, error) {
	if !in.DemandEstimateMGD.IsPositive() {
		return RateEstimate{}, ErrNonPositiveDemand
	}
	if policy == nil {
		policy = Unmanaged{}
	}

	volume := AnnualVolumeKgal(in.DemandEstimateMGD)
	uncapped := in.AnnualEstimate.Div(volume)

	// Without a prior rate there is nothing to hold or bound against.
	if !in.CurrentRate.IsPositive() {
		policy = Unmanaged{}
	}

	switch p := policy.(type) {
	case FlatManaged:
		gap := in.AnnualEstimate.Sub(in.CurrentRate.Mul(volume))
		transfer := absorbIntoTransfer(in, gap)
		ae := in.AnnualEstimate.Sub(transfer.Sub(in.RSTransferIn))
		// The rate holds even when the fund runs short of the gap.
		return RateEstimate{
			Rate:           in.CurrentRate,
			UncappedRate:   uncapped,
			AnnualEstimate: ae,
			RSTransferIn:   transfer,
		}, nil

	case BoundedManaged:
		if p.High.LessThan(p.Low) {
			return RateEstimate{}, ErrInvalidRateBounds
		}
		lo := in.CurrentRate.Mul(decimalOne.Add(p.Low))
		hi := in.CurrentRate.Mul(decimalOne.Add(p.High))
		capped := Clamp(uncapped, lo, hi)

		// Positive gap: the capped rate under-collects, the fund makes it up.
		gap := uncapped.Sub(capped).Mul(volume)
		transfer := absorbIntoTransfer(in, gap)
		return RateEstimate{
			Rate:           capped,
			UncappedRate:   uncapped,
			AnnualEstimate: in.AnnualEstimate.Sub(transfer.Sub(in.RSTransferIn)),
			RSTransferIn:   transfer,
		}, nil

	default:
		return RateEstimate{
			Rate:           uncapped,
			UncappedRate:   uncapped,
			AnnualEstimate: in.AnnualEstimate,
			RSTransferIn:   in.RSTransferIn,
		}, nil
	}
}

// absorbIntoTransfer moves a revenue gap into the RS transfer-in, bounded so
// the fund is never drawn below zero and the transfer never turns negative.
func absorbIntoTransfer(in RateInput, gap decimal.Decimal) decimal.Decimal {
	return Clamp(in.RSTransferIn.Add(gap), decimalZero, NonNegative(in.RSFundBalance))
}

// =============================================================================
// VARIABLE RATE
// =============================================================================

// EstimateVariableRate returns the variable component of the uniform rate:
// the share of the estimate that pays for variable costs, applied to the
// uniform rate. The result never exceeds the uniform rate.
func EstimateVariableRate(annualEstimateLessRRTransfer, budgetedVariableCosts, uniformRate decimal.Decimal) decimal.Decimal {
	if !annualEstimateLessRRTransfer.IsPositive() {
		return decimalZero
	}
	v := budgetedVariableCosts.Div(annualEstimateLessRRTransfer).Mul(uniformRate)
	return Clamp(v, decimalZero, NonNegative(uniformRate))
}
