/*
Package indexation computes the ICMS restitution total.

PURPOSE:
  Turns up to twelve real monthly charges into a restitution total over a
  fixed 120-month window ending at the most recent sampled month.

ALGORITHM:
  1. Window: the 120 months ending at the most recent sample, oldest first
  2. Mean: decimal mean of every sampled charge
  3. Reconstruction: seed the oldest month with the mean, then
     value[m] = value[m-1] * (1 + ipca[m])
  4. Real months overwrite the reconstructed value
  5. Wrongly charged: value[m] * 0.037955
  6. Correction factor, walking backward from the last month:
     factor[last] = 1, factor[m] = factor[m+1] * (1 + selic[m+1])
  7. Real months keep factor 1
  8. Total = Σ wrongly[m] * factor[m]

  Missing rates are zero. The engine never fails on empty rate tables;
  whether that is acceptable is the caller's policy.

SEE ALSO:
  - samples.go: Input parsing and validation
  - calculation/service.go: Fetches rates and records the result
*/
package indexation

import (
	"github.com/shopspring/decimal"
	"github.com/warp/restitution-engine/core"
)

const (
	// WindowMonths is the number of months every calculation aggregates.
	WindowMonths = 120
)

// PISCOFINSFactor is the statutory share of the ICMS charge wrongly included
// in the PIS/COFINS base.
var PISCOFINSFactor = decimal.RequireFromString("0.037955")

var one = decimal.NewFromInt(1)

// MonthBreakdown is one month of the computation.
type MonthBreakdown struct {
	Month          core.Month
	Real           bool            // Supplied by the user
	Charge         decimal.Decimal // Real or reconstructed ICMS
	WronglyCharged decimal.Decimal // Charge * PISCOFINSFactor
	Factor         decimal.Decimal // Cumulative SELIC factor (1 for real months)
	Corrected      decimal.Decimal // WronglyCharged * Factor
}

// Result is the engine output.
type Result struct {
	Total      decimal.Decimal
	MeanCharge decimal.Decimal
	MostRecent core.Month
	Breakdown  []MonthBreakdown // Always WindowMonths long, oldest first
}

// Window returns the first and last month of the window ending at mostRecent.
func Window(mostRecent core.Month) (from, to core.Month) {
	return mostRecent.AddMonths(-(WindowMonths - 1)), mostRecent
}

// MostRecent returns the latest sampled month.
func MostRecent(samples []core.Sample) core.Month {
	var latest core.Month
	for i, s := range samples {
		if i == 0 || s.Month.After(latest) {
			latest = s.Month
		}
	}
	return latest
}

// Compute runs the restitution algorithm. Samples are validated first.
func Compute(samples []core.Sample, rates RateSet) (Result, error) {
	if err := ValidateSamples(samples); err != nil {
		return Result{}, err
	}

	mostRecent := MostRecent(samples)
	from, to := Window(mostRecent)
	months := core.MonthRange(from, to)

	provided := make(map[core.Month]decimal.Decimal, len(samples))
	sum := decimal.Zero
	for _, s := range samples {
		provided[s.Month] = s.Charge
		sum = sum.Add(s.Charge)
	}
	mean := sum.Div(decimal.NewFromInt(int64(len(samples))))

	series := reconstruct(mean, months, rates.IPCA)
	for i, m := range months {
		if v, ok := provided[m]; ok {
			series[i] = v
		}
	}
	factors := cumulativeFactors(months, rates.SELIC)

	result := Result{
		Total:      decimal.Zero,
		MeanCharge: mean,
		MostRecent: mostRecent,
		Breakdown:  make([]MonthBreakdown, len(months)),
	}
	for i, m := range months {
		_, isReal := provided[m]
		factor := factors[i]
		if isReal {
			factor = one
		}
		wrongly := series[i].Mul(PISCOFINSFactor)
		corrected := wrongly.Mul(factor)

		result.Breakdown[i] = MonthBreakdown{
			Month:          m,
			Real:           isReal,
			Charge:         series[i],
			WronglyCharged: wrongly,
			Factor:         factor,
			Corrected:      corrected,
		}
		result.Total = result.Total.Add(corrected)
	}
	return result, nil
}

// reconstruct seeds months[0] with the mean and compounds forward by IPCA.
func reconstruct(mean decimal.Decimal, months []core.Month, ipca RateTable) []decimal.Decimal {
	series := make([]decimal.Decimal, len(months))
	if len(months) == 0 {
		return series
	}
	series[0] = mean
	for i := 1; i < len(months); i++ {
		series[i] = series[i-1].Mul(one.Add(ipca.Rate(months[i])))
	}
	return series
}

// cumulativeFactors walks backward from the last month using the next
// month's SELIC rate.
func cumulativeFactors(months []core.Month, selic RateTable) []decimal.Decimal {
	factors := make([]decimal.Decimal, len(months))
	if len(months) == 0 {
		return factors
	}
	last := len(months) - 1
	factors[last] = one
	for i := last - 1; i >= 0; i-- {
		next := months[i+1]
		factors[i] = factors[i+1].Mul(one.Add(selic.Rate(next)))
	}
	return factors
}
