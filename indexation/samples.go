package indexation

import (
	"github.com/shopspring/decimal"
	"github.com/warp/restitution-engine/core"
)

// MaxSamples is the most bills a single calculation accepts.
const MaxSamples = 12

// Bill is a sample as it arrives from the caller, before parsing.
type Bill struct {
	IssueDate string
	Charge    decimal.Decimal
}

// ParseSamples turns caller bills into validated samples normalised to the
// first of their month.
func ParseSamples(bills []Bill) ([]core.Sample, error) {
	if err := checkCount(len(bills)); err != nil {
		return nil, err
	}
	samples := make([]core.Sample, 0, len(bills))
	for _, b := range bills {
		m, err := core.ParseMonth(b.IssueDate)
		if err != nil {
			return nil, core.Invalid("issue_date", "%q is not a valid month, use YYYY-MM", b.IssueDate)
		}
		samples = append(samples, core.Sample{Month: m, Charge: b.Charge})
	}
	if err := ValidateSamples(samples); err != nil {
		return nil, err
	}
	return samples, nil
}

// ValidateSamples enforces 1..12 samples, unique months and non-negative
// charges.
func ValidateSamples(samples []core.Sample) error {
	if err := checkCount(len(samples)); err != nil {
		return err
	}
	seen := make(map[core.Month]bool, len(samples))
	for _, s := range samples {
		if s.Month.IsZero() {
			return core.Invalid("issue_date", "month is required")
		}
		if seen[s.Month] {
			return core.Invalid("issue_date", "month %s supplied more than once", s.Month)
		}
		seen[s.Month] = true
		if s.Charge.IsNegative() {
			return core.Invalid("icms_value", "charge for %s must not be negative", s.Month)
		}
	}
	return nil
}

func checkCount(n int) error {
	if n < 1 {
		return core.Invalid("bills", "at least one bill is required")
	}
	if n > MaxSamples {
		return core.Invalid("bills", "at most %d bills are accepted, got %d", MaxSamples, n)
	}
	return nil
}
