package indexation

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/warp/restitution-engine/core"
)

// Index names one of the two monthly correction series.
type Index string

const (
	// IndexIPCA is the consumer-price index used to reconstruct the series.
	IndexIPCA Index = "ipca"
	// IndexSELIC is the benchmark interest index used for the correction factor.
	IndexSELIC Index = "selic"
)

// ParseIndex accepts the index name in any case.
func ParseIndex(s string) (Index, error) {
	switch Index(strings.ToLower(strings.TrimSpace(s))) {
	case IndexIPCA:
		return IndexIPCA, nil
	case IndexSELIC:
		return IndexSELIC, nil
	}
	return "", core.Invalid("index", "unknown index %q (want ipca or selic)", s)
}

// RateTable maps a month to its rate as a decimal fraction (0.0045 = 0.45%).
type RateTable map[core.Month]decimal.Decimal

// Rate returns the month's rate, zero when the month is missing.
func (t RateTable) Rate(m core.Month) decimal.Decimal {
	if r, ok := t[m]; ok {
		return r
	}
	return decimal.Zero
}

// RateRepository supplies the monthly rates for a closed month range. It may
// return fewer months than requested, and only errors on transport or
// storage failure.
type RateRepository interface {
	Rates(ctx context.Context, index Index, from, to core.Month) (RateTable, error)
}

// RateSet holds both tables for one calculation window.
type RateSet struct {
	IPCA  RateTable
	SELIC RateTable
}

// RequireRates fails with ErrDataUnavailable when either table is empty.
func (s RateSet) RequireRates(from, to core.Month) error {
	if len(s.IPCA) == 0 {
		return fmt.Errorf("%w: no %s rates between %s and %s", core.ErrDataUnavailable, IndexIPCA, from, to)
	}
	if len(s.SELIC) == 0 {
		return fmt.Errorf("%w: no %s rates between %s and %s", core.ErrDataUnavailable, IndexSELIC, from, to)
	}
	return nil
}
