package indexation_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/restitution-engine/core"
	"github.com/warp/restitution-engine/indexation"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func month(year int, m time.Month) core.Month { return core.NewMonth(year, m) }

func sample(year int, m time.Month, charge string) core.Sample {
	return core.Sample{Month: month(year, m), Charge: dec(charge)}
}

// flatTable assigns the same rate to every month of the window ending at last.
func flatTable(last core.Month, rate string) indexation.RateTable {
	from, to := indexation.Window(last)
	table := indexation.RateTable{}
	for _, m := range core.MonthRange(from, to) {
		table[m] = dec(rate)
	}
	return table
}

func assertDecimal(t *testing.T, want, got decimal.Decimal, msgAndArgs ...any) {
	t.Helper()
	assert.True(t, want.Equal(got), append([]any{"want %s, got %s", want, got}, msgAndArgs...)...)
}

// =============================================================================
// DETERMINISM AND WINDOW
// =============================================================================

func TestCompute_SingleSampleZeroRates(t *testing.T) {
	// GIVEN: One bill of 1000.00 and empty rate tables
	// WHEN: Computing
	// THEN: Every month equals 1000.00 and total = 1000 * 0.037955 * 120

	result, err := indexation.Compute(
		[]core.Sample{sample(2024, time.June, "1000.00")},
		indexation.RateSet{},
	)
	require.NoError(t, err)

	require.Len(t, result.Breakdown, indexation.WindowMonths)
	for _, b := range result.Breakdown {
		assertDecimal(t, dec("1000.00"), b.Charge, "month %s", b.Month)
		assertDecimal(t, decimal.NewFromInt(1), b.Factor, "month %s", b.Month)
	}
	assertDecimal(t, dec("4554.6"), result.Total)
	assertDecimal(t, dec("1000"), result.MeanCharge)
	assert.Equal(t, month(2024, time.June), result.MostRecent)
	assert.Equal(t, month(2014, time.July), result.Breakdown[0].Month)
}

func TestCompute_WindowAlwaysHas120DistinctMonths(t *testing.T) {
	for n := 1; n <= indexation.MaxSamples; n++ {
		samples := make([]core.Sample, n)
		for i := range samples {
			samples[i] = core.Sample{Month: month(2023, time.January).AddMonths(i), Charge: dec("250.10")}
		}

		result, err := indexation.Compute(samples, indexation.RateSet{})
		require.NoError(t, err)

		seen := map[core.Month]bool{}
		for _, b := range result.Breakdown {
			seen[b.Month] = true
		}
		assert.Len(t, seen, indexation.WindowMonths, "with %d samples", n)
		assert.Equal(t, samples[n-1].Month, result.Breakdown[indexation.WindowMonths-1].Month)
	}
}

// =============================================================================
// RECONSTRUCTION AND CORRECTION
// =============================================================================

func TestCompute_ReconstructsWithIPCA(t *testing.T) {
	// GIVEN: A sample in the last month and IPCA of 1% in the second month only
	last := month(2024, time.December)
	from, _ := indexation.Window(last)
	ipca := indexation.RateTable{from.AddMonths(1): dec("0.01")}

	result, err := indexation.Compute(
		[]core.Sample{{Month: last, Charge: dec("200")}},
		indexation.RateSet{IPCA: ipca},
	)
	require.NoError(t, err)

	// THEN: The anchor is the mean, month two compounds, later months carry it
	assertDecimal(t, dec("200"), result.Breakdown[0].Charge)
	assertDecimal(t, dec("202"), result.Breakdown[1].Charge)
	assertDecimal(t, dec("202"), result.Breakdown[2].Charge)
	assert.False(t, result.Breakdown[1].Real)

	// AND: The real month keeps its sampled value
	assertDecimal(t, dec("200"), result.Breakdown[indexation.WindowMonths-1].Charge)
	assert.True(t, result.Breakdown[indexation.WindowMonths-1].Real)
}

func TestCompute_CumulativeFactorWalksBackward(t *testing.T) {
	last := month(2024, time.December)
	selic := flatTable(last, "0.01")

	result, err := indexation.Compute(
		[]core.Sample{{Month: last, Charge: dec("100")}},
		indexation.RateSet{SELIC: selic},
	)
	require.NoError(t, err)

	n := indexation.WindowMonths
	assertDecimal(t, dec("1"), result.Breakdown[n-1].Factor)
	assertDecimal(t, dec("1.01"), result.Breakdown[n-2].Factor)
	assertDecimal(t, dec("1.0201"), result.Breakdown[n-3].Factor)
	compounded := dec("1")
	for i := 0; i < n-1; i++ {
		compounded = compounded.Mul(dec("1.01"))
	}
	assertDecimal(t, compounded, result.Breakdown[0].Factor)

	// Corrected = charge * factor * statutory factor
	want := dec("100").Mul(indexation.PISCOFINSFactor).Mul(dec("1.01"))
	assertDecimal(t, want, result.Breakdown[n-2].Corrected)
}

func TestCompute_RealMonthsGetNoCorrection(t *testing.T) {
	// GIVEN: A sample in the most recent month and a mid-window month,
	//        with a non-zero SELIC table
	last := month(2024, time.December)
	mid := last.AddMonths(-6)
	selic := flatTable(last, "0.02")

	result, err := indexation.Compute(
		[]core.Sample{
			{Month: last, Charge: dec("300")},
			{Month: mid, Charge: dec("500")},
		},
		indexation.RateSet{SELIC: selic},
	)
	require.NoError(t, err)

	// THEN: Both real months have factor exactly 1
	n := indexation.WindowMonths
	assertDecimal(t, decimal.NewFromInt(1), result.Breakdown[n-1].Factor)
	assertDecimal(t, decimal.NewFromInt(1), result.Breakdown[n-7].Factor)
	assertDecimal(t, dec("500"), result.Breakdown[n-7].Charge)

	// AND: Synthetic neighbours are corrected
	assert.True(t, result.Breakdown[n-8].Factor.GreaterThan(decimal.NewFromInt(1)))
}

func TestCompute_TotalIsSumOfCorrected(t *testing.T) {
	last := month(2023, time.March)
	result, err := indexation.Compute(
		[]core.Sample{
			sample(2023, time.March, "180.55"),
			sample(2023, time.January, "120.10"),
			sample(2022, time.August, "99.99"),
		},
		indexation.RateSet{IPCA: flatTable(last, "0.004"), SELIC: flatTable(last, "0.009")},
	)
	require.NoError(t, err)

	sum := decimal.Zero
	for _, b := range result.Breakdown {
		assertDecimal(t, b.WronglyCharged.Mul(b.Factor), b.Corrected)
		sum = sum.Add(b.Corrected)
	}
	assertDecimal(t, sum, result.Total)
	assertDecimal(t, dec("400.64").Div(dec("3")), result.MeanCharge)
}

func TestCompute_SampleOlderThanWindowOnlyAffectsMean(t *testing.T) {
	// GIVEN: One sample 130 months before the most recent one
	last := month(2024, time.December)
	old := last.AddMonths(-130)

	result, err := indexation.Compute(
		[]core.Sample{{Month: last, Charge: dec("100")}, {Month: old, Charge: dec("300")}},
		indexation.RateSet{},
	)
	require.NoError(t, err)

	// THEN: It moves the mean but is not part of the window
	assertDecimal(t, dec("200"), result.MeanCharge)
	assertDecimal(t, dec("200"), result.Breakdown[0].Charge)
	for _, b := range result.Breakdown[:indexation.WindowMonths-1] {
		assert.False(t, b.Real)
	}
}

// =============================================================================
// VALIDATION
// =============================================================================

func TestCompute_InvalidInput(t *testing.T) {
	thirteen := make([]core.Sample, 13)
	for i := range thirteen {
		thirteen[i] = core.Sample{Month: month(2023, time.January).AddMonths(i), Charge: dec("1")}
	}

	tests := []struct {
		name    string
		samples []core.Sample
	}{
		{"empty", nil},
		{"too many", thirteen},
		{"duplicate month", []core.Sample{sample(2024, time.May, "1"), sample(2024, time.May, "2")}},
		{"negative charge", []core.Sample{sample(2024, time.May, "-1")}},
		{"zero month", []core.Sample{{Charge: dec("1")}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := indexation.Compute(tt.samples, indexation.RateSet{})
			assert.ErrorIs(t, err, core.ErrInvalidInput)
		})
	}
}

func TestParseSamples(t *testing.T) {
	samples, err := indexation.ParseSamples([]indexation.Bill{
		{IssueDate: "2024-05", Charge: dec("10.50")},
		{IssueDate: "2024-04-17", Charge: dec("11")},
	})
	require.NoError(t, err)
	require.Len(t, samples, 2)
	assert.Equal(t, month(2024, time.April), samples[1].Month)

	_, err = indexation.ParseSamples([]indexation.Bill{{IssueDate: "May 2024", Charge: dec("1")}})
	require.Error(t, err)
	var invalid *core.InvalidInputError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, "issue_date", invalid.Field)
}

func TestRateSet_RequireRates(t *testing.T) {
	last := month(2024, time.December)
	from, to := indexation.Window(last)

	err := indexation.RateSet{SELIC: flatTable(last, "0.01")}.RequireRates(from, to)
	assert.ErrorIs(t, err, core.ErrDataUnavailable)
	assert.True(t, core.IsRetryable(err))

	err = indexation.RateSet{IPCA: flatTable(last, "0.01"), SELIC: flatTable(last, "0.01")}.RequireRates(from, to)
	assert.NoError(t, err)
}

func TestParseIndex(t *testing.T) {
	idx, err := indexation.ParseIndex(" SELIC ")
	require.NoError(t, err)
	assert.Equal(t, indexation.IndexSELIC, idx)

	_, err = indexation.ParseIndex("cdi")
	assert.ErrorIs(t, err, core.ErrInvalidInput)
}
