package rates

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/warp/restitution-engine/core"
	"github.com/warp/restitution-engine/indexation"
)

var hundred = decimal.NewFromInt(100)

// ParseCSV reads "month,rate" rows into a table. A first row whose month
// column does not parse is treated as a header. Blank lines and lines
// starting with '#' are skipped. A month listed twice is an error.
func ParseCSV(r io.Reader) (indexation.RateTable, error) {
	reader := csv.NewReader(r)
	reader.Comment = '#'
	reader.FieldsPerRecord = 2
	reader.TrimLeadingSpace = true

	table := indexation.RateTable{}
	for line := 1; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, core.Invalid("csv", "%v", err)
		}

		m, err := core.ParseMonth(record[0])
		if err != nil {
			if line == 1 {
				continue
			}
			return nil, core.Invalid("csv", "line %d: %q is not a month", line, record[0])
		}
		rate, err := parseRate(record[1])
		if err != nil {
			return nil, core.Invalid("csv", "line %d: %v", line, err)
		}
		if _, dup := table[m]; dup {
			return nil, core.Invalid("csv", "line %d: month %s listed twice", line, m)
		}
		table[m] = rate
	}

	if len(table) == 0 {
		return nil, core.Invalid("csv", "no rate rows found")
	}
	return table, nil
}

// parseRate accepts "0.0116" or "1.16%".
func parseRate(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	percent := strings.HasSuffix(s, "%")
	s = strings.TrimSuffix(s, "%")

	rate, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero, fmt.Errorf("%q is not a decimal rate", s)
	}
	if percent {
		rate = rate.Div(hundred)
	}
	return rate, nil
}
