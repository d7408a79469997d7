package core

import (
	"fmt"
	"strings"
	"time"
)

// =============================================================================
// MONTH - Calendar month, the unit of the indexation window
// =============================================================================

// MonthLayout is the wire format for months ("2024-07").
const MonthLayout = "2006-01"

type Month struct {
	Year  int
	Month time.Month
}

// Constructors
func NewMonth(year int, month time.Month) Month {
	return MonthOf(time.Date(year, month, 1, 0, 0, 0, 0, time.UTC))
}

// MonthOf normalises any instant to the month containing it.
func MonthOf(t time.Time) Month {
	return Month{Year: t.Year(), Month: t.Month()}
}

// ParseMonth accepts "YYYY-MM" and, for convenience, a full "YYYY-MM-DD" date
// whose day is dropped.
func ParseMonth(s string) (Month, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(MonthLayout, s); err == nil {
		return MonthOf(t), nil
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return MonthOf(t), nil
	}
	return Month{}, fmt.Errorf("invalid month %q: use YYYY-MM", s)
}

// Comparison
func (m Month) index() int              { return m.Year*12 + int(m.Month) - 1 }
func (m Month) Before(other Month) bool { return m.index() < other.index() }
func (m Month) After(other Month) bool  { return m.index() > other.index() }
func (m Month) Equal(other Month) bool  { return m.index() == other.index() }
func (m Month) IsZero() bool            { return m.Year == 0 && m.Month == 0 }

// Arithmetic
func (m Month) AddMonths(n int) Month {
	i := m.index() + n
	return Month{Year: i / 12, Month: time.Month(i%12 + 1)}
}

// MonthsBetween returns the signed distance from -> to in months.
func MonthsBetween(from, to Month) int { return to.index() - from.index() }

// Properties
func (m Month) Start() time.Time { return time.Date(m.Year, m.Month, 1, 0, 0, 0, 0, time.UTC) }
func (m Month) String() string   { return fmt.Sprintf("%04d-%02d", m.Year, int(m.Month)) }

// MonthRange returns every month from start to end inclusive, oldest first.
// Empty when end is before start.
func MonthRange(start, end Month) []Month {
	n := MonthsBetween(start, end) + 1
	if n <= 0 {
		return nil
	}
	months := make([]Month, n)
	for i := range months {
		months[i] = start.AddMonths(i)
	}
	return months
}
