package core

import (
	"fmt"
	"time"
)

// SourceDateLayout is the day-month-year text format the administrative
// datasets publish their date column in.
const SourceDateLayout = "02-01-2006"

// YearMonth identifies one calendar month, formatted "2006-01". It is the
// temporal half of the composite aggregation key and sorts correctly as a
// plain string.
type YearMonth string

// ParseSourceDate parses a raw date cell. Rows with unparseable dates are
// dropped from aggregation rather than failing the load, so callers treat a
// returned error as a per-row skip.
func ParseSourceDate(raw string) (time.Time, error) {
	t, err := time.Parse(SourceDateLayout, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("unparseable date %q: %w", raw, err)
	}
	return t, nil
}

// YearMonthOf truncates a date to its month identifier.
func YearMonthOf(t time.Time) YearMonth {
	return YearMonth(t.Format("2006-01"))
}

// Before reports chronological order; the "2006-01" layout makes string
// comparison sufficient.
func (ym YearMonth) Before(other YearMonth) bool {
	return string(ym) < string(other)
}

func (ym YearMonth) String() string {
	return string(ym)
}
