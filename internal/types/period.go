package types

import (
	"fmt"
	"strconv"
)

// MinYear is the earliest reporting year the upstream API covers. Anything
// older is rejected before a request is issued.
const MinYear = 1900

// Period is a (year, month) reporting interval used to key one upstream
// query. Granularity is month only; there is no day or timezone concept.
type Period struct {
	Year  int
	Month int
}

// String formats the period as "YYYY-MM" with the month zero-padded, the
// exact form the upstream date parameter expects.
func (p Period) String() string {
	return fmt.Sprintf("%04d-%02d", p.Year, p.Month)
}

// Validate checks the period is within the supported range.
func (p Period) Validate() error {
	if p.Year < MinYear {
		return NewAppError(
			ErrCodeValidationInvalidPeriod,
			fmt.Sprintf("year %d is before %d", p.Year, MinYear),
			nil,
		)
	}
	if p.Month < 1 || p.Month > 12 {
		return NewAppError(
			ErrCodeValidationInvalidPeriod,
			fmt.Sprintf("month %d is out of range 1-12", p.Month),
			nil,
		)
	}
	return nil
}

// StepBack returns the period one month earlier. Stepping back from
// January of year Y yields December of year Y-1.
func (p Period) StepBack() Period {
	if p.Month == 1 {
		return Period{Year: p.Year - 1, Month: 12}
	}
	return Period{Year: p.Year, Month: p.Month - 1}
}

// Before reports whether p is strictly earlier than q.
func (p Period) Before(q Period) bool {
	if p.Year != q.Year {
		return p.Year < q.Year
	}
	return p.Month < q.Month
}

// ParsePeriod parses a "YYYY-MM" string into a Period. The year and month
// are read from fixed character offsets; trailing content (such as a day
// component) is ignored.
func ParsePeriod(s string) (Period, error) {
	if len(s) < 7 || s[4] != '-' {
		return Period{}, NewAppError(
			ErrCodeValidationInvalidPeriod,
			fmt.Sprintf("malformed period string %q", s),
			nil,
		)
	}
	year, err := strconv.Atoi(s[:4])
	if err != nil {
		return Period{}, NewAppError(
			ErrCodeValidationInvalidPeriod,
			fmt.Sprintf("malformed year in period string %q", s),
			err,
		)
	}
	month, err := strconv.Atoi(s[5:7])
	if err != nil {
		return Period{}, NewAppError(
			ErrCodeValidationInvalidPeriod,
			fmt.Sprintf("malformed month in period string %q", s),
			err,
		)
	}
	p := Period{Year: year, Month: month}
	if err := p.Validate(); err != nil {
		return Period{}, err
	}
	return p, nil
}
