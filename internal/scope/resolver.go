// Package scope resolves which years of account and return forms apply to a
// reserving return.
package scope

import (
	"fmt"
	"strings"
	"time"

	"github.com/wakala/reserving/internal/domain"
)

// AnnualHistoryYears is the width of the annual year-of-account window.
const AnnualHistoryYears = 7

// QuarterlyHistoryYears is the width of the quarterly year-of-account window.
const QuarterlyHistoryYears = 3

// Resolve returns the scope of a return. A quarter must be supplied for a
// quarterly return and must be empty for an annual one.
func Resolve(rt domain.ReturnType, year int, quarter domain.Quarter) (domain.ScopeDescriptor, error) {
	if year <= 0 {
		return domain.ScopeDescriptor{}, fmt.Errorf("%w: year %d must be positive", domain.ErrInvalidScopeConfiguration, year)
	}

	switch rt {
	case domain.ReturnAnnual:
		if quarter != "" {
			return domain.ScopeDescriptor{}, fmt.Errorf("%w: quarter %q given for annual return", domain.ErrInvalidScopeConfiguration, quarter)
		}
		return domain.ScopeDescriptor{
			ReturnType:     rt,
			Year:           year,
			AsOfDate:       time.Date(year, time.December, 31, 0, 0, 0, 0, time.UTC),
			YearsOfAccount: yearRange(year-AnnualHistoryYears+1, year),
			RequiredForms:  formIDs(domain.AnnualForms()),
		}, nil

	case domain.ReturnQuarterly:
		if quarter == "" {
			return domain.ScopeDescriptor{}, fmt.Errorf("%w: quarter required for quarterly return", domain.ErrInvalidScopeConfiguration)
		}
		n := quarter.Number()
		if n == 0 {
			return domain.ScopeDescriptor{}, fmt.Errorf("%w: unknown quarter %q", domain.ErrInvalidScopeConfiguration, quarter)
		}
		forms := domain.QuarterlyBaseForms()
		if quarter == domain.Q4 {
			forms = append(forms, domain.QuarterlyQ4Forms()...)
		}
		return domain.ScopeDescriptor{
			ReturnType:     rt,
			Year:           year,
			Quarter:        quarter,
			AsOfDate:       quarterEnd(year, n),
			YearsOfAccount: yearRange(year-QuarterlyHistoryYears+1, year),
			RequiredForms:  formIDs(forms),
		}, nil
	}

	return domain.ScopeDescriptor{}, fmt.Errorf("%w: unknown return type %q", domain.ErrInvalidScopeConfiguration, rt)
}

// ParseReturnType accepts "RRA"/"RRQ" or "annual"/"quarterly" in any case.
func ParseReturnType(s string) (domain.ReturnType, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "RRA", "ANNUAL":
		return domain.ReturnAnnual, nil
	case "RRQ", "QUARTERLY":
		return domain.ReturnQuarterly, nil
	}
	return "", fmt.Errorf("%w: unknown return type %q", domain.ErrInvalidScopeConfiguration, s)
}

// ParseQuarter accepts "Q1".."Q4" or "1".."4"; an empty string is no quarter.
func ParseQuarter(s string) (domain.Quarter, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" || s == domain.QuarterNotApplicable {
		return "", nil
	}
	if !strings.HasPrefix(s, "Q") {
		s = "Q" + s
	}
	q := domain.Quarter(s)
	if q.Number() == 0 {
		return "", fmt.Errorf("%w: unknown quarter %q", domain.ErrInvalidScopeConfiguration, s)
	}
	return q, nil
}

// quarterEnd returns the last calendar day of quarter n of year.
func quarterEnd(year, n int) time.Time {
	firstOfNext := time.Date(year, time.Month(3*n+1), 1, 0, 0, 0, 0, time.UTC)
	return firstOfNext.AddDate(0, 0, -1)
}

func yearRange(from, to int) []int {
	years := make([]int, 0, to-from+1)
	for y := from; y <= to; y++ {
		years = append(years, y)
	}
	return years
}

func formIDs(forms []domain.Form) []domain.FormID {
	ids := make([]domain.FormID, len(forms))
	for i, f := range forms {
		ids[i] = f.ID
	}
	return ids
}
