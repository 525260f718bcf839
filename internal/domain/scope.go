package domain

import (
	"errors"
	"time"
)

// ErrInvalidScopeConfiguration is returned when a return type, year and
// quarter combination cannot describe a reserving return.
var ErrInvalidScopeConfiguration = errors.New("invalid scope configuration")

type ReturnType string

const (
	ReturnAnnual    ReturnType = "RRA"
	ReturnQuarterly ReturnType = "RRQ"
)

type Quarter string

const (
	Q1 Quarter = "Q1"
	Q2 Quarter = "Q2"
	Q3 Quarter = "Q3"
	Q4 Quarter = "Q4"
)

// Number returns 1..4, or 0 for an unknown quarter.
func (q Quarter) Number() int {
	switch q {
	case Q1:
		return 1
	case Q2:
		return 2
	case Q3:
		return 3
	case Q4:
		return 4
	}
	return 0
}

// QuarterNotApplicable is the reporting_quarter value for annual returns.
const QuarterNotApplicable = "N/A"

// DateLayout is the ISO date format used by every contracted date column.
const DateLayout = "2006-01-02"

// ScopeDescriptor is the resolved scope of one reserving return run. It is
// computed once and never modified by downstream components.
type ScopeDescriptor struct {
	ReturnType     ReturnType `json:"return_type" yaml:"return_type"`
	Year           int        `json:"year" yaml:"year"`
	Quarter        Quarter    `json:"quarter,omitempty" yaml:"quarter,omitempty"`
	AsOfDate       time.Time  `json:"as_of_date" yaml:"as_of_date"`
	YearsOfAccount []int      `json:"years_of_account" yaml:"years_of_account"`
	RequiredForms  []FormID   `json:"required_forms" yaml:"required_forms"`
}

// ReportingQuarter returns the quarter column value, "N/A" for annual scope.
func (s ScopeDescriptor) ReportingQuarter() string {
	if s.Quarter == "" {
		return QuarterNotApplicable
	}
	return string(s.Quarter)
}

// AsOfDateString formats the as-of date as an ISO date.
func (s ScopeDescriptor) AsOfDateString() string {
	return s.AsOfDate.Format(DateLayout)
}

// DevelopmentCap is the maximum number of development periods generated per
// year of account for this return type.
func (s ScopeDescriptor) DevelopmentCap() int {
	if s.ReturnType == ReturnQuarterly {
		return 3
	}
	return 8
}

// InScope reports whether yoa falls inside the scope window.
func (s ScopeDescriptor) InScope(yoa int) bool {
	if len(s.YearsOfAccount) == 0 {
		return false
	}
	return yoa >= s.YearsOfAccount[0] && yoa <= s.YearsOfAccount[len(s.YearsOfAccount)-1]
}

// RequiresForm reports whether id is one of the scope's required forms.
func (s ScopeDescriptor) RequiresForm(id FormID) bool {
	for _, f := range s.RequiredForms {
		if f == id {
			return true
		}
	}
	return false
}
