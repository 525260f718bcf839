package domain

import "github.com/shopspring/decimal"

type ReturnStatus string

const (
	StatusDraft     ReturnStatus = "Draft"
	StatusSubmitted ReturnStatus = "Submitted"
	StatusApproved  ReturnStatus = "Approved"
)

// ControlRecord is the RRx010 row for one syndicate.
type ControlRecord struct {
	SyndicateNumber    int             `json:"syndicate_number" validate:"required,gt=0"`
	ReturnType         ReturnType      `json:"return_type" validate:"required,oneof=RRA RRQ"`
	ReportingQuarter   string          `json:"reporting_quarter" validate:"required,oneof=Q1 Q2 Q3 Q4 N/A"`
	Status             ReturnStatus    `json:"status" validate:"required,oneof=Draft Submitted Approved"`
	CapacityAmount     decimal.Decimal `json:"capacity_amount" validate:"gt=0"`
	FirstYearOfAccount int             `json:"first_year_of_account" validate:"required,ltefield=FinalYearOfAccount"`
	FinalYearOfAccount int             `json:"final_year_of_account" validate:"required"`
	ContactName        string          `json:"contact_name"`
	ContactEmail       string          `json:"contact_email" validate:"omitempty,email"`
	AsOfDate           string          `json:"as_of_date" validate:"required,datetime=2006-01-02"`
}
