package domain

import "fmt"

// ClaimDevelopmentRecord is one development period of a
// (syndicate, year of account, line of business) group.
type ClaimDevelopmentRecord struct {
	SyndicateNumber      int     `json:"syndicate_number" validate:"required,gt=0"`
	YearOfAccount        int     `json:"year_of_account" validate:"required"`
	DevelopmentPeriod    int     `json:"development_period" validate:"gte=0"`
	LineOfBusinessCode   string  `json:"line_of_business_code" validate:"required"`
	Currency             string  `json:"currency" validate:"required,iso4217"`
	GrossWrittenPremium  float64 `json:"gross_written_premium" validate:"gte=0"`
	NetWrittenPremium    float64 `json:"net_written_premium" validate:"gte=0,ltefield=GrossWrittenPremium"`
	CumulativePaidClaims float64 `json:"cumulative_paid_claims" validate:"gte=0"`
	CaseReserves         float64 `json:"case_reserves" validate:"gte=0"`
	IBNRReserve          float64 `json:"ibnr_reserve" validate:"gte=0"`
	TotalIncurred        float64 `json:"total_incurred" validate:"gte=0"`
	ClaimCount           int     `json:"claim_count" validate:"gte=0"`
	ClosedClaimCount     int     `json:"closed_claim_count" validate:"gte=0,ltefield=ClaimCount"`
}

// Key returns the record's group key.
func (r ClaimDevelopmentRecord) Key() GroupKey {
	return GroupKey{Syndicate: r.SyndicateNumber, YearOfAccount: r.YearOfAccount, LineOfBusiness: r.LineOfBusinessCode}
}

// GroupKey identifies a (syndicate, year of account, line of business) cell.
// Zero fields mean the dimension is not part of the grouping.
type GroupKey struct {
	Syndicate      int    `json:"syndicate_number,omitempty"`
	YearOfAccount  int    `json:"year_of_account,omitempty"`
	LineOfBusiness string `json:"line_of_business_code,omitempty"`
}

func (k GroupKey) String() string {
	return fmt.Sprintf("%d/%d/%s", k.Syndicate, k.YearOfAccount, k.LineOfBusiness)
}

// Less orders keys by syndicate, year of account, then line of business.
func (k GroupKey) Less(o GroupKey) bool {
	if k.Syndicate != o.Syndicate {
		return k.Syndicate < o.Syndicate
	}
	if k.YearOfAccount != o.YearOfAccount {
		return k.YearOfAccount < o.YearOfAccount
	}
	return k.LineOfBusiness < o.LineOfBusiness
}
