package domain

import "github.com/shopspring/decimal"

// ExchangeRateRecord is one RRx020 row: units of Currency per 1 GBP.
type ExchangeRateRecord struct {
	Currency   string          `json:"currency" validate:"required,iso4217"`
	RatePerGBP decimal.Decimal `json:"rate_per_gbp" validate:"gt=0"`
	AsOfDate   string          `json:"as_of_date" validate:"required,datetime=2006-01-02"`
	RateSource string          `json:"rate_source"`
}
