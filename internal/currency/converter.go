package currency

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

// Base is the reporting currency of every return.
const Base = "GBP"

// ratesPerGBP maps settlement currency codes to units per 1 GBP.
// These are approximate 2024 year-end rates.
var ratesPerGBP = map[string]decimal.Decimal{
	"GBP": decimal.NewFromInt(1),
	"USD": decimal.RequireFromString("1.2529"),
	"EUR": decimal.RequireFromString("1.2096"),
	"CAD": decimal.RequireFromString("1.8014"),
	"AUD": decimal.RequireFromString("2.0234"),
	"JPY": decimal.RequireFromString("196.84"),
}

// ToGBP converts a local currency amount to GBP.
func ToGBP(amount decimal.Decimal, currency string) (decimal.Decimal, error) {
	rate, err := Rate(currency)
	if err != nil {
		return decimal.Zero, err
	}
	return amount.Div(rate), nil
}

// FromGBP converts a GBP amount to local currency.
func FromGBP(gbpAmount decimal.Decimal, currency string) (decimal.Decimal, error) {
	rate, err := Rate(currency)
	if err != nil {
		return decimal.Zero, err
	}
	return gbpAmount.Mul(rate), nil
}

// Rate returns the exchange rate for a given currency (units per 1 GBP).
func Rate(currency string) (decimal.Decimal, error) {
	rate, ok := ratesPerGBP[currency]
	if !ok {
		return decimal.Zero, fmt.Errorf("unsupported currency: %s", currency)
	}
	return rate, nil
}

// Supported returns the supported currency codes in sorted order.
func Supported() []string {
	codes := make([]string, 0, len(ratesPerGBP))
	for c := range ratesPerGBP {
		codes = append(codes, c)
	}
	sort.Strings(codes)
	return codes
}
