package domain

// TableName identifies one table of a reserving dataset.
type TableName string

const (
	TableControl       TableName = "CONTROL"
	TableExchangeRates TableName = "EXCHANGE_RATES"
	TableClaims        TableName = "CLAIMS_DEVELOPMENT"
	TableIBNRGross     TableName = "IBNR_GROSS"
	TableIBNRNet       TableName = "IBNR_NET"
	TableFormManifest  TableName = "FORM_MANIFEST"
	TableFactors       TableName = "DEVELOPMENT_FACTORS"
	TableIBNRAnalysis  TableName = "IBNR_ANALYSIS"
)

// Dataset is the family of tables for one return. A nil slice means the
// table was not supplied; an empty non-nil slice is a present, empty table.
type Dataset struct {
	Scope         *ScopeDescriptor         `json:"scope,omitempty"`
	Control       []ControlRecord          `json:"control"`
	ExchangeRates []ExchangeRateRecord     `json:"exchange_rates"`
	Claims        []ClaimDevelopmentRecord `json:"claims_development"`
	IBNRGross     []IBNREstimateRecord     `json:"ibnr_gross"`
	IBNRNet       []IBNREstimateRecord     `json:"ibnr_net"`
	FormManifest  []FormSubmission         `json:"form_manifest"`

	// Derived tables, attached by the analysis pipeline.
	PaidFactors     []DevelopmentFactor     `json:"paid_factors"`
	IncurredFactors []DevelopmentFactor     `json:"incurred_factors"`
	IBNRAnalysis    []AnnotatedIBNREstimate `json:"ibnr_analysis"`
}

// Has reports whether the named table was supplied.
func (d *Dataset) Has(name TableName) bool {
	switch name {
	case TableControl:
		return d.Control != nil
	case TableExchangeRates:
		return d.ExchangeRates != nil
	case TableClaims:
		return d.Claims != nil
	case TableIBNRGross:
		return d.IBNRGross != nil
	case TableIBNRNet:
		return d.IBNRNet != nil
	case TableFormManifest:
		return d.FormManifest != nil
	case TableFactors:
		return d.PaidFactors != nil || d.IncurredFactors != nil
	case TableIBNRAnalysis:
		return d.IBNRAnalysis != nil
	}
	return false
}

// RowCount returns the number of rows in the named table.
func (d *Dataset) RowCount(name TableName) int {
	switch name {
	case TableControl:
		return len(d.Control)
	case TableExchangeRates:
		return len(d.ExchangeRates)
	case TableClaims:
		return len(d.Claims)
	case TableIBNRGross:
		return len(d.IBNRGross)
	case TableIBNRNet:
		return len(d.IBNRNet)
	case TableFormManifest:
		return len(d.FormManifest)
	case TableFactors:
		return len(d.PaidFactors) + len(d.IncurredFactors)
	case TableIBNRAnalysis:
		return len(d.IBNRAnalysis)
	}
	return 0
}

// Clone returns a shallow copy whose table slices can be replaced without
// touching the original.
func (d *Dataset) Clone() *Dataset {
	c := *d
	return &c
}
