package domain

type Basis string

const (
	BasisGross Basis = "gross"
	BasisNet   Basis = "net"
)

// IBNREstimateRecord is one RRx291 (gross) or RRx292 (net) row. Both bases
// are keyed identically so a net row can be paired with its gross row.
type IBNREstimateRecord struct {
	SyndicateNumber     int     `json:"syndicate_number" validate:"required,gt=0"`
	YearOfAccount       int     `json:"year_of_account" validate:"required"`
	LineOfBusinessCode  string  `json:"line_of_business_code" validate:"required"`
	Basis               Basis   `json:"basis" validate:"required,oneof=gross net"`
	GrossWrittenPremium float64 `json:"gross_written_premium" validate:"gte=0"`
	GrossEarnedPremium  float64 `json:"gross_earned_premium" validate:"gte=0"`
	PaidClaimsGross     float64 `json:"paid_claims_gross" validate:"gte=0"`
	CaseReservesGross   float64 `json:"case_reserves_gross" validate:"gte=0"`
	IBNRLow             float64 `json:"ibnr_low" validate:"gte=0,ltefield=IBNRBestEstimate"`
	IBNRBestEstimate    float64 `json:"ibnr_best_estimate" validate:"gte=0"`
	IBNRHigh            float64 `json:"ibnr_high" validate:"gtefield=IBNRBestEstimate"`
	UltimateLossRatio   float64 `json:"ultimate_loss_ratio" validate:"gte=0"`
}

// Key returns the record's group key.
func (r IBNREstimateRecord) Key() GroupKey {
	return GroupKey{Syndicate: r.SyndicateNumber, YearOfAccount: r.YearOfAccount, LineOfBusiness: r.LineOfBusinessCode}
}

// TotalIncurred is paid plus case reserves plus the IBNR best estimate.
func (r IBNREstimateRecord) TotalIncurred() float64 {
	return r.PaidClaimsGross + r.CaseReservesGross + r.IBNRBestEstimate
}

type UncertaintyLevel string

const (
	UncertaintyLow      UncertaintyLevel = "Low"
	UncertaintyModerate UncertaintyLevel = "Moderate"
	UncertaintyHigh     UncertaintyLevel = "High"
	UncertaintyVeryHigh UncertaintyLevel = "VeryHigh"
)

// AnnotatedIBNREstimate adds range and loss-ratio analytics to an estimate.
// LossRatio is only meaningful when LossRatioDefined is true; a zero earned
// premium leaves it undefined.
type AnnotatedIBNREstimate struct {
	IBNREstimateRecord
	IBNRRange        float64          `json:"ibnr_range"`
	IBNRRangePct     float64          `json:"ibnr_range_pct"`
	UncertaintyLevel UncertaintyLevel `json:"uncertainty_level"`
	LossRatio        float64          `json:"loss_ratio"`
	LossRatioDefined bool             `json:"loss_ratio_defined"`
}

// IBNRSummary rolls annotated estimates up by year of account or line of
// business. Mean figures are nil when no record could contribute.
type IBNRSummary struct {
	GroupBy             string   `json:"group_by"`
	Group               string   `json:"group"`
	Method              string   `json:"method"`
	RecordCount         int      `json:"record_count"`
	DegenerateCount     int      `json:"degenerate_count"`
	GrossWrittenPremium float64  `json:"gross_written_premium"`
	GrossEarnedPremium  float64  `json:"gross_earned_premium"`
	IBNRLow             float64  `json:"ibnr_low"`
	IBNRBestEstimate    float64  `json:"ibnr_best_estimate"`
	IBNRHigh            float64  `json:"ibnr_high"`
	MeanLossRatio       *float64 `json:"mean_loss_ratio"`
	MeanRangePct        *float64 `json:"mean_range_pct"`
}
