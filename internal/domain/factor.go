package domain

type Metric string

const (
	MetricPaid     Metric = "paid"
	MetricIncurred Metric = "incurred"
)

// DevelopmentFactor summarises the age-to-age ratios observed at one
// development period. With SampleSize 0 every statistic is nil: the period
// has insufficient data and must not be read as a factor of 1.0.
type DevelopmentFactor struct {
	DevelopmentPeriod int      `json:"development_period"`
	Metric            Metric   `json:"metric"`
	FactorMean        *float64 `json:"factor_mean"`
	FactorMedian      *float64 `json:"factor_median"`
	FactorStdDev      *float64 `json:"factor_stddev"`
	WeightedFactor    *float64 `json:"weighted_factor"`
	SampleSize        int      `json:"sample_size"`
}

// Insufficient reports whether no group contributed a ratio.
func (f DevelopmentFactor) Insufficient() bool {
	return f.SampleSize == 0
}
