package triangle

import (
	"math"
	"sort"

	"github.com/wakala/reserving/internal/domain"
)

// ComputeFactors returns one age-to-age factor per development period from 1
// to the triangle's maximum period. A ratio value(d)/value(d-1) is sampled
// only when period d exists in the row and value(d-1) > 0; other ratios are
// undefined and left out, never counted as 0 or 1.
func ComputeFactors(t Triangle) []domain.DevelopmentFactor {
	maxP := t.MaxPeriod()
	if maxP < 1 {
		return []domain.DevelopmentFactor{}
	}

	samples := make([][]float64, maxP+1)
	priorSum := make([]float64, maxP+1)
	currSum := make([]float64, maxP+1)
	for _, row := range t.Rows {
		for d := 1; d < len(row.Points); d++ {
			prev := row.Points[d-1].Value
			if prev <= 0 || !row.Points[d].Observed {
				continue
			}
			curr := row.Points[d].Value
			samples[d] = append(samples[d], curr/prev)
			priorSum[d] += prev
			currSum[d] += curr
		}
	}

	factors := make([]domain.DevelopmentFactor, 0, maxP)
	for d := 1; d <= maxP; d++ {
		f := domain.DevelopmentFactor{DevelopmentPeriod: d, Metric: t.Metric, SampleSize: len(samples[d])}
		if f.SampleSize > 0 {
			mean, stddev := meanStdDev(samples[d])
			median := median(samples[d])
			weighted := currSum[d] / priorSum[d]
			f.FactorMean = &mean
			f.FactorMedian = &median
			f.FactorStdDev = &stddev
			f.WeightedFactor = &weighted
		}
		factors = append(factors, f)
	}
	return factors
}

// Projection is the chain-ladder projection of one triangle row.
type Projection struct {
	Key          domain.GroupKey `json:"key"`
	LatestPeriod int             `json:"latest_period"`
	Latest       float64         `json:"latest"`
	// CumulativeFactor and Ultimate are nil when a factor needed beyond
	// LatestPeriod has no samples.
	CumulativeFactor *float64 `json:"cumulative_factor"`
	Ultimate         *float64 `json:"ultimate"`
}

// Project rolls each row forward to the last period covered by factors using
// the mean factor of every later period.
func Project(t Triangle, factors []domain.DevelopmentFactor) []Projection {
	byPeriod := make(map[int]domain.DevelopmentFactor, len(factors))
	maxP := 0
	for _, f := range factors {
		byPeriod[f.DevelopmentPeriod] = f
		if f.DevelopmentPeriod > maxP {
			maxP = f.DevelopmentPeriod
		}
	}

	out := make([]Projection, 0, len(t.Rows))
	for _, row := range t.Rows {
		latest := row.Latest()
		p := Projection{Key: row.Key, LatestPeriod: latest.Period, Latest: latest.Value}

		cdf := 1.0
		defined := true
		for d := latest.Period + 1; d <= maxP; d++ {
			f, ok := byPeriod[d]
			if !ok || f.Insufficient() {
				defined = false
				break
			}
			cdf *= *f.FactorMean
		}
		if defined {
			ultimate := latest.Value * cdf
			p.CumulativeFactor = &cdf
			p.Ultimate = &ultimate
		}
		out = append(out, p)
	}
	return out
}

// --- helpers ---

// meanStdDev returns the mean and population standard deviation.
func meanStdDev(xs []float64) (float64, float64) {
	var sum float64
	for _, x := range xs {
		sum += x
	}
	mean := sum / float64(len(xs))

	var sq float64
	for _, x := range xs {
		sq += (x - mean) * (x - mean)
	}
	return mean, math.Sqrt(sq / float64(len(xs)))
}

func median(xs []float64) float64 {
	s := append([]float64(nil), xs...)
	sort.Float64s(s)
	n := len(s)
	if n%2 == 1 {
		return s[n/2]
	}
	return (s[n/2-1] + s[n/2]) / 2
}
