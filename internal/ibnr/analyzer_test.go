package ibnr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wakala/reserving/internal/domain"
)

func estimate(yoa int, lob string, earned, paid, cases, low, best, high float64) domain.IBNREstimateRecord {
	return domain.IBNREstimateRecord{
		SyndicateNumber:     2987,
		YearOfAccount:       yoa,
		LineOfBusinessCode:  lob,
		Basis:               domain.BasisGross,
		GrossWrittenPremium: earned,
		GrossEarnedPremium:  earned,
		PaidClaimsGross:     paid,
		CaseReservesGross:   cases,
		IBNRLow:             low,
		IBNRBestEstimate:    best,
		IBNRHigh:            high,
	}
}

func TestAnalyze(t *testing.T) {
	records := []domain.IBNREstimateRecord{
		estimate(2022, "M1", 1000, 300, 100, 90, 100, 110),
		estimate(2023, "M1", 0, 10, 0, 0, 0, 0),
	}

	got := Analyze(records)
	require.Len(t, got, 2)

	a := got[0]
	assert.InDelta(t, 20.0, a.IBNRRange, 1e-9)
	assert.InDelta(t, 0.2, a.IBNRRangePct, 1e-9)
	assert.Equal(t, domain.UncertaintyModerate, a.UncertaintyLevel)
	assert.True(t, a.LossRatioDefined)
	assert.InDelta(t, 0.5, a.LossRatio, 1e-9)
	assert.Equal(t, records[0], a.IBNREstimateRecord)

	b := got[1]
	assert.Equal(t, 0.0, b.IBNRRangePct)
	assert.Equal(t, domain.UncertaintyLow, b.UncertaintyLevel)
	assert.False(t, b.LossRatioDefined, "zero earned premium leaves the loss ratio undefined")
	assert.Equal(t, 0.0, b.LossRatio)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		pct  float64
		want domain.UncertaintyLevel
	}{
		{0, domain.UncertaintyLow},
		{0.19, domain.UncertaintyLow},
		{0.2, domain.UncertaintyModerate},
		{0.39, domain.UncertaintyModerate},
		{0.4, domain.UncertaintyHigh},
		{0.59, domain.UncertaintyHigh},
		{0.6, domain.UncertaintyVeryHigh},
		{2.5, domain.UncertaintyVeryHigh},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Classify(tt.pct), "pct %.2f", tt.pct)
	}
}

func TestAggregate_Methods(t *testing.T) {
	annotated := Analyze([]domain.IBNREstimateRecord{
		estimate(2022, "M1", 1000, 400, 100, 50, 100, 150), // LR 0.6, range pct 1.0
		estimate(2022, "P1", 3000, 600, 300, 80, 100, 120), // LR 0.3333, range pct 0.4
		estimate(2023, "M1", 0, 10, 0, 0, 0, 0),            // degenerate
	})

	simple, err := Aggregate(annotated, ByYearOfAccount, Simple)
	require.NoError(t, err)
	require.Len(t, simple, 2)

	y22 := simple[0]
	assert.Equal(t, "2022", y22.Group)
	assert.Equal(t, 2, y22.RecordCount)
	assert.Equal(t, 0, y22.DegenerateCount)
	assert.InDelta(t, (0.6+1.0/3.0)/2, *y22.MeanLossRatio, 1e-9)
	assert.InDelta(t, 0.7, *y22.MeanRangePct, 1e-9)
	assert.InDelta(t, 200.0, y22.IBNRBestEstimate, 1e-9)

	y23 := simple[1]
	assert.Equal(t, 1, y23.DegenerateCount)
	assert.Nil(t, y23.MeanLossRatio)
	assert.Nil(t, y23.MeanRangePct)

	weighted, err := Aggregate(annotated, ByYearOfAccount, PremiumWeighted)
	require.NoError(t, err)
	assert.InDelta(t, (1000*0.6+3000*(1.0/3.0))/4000, *weighted[0].MeanLossRatio, 1e-9)
	assert.InDelta(t, (1000*1.0+3000*0.4)/4000, *weighted[0].MeanRangePct, 1e-9)
	assert.Equal(t, "premium_weighted", weighted[0].Method)
}

func TestAggregate_ByLineOfBusiness(t *testing.T) {
	annotated := Analyze([]domain.IBNREstimateRecord{
		estimate(2022, "P1", 1000, 400, 100, 50, 100, 150),
		estimate(2022, "M1", 1000, 400, 100, 50, 100, 150),
		estimate(2023, "M1", 1000, 400, 100, 50, 100, 150),
	})
	got, err := Aggregate(annotated, ByLineOfBusiness, Simple)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "M1", got[0].Group)
	assert.Equal(t, 2, got[0].RecordCount)
	assert.Equal(t, "P1", got[1].Group)
}

func TestAggregate_RejectsUnknownOptions(t *testing.T) {
	_, err := Aggregate(nil, "currency", Simple)
	assert.Error(t, err)
	_, err = Aggregate(nil, ByYearOfAccount, "median")
	assert.Error(t, err)

	by, err := ParseGroupBy("lob")
	require.NoError(t, err)
	assert.Equal(t, ByLineOfBusiness, by)
	m, err := ParseMethod("weighted")
	require.NoError(t, err)
	assert.Equal(t, PremiumWeighted, m)
}
