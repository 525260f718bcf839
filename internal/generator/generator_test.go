package generator

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wakala/reserving/internal/domain"
	"github.com/wakala/reserving/internal/scope"
)

func newTestGenerator(t *testing.T, cfg Config) *Generator {
	t.Helper()
	logger, _ := test.NewNullLogger()
	g, err := New(cfg, logger)
	require.NoError(t, err)
	return g
}

func mustResolve(t *testing.T, rt domain.ReturnType, year int, q domain.Quarter) domain.ScopeDescriptor {
	t.Helper()
	s, err := scope.Resolve(rt, year, q)
	require.NoError(t, err)
	return s
}

func TestGenerate_Reproducible(t *testing.T) {
	s := mustResolve(t, domain.ReturnAnnual, 2024, "")

	a, err := newTestGenerator(t, DefaultConfig()).Generate(context.Background(), s, 42)
	require.NoError(t, err)

	// Different worker count and configuration order must not change output.
	cfg := DefaultConfig()
	cfg.Workers = 1
	cfg.Syndicates = []int{2987, 2001, 1183, 623, 510, 33}
	b, err := newTestGenerator(t, cfg).Generate(context.Background(), s, 42)
	require.NoError(t, err)

	ja, err := json.Marshal(a)
	require.NoError(t, err)
	jb, err := json.Marshal(b)
	require.NoError(t, err)
	assert.Equal(t, string(ja), string(jb))

	c, err := newTestGenerator(t, DefaultConfig()).Generate(context.Background(), s, 43)
	require.NoError(t, err)
	jc, _ := json.Marshal(c)
	assert.NotEqual(t, string(ja), string(jc))
}

func TestGenerate_QuarterlyDevelopmentPeriods(t *testing.T) {
	s := mustResolve(t, domain.ReturnQuarterly, 2024, domain.Q2)
	cfg := Config{Syndicates: []int{2987}, LinesOfBusiness: []string{"M1"}, Currencies: []string{"GBP"}, Workers: 2}

	ds, err := newTestGenerator(t, cfg).Generate(context.Background(), s, 7)
	require.NoError(t, err)

	periods := map[int][]int{}
	for _, r := range ds.Claims {
		periods[r.YearOfAccount] = append(periods[r.YearOfAccount], r.DevelopmentPeriod)
	}
	assert.Equal(t, []int{0}, periods[2024])
	assert.Equal(t, []int{0, 1}, periods[2023])
	assert.Equal(t, []int{0, 1, 2}, periods[2022])
}

func TestGenerate_AnnualCapsAtEightPeriods(t *testing.T) {
	s := mustResolve(t, domain.ReturnAnnual, 2024, "")
	assert.Equal(t, 7, DevelopmentPeriods(s, 2018))
	assert.Equal(t, 1, DevelopmentPeriods(s, 2024))

	old := s
	old.YearsOfAccount = []int{2010}
	assert.Equal(t, 8, DevelopmentPeriods(old, 2010))
}

func TestGenerate_Invariants(t *testing.T) {
	for _, s := range []domain.ScopeDescriptor{
		mustResolve(t, domain.ReturnAnnual, 2023, ""),
		mustResolve(t, domain.ReturnQuarterly, 2024, domain.Q4),
	} {
		ds, err := newTestGenerator(t, DefaultConfig()).Generate(context.Background(), s, 2024)
		require.NoError(t, err)

		lastPaid := map[domain.GroupKey]float64{}
		lastPeriod := map[domain.GroupKey]int{}
		for _, r := range ds.Claims {
			k := r.Key()
			if prev, ok := lastPaid[k]; ok {
				assert.GreaterOrEqual(t, r.CumulativePaidClaims, prev, "paid decreased for %s", k)
				assert.Equal(t, lastPeriod[k]+1, r.DevelopmentPeriod, "gap in %s", k)
			} else {
				assert.Equal(t, 0, r.DevelopmentPeriod)
			}
			lastPaid[k] = r.CumulativePaidClaims
			lastPeriod[k] = r.DevelopmentPeriod

			assert.LessOrEqual(t, r.NetWrittenPremium, r.GrossWrittenPremium)
			assert.LessOrEqual(t, r.ClosedClaimCount, r.ClaimCount)
			assert.InDelta(t, r.CumulativePaidClaims+r.CaseReserves+r.IBNRReserve, r.TotalIncurred, 0.005)
			assert.True(t, s.InScope(r.YearOfAccount))
		}

		require.Len(t, ds.IBNRNet, len(ds.IBNRGross))
		for i, gross := range ds.IBNRGross {
			net := ds.IBNRNet[i]
			assert.Equal(t, gross.Key(), net.Key())
			assert.LessOrEqual(t, gross.IBNRLow, gross.IBNRBestEstimate)
			assert.LessOrEqual(t, gross.IBNRBestEstimate, gross.IBNRHigh)
			assert.LessOrEqual(t, net.IBNRLow, net.IBNRBestEstimate)
			assert.LessOrEqual(t, net.IBNRBestEstimate, net.IBNRHigh)
			assert.LessOrEqual(t, net.GrossWrittenPremium, gross.GrossWrittenPremium)
			assert.LessOrEqual(t, net.PaidClaimsGross, gross.PaidClaimsGross)
			assert.LessOrEqual(t, net.CaseReservesGross, gross.CaseReservesGross)
			assert.LessOrEqual(t, net.IBNRBestEstimate, gross.IBNRBestEstimate)
		}
	}
}

func TestGenerate_BaseTables(t *testing.T) {
	s := mustResolve(t, domain.ReturnQuarterly, 2024, domain.Q4)
	ds, err := newTestGenerator(t, DefaultConfig()).Generate(context.Background(), s, 1)
	require.NoError(t, err)

	require.Len(t, ds.Control, len(DefaultConfig().Syndicates))
	for _, c := range ds.Control {
		assert.True(t, c.CapacityAmount.IsPositive())
		assert.LessOrEqual(t, c.FirstYearOfAccount, c.FinalYearOfAccount)
		assert.Equal(t, "Q4", c.ReportingQuarter)
		assert.Equal(t, "2024-12-31", c.AsOfDate)
	}

	assert.Len(t, ds.ExchangeRates, len(DefaultConfig().Currencies))
	assert.Len(t, ds.FormManifest, len(s.RequiredForms))
	for _, sub := range ds.FormManifest {
		if sub.Table == domain.TableClaims {
			assert.Equal(t, len(ds.Claims), sub.RowCount)
		}
	}
}

func TestGenerate_CancelledContext(t *testing.T) {
	s := mustResolve(t, domain.ReturnAnnual, 2024, "")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestGenerator(t, DefaultConfig()).Generate(ctx, s, 1)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNew_RejectsBadConfig(t *testing.T) {
	_, err := New(Config{LinesOfBusiness: []string{"M1"}}, logrus.New())
	assert.Error(t, err)

	_, err = New(Config{Syndicates: []int{1}, LinesOfBusiness: []string{"M1"}, Currencies: []string{"KES"}}, logrus.New())
	assert.Error(t, err)
}

func TestCompletionRatio(t *testing.T) {
	assert.InDelta(t, 0.2, CompletionRatio(0), 1e-9)
	assert.InDelta(t, 0.65, CompletionRatio(3), 1e-9)
	assert.Equal(t, 1.0, CompletionRatio(6))
	assert.Equal(t, 1.0, CompletionRatio(9))
}
