package repository

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wakala/reserving/internal/domain"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := InitDB(filepath.Join(t.TempDir(), "reserving.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func testDataset() *domain.Dataset {
	mean, median, stddev, weighted := 1.5, 1.4, 0.1, 1.45
	return &domain.Dataset{
		Scope: &domain.ScopeDescriptor{
			ReturnType:     domain.ReturnQuarterly,
			Year:           2024,
			Quarter:        domain.Q2,
			AsOfDate:       time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC),
			YearsOfAccount: []int{2022, 2023, 2024},
			RequiredForms:  []domain.FormID{"RRQ010", "RRQ020"},
		},
		Control: []domain.ControlRecord{{
			SyndicateNumber: 2987, ReturnType: domain.ReturnQuarterly, ReportingQuarter: "Q2",
			Status: domain.StatusSubmitted, CapacityAmount: decimal.RequireFromString("125000000.50"),
			FirstYearOfAccount: 2019, FinalYearOfAccount: 2024,
			ContactName: "Chief Actuary", ContactEmail: "reserving@example.com", AsOfDate: "2024-06-30",
		}},
		ExchangeRates: []domain.ExchangeRateRecord{
			{Currency: "USD", RatePerGBP: decimal.RequireFromString("1.2529"), AsOfDate: "2024-06-30", RateSource: "synthetic"},
		},
		Claims: []domain.ClaimDevelopmentRecord{
			{
				SyndicateNumber: 2987, YearOfAccount: 2023, DevelopmentPeriod: 0, LineOfBusinessCode: "M1",
				Currency: "USD", GrossWrittenPremium: 1000.25, NetWrittenPremium: 800,
				CumulativePaidClaims: 100, CaseReserves: 50, IBNRReserve: 30, TotalIncurred: 180,
				ClaimCount: 10, ClosedClaimCount: 2,
			},
			{
				SyndicateNumber: 2987, YearOfAccount: 2023, DevelopmentPeriod: 1, LineOfBusinessCode: "M1",
				Currency: "USD", GrossWrittenPremium: 1000.25, NetWrittenPremium: 800,
				CumulativePaidClaims: 150, CaseReserves: 30, IBNRReserve: 20, TotalIncurred: 200,
				ClaimCount: 10, ClosedClaimCount: 5,
			},
		},
		IBNRGross: []domain.IBNREstimateRecord{{
			SyndicateNumber: 2987, YearOfAccount: 2023, LineOfBusinessCode: "M1", Basis: domain.BasisGross,
			GrossWrittenPremium: 1000, GrossEarnedPremium: 500, PaidClaimsGross: 150, CaseReservesGross: 30,
			IBNRLow: 80, IBNRBestEstimate: 100, IBNRHigh: 120, UltimateLossRatio: 0.28,
		}},
		// present but empty
		IBNRNet: []domain.IBNREstimateRecord{},
		FormManifest: []domain.FormSubmission{
			{FormID: "RRQ010", Title: "Control", Table: domain.TableControl, RowCount: 1},
			{FormID: "RRQ990", Title: "Validation summary"},
		},
		PaidFactors: []domain.DevelopmentFactor{
			{DevelopmentPeriod: 1, Metric: domain.MetricPaid, FactorMean: &mean, FactorMedian: &median,
				FactorStdDev: &stddev, WeightedFactor: &weighted, SampleSize: 3},
			{DevelopmentPeriod: 2, Metric: domain.MetricPaid},
		},
		IncurredFactors: []domain.DevelopmentFactor{},
	}
}

func testFindings() []domain.ValidationFinding {
	return []domain.ValidationFinding{
		{RuleID: "NET_LE_GROSS_PREM", Description: "net <= gross", Status: domain.FindingFail, Severity: domain.SeverityCritical, RecordsAffected: 2, Details: "2 record(s)"},
		{RuleID: "TABLE_PRESENT_CONTROL", Description: "control", Status: domain.FindingPass, Severity: domain.SeverityCritical},
		{RuleID: "IBNR_RANGE", Description: "range", Status: domain.FindingFail, Severity: domain.SeverityHigh, RecordsAffected: 1},
		{RuleID: "DEV_FACTOR_SAMPLES", Description: "samples", Status: domain.FindingSkipped, Severity: domain.SeverityLow},
	}
}

func testRun(id string, created time.Time) domain.Run {
	seed := int64(42)
	return domain.Run{
		ID: id, Source: domain.SourceGenerated, ReturnType: domain.ReturnQuarterly, Year: 2024,
		Quarter: "Q2", AsOfDate: "2024-06-30", Seed: &seed, FailCount: 2, CreatedAt: created,
	}
}

func TestRunRepo_SaveAndLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := NewRunRepo(openTestDB(t))

	created := time.Date(2024, 7, 1, 9, 30, 0, 123, time.UTC)
	run := testRun("run-1", created)
	ds := testDataset()
	require.NoError(t, repo.SaveRun(ctx, run, ds, testFindings()))

	got, err := repo.Get(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, run.ID, got.ID)
	assert.Equal(t, domain.ReturnQuarterly, got.ReturnType)
	assert.Equal(t, int64(42), *got.Seed)
	assert.True(t, created.Equal(got.CreatedAt))
	assert.False(t, got.Passed)

	loaded, err := repo.LoadDataset(ctx, "run-1")
	require.NoError(t, err)

	assert.Equal(t, ds.Scope.YearsOfAccount, loaded.Scope.YearsOfAccount)
	assert.True(t, ds.Scope.AsOfDate.Equal(loaded.Scope.AsOfDate))
	assert.Equal(t, ds.Claims, loaded.Claims)
	assert.Equal(t, ds.IBNRGross, loaded.IBNRGross)
	assert.Equal(t, ds.FormManifest, loaded.FormManifest)
	assert.Equal(t, ds.PaidFactors, loaded.PaidFactors)
	require.Len(t, loaded.Control, 1)
	assert.True(t, ds.Control[0].CapacityAmount.Equal(loaded.Control[0].CapacityAmount))
	assert.Equal(t, "reserving@example.com", loaded.Control[0].ContactEmail)
	require.Len(t, loaded.ExchangeRates, 1)
	assert.Equal(t, "1.2529", loaded.ExchangeRates[0].RatePerGBP.String())

	// present-but-empty stays distinguishable from absent
	assert.NotNil(t, loaded.IBNRNet)
	assert.Empty(t, loaded.IBNRNet)
	assert.True(t, loaded.Has(domain.TableIBNRNet))
	assert.NotNil(t, loaded.IncurredFactors)
	assert.Nil(t, loaded.IBNRAnalysis)
}

func TestRunRepo_AbsentTablesStayNil(t *testing.T) {
	ctx := context.Background()
	repo := NewRunRepo(openTestDB(t))

	run := domain.Run{ID: "partial", Source: "upload.csv", CreatedAt: time.Now()}
	ds := &domain.Dataset{Claims: testDataset().Claims}
	require.NoError(t, repo.SaveRun(ctx, run, ds, nil))

	loaded, err := repo.LoadDataset(ctx, "partial")
	require.NoError(t, err)
	assert.Nil(t, loaded.Scope)
	assert.Nil(t, loaded.Control)
	assert.Nil(t, loaded.IBNRGross)
	assert.Nil(t, loaded.PaidFactors)
	assert.Len(t, loaded.Claims, 2)

	got, err := repo.Get(ctx, "partial")
	require.NoError(t, err)
	assert.Nil(t, got.Seed)
}

func TestRunRepo_NotFound(t *testing.T) {
	ctx := context.Background()
	repo := NewRunRepo(openTestDB(t))

	_, err := repo.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = repo.LoadDataset(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRunRepo_SaveIsAtomic(t *testing.T) {
	ctx := context.Background()
	repo := NewRunRepo(openTestDB(t))

	require.NoError(t, repo.SaveRun(ctx, testRun("dup", time.Now()), testDataset(), testFindings()))
	// a second save with the same id fails and leaves nothing half-written
	err := repo.SaveRun(ctx, testRun("dup", time.Now()), testDataset(), testFindings())
	assert.Error(t, err)

	count, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	loaded, err := repo.LoadDataset(ctx, "dup")
	require.NoError(t, err)
	assert.Len(t, loaded.Claims, 2)
}

func TestRunRepo_List(t *testing.T) {
	ctx := context.Background()
	repo := NewRunRepo(openTestDB(t))

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		run := testRun(id, base.Add(time.Duration(i)*time.Hour))
		if id == "c" {
			run.ReturnType = domain.ReturnAnnual
			run.Quarter = domain.QuarterNotApplicable
		}
		require.NoError(t, repo.SaveRun(ctx, run, &domain.Dataset{}, nil))
	}

	runs, total, err := repo.List(ctx, RunFilter{})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, runs, 3)
	assert.Equal(t, "c", runs[0].ID, "newest first")

	runs, total, err = repo.List(ctx, RunFilter{ReturnType: "RRQ", Limit: 1, Page: 2})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	require.Len(t, runs, 1)
	assert.Equal(t, "a", runs[0].ID)
}

func TestFindingRepo_ListAndSummary(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	require.NoError(t, NewRunRepo(db).SaveRun(ctx, testRun("run-1", time.Now()), testDataset(), testFindings()))
	repo := NewFindingRepo(db)

	all, err := repo.List(ctx, "run-1", FindingFilter{})
	require.NoError(t, err)
	assert.Equal(t, testFindings(), all, "stored order and content survive")

	fails, err := repo.List(ctx, "run-1", FindingFilter{Status: "fail"})
	require.NoError(t, err)
	require.Len(t, fails, 2)
	assert.Equal(t, "NET_LE_GROSS_PREM", fails[0].RuleID)

	high, err := repo.List(ctx, "run-1", FindingFilter{Severity: "High"})
	require.NoError(t, err)
	require.Len(t, high, 1)

	s, err := repo.GetSummary(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, 4, s.TotalCount)
	assert.Equal(t, 3, s.TotalRecordsAffected)
	assert.Equal(t, 2, s.ByStatus["FAIL"])
	assert.Equal(t, 2, s.BySeverity["Critical"])
	assert.Equal(t, map[string]int{"Critical": 1, "High": 1}, s.FailBySeverity)

	empty, err := repo.List(ctx, "other", FindingFilter{})
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestIngestionRepo(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	require.NoError(t, NewRunRepo(db).SaveRun(ctx, testRun("run-1", time.Now()), &domain.Dataset{}, nil))
	repo := NewIngestionRepo(db)

	got, err := repo.FindByHash(ctx, "abc")
	require.NoError(t, err)
	assert.Nil(t, got)

	at := time.Date(2024, 7, 2, 8, 0, 0, 0, time.UTC)
	require.NoError(t, repo.Insert(ctx, domain.IngestedFile{
		FileHash: "abc", FileName: "rrq.json", Format: "json", RunID: "run-1", RecordCount: 12, IngestedAt: at,
	}))

	got, err = repo.FindByHash(ctx, "abc")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "run-1", got.RunID)
	assert.Equal(t, 12, got.RecordCount)
	assert.True(t, at.Equal(got.IngestedAt))

	assert.Error(t, repo.Insert(ctx, domain.IngestedFile{FileHash: "abc", RunID: "run-1", IngestedAt: at}))
}
