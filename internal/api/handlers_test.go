package api_test

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wakala/reserving/internal/api"
	"github.com/wakala/reserving/internal/generator"
	"github.com/wakala/reserving/internal/ingestion"
	"github.com/wakala/reserving/internal/pipeline"
	"github.com/wakala/reserving/internal/repository"
	"github.com/wakala/reserving/internal/validation"
)

const claimsCSV = `syndicate_number,year_of_account,development_period,line_of_business_code,currency,gross_written_premium,net_written_premium,cumulative_paid_claims,case_reserves,ibnr_reserve,total_incurred,claim_count,closed_claim_count
2987,2023,0,M1,USD,1000,800,100,50,30,180,10,2
2987,2023,1,M1,USD,1000,800,150,30,20,200,10,5
`

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	logger, _ := test.NewNullLogger()

	db, err := repository.InitDB(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	runRepo := repository.NewRunRepo(db)
	findingRepo := repository.NewFindingRepo(db)
	ingestionRepo := repository.NewIngestionRepo(db)

	cfg := generator.DefaultConfig()
	cfg.Syndicates = []int{2987, 1183}
	cfg.LinesOfBusiness = []string{"M1", "P1"}
	cfg.Currencies = []string{"GBP", "USD"}
	gen, err := generator.New(cfg, logger)
	require.NoError(t, err)
	engine, err := validation.NewEngine(validation.DefaultRules(), validation.WithLogger(logger))
	require.NoError(t, err)

	pipelineSvc := pipeline.NewService(gen, engine, runRepo, logger)
	ingestionSvc := ingestion.NewService(pipelineSvc, ingestionRepo, logger)

	srv := httptest.NewServer(api.NewRouter(pipelineSvc, runRepo, findingRepo, ingestionSvc, 42, logger))
	t.Cleanup(srv.Close)
	return srv
}

func getJSON(t *testing.T, url string, out any) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func postJSON(t *testing.T, url, body string, out any) int {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func uploadFile(t *testing.T, url, name, format string, data []byte, out any) int {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if format != "" {
		require.NoError(t, mw.WriteField("format", format))
	}
	fw, err := mw.CreateFormFile("file", name)
	require.NoError(t, err)
	_, err = fw.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	resp, err := http.Post(url, mw.FormDataContentType(), &buf)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

type runResponse struct {
	Run struct {
		ID         string `json:"id"`
		ReturnType string `json:"return_type"`
		Quarter    string `json:"reporting_quarter"`
		Seed       *int64 `json:"seed"`
		Passed     bool   `json:"passed"`
	} `json:"run"`
	Summary struct {
		Total    int            `json:"total"`
		ByStatus map[string]int `json:"by_status"`
	} `json:"summary"`
}

func createRun(t *testing.T, base string) runResponse {
	t.Helper()
	var res runResponse
	status := postJSON(t, base+"/api/v1/runs", `{"return_type":"RRQ","year":2024,"quarter":"Q2"}`, &res)
	require.Equal(t, http.StatusCreated, status)
	require.NotEmpty(t, res.Run.ID)
	return res
}

func TestGetScope(t *testing.T) {
	srv := newTestServer(t)

	var body struct {
		Scope struct {
			YearsOfAccount []int `json:"years_of_account"`
		} `json:"scope"`
		ReportingQuarter string `json:"reporting_quarter"`
		AsOfDate         string `json:"as_of_date"`
		Forms            []struct {
			ID string `json:"form_id"`
		} `json:"forms"`
	}
	status := getJSON(t, srv.URL+"/api/v1/scope?return_type=RRQ&year=2024&quarter=Q4", &body)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, []int{2022, 2023, 2024}, body.Scope.YearsOfAccount)
	assert.Equal(t, "Q4", body.ReportingQuarter)
	assert.Equal(t, "2024-12-31", body.AsOfDate)
	assert.Len(t, body.Forms, 9)

	status = getJSON(t, srv.URL+"/api/v1/scope?return_type=RRA&year=2024", &body)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "N/A", body.ReportingQuarter)

	for _, q := range []string{
		"return_type=RRQ&year=2024",
		"return_type=RRA&year=2024&quarter=Q1",
		"return_type=XYZ&year=2024",
		"return_type=RRA&year=abc",
	} {
		var e map[string]string
		assert.Equal(t, http.StatusBadRequest, getJSON(t, srv.URL+"/api/v1/scope?"+q, &e), q)
		assert.Contains(t, e["error"], "invalid scope configuration", q)
	}
}

func TestCreateRun(t *testing.T) {
	srv := newTestServer(t)

	res := createRun(t, srv.URL)
	assert.Equal(t, "RRQ", res.Run.ReturnType)
	assert.Equal(t, "Q2", res.Run.Quarter)
	require.NotNil(t, res.Run.Seed)
	assert.Equal(t, int64(42), *res.Run.Seed)
	assert.True(t, res.Run.Passed)
	assert.Equal(t, len(validation.DefaultRules()), res.Summary.Total)

	var e map[string]string
	assert.Equal(t, http.StatusBadRequest,
		postJSON(t, srv.URL+"/api/v1/runs", `{"return_type":"RRQ","year":2024}`, &e))
	assert.Equal(t, http.StatusBadRequest,
		postJSON(t, srv.URL+"/api/v1/runs", `{"return_type":"RRA","year":-1}`, &e))
	assert.Equal(t, http.StatusBadRequest,
		postJSON(t, srv.URL+"/api/v1/runs", `not json`, &e))
}

func TestRunQueries(t *testing.T) {
	srv := newTestServer(t)
	created := createRun(t, srv.URL)
	runURL := srv.URL + "/api/v1/runs/" + created.Run.ID

	var list struct {
		Runs  []map[string]any `json:"runs"`
		Total int              `json:"total"`
	}
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/v1/runs?return_type=quarterly", &list))
	assert.Equal(t, 1, list.Total)
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/v1/runs?return_type=RRA", &list))
	assert.Zero(t, list.Total)

	var run struct {
		Run     map[string]any `json:"run"`
		Summary struct {
			TotalCount int `json:"total_count"`
		} `json:"summary"`
	}
	require.Equal(t, http.StatusOK, getJSON(t, runURL, &run))
	assert.Equal(t, created.Run.ID, run.Run["id"])
	assert.Equal(t, created.Summary.Total, run.Summary.TotalCount)

	var findings struct {
		Findings []map[string]any `json:"findings"`
		Total    int              `json:"total"`
	}
	require.Equal(t, http.StatusOK, getJSON(t, runURL+"/findings", &findings))
	assert.Equal(t, created.Summary.Total, findings.Total)
	require.Equal(t, http.StatusOK, getJSON(t, runURL+"/findings?status=fail", &findings))
	assert.Zero(t, findings.Total)
	require.Equal(t, http.StatusOK, getJSON(t, runURL+"/findings?rule_id=IBNR_RANGE", &findings))
	assert.Equal(t, 1, findings.Total)

	var summary struct {
		ByStatus map[string]int `json:"by_status"`
	}
	require.Equal(t, http.StatusOK, getJSON(t, runURL+"/findings/summary", &summary))
	assert.Equal(t, created.Summary.ByStatus["PASS"], summary.ByStatus["PASS"])

	var claims struct {
		Present bool `json:"present"`
		Claims  []struct {
			Currency      string  `json:"currency"`
			TotalIncurred float64 `json:"total_incurred"`
		} `json:"claims"`
		Total int `json:"total"`
	}
	require.Equal(t, http.StatusOK, getJSON(t, runURL+"/claims?line_of_business=m1&currency=GBP", &claims))
	assert.True(t, claims.Present)
	assert.Positive(t, claims.Total)
	for _, c := range claims.Claims {
		assert.Equal(t, "GBP", c.Currency)
	}
	var e map[string]string
	assert.Equal(t, http.StatusBadRequest, getJSON(t, runURL+"/claims?currency=XXX", &e))

	var tri struct {
		Triangle struct {
			Metric string `json:"metric"`
			Rows   []any  `json:"rows"`
		} `json:"triangle"`
		Factors     []any `json:"factors"`
		Projections []any `json:"projections"`
	}
	require.Equal(t, http.StatusOK, getJSON(t, runURL+"/triangle?metric=incurred&dims=yoa", &tri))
	assert.Equal(t, "incurred", tri.Triangle.Metric)
	assert.Len(t, tri.Triangle.Rows, 3)
	assert.Len(t, tri.Projections, 3)
	assert.Equal(t, http.StatusBadRequest, getJSON(t, runURL+"/triangle?metric=reported", &e))
	assert.Equal(t, http.StatusBadRequest, getJSON(t, runURL+"/triangle?dims=region", &e))

	var factors struct {
		Paid     []map[string]any `json:"paid"`
		Incurred []map[string]any `json:"incurred"`
	}
	require.Equal(t, http.StatusOK, getJSON(t, runURL+"/factors", &factors))
	assert.Len(t, factors.Paid, 2)
	assert.Len(t, factors.Incurred, 2)

	var ibnrSummary struct {
		GroupBy string `json:"group_by"`
		Basis   string `json:"basis"`
		Groups  []struct {
			Group       string `json:"group"`
			RecordCount int    `json:"record_count"`
		} `json:"groups"`
	}
	require.Equal(t, http.StatusOK, getJSON(t, runURL+"/ibnr/summary?by=lob&method=simple&basis=all", &ibnrSummary))
	assert.Equal(t, "line_of_business", ibnrSummary.GroupBy)
	require.Len(t, ibnrSummary.Groups, 2)
	// two syndicates, three years of account, both bases
	assert.Equal(t, 12, ibnrSummary.Groups[0].RecordCount)
	assert.Equal(t, http.StatusBadRequest, getJSON(t, runURL+"/ibnr/summary?basis=ceded", &e))
}

func TestRunNotFound(t *testing.T) {
	srv := newTestServer(t)

	for _, path := range []string{"", "/findings", "/findings/summary", "/claims", "/triangle", "/factors", "/ibnr/summary"} {
		var e map[string]string
		assert.Equal(t, http.StatusNotFound, getJSON(t, srv.URL+"/api/v1/runs/missing"+path, &e), path)
	}
}

func TestIngestDataset(t *testing.T) {
	srv := newTestServer(t)
	url := srv.URL + "/api/v1/datasets/ingest"

	var first struct {
		RunID           string `json:"run_id"`
		RecordsIngested int    `json:"records_ingested"`
		AlreadyIngested bool   `json:"already_ingested"`
		Passed          bool   `json:"passed"`
	}
	require.Equal(t, http.StatusOK, uploadFile(t, url, "claims.csv", "", []byte(claimsCSV), &first))
	assert.NotEmpty(t, first.RunID)
	assert.Equal(t, 2, first.RecordsIngested)
	assert.False(t, first.AlreadyIngested)
	assert.False(t, first.Passed, "a claims-only file is missing required tables")

	var second struct {
		RunID           string `json:"run_id"`
		AlreadyIngested bool   `json:"already_ingested"`
	}
	require.Equal(t, http.StatusOK, uploadFile(t, url, "again.csv", "csv", []byte(claimsCSV), &second))
	assert.True(t, second.AlreadyIngested)
	assert.Equal(t, first.RunID, second.RunID)

	var claims struct {
		Total int `json:"total"`
	}
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/v1/runs/"+first.RunID+"/claims", &claims))
	assert.Equal(t, 2, claims.Total)

	var e map[string]string
	assert.Equal(t, http.StatusBadRequest, uploadFile(t, url, "book.xlsx", "", []byte("x"), &e))
	assert.Equal(t, http.StatusUnprocessableEntity, uploadFile(t, url, "bad.json", "", []byte("{"), &e))
}
