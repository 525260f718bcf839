package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/wakala/reserving/internal/currency"
	"github.com/wakala/reserving/internal/domain"
	"github.com/wakala/reserving/internal/ibnr"
	"github.com/wakala/reserving/internal/ingestion"
	"github.com/wakala/reserving/internal/pipeline"
	"github.com/wakala/reserving/internal/repository"
	"github.com/wakala/reserving/internal/scope"
	"github.com/wakala/reserving/internal/triangle"
)

// Handlers groups all HTTP handler methods and their dependencies.
type Handlers struct {
	pipeline    *pipeline.Service
	runRepo     *repository.RunRepo
	findingRepo *repository.FindingRepo
	ingestion   *ingestion.Service
	defaultSeed int64
	log         logrus.FieldLogger
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logrus.WithError(err).Warn("[api] encode error")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeLookupError maps a repository error to 404 or 500.
func writeLookupError(w http.ResponseWriter, err error) {
	if errors.Is(err, repository.ErrNotFound) {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	writeError(w, http.StatusInternalServerError, err.Error())
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 1 {
		return def
	}
	return v
}

func parseScope(returnType, year, quarter string) (domain.ScopeDescriptor, error) {
	rt, err := scope.ParseReturnType(returnType)
	if err != nil {
		return domain.ScopeDescriptor{}, err
	}
	y, err := strconv.Atoi(strings.TrimSpace(year))
	if err != nil {
		return domain.ScopeDescriptor{}, fmt.Errorf("%w: year %q must be an integer", domain.ErrInvalidScopeConfiguration, year)
	}
	q, err := scope.ParseQuarter(quarter)
	if err != nil {
		return domain.ScopeDescriptor{}, err
	}
	return scope.Resolve(rt, y, q)
}

// loadDataset writes the error response itself and returns nil on failure.
func (h *Handlers) loadDataset(w http.ResponseWriter, r *http.Request) *domain.Dataset {
	ds, err := h.runRepo.LoadDataset(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeLookupError(w, err)
		return nil
	}
	return ds
}

// --- GetScope ---

func (h *Handlers) GetScope(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	sc, err := parseScope(q.Get("return_type"), q.Get("year"), q.Get("quarter"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	forms := make([]domain.Form, 0, len(sc.RequiredForms))
	for _, id := range sc.RequiredForms {
		if f, ok := domain.LookupForm(id); ok {
			forms = append(forms, f)
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"scope":             sc,
		"reporting_quarter": sc.ReportingQuarter(),
		"as_of_date":        sc.AsOfDateString(),
		"forms":             forms,
	})
}

// --- CreateRun ---

type createRunRequest struct {
	ReturnType string `json:"return_type"`
	Year       int    `json:"year"`
	Quarter    string `json:"quarter"`
	Seed       *int64 `json:"seed"`
}

func (h *Handlers) CreateRun(w http.ResponseWriter, r *http.Request) {
	var req createRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	rt, err := scope.ParseReturnType(req.ReturnType)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	quarter, err := scope.ParseQuarter(req.Quarter)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	seed := h.defaultSeed
	if req.Seed != nil {
		seed = *req.Seed
	}

	res, err := h.pipeline.Run(r.Context(), pipeline.Request{
		ReturnType: rt,
		Year:       req.Year,
		Quarter:    quarter,
		Seed:       seed,
	})
	if err != nil {
		if errors.Is(err, domain.ErrInvalidScopeConfiguration) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.log.WithError(err).Error("run failed")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"run":      res.Run,
		"summary":  res.Summary,
		"findings": res.Findings,
	})
}

// --- ListRuns ---

func (h *Handlers) ListRuns(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := repository.RunFilter{
		Source: q.Get("source"),
		Year:   parseIntDefault(q.Get("year"), 0),
		Page:   parseIntDefault(q.Get("page"), 1),
		Limit:  parseIntDefault(q.Get("limit"), 50),
	}
	if rt := q.Get("return_type"); rt != "" {
		parsed, err := scope.ParseReturnType(rt)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		filter.ReturnType = string(parsed)
	}

	runs, total, err := h.runRepo.List(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"runs":  runs,
		"total": total,
		"page":  filter.Page,
		"limit": filter.Limit,
	})
}

// --- GetRun ---

func (h *Handlers) GetRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	run, err := h.runRepo.Get(r.Context(), id)
	if err != nil {
		writeLookupError(w, err)
		return
	}

	summary, err := h.findingRepo.GetSummary(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"run":     run,
		"summary": summary,
	})
}

// --- ListFindings ---

func (h *Handlers) ListFindings(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := h.runRepo.Get(r.Context(), id); err != nil {
		writeLookupError(w, err)
		return
	}

	q := r.URL.Query()
	filter := repository.FindingFilter{
		Status:   q.Get("status"),
		Severity: q.Get("severity"),
		RuleID:   q.Get("rule_id"),
	}

	findings, err := h.findingRepo.List(r.Context(), id, filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"run_id":   id,
		"findings": findings,
		"total":    len(findings),
	})
}

// --- GetFindingSummary ---

func (h *Handlers) GetFindingSummary(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := h.runRepo.Get(r.Context(), id); err != nil {
		writeLookupError(w, err)
		return
	}

	summary, err := h.findingRepo.GetSummary(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, summary)
}

// --- ListClaims ---

func (h *Handlers) ListClaims(w http.ResponseWriter, r *http.Request) {
	ds := h.loadDataset(w, r)
	if ds == nil {
		return
	}

	q := r.URL.Query()
	syndicate := parseIntDefault(q.Get("syndicate"), 0)
	yoa := parseIntDefault(q.Get("year_of_account"), 0)
	lob := strings.ToUpper(q.Get("line_of_business"))
	target := strings.ToUpper(q.Get("currency"))

	claims := []domain.ClaimDevelopmentRecord{}
	for _, c := range ds.Claims {
		if (syndicate != 0 && c.SyndicateNumber != syndicate) ||
			(yoa != 0 && c.YearOfAccount != yoa) ||
			(lob != "" && c.LineOfBusinessCode != lob) {
			continue
		}
		if target != "" {
			converted, err := convertClaim(c, target)
			if err != nil {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
			c = converted
		}
		claims = append(claims, c)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"run_id":  chi.URLParam(r, "id"),
		"present": ds.Has(domain.TableClaims),
		"claims":  claims,
		"total":   len(claims),
	})
}

// convertClaim restates every monetary column of a claims row in target
// currency via GBP, rounded to pence.
func convertClaim(c domain.ClaimDevelopmentRecord, target string) (domain.ClaimDevelopmentRecord, error) {
	if _, err := currency.Rate(target); err != nil {
		return c, err
	}
	amounts := []*float64{
		&c.GrossWrittenPremium, &c.NetWrittenPremium, &c.CumulativePaidClaims,
		&c.CaseReserves, &c.IBNRReserve, &c.TotalIncurred,
	}
	for _, a := range amounts {
		if math.IsNaN(*a) || math.IsInf(*a, 0) {
			return c, fmt.Errorf("claims row %s d=%d has a non-finite amount", c.Key(), c.DevelopmentPeriod)
		}
		gbp, err := currency.ToGBP(decimal.NewFromFloat(*a), c.Currency)
		if err != nil {
			return c, err
		}
		local, err := currency.FromGBP(gbp, target)
		if err != nil {
			return c, err
		}
		*a = local.Round(2).InexactFloat64()
	}
	c.Currency = target
	return c, nil
}

// --- GetTriangle ---

func (h *Handlers) GetTriangle(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	metric := domain.MetricPaid
	if s := q.Get("metric"); s != "" {
		m, err := triangle.ParseMetric(s)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		metric = m
	}
	dims, err := triangle.ParseDimensions(q.Get("dims"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ds := h.loadDataset(w, r)
	if ds == nil {
		return
	}
	if !ds.Has(domain.TableClaims) {
		writeError(w, http.StatusNotFound, "run has no CLAIMS_DEVELOPMENT table")
		return
	}

	tri, err := triangle.Build(ds.Claims, metric, dims...)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	factors := triangle.ComputeFactors(tri)

	writeJSON(w, http.StatusOK, map[string]any{
		"triangle":    tri,
		"factors":     factors,
		"projections": triangle.Project(tri, factors),
	})
}

// --- GetFactors ---

func (h *Handlers) GetFactors(w http.ResponseWriter, r *http.Request) {
	ds := h.loadDataset(w, r)
	if ds == nil {
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"run_id":   chi.URLParam(r, "id"),
		"paid":     ds.PaidFactors,
		"incurred": ds.IncurredFactors,
	})
}

// --- GetIBNRSummary ---

func (h *Handlers) GetIBNRSummary(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	by := ibnr.ByYearOfAccount
	if s := q.Get("by"); s != "" {
		parsed, err := ibnr.ParseGroupBy(s)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		by = parsed
	}
	method := ibnr.PremiumWeighted
	if s := q.Get("method"); s != "" {
		parsed, err := ibnr.ParseMethod(s)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		method = parsed
	}
	basis := strings.ToLower(q.Get("basis"))
	if basis == "" {
		basis = string(domain.BasisGross)
	}
	if basis != string(domain.BasisGross) && basis != string(domain.BasisNet) && basis != "all" {
		writeError(w, http.StatusBadRequest, "basis must be gross, net or all")
		return
	}

	ds := h.loadDataset(w, r)
	if ds == nil {
		return
	}

	var estimates []domain.IBNREstimateRecord
	if basis != string(domain.BasisNet) {
		estimates = append(estimates, ds.IBNRGross...)
	}
	if basis != string(domain.BasisGross) {
		estimates = append(estimates, ds.IBNRNet...)
	}

	groups, err := ibnr.Aggregate(ibnr.Analyze(estimates), by, method)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"run_id":   chi.URLParam(r, "id"),
		"group_by": by,
		"method":   method,
		"basis":    basis,
		"groups":   groups,
	})
}

// --- IngestDataset ---

func (h *Handlers) IngestDataset(w http.ResponseWriter, r *http.Request) {
	// Accept multipart form.
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form: "+err.Error())
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file field is required: "+err.Error())
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "read file: "+err.Error())
		return
	}

	result, err := h.ingestion.Ingest(r.Context(), data, header.Filename, r.FormValue("format"))
	if err != nil {
		if errors.Is(err, ingestion.ErrUnsupportedFormat) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, result)
}
