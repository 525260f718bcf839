package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/wakala/reserving/internal/domain"
)

// persistedTables are the dataset tables written with a run. The IBNR
// analysis is a pure function of the estimates and is recomputed on read.
var persistedTables = []domain.TableName{
	domain.TableControl,
	domain.TableExchangeRates,
	domain.TableClaims,
	domain.TableIBNRGross,
	domain.TableIBNRNet,
	domain.TableFormManifest,
	domain.TableFactors,
}

type RunRepo struct {
	db *sql.DB
}

func NewRunRepo(db *sql.DB) *RunRepo {
	return &RunRepo{db: db}
}

// SaveRun writes the run, every supplied table and the findings in one
// transaction.
func (r *RunRepo) SaveRun(ctx context.Context, run domain.Run, ds *domain.Dataset, findings []domain.ValidationFinding) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	var scopeJSON any
	if ds.Scope != nil {
		b, err := json.Marshal(ds.Scope)
		if err != nil {
			return fmt.Errorf("marshal scope: %w", err)
		}
		scopeJSON = string(b)
	}
	var seed any
	if run.Seed != nil {
		seed = *run.Seed
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs
		(id, source, return_type, year, reporting_quarter, as_of_date, seed,
		 scope_json, fail_count, error_count, passed, created_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		run.ID, run.Source, string(run.ReturnType), run.Year, run.Quarter, run.AsOfDate, seed,
		scopeJSON, run.FailCount, run.ErrorCount, run.Passed, run.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	for _, t := range persistedTables {
		if !ds.Has(t) {
			continue
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO run_tables (run_id, table_name) VALUES (?,?)", run.ID, string(t),
		); err != nil {
			return fmt.Errorf("insert table marker %s: %w", t, err)
		}
	}

	if err := insertControl(ctx, tx, run.ID, ds.Control); err != nil {
		return err
	}
	if err := insertRates(ctx, tx, run.ID, ds.ExchangeRates); err != nil {
		return err
	}
	if err := insertClaims(ctx, tx, run.ID, ds.Claims); err != nil {
		return err
	}
	if err := insertEstimates(ctx, tx, run.ID, domain.BasisGross, ds.IBNRGross); err != nil {
		return err
	}
	if err := insertEstimates(ctx, tx, run.ID, domain.BasisNet, ds.IBNRNet); err != nil {
		return err
	}
	if err := insertManifest(ctx, tx, run.ID, ds.FormManifest); err != nil {
		return err
	}
	factors := append(append([]domain.DevelopmentFactor(nil), ds.PaidFactors...), ds.IncurredFactors...)
	if err := insertFactors(ctx, tx, run.ID, factors); err != nil {
		return err
	}
	if err := insertFindings(ctx, tx, run.ID, findings); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (r *RunRepo) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM runs").Scan(&count)
	return count, err
}

const runColumns = `id, source, return_type, year, reporting_quarter, as_of_date, seed,
	fail_count, error_count, passed, created_at`

// Get returns a run or ErrNotFound.
func (r *RunRepo) Get(ctx context.Context, id string) (*domain.Run, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+runColumns+" FROM runs WHERE id = ?", id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	return run, nil
}

type RunFilter struct {
	ReturnType string
	Year       int
	Source     string
	Page       int
	Limit      int
}

// List returns one page of runs, newest first, and the total matching count.
func (r *RunRepo) List(ctx context.Context, f RunFilter) ([]domain.Run, int, error) {
	where, args := buildRunWhere(f)

	var total int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM runs"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count: %w", err)
	}

	if f.Limit <= 0 {
		f.Limit = 50
	}
	if f.Page <= 0 {
		f.Page = 1
	}
	offset := (f.Page - 1) * f.Limit

	q := "SELECT " + runColumns + " FROM runs" + where + " ORDER BY created_at DESC, id LIMIT ? OFFSET ?"
	args = append(args, f.Limit, offset)

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	runs := []domain.Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan: %w", err)
		}
		runs = append(runs, *run)
	}
	return runs, total, rows.Err()
}

// LoadDataset rebuilds the stored dataset of a run. Tables the run did not
// supply come back nil; supplied but empty tables come back empty.
func (r *RunRepo) LoadDataset(ctx context.Context, id string) (*domain.Dataset, error) {
	var scopeJSON sql.NullString
	err := r.db.QueryRowContext(ctx, "SELECT scope_json FROM runs WHERE id = ?", id).Scan(&scopeJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load run: %w", err)
	}

	ds := &domain.Dataset{}
	if scopeJSON.Valid {
		var sc domain.ScopeDescriptor
		if err := json.Unmarshal([]byte(scopeJSON.String), &sc); err != nil {
			return nil, fmt.Errorf("unmarshal scope: %w", err)
		}
		ds.Scope = &sc
	}

	present, err := r.presentTables(ctx, id)
	if err != nil {
		return nil, err
	}

	if present[domain.TableControl] {
		if ds.Control, err = r.loadControl(ctx, id); err != nil {
			return nil, err
		}
	}
	if present[domain.TableExchangeRates] {
		if ds.ExchangeRates, err = r.loadRates(ctx, id); err != nil {
			return nil, err
		}
	}
	if present[domain.TableClaims] {
		if ds.Claims, err = r.loadClaims(ctx, id); err != nil {
			return nil, err
		}
	}
	if present[domain.TableIBNRGross] {
		if ds.IBNRGross, err = r.loadEstimates(ctx, id, domain.BasisGross); err != nil {
			return nil, err
		}
	}
	if present[domain.TableIBNRNet] {
		if ds.IBNRNet, err = r.loadEstimates(ctx, id, domain.BasisNet); err != nil {
			return nil, err
		}
	}
	if present[domain.TableFormManifest] {
		if ds.FormManifest, err = r.loadManifest(ctx, id); err != nil {
			return nil, err
		}
	}
	if present[domain.TableFactors] {
		if ds.PaidFactors, err = r.loadFactors(ctx, id, domain.MetricPaid); err != nil {
			return nil, err
		}
		if ds.IncurredFactors, err = r.loadFactors(ctx, id, domain.MetricIncurred); err != nil {
			return nil, err
		}
	}
	return ds, nil
}

// --- inserts ---

func insertControl(ctx context.Context, tx *sql.Tx, runID string, records []domain.ControlRecord) error {
	return insertRows(ctx, tx, "control records",
		`INSERT INTO control_records
		(run_id, position, syndicate_number, return_type, reporting_quarter, status,
		 capacity_amount, first_year_of_account, final_year_of_account, contact_name,
		 contact_email, as_of_date)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		len(records), func(i int) []any {
			c := records[i]
			return []any{
				runID, i, c.SyndicateNumber, string(c.ReturnType), c.ReportingQuarter, string(c.Status),
				c.CapacityAmount.String(), c.FirstYearOfAccount, c.FinalYearOfAccount, c.ContactName,
				c.ContactEmail, c.AsOfDate,
			}
		})
}

func insertRates(ctx context.Context, tx *sql.Tx, runID string, records []domain.ExchangeRateRecord) error {
	return insertRows(ctx, tx, "exchange rates",
		`INSERT INTO exchange_rates (run_id, position, currency, rate_per_gbp, as_of_date, rate_source)
		VALUES (?,?,?,?,?,?)`,
		len(records), func(i int) []any {
			e := records[i]
			return []any{runID, i, e.Currency, e.RatePerGBP.String(), e.AsOfDate, e.RateSource}
		})
}

func insertClaims(ctx context.Context, tx *sql.Tx, runID string, records []domain.ClaimDevelopmentRecord) error {
	return insertRows(ctx, tx, "claims",
		`INSERT INTO claim_development
		(run_id, position, syndicate_number, year_of_account, development_period,
		 line_of_business_code, currency, gross_written_premium, net_written_premium,
		 cumulative_paid_claims, case_reserves, ibnr_reserve, total_incurred,
		 claim_count, closed_claim_count)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		len(records), func(i int) []any {
			c := records[i]
			return []any{
				runID, i, c.SyndicateNumber, c.YearOfAccount, c.DevelopmentPeriod,
				c.LineOfBusinessCode, c.Currency, c.GrossWrittenPremium, c.NetWrittenPremium,
				c.CumulativePaidClaims, c.CaseReserves, c.IBNRReserve, c.TotalIncurred,
				c.ClaimCount, c.ClosedClaimCount,
			}
		})
}

func insertEstimates(ctx context.Context, tx *sql.Tx, runID string, basis domain.Basis, records []domain.IBNREstimateRecord) error {
	return insertRows(ctx, tx, "ibnr "+string(basis),
		`INSERT INTO ibnr_estimates
		(run_id, basis, position, syndicate_number, year_of_account, line_of_business_code,
		 gross_written_premium, gross_earned_premium, paid_claims_gross, case_reserves_gross,
		 ibnr_low, ibnr_best_estimate, ibnr_high, ultimate_loss_ratio)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		len(records), func(i int) []any {
			e := records[i]
			return []any{
				runID, string(basis), i, e.SyndicateNumber, e.YearOfAccount, e.LineOfBusinessCode,
				e.GrossWrittenPremium, e.GrossEarnedPremium, e.PaidClaimsGross, e.CaseReservesGross,
				e.IBNRLow, e.IBNRBestEstimate, e.IBNRHigh, e.UltimateLossRatio,
			}
		})
}

func insertManifest(ctx context.Context, tx *sql.Tx, runID string, subs []domain.FormSubmission) error {
	return insertRows(ctx, tx, "form manifest",
		`INSERT INTO form_manifest (run_id, position, form_id, title, table_name, row_count)
		VALUES (?,?,?,?,?,?)`,
		len(subs), func(i int) []any {
			s := subs[i]
			return []any{runID, i, string(s.FormID), s.Title, string(s.Table), s.RowCount}
		})
}

func insertFactors(ctx context.Context, tx *sql.Tx, runID string, factors []domain.DevelopmentFactor) error {
	return insertRows(ctx, tx, "development factors",
		`INSERT INTO development_factors
		(run_id, metric, development_period, factor_mean, factor_median, factor_stddev,
		 weighted_factor, sample_size)
		VALUES (?,?,?,?,?,?,?,?)`,
		len(factors), func(i int) []any {
			f := factors[i]
			return []any{
				runID, string(f.Metric), f.DevelopmentPeriod, nullFloat(f.FactorMean), nullFloat(f.FactorMedian),
				nullFloat(f.FactorStdDev), nullFloat(f.WeightedFactor), f.SampleSize,
			}
		})
}

func insertFindings(ctx context.Context, tx *sql.Tx, runID string, findings []domain.ValidationFinding) error {
	return insertRows(ctx, tx, "findings",
		`INSERT INTO validation_findings
		(run_id, position, rule_id, description, status, severity, records_affected, details)
		VALUES (?,?,?,?,?,?,?,?)`,
		len(findings), func(i int) []any {
			f := findings[i]
			return []any{
				runID, i, f.RuleID, f.Description, string(f.Status), string(f.Severity),
				f.RecordsAffected, f.Details,
			}
		})
}

// insertRows runs one prepared insert per row inside tx.
func insertRows(ctx context.Context, tx *sql.Tx, what, query string, n int, args func(i int) []any) error {
	if n == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("prepare %s: %w", what, err)
	}
	defer stmt.Close()

	for i := 0; i < n; i++ {
		if _, err := stmt.ExecContext(ctx, args(i)...); err != nil {
			return fmt.Errorf("insert %s row %d: %w", what, i, err)
		}
	}
	return nil
}

// --- loads ---

func (r *RunRepo) presentTables(ctx context.Context, id string) (map[domain.TableName]bool, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT table_name FROM run_tables WHERE run_id = ?", id)
	if err != nil {
		return nil, fmt.Errorf("query tables: %w", err)
	}
	defer rows.Close()

	present := make(map[domain.TableName]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		present[domain.TableName(name)] = true
	}
	return present, rows.Err()
}

func (r *RunRepo) loadControl(ctx context.Context, id string) ([]domain.ControlRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT syndicate_number, return_type, reporting_quarter, status, capacity_amount,
		 first_year_of_account, final_year_of_account, contact_name, contact_email, as_of_date
		 FROM control_records WHERE run_id = ? ORDER BY position`, id)
	if err != nil {
		return nil, fmt.Errorf("query control: %w", err)
	}
	defer rows.Close()

	out := []domain.ControlRecord{}
	for rows.Next() {
		var c domain.ControlRecord
		var rt, status, capacity string
		if err := rows.Scan(&c.SyndicateNumber, &rt, &c.ReportingQuarter, &status, &capacity,
			&c.FirstYearOfAccount, &c.FinalYearOfAccount, &c.ContactName, &c.ContactEmail, &c.AsOfDate); err != nil {
			return nil, fmt.Errorf("scan control: %w", err)
		}
		c.ReturnType = domain.ReturnType(rt)
		c.Status = domain.ReturnStatus(status)
		if c.CapacityAmount, err = decimal.NewFromString(capacity); err != nil {
			return nil, fmt.Errorf("parse capacity %q: %w", capacity, err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *RunRepo) loadRates(ctx context.Context, id string) ([]domain.ExchangeRateRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT currency, rate_per_gbp, as_of_date, rate_source
		 FROM exchange_rates WHERE run_id = ? ORDER BY position`, id)
	if err != nil {
		return nil, fmt.Errorf("query rates: %w", err)
	}
	defer rows.Close()

	out := []domain.ExchangeRateRecord{}
	for rows.Next() {
		var e domain.ExchangeRateRecord
		var rate string
		if err := rows.Scan(&e.Currency, &rate, &e.AsOfDate, &e.RateSource); err != nil {
			return nil, fmt.Errorf("scan rate: %w", err)
		}
		if e.RatePerGBP, err = decimal.NewFromString(rate); err != nil {
			return nil, fmt.Errorf("parse rate %q: %w", rate, err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *RunRepo) loadClaims(ctx context.Context, id string) ([]domain.ClaimDevelopmentRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT syndicate_number, year_of_account, development_period, line_of_business_code,
		 currency, gross_written_premium, net_written_premium, cumulative_paid_claims,
		 case_reserves, ibnr_reserve, total_incurred, claim_count, closed_claim_count
		 FROM claim_development WHERE run_id = ? ORDER BY position`, id)
	if err != nil {
		return nil, fmt.Errorf("query claims: %w", err)
	}
	defer rows.Close()

	out := []domain.ClaimDevelopmentRecord{}
	for rows.Next() {
		var c domain.ClaimDevelopmentRecord
		if err := rows.Scan(&c.SyndicateNumber, &c.YearOfAccount, &c.DevelopmentPeriod, &c.LineOfBusinessCode,
			&c.Currency, &c.GrossWrittenPremium, &c.NetWrittenPremium, &c.CumulativePaidClaims,
			&c.CaseReserves, &c.IBNRReserve, &c.TotalIncurred, &c.ClaimCount, &c.ClosedClaimCount); err != nil {
			return nil, fmt.Errorf("scan claim: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *RunRepo) loadEstimates(ctx context.Context, id string, basis domain.Basis) ([]domain.IBNREstimateRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT syndicate_number, year_of_account, line_of_business_code, gross_written_premium,
		 gross_earned_premium, paid_claims_gross, case_reserves_gross, ibnr_low,
		 ibnr_best_estimate, ibnr_high, ultimate_loss_ratio
		 FROM ibnr_estimates WHERE run_id = ? AND basis = ? ORDER BY position`, id, string(basis))
	if err != nil {
		return nil, fmt.Errorf("query ibnr: %w", err)
	}
	defer rows.Close()

	out := []domain.IBNREstimateRecord{}
	for rows.Next() {
		e := domain.IBNREstimateRecord{Basis: basis}
		if err := rows.Scan(&e.SyndicateNumber, &e.YearOfAccount, &e.LineOfBusinessCode, &e.GrossWrittenPremium,
			&e.GrossEarnedPremium, &e.PaidClaimsGross, &e.CaseReservesGross, &e.IBNRLow,
			&e.IBNRBestEstimate, &e.IBNRHigh, &e.UltimateLossRatio); err != nil {
			return nil, fmt.Errorf("scan ibnr: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *RunRepo) loadManifest(ctx context.Context, id string) ([]domain.FormSubmission, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT form_id, title, table_name, row_count
		 FROM form_manifest WHERE run_id = ? ORDER BY position`, id)
	if err != nil {
		return nil, fmt.Errorf("query manifest: %w", err)
	}
	defer rows.Close()

	out := []domain.FormSubmission{}
	for rows.Next() {
		var s domain.FormSubmission
		var formID, table string
		if err := rows.Scan(&formID, &s.Title, &table, &s.RowCount); err != nil {
			return nil, fmt.Errorf("scan manifest: %w", err)
		}
		s.FormID = domain.FormID(formID)
		s.Table = domain.TableName(table)
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *RunRepo) loadFactors(ctx context.Context, id string, metric domain.Metric) ([]domain.DevelopmentFactor, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT development_period, factor_mean, factor_median, factor_stddev, weighted_factor, sample_size
		 FROM development_factors WHERE run_id = ? AND metric = ? ORDER BY development_period`, id, string(metric))
	if err != nil {
		return nil, fmt.Errorf("query factors: %w", err)
	}
	defer rows.Close()

	out := []domain.DevelopmentFactor{}
	for rows.Next() {
		f := domain.DevelopmentFactor{Metric: metric}
		var mean, median, stddev, weighted sql.NullFloat64
		if err := rows.Scan(&f.DevelopmentPeriod, &mean, &median, &stddev, &weighted, &f.SampleSize); err != nil {
			return nil, fmt.Errorf("scan factor: %w", err)
		}
		f.FactorMean = floatPtr(mean)
		f.FactorMedian = floatPtr(median)
		f.FactorStdDev = floatPtr(stddev)
		f.WeightedFactor = floatPtr(weighted)
		out = append(out, f)
	}
	return out, rows.Err()
}

// --- helpers ---

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*domain.Run, error) {
	var run domain.Run
	var rt, createdAt string
	var seed sql.NullInt64
	if err := row.Scan(&run.ID, &run.Source, &rt, &run.Year, &run.Quarter, &run.AsOfDate, &seed,
		&run.FailCount, &run.ErrorCount, &run.Passed, &createdAt); err != nil {
		return nil, err
	}
	run.ReturnType = domain.ReturnType(rt)
	if seed.Valid {
		v := seed.Int64
		run.Seed = &v
	}
	run.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	return &run, nil
}

func buildRunWhere(f RunFilter) (string, []any) {
	var clauses []string
	var args []any

	if f.ReturnType != "" {
		clauses = append(clauses, "return_type = ?")
		args = append(args, f.ReturnType)
	}
	if f.Year != 0 {
		clauses = append(clauses, "year = ?")
		args = append(args, f.Year)
	}
	if f.Source != "" {
		clauses = append(clauses, "source = ?")
		args = append(args, f.Source)
	}

	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func nullFloat(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}
