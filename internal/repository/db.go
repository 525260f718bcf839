package repository

import (
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a run does not exist.
var ErrNotFound = errors.New("not found")

// InitDB opens (or creates) a SQLite database at the given path and ensures
// all required tables exist. Pass ":memory:" for an in-memory database.
func InitDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set wal mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	if err := createTables(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}

	return db, nil
}

func createTables(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			source TEXT NOT NULL,
			return_type TEXT NOT NULL,
			year INTEGER NOT NULL,
			reporting_quarter TEXT NOT NULL,
			as_of_date TEXT NOT NULL,
			seed INTEGER,
			scope_json TEXT,
			fail_count INTEGER NOT NULL,
			error_count INTEGER NOT NULL,
			passed INTEGER NOT NULL,
			created_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_return_type ON runs(return_type, year)`,

		// Which tables a run supplied; an absent row means the table was absent,
		// a row with no data rows means it was present but empty.
		`CREATE TABLE IF NOT EXISTS run_tables (
			run_id TEXT NOT NULL,
			table_name TEXT NOT NULL,
			PRIMARY KEY (run_id, table_name),
			FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
		)`,

		`CREATE TABLE IF NOT EXISTS control_records (
			run_id TEXT NOT NULL,
			position INTEGER NOT NULL,
			syndicate_number INTEGER NOT NULL,
			return_type TEXT NOT NULL,
			reporting_quarter TEXT NOT NULL,
			status TEXT NOT NULL,
			capacity_amount TEXT NOT NULL,
			first_year_of_account INTEGER NOT NULL,
			final_year_of_account INTEGER NOT NULL,
			contact_name TEXT NOT NULL,
			contact_email TEXT NOT NULL,
			as_of_date TEXT NOT NULL,
			PRIMARY KEY (run_id, position),
			FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
		)`,

		`CREATE TABLE IF NOT EXISTS exchange_rates (
			run_id TEXT NOT NULL,
			position INTEGER NOT NULL,
			currency TEXT NOT NULL,
			rate_per_gbp TEXT NOT NULL,
			as_of_date TEXT NOT NULL,
			rate_source TEXT NOT NULL,
			PRIMARY KEY (run_id, position),
			FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
		)`,

		`CREATE TABLE IF NOT EXISTS claim_development (
			run_id TEXT NOT NULL,
			position INTEGER NOT NULL,
			syndicate_number INTEGER NOT NULL,
			year_of_account INTEGER NOT NULL,
			development_period INTEGER NOT NULL,
			line_of_business_code TEXT NOT NULL,
			currency TEXT NOT NULL,
			gross_written_premium REAL NOT NULL,
			net_written_premium REAL NOT NULL,
			cumulative_paid_claims REAL NOT NULL,
			case_reserves REAL NOT NULL,
			ibnr_reserve REAL NOT NULL,
			total_incurred REAL NOT NULL,
			claim_count INTEGER NOT NULL,
			closed_claim_count INTEGER NOT NULL,
			PRIMARY KEY (run_id, position),
			FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_claim_development_key ON claim_development(run_id, syndicate_number, year_of_account, line_of_business_code)`,

		`CREATE TABLE IF NOT EXISTS ibnr_estimates (
			run_id TEXT NOT NULL,
			basis TEXT NOT NULL,
			position INTEGER NOT NULL,
			syndicate_number INTEGER NOT NULL,
			year_of_account INTEGER NOT NULL,
			line_of_business_code TEXT NOT NULL,
			gross_written_premium REAL NOT NULL,
			gross_earned_premium REAL NOT NULL,
			paid_claims_gross REAL NOT NULL,
			case_reserves_gross REAL NOT NULL,
			ibnr_low REAL NOT NULL,
			ibnr_best_estimate REAL NOT NULL,
			ibnr_high REAL NOT NULL,
			ultimate_loss_ratio REAL NOT NULL,
			PRIMARY KEY (run_id, basis, position),
			FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
		)`,

		`CREATE TABLE IF NOT EXISTS form_manifest (
			run_id TEXT NOT NULL,
			position INTEGER NOT NULL,
			form_id TEXT NOT NULL,
			title TEXT NOT NULL,
			table_name TEXT NOT NULL,
			row_count INTEGER NOT NULL,
			PRIMARY KEY (run_id, position),
			FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
		)`,

		`CREATE TABLE IF NOT EXISTS development_factors (
			run_id TEXT NOT NULL,
			metric TEXT NOT NULL,
			development_period INTEGER NOT NULL,
			factor_mean REAL,
			factor_median REAL,
			factor_stddev REAL,
			weighted_factor REAL,
			sample_size INTEGER NOT NULL,
			PRIMARY KEY (run_id, metric, development_period),
			FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
		)`,

		`CREATE TABLE IF NOT EXISTS validation_findings (
			run_id TEXT NOT NULL,
			position INTEGER NOT NULL,
			rule_id TEXT NOT NULL,
			description TEXT NOT NULL,
			status TEXT NOT NULL,
			severity TEXT NOT NULL,
			records_affected INTEGER NOT NULL,
			details TEXT NOT NULL,
			PRIMARY KEY (run_id, rule_id),
			FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_validation_findings_status ON validation_findings(run_id, status)`,
		`CREATE INDEX IF NOT EXISTS idx_validation_findings_severity ON validation_findings(run_id, severity)`,

		`CREATE TABLE IF NOT EXISTS ingested_files (
			file_hash TEXT PRIMARY KEY,
			file_name TEXT NOT NULL,
			format TEXT NOT NULL,
			run_id TEXT NOT NULL,
			record_count INTEGER NOT NULL,
			ingested_at TEXT NOT NULL,
			FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
		)`,
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("exec %q: %w", stmt[:60], err)
		}
	}

	return nil
}
