package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/wakala/reserving/internal/domain"
)

type FindingRepo struct {
	db *sql.DB
}

func NewFindingRepo(db *sql.DB) *FindingRepo {
	return &FindingRepo{db: db}
}

type FindingFilter struct {
	Status   string
	Severity string
	RuleID   string
}

// List returns a run's findings in the order validation reported them.
func (r *FindingRepo) List(ctx context.Context, runID string, f FindingFilter) ([]domain.ValidationFinding, error) {
	where, args := buildFindingWhere(runID, f)

	rows, err := r.db.QueryContext(ctx,
		`SELECT rule_id, description, status, severity, records_affected, details
		 FROM validation_findings`+where+" ORDER BY position", args...)
	if err != nil {
		return nil, fmt.Errorf("query findings: %w", err)
	}
	defer rows.Close()

	findings := []domain.ValidationFinding{}
	for rows.Next() {
		var fd domain.ValidationFinding
		var status, severity string
		if err := rows.Scan(&fd.RuleID, &fd.Description, &status, &severity, &fd.RecordsAffected, &fd.Details); err != nil {
			return nil, fmt.Errorf("scan finding: %w", err)
		}
		fd.Status = domain.FindingStatus(status)
		fd.Severity = domain.Severity(severity)
		findings = append(findings, fd)
	}
	return findings, rows.Err()
}

type FindingSummary struct {
	RunID                string         `json:"run_id"`
	TotalCount           int            `json:"total_count"`
	TotalRecordsAffected int            `json:"total_records_affected"`
	ByStatus             map[string]int `json:"by_status"`
	BySeverity           map[string]int `json:"by_severity"`
	FailBySeverity       map[string]int `json:"fail_by_severity"`
}

func (r *FindingRepo) GetSummary(ctx context.Context, runID string) (*FindingSummary, error) {
	s := &FindingSummary{
		RunID:          runID,
		ByStatus:       make(map[string]int),
		BySeverity:     make(map[string]int),
		FailBySeverity: make(map[string]int),
	}

	if err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*), COALESCE(SUM(records_affected),0) FROM validation_findings WHERE run_id = ?", runID,
	).Scan(&s.TotalCount, &s.TotalRecordsAffected); err != nil {
		return nil, err
	}

	if err := r.scanGroupCount(ctx, "status", "run_id = ?", []any{runID}, s.ByStatus); err != nil {
		return nil, err
	}
	if err := r.scanGroupCount(ctx, "severity", "run_id = ?", []any{runID}, s.BySeverity); err != nil {
		return nil, err
	}
	if err := r.scanGroupCount(ctx, "severity", "run_id = ? AND status = ?",
		[]any{runID, string(domain.FindingFail)}, s.FailBySeverity); err != nil {
		return nil, err
	}
	return s, nil
}

// --- helpers ---

func buildFindingWhere(runID string, f FindingFilter) (string, []any) {
	clauses := []string{"run_id = ?"}
	args := []any{runID}

	if f.Status != "" {
		clauses = append(clauses, "status = ?")
		args = append(args, strings.ToUpper(f.Status))
	}
	if f.Severity != "" {
		clauses = append(clauses, "severity = ?")
		args = append(args, f.Severity)
	}
	if f.RuleID != "" {
		clauses = append(clauses, "rule_id = ?")
		args = append(args, f.RuleID)
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func (r *FindingRepo) scanGroupCount(ctx context.Context, col, where string, args []any, m map[string]int) error {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+col+", COUNT(*) FROM validation_findings WHERE "+where+" GROUP BY "+col, args...,
	)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var k string
		var v int
		if err := rows.Scan(&k, &v); err != nil {
			return err
		}
		m[k] = v
	}
	return rows.Err()
}
