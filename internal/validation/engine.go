// Package validation runs a registry of cross-record and cross-table rules
// over a reserving dataset and reports one finding per rule.
package validation

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/wakala/reserving/internal/domain"
)

// Outcome is what a rule check reports: how many records broke the rule and
// a human readable explanation. Skipped marks a rule whose inputs exist but
// carry nothing it can check, such as a dataset without a scope.
type Outcome struct {
	RecordsAffected int
	Details         string
	Skipped         bool
}

// Rule is one registered check. A rule is skipped when any table it
// requires is absent from the dataset. Check must not modify the dataset.
type Rule struct {
	ID          string
	Description string
	Severity    domain.Severity
	Requires    []domain.TableName
	Check       func(ds *domain.Dataset) (Outcome, error)
}

// Engine evaluates a fixed set of rules.
type Engine struct {
	rules       []Rule
	concurrency int
	log         logrus.FieldLogger
}

// Option configures an Engine.
type Option func(*Engine)

// WithConcurrency bounds how many rules run at once.
func WithConcurrency(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.concurrency = n
		}
	}
}

// WithLogger sets the engine logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(e *Engine) { e.log = l }
}

// NewEngine creates an engine over rules. Rule IDs must be unique.
func NewEngine(rules []Rule, opts ...Option) (*Engine, error) {
	seen := make(map[string]bool, len(rules))
	for _, r := range rules {
		if r.ID == "" || r.Check == nil {
			return nil, fmt.Errorf("validation: rule %q is incomplete", r.ID)
		}
		if seen[r.ID] {
			return nil, fmt.Errorf("validation: duplicate rule %q", r.ID)
		}
		seen[r.ID] = true
	}

	e := &Engine{
		rules:       append([]Rule(nil), rules...),
		concurrency: 4,
		log:         logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.log = e.log.WithField("component", "validation")
	return e, nil
}

// Rules returns the registered rules.
func (e *Engine) Rules() []Rule {
	return append([]Rule(nil), e.rules...)
}

// Validate runs every rule and returns the findings ordered by severity,
// status and rule ID. Data problems are findings, not errors; the only
// error is context cancellation.
func (e *Engine) Validate(ctx context.Context, ds *domain.Dataset) ([]domain.ValidationFinding, error) {
	if ds == nil {
		ds = &domain.Dataset{}
	}
	findings := make([]domain.ValidationFinding, len(e.rules))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for i, rule := range e.rules {
		i, rule := i, rule
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			findings[i] = evaluate(rule, ds)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	SortFindings(findings)

	counts := Summarize(findings)
	e.log.WithFields(logrus.Fields{
		"rules":   len(findings),
		"fail":    counts.ByStatus[domain.FindingFail],
		"error":   counts.ByStatus[domain.FindingError],
		"skipped": counts.ByStatus[domain.FindingSkipped],
	}).Info("validation complete")

	return findings, nil
}

// evaluate runs a single rule, converting a missing table into SKIPPED and
// an error or panic into ERROR.
func evaluate(rule Rule, ds *domain.Dataset) (f domain.ValidationFinding) {
	f = domain.ValidationFinding{
		RuleID:      rule.ID,
		Description: rule.Description,
		Severity:    rule.Severity,
	}

	var missing []string
	for _, t := range rule.Requires {
		if !ds.Has(t) {
			missing = append(missing, string(t))
		}
	}
	if len(missing) > 0 {
		f.Status = domain.FindingSkipped
		f.Details = "required table(s) absent: " + strings.Join(missing, ", ")
		return f
	}

	defer func() {
		if r := recover(); r != nil {
			f.Status = domain.FindingError
			f.RecordsAffected = 0
			f.Details = fmt.Sprintf("rule panicked: %v", r)
		}
	}()

	out, err := rule.Check(ds)
	if err != nil {
		f.Status = domain.FindingError
		f.Details = err.Error()
		return f
	}

	f.Details = out.Details
	if out.Skipped {
		f.Status = domain.FindingSkipped
		return f
	}
	f.RecordsAffected = out.RecordsAffected
	if out.RecordsAffected > 0 {
		f.Status = domain.FindingFail
	} else {
		f.Status = domain.FindingPass
	}
	return f
}

// SortFindings orders findings by severity (Critical first), then status
// (FAIL, ERROR, PASS, SKIPPED), then rule ID.
func SortFindings(findings []domain.ValidationFinding) {
	sort.SliceStable(findings, func(i, j int) bool {
		a, b := findings[i], findings[j]
		if a.Severity.Rank() != b.Severity.Rank() {
			return a.Severity.Rank() < b.Severity.Rank()
		}
		if a.Status.Rank() != b.Status.Rank() {
			return a.Status.Rank() < b.Status.Rank()
		}
		return a.RuleID < b.RuleID
	})
}
