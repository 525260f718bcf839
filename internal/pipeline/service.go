// Package pipeline wires scope resolution, generation, triangle analysis,
// IBNR analytics and validation into a single run.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/wakala/reserving/internal/config"
	"github.com/wakala/reserving/internal/domain"
	"github.com/wakala/reserving/internal/generator"
	"github.com/wakala/reserving/internal/ibnr"
	"github.com/wakala/reserving/internal/scope"
	"github.com/wakala/reserving/internal/triangle"
	"github.com/wakala/reserving/internal/validation"
)

// Store persists evaluated runs.
//
//go:generate mockgen -destination=mocks/mock_store.go -package=mocks -source=service.go Store
type Store interface {
	SaveRun(ctx context.Context, run domain.Run, ds *domain.Dataset, findings []domain.ValidationFinding) error
}

// Request describes a generated run.
type Request struct {
	ReturnType domain.ReturnType
	Year       int
	Quarter    domain.Quarter
	Seed       int64
}

// Result is everything a run produced.
type Result struct {
	Run      domain.Run
	Dataset  *domain.Dataset
	Findings []domain.ValidationFinding
	Summary  validation.Summary

	PaidTriangle     triangle.Triangle
	IncurredTriangle triangle.Triangle
}

// Service runs the analysis pipeline.
type Service struct {
	gen    *generator.Generator
	engine *validation.Engine
	store  Store
	log    logrus.FieldLogger

	now   func() time.Time
	newID func() string
}

// NewService creates a pipeline service. store may be nil, in which case
// runs are not persisted.
func NewService(gen *generator.Generator, engine *validation.Engine, store Store, logger logrus.FieldLogger) *Service {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Service{
		gen:    gen,
		engine: engine,
		store:  store,
		log:    logger.WithField("component", "pipeline"),
		now:    func() time.Time { return time.Now().UTC() },
		newID:  uuid.NewString,
	}
}

// Run resolves the scope, generates a dataset for it and evaluates it.
// An invalid scope fails before anything is generated or stored.
func (s *Service) Run(ctx context.Context, req Request) (*Result, error) {
	sc, err := scope.Resolve(req.ReturnType, req.Year, req.Quarter)
	if err != nil {
		return nil, err
	}

	ds, err := s.gen.Generate(ctx, sc, req.Seed)
	if err != nil {
		return nil, fmt.Errorf("generate: %w", err)
	}

	seed := req.Seed
	return s.evaluate(ctx, domain.SourceGenerated, &seed, ds)
}

// Evaluate analyses and validates a dataset that was not generated here,
// such as an ingested file. ds is not modified.
func (s *Service) Evaluate(ctx context.Context, source string, ds *domain.Dataset) (*Result, error) {
	if ds == nil {
		ds = &domain.Dataset{}
	}
	return s.evaluate(ctx, source, nil, ds)
}

func (s *Service) evaluate(ctx context.Context, source string, seed *int64, ds *domain.Dataset) (*Result, error) {
	derived := ds.Clone()

	var paid, incurred triangle.Triangle
	if ds.Has(domain.TableClaims) {
		var err error
		if paid, err = triangle.Build(ds.Claims, domain.MetricPaid); err != nil {
			return nil, fmt.Errorf("paid triangle: %w", err)
		}
		if incurred, err = triangle.Build(ds.Claims, domain.MetricIncurred); err != nil {
			return nil, fmt.Errorf("incurred triangle: %w", err)
		}
		derived.PaidFactors = triangle.ComputeFactors(paid)
		derived.IncurredFactors = triangle.ComputeFactors(incurred)
	}

	if ds.Has(domain.TableIBNRGross) || ds.Has(domain.TableIBNRNet) {
		estimates := make([]domain.IBNREstimateRecord, 0, len(ds.IBNRGross)+len(ds.IBNRNet))
		estimates = append(estimates, ds.IBNRGross...)
		estimates = append(estimates, ds.IBNRNet...)
		derived.IBNRAnalysis = ibnr.Analyze(estimates)
	}

	findings, err := s.engine.Validate(ctx, derived)
	if err != nil {
		return nil, fmt.Errorf("validate: %w", err)
	}
	summary := validation.Summarize(findings)

	run := domain.Run{
		ID:         s.newID(),
		Source:     source,
		Seed:       seed,
		FailCount:  summary.ByStatus[domain.FindingFail],
		ErrorCount: summary.ByStatus[domain.FindingError],
		Passed:     summary.Passed(),
		CreatedAt:  s.now(),
	}
	if sc := ds.Scope; sc != nil {
		run.ReturnType = sc.ReturnType
		run.Year = sc.Year
		run.Quarter = sc.ReportingQuarter()
		run.AsOfDate = sc.AsOfDateString()
	}

	if s.store != nil {
		if err := s.store.SaveRun(ctx, run, derived, findings); err != nil {
			config.LogError(s.log, "pipeline", "evaluate", "save run", run.ID, err)
			return nil, fmt.Errorf("save run: %w", err)
		}
	}

	s.log.WithFields(logrus.Fields{
		"run_id":      run.ID,
		"source":      source,
		"return_type": run.ReturnType,
		"claims_rows": len(ds.Claims),
		"fail":        run.FailCount,
		"error":       run.ErrorCount,
	}).Info("run complete")

	return &Result{
		Run:              run,
		Dataset:          derived,
		Findings:         findings,
		Summary:          summary,
		PaidTriangle:     paid,
		IncurredTriangle: incurred,
	}, nil
}
