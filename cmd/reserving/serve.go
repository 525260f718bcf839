package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/wakala/reserving/internal/api"
	"github.com/wakala/reserving/internal/domain"
	"github.com/wakala/reserving/internal/generator"
	"github.com/wakala/reserving/internal/ingestion"
	"github.com/wakala/reserving/internal/pipeline"
	"github.com/wakala/reserving/internal/repository"
	"github.com/wakala/reserving/internal/validation"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		if port, _ := cmd.Flags().GetInt("port"); port != 0 {
			cfg.Server.Port = port
		}
		return serve(cmd.Context())
	},
}

func init() {
	serveCmd.Flags().Int("port", 0, "listen port (default: server.port from config)")
}

func serve(ctx context.Context) error {
	logger.Infof("Initializing database at %s", cfg.Database.Path)
	db, err := repository.InitDB(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to init DB: %w", err)
	}
	defer db.Close()

	// Create repositories.
	runRepo := repository.NewRunRepo(db)
	findingRepo := repository.NewFindingRepo(db)
	ingestionRepo := repository.NewIngestionRepo(db)

	// Create services.
	gen, err := generator.New(cfg.Generation.Generator(), logger)
	if err != nil {
		return fmt.Errorf("generator: %w", err)
	}
	engine, err := validation.NewEngine(validation.DefaultRules(),
		validation.WithConcurrency(cfg.Generation.Workers), validation.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("validation engine: %w", err)
	}
	pipelineSvc := pipeline.NewService(gen, engine, runRepo, logger)
	ingestionSvc := ingestion.NewService(pipelineSvc, ingestionRepo, logger)

	// Seed a run if DB is empty.
	count, err := runRepo.Count(ctx)
	if err != nil {
		return fmt.Errorf("failed to count runs: %w", err)
	}
	if count == 0 {
		year, quarter := lastClosedQuarter(time.Now().UTC())
		logger.WithFields(logrus.Fields{"year": year, "quarter": quarter}).Info("Database is empty, seeding a quarterly run")
		if _, err := pipelineSvc.Run(ctx, pipeline.Request{
			ReturnType: domain.ReturnQuarterly,
			Year:       year,
			Quarter:    quarter,
			Seed:       cfg.Generation.Seed,
		}); err != nil {
			logger.WithError(err).Warn("Failed to seed run")
		}
	} else {
		logger.Infof("Database already has %d runs, skipping seed", count)
	}

	router := api.NewRouter(pipelineSvc, runRepo, findingRepo, ingestionSvc, cfg.Generation.Seed, logger)
	srv := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Reserving Return Analysis Engine")
	logger.Infof("Listening on http://%s", srv.Addr)
	logger.Infof("API base: http://%s/api/v1", srv.Addr)
	logger.Info("Endpoints:")
	for _, e := range []string{
		"GET    /api/v1/scope",
		"POST   /api/v1/runs",
		"GET    /api/v1/runs",
		"GET    /api/v1/runs/{id}",
		"GET    /api/v1/runs/{id}/findings",
		"GET    /api/v1/runs/{id}/findings/summary",
		"GET    /api/v1/runs/{id}/claims",
		"GET    /api/v1/runs/{id}/triangle",
		"GET    /api/v1/runs/{id}/factors",
		"GET    /api/v1/runs/{id}/ibnr/summary",
		"POST   /api/v1/datasets/ingest",
	} {
		logger.Info("  " + e)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
		logger.Info("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// lastClosedQuarter returns the most recent quarter that ended before now.
func lastClosedQuarter(now time.Time) (int, domain.Quarter) {
	quarters := []domain.Quarter{domain.Q1, domain.Q2, domain.Q3, domain.Q4}
	current := (int(now.Month()) - 1) / 3
	if current == 0 {
		return now.Year() - 1, domain.Q4
	}
	return now.Year(), quarters[current-1]
}
