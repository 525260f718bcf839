package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/wakala/reserving/internal/ingestion"
	"github.com/wakala/reserving/internal/pipeline"
	"github.com/wakala/reserving/internal/repository"
)

// NewRouter creates the Chi router with all API routes mounted. defaultSeed
// is used for runs requested without a seed.
func NewRouter(
	pipelineSvc *pipeline.Service,
	runRepo *repository.RunRepo,
	findingRepo *repository.FindingRepo,
	ingestionSvc *ingestion.Service,
	defaultSeed int64,
	logger logrus.FieldLogger,
) http.Handler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	h := &Handlers{
		pipeline:    pipelineSvc,
		runRepo:     runRepo,
		findingRepo: findingRepo,
		ingestion:   ingestionSvc,
		defaultSeed: defaultSeed,
		log:         logger.WithField("component", "api"),
	}

	r := chi.NewRouter()

	// Middleware.
	r.Use(middleware.RequestID)
	r.Use(requestLogger(h.log))
	r.Use(middleware.Recoverer)
	r.Use(middleware.SetHeader("Content-Type", "application/json"))

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/scope", h.GetScope)

		// Runs.
		r.Post("/runs", h.CreateRun)
		r.Get("/runs", h.ListRuns)
		r.Route("/runs/{id}", func(r chi.Router) {
			r.Get("/", h.GetRun)
			r.Get("/findings", h.ListFindings)
			r.Get("/findings/summary", h.GetFindingSummary)
			r.Get("/claims", h.ListClaims)
			r.Get("/triangle", h.GetTriangle)
			r.Get("/factors", h.GetFactors)
			r.Get("/ibnr/summary", h.GetIBNRSummary)
		})

		// Ingestion.
		r.Post("/datasets/ingest", h.IngestDataset)
	})

	return r
}

// requestLogger logs one line per request through logrus.
func requestLogger(logger logrus.FieldLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				logger.WithFields(logrus.Fields{
					"request_id": middleware.GetReqID(r.Context()),
					"method":     r.Method,
					"path":       r.URL.Path,
					"status":     ww.Status(),
					"bytes":      ww.BytesWritten(),
					"duration":   time.Since(start).String(),
				}).Info("request")
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
