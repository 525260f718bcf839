// Package ingestion loads externally produced reserving datasets, evaluates
// them through the pipeline and records each file so it is processed once.
package ingestion

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/wakala/reserving/internal/config"
	"github.com/wakala/reserving/internal/domain"
	"github.com/wakala/reserving/internal/pipeline"
)

// ErrUnsupportedFormat is returned for a file format no parser handles.
var ErrUnsupportedFormat = errors.New("unsupported format")

const (
	FormatJSON      = "json"
	FormatClaimsCSV = "claims_csv"
)

// ParseFormat normalises a format name. An empty format is inferred from
// the file extension.
func ParseFormat(format, fileName string) (string, error) {
	f := strings.ToLower(strings.TrimSpace(format))
	if f == "" {
		f = strings.TrimPrefix(strings.ToLower(filepath.Ext(fileName)), ".")
	}
	switch f {
	case "json":
		return FormatJSON, nil
	case "csv", "claims_csv":
		return FormatClaimsCSV, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
}

// Evaluator runs the analysis pipeline over a dataset.
type Evaluator interface {
	Evaluate(ctx context.Context, source string, ds *domain.Dataset) (*pipeline.Result, error)
}

// FileStore remembers which files have been ingested.
type FileStore interface {
	FindByHash(ctx context.Context, hash string) (*domain.IngestedFile, error)
	Insert(ctx context.Context, f domain.IngestedFile) error
}

// IngestResult is returned from a successful ingestion.
type IngestResult struct {
	RunID           string `json:"run_id" yaml:"run_id"`
	FileHash        string `json:"file_hash" yaml:"file_hash"`
	Format          string `json:"format" yaml:"format"`
	RecordsIngested int    `json:"records_ingested" yaml:"records_ingested"`
	AlreadyIngested bool   `json:"already_ingested" yaml:"already_ingested"`
	FailCount       int    `json:"fail_count" yaml:"fail_count"`
	ErrorCount      int    `json:"error_count" yaml:"error_count"`
	Passed          bool   `json:"passed" yaml:"passed"`

	// Findings is only set when the file was evaluated by this call.
	Findings []domain.ValidationFinding `json:"findings,omitempty" yaml:"findings,omitempty"`
}

// Service handles ingestion of dataset files.
type Service struct {
	evaluator Evaluator
	files     FileStore
	log       logrus.FieldLogger
	now       func() time.Time
}

// NewService creates an ingestion service. files may be nil, in which case
// files are evaluated without any idempotency check.
func NewService(evaluator Evaluator, files FileStore, logger logrus.FieldLogger) *Service {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Service{
		evaluator: evaluator,
		files:     files,
		log:       logger.WithField("component", "ingestion"),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Ingest parses a dataset file and evaluates it. A file whose content was
// ingested before returns the original run without being evaluated again.
//
// format must be one of: json, claims_csv (or csv), or empty to infer it
// from fileName.
func (s *Service) Ingest(ctx context.Context, data []byte, fileName, format string) (*IngestResult, error) {
	format, err := ParseFormat(format, fileName)
	if err != nil {
		return nil, err
	}

	// Idempotency check via file hash.
	hash := fmt.Sprintf("%x", sha256.Sum256(data))
	if s.files != nil {
		prev, err := s.files.FindByHash(ctx, hash)
		if err != nil {
			return nil, fmt.Errorf("check hash: %w", err)
		}
		if prev != nil {
			s.log.WithFields(logrus.Fields{"file": fileName, "run_id": prev.RunID}).Info("file already ingested")
			return &IngestResult{
				RunID:           prev.RunID,
				FileHash:        hash,
				Format:          prev.Format,
				RecordsIngested: prev.RecordCount,
				AlreadyIngested: true,
			}, nil
		}
	}

	ds, err := Parse(data, format)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", format, err)
	}

	res, err := s.evaluator.Evaluate(ctx, domain.SourceIngested, ds)
	if err != nil {
		return nil, fmt.Errorf("evaluate: %w", err)
	}

	records := baseRowCount(ds)
	if s.files != nil {
		f := domain.IngestedFile{
			FileHash:    hash,
			FileName:    fileName,
			Format:      format,
			RunID:       res.Run.ID,
			RecordCount: records,
			IngestedAt:  s.now(),
		}
		if err := s.files.Insert(ctx, f); err != nil {
			config.LogError(s.log, "ingestion", "Ingest", "record file", fileName, err)
			return nil, fmt.Errorf("record file: %w", err)
		}
	}

	s.log.WithFields(logrus.Fields{
		"file":    fileName,
		"format":  format,
		"run_id":  res.Run.ID,
		"records": records,
		"fail":    res.Run.FailCount,
	}).Info("ingested file")

	return &IngestResult{
		RunID:           res.Run.ID,
		FileHash:        hash,
		Format:          format,
		RecordsIngested: records,
		FailCount:       res.Run.FailCount,
		ErrorCount:      res.Run.ErrorCount,
		Passed:          res.Run.Passed,
		Findings:        res.Findings,
	}, nil
}

// Parse decodes a file in a normalised format into a dataset.
func Parse(data []byte, format string) (*domain.Dataset, error) {
	switch format {
	case FormatJSON:
		return ParseDatasetJSON(data)
	case FormatClaimsCSV:
		claims, err := ParseClaimsCSV(data)
		if err != nil {
			return nil, err
		}
		return &domain.Dataset{Claims: claims}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
}

func baseRowCount(ds *domain.Dataset) int {
	n := 0
	for _, t := range []domain.TableName{
		domain.TableControl, domain.TableExchangeRates, domain.TableClaims,
		domain.TableIBNRGross, domain.TableIBNRNet, domain.TableFormManifest,
	} {
		n += ds.RowCount(t)
	}
	return n
}
