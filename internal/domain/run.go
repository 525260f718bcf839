package domain

import "time"

// Run is one evaluated dataset: either generated for a scope or ingested
// from a file.
type Run struct {
	ID         string     `json:"id" yaml:"id"`
	Source     string     `json:"source" yaml:"source"`
	ReturnType ReturnType `json:"return_type,omitempty" yaml:"return_type,omitempty"`
	Year       int        `json:"year,omitempty" yaml:"year,omitempty"`
	Quarter    string     `json:"reporting_quarter,omitempty" yaml:"reporting_quarter,omitempty"`
	AsOfDate   string     `json:"as_of_date,omitempty" yaml:"as_of_date,omitempty"`
	// Seed is nil for ingested datasets.
	Seed       *int64    `json:"seed,omitempty" yaml:"seed,omitempty"`
	FailCount  int       `json:"fail_count" yaml:"fail_count"`
	ErrorCount int       `json:"error_count" yaml:"error_count"`
	Passed     bool      `json:"passed" yaml:"passed"`
	CreatedAt  time.Time `json:"created_at" yaml:"created_at"`
}

// SourceGenerated is the source of runs produced by the generator.
const SourceGenerated = "generated"

// IngestedFile records an uploaded file by content hash so the same file is
// never evaluated twice.
type IngestedFile struct {
	FileHash    string    `json:"file_hash"`
	FileName    string    `json:"file_name"`
	Format      string    `json:"format"`
	RunID       string    `json:"run_id"`
	RecordCount int       `json:"record_count"`
	IngestedAt  time.Time `json:"ingested_at"`
}

// SourceIngested is the source of runs evaluated from an uploaded file.
const SourceIngested = "ingested"
