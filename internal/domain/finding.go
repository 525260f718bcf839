package domain

type FindingStatus string

const (
	FindingPass    FindingStatus = "PASS"
	FindingFail    FindingStatus = "FAIL"
	FindingError   FindingStatus = "ERROR"
	FindingSkipped FindingStatus = "SKIPPED"
)

// Rank orders statuses within a severity: failures first.
func (s FindingStatus) Rank() int {
	switch s {
	case FindingFail:
		return 0
	case FindingError:
		return 1
	case FindingPass:
		return 2
	case FindingSkipped:
		return 3
	}
	return 4
}

type Severity string

const (
	SeverityCritical Severity = "Critical"
	SeverityHigh     Severity = "High"
	SeverityMedium   Severity = "Medium"
	SeverityLow      Severity = "Low"
)

// Rank orders severities from Critical (0) to Low (3).
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 0
	case SeverityHigh:
		return 1
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 3
	}
	return 4
}

// ValidationFinding is the outcome of one validation rule over a dataset.
type ValidationFinding struct {
	RuleID          string        `json:"rule_id" yaml:"rule_id"`
	Description     string        `json:"description" yaml:"description"`
	Status          FindingStatus `json:"status" yaml:"status"`
	Severity        Severity      `json:"severity" yaml:"severity"`
	RecordsAffected int           `json:"records_affected" yaml:"records_affected"`
	Details         string        `json:"details" yaml:"details"`
}
