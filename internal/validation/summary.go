package validation

import "github.com/wakala/reserving/internal/domain"

// Summary counts findings by status and severity.
type Summary struct {
	Total        int                          `json:"total" yaml:"total"`
	ByStatus     map[domain.FindingStatus]int `json:"by_status" yaml:"by_status"`
	FailSeverity map[domain.Severity]int      `json:"fail_by_severity" yaml:"fail_by_severity"`
}

// Passed reports whether no rule failed or errored.
func (s Summary) Passed() bool {
	return s.ByStatus[domain.FindingFail] == 0 && s.ByStatus[domain.FindingError] == 0
}

// Summarize counts findings.
func Summarize(findings []domain.ValidationFinding) Summary {
	s := Summary{
		Total:        len(findings),
		ByStatus:     make(map[domain.FindingStatus]int),
		FailSeverity: make(map[domain.Severity]int),
	}
	for _, f := range findings {
		s.ByStatus[f.Status]++
		if f.Status == domain.FindingFail {
			s.FailSeverity[f.Severity]++
		}
	}
	return s
}
