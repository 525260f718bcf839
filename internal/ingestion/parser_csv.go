package ingestion

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/wakala/reserving/internal/domain"
)

var claimsColumns = []string{
	"syndicate_number",
	"year_of_account",
	"development_period",
	"line_of_business_code",
	"currency",
	"gross_written_premium",
	"net_written_premium",
	"cumulative_paid_claims",
	"case_reserves",
	"ibnr_reserve",
	"total_incurred",
	"claim_count",
	"closed_claim_count",
}

// ParseClaimsCSV parses a claims development table. Columns are matched by
// header name and may appear in any order; unknown columns are ignored.
// Empty numeric cells read as zero and are left to the completeness rules.
// NaN and infinite amounts are rejected.
func ParseClaimsCSV(data []byte) ([]domain.ClaimDevelopmentRecord, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	col := make(map[string]int, len(header))
	for i, h := range header {
		col[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))] = i
	}
	for _, name := range claimsColumns {
		if _, ok := col[name]; !ok {
			return nil, fmt.Errorf("missing column %q", name)
		}
	}

	records := []domain.ClaimDevelopmentRecord{}
	lineNum := 1
	for {
		row, err := r.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("line %d: %w", lineNum+1, err)
		}
		lineNum++

		p := rowParser{row: row, col: col, line: lineNum}
		rec := domain.ClaimDevelopmentRecord{
			SyndicateNumber:      p.atoi("syndicate_number"),
			YearOfAccount:        p.atoi("year_of_account"),
			DevelopmentPeriod:    p.atoi("development_period"),
			LineOfBusinessCode:   p.str("line_of_business_code"),
			Currency:             strings.ToUpper(p.str("currency")),
			GrossWrittenPremium:  p.atof("gross_written_premium"),
			NetWrittenPremium:    p.atof("net_written_premium"),
			CumulativePaidClaims: p.atof("cumulative_paid_claims"),
			CaseReserves:         p.atof("case_reserves"),
			IBNRReserve:          p.atof("ibnr_reserve"),
			TotalIncurred:        p.atof("total_incurred"),
			ClaimCount:           p.atoi("claim_count"),
			ClosedClaimCount:     p.atoi("closed_claim_count"),
		}
		if p.err != nil {
			return nil, p.err
		}
		records = append(records, rec)
	}

	return records, nil
}

// rowParser reads typed cells from one CSV row and keeps the first error.
type rowParser struct {
	row  []string
	col  map[string]int
	line int
	err  error
}

func (p *rowParser) str(name string) string {
	i := p.col[name]
	if i >= len(p.row) {
		return ""
	}
	return strings.TrimSpace(p.row[i])
}

func (p *rowParser) atoi(name string) int {
	s := p.str(name)
	if p.err != nil {
		return 0
	}
	if s == "" {
		return 0
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		p.err = fmt.Errorf("line %d %s: %w", p.line, name, err)
	}
	return v
}

func (p *rowParser) atof(name string) float64 {
	s := p.str(name)
	if p.err != nil {
		return 0
	}
	if s == "" {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		p.err = fmt.Errorf("line %d %s: %w", p.line, name, err)
		return 0
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		p.err = fmt.Errorf("line %d %s: non-finite value %q", p.line, name, s)
		return 0
	}
	return v
}
