// Package ibnr annotates IBNR estimates with range and loss-ratio analytics
// and rolls them up by year of account or line of business.
package ibnr

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/wakala/reserving/internal/domain"
)

// Uncertainty bucket upper bounds on ibnr_range_pct.
const (
	lowUpper      = 0.2
	moderateUpper = 0.4
	highUpper     = 0.6
)

// Analyze annotates each record. It returns new values and leaves records
// untouched.
func Analyze(records []domain.IBNREstimateRecord) []domain.AnnotatedIBNREstimate {
	out := make([]domain.AnnotatedIBNREstimate, len(records))
	for i, r := range records {
		out[i] = annotate(r)
	}
	return out
}

func annotate(r domain.IBNREstimateRecord) domain.AnnotatedIBNREstimate {
	a := domain.AnnotatedIBNREstimate{IBNREstimateRecord: r}
	a.IBNRRange = r.IBNRHigh - r.IBNRLow
	if r.IBNRBestEstimate != 0 {
		a.IBNRRangePct = a.IBNRRange / r.IBNRBestEstimate
	}
	a.UncertaintyLevel = Classify(a.IBNRRangePct)
	if r.GrossEarnedPremium != 0 {
		a.LossRatio = r.TotalIncurred() / r.GrossEarnedPremium
		a.LossRatioDefined = true
	}
	return a
}

// Classify buckets a range percentage into an uncertainty level.
func Classify(rangePct float64) domain.UncertaintyLevel {
	switch {
	case rangePct < lowUpper:
		return domain.UncertaintyLow
	case rangePct < moderateUpper:
		return domain.UncertaintyModerate
	case rangePct < highUpper:
		return domain.UncertaintyHigh
	default:
		return domain.UncertaintyVeryHigh
	}
}

// GroupBy selects the summary dimension.
type GroupBy string

const (
	ByYearOfAccount  GroupBy = "year_of_account"
	ByLineOfBusiness GroupBy = "line_of_business"
)

// Method selects how per-record ratios are averaged.
type Method string

const (
	// PremiumWeighted weights each record by its earned premium.
	PremiumWeighted Method = "premium_weighted"
	// Simple gives every record the same weight.
	Simple Method = "simple"
)

// ParseGroupBy accepts year_of_account/yoa and line_of_business/lob.
func ParseGroupBy(s string) (GroupBy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "yoa", "year_of_account":
		return ByYearOfAccount, nil
	case "lob", "line_of_business", "line_of_business_code":
		return ByLineOfBusiness, nil
	}
	return "", fmt.Errorf("unknown ibnr grouping %q", s)
}

// ParseMethod accepts premium_weighted/weighted and simple/mean.
func ParseMethod(s string) (Method, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "premium_weighted", "weighted":
		return PremiumWeighted, nil
	case "simple", "mean":
		return Simple, nil
	}
	return "", fmt.Errorf("unknown aggregation method %q", s)
}

// Aggregate rolls annotated estimates up by the given dimension. Records with
// an undefined loss ratio are counted in DegenerateCount and left out of
// MeanLossRatio. Groups are returned in ascending order.
func Aggregate(annotated []domain.AnnotatedIBNREstimate, by GroupBy, method Method) ([]domain.IBNRSummary, error) {
	keyOf, err := groupFunc(by)
	if err != nil {
		return nil, err
	}
	if method != PremiumWeighted && method != Simple {
		return nil, fmt.Errorf("unknown aggregation method %q", method)
	}

	type acc struct {
		summary            domain.IBNRSummary
		sortKey            string
		lrNum, lrDen       float64
		rangeNum, rangeDen float64
	}
	groups := make(map[string]*acc)

	for _, a := range annotated {
		label, sortKey := keyOf(a)
		g, ok := groups[label]
		if !ok {
			g = &acc{
				summary: domain.IBNRSummary{GroupBy: string(by), Group: label, Method: string(method)},
				sortKey: sortKey,
			}
			groups[label] = g
		}

		s := &g.summary
		s.RecordCount++
		s.GrossWrittenPremium += a.GrossWrittenPremium
		s.GrossEarnedPremium += a.GrossEarnedPremium
		s.IBNRLow += a.IBNRLow
		s.IBNRBestEstimate += a.IBNRBestEstimate
		s.IBNRHigh += a.IBNRHigh

		w := 1.0
		if method == PremiumWeighted {
			w = a.GrossEarnedPremium
		}
		if a.LossRatioDefined {
			g.lrNum += w * a.LossRatio
			g.lrDen += w
		} else {
			s.DegenerateCount++
		}
		if a.IBNRBestEstimate != 0 {
			g.rangeNum += w * a.IBNRRangePct
			g.rangeDen += w
		}
	}

	accs := make([]*acc, 0, len(groups))
	for _, g := range groups {
		if g.lrDen > 0 {
			v := g.lrNum / g.lrDen
			g.summary.MeanLossRatio = &v
		}
		if g.rangeDen > 0 {
			v := g.rangeNum / g.rangeDen
			g.summary.MeanRangePct = &v
		}
		accs = append(accs, g)
	}
	sort.Slice(accs, func(i, j int) bool { return accs[i].sortKey < accs[j].sortKey })

	out := make([]domain.IBNRSummary, len(accs))
	for i, g := range accs {
		out[i] = g.summary
	}
	return out, nil
}

func groupFunc(by GroupBy) (func(domain.AnnotatedIBNREstimate) (string, string), error) {
	switch by {
	case ByYearOfAccount:
		return func(a domain.AnnotatedIBNREstimate) (string, string) {
			return strconv.Itoa(a.YearOfAccount), fmt.Sprintf("%08d", a.YearOfAccount)
		}, nil
	case ByLineOfBusiness:
		return func(a domain.AnnotatedIBNREstimate) (string, string) {
			return a.LineOfBusinessCode, a.LineOfBusinessCode
		}, nil
	}
	return nil, fmt.Errorf("unknown ibnr grouping %q", by)
}
