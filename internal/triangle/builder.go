// Package triangle reshapes claims development records into development
// triangles and derives chain-ladder factors from them.
package triangle

import (
	"fmt"
	"sort"
	"strings"

	"github.com/wakala/reserving/internal/domain"
)

// Dimension is a grouping dimension of a triangle.
type Dimension string

const (
	BySyndicate      Dimension = "syndicate"
	ByYearOfAccount  Dimension = "year_of_account"
	ByLineOfBusiness Dimension = "line_of_business"
)

// MaxDevelopmentPeriod bounds the periods a triangle holds. Records with a
// period outside 0..MaxDevelopmentPeriod are left out of triangles; the
// claims validation rules report them.
const MaxDevelopmentPeriod = 100

// DefaultDimensions groups by year of account and line of business.
var DefaultDimensions = []Dimension{ByYearOfAccount, ByLineOfBusiness}

// ParseDimensions parses a comma separated list such as "yoa,lob". Short
// aliases syn, yoa and lob are accepted.
func ParseDimensions(s string) ([]Dimension, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	var dims []Dimension
	for _, part := range strings.Split(s, ",") {
		switch strings.ToLower(strings.TrimSpace(part)) {
		case "syn", "syndicate", "syndicate_number":
			dims = append(dims, BySyndicate)
		case "yoa", "year_of_account":
			dims = append(dims, ByYearOfAccount)
		case "lob", "line_of_business", "line_of_business_code":
			dims = append(dims, ByLineOfBusiness)
		default:
			return nil, fmt.Errorf("unknown triangle dimension %q", part)
		}
	}
	return dims, nil
}

// ParseMetric parses "paid" or "incurred".
func ParseMetric(s string) (domain.Metric, error) {
	switch domain.Metric(strings.ToLower(strings.TrimSpace(s))) {
	case domain.MetricPaid:
		return domain.MetricPaid, nil
	case domain.MetricIncurred:
		return domain.MetricIncurred, nil
	}
	return "", fmt.Errorf("unknown metric %q", s)
}

// Point is one (development period, value) cell.
type Point struct {
	Period int     `json:"development_period"`
	Value  float64 `json:"value"`
	// Observed is false when no record supplied the period and Value is a
	// zero placeholder.
	Observed bool `json:"observed"`
}

// Row is the development of one group.
type Row struct {
	Key    domain.GroupKey `json:"key"`
	Points []Point         `json:"points"`
}

// Latest returns the last point of the row.
func (r Row) Latest() Point {
	return r.Points[len(r.Points)-1]
}

// Triangle is a set of rows for one metric. It is rebuilt on demand and
// never modified after Build returns.
type Triangle struct {
	Metric     domain.Metric `json:"metric"`
	Dimensions []Dimension   `json:"dimensions"`
	Rows       []Row         `json:"rows"`
}

// MaxPeriod returns the highest development period across rows, or -1 for
// an empty triangle.
func (t Triangle) MaxPeriod() int {
	maxP := -1
	for _, r := range t.Rows {
		if p := r.Latest().Period; p > maxP {
			maxP = p
		}
	}
	return maxP
}

// Build groups records by dims (DefaultDimensions when empty) and sums the
// metric per development period. Periods missing inside a group are
// reported as zero and periods outside 0..MaxDevelopmentPeriod are ignored.
// Input order does not affect the result.
func Build(records []domain.ClaimDevelopmentRecord, metric domain.Metric, dims ...Dimension) (Triangle, error) {
	if len(dims) == 0 {
		dims = DefaultDimensions
	}
	value, err := metricFunc(metric)
	if err != nil {
		return Triangle{}, err
	}

	cells := make(map[domain.GroupKey]map[int]float64)
	for _, rec := range records {
		if rec.DevelopmentPeriod < 0 || rec.DevelopmentPeriod > MaxDevelopmentPeriod {
			continue
		}
		k := project(rec.Key(), dims)
		if cells[k] == nil {
			cells[k] = make(map[int]float64)
		}
		cells[k][rec.DevelopmentPeriod] += value(rec)
	}

	keys := make([]domain.GroupKey, 0, len(cells))
	for k := range cells {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })

	rows := make([]Row, 0, len(keys))
	for _, k := range keys {
		byPeriod := cells[k]
		maxP := 0
		for p := range byPeriod {
			if p > maxP {
				maxP = p
			}
		}
		points := make([]Point, maxP+1)
		for p := 0; p <= maxP; p++ {
			v, ok := byPeriod[p]
			points[p] = Point{Period: p, Value: v, Observed: ok}
		}
		rows = append(rows, Row{Key: k, Points: points})
	}

	return Triangle{Metric: metric, Dimensions: append([]Dimension(nil), dims...), Rows: rows}, nil
}

func metricFunc(m domain.Metric) (func(domain.ClaimDevelopmentRecord) float64, error) {
	switch m {
	case domain.MetricPaid:
		return func(r domain.ClaimDevelopmentRecord) float64 { return r.CumulativePaidClaims }, nil
	case domain.MetricIncurred:
		return func(r domain.ClaimDevelopmentRecord) float64 { return r.TotalIncurred }, nil
	}
	return nil, fmt.Errorf("unknown metric %q", m)
}

// project keeps only the key fields named by dims.
func project(k domain.GroupKey, dims []Dimension) domain.GroupKey {
	var out domain.GroupKey
	for _, d := range dims {
		switch d {
		case BySyndicate:
			out.Syndicate = k.Syndicate
		case ByYearOfAccount:
			out.YearOfAccount = k.YearOfAccount
		case ByLineOfBusiness:
			out.LineOfBusiness = k.LineOfBusiness
		}
	}
	return out
}
