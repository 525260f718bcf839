// Command generate writes sample dataset files into testdata/ for use with
// `reserving validate`.
package main

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/sirupsen/logrus"

	"github.com/wakala/reserving/internal/domain"
	"github.com/wakala/reserving/internal/generator"
	"github.com/wakala/reserving/internal/scope"
)

const seed = 42

func main() {
	baseDir := findTestdataDir()
	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)

	gen, err := generator.New(generator.DefaultConfig(), logger)
	if err != nil {
		panic(err)
	}

	clean := generate(gen, domain.ReturnQuarterly, 2024, domain.Q2)
	writeJSONFile(filepath.Join(baseDir, "rrq_2024_q2.json"), clean)
	fmt.Printf("Generated %d claims rows -> rrq_2024_q2.json\n", len(clean.Claims))

	defective := generate(gen, domain.ReturnQuarterly, 2024, domain.Q4)
	injected := injectDiscrepancies(defective)
	writeJSONFile(filepath.Join(baseDir, "rrq_2024_q4_defective.json"), defective)
	fmt.Printf("Generated %d claims rows with %d injected discrepancies -> rrq_2024_q4_defective.json\n",
		len(defective.Claims), injected)

	annual := generate(gen, domain.ReturnAnnual, 2024, "")
	writeClaimsCSV(filepath.Join(baseDir, "rra_2024_claims.csv"), annual.Claims)
	fmt.Printf("Generated %d claims rows -> rra_2024_claims.csv\n", len(annual.Claims))
}

func generate(gen *generator.Generator, rt domain.ReturnType, year int, q domain.Quarter) *domain.Dataset {
	sc, err := scope.Resolve(rt, year, q)
	if err != nil {
		panic(err)
	}
	ds, err := gen.Generate(context.Background(), sc, seed)
	if err != nil {
		panic(err)
	}
	return ds
}

// injectDiscrepancies breaks a handful of rows so every major rule family
// has something to report.
func injectDiscrepancies(ds *domain.Dataset) int {
	n := 0

	// Net premium above gross on one matched key.
	if len(ds.IBNRNet) > 0 {
		ds.IBNRNet[0].GrossWrittenPremium = ds.IBNRGross[0].GrossWrittenPremium * 1.05
		n++
	}
	// Inverted IBNR range.
	if len(ds.IBNRGross) > 1 {
		ds.IBNRGross[1].IBNRLow = ds.IBNRGross[1].IBNRBestEstimate + 1000
		n++
	}
	// Syndicate missing from CONTROL.
	if len(ds.Claims) > 0 {
		ds.Claims[0].SyndicateNumber = 9999
		n++
	}
	// Paid claims going backwards.
	for i := 1; i < len(ds.Claims); i++ {
		prev, cur := ds.Claims[i-1], ds.Claims[i]
		if prev.Key() == cur.Key() && cur.DevelopmentPeriod == prev.DevelopmentPeriod+1 {
			ds.Claims[i].CumulativePaidClaims = prev.CumulativePaidClaims / 2
			n++
			break
		}
	}
	return n
}

func writeClaimsCSV(path string, claims []domain.ClaimDevelopmentRecord) {
	f, err := os.Create(path)
	if err != nil {
		panic(err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	w.Write([]string{
		"syndicate_number", "year_of_account", "development_period", "line_of_business_code", "currency",
		"gross_written_premium", "net_written_premium", "cumulative_paid_claims", "case_reserves",
		"ibnr_reserve", "total_incurred", "claim_count", "closed_claim_count",
	})
	for _, c := range claims {
		w.Write([]string{
			strconv.Itoa(c.SyndicateNumber),
			strconv.Itoa(c.YearOfAccount),
			strconv.Itoa(c.DevelopmentPeriod),
			c.LineOfBusinessCode,
			c.Currency,
			fmt.Sprintf("%.2f", c.GrossWrittenPremium),
			fmt.Sprintf("%.2f", c.NetWrittenPremium),
			fmt.Sprintf("%.2f", c.CumulativePaidClaims),
			fmt.Sprintf("%.2f", c.CaseReserves),
			fmt.Sprintf("%.2f", c.IBNRReserve),
			fmt.Sprintf("%.2f", c.TotalIncurred),
			strconv.Itoa(c.ClaimCount),
			strconv.Itoa(c.ClosedClaimCount),
		})
	}
}

func writeJSONFile(path string, v any) {
	f, err := os.Create(path)
	if err != nil {
		panic(err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		panic(err)
	}
}

func findTestdataDir() string {
	for _, c := range []string{"testdata", "../testdata", "../../testdata"} {
		if info, err := os.Stat(c); err == nil && info.IsDir() {
			return c
		}
	}
	return "testdata"
}
