package validation

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/wakala/reserving/internal/currency"
	"github.com/wakala/reserving/internal/domain"
	"github.com/wakala/reserving/internal/triangle"
)

// amountTolerance absorbs rounding to pence.
const amountTolerance = 0.01

// maxSamples caps how many offending keys a finding lists.
const maxSamples = 5

// DefaultRules returns the full rule registry.
func DefaultRules() []Rule {
	rules := []Rule{}
	for _, t := range []domain.TableName{
		domain.TableControl, domain.TableExchangeRates, domain.TableClaims,
		domain.TableIBNRGross, domain.TableIBNRNet,
	} {
		rules = append(rules, tablePresent(t))
	}

	rules = append(rules,
		Rule{
			ID:          "REQUIRED_FORMS",
			Description: "Every form required by the scope is submitted with its backing table",
			Severity:    domain.SeverityCritical,
			Requires:    []domain.TableName{domain.TableFormManifest},
			Check:       checkRequiredForms,
		},
		referenceRule("REF_SYNDICATE_CLAIMS", domain.TableClaims, func(ds *domain.Dataset) []int {
			return claimSyndicates(ds.Claims)
		}),
		referenceRule("REF_SYNDICATE_IBNR_GROSS", domain.TableIBNRGross, func(ds *domain.Dataset) []int {
			return estimateSyndicates(ds.IBNRGross)
		}),
		referenceRule("REF_SYNDICATE_IBNR_NET", domain.TableIBNRNet, func(ds *domain.Dataset) []int {
			return estimateSyndicates(ds.IBNRNet)
		}),
		netVsGross("NET_LE_GROSS_PREM", "written premium", func(r domain.IBNREstimateRecord) float64 { return r.GrossWrittenPremium }),
		netVsGross("NET_LE_GROSS_PAID", "paid claims", func(r domain.IBNREstimateRecord) float64 { return r.PaidClaimsGross }),
		netVsGross("NET_LE_GROSS_CASE", "case reserves", func(r domain.IBNREstimateRecord) float64 { return r.CaseReservesGross }),
		netVsGross("NET_LE_GROSS_IBNR", "IBNR best estimate", func(r domain.IBNREstimateRecord) float64 { return r.IBNRBestEstimate }),
		claimsRule("CLAIMS_NET_LE_GROSS_PREM", "Net written premium does not exceed gross on each claims row",
			domain.SeverityCritical, func(r domain.ClaimDevelopmentRecord) bool {
				return r.NetWrittenPremium > r.GrossWrittenPremium
			}),
		rangeRule("IBNR_RANGE", domain.TableIBNRGross, func(ds *domain.Dataset) []domain.IBNREstimateRecord { return ds.IBNRGross }),
		rangeRule("IBNR_RANGE_NET", domain.TableIBNRNet, func(ds *domain.Dataset) []domain.IBNREstimateRecord { return ds.IBNRNet }),
		completenessRule(domain.TableControl, func(ds *domain.Dataset) (int, []string) {
			n, bad := 0, []string{}
			for i, r := range ds.Control {
				if missing := missingControlKeys(r); len(missing) > 0 {
					n++
					bad = append(bad, fmt.Sprintf("row %d: %s", i, strings.Join(missing, ",")))
				}
			}
			return n, bad
		}),
		completenessRule(domain.TableClaims, func(ds *domain.Dataset) (int, []string) {
			n, bad := 0, []string{}
			for i, r := range ds.Claims {
				if missing := missingClaimKeys(r); len(missing) > 0 {
					n++
					bad = append(bad, fmt.Sprintf("row %d: %s", i, strings.Join(missing, ",")))
				}
			}
			return n, bad
		}),
		completenessRule(domain.TableIBNRGross, func(ds *domain.Dataset) (int, []string) {
			return incompleteEstimates(ds.IBNRGross)
		}),
		completenessRule(domain.TableIBNRNet, func(ds *domain.Dataset) (int, []string) {
			return incompleteEstimates(ds.IBNRNet)
		}),
		claimsRule("CLAIMS_TOTAL_INCURRED", "Total incurred equals paid plus case reserves plus IBNR",
			domain.SeverityHigh, func(r domain.ClaimDevelopmentRecord) bool {
				return math.Abs(r.TotalIncurred-(r.CumulativePaidClaims+r.CaseReserves+r.IBNRReserve)) > amountTolerance
			}),
		Rule{
			ID:          "CLAIMS_PAID_MONOTONIC",
			Description: "Cumulative paid claims never decrease across development periods",
			Severity:    domain.SeverityHigh,
			Requires:    []domain.TableName{domain.TableClaims},
			Check:       checkPaidMonotonic,
		},
		Rule{
			ID:          "CLAIMS_DEV_CONTIGUOUS",
			Description: "Each claims group covers development periods 0..n without gaps or duplicates and n stays within the triangle bound",
			Severity:    domain.SeverityMedium,
			Requires:    []domain.TableName{domain.TableClaims},
			Check:       checkContiguous,
		},
		claimsRule("CLAIMS_NON_NEGATIVE", "Claims amounts are finite and amounts and counts are non-negative",
			domain.SeverityHigh, func(r domain.ClaimDevelopmentRecord) bool {
				return !nonNegative(r.GrossWrittenPremium, r.NetWrittenPremium,
					r.CumulativePaidClaims, r.CaseReserves, r.IBNRReserve, r.TotalIncurred) ||
					r.ClaimCount < 0 || r.ClosedClaimCount < 0
			}),
		claimsRule("CLAIMS_CLOSED_LE_COUNT", "Closed claim count does not exceed claim count",
			domain.SeverityMedium, func(r domain.ClaimDevelopmentRecord) bool {
				return r.ClosedClaimCount > r.ClaimCount
			}),
		Rule{
			ID:          "CONTROL_INTEGRITY",
			Description: "Control rows have positive capacity and first year of account <= final",
			Severity:    domain.SeverityHigh,
			Requires:    []domain.TableName{domain.TableControl},
			Check:       checkControlIntegrity,
		},
		Rule{
			ID:          "SCOPE_YOA_RANGE",
			Description: "Claims and gross IBNR years of account fall within the scope window",
			Severity:    domain.SeverityMedium,
			Requires:    []domain.TableName{domain.TableClaims},
			Check:       checkScopeRange,
		},
		Rule{
			ID:          "CURRENCY_RATE_KNOWN",
			Description: "Every claims currency has an exchange rate",
			Severity:    domain.SeverityMedium,
			Requires:    []domain.TableName{domain.TableClaims, domain.TableExchangeRates},
			Check:       checkCurrencyRates,
		},
		Rule{
			ID:          "IBNR_RECONCILES_CLAIMS",
			Description: "Every gross IBNR key has claims development rows",
			Severity:    domain.SeverityMedium,
			Requires:    []domain.TableName{domain.TableIBNRGross, domain.TableClaims},
			Check:       checkIBNRReconciles,
		},
		Rule{
			ID:          "IBNR_LOSS_RATIO_DEFINED",
			Description: "Every IBNR estimate has earned premium to define a loss ratio",
			Severity:    domain.SeverityMedium,
			Requires:    []domain.TableName{domain.TableIBNRAnalysis},
			Check:       checkLossRatioDefined,
		},
		Rule{
			ID:          "DEV_FACTOR_SAMPLES",
			Description: "Every development period has at least one age-to-age sample",
			Severity:    domain.SeverityLow,
			Requires:    []domain.TableName{domain.TableFactors},
			Check:       checkFactorSamples,
		},
	)
	return rules
}

// --- rule builders ---

func tablePresent(t domain.TableName) Rule {
	return Rule{
		ID:          "TABLE_PRESENT_" + string(t),
		Description: fmt.Sprintf("Table %s is present", t),
		Severity:    domain.SeverityCritical,
		Check: func(ds *domain.Dataset) (Outcome, error) {
			if !ds.Has(t) {
				return Outcome{RecordsAffected: 1, Details: fmt.Sprintf("table %s is missing", t)}, nil
			}
			return Outcome{Details: fmt.Sprintf("%d row(s)", ds.RowCount(t))}, nil
		},
	}
}

func referenceRule(id string, table domain.TableName, syndicates func(*domain.Dataset) []int) Rule {
	return Rule{
		ID:          id,
		Description: fmt.Sprintf("Every syndicate in %s exists in CONTROL", table),
		Severity:    domain.SeverityHigh,
		Requires:    []domain.TableName{domain.TableControl, table},
		Check: func(ds *domain.Dataset) (Outcome, error) {
			known := make(map[int]bool, len(ds.Control))
			for _, c := range ds.Control {
				known[c.SyndicateNumber] = true
			}
			orphans := 0
			missing := map[int]bool{}
			for _, syn := range syndicates(ds) {
				if !known[syn] {
					orphans++
					missing[syn] = true
				}
			}
			if orphans == 0 {
				return Outcome{}, nil
			}
			return Outcome{
				RecordsAffected: orphans,
				Details:         fmt.Sprintf("%d orphan row(s); unknown syndicates: %s", orphans, joinInts(missing)),
			}, nil
		},
	}
}

func netVsGross(id, label string, amount func(domain.IBNREstimateRecord) float64) Rule {
	return Rule{
		ID:          id,
		Description: fmt.Sprintf("Net %s does not exceed gross for matched keys", label),
		Severity:    domain.SeverityCritical,
		Requires:    []domain.TableName{domain.TableIBNRGross, domain.TableIBNRNet},
		Check: func(ds *domain.Dataset) (Outcome, error) {
			gross := make(map[domain.GroupKey]domain.IBNREstimateRecord, len(ds.IBNRGross))
			for _, r := range ds.IBNRGross {
				gross[r.Key()] = r
			}
			n, bad := 0, []string{}
			for _, net := range ds.IBNRNet {
				g, ok := gross[net.Key()]
				if !ok {
					continue
				}
				if amount(net) > amount(g) {
					n++
					bad = append(bad, fmt.Sprintf("%s net=%.2f gross=%.2f", net.Key(), amount(net), amount(g)))
				}
			}
			return outcome(n, bad), nil
		},
	}
}

func claimsRule(id, description string, sev domain.Severity, broken func(domain.ClaimDevelopmentRecord) bool) Rule {
	return Rule{
		ID:          id,
		Description: description,
		Severity:    sev,
		Requires:    []domain.TableName{domain.TableClaims},
		Check: func(ds *domain.Dataset) (Outcome, error) {
			n, bad := 0, []string{}
			for _, r := range ds.Claims {
				if broken(r) {
					n++
					bad = append(bad, fmt.Sprintf("%s d=%d", r.Key(), r.DevelopmentPeriod))
				}
			}
			return outcome(n, bad), nil
		},
	}
}

func rangeRule(id string, table domain.TableName, rows func(*domain.Dataset) []domain.IBNREstimateRecord) Rule {
	return Rule{
		ID:          id,
		Description: fmt.Sprintf("IBNR low <= best <= high in %s", table),
		Severity:    domain.SeverityHigh,
		Requires:    []domain.TableName{table},
		Check: func(ds *domain.Dataset) (Outcome, error) {
			n, bad := 0, []string{}
			for _, r := range rows(ds) {
				if !finite(r.IBNRLow, r.IBNRBestEstimate, r.IBNRHigh) ||
					r.IBNRLow > r.IBNRBestEstimate || r.IBNRBestEstimate > r.IBNRHigh {
					n++
					bad = append(bad, fmt.Sprintf("%s low=%.2f best=%.2f high=%.2f",
						r.Key(), r.IBNRLow, r.IBNRBestEstimate, r.IBNRHigh))
				}
			}
			return outcome(n, bad), nil
		},
	}
}

func completenessRule(table domain.TableName, scan func(*domain.Dataset) (int, []string)) Rule {
	return Rule{
		ID:          "COMPLETENESS_" + string(table),
		Description: fmt.Sprintf("Key fields are populated in every %s row", table),
		Severity:    domain.SeverityCritical,
		Requires:    []domain.TableName{table},
		Check: func(ds *domain.Dataset) (Outcome, error) {
			n, bad := scan(ds)
			return outcome(n, bad), nil
		},
	}
}

// --- checks ---

func checkRequiredForms(ds *domain.Dataset) (Outcome, error) {
	if ds.Scope == nil {
		return Outcome{Skipped: true, Details: "dataset carries no scope"}, nil
	}
	submitted := make(map[domain.FormID]bool, len(ds.FormManifest))
	for _, s := range ds.FormManifest {
		submitted[s.FormID] = true
	}
	n, bad := 0, []string{}
	for _, id := range ds.Scope.RequiredForms {
		if !submitted[id] {
			n++
			bad = append(bad, string(id)+" not submitted")
			continue
		}
		form, ok := domain.LookupForm(id)
		if ok && form.Table != "" && !ds.Has(form.Table) {
			n++
			bad = append(bad, fmt.Sprintf("%s missing table %s", id, form.Table))
		}
	}
	return outcome(n, bad), nil
}

func checkPaidMonotonic(ds *domain.Dataset) (Outcome, error) {
	n, bad := 0, []string{}
	for _, g := range groupClaims(ds.Claims) {
		for i := 1; i < len(g.rows); i++ {
			prev, curr := g.rows[i-1], g.rows[i]
			if curr.CumulativePaidClaims+amountTolerance < prev.CumulativePaidClaims {
				n++
				bad = append(bad, fmt.Sprintf("%s d=%d paid %.2f < %.2f",
					g.key, curr.DevelopmentPeriod, curr.CumulativePaidClaims, prev.CumulativePaidClaims))
			}
		}
	}
	return outcome(n, bad), nil
}

func finite(vs ...float64) bool {
	for _, v := range vs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// nonNegative reports whether every value is finite and >= 0.
func nonNegative(vs ...float64) bool {
	for _, v := range vs {
		if !finite(v) || v < 0 {
			return false
		}
	}
	return true
}

func checkContiguous(ds *domain.Dataset) (Outcome, error) {
	n, bad := 0, []string{}
	for _, g := range groupClaims(ds.Claims) {
		for i, r := range g.rows {
			if r.DevelopmentPeriod != i {
				n++
				bad = append(bad, fmt.Sprintf("%s expected d=%d got d=%d", g.key, i, r.DevelopmentPeriod))
				break
			}
			if r.DevelopmentPeriod > triangle.MaxDevelopmentPeriod {
				n++
				bad = append(bad, fmt.Sprintf("%s d=%d exceeds %d", g.key, r.DevelopmentPeriod, triangle.MaxDevelopmentPeriod))
				break
			}
		}
	}
	return outcome(n, bad), nil
}

func checkControlIntegrity(ds *domain.Dataset) (Outcome, error) {
	n, bad := 0, []string{}
	seen := make(map[int]bool, len(ds.Control))
	for _, c := range ds.Control {
		var problems []string
		if !c.CapacityAmount.IsPositive() {
			problems = append(problems, "capacity "+c.CapacityAmount.String())
		}
		if c.FirstYearOfAccount > c.FinalYearOfAccount {
			problems = append(problems, fmt.Sprintf("first yoa %d > final %d", c.FirstYearOfAccount, c.FinalYearOfAccount))
		}
		if seen[c.SyndicateNumber] {
			problems = append(problems, "duplicate syndicate")
		}
		seen[c.SyndicateNumber] = true
		if len(problems) > 0 {
			n++
			bad = append(bad, fmt.Sprintf("%d: %s", c.SyndicateNumber, strings.Join(problems, ", ")))
		}
	}
	return outcome(n, bad), nil
}

func checkScopeRange(ds *domain.Dataset) (Outcome, error) {
	if ds.Scope == nil {
		return Outcome{Skipped: true, Details: "dataset carries no scope"}, nil
	}
	n, bad := 0, []string{}
	for _, r := range ds.Claims {
		if !ds.Scope.InScope(r.YearOfAccount) {
			n++
			bad = append(bad, fmt.Sprintf("claims %s", r.Key()))
		}
	}
	for _, r := range ds.IBNRGross {
		if !ds.Scope.InScope(r.YearOfAccount) {
			n++
			bad = append(bad, fmt.Sprintf("ibnr %s", r.Key()))
		}
	}
	return outcome(n, bad), nil
}

func checkCurrencyRates(ds *domain.Dataset) (Outcome, error) {
	known := map[string]bool{currency.Base: true}
	for _, r := range ds.ExchangeRates {
		known[strings.ToUpper(r.Currency)] = true
	}
	n := 0
	unknown := map[string]bool{}
	for _, r := range ds.Claims {
		if !known[strings.ToUpper(r.Currency)] {
			n++
			unknown[r.Currency] = true
		}
	}
	if n == 0 {
		return Outcome{}, nil
	}
	codes := make([]string, 0, len(unknown))
	for c := range unknown {
		codes = append(codes, c)
	}
	sort.Strings(codes)
	return Outcome{
		RecordsAffected: n,
		Details:         fmt.Sprintf("%d row(s) without a rate: %s", n, strings.Join(codes, ", ")),
	}, nil
}

func checkIBNRReconciles(ds *domain.Dataset) (Outcome, error) {
	claims := make(map[domain.GroupKey]bool)
	for _, r := range ds.Claims {
		claims[r.Key()] = true
	}
	n, bad := 0, []string{}
	for _, r := range ds.IBNRGross {
		if !claims[r.Key()] {
			n++
			bad = append(bad, r.Key().String())
		}
	}
	return outcome(n, bad), nil
}

func checkLossRatioDefined(ds *domain.Dataset) (Outcome, error) {
	n, bad := 0, []string{}
	for _, a := range ds.IBNRAnalysis {
		if !a.LossRatioDefined {
			n++
			bad = append(bad, fmt.Sprintf("%s %s", a.Key(), a.Basis))
		}
	}
	return outcome(n, bad), nil
}

func checkFactorSamples(ds *domain.Dataset) (Outcome, error) {
	n, bad := 0, []string{}
	for _, set := range [][]domain.DevelopmentFactor{ds.PaidFactors, ds.IncurredFactors} {
		for _, f := range set {
			if f.Insufficient() {
				n++
				bad = append(bad, fmt.Sprintf("%s d=%d", f.Metric, f.DevelopmentPeriod))
			}
		}
	}
	return outcome(n, bad), nil
}

// --- helpers ---

func outcome(n int, bad []string) Outcome {
	if n == 0 {
		return Outcome{}
	}
	shown := bad
	if len(shown) > maxSamples {
		shown = shown[:maxSamples]
	}
	details := fmt.Sprintf("%d record(s): %s", n, strings.Join(shown, "; "))
	if len(bad) > maxSamples {
		details += fmt.Sprintf("; and %d more", len(bad)-maxSamples)
	}
	return Outcome{RecordsAffected: n, Details: details}
}

type claimGroup struct {
	key  domain.GroupKey
	rows []domain.ClaimDevelopmentRecord
}

// groupClaims buckets claims rows by key with rows ordered by period and
// groups ordered by key. The input slice is not reordered.
func groupClaims(records []domain.ClaimDevelopmentRecord) []claimGroup {
	byKey := make(map[domain.GroupKey][]domain.ClaimDevelopmentRecord)
	for _, r := range records {
		byKey[r.Key()] = append(byKey[r.Key()], r)
	}
	groups := make([]claimGroup, 0, len(byKey))
	for k, rows := range byKey {
		sort.SliceStable(rows, func(i, j int) bool { return rows[i].DevelopmentPeriod < rows[j].DevelopmentPeriod })
		groups = append(groups, claimGroup{key: k, rows: rows})
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].key.Less(groups[j].key) })
	return groups
}

func claimSyndicates(records []domain.ClaimDevelopmentRecord) []int {
	out := make([]int, len(records))
	for i, r := range records {
		out[i] = r.SyndicateNumber
	}
	return out
}

func estimateSyndicates(records []domain.IBNREstimateRecord) []int {
	out := make([]int, len(records))
	for i, r := range records {
		out[i] = r.SyndicateNumber
	}
	return out
}

func missingControlKeys(r domain.ControlRecord) []string {
	var missing []string
	if r.SyndicateNumber <= 0 {
		missing = append(missing, "syndicate_number")
	}
	if r.ReturnType == "" {
		missing = append(missing, "return_type")
	}
	if r.ReportingQuarter == "" {
		missing = append(missing, "reporting_quarter")
	}
	if r.AsOfDate == "" {
		missing = append(missing, "as_of_date")
	}
	return missing
}

func missingClaimKeys(r domain.ClaimDevelopmentRecord) []string {
	var missing []string
	if r.SyndicateNumber <= 0 {
		missing = append(missing, "syndicate_number")
	}
	if r.YearOfAccount <= 0 {
		missing = append(missing, "year_of_account")
	}
	if strings.TrimSpace(r.LineOfBusinessCode) == "" {
		missing = append(missing, "line_of_business_code")
	}
	if strings.TrimSpace(r.Currency) == "" {
		missing = append(missing, "currency")
	}
	return missing
}

func incompleteEstimates(records []domain.IBNREstimateRecord) (int, []string) {
	n, bad := 0, []string{}
	for i, r := range records {
		var missing []string
		if r.SyndicateNumber <= 0 {
			missing = append(missing, "syndicate_number")
		}
		if r.YearOfAccount <= 0 {
			missing = append(missing, "year_of_account")
		}
		if strings.TrimSpace(r.LineOfBusinessCode) == "" {
			missing = append(missing, "line_of_business_code")
		}
		if r.Basis == "" {
			missing = append(missing, "basis")
		}
		if len(missing) > 0 {
			n++
			bad = append(bad, fmt.Sprintf("row %d: %s", i, strings.Join(missing, ",")))
		}
	}
	return n, bad
}

func joinInts(set map[int]bool) string {
	vals := make([]int, 0, len(set))
	for v := range set {
		vals = append(vals, v)
	}
	sort.Ints(vals)
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = fmt.Sprint(v)
	}
	return strings.Join(parts, ", ")
}
