// Package generator synthesises reserving return datasets for a resolved
// scope. Output is a pure function of (Config, scope, seed).
package generator

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/fnv"
	"math"
	"math/rand"
	"sort"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/wakala/reserving/internal/currency"
	"github.com/wakala/reserving/internal/domain"
)

// Config controls the shape of generated data.
type Config struct {
	Syndicates      []int
	LinesOfBusiness []string
	Currencies      []string
	// Workers bounds concurrent group generation.
	Workers int
}

// DefaultConfig returns the syndicate and line-of-business mix used when
// nothing is configured.
func DefaultConfig() Config {
	return Config{
		Syndicates:      []int{33, 510, 623, 1183, 2001, 2987},
		LinesOfBusiness: []string{"A1", "C1", "E1", "M1", "M2", "P1"},
		Currencies:      []string{"GBP", "USD", "EUR", "CAD"},
		Workers:         4,
	}
}

// Generator produces synthetic datasets.
type Generator struct {
	cfg Config
	log logrus.FieldLogger
}

// New creates a generator. Syndicates, lines and currencies are sorted so the
// order they were configured in does not affect output.
func New(cfg Config, logger logrus.FieldLogger) (*Generator, error) {
	if len(cfg.Syndicates) == 0 {
		return nil, errors.New("generator: no syndicates configured")
	}
	if len(cfg.LinesOfBusiness) == 0 {
		return nil, errors.New("generator: no lines of business configured")
	}
	if len(cfg.Currencies) == 0 {
		cfg.Currencies = []string{currency.Base}
	}
	for _, c := range cfg.Currencies {
		if _, err := currency.Rate(c); err != nil {
			return nil, fmt.Errorf("generator: %w", err)
		}
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}

	cfg.Syndicates = sortedInts(cfg.Syndicates)
	cfg.LinesOfBusiness = sortedStrings(cfg.LinesOfBusiness)
	cfg.Currencies = sortedStrings(cfg.Currencies)

	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Generator{cfg: cfg, log: logger.WithField("component", "generator")}, nil
}

// Generate builds every base table for the scope. Control records and
// exchange rates draw from one stream seeded with seed; each claims group
// draws from its own stream derived from seed and the group key, so groups
// are generated concurrently without changing the result.
func (g *Generator) Generate(ctx context.Context, scope domain.ScopeDescriptor, seed int64) (*domain.Dataset, error) {
	if len(scope.YearsOfAccount) == 0 {
		return nil, fmt.Errorf("%w: scope has no years of account", domain.ErrInvalidScopeConfiguration)
	}

	rng := rand.New(rand.NewSource(seed))

	control, err := g.controlRecords(rng, scope)
	if err != nil {
		return nil, fmt.Errorf("control records: %w", err)
	}
	rates, err := g.exchangeRates(rng, scope)
	if err != nil {
		return nil, fmt.Errorf("exchange rates: %w", err)
	}

	keys := g.groupKeys(scope)
	outputs := make([]groupOutput, len(keys))

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(g.cfg.Workers)
	for i, key := range keys {
		i, key := i, key
		eg.Go(func() error {
			if err := egCtx.Err(); err != nil {
				return err
			}
			out, err := g.generateGroup(scope, key, groupSeed(seed, key))
			if err != nil {
				return fmt.Errorf("group %s: %w", key, err)
			}
			outputs[i] = out
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	ds := &domain.Dataset{
		Scope:         &scope,
		Control:       control,
		ExchangeRates: rates,
		Claims:        []domain.ClaimDevelopmentRecord{},
		IBNRGross:     make([]domain.IBNREstimateRecord, 0, len(outputs)),
		IBNRNet:       make([]domain.IBNREstimateRecord, 0, len(outputs)),
	}
	for _, out := range outputs {
		ds.Claims = append(ds.Claims, out.claims...)
		ds.IBNRGross = append(ds.IBNRGross, out.gross)
		ds.IBNRNet = append(ds.IBNRNet, out.net)
	}
	ds.FormManifest = manifest(scope, ds)

	g.log.WithFields(logrus.Fields{
		"return_type": scope.ReturnType,
		"year":        scope.Year,
		"quarter":     scope.ReportingQuarter(),
		"seed":        seed,
		"groups":      len(keys),
		"claims_rows": len(ds.Claims),
	}).Info("generated dataset")

	return ds, nil
}

// --- base tables ---

var (
	statuses     = []domain.ReturnStatus{domain.StatusDraft, domain.StatusSubmitted, domain.StatusApproved}
	contactNames = []string{"Active Underwriter", "Chief Actuary", "Head of Reserving", "Finance Director"}
)

func (g *Generator) controlRecords(rng *rand.Rand, scope domain.ScopeDescriptor) ([]domain.ControlRecord, error) {
	records := make([]domain.ControlRecord, 0, len(g.cfg.Syndicates))
	for _, syn := range g.cfg.Syndicates {
		rec := domain.ControlRecord{
			SyndicateNumber:    syn,
			ReturnType:         scope.ReturnType,
			ReportingQuarter:   scope.ReportingQuarter(),
			Status:             statuses[rng.Intn(len(statuses))],
			CapacityAmount:     decimal.NewFromInt(int64(50+rng.Intn(951)) * 1_000_000),
			FirstYearOfAccount: scope.YearsOfAccount[0] - rng.Intn(10),
			FinalYearOfAccount: scope.Year,
			ContactName:        contactNames[rng.Intn(len(contactNames))],
			ContactEmail:       fmt.Sprintf("reserving@syndicate%d.example.com", syn),
			AsOfDate:           scope.AsOfDateString(),
		}
		if err := domain.ValidateRecord(rec); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

func (g *Generator) exchangeRates(rng *rand.Rand, scope domain.ScopeDescriptor) ([]domain.ExchangeRateRecord, error) {
	records := make([]domain.ExchangeRateRecord, 0, len(g.cfg.Currencies))
	for _, c := range g.cfg.Currencies {
		base, err := currency.Rate(c)
		if err != nil {
			return nil, err
		}
		rate := base
		if c != currency.Base {
			// +/-2% drift around the year-end rate.
			drift := decimal.NewFromFloat(1 + (rng.Float64()-0.5)*0.04)
			rate = base.Mul(drift).Round(4)
		}
		rec := domain.ExchangeRateRecord{
			Currency:   c,
			RatePerGBP: rate,
			AsOfDate:   scope.AsOfDateString(),
			RateSource: "synthetic",
		}
		if err := domain.ValidateRecord(rec); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

func manifest(scope domain.ScopeDescriptor, ds *domain.Dataset) []domain.FormSubmission {
	subs := make([]domain.FormSubmission, 0, len(scope.RequiredForms))
	for _, id := range scope.RequiredForms {
		f, ok := domain.LookupForm(id)
		if !ok {
			continue
		}
		sub := domain.FormSubmission{FormID: f.ID, Title: f.Title, Table: f.Table}
		if f.Table != "" {
			sub.RowCount = ds.RowCount(f.Table)
		}
		subs = append(subs, sub)
	}
	return subs
}

// --- claims groups ---

type groupOutput struct {
	claims []domain.ClaimDevelopmentRecord
	gross  domain.IBNREstimateRecord
	net    domain.IBNREstimateRecord
}

func (g *Generator) groupKeys(scope domain.ScopeDescriptor) []domain.GroupKey {
	keys := make([]domain.GroupKey, 0, len(g.cfg.Syndicates)*len(scope.YearsOfAccount)*len(g.cfg.LinesOfBusiness))
	for _, syn := range g.cfg.Syndicates {
		for _, yoa := range scope.YearsOfAccount {
			for _, lob := range g.cfg.LinesOfBusiness {
				keys = append(keys, domain.GroupKey{Syndicate: syn, YearOfAccount: yoa, LineOfBusiness: lob})
			}
		}
	}
	return keys
}

// DevelopmentPeriods is the number of development periods generated for a
// year of account: min(cap, age) with age counted from the as-of year.
func DevelopmentPeriods(scope domain.ScopeDescriptor, yoa int) int {
	age := scope.AsOfDate.Year() - yoa + 1
	if age < 1 {
		return 0
	}
	return min(scope.DevelopmentCap(), age)
}

// CompletionRatio is the share of ultimate claims paid by period d.
func CompletionRatio(d int) float64 {
	return math.Min(1.0, 0.2+0.15*float64(d))
}

func (g *Generator) generateGroup(scope domain.ScopeDescriptor, key domain.GroupKey, seed int64) (groupOutput, error) {
	rng := rand.New(rand.NewSource(seed))

	base := 1_000_000 + rng.Float64()*49_000_000
	lr := 0.45 + rng.Float64()*0.40
	ccy := g.cfg.Currencies[rng.Intn(len(g.cfg.Currencies))]
	ultimateCount := 20 + rng.Intn(381)

	periods := DevelopmentPeriods(scope, key.YearOfAccount)
	expected := base * lr

	out := groupOutput{claims: make([]domain.ClaimDevelopmentRecord, 0, periods)}
	for d := 0; d < periods; d++ {
		f := CompletionRatio(d)
		paid := round2(expected * f)
		cases := round2(expected * (1 - f) * 0.6)
		ibnr := round2(expected * (1 - f) * 0.4)
		cession := 0.05 + rng.Float64()*0.45

		claimCount := int(math.Round(float64(ultimateCount) * math.Min(1, 0.5+0.1*float64(d))))
		rec := domain.ClaimDevelopmentRecord{
			SyndicateNumber:      key.Syndicate,
			YearOfAccount:        key.YearOfAccount,
			DevelopmentPeriod:    d,
			LineOfBusinessCode:   key.LineOfBusiness,
			Currency:             ccy,
			GrossWrittenPremium:  round2(base),
			NetWrittenPremium:    round2(base * (1 - cession)),
			CumulativePaidClaims: paid,
			CaseReserves:         cases,
			IBNRReserve:          ibnr,
			TotalIncurred:        sum2(paid, cases, ibnr),
			ClaimCount:           claimCount,
			ClosedClaimCount:     int(math.Floor(float64(claimCount) * f)),
		}
		if err := domain.ValidateRecord(rec); err != nil {
			return groupOutput{}, err
		}
		out.claims = append(out.claims, rec)
	}

	latest := CompletionRatio(periods - 1)
	age := scope.AsOfDate.Year() - key.YearOfAccount + 1
	earned := math.Min(1, 0.25+0.25*float64(age-1))
	bestFrac := lr * (1 - latest) * 0.4
	lowFrac := bestFrac * (0.55 + rng.Float64()*0.40)
	highFrac := bestFrac * (1.05 + rng.Float64()*0.70)

	gross := domain.IBNREstimateRecord{
		SyndicateNumber:     key.Syndicate,
		YearOfAccount:       key.YearOfAccount,
		LineOfBusinessCode:  key.LineOfBusiness,
		Basis:               domain.BasisGross,
		GrossWrittenPremium: round2(base),
		GrossEarnedPremium:  round2(base * earned),
		PaidClaimsGross:     round2(expected * latest),
		CaseReservesGross:   round2(expected * (1 - latest) * 0.6),
		IBNRLow:             round2(base * lowFrac),
		IBNRBestEstimate:    round2(base * bestFrac),
		IBNRHigh:            round2(base * highFrac),
	}
	gross.UltimateLossRatio = ultimateLossRatio(gross)

	cession := 0.05 + rng.Float64()*0.45
	net := cede(gross, 1-cession)

	for _, rec := range []domain.IBNREstimateRecord{gross, net} {
		if err := domain.ValidateRecord(rec); err != nil {
			return groupOutput{}, err
		}
	}
	out.gross = gross
	out.net = net
	return out, nil
}

// cede scales every amount of a gross estimate by retained; rounding is
// monotonic so net never exceeds gross and low <= best <= high survives.
func cede(gross domain.IBNREstimateRecord, retained float64) domain.IBNREstimateRecord {
	net := gross
	net.Basis = domain.BasisNet
	net.GrossWrittenPremium = round2(gross.GrossWrittenPremium * retained)
	net.GrossEarnedPremium = round2(gross.GrossEarnedPremium * retained)
	net.PaidClaimsGross = round2(gross.PaidClaimsGross * retained)
	net.CaseReservesGross = round2(gross.CaseReservesGross * retained)
	net.IBNRLow = round2(gross.IBNRLow * retained)
	net.IBNRBestEstimate = round2(gross.IBNRBestEstimate * retained)
	net.IBNRHigh = round2(gross.IBNRHigh * retained)
	net.UltimateLossRatio = ultimateLossRatio(net)
	return net
}

func ultimateLossRatio(r domain.IBNREstimateRecord) float64 {
	if r.GrossWrittenPremium == 0 {
		return 0
	}
	return decimal.NewFromFloat(r.TotalIncurred() / r.GrossWrittenPremium).Round(4).InexactFloat64()
}

// --- helpers ---

// groupSeed derives an independent stream seed for one group.
func groupSeed(seed int64, key domain.GroupKey) int64 {
	h := fnv.New64a()
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(seed))
	h.Write(buf[:])
	h.Write([]byte(key.String()))
	return int64(h.Sum64())
}

func round2(v float64) float64 {
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}

func sum2(vals ...float64) float64 {
	total := decimal.Zero
	for _, v := range vals {
		total = total.Add(decimal.NewFromFloat(v))
	}
	return total.Round(2).InexactFloat64()
}

func sortedInts(in []int) []int {
	out := append([]int(nil), in...)
	sort.Ints(out)
	return out
}

func sortedStrings(in []string) []string {
	out := append([]string(nil), in...)
	sort.Strings(out)
	return out
}
