package ingestion

import (
	"encoding/json"
	"fmt"

	"github.com/wakala/reserving/internal/domain"
	"github.com/wakala/reserving/internal/scope"
)

// bundleFile is the JSON dataset bundle. A table key that is missing or null
// leaves the table absent; an empty array is a present, empty table.
type bundleFile struct {
	Scope *struct {
		ReturnType string `json:"return_type"`
		Year       int    `json:"year"`
		Quarter    string `json:"quarter"`
	} `json:"scope"`
	Control       []domain.ControlRecord          `json:"control"`
	ExchangeRates []domain.ExchangeRateRecord     `json:"exchange_rates"`
	Claims        []domain.ClaimDevelopmentRecord `json:"claims_development"`
	IBNRGross     []domain.IBNREstimateRecord     `json:"ibnr_gross"`
	IBNRNet       []domain.IBNREstimateRecord     `json:"ibnr_net"`
	FormManifest  []domain.FormSubmission         `json:"form_manifest"`
}

// ParseDatasetJSON parses a dataset bundle. Derived tables are never read
// from the file; the pipeline recomputes them.
func ParseDatasetJSON(data []byte) (*domain.Dataset, error) {
	var f bundleFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("unmarshal: %w", err)
	}

	ds := &domain.Dataset{
		Control:       f.Control,
		ExchangeRates: f.ExchangeRates,
		Claims:        f.Claims,
		IBNRGross:     f.IBNRGross,
		IBNRNet:       f.IBNRNet,
		FormManifest:  f.FormManifest,
	}

	if f.Scope != nil {
		rt, err := scope.ParseReturnType(f.Scope.ReturnType)
		if err != nil {
			return nil, fmt.Errorf("scope: %w", err)
		}
		q, err := scope.ParseQuarter(f.Scope.Quarter)
		if err != nil {
			return nil, fmt.Errorf("scope: %w", err)
		}
		sc, err := scope.Resolve(rt, f.Scope.Year, q)
		if err != nil {
			return nil, fmt.Errorf("scope: %w", err)
		}
		ds.Scope = &sc
	}

	// The table a row arrives in decides its basis.
	for i := range ds.IBNRGross {
		ds.IBNRGross[i].Basis = domain.BasisGross
	}
	for i := range ds.IBNRNet {
		ds.IBNRNet[i].Basis = domain.BasisNet
	}

	return ds, nil
}
