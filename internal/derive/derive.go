// Package derive implements the spot-to-local-currency price derivation.
//
// The derivation is a pure function of its inputs and an explicit Tariff
// configuration; it never reads ambient state and never substitutes a
// fallback number when an input is missing.
package derive

import (
	"errors"
	"math"

	"github.com/yourorg/silver-spot-api/internal/model"
)

// Mass conversion constants
const (
	// GramsPerTroyOunce converts a troy-ounce quote to grams
	GramsPerTroyOunce = 31.1034768

	// GramsPerTola is the bullion tola used on Indian calculator pages
	GramsPerTola = 11.6638038
)

// ErrUnavailable is returned when an upstream input is absent or unusable.
// Callers must surface an explicit error state rather than a synthetic price.
var ErrUnavailable = errors.New("live price unavailable")

// ErrPairMismatch is returned when the exchange rate does not quote the
// currency the market is priced in.
var ErrPairMismatch = errors.New("exchange rate pair does not match market")

// Tariff holds the regional adjustment constants applied on top of the
// international benchmark. Percentages are decimals, e.g. 0.10 for 10%.
type Tariff struct {
	ImportDutyPct float64 `yaml:"import_duty_pct"`
	TaxPct        float64 `yaml:"tax_pct"`
	PremiumPct    float64 `yaml:"premium_pct"`
}

// DefaultTariff returns the canonical constants for a market. The source
// site carried several drifted copies of these numbers; one set per market
// is canonical here.
func DefaultTariff(m model.Market) Tariff {
	switch m {
	case model.MarketShanghai:
		// SGE trades duty-free domestically; VAT plus exchange premium
		return Tariff{ImportDutyPct: 0, TaxPct: 0.13, PremiumPct: 0.015}
	default:
		// India: 10% import duty, 3% GST, no extra premium
		return Tariff{ImportDutyPct: 0.10, TaxPct: 0.03, PremiumPct: 0}
	}
}

// Derive computes the displayable local-currency price for a market from a
// spot quote and an exchange rate.
//
// PerGram = (spotUSD / GramsPerTroyOunce) * rate * (1+duty) * (1+tax) * (1+premium),
// rounded to 2 decimals. PerKg is exactly PerGram * 1000 so the two figures
// can never drift apart through independent rounding.
func Derive(market model.Market, spot model.SpotPrice, rate model.ExchangeRate, t Tariff) (model.DerivedPrice, error) {
	if !positiveFinite(spot.ValueUSD) || !positiveFinite(rate.Rate) {
		return model.DerivedPrice{}, ErrUnavailable
	}
	if rate.Pair != market.Pair() {
		return model.DerivedPrice{}, ErrPairMismatch
	}

	perGram := spot.ValueUSD / GramsPerTroyOunce * rate.Rate *
		(1 + t.ImportDutyPct) * (1 + t.TaxPct) * (1 + t.PremiumPct)
	perGram = Round2(perGram)

	asOf := spot.AsOf
	if rate.AsOf.After(asOf) {
		asOf = rate.AsOf
	}

	return model.DerivedPrice{
		Market:   market,
		Currency: market.Currency(),
		PerGram:  perGram,
		PerKg:    perGram * 1000,
		PerTola:  Round2(perGram * GramsPerTola),
		PerOunce: Round2(perGram * GramsPerTroyOunce),
		Source:   spot.Source,
		AsOf:     asOf,
	}, nil
}

// Convert returns the price of a given mass at a per-gram rate, rounded for
// display. Used by the calculator endpoint.
func Convert(perGram, grams float64) float64 {
	if !positiveFinite(perGram) || grams < 0 || math.IsNaN(grams) || math.IsInf(grams, 0) {
		return 0
	}
	return Round2(perGram * grams)
}

// Round2 rounds to 2 decimal places for display.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func positiveFinite(v float64) bool {
	return v > 0 && !math.IsNaN(v) && !math.IsInf(v, 0)
}
