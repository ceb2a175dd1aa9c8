// Package validation checks upstream feed quotes before they reach the
// price derivation, so a glitched feed value never becomes a displayed price.
package validation

import (
	"fmt"
	"math"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/yourorg/silver-spot-api/internal/model"
)

// Options holds configuration for quote validation
type Options struct {
	// MaxAge defines how recent a quote must be to be considered live
	MaxAge time.Duration

	// MinSpotUSD and MaxSpotUSD bound a plausible silver quote in USD per troy ounce
	MinSpotUSD float64
	MaxSpotUSD float64

	// MinRate and MaxRate bound a plausible USD exchange rate
	MinRate float64
	MaxRate float64
}

// DefaultOptions returns sensible bounds for silver and the supported pairs.
func DefaultOptions() Options {
	return Options{
		MaxAge:     15 * time.Minute,
		MinSpotUSD: 1.0,
		MaxSpotUSD: 500.0,
		MinRate:    0.5,
		MaxRate:    1000.0,
	}
}

// CheckQuote validates both legs of a quote. An error on either leg fails
// the whole quote; partial quotes are never derived from.
func CheckQuote(q model.Quote, opts Options) error {
	if err := CheckSpot(q.Spot, opts); err != nil {
		return err
	}
	return CheckRate(q.Rate, opts)
}

// CheckSpot validates a COMEX spot quote against the configured bounds.
func CheckSpot(s model.SpotPrice, opts Options) error {
	if !finite(s.ValueUSD) {
		return fmt.Errorf("spot quote is not a finite number: %f", s.ValueUSD)
	}
	if s.ValueUSD < opts.MinSpotUSD || s.ValueUSD > opts.MaxSpotUSD {
		return fmt.Errorf("spot quote outside plausible range [%.2f, %.2f]: %f",
			opts.MinSpotUSD, opts.MaxSpotUSD, s.ValueUSD)
	}
	if s.AsOf.IsZero() {
		return fmt.Errorf("spot quote has no timestamp")
	}
	if age := time.Since(s.AsOf); age > opts.MaxAge {
		return fmt.Errorf("spot quote too old: %s (max %s)", age.Round(time.Second), opts.MaxAge)
	}
	logrus.Debugf("Spot quote passed validation: %.4f USD/ozt from %s", s.ValueUSD, s.Source)
	return nil
}

// CheckRate validates an exchange-rate quote against the configured bounds.
func CheckRate(r model.ExchangeRate, opts Options) error {
	if r.Pair != model.PairUSDINR && r.Pair != model.PairUSDCNY {
		return fmt.Errorf("unsupported exchange-rate pair: %q", r.Pair)
	}
	if !finite(r.Rate) {
		return fmt.Errorf("exchange rate is not a finite number: %f", r.Rate)
	}
	if r.Rate < opts.MinRate || r.Rate > opts.MaxRate {
		return fmt.Errorf("exchange rate outside plausible range [%.2f, %.2f]: %f",
			opts.MinRate, opts.MaxRate, r.Rate)
	}
	if r.AsOf.IsZero() {
		return fmt.Errorf("exchange rate has no timestamp")
	}
	if age := time.Since(r.AsOf); age > opts.MaxAge {
		return fmt.Errorf("exchange rate too old: %s (max %s)", age.Round(time.Second), opts.MaxAge)
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
