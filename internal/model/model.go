// Package model defines the core data structures for the silver-spot-api.
package model

import (
	"math"
	"time"
)

// CurrencyPair identifies a supported USD exchange-rate pair.
type CurrencyPair string

// Supported exchange-rate pairs
const (
	PairUSDINR CurrencyPair = "USD/INR"
	PairUSDCNY CurrencyPair = "USD/CNY"
)

// Market identifies a regional silver market served by the API.
type Market string

// Supported markets
const (
	MarketIndia    Market = "india"
	MarketShanghai Market = "shanghai"
)

// Currency returns the local quote currency for the market.
func (m Market) Currency() string {
	switch m {
	case MarketShanghai:
		return "CNY"
	default:
		return "INR"
	}
}

// Pair returns the exchange-rate pair needed to price the market.
func (m Market) Pair() CurrencyPair {
	switch m {
	case MarketShanghai:
		return PairUSDCNY
	default:
		return PairUSDINR
	}
}

// Valid reports whether the market is one the service knows how to price.
func (m Market) Valid() bool {
	return m == MarketIndia || m == MarketShanghai
}

// SpotPrice is a COMEX silver quote in USD per troy ounce.
// Immutable once fetched from the feed.
type SpotPrice struct {
	// ValueUSD is the quoted price in USD per troy ounce
	ValueUSD float64 `json:"value_usd"`

	// AsOf is the feed's timestamp for the quote
	AsOf time.Time `json:"as_of"`

	// Source is the identifier of the upstream feed
	Source string `json:"source"`
}

// Valid reports whether the quote carries a usable value no older than maxAge.
func (s SpotPrice) Valid(maxAge time.Duration) bool {
	return positiveFinite(s.ValueUSD) && !s.AsOf.IsZero() && time.Since(s.AsOf) < maxAge
}

// ExchangeRate is a USD exchange-rate quote. Same lifecycle as SpotPrice.
type ExchangeRate struct {
	Pair CurrencyPair `json:"pair"`

	// Rate is local currency units per USD
	Rate float64 `json:"rate"`

	AsOf   time.Time `json:"as_of"`
	Source string    `json:"source"`
}

// Valid reports whether the rate carries a usable value no older than maxAge.
func (r ExchangeRate) Valid(maxAge time.Duration) bool {
	return positiveFinite(r.Rate) && !r.AsOf.IsZero() && time.Since(r.AsOf) < maxAge
}

// Quote bundles the two upstream legs needed for one derivation.
type Quote struct {
	Spot SpotPrice    `json:"spot"`
	Rate ExchangeRate `json:"rate"`
}

// DerivedPrice is the displayable local-currency price for one market.
// It is recomputed on every successful poll tick and never persisted as
// authoritative data.
type DerivedPrice struct {
	Market   Market `json:"market"`
	Currency string `json:"currency"`

	// PerGram is the display price per gram, rounded to 2 decimals
	PerGram float64 `json:"per_gram"`

	// PerKg is exactly PerGram * 1000; no independent rounding
	PerKg float64 `json:"per_kg"`

	PerTola  float64 `json:"per_tola"`
	PerOunce float64 `json:"per_ounce"`

	// Change24h is the percent change against the previous daily close,
	// zero when no history is available
	Change24h float64 `json:"change_24h"`

	TodayHigh float64 `json:"today_high,omitempty"`
	TodayLow  float64 `json:"today_low,omitempty"`

	Source string    `json:"source"`
	AsOf   time.Time `json:"as_of"`
}

// HistoricalPricePoint is one day of the read-only local-currency series.
// High and Low are intraday extremes per gram and may be zero when the
// feed does not supply them.
type HistoricalPricePoint struct {
	Date  time.Time `json:"date"`
	Price float64   `json:"price"`
	High  float64   `json:"high,omitempty"`
	Low   float64   `json:"low,omitempty"`
}

func positiveFinite(v float64) bool {
	return v > 0 && !math.IsNaN(v) && !math.IsInf(v, 0)
}
