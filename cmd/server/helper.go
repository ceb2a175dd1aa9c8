package main

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/yourorg/silver-spot-api/internal/derive"
	"github.com/yourorg/silver-spot-api/internal/model"
)

// maxHistoryDays caps the /history window so a single request cannot pull
// the entire stored series.
const maxHistoryDays = 90

// parseMarket resolves the market query parameter, defaulting to India.
func parseMarket(r *http.Request) (model.Market, error) {
	raw := r.URL.Query().Get("market")
	if raw == "" {
		return model.MarketIndia, nil
	}
	market := model.Market(raw)
	if !market.Valid() {
		return "", fmt.Errorf("unknown market %q", raw)
	}
	return market, nil
}

// parseDays resolves the days query parameter, clamped to a sane window.
func parseDays(r *http.Request, defaultDays int) int {
	raw := r.URL.Query().Get("days")
	if raw == "" {
		return defaultDays
	}
	days, err := strconv.Atoi(raw)
	if err != nil || days < 1 {
		return defaultDays
	}
	if days > maxHistoryDays {
		return maxHistoryDays
	}
	return days
}

// parseMass reads the requested quantity from one of the accepted unit
// parameters and normalizes it to grams.
func parseMass(r *http.Request) (float64, error) {
	units := []struct {
		param string
		grams float64
	}{
		{"grams", 1},
		{"kg", 1000},
		{"tola", derive.GramsPerTola},
		{"ounce", derive.GramsPerTroyOunce},
	}

	for _, u := range units {
		raw := r.URL.Query().Get(u.param)
		if raw == "" {
			continue
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || v <= 0 {
			return 0, fmt.Errorf("invalid %s value %q", u.param, raw)
		}
		return v * u.grams, nil
	}

	return 0, fmt.Errorf("missing quantity: pass grams, kg, tola or ounce")
}

// httpStatusLabel converts a status code to a metric label.
func httpStatusLabel(code int) string {
	return strconv.Itoa(code)
}
