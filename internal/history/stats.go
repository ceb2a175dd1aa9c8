// Package history consumes the read-only daily price series: window
// statistics for the landing pages and the Postgres-backed store that
// retains points fetched from the historical feed.
package history

import (
	"errors"
	"math"
	"sort"
	"time"

	"github.com/yourorg/silver-spot-api/internal/derive"
	"github.com/yourorg/silver-spot-api/internal/model"
)

// ErrNoData is returned when a window holds no usable points.
var ErrNoData = errors.New("no historical data in window")

// Stats summarizes a window of daily points. Low and High include intraday
// extremes when the feed supplies them; Avg is over daily closes, so
// Low <= Avg <= High always holds.
type Stats struct {
	Low          float64 `json:"low"`
	High         float64 `json:"high"`
	Avg          float64 `json:"avg"`
	Change24hPct float64 `json:"change_24h_pct"`
	Days         int     `json:"days"`
}

// Compute calculates window statistics over the given points. Points with
// non-positive or non-finite closes are skipped.
func Compute(points []model.HistoricalPricePoint) (Stats, error) {
	var (
		low, high float64
		sum       float64
		count     int
	)
	low = math.Inf(1)

	sorted := sortByDate(points)
	var closes []float64

	for _, p := range sorted {
		if !positiveFinite(p.Price) {
			continue
		}
		// Clamp intraday extremes around the close so an inconsistent feed
		// point can never break the low <= close <= high ordering.
		dayLow := p.Price
		if positiveFinite(p.Low) && p.Low < dayLow {
			dayLow = p.Low
		}
		dayHigh := p.Price
		if positiveFinite(p.High) && p.High > dayHigh {
			dayHigh = p.High
		}

		if dayLow < low {
			low = dayLow
		}
		if dayHigh > high {
			high = dayHigh
		}
		sum += p.Price
		count++
		closes = append(closes, p.Price)
	}

	if count == 0 {
		return Stats{}, ErrNoData
	}

	stats := Stats{
		Low:  derive.Round2(low),
		High: derive.Round2(high),
		Avg:  derive.Round2(sum / float64(count)),
		Days: count,
	}

	if len(closes) >= 2 {
		prev := closes[len(closes)-2]
		last := closes[len(closes)-1]
		if prev > 0 {
			stats.Change24hPct = derive.Round2((last - prev) / prev * 100)
		}
	}

	return stats, nil
}

// Window returns the points whose date falls within the most recent N days,
// oldest first.
func Window(points []model.HistoricalPricePoint, days int) []model.HistoricalPricePoint {
	if days <= 0 || len(points) == 0 {
		return nil
	}
	cutoff := time.Now().AddDate(0, 0, -days)

	sorted := sortByDate(points)
	out := make([]model.HistoricalPricePoint, 0, len(sorted))
	for _, p := range sorted {
		if p.Date.After(cutoff) {
			out = append(out, p)
		}
	}
	return out
}

// TodayRange resolves today's displayed high/low. When the series carries
// no intraday extremes for today, the current price stands in for both
// rather than failing the whole response.
func TodayRange(current model.DerivedPrice, points []model.HistoricalPricePoint) (high, low float64) {
	high, low = current.PerGram, current.PerGram

	if len(points) == 0 {
		return high, low
	}
	sorted := sortByDate(points)
	last := sorted[len(sorted)-1]

	y, m, d := time.Now().Date()
	ly, lm, ld := last.Date.Date()
	if y != ly || m != lm || d != ld {
		return high, low
	}

	if positiveFinite(last.High) && last.High > high {
		high = last.High
	}
	if positiveFinite(last.Low) && last.Low < low {
		low = last.Low
	}
	return high, low
}

func sortByDate(points []model.HistoricalPricePoint) []model.HistoricalPricePoint {
	sorted := make([]model.HistoricalPricePoint, len(points))
	copy(sorted, points)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Date.Before(sorted[j].Date)
	})
	return sorted
}

func positiveFinite(v float64) bool {
	return v > 0 && !math.IsNaN(v) && !math.IsInf(v, 0)
}
